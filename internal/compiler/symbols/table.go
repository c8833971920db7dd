package symbols

import (
	"fmt"
	"sort"
	"strings"

	"github.com/albanread/nbcgo/internal/compiler/ast"
)

// Table is the scoped symbol table. Scoping is lexical with explicit
// EnterScope/ExitScope; a symbol declared in an inner scope shadows an outer
// one with the same name. Exited scopes are retained so later phases can
// look symbols up by owning function.
type Table struct {
	// scopes is the active lexical stack; scopes[0] is the global scope.
	scopes []*scope
	// functionSymbols indexes every symbol by its owning function, nested
	// block scopes included, kept after scope exit for function-context
	// lookup.
	functionSymbols map[string]map[string]*Symbol
	// all keeps every symbol ever defined, in definition order, for dumps.
	all []*Symbol

	nextBlockID int
}

type scope struct {
	syms     map[string]*Symbol
	function string
	blockID  int
}

// TempCount anonymous temporaries of type Any are pre-allocated in every
// function scope for the code generator's scratch needs.
const TempCount = 4

// NewTable returns a table holding only the global scope.
func NewTable() *Table {
	t := &Table{functionSymbols: make(map[string]map[string]*Symbol)}
	t.scopes = append(t.scopes, &scope{syms: make(map[string]*Symbol)})
	return t
}

// Level returns the current lexical depth (0 = global).
func (t *Table) Level() int { return len(t.scopes) - 1 }

// CurrentFunction returns the function owning the innermost scope.
func (t *Table) CurrentFunction() string {
	return t.scopes[len(t.scopes)-1].function
}

// CurrentBlockID returns the innermost scope's block id.
func (t *Table) CurrentBlockID() int {
	return t.scopes[len(t.scopes)-1].blockID
}

// EnterScope opens a lexical block scope.
func (t *Table) EnterScope() {
	t.nextBlockID++
	t.scopes = append(t.scopes, &scope{
		syms:     make(map[string]*Symbol),
		function: t.CurrentFunction(),
		blockID:  t.nextBlockID,
	})
}

// EnterFunctionScope opens the scope of a named function or routine and
// pre-allocates the four anonymous temporaries.
func (t *Table) EnterFunctionScope(function string) {
	t.nextBlockID++
	s := &scope{syms: make(map[string]*Symbol), function: function, blockID: t.nextBlockID}
	t.scopes = append(t.scopes, s)
	for i := 1; i <= TempCount; i++ {
		t.mustDefine(&Symbol{
			Name:         fmt.Sprintf("_temp%d", i),
			Kind:         LocalVar,
			Type:         ast.TypeAny,
			ScopeLevel:   t.Level(),
			BlockID:      s.blockID,
			FunctionName: function,
		})
	}
}

// ExitScope closes the innermost scope. The global scope cannot be exited.
func (t *Table) ExitScope() {
	if len(t.scopes) == 1 {
		panic("BUG: ExitScope on global scope")
	}
	t.scopes = t.scopes[:len(t.scopes)-1]
}

func (t *Table) mustDefine(sym *Symbol) {
	s := t.scopes[len(t.scopes)-1]
	s.syms[sym.Name] = sym
	t.all = append(t.all, sym)
	if fn := sym.FunctionName; fn != "" {
		idx, ok := t.functionSymbols[fn]
		if !ok {
			idx = make(map[string]*Symbol)
			t.functionSymbols[fn] = idx
		}
		idx[sym.Name] = sym
	}
}

// Define adds a symbol to the innermost scope. Redeclaring a name within
// the same scope is a user error.
func (t *Table) Define(sym *Symbol) error {
	s := t.scopes[len(t.scopes)-1]
	if _, dup := s.syms[sym.Name]; dup {
		return fmt.Errorf("duplicate declaration of %q in %s", sym.Name, scopeDesc(s))
	}
	sym.ScopeLevel = t.Level()
	sym.BlockID = s.blockID
	if sym.FunctionName == "" {
		sym.FunctionName = s.function
	}
	t.mustDefine(sym)
	return nil
}

// DefineGlobal adds a symbol directly to the global scope regardless of the
// current nesting. The runtime registry populates the table through this.
func (t *Table) DefineGlobal(sym *Symbol) error {
	g := t.scopes[0]
	if _, dup := g.syms[sym.Name]; dup {
		return fmt.Errorf("duplicate global declaration of %q", sym.Name)
	}
	sym.ScopeLevel = 0
	sym.BlockID = g.blockID
	g.syms[sym.Name] = sym
	t.all = append(t.all, sym)
	return nil
}

// Lookup resolves name by the innermost-enclosing rule.
func (t *Table) Lookup(name string) (*Symbol, bool) {
	for i := len(t.scopes) - 1; i >= 0; i-- {
		if sym, ok := t.scopes[i].syms[name]; ok {
			return sym, true
		}
	}
	return nil, false
}

// LookupIn resolves name with function context: the named function's
// symbols (block-scoped locals included) are consulted first, then the
// enclosing chain from the current position.
func (t *Table) LookupIn(function, name string) (*Symbol, bool) {
	if idx, ok := t.functionSymbols[function]; ok {
		if sym, ok := idx[name]; ok {
			return sym, true
		}
	}
	return t.Lookup(name)
}

// All returns every symbol in definition order.
func (t *Table) All() []*Symbol { return t.all }

// FunctionLocals returns the stack-resident symbols of the named function,
// ordered by name for deterministic frame layout.
func (t *Table) FunctionLocals(function string) []*Symbol {
	var out []*Symbol
	seen := make(map[string]bool)
	for _, sym := range t.all {
		if sym.FunctionName == function && sym.IsLocal() && !seen[sym.Name] {
			seen[sym.Name] = true
			out = append(out, sym)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Dump renders the table for tracing and the inspector console.
func (t *Table) Dump() string {
	var b strings.Builder
	for _, sym := range t.all {
		b.WriteString(sym.String())
		b.WriteByte('\n')
	}
	return b.String()
}

func scopeDesc(s *scope) string {
	if s.function == "" {
		return "global scope"
	}
	return fmt.Sprintf("function %s (block %d)", s.function, s.blockID)
}
