// Package rt is the runtime registry: the single source of truth binding
// every runtime-callable symbol name to its native address, external label,
// arity and signature. Initialization populates the registry itself (used by
// the external-function scanner and the linker) and the symbol table (used
// by the analyzer and the code generator), then verifies the two agree.
package rt

import (
	"fmt"
	"sort"
	"strings"

	"github.com/albanread/nbcgo/internal/compiler/ast"
	"github.com/albanread/nbcgo/internal/compiler/symbols"
)

// Family distinguishes the integer and float calling conventions.
type Family uint8

const (
	FamilyStandard Family = iota
	FamilyFloat
)

// String implements fmt.Stringer.
func (f Family) String() string {
	if f == FamilyFloat {
		return "float"
	}
	return "standard"
}

// Entry describes one runtime-callable symbol.
type Entry struct {
	// Name is the source-visible symbol (e.g. "WRITEF").
	Name string
	// Addr is the native function pointer the JIT path branches to.
	// The embedder binds it before compilation; zero means unbound.
	Addr uintptr
	// Label is the external symbol used by the object-file path.
	Label string
	// Arity is the declared parameter count.
	Arity int
	// Family selects integer or float argument passing.
	Family Family
	// ReturnType is the call's result type.
	ReturnType ast.Type
	// Kind is the symbol-table kind the entry registers under.
	Kind symbols.Kind
	// Description is a one-line summary for the registry listing.
	Description string
}

// Registry maps runtime symbol names to entries.
type Registry struct {
	entries map[string]*Entry
	order   []string
}

// NewRegistry returns a registry pre-populated with the standard runtime
// surface. Native addresses are unbound until Bind is called.
func NewRegistry() *Registry {
	r := &Registry{entries: make(map[string]*Entry)}
	for i := range standardEntries {
		e := standardEntries[i]
		r.register(&e)
	}
	return r
}

func (r *Registry) register(e *Entry) {
	if e.Label == "" {
		e.Label = "_" + e.Name
	}
	if _, dup := r.entries[e.Name]; dup {
		panic("BUG: duplicate runtime registration of " + e.Name)
	}
	r.entries[e.Name] = e
	r.order = append(r.order, e.Name)
}

// Lookup returns the entry for a runtime symbol.
func (r *Registry) Lookup(name string) (*Entry, bool) {
	e, ok := r.entries[name]
	return e, ok
}

// Bind installs the native address for name. Binding an unknown symbol is
// an error so embedder typos surface at startup.
func (r *Registry) Bind(name string, addr uintptr) error {
	e, ok := r.entries[name]
	if !ok {
		return fmt.Errorf("rt: bind: unknown runtime symbol %q", name)
	}
	e.Addr = addr
	return nil
}

// BindAll resolves every entry through the given resolver, skipping names
// the resolver does not know.
func (r *Registry) BindAll(resolve func(name string) (uintptr, bool)) {
	for _, name := range r.order {
		if addr, ok := resolve(name); ok {
			r.entries[name].Addr = addr
		}
	}
}

// Names returns the registered names in registration order.
func (r *Registry) Names() []string { return append([]string(nil), r.order...) }

// PopulateSymbolTable registers every entry into the global scope of the
// symbol table, then verifies each one is retrievable. A missing entry is a
// fatal startup error, reported as one.
func (r *Registry) PopulateSymbolTable(table *symbols.Table) error {
	for _, name := range r.order {
		e := r.entries[name]
		params := make([]symbols.ParameterInfo, e.Arity)
		ptype := ast.TypeInteger
		if e.Family == FamilyFloat {
			ptype = ast.TypeFloat
		}
		for i := range params {
			params[i] = symbols.ParameterInfo{Type: ptype}
		}
		sym := &symbols.Symbol{
			Name:       e.Name,
			Kind:       e.Kind,
			Type:       e.ReturnType,
			Location:   symbols.LabelLocation(e.Label),
			Parameters: params,
		}
		if err := table.DefineGlobal(sym); err != nil {
			return fmt.Errorf("rt: populate: %w", err)
		}
	}
	// Post-registration verification: every entry must come back out.
	for _, name := range r.order {
		sym, ok := table.Lookup(name)
		if !ok || !sym.IsRuntime() {
			return fmt.Errorf("rt: verification failed: %q not retrievable from symbol table", name)
		}
	}
	return nil
}

// List renders the registry as a table for the --list-runtime flag and the
// inspector console.
func (r *Registry) List() string {
	var b strings.Builder
	names := append([]string(nil), r.order...)
	sort.Strings(names)
	fmt.Fprintf(&b, "%-16s %-18s %-5s %-8s %s\n", "NAME", "LABEL", "ARITY", "FAMILY", "DESCRIPTION")
	for _, name := range names {
		e := r.entries[name]
		fmt.Fprintf(&b, "%-16s %-18s %-5d %-8s %s\n", e.Name, e.Label, e.Arity, e.Family, e.Description)
	}
	return b.String()
}

// standardEntries is the declarative runtime surface. The calling contract:
// AAPCS; string parameters point at a 64-bit length word followed by 32-bit
// character cells; vector parameters point at allocations whose leading word
// holds the element count.
var standardEntries = []Entry{
	// I/O.
	{Name: "WRITES", Arity: 1, Kind: symbols.RuntimeRoutine, Description: "write a string"},
	{Name: "WRITEN", Arity: 1, Kind: symbols.RuntimeRoutine, Description: "write an integer"},
	{Name: "WRITEF", Arity: 8, Kind: symbols.RuntimeRoutine, Description: "formatted write, up to 7 values"},
	{Name: "WRITEC", Arity: 1, Kind: symbols.RuntimeRoutine, Description: "write a character"},
	{Name: "FWRITE", Arity: 1, Family: FamilyFloat, Kind: symbols.RuntimeFloatRoutine, Description: "write a float"},
	{Name: "NEWLINE", Arity: 0, Kind: symbols.RuntimeRoutine, Description: "write a newline"},
	{Name: "RDCH", Arity: 0, ReturnType: ast.TypeInteger, Kind: symbols.RuntimeFunction, Description: "read one character"},
	{Name: "READN", Arity: 0, ReturnType: ast.TypeInteger, Kind: symbols.RuntimeFunction, Description: "read an integer"},

	// Allocation and ownership.
	{Name: "GETVEC", Arity: 1, ReturnType: ast.TypePointerToIntVec, Kind: symbols.RuntimeFunction, Description: "allocate an integer vector"},
	{Name: "FGETVEC", Arity: 1, ReturnType: ast.TypePointerToFloatVec, Kind: symbols.RuntimeFunction, Description: "allocate a float vector"},
	{Name: "FREEVEC", Arity: 1, Kind: symbols.RuntimeRoutine, Description: "release a vector"},
	{Name: "BCPL_ALLOC", Arity: 1, ReturnType: ast.TypePointerToObject, Kind: symbols.RuntimeFunction, Description: "allocate raw object storage"},
	{Name: "BCPL_FREE", Arity: 1, Kind: symbols.RuntimeRoutine, Description: "release object storage"},
	{Name: "GETSTRING", Arity: 1, ReturnType: ast.TypePointerToString, Kind: symbols.RuntimeFunction, Description: "allocate string storage"},

	// Strings.
	{Name: "STRLEN", Arity: 1, ReturnType: ast.TypeInteger, Kind: symbols.RuntimeFunction, Description: "string length"},
	{Name: "STRCMP", Arity: 2, ReturnType: ast.TypeInteger, Kind: symbols.RuntimeFunction, Description: "string compare"},
	{Name: "STRCOPY", Arity: 2, Kind: symbols.RuntimeRoutine, Description: "string copy"},
	{Name: "STRCONCAT", Arity: 2, ReturnType: ast.TypePointerToString, Kind: symbols.RuntimeFunction, Description: "string concatenation"},
	{Name: "TYPENAME", Arity: 1, ReturnType: ast.TypePointerToString, Kind: symbols.RuntimeFunction, Description: "type tag as string"},

	// Math.
	{Name: "FSIN", Arity: 1, Family: FamilyFloat, ReturnType: ast.TypeFloat, Kind: symbols.RuntimeFloatFunction, Description: "sine"},
	{Name: "FCOS", Arity: 1, Family: FamilyFloat, ReturnType: ast.TypeFloat, Kind: symbols.RuntimeFloatFunction, Description: "cosine"},
	{Name: "FTAN", Arity: 1, Family: FamilyFloat, ReturnType: ast.TypeFloat, Kind: symbols.RuntimeFloatFunction, Description: "tangent"},
	{Name: "FEXP", Arity: 1, Family: FamilyFloat, ReturnType: ast.TypeFloat, Kind: symbols.RuntimeFloatFunction, Description: "exponential"},
	{Name: "FLOG", Arity: 1, Family: FamilyFloat, ReturnType: ast.TypeFloat, Kind: symbols.RuntimeFloatFunction, Description: "natural logarithm"},
	{Name: "FABS", Arity: 1, Family: FamilyFloat, ReturnType: ast.TypeFloat, Kind: symbols.RuntimeFloatFunction, Description: "absolute value"},
	{Name: "RAND", Arity: 1, ReturnType: ast.TypeInteger, Kind: symbols.RuntimeFunction, Description: "pseudo-random integer"},

	// Lists.
	{Name: "LIST_CREATE", Arity: 0, ReturnType: ast.TypePointerToList, Kind: symbols.RuntimeListFunction, Description: "create an empty list"},
	{Name: "LIST_APPEND", Arity: 2, Kind: symbols.RuntimeRoutine, Description: "append a value"},
	{Name: "LIST_HEAD", Arity: 1, ReturnType: ast.TypeInteger, Kind: symbols.RuntimeFunction, Description: "head element"},
	{Name: "LIST_TAIL", Arity: 1, ReturnType: ast.TypePointerToList, Kind: symbols.RuntimeListFunction, Description: "tail, destructive"},
	{Name: "LIST_REST", Arity: 1, ReturnType: ast.TypePointerToList, Kind: symbols.RuntimeListFunction, Description: "tail, non-destructive"},
	{Name: "LIST_LENGTH", Arity: 1, ReturnType: ast.TypeInteger, Kind: symbols.RuntimeFunction, Description: "element count"},
	{Name: "LIST_FREE", Arity: 1, Kind: symbols.RuntimeRoutine, Description: "release a list"},
	{Name: "LIST_HEAD_FLOAT", Arity: 1, ReturnType: ast.TypeFloat, Kind: symbols.RuntimeFloatFunction, Description: "head element as float"},

	// Process control.
	{Name: "FINISH", Arity: 1, Kind: symbols.RuntimeRoutine, Description: "terminate the program"},
	{Name: "SYSCALL", Arity: 7, ReturnType: ast.TypeInteger, Kind: symbols.RuntimeFunction, Description: "raw system call"},
}
