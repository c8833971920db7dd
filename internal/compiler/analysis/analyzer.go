// Package analysis derives per-function metrics, the class table, type
// annotations, and the flow/liveness information the register manager
// consumes.
package analysis

import (
	"errors"
	"fmt"

	"github.com/albanread/nbcgo/internal/compiler/ast"
	"github.com/albanread/nbcgo/internal/compiler/symbols"
)

// Metrics is what one traversal records per function.
type Metrics struct {
	Name      string
	CallSites int
	Recursive bool
	// ContainsCall is false for leaf functions, which skip the LR/FP save.
	ContainsCall bool
	ReturnType   ast.Type

	// TrivialAccessor/TrivialSetter mark method bodies that are exactly one
	// member access or member assignment with no other effect; the inliner
	// rewrites their call sites.
	TrivialAccessor bool
	TrivialSetter   bool
	AccessedMember  string

	ParamTypes map[string]ast.Type
}

// Result is the analyzer's output.
type Result struct {
	Metrics map[string]*Metrics
	Classes *ClassTable
	// Flow is populated by the liveness phase, per function.
	Flow map[string]*FlowGraph
}

// MetricsFor returns the metrics for a function, creating an empty record
// if the function was never seen (runtime symbols).
func (r *Result) MetricsFor(name string) *Metrics {
	if m, ok := r.Metrics[name]; ok {
		return m
	}
	m := &Metrics{Name: name, ParamTypes: make(map[string]ast.Type)}
	r.Metrics[name] = m
	return m
}

// BuildClassTable resolves every class declaration's layout; it runs before
// symbol construction so member symbols get their offsets.
func BuildClassTable(p *ast.Program) (*ClassTable, []error) {
	return buildClassTable(p)
}

// Analyze traverses the program once: metrics, case-value resolution, and
// type annotation. User errors are accumulated and returned together.
func Analyze(p *ast.Program, table *symbols.Table, classes *ClassTable) (*Result, error) {
	res := &Result{
		Metrics: make(map[string]*Metrics),
		Flow:    make(map[string]*FlowGraph),
		Classes: classes,
	}
	var errs []error

	// Pass over every function-like declaration.
	for _, d := range p.Decls {
		switch n := d.(type) {
		case *ast.Function:
			analyzeFunction(res, table, n.Name, n.Params, n.Body, nil, n.IsFloat)
		case *ast.Routine:
			analyzeFunction(res, table, n.Name, n.Params, nil, n.Body, false)
		case *ast.Class:
			for _, m := range n.Members {
				switch f := m.Decl.(type) {
				case *ast.Function:
					f.Class = n.Name
					analyzeFunction(res, table, MethodLabel(n.Name, f.Name), f.Params, f.Body, nil, f.IsFloat)
				case *ast.Routine:
					f.Class = n.Name
					analyzeFunction(res, table, MethodLabel(n.Name, f.Name), f.Params, nil, f.Body, false)
				}
			}
		}
	}

	// Count call sites program-wide and resolve case values.
	countErrs := resolveAndCount(p, res)
	errs = append(errs, countErrs...)

	if len(errs) > 0 {
		return res, errors.Join(errs...)
	}
	return res, nil
}

func analyzeFunction(res *Result, table *symbols.Table, name string, params []string, body ast.Expr, stmtBody ast.Stmt, isFloat bool) {
	m := res.MetricsFor(name)
	m.Name = name
	if isFloat {
		m.ReturnType = ast.TypeFloat
	}

	mark := func(n ast.Node) bool {
		switch c := n.(type) {
		case *ast.FunctionCall:
			m.ContainsCall = true
			if v, ok := c.Target.(*ast.VarAccess); ok && v.Name == name {
				m.Recursive = true
			}
		case *ast.RoutineCall:
			m.ContainsCall = true
			if v, ok := c.Target.(*ast.VarAccess); ok && v.Name == name {
				m.Recursive = true
			}
		case *ast.New, *ast.SuperMethodCall, *ast.MemberAccess:
			// NEW allocates, method and member access may dispatch.
			m.ContainsCall = true
		}
		return true
	}

	if body != nil {
		ast.Walk(body, mark)
		if m.ReturnType == ast.TypeUnknown {
			m.ReturnType = inferType(body, table)
		}
		m.TrivialAccessor, m.AccessedMember = trivialAccessor(body, params)
	}
	if stmtBody != nil {
		ast.Walk(stmtBody, mark)
		m.TrivialSetter, m.AccessedMember = trivialSetter(stmtBody, params)
	}
}

// trivialAccessor matches a parameterless body of exactly `x.member`, where
// x is any variable; a bare member read is not matched.
func trivialAccessor(body ast.Expr, params []string) (bool, string) {
	if len(params) != 0 {
		return false, ""
	}
	if m, ok := body.(*ast.MemberAccess); ok {
		if _, isVar := m.Object.(*ast.VarAccess); isVar {
			return true, m.Member
		}
	}
	return false, ""
}

// trivialSetter matches a body of exactly `this.member := param`.
func trivialSetter(body ast.Stmt, params []string) (bool, string) {
	if len(params) != 1 {
		return false, ""
	}
	assign, ok := body.(*ast.Assign)
	if !ok {
		if c, isSeq := body.(*ast.Compound); isSeq && len(c.Stmts) == 1 {
			assign, ok = c.Stmts[0].(*ast.Assign)
		}
	}
	if !ok || assign == nil || len(assign.Lhs) != 1 || len(assign.Rhs) != 1 {
		return false, ""
	}
	m, ok := assign.Lhs[0].(*ast.MemberAccess)
	if !ok {
		return false, ""
	}
	v, ok := assign.Rhs[0].(*ast.VarAccess)
	if !ok || v.Name != params[0] {
		return false, ""
	}
	return true, m.Member
}

func resolveAndCount(p *ast.Program, res *Result) []error {
	var errs []error
	ast.Walk(p, func(n ast.Node) bool {
		switch c := n.(type) {
		case *ast.FunctionCall:
			if v, ok := c.Target.(*ast.VarAccess); ok {
				res.MetricsFor(v.Name).CallSites++
			}
		case *ast.RoutineCall:
			if v, ok := c.Target.(*ast.VarAccess); ok {
				res.MetricsFor(v.Name).CallSites++
			}
		case *ast.Case:
			v, ok := constValue(c.Value)
			if !ok {
				errs = append(errs, fmt.Errorf("case value is not a constant: %s", ast.Sprint(c.Value)))
				return true
			}
			c.Resolved = v
		}
		return true
	})
	return errs
}

// constValue evaluates a constant integer expression: number, character and
// boolean literals and their negation. Manifests were already substituted;
// other arithmetic is not evaluated.
func constValue(e ast.Expr) (int64, bool) {
	switch n := e.(type) {
	case *ast.NumberLit:
		return n.Value, true
	case *ast.CharLit:
		return int64(n.Value), true
	case *ast.BoolLit:
		if n.Value {
			return -1, true
		}
		return 0, true
	case *ast.UnaryOp:
		if n.Op == ast.Negate {
			if v, ok := constValue(n.Operand); ok {
				return -v, true
			}
		}
	}
	return 0, false
}

// inferType gives the analyzer's best type for an expression.
func inferType(e ast.Expr, table *symbols.Table) ast.Type {
	switch n := e.(type) {
	case *ast.NumberLit, *ast.CharLit, *ast.BoolLit:
		return ast.TypeInteger
	case *ast.FloatLit:
		return ast.TypeFloat
	case *ast.StringLit:
		return ast.TypePointerToString
	case *ast.NullLit:
		return ast.TypePointer
	case *ast.VarAccess:
		if sym, ok := table.Lookup(n.Name); ok {
			n.Inferred = sym.Type
			return sym.Type
		}
		return ast.TypeUnknown
	case *ast.BinaryOp:
		if n.Op.IsComparison() {
			n.Inferred = ast.TypeInteger
			return ast.TypeInteger
		}
		l, r := inferType(n.Left, table), inferType(n.Right, table)
		if l == ast.TypeFloat || r == ast.TypeFloat {
			n.Inferred = ast.TypeFloat
		} else {
			n.Inferred = ast.TypeInteger
		}
		return n.Inferred
	case *ast.UnaryOp:
		switch n.Op {
		case ast.FloatConvert, ast.FloatSqrt, ast.FloatFloor, ast.FloatTruncate, ast.HeadOfAsFloat:
			n.Inferred = ast.TypeFloat
		case ast.IntegerConvert, ast.LengthOf, ast.TypeOf, ast.LogicalNot, ast.BitwiseNot, ast.Negate:
			n.Inferred = ast.TypeInteger
		default:
			n.Inferred = inferType(n.Operand, table)
		}
		return n.Inferred
	case *ast.FunctionCall:
		if v, ok := n.Target.(*ast.VarAccess); ok {
			if sym, found := table.Lookup(v.Name); found && sym.ReturnsFloat() {
				n.Inferred = ast.TypeFloat
				return ast.TypeFloat
			}
		}
		n.Inferred = ast.TypeInteger
		return ast.TypeInteger
	case *ast.Conditional:
		t := inferType(n.Then, table)
		inferType(n.Else, table)
		return t
	case *ast.FloatValof:
		return ast.TypeFloat
	case *ast.Valof:
		return ast.TypeInteger
	case *ast.PackedExpr:
		switch n.Kind {
		case ast.PackedPair:
			return ast.TypePair
		case ast.PackedFPair:
			return ast.TypeFPair
		case ast.PackedQuad:
			return ast.TypeQuad
		case ast.PackedFQuad:
			return ast.TypeFQuad
		case ast.PackedOct:
			return ast.TypeOct
		default:
			return ast.TypeFOct
		}
	case *ast.PackedAccess:
		if n.Kind.IsFloat() {
			return ast.TypeFloat
		}
		return ast.TypeInteger
	case *ast.Alloc:
		switch n.Kind {
		case ast.AllocFVec:
			return ast.TypePointerToFloatVec
		case ast.AllocPairs:
			return ast.TypePointerToPairs
		case ast.AllocFPairs:
			return ast.TypePointerToFPairs
		case ast.AllocString:
			return ast.TypePointerToString
		default:
			return ast.TypePointerToIntVec
		}
	case *ast.New:
		return ast.TypePointerToObject
	case *ast.List:
		return ast.TypePointerToList
	}
	return ast.TypeUnknown
}
