package ast

// Deep, structural cloning. Annotations that later phases resolve onto nodes
// (Inferred types, Case.Resolved, For bound flags) are copied along; every
// child is cloned so the result shares no pointers with the source.

// CloneProgram returns an owned deep copy of p.
func CloneProgram(p *Program) *Program {
	out := &Program{Decls: make([]Decl, len(p.Decls))}
	for i, d := range p.Decls {
		out.Decls[i] = CloneDecl(d)
	}
	return out
}

func cloneExprs(es []Expr) []Expr {
	if es == nil {
		return nil
	}
	out := make([]Expr, len(es))
	for i, e := range es {
		out[i] = CloneExpr(e)
	}
	return out
}

func cloneStmts(ss []Stmt) []Stmt {
	if ss == nil {
		return nil
	}
	out := make([]Stmt, len(ss))
	for i, s := range ss {
		out[i] = CloneStmt(s)
	}
	return out
}

func cloneDecls(ds []Decl) []Decl {
	if ds == nil {
		return nil
	}
	out := make([]Decl, len(ds))
	for i, d := range ds {
		out[i] = CloneDecl(d)
	}
	return out
}

func cloneExprOpt(e Expr) Expr {
	if e == nil {
		return nil
	}
	return CloneExpr(e)
}

func cloneStmtOpt(s Stmt) Stmt {
	if s == nil {
		return nil
	}
	return CloneStmt(s)
}

// CloneDecl returns an owned deep copy of d.
func CloneDecl(d Decl) Decl {
	switch n := d.(type) {
	case *Let:
		return &Let{
			Names:    append([]string(nil), n.Names...),
			Inits:    cloneExprs(n.Inits),
			IsFloat:  n.IsFloat,
			Retained: n.Retained,
			DeclType: n.DeclType,
		}
	case *Manifest:
		c := *n
		return &c
	case *Static:
		return &Static{Name: n.Name, Init: cloneExprOpt(n.Init)}
	case *Global:
		return &Global{Pairs: append([]GlobalPair(nil), n.Pairs...)}
	case *GlobalVariable:
		return &GlobalVariable{
			Names:   append([]string(nil), n.Names...),
			Inits:   cloneExprs(n.Inits),
			IsFloat: n.IsFloat,
		}
	case *Function:
		return &Function{
			Name:    n.Name,
			Params:  append([]string(nil), n.Params...),
			Body:    cloneExprOpt(n.Body),
			Virtual: n.Virtual,
			Final:   n.Final,
			IsFloat: n.IsFloat,
			Class:   n.Class,
		}
	case *Routine:
		return &Routine{
			Name:   n.Name,
			Params: append([]string(nil), n.Params...),
			Body:   cloneStmtOpt(n.Body),
			Class:  n.Class,
		}
	case *LabelDecl:
		c := *n
		return &c
	case *Class:
		members := make([]ClassMember, len(n.Members))
		for i, m := range n.Members {
			members[i] = ClassMember{Decl: CloneDecl(m.Decl), Visibility: m.Visibility}
		}
		return &Class{Name: n.Name, Parent: n.Parent, Members: members}
	default:
		panic("BUG: CloneDecl: unhandled declaration variant")
	}
}

// CloneExpr returns an owned deep copy of e.
func CloneExpr(e Expr) Expr {
	switch n := e.(type) {
	case *NumberLit:
		c := *n
		return &c
	case *FloatLit:
		c := *n
		return &c
	case *StringLit:
		c := *n
		return &c
	case *CharLit:
		c := *n
		return &c
	case *BoolLit:
		c := *n
		return &c
	case *NullLit:
		return &NullLit{}
	case *VarAccess:
		c := *n
		return &c
	case *BinaryOp:
		return &BinaryOp{Op: n.Op, Left: CloneExpr(n.Left), Right: CloneExpr(n.Right), Inferred: n.Inferred}
	case *UnaryOp:
		return &UnaryOp{Op: n.Op, Operand: CloneExpr(n.Operand), Inferred: n.Inferred}
	case *VectorAccess:
		return &VectorAccess{Vector: CloneExpr(n.Vector), Index: CloneExpr(n.Index)}
	case *CharIndirection:
		return &CharIndirection{Str: CloneExpr(n.Str), Index: CloneExpr(n.Index)}
	case *FloatVectorIndirection:
		return &FloatVectorIndirection{Vector: CloneExpr(n.Vector), Index: CloneExpr(n.Index)}
	case *BitfieldAccess:
		return &BitfieldAccess{Base: CloneExpr(n.Base), StartBit: CloneExpr(n.StartBit), Width: CloneExpr(n.Width)}
	case *FunctionCall:
		return &FunctionCall{Target: CloneExpr(n.Target), Args: cloneExprs(n.Args), Inferred: n.Inferred}
	case *SysCall:
		return &SysCall{Number: CloneExpr(n.Number), Args: cloneExprs(n.Args)}
	case *Conditional:
		return &Conditional{Cond: CloneExpr(n.Cond), Then: CloneExpr(n.Then), Else: CloneExpr(n.Else)}
	case *Valof:
		return &Valof{Body: CloneStmt(n.Body)}
	case *FloatValof:
		return &FloatValof{Body: CloneStmt(n.Body)}
	case *Alloc:
		return &Alloc{Kind: n.Kind, Size: CloneExpr(n.Size)}
	case *Table:
		return &Table{Exprs: cloneExprs(n.Exprs), IsFloat: n.IsFloat}
	case *List:
		return &List{Exprs: cloneExprs(n.Exprs)}
	case *New:
		return &New{ClassName: n.ClassName, Args: cloneExprs(n.Args), Binding: n.Binding}
	case *MemberAccess:
		return &MemberAccess{Object: CloneExpr(n.Object), Member: n.Member, Inferred: n.Inferred}
	case *SuperMethodCall:
		return &SuperMethodCall{Method: n.Method, Args: cloneExprs(n.Args)}
	case *SuperMethodAccess:
		c := *n
		return &c
	case *PackedExpr:
		return &PackedExpr{Kind: n.Kind, Elems: cloneExprs(n.Elems)}
	case *PackedAccess:
		return &PackedAccess{Kind: n.Kind, Base: CloneExpr(n.Base), Field: n.Field}
	case *LaneAccess:
		return &LaneAccess{Vector: CloneExpr(n.Vector), Lane: CloneExpr(n.Lane)}
	case *VecInitializer:
		return &VecInitializer{Values: cloneExprs(n.Values), IsFloat: n.IsFloat}
	default:
		panic("BUG: CloneExpr: unhandled expression variant")
	}
}

// CloneStmt returns an owned deep copy of s.
func CloneStmt(s Stmt) Stmt {
	switch n := s.(type) {
	case *Assign:
		return &Assign{Lhs: cloneExprs(n.Lhs), Rhs: cloneExprs(n.Rhs)}
	case *RoutineCall:
		return &RoutineCall{Target: CloneExpr(n.Target), Args: cloneExprs(n.Args)}
	case *If:
		return &If{Cond: CloneExpr(n.Cond), Then: CloneStmt(n.Then)}
	case *Unless:
		return &Unless{Cond: CloneExpr(n.Cond), Then: CloneStmt(n.Then)}
	case *Test:
		return &Test{Cond: CloneExpr(n.Cond), Then: CloneStmt(n.Then), Else: cloneStmtOpt(n.Else)}
	case *While:
		return &While{Cond: CloneExpr(n.Cond), Body: CloneStmt(n.Body)}
	case *Until:
		return &Until{Cond: CloneExpr(n.Cond), Body: CloneStmt(n.Body)}
	case *Repeat:
		return &Repeat{Body: CloneStmt(n.Body), Mode: n.Mode, Cond: cloneExprOpt(n.Cond)}
	case *For:
		return &For{
			Var:   n.Var,
			Start: CloneExpr(n.Start), End: CloneExpr(n.End), Step: cloneExprOpt(n.Step),
			Body: CloneStmt(n.Body), EndConst: n.EndConst, StepConst: n.StepConst,
		}
	case *ForEach:
		return &ForEach{
			Value: n.Value, Tag: n.Tag,
			Collection: CloneExpr(n.Collection), Body: CloneStmt(n.Body), Filter: n.Filter,
		}
	case *Case:
		return &Case{Value: CloneExpr(n.Value), Resolved: n.Resolved, Body: CloneStmt(n.Body)}
	case *Default:
		return &Default{Body: CloneStmt(n.Body)}
	case *Switchon:
		cases := make([]*Case, len(n.Cases))
		for i, c := range n.Cases {
			cases[i] = CloneStmt(c).(*Case)
		}
		var def *Default
		if n.Default != nil {
			def = CloneStmt(n.Default).(*Default)
		}
		return &Switchon{Value: CloneExpr(n.Value), Cases: cases, Default: def}
	case *Goto:
		return &Goto{Target: CloneExpr(n.Target)}
	case *Return:
		return &Return{}
	case *Finish:
		return &Finish{Syscall: cloneExprOpt(n.Syscall), Args: cloneExprs(n.Args)}
	case *Break:
		return &Break{}
	case *Loop:
		return &Loop{}
	case *Endcase:
		return &Endcase{}
	case *Resultis:
		return &Resultis{Value: CloneExpr(n.Value), FromSend: n.FromSend}
	case *Compound:
		return &Compound{Stmts: cloneStmts(n.Stmts)}
	case *Block:
		return &Block{Decls: cloneDecls(n.Decls), Stmts: cloneStmts(n.Stmts)}
	case *StringAllocStmt:
		return &StringAllocStmt{Size: CloneExpr(n.Size)}
	case *LabelTarget:
		c := *n
		return &c
	case *CondBranch:
		return &CondBranch{Cond: n.Cond, Value: CloneExpr(n.Value), Target: n.Target}
	case *Brk:
		return &Brk{}
	case *Free:
		return &Free{Target: CloneExpr(n.Target)}
	case *Defer:
		return &Defer{Body: CloneStmt(n.Body)}
	case *Retain:
		return &Retain{Names: append([]string(nil), n.Names...)}
	case *Remanage:
		return &Remanage{Names: append([]string(nil), n.Names...)}
	case *MinMaxSum:
		return &MinMaxSum{Op: n.Op, Result: n.Result, Args: cloneExprs(n.Args)}
	case *Reduction:
		return &Reduction{Reducer: n.Reducer, Result: n.Result, Left: CloneExpr(n.Left), Right: cloneExprOpt(n.Right)}
	case *ReductionLoop:
		return &ReductionLoop{Result: n.Result, Left: CloneExpr(n.Left), Right: cloneExprOpt(n.Right), Intrinsic: n.Intrinsic, VecType: n.VecType}
	case *PairwiseReductionLoop:
		return &PairwiseReductionLoop{Result: n.Result, Left: CloneExpr(n.Left), Right: cloneExprOpt(n.Right), Intrinsic: n.Intrinsic, VecType: n.VecType}
	default:
		panic("BUG: CloneStmt: unhandled statement variant")
	}
}
