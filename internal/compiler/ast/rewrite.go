package ast

// Rewriting and walking helpers shared by the passes. A Rewriter applies its
// callbacks post-order (children first), so a callback always sees a node
// whose subtrees are already rewritten. Nil callbacks are identity. Unhandled
// variants pass through unchanged, which gives every pass a default no-op for
// the node kinds it does not care about.
type Rewriter struct {
	Decl func(Decl) Decl
	Expr func(Expr) Expr
	Stmt func(Stmt) Stmt
}

func (r *Rewriter) decl(d Decl) Decl {
	if d == nil {
		return nil
	}
	d = r.rewriteDeclChildren(d)
	if r.Decl != nil {
		d = r.Decl(d)
	}
	return d
}

func (r *Rewriter) expr(e Expr) Expr {
	if e == nil {
		return nil
	}
	e = r.rewriteExprChildren(e)
	if r.Expr != nil {
		e = r.Expr(e)
	}
	return e
}

func (r *Rewriter) stmt(s Stmt) Stmt {
	if s == nil {
		return nil
	}
	s = r.rewriteStmtChildren(s)
	if r.Stmt != nil {
		s = r.Stmt(s)
	}
	return s
}

func (r *Rewriter) exprs(es []Expr) {
	for i, e := range es {
		es[i] = r.expr(e)
	}
}

// Program rewrites p in place and returns it. Callbacks returning nil drop
// the node (declarations and statements only; a nil expression is a bug in
// the callback and panics at the parent).
func (r *Rewriter) Program(p *Program) *Program {
	out := p.Decls[:0]
	for _, d := range p.Decls {
		if nd := r.decl(d); nd != nil {
			out = append(out, nd)
		}
	}
	p.Decls = out
	return p
}

// RewriteStmt applies r below and at s.
func (r *Rewriter) RewriteStmt(s Stmt) Stmt { return r.stmt(s) }

// RewriteExpr applies r below and at e.
func (r *Rewriter) RewriteExpr(e Expr) Expr { return r.expr(e) }

// RewriteDecl applies r below and at d.
func (r *Rewriter) RewriteDecl(d Decl) Decl { return r.decl(d) }

func (r *Rewriter) rewriteDeclChildren(d Decl) Decl {
	switch n := d.(type) {
	case *Let:
		r.exprs(n.Inits)
	case *Static:
		n.Init = r.expr(n.Init)
	case *GlobalVariable:
		r.exprs(n.Inits)
	case *Function:
		n.Body = r.expr(n.Body)
	case *Routine:
		n.Body = r.stmt(n.Body)
	case *Class:
		for i := range n.Members {
			n.Members[i].Decl = r.decl(n.Members[i].Decl)
		}
	}
	return d
}

func (r *Rewriter) rewriteExprChildren(e Expr) Expr {
	switch n := e.(type) {
	case *BinaryOp:
		n.Left = r.expr(n.Left)
		n.Right = r.expr(n.Right)
	case *UnaryOp:
		n.Operand = r.expr(n.Operand)
	case *VectorAccess:
		n.Vector = r.expr(n.Vector)
		n.Index = r.expr(n.Index)
	case *CharIndirection:
		n.Str = r.expr(n.Str)
		n.Index = r.expr(n.Index)
	case *FloatVectorIndirection:
		n.Vector = r.expr(n.Vector)
		n.Index = r.expr(n.Index)
	case *BitfieldAccess:
		n.Base = r.expr(n.Base)
		n.StartBit = r.expr(n.StartBit)
		n.Width = r.expr(n.Width)
	case *FunctionCall:
		n.Target = r.expr(n.Target)
		r.exprs(n.Args)
	case *SysCall:
		n.Number = r.expr(n.Number)
		r.exprs(n.Args)
	case *Conditional:
		n.Cond = r.expr(n.Cond)
		n.Then = r.expr(n.Then)
		n.Else = r.expr(n.Else)
	case *Valof:
		n.Body = r.stmt(n.Body)
	case *FloatValof:
		n.Body = r.stmt(n.Body)
	case *Alloc:
		n.Size = r.expr(n.Size)
	case *Table:
		r.exprs(n.Exprs)
	case *List:
		r.exprs(n.Exprs)
	case *New:
		r.exprs(n.Args)
	case *MemberAccess:
		n.Object = r.expr(n.Object)
	case *SuperMethodCall:
		r.exprs(n.Args)
	case *PackedExpr:
		r.exprs(n.Elems)
	case *PackedAccess:
		n.Base = r.expr(n.Base)
	case *LaneAccess:
		n.Vector = r.expr(n.Vector)
		n.Lane = r.expr(n.Lane)
	case *VecInitializer:
		r.exprs(n.Values)
	}
	return e
}

func (r *Rewriter) rewriteStmtChildren(s Stmt) Stmt {
	switch n := s.(type) {
	case *Assign:
		r.exprs(n.Lhs)
		r.exprs(n.Rhs)
	case *RoutineCall:
		n.Target = r.expr(n.Target)
		r.exprs(n.Args)
	case *If:
		n.Cond = r.expr(n.Cond)
		n.Then = r.stmt(n.Then)
	case *Unless:
		n.Cond = r.expr(n.Cond)
		n.Then = r.stmt(n.Then)
	case *Test:
		n.Cond = r.expr(n.Cond)
		n.Then = r.stmt(n.Then)
		n.Else = r.stmt(n.Else)
	case *While:
		n.Cond = r.expr(n.Cond)
		n.Body = r.stmt(n.Body)
	case *Until:
		n.Cond = r.expr(n.Cond)
		n.Body = r.stmt(n.Body)
	case *Repeat:
		n.Body = r.stmt(n.Body)
		n.Cond = r.expr(n.Cond)
	case *For:
		n.Start = r.expr(n.Start)
		n.End = r.expr(n.End)
		n.Step = r.expr(n.Step)
		n.Body = r.stmt(n.Body)
	case *ForEach:
		n.Collection = r.expr(n.Collection)
		n.Body = r.stmt(n.Body)
	case *Case:
		n.Value = r.expr(n.Value)
		n.Body = r.stmt(n.Body)
	case *Default:
		n.Body = r.stmt(n.Body)
	case *Switchon:
		n.Value = r.expr(n.Value)
		for i, c := range n.Cases {
			n.Cases[i] = r.stmt(c).(*Case)
		}
		if n.Default != nil {
			n.Default = r.stmt(n.Default).(*Default)
		}
	case *Goto:
		n.Target = r.expr(n.Target)
	case *Finish:
		n.Syscall = r.expr(n.Syscall)
		r.exprs(n.Args)
	case *Resultis:
		n.Value = r.expr(n.Value)
	case *Compound:
		out := n.Stmts[:0]
		for _, st := range n.Stmts {
			if ns := r.stmt(st); ns != nil {
				out = append(out, ns)
			}
		}
		n.Stmts = out
	case *Block:
		decls := n.Decls[:0]
		for _, d := range n.Decls {
			if nd := r.decl(d); nd != nil {
				decls = append(decls, nd)
			}
		}
		n.Decls = decls
		stmts := n.Stmts[:0]
		for _, st := range n.Stmts {
			if ns := r.stmt(st); ns != nil {
				stmts = append(stmts, ns)
			}
		}
		n.Stmts = stmts
	case *StringAllocStmt:
		n.Size = r.expr(n.Size)
	case *CondBranch:
		n.Value = r.expr(n.Value)
	case *Free:
		n.Target = r.expr(n.Target)
	case *Defer:
		n.Body = r.stmt(n.Body)
	case *MinMaxSum:
		r.exprs(n.Args)
	case *Reduction:
		n.Left = r.expr(n.Left)
		n.Right = r.expr(n.Right)
	case *ReductionLoop:
		n.Left = r.expr(n.Left)
		n.Right = r.expr(n.Right)
	case *PairwiseReductionLoop:
		n.Left = r.expr(n.Left)
		n.Right = r.expr(n.Right)
	}
	return s
}

// Walk visits n and its children pre-order. Returning false prunes the
// subtree below the visited node.
func Walk(n Node, visit func(Node) bool) {
	if n == nil || !visit(n) {
		return
	}
	walkChildren(n, visit)
}

func walkChildren(n Node, visit func(Node) bool) {
	walkNode := func(c Node) {
		if c != nil {
			Walk(c, visit)
		}
	}
	walkExprs := func(es []Expr) {
		for _, e := range es {
			if e != nil {
				Walk(e, visit)
			}
		}
	}
	switch n := n.(type) {
	case *Program:
		for _, d := range n.Decls {
			Walk(d, visit)
		}
	case *Let:
		walkExprs(n.Inits)
	case *Static:
		walkNode(n.Init)
	case *GlobalVariable:
		walkExprs(n.Inits)
	case *Function:
		walkNode(n.Body)
	case *Routine:
		walkNode(n.Body)
	case *Class:
		for _, m := range n.Members {
			Walk(m.Decl, visit)
		}
	case *BinaryOp:
		walkNode(n.Left)
		walkNode(n.Right)
	case *UnaryOp:
		walkNode(n.Operand)
	case *VectorAccess:
		walkNode(n.Vector)
		walkNode(n.Index)
	case *CharIndirection:
		walkNode(n.Str)
		walkNode(n.Index)
	case *FloatVectorIndirection:
		walkNode(n.Vector)
		walkNode(n.Index)
	case *BitfieldAccess:
		walkNode(n.Base)
		walkNode(n.StartBit)
		walkNode(n.Width)
	case *FunctionCall:
		walkNode(n.Target)
		walkExprs(n.Args)
	case *SysCall:
		walkNode(n.Number)
		walkExprs(n.Args)
	case *Conditional:
		walkNode(n.Cond)
		walkNode(n.Then)
		walkNode(n.Else)
	case *Valof:
		walkNode(n.Body)
	case *FloatValof:
		walkNode(n.Body)
	case *Alloc:
		walkNode(n.Size)
	case *Table:
		walkExprs(n.Exprs)
	case *List:
		walkExprs(n.Exprs)
	case *New:
		walkExprs(n.Args)
	case *MemberAccess:
		walkNode(n.Object)
	case *SuperMethodCall:
		walkExprs(n.Args)
	case *PackedExpr:
		walkExprs(n.Elems)
	case *PackedAccess:
		walkNode(n.Base)
	case *LaneAccess:
		walkNode(n.Vector)
		walkNode(n.Lane)
	case *VecInitializer:
		walkExprs(n.Values)
	case *Assign:
		walkExprs(n.Lhs)
		walkExprs(n.Rhs)
	case *RoutineCall:
		walkNode(n.Target)
		walkExprs(n.Args)
	case *If:
		walkNode(n.Cond)
		walkNode(n.Then)
	case *Unless:
		walkNode(n.Cond)
		walkNode(n.Then)
	case *Test:
		walkNode(n.Cond)
		walkNode(n.Then)
		walkNode(n.Else)
	case *While:
		walkNode(n.Cond)
		walkNode(n.Body)
	case *Until:
		walkNode(n.Cond)
		walkNode(n.Body)
	case *Repeat:
		walkNode(n.Body)
		walkNode(n.Cond)
	case *For:
		walkNode(n.Start)
		walkNode(n.End)
		walkNode(n.Step)
		walkNode(n.Body)
	case *ForEach:
		walkNode(n.Collection)
		walkNode(n.Body)
	case *Case:
		walkNode(n.Value)
		walkNode(n.Body)
	case *Default:
		walkNode(n.Body)
	case *Switchon:
		walkNode(n.Value)
		for _, c := range n.Cases {
			Walk(c, visit)
		}
		if n.Default != nil {
			Walk(n.Default, visit)
		}
	case *Goto:
		walkNode(n.Target)
	case *Finish:
		walkNode(n.Syscall)
		walkExprs(n.Args)
	case *Resultis:
		walkNode(n.Value)
	case *Compound:
		for _, s := range n.Stmts {
			Walk(s, visit)
		}
	case *Block:
		for _, d := range n.Decls {
			Walk(d, visit)
		}
		for _, s := range n.Stmts {
			Walk(s, visit)
		}
	case *StringAllocStmt:
		walkNode(n.Size)
	case *CondBranch:
		walkNode(n.Value)
	case *Free:
		walkNode(n.Target)
	case *Defer:
		walkNode(n.Body)
	case *MinMaxSum:
		walkExprs(n.Args)
	case *Reduction:
		walkNode(n.Left)
		walkNode(n.Right)
	case *ReductionLoop:
		walkNode(n.Left)
		walkNode(n.Right)
	case *PairwiseReductionLoop:
		walkNode(n.Left)
		walkNode(n.Right)
	}
}
