package analysis

import (
	"fmt"

	"github.com/albanread/nbcgo/internal/compiler/ast"
)

// Block is one basic block of a function's flow graph. Statements are
// borrowed from the AST; the graph owns only the structure.
type Block struct {
	ID    string
	Stmts []ast.Stmt
	Succs []*Block

	Use     map[string]bool
	Def     map[string]bool
	LiveIn  map[string]bool
	LiveOut map[string]bool

	// VarsUsedAcrossCalls holds variables referenced after (or across) any
	// call site inside the block; these prefer callee-saved registers.
	VarsUsedAcrossCalls map[string]bool
}

func newBlock(id string) *Block {
	return &Block{
		ID:                  id,
		Use:                 make(map[string]bool),
		Def:                 make(map[string]bool),
		LiveIn:              make(map[string]bool),
		LiveOut:             make(map[string]bool),
		VarsUsedAcrossCalls: make(map[string]bool),
	}
}

// FlowGraph is the ordered basic-block graph of one function.
type FlowGraph struct {
	Function string
	Blocks   []*Block

	entry   *Block
	counter map[string]int
}

// Entry returns the function's entry block.
func (g *FlowGraph) Entry() *Block { return g.entry }

// BuildCFG derives the block graph for a function body.
func BuildCFG(function string, body ast.Stmt) *FlowGraph {
	g := &FlowGraph{Function: function, counter: make(map[string]int)}
	g.entry = g.add(function + "_entry")

	b := &cfgBuilder{graph: g, current: g.entry, labels: make(map[string]*Block)}
	b.stmt(body)
	return g
}

func (g *FlowGraph) add(id string) *Block {
	blk := newBlock(id)
	g.Blocks = append(g.Blocks, blk)
	return blk
}

// fresh makes a stable unique id like "if_then_3".
func (g *FlowGraph) fresh(kind string) string {
	g.counter[kind]++
	return fmt.Sprintf("%s_%d", kind, g.counter[kind])
}

type cfgBuilder struct {
	graph   *FlowGraph
	current *Block
	// loop stack for Break/Loop targets.
	breakTargets []*Block
	loopTargets  []*Block
	// endcase stack for Endcase.
	endcaseTargets []*Block
	// labels maps a source label to its block. A Goto seen before its
	// target's LabelTarget creates the block here as a forward reference.
	labels map[string]*Block
}

// labelBlock returns the block for a source label, creating it on first
// reference so forward GOTOs resolve.
func (b *cfgBuilder) labelBlock(name string) *Block {
	if blk, ok := b.labels[name]; ok {
		return blk
	}
	blk := b.graph.add(b.graph.fresh("label_" + name))
	b.labels[name] = blk
	return blk
}

func link(from, to *Block) {
	if from == nil || to == nil {
		return
	}
	from.Succs = append(from.Succs, to)
}

func (b *cfgBuilder) emit(s ast.Stmt) {
	if b.current != nil {
		b.current.Stmts = append(b.current.Stmts, s)
	}
}

func (b *cfgBuilder) startBlock(kind string) *Block {
	return b.graph.add(b.graph.fresh(kind))
}

func (b *cfgBuilder) stmt(s ast.Stmt) {
	switch n := s.(type) {
	case nil:
	case *ast.Compound:
		for _, st := range n.Stmts {
			b.stmt(st)
		}
	case *ast.Block:
		// Block-level declarations with initializers count as definitions.
		for _, d := range n.Decls {
			if let, ok := d.(*ast.Let); ok && len(let.Inits) > 0 {
				b.emit(&ast.Assign{Lhs: varRefs(let.Names), Rhs: let.Inits})
			}
		}
		for _, st := range n.Stmts {
			b.stmt(st)
		}
	case *ast.If, *ast.Unless:
		var cond ast.Expr
		var then ast.Stmt
		if iff, ok := n.(*ast.If); ok {
			cond, then = iff.Cond, iff.Then
		} else {
			u := n.(*ast.Unless)
			cond, then = u.Cond, u.Then
		}
		b.emit(&ast.CondBranch{Cond: "NE", Value: cond})
		thenBlk := b.startBlock("if_then")
		join := b.startBlock("if_join")
		link(b.current, thenBlk)
		link(b.current, join)
		b.current = thenBlk
		b.stmt(then)
		link(b.current, join)
		b.current = join
	case *ast.Test:
		b.emit(&ast.CondBranch{Cond: "NE", Value: n.Cond})
		thenBlk := b.startBlock("test_then")
		elseBlk := b.startBlock("test_else")
		join := b.startBlock("test_join")
		link(b.current, thenBlk)
		link(b.current, elseBlk)
		b.current = thenBlk
		b.stmt(n.Then)
		link(b.current, join)
		b.current = elseBlk
		b.stmt(n.Else)
		link(b.current, join)
		b.current = join
	case *ast.While, *ast.Until:
		var cond ast.Expr
		var body ast.Stmt
		if w, ok := n.(*ast.While); ok {
			cond, body = w.Cond, w.Body
		} else {
			u := n.(*ast.Until)
			cond, body = u.Cond, u.Body
		}
		header := b.startBlock("loop_header")
		bodyBlk := b.startBlock("loop_body")
		exit := b.startBlock("loop_exit")
		link(b.current, header)
		header.Stmts = append(header.Stmts, &ast.CondBranch{Cond: "NE", Value: cond})
		link(header, bodyBlk)
		link(header, exit)
		b.pushLoop(exit, header)
		b.current = bodyBlk
		b.stmt(body)
		link(b.current, header)
		b.popLoop()
		b.current = exit
	case *ast.Repeat:
		bodyBlk := b.startBlock("repeat_body")
		exit := b.startBlock("repeat_exit")
		link(b.current, bodyBlk)
		b.pushLoop(exit, bodyBlk)
		b.current = bodyBlk
		b.stmt(n.Body)
		if n.Cond != nil {
			b.emit(&ast.CondBranch{Cond: "NE", Value: n.Cond})
		}
		link(b.current, bodyBlk)
		link(b.current, exit)
		b.popLoop()
		b.current = exit
	case *ast.For:
		header := b.startBlock("for_header")
		bodyBlk := b.startBlock("for_body")
		exit := b.startBlock("for_exit")
		// The induction variable is both defined and used.
		b.emit(&ast.Assign{Lhs: varRefs([]string{n.Var}), Rhs: []ast.Expr{n.Start}})
		link(b.current, header)
		header.Stmts = append(header.Stmts, &ast.CondBranch{
			Cond: "LE", Value: &ast.BinaryOp{Op: ast.Le, Left: &ast.VarAccess{Name: n.Var}, Right: n.End},
		})
		link(header, bodyBlk)
		link(header, exit)
		b.pushLoop(exit, header)
		b.current = bodyBlk
		b.stmt(n.Body)
		step := n.Step
		if step == nil {
			step = &ast.NumberLit{Value: 1}
		}
		b.emit(&ast.Assign{
			Lhs: varRefs([]string{n.Var}),
			Rhs: []ast.Expr{&ast.BinaryOp{Op: ast.Add, Left: &ast.VarAccess{Name: n.Var}, Right: step}},
		})
		link(b.current, header)
		b.popLoop()
		b.current = exit
	case *ast.ForEach:
		header := b.startBlock("foreach_header")
		bodyBlk := b.startBlock("foreach_body")
		exit := b.startBlock("foreach_exit")
		b.emit(&ast.Assign{Lhs: varRefs([]string{n.Value}), Rhs: []ast.Expr{n.Collection}})
		link(b.current, header)
		link(header, bodyBlk)
		link(header, exit)
		b.pushLoop(exit, header)
		b.current = bodyBlk
		b.stmt(n.Body)
		link(b.current, header)
		b.popLoop()
		b.current = exit
	case *ast.Switchon:
		b.emit(&ast.CondBranch{Cond: "NE", Value: n.Value})
		dispatch := b.current
		exit := b.startBlock("switch_exit")
		b.endcaseTargets = append(b.endcaseTargets, exit)
		for _, c := range n.Cases {
			caseBlk := b.startBlock("switch_case")
			link(dispatch, caseBlk)
			b.current = caseBlk
			b.stmt(c.Body)
			link(b.current, exit)
		}
		if n.Default != nil {
			defBlk := b.startBlock("switch_default")
			link(dispatch, defBlk)
			b.current = defBlk
			b.stmt(n.Default.Body)
			link(b.current, exit)
		} else {
			link(dispatch, exit)
		}
		b.endcaseTargets = b.endcaseTargets[:len(b.endcaseTargets)-1]
		b.current = exit
	case *ast.Break:
		if len(b.breakTargets) > 0 {
			link(b.current, b.breakTargets[len(b.breakTargets)-1])
		}
		b.current = b.startBlock("after_break")
	case *ast.Loop:
		if len(b.loopTargets) > 0 {
			link(b.current, b.loopTargets[len(b.loopTargets)-1])
		}
		b.current = b.startBlock("after_loop")
	case *ast.Endcase:
		if len(b.endcaseTargets) > 0 {
			link(b.current, b.endcaseTargets[len(b.endcaseTargets)-1])
		}
		b.current = b.startBlock("after_endcase")
	case *ast.Return, *ast.Finish:
		b.emit(s)
		b.current = b.startBlock("after_return")
	case *ast.Resultis:
		b.emit(s)
		b.current = b.startBlock("after_resultis")
	case *ast.LabelTarget:
		blk := b.labelBlock(n.Name)
		link(b.current, blk)
		b.current = blk
		b.emit(s)
	case *ast.Goto:
		b.emit(s)
		// A named target gets its edge; computed targets stay unlinked,
		// which the fixpoint treats conservatively.
		if v, ok := n.Target.(*ast.VarAccess); ok {
			link(b.current, b.labelBlock(v.Name))
		}
		b.current = b.startBlock("after_goto")
	case *ast.Defer:
		b.stmt(n.Body)
	default:
		b.emit(s)
	}
}

func (b *cfgBuilder) pushLoop(brk, cont *Block) {
	b.breakTargets = append(b.breakTargets, brk)
	b.loopTargets = append(b.loopTargets, cont)
}

func (b *cfgBuilder) popLoop() {
	b.breakTargets = b.breakTargets[:len(b.breakTargets)-1]
	b.loopTargets = b.loopTargets[:len(b.loopTargets)-1]
}

func varRefs(names []string) []ast.Expr {
	out := make([]ast.Expr, len(names))
	for i, n := range names {
		out[i] = &ast.VarAccess{Name: n}
	}
	return out
}
