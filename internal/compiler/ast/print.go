package ast

import (
	"fmt"
	"strconv"
	"strings"
)

// Sprint renders a node as a structural one-line s-expression. Two nodes with
// equal Sprint output are structurally identical, which is the property the
// clone tests rely on. The output also backs the per-pass trace dumps.
func Sprint(n Node) string {
	var b strings.Builder
	printNode(&b, n)
	return b.String()
}

func printNode(b *strings.Builder, n Node) {
	switch n := n.(type) {
	case nil:
		b.WriteString("<nil>")
	case *Program:
		open(b, "Program")
		for _, d := range n.Decls {
			sp(b)
			printNode(b, d)
		}
		b.WriteByte(')')

	case *Let:
		open(b, "Let")
		if n.IsFloat {
			b.WriteString(" float")
		}
		if n.Retained {
			b.WriteString(" retained")
		}
		names(b, n.Names)
		kids(b, n.Inits)
		b.WriteByte(')')
	case *Manifest:
		fmt.Fprintf(b, "(Manifest %s %d)", n.Name, n.Value)
	case *Static:
		open(b, "Static "+n.Name)
		sp(b)
		printNode(b, n.Init)
		b.WriteByte(')')
	case *Global:
		open(b, "Global")
		for _, p := range n.Pairs {
			fmt.Fprintf(b, " %s:%d", p.Name, p.Slot)
		}
		b.WriteByte(')')
	case *GlobalVariable:
		open(b, "GlobalVariable")
		if n.IsFloat {
			b.WriteString(" float")
		}
		names(b, n.Names)
		kids(b, n.Inits)
		b.WriteByte(')')
	case *Function:
		open(b, "Function "+n.Name)
		if n.Virtual {
			b.WriteString(" virtual")
		}
		if n.Final {
			b.WriteString(" final")
		}
		if n.IsFloat {
			b.WriteString(" float")
		}
		names(b, n.Params)
		sp(b)
		printNode(b, n.Body)
		b.WriteByte(')')
	case *Routine:
		open(b, "Routine "+n.Name)
		names(b, n.Params)
		sp(b)
		printNode(b, n.Body)
		b.WriteByte(')')
	case *LabelDecl:
		fmt.Fprintf(b, "(LabelDecl %s)", n.Name)
	case *Class:
		open(b, "Class "+n.Name)
		if n.Parent != "" {
			b.WriteString(" : " + n.Parent)
		}
		for _, m := range n.Members {
			fmt.Fprintf(b, " (%s ", m.Visibility)
			printNode(b, m.Decl)
			b.WriteByte(')')
		}
		b.WriteByte(')')

	case *NumberLit:
		b.WriteString(strconv.FormatInt(n.Value, 10))
	case *FloatLit:
		s := strconv.FormatFloat(n.Value, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eE") {
			s += ".0" // keep float literals distinct from integers
		}
		b.WriteString(s)
	case *StringLit:
		b.WriteString(strconv.Quote(n.Value))
	case *CharLit:
		b.WriteString(strconv.QuoteRune(n.Value))
	case *BoolLit:
		if n.Value {
			b.WriteString("TRUE")
		} else {
			b.WriteString("FALSE")
		}
	case *NullLit:
		b.WriteString("NULL")
	case *VarAccess:
		b.WriteString(n.Name)
	case *BinaryOp:
		fmt.Fprintf(b, "(%s ", n.Op)
		printNode(b, n.Left)
		sp(b)
		printNode(b, n.Right)
		b.WriteByte(')')
	case *UnaryOp:
		fmt.Fprintf(b, "(%s ", n.Op)
		printNode(b, n.Operand)
		b.WriteByte(')')
	case *VectorAccess:
		binaryish(b, "VecIx", n.Vector, n.Index)
	case *CharIndirection:
		binaryish(b, "CharIx", n.Str, n.Index)
	case *FloatVectorIndirection:
		binaryish(b, "FVecIx", n.Vector, n.Index)
	case *BitfieldAccess:
		open(b, "Bits")
		sp(b)
		printNode(b, n.Base)
		sp(b)
		printNode(b, n.StartBit)
		sp(b)
		printNode(b, n.Width)
		b.WriteByte(')')
	case *FunctionCall:
		open(b, "Call")
		sp(b)
		printNode(b, n.Target)
		kids(b, n.Args)
		b.WriteByte(')')
	case *SysCall:
		open(b, "SysCall")
		sp(b)
		printNode(b, n.Number)
		kids(b, n.Args)
		b.WriteByte(')')
	case *Conditional:
		open(b, "Cond")
		sp(b)
		printNode(b, n.Cond)
		sp(b)
		printNode(b, n.Then)
		sp(b)
		printNode(b, n.Else)
		b.WriteByte(')')
	case *Valof:
		open(b, "Valof")
		sp(b)
		printNode(b, n.Body)
		b.WriteByte(')')
	case *FloatValof:
		open(b, "FValof")
		sp(b)
		printNode(b, n.Body)
		b.WriteByte(')')
	case *Alloc:
		open(b, n.Kind.String())
		sp(b)
		printNode(b, n.Size)
		b.WriteByte(')')
	case *Table:
		name := "Table"
		if n.IsFloat {
			name = "FTable"
		}
		open(b, name)
		kids(b, n.Exprs)
		b.WriteByte(')')
	case *List:
		open(b, "List")
		kids(b, n.Exprs)
		b.WriteByte(')')
	case *New:
		open(b, "New "+n.ClassName)
		if n.Binding != "" {
			b.WriteString(" as " + n.Binding)
		}
		kids(b, n.Args)
		b.WriteByte(')')
	case *MemberAccess:
		open(b, "Member")
		sp(b)
		printNode(b, n.Object)
		b.WriteString(" ." + n.Member)
		b.WriteByte(')')
	case *SuperMethodCall:
		open(b, "SuperCall "+n.Method)
		kids(b, n.Args)
		b.WriteByte(')')
	case *SuperMethodAccess:
		fmt.Fprintf(b, "(SuperAccess %s)", n.Method)
	case *PackedExpr:
		open(b, n.Kind.String())
		kids(b, n.Elems)
		b.WriteByte(')')
	case *PackedAccess:
		open(b, n.Kind.String()+"."+FieldName(n.Field))
		sp(b)
		printNode(b, n.Base)
		b.WriteByte(')')
	case *LaneAccess:
		binaryish(b, "Lane", n.Vector, n.Lane)
	case *VecInitializer:
		name := "VecInit"
		if n.IsFloat {
			name = "FVecInit"
		}
		open(b, name)
		kids(b, n.Values)
		b.WriteByte(')')

	case *Assign:
		open(b, "Assign")
		kids(b, n.Lhs)
		b.WriteString(" :=")
		kids(b, n.Rhs)
		b.WriteByte(')')
	case *RoutineCall:
		open(b, "RCall")
		sp(b)
		printNode(b, n.Target)
		kids(b, n.Args)
		b.WriteByte(')')
	case *If:
		binaryish(b, "If", n.Cond, n.Then)
	case *Unless:
		binaryish(b, "Unless", n.Cond, n.Then)
	case *Test:
		open(b, "Test")
		sp(b)
		printNode(b, n.Cond)
		sp(b)
		printNode(b, n.Then)
		if n.Else != nil {
			sp(b)
			printNode(b, n.Else)
		}
		b.WriteByte(')')
	case *While:
		binaryish(b, "While", n.Cond, n.Body)
	case *Until:
		binaryish(b, "Until", n.Cond, n.Body)
	case *Repeat:
		switch n.Mode {
		case RepeatBare:
			open(b, "Repeat")
			sp(b)
			printNode(b, n.Body)
		case RepeatWhile:
			open(b, "RepeatWhile")
			sp(b)
			printNode(b, n.Body)
			sp(b)
			printNode(b, n.Cond)
		case RepeatUntil:
			open(b, "RepeatUntil")
			sp(b)
			printNode(b, n.Body)
			sp(b)
			printNode(b, n.Cond)
		}
		b.WriteByte(')')
	case *For:
		open(b, "For "+n.Var)
		sp(b)
		printNode(b, n.Start)
		b.WriteString(" to ")
		printNode(b, n.End)
		if n.Step != nil {
			b.WriteString(" by ")
			printNode(b, n.Step)
		}
		sp(b)
		printNode(b, n.Body)
		b.WriteByte(')')
	case *ForEach:
		open(b, "ForEach "+n.Value)
		if n.Tag != "" {
			b.WriteString("," + n.Tag)
		}
		if n.Filter != TypeUnknown {
			b.WriteString(" filter=" + n.Filter.String())
		}
		sp(b)
		printNode(b, n.Collection)
		sp(b)
		printNode(b, n.Body)
		b.WriteByte(')')
	case *Case:
		open(b, "Case")
		sp(b)
		printNode(b, n.Value)
		fmt.Fprintf(b, " =%d ", n.Resolved)
		printNode(b, n.Body)
		b.WriteByte(')')
	case *Default:
		open(b, "Default")
		sp(b)
		printNode(b, n.Body)
		b.WriteByte(')')
	case *Switchon:
		open(b, "Switchon")
		sp(b)
		printNode(b, n.Value)
		for _, c := range n.Cases {
			sp(b)
			printNode(b, c)
		}
		if n.Default != nil {
			sp(b)
			printNode(b, n.Default)
		}
		b.WriteByte(')')
	case *Goto:
		open(b, "Goto")
		sp(b)
		printNode(b, n.Target)
		b.WriteByte(')')
	case *Return:
		b.WriteString("(Return)")
	case *Finish:
		open(b, "Finish")
		if n.Syscall != nil {
			sp(b)
			printNode(b, n.Syscall)
			kids(b, n.Args)
		}
		b.WriteByte(')')
	case *Break:
		b.WriteString("(Break)")
	case *Loop:
		b.WriteString("(Loop)")
	case *Endcase:
		b.WriteString("(Endcase)")
	case *Resultis:
		name := "Resultis"
		if n.FromSend {
			name = "Send"
		}
		open(b, name)
		sp(b)
		printNode(b, n.Value)
		b.WriteByte(')')
	case *Compound:
		open(b, "Seq")
		for _, s := range n.Stmts {
			sp(b)
			printNode(b, s)
		}
		b.WriteByte(')')
	case *Block:
		open(b, "Block")
		for _, d := range n.Decls {
			sp(b)
			printNode(b, d)
		}
		for _, s := range n.Stmts {
			sp(b)
			printNode(b, s)
		}
		b.WriteByte(')')
	case *StringAllocStmt:
		open(b, "StringAlloc")
		sp(b)
		printNode(b, n.Size)
		b.WriteByte(')')
	case *LabelTarget:
		fmt.Fprintf(b, "(Label %s)", n.Name)
	case *CondBranch:
		open(b, "Br."+n.Cond)
		sp(b)
		printNode(b, n.Value)
		b.WriteString(" -> " + n.Target)
		b.WriteByte(')')
	case *Brk:
		b.WriteString("(Brk)")
	case *Free:
		open(b, "Free")
		sp(b)
		printNode(b, n.Target)
		b.WriteByte(')')
	case *Defer:
		open(b, "Defer")
		sp(b)
		printNode(b, n.Body)
		b.WriteByte(')')
	case *Retain:
		open(b, "Retain")
		names(b, n.Names)
		b.WriteByte(')')
	case *Remanage:
		open(b, "Remanage")
		names(b, n.Names)
		b.WriteByte(')')
	case *MinMaxSum:
		open(b, n.Op.String()+" "+n.Result)
		kids(b, n.Args)
		b.WriteByte(')')
	case *Reduction:
		open(b, "Reduction "+n.Reducer+" "+n.Result)
		sp(b)
		printNode(b, n.Left)
		if n.Right != nil {
			sp(b)
			printNode(b, n.Right)
		}
		b.WriteByte(')')
	case *ReductionLoop:
		reductionLoop(b, "ReductionLoop", n.Result, n.Intrinsic, n.Left, n.Right)
	case *PairwiseReductionLoop:
		reductionLoop(b, "PairwiseReductionLoop", n.Result, n.Intrinsic, n.Left, n.Right)
	default:
		panic(fmt.Sprintf("BUG: Sprint: unhandled node %T", n))
	}
}

func open(b *strings.Builder, name string) {
	b.WriteByte('(')
	b.WriteString(name)
}

func sp(b *strings.Builder) { b.WriteByte(' ') }

func names(b *strings.Builder, ns []string) {
	for _, n := range ns {
		b.WriteByte(' ')
		b.WriteString(n)
	}
}

func kids(b *strings.Builder, es []Expr) {
	for _, e := range es {
		sp(b)
		printNode(b, e)
	}
}

func reductionLoop(b *strings.Builder, name, result, intrinsic string, left, right Expr) {
	open(b, name+" "+result)
	if intrinsic != "" {
		b.WriteString(" " + intrinsic)
	}
	sp(b)
	printNode(b, left)
	if right != nil {
		sp(b)
		printNode(b, right)
	}
	b.WriteByte(')')
}

func binaryish(b *strings.Builder, name string, a, c Node) {
	open(b, name)
	sp(b)
	printNode(b, a)
	sp(b)
	printNode(b, c)
	b.WriteByte(')')
}
