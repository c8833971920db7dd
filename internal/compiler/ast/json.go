package ast

import (
	"encoding/json"
	"fmt"
)

// JSON codec for Program trees. The driver consumes serialized ASTs from
// disk; parsing proper stays outside this repository. Each node is an
// envelope {kind, attrs, kids}; children occupy fixed positions per kind
// (absent optional children are encoded as null so positions stay stable),
// and variable-length child lists carry their lengths in attrs.

type jsonNode struct {
	Kind  string          `json:"kind"`
	Attrs json.RawMessage `json:"attrs,omitempty"`
	Kids  []*jsonNode     `json:"kids,omitempty"`
}

// EncodeJSON serializes p.
func EncodeJSON(p *Program) ([]byte, error) {
	return json.MarshalIndent(encodeNode(p), "", "  ")
}

// DecodeJSON deserializes a Program produced by EncodeJSON (or written by
// an external front end following the same envelope).
func DecodeJSON(data []byte) (*Program, error) {
	var root jsonNode
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("ast: decode: %w", err)
	}
	n, err := decodeNode(&root)
	if err != nil {
		return nil, err
	}
	p, ok := n.(*Program)
	if !ok {
		return nil, fmt.Errorf("ast: decode: root is %q, want Program", root.Kind)
	}
	return p, nil
}

func attrs(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		panic("BUG: attrs marshal: " + err.Error())
	}
	return raw
}

func jn(kind string, a any, kids ...*jsonNode) *jsonNode {
	n := &jsonNode{Kind: kind, Kids: kids}
	if a != nil {
		n.Attrs = attrs(a)
	}
	return n
}

func encNodes[T Node](ns []T) []*jsonNode {
	out := make([]*jsonNode, len(ns))
	for i, n := range ns {
		out[i] = encodeNode(n)
	}
	return out
}

func encodeNode(n Node) *jsonNode {
	if n == nil {
		return nil
	}
	switch n := n.(type) {
	case *Program:
		return jn("Program", nil, encNodes(n.Decls)...)
	case *Let:
		return jn("Let", map[string]any{"names": n.Names, "float": n.IsFloat, "retained": n.Retained, "type": uint32(n.DeclType)}, encNodes(n.Inits)...)
	case *Manifest:
		return jn("Manifest", map[string]any{"name": n.Name, "value": n.Value})
	case *Static:
		return jn("Static", map[string]any{"name": n.Name}, encodeNode(n.Init))
	case *Global:
		ns := make([]string, len(n.Pairs))
		slots := make([]int, len(n.Pairs))
		for i, p := range n.Pairs {
			ns[i], slots[i] = p.Name, p.Slot
		}
		return jn("Global", map[string]any{"names": ns, "slots": slots})
	case *GlobalVariable:
		return jn("GlobalVariable", map[string]any{"names": n.Names, "float": n.IsFloat}, encNodes(n.Inits)...)
	case *Function:
		return jn("Function", map[string]any{
			"name": n.Name, "params": n.Params, "virtual": n.Virtual,
			"final": n.Final, "float": n.IsFloat, "class": n.Class,
		}, encodeNode(n.Body))
	case *Routine:
		return jn("Routine", map[string]any{"name": n.Name, "params": n.Params, "class": n.Class}, encodeNode(n.Body))
	case *LabelDecl:
		return jn("LabelDecl", map[string]any{"name": n.Name})
	case *Class:
		vis := make([]uint8, len(n.Members))
		kids := make([]*jsonNode, len(n.Members))
		for i, m := range n.Members {
			vis[i] = uint8(m.Visibility)
			kids[i] = encodeNode(m.Decl)
		}
		return jn("Class", map[string]any{"name": n.Name, "parent": n.Parent, "vis": vis}, kids...)

	case *NumberLit:
		return jn("Number", map[string]any{"value": n.Value})
	case *FloatLit:
		return jn("Float", map[string]any{"value": n.Value})
	case *StringLit:
		return jn("String", map[string]any{"value": n.Value})
	case *CharLit:
		return jn("Char", map[string]any{"value": string(n.Value)})
	case *BoolLit:
		return jn("Bool", map[string]any{"value": n.Value})
	case *NullLit:
		return jn("Null", nil)
	case *VarAccess:
		return jn("Var", map[string]any{"name": n.Name})
	case *BinaryOp:
		return jn("Binary", map[string]any{"op": uint8(n.Op)}, encodeNode(n.Left), encodeNode(n.Right))
	case *UnaryOp:
		return jn("Unary", map[string]any{"op": uint8(n.Op)}, encodeNode(n.Operand))
	case *VectorAccess:
		return jn("VecIx", nil, encodeNode(n.Vector), encodeNode(n.Index))
	case *CharIndirection:
		return jn("CharIx", nil, encodeNode(n.Str), encodeNode(n.Index))
	case *FloatVectorIndirection:
		return jn("FVecIx", nil, encodeNode(n.Vector), encodeNode(n.Index))
	case *BitfieldAccess:
		return jn("Bits", nil, encodeNode(n.Base), encodeNode(n.StartBit), encodeNode(n.Width))
	case *FunctionCall:
		return jn("Call", nil, append([]*jsonNode{encodeNode(n.Target)}, encNodes(n.Args)...)...)
	case *SysCall:
		return jn("SysCall", nil, append([]*jsonNode{encodeNode(n.Number)}, encNodes(n.Args)...)...)
	case *Conditional:
		return jn("Cond", nil, encodeNode(n.Cond), encodeNode(n.Then), encodeNode(n.Else))
	case *Valof:
		return jn("Valof", nil, encodeNode(n.Body))
	case *FloatValof:
		return jn("FValof", nil, encodeNode(n.Body))
	case *Alloc:
		return jn("Alloc", map[string]any{"alloc": uint8(n.Kind)}, encodeNode(n.Size))
	case *Table:
		return jn("Table", map[string]any{"float": n.IsFloat}, encNodes(n.Exprs)...)
	case *List:
		return jn("List", nil, encNodes(n.Exprs)...)
	case *New:
		return jn("New", map[string]any{"class": n.ClassName, "binding": n.Binding}, encNodes(n.Args)...)
	case *MemberAccess:
		return jn("Member", map[string]any{"member": n.Member}, encodeNode(n.Object))
	case *SuperMethodCall:
		return jn("SuperCall", map[string]any{"method": n.Method}, encNodes(n.Args)...)
	case *SuperMethodAccess:
		return jn("SuperAccess", map[string]any{"method": n.Method})
	case *PackedExpr:
		return jn("Packed", map[string]any{"packed": uint8(n.Kind)}, encNodes(n.Elems)...)
	case *PackedAccess:
		return jn("PackedAccess", map[string]any{"packed": uint8(n.Kind), "field": n.Field}, encodeNode(n.Base))
	case *LaneAccess:
		return jn("Lane", nil, encodeNode(n.Vector), encodeNode(n.Lane))
	case *VecInitializer:
		return jn("VecInit", map[string]any{"float": n.IsFloat}, encNodes(n.Values)...)

	case *Assign:
		a := map[string]any{"nlhs": len(n.Lhs)}
		return jn("Assign", a, append(encNodes(n.Lhs), encNodes(n.Rhs)...)...)
	case *RoutineCall:
		return jn("RCall", nil, append([]*jsonNode{encodeNode(n.Target)}, encNodes(n.Args)...)...)
	case *If:
		return jn("If", nil, encodeNode(n.Cond), encodeNode(n.Then))
	case *Unless:
		return jn("Unless", nil, encodeNode(n.Cond), encodeNode(n.Then))
	case *Test:
		return jn("Test", nil, encodeNode(n.Cond), encodeNode(n.Then), encodeNode(n.Else))
	case *While:
		return jn("While", nil, encodeNode(n.Cond), encodeNode(n.Body))
	case *Until:
		return jn("Until", nil, encodeNode(n.Cond), encodeNode(n.Body))
	case *Repeat:
		return jn("Repeat", map[string]any{"mode": uint8(n.Mode)}, encodeNode(n.Body), encodeNode(n.Cond))
	case *For:
		return jn("For", map[string]any{"var": n.Var, "endconst": n.EndConst, "stepconst": n.StepConst},
			encodeNode(n.Start), encodeNode(n.End), encodeNode(n.Step), encodeNode(n.Body))
	case *ForEach:
		return jn("ForEach", map[string]any{"value": n.Value, "tag": n.Tag, "filter": uint32(n.Filter)},
			encodeNode(n.Collection), encodeNode(n.Body))
	case *Case:
		return jn("Case", map[string]any{"resolved": n.Resolved}, encodeNode(n.Value), encodeNode(n.Body))
	case *Default:
		return jn("Default", nil, encodeNode(n.Body))
	case *Switchon:
		kids := []*jsonNode{encodeNode(n.Value)}
		for _, c := range n.Cases {
			kids = append(kids, encodeNode(c))
		}
		hasDefault := n.Default != nil
		if hasDefault {
			kids = append(kids, encodeNode(n.Default))
		}
		return jn("Switchon", map[string]any{"default": hasDefault}, kids...)
	case *Goto:
		return jn("Goto", nil, encodeNode(n.Target))
	case *Return:
		return jn("Return", nil)
	case *Finish:
		if n.Syscall == nil {
			return jn("Finish", nil)
		}
		return jn("Finish", map[string]any{"syscall": true}, append([]*jsonNode{encodeNode(n.Syscall)}, encNodes(n.Args)...)...)
	case *Break:
		return jn("Break", nil)
	case *Loop:
		return jn("Loop", nil)
	case *Endcase:
		return jn("Endcase", nil)
	case *Resultis:
		return jn("Resultis", map[string]any{"send": n.FromSend}, encodeNode(n.Value))
	case *Compound:
		return jn("Seq", nil, encNodes(n.Stmts)...)
	case *Block:
		return jn("Block", map[string]any{"ndecls": len(n.Decls)}, append(encNodes(n.Decls), encNodes(n.Stmts)...)...)
	case *StringAllocStmt:
		return jn("StringAlloc", nil, encodeNode(n.Size))
	case *LabelTarget:
		return jn("Label", map[string]any{"name": n.Name})
	case *CondBranch:
		return jn("CondBranch", map[string]any{"cond": n.Cond, "target": n.Target}, encodeNode(n.Value))
	case *Brk:
		return jn("Brk", nil)
	case *Free:
		return jn("Free", nil, encodeNode(n.Target))
	case *Defer:
		return jn("Defer", nil, encodeNode(n.Body))
	case *Retain:
		return jn("Retain", map[string]any{"names": n.Names})
	case *Remanage:
		return jn("Remanage", map[string]any{"names": n.Names})
	case *MinMaxSum:
		return jn("MinMaxSum", map[string]any{"op": uint8(n.Op), "result": n.Result}, encNodes(n.Args)...)
	case *Reduction:
		return jn("Reduction", map[string]any{"reducer": n.Reducer, "result": n.Result}, encodeNode(n.Left), encodeNode(n.Right))
	case *ReductionLoop:
		return jn("ReductionLoop", map[string]any{"result": n.Result, "intrinsic": n.Intrinsic, "vectype": uint32(n.VecType)},
			encodeNode(n.Left), encodeNode(n.Right))
	case *PairwiseReductionLoop:
		return jn("PairwiseReductionLoop", map[string]any{"result": n.Result, "intrinsic": n.Intrinsic, "vectype": uint32(n.VecType)},
			encodeNode(n.Left), encodeNode(n.Right))
	default:
		panic(fmt.Sprintf("BUG: encodeNode: unhandled node %T", n))
	}
}

type nodeAttrs struct {
	Name      string   `json:"name"`
	Names     []string `json:"names"`
	Params    []string `json:"params"`
	Slots     []int    `json:"slots"`
	Vis       []uint8  `json:"vis"`
	Value     any      `json:"value"`
	Op        uint8    `json:"op"`
	Alloc     uint8    `json:"alloc"`
	Packed    uint8    `json:"packed"`
	Field     int      `json:"field"`
	Mode      uint8    `json:"mode"`
	Float     bool     `json:"float"`
	Retained  bool     `json:"retained"`
	Virtual   bool     `json:"virtual"`
	Final     bool     `json:"final"`
	Type      uint32   `json:"type"`
	Class     string   `json:"class"`
	Parent    string   `json:"parent"`
	Binding   string   `json:"binding"`
	Member    string   `json:"member"`
	Method    string   `json:"method"`
	Var       string   `json:"var"`
	Tag       string   `json:"tag"`
	Filter    uint32   `json:"filter"`
	Resolved  int64    `json:"resolved"`
	Default   bool     `json:"default"`
	Syscall   bool     `json:"syscall"`
	Send      bool     `json:"send"`
	NLhs      int      `json:"nlhs"`
	NDecls    int      `json:"ndecls"`
	Cond      string   `json:"cond"`
	Target    string   `json:"target"`
	Reducer   string   `json:"reducer"`
	Result    string   `json:"result"`
	Intrinsic string   `json:"intrinsic"`
	VecType   uint32   `json:"vectype"`
	EndConst  bool     `json:"endconst"`
	StepConst bool     `json:"stepconst"`
}

func (j *jsonNode) attrs() (*nodeAttrs, error) {
	var a nodeAttrs
	if len(j.Attrs) > 0 {
		if err := json.Unmarshal(j.Attrs, &a); err != nil {
			return nil, fmt.Errorf("ast: decode %s attrs: %w", j.Kind, err)
		}
	}
	return &a, nil
}

func (a *nodeAttrs) int64Value(kind string) (int64, error) {
	f, ok := a.Value.(float64)
	if !ok {
		return 0, fmt.Errorf("ast: decode %s: non-numeric value", kind)
	}
	return int64(f), nil
}

func decExprs(kids []*jsonNode) ([]Expr, error) {
	out := make([]Expr, 0, len(kids))
	for _, k := range kids {
		e, err := decExpr(k)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func decExpr(j *jsonNode) (Expr, error) {
	if j == nil {
		return nil, nil
	}
	n, err := decodeNode(j)
	if err != nil {
		return nil, err
	}
	e, ok := n.(Expr)
	if !ok {
		return nil, fmt.Errorf("ast: decode: %s is not an expression", j.Kind)
	}
	return e, nil
}

func decStmt(j *jsonNode) (Stmt, error) {
	if j == nil {
		return nil, nil
	}
	n, err := decodeNode(j)
	if err != nil {
		return nil, err
	}
	s, ok := n.(Stmt)
	if !ok {
		return nil, fmt.Errorf("ast: decode: %s is not a statement", j.Kind)
	}
	return s, nil
}

func decDecl(j *jsonNode) (Decl, error) {
	if j == nil {
		return nil, nil
	}
	n, err := decodeNode(j)
	if err != nil {
		return nil, err
	}
	d, ok := n.(Decl)
	if !ok {
		return nil, fmt.Errorf("ast: decode: %s is not a declaration", j.Kind)
	}
	return d, nil
}

func (j *jsonNode) kid(i int) *jsonNode {
	if i < len(j.Kids) {
		return j.Kids[i]
	}
	return nil
}

func decodeNode(j *jsonNode) (Node, error) {
	a, err := j.attrs()
	if err != nil {
		return nil, err
	}
	switch j.Kind {
	case "Program":
		p := &Program{}
		for _, k := range j.Kids {
			d, err := decDecl(k)
			if err != nil {
				return nil, err
			}
			p.Decls = append(p.Decls, d)
		}
		return p, nil
	case "Let":
		inits, err := decExprs(j.Kids)
		if err != nil {
			return nil, err
		}
		return &Let{Names: a.Names, Inits: inits, IsFloat: a.Float, Retained: a.Retained, DeclType: Type(a.Type)}, nil
	case "Manifest":
		v, err := a.int64Value(j.Kind)
		if err != nil {
			return nil, err
		}
		return &Manifest{Name: a.Name, Value: v}, nil
	case "Static":
		init, err := decExpr(j.kid(0))
		if err != nil {
			return nil, err
		}
		return &Static{Name: a.Name, Init: init}, nil
	case "Global":
		if len(a.Names) != len(a.Slots) {
			return nil, fmt.Errorf("ast: decode Global: %d names, %d slots", len(a.Names), len(a.Slots))
		}
		g := &Global{}
		for i := range a.Names {
			g.Pairs = append(g.Pairs, GlobalPair{Name: a.Names[i], Slot: a.Slots[i]})
		}
		return g, nil
	case "GlobalVariable":
		inits, err := decExprs(j.Kids)
		if err != nil {
			return nil, err
		}
		return &GlobalVariable{Names: a.Names, Inits: inits, IsFloat: a.Float}, nil
	case "Function":
		body, err := decExpr(j.kid(0))
		if err != nil {
			return nil, err
		}
		return &Function{Name: a.Name, Params: a.Params, Body: body, Virtual: a.Virtual, Final: a.Final, IsFloat: a.Float, Class: a.Class}, nil
	case "Routine":
		body, err := decStmt(j.kid(0))
		if err != nil {
			return nil, err
		}
		return &Routine{Name: a.Name, Params: a.Params, Body: body, Class: a.Class}, nil
	case "LabelDecl":
		return &LabelDecl{Name: a.Name}, nil
	case "Class":
		c := &Class{Name: a.Name, Parent: a.Parent}
		for i, k := range j.Kids {
			d, err := decDecl(k)
			if err != nil {
				return nil, err
			}
			vis := Public
			if i < len(a.Vis) {
				vis = Visibility(a.Vis[i])
			}
			c.Members = append(c.Members, ClassMember{Decl: d, Visibility: vis})
		}
		return c, nil

	case "Number":
		v, err := a.int64Value(j.Kind)
		if err != nil {
			return nil, err
		}
		return &NumberLit{Value: v}, nil
	case "Float":
		f, ok := a.Value.(float64)
		if !ok {
			return nil, fmt.Errorf("ast: decode Float: non-numeric value")
		}
		return &FloatLit{Value: f}, nil
	case "String":
		s, ok := a.Value.(string)
		if !ok {
			return nil, fmt.Errorf("ast: decode String: non-string value")
		}
		return &StringLit{Value: s}, nil
	case "Char":
		s, ok := a.Value.(string)
		if !ok || s == "" {
			return nil, fmt.Errorf("ast: decode Char: bad value")
		}
		return &CharLit{Value: []rune(s)[0]}, nil
	case "Bool":
		b, ok := a.Value.(bool)
		if !ok {
			return nil, fmt.Errorf("ast: decode Bool: non-bool value")
		}
		return &BoolLit{Value: b}, nil
	case "Null":
		return &NullLit{}, nil
	case "Var":
		return &VarAccess{Name: a.Name}, nil
	case "Binary":
		l, err := decExpr(j.kid(0))
		if err != nil {
			return nil, err
		}
		r, err := decExpr(j.kid(1))
		if err != nil {
			return nil, err
		}
		return &BinaryOp{Op: BinOp(a.Op), Left: l, Right: r}, nil
	case "Unary":
		op, err := decExpr(j.kid(0))
		if err != nil {
			return nil, err
		}
		return &UnaryOp{Op: UnOp(a.Op), Operand: op}, nil
	case "VecIx", "CharIx", "FVecIx", "Lane":
		x, err := decExpr(j.kid(0))
		if err != nil {
			return nil, err
		}
		y, err := decExpr(j.kid(1))
		if err != nil {
			return nil, err
		}
		switch j.Kind {
		case "VecIx":
			return &VectorAccess{Vector: x, Index: y}, nil
		case "CharIx":
			return &CharIndirection{Str: x, Index: y}, nil
		case "FVecIx":
			return &FloatVectorIndirection{Vector: x, Index: y}, nil
		default:
			return &LaneAccess{Vector: x, Lane: y}, nil
		}
	case "Bits":
		b, err := decExpr(j.kid(0))
		if err != nil {
			return nil, err
		}
		s, err := decExpr(j.kid(1))
		if err != nil {
			return nil, err
		}
		w, err := decExpr(j.kid(2))
		if err != nil {
			return nil, err
		}
		return &BitfieldAccess{Base: b, StartBit: s, Width: w}, nil
	case "Call", "RCall", "SysCall":
		head, err := decExpr(j.kid(0))
		if err != nil {
			return nil, err
		}
		rest, err := decExprs(j.Kids[min(1, len(j.Kids)):])
		if err != nil {
			return nil, err
		}
		switch j.Kind {
		case "Call":
			return &FunctionCall{Target: head, Args: rest}, nil
		case "RCall":
			return &RoutineCall{Target: head, Args: rest}, nil
		default:
			return &SysCall{Number: head, Args: rest}, nil
		}
	case "Cond":
		c, err := decExpr(j.kid(0))
		if err != nil {
			return nil, err
		}
		t, err := decExpr(j.kid(1))
		if err != nil {
			return nil, err
		}
		e, err := decExpr(j.kid(2))
		if err != nil {
			return nil, err
		}
		return &Conditional{Cond: c, Then: t, Else: e}, nil
	case "Valof", "FValof":
		body, err := decStmt(j.kid(0))
		if err != nil {
			return nil, err
		}
		if j.Kind == "Valof" {
			return &Valof{Body: body}, nil
		}
		return &FloatValof{Body: body}, nil
	case "Alloc":
		size, err := decExpr(j.kid(0))
		if err != nil {
			return nil, err
		}
		return &Alloc{Kind: AllocKind(a.Alloc), Size: size}, nil
	case "Table":
		es, err := decExprs(j.Kids)
		if err != nil {
			return nil, err
		}
		return &Table{Exprs: es, IsFloat: a.Float}, nil
	case "List":
		es, err := decExprs(j.Kids)
		if err != nil {
			return nil, err
		}
		return &List{Exprs: es}, nil
	case "New":
		args, err := decExprs(j.Kids)
		if err != nil {
			return nil, err
		}
		return &New{ClassName: a.Class, Args: args, Binding: a.Binding}, nil
	case "Member":
		obj, err := decExpr(j.kid(0))
		if err != nil {
			return nil, err
		}
		return &MemberAccess{Object: obj, Member: a.Member}, nil
	case "SuperCall":
		args, err := decExprs(j.Kids)
		if err != nil {
			return nil, err
		}
		return &SuperMethodCall{Method: a.Method, Args: args}, nil
	case "SuperAccess":
		return &SuperMethodAccess{Method: a.Method}, nil
	case "Packed":
		es, err := decExprs(j.Kids)
		if err != nil {
			return nil, err
		}
		return &PackedExpr{Kind: PackedKind(a.Packed), Elems: es}, nil
	case "PackedAccess":
		base, err := decExpr(j.kid(0))
		if err != nil {
			return nil, err
		}
		return &PackedAccess{Kind: PackedKind(a.Packed), Base: base, Field: a.Field}, nil
	case "VecInit":
		es, err := decExprs(j.Kids)
		if err != nil {
			return nil, err
		}
		return &VecInitializer{Values: es, IsFloat: a.Float}, nil

	case "Assign":
		all, err := decExprs(j.Kids)
		if err != nil {
			return nil, err
		}
		if a.NLhs < 0 || a.NLhs > len(all) {
			return nil, fmt.Errorf("ast: decode Assign: nlhs %d out of range", a.NLhs)
		}
		return &Assign{Lhs: all[:a.NLhs], Rhs: all[a.NLhs:]}, nil
	case "If", "Unless":
		c, err := decExpr(j.kid(0))
		if err != nil {
			return nil, err
		}
		t, err := decStmt(j.kid(1))
		if err != nil {
			return nil, err
		}
		if j.Kind == "If" {
			return &If{Cond: c, Then: t}, nil
		}
		return &Unless{Cond: c, Then: t}, nil
	case "Test":
		c, err := decExpr(j.kid(0))
		if err != nil {
			return nil, err
		}
		t, err := decStmt(j.kid(1))
		if err != nil {
			return nil, err
		}
		e, err := decStmt(j.kid(2))
		if err != nil {
			return nil, err
		}
		return &Test{Cond: c, Then: t, Else: e}, nil
	case "While", "Until":
		c, err := decExpr(j.kid(0))
		if err != nil {
			return nil, err
		}
		b, err := decStmt(j.kid(1))
		if err != nil {
			return nil, err
		}
		if j.Kind == "While" {
			return &While{Cond: c, Body: b}, nil
		}
		return &Until{Cond: c, Body: b}, nil
	case "Repeat":
		b, err := decStmt(j.kid(0))
		if err != nil {
			return nil, err
		}
		c, err := decExpr(j.kid(1))
		if err != nil {
			return nil, err
		}
		return &Repeat{Body: b, Mode: RepeatMode(a.Mode), Cond: c}, nil
	case "For":
		start, err := decExpr(j.kid(0))
		if err != nil {
			return nil, err
		}
		end, err := decExpr(j.kid(1))
		if err != nil {
			return nil, err
		}
		step, err := decExpr(j.kid(2))
		if err != nil {
			return nil, err
		}
		body, err := decStmt(j.kid(3))
		if err != nil {
			return nil, err
		}
		return &For{Var: a.Var, Start: start, End: end, Step: step, Body: body, EndConst: a.EndConst, StepConst: a.StepConst}, nil
	case "ForEach":
		coll, err := decExpr(j.kid(0))
		if err != nil {
			return nil, err
		}
		body, err := decStmt(j.kid(1))
		if err != nil {
			return nil, err
		}
		value, _ := a.Value.(string)
		return &ForEach{Value: value, Tag: a.Tag, Collection: coll, Body: body, Filter: Type(a.Filter)}, nil
	case "Case":
		v, err := decExpr(j.kid(0))
		if err != nil {
			return nil, err
		}
		b, err := decStmt(j.kid(1))
		if err != nil {
			return nil, err
		}
		return &Case{Value: v, Resolved: a.Resolved, Body: b}, nil
	case "Default":
		b, err := decStmt(j.kid(0))
		if err != nil {
			return nil, err
		}
		return &Default{Body: b}, nil
	case "Switchon":
		v, err := decExpr(j.kid(0))
		if err != nil {
			return nil, err
		}
		sw := &Switchon{Value: v}
		rest := j.Kids[min(1, len(j.Kids)):]
		if a.Default && len(rest) > 0 {
			d, err := decStmt(rest[len(rest)-1])
			if err != nil {
				return nil, err
			}
			def, ok := d.(*Default)
			if !ok {
				return nil, fmt.Errorf("ast: decode Switchon: trailing kid is not Default")
			}
			sw.Default = def
			rest = rest[:len(rest)-1]
		}
		for _, k := range rest {
			cs, err := decStmt(k)
			if err != nil {
				return nil, err
			}
			c, ok := cs.(*Case)
			if !ok {
				return nil, fmt.Errorf("ast: decode Switchon: kid is not Case")
			}
			sw.Cases = append(sw.Cases, c)
		}
		return sw, nil
	case "Goto":
		t, err := decExpr(j.kid(0))
		if err != nil {
			return nil, err
		}
		return &Goto{Target: t}, nil
	case "Return":
		return &Return{}, nil
	case "Finish":
		if !a.Syscall {
			return &Finish{}, nil
		}
		num, err := decExpr(j.kid(0))
		if err != nil {
			return nil, err
		}
		args, err := decExprs(j.Kids[min(1, len(j.Kids)):])
		if err != nil {
			return nil, err
		}
		return &Finish{Syscall: num, Args: args}, nil
	case "Break":
		return &Break{}, nil
	case "Loop":
		return &Loop{}, nil
	case "Endcase":
		return &Endcase{}, nil
	case "Resultis":
		v, err := decExpr(j.kid(0))
		if err != nil {
			return nil, err
		}
		return &Resultis{Value: v, FromSend: a.Send}, nil
	case "Seq":
		c := &Compound{}
		for _, k := range j.Kids {
			s, err := decStmt(k)
			if err != nil {
				return nil, err
			}
			c.Stmts = append(c.Stmts, s)
		}
		return c, nil
	case "Block":
		if a.NDecls < 0 || a.NDecls > len(j.Kids) {
			return nil, fmt.Errorf("ast: decode Block: ndecls %d out of range", a.NDecls)
		}
		blk := &Block{}
		for _, k := range j.Kids[:a.NDecls] {
			d, err := decDecl(k)
			if err != nil {
				return nil, err
			}
			blk.Decls = append(blk.Decls, d)
		}
		for _, k := range j.Kids[a.NDecls:] {
			s, err := decStmt(k)
			if err != nil {
				return nil, err
			}
			blk.Stmts = append(blk.Stmts, s)
		}
		return blk, nil
	case "StringAlloc":
		size, err := decExpr(j.kid(0))
		if err != nil {
			return nil, err
		}
		return &StringAllocStmt{Size: size}, nil
	case "Label":
		return &LabelTarget{Name: a.Name}, nil
	case "CondBranch":
		v, err := decExpr(j.kid(0))
		if err != nil {
			return nil, err
		}
		return &CondBranch{Cond: a.Cond, Value: v, Target: a.Target}, nil
	case "Brk":
		return &Brk{}, nil
	case "Free":
		t, err := decExpr(j.kid(0))
		if err != nil {
			return nil, err
		}
		return &Free{Target: t}, nil
	case "Defer":
		b, err := decStmt(j.kid(0))
		if err != nil {
			return nil, err
		}
		return &Defer{Body: b}, nil
	case "Retain":
		return &Retain{Names: a.Names}, nil
	case "Remanage":
		return &Remanage{Names: a.Names}, nil
	case "MinMaxSum":
		args, err := decExprs(j.Kids)
		if err != nil {
			return nil, err
		}
		return &MinMaxSum{Op: ReductionOp(a.Op), Result: a.Result, Args: args}, nil
	case "Reduction":
		l, err := decExpr(j.kid(0))
		if err != nil {
			return nil, err
		}
		r, err := decExpr(j.kid(1))
		if err != nil {
			return nil, err
		}
		return &Reduction{Reducer: a.Reducer, Result: a.Result, Left: l, Right: r}, nil
	case "ReductionLoop", "PairwiseReductionLoop":
		l, err := decExpr(j.kid(0))
		if err != nil {
			return nil, err
		}
		r, err := decExpr(j.kid(1))
		if err != nil {
			return nil, err
		}
		if j.Kind == "ReductionLoop" {
			return &ReductionLoop{Result: a.Result, Left: l, Right: r, Intrinsic: a.Intrinsic, VecType: Type(a.VecType)}, nil
		}
		return &PairwiseReductionLoop{Result: a.Result, Left: l, Right: r, Intrinsic: a.Intrinsic, VecType: Type(a.VecType)}, nil
	default:
		return nil, fmt.Errorf("ast: decode: unknown node kind %q", j.Kind)
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
