package analysis

import (
	"fmt"

	"github.com/albanread/nbcgo/internal/compiler/ast"
)

// Class layout follows single-inheritance C++ semantics: the vtable pointer
// sits at offset 0, members and virtual slots inherited from the parent keep
// their positions, and new items append.

const (
	// WordSize is the byte size of one member slot and one vtable entry.
	WordSize = 8
	// VTablePointerOffset is where every object stores its vtable pointer.
	VTablePointerOffset = 0
)

// MemberInfo is one data member with its resolved byte offset.
type MemberInfo struct {
	Name   string
	Offset int
	Type   ast.Type
}

// MethodInfo is one method with its vtable slot. Definer names the class
// whose body provides the implementation after overriding.
type MethodInfo struct {
	Name    string
	Slot    int
	Virtual bool
	Final   bool
	Definer string
}

// ClassInfo is the resolved layout of one class.
type ClassInfo struct {
	Name    string
	Parent  *ClassInfo
	Members []MemberInfo
	Methods []MethodInfo

	memberIndex map[string]int
	methodIndex map[string]int
}

// Size returns the object footprint in bytes: vtable pointer plus members.
func (c *ClassInfo) Size() int {
	return WordSize + len(c.Members)*WordSize
}

// Member resolves a data member, inherited ones included.
func (c *ClassInfo) Member(name string) (MemberInfo, bool) {
	i, ok := c.memberIndex[name]
	if !ok {
		return MemberInfo{}, false
	}
	return c.Members[i], true
}

// Method resolves a method, inherited ones included.
func (c *ClassInfo) Method(name string) (MethodInfo, bool) {
	i, ok := c.methodIndex[name]
	if !ok {
		return MethodInfo{}, false
	}
	return c.Methods[i], true
}

// VTableLabel names the class's vtable in rodata.
func (c *ClassInfo) VTableLabel() string { return "vtable_" + c.Name }

// MethodLabel names a method's code label.
func MethodLabel(class, method string) string { return class + "_" + method }

// ClassTable resolves class names to layouts.
type ClassTable struct {
	classes map[string]*ClassInfo
	order   []string
}

// Lookup returns the layout for a class name.
func (t *ClassTable) Lookup(name string) (*ClassInfo, bool) {
	c, ok := t.classes[name]
	return c, ok
}

// Order returns class names in resolution order (parents before children).
func (t *ClassTable) Order() []string { return t.order }

// buildClassTable resolves every class declaration. Parents must resolve
// before children; unknown parents are user errors.
func buildClassTable(p *ast.Program) (*ClassTable, []error) {
	decls := make(map[string]*ast.Class)
	var names []string
	for _, d := range p.Decls {
		if c, ok := d.(*ast.Class); ok {
			decls[c.Name] = c
			names = append(names, c.Name)
		}
	}

	t := &ClassTable{classes: make(map[string]*ClassInfo)}
	var errs []error
	var resolve func(name string, seen map[string]bool) *ClassInfo
	resolve = func(name string, seen map[string]bool) *ClassInfo {
		if c, done := t.classes[name]; done {
			return c
		}
		if seen[name] {
			errs = append(errs, fmt.Errorf("class %s inherits from itself", name))
			return nil
		}
		seen[name] = true
		decl, ok := decls[name]
		if !ok {
			errs = append(errs, fmt.Errorf("unknown parent class %s", name))
			return nil
		}

		info := &ClassInfo{
			Name:        name,
			memberIndex: make(map[string]int),
			methodIndex: make(map[string]int),
		}
		if decl.Parent != "" {
			parent := resolve(decl.Parent, seen)
			if parent != nil {
				info.Parent = parent
				info.Members = append(info.Members, parent.Members...)
				info.Methods = append(info.Methods, parent.Methods...)
				for i, m := range info.Members {
					info.memberIndex[m.Name] = i
				}
				for i, m := range info.Methods {
					info.methodIndex[m.Name] = i
				}
			}
		}

		for _, member := range decl.Members {
			switch m := member.Decl.(type) {
			case *ast.Let:
				for _, varName := range m.Names {
					if _, dup := info.memberIndex[varName]; dup {
						errs = append(errs, fmt.Errorf("class %s redeclares member %s", name, varName))
						continue
					}
					typ := m.DeclType
					if typ == ast.TypeUnknown && m.IsFloat {
						typ = ast.TypeFloat
					}
					info.memberIndex[varName] = len(info.Members)
					info.Members = append(info.Members, MemberInfo{
						Name:   varName,
						Offset: WordSize + len(info.Members)*WordSize,
						Type:   typ,
					})
				}
			case *ast.Function:
				addMethod(info, m.Name, m.Virtual, m.Final, name, &errs)
			case *ast.Routine:
				addMethod(info, m.Name, true, false, name, &errs)
			}
		}

		t.classes[name] = info
		t.order = append(t.order, name)
		return info
	}

	for _, name := range names {
		resolve(name, make(map[string]bool))
	}
	return t, errs
}

func addMethod(info *ClassInfo, method string, virtual, final bool, definer string, errs *[]error) {
	if i, overrides := info.methodIndex[method]; overrides {
		base := info.Methods[i]
		if base.Final {
			*errs = append(*errs, fmt.Errorf("class %s overrides final method %s", definer, method))
			return
		}
		// Override keeps the inherited slot.
		info.Methods[i] = MethodInfo{
			Name: method, Slot: base.Slot,
			Virtual: base.Virtual, Final: final, Definer: definer,
		}
		return
	}
	info.methodIndex[method] = len(info.Methods)
	info.Methods = append(info.Methods, MethodInfo{
		Name: method, Slot: len(info.Methods),
		Virtual: virtual, Final: final, Definer: definer,
	})
}
