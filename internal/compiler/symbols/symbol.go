// Package symbols holds the scoped name → symbol mapping the analyzer
// populates and the code generator consults.
package symbols

import (
	"fmt"

	"github.com/albanread/nbcgo/internal/compiler/ast"
)

// Kind classifies a symbol.
type Kind uint8

const (
	LocalVar Kind = iota
	StaticVar
	GlobalVar
	MemberVar
	Parameter
	Function
	FloatFunction
	Routine
	Label
	Manifest
	RuntimeFunction
	RuntimeFloatFunction
	RuntimeListFunction
	RuntimeRoutine
	RuntimeFloatRoutine
)

var kindNames = [...]string{
	LocalVar: "local", StaticVar: "static", GlobalVar: "global",
	MemberVar: "member", Parameter: "parameter",
	Function: "function", FloatFunction: "float-function", Routine: "routine",
	Label: "label", Manifest: "manifest",
	RuntimeFunction: "runtime-function", RuntimeFloatFunction: "runtime-float-function",
	RuntimeListFunction: "runtime-list-function",
	RuntimeRoutine: "runtime-routine", RuntimeFloatRoutine: "runtime-float-routine",
}

// String implements fmt.Stringer.
func (k Kind) String() string { return kindNames[k] }

// LocationType says where a symbol's value lives.
type LocationType uint8

const (
	LocUnknown LocationType = iota
	LocStack
	LocData
	LocAbsolute
	LocLabel
)

// Location is where a symbol's storage is. Exactly one of the value fields
// is meaningful, selected by Type.
type Location struct {
	Type LocationType
	// StackOffset is the frame-pointer-relative offset for LocStack.
	StackOffset int
	// DataOffset is the data-segment offset for LocData.
	DataOffset int
	// Absolute is the fixed value for LocAbsolute (manifest constants).
	Absolute int64
	// Label names the code label for LocLabel.
	Label string
}

// StackLocation builds a stack location.
func StackLocation(offset int) Location { return Location{Type: LocStack, StackOffset: offset} }

// DataLocation builds a data-segment location.
func DataLocation(offset int) Location { return Location{Type: LocData, DataOffset: offset} }

// AbsoluteLocation builds an absolute-value location.
func AbsoluteLocation(v int64) Location { return Location{Type: LocAbsolute, Absolute: v} }

// LabelLocation builds a code-label location.
func LabelLocation(name string) Location { return Location{Type: LocLabel, Label: name} }

// ParameterInfo describes one declared parameter of a function-like symbol.
type ParameterInfo struct {
	Type     ast.Type
	Optional bool
}

// Symbol is one entry of the table.
type Symbol struct {
	Name string
	Kind Kind
	Type ast.Type

	// ScopeLevel is the lexical depth (0 = global), BlockID the unique id
	// of the declaring block, FunctionName the owning function or routine,
	// ClassName the owning class for members and methods.
	ScopeLevel   int
	BlockID      int
	FunctionName string
	ClassName    string

	// Size is the element count of a sized vector when known.
	Size    int
	HasSize bool

	Location   Location
	Parameters []ParameterInfo

	// OwnsHeapMemory drives DEFER-release synthesis. Retain analysis
	// clears it for values that escape or are RETAINed.
	OwnsHeapMemory bool
	// ContainsLiterals marks variables bound to literal data.
	ContainsLiterals bool
}

// IsManifest reports whether the symbol is a manifest constant.
func (s *Symbol) IsManifest() bool { return s.Kind == Manifest }

// IsLocal reports stack residency.
func (s *Symbol) IsLocal() bool { return s.Kind == LocalVar || s.Kind == Parameter }

// IsGlobal reports data-segment residency.
func (s *Symbol) IsGlobal() bool { return s.Kind == GlobalVar || s.Kind == StaticVar }

// IsVariable reports whether the symbol names mutable storage.
func (s *Symbol) IsVariable() bool {
	switch s.Kind {
	case LocalVar, StaticVar, GlobalVar, Parameter, MemberVar:
		return true
	}
	return false
}

// IsRuntime reports whether the symbol is provided by the runtime registry.
func (s *Symbol) IsRuntime() bool {
	switch s.Kind {
	case RuntimeFunction, RuntimeFloatFunction, RuntimeListFunction, RuntimeRoutine, RuntimeFloatRoutine:
		return true
	}
	return false
}

// IsFunctionLike reports whether the symbol may be called.
func (s *Symbol) IsFunctionLike() bool {
	switch s.Kind {
	case Function, FloatFunction, Routine:
		return true
	}
	return s.IsRuntime()
}

// ReturnsFloat reports whether calls to the symbol return in d0.
func (s *Symbol) ReturnsFloat() bool {
	return s.Kind == FloatFunction || s.Kind == RuntimeFloatFunction || s.Kind == RuntimeFloatRoutine
}

// String implements fmt.Stringer.
func (s *Symbol) String() string {
	return fmt.Sprintf("%s [%s %s scope=%d fn=%s]", s.Name, s.Kind, s.Type, s.ScopeLevel, s.FunctionName)
}
