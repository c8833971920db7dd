package ast

type (
	// Let declares one or more names with parallel initializers.
	// `LET a, b = 1, 2` carries Names={a,b} and Inits={1,2}.
	Let struct {
		Names    []string
		Inits    []Expr
		IsFloat  bool // declared with FLET
		Retained bool // RETAIN-annotated at the declaration
		// DeclType is the explicit type when the source gave one,
		// otherwise TypeUnknown until the analyzer infers it.
		DeclType Type
	}

	// Manifest is a compile-time named integer constant. The manifest
	// resolution pass records it and removes the declaration.
	Manifest struct {
		Name  string
		Value int64
	}

	// Static declares a data-segment variable with an initializer.
	Static struct {
		Name string
		Init Expr
	}

	// GlobalPair binds a global name to its slot number.
	GlobalPair struct {
		Name string
		Slot int
	}

	// Global is a GLOBALS block of name→slot pairs.
	Global struct {
		Pairs []GlobalPair
	}

	// GlobalVariable is a top-level LET/FLET. Its initializers are hoisted
	// into a synthetic routine by the global-initializer pass.
	GlobalVariable struct {
		Names   []string
		Inits   []Expr
		IsFloat bool
	}

	// Function is a named expression-bodied function.
	Function struct {
		Name    string
		Params  []string
		Body    Expr
		Virtual bool
		Final   bool
		IsFloat bool
		// Class is the owning class name for methods, set by the analyzer.
		Class string
	}

	// Routine is a named statement-bodied routine (no return value).
	Routine struct {
		Name   string
		Params []string
		Body   Stmt
		// Class is the owning class name for methods, set by the analyzer.
		Class string
	}

	// LabelDecl declares a code label at the top level.
	LabelDecl struct {
		Name string
	}

	// ClassMember is one member of a class body with its visibility.
	ClassMember struct {
		Decl       Decl
		Visibility Visibility
	}

	// Class declares a single-inheritance class.
	Class struct {
		Name    string
		Parent  string // empty when the class has no parent
		Members []ClassMember
	}
)

func (*Let) node()            {}
func (*Manifest) node()       {}
func (*Static) node()         {}
func (*Global) node()         {}
func (*GlobalVariable) node() {}
func (*Function) node()       {}
func (*Routine) node()        {}
func (*LabelDecl) node()      {}
func (*Class) node()          {}

func (*Let) declNode()            {}
func (*Manifest) declNode()       {}
func (*Static) declNode()         {}
func (*Global) declNode()         {}
func (*GlobalVariable) declNode() {}
func (*Function) declNode()       {}
func (*Routine) declNode()        {}
func (*LabelDecl) declNode()      {}
func (*Class) declNode()          {}
