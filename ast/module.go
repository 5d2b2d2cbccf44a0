package ast

import "fmt"

// Stmt is one entry in a function or op body. Bodies are flat streams;
// structured control keywords open and close frames in stream order.
type Stmt interface {
	stmt()
	Pos() Span
}

// LabelStmt defines a body-local label.
type LabelStmt struct {
	Name string
	At   Span
}

func (*LabelStmt) stmt()       {}
func (s *LabelStmt) Pos() Span { return s.At }

// IfStmt opens an if frame. Malformed is set by the front end when the
// keyword itself could not be parsed.
type IfStmt struct {
	Cond      string
	Malformed bool
	At        Span
}

func (*IfStmt) stmt()       {}
func (s *IfStmt) Pos() Span { return s.At }

// ElseStmt switches an if frame to its else arm, or opens the default arm
// of a select.
type ElseStmt struct{ At Span }

func (*ElseStmt) stmt()       {}
func (s *ElseStmt) Pos() Span { return s.At }

// EndStmt closes an if, while or select frame.
type EndStmt struct{ At Span }

func (*EndStmt) stmt()       {}
func (s *EndStmt) Pos() Span { return s.At }

// WhileStmt opens a while frame.
type WhileStmt struct {
	Cond      string
	Malformed bool
	At        Span
}

func (*WhileStmt) stmt()       {}
func (s *WhileStmt) Pos() Span { return s.At }

// RepeatStmt opens a repeat frame.
type RepeatStmt struct {
	Malformed bool
	At        Span
}

func (*RepeatStmt) stmt()       {}
func (s *RepeatStmt) Pos() Span { return s.At }

// UntilStmt closes a repeat frame.
type UntilStmt struct {
	Cond string
	At   Span
}

func (*UntilStmt) stmt()       {}
func (s *UntilStmt) Pos() Span { return s.At }

// SelectStmt opens a select frame dispatching on an 8-bit selector.
type SelectStmt struct {
	Selector  Operand
	Malformed bool
	At        Span
}

func (*SelectStmt) stmt()       {}
func (s *SelectStmt) Pos() Span { return s.At }

// CaseStmt opens one arm of the enclosing select.
type CaseStmt struct {
	Values []Expr
	At     Span
}

func (*CaseStmt) stmt()       {}
func (s *CaseStmt) Pos() Span { return s.At }

// CallStmt is a typed call to a declared function with arguments.
type CallStmt struct {
	Callee string
	Args   []Operand
	At     Span
}

func (*CallStmt) stmt()       {}
func (s *CallStmt) Pos() Span { return s.At }

// TypeRef refers to a builtin scalar (byte, word, addr, ptr) or a named
// record/union type. Len > 0 makes it an array of Len elements. Ref marks a
// 16-bit slot holding the address of storage of the described type.
type TypeRef struct {
	Name string
	Len  int
	Ref  bool
}

// Elem returns the element type of an array type.
func (t TypeRef) Elem() TypeRef {
	return TypeRef{Name: t.Name}
}

// IsArray reports whether t describes an array.
func (t TypeRef) IsArray() bool { return t.Len > 0 }

func (t TypeRef) String() string {
	s := t.Name
	if t.Len > 0 {
		s = fmt.Sprintf("%s[%d]", s, t.Len)
	}
	if t.Ref {
		s = "ref " + s
	}
	return s
}

// Module is one fully-resolved compilation unit.
type Module struct {
	Name  string
	Items []Item
}

// Item is a module-level declaration.
type Item interface{ item() }

// Param is a function parameter.
type Param struct {
	Name string
	Type TypeRef
}

// Local is a function-local variable occupying a frame slot.
type Local struct {
	Name string
	Type TypeRef
	Init Expr
}

// FuncDecl declares a function with a body. Returns lists the registers
// (af, bc, de, hl) the function hands back to its caller; every other
// member of that set is preserved by the prologue and epilogue.
type FuncDecl struct {
	Name    string
	Params  []Param
	Locals  []Local
	Returns []string
	Body    []Stmt
	At      Span
}

func (*FuncDecl) item() {}

// ExternFunc declares a function at a fixed address outside the module.
type ExternFunc struct {
	Name    string
	Address Expr
	Params  []Param
	At      Span
}

func (*ExternFunc) item() {}

// OpDecl declares one overload of a user instruction macro.
type OpDecl struct {
	Name   string
	Params []OpParam
	Body   []Stmt
	At     Span
}

func (*OpDecl) item() {}

// OpParam is one typed parameter of an op overload. Token is only used by
// MatchToken and holds the literal (lower-case) token.
type OpParam struct {
	Name    string
	Matcher MatcherKind
	Token   string
}

// DataDecl declares initialised storage in the data section.
type DataDecl struct {
	Name   string
	Type   TypeRef
	Values []Expr
	At     Span
}

func (*DataDecl) item() {}

// VarDecl reserves uninitialised storage in the var section.
type VarDecl struct {
	Name string
	Type TypeRef
	At   Span
}

func (*VarDecl) item() {}

// SectionKind names an output section.
type SectionKind int

// Output sections.
const (
	SectionCode SectionKind = iota
	SectionData
	SectionVar
)

func (k SectionKind) String() string {
	switch k {
	case SectionCode:
		return "code"
	case SectionData:
		return "data"
	case SectionVar:
		return "var"
	default:
		return "unknown"
	}
}

// SectionDirective applies placement to the items that follow it in the
// named section. At, when non-nil, pins the next item's address; Align
// rounds each following item's offset up to a multiple of Align.
type SectionDirective struct {
	Section SectionKind
	At      Expr
	Align   int
	Span    Span
}

func (*SectionDirective) item() {}

// MatcherKind classifies the operands an op parameter accepts.
type MatcherKind int

// Op parameter matcher kinds.
const (
	MatchToken MatcherKind = iota
	MatchReg8
	MatchReg16
	MatchIdx16
	MatchCC
	MatchImm8
	MatchImm16
	MatchMem8
	MatchMem16
	MatchEA
)

func (k MatcherKind) String() string {
	switch k {
	case MatchToken:
		return "token"
	case MatchReg8:
		return "reg8"
	case MatchReg16:
		return "reg16"
	case MatchIdx16:
		return "idx16"
	case MatchCC:
		return "cc"
	case MatchImm8:
		return "imm8"
	case MatchImm16:
		return "imm16"
	case MatchMem8:
		return "mem8"
	case MatchMem16:
		return "mem16"
	case MatchEA:
		return "ea"
	default:
		return "unknown"
	}
}
