// Package ast defines the fully-resolved syntax tree consumed by the zax
// backend.
//
// The tree is produced by the front end (parser and semantic layout pass)
// and is treated as read-only by every backend package. Nodes are closed
// sum types: each family (operands, immediate expressions, effective
// addresses, index expressions, statements, module items) is an interface
// with an unexported marker method, so type switches over a family are
// exhaustive within this module.
package ast

// Span locates a node in its source file.
type Span struct {
	File   string
	Line   int
	Column int
}

// Operand is one operand of an instruction.
type Operand interface {
	operand()
	Pos() Span
}

// RegOperand names a register or, in branch position, a condition code.
type RegOperand struct {
	Name string
	At   Span
}

func (RegOperand) operand()    {}
func (o RegOperand) Pos() Span { return o.At }

// ImmOperand is an immediate expression.
type ImmOperand struct {
	Expr Expr
	At   Span
}

func (ImmOperand) operand()    {}
func (o ImmOperand) Pos() Span { return o.At }

// MemOperand is a parenthesised memory reference, e.g. (hl), (ix+4), (glob).
type MemOperand struct {
	EA EA
	At Span
}

func (MemOperand) operand()    {}
func (o MemOperand) Pos() Span { return o.At }

// EAOperand is a bare effective-address expression naming typed storage,
// e.g. arr[i] or rec.field.
type EAOperand struct {
	EA EA
	At Span
}

func (EAOperand) operand()    {}
func (o EAOperand) Pos() Span { return o.At }

// PortCOperand is the (c) port of in/out.
type PortCOperand struct {
	At Span
}

func (PortCOperand) operand()    {}
func (o PortCOperand) Pos() Span { return o.At }

// PortImmOperand is the (n) port of in a,(n) and out (n),a.
type PortImmOperand struct {
	Expr Expr
	At   Span
}

func (PortImmOperand) operand()    {}
func (o PortImmOperand) Pos() Span { return o.At }

// Instruction is one mnemonic with its operands. Head is lower-case.
type Instruction struct {
	Head     string
	Operands []Operand
	At       Span
}

func (*Instruction) stmt()       {}
func (i *Instruction) Pos() Span { return i.At }

// Expr is an immediate expression.
type Expr interface{ expr() }

// NumberExpr is an integer literal.
type NumberExpr struct{ Val int64 }

func (NumberExpr) expr() {}

// NameExpr references a constant, a qualified enum member (Enum.Member)
// or, when neither resolves, a symbol whose address is fixed up later.
type NameExpr struct{ Name string }

func (NameExpr) expr() {}

// UnaryExpr applies one of "-", "+", "~" to X.
type UnaryExpr struct {
	Op string
	X  Expr
}

func (UnaryExpr) expr() {}

// BinaryExpr applies one of + - * / % & | ^ << >>.
type BinaryExpr struct {
	Op          string
	Left, Right Expr
}

func (BinaryExpr) expr() {}

// SizeofExpr evaluates to the byte size of a type.
type SizeofExpr struct{ Type TypeRef }

func (SizeofExpr) expr() {}

// OffsetofExpr evaluates to the byte offset of a field path inside a
// record or union type.
type OffsetofExpr struct {
	Type string
	Path []string
}

func (OffsetofExpr) expr() {}

// EA is an effective-address expression.
type EA interface{ ea() }

// EAName names storage (global or frame variable) or a register used as
// an address (hl, bc, de, ix, iy, sp).
type EAName struct{ Name string }

func (EAName) ea() {}

// EALiteral is an absolute numeric address.
type EALiteral struct{ Expr Expr }

func (EALiteral) ea() {}

// EAField selects a record field.
type EAField struct {
	Base  EA
	Field string
}

func (EAField) ea() {}

// EAIndex selects an array element.
type EAIndex struct {
	Base  EA
	Index IndexExpr
}

func (EAIndex) ea() {}

// EAAdd offsets Base by a constant number of bytes.
type EAAdd struct {
	Base   EA
	Offset Expr
}

func (EAAdd) ea() {}

// EASub offsets Base backwards by a constant number of bytes.
type EASub struct {
	Base   EA
	Offset Expr
}

func (EASub) ea() {}

// IndexExpr is the subscript of an EAIndex.
type IndexExpr interface{ index() }

// IndexImm is a compile-time constant subscript.
type IndexImm struct{ Expr Expr }

func (IndexImm) index() {}

// IndexReg8 is an 8-bit register subscript, zero-extended.
type IndexReg8 struct{ Reg string }

func (IndexReg8) index() {}

// IndexReg16 is a 16-bit register subscript.
type IndexReg16 struct{ Reg string }

func (IndexReg16) index() {}

// IndexMemHL subscripts by the byte at (hl).
type IndexMemHL struct{}

func (IndexMemHL) index() {}

// IndexMemIdx subscripts by the byte at (ix+d) or (iy+d).
type IndexMemIdx struct {
	Reg  string
	Disp Expr
}

func (IndexMemIdx) index() {}

// IndexEA subscripts by the value stored at a nested effective address.
type IndexEA struct{ EA EA }

func (IndexEA) index() {}
