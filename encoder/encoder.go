// Package encoder turns one Z80 instruction node into machine-code bytes.
//
// Dispatch is by mnemonic into instruction families. A family either
// produces bytes, reports a diagnostic, or declines when the operand shape
// is not one it handles. When every family declines, the dispatcher falls
// back to the arity table, so a known mnemonic always gets a specific
// message and only an unknown head is reported as unsupported.
//
// Immediates that name symbols are not resolved here. They are emitted as
// zero placeholders together with a Fixup that the linker patches once
// every address is known.
package encoder

import (
	"fmt"
	"strings"

	"github.com/sarchlab/zax/ast"
	"github.com/sarchlab/zax/diag"
	"github.com/sarchlab/zax/env"
)

// FixupKind is the encoding shape of a deferred address patch.
type FixupKind int

const (
	// Rel8 is a signed 8-bit displacement relative to the next instruction.
	Rel8 FixupKind = iota
	// Abs16 is a little-endian address after an unprefixed opcode.
	Abs16
	// Abs16ED is a little-endian address after an ED-prefixed opcode.
	Abs16ED
	// Abs16Index is a little-endian address after a DD/FD-prefixed opcode.
	Abs16Index
)

func (k FixupKind) String() string {
	switch k {
	case Rel8:
		return "rel8"
	case Abs16:
		return "abs16"
	case Abs16ED:
		return "abs16-ed"
	case Abs16Index:
		return "abs16-index"
	default:
		return "unknown"
	}
}

// Fixup records a site whose bytes depend on a symbol address. Offset is
// relative to the first byte of the instruction. An empty Symbol means the
// target is the absolute address in Addend, which is how numeric relative
// branch targets are carried.
type Fixup struct {
	Kind   FixupKind
	Offset int
	Symbol string
	Addend int64
	Opcode []byte
}

// Encoded is the result of encoding one instruction.
type Encoded struct {
	Bytes  []byte
	Fixups []Fixup
}

// Size returns the instruction length in bytes.
func (e *Encoded) Size() int {
	return len(e.Bytes)
}

// family encodes the instruction or declines by returning (nil, nil).
type family func(e *encoder) (*Encoded, *diag.Diagnostic)

var families = map[string][]family{}

func register(f family, heads ...string) {
	for _, h := range heads {
		families[h] = append(families[h], f)
	}
}

func init() {
	register(encodeALU, "add", "adc", "sub", "sbc", "and", "xor", "or", "cp")
	register(encodeRotate, "rlc", "rrc", "rl", "rr", "sla", "sra", "sll", "srl")
	register(encodeBit, "bit", "res", "set")
	register(encodeRet, "ret")
	register(encodeJp, "jp")
	register(encodeCall, "call")
	register(encodeJr, "jr")
	register(encodeDjnz, "djnz")
	register(encodeIncDec, "inc", "dec")
	register(encodePushPop, "push", "pop")
	register(encodeEx, "ex")
	register(encodeLd, "ld")
	register(encodeIn, "in")
	register(encodeOut, "out")
	register(encodeRst, "rst")
	register(encodeIm, "im")
	for head := range zeroOperand {
		register(encodeZeroOperand, head)
	}
}

// arity lists the operand counts each known mnemonic accepts.
var arity = map[string][]int{
	"add": {1, 2}, "adc": {1, 2}, "sub": {1, 2}, "sbc": {1, 2},
	"and": {1, 2}, "xor": {1, 2}, "or": {1, 2}, "cp": {1, 2},
	"rlc": {1}, "rrc": {1}, "rl": {1}, "rr": {1},
	"sla": {1}, "sra": {1}, "sll": {1}, "srl": {1},
	"bit": {2}, "res": {2}, "set": {2},
	"ret": {0, 1}, "jp": {1, 2}, "call": {1, 2}, "jr": {1, 2}, "djnz": {1},
	"inc": {1}, "dec": {1}, "push": {1}, "pop": {1}, "ex": {2},
	"ld": {2}, "in": {2}, "out": {2}, "rst": {1}, "im": {1},
}

func init() {
	for head := range zeroOperand {
		arity[head] = []int{0}
	}
}

// IsKnown reports whether head is a Z80 mnemonic the encoder handles.
func IsKnown(head string) bool {
	_, ok := arity[head]
	return ok
}

type encoder struct {
	in  *ast.Instruction
	env env.Resolver
	ops []operand
}

// Encode encodes one instruction. Exactly one of the results is non-nil.
func Encode(in *ast.Instruction, r env.Resolver) (*Encoded, *diag.Diagnostic) {
	head := strings.ToLower(in.Head)

	fams, known := families[head]
	if !known {
		return nil, diag.Errorf(diag.Encode, in.At, "Unsupported instruction: %s", head)
	}

	e := &encoder{in: in, env: r}
	for _, op := range in.Operands {
		o, d := classify(head, op, r)
		if d != nil {
			return nil, d.At(in.At)
		}
		e.ops = append(e.ops, o)
	}

	for _, f := range fams {
		enc, d := f(e)
		if d != nil {
			return nil, d.At(in.At)
		}
		if enc != nil {
			return enc, nil
		}
	}

	return nil, e.fallback(head)
}

func (e *encoder) fallback(head string) *diag.Diagnostic {
	counts := arity[head]
	for _, n := range counts {
		if n == len(e.ops) {
			return e.errorf("Invalid operands for %s: %s.", head, ast.Format(e.in))
		}
	}

	return e.errorf("%s expects %s (got %d).", head, describeArity(counts), len(e.ops))
}

func describeArity(counts []int) string {
	parts := make([]string, len(counts))
	for i, n := range counts {
		parts[i] = fmt.Sprint(n)
	}

	noun := "operands"
	if len(counts) == 1 && counts[0] == 1 {
		noun = "operand"
	}

	return strings.Join(parts, " or ") + " " + noun
}

func (e *encoder) head() string {
	return strings.ToLower(e.in.Head)
}

func (e *encoder) errorf(format string, args ...any) *diag.Diagnostic {
	return diag.Errorf(diag.Encode, e.in.At, format, args...)
}

func bytesOf(bs ...byte) *Encoded {
	return &Encoded{Bytes: bs}
}

// withImm16 appends a 16-bit immediate after opcode, producing a fixup when
// the value is symbolic.
func (e *encoder) withImm16(opcode []byte, v operand) (*Encoded, *diag.Diagnostic) {
	out := &Encoded{Bytes: append([]byte{}, opcode...)}

	if !v.value.IsConst() {
		out.Bytes = append(out.Bytes, 0, 0)
		out.Fixups = append(out.Fixups, Fixup{
			Kind:   abs16KindFor(opcode),
			Offset: len(opcode),
			Symbol: v.value.Sym,
			Addend: v.value.Addend,
			Opcode: append([]byte{}, opcode...),
		})
		return out, nil
	}

	n := v.value.Addend
	if n < -32768 || n > 65535 {
		return nil, e.errorf("%s expects an imm16 value in range -32768..65535 (got %d).", e.head(), n)
	}

	out.Bytes = append(out.Bytes, byte(n), byte(n>>8))
	return out, nil
}

func abs16KindFor(opcode []byte) FixupKind {
	switch opcode[0] {
	case 0xED:
		return Abs16ED
	case 0xDD, 0xFD:
		return Abs16Index
	default:
		return Abs16
	}
}

// withRel8 appends a relative displacement placeholder after opcode.
func (e *encoder) withRel8(opcode byte, v operand) *Encoded {
	return &Encoded{
		Bytes: []byte{opcode, 0},
		Fixups: []Fixup{{
			Kind:   Rel8,
			Offset: 1,
			Symbol: v.value.Sym,
			Addend: v.value.Addend,
			Opcode: []byte{opcode},
		}},
	}
}

func (e *encoder) imm8(v operand) (byte, *diag.Diagnostic) {
	if !v.value.IsConst() {
		return 0, e.errorf("%s expects a constant imm8 value (got %s).", e.head(), ast.FormatExpr(v.expr))
	}

	n := v.value.Addend
	if n < -128 || n > 255 {
		return 0, e.errorf("%s expects an imm8 value in range -128..255 (got %d).", e.head(), n)
	}

	return byte(n), nil
}
