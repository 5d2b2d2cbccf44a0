package encoder

import (
	"github.com/sarchlab/zax/ast"
	"github.com/sarchlab/zax/diag"
)

func encodeIn(e *encoder) (*Encoded, *diag.Diagnostic) {
	if len(e.ops) != 2 {
		return nil, nil
	}

	dst, port := e.ops[0], e.ops[1]
	switch {
	case port.kind == kindPortC && dst.kind == kindReg8:
		return bytesOf(0xED, 0x40|dst.code<<3), nil
	case isPortImm(port) && dst.isReg("a"):
		n, d := e.imm8(port)
		if d != nil {
			return nil, d
		}
		return bytesOf(0xDB, n), nil
	}

	return nil, nil
}

func encodeOut(e *encoder) (*Encoded, *diag.Diagnostic) {
	if len(e.ops) != 2 {
		return nil, nil
	}

	port, src := e.ops[0], e.ops[1]
	switch {
	case port.kind == kindPortC && src.kind == kindReg8:
		return bytesOf(0xED, 0x41|src.code<<3), nil
	case isPortImm(port) && src.isReg("a"):
		n, d := e.imm8(port)
		if d != nil {
			return nil, d
		}
		return bytesOf(0xD3, n), nil
	}

	return nil, nil
}

// isPortImm accepts both the explicit (n) port form and a parenthesised
// constant parsed as absolute memory.
func isPortImm(o operand) bool {
	return o.kind == kindPortImm || (o.kind == kindMemAbs && o.value.IsConst())
}

func encodeRst(e *encoder) (*Encoded, *diag.Diagnostic) {
	if len(e.ops) != 1 || e.ops[0].kind != kindImm {
		return nil, nil
	}

	v := e.ops[0]
	if !v.value.IsConst() {
		return nil, e.errorf("rst expects a constant vector (got %s).", ast.FormatExpr(v.expr))
	}

	p := v.value.Addend
	if p < 0 || p > 0x38 || p%8 != 0 {
		return nil, e.errorf("rst expects a vector in $00,$08,...,$38 (got %d).", p)
	}

	return bytesOf(0xC7 | byte(p)), nil
}

var imModes = map[int64]byte{0: 0x46, 1: 0x56, 2: 0x5E}

func encodeIm(e *encoder) (*Encoded, *diag.Diagnostic) {
	if len(e.ops) != 1 || e.ops[0].kind != kindImm {
		return nil, nil
	}

	v := e.ops[0]
	op, ok := imModes[v.value.Addend]
	if !v.value.IsConst() || !ok {
		return nil, e.errorf("im expects mode 0, 1 or 2 (got %s).", ast.FormatExpr(v.expr))
	}

	return bytesOf(0xED, op), nil
}

// zeroOperand maps every operand-less mnemonic to its opcode bytes.
var zeroOperand = map[string][]byte{
	"nop":  {0x00},
	"halt": {0x76},
	"di":   {0xF3},
	"ei":   {0xFB},
	"scf":  {0x37},
	"ccf":  {0x3F},
	"cpl":  {0x2F},
	"daa":  {0x27},
	"rlca": {0x07},
	"rrca": {0x0F},
	"rla":  {0x17},
	"rra":  {0x1F},
	"exx":  {0xD9},
	"neg":  {0xED, 0x44},
	"reti": {0xED, 0x4D},
	"retn": {0xED, 0x45},
	"rrd":  {0xED, 0x67},
	"rld":  {0xED, 0x6F},
	"ldi":  {0xED, 0xA0},
	"ldir": {0xED, 0xB0},
	"ldd":  {0xED, 0xA8},
	"lddr": {0xED, 0xB8},
	"cpi":  {0xED, 0xA1},
	"cpir": {0xED, 0xB1},
	"cpd":  {0xED, 0xA9},
	"cpdr": {0xED, 0xB9},
	"ini":  {0xED, 0xA2},
	"inir": {0xED, 0xB2},
	"ind":  {0xED, 0xAA},
	"indr": {0xED, 0xBA},
	"outi": {0xED, 0xA3},
	"otir": {0xED, 0xB3},
	"outd": {0xED, 0xAB},
	"otdr": {0xED, 0xBB},
}

func encodeZeroOperand(e *encoder) (*Encoded, *diag.Diagnostic) {
	if len(e.ops) != 0 {
		return nil, nil
	}
	return bytesOf(append([]byte{}, zeroOperand[e.head()]...)...), nil
}
