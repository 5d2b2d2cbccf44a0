package encoder

import "github.com/sarchlab/zax/diag"

var aluOps = map[string]byte{
	"add": 0, "adc": 1, "sub": 2, "sbc": 3, "and": 4, "xor": 5, "or": 6, "cp": 7,
}

// encodeALU handles the 8-bit accumulator forms (with or without an explicit
// "a," destination) and the 16-bit add/adc/sbc forms.
func encodeALU(e *encoder) (*Encoded, *diag.Diagnostic) {
	y := aluOps[e.head()]

	switch len(e.ops) {
	case 1:
		return encodeALU8(e, y, e.ops[0])
	case 2:
		dst := e.ops[0]
		switch {
		case dst.isReg("a"):
			return encodeALU8(e, y, e.ops[1])
		case dst.isReg("hl"), dst.kind == kindIdx:
			return encodeALU16(e, dst, e.ops[1])
		}
	}

	return nil, nil
}

func encodeALU8(e *encoder, y byte, src operand) (*Encoded, *diag.Diagnostic) {
	op := 0x80 | y<<3

	switch src.kind {
	case kindReg8:
		return bytesOf(op | src.code), nil
	case kindIdxHalf:
		return bytesOf(src.prefix, op|src.code), nil
	case kindMemHL:
		return bytesOf(op | 6), nil
	case kindMemIdx:
		return bytesOf(src.prefix, op|6, byte(src.disp)), nil
	case kindImm:
		n, d := e.imm8(src)
		if d != nil {
			return nil, d
		}
		return bytesOf(0xC6|y<<3, n), nil
	}

	return nil, nil
}

func encodeALU16(e *encoder, dst, src operand) (*Encoded, *diag.Diagnostic) {
	head := e.head()

	if dst.kind == kindIdx {
		if head != "add" {
			return nil, nil
		}
		switch {
		case src.kind == kindReg16 && src.name != "hl":
			return bytesOf(dst.prefix, 0x09|src.code<<4), nil
		case src.kind == kindIdx && src.name == dst.name:
			return bytesOf(dst.prefix, 0x29), nil
		}
		return nil, nil
	}

	if src.kind != kindReg16 {
		return nil, nil
	}

	switch head {
	case "add":
		return bytesOf(0x09 | src.code<<4), nil
	case "adc":
		return bytesOf(0xED, 0x4A|src.code<<4), nil
	case "sbc":
		return bytesOf(0xED, 0x42|src.code<<4), nil
	}

	return nil, nil
}
