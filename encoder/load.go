package encoder

import "github.com/sarchlab/zax/diag"

func encodeLd(e *encoder) (*Encoded, *diag.Diagnostic) {
	if len(e.ops) != 2 {
		return nil, nil
	}

	dst, src := e.ops[0], e.ops[1]
	switch {
	case dst.byteReg():
		return ldToByteReg(e, dst, src)
	case dst.kind == kindMemHL:
		return ldToMemHL(e, src)
	case dst.kind == kindMemIdx:
		return ldToMemIdx(e, dst, src)
	case dst.kind == kindMemBC, dst.kind == kindMemDE:
		return ldToMemPair(dst, src), nil
	case dst.kind == kindMemAbs:
		return ldToMemAbs(e, dst, src)
	case dst.kind == kindSpecial:
		if src.isReg("a") {
			if dst.name == "i" {
				return bytesOf(0xED, 0x47), nil
			}
			return bytesOf(0xED, 0x4F), nil
		}
	case dst.kind == kindReg16:
		return ldToPair(e, dst, src)
	case dst.kind == kindIdx:
		return ldToIdx(e, dst, src)
	}

	return nil, nil
}

func ldToByteReg(e *encoder, dst, src operand) (*Encoded, *diag.Diagnostic) {
	if dst.kind == kindIdxHalf {
		return ldToIdxHalf(e, dst, src)
	}

	switch src.kind {
	case kindReg8:
		return bytesOf(0x40 | dst.code<<3 | src.code), nil
	case kindIdxHalf:
		if dst.name == "h" || dst.name == "l" {
			return nil, nil
		}
		return bytesOf(src.prefix, 0x40|dst.code<<3|src.code), nil
	case kindImm:
		n, d := e.imm8(src)
		if d != nil {
			return nil, d
		}
		return bytesOf(0x06|dst.code<<3, n), nil
	case kindMemHL:
		return bytesOf(0x46 | dst.code<<3), nil
	case kindMemIdx:
		return bytesOf(src.prefix, 0x46|dst.code<<3, byte(src.disp)), nil
	}

	if dst.name != "a" {
		return nil, nil
	}

	switch src.kind {
	case kindMemBC:
		return bytesOf(0x0A), nil
	case kindMemDE:
		return bytesOf(0x1A), nil
	case kindMemAbs:
		return e.withImm16([]byte{0x3A}, src)
	case kindSpecial:
		if src.name == "i" {
			return bytesOf(0xED, 0x57), nil
		}
		return bytesOf(0xED, 0x5F), nil
	}

	return nil, nil
}

// ldToIdxHalf covers ld ixh/ixl/iyh/iyl with an 8-bit source. H and L
// cannot be mixed with index halves, and IX halves cannot mix with IY halves.
func ldToIdxHalf(e *encoder, dst, src operand) (*Encoded, *diag.Diagnostic) {
	switch src.kind {
	case kindReg8:
		if src.name == "h" || src.name == "l" {
			return nil, nil
		}
		return bytesOf(dst.prefix, 0x40|dst.code<<3|src.code), nil
	case kindIdxHalf:
		if src.prefix != dst.prefix {
			return nil, nil
		}
		return bytesOf(dst.prefix, 0x40|dst.code<<3|src.code), nil
	case kindImm:
		n, d := e.imm8(src)
		if d != nil {
			return nil, d
		}
		return bytesOf(dst.prefix, 0x06|dst.code<<3, n), nil
	}
	return nil, nil
}

func ldToMemHL(e *encoder, src operand) (*Encoded, *diag.Diagnostic) {
	switch src.kind {
	case kindReg8:
		return bytesOf(0x70 | src.code), nil
	case kindImm:
		n, d := e.imm8(src)
		if d != nil {
			return nil, d
		}
		return bytesOf(0x36, n), nil
	}
	return nil, nil
}

func ldToMemIdx(e *encoder, dst, src operand) (*Encoded, *diag.Diagnostic) {
	switch src.kind {
	case kindReg8:
		return bytesOf(dst.prefix, 0x70|src.code, byte(dst.disp)), nil
	case kindImm:
		n, d := e.imm8(src)
		if d != nil {
			return nil, d
		}
		return bytesOf(dst.prefix, 0x36, byte(dst.disp), n), nil
	}
	return nil, nil
}

func ldToMemPair(dst, src operand) *Encoded {
	if !src.isReg("a") {
		return nil
	}
	if dst.kind == kindMemBC {
		return bytesOf(0x02)
	}
	return bytesOf(0x12)
}

func ldToMemAbs(e *encoder, dst, src operand) (*Encoded, *diag.Diagnostic) {
	switch {
	case src.isReg("a"):
		return e.withImm16([]byte{0x32}, dst)
	case src.isReg("hl"):
		return e.withImm16([]byte{0x22}, dst)
	case src.kind == kindReg16:
		return e.withImm16([]byte{0xED, 0x43 | src.code<<4}, dst)
	case src.kind == kindIdx:
		return e.withImm16([]byte{src.prefix, 0x22}, dst)
	}
	return nil, nil
}

func ldToPair(e *encoder, dst, src operand) (*Encoded, *diag.Diagnostic) {
	switch {
	case src.kind == kindImm:
		return e.withImm16([]byte{0x01 | dst.code<<4}, src)
	case src.kind == kindMemAbs && dst.name == "hl":
		return e.withImm16([]byte{0x2A}, src)
	case src.kind == kindMemAbs:
		return e.withImm16([]byte{0xED, 0x4B | dst.code<<4}, src)
	case dst.name == "sp" && src.isReg("hl"):
		return bytesOf(0xF9), nil
	case dst.name == "sp" && src.kind == kindIdx:
		return bytesOf(src.prefix, 0xF9), nil
	}
	return nil, nil
}

func ldToIdx(e *encoder, dst, src operand) (*Encoded, *diag.Diagnostic) {
	switch src.kind {
	case kindImm:
		return e.withImm16([]byte{dst.prefix, 0x21}, src)
	case kindMemAbs:
		return e.withImm16([]byte{dst.prefix, 0x2A}, src)
	}
	return nil, nil
}
