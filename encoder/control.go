package encoder

import "github.com/sarchlab/zax/diag"

// ccOf accepts a condition-code operand; "c" classifies as a register and
// is reinterpreted as the carry condition here.
func ccOf(o operand) (byte, bool) {
	switch {
	case o.kind == kindCC:
		return o.code, true
	case o.kind == kindReg8 && o.name == "c":
		return ccCodes["c"], true
	}
	return 0, false
}

func encodeRet(e *encoder) (*Encoded, *diag.Diagnostic) {
	switch len(e.ops) {
	case 0:
		return bytesOf(0xC9), nil
	case 1:
		if cc, ok := ccOf(e.ops[0]); ok {
			return bytesOf(0xC0 | cc<<3), nil
		}
	}
	return nil, nil
}

func encodeJp(e *encoder) (*Encoded, *diag.Diagnostic) {
	switch len(e.ops) {
	case 1:
		target := e.ops[0]
		switch {
		case target.kind == kindImm:
			return e.withImm16([]byte{0xC3}, target)
		case target.kind == kindMemHL:
			return bytesOf(0xE9), nil
		case target.kind == kindMemIdx && target.disp == 0:
			return bytesOf(target.prefix, 0xE9), nil
		}
	case 2:
		cc, ok := ccOf(e.ops[0])
		if ok && e.ops[1].kind == kindImm {
			return e.withImm16([]byte{0xC2 | cc<<3}, e.ops[1])
		}
	}
	return nil, nil
}

func encodeCall(e *encoder) (*Encoded, *diag.Diagnostic) {
	switch len(e.ops) {
	case 1:
		if e.ops[0].kind == kindImm {
			return e.withImm16([]byte{0xCD}, e.ops[0])
		}
	case 2:
		cc, ok := ccOf(e.ops[0])
		if ok && e.ops[1].kind == kindImm {
			return e.withImm16([]byte{0xC4 | cc<<3}, e.ops[1])
		}
	}
	return nil, nil
}

func encodeJr(e *encoder) (*Encoded, *diag.Diagnostic) {
	switch len(e.ops) {
	case 1:
		if e.ops[0].kind == kindImm {
			return e.withRel8(0x18, e.ops[0]), nil
		}
	case 2:
		cc, ok := ccOf(e.ops[0])
		if !ok || e.ops[1].kind != kindImm {
			return nil, nil
		}
		if cc > 3 {
			return nil, e.errorf("jr supports only nz, z, nc and c conditions (got %s).", ccNames[cc])
		}
		return e.withRel8(0x20|cc<<3, e.ops[1]), nil
	}
	return nil, nil
}

func encodeDjnz(e *encoder) (*Encoded, *diag.Diagnostic) {
	if len(e.ops) == 1 && e.ops[0].kind == kindImm {
		return e.withRel8(0x10, e.ops[0]), nil
	}
	return nil, nil
}
