package encoder

import "github.com/sarchlab/zax/diag"

func encodeIncDec(e *encoder) (*Encoded, *diag.Diagnostic) {
	if len(e.ops) != 1 {
		return nil, nil
	}

	var dec byte
	if e.head() == "dec" {
		dec = 1
	}

	o := e.ops[0]
	switch o.kind {
	case kindReg8:
		return bytesOf(0x04 | o.code<<3 | dec), nil
	case kindIdxHalf:
		return bytesOf(o.prefix, 0x04|o.code<<3|dec), nil
	case kindMemHL:
		return bytesOf(0x34 | dec), nil
	case kindMemIdx:
		return bytesOf(o.prefix, 0x34|dec, byte(o.disp)), nil
	case kindReg16:
		return bytesOf(0x03 | o.code<<4 | dec<<3), nil
	case kindIdx:
		return bytesOf(o.prefix, 0x23|dec<<3), nil
	}

	return nil, nil
}

func encodePushPop(e *encoder) (*Encoded, *diag.Diagnostic) {
	if len(e.ops) != 1 {
		return nil, nil
	}

	base := byte(0xC5)
	if e.head() == "pop" {
		base = 0xC1
	}

	o := e.ops[0]
	switch {
	case o.kind == kindIdx:
		return bytesOf(o.prefix, base|0x20), nil
	case o.kind == kindReg16 || o.kind == kindAF:
		code, ok := rp2Codes[o.name]
		if ok {
			return bytesOf(base | code<<4), nil
		}
	}

	return nil, nil
}

func encodeEx(e *encoder) (*Encoded, *diag.Diagnostic) {
	if len(e.ops) != 2 {
		return nil, nil
	}

	a, b := e.ops[0], e.ops[1]
	switch {
	case a.isReg("de") && b.isReg("hl"):
		return bytesOf(0xEB), nil
	case a.isReg("af") && b.kind == kindAFAlt:
		return bytesOf(0x08), nil
	case a.kind == kindMemSP && b.isReg("hl"):
		return bytesOf(0xE3), nil
	case a.kind == kindMemSP && b.kind == kindIdx:
		return bytesOf(b.prefix, 0xE3), nil
	}

	return nil, nil
}
