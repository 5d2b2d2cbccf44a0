package encoder

import (
	"github.com/sarchlab/zax/ast"
	"github.com/sarchlab/zax/diag"
)

var rotateOps = map[string]byte{
	"rlc": 0, "rrc": 1, "rl": 2, "rr": 3, "sla": 4, "sra": 5, "sll": 6, "srl": 7,
}

var bitBases = map[string]byte{"bit": 0x40, "res": 0x80, "set": 0xC0}

func encodeRotate(e *encoder) (*Encoded, *diag.Diagnostic) {
	if len(e.ops) != 1 {
		return nil, nil
	}
	return cbForm(rotateOps[e.head()]<<3, e.ops[0]), nil
}

func encodeBit(e *encoder) (*Encoded, *diag.Diagnostic) {
	if len(e.ops) != 2 || e.ops[0].kind != kindImm {
		return nil, nil
	}

	idx := e.ops[0]
	if !idx.value.IsConst() {
		return nil, e.errorf("%s expects a constant bit index (got %s).", e.head(), ast.FormatExpr(idx.expr))
	}

	b := idx.value.Addend
	if b < 0 || b > 7 {
		return nil, e.errorf("%s expects a bit index in range 0..7 (got %d).", e.head(), b)
	}

	return cbForm(bitBases[e.head()]|byte(b)<<3, e.ops[1]), nil
}

// cbForm builds a CB-prefixed operation on a register, (hl) or (ix+d). The
// indexed form places the displacement before the final opcode byte.
func cbForm(op byte, target operand) *Encoded {
	switch target.kind {
	case kindReg8:
		return bytesOf(0xCB, op|target.code)
	case kindMemHL:
		return bytesOf(0xCB, op|6)
	case kindMemIdx:
		return bytesOf(target.prefix, 0xCB, byte(target.disp), op|6)
	}
	return nil
}
