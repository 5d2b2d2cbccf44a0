package lowering

import (
	"strings"

	"github.com/sarchlab/zax/addressing"
	"github.com/sarchlab/zax/ast"
	"github.com/sarchlab/zax/diag"
)

func (f *fn) lowerInstr(in *ast.Instruction) {
	head := strings.ToLower(in.Head)

	if f.ops.IsOp(head) {
		x, issues := f.ops.Expand(in)
		for _, d := range issues {
			f.report(d)
		}
		if x == nil {
			return
		}
		Trace("expanded op", "name", x.Name, "signature", x.Signature,
			"function", f.decl.Name, "instructions", len(x.Instructions()))
		f.lowerExpansion(x)
		return
	}

	switch head {
	case "ret", "reti", "retn":
		f.lowerRet(in)
		return
	}

	if f.typedOperand(in) >= 0 {
		f.lowerTyped(in)
		return
	}

	f.emit(in)
}

// typedOperand returns the position of the first operand naming typed
// storage, or -1.
func (f *fn) typedOperand(in *ast.Instruction) int {
	for i, op := range in.Operands {
		switch x := op.(type) {
		case ast.EAOperand:
			return i
		case ast.MemOperand:
			if addressing.IsStorage(x.EA, f) {
				return i
			}
		}
	}
	return -1
}

func eaOf(op ast.Operand) ast.EA {
	switch x := op.(type) {
	case ast.EAOperand:
		return x.EA
	case ast.MemOperand:
		return x.EA
	}
	return nil
}

// lowerTyped rewrites ld between a register and typed storage into an
// accessor pipeline.
func (f *fn) lowerTyped(in *ast.Instruction) {
	pos := f.typedOperand(in)
	if strings.ToLower(in.Head) != "ld" || len(in.Operands) != 2 {
		f.errorf(diag.Address, in.At,
			"Typed storage operands are only supported by ld: %s.", ast.Format(in))
		return
	}

	other, ok := in.Operands[1-pos].(ast.RegOperand)
	if !ok {
		f.errorf(diag.Address, in.At,
			"ld with typed storage needs a register on the other side: %s.", ast.Format(in))
		return
	}
	reg := strings.ToLower(other.Name)

	res, d := addressing.Resolve(eaOf(in.Operands[pos]), f, f.res)
	if d != nil {
		f.report(d.At(in.At))
		return
	}

	want := res.Width(f.res)
	if want == 0 {
		f.errorf(diag.Address, in.At,
			"Cannot move aggregate storage %s of type %s through a register.",
			ast.FormatEA(eaOf(in.Operands[pos])), res.Type)
		return
	}
	got := registerWidth(reg)
	if got == 0 {
		f.errorf(diag.Address, in.At, "Register %s cannot access typed storage.", reg)
		return
	}
	if got != want {
		f.errorf(diag.Address, in.At,
			"Width mismatch: %s is %d byte(s) but %s is %d byte(s).",
			ast.FormatEA(eaOf(in.Operands[pos])), want, reg, got)
		return
	}

	var p addressing.Pipeline
	if pos == 1 {
		p, d = addressing.Load(reg, res.Address)
	} else {
		p, d = addressing.Store(res.Address, reg)
	}
	if d != nil {
		f.report(d.At(in.At))
		return
	}

	Trace("typed access", "function", f.decl.Name, "instr", ast.Format(in), "steps", len(p))
	f.emitAll(p.Instructions(), in.At)
}

func registerWidth(reg string) int {
	switch {
	case addressing.IsByteReg(reg):
		return 1
	case addressing.IsWordReg(reg):
		return 2
	}
	return 0
}
