package lowering

import (
	"strings"

	"github.com/sarchlab/zax/addressing"
	"github.com/sarchlab/zax/ast"
	"github.com/sarchlab/zax/diag"
)

var pushable = map[string]bool{
	"af": true, "bc": true, "de": true, "hl": true, "ix": true, "iy": true,
}

// lowerCall pushes the arguments right to left as 2-byte slots, calls the
// callee and drops the slots again. HL survives every argument push.
func (f *fn) lowerCall(x *ast.CallStmt) {
	sig, ok := f.funcs[x.Callee]
	if !ok {
		f.errorf(diag.Call, x.At, "Unknown function %q.", x.Callee)
		return
	}
	if len(x.Args) != len(sig.params) {
		f.errorf(diag.Call, x.At, "Function %q expects %d argument(s) (got %d).",
			x.Callee, len(sig.params), len(x.Args))
		return
	}

	for i := len(x.Args) - 1; i >= 0; i-- {
		if !f.pushArg(x, i) {
			return
		}
	}

	f.emitAt(x.At, ast.Instr("call", ast.Sym(x.Callee)))
	for range x.Args {
		f.emitAt(x.At, ast.Instr("inc", ast.Reg("sp")))
		f.emitAt(x.At, ast.Instr("inc", ast.Reg("sp")))
	}

	Trace("lowered call", "function", f.decl.Name, "callee", x.Callee,
		"args", len(x.Args), "extern", sig.extern)
}

func (f *fn) pushArg(x *ast.CallStmt, i int) bool {
	arg := x.Args[i]

	switch a := arg.(type) {
	case ast.RegOperand:
		r := strings.ToLower(a.Name)
		if pushable[r] {
			f.emitAt(x.At, ast.Instr("push", ast.Reg(r)))
			return true
		}
		if addressing.IsByteReg(r) {
			f.emitAt(x.At,
				ast.Instr("push", ast.Reg("hl")),
				ast.Instr("ld", ast.Reg("l"), ast.Reg(r)),
				ast.Instr("ld", ast.Reg("h"), ast.Num(0)),
				ast.Instr("ex", ast.Ind("sp"), ast.Reg("hl")))
			return true
		}
	case ast.ImmOperand:
		f.emitAt(x.At,
			ast.Instr("push", ast.Reg("hl")),
			ast.Instr("ld", ast.Reg("hl"), a),
			ast.Instr("ex", ast.Ind("sp"), ast.Reg("hl")))
		return true
	case ast.EAOperand, ast.MemOperand:
		if ea := eaOf(arg); addressing.IsStorage(ea, f) {
			return f.pushTyped(x, ea)
		}
	}

	f.errorf(diag.Call, x.At, "Argument %d of call to %q cannot be passed: %s.",
		i+1, x.Callee, ast.FormatOperand(arg, true))
	return false
}

func (f *fn) pushTyped(x *ast.CallStmt, ea ast.EA) bool {
	res, d := addressing.Resolve(ea, f, f.res)
	if d != nil {
		f.report(d.At(x.At))
		return false
	}

	reg := ""
	switch res.Width(f.res) {
	case 1:
		reg = "l"
	case 2:
		reg = "hl"
	default:
		f.errorf(diag.Call, x.At, "Aggregate storage %s cannot be passed by value.", ast.FormatEA(ea))
		return false
	}

	p, d := addressing.Load(reg, res.Address)
	if d != nil {
		f.report(d.At(x.At))
		return false
	}

	f.emitAt(x.At, ast.Instr("push", ast.Reg("hl")))
	f.emitAll(p.Instructions(), x.At)
	if reg == "l" {
		f.emitAt(x.At, ast.Instr("ld", ast.Reg("h"), ast.Num(0)))
	}
	f.emitAt(x.At, ast.Instr("ex", ast.Ind("sp"), ast.Reg("hl")))
	return true
}

func (f *fn) emitAt(at ast.Span, ins ...*ast.Instruction) {
	f.emitAll(ins, at)
}
