package ast

// Instr builds an instruction with no source position.
func Instr(head string, ops ...Operand) *Instruction {
	return &Instruction{Head: head, Operands: ops}
}

// Reg builds a register (or condition-code) operand.
func Reg(name string) RegOperand {
	return RegOperand{Name: name}
}

// Num builds a numeric immediate.
func Num(v int64) ImmOperand {
	return ImmOperand{Expr: NumberExpr{Val: v}}
}

// Sym builds an immediate naming a symbol or constant.
func Sym(name string) ImmOperand {
	return ImmOperand{Expr: NameExpr{Name: name}}
}

// SymOffset builds name+off (or name-off for negative off).
func SymOffset(name string, off int64) ImmOperand {
	return ImmOperand{Expr: OffsetExpr(name, off)}
}

// OffsetExpr builds the expression name+off, folding a zero offset away.
func OffsetExpr(name string, off int64) Expr {
	switch {
	case off == 0:
		return NameExpr{Name: name}
	case off < 0:
		return BinaryExpr{Op: "-", Left: NameExpr{Name: name}, Right: NumberExpr{Val: -off}}
	default:
		return BinaryExpr{Op: "+", Left: NameExpr{Name: name}, Right: NumberExpr{Val: off}}
	}
}

// Ind builds a register-indirect memory operand such as (hl) or (sp).
func Ind(reg string) MemOperand {
	return MemOperand{EA: EAName{Name: reg}}
}

// IdxMem builds (ix+disp) or (iy+disp).
func IdxMem(reg string, disp int64) MemOperand {
	return MemOperand{EA: EAAdd{Base: EAName{Name: reg}, Offset: NumberExpr{Val: disp}}}
}

// Abs builds an absolute memory operand (name+off).
func Abs(name string, off int64) MemOperand {
	if off == 0 {
		return MemOperand{EA: EAName{Name: name}}
	}
	if off < 0 {
		return MemOperand{EA: EASub{Base: EAName{Name: name}, Offset: NumberExpr{Val: -off}}}
	}
	return MemOperand{EA: EAAdd{Base: EAName{Name: name}, Offset: NumberExpr{Val: off}}}
}

// AbsAddr builds an absolute memory operand at a numeric address.
func AbsAddr(addr int64) MemOperand {
	return MemOperand{EA: EALiteral{Expr: NumberExpr{Val: addr}}}
}

// Var builds a bare effective-address operand naming typed storage.
func Var(name string) EAOperand {
	return EAOperand{EA: EAName{Name: name}}
}
