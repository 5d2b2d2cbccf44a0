package ast

import (
	"fmt"
	"strconv"
	"strings"
)

var wideRegs = map[string]bool{
	"af": true, "af'": true, "bc": true, "de": true, "hl": true,
	"sp": true, "ix": true, "iy": true,
}

var wideHeads = map[string]bool{
	"jp": true, "jr": true, "call": true, "djnz": true,
}

// Format renders an instruction in canonical lower-case form, e.g.
// "ld hl,$0002" or "ld a,(ix-4)". Rendering is deterministic and is used
// for traces and golden tests.
func Format(i *Instruction) string {
	if len(i.Operands) == 0 {
		return i.Head
	}

	wide := wideHeads[i.Head]
	for _, op := range i.Operands {
		if r, ok := op.(RegOperand); ok && wideRegs[r.Name] {
			wide = true
		}
	}

	parts := make([]string, len(i.Operands))
	for k, op := range i.Operands {
		parts[k] = FormatOperand(op, wide)
	}

	return i.Head + " " + strings.Join(parts, ",")
}

// FormatOperand renders one operand; wide selects four-digit hex for a
// bare numeric immediate.
func FormatOperand(op Operand, wide bool) string {
	switch o := op.(type) {
	case RegOperand:
		return o.Name
	case ImmOperand:
		if n, ok := o.Expr.(NumberExpr); ok {
			return hexNum(n.Val, wide)
		}
		return FormatExpr(o.Expr)
	case MemOperand:
		return "(" + FormatEA(o.EA) + ")"
	case EAOperand:
		return FormatEA(o.EA)
	case PortCOperand:
		return "(c)"
	case PortImmOperand:
		if n, ok := o.Expr.(NumberExpr); ok {
			return "(" + hexNum(n.Val, false) + ")"
		}
		return "(" + FormatExpr(o.Expr) + ")"
	default:
		return fmt.Sprintf("<%T>", op)
	}
}

func hexNum(v int64, wide bool) string {
	if v < 0 {
		return strconv.FormatInt(v, 10)
	}
	if wide || v > 0xFF {
		return fmt.Sprintf("$%04X", v)
	}
	return fmt.Sprintf("$%02X", v)
}

// FormatExpr renders an immediate expression.
func FormatExpr(e Expr) string {
	switch x := e.(type) {
	case NumberExpr:
		return strconv.FormatInt(x.Val, 10)
	case NameExpr:
		return x.Name
	case UnaryExpr:
		return x.Op + FormatExpr(x.X)
	case BinaryExpr:
		return FormatExpr(x.Left) + x.Op + formatRight(x.Right)
	case SizeofExpr:
		return "sizeof(" + x.Type.String() + ")"
	case OffsetofExpr:
		return "offsetof(" + x.Type + "," + strings.Join(x.Path, ".") + ")"
	default:
		return fmt.Sprintf("<%T>", e)
	}
}

func formatRight(e Expr) string {
	if b, ok := e.(BinaryExpr); ok {
		return "(" + FormatExpr(b) + ")"
	}
	return FormatExpr(e)
}

// FormatEA renders an effective-address expression.
func FormatEA(ea EA) string {
	switch x := ea.(type) {
	case EAName:
		return x.Name
	case EALiteral:
		if n, ok := x.Expr.(NumberExpr); ok {
			return hexNum(n.Val, true)
		}
		return FormatExpr(x.Expr)
	case EAField:
		return FormatEA(x.Base) + "." + x.Field
	case EAIndex:
		return FormatEA(x.Base) + "[" + formatIndex(x.Index) + "]"
	case EAAdd:
		if n, ok := x.Offset.(NumberExpr); ok && n.Val < 0 {
			return FormatEA(x.Base) + "-" + strconv.FormatInt(-n.Val, 10)
		}
		return FormatEA(x.Base) + "+" + formatRight(x.Offset)
	case EASub:
		return FormatEA(x.Base) + "-" + formatRight(x.Offset)
	default:
		return fmt.Sprintf("<%T>", ea)
	}
}

func formatIndex(ix IndexExpr) string {
	switch x := ix.(type) {
	case IndexImm:
		return FormatExpr(x.Expr)
	case IndexReg8:
		return x.Reg
	case IndexReg16:
		return x.Reg
	case IndexMemHL:
		return "(hl)"
	case IndexMemIdx:
		return "(" + FormatEA(EAAdd{Base: EAName{Name: x.Reg}, Offset: x.Disp}) + ")"
	case IndexEA:
		return FormatEA(x.EA)
	default:
		return fmt.Sprintf("<%T>", ix)
	}
}
