package encoder

import (
	"errors"
	"strings"

	"github.com/sarchlab/zax/ast"
	"github.com/sarchlab/zax/diag"
	"github.com/sarchlab/zax/env"
)

type kind int

const (
	kindOther   kind = iota
	kindReg8         // a b c d e h l
	kindIdxHalf      // ixh ixl iyh iyl
	kindReg16        // bc de hl sp
	kindAF           // af
	kindAFAlt        // af'
	kindIdx          // ix iy
	kindSpecial      // i r
	kindCC           // condition code that is not also a register name
	kindImm
	kindMemHL
	kindMemBC
	kindMemDE
	kindMemSP
	kindMemIdx // (ix+d) (iy+d)
	kindMemAbs // (nn)
	kindPortC
	kindPortImm
)

// operand is an instruction operand classified for encoding.
type operand struct {
	kind   kind
	name   string
	code   byte
	prefix byte
	disp   int64
	value  env.Value
	expr   ast.Expr
}

var reg8Codes = map[string]byte{
	"b": 0, "c": 1, "d": 2, "e": 3, "h": 4, "l": 5, "a": 7,
}

var halfRegs = map[string]struct{ prefix, code byte }{
	"ixh": {0xDD, 4}, "ixl": {0xDD, 5},
	"iyh": {0xFD, 4}, "iyl": {0xFD, 5},
}

var rpCodes = map[string]byte{"bc": 0, "de": 1, "hl": 2, "sp": 3}

var rp2Codes = map[string]byte{"bc": 0, "de": 1, "hl": 2, "af": 3}

var ccCodes = map[string]byte{
	"nz": 0, "z": 1, "nc": 2, "c": 3, "po": 4, "pe": 5, "p": 6, "m": 7,
}

var idxPrefix = map[string]byte{"ix": 0xDD, "iy": 0xFD}

// CondCode returns the 3-bit encoding of a condition-code name.
func CondCode(name string) (byte, bool) {
	c, ok := ccCodes[strings.ToLower(name)]
	return c, ok
}

// InvertCond returns the condition that holds exactly when name does not.
func InvertCond(name string) (string, bool) {
	c, ok := CondCode(name)
	if !ok {
		return "", false
	}
	return ccNames[c^1], true
}

var ccNames = [8]string{"nz", "z", "nc", "c", "po", "pe", "p", "m"}

func classify(head string, op ast.Operand, r env.Resolver) (operand, *diag.Diagnostic) {
	switch o := op.(type) {
	case ast.RegOperand:
		return classifyReg(strings.ToLower(o.Name)), nil
	case ast.ImmOperand:
		v, err := env.EvalSymbolic(r, o.Expr)
		if err != nil {
			return operand{}, evalDiag(head, o.Expr, err)
		}
		return operand{kind: kindImm, value: v, expr: o.Expr}, nil
	case ast.MemOperand:
		return classifyMem(head, o.EA, r)
	case ast.PortCOperand:
		return operand{kind: kindPortC}, nil
	case ast.PortImmOperand:
		v, err := env.EvalSymbolic(r, o.Expr)
		if err != nil {
			return operand{}, evalDiag(head, o.Expr, err)
		}
		return operand{kind: kindPortImm, value: v, expr: o.Expr}, nil
	default:
		return operand{kind: kindOther}, nil
	}
}

func classifyReg(name string) operand {
	if c, ok := reg8Codes[name]; ok {
		return operand{kind: kindReg8, name: name, code: c}
	}
	if h, ok := halfRegs[name]; ok {
		return operand{kind: kindIdxHalf, name: name, code: h.code, prefix: h.prefix}
	}
	if c, ok := rpCodes[name]; ok {
		return operand{kind: kindReg16, name: name, code: c}
	}
	if p, ok := idxPrefix[name]; ok {
		return operand{kind: kindIdx, name: name, code: 2, prefix: p}
	}

	switch name {
	case "af":
		return operand{kind: kindAF, name: name, code: 3}
	case "af'":
		return operand{kind: kindAFAlt, name: name}
	case "i", "r":
		return operand{kind: kindSpecial, name: name}
	}

	if c, ok := ccCodes[name]; ok {
		return operand{kind: kindCC, name: name, code: c}
	}

	return operand{kind: kindOther, name: name}
}

func classifyMem(head string, ea ast.EA, r env.Resolver) (operand, *diag.Diagnostic) {
	switch x := ea.(type) {
	case ast.EAName:
		name := strings.ToLower(x.Name)
		switch name {
		case "hl":
			return operand{kind: kindMemHL}, nil
		case "bc":
			return operand{kind: kindMemBC}, nil
		case "de":
			return operand{kind: kindMemDE}, nil
		case "sp":
			return operand{kind: kindMemSP}, nil
		case "c":
			return operand{kind: kindPortC}, nil
		}
		if p, ok := idxPrefix[name]; ok {
			return operand{kind: kindMemIdx, name: name, prefix: p}, nil
		}
		return absMem(head, ast.NameExpr{Name: x.Name}, r)
	case ast.EALiteral:
		return absMem(head, x.Expr, r)
	case ast.EAAdd:
		return offsetMem(head, x.Base, x.Offset, false, r)
	case ast.EASub:
		return offsetMem(head, x.Base, x.Offset, true, r)
	default:
		return operand{kind: kindOther}, nil
	}
}

func offsetMem(
	head string,
	base ast.EA,
	off ast.Expr,
	negate bool,
	r env.Resolver,
) (operand, *diag.Diagnostic) {
	name, ok := base.(ast.EAName)
	if !ok {
		return operand{kind: kindOther}, nil
	}

	lower := strings.ToLower(name.Name)
	if p, isIdx := idxPrefix[lower]; isIdx {
		d, err := env.Eval(r, off)
		if err != nil {
			return operand{}, evalDiag(head, off, err)
		}
		if negate {
			d = -d
		}
		if d < -128 || d > 127 {
			return operand{}, diag.Errorf(diag.Encode, ast.Span{},
				"%s expects a displacement in range -128..127 (got %d).", head, d)
		}
		return operand{kind: kindMemIdx, name: lower, prefix: p, disp: d}, nil
	}

	if _, isReg := rpCodes[lower]; isReg {
		return operand{kind: kindOther}, nil
	}

	op := "+"
	if negate {
		op = "-"
	}
	return absMem(head, ast.BinaryExpr{Op: op, Left: ast.NameExpr{Name: name.Name}, Right: off}, r)
}

func absMem(head string, e ast.Expr, r env.Resolver) (operand, *diag.Diagnostic) {
	v, err := env.EvalSymbolic(r, e)
	if err != nil {
		return operand{}, evalDiag(head, e, err)
	}
	return operand{kind: kindMemAbs, value: v, expr: e}, nil
}

func evalDiag(head string, e ast.Expr, err error) *diag.Diagnostic {
	var unresolved *env.UnresolvedError
	if errors.As(err, &unresolved) {
		return diag.Errorf(diag.Encode, ast.Span{}, "%s: unresolved name %q in %s.",
			head, unresolved.Name, ast.FormatExpr(e))
	}
	return diag.Errorf(diag.Encode, ast.Span{}, "%s: cannot evaluate %s: %v.", head, ast.FormatExpr(e), err)
}

func (o operand) isReg(name string) bool {
	switch o.kind {
	case kindReg8, kindIdxHalf, kindReg16, kindAF, kindAFAlt, kindIdx, kindSpecial:
		return o.name == name
	}
	return false
}

// byteReg reports whether o is a plain 8-bit register or an index half.
func (o operand) byteReg() bool {
	return o.kind == kindReg8 || o.kind == kindIdxHalf
}
