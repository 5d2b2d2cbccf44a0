package opexpand

import (
	"fmt"
	"strings"

	"github.com/sarchlab/zax/ast"
	"github.com/sarchlab/zax/env"
)

var (
	reg8Names  = set("a", "b", "c", "d", "e", "h", "l")
	reg16Names = set("bc", "de", "hl", "sp")
	idx16Names = set("ix", "iy")
	ccNames    = set("nz", "z", "nc", "c", "po", "pe", "p", "m")
)

func set(names ...string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

// WidthFunc reports the scalar width in bytes of typed storage named by a
// memory operand, and false when the operand is not typed storage.
type WidthFunc func(ea ast.EA) (int, bool)

type matcher struct {
	res   env.Resolver
	width WidthFunc
}

// matches reports whether the call-site operand op is accepted by p.
func (m matcher) matches(p ast.OpParam, op ast.Operand) bool {
	switch p.Matcher {
	case ast.MatchToken:
		return tokenOf(op) == strings.ToLower(p.Token)
	case ast.MatchReg8:
		return regIn(op, reg8Names)
	case ast.MatchReg16:
		return regIn(op, reg16Names)
	case ast.MatchIdx16:
		return regIn(op, idx16Names)
	case ast.MatchCC:
		return regIn(op, ccNames)
	case ast.MatchImm8:
		return m.immIn(op, -128, 255, false)
	case ast.MatchImm16:
		return m.immIn(op, -32768, 65535, true)
	case ast.MatchMem8:
		return m.memOfWidth(op, 1)
	case ast.MatchMem16:
		return m.memOfWidth(op, 2)
	case ast.MatchEA:
		_, ok := op.(ast.EAOperand)
		return ok
	}
	return false
}

func tokenOf(op ast.Operand) string {
	switch x := op.(type) {
	case ast.RegOperand:
		return strings.ToLower(x.Name)
	case ast.ImmOperand:
		if n, ok := x.Expr.(ast.NameExpr); ok {
			return strings.ToLower(n.Name)
		}
	}
	return ""
}

func regIn(op ast.Operand, names map[string]bool) bool {
	r, ok := op.(ast.RegOperand)
	return ok && names[strings.ToLower(r.Name)]
}

func (m matcher) immIn(op ast.Operand, lo, hi int64, symbolic bool) bool {
	imm, ok := op.(ast.ImmOperand)
	if !ok {
		return false
	}

	v, err := env.EvalSymbolic(m.res, imm.Expr)
	if err != nil {
		return false
	}
	if !v.IsConst() {
		return symbolic
	}
	return v.Addend >= lo && v.Addend <= hi
}

func (m matcher) memOfWidth(op ast.Operand, width int) bool {
	mem, ok := op.(ast.MemOperand)
	if !ok {
		return false
	}
	if m.width == nil {
		return true
	}
	if w, typed := m.width(mem.EA); typed {
		return w == width
	}
	return true
}

// narrower reports whether matcher kind a accepts a strict subset of what b
// accepts. Kinds not related here are incomparable.
func narrower(a, b ast.MatcherKind) bool {
	if a == b {
		return false
	}
	switch {
	case a == ast.MatchToken:
		return true
	case a == ast.MatchImm8 && b == ast.MatchImm16:
		return true
	case b == ast.MatchEA:
		switch a {
		case ast.MatchReg8, ast.MatchReg16, ast.MatchIdx16, ast.MatchCC,
			ast.MatchMem8, ast.MatchMem16:
			return true
		}
	}
	return false
}

// dominates reports whether overload a is at least as specific as b in
// every parameter and strictly more specific in at least one.
func dominates(a, b *ast.OpDecl) bool {
	strict := false
	for i := range a.Params {
		ka, kb := a.Params[i].Matcher, b.Params[i].Matcher
		switch {
		case ka == kb:
		case narrower(ka, kb):
			strict = true
		default:
			return false
		}
	}
	return strict
}

// Signature renders an overload as name(p: kind, ...); token parameters
// render as their literal token.
func Signature(op *ast.OpDecl) string {
	parts := make([]string, len(op.Params))
	for i, p := range op.Params {
		if p.Matcher == ast.MatchToken {
			parts[i] = strings.ToLower(p.Token)
			continue
		}
		parts[i] = fmt.Sprintf("%s: %s", p.Name, p.Matcher)
	}
	return fmt.Sprintf("%s(%s)", op.Name, strings.Join(parts, ", "))
}

func signatures(ops []*ast.OpDecl) string {
	sigs := make([]string, len(ops))
	for i, op := range ops {
		sigs[i] = Signature(op)
	}
	return strings.Join(sigs, "; ")
}

func operandSummary(ops []ast.Operand) string {
	parts := make([]string, len(ops))
	for i, op := range ops {
		parts[i] = ast.FormatOperand(op, false)
	}
	return strings.Join(parts, ", ")
}
