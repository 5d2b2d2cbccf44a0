package opexpand

import (
	"strings"

	"github.com/sarchlab/zax/ast"
)

// instance substitutes call-site operands and renamed labels into one copy
// of an op body.
type instance struct {
	bound  map[string]ast.Operand
	labels map[string]string
}

func newInstance(op *ast.OpDecl, args []ast.Operand, prefix string) *instance {
	in := &instance{
		bound:  make(map[string]ast.Operand),
		labels: make(map[string]string),
	}

	for i, p := range op.Params {
		if p.Matcher == ast.MatchToken {
			continue
		}
		in.bound[strings.ToLower(p.Name)] = args[i]
	}

	for _, s := range op.Body {
		if l, ok := s.(*ast.LabelStmt); ok {
			in.labels[l.Name] = prefix + "_" + l.Name
		}
	}

	return in
}

func (in *instance) lookup(name string) (ast.Operand, bool) {
	op, ok := in.bound[strings.ToLower(name)]
	return op, ok
}

func (in *instance) stmt(s ast.Stmt) ast.Stmt {
	switch x := s.(type) {
	case *ast.Instruction:
		return in.instruction(x)
	case *ast.LabelStmt:
		c := *x
		c.Name = in.labelName(x.Name)
		return &c
	case *ast.IfStmt:
		c := *x
		c.Cond = in.cond(x.Cond)
		return &c
	case *ast.WhileStmt:
		c := *x
		c.Cond = in.cond(x.Cond)
		return &c
	case *ast.UntilStmt:
		c := *x
		c.Cond = in.cond(x.Cond)
		return &c
	case *ast.SelectStmt:
		c := *x
		if x.Selector != nil {
			c.Selector = in.operand(x.Selector)
		}
		return &c
	case *ast.CaseStmt:
		c := *x
		c.Values = make([]ast.Expr, len(x.Values))
		for i, v := range x.Values {
			c.Values[i] = in.expr(v)
		}
		return &c
	case *ast.CallStmt:
		c := *x
		c.Args = in.operands(x.Args)
		return &c
	}
	return s
}

func (in *instance) instruction(x *ast.Instruction) *ast.Instruction {
	return &ast.Instruction{
		Head:     x.Head,
		Operands: in.operands(x.Operands),
		At:       x.At,
	}
}

func (in *instance) operands(ops []ast.Operand) []ast.Operand {
	out := make([]ast.Operand, len(ops))
	for i, op := range ops {
		out[i] = in.operand(op)
	}
	return out
}

func (in *instance) cond(c string) string {
	if r, ok := in.lookup(c); ok {
		if reg, ok := r.(ast.RegOperand); ok {
			return reg.Name
		}
	}
	return c
}

func (in *instance) labelName(name string) string {
	if renamed, ok := in.labels[name]; ok {
		return renamed
	}
	return name
}

func (in *instance) operand(op ast.Operand) ast.Operand {
	switch x := op.(type) {
	case ast.RegOperand:
		if b, ok := in.lookup(x.Name); ok {
			return b
		}
		return x
	case ast.ImmOperand:
		if n, ok := x.Expr.(ast.NameExpr); ok {
			if b, ok := in.lookup(n.Name); ok {
				return b
			}
		}
		return ast.ImmOperand{Expr: in.expr(x.Expr), At: x.At}
	case ast.MemOperand:
		return ast.MemOperand{EA: in.ea(x.EA), At: x.At}
	case ast.EAOperand:
		if n, ok := x.EA.(ast.EAName); ok {
			if b, ok := in.lookup(n.Name); ok {
				return b
			}
		}
		return ast.EAOperand{EA: in.ea(x.EA), At: x.At}
	case ast.PortImmOperand:
		return ast.PortImmOperand{Expr: in.expr(x.Expr), At: x.At}
	}
	return op
}

func (in *instance) expr(e ast.Expr) ast.Expr {
	switch x := e.(type) {
	case ast.NameExpr:
		if b, ok := in.lookup(x.Name); ok {
			if imm, ok := b.(ast.ImmOperand); ok {
				return imm.Expr
			}
			return x
		}
		return ast.NameExpr{Name: in.labelName(x.Name)}
	case ast.UnaryExpr:
		return ast.UnaryExpr{Op: x.Op, X: in.expr(x.X)}
	case ast.BinaryExpr:
		return ast.BinaryExpr{Op: x.Op, Left: in.expr(x.Left), Right: in.expr(x.Right)}
	}
	return e
}

// eaOf turns a bound operand into the EA it denotes inside parentheses.
func eaOf(op ast.Operand) (ast.EA, bool) {
	switch x := op.(type) {
	case ast.RegOperand:
		return ast.EAName{Name: x.Name}, true
	case ast.ImmOperand:
		return ast.EALiteral{Expr: x.Expr}, true
	case ast.MemOperand:
		return x.EA, true
	case ast.EAOperand:
		return x.EA, true
	}
	return nil, false
}

func (in *instance) ea(e ast.EA) ast.EA {
	switch x := e.(type) {
	case ast.EAName:
		if b, ok := in.lookup(x.Name); ok {
			if ea, ok := eaOf(b); ok {
				return ea
			}
		}
		return ast.EAName{Name: in.labelName(x.Name)}
	case ast.EALiteral:
		return ast.EALiteral{Expr: in.expr(x.Expr)}
	case ast.EAField:
		return ast.EAField{Base: in.ea(x.Base), Field: x.Field}
	case ast.EAIndex:
		return ast.EAIndex{Base: in.ea(x.Base), Index: in.index(x.Index)}
	case ast.EAAdd:
		return ast.EAAdd{Base: in.ea(x.Base), Offset: in.expr(x.Offset)}
	case ast.EASub:
		return ast.EASub{Base: in.ea(x.Base), Offset: in.expr(x.Offset)}
	}
	return e
}

func (in *instance) index(ix ast.IndexExpr) ast.IndexExpr {
	switch x := ix.(type) {
	case ast.IndexImm:
		return ast.IndexImm{Expr: in.expr(x.Expr)}
	case ast.IndexReg8:
		if b, ok := in.lookup(x.Reg); ok {
			if r, ok := b.(ast.RegOperand); ok {
				return ast.IndexReg8{Reg: r.Name}
			}
		}
	case ast.IndexReg16:
		if b, ok := in.lookup(x.Reg); ok {
			if r, ok := b.(ast.RegOperand); ok {
				return ast.IndexReg16{Reg: r.Name}
			}
		}
	case ast.IndexMemIdx:
		return ast.IndexMemIdx{Reg: x.Reg, Disp: in.expr(x.Disp)}
	case ast.IndexEA:
		return ast.IndexEA{EA: in.ea(x.EA)}
	}
	return ix
}
