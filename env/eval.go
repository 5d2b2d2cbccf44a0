package env

import (
	"errors"
	"fmt"

	"github.com/sarchlab/zax/ast"
)

// UnresolvedError reports a name that is neither a constant nor an enum
// member. Callers that allow symbolic operands treat it as a symbol
// reference to be fixed up later.
type UnresolvedError struct {
	Name string
}

func (e *UnresolvedError) Error() string {
	return fmt.Sprintf("unresolved name %q", e.Name)
}

// Eval evaluates a constant immediate expression.
func Eval(r Resolver, e ast.Expr) (int64, error) {
	switch x := e.(type) {
	case ast.NumberExpr:
		return x.Val, nil
	case ast.NameExpr:
		return lookupName(r, x.Name)
	case ast.UnaryExpr:
		v, err := Eval(r, x.X)
		if err != nil {
			return 0, err
		}
		return applyUnary(x.Op, v)
	case ast.BinaryExpr:
		l, err := Eval(r, x.Left)
		if err != nil {
			return 0, err
		}
		rv, err := Eval(r, x.Right)
		if err != nil {
			return 0, err
		}
		return applyBinary(x.Op, l, rv)
	case ast.SizeofExpr:
		n, err := SizeOf(r, x.Type)
		return int64(n), err
	case ast.OffsetofExpr:
		return offsetOf(r, x)
	default:
		return 0, fmt.Errorf("unsupported expression %T", e)
	}
}

func lookupName(r Resolver, name string) (int64, error) {
	if r != nil {
		if v, ok := r.Const(name); ok {
			return v, nil
		}
		if v, ok := r.Enum(name); ok {
			return v, nil
		}
	}
	return 0, &UnresolvedError{Name: name}
}

func applyUnary(op string, v int64) (int64, error) {
	switch op {
	case "-":
		return -v, nil
	case "+":
		return v, nil
	case "~":
		return ^v, nil
	default:
		return 0, fmt.Errorf("unsupported unary operator %q", op)
	}
}

func applyBinary(op string, l, r int64) (int64, error) {
	switch op {
	case "+":
		return l + r, nil
	case "-":
		return l - r, nil
	case "*":
		return l * r, nil
	case "/":
		if r == 0 {
			return 0, errors.New("division by zero")
		}
		return l / r, nil
	case "%":
		if r == 0 {
			return 0, errors.New("division by zero")
		}
		return l % r, nil
	case "&":
		return l & r, nil
	case "|":
		return l | r, nil
	case "^":
		return l ^ r, nil
	case "<<":
		return l << uint(r), nil
	case ">>":
		return l >> uint(r), nil
	default:
		return 0, fmt.Errorf("unsupported binary operator %q", op)
	}
}

func offsetOf(r Resolver, x ast.OffsetofExpr) (int64, error) {
	t := ast.TypeRef{Name: x.Type}
	total := 0
	for _, name := range x.Path {
		f, err := FieldOf(r, t, name)
		if err != nil {
			return 0, err
		}
		total += f.Offset
		t = f.Type
	}
	return int64(total), nil
}

// Value is an immediate that is either a plain constant (Sym == "") or a
// symbol address plus a constant addend.
type Value struct {
	Sym    string
	Addend int64
}

// IsConst reports whether v carries no symbol.
func (v Value) IsConst() bool { return v.Sym == "" }

// EvalSymbolic evaluates e, allowing a single unresolved name combined
// with constants as sym, sym+k, sym-k or k+sym.
func EvalSymbolic(r Resolver, e ast.Expr) (Value, error) {
	v, err := Eval(r, e)
	if err == nil {
		return Value{Addend: v}, nil
	}

	var unresolved *UnresolvedError
	if !errors.As(err, &unresolved) {
		return Value{}, err
	}

	switch x := e.(type) {
	case ast.NameExpr:
		return Value{Sym: x.Name}, nil
	case ast.BinaryExpr:
		return symbolicBinary(r, x)
	}

	return Value{}, err
}

func symbolicBinary(r Resolver, x ast.BinaryExpr) (Value, error) {
	l, lerr := EvalSymbolic(r, x.Left)
	if lerr != nil {
		return Value{}, lerr
	}
	rv, rerr := EvalSymbolic(r, x.Right)
	if rerr != nil {
		return Value{}, rerr
	}

	switch {
	case x.Op == "+" && (l.IsConst() || rv.IsConst()):
		sym := l.Sym
		if sym == "" {
			sym = rv.Sym
		}
		return Value{Sym: sym, Addend: l.Addend + rv.Addend}, nil
	case x.Op == "-" && rv.IsConst():
		return Value{Sym: l.Sym, Addend: l.Addend - rv.Addend}, nil
	}

	return Value{}, fmt.Errorf("expression %s is not a symbol plus a constant", ast.FormatExpr(x))
}
