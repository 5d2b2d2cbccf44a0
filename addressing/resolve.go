package addressing

import (
	"strings"

	"github.com/sarchlab/zax/ast"
	"github.com/sarchlab/zax/diag"
	"github.com/sarchlab/zax/env"
)

// StorageKind says where a named piece of typed storage lives.
type StorageKind int

const (
	// StorageGlobal is module-level data or var storage.
	StorageGlobal StorageKind = iota
	// StorageFrame is a parameter or local living in the frame.
	StorageFrame
	// StorageRef is a frame slot holding the address of the storage.
	StorageRef
)

// Storage describes one named storage location.
type Storage struct {
	Kind StorageKind
	Sym  string
	Disp int64
	Type ast.TypeRef
}

// Scope looks up typed storage by name.
type Scope interface {
	Lookup(name string) (Storage, bool)
}

// Resolved is a typed effective address ready for Load or Store.
type Resolved struct {
	Address Address
	Type    ast.TypeRef
}

// Width returns the byte width of a scalar access to the resolved storage,
// or 0 when the storage is an aggregate.
func (r Resolved) Width(res env.Resolver) int {
	if r.Type.IsArray() {
		return 0
	}
	n, err := env.SizeOf(res, r.Type)
	if err != nil || n > 2 {
		return 0
	}
	return n
}

type partial struct {
	base  Base
	typ   ast.TypeRef
	index *Index
	scale int
	post  int64
}

func (p *partial) addConst(k int64) {
	if p.index == nil {
		p.base.Offset += k
		return
	}
	p.post += k
}

// IsStorage reports whether ea names typed storage visible through scope,
// as opposed to a register or a plain address.
func IsStorage(ea ast.EA, scope Scope) bool {
	switch x := ea.(type) {
	case ast.EAName:
		_, ok := scope.Lookup(x.Name)
		return ok
	case ast.EAField:
		return IsStorage(x.Base, scope)
	case ast.EAIndex:
		return IsStorage(x.Base, scope)
	case ast.EAAdd:
		return IsStorage(x.Base, scope)
	case ast.EASub:
		return IsStorage(x.Base, scope)
	}
	return false
}

// Resolve classifies a typed effective address into a base, a constant
// offset and at most one runtime index, then builds its Address. Constant
// parts are folded so that a scalar without a runtime index is reached
// directly.
func Resolve(ea ast.EA, scope Scope, r env.Resolver) (Resolved, *diag.Diagnostic) {
	p, d := walk(ea, scope, r)
	if d != nil {
		return Resolved{}, d
	}

	index := Index{}
	if p.index != nil {
		index = *p.index
	}
	scale := p.scale
	if scale == 0 {
		scale = 1
	}

	addr, d := Build(p.base, index, scale)
	if d != nil {
		return Resolved{}, d
	}

	if p.post != 0 {
		addr.Steps = append(addr.Steps, ldImm("de", p.post), add("hl", "de"))
	}

	return Resolved{Address: addr, Type: p.typ}, nil
}

func walk(ea ast.EA, scope Scope, r env.Resolver) (*partial, *diag.Diagnostic) {
	switch x := ea.(type) {
	case ast.EAName:
		return walkName(x.Name, scope)
	case ast.EAField:
		p, d := walk(x.Base, scope, r)
		if d != nil {
			return nil, d
		}
		f, err := env.FieldOf(r, p.typ, x.Field)
		if err != nil {
			return nil, addressError("Cannot select %s: %v.", ast.FormatEA(x), err)
		}
		p.addConst(int64(f.Offset))
		p.typ = f.Type
		return p, nil
	case ast.EAIndex:
		return walkIndex(x, scope, r)
	case ast.EAAdd, ast.EASub:
		return walkOffset(x, scope, r)
	}
	return nil, addressError("Address %s does not name typed storage.", ast.FormatEA(ea))
}

func walkName(name string, scope Scope) (*partial, *diag.Diagnostic) {
	s, ok := scope.Lookup(name)
	if !ok {
		return nil, addressError("Unknown storage %q.", name)
	}

	switch s.Kind {
	case StorageGlobal:
		return &partial{base: Base{Kind: BaseGlobal, Sym: s.Sym}, typ: s.Type}, nil
	case StorageFrame:
		return &partial{base: Base{Kind: BaseFrame, Disp: s.Disp}, typ: s.Type}, nil
	default:
		t := s.Type
		t.Ref = false
		return &partial{base: Base{Kind: BaseFvar, Disp: s.Disp}, typ: t}, nil
	}
}

func walkOffset(ea ast.EA, scope Scope, r env.Resolver) (*partial, *diag.Diagnostic) {
	var (
		base ast.EA
		off  ast.Expr
		sign int64 = 1
	)
	switch x := ea.(type) {
	case ast.EAAdd:
		base, off = x.Base, x.Offset
	case ast.EASub:
		base, off, sign = x.Base, x.Offset, -1
	}

	p, d := walk(base, scope, r)
	if d != nil {
		return nil, d
	}

	v, err := env.Eval(r, off)
	if err != nil {
		return nil, addressError("Offset in %s must be constant: %v.", ast.FormatEA(ea), err)
	}
	p.addConst(sign * v)
	return p, nil
}

func walkIndex(x ast.EAIndex, scope Scope, r env.Resolver) (*partial, *diag.Diagnostic) {
	p, d := walk(x.Base, scope, r)
	if d != nil {
		return nil, d
	}

	if !p.typ.IsArray() {
		return nil, addressError("Cannot index %s: type %s is not an array.", ast.FormatEA(x.Base), p.typ)
	}

	elem := p.typ.Elem()
	size, err := env.SizeOf(r, elem)
	if err != nil {
		return nil, addressError("Cannot index %s: %v.", ast.FormatEA(x.Base), err)
	}

	if imm, ok := x.Index.(ast.IndexImm); ok {
		v, err := env.Eval(r, imm.Expr)
		if err != nil {
			return nil, addressError("Index in %s must be constant: %v.", ast.FormatEA(x), err)
		}
		if v < 0 || v >= int64(p.typ.Len) {
			return nil, addressError("Index %d out of range for %s.", v, p.typ)
		}
		p.addConst(v * int64(size))
		p.typ = elem
		return p, nil
	}

	if p.index != nil {
		return nil, addressError("Address %s uses more than one runtime index.", ast.FormatEA(x))
	}

	idx, d := runtimeIndex(x.Index, scope, r)
	if d != nil {
		return nil, d
	}

	p.index = &idx
	p.scale = size
	p.typ = elem
	return p, nil
}

func runtimeIndex(ix ast.IndexExpr, scope Scope, r env.Resolver) (Index, *diag.Diagnostic) {
	switch x := ix.(type) {
	case ast.IndexReg8:
		return Index{Kind: IndexReg8, Reg: strings.ToLower(x.Reg)}, nil
	case ast.IndexReg16:
		return Index{Kind: IndexReg16, Reg: strings.ToLower(x.Reg)}, nil
	case ast.IndexMemHL:
		return Index{Kind: IndexMemHL}, nil
	case ast.IndexMemIdx:
		v, err := env.Eval(r, x.Disp)
		if err != nil || !fitsDisp(v) {
			return Index{}, addressError("Invalid index displacement in (%s+...).", x.Reg)
		}
		return Index{Kind: IndexMemIdx, Reg: strings.ToLower(x.Reg), Disp: v}, nil
	case ast.IndexEA:
		return storedIndex(x.EA, scope, r)
	}
	return Index{}, addressError("Unsupported index expression.")
}

// storedIndex uses the scalar stored at a nested typed address as the index.
func storedIndex(ea ast.EA, scope Scope, r env.Resolver) (Index, *diag.Diagnostic) {
	res, d := Resolve(ea, scope, r)
	if d != nil {
		return Index{}, d
	}

	width := res.Width(r)
	if width == 0 {
		return Index{}, addressError("Index %s must be a byte or word scalar.", ast.FormatEA(ea))
	}
	isByte := width == 1

	a := res.Address
	switch a.Mode {
	case AddrAbs:
		if a.Sym != "" {
			return Index{Kind: IndexGlobal, Sym: a.Sym, Offset: a.Offset, Byte: isByte}, nil
		}
	case AddrFrame:
		if isByte || fitsDisp(a.Disp+1) {
			return Index{Kind: IndexFvar, Disp: a.Disp, Byte: isByte}, nil
		}
	}

	return Index{Kind: IndexNested, Nested: a, Byte: isByte}, nil
}
