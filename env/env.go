// Package env provides the read-only compile environment: constant and
// enum values plus layout-resolved record and union types. The backend
// only ever reads from it.
package env

import (
	"fmt"
	"sort"

	"github.com/sarchlab/zax/ast"
)

// Resolver is the lookup surface the backend needs from the environment.
type Resolver interface {
	// Const returns the value of a named constant.
	Const(name string) (int64, bool)

	// Enum returns the value of a qualified enum member ("Enum.Member").
	Enum(name string) (int64, bool)

	// Type returns the layout of a named record or union.
	Type(name string) (*Layout, bool)
}

// LayoutKind distinguishes records from unions.
type LayoutKind int

// Layout kinds.
const (
	Record LayoutKind = iota
	Union
)

// Field is one member of a record or union with its resolved offset.
type Field struct {
	Name   string
	Offset int
	Type   ast.TypeRef
}

// Layout is a layout-resolved record or union declaration.
type Layout struct {
	Name   string
	Kind   LayoutKind
	Size   int
	Fields []Field
}

// Field returns the named member.
func (l *Layout) Field(name string) (Field, bool) {
	for _, f := range l.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// CompileEnv is the default Resolver backed by maps. It is filled once by
// the front end and then shared read-only.
type CompileEnv struct {
	consts map[string]int64
	enums  map[string]int64
	types  map[string]*Layout
}

// New creates an empty environment.
func New() *CompileEnv {
	return &CompileEnv{
		consts: make(map[string]int64),
		enums:  make(map[string]int64),
		types:  make(map[string]*Layout),
	}
}

// DefineConst records a constant.
func (e *CompileEnv) DefineConst(name string, v int64) *CompileEnv {
	e.consts[name] = v
	return e
}

// DefineEnum records a qualified enum member.
func (e *CompileEnv) DefineEnum(name string, v int64) *CompileEnv {
	e.enums[name] = v
	return e
}

// DefineType records a layout.
func (e *CompileEnv) DefineType(l *Layout) *CompileEnv {
	e.types[l.Name] = l
	return e
}

// Const implements Resolver.
func (e *CompileEnv) Const(name string) (int64, bool) {
	v, ok := e.consts[name]
	return v, ok
}

// Enum implements Resolver.
func (e *CompileEnv) Enum(name string) (int64, bool) {
	v, ok := e.enums[name]
	return v, ok
}

// Named is a constant or enum member with its value.
type Named struct {
	Name  string
	Value int64
}

// Constants returns every constant and enum member sorted by name.
func (e *CompileEnv) Constants() []Named {
	out := make([]Named, 0, len(e.consts)+len(e.enums))
	for n, v := range e.consts {
		out = append(out, Named{Name: n, Value: v})
	}
	for n, v := range e.enums {
		out = append(out, Named{Name: n, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Type implements Resolver.
func (e *CompileEnv) Type(name string) (*Layout, bool) {
	l, ok := e.types[name]
	return l, ok
}

// SizeOf returns the byte size of t.
func SizeOf(r Resolver, t ast.TypeRef) (int, error) {
	if t.Ref {
		return 2, nil
	}

	elem, err := scalarOrLayoutSize(r, t.Name)
	if err != nil {
		return 0, err
	}

	if t.Len > 0 {
		return elem * t.Len, nil
	}

	return elem, nil
}

func scalarOrLayoutSize(r Resolver, name string) (int, error) {
	switch name {
	case "byte":
		return 1, nil
	case "word", "addr", "ptr":
		return 2, nil
	}

	if r != nil {
		if l, ok := r.Type(name); ok {
			return l.Size, nil
		}
	}

	return 0, fmt.Errorf("unknown type %q", name)
}

// FieldOf resolves a field of the record or union described by t.
func FieldOf(r Resolver, t ast.TypeRef, name string) (Field, error) {
	if t.Len > 0 {
		return Field{}, fmt.Errorf("cannot select field %q of array type %s", name, t)
	}

	var l *Layout
	if r != nil {
		l, _ = r.Type(t.Name)
	}
	if l == nil {
		return Field{}, fmt.Errorf("type %s has no fields", t)
	}

	f, ok := l.Field(name)
	if !ok {
		return Field{}, fmt.Errorf("type %s has no field %q", t.Name, name)
	}

	return f, nil
}
