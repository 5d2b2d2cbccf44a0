// Package lowering turns the statements of a module into address-agnostic
// chunks of machine code.
//
// Each function is lowered on its own: a prologue and epilogue are built
// from its frame and preserved registers, structured control statements are
// lowered to compare-and-branch sequences, op calls are expanded in place,
// typed storage accesses are rewritten through the addressing package, and
// the stack depth is verified along the way. Data and var items become
// chunks of their own. References stay symbolic; the linker resolves them.
package lowering

import (
	"log/slog"

	"github.com/sarchlab/zax/addressing"
	"github.com/sarchlab/zax/ast"
	"github.com/sarchlab/zax/diag"
	"github.com/sarchlab/zax/env"
	"github.com/sarchlab/zax/linker"
	"github.com/sarchlab/zax/opexpand"
	"github.com/sarchlab/zax/util"
	"github.com/sarchlab/zax/verify"
)

// Extern is a function living at a fixed address outside the module.
type Extern struct {
	Name    string
	Address int
	At      ast.Span
}

// Program is the result of the first pass over a module.
type Program struct {
	Chunks  []*linker.Chunk
	Externs []Extern
	Stack   *verify.Report
}

type signature struct {
	name   string
	params []ast.Param
	extern bool
}

// Lowerer lowers one module. It is not safe for concurrent use.
type Lowerer struct {
	res     env.Resolver
	diags   *diag.List
	ops     *opexpand.Engine
	funcs   map[string]*signature
	globals map[string]addressing.Storage
	labels  labelGens
	onChunk func(*linker.Chunk)
	current *fn
}

// New creates a lowerer reporting into diags.
func New(r env.Resolver, diags *diag.List) *Lowerer {
	next := util.MakeIncreasingGen(0)

	l := &Lowerer{
		res:     r,
		diags:   diags,
		funcs:   make(map[string]*signature),
		globals: make(map[string]addressing.Storage),
		labels:  makeLabelGens(next),
	}
	l.ops = opexpand.NewEngine(r).WithCounter(next).WithStorageWidth(l.storageWidth)

	return l
}

// OnChunk registers a callback invoked after each chunk is lowered.
func (l *Lowerer) OnChunk(f func(*linker.Chunk)) *Lowerer {
	l.onChunk = f
	return l
}

// LowerModule lowers every item of m in order.
func (l *Lowerer) LowerModule(m *ast.Module) *Program {
	p := &Program{Stack: &verify.Report{}}
	l.declare(m, p)

	pl := newPlacement(l)
	for _, item := range m.Items {
		var c *linker.Chunk

		switch x := item.(type) {
		case *ast.SectionDirective:
			pl.apply(x)
		case *ast.FuncDecl:
			c = l.lowerFunc(x, p.Stack)
		case *ast.DataDecl:
			c = l.lowerData(x)
		case *ast.VarDecl:
			c = l.lowerVar(x)
		}

		if c == nil {
			continue
		}

		pl.place(c)
		p.Chunks = append(p.Chunks, c)
		if l.onChunk != nil {
			l.onChunk(c)
		}
	}

	slog.Debug("lowered module", "name", m.Name, "chunks", len(p.Chunks),
		"diagnostics", l.diags.Len())

	return p
}

func (l *Lowerer) declare(m *ast.Module, p *Program) {
	for _, item := range m.Items {
		switch x := item.(type) {
		case *ast.OpDecl:
			l.ops.Declare(x)
		case *ast.FuncDecl:
			l.declareFunc(x.Name, &signature{name: x.Name, params: x.Params}, x.At)
		case *ast.ExternFunc:
			addr, err := env.Eval(l.res, x.Address)
			if err != nil || addr < 0 || addr > 0xFFFF {
				l.diags.Add(diag.Errorf(diag.Call, x.At,
					"Extern function %q needs a constant address in 0..65535.", x.Name))
				continue
			}
			l.declareFunc(x.Name, &signature{name: x.Name, params: x.Params, extern: true}, x.At)
			p.Externs = append(p.Externs, Extern{Name: x.Name, Address: int(addr), At: x.At})
		case *ast.DataDecl:
			l.declareGlobal(x.Name, x.Type, x.At)
		case *ast.VarDecl:
			l.declareGlobal(x.Name, x.Type, x.At)
		}
	}
}

func (l *Lowerer) declareFunc(name string, sig *signature, at ast.Span) {
	if _, dup := l.funcs[name]; dup {
		l.diags.Add(diag.Errorf(diag.Call, at, "Duplicate function %q.", name))
		return
	}
	l.funcs[name] = sig
}

func (l *Lowerer) declareGlobal(name string, t ast.TypeRef, at ast.Span) {
	if _, dup := l.globals[name]; dup {
		l.diags.Add(diag.Errorf(diag.Layout, at, "Duplicate storage %q.", name))
		return
	}
	l.globals[name] = addressing.Storage{Kind: addressing.StorageGlobal, Sym: name, Type: t}
}

// Lookup resolves storage names outside any function.
func (l *Lowerer) Lookup(name string) (addressing.Storage, bool) {
	s, ok := l.globals[name]
	return s, ok
}

func (l *Lowerer) scope() addressing.Scope {
	if l.current != nil {
		return l.current
	}
	return l
}

// storageWidth narrows op memory matchers to typed storage of the right
// width.
func (l *Lowerer) storageWidth(ea ast.EA) (int, bool) {
	scope := l.scope()
	if !addressing.IsStorage(ea, scope) {
		return 0, false
	}

	res, d := addressing.Resolve(ea, scope, l.res)
	if d != nil {
		return 0, false
	}

	w := res.Width(l.res)
	return w, w > 0
}

// placement applies section directives to the chunks that follow them.
type placement struct {
	l     *Lowerer
	at    map[ast.SectionKind]*int
	align map[ast.SectionKind]int
}

func newPlacement(l *Lowerer) *placement {
	return &placement{
		l:     l,
		at:    make(map[ast.SectionKind]*int),
		align: make(map[ast.SectionKind]int),
	}
}

func (pl *placement) apply(x *ast.SectionDirective) {
	if x.At != nil {
		v, err := env.Eval(pl.l.res, x.At)
		switch {
		case err != nil:
			pl.l.diags.Add(diag.Errorf(diag.Layout, x.Span,
				"Section %s address must be constant: %v.", x.Section, err))
		case v < 0 || v > 0xFFFF:
			pl.l.diags.Add(diag.Errorf(diag.Layout, x.Span,
				"Section %s address %d outside 0..65535.", x.Section, v))
		default:
			addr := int(v)
			pl.at[x.Section] = &addr
		}
	}

	if x.Align < 0 {
		pl.l.diags.Add(diag.Errorf(diag.Layout, x.Span,
			"Section %s alignment must be positive (got %d).", x.Section, x.Align))
	} else if x.Align > 0 {
		pl.align[x.Section] = x.Align
	}
}

func (pl *placement) place(c *linker.Chunk) {
	if at := pl.at[c.Section]; at != nil {
		c.At = at
		pl.at[c.Section] = nil
	}
	if a := pl.align[c.Section]; a > 1 {
		c.Align = a
	}
}
