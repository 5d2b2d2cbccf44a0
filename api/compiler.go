// Package api is the entry point of the zax backend. A Compiler lowers a
// resolved module, links it into a 64K image and reports what happened
// through diagnostics and hooks.
package api

import (
	"log/slog"
	"strings"

	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/zax/ast"
	"github.com/sarchlab/zax/config"
	"github.com/sarchlab/zax/diag"
	"github.com/sarchlab/zax/env"
	"github.com/sarchlab/zax/linker"
	"github.com/sarchlab/zax/lowering"
	"github.com/sarchlab/zax/verify"
)

// HookPosChunkLowered marks when a function or data item has been lowered.
// The item is the *linker.Chunk.
var HookPosChunkLowered = &sim.HookPos{Name: "Chunk Lowered"}

// HookPosFixupResolved marks when a fixup has been patched. The item is a
// linker.Patch.
var HookPosFixupResolved = &sim.HookPos{Name: "Fixup Resolved"}

// HookPosDiagnostic marks when a diagnostic is recorded. The item is the
// *diag.Diagnostic.
var HookPosDiagnostic = &sim.HookPos{Name: "Diagnostic"}

// HookPosCompileDone marks the end of a compilation. The item is the
// *Result.
var HookPosCompileDone = &sim.HookPos{Name: "Compile Done"}

// Result holds everything a compilation produced. Image and Symbols are
// withheld when any error was reported; the trace is always available.
type Result struct {
	Module      string
	Diagnostics []*diag.Diagnostic
	Image       *linker.Image
	Trace       string
	Stack       *verify.Report
}

// HasErrors reports whether any error-severity diagnostic was recorded.
func (r *Result) HasErrors() bool {
	for _, d := range r.Diagnostics {
		if d.IsError() {
			return true
		}
	}
	return false
}

// Messages returns the text of every diagnostic in order.
func (r *Result) Messages() []string {
	out := make([]string, len(r.Diagnostics))
	for i, d := range r.Diagnostics {
		out[i] = d.Message
	}
	return out
}

// Compiler compiles modules. It holds no per-module state, so one compiler
// can compile many modules in turn.
type Compiler struct {
	*sim.HookableBase

	name   string
	layout config.Layout
}

// Name returns the name of the compiler.
func (c *Compiler) Name() string {
	return c.name
}

// Compile lowers and links m against e.
func (c *Compiler) Compile(m *ast.Module, e *env.CompileEnv) *Result {
	slog.Info("compile start", "compiler", c.name, "module", m.Name, "items", len(m.Items))

	diags := &diag.List{}
	diags.OnAdd(func(d *diag.Diagnostic) {
		c.invoke(HookPosDiagnostic, d)
	})

	if err := c.layout.Validate(); err != nil {
		diags.Add(diag.Errorf(diag.Layout, ast.Span{}, "Invalid layout: %v.", err))
	}

	prog := lowering.New(e, diags).
		OnChunk(func(ch *linker.Chunk) { c.invoke(HookPosChunkLowered, ch) }).
		LowerModule(m)

	l := linker.New(c.layout).
		WithResolver(e).
		OnPatch(func(p linker.Patch) { c.invoke(HookPosFixupResolved, p) })
	for _, x := range prog.Externs {
		l.DefineExtern(x.Name, x.Address, x.At)
	}
	for _, k := range e.Constants() {
		l.DefineConstant(k.Name, k.Value, ast.Span{})
	}

	img, linkDiags := l.Link(prog.Chunks)
	diags.Add(linkDiags...)

	r := &Result{
		Module:      m.Name,
		Diagnostics: diags.Items(),
		Trace:       img.Trace(),
		Stack:       prog.Stack,
	}
	if !r.HasErrors() {
		r.Image = img
	}

	slog.Info("compile done", "compiler", c.name, "module", m.Name,
		"chunks", len(prog.Chunks), "diagnostics", len(r.Diagnostics),
		"errors", r.HasErrors())
	c.invoke(HookPosCompileDone, r)

	return r
}

func (c *Compiler) invoke(pos *sim.HookPos, item interface{}) {
	if c.NumHooks() == 0 {
		return
	}

	hookCtx := sim.HookCtx{
		Domain: c,
		Pos:    pos,
		Item:   item,
	}
	c.InvokeHook(hookCtx)
}

// LogHook writes every hook event to the default slog logger at the trace
// level.
type LogHook struct{}

// Func implements sim.Hook.
func (LogHook) Func(ctx sim.HookCtx) {
	switch item := ctx.Item.(type) {
	case *linker.Chunk:
		lowering.Trace(ctx.Pos.Name, "chunk", item.Name, "size", item.Size(),
			"fixups", len(item.Fixups))
	case linker.Patch:
		lowering.Trace(ctx.Pos.Name, "chunk", item.Chunk, "kind", item.Kind.String(),
			"symbol", item.Symbol, "addr", item.Address, "value", item.Value)
	case *diag.Diagnostic:
		lowering.Trace(ctx.Pos.Name, "id", string(item.ID), "severity", string(item.Severity),
			"message", item.Message)
	case *Result:
		lowering.Trace(ctx.Pos.Name, "module", item.Module,
			"diagnostics", strings.Join(item.Messages(), " | "))
	}
}
