package lowering

import (
	"log/slog"
	"strings"

	"github.com/sarchlab/zax/addressing"
	"github.com/sarchlab/zax/ast"
	"github.com/sarchlab/zax/diag"
	"github.com/sarchlab/zax/encoder"
	"github.com/sarchlab/zax/env"
	"github.com/sarchlab/zax/linker"
	"github.com/sarchlab/zax/verify"
)

// preservable lists the registers a function saves for its caller, in
// push order.
var preservable = []string{"af", "bc", "de", "hl"}

// fn is the state of the function being lowered.
type fn struct {
	*Lowerer
	decl      *ast.FuncDecl
	chunk     *linker.Chunk
	frame     map[string]addressing.Storage
	stack     *verify.Tracker
	preserved []string
	hasFrame  bool
	epilogue  string
	defined   map[string]bool
	summary   verify.FunctionSummary
}

// Lookup resolves parameters and locals before module storage.
func (f *fn) Lookup(name string) (addressing.Storage, bool) {
	if s, ok := f.frame[name]; ok {
		return s, true
	}
	return f.Lowerer.Lookup(name)
}

func (l *Lowerer) lowerFunc(decl *ast.FuncDecl, report *verify.Report) *linker.Chunk {
	f := &fn{
		Lowerer: l,
		decl:    decl,
		chunk:   linker.NewChunk(decl.Name, linker.SymFunction, ast.SectionCode),
		frame:   make(map[string]addressing.Storage),
		stack:   verify.NewTracker(),
		defined: make(map[string]bool),
		summary: verify.FunctionSummary{Name: decl.Name},
	}
	f.chunk.Span = decl.At

	l.current = f
	defer func() { l.current = nil }()

	f.layoutFrame()
	f.prologue()
	f.lowerStmts(decl.Body)
	f.finish()

	report.Add(f.summary)
	slog.Debug("lowered function", "name", decl.Name, "size", f.chunk.Size(),
		"preserved", strings.Join(f.preserved, ","), "frame", f.hasFrame,
		"stack_issues", len(f.summary.Issues))

	return f.chunk
}

// layoutFrame assigns a 2-byte IX-relative slot to every parameter and
// local and computes the preserved register set.
func (f *fn) layoutFrame() {
	returns := make(map[string]bool)
	for _, r := range f.decl.Returns {
		r = strings.ToLower(r)
		if !isPreservable(r) {
			f.errorf(diag.Call, f.decl.At, "Function %q returns unknown register %q.", f.decl.Name, r)
			continue
		}
		returns[r] = true
	}
	for _, r := range preservable {
		if !returns[r] {
			f.preserved = append(f.preserved, r)
		}
	}

	for i, p := range f.decl.Params {
		f.defineSlot(p.Name, p.Type, int64(4+2*i), "Parameter")
	}
	for i, loc := range f.decl.Locals {
		f.defineSlot(loc.Name, loc.Type, int64(-2-2*i), "Local")
	}

	f.hasFrame = len(f.decl.Params)+len(f.decl.Locals) > 0
	if f.hasFrame || len(f.preserved) > 0 {
		f.epilogue = f.labels.epilogue()
	}
}

func isPreservable(r string) bool {
	for _, p := range preservable {
		if p == r {
			return true
		}
	}
	return false
}

func (f *fn) defineSlot(name string, t ast.TypeRef, disp int64, what string) {
	if _, dup := f.frame[name]; dup {
		f.errorf(diag.Call, f.decl.At, "%s %q is declared twice in %q.", what, name, f.decl.Name)
		return
	}

	if t.Ref {
		f.frame[name] = addressing.Storage{Kind: addressing.StorageRef, Disp: disp, Type: t}
		return
	}

	size, err := env.SizeOf(f.res, t)
	if err != nil || size > 2 {
		f.errorf(diag.Address, f.decl.At,
			"%s %q of type %s does not fit a 2-byte frame slot.", what, name, t)
		return
	}
	f.frame[name] = addressing.Storage{Kind: addressing.StorageFrame, Disp: disp, Type: t}
}

// prologue builds the IX frame, initialises locals and saves the preserved
// registers. With nothing to set up a single nop marks the frame.
func (f *fn) prologue() {
	if f.hasFrame {
		f.emitRaw(ast.Instr("push", ast.Reg("ix")))
		f.emitRaw(ast.Instr("ld", ast.Reg("ix"), ast.Num(0)))
		f.emitRaw(ast.Instr("add", ast.Reg("ix"), ast.Reg("sp")))

		for _, loc := range f.decl.Locals {
			var init ast.Operand = ast.Num(0)
			if loc.Init != nil {
				init = ast.ImmOperand{Expr: loc.Init}
			}
			f.emitRaw(ast.Instr("push", ast.Reg("hl")))
			f.emitRaw(ast.Instr("ld", ast.Reg("hl"), init))
			f.emitRaw(ast.Instr("ex", ast.Ind("sp"), ast.Reg("hl")))
		}
	}

	for _, r := range f.preserved {
		f.emitRaw(ast.Instr("push", ast.Reg(r)))
	}

	if !f.hasFrame && len(f.preserved) == 0 {
		f.emitRaw(ast.Instr("nop"))
	}
}

// finish checks the fallthrough and emits the shared epilogue.
func (f *fn) finish() {
	if f.stack.Live() {
		f.summary.Reachable = true
		f.summary.Exit = f.stack.Depth()
		f.check(verify.CheckFallthrough(f.decl.Name, f.stack.Depth(), f.decl.At))
	}

	if f.epilogue != "" {
		f.chunk.DefineLabel(f.epilogue, f.decl.At)
	}

	f.cleanup()
	f.emitRaw(ast.Instr("ret"))
}

// cleanup restores the preserved registers and tears down the IX frame.
func (f *fn) cleanup() {
	for i := len(f.preserved) - 1; i >= 0; i-- {
		f.emitRaw(ast.Instr("pop", ast.Reg(f.preserved[i])))
	}

	if f.hasFrame {
		f.emitRaw(ast.Instr("ld", ast.Reg("sp"), ast.Reg("ix")))
		f.emitRaw(ast.Instr("pop", ast.Reg("ix")))
	}
}

// lowerRet verifies the stack at a return. When the function has cleanup
// to do, ret and ret cc branch to the shared epilogue instead, while reti
// and retn run the cleanup inline since the epilogue ends in a plain ret.
func (f *fn) lowerRet(in *ast.Instruction) {
	f.summary.Returns++
	f.check(verify.CheckRet(f.stack.Depth(), in.At))

	if f.epilogue == "" {
		f.emit(in)
		return
	}

	if strings.ToLower(in.Head) != "ret" {
		f.cleanup()
		f.emit(in)
		return
	}

	var jp *ast.Instruction
	if len(in.Operands) == 0 {
		jp = ast.Instr("jp", ast.Sym(f.epilogue))
	} else {
		jp = ast.Instr("jp", in.Operands[0], ast.Sym(f.epilogue))
	}
	jp.At = in.At
	f.emit(jp)
}

// defineLabel places a user label. Execution may arrive from any jump, so
// the label revives a dead tracker with the depth threaded so far.
func (f *fn) defineLabel(x *ast.LabelStmt) {
	if f.defined[x.Name] {
		f.errorf(diag.Control, x.At, "Duplicate label %q in %q.", x.Name, f.decl.Name)
		return
	}
	f.defined[x.Name] = true
	f.chunk.DefineLabel(x.Name, x.At)
	f.stack.Set(f.stack.Depth())
}

// emit encodes one instruction of the body and tracks its stack effect.
func (f *fn) emit(in *ast.Instruction) {
	enc, d := encoder.Encode(in, f.res)
	if d != nil {
		f.report(d.At(in.At))
		return
	}

	f.chunk.Emit(enc, ast.Format(in), in.At)
	f.stack.Apply(in)
}

// emitRaw encodes prologue and epilogue instructions, which lie outside
// the verified body.
func (f *fn) emitRaw(in *ast.Instruction) {
	enc, d := encoder.Encode(in, f.res)
	if d != nil {
		f.report(d.At(f.decl.At))
		return
	}
	f.chunk.Emit(enc, ast.Format(in), in.At)
}

func (f *fn) emitAll(ins []*ast.Instruction, at ast.Span) {
	for _, in := range ins {
		in.At = at
		f.emit(in)
	}
}

// resume sets the tracker state at a synthetic label.
func (f *fn) resume(d verify.Depth, live bool) {
	f.stack.Set(d)
	if !live {
		f.stack.Kill()
	}
}

func (f *fn) report(d *diag.Diagnostic) {
	if d == nil {
		return
	}
	if d.ID == diag.Stack {
		f.summary.Issues = append(f.summary.Issues, d)
	}
	f.diags.Add(d)
}

func (f *fn) check(d *diag.Diagnostic) {
	f.report(d)
}

func (f *fn) errorf(id diag.ID, at ast.Span, format string, args ...any) {
	f.report(diag.Errorf(id, at, format, args...))
}
