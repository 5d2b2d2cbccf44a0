package lowering

import (
	"strings"

	"github.com/sarchlab/zax/ast"
	"github.com/sarchlab/zax/diag"
	"github.com/sarchlab/zax/encoder"
	"github.com/sarchlab/zax/env"
	"github.com/sarchlab/zax/opexpand"
	"github.com/sarchlab/zax/verify"
)

type frameKind int

const (
	frameIf frameKind = iota
	frameWhile
	frameRepeat
	frameSelect
)

func (k frameKind) String() string {
	switch k {
	case frameIf:
		return "if"
	case frameWhile:
		return "while"
	case frameRepeat:
		return "repeat"
	default:
		return "select"
	}
}

// frame is one open control statement. alt is the else label of an if,
// the condition label of a while and the next-case label of a select.
type frame struct {
	kind        frameKind
	at          ast.Span
	recoverOnly bool

	entry     verify.Depth
	entryLive bool

	cond     string
	top      string
	alt      string
	end      string
	elseSeen bool
	armOpen  bool
	exits    []verify.Depth
	values   map[int64]bool
}

// body is the control state of one function or op body. Frames never
// cross body boundaries.
type body struct {
	f      *fn
	frames []*frame
}

func (f *fn) lowerStmts(stmts []ast.Stmt) {
	b := &body{f: f}
	for _, s := range stmts {
		b.lower(s)
	}
	b.close()
}

func (f *fn) lowerExpansion(x *opexpand.Expansion) {
	b := &body{f: f}
	for _, n := range x.Nodes {
		if n.Nested != nil {
			Trace("expanded nested op", "name", n.Nested.Name,
				"chain", strings.Join(n.Nested.Chain, " -> "))
			f.lowerExpansion(n.Nested)
			continue
		}
		b.lower(n.Stmt)
	}
	b.close()
}

func (b *body) lower(s ast.Stmt) {
	switch x := s.(type) {
	case *ast.LabelStmt:
		b.f.defineLabel(x)
	case *ast.Instruction:
		b.f.lowerInstr(x)
	case *ast.CallStmt:
		b.f.lowerCall(x)
	case *ast.IfStmt:
		b.openIf(x)
	case *ast.ElseStmt:
		b.elseArm(x)
	case *ast.EndStmt:
		b.end(x)
	case *ast.WhileStmt:
		b.openWhile(x)
	case *ast.RepeatStmt:
		b.openRepeat(x)
	case *ast.UntilStmt:
		b.until(x)
	case *ast.SelectStmt:
		b.openSelect(x)
	case *ast.CaseStmt:
		b.caseArm(x)
	}
}

func (b *body) push(fr *frame) {
	fr.entry = b.f.stack.Depth()
	fr.entryLive = b.f.stack.Live()
	b.frames = append(b.frames, fr)
}

func (b *body) top() *frame {
	if len(b.frames) == 0 {
		return nil
	}
	return b.frames[len(b.frames)-1]
}

func (b *body) pop() {
	b.frames = b.frames[:len(b.frames)-1]
}

// condition validates a condition code and returns it with its inverse.
func (b *body) condition(cond, keyword string, at ast.Span) (string, string, bool) {
	c := strings.ToLower(cond)
	inv, ok := encoder.InvertCond(c)
	if !ok {
		b.f.errorf(diag.Control, at, "Invalid condition %q in %s.", cond, keyword)
		return "", "", false
	}
	return c, inv, true
}

func (b *body) jump(at ast.Span, ops ...ast.Operand) {
	in := ast.Instr("jp", ops...)
	in.At = at
	b.f.emit(in)
}

func (b *body) label(name string, at ast.Span) {
	b.f.chunk.DefineLabel(name, at)
}

// join merges the states reaching the current point. With no live
// predecessor the point is unreachable.
func (b *body) join(site verify.Site, at ast.Span, states []verify.Depth) {
	if len(states) == 0 {
		b.f.stack.Kill()
		return
	}

	d, issue := verify.Join(site, at, states...)
	b.f.check(issue)
	b.f.stack.Set(d)
}

func (b *body) openIf(x *ast.IfStmt) {
	fr := &frame{kind: frameIf, at: x.At}
	b.push(fr)

	if x.Malformed {
		fr.recoverOnly = true
		return
	}
	_, inv, ok := b.condition(x.Cond, "if", x.At)
	if !ok {
		fr.recoverOnly = true
		return
	}

	fr.alt = b.f.labels.ifElse()
	fr.end = b.f.labels.ifEnd()
	b.jump(x.At, ast.Reg(inv), ast.Sym(fr.alt))
}

func (b *body) openWhile(x *ast.WhileStmt) {
	fr := &frame{kind: frameWhile, at: x.At}
	b.push(fr)

	if x.Malformed {
		fr.recoverOnly = true
		return
	}
	cond, _, ok := b.condition(x.Cond, "while", x.At)
	if !ok {
		fr.recoverOnly = true
		return
	}

	fr.cond = cond
	fr.top = b.f.labels.whileTop()
	fr.alt = b.f.labels.whileCond()
	b.jump(x.At, ast.Sym(fr.alt))
	b.label(fr.top, x.At)
	b.f.resume(fr.entry, fr.entryLive)
}

func (b *body) openRepeat(x *ast.RepeatStmt) {
	fr := &frame{kind: frameRepeat, at: x.At}
	b.push(fr)

	if x.Malformed {
		fr.recoverOnly = true
		return
	}

	fr.top = b.f.labels.repeatTop()
	b.label(fr.top, x.At)
}

func (b *body) openSelect(x *ast.SelectStmt) {
	fr := &frame{kind: frameSelect, at: x.At, values: make(map[int64]bool)}
	if x.Malformed || x.Selector == nil {
		fr.recoverOnly = true
		b.push(fr)
		return
	}

	if r, ok := x.Selector.(ast.RegOperand); !ok || !strings.EqualFold(r.Name, "a") {
		in := ast.Instr("ld", ast.Reg("a"), x.Selector)
		in.At = x.At
		b.f.lowerInstr(in)
	}

	fr.end = b.f.labels.selectEnd()
	b.push(fr)
}

func (b *body) elseArm(x *ast.ElseStmt) {
	fr := b.top()
	if fr == nil || (fr.kind != frameIf && fr.kind != frameSelect) {
		b.f.errorf(diag.Control, x.At, "else without if or select.")
		return
	}
	if fr.recoverOnly {
		return
	}
	if fr.elseSeen {
		b.f.errorf(diag.Control, x.At, "Duplicate else in %s.", fr.kind)
		return
	}
	fr.elseSeen = true

	if fr.kind == frameSelect {
		b.closeArm(fr, x.At)
		b.f.resume(fr.entry, fr.entryLive)
		fr.armOpen = true
		return
	}

	if b.f.stack.Live() {
		fr.exits = append(fr.exits, b.f.stack.Depth())
		b.jump(x.At, ast.Sym(fr.end))
	}
	b.label(fr.alt, x.At)
	b.f.resume(fr.entry, fr.entryLive)
}

func (b *body) caseArm(x *ast.CaseStmt) {
	fr := b.top()
	if fr == nil || fr.kind != frameSelect {
		b.f.errorf(diag.Control, x.At, "case without select.")
		return
	}
	if fr.recoverOnly {
		return
	}
	if fr.elseSeen {
		b.f.errorf(diag.Control, x.At, "case after else in select.")
		return
	}

	b.closeArm(fr, x.At)
	b.f.resume(fr.entry, fr.entryLive)

	var values []int64
	for _, e := range x.Values {
		v, err := env.Eval(b.f.res, e)
		if err != nil || v < -128 || v > 255 {
			b.f.errorf(diag.Control, x.At,
				"Case value %s must be a constant in -128..255.", ast.FormatExpr(e))
			continue
		}
		v &= 0xFF
		if fr.values[v] {
			b.f.errorf(diag.Control, x.At, "Duplicate case value %d in select.", v)
			continue
		}
		fr.values[v] = true
		values = append(values, v)
	}

	fr.alt = b.f.labels.selectNext()
	fr.armOpen = true

	if len(values) == 0 {
		b.jump(x.At, ast.Sym(fr.alt))
		return
	}

	arm := ""
	if len(values) > 1 {
		arm = b.f.labels.selectArm()
	}
	for i, v := range values {
		cp := ast.Instr("cp", ast.Num(v))
		cp.At = x.At
		b.f.emit(cp)
		if i < len(values)-1 {
			b.jump(x.At, ast.Reg("z"), ast.Sym(arm))
			continue
		}
		b.jump(x.At, ast.Reg("nz"), ast.Sym(fr.alt))
	}
	if arm != "" {
		b.label(arm, x.At)
	}
}

// closeArm ends the open select arm with a jump past the remaining arms
// and places the next-case label.
func (b *body) closeArm(fr *frame, at ast.Span) {
	if fr.armOpen && b.f.stack.Live() {
		fr.exits = append(fr.exits, b.f.stack.Depth())
		b.jump(at, ast.Sym(fr.end))
	}
	if fr.alt != "" {
		b.label(fr.alt, at)
		fr.alt = ""
	}
	fr.armOpen = false
}

func (b *body) end(x *ast.EndStmt) {
	fr := b.top()
	if fr == nil {
		b.f.errorf(diag.Control, x.At, "end without an open if, while or select.")
		return
	}
	if fr.kind == frameRepeat {
		if !fr.recoverOnly {
			b.f.errorf(diag.Control, x.At, "end cannot close repeat; expected until.")
		}
		return
	}

	b.pop()
	if fr.recoverOnly {
		return
	}

	switch fr.kind {
	case frameIf:
		b.endIf(fr, x.At)
	case frameWhile:
		b.endWhile(fr, x.At)
	case frameSelect:
		b.endSelect(fr, x.At)
	}
}

func (b *body) endIf(fr *frame, at ast.Span) {
	states := fr.exits
	if b.f.stack.Live() {
		states = append(states, b.f.stack.Depth())
	}
	if !fr.elseSeen {
		b.label(fr.alt, at)
		if fr.entryLive {
			states = append(states, fr.entry)
		}
	}
	b.label(fr.end, at)
	b.join(verify.IfJoin, at, states)
}

func (b *body) endWhile(fr *frame, at ast.Span) {
	b.label(fr.alt, at)

	var states []verify.Depth
	if fr.entryLive {
		states = append(states, fr.entry)
	}
	if b.f.stack.Live() {
		states = append(states, b.f.stack.Depth())
	}
	b.join(verify.WhileBackEdge, at, states)

	b.jump(at, ast.Reg(fr.cond), ast.Sym(fr.top))
}

func (b *body) endSelect(fr *frame, at ast.Span) {
	if fr.armOpen && b.f.stack.Live() {
		fr.exits = append(fr.exits, b.f.stack.Depth())
	}
	states := fr.exits

	if fr.alt != "" {
		b.label(fr.alt, at)
	}
	if !fr.elseSeen && fr.entryLive {
		states = append(states, fr.entry)
	}
	b.label(fr.end, at)
	b.join(verify.SelectJoin, at, states)
}

func (b *body) until(x *ast.UntilStmt) {
	fr := b.top()
	if fr == nil || fr.kind != frameRepeat {
		b.f.errorf(diag.Control, x.At, "until without repeat.")
		return
	}

	b.pop()
	if fr.recoverOnly {
		return
	}

	var states []verify.Depth
	if fr.entryLive {
		states = append(states, fr.entry)
	}
	if b.f.stack.Live() {
		states = append(states, b.f.stack.Depth())
	}
	b.join(verify.RepeatBackEdge, x.At, states)

	_, inv, ok := b.condition(x.Cond, "until", x.At)
	if !ok {
		return
	}
	b.jump(x.At, ast.Reg(inv), ast.Sym(fr.top))
}

// close reports frames left open at the end of the body and places their
// pending labels so that the branches already emitted still resolve.
func (b *body) close() {
	for i := len(b.frames) - 1; i >= 0; i-- {
		fr := b.frames[i]
		if fr.recoverOnly {
			continue
		}

		closer := "end"
		if fr.kind == frameRepeat {
			closer = "until"
		}
		b.f.errorf(diag.Control, fr.at, "Unterminated %s: missing %s.", fr.kind, closer)

		for _, name := range []string{fr.alt, fr.end} {
			if name != "" && !b.f.chunk.HasLabel(name) {
				b.label(name, fr.at)
			}
		}
	}
	b.frames = nil
}
