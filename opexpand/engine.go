// Package opexpand resolves calls of user-declared op macros to concrete
// instruction streams.
//
// A call is matched against every overload of the op name. Among matching
// overloads the one that dominates every other in matcher specificity is
// chosen. Its body is instantiated with the call-site operands, op-local
// labels are renamed per instance, nested op calls are expanded in turn,
// and every resulting instruction is validated through the encoder.
package opexpand

import (
	"fmt"
	"strings"

	"github.com/sarchlab/zax/ast"
	"github.com/sarchlab/zax/diag"
	"github.com/sarchlab/zax/encoder"
	"github.com/sarchlab/zax/env"
	"github.com/sarchlab/zax/util"
)

// Node is one entry of an expanded body: either a statement to lower or a
// nested expansion.
type Node struct {
	Stmt   ast.Stmt
	Nested *Expansion
}

// Expansion is the instantiated body of one op call.
type Expansion struct {
	Name      string
	Signature string
	Chain     []string
	At        ast.Span
	Nodes     []Node
}

// Instructions returns every instruction of the expansion in order,
// descending into nested expansions.
func (x *Expansion) Instructions() []*ast.Instruction {
	var out []*ast.Instruction
	for _, n := range x.Nodes {
		if n.Nested != nil {
			out = append(out, n.Nested.Instructions()...)
			continue
		}
		if in, ok := n.Stmt.(*ast.Instruction); ok {
			out = append(out, in)
		}
	}
	return out
}

// Engine holds the declared overloads of a module.
type Engine struct {
	res      env.Resolver
	width    WidthFunc
	overload map[string][]*ast.OpDecl
	label    func() string
}

// NewEngine creates an engine with no ops declared.
func NewEngine(r env.Resolver) *Engine {
	return &Engine{
		res:      r,
		overload: make(map[string][]*ast.OpDecl),
		label:    util.MakeLabelGen("op", util.MakeIncreasingGen(0)),
	}
}

// WithStorageWidth narrows mem8 and mem16 matchers by the width of typed
// storage.
func (e *Engine) WithStorageWidth(f WidthFunc) *Engine {
	e.width = f
	return e
}

// WithCounter shares the numbering of synthetic labels with other
// generators.
func (e *Engine) WithCounter(next func() int) *Engine {
	e.label = util.MakeLabelGen("op", next)
	return e
}

// Declare adds one overload.
func (e *Engine) Declare(op *ast.OpDecl) {
	name := strings.ToLower(op.Name)
	e.overload[name] = append(e.overload[name], op)
}

// IsOp reports whether name has at least one overload.
func (e *Engine) IsOp(name string) bool {
	return len(e.overload[strings.ToLower(name)]) > 0
}

// Overloads returns the overloads of name in declaration order.
func (e *Engine) Overloads(name string) []*ast.OpDecl {
	return e.overload[strings.ToLower(name)]
}

// Expand resolves and instantiates one op call. Diagnostics from nested
// calls and from instructions that fail validation are all reported; the
// returned expansion omits the failing parts and is nil only when the call
// itself could not be resolved.
func (e *Engine) Expand(call *ast.Instruction) (*Expansion, []*diag.Diagnostic) {
	return e.expand(call, nil, call.At)
}

func (e *Engine) expand(
	call *ast.Instruction,
	chain []string,
	site ast.Span,
) (*Expansion, []*diag.Diagnostic) {
	name := strings.ToLower(call.Head)

	for _, c := range chain {
		if c == name {
			full := append(append([]string{}, chain...), name)
			return nil, []*diag.Diagnostic{diag.Errorf(diag.OpExpand, site,
				"Cyclic op expansion detected for %q. Expansion chain: %s.",
				name, strings.Join(full, " -> "))}
		}
	}

	op, d := e.resolve(call, site)
	if d != nil {
		return nil, []*diag.Diagnostic{d}
	}

	chain = append(append([]string{}, chain...), name)
	x := &Expansion{
		Name:      name,
		Signature: Signature(op),
		Chain:     chain,
		At:        site,
	}

	inst := newInstance(op, call.Operands, e.label())
	var issues []*diag.Diagnostic

	for _, s := range op.Body {
		s = inst.stmt(s)

		in, ok := s.(*ast.Instruction)
		if !ok {
			x.Nodes = append(x.Nodes, Node{Stmt: s})
			continue
		}

		if e.IsOp(in.Head) {
			nested, ds := e.expand(in, chain, site)
			issues = append(issues, ds...)
			if nested != nil {
				x.Nodes = append(x.Nodes, Node{Nested: nested})
			}
			continue
		}

		if d := e.validate(in, chain, site); d != nil {
			issues = append(issues, d)
			continue
		}

		x.Nodes = append(x.Nodes, Node{Stmt: in})
	}

	return x, issues
}

// validate encodes the instruction and rejects it when the encoder does.
// Instructions addressing typed storage, by bare EA or in parentheses, are
// rewritten later and only checked there.
func (e *Engine) validate(in *ast.Instruction, chain []string, site ast.Span) *diag.Diagnostic {
	for _, op := range in.Operands {
		switch x := op.(type) {
		case ast.EAOperand:
			return nil
		case ast.MemOperand:
			if e.isStorage(x.EA) {
				return nil
			}
		}
	}

	if _, d := encoder.Encode(in, e.res); d != nil {
		name := chain[len(chain)-1]
		return diag.Errorf(diag.OpExpand, site,
			"Invalid op expansion in %q: %s (%s) Expansion chain: %s.",
			name, ast.Format(in), d.Message, strings.Join(chain, " -> "))
	}
	return nil
}

func (e *Engine) isStorage(ea ast.EA) bool {
	if e.width == nil {
		return false
	}
	_, typed := e.width(ea)
	return typed
}

func (e *Engine) resolve(call *ast.Instruction, site ast.Span) (*ast.OpDecl, *diag.Diagnostic) {
	name := strings.ToLower(call.Head)
	all := e.Overloads(name)
	m := matcher{res: e.res, width: e.width}

	var sameArity, candidates []*ast.OpDecl
	for _, op := range all {
		if len(op.Params) != len(call.Operands) {
			continue
		}
		sameArity = append(sameArity, op)
		if m.matchesAll(op, call.Operands) {
			candidates = append(candidates, op)
		}
	}

	switch {
	case len(sameArity) == 0:
		return nil, diag.Errorf(diag.OpExpand, site,
			"No op overload of %q accepts %d operand(s). Declared overloads: %s.",
			name, len(call.Operands), signatures(all))
	case len(candidates) == 0:
		return nil, diag.Errorf(diag.OpExpand, site,
			"No matching op overload for %q with operands (%s). Declared overloads: %s.",
			name, operandSummary(call.Operands), signatures(all))
	case len(candidates) == 1:
		return candidates[0], nil
	}

	if best := mostSpecific(candidates); best != nil {
		return best, nil
	}

	return nil, diag.Errorf(diag.OpExpand, site,
		"Ambiguous op overload for %q with operands (%s). Candidates: %s.",
		name, operandSummary(call.Operands), signatures(undominated(candidates)))
}

func (m matcher) matchesAll(op *ast.OpDecl, args []ast.Operand) bool {
	for i, p := range op.Params {
		if !m.matches(p, args[i]) {
			return false
		}
	}
	return true
}

func mostSpecific(candidates []*ast.OpDecl) *ast.OpDecl {
	for _, c := range candidates {
		best := true
		for _, other := range candidates {
			if other != c && !dominates(c, other) {
				best = false
				break
			}
		}
		if best {
			return c
		}
	}
	return nil
}

// undominated returns the candidates no other candidate beats; these are
// the ones tied for the top.
func undominated(candidates []*ast.OpDecl) []*ast.OpDecl {
	var out []*ast.OpDecl
	for _, c := range candidates {
		beaten := false
		for _, other := range candidates {
			if other != c && dominates(other, c) {
				beaten = true
				break
			}
		}
		if !beaten {
			out = append(out, c)
		}
	}
	return out
}

// String renders the expansion chain for logs.
func (x *Expansion) String() string {
	return fmt.Sprintf("%s [%s]", x.Signature, strings.Join(x.Chain, " -> "))
}
