// Package verify checks stack discipline in lowered function bodies.
//
// Stack depth is tracked as the net change of SP in bytes relative to the
// start of the body: push moves it by -2, pop by +2, inc sp by +1 and
// dec sp by -1. The lattice has three kinds of state:
//
//   - Known(n): the delta is exactly n on every path reaching this point
//   - Unknown: the delta could not be determined, e.g. after an earlier
//     mismatch was already diagnosed
//   - Untracked: SP was written by an instruction whose effect cannot be
//     proven statically (ld sp,...)
//
// A body is balanced when every ret and the fallthrough observe Known(0).
// Join points (if/else, select arms) and loop back-edges require all
// incoming states to agree.
package verify

import (
	"fmt"
	"strings"

	"github.com/sarchlab/zax/ast"
	"github.com/sarchlab/zax/diag"
)

// DepthKind is the lattice level of a Depth.
type DepthKind int

const (
	DepthKnown DepthKind = iota
	DepthUnknown
	DepthUntracked
)

// Depth is one stack-depth state.
type Depth struct {
	Kind DepthKind
	N    int
}

// Known returns the state for an exact delta.
func Known(n int) Depth {
	return Depth{Kind: DepthKnown, N: n}
}

// Unknown is the state after an undeterminable merge.
var Unknown = Depth{Kind: DepthUnknown}

// Untracked is the state after an unprovable SP write.
var Untracked = Depth{Kind: DepthUntracked}

// Add shifts a known depth by delta; other states are unchanged.
func (d Depth) Add(delta int) Depth {
	if d.Kind != DepthKnown {
		return d
	}
	return Known(d.N + delta)
}

// IsBalanced reports whether d is Known(0).
func (d Depth) IsBalanced() bool {
	return d.Kind == DepthKnown && d.N == 0
}

func (d Depth) String() string {
	switch d.Kind {
	case DepthKnown:
		return fmt.Sprintf("%d", d.N)
	case DepthUnknown:
		return "unknown"
	default:
		return "untracked"
	}
}

// Site names a join point or back-edge in diagnostics.
type Site string

const (
	IfJoin         Site = "if join"
	SelectJoin     Site = "select join"
	WhileBackEdge  Site = "while back-edge"
	RepeatBackEdge Site = "repeat back-edge"
)

// Join merges the states reaching site. The first state is the reference:
// for an if it is the then-arm, for a loop back-edge the state on first
// entry. Identical states merge silently; otherwise one diagnostic is
// produced and the merged state is Untracked if any input was, else
// Unknown.
func Join(site Site, at ast.Span, states ...Depth) (Depth, *diag.Diagnostic) {
	if len(states) == 0 {
		return Unknown, nil
	}

	first := states[0]
	var other *Depth
	hasUnknown, hasUntracked := false, false
	for i := range states {
		s := states[i]
		if s != first && other == nil {
			other = &states[i]
		}
		switch s.Kind {
		case DepthUnknown:
			hasUnknown = true
		case DepthUntracked:
			hasUntracked = true
		}
	}

	if other == nil {
		return first, nil
	}

	switch {
	case hasUntracked:
		return Untracked, diag.Errorf(diag.Stack, at,
			"Cannot verify stack depth at %s due to untracked SP mutation.", site)
	case hasUnknown:
		return Unknown, diag.Errorf(diag.Stack, at,
			"Cannot verify stack depth at %s due to unknown stack state.", site)
	default:
		return Unknown, diag.Errorf(diag.Stack, at,
			"Stack depth mismatch at %s (%d vs %d).", site, first.N, other.N)
	}
}

// CheckRet verifies the state at a ret or ret cc.
func CheckRet(d Depth, at ast.Span) *diag.Diagnostic {
	switch d.Kind {
	case DepthUnknown:
		return diag.Errorf(diag.Stack, at,
			"ret reached with unknown stack depth; cannot verify function stack balance.")
	case DepthUntracked:
		return diag.Errorf(diag.Stack, at,
			"ret reached after untracked SP mutation; cannot verify function stack balance.")
	}
	if d.N != 0 {
		return diag.Errorf(diag.Stack, at, "ret with non-zero tracked stack delta (%d).", d.N)
	}
	return nil
}

// CheckFallthrough verifies the state when control falls off the end of
// the named function.
func CheckFallthrough(fn string, d Depth, at ast.Span) *diag.Diagnostic {
	switch d.Kind {
	case DepthUnknown:
		return diag.Errorf(diag.Stack, at,
			"Function %q has unknown stack depth at fallthrough; cannot verify stack balance.", fn)
	case DepthUntracked:
		return diag.Errorf(diag.Stack, at,
			"Function %q has untracked SP mutation at fallthrough; cannot verify stack balance.", fn)
	}
	if d.N != 0 {
		return diag.Errorf(diag.Stack, at, "Function %q has non-zero stack delta (%d) at fallthrough.", fn, d.N)
	}
	return nil
}

// Effect is the stack effect of one instruction.
type Effect struct {
	Delta     int
	Untracked bool
	// Terminates is set for unconditional transfers after which the next
	// instruction is unreachable by fallthrough.
	Terminates bool
	// Return is set for ret and ret cc.
	Return bool
}

// EffectOf classifies the stack effect of a Z80 instruction.
func EffectOf(in *ast.Instruction) Effect {
	head := strings.ToLower(in.Head)
	n := len(in.Operands)

	switch head {
	case "push":
		return Effect{Delta: -2}
	case "pop":
		return Effect{Delta: 2}
	case "inc", "dec":
		if n == 1 && isReg(in.Operands[0], "sp") {
			if head == "inc" {
				return Effect{Delta: 1}
			}
			return Effect{Delta: -1}
		}
	case "ld":
		if n == 2 && isReg(in.Operands[0], "sp") {
			return Effect{Untracked: true}
		}
	case "ret":
		return Effect{Return: true, Terminates: n == 0}
	case "reti", "retn":
		return Effect{Return: true, Terminates: true}
	case "jp", "jr":
		return Effect{Terminates: n == 1}
	}

	return Effect{}
}

func isReg(op ast.Operand, name string) bool {
	r, ok := op.(ast.RegOperand)
	return ok && strings.EqualFold(r.Name, name)
}

// Tracker threads a depth through a linear instruction stream. A dead
// tracker has just passed an unconditional transfer; the next label
// revives it.
type Tracker struct {
	depth Depth
	dead  bool
}

// NewTracker starts at Known(0).
func NewTracker() *Tracker {
	return &Tracker{depth: Known(0)}
}

// Depth returns the current state.
func (t *Tracker) Depth() Depth {
	return t.depth
}

// Live reports whether the current point is reachable by fallthrough.
func (t *Tracker) Live() bool {
	return !t.dead
}

// Set replaces the current state and marks the point reachable.
func (t *Tracker) Set(d Depth) {
	t.depth = d
	t.dead = false
}

// Kill marks the current point unreachable by fallthrough.
func (t *Tracker) Kill() {
	t.dead = true
}

// Apply advances the state over one instruction and returns its effect.
func (t *Tracker) Apply(in *ast.Instruction) Effect {
	e := EffectOf(in)
	if e.Untracked {
		t.depth = Untracked
	} else {
		t.depth = t.depth.Add(e.Delta)
	}
	if e.Terminates {
		t.dead = true
	}
	return e
}
