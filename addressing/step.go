// Package addressing builds the instruction sequences that compute
// effective addresses and move values between registers and typed storage.
//
// Every Step is exactly one Z80 instruction. A Pipeline is the ordered list
// of steps making up one load, store or address computation. Builders are
// pure: they depend only on their arguments and never touch global state.
package addressing

import (
	"strings"

	"github.com/sarchlab/zax/ast"
)

// StepKind discriminates the steps of a pipeline.
type StepKind int

const (
	StepPush  StepKind = iota // push rr
	StepPop                   // pop rr
	StepLdReg                 // ld r,r'
	StepLdImm                 // ld r,n / ld rr,nn
	StepLoad                  // ld r,(mem) / ld rr,(nn)
	StepStore                 // ld (mem),r / ld (nn),rr
	StepEx                    // ex de,hl
	StepAdd                   // add hl,rr
	StepInc                   // inc rr
)

func (k StepKind) String() string {
	switch k {
	case StepPush:
		return "push"
	case StepPop:
		return "pop"
	case StepLdReg:
		return "ld-reg"
	case StepLdImm:
		return "ld-imm"
	case StepLoad:
		return "load"
	case StepStore:
		return "store"
	case StepEx:
		return "ex"
	case StepAdd:
		return "add"
	case StepInc:
		return "inc"
	default:
		return "unknown"
	}
}

// Step is one instruction tagged with its kind.
type Step struct {
	Kind  StepKind
	Instr *ast.Instruction
}

func (s Step) String() string {
	return ast.Format(s.Instr)
}

// Pipeline is an ordered list of steps.
type Pipeline []Step

// Render returns the canonical text of each step.
func (p Pipeline) Render() []string {
	out := make([]string, len(p))
	for i, s := range p {
		out[i] = s.String()
	}
	return out
}

// Instructions returns the instruction of each step.
func (p Pipeline) Instructions() []*ast.Instruction {
	out := make([]*ast.Instruction, len(p))
	for i, s := range p {
		out[i] = s.Instr
	}
	return out
}

func (p Pipeline) String() string {
	return strings.Join(p.Render(), "; ")
}

func push(reg string) Step {
	return Step{Kind: StepPush, Instr: ast.Instr("push", ast.Reg(reg))}
}

func pop(reg string) Step {
	return Step{Kind: StepPop, Instr: ast.Instr("pop", ast.Reg(reg))}
}

func ldReg(dst, src string) Step {
	return Step{Kind: StepLdReg, Instr: ast.Instr("ld", ast.Reg(dst), ast.Reg(src))}
}

func ldImm(dst string, v int64) Step {
	return Step{Kind: StepLdImm, Instr: ast.Instr("ld", ast.Reg(dst), ast.Num(v))}
}

func ldSym(dst, sym string, off int64) Step {
	return Step{Kind: StepLdImm, Instr: ast.Instr("ld", ast.Reg(dst), ast.SymOffset(sym, off))}
}

func load(dst string, mem ast.MemOperand) Step {
	return Step{Kind: StepLoad, Instr: ast.Instr("ld", ast.Reg(dst), mem)}
}

func store(mem ast.MemOperand, src string) Step {
	return Step{Kind: StepStore, Instr: ast.Instr("ld", mem, ast.Reg(src))}
}

func exDEHL() Step {
	return Step{Kind: StepEx, Instr: ast.Instr("ex", ast.Reg("de"), ast.Reg("hl"))}
}

func add(dst, src string) Step {
	return Step{Kind: StepAdd, Instr: ast.Instr("add", ast.Reg(dst), ast.Reg(src))}
}

func inc(reg string) Step {
	return Step{Kind: StepInc, Instr: ast.Instr("inc", ast.Reg(reg))}
}

func ixAt(disp int64) ast.MemOperand {
	return ast.IdxMem("ix", disp)
}

func fitsDisp(d int64) bool {
	return d >= -128 && d <= 127
}

var indHL = ast.Ind("hl")
