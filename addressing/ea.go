package addressing

import (
	"math/bits"

	"github.com/sarchlab/zax/ast"
	"github.com/sarchlab/zax/diag"
)

// BaseKind classifies where the base of an effective address comes from.
type BaseKind int

const (
	// BaseGlobal is a module-level symbol.
	BaseGlobal BaseKind = iota
	// BaseFrame is storage living in the frame at ix+Disp.
	BaseFrame
	// BaseFvar is a 16-bit frame slot at ix+Disp holding the address.
	BaseFvar
	// BaseReg is an address already held in a register pair.
	BaseReg
)

// Base is the base operand of an effective address. Offset is a constant
// byte offset applied to the base.
type Base struct {
	Kind   BaseKind
	Sym    string
	Disp   int64
	Reg    string
	Offset int64
}

// IndexKind classifies the index operand of an effective address.
type IndexKind int

const (
	IndexNone   IndexKind = iota
	IndexConst            // compile-time constant, already in bytes
	IndexReg8             // 8-bit register, zero-extended
	IndexReg16            // 16-bit register
	IndexGlobal           // value stored at a global symbol
	IndexFvar             // value stored in a frame slot
	IndexMemHL            // byte at (hl)
	IndexMemIdx           // byte at (ix+d) or (iy+d)
	IndexNested           // value stored at a computed address
)

// Index is the index operand of an effective address. Byte marks an index
// loaded from one byte of storage rather than a word.
type Index struct {
	Kind   IndexKind
	Value  int64
	Reg    string
	Sym    string
	Offset int64
	Disp   int64
	Byte   bool
	Nested Address
}

// AddrMode says how an Address is reached.
type AddrMode int

const (
	// AddrAbs is an absolute address (Sym+Offset, or Offset alone).
	AddrAbs AddrMode = iota
	// AddrFrame is the frame location ix+Disp.
	AddrFrame
	// AddrHL means Steps leave the address in HL.
	AddrHL
)

// Address is the result of building an effective address. Only AddrHL
// carries steps; the other modes are usable directly as memory operands.
type Address struct {
	Mode   AddrMode
	Sym    string
	Offset int64
	Disp   int64
	Steps  Pipeline
}

// Mem returns the memory operand for a direct address, extra bytes past it.
func (a Address) Mem(extra int64) ast.MemOperand {
	if a.Mode == AddrFrame {
		return ixAt(a.Disp + extra)
	}
	if a.Sym == "" {
		return ast.AbsAddr(a.Offset + extra)
	}
	return ast.Abs(a.Sym, a.Offset+extra)
}

// IsDirect reports whether the address needs no computation.
func (a Address) IsDirect() bool {
	return a.Mode != AddrHL
}

// toHL converts a direct address into steps computing it into HL.
func (a Address) toHL() Address {
	switch a.Mode {
	case AddrFrame:
		return Address{Mode: AddrHL, Steps: framePointer(a.Disp)}
	case AddrAbs:
		if a.Sym == "" {
			return Address{Mode: AddrHL, Steps: Pipeline{ldImm("hl", a.Offset)}}
		}
		return Address{Mode: AddrHL, Steps: Pipeline{ldSym("hl", a.Sym, a.Offset)}}
	}
	return a
}

func framePointer(disp int64) Pipeline {
	return Pipeline{push("ix"), pop("hl"), ldImm("de", disp), add("hl", "de")}
}

func addressError(format string, args ...any) *diag.Diagnostic {
	return diag.Errorf(diag.Address, ast.Span{}, format, args...)
}

// Build computes the effective address base + index*scale. A frame base
// with a constant index is folded into a single displacement when the sum
// fits in a signed byte; every other combination yields a pipeline that
// leaves the address in HL.
func Build(base Base, index Index, scale int) (Address, *diag.Diagnostic) {
	if scale <= 0 {
		return Address{}, addressError("Invalid element size %d.", scale)
	}

	switch index.Kind {
	case IndexNone:
		return baseAddress(base)
	case IndexConst:
		off := index.Value * int64(scale)
		if base.Kind == BaseFrame && fitsDisp(base.Disp+base.Offset+off) {
			return Address{Mode: AddrFrame, Disp: base.Disp + base.Offset + off}, nil
		}
		index = Index{Kind: IndexConst, Value: off}
		scale = 1
	}

	if base.Kind == BaseReg {
		return buildFromReg(base, index, scale)
	}

	idx, reads, forceFirst, d := indexSteps(index)
	if d != nil {
		return Address{}, d
	}

	baseSteps, clobbersHL, d := baseToDE(base)
	if d != nil {
		return Address{}, d
	}

	indexFirst := forceFirst ||
		readsAny(reads, "d", "e", "de") ||
		(clobbersHL && readsAny(reads, "h", "l", "hl"))

	var p Pipeline
	if indexFirst {
		p = append(p, idx...)
		p = append(p, scaleHL(scale, false)...)
		p = append(p, push("hl"))
		p = append(p, baseSteps...)
		p = append(p, pop("hl"))
	} else {
		p = append(p, baseSteps...)
		p = append(p, idx...)
		p = append(p, scaleHL(scale, true)...)
	}
	p = append(p, add("hl", "de"))

	return Address{Mode: AddrHL, Steps: p}, nil
}

// buildFromReg parks the base register on the stack while the index is
// computed, so the index may read any register.
func buildFromReg(base Base, index Index, scale int) (Address, *diag.Diagnostic) {
	if !isPair(base.Reg) {
		return Address{}, addressError("Register %s cannot hold a base address.", base.Reg)
	}

	idx, _, _, d := indexSteps(index)
	if d != nil {
		return Address{}, d
	}

	p := Pipeline{push(base.Reg)}
	p = append(p, idx...)
	p = append(p, scaleHL(scale, false)...)
	if base.Offset != 0 {
		p = append(p, ldImm("de", base.Offset), add("hl", "de"))
	}
	p = append(p, pop("de"), add("hl", "de"))

	return Address{Mode: AddrHL, Steps: p}, nil
}

func baseAddress(base Base) (Address, *diag.Diagnostic) {
	switch base.Kind {
	case BaseGlobal:
		return Address{Mode: AddrAbs, Sym: base.Sym, Offset: base.Offset}, nil
	case BaseFrame:
		d := base.Disp + base.Offset
		if fitsDisp(d) {
			return Address{Mode: AddrFrame, Disp: d}, nil
		}
		return Address{Mode: AddrHL, Steps: framePointer(d)}, nil
	case BaseFvar:
		if !fitsDisp(base.Disp) || !fitsDisp(base.Disp+1) {
			return Address{}, addressError("Frame slot displacement %d out of range.", base.Disp)
		}
		p := Pipeline{load("l", ixAt(base.Disp)), load("h", ixAt(base.Disp+1))}
		if base.Offset != 0 {
			p = append(p, ldImm("de", base.Offset), add("hl", "de"))
		}
		return Address{Mode: AddrHL, Steps: p}, nil
	case BaseReg:
		var p Pipeline
		switch base.Reg {
		case "hl":
		case "de":
			p = Pipeline{ldReg("h", "d"), ldReg("l", "e")}
		case "bc":
			p = Pipeline{ldReg("h", "b"), ldReg("l", "c")}
		default:
			return Address{}, addressError("Register %s cannot hold a base address.", base.Reg)
		}
		if base.Offset != 0 {
			p = append(p, ldImm("de", base.Offset), add("hl", "de"))
		}
		return Address{Mode: AddrHL, Steps: p}, nil
	}
	return Address{}, addressError("Unknown base kind %d.", base.Kind)
}

// baseToDE loads the base address into DE. clobbersHL reports whether HL
// is destroyed on the way.
func baseToDE(base Base) (Pipeline, bool, *diag.Diagnostic) {
	switch base.Kind {
	case BaseGlobal:
		return Pipeline{ldSym("de", base.Sym, base.Offset)}, false, nil
	case BaseFvar:
		if !fitsDisp(base.Disp) || !fitsDisp(base.Disp+1) {
			return nil, false, addressError("Frame slot displacement %d out of range.", base.Disp)
		}
		p := Pipeline{load("e", ixAt(base.Disp)), load("d", ixAt(base.Disp+1))}
		if base.Offset == 0 {
			return p, false, nil
		}
		p = append(p, exDEHL(), ldImm("de", base.Offset), add("hl", "de"), exDEHL())
		return p, true, nil
	case BaseFrame:
		p := framePointer(base.Disp + base.Offset)
		p = append(p, exDEHL())
		return p, true, nil
	}
	return nil, false, addressError("Unknown base kind %d.", base.Kind)
}

// indexSteps loads the unscaled index into HL. reads lists the registers
// the steps read; forceFirst is set when the steps use DE as scratch.
func indexSteps(index Index) (Pipeline, []string, bool, *diag.Diagnostic) {
	switch index.Kind {
	case IndexConst:
		return Pipeline{ldImm("hl", index.Value)}, nil, false, nil
	case IndexReg8:
		if !isByteReg(index.Reg) {
			return nil, nil, false, addressError("Register %s cannot be a byte index.", index.Reg)
		}
		if index.Reg == "h" {
			return Pipeline{ldReg("l", "h"), ldImm("h", 0)}, []string{"h"}, false, nil
		}
		return Pipeline{ldImm("h", 0), ldReg("l", index.Reg)}, []string{index.Reg}, false, nil
	case IndexReg16:
		switch index.Reg {
		case "hl":
			return nil, []string{"hl"}, false, nil
		case "de":
			return Pipeline{ldReg("h", "d"), ldReg("l", "e")}, []string{"de"}, false, nil
		case "bc":
			return Pipeline{ldReg("h", "b"), ldReg("l", "c")}, []string{"bc"}, false, nil
		case "ix", "iy":
			return Pipeline{push(index.Reg), pop("hl")}, []string{index.Reg}, false, nil
		}
		return nil, nil, false, addressError("Register %s cannot be a word index.", index.Reg)
	case IndexGlobal:
		p := Pipeline{load("hl", ast.Abs(index.Sym, index.Offset))}
		if index.Byte {
			p = append(p, ldImm("h", 0))
		}
		return p, nil, false, nil
	case IndexFvar:
		if index.Byte {
			return Pipeline{ldImm("h", 0), load("l", ixAt(index.Disp))}, nil, false, nil
		}
		if !fitsDisp(index.Disp + 1) {
			return nil, nil, false, addressError("Frame slot displacement %d out of range.", index.Disp)
		}
		return Pipeline{
			exDEHL(),
			load("e", ixAt(index.Disp)),
			load("d", ixAt(index.Disp+1)),
			exDEHL(),
		}, nil, false, nil
	case IndexMemHL:
		return Pipeline{load("l", ast.Ind("hl")), ldImm("h", 0)}, []string{"hl"}, false, nil
	case IndexMemIdx:
		reg := index.Reg
		if reg == "" {
			reg = "ix"
		}
		return Pipeline{ldImm("h", 0), load("l", ast.IdxMem(reg, index.Disp))}, nil, false, nil
	case IndexNested:
		nested := index.Nested
		if nested.IsDirect() {
			nested = nested.toHL()
		}
		p := append(Pipeline{}, nested.Steps...)
		if index.Byte {
			p = append(p, load("l", ast.Ind("hl")), ldImm("h", 0))
		} else {
			p = append(p, load("e", ast.Ind("hl")), inc("hl"), load("d", ast.Ind("hl")), exDEHL())
		}
		return p, nil, true, nil
	}
	return nil, nil, false, addressError("Unknown index kind %d.", index.Kind)
}

// scaleHL multiplies HL by a constant. Non-power-of-two sizes use DE as
// scratch; keepDE wraps that use in push/pop when DE already holds the base.
func scaleHL(scale int, keepDE bool) Pipeline {
	if scale == 1 {
		return nil
	}

	var p Pipeline
	if scale&(scale-1) == 0 {
		for i := 0; i < bits.TrailingZeros(uint(scale)); i++ {
			p = append(p, add("hl", "hl"))
		}
		return p
	}

	if keepDE {
		p = append(p, push("de"))
	}
	p = append(p, ldReg("d", "h"), ldReg("e", "l"))
	for bit := bits.Len(uint(scale)) - 2; bit >= 0; bit-- {
		p = append(p, add("hl", "hl"))
		if scale&(1<<bit) != 0 {
			p = append(p, add("hl", "de"))
		}
	}
	if keepDE {
		p = append(p, pop("de"))
	}
	return p
}

func readsAny(reads []string, regs ...string) bool {
	for _, r := range reads {
		for _, x := range regs {
			if r == x {
				return true
			}
			if len(r) == 2 && (r[:1] == x || r[1:] == x) {
				return true
			}
		}
	}
	return false
}

func isByteReg(r string) bool {
	switch r {
	case "a", "b", "c", "d", "e", "h", "l":
		return true
	}
	return false
}

func isPair(r string) bool {
	switch r {
	case "hl", "de", "bc":
		return true
	}
	return false
}

// EAGlobConst addresses sym plus a constant byte offset.
func EAGlobConst(sym string, off int64) (Address, *diag.Diagnostic) {
	return Build(Base{Kind: BaseGlobal, Sym: sym}, Index{Kind: IndexConst, Value: off}, 1)
}

// EAGlobReg8 addresses element reg of the array at sym.
func EAGlobReg8(sym, reg string, scale int) (Address, *diag.Diagnostic) {
	return Build(Base{Kind: BaseGlobal, Sym: sym}, Index{Kind: IndexReg8, Reg: reg}, scale)
}

// EAGlobReg16 addresses element reg of the array at sym.
func EAGlobReg16(sym, reg string, scale int) (Address, *diag.Diagnostic) {
	return Build(Base{Kind: BaseGlobal, Sym: sym}, Index{Kind: IndexReg16, Reg: reg}, scale)
}

// EAGlobGlob addresses the element of sym selected by the word stored at idx.
func EAGlobGlob(sym, idx string, scale int) (Address, *diag.Diagnostic) {
	return Build(Base{Kind: BaseGlobal, Sym: sym}, Index{Kind: IndexGlobal, Sym: idx}, scale)
}

// EAGlobFvar addresses the element of sym selected by the word in a frame slot.
func EAGlobFvar(sym string, disp int64, scale int) (Address, *diag.Diagnostic) {
	return Build(Base{Kind: BaseGlobal, Sym: sym}, Index{Kind: IndexFvar, Disp: disp}, scale)
}

// EAFvarConst addresses frame storage at disp plus a constant byte offset.
func EAFvarConst(disp, off int64) (Address, *diag.Diagnostic) {
	return Build(Base{Kind: BaseFrame, Disp: disp}, Index{Kind: IndexConst, Value: off}, 1)
}

// EAFvarReg8 addresses element reg of the frame array at disp.
func EAFvarReg8(disp int64, reg string, scale int) (Address, *diag.Diagnostic) {
	return Build(Base{Kind: BaseFrame, Disp: disp}, Index{Kind: IndexReg8, Reg: reg}, scale)
}

// EAFvarReg16 addresses element reg of the frame array at disp.
func EAFvarReg16(disp int64, reg string, scale int) (Address, *diag.Diagnostic) {
	return Build(Base{Kind: BaseFrame, Disp: disp}, Index{Kind: IndexReg16, Reg: reg}, scale)
}
