package linker

import (
	"fmt"
	"log/slog"

	"github.com/sarchlab/zax/ast"
	"github.com/sarchlab/zax/config"
	"github.com/sarchlab/zax/diag"
	"github.com/sarchlab/zax/encoder"
	"github.com/sarchlab/zax/env"
	"github.com/sarchlab/zax/util"
)

// Patch describes one resolved fixup.
type Patch struct {
	Chunk   string
	Kind    encoder.FixupKind
	Symbol  string
	Address int
	Value   int64
}

// Placement is the address assigned to a chunk. Unplaced chunks did not
// fit in the address space.
type Placement struct {
	Chunk   *Chunk
	Address int
	Placed  bool
}

// Image is the linked output.
type Image struct {
	Bytes      *ByteMap
	Symbols    []Symbol
	Placements []Placement
}

// Lookup finds a module-level symbol by name.
func (img *Image) Lookup(name string) (Symbol, bool) {
	for _, s := range img.Symbols {
		if s.Name == name && s.Scope == ModuleScope {
			return s, true
		}
	}
	return Symbol{}, false
}

// Linker lays out chunks and patches fixups.
type Linker struct {
	layout config.Layout
	res    env.Resolver
	extra  []Symbol
	onFix  func(Patch)
}

// New creates a linker for the given layout.
func New(layout config.Layout) *Linker {
	return &Linker{layout: layout}
}

// WithResolver lets fixups refer to constants and enums of the compile
// environment.
func (l *Linker) WithResolver(r env.Resolver) *Linker {
	l.res = r
	return l
}

// OnPatch registers a callback invoked after each fixup is patched.
func (l *Linker) OnPatch(f func(Patch)) *Linker {
	l.onFix = f
	return l
}

// DefineConstant adds a constant to the symbol table.
func (l *Linker) DefineConstant(name string, value int64, at ast.Span) {
	l.extra = append(l.extra, Symbol{
		Name: name, Kind: SymConstant, Value: value, Scope: ModuleScope,
		File: at.File, Line: at.Line,
	})
}

// DefineExtern adds a function living at a fixed address.
func (l *Linker) DefineExtern(name string, addr int, at ast.Span) {
	l.extra = append(l.extra, Symbol{
		Name: name, Kind: SymExtern, Address: addr, HasAddress: true, Scope: ModuleScope,
		File: at.File, Line: at.Line,
	})
}

type linkState struct {
	*Linker
	img    *Image
	module map[string]int64
	local  map[string]map[string]int64
	diags  []*diag.Diagnostic
}

// Link places every chunk, writes its bytes and patches its fixups.
// Chunks keep their input order within a section.
func (l *Linker) Link(chunks []*Chunk) (*Image, []*diag.Diagnostic) {
	s := &linkState{
		Linker: l,
		img:    &Image{Bytes: NewByteMap()},
		module: make(map[string]int64),
		local:  make(map[string]map[string]int64),
	}

	for _, sym := range l.extra {
		s.img.Symbols = append(s.img.Symbols, sym)
		if sym.Kind == SymConstant {
			s.module[sym.Name] = sym.Value
		} else {
			s.module[sym.Name] = int64(sym.Address)
		}
	}

	s.place(chunks)
	s.write()
	s.patchAll()

	return s.img, s.diags
}

func (s *linkState) place(chunks []*Chunk) {
	cursor := 0
	for _, k := range []ast.SectionKind{ast.SectionCode, ast.SectionData, ast.SectionVar} {
		cfg := s.layout.Section(k)
		if cfg.At != nil {
			cursor = *cfg.At
		}
		cursor = alignUp(cursor, cfg.Align)

		for _, c := range chunks {
			if c.Section != k {
				continue
			}
			cursor = s.placeOne(c, k, cursor)
		}
	}
}

func (s *linkState) placeOne(c *Chunk, k ast.SectionKind, cursor int) int {
	if c.At != nil {
		cursor = *c.At
	}
	cursor = alignUp(cursor, c.Align)

	end := cursor + c.Size()
	if cursor < 0 || end > AddressSpace {
		s.diags = append(s.diags, diag.Errorf(diag.Layout, c.Span,
			"Section %s overflows the address space: %q would end at $%X.", k, c.Name, end))
		s.img.Placements = append(s.img.Placements, Placement{Chunk: c})
		return cursor
	}

	slog.Debug("placed chunk", "name", c.Name, "section", k.String(),
		"addr", cursor, "size", c.Size())

	s.img.Placements = append(s.img.Placements, Placement{Chunk: c, Address: cursor, Placed: true})
	s.define(c, cursor)
	return end
}

func (s *linkState) define(c *Chunk, addr int) {
	s.img.Symbols = append(s.img.Symbols, Symbol{
		Name: c.Name, Kind: c.Kind, Address: addr, HasAddress: true,
		Size: c.Size(), Scope: ModuleScope, File: c.Span.File, Line: c.Span.Line,
	})
	s.module[c.Name] = int64(addr)

	labels := make(map[string]int64, len(c.Labels))
	for _, lb := range c.Labels {
		labels[lb.Name] = int64(addr + lb.Offset)
		if util.IsSynthetic(lb.Name) {
			continue
		}
		s.img.Symbols = append(s.img.Symbols, Symbol{
			Name: lb.Name, Kind: SymLabel, Address: addr + lb.Offset, HasAddress: true,
			Scope: c.Name, File: lb.At.File, Line: lb.At.Line,
		})
	}
	s.local[c.Name] = labels
}

func (s *linkState) write() {
	for owner, p := range s.img.Placements {
		if !p.Placed {
			continue
		}

		reported := make(map[int]bool)
		for i := 0; i < p.Chunk.Size(); i++ {
			addr := p.Address + i
			var (
				prev int
				ok   bool
			)
			if p.Chunk.Reserved > 0 {
				prev, ok = s.img.Bytes.Reserve(addr, owner)
			} else {
				prev, ok = s.img.Bytes.Write(addr, p.Chunk.Bytes[i], owner)
			}
			if ok || reported[prev] {
				continue
			}
			reported[prev] = true
			s.diags = append(s.diags, diag.Errorf(diag.Layout, p.Chunk.Span,
				"Byte overlap at $%04X: %q collides with %q.",
				addr, p.Chunk.Name, s.img.Placements[prev].Chunk.Name))
		}
	}
}

func (s *linkState) patchAll() {
	for _, p := range s.img.Placements {
		if !p.Placed {
			continue
		}
		for _, f := range p.Chunk.Fixups {
			if d := s.patch(p, f); d != nil {
				s.diags = append(s.diags, d)
			}
		}
	}
}

func (s *linkState) resolve(scope, name string) (int64, bool) {
	if v, ok := s.local[scope][name]; ok {
		return v, true
	}
	if v, ok := s.module[name]; ok {
		return v, true
	}
	if s.res != nil {
		if v, ok := s.res.Const(name); ok {
			return v, true
		}
		if v, ok := s.res.Enum(name); ok {
			return v, true
		}
	}
	return 0, false
}

func (s *linkState) patch(p Placement, f Fixup) *diag.Diagnostic {
	target := f.Addend
	if f.Symbol != "" {
		v, ok := s.resolve(p.Chunk.Name, f.Symbol)
		if !ok {
			return diag.Errorf(diag.Fixup, f.At, "Unresolved symbol %q.", f.Symbol)
		}
		target += v
	}

	addr := p.Address + f.Offset
	var value int64

	switch f.Kind {
	case encoder.Rel8:
		value = target - int64(addr+1)
		if value < -128 || value > 127 {
			return diag.Errorf(diag.Fixup, f.At,
				"%s target out of range for rel8 branch (%d, expected -128..127).",
				rel8Mnemonic(f.Opcode), value)
		}
		s.img.Bytes.Patch(addr, byte(value))
	default:
		value = target
		if value < 0 || value > 0xFFFF {
			return diag.Errorf(diag.Fixup, f.At,
				"abs16 value out of range for %s (%d, expected 0..65535).", describe(f), value)
		}
		s.img.Bytes.Patch(addr, byte(value))
		s.img.Bytes.Patch(addr+1, byte(value>>8))
	}

	if s.onFix != nil {
		s.onFix(Patch{Chunk: p.Chunk.Name, Kind: f.Kind, Symbol: f.Symbol, Address: addr, Value: value})
	}
	return nil
}

var rel8Names = map[byte]string{
	0x10: "djnz",
	0x18: "jr",
	0x20: "jr nz",
	0x28: "jr z",
	0x30: "jr nc",
	0x38: "jr c",
}

func rel8Mnemonic(opcode []byte) string {
	if len(opcode) > 0 {
		if n, ok := rel8Names[opcode[0]]; ok {
			return n
		}
	}
	return "branch"
}

func describe(f Fixup) string {
	switch {
	case f.Symbol == "":
		return fmt.Sprintf("%d", f.Addend)
	case f.Addend > 0:
		return fmt.Sprintf("%s+%d", f.Symbol, f.Addend)
	case f.Addend < 0:
		return fmt.Sprintf("%s-%d", f.Symbol, -f.Addend)
	default:
		return f.Symbol
	}
}

func alignUp(v, align int) int {
	if align <= 1 {
		return v
	}
	return (v + align - 1) / align * align
}
