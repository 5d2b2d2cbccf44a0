// Package linker places lowered chunks into sections, patches their fixups
// and produces the final byte map, symbol table and trace.
//
// Linking is the second of two passes. The first pass (lowering) emits
// bytes per function or data item without knowing any address and records
// every reference as a Fixup. Once every chunk has an address, each fixup
// is resolved and patched in place.
package linker

import (
	"github.com/sarchlab/zax/ast"
	"github.com/sarchlab/zax/encoder"
)

// Fixup is a reference inside a chunk waiting for an address.
type Fixup struct {
	Kind encoder.FixupKind
	// Offset is the position of the patched value within the chunk.
	Offset int
	Symbol string
	Addend int64
	// Opcode holds the instruction bytes preceding the value; it names the
	// branch in rel8 diagnostics.
	Opcode []byte
	At     ast.Span
}

// LocalLabel is a chunk-local label.
type LocalLabel struct {
	Name   string
	Offset int
	At     ast.Span
}

// Line is one entry of the chunk trace. A label line has Label set and no
// bytes.
type Line struct {
	Offset int
	Size   int
	Text   string
	Label  bool
}

// Chunk is the output of lowering one function or data item.
type Chunk struct {
	Name    string
	Kind    SymbolKind
	Section ast.SectionKind
	// At pins the chunk to an absolute address.
	At *int
	// Align rounds the chunk address up to a multiple of Align.
	Align int
	Bytes []byte
	// Reserved is the size of a var-section chunk that occupies address
	// space without emitting bytes.
	Reserved int
	Fixups   []Fixup
	Labels   []LocalLabel
	Lines    []Line
	Span     ast.Span
}

// NewChunk creates an empty chunk.
func NewChunk(name string, kind SymbolKind, section ast.SectionKind) *Chunk {
	return &Chunk{Name: name, Kind: kind, Section: section, Align: 1}
}

// Offset returns the offset at which the next byte is emitted.
func (c *Chunk) Offset() int {
	return len(c.Bytes)
}

// Size returns the number of addresses the chunk occupies.
func (c *Chunk) Size() int {
	if c.Reserved > 0 {
		return c.Reserved
	}
	return len(c.Bytes)
}

// Emit appends one encoded instruction, rebasing its fixups onto the
// chunk.
func (c *Chunk) Emit(enc *encoder.Encoded, text string, at ast.Span) {
	base := c.Offset()

	for _, f := range enc.Fixups {
		c.Fixups = append(c.Fixups, Fixup{
			Kind:   f.Kind,
			Offset: base + f.Offset,
			Symbol: f.Symbol,
			Addend: f.Addend,
			Opcode: f.Opcode,
			At:     at,
		})
	}

	c.Bytes = append(c.Bytes, enc.Bytes...)
	c.Lines = append(c.Lines, Line{Offset: base, Size: len(enc.Bytes), Text: text})
}

// EmitData appends raw bytes with a trace line.
func (c *Chunk) EmitData(bs []byte, text string) {
	base := c.Offset()
	c.Bytes = append(c.Bytes, bs...)
	c.Lines = append(c.Lines, Line{Offset: base, Size: len(bs), Text: text})
}

// AddFixup records a reference at an absolute chunk offset.
func (c *Chunk) AddFixup(f Fixup) {
	c.Fixups = append(c.Fixups, f)
}

// DefineLabel places a chunk-local label at the current offset.
func (c *Chunk) DefineLabel(name string, at ast.Span) {
	c.Labels = append(c.Labels, LocalLabel{Name: name, Offset: c.Offset(), At: at})
	c.Lines = append(c.Lines, Line{Offset: c.Offset(), Text: name, Label: true})
}

// HasLabel reports whether a local label is defined.
func (c *Chunk) HasLabel(name string) bool {
	for _, l := range c.Labels {
		if l.Name == name {
			return true
		}
	}
	return false
}

// Reserve makes the chunk occupy n addresses without emitting bytes.
func (c *Chunk) Reserve(n int, text string) {
	c.Reserved = n
	c.Lines = append(c.Lines, Line{Text: text})
}
