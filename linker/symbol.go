package linker

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
)

// SymbolKind classifies a symbol table entry.
type SymbolKind string

// Symbol kinds.
const (
	SymFunction SymbolKind = "function"
	SymLabel    SymbolKind = "label"
	SymData     SymbolKind = "data"
	SymVar      SymbolKind = "var"
	SymConstant SymbolKind = "constant"
	SymExtern   SymbolKind = "extern"
)

// ModuleScope is the scope of module-level symbols.
const ModuleScope = "module"

// Symbol is one entry of the symbol table. Constants carry a Value and no
// address.
type Symbol struct {
	Name       string
	Kind       SymbolKind
	Address    int
	HasAddress bool
	Value      int64
	Size       int
	Scope      string
	File       string
	Line       int
}

// WriteSymbolTable renders the symbol table.
func (img *Image) WriteSymbolTable(w io.Writer) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(fmt.Sprintf("Symbols (%d)", len(img.Symbols)))
	t.AppendHeader(table.Row{"Name", "Kind", "Address", "Value", "Size", "Scope"})

	for _, s := range img.Symbols {
		addr, value, size := "", "", ""
		if s.HasAddress {
			addr = fmt.Sprintf("$%04X", s.Address)
		}
		if s.Kind == SymConstant {
			value = fmt.Sprintf("%d", s.Value)
		}
		if s.Size > 0 {
			size = fmt.Sprintf("%d", s.Size)
		}
		t.AppendRow(table.Row{s.Name, s.Kind, addr, value, size, s.Scope})
	}

	t.Render()
}
