package lowering

import (
	"fmt"
	"strings"

	"github.com/sarchlab/zax/ast"
	"github.com/sarchlab/zax/diag"
	"github.com/sarchlab/zax/encoder"
	"github.com/sarchlab/zax/env"
	"github.com/sarchlab/zax/linker"
)

// lowerData emits initialised storage. Byte elements take one byte each,
// anything else is a little-endian word that may refer to a symbol.
// Missing trailing initialisers are zero.
func (l *Lowerer) lowerData(x *ast.DataDecl) *linker.Chunk {
	c := linker.NewChunk(x.Name, linker.SymData, ast.SectionData)
	c.Span = x.At

	size, err := env.SizeOf(l.res, x.Type)
	if err != nil {
		l.diags.Add(diag.Errorf(diag.Layout, x.At, "Data %q has no size: %v.", x.Name, err))
		return nil
	}

	elem := 2
	count := size / 2
	if strings.EqualFold(x.Type.Name, "byte") {
		elem, count = 1, size
	}
	if len(x.Values) > count {
		l.diags.Add(diag.Errorf(diag.Layout, x.At,
			"Data %q has %d initialiser(s) but room for %d.", x.Name, len(x.Values), count))
	}

	var bs []byte
	texts := make([]string, 0, len(x.Values))
	for i, e := range x.Values {
		if i >= count {
			break
		}
		texts = append(texts, ast.FormatExpr(e))

		if elem == 1 {
			bs = append(bs, l.dataByte(x, e))
			continue
		}
		bs = l.dataWord(c, bs, x, e)
	}
	bs = append(bs, make([]byte, size-len(bs))...)

	directive := "dw"
	if elem == 1 {
		directive = "db"
	}
	text := fmt.Sprintf("%s %s", directive, strings.Join(texts, ","))
	if len(texts) == 0 {
		text = fmt.Sprintf("ds %d", size)
	}
	c.EmitData(bs, text)

	Trace("lowered data", "name", x.Name, "size", size, "fixups", len(c.Fixups))
	return c
}

func (l *Lowerer) dataByte(x *ast.DataDecl, e ast.Expr) byte {
	v, err := env.Eval(l.res, e)
	if err != nil || v < -128 || v > 255 {
		l.diags.Add(diag.Errorf(diag.Layout, x.At,
			"Byte initialiser %s of %q must be a constant in -128..255.", ast.FormatExpr(e), x.Name))
		return 0
	}
	return byte(v)
}

// dataWord appends one word to bs. A symbolic word is left zero with a
// fixup at its offset.
func (l *Lowerer) dataWord(c *linker.Chunk, bs []byte, x *ast.DataDecl, e ast.Expr) []byte {
	v, err := env.EvalSymbolic(l.res, e)
	if err != nil {
		l.diags.Add(diag.Errorf(diag.Layout, x.At,
			"Word initialiser %s of %q cannot be evaluated: %v.", ast.FormatExpr(e), x.Name, err))
		return append(bs, 0, 0)
	}

	if !v.IsConst() {
		c.AddFixup(linker.Fixup{
			Kind:   encoder.Abs16,
			Offset: len(bs),
			Symbol: v.Sym,
			Addend: v.Addend,
			At:     x.At,
		})
		return append(bs, 0, 0)
	}

	if v.Addend < -32768 || v.Addend > 65535 {
		l.diags.Add(diag.Errorf(diag.Layout, x.At,
			"Word initialiser %s of %q must be in -32768..65535.", ast.FormatExpr(e), x.Name))
	}
	return append(bs, byte(v.Addend), byte(v.Addend>>8))
}

// lowerVar reserves address space in the var section.
func (l *Lowerer) lowerVar(x *ast.VarDecl) *linker.Chunk {
	size, err := env.SizeOf(l.res, x.Type)
	if err != nil {
		l.diags.Add(diag.Errorf(diag.Layout, x.At, "Var %q has no size: %v.", x.Name, err))
		return nil
	}

	c := linker.NewChunk(x.Name, linker.SymVar, ast.SectionVar)
	c.Span = x.At
	c.Reserve(size, fmt.Sprintf("ds %d", size))
	return c
}
