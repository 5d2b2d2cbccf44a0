package linker

import (
	"fmt"
	"strings"
)

// Trace renders every placed chunk in layout order. Each chunk starts with
// its name as a label line; instruction lines show the address, the final
// (patched) bytes and the canonical text.
func (img *Image) Trace() string {
	var b strings.Builder

	for _, p := range img.Placements {
		if !p.Placed {
			continue
		}

		fmt.Fprintf(&b, "%s:\n", p.Chunk.Name)
		for _, line := range p.Chunk.Lines {
			if line.Label {
				fmt.Fprintf(&b, "%s:\n", line.Text)
				continue
			}

			addr := p.Address + line.Offset
			fmt.Fprintf(&b, "%04X  %-12s %s\n", addr, img.hexBytes(addr, line.Size), line.Text)
		}
	}

	return b.String()
}

func (img *Image) hexBytes(addr, n int) string {
	parts := make([]string, 0, n)
	for i := 0; i < n; i++ {
		v, _ := img.Bytes.Get(addr + i)
		parts = append(parts, fmt.Sprintf("%02X", v))
	}
	return strings.Join(parts, " ")
}
