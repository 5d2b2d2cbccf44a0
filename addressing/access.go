package addressing

import "github.com/sarchlab/zax/diag"

var pairHalves = map[string][2]string{
	"hl": {"l", "h"},
	"de": {"e", "d"},
	"bc": {"c", "b"},
}

// IsWordReg reports whether reg is a pair usable with typed word access.
func IsWordReg(reg string) bool {
	_, ok := pairHalves[reg]
	return ok
}

// IsByteReg reports whether reg is usable with typed byte access.
func IsByteReg(reg string) bool {
	return isByteReg(reg)
}

// Load builds the pipeline moving the value at addr into reg. The width
// follows the register: a pair loads a word, a single register a byte.
// Every register other than reg is preserved.
func Load(reg string, addr Address) (Pipeline, *diag.Diagnostic) {
	switch {
	case isByteReg(reg):
		return loadByte(reg, addr), nil
	case IsWordReg(reg):
		return loadWord(reg, addr), nil
	}
	return nil, addressError("Register %s cannot be loaded from typed storage.", reg)
}

// Store builds the pipeline moving reg into the storage at addr. Every
// register is preserved.
func Store(addr Address, reg string) (Pipeline, *diag.Diagnostic) {
	switch {
	case isByteReg(reg):
		return storeByte(addr, reg), nil
	case IsWordReg(reg):
		return storeWord(addr, reg), nil
	}
	return nil, addressError("Register %s cannot be stored to typed storage.", reg)
}

func loadByte(reg string, addr Address) Pipeline {
	switch addr.Mode {
	case AddrFrame:
		return Pipeline{load(reg, addr.Mem(0))}
	case AddrAbs:
		if reg == "a" {
			return Pipeline{load("a", addr.Mem(0))}
		}
		return Pipeline{push("af"), load("a", addr.Mem(0)), ldReg(reg, "a"), pop("af")}
	}

	if len(addr.Steps) == 0 {
		return Pipeline{load(reg, indHL)}
	}

	var p Pipeline
	switch reg {
	case "h", "l":
		p = append(p, push("de"), push("hl"))
		p = append(p, addr.Steps...)
		p = append(p, load("e", indHL), pop("hl"), ldReg(reg, "e"), pop("de"))
	case "d", "e":
		p = append(p, push("hl"), push("de"))
		p = append(p, addr.Steps...)
		p = append(p, load("l", indHL), pop("de"), ldReg(reg, "l"), pop("hl"))
	default:
		p = append(p, push("de"), push("hl"))
		p = append(p, addr.Steps...)
		p = append(p, load(reg, indHL), pop("hl"), pop("de"))
	}
	return p
}

func loadWord(reg string, addr Address) Pipeline {
	halves := pairHalves[reg]

	switch addr.Mode {
	case AddrFrame:
		if fitsDisp(addr.Disp + 1) {
			return Pipeline{load(halves[0], addr.Mem(0)), load(halves[1], addr.Mem(1))}
		}
		addr = addr.toHL()
	case AddrAbs:
		return Pipeline{load(reg, addr.Mem(0))}
	}

	var p Pipeline
	switch reg {
	case "hl":
		p = append(p, push("de"))
		p = append(p, addr.Steps...)
		p = append(p, fetchWordDE()...)
		p = append(p, exDEHL(), pop("de"))
	case "de":
		p = append(p, push("hl"))
		p = append(p, addr.Steps...)
		p = append(p, fetchWordDE()...)
		p = append(p, pop("hl"))
	default:
		p = append(p, push("de"), push("hl"))
		p = append(p, addr.Steps...)
		p = append(p, fetchWordDE()...)
		p = append(p, ldReg(halves[0], "e"), ldReg(halves[1], "d"), pop("hl"), pop("de"))
	}
	return p
}

func fetchWordDE() Pipeline {
	return Pipeline{load("e", indHL), inc("hl"), load("d", indHL)}
}

func storeByte(addr Address, reg string) Pipeline {
	switch addr.Mode {
	case AddrFrame:
		return Pipeline{store(addr.Mem(0), reg)}
	case AddrAbs:
		if reg == "a" {
			return Pipeline{store(addr.Mem(0), "a")}
		}
		return Pipeline{push("af"), ldReg("a", reg), store(addr.Mem(0), "a"), pop("af")}
	}

	if len(addr.Steps) == 0 && reg != "h" && reg != "l" {
		return Pipeline{store(indHL, reg)}
	}

	var p Pipeline
	switch reg {
	case "h", "l":
		src := map[string]string{"h": "d", "l": "e"}[reg]
		p = append(p, push("de"), push("hl"))
		p = append(p, addr.Steps...)
		p = append(p, pop("de"), store(indHL, src), exDEHL(), pop("de"))
	case "d", "e":
		p = append(p, push("hl"), push("de"))
		p = append(p, addr.Steps...)
		p = append(p, pop("de"), store(indHL, reg), pop("hl"))
	default:
		p = append(p, push("de"), push("hl"))
		p = append(p, addr.Steps...)
		p = append(p, store(indHL, reg), pop("hl"), pop("de"))
	}
	return p
}

func storeWord(addr Address, reg string) Pipeline {
	halves := pairHalves[reg]

	switch addr.Mode {
	case AddrFrame:
		if fitsDisp(addr.Disp + 1) {
			return Pipeline{store(addr.Mem(0), halves[0]), store(addr.Mem(1), halves[1])}
		}
		addr = addr.toHL()
	case AddrAbs:
		return Pipeline{store(addr.Mem(0), reg)}
	}

	var p Pipeline
	switch reg {
	case "hl":
		p = append(p, push("de"), push("hl"))
		p = append(p, addr.Steps...)
		p = append(p, pop("de"), store(indHL, "e"), inc("hl"), store(indHL, "d"), exDEHL(), pop("de"))
	case "de":
		p = append(p, push("hl"), push("de"))
		p = append(p, addr.Steps...)
		p = append(p, pop("de"), store(indHL, "e"), inc("hl"), store(indHL, "d"), pop("hl"))
	default:
		p = append(p, push("de"), push("hl"))
		p = append(p, addr.Steps...)
		p = append(p, store(indHL, halves[0]), inc("hl"), store(indHL, halves[1]), pop("hl"), pop("de"))
	}
	return p
}
