package linker

// AddressSpace is the number of addressable bytes.
const AddressSpace = 0x10000

// ByteMap is the address-to-byte image. Every address is claimed by at
// most one owner; a second claim is an overlap.
type ByteMap struct {
	data    []byte
	owner   []int32
	written []bool
}

// NewByteMap creates an empty map.
func NewByteMap() *ByteMap {
	return &ByteMap{
		data:    make([]byte, AddressSpace),
		owner:   make([]int32, AddressSpace),
		written: make([]bool, AddressSpace),
	}
}

// claim marks addr as owned by owner (>= 0). When it already belongs to
// another owner, that owner is returned and ok is false.
func (m *ByteMap) claim(addr, owner int) (prev int, ok bool) {
	if p := m.owner[addr]; p != 0 && int(p)-1 != owner {
		return int(p) - 1, false
	}
	m.owner[addr] = int32(owner + 1)
	return owner, true
}

// Write stores b at addr on behalf of owner.
func (m *ByteMap) Write(addr int, b byte, owner int) (prev int, ok bool) {
	if prev, ok := m.claim(addr, owner); !ok {
		return prev, false
	}
	m.data[addr] = b
	m.written[addr] = true
	return owner, true
}

// Reserve claims addr without writing a byte.
func (m *ByteMap) Reserve(addr, owner int) (prev int, ok bool) {
	return m.claim(addr, owner)
}

// Patch overwrites an already written byte.
func (m *ByteMap) Patch(addr int, b byte) {
	m.data[addr] = b
}

// Get returns the byte at addr and whether it was written.
func (m *ByteMap) Get(addr int) (byte, bool) {
	if addr < 0 || addr >= AddressSpace {
		return 0, false
	}
	return m.data[addr], m.written[addr]
}

// Range returns the lowest and highest written addresses.
func (m *ByteMap) Range() (lo, hi int, ok bool) {
	lo, hi = -1, -1
	for a := 0; a < AddressSpace; a++ {
		if !m.written[a] {
			continue
		}
		if lo < 0 {
			lo = a
		}
		hi = a
	}
	return lo, hi, lo >= 0
}

// Slice returns the bytes in [lo, hi); unwritten addresses read as zero.
func (m *ByteMap) Slice(lo, hi int) []byte {
	out := make([]byte, hi-lo)
	copy(out, m.data[lo:hi])
	return out
}

// Len returns the number of written addresses.
func (m *ByteMap) Len() int {
	n := 0
	for _, w := range m.written {
		if w {
			n++
		}
	}
	return n
}
