// Helpers using closures to generate deterministic synthetic names.
package util

import "fmt"

// LabelPrefix starts every compiler-generated label.
const LabelPrefix = "__zax_"

// MakeIncreasingGen returns a generator yielding start+1, start+2, ...
func MakeIncreasingGen(start int) func() int {
	current := start
	return func() int {
		current++
		return current
	}
}

// MakeLabelGen returns a generator of labels __zax_<kind>_1, __zax_<kind>_2,
// ... sharing the numbering of next.
func MakeLabelGen(kind string, next func() int) func() string {
	return func() string {
		return fmt.Sprintf("%s%s_%d", LabelPrefix, kind, next())
	}
}

// IsSynthetic reports whether name was produced by a label generator.
func IsSynthetic(name string) bool {
	return len(name) >= len(LabelPrefix) && name[:len(LabelPrefix)] == LabelPrefix
}
