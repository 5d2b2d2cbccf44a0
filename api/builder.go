package api

import (
	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/zax/config"
)

// CompilerBuilder creates a new instance of Compiler.
type CompilerBuilder struct {
	layout config.Layout
	hooks  []sim.Hook
}

// MakeCompilerBuilder creates a builder with the default section layout.
func MakeCompilerBuilder() CompilerBuilder {
	return CompilerBuilder{
		layout: config.MakeLayoutBuilder().Build(),
	}
}

// WithLayout sets the section layout used by the linker.
func (b CompilerBuilder) WithLayout(layout config.Layout) CompilerBuilder {
	b.layout = layout
	return b
}

// WithHook attaches a hook to the compiler.
func (b CompilerBuilder) WithHook(h sim.Hook) CompilerBuilder {
	b.hooks = append(append([]sim.Hook{}, b.hooks...), h)
	return b
}

// Build creates a compiler.
func (b CompilerBuilder) Build(name string) *Compiler {
	c := &Compiler{
		HookableBase: sim.NewHookableBase(),
		name:         name,
		layout:       b.layout,
	}

	for _, h := range b.hooks {
		c.AcceptHook(h)
	}

	return c
}
