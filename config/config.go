// Package config provides the section layout used when linking a module.
package config

import (
	"fmt"

	"github.com/sarchlab/zax/ast"
)

// SectionConfig places one output section. A nil At makes the section
// follow the end of the previous one.
type SectionConfig struct {
	At    *int `yaml:"at"`
	Align int  `yaml:"align"`
}

// Layout places the code, data and var sections.
type Layout struct {
	Code SectionConfig `yaml:"code"`
	Data SectionConfig `yaml:"data"`
	Var  SectionConfig `yaml:"var"`
}

// Section returns the configuration of one section.
func (l Layout) Section(k ast.SectionKind) SectionConfig {
	switch k {
	case ast.SectionData:
		return l.Data
	case ast.SectionVar:
		return l.Var
	default:
		return l.Code
	}
}

// Validate checks that bases fit in the address space and alignments are
// positive.
func (l Layout) Validate() error {
	for _, k := range []ast.SectionKind{ast.SectionCode, ast.SectionData, ast.SectionVar} {
		s := l.Section(k)
		if s.At != nil && (*s.At < 0 || *s.At > 0xFFFF) {
			return fmt.Errorf("section %s: base $%X outside 0..$FFFF", k, *s.At)
		}
		if s.Align < 1 {
			return fmt.Errorf("section %s: align must be at least 1, got %d", k, s.Align)
		}
	}
	return nil
}

// LayoutBuilder can build section layouts.
type LayoutBuilder struct {
	code, data, vars SectionConfig
}

// MakeLayoutBuilder creates a builder with the default layout: code at
// $0000, data after code and var after data, all byte aligned.
func MakeLayoutBuilder() LayoutBuilder {
	zero := 0
	return LayoutBuilder{
		code: SectionConfig{At: &zero, Align: 1},
		data: SectionConfig{Align: 1},
		vars: SectionConfig{Align: 1},
	}
}

// WithCodeBase pins the code section.
func (b LayoutBuilder) WithCodeBase(addr int) LayoutBuilder {
	b.code.At = &addr
	return b
}

// WithDataBase pins the data section.
func (b LayoutBuilder) WithDataBase(addr int) LayoutBuilder {
	b.data.At = &addr
	return b
}

// WithVarBase pins the var section.
func (b LayoutBuilder) WithVarBase(addr int) LayoutBuilder {
	b.vars.At = &addr
	return b
}

// WithAlign sets the base alignment of one section.
func (b LayoutBuilder) WithAlign(k ast.SectionKind, align int) LayoutBuilder {
	switch k {
	case ast.SectionData:
		b.data.Align = align
	case ast.SectionVar:
		b.vars.Align = align
	default:
		b.code.Align = align
	}
	return b
}

// Build creates the layout.
func (b LayoutBuilder) Build() Layout {
	return Layout{Code: b.code, Data: b.data, Var: b.vars}
}
