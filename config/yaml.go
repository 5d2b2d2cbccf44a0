package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type layoutFile struct {
	Sections Layout `yaml:"sections"`
}

// ParseLayoutYAML reads a layout document. Sections or fields left out
// keep their defaults.
//
//	sections:
//	  code: { at: 0x0000 }
//	  data: { align: 2 }
//	  var:  { at: 0xC000 }
func ParseLayoutYAML(data []byte) (Layout, error) {
	f := layoutFile{Sections: MakeLayoutBuilder().Build()}
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Layout{}, fmt.Errorf("parse layout: %w", err)
	}

	l := f.Sections
	for _, s := range []*SectionConfig{&l.Code, &l.Data, &l.Var} {
		if s.Align == 0 {
			s.Align = 1
		}
	}

	if err := l.Validate(); err != nil {
		return Layout{}, fmt.Errorf("parse layout: %w", err)
	}
	return l, nil
}

// LoadLayoutFile reads a layout document from disk.
func LoadLayoutFile(path string) (Layout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Layout{}, fmt.Errorf("load layout: %w", err)
	}
	return ParseLayoutYAML(data)
}
