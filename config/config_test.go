package config

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/zax/ast"
)

var _ = Describe("Layout", func() {
	It("should default to code at zero with following sections", func() {
		l := MakeLayoutBuilder().Build()

		Expect(l.Code.At).NotTo(BeNil())
		Expect(*l.Code.At).To(Equal(0))
		Expect(l.Data.At).To(BeNil())
		Expect(l.Var.At).To(BeNil())
		Expect(l.Validate()).To(Succeed())
	})

	It("should pin and align sections through the builder", func() {
		l := MakeLayoutBuilder().
			WithCodeBase(0x100).
			WithVarBase(0xC000).
			WithAlign(ast.SectionData, 16).
			Build()

		Expect(*l.Section(ast.SectionCode).At).To(Equal(0x100))
		Expect(*l.Section(ast.SectionVar).At).To(Equal(0xC000))
		Expect(l.Section(ast.SectionData).Align).To(Equal(16))
	})

	It("should not share state between builder copies", func() {
		base := MakeLayoutBuilder()
		pinned := base.WithDataBase(0x8000).Build()

		Expect(base.Build().Data.At).To(BeNil())
		Expect(*pinned.Data.At).To(Equal(0x8000))
	})

	It("should reject a base outside the address space", func() {
		l := MakeLayoutBuilder().WithVarBase(0x10000).Build()
		Expect(l.Validate()).To(MatchError(ContainSubstring("section var")))
	})

	Context("YAML", func() {
		It("should parse a layout document", func() {
			l, err := ParseLayoutYAML([]byte(`
sections:
  code: { at: 0x0100 }
  data: { align: 2 }
  var:  { at: 0xC000 }
`))
			Expect(err).NotTo(HaveOccurred())
			Expect(*l.Code.At).To(Equal(0x100))
			Expect(l.Code.Align).To(Equal(1))
			Expect(l.Data.At).To(BeNil())
			Expect(l.Data.Align).To(Equal(2))
			Expect(*l.Var.At).To(Equal(0xC000))
		})

		It("should keep defaults for missing sections", func() {
			l, err := ParseLayoutYAML([]byte("sections: {}\n"))
			Expect(err).NotTo(HaveOccurred())
			Expect(l).To(Equal(MakeLayoutBuilder().Build()))
		})

		It("should wrap parse errors", func() {
			_, err := ParseLayoutYAML([]byte("sections: [1, 2"))
			Expect(err).To(MatchError(HavePrefix("parse layout:")))
		})

		It("should load a layout file", func() {
			path := filepath.Join(GinkgoT().TempDir(), "layout.yaml")
			Expect(os.WriteFile(path, []byte("sections:\n  data: { at: 0x4000 }\n"), 0o644)).To(Succeed())

			l, err := LoadLayoutFile(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(*l.Data.At).To(Equal(0x4000))

			_, err = LoadLayoutFile(filepath.Join(GinkgoT().TempDir(), "missing.yaml"))
			Expect(err).To(MatchError(HavePrefix("load layout:")))
		})
	})
})
