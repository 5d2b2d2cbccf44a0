package api

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/zax/ast"
	"github.com/sarchlab/zax/config"
	"github.com/sarchlab/zax/diag"
	"github.com/sarchlab/zax/env"
	"github.com/sarchlab/zax/linker"
)

type recordingHook struct {
	positions []string
	items     []interface{}
}

func (h *recordingHook) Func(ctx sim.HookCtx) {
	h.positions = append(h.positions, ctx.Pos.Name)
	h.items = append(h.items, ctx.Item)
}

func mainModule() *ast.Module {
	return &ast.Module{
		Name: "demo",
		Items: []ast.Item{
			&ast.FuncDecl{
				Name:    "main",
				Returns: []string{"af", "bc", "de", "hl"},
				Body: []ast.Stmt{
					ast.Instr("ld", ast.Reg("a"), ast.Num(0x2A)),
					ast.Instr("jp", ast.Num(0x1234)),
				},
			},
		},
	}
}

var _ = Describe("Compiler", func() {
	var (
		hook *recordingHook
		c    *Compiler
	)

	BeforeEach(func() {
		hook = &recordingHook{}
		c = MakeCompilerBuilder().WithHook(hook).Build("zax")
	})

	It("should compile the minimal program", func() {
		r := c.Compile(mainModule(), env.New())

		Expect(r.HasErrors()).To(BeFalse())
		Expect(r.Image).NotTo(BeNil())
		Expect(r.Image.Bytes.Slice(0, 7)).To(Equal([]byte{0x00, 0x3E, 0x2A, 0xC3, 0x34, 0x12, 0xC9}))
		Expect(r.Trace).To(Equal("main:\n" +
			"0000  00           nop\n" +
			"0001  3E 2A        ld a,$2A\n" +
			"0003  C3 34 12     jp $1234\n" +
			"0006  C9           ret\n"))
	})

	It("should produce identical output when compiling twice", func() {
		m := &ast.Module{
			Name: "loops",
			Items: []ast.Item{
				&ast.FuncDecl{
					Name:    "main",
					Returns: []string{"hl"},
					Body: []ast.Stmt{
						&ast.WhileStmt{Cond: "nz"},
						ast.Instr("dec", ast.Reg("a")),
						&ast.EndStmt{},
						&ast.CallStmt{Callee: "helper"},
					},
				},
				&ast.FuncDecl{Name: "helper", Returns: []string{"af", "bc", "de", "hl"}},
			},
		}

		first := MakeCompilerBuilder().Build("a").Compile(m, env.New())
		second := MakeCompilerBuilder().Build("b").Compile(m, env.New())

		Expect(first.HasErrors()).To(BeFalse())
		Expect(second.Trace).To(Equal(first.Trace))
		lo, hi, _ := first.Image.Bytes.Range()
		Expect(second.Image.Bytes.Slice(lo, hi+1)).To(Equal(first.Image.Bytes.Slice(lo, hi+1)))
	})

	It("should withhold the image when errors are reported", func() {
		m := mainModule()
		fn := m.Items[0].(*ast.FuncDecl)
		fn.Body = append(fn.Body, ast.Instr("jr", ast.Sym("nowhere")))

		r := c.Compile(m, env.New())

		Expect(r.HasErrors()).To(BeTrue())
		Expect(r.Image).To(BeNil())
		Expect(r.Trace).NotTo(BeEmpty())
		Expect(r.Messages()).To(Equal([]string{`Unresolved symbol "nowhere".`}))
	})

	It("should invoke hooks for chunks, fixups, diagnostics and completion", func() {
		m := mainModule()
		fn := m.Items[0].(*ast.FuncDecl)
		fn.Body = append([]ast.Stmt{ast.Instr("call", ast.Sym("main"))}, fn.Body...)

		r := c.Compile(m, env.New())

		Expect(hook.positions).To(Equal([]string{
			HookPosChunkLowered.Name,
			HookPosFixupResolved.Name,
			HookPosCompileDone.Name,
		}))
		Expect(hook.items[0].(*linker.Chunk).Name).To(Equal("main"))
		Expect(hook.items[1].(linker.Patch).Symbol).To(Equal("main"))
		Expect(hook.items[2]).To(BeIdenticalTo(r))
	})

	It("should report diagnostics through hooks", func() {
		m := mainModule()
		fn := m.Items[0].(*ast.FuncDecl)
		fn.Body = []ast.Stmt{ast.Instr("push", ast.Reg("de"))}

		c.Compile(m, env.New())

		Expect(hook.positions).To(ContainElement(HookPosDiagnostic.Name))
		for i, p := range hook.positions {
			if p == HookPosDiagnostic.Name {
				Expect(hook.items[i].(*diag.Diagnostic).ID).To(Equal(diag.Stack))
			}
		}
	})

	It("should place sections from the configured layout", func() {
		layout := config.MakeLayoutBuilder().WithCodeBase(0x8000).Build()
		r := MakeCompilerBuilder().WithLayout(layout).Build("zax").Compile(mainModule(), env.New())

		sym, ok := r.Image.Lookup("main")
		Expect(ok).To(BeTrue())
		Expect(sym.Address).To(Equal(0x8000))
	})

	It("should list environment constants in the symbol table", func() {
		e := env.New().DefineConst("LIMIT", 10)

		r := c.Compile(mainModule(), e)

		sym, ok := r.Image.Lookup("LIMIT")
		Expect(ok).To(BeTrue())
		Expect(sym.Kind).To(Equal(linker.SymConstant))
		Expect(sym.Value).To(Equal(int64(10)))
	})

	It("should log hook events without failing", func() {
		logged := MakeCompilerBuilder().WithHook(LogHook{}).Build("zax")
		Expect(logged.Compile(mainModule(), env.New()).HasErrors()).To(BeFalse())
	})
})
