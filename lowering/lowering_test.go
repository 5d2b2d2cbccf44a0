package lowering

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/zax/ast"
	"github.com/sarchlab/zax/config"
	"github.com/sarchlab/zax/diag"
	"github.com/sarchlab/zax/env"
	"github.com/sarchlab/zax/linker"
)

var allRegs = []string{"af", "bc", "de", "hl"}

func fnDecl(name string, returns []string, body ...ast.Stmt) *ast.FuncDecl {
	return &ast.FuncDecl{Name: name, Returns: returns, Body: body}
}

type output struct {
	prog  *Program
	diags *diag.List
	img   *linker.Image
	link  []*diag.Diagnostic
}

func (o output) bytes(name string) []byte {
	sym, ok := o.img.Lookup(name)
	Expect(ok).To(BeTrue(), "symbol %s", name)
	return o.img.Bytes.Slice(sym.Address, sym.Address+sym.Size)
}

func compile(e *env.CompileEnv, items ...ast.Item) output {
	diags := &diag.List{}
	p := New(e, diags).LowerModule(&ast.Module{Name: "test", Items: items})

	l := linker.New(config.MakeLayoutBuilder().Build()).WithResolver(e)
	for _, x := range p.Externs {
		l.DefineExtern(x.Name, x.Address, x.At)
	}
	img, ds := l.Link(p.Chunks)

	return output{prog: p, diags: diags, img: img, link: ds}
}

var _ = Describe("Lowerer", func() {
	var e *env.CompileEnv

	BeforeEach(func() {
		e = env.New()
	})

	Context("functions", func() {
		It("should emit a nop frame, the body and an implicit ret", func() {
			out := compile(e, fnDecl("main", allRegs,
				ast.Instr("ld", ast.Reg("a"), ast.Num(0x2A)),
				ast.Instr("jp", ast.Num(0x1234)),
			))

			Expect(out.diags.Items()).To(BeEmpty())
			Expect(out.link).To(BeEmpty())
			Expect(out.bytes("main")).To(Equal([]byte{0x00, 0x3E, 0x2A, 0xC3, 0x34, 0x12, 0xC9}))

			Expect(out.prog.Stack.Functions).To(HaveLen(1))
			Expect(out.prog.Stack.Functions[0].Reachable).To(BeFalse())
			Expect(out.prog.Stack.IssueCount()).To(Equal(0))
		})

		It("should preserve registers and route ret cc through the epilogue", func() {
			out := compile(e, fnDecl("f", []string{"hl"},
				ast.Instr("or", ast.Reg("a")),
				ast.Instr("ret", ast.Reg("z")),
				ast.Instr("ld", ast.Reg("a"), ast.Num(1)),
			))

			Expect(out.diags.Items()).To(BeEmpty())
			Expect(out.bytes("f")).To(Equal([]byte{
				0xF5, 0xC5, 0xD5, // push af; push bc; push de
				0xB7,             // or a
				0xCA, 0x09, 0x00, // jp z,__zax_epilogue_N
				0x3E, 0x01, // ld a,$01
				0xD1, 0xC1, 0xF1, // pop de; pop bc; pop af
				0xC9,
			}))
			Expect(out.prog.Stack.Functions[0].Returns).To(Equal(1))
		})

		It("should restore preserved registers before reti", func() {
			out := compile(e, fnDecl("isr", nil, ast.Instr("reti")))

			Expect(out.diags.Items()).To(BeEmpty())
			Expect(out.bytes("isr")).To(Equal([]byte{
				0xF5, 0xC5, 0xD5, 0xE5, // push af; push bc; push de; push hl
				0xE1, 0xD1, 0xC1, 0xF1, // pop hl; pop de; pop bc; pop af
				0xED, 0x4D, // reti
				0xE1, 0xD1, 0xC1, 0xF1,
				0xC9,
			}))
		})

		It("should tear down the IX frame before retn", func() {
			f := fnDecl("nmi", allRegs, ast.Instr("retn"))
			f.Params = []ast.Param{{Name: "p", Type: ast.TypeRef{Name: "word"}}}

			out := compile(e, f)

			Expect(out.diags.Items()).To(BeEmpty())
			Expect(out.bytes("nmi")).To(Equal([]byte{
				0xDD, 0xE5,
				0xDD, 0x21, 0x00, 0x00,
				0xDD, 0x39,
				0xDD, 0xF9, // ld sp,ix
				0xDD, 0xE1, // pop ix
				0xED, 0x45, // retn
				0xDD, 0xF9,
				0xDD, 0xE1,
				0xC9,
			}))
		})

		It("should build an IX frame and load parameters through it", func() {
			f := fnDecl("f", allRegs, ast.Instr("ld", ast.Reg("hl"), ast.Var("p")))
			f.Params = []ast.Param{{Name: "p", Type: ast.TypeRef{Name: "word"}}}

			out := compile(e, f)

			Expect(out.diags.Items()).To(BeEmpty())
			Expect(out.bytes("f")).To(Equal([]byte{
				0xDD, 0xE5, // push ix
				0xDD, 0x21, 0x00, 0x00, // ld ix,$0000
				0xDD, 0x39, // add ix,sp
				0xDD, 0x6E, 0x04, // ld l,(ix+4)
				0xDD, 0x66, 0x05, // ld h,(ix+5)
				0xDD, 0xF9, // ld sp,ix
				0xDD, 0xE1, // pop ix
				0xC9,
			}))
		})

		It("should initialise locals without clobbering hl", func() {
			f := fnDecl("f", allRegs)
			f.Locals = []ast.Local{{Name: "n", Type: ast.TypeRef{Name: "byte"}, Init: ast.NumberExpr{Val: 3}}}

			out := compile(e, f)

			Expect(out.diags.Items()).To(BeEmpty())
			Expect(out.bytes("f")).To(Equal([]byte{
				0xDD, 0xE5,
				0xDD, 0x21, 0x00, 0x00,
				0xDD, 0x39,
				0xE5,             // push hl
				0x21, 0x03, 0x00, // ld hl,$0003
				0xE3,       // ex (sp),hl
				0xDD, 0xF9, // ld sp,ix
				0xDD, 0xE1, // pop ix
				0xC9,
			}))
		})

		It("should reject locals wider than a frame slot", func() {
			f := fnDecl("f", allRegs)
			f.Locals = []ast.Local{{Name: "buf", Type: ast.TypeRef{Name: "byte", Len: 4}}}

			out := compile(e, f)

			Expect(out.diags.Messages()).To(ConsistOf(
				`Local "buf" of type byte[4] does not fit a 2-byte frame slot.`))
		})

		It("should diagnose duplicate functions", func() {
			out := compile(e, fnDecl("f", allRegs), fnDecl("f", allRegs))

			Expect(out.diags.Messages()).To(ContainElement(`Duplicate function "f".`))
		})
	})

	Context("stack verification", func() {
		It("should report an if join mismatch", func() {
			out := compile(e, fnDecl("f", allRegs,
				&ast.IfStmt{Cond: "z"},
				ast.Instr("push", ast.Reg("hl")),
				&ast.EndStmt{},
			))

			Expect(out.diags.Messages()).To(Equal([]string{
				"Stack depth mismatch at if join (-2 vs 0).",
				`Function "f" has unknown stack depth at fallthrough; cannot verify stack balance.`,
			}))
			Expect(out.prog.Stack.Functions[0].Issues).To(HaveLen(2))
		})

		It("should accept balanced arms", func() {
			out := compile(e, fnDecl("f", allRegs,
				&ast.IfStmt{Cond: "nz"},
				ast.Instr("push", ast.Reg("hl")),
				ast.Instr("pop", ast.Reg("hl")),
				&ast.ElseStmt{},
				ast.Instr("inc", ast.Reg("a")),
				&ast.EndStmt{},
			))

			Expect(out.diags.Items()).To(BeEmpty())
			Expect(out.bytes("f")).To(Equal([]byte{
				0x00,
				0xCA, 0x09, 0x00, // jp z,else
				0xE5, 0xE1, // push hl; pop hl
				0xC3, 0x0A, 0x00, // jp end
				0x3C, // else: inc a
				0xC9, // end
			}))
		})

		It("should report untracked SP mutation from an op at ret", func() {
			out := compile(e,
				&ast.OpDecl{Name: "setsp", Body: []ast.Stmt{ast.Instr("ld", ast.Reg("sp"), ast.Reg("hl"))}},
				fnDecl("f", allRegs,
					ast.Instr("setsp"),
					ast.Instr("ret"),
				))

			Expect(out.diags.Messages()).To(Equal([]string{
				"ret reached after untracked SP mutation; cannot verify function stack balance.",
			}))
		})

		It("should report a ret with a non-zero delta", func() {
			out := compile(e, fnDecl("f", allRegs,
				ast.Instr("push", ast.Reg("bc")),
				ast.Instr("ret"),
			))

			Expect(out.diags.Messages()).To(Equal([]string{"ret with non-zero tracked stack delta (-2)."}))
		})

		It("should report a repeat back-edge mismatch", func() {
			out := compile(e, fnDecl("f", allRegs,
				&ast.RepeatStmt{},
				ast.Instr("push", ast.Reg("hl")),
				&ast.UntilStmt{Cond: "z"},
			))

			Expect(out.diags.Messages()).To(Equal([]string{
				"Stack depth mismatch at repeat back-edge (0 vs -2).",
				`Function "f" has unknown stack depth at fallthrough; cannot verify stack balance.`,
			}))
		})

		It("should report fallthrough imbalance by function name", func() {
			out := compile(e, fnDecl("leaky", allRegs, ast.Instr("push", ast.Reg("de"))))

			Expect(out.diags.Messages()).To(Equal([]string{
				`Function "leaky" has non-zero stack delta (-2) at fallthrough.`,
			}))
		})
	})

	Context("control statements", func() {
		It("should lower while with a trailing condition test", func() {
			out := compile(e, fnDecl("f", allRegs,
				&ast.WhileStmt{Cond: "nz"},
				ast.Instr("dec", ast.Reg("a")),
				&ast.EndStmt{},
			))

			Expect(out.diags.Items()).To(BeEmpty())
			Expect(out.bytes("f")).To(Equal([]byte{
				0x00,
				0xC3, 0x05, 0x00, // jp cond
				0x3D,             // top: dec a
				0xC2, 0x04, 0x00, // cond: jp nz,top
				0xC9,
			}))
		})

		It("should lower repeat with the inverse condition", func() {
			out := compile(e, fnDecl("f", allRegs,
				&ast.RepeatStmt{},
				ast.Instr("dec", ast.Reg("b")),
				&ast.UntilStmt{Cond: "z"},
			))

			Expect(out.diags.Items()).To(BeEmpty())
			Expect(out.bytes("f")).To(Equal([]byte{
				0x00,
				0x05,             // top: dec b
				0xC2, 0x01, 0x00, // jp nz,top
				0xC9,
			}))
		})

		It("should lower select into a compare chain", func() {
			out := compile(e, fnDecl("f", allRegs,
				&ast.SelectStmt{Selector: ast.Reg("b")},
				&ast.CaseStmt{Values: []ast.Expr{ast.NumberExpr{Val: 1}}},
				ast.Instr("ld", ast.Reg("c"), ast.Num(1)),
				&ast.CaseStmt{Values: []ast.Expr{ast.NumberExpr{Val: 2}, ast.NumberExpr{Val: 3}}},
				ast.Instr("ld", ast.Reg("c"), ast.Num(2)),
				&ast.ElseStmt{},
				ast.Instr("ld", ast.Reg("c"), ast.Num(0)),
				&ast.EndStmt{},
			))

			Expect(out.diags.Items()).To(BeEmpty())
			Expect(out.bytes("f")).To(Equal([]byte{
				0x00,
				0x78,       // ld a,b
				0xFE, 0x01, // cp 1
				0xC2, 0x0C, 0x00, // jp nz,next
				0x0E, 0x01, // ld c,1
				0xC3, 0x1D, 0x00, // jp end
				0xFE, 0x02, // next: cp 2
				0xCA, 0x16, 0x00, // jp z,arm
				0xFE, 0x03, // cp 3
				0xC2, 0x1B, 0x00, // jp nz,next
				0x0E, 0x02, // arm: ld c,2
				0xC3, 0x1D, 0x00, // jp end
				0x0E, 0x00, // else: ld c,0
				0xC9, // end
			}))
		})

		It("should diagnose duplicate case values", func() {
			out := compile(e, fnDecl("f", allRegs,
				&ast.SelectStmt{Selector: ast.Reg("a")},
				&ast.CaseStmt{Values: []ast.Expr{ast.NumberExpr{Val: 1}}},
				&ast.CaseStmt{Values: []ast.Expr{ast.NumberExpr{Val: 1}}},
				&ast.EndStmt{},
			))

			Expect(out.diags.Messages()).To(Equal([]string{"Duplicate case value 1 in select."}))
		})

		DescribeTable("malformed structure",
			func(want []string, body []ast.Stmt) {
				out := compile(e, fnDecl("f", allRegs, body...))
				if want == nil {
					Expect(out.diags.Items()).To(BeEmpty())
					return
				}
				Expect(out.diags.Messages()).To(Equal(want))
			},
			Entry("stray else", []string{"else without if or select."}, []ast.Stmt{&ast.ElseStmt{}}),
			Entry("stray end", []string{"end without an open if, while or select."}, []ast.Stmt{&ast.EndStmt{}}),
			Entry("stray until", []string{"until without repeat."}, []ast.Stmt{&ast.UntilStmt{Cond: "z"}}),
			Entry("stray case", []string{"case without select."}, []ast.Stmt{&ast.CaseStmt{}}),
			Entry("missing end", []string{"Unterminated if: missing end."}, []ast.Stmt{&ast.IfStmt{Cond: "z"}}),
			Entry("duplicate else", []string{"Duplicate else in if."},
				[]ast.Stmt{&ast.IfStmt{Cond: "z"}, &ast.ElseStmt{}, &ast.ElseStmt{}, &ast.EndStmt{}}),
			Entry("case after else", []string{"case after else in select."},
				[]ast.Stmt{&ast.SelectStmt{Selector: ast.Reg("a")}, &ast.ElseStmt{},
					&ast.CaseStmt{Values: []ast.Expr{ast.NumberExpr{Val: 1}}}, &ast.EndStmt{}}),
			Entry("end on repeat",
				[]string{"end cannot close repeat; expected until.", "Unterminated repeat: missing until."},
				[]ast.Stmt{&ast.RepeatStmt{}, &ast.EndStmt{}}),
			Entry("invalid condition", []string{`Invalid condition "q" in if.`},
				[]ast.Stmt{&ast.IfStmt{Cond: "q"}, &ast.EndStmt{}}),
			Entry("malformed keyword stays silent", nil,
				[]ast.Stmt{&ast.WhileStmt{Malformed: true}}),
		)
	})

	Context("typed storage", func() {
		It("should use the direct form for a byte global into a", func() {
			out := compile(e,
				&ast.VarDecl{Name: "counter", Type: ast.TypeRef{Name: "byte"}},
				fnDecl("f", allRegs, ast.Instr("ld", ast.Reg("a"), ast.Var("counter"))),
			)

			Expect(out.diags.Items()).To(BeEmpty())
			Expect(out.bytes("f")).To(Equal([]byte{0x00, 0x3A, 0x05, 0x00, 0xC9}))
		})

		It("should reject a width mismatch", func() {
			out := compile(e,
				&ast.VarDecl{Name: "counter", Type: ast.TypeRef{Name: "byte"}},
				fnDecl("f", allRegs, ast.Instr("ld", ast.Reg("hl"), ast.Var("counter"))),
			)

			Expect(out.diags.Messages()).To(Equal([]string{
				"Width mismatch: counter is 1 byte(s) but hl is 2 byte(s).",
			}))
		})

		It("should lower typed storage bound to an op memory parameter", func() {
			e.DefineType(&env.Layout{
				Name: "Rec",
				Kind: env.Record,
				Size: 2,
				Fields: []env.Field{
					{Name: "e", Offset: 0, Type: ast.TypeRef{Name: "byte"}},
					{Name: "f", Offset: 1, Type: ast.TypeRef{Name: "byte"}},
				},
			})
			elem := ast.MemOperand{EA: ast.EAIndex{
				Base:  ast.EAName{Name: "arr"},
				Index: ast.IndexImm{Expr: ast.NumberExpr{Val: 2}},
			}}
			field := ast.MemOperand{EA: ast.EAField{Base: ast.EAName{Name: "rec"}, Field: "f"}}

			out := compile(e,
				&ast.VarDecl{Name: "arr", Type: ast.TypeRef{Name: "byte", Len: 4}},
				&ast.VarDecl{Name: "rec", Type: ast.TypeRef{Name: "Rec"}},
				&ast.OpDecl{
					Name:   "getb",
					Params: []ast.OpParam{{Name: "x", Matcher: ast.MatchMem8}},
					Body:   []ast.Stmt{ast.Instr("ld", ast.Reg("a"), ast.Reg("x"))},
				},
				fnDecl("direct", allRegs,
					ast.Instr("ld", ast.Reg("a"), elem),
					ast.Instr("ld", ast.Reg("a"), field),
				),
				fnDecl("viaop", allRegs,
					ast.Instr("getb", elem),
					ast.Instr("getb", field),
				),
			)

			Expect(out.diags.Items()).To(BeEmpty())
			Expect(out.link).To(BeEmpty())
			Expect(out.bytes("viaop")).To(Equal(out.bytes("direct")))
		})

		It("should reject typed operands outside ld", func() {
			out := compile(e,
				&ast.VarDecl{Name: "counter", Type: ast.TypeRef{Name: "byte"}},
				fnDecl("f", allRegs, ast.Instr("add", ast.Reg("a"), ast.Var("counter"))),
			)

			Expect(out.diags.Messages()).To(Equal([]string{
				"Typed storage operands are only supported by ld: add a,counter.",
			}))
		})
	})

	Context("calls", func() {
		It("should push arguments, call and drop the slots", func() {
			callee := fnDecl("f", allRegs)
			callee.Params = []ast.Param{{Name: "p", Type: ast.TypeRef{Name: "word"}}}
			main := fnDecl("main", allRegs,
				&ast.CallStmt{Callee: "f", Args: []ast.Operand{ast.Num(7)}})

			out := compile(e, main, callee)

			Expect(out.diags.Items()).To(BeEmpty())
			Expect(out.bytes("main")).To(Equal([]byte{
				0x00,
				0xE5,             // push hl
				0x21, 0x07, 0x00, // ld hl,$0007
				0xE3,             // ex (sp),hl
				0xCD, 0x0C, 0x00, // call f
				0x33, 0x33, // inc sp; inc sp
				0xC9,
			}))
		})

		It("should call externs at their fixed address", func() {
			out := compile(e,
				&ast.ExternFunc{Name: "putc", Address: ast.NumberExpr{Val: 0x0010},
					Params: []ast.Param{{Name: "ch", Type: ast.TypeRef{Name: "byte"}}}},
				fnDecl("main", allRegs, &ast.CallStmt{Callee: "putc", Args: []ast.Operand{ast.Reg("a")}}),
			)

			Expect(out.diags.Items()).To(BeEmpty())
			Expect(out.link).To(BeEmpty())
			Expect(out.bytes("main")).To(Equal([]byte{
				0x00,
				0xE5,       // push hl
				0x6F,       // ld l,a
				0x26, 0x00, // ld h,$00
				0xE3,             // ex (sp),hl
				0xCD, 0x10, 0x00, // call putc
				0x33, 0x33,
				0xC9,
			}))
		})

		It("should check the argument count", func() {
			callee := fnDecl("f", allRegs)
			out := compile(e, callee,
				fnDecl("main", allRegs, &ast.CallStmt{Callee: "f", Args: []ast.Operand{ast.Num(1)}}),
				fnDecl("other", allRegs, &ast.CallStmt{Callee: "nope"}),
			)

			Expect(out.diags.Messages()).To(Equal([]string{
				`Function "f" expects 0 argument(s) (got 1).`,
				`Unknown function "nope".`,
			}))
		})
	})

	Context("data and placement", func() {
		It("should emit words with symbol fixups and reserve vars", func() {
			out := compile(e,
				fnDecl("main", allRegs, ast.Instr("ret")),
				&ast.DataDecl{Name: "table", Type: ast.TypeRef{Name: "word", Len: 2},
					Values: []ast.Expr{ast.NumberExpr{Val: 0x1234}, ast.NameExpr{Name: "main"}}},
				&ast.VarDecl{Name: "buf", Type: ast.TypeRef{Name: "byte", Len: 4}},
			)

			Expect(out.diags.Items()).To(BeEmpty())
			Expect(out.link).To(BeEmpty())
			Expect(out.bytes("main")).To(Equal([]byte{0x00, 0xC9, 0xC9}))
			Expect(out.bytes("table")).To(Equal([]byte{0x34, 0x12, 0x00, 0x00}))

			buf, ok := out.img.Lookup("buf")
			Expect(ok).To(BeTrue())
			Expect(buf.Address).To(Equal(7))
			Expect(buf.Size).To(Equal(4))
		})

		It("should apply section directives to the next item", func() {
			out := compile(e,
				&ast.SectionDirective{Section: ast.SectionCode, At: ast.NumberExpr{Val: 0x100}},
				fnDecl("main", allRegs),
			)

			Expect(out.diags.Items()).To(BeEmpty())
			sym, ok := out.img.Lookup("main")
			Expect(ok).To(BeTrue())
			Expect(sym.Address).To(Equal(0x100))
		})

		It("should report every lowered chunk", func() {
			diags := &diag.List{}
			var names []string
			New(e, diags).
				OnChunk(func(c *linker.Chunk) { names = append(names, c.Name) }).
				LowerModule(&ast.Module{Items: []ast.Item{
					fnDecl("a", allRegs),
					&ast.VarDecl{Name: "v", Type: ast.TypeRef{Name: "word"}},
				}})

			Expect(names).To(Equal([]string{"a", "v"}))
		})
	})
})
