package encoder

import (
	"strings"

	gomock "github.com/golang/mock/gomock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/zax/ast"
	"github.com/sarchlab/zax/env"
)

func mustEncode(in *ast.Instruction) []byte {
	out, d := Encode(in, env.New())
	Expect(d).To(BeNil(), "encoding %s", ast.Format(in))
	return out.Bytes
}

func encodeError(in *ast.Instruction) string {
	out, d := Encode(in, env.New())
	Expect(out).To(BeNil())
	Expect(d).NotTo(BeNil(), "expected a diagnostic for %s", ast.Format(in))
	return d.Message
}

var (
	r   = ast.Reg
	n   = ast.Num
	sym = ast.Sym
	ind = ast.Ind
	idx = ast.IdxMem
)

var _ = Describe("Encoder", func() {
	DescribeTable("exact byte sequences",
		func(in *ast.Instruction, want []byte) {
			Expect(mustEncode(in)).To(Equal(want))
		},
		Entry("ld bc,$1234", ast.Instr("ld", r("bc"), n(0x1234)), []byte{0x01, 0x34, 0x12}),
		Entry("bit 3,a", ast.Instr("bit", n(3), r("a")), []byte{0xCB, 0x5F}),
		Entry("ex (sp),ix", ast.Instr("ex", ind("sp"), r("ix")), []byte{0xDD, 0xE3}),
		Entry("ld a,$2a", ast.Instr("ld", r("a"), n(0x2a)), []byte{0x3E, 0x2A}),
		Entry("jp $1234", ast.Instr("jp", n(0x1234)), []byte{0xC3, 0x34, 0x12}),
		Entry("nop", ast.Instr("nop"), []byte{0x00}),

		Entry("add a,b", ast.Instr("add", r("a"), r("b")), []byte{0x80}),
		Entry("xor a", ast.Instr("xor", r("a")), []byte{0xAF}),
		Entry("cp $10", ast.Instr("cp", n(0x10)), []byte{0xFE, 0x10}),
		Entry("and (hl)", ast.Instr("and", ind("hl")), []byte{0xA6}),
		Entry("or (ix+5)", ast.Instr("or", idx("ix", 5)), []byte{0xDD, 0xB6, 0x05}),
		Entry("sub (iy-2)", ast.Instr("sub", idx("iy", -2)), []byte{0xFD, 0x96, 0xFE}),
		Entry("add a,ixl", ast.Instr("add", r("a"), r("ixl")), []byte{0xDD, 0x85}),
		Entry("add hl,de", ast.Instr("add", r("hl"), r("de")), []byte{0x19}),
		Entry("adc hl,sp", ast.Instr("adc", r("hl"), r("sp")), []byte{0xED, 0x7A}),
		Entry("sbc hl,bc", ast.Instr("sbc", r("hl"), r("bc")), []byte{0xED, 0x42}),
		Entry("add ix,ix", ast.Instr("add", r("ix"), r("ix")), []byte{0xDD, 0x29}),
		Entry("add iy,de", ast.Instr("add", r("iy"), r("de")), []byte{0xFD, 0x19}),

		Entry("rl c", ast.Instr("rl", r("c")), []byte{0xCB, 0x11}),
		Entry("srl (hl)", ast.Instr("srl", ind("hl")), []byte{0xCB, 0x3E}),
		Entry("rlc (ix+3)", ast.Instr("rlc", idx("ix", 3)), []byte{0xDD, 0xCB, 0x03, 0x06}),
		Entry("set 7,(iy+1)", ast.Instr("set", n(7), idx("iy", 1)), []byte{0xFD, 0xCB, 0x01, 0xFE}),
		Entry("res 0,b", ast.Instr("res", n(0), r("b")), []byte{0xCB, 0x80}),

		Entry("ret", ast.Instr("ret"), []byte{0xC9}),
		Entry("ret nz", ast.Instr("ret", r("nz")), []byte{0xC0}),
		Entry("ret m", ast.Instr("ret", r("m")), []byte{0xF8}),
		Entry("ret c", ast.Instr("ret", r("c")), []byte{0xD8}),
		Entry("jp z,$0010", ast.Instr("jp", r("z"), n(0x10)), []byte{0xCA, 0x10, 0x00}),
		Entry("call c,$1234", ast.Instr("call", r("c"), n(0x1234)), []byte{0xDC, 0x34, 0x12}),
		Entry("call $0000", ast.Instr("call", n(0)), []byte{0xCD, 0x00, 0x00}),
		Entry("jp (hl)", ast.Instr("jp", ind("hl")), []byte{0xE9}),
		Entry("jp (ix)", ast.Instr("jp", ind("ix")), []byte{0xDD, 0xE9}),

		Entry("inc a", ast.Instr("inc", r("a")), []byte{0x3C}),
		Entry("dec (hl)", ast.Instr("dec", ind("hl")), []byte{0x35}),
		Entry("inc sp", ast.Instr("inc", r("sp")), []byte{0x33}),
		Entry("dec sp", ast.Instr("dec", r("sp")), []byte{0x3B}),
		Entry("dec ix", ast.Instr("dec", r("ix")), []byte{0xDD, 0x2B}),
		Entry("inc (ix-1)", ast.Instr("inc", idx("ix", -1)), []byte{0xDD, 0x34, 0xFF}),
		Entry("dec ixh", ast.Instr("dec", r("ixh")), []byte{0xDD, 0x25}),
		Entry("push af", ast.Instr("push", r("af")), []byte{0xF5}),
		Entry("push bc", ast.Instr("push", r("bc")), []byte{0xC5}),
		Entry("pop hl", ast.Instr("pop", r("hl")), []byte{0xE1}),
		Entry("pop iy", ast.Instr("pop", r("iy")), []byte{0xFD, 0xE1}),
		Entry("ex de,hl", ast.Instr("ex", r("de"), r("hl")), []byte{0xEB}),
		Entry("ex af,af'", ast.Instr("ex", r("af"), r("af'")), []byte{0x08}),
		Entry("ex (sp),hl", ast.Instr("ex", ind("sp"), r("hl")), []byte{0xE3}),

		Entry("ld b,c", ast.Instr("ld", r("b"), r("c")), []byte{0x41}),
		Entry("ld b,-1", ast.Instr("ld", r("b"), n(-1)), []byte{0x06, 0xFF}),
		Entry("ld (hl),$ff", ast.Instr("ld", ind("hl"), n(0xFF)), []byte{0x36, 0xFF}),
		Entry("ld (hl),e", ast.Instr("ld", ind("hl"), r("e")), []byte{0x73}),
		Entry("ld d,(hl)", ast.Instr("ld", r("d"), ind("hl")), []byte{0x56}),
		Entry("ld (ix+4),a", ast.Instr("ld", idx("ix", 4), r("a")), []byte{0xDD, 0x77, 0x04}),
		Entry("ld (iy-1),$05", ast.Instr("ld", idx("iy", -1), n(5)), []byte{0xFD, 0x36, 0xFF, 0x05}),
		Entry("ld h,(ix+2)", ast.Instr("ld", r("h"), idx("ix", 2)), []byte{0xDD, 0x66, 0x02}),
		Entry("ld ixh,b", ast.Instr("ld", r("ixh"), r("b")), []byte{0xDD, 0x60}),
		Entry("ld iyl,$07", ast.Instr("ld", r("iyl"), n(7)), []byte{0xFD, 0x2E, 0x07}),
		Entry("ld a,(bc)", ast.Instr("ld", r("a"), ind("bc")), []byte{0x0A}),
		Entry("ld (de),a", ast.Instr("ld", ind("de"), r("a")), []byte{0x12}),
		Entry("ld a,($8000)", ast.Instr("ld", r("a"), ast.AbsAddr(0x8000)), []byte{0x3A, 0x00, 0x80}),
		Entry("ld ($8000),hl", ast.Instr("ld", ast.AbsAddr(0x8000), r("hl")), []byte{0x22, 0x00, 0x80}),
		Entry("ld hl,($8000)", ast.Instr("ld", r("hl"), ast.AbsAddr(0x8000)), []byte{0x2A, 0x00, 0x80}),
		Entry("ld de,($1234)", ast.Instr("ld", r("de"), ast.AbsAddr(0x1234)), []byte{0xED, 0x5B, 0x34, 0x12}),
		Entry("ld ($1234),sp", ast.Instr("ld", ast.AbsAddr(0x1234), r("sp")), []byte{0xED, 0x73, 0x34, 0x12}),
		Entry("ld ($1234),ix", ast.Instr("ld", ast.AbsAddr(0x1234), r("ix")), []byte{0xDD, 0x22, 0x34, 0x12}),
		Entry("ld ix,$4000", ast.Instr("ld", r("ix"), n(0x4000)), []byte{0xDD, 0x21, 0x00, 0x40}),
		Entry("ld sp,hl", ast.Instr("ld", r("sp"), r("hl")), []byte{0xF9}),
		Entry("ld sp,ix", ast.Instr("ld", r("sp"), r("ix")), []byte{0xDD, 0xF9}),
		Entry("ld i,a", ast.Instr("ld", r("i"), r("a")), []byte{0xED, 0x47}),
		Entry("ld a,r", ast.Instr("ld", r("a"), r("r")), []byte{0xED, 0x5F}),
		Entry("ld hl,-2", ast.Instr("ld", r("hl"), n(-2)), []byte{0x21, 0xFE, 0xFF}),

		Entry("in a,($fe)", ast.Instr("in", r("a"), ast.PortImmOperand{Expr: ast.NumberExpr{Val: 0xFE}}), []byte{0xDB, 0xFE}),
		Entry("in b,(c)", ast.Instr("in", r("b"), ast.PortCOperand{}), []byte{0xED, 0x40}),
		Entry("out (c),a", ast.Instr("out", ast.PortCOperand{}, r("a")), []byte{0xED, 0x79}),
		Entry("out ($10),a", ast.Instr("out", ast.AbsAddr(0x10), r("a")), []byte{0xD3, 0x10}),
		Entry("rst $38", ast.Instr("rst", n(0x38)), []byte{0xFF}),
		Entry("im 2", ast.Instr("im", n(2)), []byte{0xED, 0x5E}),

		Entry("ldir", ast.Instr("ldir"), []byte{0xED, 0xB0}),
		Entry("neg", ast.Instr("neg"), []byte{0xED, 0x44}),
		Entry("reti", ast.Instr("reti"), []byte{0xED, 0x4D}),
		Entry("exx", ast.Instr("exx"), []byte{0xD9}),
		Entry("halt", ast.Instr("halt"), []byte{0x76}),
	)

	Context("fixups", func() {
		It("should defer a relative branch to a label", func() {
			out, d := Encode(ast.Instr("jr", sym("loop")), env.New())
			Expect(d).To(BeNil())
			Expect(out.Bytes).To(Equal([]byte{0x18, 0x00}))
			Expect(out.Fixups).To(Equal([]Fixup{
				{Kind: Rel8, Offset: 1, Symbol: "loop", Opcode: []byte{0x18}},
			}))
		})

		It("should carry a numeric relative target as an absolute addend", func() {
			out, d := Encode(ast.Instr("jr", r("nz"), n(0x100)), env.New())
			Expect(d).To(BeNil())
			Expect(out.Bytes).To(Equal([]byte{0x20, 0x00}))
			Expect(out.Fixups[0].Symbol).To(BeEmpty())
			Expect(out.Fixups[0].Addend).To(Equal(int64(0x100)))
		})

		It("should emit djnz as a rel8 fixup", func() {
			out, _ := Encode(ast.Instr("djnz", sym("top")), env.New())
			Expect(out.Bytes).To(Equal([]byte{0x10, 0x00}))
			Expect(out.Fixups[0].Kind).To(Equal(Rel8))
		})

		It("should record a symbol plus addend for abs16", func() {
			out, d := Encode(ast.Instr("ld", r("hl"), ast.SymOffset("buf", 2)), env.New())
			Expect(d).To(BeNil())
			Expect(out.Bytes).To(Equal([]byte{0x21, 0x00, 0x00}))
			Expect(out.Fixups).To(Equal([]Fixup{
				{Kind: Abs16, Offset: 1, Symbol: "buf", Addend: 2, Opcode: []byte{0x21}},
			}))
		})

		It("should use the ED-prefixed shape for ld rr,(nn)", func() {
			out, _ := Encode(ast.Instr("ld", r("de"), ast.Abs("ptr", 0)), env.New())
			Expect(out.Bytes).To(Equal([]byte{0xED, 0x5B, 0x00, 0x00}))
			Expect(out.Fixups[0].Kind).To(Equal(Abs16ED))
			Expect(out.Fixups[0].Offset).To(Equal(2))
		})

		It("should use the index-prefixed shape for ld ix,nn", func() {
			out, _ := Encode(ast.Instr("ld", r("ix"), sym("table")), env.New())
			Expect(out.Bytes).To(Equal([]byte{0xDD, 0x21, 0x00, 0x00}))
			Expect(out.Fixups[0].Kind).To(Equal(Abs16Index))
			Expect(out.Fixups[0].Offset).To(Equal(2))
		})

		It("should subtract a negative offset from an absolute memory symbol", func() {
			out, _ := Encode(ast.Instr("ld", r("a"), ast.Abs("buf", -1)), env.New())
			Expect(out.Fixups[0].Symbol).To(Equal("buf"))
			Expect(out.Fixups[0].Addend).To(Equal(int64(-1)))
		})

		It("should resolve conditional jumps to a fixup", func() {
			out, _ := Encode(ast.Instr("jp", r("nz"), sym("loop")), env.New())
			Expect(out.Bytes).To(Equal([]byte{0xC2, 0x00, 0x00}))
			Expect(out.Fixups[0].Kind).To(Equal(Abs16))
		})
	})

	Context("diagnostics", func() {
		It("should report unknown mnemonics", func() {
			Expect(encodeError(ast.Instr("frob", r("a")))).
				To(Equal("Unsupported instruction: frob"))
			Expect(encodeError(ast.Instr("FROB", r("a")))).
				To(Equal("Unsupported instruction: frob"))
		})

		It("should report arity for a known mnemonic", func() {
			Expect(encodeError(ast.Instr("ld", r("a")))).
				To(Equal("ld expects 2 operands (got 1)."))
			Expect(encodeError(ast.Instr("push"))).
				To(Equal("push expects 1 operand (got 0)."))
			Expect(encodeError(ast.Instr("ret", r("z"), r("z")))).
				To(Equal("ret expects 0 or 1 operands (got 2)."))
		})

		It("should report an unsupported operand shape", func() {
			Expect(encodeError(ast.Instr("ld", ind("hl"), ind("hl")))).
				To(Equal("Invalid operands for ld: ld (hl),(hl)."))
			Expect(encodeError(ast.Instr("push", r("sp")))).
				To(Equal("Invalid operands for push: push sp."))
		})

		It("should range check imm8", func() {
			Expect(encodeError(ast.Instr("ld", r("a"), n(300)))).
				To(Equal("ld expects an imm8 value in range -128..255 (got 300)."))
			Expect(encodeError(ast.Instr("cp", n(-129)))).
				To(Equal("cp expects an imm8 value in range -128..255 (got -129)."))
		})

		It("should range check imm16", func() {
			Expect(encodeError(ast.Instr("ld", r("bc"), n(70000)))).
				To(Equal("ld expects an imm16 value in range -32768..65535 (got 70000)."))
		})

		It("should range check bit indexes", func() {
			Expect(encodeError(ast.Instr("bit", n(8), r("a")))).
				To(Equal("bit expects a bit index in range 0..7 (got 8)."))
		})

		It("should range check index displacements", func() {
			Expect(encodeError(ast.Instr("ld", r("a"), idx("ix", 200)))).
				To(Equal("ld expects a displacement in range -128..127 (got 200)."))
		})

		It("should reject jr with parity or sign conditions", func() {
			Expect(encodeError(ast.Instr("jr", r("po"), sym("x")))).
				To(Equal("jr supports only nz, z, nc and c conditions (got po)."))
		})

		It("should reject symbolic imm8 values", func() {
			Expect(encodeError(ast.Instr("ld", r("a"), sym("buf")))).
				To(Equal("ld expects a constant imm8 value (got buf)."))
		})

		It("should reject bad rst vectors and interrupt modes", func() {
			Expect(encodeError(ast.Instr("rst", n(3)))).
				To(Equal("rst expects a vector in $00,$08,...,$38 (got 3)."))
			Expect(encodeError(ast.Instr("im", n(3)))).
				To(Equal("im expects mode 0, 1 or 2 (got 3)."))
		})

		It("should never use the generic message for a known mnemonic", func() {
			for head, counts := range arity {
				bad := make([]ast.Operand, counts[len(counts)-1]+1)
				for i := range bad {
					bad[i] = r("bogus")
				}
				_, d := Encode(ast.Instr(head, bad...), env.New())
				Expect(d).NotTo(BeNil(), head)
				Expect(strings.HasPrefix(d.Message, "Unsupported instruction")).
					To(BeFalse(), head)

				if counts[0] > 0 {
					shaped := make([]ast.Operand, counts[0])
					for i := range shaped {
						shaped[i] = r("bogus")
					}
					_, d = Encode(ast.Instr(head, shaped...), env.New())
					Expect(d).NotTo(BeNil(), head)
					Expect(d.Message).To(HavePrefix("Invalid operands for "+head), head)
				}
			}
		})

		It("should locate diagnostics at the instruction", func() {
			in := ast.Instr("ld", r("a"), n(999))
			in.At = ast.Span{File: "main.zax", Line: 7, Column: 3}
			_, d := Encode(in, env.New())
			Expect(d.File).To(Equal("main.zax"))
			Expect(d.Line).To(Equal(7))
		})
	})

	Context("with a resolver", func() {
		var (
			mockCtrl *gomock.Controller
			resolver *MockResolver
		)

		BeforeEach(func() {
			mockCtrl = gomock.NewController(GinkgoT())
			resolver = NewMockResolver(mockCtrl)
		})

		AfterEach(func() {
			mockCtrl.Finish()
		})

		It("should fold named constants into immediates", func() {
			resolver.EXPECT().Const("PORT").Return(int64(0x10), true)

			out, d := Encode(ast.Instr("ld", r("a"), sym("PORT")), resolver)
			Expect(d).To(BeNil())
			Expect(out.Bytes).To(Equal([]byte{0x3E, 0x10}))
		})

		It("should fall back to enum members", func() {
			resolver.EXPECT().Const("Color.Red").Return(int64(0), false)
			resolver.EXPECT().Enum("Color.Red").Return(int64(2), true)

			out, d := Encode(ast.Instr("cp", sym("Color.Red")), resolver)
			Expect(d).To(BeNil())
			Expect(out.Bytes).To(Equal([]byte{0xFE, 0x02}))
		})

		It("should treat unresolved names as fixup symbols", func() {
			resolver.EXPECT().Const("main").Return(int64(0), false).AnyTimes()
			resolver.EXPECT().Enum("main").Return(int64(0), false).AnyTimes()

			out, d := Encode(ast.Instr("call", sym("main")), resolver)
			Expect(d).To(BeNil())
			Expect(out.Fixups).To(HaveLen(1))
			Expect(out.Fixups[0].Symbol).To(Equal("main"))
		})

		It("should evaluate sizeof through type layouts", func() {
			resolver.EXPECT().Type("Point").Return(&env.Layout{Name: "Point", Size: 4}, true)

			in := ast.Instr("ld", r("bc"), ast.ImmOperand{Expr: ast.SizeofExpr{
				Type: ast.TypeRef{Name: "Point", Len: 3},
			}})
			out, d := Encode(in, resolver)
			Expect(d).To(BeNil())
			Expect(out.Bytes).To(Equal([]byte{0x01, 0x0C, 0x00}))
		})
	})
})

var _ = Describe("Condition codes", func() {
	It("should invert each condition", func() {
		pairs := map[string]string{
			"nz": "z", "z": "nz", "nc": "c", "c": "nc",
			"po": "pe", "pe": "po", "p": "m", "m": "p",
		}
		for cc, want := range pairs {
			got, ok := InvertCond(cc)
			Expect(ok).To(BeTrue())
			Expect(got).To(Equal(want))
		}
	})
})
