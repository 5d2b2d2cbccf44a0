package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/tebeka/atexit"

	"github.com/sarchlab/zax/api"
	"github.com/sarchlab/zax/ast"
	"github.com/sarchlab/zax/config"
	"github.com/sarchlab/zax/env"
	"github.com/sarchlab/zax/lowering"
	"github.com/sarchlab/zax/verify"
)

var layoutFile = flag.String("layout", "", "YAML file describing the section layout")

func word() ast.TypeRef { return ast.TypeRef{Name: "word"} }

func byteT() ast.TypeRef { return ast.TypeRef{Name: "byte"} }

func buildEnv() *env.CompileEnv {
	return env.New().
		DefineConst("START", 10).
		DefineEnum("Mode.Fast", 1).
		DefineEnum("Mode.Slow", 2).
		DefineType(&env.Layout{
			Name: "Counter",
			Kind: env.Record,
			Size: 3,
			Fields: []env.Field{
				{Name: "mode", Offset: 0, Type: byteT()},
				{Name: "ticks", Offset: 1, Type: word()},
			},
		})
}

func buildModule() *ast.Module {
	clr := &ast.OpDecl{
		Name:   "clear",
		Params: []ast.OpParam{{Name: "r", Matcher: ast.MatchReg8}},
		Body:   []ast.Stmt{ast.Instr("ld", ast.Reg("r"), ast.Num(0))},
	}

	tick := &ast.FuncDecl{
		Name:    "tick",
		Params:  []ast.Param{{Name: "step", Type: word()}},
		Returns: []string{"hl"},
		Body: []ast.Stmt{
			ast.Instr("ld", ast.Reg("hl"), ast.EAOperand{EA: ast.EAField{
				Base: ast.EAName{Name: "state"}, Field: "ticks"}}),
			ast.Instr("ld", ast.Reg("de"), ast.Var("step")),
			ast.Instr("add", ast.Reg("hl"), ast.Reg("de")),
			ast.Instr("ld", ast.EAOperand{EA: ast.EAField{
				Base: ast.EAName{Name: "state"}, Field: "ticks"}}, ast.Reg("hl")),
		},
	}

	entry := &ast.FuncDecl{
		Name:    "main",
		Locals:  []ast.Local{{Name: "left", Type: byteT(), Init: ast.NameExpr{Name: "START"}}},
		Returns: []string{"af", "bc", "de", "hl"},
		Body: []ast.Stmt{
			ast.Instr("clear", ast.Reg("b")),
			ast.Instr("ld", ast.Reg("a"), ast.Var("left")),
			ast.Instr("or", ast.Reg("a")),
			&ast.WhileStmt{Cond: "nz"},
			&ast.SelectStmt{Selector: ast.EAOperand{EA: ast.EAField{
				Base: ast.EAName{Name: "state"}, Field: "mode"}}},
			&ast.CaseStmt{Values: []ast.Expr{ast.NameExpr{Name: "Mode.Fast"}}},
			&ast.CallStmt{Callee: "tick", Args: []ast.Operand{ast.Num(2)}},
			&ast.ElseStmt{},
			&ast.CallStmt{Callee: "tick", Args: []ast.Operand{ast.Num(1)}},
			&ast.EndStmt{},
			ast.Instr("ld", ast.Reg("a"), ast.Var("left")),
			ast.Instr("dec", ast.Reg("a")),
			ast.Instr("ld", ast.Var("left"), ast.Reg("a")),
			&ast.EndStmt{},
			ast.Instr("ld", ast.Reg("hl"), ast.Sym("messages")),
		},
	}

	return &ast.Module{
		Name: "countdown",
		Items: []ast.Item{
			clr,
			entry,
			tick,
			&ast.DataDecl{
				Name:   "messages",
				Type:   ast.TypeRef{Name: "addr", Len: 2},
				Values: []ast.Expr{ast.NameExpr{Name: "main"}, ast.NameExpr{Name: "tick"}},
			},
			&ast.SectionDirective{Section: ast.SectionVar, At: ast.NumberExpr{Val: 0xC000}},
			&ast.VarDecl{Name: "state", Type: ast.TypeRef{Name: "Counter"}},
		},
	}
}

func loadLayout() config.Layout {
	if *layoutFile == "" {
		return config.MakeLayoutBuilder().Build()
	}

	layout, err := config.LoadLayoutFile(*layoutFile)
	if err != nil {
		slog.Error("cannot load layout", "error", err)
		atexit.Exit(2)
	}
	return layout
}

func main() {
	flag.Parse()

	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: lowering.LevelTrace,
	})
	slog.SetDefault(slog.New(handler))

	c := api.MakeCompilerBuilder().
		WithLayout(loadLayout()).
		WithHook(api.LogHook{}).
		Build("zax")

	r := c.Compile(buildModule(), buildEnv())

	fmt.Print(r.Trace)
	printStack(r.Stack)

	if r.HasErrors() {
		for _, d := range r.Diagnostics {
			fmt.Println(d)
		}
		atexit.Exit(1)
	}

	r.Image.WriteSymbolTable(os.Stdout)
	atexit.Exit(0)
}

func printStack(report *verify.Report) {
	if report == nil {
		return
	}
	report.WriteReport(os.Stdout)
}
