package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/tebeka/atexit"

	"github.com/sarchlab/zax/api"
	"github.com/sarchlab/zax/ast"
	"github.com/sarchlab/zax/diag"
	"github.com/sarchlab/zax/env"
)

// buildModule collects the mistakes the backend diagnoses: a stack
// imbalance across an if, an ambiguous op call, an untracked SP change and
// a relative branch that cannot reach its target.
func buildModule() *ast.Module {
	return &ast.Module{
		Name: "broken",
		Items: []ast.Item{
			&ast.OpDecl{
				Name:   "put",
				Params: []ast.OpParam{{Name: "r", Matcher: ast.MatchReg8}},
				Body:   []ast.Stmt{ast.Instr("ld", ast.Reg("r"), ast.Num(1))},
			},
			&ast.OpDecl{
				Name:   "put",
				Params: []ast.OpParam{{Name: "cc", Matcher: ast.MatchCC}},
				Body:   []ast.Stmt{ast.Instr("ret", ast.Reg("cc"))},
			},
			&ast.OpDecl{
				Name: "swapstack",
				Body: []ast.Stmt{ast.Instr("ld", ast.Reg("sp"), ast.Reg("hl"))},
			},
			&ast.FuncDecl{
				Name:    "unbalanced",
				Returns: []string{"af", "bc", "de", "hl"},
				Body: []ast.Stmt{
					&ast.IfStmt{Cond: "z"},
					ast.Instr("push", ast.Reg("hl")),
					&ast.EndStmt{},
				},
			},
			&ast.FuncDecl{
				Name:    "ambiguous",
				Returns: []string{"af", "bc", "de", "hl"},
				Body:    []ast.Stmt{ast.Instr("put", ast.Reg("c"))},
			},
			&ast.FuncDecl{
				Name:    "untracked",
				Returns: []string{"af", "bc", "de", "hl"},
				Body: []ast.Stmt{
					ast.Instr("swapstack"),
					ast.Instr("ret"),
				},
			},
			&ast.FuncDecl{
				Name:    "far",
				Returns: []string{"af", "bc", "de", "hl"},
				Body: []ast.Stmt{
					ast.Instr("jr", ast.Sym("away")),
					ast.Instr("ld", ast.Reg("a"), ast.Num(0)),
				},
			},
			&ast.SectionDirective{Section: ast.SectionData, At: ast.NumberExpr{Val: 0x0200}},
			&ast.DataDecl{Name: "away", Type: ast.TypeRef{Name: "byte"}},
		},
	}
}

func main() {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	slog.SetDefault(slog.New(handler))

	r := api.MakeCompilerBuilder().Build("zax").Compile(buildModule(), env.New())

	list := &diag.List{}
	list.Add(r.Diagnostics...)
	list.WriteReport(os.Stdout)
	r.Stack.WriteReport(os.Stdout)

	fmt.Printf("image produced: %v\n", r.Image != nil)
	if r.HasErrors() {
		atexit.Exit(1)
	}
	atexit.Exit(0)
}
