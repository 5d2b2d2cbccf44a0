package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/tebeka/atexit"

	"github.com/sarchlab/zax/api"
	"github.com/sarchlab/zax/ast"
	"github.com/sarchlab/zax/env"
	"github.com/sarchlab/zax/lowering"
)

func main() {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: lowering.LevelTrace,
	})
	slog.SetDefault(slog.New(handler))

	m := &ast.Module{
		Name: "hello",
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

	c := api.MakeCompilerBuilder().WithHook(api.LogHook{}).Build("zax")
	r := c.Compile(m, env.New())

	fmt.Print(r.Trace)
	if r.HasErrors() {
		for _, d := range r.Diagnostics {
			fmt.Println(d)
		}
		atexit.Exit(1)
	}

	lo, hi, _ := r.Image.Bytes.Range()
	fmt.Printf("% X\n", r.Image.Bytes.Slice(lo, hi+1))

	atexit.Exit(0)
}
