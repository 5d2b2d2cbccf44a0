package lowering

import (
	"context"
	"log/slog"

	"github.com/sarchlab/zax/util"
)

const (
	LevelTrace slog.Level = slog.LevelInfo + 1
)

func Trace(msg string, args ...any) {
	slog.Log(context.Background(), LevelTrace, msg, args...)
}

// labelGens hands out synthetic labels. All kinds share one counter so a
// label number is unique across the module.
type labelGens struct {
	ifElse, ifEnd         func() string
	whileTop, whileCond   func() string
	repeatTop             func() string
	selectArm, selectNext func() string
	selectEnd             func() string
	epilogue              func() string
}

func makeLabelGens(next func() int) labelGens {
	return labelGens{
		ifElse:     util.MakeLabelGen("if_else", next),
		ifEnd:      util.MakeLabelGen("if_end", next),
		whileTop:   util.MakeLabelGen("while_top", next),
		whileCond:  util.MakeLabelGen("while_cond", next),
		repeatTop:  util.MakeLabelGen("repeat_top", next),
		selectArm:  util.MakeLabelGen("select_arm", next),
		selectNext: util.MakeLabelGen("select_next", next),
		selectEnd:  util.MakeLabelGen("select_end", next),
		epilogue:   util.MakeLabelGen("epilogue", next),
	}
}
