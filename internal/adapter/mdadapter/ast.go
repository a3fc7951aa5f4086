package mdadapter

import (
	"strconv"

	"github.com/yuin/goldmark/ast"
)

var KindProgress = ast.NewNodeKind("Progress")

// Progress is an inline progress bar written as {{progress: 42.5}}.
// A "?" value means the total is unknown.
type Progress struct {
	ast.BaseInline
	Percent float64
	Known   bool
}

func (n *Progress) Kind() ast.NodeKind {
	return KindProgress
}

func (n *Progress) Dump(source []byte, level int) {
	ast.DumpHelper(n, source, level, map[string]string{
		"Percent": strconv.FormatFloat(n.Percent, 'f', 1, 64),
		"Known":   strconv.FormatBool(n.Known),
	}, nil)
}
