package mdadapter

import (
	"strconv"

	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/util"
)

type progressRenderer struct{}

func NewProgressRenderer() renderer.NodeRenderer {
	return &progressRenderer{}
}

func (r *progressRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(KindProgress, r.renderProgress)
}

func (r *progressRenderer) renderProgress(w util.BufWriter, source []byte, n ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}

	node := n.(*Progress)

	if !node.Known {
		_, _ = w.WriteString(`<progress class="indeterminate"></progress>`)

		return ast.WalkContinue, nil
	}

	pct := strconv.FormatFloat(node.Percent, 'f', 1, 64)
	_, _ = w.WriteString(`<progress max="100" value="` + pct + `">` + pct + `%</progress>`)

	return ast.WalkContinue, nil
}
