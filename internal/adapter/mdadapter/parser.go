package mdadapter

import (
	"regexp"
	"strconv"

	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
)

var progressRe = regexp.MustCompile(`^\{\{\s*progress:\s*([0-9]+(?:\.[0-9]+)?|\?)\s*\}\}`)

type progressParser struct{}

func NewProgressParser() parser.InlineParser {
	return &progressParser{}
}

func (p *progressParser) Trigger() []byte {
	return []byte{'{'}
}

func (p *progressParser) Parse(parent ast.Node, block text.Reader, pc parser.Context) ast.Node {
	line, _ := block.PeekLine()

	matches := progressRe.FindSubmatch(line)
	if matches == nil {
		return nil
	}

	node := &Progress{}
	if v, err := strconv.ParseFloat(string(matches[1]), 64); err == nil {
		node.Percent = min(v, 100)
		node.Known = true
	}

	block.Advance(len(matches[0]))

	return node
}
