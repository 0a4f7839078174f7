package scan

import (
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var markdown = goldmark.New()

// MaskIgnorable blanks fenced and indented code blocks, inline code spans
// and block-quote content. Masked bytes become spaces (line breaks are
// kept), so the result has the same length and offsets as src.
func MaskIgnorable(src string) string {
	if src == "" {
		return src
	}
	source := []byte(src)
	out := make([]byte, len(source))
	copy(out, source)

	doc := markdown.Parser().Parse(text.NewReader(source))
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.FencedCodeBlock:
			if node.Info != nil {
				blank(out, node.Info.Segment)
			}
			blankLines(out, node.Lines())
			return ast.WalkSkipChildren, nil
		case *ast.CodeBlock:
			blankLines(out, node.Lines())
			return ast.WalkSkipChildren, nil
		case *ast.CodeSpan:
			for c := node.FirstChild(); c != nil; c = c.NextSibling() {
				if t, ok := c.(*ast.Text); ok {
					blank(out, t.Segment)
				}
			}
			return ast.WalkSkipChildren, nil
		case *ast.Blockquote:
			blankQuote(out, node)
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})

	return string(out)
}

// blankQuote masks every block line under a block quote, including
// nested lists, headings and code.
func blankQuote(out []byte, quote ast.Node) {
	_ = ast.Walk(quote, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if n.Type() == ast.TypeBlock {
			blankLines(out, n.Lines())
		}
		if fc, ok := n.(*ast.FencedCodeBlock); ok && fc.Info != nil {
			blank(out, fc.Info.Segment)
		}
		return ast.WalkContinue, nil
	})
}

func blankLines(out []byte, lines *text.Segments) {
	if lines == nil {
		return
	}
	for i := 0; i < lines.Len(); i++ {
		blank(out, lines.At(i))
	}
}

func blank(out []byte, seg text.Segment) {
	start, stop := seg.Start, seg.Stop
	if start < 0 {
		start = 0
	}
	if stop > len(out) {
		stop = len(out)
	}
	for i := start; i < stop; i++ {
		if out[i] != '\n' && out[i] != '\r' {
			out[i] = ' '
		}
	}
}
