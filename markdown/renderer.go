// Package markdown renders node type help messages.
package markdown

import (
	"bytes"

	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
)

type NodeChecker interface {
	NodeExists(identifier string) bool
}

type Renderer struct {
	gm goldmark.Markdown
}

// NewRenderer returns a GFM renderer with highlighted code blocks and
// [[nodeIdentifier|label]] links to the history of a node.
func NewRenderer(checker NodeChecker, codeStyle string) *Renderer {
	return &Renderer{
		gm: goldmark.New(
			goldmark.WithExtensions(
				extension.GFM,
				highlighting.NewHighlighting(highlighting.WithStyle(codeStyle)),
				newNodeLinks(checker),
			),
			goldmark.WithParserOptions(parser.WithAutoHeadingID()),
		),
	}
}

func (r *Renderer) Render(markdown []byte) (string, error) {
	b := &bytes.Buffer{}
	if err := r.gm.Convert(markdown, b); err != nil {
		return "", err
	}
	return b.String(), nil
}
