package markdown

import (
	"bytes"
	"net/url"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

// HistoryPath is where node links point to.
const HistoryPath = "/history"

type nodeLinkParser struct {
	checker NodeChecker
}

func newNodeLinkParser(checker NodeChecker) parser.InlineParser {
	return &nodeLinkParser{
		checker: checker,
	}
}

func (n *nodeLinkParser) Trigger() []byte {
	return []byte{'['}
}

func (n *nodeLinkParser) Parse(_ ast.Node, block text.Reader, _ parser.Context) ast.Node {
	line, segment := block.PeekLine()

	if len(line) < 2 || line[1] != '[' {
		return nil
	}

	endIndex := bytes.Index(line, []byte{']', ']'})
	if endIndex == -1 {
		return nil
	}

	pipeIndex := bytes.Index(line[:endIndex], []byte{'|'})

	var identifier []byte
	if pipeIndex == -1 {
		identifier = bytes.TrimSpace(line[2:endIndex])
	} else {
		identifier = bytes.TrimSpace(line[2:pipeIndex])
	}
	if len(identifier) == 0 {
		return nil
	}

	block.Advance(endIndex + 2)

	link := ast.NewLink()
	link.Title = identifier
	link.Destination = []byte(HistoryPath + "?" + url.Values{"nodeIdentifier": {string(identifier)}}.Encode())
	if n.checker != nil && n.checker.NodeExists(string(identifier)) {
		link.SetAttributeString("class", []byte("nodelink"))
	} else {
		link.SetAttributeString("class", []byte("nodelink missing"))
	}

	t := ast.NewText()
	if pipeIndex == -1 {
		t.Segment = text.NewSegment(segment.Start+2, segment.Start+endIndex)
	} else {
		t.Segment = text.NewSegment(segment.Start+pipeIndex+1, segment.Start+endIndex)
	}
	link.AppendChild(link, t)

	return link
}

type nodeLinkExtension struct {
	checker NodeChecker
}

func newNodeLinks(checker NodeChecker) goldmark.Extender {
	return &nodeLinkExtension{checker: checker}
}

func (e *nodeLinkExtension) Extend(m goldmark.Markdown) {
	m.Parser().AddOptions(parser.WithInlineParsers(
		util.Prioritized(newNodeLinkParser(e.checker), 102),
	))
}
