package content

import (
	"bytes"
	"fmt"
	"strings"

	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	highlighting "github.com/yuin/goldmark-highlighting/v2"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"

	meta "github.com/yuin/goldmark-meta"
)

func newMarkdown() goldmark.Markdown {
	return goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			extension.Footnote,
			meta.Meta,
			highlighting.NewHighlighting(
				highlighting.WithStyle("monokai"),
				highlighting.WithFormatOptions(
					chromahtml.TabWidth(4),
				),
			),
		),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
		goldmark.WithRendererOptions(
			html.WithUnsafe(),
		),
	)
}

// converted is the output of one markdown conversion pass.
type converted struct {
	html      []byte
	meta      map[string]interface{}
	firstH1   string
	plainText string
	// imageDests are image destinations exactly as written, in
	// document order. Collected during the conversion walk, not by
	// re-parsing.
	imageDests []string
}

// convertMarkdown parses and renders one markdown source, collecting
// front matter, the first H1 heading, plain text and image references
// from the same AST pass.
func convertMarkdown(md goldmark.Markdown, source []byte) (*converted, error) {
	ctx := parser.NewContext()
	reader := text.NewReader(source)
	doc := md.Parser().Parse(reader, parser.WithContext(ctx))

	out := &converted{meta: meta.Get(ctx)}

	var plain bytes.Buffer
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Heading:
			if node.Level == 1 && out.firstH1 == "" {
				out.firstH1 = string(nodeText(node, source))
			}
		case *ast.Image:
			out.imageDests = append(out.imageDests, string(node.Destination))
		case *ast.Text:
			plain.Write(node.Segment.Value(source))
			plain.WriteByte(' ')
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk markdown ast: %w", err)
	}
	out.plainText = strings.Join(strings.Fields(plain.String()), " ")

	var buf bytes.Buffer
	if err := md.Renderer().Render(&buf, source, doc); err != nil {
		return nil, fmt.Errorf("render markdown: %w", err)
	}
	out.html = buf.Bytes()
	return out, nil
}

func nodeText(n ast.Node, source []byte) []byte {
	var buf bytes.Buffer
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			buf.Write(t.Segment.Value(source))
		} else {
			buf.Write(nodeText(c, source))
		}
	}
	return buf.Bytes()
}
