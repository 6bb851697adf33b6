// Package markdown converts Markdown pages to HTML with goldmark, rendering
// ditaa directives through the embed package.
//
// A directive is a fenced code block whose info string starts with "ditaa" or
// "{ditaa}". Further words of the info string are arguments. Leading content
// lines of the form ":name: value" (or ":name:" for flags) are options, and a
// single blank line after them is skipped:
//
//	```{ditaa} diagrams/flow.ditaa
//	:alt: Request flow
//	:inline:
//	```
//
//	```ditaa
//	:options: --no-shadows
//
//	+--------+   +-------+
//	| client |-->| proxy |
//	+--------+   +-------+
//	```
package markdown

import (
	"context"
	"io"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"

	"github.com/matzehuels/ditaadoc/pkg/diagram"
	"github.com/matzehuels/ditaadoc/pkg/embed"
	"github.com/matzehuels/ditaadoc/pkg/errors"
)

// KindDitaa is the node kind of a ditaa directive.
var KindDitaa = ast.NewNodeKind("Ditaa")

// Block is a ditaa directive in a goldmark AST. Exactly one of Node and
// Warning is set.
type Block struct {
	ast.BaseBlock

	Node    *diagram.Node
	Warning *diagram.Warning
}

// Kind implements ast.Node.
func (*Block) Kind() ast.NodeKind {
	return KindDitaa
}

// IsRaw implements ast.Node.
func (*Block) IsRaw() bool {
	return true
}

// Dump implements ast.Node.
func (b *Block) Dump(src []byte, level int) {
	kv := map[string]string{}
	if b.Node != nil {
		kv["Inline"] = boolString(b.Node.Inline)
		kv["Source"] = b.Node.Source
	}
	if b.Warning != nil {
		kv["Warning"] = b.Warning.Message
	}
	ast.DumpHelper(b, src, level, kv, nil)
}

func boolString(v bool) string {
	if v {
		return "true"
	}
	return "false"
}

// Document is one page to convert.
type Document struct {
	Source []byte

	// Env resolves filename arguments and records dependencies. It may be
	// nil, in which case filename arguments produce warnings.
	Env diagram.Env

	// ImagePath is the page-relative path of the image directory.
	ImagePath string
}

// Result describes a converted page.
type Result struct {
	// Title is the text of the first heading, or empty.
	Title string

	// Diagrams counts the ditaa directives, including rejected ones.
	Diagrams int
}

// Converter turns Markdown into HTML.
type Converter struct {
	Embedder *embed.Embedder

	// Extensions are added to every conversion after GitHub Flavored Markdown.
	Extensions []goldmark.Extender
}

// Convert writes the HTML body of doc to w. Errors returned by the embedder
// other than rendering diagnostics abort the conversion.
func (c *Converter) Convert(ctx context.Context, w io.Writer, doc Document) (Result, error) {
	if c.Embedder == nil {
		return Result{}, errors.New(errors.ErrCodeInternal, "markdown converter has no embedder")
	}

	t := &directiveTransformer{env: doc.Env}
	r := &htmlRenderer{ctx: ctx, embedder: c.Embedder, imagePath: doc.ImagePath}

	exts := append([]goldmark.Extender{extension.GFM}, c.Extensions...)
	md := goldmark.New(
		goldmark.WithExtensions(exts...),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
			parser.WithASTTransformers(util.Prioritized(t, 100)),
		),
		goldmark.WithRendererOptions(
			html.WithUnsafe(),
			renderer.WithNodeRenderers(util.Prioritized(r, 100)),
		),
	)

	root := md.Parser().Parse(text.NewReader(doc.Source))
	res := Result{Title: title(root, doc.Source), Diagrams: t.count}

	if err := md.Renderer().Render(w, doc.Source, root); err != nil {
		return res, err
	}
	return res, nil
}

// title returns the plain text of the first heading in root.
func title(root ast.Node, src []byte) string {
	var out []byte
	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		h, ok := n.(*ast.Heading)
		if !ok {
			return ast.WalkContinue, nil
		}
		out = plainText(h, src, out)
		return ast.WalkStop, nil
	})
	return string(out)
}

func plainText(n ast.Node, src []byte, out []byte) []byte {
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch t := c.(type) {
		case *ast.Text:
			out = append(out, t.Segment.Value(src)...)
			if t.SoftLineBreak() {
				out = append(out, ' ')
			}
		case *ast.String:
			out = append(out, t.Value...)
		default:
			out = plainText(c, src, out)
		}
	}
	return out
}
