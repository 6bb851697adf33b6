// Package embed writes the markup that places a rendered diagram in an
// output document.
//
// Two output formats are supported. [Embedder.HTML] wraps the diagram in a
// container carrying the "ditaa" class: an inline span when the node has the
// inline flag, a paragraph otherwise. The container holds an image reference
// when an image is available and the escaped diagram text when it is not.
// [Embedder.LaTeX] emits an include command for the image, or nothing.
//
// A [*ditaa.RenderError] does not fail the document. The embedder writes a
// visible warning in its place, reports it through the [Reporter] and drops
// the node. Every other render error is returned to the caller unchanged.
package embed

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"

	"github.com/yuin/goldmark/util"

	"github.com/matzehuels/ditaadoc/pkg/diagram"
	"github.com/matzehuels/ditaadoc/pkg/ditaa"
)

// ClassName is the style class of the HTML container.
const ClassName = "ditaa"

// Renderer produces images for diagrams. *ditaa.Builder implements it.
type Renderer interface {
	Render(ctx context.Context, req ditaa.Request) (ditaa.Result, error)
}

// Reporter receives the warnings written into documents and the notices of
// diagrams shown as text.
type Reporter interface {
	Warn(ctx context.Context, line int, err error)
}

// Format selects the markup written for warnings.
type Format int

const (
	FormatHTML Format = iota
	FormatLaTeX
)

// Embedder writes diagram markup.
type Embedder struct {
	Renderer Renderer

	// Reporter is optional.
	Reporter Reporter

	// Prefix starts image file names. Empty uses the renderer's default.
	Prefix string
}

// HTML renders node and writes its HTML markup to w. imagePath is the
// directory prefix of the image reference, relative to the page.
func (e *Embedder) HTML(ctx context.Context, w io.Writer, node *diagram.Node, imagePath string) error {
	res, err := e.render(ctx, node, imagePath)
	if err != nil {
		return e.fallback(ctx, w, FormatHTML, node, err)
	}

	wrapper := "p"
	if node.Inline {
		wrapper = "span"
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "<%s class=\"%s\">", wrapper, ClassName)
	if res.Status == ditaa.StatusSkipped {
		e.notice(ctx, node, res)
		buf.Write(util.EscapeHTML([]byte(node.Code)))
	} else {
		buf.WriteString(`<img src="`)
		buf.Write(util.EscapeHTML([]byte(res.RelPath)))
		buf.WriteByte('"')
		if node.Alt != "" {
			buf.WriteString(` alt="`)
			buf.Write(util.EscapeHTML([]byte(node.Alt)))
			buf.WriteByte('"')
		}
		buf.WriteString("/>\n")
	}
	fmt.Fprintf(&buf, "</%s>\n", wrapper)

	_, err = w.Write(buf.Bytes())
	return err
}

// LaTeX renders node and writes an include command for the image to w.
// Nothing is written when no image is available.
func (e *Embedder) LaTeX(ctx context.Context, w io.Writer, node *diagram.Node) error {
	res, err := e.render(ctx, node, "")
	if err != nil {
		return e.fallback(ctx, w, FormatLaTeX, node, err)
	}
	if res.Status == ditaa.StatusSkipped {
		e.notice(ctx, node, res)
		return nil
	}
	_, err = fmt.Fprintf(w, "\\par\\includegraphics{%s}\\par", latexPath(res.AbsPath))
	return err
}

// Warning writes a visible warning for a directive that produced no node and
// reports it.
func (e *Embedder) Warning(ctx context.Context, w io.Writer, format Format, warning *diagram.Warning) error {
	e.report(ctx, warning.Line, warning)
	return writeWarning(w, format, warning.Line, warning.Message)
}

func (e *Embedder) render(ctx context.Context, node *diagram.Node, imagePath string) (ditaa.Result, error) {
	return e.Renderer.Render(ctx, ditaa.Request{
		Code:      node.Code,
		Options:   node.Options,
		ImagePath: imagePath,
		Prefix:    e.Prefix,
	})
}

// fallback turns a RenderError into a document warning. Other errors are
// returned as they are.
func (e *Embedder) fallback(ctx context.Context, w io.Writer, format Format, node *diagram.Node, err error) error {
	var re *ditaa.RenderError
	if !stderrors.As(err, &re) {
		return err
	}
	e.report(ctx, node.Line, re)
	return writeWarning(w, format, node.Line, re.Error())
}

// notice reports why an image is missing, without writing a warning into
// the document.
func (e *Embedder) notice(ctx context.Context, node *diagram.Node, res ditaa.Result) {
	if res.Notice != nil {
		e.report(ctx, node.Line, res.Notice)
	}
}

func (e *Embedder) report(ctx context.Context, line int, err error) {
	if e.Reporter != nil {
		e.Reporter.Warn(ctx, line, err)
	}
}

func writeWarning(w io.Writer, format Format, line int, message string) error {
	var buf bytes.Buffer
	switch format {
	case FormatLaTeX:
		fmt.Fprintf(&buf, "\\par\\noindent\\fbox{\\parbox{0.95\\linewidth}{\\textbf{WARNING%s:} %s}}\\par\n",
			lineSuffix(line), escapeLaTeX(message))
	default:
		buf.WriteString("<div class=\"system-message\">\n")
		fmt.Fprintf(&buf, "<p class=\"system-message-title\">System Message: WARNING%s</p>\n", lineSuffix(line))
		buf.WriteString("<pre>")
		buf.Write(util.EscapeHTML([]byte(message)))
		buf.WriteString("</pre>\n</div>\n")
	}
	_, err := w.Write(buf.Bytes())
	return err
}

func lineSuffix(line int) string {
	if line <= 0 {
		return ""
	}
	return fmt.Sprintf(" (line %d)", line)
}
