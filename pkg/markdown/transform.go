package markdown

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"

	"github.com/matzehuels/ditaadoc/pkg/diagram"
)

// directiveTransformer replaces ditaa fenced code blocks with Block nodes.
type directiveTransformer struct {
	env   diagram.Env
	count int
}

// Transform implements parser.ASTTransformer.
func (t *directiveTransformer) Transform(doc *ast.Document, reader text.Reader, _ parser.Context) {
	src := reader.Source()

	var fences []*ast.FencedCodeBlock
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if fb, ok := n.(*ast.FencedCodeBlock); ok && isDirective(fb, src) {
			fences = append(fences, fb)
		}
		return ast.WalkContinue, nil
	})

	for _, fb := range fences {
		b := &Block{}
		b.Node, b.Warning = diagram.Parse(blockFromFence(fb, src), t.env)
		b.SetLines(fb.Lines())
		if parent := fb.Parent(); parent != nil {
			parent.ReplaceChild(parent, fb, b)
		}
		t.count++
	}
}

func infoWords(fb *ast.FencedCodeBlock, src []byte) []string {
	if fb.Info == nil {
		return nil
	}
	return strings.Fields(string(fb.Info.Segment.Value(src)))
}

func isDirective(fb *ast.FencedCodeBlock, src []byte) bool {
	words := infoWords(fb, src)
	if len(words) == 0 {
		return false
	}
	return words[0] == diagram.DirectiveName || words[0] == "{"+diagram.DirectiveName+"}"
}

// blockFromFence splits a fenced block into arguments, options and content.
func blockFromFence(fb *ast.FencedCodeBlock, src []byte) diagram.Block {
	words := infoWords(fb, src)
	b := diagram.Block{
		Name:    diagram.DirectiveName,
		Args:    words[1:],
		Options: map[string]string{},
		Line:    fenceLine(fb, src),
	}

	lines := fb.Lines()
	raw := make([]string, 0, lines.Len())
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		raw = append(raw, strings.TrimRight(string(seg.Value(src)), "\r\n"))
	}

	i := 0
	for ; i < len(raw); i++ {
		name, value, ok := parseOption(raw[i])
		if !ok {
			break
		}
		b.Options[name] = value
	}
	if i > 0 && i < len(raw) && strings.TrimSpace(raw[i]) == "" {
		i++
	}

	content := raw[i:]
	for len(content) > 0 && strings.TrimSpace(content[len(content)-1]) == "" {
		content = content[:len(content)-1]
	}
	if len(content) > 0 {
		b.Content = content
	}
	return b
}

// parseOption parses ":name: value" and ":name:".
func parseOption(line string) (name, value string, ok bool) {
	if !strings.HasPrefix(line, ":") {
		return "", "", false
	}
	end := strings.Index(line[1:], ":")
	if end <= 0 {
		return "", "", false
	}
	name = line[1 : end+1]
	if strings.ContainsAny(name, " \t") {
		return "", "", false
	}
	rest := line[end+2:]
	if rest != "" && rest[0] != ' ' && rest[0] != '\t' {
		return "", "", false
	}
	return name, strings.TrimSpace(rest), true
}

// fenceLine returns the 1-based line of the opening fence.
func fenceLine(fb *ast.FencedCodeBlock, src []byte) int {
	var offset int
	switch {
	case fb.Info != nil:
		offset = fb.Info.Segment.Start
	case fb.Lines().Len() > 0:
		offset = fb.Lines().At(0).Start
		return bytes.Count(src[:offset], []byte("\n"))
	default:
		return 0
	}
	return bytes.Count(src[:offset], []byte("\n")) + 1
}
