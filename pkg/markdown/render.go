package markdown

import (
	"context"

	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/util"

	"github.com/matzehuels/ditaadoc/pkg/embed"
)

// htmlRenderer renders Block nodes for one conversion.
type htmlRenderer struct {
	ctx       context.Context
	embedder  *embed.Embedder
	imagePath string
}

// RegisterFuncs implements renderer.NodeRenderer.
func (r *htmlRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(KindDitaa, r.render)
}

func (r *htmlRenderer) render(w util.BufWriter, _ []byte, n ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	b := n.(*Block)

	var err error
	if b.Warning != nil {
		err = r.embedder.Warning(r.ctx, w, embed.FormatHTML, b.Warning)
	} else {
		err = r.embedder.HTML(r.ctx, w, b.Node, r.imagePath)
	}
	if err != nil {
		return ast.WalkStop, err
	}
	return ast.WalkSkipChildren, nil
}
