package pipeline

import (
	"bytes"
	"context"
	"html/template"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/matzehuels/ditaadoc/pkg/diagram"
	"github.com/matzehuels/ditaadoc/pkg/ditaa"
	"github.com/matzehuels/ditaadoc/pkg/embed"
	"github.com/matzehuels/ditaadoc/pkg/markdown"
)

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="generator" content="ditaadoc">
<title>{{.Title}}</title>
</head>
<body>
{{.Body}}</body>
</html>
`))

type pageData struct {
	Title string
	Body  template.HTML
}

// discover returns the pages under source, relative and slash separated,
// sorted. Hidden and underscore directories are skipped, as is output when
// it lies inside source.
func discover(source, output string) ([]string, error) {
	var pages []string
	err := filepath.WalkDir(source, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path == source {
				return nil
			}
			name := d.Name()
			if path == output || strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !strings.EqualFold(filepath.Ext(path), PageExt) {
			return nil
		}
		rel, err := filepath.Rel(source, path)
		if err != nil {
			return err
		}
		pages = append(pages, filepath.ToSlash(rel))
		return nil
	})
	sort.Strings(pages)
	return pages, err
}

// imagePathFor returns the image directory relative to a page's output
// directory.
func imagePathFor(output, page string) string {
	rel, err := filepath.Rel(filepath.Dir(OutputPath(output, page)), filepath.Join(output, ditaa.ImageDir))
	if err != nil {
		return ditaa.ImageDir
	}
	return filepath.ToSlash(rel)
}

// pageRenderer counts text fallbacks while forwarding to the builder.
type pageRenderer struct {
	inner   embed.Renderer
	skipped int
}

func (r *pageRenderer) Render(ctx context.Context, req ditaa.Request) (ditaa.Result, error) {
	res, err := r.inner.Render(ctx, req)
	if err == nil && res.Status == ditaa.StatusSkipped {
		r.skipped++
	}
	return res, err
}

// pageReporter counts warnings while forwarding to the collector.
type pageReporter struct {
	inner embed.Reporter
	warns int
}

func (r *pageReporter) Warn(ctx context.Context, line int, err error) {
	r.warns++
	r.inner.Warn(ctx, line, err)
}

// convertPage converts one page and writes its output file.
func (r *Runner) convertPage(ctx context.Context, opts Options, page string, collector *embed.Collector) (pageState, error) {
	src, err := os.ReadFile(filepath.Join(opts.Source, filepath.FromSlash(page)))
	if err != nil {
		return pageState{}, err
	}

	renderer := &pageRenderer{inner: r.Builder}
	reporter := &pageReporter{inner: collector.ForDoc(page)}
	conv := &markdown.Converter{
		Embedder: &embed.Embedder{Renderer: renderer, Reporter: reporter, Prefix: r.Prefix},
	}
	env := diagram.NewDocEnv(opts.Source, page)

	var body bytes.Buffer
	res, err := conv.Convert(ctx, &body, markdown.Document{
		Source:    src,
		Env:       env,
		ImagePath: imagePathFor(opts.Output, page),
	})
	if err != nil {
		return pageState{}, err
	}

	title := res.Title
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(page), filepath.Ext(page))
	}

	var out bytes.Buffer
	if err := pageTemplate.Execute(&out, pageData{Title: title, Body: template.HTML(body.String())}); err != nil {
		return pageState{}, err
	}
	dst := OutputPath(opts.Output, page)
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return pageState{}, err
	}
	if err := os.WriteFile(dst, out.Bytes(), 0644); err != nil {
		return pageState{}, err
	}

	return pageState{
		Deps:       env.Dependencies(),
		Incomplete: renderer.skipped > 0 || reporter.warns > 0,
	}, nil
}
