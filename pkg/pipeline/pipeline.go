// Package pipeline builds a tree of Markdown pages into HTML, rendering the
// ditaa diagrams they contain.
//
// This package is shared by the CLI build command and the preview server, so
// both produce the same output tree:
//
//	<output>/
//	    index.html
//	    guide/intro.html
//	    _images/ditaa-<digest>.png
//	    .ditaadoc/env.json
//
// # Usage
//
//	builder, _ := ditaa.New(ditaa.Config{OutDir: "_build"})
//	runner := pipeline.NewRunner(builder, logger)
//	result, err := runner.Build(ctx, pipeline.Options{Source: "docs"})
//
// # Incremental builds
//
// The environment file records, for every page, the files its directives
// read. A page is converted again when its output is missing, when the page
// or one of those files is newer than the output, when its previous build
// left warnings or text fallbacks, or when the tool configuration changed.
// [Options.Force] converts every page.
package pipeline

import (
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/ditaadoc/pkg/embed"
	"github.com/matzehuels/ditaadoc/pkg/errors"
)

// =============================================================================
// Default Values
// =============================================================================

const (
	// DefaultWorkers is the number of pages converted concurrently.
	DefaultWorkers = 4

	// PageExt is the extension of source pages.
	PageExt = ".md"

	// OutputExt is the extension of generated pages.
	OutputExt = ".html"

	// StateDir holds build bookkeeping inside the output directory.
	StateDir = ".ditaadoc"

	// StateFile is the environment file inside StateDir.
	StateFile = "env.json"
)

// =============================================================================
// Options - Build Configuration
// =============================================================================

// Options configures one build.
type Options struct {
	// Source is the directory of Markdown pages.
	Source string

	// Output is the build output directory. It defaults to the builder's
	// output directory and must match it when set.
	Output string

	// Workers bounds concurrent page conversions. Zero uses DefaultWorkers.
	Workers int

	// Force converts every page regardless of the environment file.
	Force bool

	// Logger overrides the runner's logger for this build.
	Logger *log.Logger
}

// Result summarizes a build.
type Result struct {
	// RunID identifies the build in logs.
	RunID string

	// Built lists the converted pages, relative to Source, sorted.
	Built []string

	// Skipped counts up-to-date pages that were not converted.
	Skipped int

	// Warnings are the warnings written into pages during this build.
	Warnings []embed.Report

	// Duration is the wall time of the build.
	Duration time.Duration
}

// validateAndSetDefaults checks required fields and applies defaults.
func (o *Options) validateAndSetDefaults(builderOut string) error {
	if o.Source == "" {
		return errors.New(errors.ErrCodeInvalidInput, "source directory is required")
	}
	src, err := filepath.Abs(o.Source)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidPath, err, "resolve source %q", o.Source)
	}
	o.Source = src

	if o.Output == "" {
		o.Output = builderOut
	}
	out, err := filepath.Abs(o.Output)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidPath, err, "resolve output %q", o.Output)
	}
	if out != builderOut {
		return errors.New(errors.ErrCodeInvalidInput, "output %s differs from the renderer output %s", out, builderOut)
	}
	o.Output = out
	if o.Output == o.Source {
		return errors.New(errors.ErrCodeInvalidInput, "output directory cannot be the source directory")
	}

	if o.Workers < 0 {
		return errors.New(errors.ErrCodeInvalidInput, "workers cannot be negative, got %d", o.Workers)
	}
	if o.Workers == 0 {
		o.Workers = DefaultWorkers
	}
	return nil
}

// OutputPath returns the generated page path for a source page relative to
// the source root.
func OutputPath(output, page string) string {
	base := page[:len(page)-len(filepath.Ext(page))]
	return filepath.Join(output, filepath.FromSlash(base)+OutputExt)
}
