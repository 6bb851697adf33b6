package pipeline

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/ditaadoc/pkg/ditaa"
	"github.com/matzehuels/ditaadoc/pkg/embed"
	"github.com/matzehuels/ditaadoc/pkg/observability"
)

// Runner builds documentation trees with one ditaa builder.
// Both the CLI and the preview server use it so builds behave the same.
//
// Build calls must not overlap: each one starts a new builder run, which
// clears the sticky failure flag of any build still in progress.
type Runner struct {
	Builder *ditaa.Builder
	Logger  *log.Logger

	// Prefix starts image file names. Empty uses ditaa.DefaultPrefix.
	Prefix string
}

// NewRunner creates a runner. If logger is nil, logging is discarded.
func NewRunner(b *ditaa.Builder, logger *log.Logger) *Runner {
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	return &Runner{
		Builder: b,
		Logger:  logger,
	}
}

// Build converts the pages under opts.Source that are out of date.
func (r *Runner) Build(ctx context.Context, opts Options) (*Result, error) {
	cfg := r.Builder.Config()
	if err := opts.validateAndSetDefaults(cfg.OutDir); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = r.Logger
	}

	start := time.Now()
	runID := r.Builder.Reset()
	logger = logger.With("run", runID)
	hooks := observability.Build()

	pages, err := discover(opts.Source, opts.Output)
	if err != nil {
		return nil, fmt.Errorf("discover pages: %w", err)
	}
	hooks.OnBuildStart(ctx, runID, len(pages))
	logger.Info("building documentation", "source", opts.Source, "output", opts.Output, "pages", len(pages))

	prefix := r.Prefix
	if prefix == "" {
		prefix = ditaa.DefaultPrefix
	}
	tool := toolFingerprint(cfg.Path, cfg.Args, prefix)
	prev, err := loadState(opts.Output, tool)
	if err != nil {
		logger.Debug("ignoring unreadable environment file", "err", err)
	}
	next := newState(tool)

	result := &Result{RunID: runID}
	collector := embed.NewCollector(logger)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)

	for _, page := range pages {
		if !opts.Force && !prev.stale(opts.Source, opts.Output, page) {
			next.Pages[page] = prev.Pages[page]
			result.Skipped++
			continue
		}

		g.Go(func() error {
			pageStart := time.Now()
			ps, err := r.convertPage(gctx, opts, page, collector)
			hooks.OnPageComplete(gctx, page, time.Since(pageStart), err)
			if err != nil {
				return fmt.Errorf("%s: %w", page, err)
			}
			logger.Debug("converted page", "page", page, "duration", time.Since(pageStart))

			mu.Lock()
			defer mu.Unlock()
			next.Pages[page] = ps
			result.Built = append(result.Built, page)
			return nil
		})
	}

	err = g.Wait()
	result.Warnings = collector.Reports()
	result.Duration = time.Since(start)
	sort.Strings(result.Built)
	hooks.OnBuildComplete(ctx, runID, len(result.Built), result.Skipped, result.Duration, err)
	if err != nil {
		return result, err
	}

	if err := next.save(opts.Output); err != nil {
		logger.Warn("cannot write environment file", "err", err)
	}

	logger.Info("build finished",
		"built", len(result.Built),
		"skipped", result.Skipped,
		"warnings", len(result.Warnings),
		"duration", result.Duration)
	return result, nil
}
