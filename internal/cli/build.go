package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/matzehuels/ditaadoc/pkg/observability"
	"github.com/matzehuels/ditaadoc/pkg/pipeline"
)

// buildOptions holds flags for the build command.
type buildOptions struct {
	output   string
	workers  int
	force    bool
	noRemote bool
	quiet    bool
}

// buildCommand creates the build command for converting a documentation tree.
func (c *CLI) buildCommand() *cobra.Command {
	var opts buildOptions

	cmd := &cobra.Command{
		Use:   "build [source]",
		Short: "Build a Markdown tree into HTML",
		Long: `Build converts every Markdown page under the source directory into HTML.

Each ditaa block is rendered to a PNG under <output>/_images and referenced
from the page. Pages whose inputs have not changed since the last build are
skipped; use --force to convert everything again.`,
		Example: `  ditaadoc build
  ditaadoc build docs -o site
  ditaadoc build --force -j 8`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source := c.config().Build.Source
			if len(args) == 1 {
				source = args[0]
			}
			return c.runBuild(cmd, source, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output directory (default from config)")
	cmd.Flags().IntVarP(&opts.workers, "workers", "j", 0, "pages converted concurrently (default from config)")
	cmd.Flags().BoolVarP(&opts.force, "force", "f", false, "convert every page")
	cmd.Flags().BoolVar(&opts.noRemote, "no-remote", false, "do not use the remote image cache")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "only print warnings and errors")

	return cmd
}

func (c *CLI) runBuild(cmd *cobra.Command, source string, opts buildOptions) error {
	ctx := cmd.Context()
	cfg := c.config()

	output := opts.output
	if output == "" {
		output = cfg.Build.Output
	}
	workers := opts.workers
	if workers == 0 {
		workers = cfg.Build.Workers
	}

	builder, closeFn, err := c.newBuilder(ctx, output, !opts.noRemote)
	if err != nil {
		return err
	}
	defer closeFn()

	var spinner *Spinner
	if !opts.quiet {
		label := fmt.Sprintf("Building %s", source)
		spinner = newSpinnerWithContext(ctx, label+"...")
		spinner.Start()

		prev := observability.Build()
		observability.SetBuildHooks(newSpinnerHooks(spinner, label))
		defer observability.SetBuildHooks(prev)
	}

	prog := newProgress(loggerFromContext(ctx))
	res, err := c.newRunner(builder).Build(ctx, pipeline.Options{
		Source:  source,
		Workers: workers,
		Force:   opts.force,
	})
	if spinner != nil {
		spinner.Stop()
	}
	if err != nil {
		return err
	}

	for _, w := range res.Warnings {
		printWarning("%s:%d: %s", w.Doc, w.Line, w.Message)
	}
	if builder.Failed() {
		printWarning("ditaa could not be run; diagrams were embedded as text")
	}
	if opts.quiet {
		return nil
	}

	prog.done("Build finished")
	printSuccess("Built %d pages", len(res.Built))
	for _, page := range res.Built {
		printFile(filepath.ToSlash(pipeline.OutputPath(builder.Config().OutDir, page)))
	}
	printStats(len(res.Built), res.Skipped, len(res.Warnings))
	printNextStep("Preview", appName+" serve")
	return nil
}
