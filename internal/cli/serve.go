package cli

import (
	"github.com/spf13/cobra"

	"github.com/matzehuels/ditaadoc/internal/server"
	"github.com/matzehuels/ditaadoc/pkg/pipeline"
)

// serveOptions holds flags for the serve command.
type serveOptions struct {
	addr     string
	output   string
	noBuild  bool
	noRemote bool
}

// serveCommand creates the serve command for previewing a build.
func (c *CLI) serveCommand() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve [source]",
		Short: "Build and preview the documentation over HTTP",
		Long: `Serve builds the source tree and serves the output directory.

POST /api/build rebuilds the tree and POST /api/render renders the diagram
in the request body. The server stops on interrupt.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source := c.config().Build.Source
			if len(args) == 1 {
				source = args[0]
			}
			return c.runServe(cmd, source, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.addr, "addr", "a", "", "listen address (default from config)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output directory (default from config)")
	cmd.Flags().BoolVar(&opts.noBuild, "no-build", false, "serve the existing output without building first")
	cmd.Flags().BoolVar(&opts.noRemote, "no-remote", false, "do not use the remote image cache")

	return cmd
}

func (c *CLI) runServe(cmd *cobra.Command, source string, opts serveOptions) error {
	ctx := cmd.Context()
	cfg := c.config()

	addr := opts.addr
	if addr == "" {
		addr = cfg.Server.Addr
	}
	output := opts.output
	if output == "" {
		output = cfg.Build.Output
	}

	builder, closeFn, err := c.newBuilder(ctx, output, !opts.noRemote)
	if err != nil {
		return err
	}
	defer closeFn()

	runner := c.newRunner(builder)
	if !opts.noBuild {
		res, err := runner.Build(ctx, pipeline.Options{Source: source, Workers: cfg.Build.Workers})
		if err != nil {
			return err
		}
		printSuccess("Built %d pages", len(res.Built))
		printStats(len(res.Built), res.Skipped, len(res.Warnings))
	}

	printInfo("Serving %s at %s", StyleValue.Render(builder.Config().OutDir), StyleLink.Render("http://"+addr+"/"))
	printDetail("Press Ctrl+C to stop")

	srv := server.New(builder,
		server.WithLogger(c.Logger),
		server.WithPrefix(cfg.Ditaa.Prefix),
		server.WithBuild(runner, source),
	)
	return srv.ListenAndServe(ctx, addr)
}
