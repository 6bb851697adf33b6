// Package cli implements the ditaadoc command-line interface.
package cli

import (
	"context"
	"io"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/ditaadoc/pkg/buildinfo"
	"github.com/matzehuels/ditaadoc/pkg/cache"
	"github.com/matzehuels/ditaadoc/pkg/config"
	"github.com/matzehuels/ditaadoc/pkg/ditaa"
	"github.com/matzehuels/ditaadoc/pkg/errors"
	"github.com/matzehuels/ditaadoc/pkg/pipeline"
)

// =============================================================================
// Constants
// =============================================================================

// appName is the application name used for display.
const appName = "ditaadoc"

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	// ConfigPath is the --config flag. Empty looks for config.DefaultFile.
	ConfigPath string

	cfg *config.Config
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          appName,
		Short:        "ditaadoc builds Markdown documentation with ditaa diagrams",
		Long:         `ditaadoc converts Markdown pages containing ditaa blocks into HTML, rendering each diagram to a PNG image with the external ditaa tool.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cmd.SetContext(withLogger(cmd.Context(), c.Logger))
			return c.loadConfig()
		},
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().StringVarP(&c.ConfigPath, "config", "c", "", "config file (default ./"+config.DefaultFile+")")

	root.AddCommand(c.buildCommand())
	root.AddCommand(c.renderCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// =============================================================================
// Configuration
// =============================================================================

func (c *CLI) loadConfig() error {
	cfg, err := config.Load(c.ConfigPath)
	if err != nil {
		return err
	}
	if cfg.File != "" {
		c.Logger.Debug("loaded config", "file", cfg.File)
	}
	c.cfg = cfg
	return nil
}

// config returns the loaded configuration, or the defaults before loading.
func (c *CLI) config() *config.Config {
	if c.cfg == nil {
		return config.Default()
	}
	return c.cfg
}

// =============================================================================
// Builder Factory
// =============================================================================

// newBuilder creates a ditaa builder writing into output. With remote set,
// the configured cache backend mirrors rendered images. The returned close
// function releases the backend connection.
func (c *CLI) newBuilder(ctx context.Context, output string, remote bool) (*ditaa.Builder, func(), error) {
	cfg := c.config()
	timeout, err := cfg.Timeout()
	if err != nil {
		return nil, nil, err
	}

	opts := []ditaa.Option{ditaa.WithLogger(c.Logger)}
	closeFn := func() {}
	if remote {
		rc, err := newRemote(ctx, cfg.Cache)
		if err != nil {
			return nil, nil, err
		}
		if !cache.IsNull(rc) {
			keyer := cache.NewScopedKeyer(cache.NewDefaultKeyer(), cfg.Cache.Namespace)
			opts = append(opts, ditaa.WithRemote(rc, keyer))
			closeFn = func() {
				if err := rc.Close(); err != nil {
					c.Logger.Debug("closing cache backend", "err", err)
				}
			}
			c.Logger.Debug("mirroring images", "backend", cfg.Cache.Backend, "namespace", cfg.Cache.Namespace)
		}
	}

	b, err := ditaa.New(ditaa.Config{
		Path:    cfg.Ditaa.Path,
		Args:    cfg.Ditaa.Args,
		OutDir:  output,
		Timeout: timeout,
	}, opts...)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return b, closeFn, nil
}

// newRemote connects to the configured image mirror. No backend yields a
// null cache.
func newRemote(ctx context.Context, cfg config.Cache) (cache.Cache, error) {
	var (
		rc  cache.Cache
		err error
	)
	switch cfg.Backend {
	case config.BackendNone:
		return cache.NewNullCache(), nil
	case config.BackendFile:
		rc, err = cache.NewFileCache(cfg.Dir)
	case config.BackendRedis:
		rc, err = cache.NewRedisCache(ctx, cfg.URL)
	case config.BackendMongo:
		rc, err = cache.NewMongoCache(ctx, cfg.URL, cfg.Database, cfg.Collection)
	default:
		return nil, errors.New(errors.ErrCodeInvalidConfig, "unknown cache backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeNetwork, err, "connect to %s cache", cfg.Backend)
	}
	return rc, nil
}

// newRunner creates a pipeline runner around b using the configured prefix.
func (c *CLI) newRunner(b *ditaa.Builder) *pipeline.Runner {
	r := pipeline.NewRunner(b, c.Logger)
	r.Prefix = c.config().Ditaa.Prefix
	return r
}
