package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/matzehuels/ditaadoc/pkg/cache"
	"github.com/matzehuels/ditaadoc/pkg/ditaa"
)

// cacheCommand creates the cache management command.
func (c *CLI) cacheCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage rendered diagram images",
		Long: `Manage the images rendered into <output>/_images.

Images are named by a digest of the diagram text, its options and the tool
settings, so an existing file is reused instead of running ditaa again.
Clearing the directory forces every diagram to be rendered again.`,
	}
	cmd.PersistentFlags().StringVarP(&output, "output", "o", "", "output directory (default from config)")

	store := func() *cache.ImageStore {
		out := output
		if out == "" {
			out = c.config().Build.Output
		}
		return cache.NewImageStore(filepath.Join(out, ditaa.ImageDir))
	}

	cmd.AddCommand(c.cachePathCommand(store))
	cmd.AddCommand(c.cacheListCommand(store))
	cmd.AddCommand(c.cacheClearCommand(store))

	return cmd
}

// cachePathCommand creates the "cache path" subcommand.
func (c *CLI) cachePathCommand(store func() *cache.ImageStore) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the image directory path",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), store().Path(""))
			return nil
		},
	}
}

// cacheListCommand creates the "cache list" subcommand.
func (c *CLI) cacheListCommand(store func() *cache.ImageStore) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List rendered images",
		RunE: func(cmd *cobra.Command, args []string) error {
			s := store()
			entries, err := s.List(c.config().Ditaa.Prefix)
			if err != nil {
				return fmt.Errorf("list images: %w", err)
			}
			if len(entries) == 0 {
				printInfo("No images in %s", s.Dir())
				return nil
			}

			var total int64
			fmt.Println(StyleTitle.Render(fmt.Sprintf("%d images", len(entries))))
			for _, e := range entries {
				total += e.Size
				printKeyValue(formatSize(e.Size), e.Name)
			}
			printDetail("Total %s in %s", formatSize(total), s.Dir())
			c.printRemote()
			return nil
		},
	}
}

// cacheClearCommand creates the "cache clear" subcommand.
func (c *CLI) cacheClearCommand(store func() *cache.ImageStore) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete rendered images",
		RunE: func(cmd *cobra.Command, args []string) error {
			s := store()
			count, err := s.Clear(c.config().Ditaa.Prefix)
			if err != nil {
				return fmt.Errorf("clear images: %w", err)
			}
			if count == 0 {
				printInfo("Image directory is empty")
				return nil
			}
			printSuccess("Removed %s images", StyleNumber.Render(fmt.Sprint(count)))
			printDetail("Directory: %s", s.Dir())
			c.printRemote()
			return nil
		},
	}
}

// printRemote notes the configured remote mirror, which the cache commands
// leave untouched.
func (c *CLI) printRemote() {
	cfg := c.config().Cache
	if cfg.Backend == "" {
		return
	}
	where := cfg.URL
	if where == "" {
		where = cfg.Dir
	}
	printDetail("Remote %s cache at %s (namespace %s) is not affected", cfg.Backend, where, StyleHighlight.Render(cfg.Namespace))
}

func formatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
