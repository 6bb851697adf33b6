package cli

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/ditaadoc/pkg/diagram"
	"github.com/matzehuels/ditaadoc/pkg/ditaa"
	"github.com/matzehuels/ditaadoc/pkg/embed"
	"github.com/matzehuels/ditaadoc/pkg/errors"
)

// Output formats of the render command.
const (
	formatHTML  = "html"
	formatLaTeX = "latex"
	formatPath  = "path"
)

var renderFormats = []string{formatHTML, formatLaTeX, formatPath}

// renderOptions holds flags for the render command.
type renderOptions struct {
	format    string
	output    string
	imagePath string
	options   []string
	alt       string
	inline    bool
	noRemote  bool
}

// renderCommand creates the render command for a single diagram file.
func (c *CLI) renderCommand() *cobra.Command {
	var opts renderOptions

	cmd := &cobra.Command{
		Use:   "render <file>",
		Short: "Render one ditaa diagram",
		Long: `Render renders a single ditaa diagram and prints the markup that embeds it.

The diagram is read from file, or from stdin when file is "-". The image is
written to <output>/_images. With --format path only the image path is
printed.`,
		Example: `  ditaadoc render arch.ditaa
  ditaadoc render arch.ditaa --format latex
  cat arch.ditaa | ditaadoc render - --option --no-shadows --alt "Architecture"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(renderFormats, opts.format) {
				return errors.New(errors.ErrCodeInvalidInput, "unknown format %q (want %s)", opts.format, strings.Join(renderFormats, ", "))
			}
			return c.runRender(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.format, "format", "f", formatHTML, "output format: html, latex or path")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output directory (default from config)")
	cmd.Flags().StringVar(&opts.imagePath, "image-path", ditaa.DefaultImagePath, "image directory prefix used in HTML references")
	cmd.Flags().StringArrayVar(&opts.options, "option", nil, "ditaa option passed to the tool (repeatable)")
	cmd.Flags().StringVar(&opts.alt, "alt", "", "alternate text for the image")
	cmd.Flags().BoolVar(&opts.inline, "inline", false, "use an inline container in HTML")
	cmd.Flags().BoolVar(&opts.noRemote, "no-remote", false, "do not use the remote image cache")

	return cmd
}

func (c *CLI) runRender(cmd *cobra.Command, file string, opts renderOptions) error {
	ctx := cmd.Context()

	block, env, err := readBlock(cmd.InOrStdin(), file, opts)
	if err != nil {
		return err
	}
	node, warning := diagram.Parse(block, env)
	if warning != nil {
		return errors.New(warning.Code, "%s", warning.Message)
	}

	output := opts.output
	if output == "" {
		output = c.config().Build.Output
	}
	builder, closeFn, err := c.newBuilder(ctx, output, !opts.noRemote)
	if err != nil {
		return err
	}
	defer closeFn()

	prefix := c.config().Ditaa.Prefix
	out := cmd.OutOrStdout()

	if opts.format == formatPath {
		res, err := builder.Render(ctx, ditaa.Request{Code: node.Code, Options: node.Options, Prefix: prefix})
		if err != nil {
			return err
		}
		if res.Status == ditaa.StatusSkipped {
			return errors.New(errors.ErrCodeToolNotFound, "ditaa could not be run; no image was written")
		}
		fmt.Fprintln(out, res.AbsPath)
		return nil
	}

	collector := embed.NewCollector(loggerFromContext(ctx))
	e := &embed.Embedder{Renderer: builder, Reporter: collector, Prefix: prefix}

	var buf bytes.Buffer
	switch opts.format {
	case formatHTML:
		err = e.HTML(ctx, &buf, node, opts.imagePath)
	case formatLaTeX:
		err = e.LaTeX(ctx, &buf, node)
		if err == nil && buf.Len() > 0 {
			buf.WriteByte('\n')
		}
	}
	if err != nil {
		return err
	}
	if _, err := out.Write(buf.Bytes()); err != nil {
		return err
	}

	for _, r := range collector.Reports() {
		if r.Code == errors.ErrCodeToolNotFound {
			return errors.New(errors.ErrCodeToolNotFound, "ditaa could not be run; the diagram was embedded as text")
		}
	}
	if collector.Len() > 0 {
		return errors.New(errors.ErrCodeRenderFailed, "ditaa reported an error; a warning was written instead of the image")
	}
	return nil
}

// readBlock builds a directive block for file, or for stdin when file is "-".
func readBlock(stdin io.Reader, file string, opts renderOptions) (diagram.Block, diagram.Env, error) {
	block := diagram.Block{
		Name:    diagram.DirectiveName,
		Options: map[string]string{},
		Line:    1,
	}
	if opts.alt != "" {
		block.Options[diagram.OptionAlt] = opts.alt
	}
	if opts.inline {
		block.Options[diagram.OptionInline] = ""
	}
	if len(opts.options) > 0 {
		block.Options[diagram.OptionOptions] = strings.Join(opts.options, " ")
	}

	if file == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return block, nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "read stdin")
		}
		block.Content = strings.Split(strings.TrimRight(string(data), "\r\n"), "\n")
		return block, nil, nil
	}

	abs, err := filepath.Abs(file)
	if err != nil {
		return block, nil, errors.Wrap(errors.ErrCodeInvalidPath, err, "resolve %s", file)
	}
	if _, err := os.Stat(abs); err != nil {
		return block, nil, errors.Wrap(errors.ErrCodeFileNotFound, err, "diagram file %s", file)
	}
	block.Args = []string{filepath.Base(abs)}
	return block, diagram.NewDocEnv(filepath.Dir(abs), filepath.Base(abs)), nil
}
