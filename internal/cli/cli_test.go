package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/matzehuels/ditaadoc/pkg/cache"
	"github.com/matzehuels/ditaadoc/pkg/config"
	"github.com/matzehuels/ditaadoc/pkg/errors"
)

const okTool = `cat > /dev/null
for last; do :; done
printf 'PNG' > "$last"
`

const failTool = `cat > /dev/null
echo "unbalanced box" >&2
exit 2
`

// runCLI executes the root command with args, capturing stdout into out.
func runCLI(t *testing.T, out io.Writer, in io.Reader, args ...string) error {
	t.Helper()
	c := New(io.Discard, LogInfo)
	root := c.RootCommand()
	if out == nil {
		out = io.Discard
	}
	root.SetOut(out)
	root.SetErr(io.Discard)
	if in != nil {
		root.SetIn(in)
	}
	root.SetArgs(args)
	return root.ExecuteContext(context.Background())
}

// project writes a config file, a docs tree and a stub tool, and returns the
// config path and the project root.
func project(t *testing.T, tool string) (string, string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("stub tools are POSIX shell scripts")
	}
	root := t.TempDir()
	conf := fmt.Sprintf("[ditaa]\npath = %q\n\n[build]\nsource = \"docs\"\noutput = \"_build\"\nworkers = 2\n",
		filepath.Join(root, "bin", "ditaa"))
	files := map[string]string{
		"bin/ditaa":            "#!/bin/sh\n" + tool,
		"docs/index.md":        "# Home\n\n```ditaa\n+--+\n|A |\n+--+\n```\n",
		"docs/arch/flow.md":    "# Flow\n\n```ditaa flow.ditaa\n:alt: Flow chart\n```\n",
		"docs/arch/flow.ditaa": "+----+\n|flow|\n+----+\n",
		"ditaadoc.toml":        conf,
	}
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatal(err)
		}
		mode := os.FileMode(0644)
		if strings.HasPrefix(name, "bin/") {
			mode = 0755
		}
		if err := os.WriteFile(p, []byte(content), mode); err != nil {
			t.Fatal(err)
		}
	}
	return filepath.Join(root, "ditaadoc.toml"), root
}

func TestBuildCommand(t *testing.T) {
	cfg, root := project(t, okTool)

	if err := runCLI(t, nil, nil, "build", "--config", cfg); err != nil {
		t.Fatalf("build: %v", err)
	}

	page, err := os.ReadFile(filepath.Join(root, "_build", "arch", "flow.html"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(page), `<img src="../_images/ditaa-`) || !strings.Contains(string(page), `alt="Flow chart"`) {
		t.Errorf("flow page:\n%s", page)
	}

	images, err := os.ReadDir(filepath.Join(root, "_build", "_images"))
	if err != nil || len(images) != 2 {
		t.Errorf("images = %v, %v; want 2", images, err)
	}

	// A quiet rebuild into another directory uses the flags over the config.
	if err := runCLI(t, nil, nil, "build", filepath.Join(root, "docs"), "--config", cfg, "-q", "-o", filepath.Join(root, "site"), "-j", "1"); err != nil {
		t.Fatalf("build with flags: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "site", "index.html")); err != nil {
		t.Errorf("flag output directory not used: %v", err)
	}
}

func TestBuildCommandMissingConfig(t *testing.T) {
	err := runCLI(t, nil, nil, "build", "--config", filepath.Join(t.TempDir(), "nope.toml"))
	if !errors.Is(err, errors.ErrCodeInvalidConfig) {
		t.Errorf("build error = %v, want INVALID_CONFIG", err)
	}
}

func TestRenderCommand(t *testing.T) {
	cfg, root := project(t, okTool)
	file := filepath.Join(root, "docs", "arch", "flow.ditaa")

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"html", []string{"render", file}, `<p class="ditaa"><img src="_images/ditaa-`},
		{"inline html with alt", []string{"render", file, "--inline", "--alt", "a<b"}, `<span class="ditaa"><img src="_images/ditaa-`},
		{"image path", []string{"render", file, "--image-path", "/static"}, `src="/static/ditaa-`},
		{"latex", []string{"render", file, "--format", "latex"}, `\par\includegraphics{`},
		{"path", []string{"render", file, "-f", "path"}, filepath.Join(root, "_build", "_images", "ditaa-")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			if err := runCLI(t, &out, nil, append(tt.args, "--config", cfg)...); err != nil {
				t.Fatalf("render: %v", err)
			}
			if !strings.Contains(out.String(), tt.want) {
				t.Errorf("output = %q, want it to contain %q", out.String(), tt.want)
			}
		})
	}
}

func TestRenderCommandRelativePath(t *testing.T) {
	cfg, root := project(t, okTool)
	work := filepath.Join(root, "work")
	if err := os.Mkdir(work, 0755); err != nil {
		t.Fatal(err)
	}
	t.Chdir(work)

	var out bytes.Buffer
	if err := runCLI(t, &out, nil, "render", "../docs/arch/flow.ditaa", "--format", "path", "-o", filepath.Join(root, "_build"), "--config", cfg); err != nil {
		t.Fatalf("render ../docs/arch/flow.ditaa: %v", err)
	}
	if want := filepath.Join(root, "_build", "_images", "ditaa-"); !strings.HasPrefix(out.String(), want) {
		t.Errorf("output = %q, want an image under %s", out.String(), want)
	}
}

func TestRenderCommandStdin(t *testing.T) {
	cfg, _ := project(t, okTool)
	var out bytes.Buffer
	err := runCLI(t, &out, strings.NewReader("+--+\n|in|\n+--+\n"), "render", "-", "--config", cfg, "--option", "--no-shadows", "--option=--scale", "--option=2")
	if err != nil {
		t.Fatalf("render -: %v", err)
	}
	if !strings.Contains(out.String(), `<img src="_images/ditaa-`) {
		t.Errorf("output = %q", out.String())
	}
}

func TestRenderCommandErrors(t *testing.T) {
	cfg, root := project(t, okTool)
	file := filepath.Join(root, "docs", "arch", "flow.ditaa")

	tests := []struct {
		name string
		args []string
		in   string
		code errors.Code
	}{
		{"unknown format", []string{"render", file, "--format", "svg"}, "", errors.ErrCodeInvalidInput},
		{"missing file", []string{"render", filepath.Join(root, "none.ditaa")}, "", errors.ErrCodeFileNotFound},
		{"empty stdin", []string{"render", "-"}, "\n\n", errors.ErrCodeInvalidDirective},
		{"bad option", []string{"render", file, "--option", "-E\x01"}, "", errors.ErrCodeInvalidOption},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := runCLI(t, nil, strings.NewReader(tt.in), append(tt.args, "--config", cfg)...)
			if !errors.Is(err, tt.code) {
				t.Errorf("render error = %v, want %s", err, tt.code)
			}
		})
	}
}

func TestRenderCommandToolFailure(t *testing.T) {
	cfg, root := project(t, failTool)
	var out bytes.Buffer
	err := runCLI(t, &out, nil, "render", filepath.Join(root, "docs", "arch", "flow.ditaa"), "--config", cfg)
	if !errors.Is(err, errors.ErrCodeRenderFailed) {
		t.Errorf("render error = %v, want RENDER_FAILED", err)
	}
	if !strings.Contains(out.String(), "System Message: WARNING (line 1)") || !strings.Contains(out.String(), "unbalanced box") {
		t.Errorf("output = %q, want the warning markup", out.String())
	}
}

func TestRenderCommandToolMissing(t *testing.T) {
	cfg, root := project(t, okTool)
	if err := os.Remove(filepath.Join(root, "bin", "ditaa")); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	err := runCLI(t, &out, nil, "render", filepath.Join(root, "docs", "arch", "flow.ditaa"), "--config", cfg)
	if !errors.Is(err, errors.ErrCodeToolNotFound) {
		t.Errorf("render error = %v, want TOOL_NOT_FOUND", err)
	}
	if !strings.Contains(out.String(), "|flow|") {
		t.Errorf("output = %q, want the diagram text", out.String())
	}
}

func TestNewRemote(t *testing.T) {
	ctx := context.Background()

	rc, err := newRemote(ctx, config.Cache{})
	if err != nil || !cache.IsNull(rc) {
		t.Errorf("no backend = %T, %v; want a null cache", rc, err)
	}

	rc, err = newRemote(ctx, config.Cache{Backend: config.BackendFile, Dir: t.TempDir()})
	if err != nil || cache.IsNull(rc) {
		t.Errorf("file backend = %T, %v", rc, err)
	}

	_, err = newRemote(ctx, config.Cache{Backend: "memcached"})
	if !errors.Is(err, errors.ErrCodeInvalidConfig) {
		t.Errorf("unknown backend error = %v, want INVALID_CONFIG", err)
	}

	_, err = newRemote(ctx, config.Cache{Backend: config.BackendRedis, URL: "not a url"})
	if !errors.Is(err, errors.ErrCodeNetwork) {
		t.Errorf("bad redis url error = %v, want NETWORK_ERROR", err)
	}
}

func TestNewBuilderWithFileMirror(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("stub tools are POSIX shell scripts")
	}
	mirror := t.TempDir()
	tool := filepath.Join(t.TempDir(), "ditaa")
	if err := os.WriteFile(tool, []byte("#!/bin/sh\n"+okTool), 0755); err != nil {
		t.Fatal(err)
	}

	c := New(io.Discard, LogInfo)
	c.cfg = config.Default()
	c.cfg.Ditaa.Path = tool
	c.cfg.Ditaa.Timeout = "10s"
	c.cfg.Cache = config.Cache{Backend: config.BackendFile, Dir: mirror, Namespace: "test:"}

	b, closeFn, err := c.newBuilder(context.Background(), t.TempDir(), true)
	if err != nil {
		t.Fatalf("newBuilder: %v", err)
	}
	defer closeFn()

	if got := b.Config().Timeout.String(); got != "10s" {
		t.Errorf("timeout = %s, want 10s", got)
	}
	var out bytes.Buffer
	if err := runRenderWith(t, c, &out, "+-+"); err != nil {
		t.Fatalf("render: %v", err)
	}
	entries, err := os.ReadDir(mirror)
	if err != nil || len(entries) == 0 {
		t.Errorf("mirror entries = %v, %v; want the rendered image", entries, err)
	}
}

// runRenderWith renders code from stdin with an already configured CLI.
func runRenderWith(t *testing.T, c *CLI, out io.Writer, code string) error {
	t.Helper()
	cmd := c.renderCommand()
	cmd.SetOut(out)
	cmd.SetIn(strings.NewReader(code))
	cmd.SetArgs([]string{"-", "-o", t.TempDir()})
	return cmd.ExecuteContext(context.Background())
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := New(io.Discard, LogInfo).RootCommand()
	for _, name := range []string{"build", "render", "serve", "cache", "completion"} {
		if cmd, _, err := root.Find([]string{name}); err != nil || cmd.Name() != name {
			t.Errorf("subcommand %q not registered", name)
		}
	}
	if root.PersistentFlags().Lookup("config") == nil {
		t.Error("missing --config flag")
	}
}
