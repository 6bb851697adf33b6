package diagram

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/matzehuels/ditaadoc/pkg/errors"
)

func TestParseInline(t *testing.T) {
	b := Block{
		Name:    DirectiveName,
		Content: []string{"+---+", "| A |", "+---+"},
		Options: map[string]string{"alt": "a box", "caption": "Figure 1"},
		Line:    7,
	}

	n, w := Parse(b, nil)
	if w != nil {
		t.Fatalf("Parse() warning: %v", w)
	}
	if n.Code != "+---+\n| A |\n+---+" {
		t.Errorf("Code = %q", n.Code)
	}
	if n.Alt != "a box" || n.Caption != "Figure 1" {
		t.Errorf("Alt/Caption = %q/%q", n.Alt, n.Caption)
	}
	if n.Inline {
		t.Error("Inline should default to false")
	}
	if n.Line != 7 {
		t.Errorf("Line = %d, want 7", n.Line)
	}
	if len(n.Options) != 0 {
		t.Errorf("Options = %v, want none", n.Options)
	}
	if n.Source != "" {
		t.Errorf("Source = %q, want empty for inline content", n.Source)
	}
}

func TestParseInlineFlag(t *testing.T) {
	b := Block{
		Name:    DirectiveName,
		Content: []string{"+-+"},
		Options: map[string]string{"inline": ""},
	}
	n, w := Parse(b, nil)
	if w != nil {
		t.Fatalf("Parse() warning: %v", w)
	}
	if !n.Inline {
		t.Error("Inline should be set when the flag is present")
	}
}

func TestParseToolOptions(t *testing.T) {
	b := Block{
		Name:    DirectiveName,
		Content: []string{"+-+"},
		Options: map[string]string{"options": "  --no-shadows   -E --scale 2 "},
	}
	n, w := Parse(b, nil)
	if w != nil {
		t.Fatalf("Parse() warning: %v", w)
	}
	want := []string{"--no-shadows", "-E", "--scale", "2"}
	if !reflect.DeepEqual(n.Options, want) {
		t.Errorf("Options = %v, want %v", n.Options, want)
	}
}

func TestParseWarnings(t *testing.T) {
	dir := t.TempDir()
	env := NewDocEnv(dir, "index.md")

	tests := []struct {
		name    string
		block   Block
		code    errors.Code
		message string
	}{
		{
			name: "content and filename",
			block: Block{
				Args:    []string{"diagram.txt"},
				Content: []string{"+-+"},
			},
			code:    errors.ErrCodeInvalidDirective,
			message: "cannot have both content and a filename argument",
		},
		{
			name:    "empty content",
			block:   Block{Content: []string{"", "   ", "\t"}},
			code:    errors.ErrCodeInvalidDirective,
			message: "without content",
		},
		{
			name:    "no content at all",
			block:   Block{},
			code:    errors.ErrCodeInvalidDirective,
			message: "without content",
		},
		{
			name:    "missing file",
			block:   Block{Args: []string{"missing.txt"}},
			code:    errors.ErrCodeFileNotFound,
			message: "not found or reading it failed",
		},
		{
			name:    "too many arguments",
			block:   Block{Args: []string{"a.txt", "b.txt"}},
			code:    errors.ErrCodeInvalidDirective,
			message: "at most one filename argument",
		},
		{
			name:    "unknown option",
			block:   Block{Content: []string{"+-+"}, Options: map[string]string{"width": "10"}},
			code:    errors.ErrCodeInvalidDirective,
			message: `unknown option "width"`,
		},
		{
			name:    "valued flag",
			block:   Block{Content: []string{"+-+"}, Options: map[string]string{"inline": "yes"}},
			code:    errors.ErrCodeInvalidDirective,
			message: "takes no value",
		},
		{
			name:    "bad tool option",
			block:   Block{Content: []string{"+-+"}, Options: map[string]string{"options": "-E \x01"}},
			code:    errors.ErrCodeInvalidOption,
			message: "invalid characters",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.block.Name = DirectiveName
			tt.block.Line = 3
			n, w := Parse(tt.block, env)
			if n != nil {
				t.Errorf("Parse() node = %+v, want nil", n)
			}
			if w == nil {
				t.Fatal("Parse() warning = nil, want one")
			}
			if w.Code != tt.code {
				t.Errorf("warning code = %v, want %v", w.Code, tt.code)
			}
			if !strings.Contains(w.Message, tt.message) {
				t.Errorf("warning message = %q, want it to contain %q", w.Message, tt.message)
			}
			if w.Line != 3 {
				t.Errorf("warning line = %d, want 3", w.Line)
			}
		})
	}
}

func TestParseBothContentAndFilenameProducesOneWarning(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "d.txt"), []byte("+-+"), 0644); err != nil {
		t.Fatal(err)
	}
	env := NewDocEnv(dir, "index.md")

	n, w := Parse(Block{Name: DirectiveName, Args: []string{"d.txt"}, Content: []string{"+-+"}}, env)
	if n != nil || w == nil {
		t.Fatalf("Parse() = %v, %v; want nil node and a warning", n, w)
	}
	if deps := env.Dependencies(); len(deps) != 0 {
		t.Errorf("rejected block should not record dependencies, got %v", deps)
	}
}

func TestParseExternalFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "guide", "diagrams"), 0755); err != nil {
		t.Fatal(err)
	}
	content := "+------+\n| héllo |\n+------+\n"
	abs := filepath.Join(dir, "guide", "diagrams", "flow.ditaa")
	if err := os.WriteFile(abs, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	env := NewDocEnv(dir, "guide/intro.md")
	n, w := Parse(Block{Name: DirectiveName, Args: []string{"diagrams/flow.ditaa"}, Line: 12}, env)
	if w != nil {
		t.Fatalf("Parse() warning: %v", w)
	}
	if n.Code != content {
		t.Errorf("Code = %q, want file content", n.Code)
	}
	if n.Source != abs {
		t.Errorf("Source = %q, want %q", n.Source, abs)
	}

	deps := env.Dependencies()
	if !reflect.DeepEqual(deps, []string{"guide/diagrams/flow.ditaa"}) {
		t.Errorf("Dependencies() = %v", deps)
	}
}

func TestParseMissingFileStillRecordsDependency(t *testing.T) {
	env := NewDocEnv(t.TempDir(), "index.md")
	_, w := Parse(Block{Name: DirectiveName, Args: []string{"later.ditaa"}}, env)
	if w == nil {
		t.Fatal("expected a warning for a missing file")
	}
	if deps := env.Dependencies(); !reflect.DeepEqual(deps, []string{"later.ditaa"}) {
		t.Errorf("Dependencies() = %v, want [later.ditaa]", deps)
	}
}

func TestParseInvalidUTF8File(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "bad.ditaa"), []byte{0xff, 0xfe, 0x00}, 0644); err != nil {
		t.Fatal(err)
	}
	_, w := Parse(Block{Name: DirectiveName, Args: []string{"bad.ditaa"}}, NewDocEnv(dir, "index.md"))
	if w == nil || w.Code != errors.ErrCodeFileNotFound {
		t.Errorf("Parse() warning = %v, want FILE_NOT_FOUND", w)
	}
}

func TestParseFilenameWithoutEnv(t *testing.T) {
	_, w := Parse(Block{Name: DirectiveName, Args: []string{"x.ditaa"}}, nil)
	if w == nil || w.Code != errors.ErrCodeUnsupported {
		t.Errorf("Parse() warning = %v, want UNSUPPORTED", w)
	}
}

func TestWarningError(t *testing.T) {
	w := &Warning{Message: "boom", Line: 4}
	if w.Error() != "line 4: boom" {
		t.Errorf("Error() = %q", w.Error())
	}
	w.Line = 0
	if w.Error() != "boom" {
		t.Errorf("Error() = %q", w.Error())
	}
}
