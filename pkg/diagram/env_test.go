package diagram

import (
	"path/filepath"
	"reflect"
	"sync"
	"testing"
)

func TestDocEnvResolve(t *testing.T) {
	root := t.TempDir()
	env := NewDocEnv(root, filepath.Join("guide", "intro.md"))

	tests := []struct {
		name    string
		input   string
		wantRel string
	}{
		{"sibling", "flow.ditaa", "guide/flow.ditaa"},
		{"subdir", "diagrams/flow.ditaa", "guide/diagrams/flow.ditaa"},
		{"parent", "../shared/flow.ditaa", "shared/flow.ditaa"},
		{"root relative", "/shared/flow.ditaa", "shared/flow.ditaa"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rel, abs := env.Resolve(tt.input)
			if rel != tt.wantRel {
				t.Errorf("Resolve(%q) rel = %q, want %q", tt.input, rel, tt.wantRel)
			}
			wantAbs := filepath.Join(root, filepath.FromSlash(tt.wantRel))
			if abs != wantAbs {
				t.Errorf("Resolve(%q) abs = %q, want %q", tt.input, abs, wantAbs)
			}
		})
	}
}

func TestDocEnvTopLevelDocument(t *testing.T) {
	env := NewDocEnv(t.TempDir(), "index.md")
	rel, _ := env.Resolve("flow.ditaa")
	if rel != "flow.ditaa" {
		t.Errorf("rel = %q, want flow.ditaa", rel)
	}
	if env.Doc() != "index.md" {
		t.Errorf("Doc() = %q", env.Doc())
	}
}

func TestDocEnvDependenciesDeduplicated(t *testing.T) {
	env := NewDocEnv(t.TempDir(), "index.md")
	env.NoteDependency("b.ditaa")
	env.NoteDependency("a.ditaa")
	env.NoteDependency("b.ditaa")

	want := []string{"b.ditaa", "a.ditaa"}
	if got := env.Dependencies(); !reflect.DeepEqual(got, want) {
		t.Errorf("Dependencies() = %v, want %v", got, want)
	}
}

func TestDocEnvConcurrentNotes(t *testing.T) {
	env := NewDocEnv(t.TempDir(), "index.md")
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			env.NoteDependency("same.ditaa")
		}()
	}
	wg.Wait()
	if got := env.Dependencies(); len(got) != 1 {
		t.Errorf("Dependencies() = %v, want one entry", got)
	}
}
