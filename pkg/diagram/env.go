package diagram

import (
	"path"
	"path/filepath"
	"strings"
	"sync"
)

// Env is the slice of the document host that the front-end needs:
// resolving a directive's filename argument and registering it as a build
// dependency of the current document.
type Env interface {
	// Resolve maps a filename argument to a path relative to the source root
	// (slash separated) and an absolute filesystem path.
	Resolve(name string) (rel, abs string)

	// NoteDependency records rel as a dependency of the current document.
	NoteDependency(rel string)
}

// DocEnv is an Env for one document inside a source tree. Names starting
// with "/" are resolved against the source root, other names against the
// document's directory.
//
// DocEnv is safe for concurrent use.
type DocEnv struct {
	root string // absolute source root
	doc  string // slash-separated document path relative to root

	mu   sync.Mutex
	deps []string
	seen map[string]bool
}

// NewDocEnv creates an environment for the document at doc, relative to root.
func NewDocEnv(root, doc string) *DocEnv {
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	return &DocEnv{
		root: root,
		doc:  filepath.ToSlash(doc),
		seen: make(map[string]bool),
	}
}

// Doc returns the document path relative to the source root.
func (e *DocEnv) Doc() string {
	return e.doc
}

// Resolve implements Env.
func (e *DocEnv) Resolve(name string) (string, string) {
	name = filepath.ToSlash(name)
	var rel string
	if strings.HasPrefix(name, "/") {
		rel = path.Clean(strings.TrimPrefix(name, "/"))
	} else {
		rel = path.Join(path.Dir(e.doc), name)
	}
	return rel, filepath.Join(e.root, filepath.FromSlash(rel))
}

// NoteDependency implements Env. Repeated paths are recorded once.
func (e *DocEnv) NoteDependency(rel string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.seen[rel] {
		return
	}
	e.seen[rel] = true
	e.deps = append(e.deps, rel)
}

// Dependencies returns the recorded dependencies in the order they were noted.
func (e *DocEnv) Dependencies() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.deps...)
}
