package pipeline

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/matzehuels/ditaadoc/pkg/cache"
)

const stateVersion = 1

// state is the environment file: what each page depended on when it was
// last converted.
type state struct {
	Version int                  `json:"version"`
	Tool    string               `json:"tool"`
	Pages   map[string]pageState `json:"pages"`
}

type pageState struct {
	// Deps are the files read by the page's directives, relative to Source.
	Deps []string `json:"deps,omitempty"`

	// Incomplete marks a page whose build left warnings or text fallbacks.
	Incomplete bool `json:"incomplete,omitempty"`
}

func newState(tool string) *state {
	return &state{Version: stateVersion, Tool: tool, Pages: map[string]pageState{}}
}

func statePath(output string) string {
	return filepath.Join(output, StateDir, StateFile)
}

// loadState reads the environment file. A missing, unreadable or outdated
// file yields an empty state, so every page is converted.
func loadState(output, tool string) (*state, error) {
	data, err := os.ReadFile(statePath(output))
	if os.IsNotExist(err) {
		return newState(tool), nil
	}
	if err != nil {
		return newState(tool), err
	}
	var st state
	if err := json.Unmarshal(data, &st); err != nil {
		return newState(tool), err
	}
	if st.Version != stateVersion || st.Tool != tool || st.Pages == nil {
		return newState(tool), nil
	}
	return &st, nil
}

func (s *state) save(output string) error {
	p := statePath(output)
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(p, data, 0644)
}

// stale reports whether page must be converted again.
func (s *state) stale(source, output, page string) bool {
	ps, ok := s.Pages[page]
	if !ok || ps.Incomplete {
		return true
	}
	out, err := os.Stat(OutputPath(output, page))
	if err != nil {
		return true
	}
	built := out.ModTime()

	files := append([]string{page}, ps.Deps...)
	for _, rel := range files {
		info, err := os.Stat(filepath.Join(source, filepath.FromSlash(rel)))
		if err != nil || info.ModTime().After(built) {
			return true
		}
	}
	return false
}

// toolFingerprint identifies the settings that determine image names, so a
// change of tool or prefix converts every page.
func toolFingerprint(path string, args []string, prefix string) string {
	data, _ := json.Marshal(struct {
		Path   string   `json:"path"`
		Args   []string `json:"args"`
		Prefix string   `json:"prefix"`
	}{path, args, prefix})
	return cache.Hash(data)
}
