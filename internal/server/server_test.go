package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/matzehuels/ditaadoc/pkg/ditaa"
	"github.com/matzehuels/ditaadoc/pkg/observability"
	"github.com/matzehuels/ditaadoc/pkg/pipeline"
)

const okTool = `cat > /dev/null
for last; do :; done
printf 'PNG' > "$last"
`

const failTool = `cat > /dev/null
echo "bad diagram" >&2
exit 1
`

func writeTool(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("stub tools are POSIX shell scripts")
	}
	p := filepath.Join(t.TempDir(), "ditaa")
	if err := os.WriteFile(p, []byte("#!/bin/sh\n"+script), 0755); err != nil {
		t.Fatal(err)
	}
	return p
}

func newServer(t *testing.T, tool string, opts ...Option) (*Server, string) {
	t.Helper()
	out := t.TempDir()
	b, err := ditaa.New(ditaa.Config{Path: tool, OutDir: out})
	if err != nil {
		t.Fatal(err)
	}
	return New(b, opts...), out
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s, _ := newServer(t, "ditaa")
	rec := do(t, s.Handler(), http.MethodGet, "/healthz", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Error("missing request ID header")
	}
}

func TestRequestIDIsEchoed(t *testing.T) {
	s, _ := newServer(t, "ditaa")
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get(RequestIDHeader); got != "abc-123" {
		t.Errorf("request ID = %q, want abc-123", got)
	}
}

func TestRender(t *testing.T) {
	s, out := newServer(t, writeTool(t, okTool))
	h := s.Handler()

	rec := do(t, h, http.MethodPost, "/api/render?option=--no-shadows", "+--+\n|A |\n+--+\n")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q", ct)
	}
	if got := rec.Header().Get(StatusHeader); got != "rendered" {
		t.Errorf("status header = %q, want rendered", got)
	}
	if rec.Body.String() != "PNG" {
		t.Errorf("body = %q", rec.Body)
	}
	entries, err := os.ReadDir(filepath.Join(out, ditaa.ImageDir))
	if err != nil || len(entries) != 1 {
		t.Fatalf("image dir entries = %v, %v", entries, err)
	}

	rec = do(t, h, http.MethodPost, "/api/render?option=--no-shadows", "+--+\n|A |\n+--+\n")
	if got := rec.Header().Get(StatusHeader); got != "cached" {
		t.Errorf("second render status header = %q, want cached", got)
	}
}

func TestRenderErrors(t *testing.T) {
	tests := []struct {
		name   string
		tool   func(t *testing.T) string
		target string
		body   string
		status int
		want   string
	}{
		{
			name:   "empty body",
			tool:   func(t *testing.T) string { return "ditaa" },
			target: "/api/render",
			status: http.StatusBadRequest,
			want:   "required",
		},
		{
			name:   "invalid utf-8",
			tool:   func(t *testing.T) string { return "ditaa" },
			target: "/api/render",
			body:   "\xff\xfe",
			status: http.StatusBadRequest,
			want:   "UTF-8",
		},
		{
			name:   "invalid option",
			tool:   func(t *testing.T) string { return writeTool(t, okTool) },
			target: "/api/render?option=-E%01",
			body:   "+-+",
			status: http.StatusBadRequest,
		},
		{
			name:   "tool missing",
			tool:   func(t *testing.T) string { return filepath.Join(t.TempDir(), "missing") },
			target: "/api/render",
			body:   "+-+",
			status: http.StatusServiceUnavailable,
		},
		{
			name:   "tool fails",
			tool:   func(t *testing.T) string { return writeTool(t, failTool) },
			target: "/api/render",
			body:   "+-+",
			status: http.StatusUnprocessableEntity,
			want:   "bad diagram",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newServer(t, tt.tool(t))
			rec := do(t, s.Handler(), http.MethodPost, tt.target, tt.body)
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d (body %q)", rec.Code, tt.status, rec.Body)
			}
			if tt.want != "" && !strings.Contains(rec.Body.String(), tt.want) {
				t.Errorf("body = %q, want it to contain %q", rec.Body, tt.want)
			}
		})
	}
}

func TestRenderTooLarge(t *testing.T) {
	s, _ := newServer(t, "ditaa")
	rec := do(t, s.Handler(), http.MethodPost, "/api/render", strings.Repeat("x", MaxDiagramBytes+1))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", rec.Code)
	}
}

func writeFile(t *testing.T, p, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestStaticFiles(t *testing.T) {
	s, out := newServer(t, "ditaa")
	h := s.Handler()
	writeFile(t, filepath.Join(out, "guide.html"), "<h1>hi</h1>")
	writeFile(t, filepath.Join(out, pipeline.StateDir, pipeline.StateFile), `{"version":1}`)

	rec := do(t, h, http.MethodGet, "/guide.html", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "<h1>hi</h1>") {
		t.Errorf("status = %d, body = %q", rec.Code, rec.Body)
	}
	if rec := do(t, h, http.MethodGet, "/nope.html", ""); rec.Code != http.StatusNotFound {
		t.Errorf("missing file status = %d, want 404", rec.Code)
	}

	for _, target := range []string{
		"/" + pipeline.StateDir + "/" + pipeline.StateFile,
		"/" + pipeline.StateDir + "/",
		"/guide/../" + pipeline.StateDir + "/" + pipeline.StateFile,
	} {
		rec := do(t, h, http.MethodGet, target, "")
		if rec.Code != http.StatusNotFound || strings.Contains(rec.Body.String(), "version") {
			t.Errorf("GET %s = %d %q, want 404", target, rec.Code, rec.Body)
		}
	}
}

// pickyTool fails on diagrams containing "bad" and renders the rest.
const pickyTool = `if grep -q bad; then
  echo "bad diagram" >&2
  exit 1
fi
for last; do :; done
printf 'PNG' > "$last"
`

func TestRenderFailureDoesNotSkipLaterRequests(t *testing.T) {
	s, _ := newServer(t, writeTool(t, pickyTool))
	h := s.Handler()

	if rec := do(t, h, http.MethodPost, "/api/render", "+-+\n|bad|\n"); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("bad diagram status = %d, want 422", rec.Code)
	}
	rec := do(t, h, http.MethodPost, "/api/render", "+--+\n|ok|\n+--+\n")
	if rec.Code != http.StatusOK {
		t.Fatalf("good diagram status = %d, body = %q; want 200", rec.Code, rec.Body)
	}
	if got := rec.Header().Get(StatusHeader); got != "rendered" {
		t.Errorf("status header = %q, want rendered", got)
	}
	if s.builder.Failed() {
		t.Error("a failed /api/render should not set the shared sticky flag")
	}
}

func TestBuildEndpoint(t *testing.T) {
	tool := writeTool(t, okTool)
	src := t.TempDir()
	if err := os.WriteFile(filepath.Join(src, "index.md"), []byte("# Home\n\n```ditaa\n+-+\n```\n"), 0644); err != nil {
		t.Fatal(err)
	}

	out := t.TempDir()
	b, err := ditaa.New(ditaa.Config{Path: tool, OutDir: out})
	if err != nil {
		t.Fatal(err)
	}
	s := New(b, WithBuild(pipeline.NewRunner(b, nil), src))
	h := s.Handler()

	rec := do(t, h, http.MethodPost, "/api/build", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	var resp buildResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Built) != 1 || resp.Built[0] != "index.md" || resp.RunID == "" {
		t.Errorf("response = %+v", resp)
	}

	rec = do(t, h, http.MethodGet, "/index.html", "")
	if !strings.Contains(rec.Body.String(), `class="ditaa"`) {
		t.Errorf("built page not served: %q", rec.Body)
	}

	rec = do(t, h, http.MethodPost, "/api/build", "")
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Built) != 0 || resp.Skipped != 1 {
		t.Errorf("second build = %+v, want the page skipped", resp)
	}
}

func TestBuildDisabled(t *testing.T) {
	s, _ := newServer(t, "ditaa")
	if rec := do(t, s.Handler(), http.MethodPost, "/api/build", ""); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

type recordingHooks struct {
	observability.NoopHTTPHooks
	mu       sync.Mutex
	statuses []int
}

func (h *recordingHooks) OnResponse(_ context.Context, _, _, _ string, status int, _ time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.statuses = append(h.statuses, status)
}

func TestHTTPHooks(t *testing.T) {
	hooks := &recordingHooks{}
	observability.SetHTTPHooks(hooks)
	t.Cleanup(observability.Reset)

	s, _ := newServer(t, "ditaa")
	h := s.Handler()
	do(t, h, http.MethodGet, "/healthz", "")
	do(t, h, http.MethodPost, "/api/render", "")

	hooks.mu.Lock()
	defer hooks.mu.Unlock()
	if len(hooks.statuses) != 2 || hooks.statuses[0] != 200 || hooks.statuses[1] != 400 {
		t.Errorf("statuses = %v, want [200 400]", hooks.statuses)
	}
}

func TestListenAndServeShutdown(t *testing.T) {
	s, _ := newServer(t, "ditaa")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("ListenAndServe() = %v, want nil after cancel", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
