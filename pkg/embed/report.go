package embed

import (
	"context"
	"io"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/ditaadoc/pkg/errors"
)

// Report is one warning written into a document.
type Report struct {
	Doc     string
	Line    int
	Code    errors.Code
	Message string
}

// Collector is a Reporter that logs warnings and keeps them for a summary.
// It is safe for concurrent use.
type Collector struct {
	logger *log.Logger

	mu      sync.Mutex
	reports []Report
}

// NewCollector creates a collector logging to logger. A nil logger discards.
func NewCollector(logger *log.Logger) *Collector {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Collector{logger: logger}
}

// ForDoc returns a Reporter that attributes warnings to doc.
func (c *Collector) ForDoc(doc string) Reporter {
	return docReporter{c: c, doc: doc}
}

// Warn implements Reporter for warnings not tied to a document.
func (c *Collector) Warn(ctx context.Context, line int, err error) {
	c.add(Report{Line: line, Code: errors.GetCode(err), Message: err.Error()})
}

// Reports returns the collected warnings in arrival order.
func (c *Collector) Reports() []Report {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Report(nil), c.reports...)
}

// Len returns the number of collected warnings.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.reports)
}

func (c *Collector) add(r Report) {
	c.mu.Lock()
	c.reports = append(c.reports, r)
	c.mu.Unlock()

	kv := []any{"line", r.Line}
	if r.Doc != "" {
		kv = append([]any{"doc", r.Doc}, kv...)
	}
	c.logger.Warn(r.Message, kv...)
}

type docReporter struct {
	c   *Collector
	doc string
}

func (d docReporter) Warn(_ context.Context, line int, err error) {
	d.c.add(Report{Doc: d.doc, Line: line, Code: errors.GetCode(err), Message: err.Error()})
}
