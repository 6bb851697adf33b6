// Package diagram turns ditaa directive blocks into diagram nodes.
//
// A directive block comes from the document host (see the markdown package)
// as a [Block]: the directive name, its positional arguments, its options and
// its content lines. [Parse] validates the block and produces an immutable
// [Node], or a [Warning] that the host shows in the document in place of the
// diagram.
//
// # Input modes
//
// A block carries its diagram either inline, as content lines, or in an
// external UTF-8 file named by the single argument. The two modes are
// mutually exclusive. External files are resolved and recorded as build
// dependencies through an [Env], so the host knows to rebuild the page when
// the file changes.
//
// # Options
//
//   - alt: alternate text, stored verbatim
//   - caption: caption text, stored verbatim
//   - inline: flag; the embedder uses an inline container instead of a block one
//   - options: whitespace-separated per-call options for the external tool
package diagram

import (
	"fmt"

	"github.com/matzehuels/ditaadoc/pkg/errors"
)

// DirectiveName is the name the host recognizes blocks by.
const DirectiveName = "ditaa"

// Option names accepted by the directive.
const (
	OptionAlt     = "alt"
	OptionCaption = "caption"
	OptionInline  = "inline"
	OptionOptions = "options"
)

// Block is a raw directive occurrence as delivered by the document host.
type Block struct {
	// Name is the directive name, normally DirectiveName.
	Name string

	// Args are the positional arguments following the name.
	Args []string

	// Options maps option names to their values. Flags map to "".
	Options map[string]string

	// Content holds the content lines, without trailing newlines.
	Content []string

	// Line is the 1-based source line of the directive, for warnings.
	Line int
}

// Node is a parsed diagram ready for rendering. It is not modified after
// Parse returns it.
type Node struct {
	// Code is the diagram text handed to the external tool.
	Code string

	// Options are the per-call tool options, in directive order.
	Options []string

	// Alt is the alternate text, if any.
	Alt string

	// Caption is the caption text, if any. Rendering does not use it.
	Caption string

	// Inline selects an inline container in HTML output.
	Inline bool

	// Line is the source line of the directive.
	Line int

	// Source is the absolute path of the external file the code was read
	// from, or empty for inline content.
	Source string
}

// Warning is a user-input problem with a directive. The host shows it in the
// document and drops the block; the build continues.
type Warning struct {
	Code    errors.Code
	Message string
	Line    int
}

// Error implements the error interface.
func (w *Warning) Error() string {
	if w.Line > 0 {
		return fmt.Sprintf("line %d: %s", w.Line, w.Message)
	}
	return w.Message
}

func warnf(code errors.Code, line int, format string, args ...any) *Warning {
	return &Warning{Code: code, Message: fmt.Sprintf(format, args...), Line: line}
}
