package diagram

import (
	"os"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/matzehuels/ditaadoc/pkg/errors"
)

// Parse validates b and builds a Node from it. Exactly one of the results is
// non-nil.
//
// env resolves an external file argument and records it as a dependency; it
// may be nil when b is known to carry inline content only.
func Parse(b Block, env Env) (*Node, *Warning) {
	if w := checkOptions(b); w != nil {
		return nil, w
	}

	var code, source string
	switch {
	case len(b.Args) > 1:
		return nil, warnf(errors.ErrCodeInvalidDirective, b.Line,
			"%s directive takes at most one filename argument, got %d", DirectiveName, len(b.Args))

	case len(b.Args) == 1:
		if len(b.Content) > 0 {
			return nil, warnf(errors.ErrCodeInvalidDirective, b.Line,
				"%s directive cannot have both content and a filename argument", DirectiveName)
		}
		if env == nil {
			return nil, warnf(errors.ErrCodeUnsupported, b.Line,
				"%s directive with a filename argument needs a document environment", DirectiveName)
		}
		rel, abs := env.Resolve(b.Args[0])
		env.NoteDependency(rel)
		data, err := os.ReadFile(abs)
		if err != nil || !utf8.Valid(data) {
			return nil, warnf(errors.ErrCodeFileNotFound, b.Line,
				"external %s file %q not found or reading it failed", DirectiveName, abs)
		}
		code, source = string(data), abs

	default:
		code = strings.Join(b.Content, "\n")
		if strings.TrimSpace(code) == "" {
			return nil, warnf(errors.ErrCodeInvalidDirective, b.Line,
				"ignoring %q directive without content", DirectiveName)
		}
	}

	n := &Node{
		Code:    code,
		Alt:     b.Options[OptionAlt],
		Caption: b.Options[OptionCaption],
		Line:    b.Line,
		Source:  source,
	}
	_, n.Inline = b.Options[OptionInline]
	n.Options = strings.Fields(b.Options[OptionOptions])
	return n, nil
}

// checkOptions rejects unknown options, valued flags and invalid tool options.
// Unknown names are reported in sorted order so warnings are stable.
func checkOptions(b Block) *Warning {
	names := make([]string, 0, len(b.Options))
	for name := range b.Options {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		value := b.Options[name]
		switch name {
		case OptionAlt, OptionCaption:
		case OptionInline:
			if value != "" {
				return warnf(errors.ErrCodeInvalidDirective, b.Line,
					"%s option %q is a flag and takes no value", DirectiveName, name)
			}
		case OptionOptions:
			if err := errors.ValidateToolOptions(strings.Fields(value)); err != nil {
				return warnf(errors.ErrCodeInvalidOption, b.Line, "%s", errors.UserMessage(err))
			}
		default:
			return warnf(errors.ErrCodeInvalidDirective, b.Line,
				"unknown option %q for %s directive", name, DirectiveName)
		}
	}
	return nil
}
