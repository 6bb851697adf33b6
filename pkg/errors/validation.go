package errors

import (
	"strings"
	"unicode"
)

// maxOptionLength bounds a single per-call tool option.
const maxOptionLength = 256

// ValidateToolOption validates a per-call argument passed to the external
// diagram tool, such as "--no-shadows", "-E" or the "2" of "--scale 2".
// The input and output files always follow the options, so values that are
// not flags are passed through unchanged.
//
// Validation rules:
//   - No empty options
//   - No control characters or null bytes
//   - Maximum length of 256 characters
func ValidateToolOption(opt string) error {
	if opt == "" {
		return New(ErrCodeInvalidOption, "tool option cannot be empty")
	}

	if len(opt) > maxOptionLength {
		return New(ErrCodeInvalidOption, "tool option too long (max %d characters)", maxOptionLength)
	}

	for _, r := range opt {
		if r == '\x00' || unicode.IsControl(r) {
			return New(ErrCodeInvalidOption, "tool option contains invalid characters: %q", opt)
		}
	}

	return nil
}

// ValidateToolOptions validates every option in opts, returning the first failure.
func ValidateToolOptions(opts []string) error {
	for _, opt := range opts {
		if err := ValidateToolOption(opt); err != nil {
			return err
		}
	}
	return nil
}

// ValidatePath validates a page-relative path received from outside the
// source tree, such as a request path on the preview server.
//
// Validation rules:
//   - Path cannot be empty
//   - Maximum length of 500 characters
//   - No null bytes or control characters
//   - No path traversal sequences (..)
//   - No backslashes (Windows-style paths)
func ValidatePath(path string) error {
	if path == "" {
		return New(ErrCodeInvalidPath, "path cannot be empty")
	}

	const maxPathLength = 500
	if len(path) > maxPathLength {
		return New(ErrCodeInvalidPath, "path too long (max %d characters)", maxPathLength)
	}

	for _, r := range path {
		if r == '\x00' || unicode.IsControl(r) {
			return New(ErrCodeInvalidPath, "path contains invalid characters")
		}
	}

	if strings.Contains(path, "..") {
		return New(ErrCodeInvalidPath, "path cannot contain path traversal sequences (..)")
	}

	if strings.Contains(path, "\\") {
		return New(ErrCodeInvalidPath, "path cannot contain backslashes")
	}

	return nil
}
