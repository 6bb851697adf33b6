package ditaa

import (
	"fmt"

	"github.com/matzehuels/ditaadoc/pkg/errors"
)

// RenderError reports a tool run that exited with a nonzero status.
// Stdout and Stderr hold the captured streams, decoded as UTF-8 with invalid
// sequences replaced.
type RenderError struct {
	// Command is the full command that was executed, including arguments.
	Command []string

	// ExitCode is the exit status of the tool.
	ExitCode int

	Stdout string
	Stderr string

	// Err is the underlying error from the execution.
	Err error
}

// Error returns the diagnostic shown to users. Both streams appear verbatim.
func (e *RenderError) Error() string {
	return fmt.Sprintf("ditaa exited with error:\n[stderr]\n%s\n[stdout]\n%s", e.Stderr, e.Stdout)
}

// Unwrap returns the underlying error.
func (e *RenderError) Unwrap() error {
	return e.Err
}

// Code classifies the error for errors.Is and errors.GetCode.
func (e *RenderError) Code() errors.Code {
	return errors.ErrCodeRenderFailed
}
