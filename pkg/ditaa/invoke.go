package ditaa

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/matzehuels/ditaadoc/pkg/errors"
)

// waitDelay bounds how long Wait keeps draining output after the tool was
// killed, in case it left children holding the pipes open.
const waitDelay = 2 * time.Second

// commOutcome is the result of feeding the diagram to the tool's stdin.
type commOutcome int

const (
	commCompleted  commOutcome = iota // all input written and stdin closed
	commBrokenPipe                    // the tool closed its stdin early; wait for its exit status
	commFailed                        // unexpected write error; the run is aborted
)

// communicate writes code to w and closes it.
func communicate(w io.WriteCloser, code string) (commOutcome, error) {
	_, err := io.WriteString(w, code)
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	switch {
	case err == nil:
		return commCompleted, nil
	case isBrokenPipe(err):
		return commBrokenPipe, err
	default:
		return commFailed, err
	}
}

// isBrokenPipe reports whether err means the reading end of the pipe is gone.
// EINVAL is reported by some platforms for writes to a pipe whose reader
// exited.
func isBrokenPipe(err error) bool {
	return stderrors.Is(err, syscall.EPIPE) ||
		stderrors.Is(err, syscall.EINVAL) ||
		stderrors.Is(err, os.ErrClosed)
}

// isNotFound reports whether a start error means the executable is missing.
func isNotFound(err error) bool {
	return stderrors.Is(err, exec.ErrNotFound) || stderrors.Is(err, fs.ErrNotExist)
}

type invokeResult struct {
	status Status
	notice error
}

// invoke runs the tool for one diagram, writing the image to out. When the
// tool cannot be started, the run that sets the sticky flag gets a
// TOOL_NOT_FOUND notice naming the full command; later runs get none.
func (b *Builder) invoke(ctx context.Context, code string, options []string, out string) (invokeResult, error) {
	if b.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.cfg.Timeout)
		defer cancel()
	}

	if err := b.store.EnsureDir(); err != nil {
		return invokeResult{}, errors.Wrap(errors.ErrCodeInternal, err, "create image directory %s", b.store.Dir())
	}

	input, err := writeInput(code)
	if err != nil {
		return invokeResult{}, err
	}
	defer os.Remove(input)

	args := make([]string, 0, len(b.cfg.Args)+len(options)+2)
	args = append(args, b.cfg.Args...)
	args = append(args, options...)
	args = append(args, input, out)

	cmd := exec.CommandContext(ctx, b.cfg.Path, args...)
	cmd.WaitDelay = waitDelay
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return invokeResult{}, errors.Wrap(errors.ErrCodeInternal, err, "open stdin for %s", b.cfg.Path)
	}

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		if isNotFound(err) {
			if !b.failed.CompareAndSwap(false, true) {
				return invokeResult{status: StatusSkipped}, nil
			}
			command := strings.Join(append([]string{b.cfg.Path}, args...), " ")
			b.logger.Warn(fmt.Sprintf("ditaa command %q cannot be run: check the ditaa.path and ditaa.args settings", command),
				"err", err, "run", b.RunID())
			notice := errors.Wrap(errors.ErrCodeToolNotFound, err,
				"ditaa command %q cannot be run; diagrams are shown as text", command)
			return invokeResult{status: StatusSkipped, notice: notice}, nil
		}
		return invokeResult{}, errors.Wrap(errors.ErrCodeInternal, err, "launch %s", b.cfg.Path)
	}

	switch outcome, werr := communicate(stdin, code); outcome {
	case commBrokenPipe:
		b.logger.Debug("ditaa closed its input early", "err", werr)
	case commFailed:
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return invokeResult{}, errors.Wrap(errors.ErrCodeInternal, werr, "write diagram to %s", b.cfg.Path)
	}

	err = cmd.Wait()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return invokeResult{}, errors.Wrap(errors.ErrCodeTimeout, ctxErr, "%s did not finish", b.cfg.Path)
	}
	if err != nil {
		var exitErr *exec.ExitError
		if stderrors.As(err, &exitErr) {
			b.failed.Store(true)
			return invokeResult{}, &RenderError{
				Command:  append([]string{b.cfg.Path}, args...),
				ExitCode: exitErr.ExitCode(),
				Stdout:   decode(stdout.Bytes()),
				Stderr:   decode(stderr.Bytes()),
				Err:      err,
			}
		}
		return invokeResult{}, errors.Wrap(errors.ErrCodeInternal, err, "wait for %s", b.cfg.Path)
	}
	return invokeResult{status: StatusRendered}, nil
}

// writeInput stores code in a temporary ".ditaa" file and returns its path.
func writeInput(code string) (string, error) {
	f, err := os.CreateTemp("", "ditaa-*.ditaa")
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeInternal, err, "create temporary input")
	}
	name := f.Name()
	if _, err := f.WriteString(code); err != nil {
		f.Close()
		os.Remove(name)
		return "", errors.Wrap(errors.ErrCodeInternal, err, "write temporary input")
	}
	if err := f.Close(); err != nil {
		os.Remove(name)
		return "", errors.Wrap(errors.ErrCodeInternal, err, "close temporary input")
	}
	return name, nil
}

func decode(b []byte) string {
	return strings.ToValidUTF8(string(b), "�")
}
