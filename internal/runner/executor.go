package runner

import (
	"context"
	"io"
	"os"
	"os/exec"

	"github.com/pkg/errors"
)

// Command is a process to execute.
type Command struct {
	Path   string
	Args   []string
	Dir    string
	Env    []string
	Stdout io.Writer
	Stderr io.Writer
}

// Executor runs a command to completion. A process that ran and exited is
// reported through the exit code with a nil error; err is reserved for
// processes that could not run or were interrupted.
type Executor interface {
	Execute(ctx context.Context, cmd Command) (exitCode int, err error)
}

// ExecExecutor runs commands as local processes. Cancelling the context kills
// the process.
type ExecExecutor struct{}

func (ExecExecutor) Execute(ctx context.Context, c Command) (int, error) {
	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	cmd.Dir = c.Dir
	cmd.Env = append(os.Environ(), c.Env...)
	cmd.Stdout = c.Stdout
	cmd.Stderr = c.Stderr

	err := cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return -1, ctxErr
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	if err != nil {
		return -1, errors.Wrapf(err, "start %s", c.Path)
	}

	return 0, nil
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, cmd Command) (int, error)

func (f ExecutorFunc) Execute(ctx context.Context, cmd Command) (int, error) {
	return f(ctx, cmd)
}
