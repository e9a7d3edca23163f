package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/jitsdp/jitsdp-runner/internal/battery"
)

// execution runs single invocations for the execute step and keeps their
// outcome. It is shared by every goroutine of the step.
type execution struct {
	opts Options

	mu        sync.Mutex
	succeeded []Result
	failed    *Result
}

func (e *execution) summary(total int) Summary {
	e.mu.Lock()
	defer e.mu.Unlock()

	return Summary{
		Total:   total,
		Results: append([]Result(nil), e.succeeded...),
		Failed:  e.failed,
	}
}

func (e *execution) done(res Result, failed bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !failed {
		e.succeeded = append(e.succeeded, res)

		return
	}
	if e.failed == nil {
		e.failed = &res
	}
}

func (e *execution) run(ctx context.Context, j job) (Result, error) {
	res := Result{Index: j.index, Invocation: j.inv, DryRun: e.opts.DryRun}
	argv := j.inv.Argv(e.opts.Tool)

	if e.opts.DryRun {
		if _, err := fmt.Fprintln(e.opts.Stdout, battery.ShellLine(argv)); err != nil {
			return res, errors.Wrap(err, "print invocation")
		}
		e.done(res, false)

		return res, nil
	}

	logger := e.opts.Logger.With().Int("index", j.index).Str("experiment", j.inv.Experiment()).Logger()

	if e.opts.Recorder != nil {
		id, err := e.opts.Recorder.StartInvocation(ctx, j.inv.Experiment(), j.inv.Subcommand, j.inv.Flags.Args())
		if err != nil {
			return res, errors.Wrapf(err, "record start of %s", j.inv)
		}
		res.RunID = id
	}

	logger.Info().Str("command", battery.ShellLine(argv)).Msg("invocation started")
	start := time.Now()
	code, execErr := e.opts.Executor.Execute(ctx, Command{
		Path:   e.opts.Tool,
		Args:   argv[1:],
		Dir:    e.opts.Dir,
		Env:    e.opts.Env,
		Stdout: e.opts.Stdout,
		Stderr: e.opts.Stderr,
	})
	res.Duration = time.Since(start)
	res.ExitCode = code

	failure := ""
	switch {
	case execErr != nil:
		failure = execErr.Error()
	case code != 0:
		failure = fmt.Sprintf("exit status %d", code)
	}

	if e.opts.Recorder != nil {
		// the outcome is recorded even when the run context is cancelled
		err := e.opts.Recorder.FinishInvocation(context.WithoutCancel(ctx), res.RunID, code, failure)
		if err != nil {
			logger.Warn().Err(err).Msg("unable to record invocation outcome")
		}
	}

	if failure == "" {
		e.done(res, false)

		return res, nil
	}

	e.done(res, true)
	logger.Error().Int("exit_code", code).Dur("elapsed", res.Duration).Msg("invocation failed")
	if execErr != nil {
		return res, errors.Wrapf(execErr, "%s", j.inv)
	}

	return res, errors.Wrapf(ErrInvocationFailed, "%s: exit status %d", j.inv, code)
}
