package cli

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/google/subcommands"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/jitsdp/jitsdp-runner/internal/battery"
	"github.com/jitsdp/jitsdp-runner/internal/config"
	"github.com/jitsdp/jitsdp-runner/internal/runner"
	"github.com/jitsdp/jitsdp-runner/internal/taskrunner"
	"github.com/jitsdp/jitsdp-runner/internal/tracking"
)

var ErrNoCleanTarget = errors.New("no clean target configured")

func (a *App) battery() []subcommands.Command {
	return []subcommands.Command{
		&runCmd{command: a.command("run", "run the experiment battery, halting on the first failure")},
		&targetCmd{command: a.command("target", "run targets with their dependencies", "target [flags] <target>...\n")},
		&cleanCmd{command: a.command("clean", "remove generated directories", "clean [path]...\n")},
	}
}

// batteryFlags are shared by run and target.
type batteryFlags struct {
	jobs     int
	dryRun   bool
	progress bool
	track    bool
	file     string
	graph    string
}

func (b *batteryFlags) set(f *flag.FlagSet) {
	f.IntVar(&b.jobs, "jobs", 0, "concurrent invocations, the configured value when 0")
	f.BoolVar(&b.dryRun, "dry-run", false, "print the invocations instead of running them")
	f.BoolVar(&b.progress, "progress", false, "show a progress bar")
	f.BoolVar(&b.track, "track", false, "record invocations in the tracking database")
	f.StringVar(&b.file, "battery", "", "battery file replacing the configured one")
	f.StringVar(&b.graph, "graph", "", "write the DOT rendering of the run to this file")
}

// batteryRunner builds the runner and the invocations described by the
// configuration and the flags. closeFn releases what the runner holds.
func (a *App) batteryRunner(cfg *config.Config, b batteryFlags, logger zerolog.Logger) (r *runner.Runner, invs []battery.Invocation, closeFn func() error, err error) {
	var closers []func() error
	closeFn = func() error {
		var first error
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil && first == nil {
				first = err
			}
		}

		return first
	}
	defer func() {
		if err != nil {
			closeFn() //nolint:errcheck
		}
	}()

	invs = cfg.Invocations()
	if b.file != "" {
		rc, err := open(b.file)
		if err != nil {
			return nil, nil, closeFn, err
		}
		loaded, err := battery.Load(rc)
		rc.Close()
		if err != nil {
			return nil, nil, closeFn, errors.Wrap(err, b.file)
		}
		invs = loaded.Expand()
	}

	opts := runner.Options{
		Tool:     cfg.Tool.Executable,
		Dir:      cfg.Tool.Dir,
		Env:      cfg.Tool.Env,
		Jobs:     cfg.Runner.Jobs,
		DryRun:   cfg.Runner.DryRun || b.dryRun,
		Stdout:   a.Stdout,
		Stderr:   a.Stderr,
		Executor: a.Executor,
		Logger:   logger,
	}
	if b.jobs > 0 {
		opts.Jobs = b.jobs
	}
	if cfg.Runner.Progress || b.progress {
		opts.Progress = a.Stderr
	}

	graph := cfg.Runner.Graph
	if b.graph != "" {
		graph = b.graph
	}
	if graph != "" {
		w, closeGraph, err := output(graph, a.Stdout)
		if err != nil {
			return nil, nil, closeFn, err
		}
		closers = append(closers, closeGraph)
		opts.Graph = w
	}

	if b.track && !opts.DryRun {
		store, err := tracking.Open(cfg.Tracking.Database)
		if err != nil {
			return nil, nil, closeFn, err
		}
		closers = append(closers, store.Close)
		opts.Recorder = store
	}

	r, err = runner.New(opts)
	if err != nil {
		return nil, nil, closeFn, err
	}

	return r, invs, closeFn, nil
}

// invocationStatus turns a failing invocation into the exit status of the
// process.
func invocationStatus(summary runner.Summary, err error) subcommands.ExitStatus {
	if err == nil {
		return subcommands.ExitSuccess
	}
	if errors.Is(err, runner.ErrInvocationFailed) && summary.Failed != nil && summary.Failed.ExitCode > 0 {
		return subcommands.ExitStatus(summary.Failed.ExitCode)
	}

	return subcommands.ExitFailure
}

type runCmd struct {
	command
	flags batteryFlags
}

func (c *runCmd) SetFlags(f *flag.FlagSet) { c.flags.set(f) }

func (c *runCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, logger, ok := c.start()
	if !ok {
		return subcommands.ExitFailure
	}

	r, invs, closeFn, err := c.app.batteryRunner(cfg, c.flags, logger)
	if err != nil {
		return fail(logger, err)
	}
	defer closeFn() //nolint:errcheck

	summary, err := r.Run(ctx, invs)
	if err != nil {
		logger.Error().Err(err).Int("succeeded", len(summary.Results)).Int("total", summary.Total).Msg("battery halted")
	}

	return invocationStatus(summary, err)
}

type targetCmd struct {
	command
	flags batteryFlags
	plan  bool
	draw  string
}

func (c *targetCmd) SetFlags(f *flag.FlagSet) {
	c.flags.set(f)
	f.BoolVar(&c.plan, "plan", false, "print the targets that would run")
	f.StringVar(&c.draw, "draw", "", "write the DOT rendering of the target graph to this file")
}

// summaryRunner remembers the last battery summary for the exit status.
type summaryRunner struct {
	*runner.Runner
	last runner.Summary
}

func (s *summaryRunner) Run(ctx context.Context, invs []battery.Invocation) (runner.Summary, error) {
	summary, err := s.Runner.Run(ctx, invs)
	s.last = summary

	return summary, err
}

func (c *targetCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() == 0 && !c.plan && c.draw == "" {
		fmt.Fprint(c.app.Stderr, c.Usage())

		return subcommands.ExitUsageError
	}
	cfg, logger, ok := c.start()
	if !ok {
		return subcommands.ExitFailure
	}

	r, invs, closeFn, err := c.app.batteryRunner(cfg, c.flags, logger)
	if err != nil {
		return fail(logger, err)
	}
	defer closeFn() //nolint:errcheck

	br := &summaryRunner{Runner: r}
	tr, err := taskrunner.New(cfg.Targets, taskrunner.Options{
		Root:        cfg.Tool.Dir,
		Executor:    c.app.Executor,
		Battery:     br,
		Invocations: invs,
		Stdout:      c.app.Stdout,
		Stderr:      c.app.Stderr,
		Logger:      logger,
	})
	if err != nil {
		return fail(logger, err)
	}

	if c.draw != "" {
		if err := writeTo(c.draw, c.app.Stdout, tr.Draw); err != nil {
			return fail(logger, err)
		}
	}
	if c.plan {
		plan, err := tr.Plan(f.Args()...)
		if err != nil {
			return fail(logger, err)
		}
		for _, t := range plan {
			fmt.Fprintln(c.app.Stdout, t.Name)
		}

		return subcommands.ExitSuccess
	}
	if f.NArg() == 0 {
		return subcommands.ExitSuccess
	}

	if err := tr.Run(ctx, f.Args()...); err != nil {
		logger.Error().Err(err).Msg("target failed")

		return invocationStatus(br.last, err)
	}

	return subcommands.ExitSuccess
}

func writeTo(path string, stdout io.Writer, write func(io.Writer) error) error {
	w, closeFn, err := output(path, stdout)
	if err != nil {
		return err
	}
	if err := write(w); err != nil {
		closeFn() //nolint:errcheck

		return err
	}

	return closeFn()
}

type cleanCmd struct {
	command
}

func (c *cleanCmd) SetFlags(*flag.FlagSet) {}

// Execute removes the given paths, or those of the clean target.
func (c *cleanCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, logger, ok := c.start()
	if !ok {
		return subcommands.ExitFailure
	}

	paths := f.Args()
	if len(paths) == 0 {
		for _, t := range cfg.Targets {
			if t.Name == "clean" {
				paths = t.Remove
			}
		}
		if len(paths) == 0 {
			return fail(logger, ErrNoCleanTarget)
		}
	}

	if err := taskrunner.Clean(cfg.Tool.Dir, paths, logger); err != nil {
		return fail(logger, err)
	}

	return subcommands.ExitSuccess
}
