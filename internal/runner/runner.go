// Package runner executes a battery of jitsdp invocations.
//
// Invocations flow through a pipeline: a root step emits them in battery
// order, an execute step runs them (one at a time unless Jobs says
// otherwise), then a splitter hands every result to the progress and summary
// sinks. A failing invocation stops the execute step, so the invocations after
// it are never read.
package runner

import (
	"context"
	"io"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/jitsdp/jitsdp-runner/internal/battery"
	"github.com/jitsdp/jitsdp-runner/pkg/pipeline"
	"github.com/jitsdp/jitsdp-runner/pkg/pipeline/drawer"
	"github.com/jitsdp/jitsdp-runner/pkg/pipeline/measure"
	"github.com/jitsdp/jitsdp-runner/pkg/pipeline/model"
)

var (
	ErrInvocationFailed = errors.New("invocation failed")
	ErrToolMustBeSet    = errors.New("tool must be set")
)

// Recorder keeps track of invocations, typically in the tracking store.
type Recorder interface {
	StartInvocation(ctx context.Context, experiment, subcommand string, args []string) (string, error)
	FinishInvocation(ctx context.Context, id string, exitCode int, failure string) error
}

// Options configures a Runner. Tool is the only required field.
type Options struct {
	Tool     string
	Dir      string
	Env      []string
	Jobs     int
	DryRun   bool
	Stdout   io.Writer
	Stderr   io.Writer
	Executor Executor
	Recorder Recorder
	// Progress receives a progress bar when set.
	Progress io.Writer
	// Graph receives the DOT rendering of the battery pipeline when set.
	Graph   io.Writer
	Measure measure.Measure
	Logger  zerolog.Logger
}

type Runner struct {
	opts Options
}

func New(opts Options) (*Runner, error) {
	if opts.Tool == "" {
		return nil, ErrToolMustBeSet
	}
	if opts.Jobs < 1 {
		opts.Jobs = 1
	}
	if opts.Executor == nil {
		opts.Executor = ExecExecutor{}
	}
	if opts.Stdout == nil {
		opts.Stdout = io.Discard
	}
	if opts.Stderr == nil {
		opts.Stderr = io.Discard
	}
	if opts.Measure == nil && opts.Graph != nil {
		opts.Measure = measure.NewDefaultMeasure()
	}

	return &Runner{opts: opts}, nil
}

// Result is the outcome of one invocation.
type Result struct {
	Index      int
	Invocation battery.Invocation
	RunID      string
	ExitCode   int
	Duration   time.Duration
	DryRun     bool
}

// Summary describes a battery run. Results holds the invocations that
// succeeded, in completion order.
type Summary struct {
	Total    int
	Results  []Result
	Failed   *Result
	Duration time.Duration
}

type job struct {
	index int
	inv   battery.Invocation
}

// Run executes invs. It returns an error wrapping ErrInvocationFailed when an
// invocation exits non-zero; the summary then holds the failing result.
func (r *Runner) Run(ctx context.Context, invs []battery.Invocation) (Summary, error) {
	start := time.Now()
	exec := &execution{opts: r.opts}
	err := r.run(ctx, invs, exec)

	summary := exec.summary(len(invs))
	summary.Duration = time.Since(start)
	if err != nil {
		return summary, err
	}
	r.opts.Logger.Info().Int("invocations", len(summary.Results)).Dur("elapsed", summary.Duration).Msg("battery done")

	return summary, nil
}

func (r *Runner) run(ctx context.Context, invs []battery.Invocation, exec *execution) error {
	var opts []model.PipelineOption
	if r.opts.Measure != nil {
		opts = append(opts, measure.PipelineMeasure(r.opts.Measure))
	}
	if r.opts.Graph != nil {
		opts = append(opts, drawer.PipelineDrawer(drawer.NewDOTWriterDrawer(r.opts.Graph), r.opts.Measure))
	}

	p, err := pipeline.New(ctx, opts...)
	if err != nil {
		return err
	}

	root, err := pipeline.AddRootStep(p, "battery", func(ctx context.Context, rootChan chan<- job) error {
		for i, inv := range invs {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case rootChan <- job{index: i, inv: inv}:
			}
		}

		return nil
	})
	if err != nil {
		return err
	}

	results, err := pipeline.AddStepOneToOne(p, "execute", root, exec.run, pipeline.StepConcurrency[Result](r.opts.Jobs))
	if err != nil {
		return err
	}

	splitter, err := pipeline.AddSplitter(p, "results", results, 2)
	if err != nil {
		return err
	}
	progressBranch, _ := splitter.Get()
	logBranch, _ := splitter.Get()

	bar := r.newProgressBar(len(invs))
	err = pipeline.AddSink(p, "progress", progressBranch, func(_ context.Context, res Result) error {
		if bar != nil {
			bar.Set("prefix", res.Invocation.Subcommand+" "+res.Invocation.Experiment())
			bar.Increment()
		}

		return nil
	})
	if err != nil {
		return err
	}

	err = pipeline.AddSink(p, "log", logBranch, func(_ context.Context, res Result) error {
		r.opts.Logger.Info().
			Int("index", res.Index).
			Str("experiment", res.Invocation.Experiment()).
			Str("run_id", res.RunID).
			Bool("dry_run", res.DryRun).
			Dur("elapsed", res.Duration).
			Msg("invocation succeeded")

		return nil
	})
	if err != nil {
		return err
	}

	err = p.Run()
	if bar != nil {
		bar.Finish()
	}

	return err
}

const progressTemplate pb.ProgressBarTemplate = `{{with string . "prefix"}}{{.}} {{end}}{{counters . }} {{bar . }} {{etime . }}`

func (r *Runner) newProgressBar(total int) *pb.ProgressBar {
	if r.opts.Progress == nil {
		return nil
	}
	bar := progressTemplate.New(total)
	bar.SetWriter(r.opts.Progress)

	return bar.Start()
}
