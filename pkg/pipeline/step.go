package pipeline

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/jitsdp/jitsdp-runner/pkg/pipeline/model"
)

type stepRun[I, O any] struct {
	opts   []model.PipelineOption
	input  *model.Step[I]
	output *model.Step[O]
	fn     func(context.Context, I) (O, error)
}

func (sr *stepRun[I, O]) sequential(ctx context.Context, goIdx int) error {
	for {
		start := time.Now()
		select {
		case <-ctx.Done():
			return errors.Wrapf(ctx.Err(), "go routine %d", goIdx)
		case in, ok := <-sr.input.Output:
			if !ok {
				return nil
			}
			startFn := time.Now()
			out, err := sr.fn(ctx, in)
			if err != nil {
				return errors.Wrapf(err, "go routine %d", goIdx)
			}
			endFn := time.Since(startFn)

			// a step that failed elsewhere cancelled ctx: do not hand over more work
			select {
			case <-ctx.Done():
				return errors.Wrapf(ctx.Err(), "go routine %d", goIdx)
			case sr.output.Output <- out:
			}

			for _, opt := range sr.opts {
				err := opt.OnStepOutput(sr.input.Details, sr.output.Details, time.Since(start)-endFn, endFn)
				if err != nil {
					return errors.Wrap(err, "unable to run step output hook")
				}
			}
		}
	}
}

func (sr *stepRun[I, O]) concurrent(ctx context.Context) error {
	errGrp, dCtx := errgroup.WithContext(ctx)
	errGrp.SetLimit(sr.output.Details.Concurrent)
	for goIdx := range sr.output.Details.Concurrent {
		errGrp.Go(func() error {
			return sr.sequential(dCtx, goIdx)
		})
	}

	return errGrp.Wait()
}

func (sr *stepRun[I, O]) run(ctx context.Context) error {
	if sr.output.Details.Concurrent <= 1 {
		sr.output.Details.Concurrent = 1

		return sr.sequential(ctx, 0)
	}

	return sr.concurrent(ctx)
}

// AddStepOneToOne adds a step turning every input element into one output
// element. With the default concurrency the step handles one element at a
// time, in input order.
func AddStepOneToOne[I any, O any](p *Pipeline, name string, input *model.Step[I], oneToOneFn func(context.Context, I) (O, error), opts ...StepOption[O]) (*model.Step[O], error) {
	if p == nil {
		return nil, ErrPipelineMustBeSet
	}
	if input == nil {
		return nil, ErrInputMustBeSet
	}

	output := &model.Step[O]{
		Details: &model.StepInfo{
			Type:       model.NormalStepType,
			Name:       name,
			Concurrent: 1,
		},
		Output: make(chan O),
	}
	for _, opt := range opts {
		opt(output)
	}
	for _, opt := range p.opts {
		err := opt.PrepareStep(input.Details, output.Details)
		if err != nil {
			return nil, errors.Wrap(err, "unable to prepare step")
		}
	}

	sr := &stepRun[I, O]{
		opts:   p.opts,
		input:  input,
		output: output,
		fn:     oneToOneFn,
	}

	errC := make(chan error, 1)
	p.errcList.add(newErrorChan(name, errC))

	go func() {
		defer func() {
			close(output.Output)
			close(errC)
		}()
		err := sr.run(p.ctx)
		if err != nil {
			errC <- err
		}
	}()

	return output, nil
}
