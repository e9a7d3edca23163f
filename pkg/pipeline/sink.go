package pipeline

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/jitsdp/jitsdp-runner/pkg/pipeline/model"
)

// AddSink adds the last step of a branch. sinkFn is called for every element,
// one at a time.
func AddSink[I any](p *Pipeline, name string, input *model.Step[I], sinkFn func(ctx context.Context, input I) error) error {
	if p == nil {
		return ErrPipelineMustBeSet
	}
	if input == nil {
		return ErrInputMustBeSet
	}

	step := &model.StepInfo{
		Type:       model.SinkStepType,
		Name:       name,
		Concurrent: 1,
	}
	for _, opt := range p.opts {
		err := opt.PrepareSink(input.Details, step)
		if err != nil {
			return errors.Wrap(err, "unable to prepare sink")
		}
	}

	errC := make(chan error, 1)
	p.errcList.add(newErrorChan(name, errC))

	go func() {
		defer close(errC)
		err := consume(p, input, step, sinkFn)
		if err != nil {
			errC <- err

			return
		}
		for _, opt := range p.opts {
			err := opt.AfterSink(step, time.Since(p.startTime))
			if err != nil {
				errC <- errors.Wrap(err, "unable to run after sink hook")

				return
			}
		}
	}()

	return nil
}

func consume[I any](p *Pipeline, input *model.Step[I], step *model.StepInfo, sinkFn func(ctx context.Context, input I) error) error {
	for {
		startIter := time.Now()
		select {
		case <-p.ctx.Done():
			return p.ctx.Err()
		case in, ok := <-input.Output:
			if !ok {
				return nil
			}
			startFn := time.Now()
			err := sinkFn(p.ctx, in)
			if err != nil {
				return err
			}
			endFn := time.Since(startFn)
			for _, opt := range p.opts {
				err := opt.OnSinkOutput(input.Details, step, time.Since(startIter)-endFn, endFn)
				if err != nil {
					return errors.Wrap(err, "unable to run sink output hook")
				}
			}
		}
	}
}
