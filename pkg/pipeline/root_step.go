package pipeline

import (
	"context"

	"github.com/pkg/errors"

	"github.com/jitsdp/jitsdp-runner/pkg/pipeline/model"
)

// AddRootStep adds a step producing the elements of the pipeline. stepFn must
// stop sending when ctx is done. The output is closed when stepFn returns.
func AddRootStep[O any](p *Pipeline, name string, stepFn func(ctx context.Context, rootChan chan<- O) error, opts ...StepOption[O]) (*model.Step[O], error) {
	if p == nil {
		return nil, ErrPipelineMustBeSet
	}

	step := &model.Step[O]{
		Details: &model.StepInfo{
			Type:       model.RootStepType,
			Name:       name,
			Concurrent: 1,
		},
		Output: make(chan O),
	}
	for _, opt := range opts {
		opt(step)
	}
	for _, opt := range p.opts {
		err := opt.PrepareStep(model.StartStep.Details, step.Details)
		if err != nil {
			return nil, errors.Wrap(err, "unable to prepare root step")
		}
	}

	errC := make(chan error, 1)
	p.errcList.add(newErrorChan(name, errC))

	go func() {
		defer func() {
			close(step.Output)
			close(errC)
		}()
		err := stepFn(p.ctx, step.Output)
		if err != nil {
			errC <- err
		}
	}()

	return step, nil
}
