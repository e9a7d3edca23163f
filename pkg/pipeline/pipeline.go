package pipeline

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/jitsdp/jitsdp-runner/pkg/pipeline/model"
)

// Pipeline is a set of steps sharing one context.
type Pipeline struct {
	ctx       context.Context
	cancel    context.CancelFunc
	errcList  *errorChans
	opts      []model.PipelineOption
	startTime time.Time
}

// New creates a pipeline bound to ctx and initialises its options.
func New(ctx context.Context, opts ...model.PipelineOption) (*Pipeline, error) {
	dCtx, cancel := context.WithCancel(ctx)
	pipe := &Pipeline{
		ctx:       dCtx,
		cancel:    cancel,
		errcList:  &errorChans{},
		startTime: time.Now(),
		opts:      opts,
	}

	for _, opt := range opts {
		err := opt.New()
		if err != nil {
			cancel()

			return nil, errors.Wrap(err, "unable to apply pipeline option")
		}
	}

	return pipe, nil
}

// waitForPipeline waits for every step to return. The first error cancels the
// remaining steps and is the one reported.
func waitForPipeline(cancel context.CancelFunc, errs ...*errorChan) error {
	var first error
	for err := range mergeErrors(errs...) {
		if err != nil && first == nil {
			first = err
			cancel()
		}
	}

	return first
}

// Run waits for every step to finish. On the first error the pipeline context
// is cancelled, and the error is returned once every step has exited.
func (p *Pipeline) Run() error {
	defer p.cancel()

	err := waitForPipeline(p.cancel, p.errcList.all()...)
	if err != nil {
		return err
	}

	return p.finishRun()
}

// StartTime is the creation time of the pipeline.
func (p *Pipeline) StartTime() time.Time {
	return p.startTime
}

func (p *Pipeline) finishRun() error {
	for _, opt := range p.opts {
		err := opt.Finish()
		if err != nil {
			return errors.Wrap(err, "unable to finish pipeline option")
		}
	}

	return nil
}
