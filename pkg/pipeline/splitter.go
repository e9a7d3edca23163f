package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/jitsdp/jitsdp-runner/pkg/pipeline/model"
)

// Splitter copies every element of its input to Total branches.
type Splitter[I any] struct {
	mu         sync.Mutex
	currIdx    int
	mainStep   *model.Step[I]
	branches   []*model.Step[I]
	bufferSize int
	Total      int
}

// Get returns the next unclaimed branch. Every branch must be consumed,
// otherwise the splitter blocks once the branch buffer is full.
func (s *Splitter[I]) Get() (*model.Step[I], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currIdx >= len(s.branches) {
		return nil, false
	}
	branch := s.branches[s.currIdx]
	s.currIdx++

	return branch, true
}

func (s *Splitter[I]) drainBranch(ctx context.Context, buf <-chan I, branch *model.Step[I]) error {
	defer close(branch.Output)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case elem, ok := <-buf:
			if !ok {
				return nil
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case branch.Output <- elem:
			}
		}
	}
}

// AddSplitter adds a step that duplicates the input into total branches.
func AddSplitter[I any](p *Pipeline, name string, input *model.Step[I], total int, opts ...SplitterOption[I]) (*Splitter[I], error) {
	if p == nil {
		return nil, ErrPipelineMustBeSet
	}
	if input == nil {
		return nil, ErrInputMustBeSet
	}
	if total <= 0 {
		return nil, ErrSplitterTotal
	}

	splitter := &Splitter[I]{
		Total: total,
		mainStep: &model.Step[I]{
			Details: &model.StepInfo{
				Type:       model.SplitterStepType,
				Name:       name,
				Concurrent: 1,
			},
		},
	}
	for _, opt := range opts {
		opt(splitter)
	}
	if splitter.bufferSize <= 0 {
		splitter.bufferSize = 1
	}
	splitter.mainStep.Details.BufferSize = splitter.bufferSize

	for _, opt := range p.opts {
		err := opt.PrepareSplitter(input.Details, splitter.mainStep.Details)
		if err != nil {
			return nil, errors.Wrap(err, "unable to prepare splitter")
		}
	}

	buffers := make([]chan I, total)
	splitter.branches = make([]*model.Step[I], total)
	for i := range total {
		buffers[i] = make(chan I, splitter.bufferSize)
		splitter.branches[i] = &model.Step[I]{
			Details: splitter.mainStep.Details,
			Output:  make(chan I),
		}
	}

	errC := make(chan error, 1)
	p.errcList.add(newErrorChan(name, errC))

	var wg sync.WaitGroup
	wg.Add(total)
	for i := range total {
		go func() {
			defer wg.Done()
			// cancellation is reported by the feeding goroutine
			_ = splitter.drainBranch(p.ctx, buffers[i], splitter.branches[i])
		}()
	}

	go func() {
		var runErr error
		defer func() {
			for _, buf := range buffers {
				close(buf)
			}
			wg.Wait()
			if runErr != nil {
				errC <- runErr
			}
			close(errC)
		}()
		runErr = splitter.feed(p, input, buffers)
	}()

	return splitter, nil
}

func (s *Splitter[I]) feed(p *Pipeline, input *model.Step[I], buffers []chan I) error {
	for {
		startIter := time.Now()
		select {
		case <-p.ctx.Done():
			return p.ctx.Err()
		case entry, ok := <-input.Output:
			if !ok {
				return nil
			}
			startFn := time.Now()
			for _, buf := range buffers {
				select {
				case <-p.ctx.Done():
					return p.ctx.Err()
				case buf <- entry:
				}
			}
			endFn := time.Since(startFn)

			for _, opt := range p.opts {
				err := opt.OnSplitterOutput(input.Details, s.mainStep.Details, time.Since(startIter)-endFn, endFn)
				if err != nil {
					return errors.Wrap(err, "unable to run splitter output hook")
				}
			}
		}
	}
}
