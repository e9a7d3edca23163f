package pipeline

import "github.com/jitsdp/jitsdp-runner/pkg/pipeline/model"

// StepOption configures a step when it is added.
type StepOption[O any] func(s *model.Step[O])

// StepConcurrency sets how many elements the step handles at the same time.
// Zero and one both mean sequential processing in input order.
func StepConcurrency[O any](concurrent int) StepOption[O] {
	return func(s *model.Step[O]) {
		s.Details.Concurrent = concurrent
	}
}

// SplitterOption configures a splitter when it is added.
type SplitterOption[I any] func(s *Splitter[I])

// SplitterBufferSize sets the number of elements buffered per branch.
func SplitterBufferSize[I any](bufferSize int) SplitterOption[I] {
	return func(s *Splitter[I]) {
		s.bufferSize = bufferSize
	}
}
