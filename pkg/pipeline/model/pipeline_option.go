package model

import "time"

// PipelineOption is attached to a pipeline and notified while the pipeline is
// built and while it runs.
type PipelineOption interface {
	// New runs once when the pipeline is created.
	New() error

	stepHooks
	splitterHooks
	sinkHooks

	// Finish runs once after every step returned without error.
	Finish() error
}

type stepHooks interface {
	// PrepareStep runs when a step is added, before it starts.
	PrepareStep(parentStep, step *StepInfo) error
	// OnStepOutput runs every time the step pushes an element downstream.
	OnStepOutput(parentStep, step *StepInfo, iterationDuration, computationDuration time.Duration) error
}

type splitterHooks interface {
	// PrepareSplitter runs when a splitter is added.
	PrepareSplitter(parentStep, splitterStep *StepInfo) error
	// OnSplitterOutput runs every time an element has been copied to every branch.
	OnSplitterOutput(parentStep, splitterStep *StepInfo, iterationDuration, computationDuration time.Duration) error
}

type sinkHooks interface {
	// PrepareSink runs when a sink is added.
	PrepareSink(parentStep, step *StepInfo) error
	// OnSinkOutput runs every time the sink consumed an element.
	OnSinkOutput(parentStep, step *StepInfo, iterationDuration, computationDuration time.Duration) error
	// AfterSink runs once the sink input is drained.
	AfterSink(step *StepInfo, totalDuration time.Duration) error
}
