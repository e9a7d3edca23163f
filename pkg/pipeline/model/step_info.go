package model

// StepType tells how a step consumes its input.
type StepType string

const (
	RootStepType     StepType = "root"
	NormalStepType   StepType = "step"
	SplitterStepType StepType = "splitter"
	SinkStepType     StepType = "sink"
)

// StepInfo describes a step to the pipeline options.
type StepInfo struct {
	Type       StepType
	Name       string
	Concurrent int
	BufferSize int
}

// Step is the typed handle of a step. Output is closed once the step is done.
type Step[O any] struct {
	Output  chan O
	Details *StepInfo
}

var (
	// StartStep is the virtual parent of every root step.
	StartStep = &Step[any]{Details: &StepInfo{Type: RootStepType, Name: "start"}}
	// EndStep is the virtual child of every sink.
	EndStep = &Step[any]{Details: &StepInfo{Type: SinkStepType, Name: "end"}}
)
