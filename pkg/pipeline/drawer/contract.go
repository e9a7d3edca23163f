// Package drawer renders a pipeline, or any DAG of named steps, as a
// Graphviz DOT document.
package drawer

import (
	"time"

	"github.com/jitsdp/jitsdp-runner/pkg/pipeline/measure"
)

// Drawer collects steps and links and renders them.
type Drawer interface {
	// AddStep adds a step to the drawing.
	AddStep(stepName string) error
	// AddLink links a parent step to a child step.
	AddLink(parentStepName, childStepName string) error
	// Draw renders the drawing.
	Draw() error
	// SetTotalTime labels a step with the time elapsed since startTime.
	SetTotalTime(stepName string, startTime time.Time) error
	// AddMeasure labels steps and links with the recorded durations.
	AddMeasure(measure measure.Measure) error
}
