package drawer

import (
	"fmt"
	"io"
	"os"
	"sort"
	"text/template"
	"time"

	"github.com/dominikbraun/graph"
	"github.com/pkg/errors"
	"gopkg.in/go-playground/colors.v1" //nolint

	"github.com/jitsdp/jitsdp-runner/pkg/pipeline/measure"
)

// DOTDrawer renders steps as a directed graph in the DOT language.
type DOTDrawer struct {
	graph  graph.Graph[string, string]
	open   func() (io.WriteCloser, error)
	labels map[string]string
}

// NewDOTDrawer renders into the file fileName, created on Draw.
func NewDOTDrawer(fileName string) *DOTDrawer {
	return newDOTDrawer(func() (io.WriteCloser, error) {
		return os.Create(fileName)
	})
}

// NewDOTWriterDrawer renders into w. w is not closed.
func NewDOTWriterDrawer(w io.Writer) *DOTDrawer {
	return newDOTDrawer(func() (io.WriteCloser, error) {
		return nopCloser{w}, nil
	})
}

func newDOTDrawer(open func() (io.WriteCloser, error)) *DOTDrawer {
	return &DOTDrawer{
		graph:  graph.New(graph.StringHash, graph.Directed()),
		open:   open,
		labels: make(map[string]string),
	}
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

// AddStep adds a step. Adding an existing step is a no-op.
func (d *DOTDrawer) AddStep(name string) error {
	err := d.graph.AddVertex(name, graph.VertexAttribute("shape", "box"))
	if err != nil && !errors.Is(err, graph.ErrVertexAlreadyExists) {
		return errors.Wrapf(err, "unable to add step %s", name)
	}

	return nil
}

// AddLink links two existing steps. Adding an existing link is a no-op.
func (d *DOTDrawer) AddLink(parentName, childName string) error {
	err := d.graph.AddEdge(parentName, childName)
	if err != nil && !errors.Is(err, graph.ErrEdgeAlreadyExists) {
		return errors.Wrapf(err, "unable to add link from %s to %s", parentName, childName)
	}

	return nil
}

// Draw renders the graph.
func (d *DOTDrawer) Draw() error {
	w, err := d.open()
	if err != nil {
		return errors.Wrap(err, "unable to open drawing output")
	}

	err = d.render(w)
	if err != nil {
		_ = w.Close()

		return err
	}

	return errors.Wrap(w.Close(), "unable to close drawing output")
}

func (d *DOTDrawer) render(w io.Writer) error {
	desc, err := d.describe()
	if err != nil {
		return errors.Wrap(err, "unable to describe graph")
	}

	tpl, err := template.New("dot").Parse(dotTemplate)
	if err != nil {
		return errors.Wrap(err, "unable to parse template")
	}

	return errors.Wrap(tpl.Execute(w, desc), "unable to render graph")
}

// SetTotalTime labels a step with the time elapsed since startTime.
func (d *DOTDrawer) SetTotalTime(stepName string, startTime time.Time) error {
	if _, err := d.graph.Vertex(stepName); err != nil {
		return errors.Wrapf(err, "unable to find step %s", stepName)
	}
	d.labels[stepName] = round(time.Since(startTime)).String()

	return nil
}

const maxRGB = 240

// AddMeasure labels every step with its mean computation time and colours
// every link from blue (fastest) to red (slowest) by its mean wait time.
func (d *DOTDrawer) AddMeasure(msr measure.Measure) error {
	var minValue, maxValue time.Duration
	first := true
	for _, step := range msr.AllMetrics() {
		for _, info := range step.AVGTransportDuration() {
			if info.Elapsed == 0 {
				continue
			}
			if first || info.Elapsed < minValue {
				minValue = info.Elapsed
			}
			if first || info.Elapsed > maxValue {
				maxValue = info.Elapsed
			}
			first = false
		}
	}

	for name, step := range msr.AllMetrics() {
		if _, err := d.graph.Vertex(name); err != nil {
			continue
		}

		if avg := step.AVGDuration(); avg != 0 {
			d.labels[name] = avg.String()
		}
		if total := step.GetTotalDuration(); total > 0 {
			d.labels[name] += ", end: " + round(total).String()
		}

		for inputStep, info := range step.AVGTransportDuration() {
			if info.Elapsed == 0 {
				continue
			}
			hex, err := edgeColour(info.Elapsed, minValue, maxValue)
			if err != nil {
				return err
			}
			err = d.graph.UpdateEdge(inputStep, name,
				graph.EdgeAttribute("label", info.Elapsed.String()),
				graph.EdgeAttribute("fontcolor", "blue"),
				graph.EdgeAttribute("color", hex),
			)
			if err != nil && !errors.Is(err, graph.ErrEdgeNotFound) {
				return errors.Wrap(err, "unable to update link")
			}
		}
	}

	return nil
}

func edgeColour(value, minValue, maxValue time.Duration) (string, error) {
	fraction := 1.0
	if maxValue > minValue {
		fraction = float64(value-minValue) / float64(maxValue-minValue)
	}
	red := maxRGB * fraction
	blue := maxRGB - red

	c, err := colors.RGB(uint8(red), 0, uint8(blue))
	if err != nil {
		return "", errors.Wrap(err, "unable to get colour")
	}

	return c.ToHEX().String(), nil
}

func round(d time.Duration) time.Duration {
	if d > time.Second {
		return d.Round(time.Second)
	}

	return d.Round(time.Millisecond)
}

//nolint:lll //this is a template
const dotTemplate = `strict digraph {
{{- range $k, $v := .Attributes}}
	{{$k}}="{{$v}}";
{{- end}}
{{- range .Statements}}
	"{{.Source}}" {{if .Target}}-> "{{.Target}}" [ {{range $k, $v := .EdgeAttributes}}{{$k}}="{{$v}}", {{end}}weight={{.EdgeWeight}} ]{{else}}[ {{range $k, $v := .HTMLAttributes}}{{$k}}={{$v}}, {{end}}{{range $k, $v := .SourceAttributes}}{{$k}}="{{$v}}", {{end}}weight={{.SourceWeight}} ]{{end}};
{{- end}}
}
`

type description struct {
	Attributes map[string]string
	Statements []statement
}

type statement struct {
	Source           string
	Target           string
	SourceWeight     int
	SourceAttributes map[string]string
	HTMLAttributes   map[string]string
	EdgeWeight       int
	EdgeAttributes   map[string]string
}

func (d *DOTDrawer) describe() (description, error) {
	desc := description{
		Attributes: map[string]string{"rankdir": "LR"},
	}

	adjacencyMap, err := d.graph.AdjacencyMap()
	if err != nil {
		return desc, err
	}

	vertices := make([]string, 0, len(adjacencyMap))
	for vertex := range adjacencyMap {
		vertices = append(vertices, vertex)
	}
	sort.Strings(vertices)

	for _, vertex := range vertices {
		_, properties, err := d.graph.VertexWithProperties(vertex)
		if err != nil {
			return desc, err
		}
		htmlAttributes := make(map[string]string)
		if label, ok := d.labels[vertex]; ok && label != "" {
			htmlAttributes["label"] = fmt.Sprintf(`<%s <BR /> <FONT POINT-SIZE="12">%s</FONT>>`, vertex, label)
		}
		desc.Statements = append(desc.Statements, statement{
			Source:           vertex,
			SourceWeight:     properties.Weight,
			SourceAttributes: properties.Attributes,
			HTMLAttributes:   htmlAttributes,
		})

		targets := make([]string, 0, len(adjacencyMap[vertex]))
		for target := range adjacencyMap[vertex] {
			targets = append(targets, target)
		}
		sort.Strings(targets)
		for _, target := range targets {
			edge := adjacencyMap[vertex][target]
			desc.Statements = append(desc.Statements, statement{
				Source:         vertex,
				Target:         target,
				EdgeWeight:     edge.Properties.Weight,
				EdgeAttributes: edge.Properties.Attributes,
			})
		}
	}

	return desc, nil
}
