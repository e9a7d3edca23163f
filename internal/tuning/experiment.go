package tuning

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/jitsdp/jitsdp-runner/internal/battery"
)

const (
	MaxSampleSizeStart = 1000
	MaxSampleSizeEnd   = 8000
	MaxSampleSizeStep  = 1000

	crossProjectEnd  = 1000
	withinProjectEnd = 5000
)

var (
	ErrTrainTooSmall = errors.New("training data smaller than the minimum sample size")
	ErrUnknownModel  = errors.New("unknown model")
)

// TrainSizer returns how many training events a configuration yields. It
// receives dataset, end, cross-project, borb-waiting-time and
// borb-max-sample-size.
type TrainSizer func(config battery.Flags) (int, error)

// ScaleMaxSampleSize maps a max sample size drawn from the full range onto the
// range the training data can fill, rounded to the step.
func ScaleMaxSampleSize(maxSampleSize float64, trainSize int) (int, error) {
	maxTrain := min(trainSize, MaxSampleSizeEnd)
	if maxTrain < MaxSampleSizeStart {
		return 0, errors.Wrapf(ErrTrainTooSmall, "%d events", trainSize)
	}

	scaled := (maxSampleSize - MaxSampleSizeStart) / (MaxSampleSizeEnd - MaxSampleSizeStart)
	scaled = scaled*float64(maxTrain-MaxSampleSizeStart) + MaxSampleSizeStart

	return int(math.RoundToEven(scaled/MaxSampleSizeStep)) * MaxSampleSizeStep, nil
}

// Experiment is one point of an experiment grid with the configurations it
// is run with.
type Experiment struct {
	Config       battery.Flags
	SeedDatasets []battery.Flags
	Models       []battery.Flags
}

func (e Experiment) get(name string) string {
	v, _ := e.Config.Get(name)

	return v
}

func (e Experiment) MetaModel() string { return e.get("meta-model") }

// Name is the meta-model prefixed with r when rate driven, followed by the
// model and the kind of training data.
func (e Experiment) Name() string {
	rateDriven := ""
	if e.get("rate-driven") == "1" {
		rateDriven = "r"
	}
	trainData := "wp"
	if e.get("cross-project") == "1" {
		trainData = "cp"
	}

	return fmt.Sprintf("%s%s-%s-%s", rateDriven, e.MetaModel(), e.get("model"), trainData)
}

var scaleKeys = []string{"dataset", "end", "cross-project", "borb-waiting-time", "borb-max-sample-size"}

// Configs crosses models with seeds and datasets. size rescales the borb max
// sample size and may be nil.
func (e Experiment) Configs(size TrainSizer) ([]battery.Flags, error) {
	end := withinProjectEnd
	if e.get("cross-project") == "1" {
		end = crossProjectEnd
	}

	configs := make([]battery.Flags, 0, len(e.Models)*len(e.SeedDatasets))
	for _, model := range e.Models {
		for _, sd := range e.SeedDatasets {
			config := e.Config.Merge(model).Merge(sd).Merge(battery.Flags{battery.Value("end", strconv.Itoa(end))})
			if e.MetaModel() == "borb" && size != nil {
				var err error
				if config, err = scaleConfig(config, size); err != nil {
					return nil, errors.Wrap(err, e.Name())
				}
			}
			configs = append(configs, config)
		}
	}

	return configs, nil
}

func scaleConfig(config battery.Flags, size TrainSizer) (battery.Flags, error) {
	relevant := make(battery.Flags, 0, len(scaleKeys))
	for _, k := range scaleKeys {
		if v, ok := config.Get(k); ok {
			relevant = append(relevant, battery.Value(k, v))
		}
	}

	raw, _ := config.Get("borb-max-sample-size")
	maxSampleSize, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, errors.Wrap(err, "borb-max-sample-size")
	}
	trainSize, err := size(relevant)
	if err != nil {
		return nil, err
	}
	scaled, err := ScaleMaxSampleSize(maxSampleSize, trainSize)
	if err != nil {
		return nil, err
	}

	return config.Merge(battery.Flags{battery.Value("borb-max-sample-size", strconv.Itoa(scaled))}), nil
}

// Group returns the experiment as a battery group: one variant per
// configuration, run with the meta-model as subcommand.
func (e Experiment) Group(size TrainSizer) (battery.Group, error) {
	configs, err := e.Configs(size)
	if err != nil {
		return battery.Group{}, err
	}

	g := battery.Group{Subcommand: e.MetaModel(), Variants: make([]battery.Flags, 0, len(configs))}
	for _, c := range configs {
		g.Variants = append(g.Variants, c.Without("meta-model"))
	}

	return g, nil
}

// Options controls Generate.
type Options struct {
	CrossProject bool
	// Start and End delimit the slice of sampled configurations.
	Start, End int
	// TrainSize is optional.
	TrainSize TrainSizer
	// ExperimentName is passed to every invocation when set.
	ExperimentName string
}

// Experiments returns the tuning experiments in grid order.
func Experiments(opts Options) ([]Experiment, error) {
	models := make(map[string][]battery.Flags)
	for name, space := range ModelSpaces() {
		configs, err := space.Sample(opts.Start, opts.End)
		if err != nil {
			return nil, errors.Wrap(err, name)
		}
		models[name] = configs
	}

	seedDatasets := GridToConfigs(SeedDatasetGrid())
	var exps []Experiment
	for _, grid := range ExperimentGrids(opts.CrossProject) {
		for _, config := range GridToConfigs(grid) {
			model, _ := config.Get("model")
			configs, ok := models[model]
			if !ok {
				return nil, errors.Wrap(ErrUnknownModel, model)
			}
			exps = append(exps, Experiment{Config: config, SeedDatasets: seedDatasets, Models: configs})
		}
	}

	return exps, nil
}

// Generate returns the battery of every experiment.
func Generate(opts Options) (battery.Battery, error) {
	exps, err := Experiments(opts)
	if err != nil {
		return nil, err
	}

	// the sizer is called with the same inputs across models
	size := memoize(opts.TrainSize)
	b := make(battery.Battery, 0, len(exps))
	for _, e := range exps {
		g, err := e.Group(size)
		if err != nil {
			return nil, err
		}
		if opts.ExperimentName != "" {
			g.Flags = battery.Flags{battery.Value("experiment-name", opts.ExperimentName)}
		}
		b = append(b, g)
	}

	return b, nil
}

func memoize(size TrainSizer) TrainSizer {
	if size == nil {
		return nil
	}

	cache := make(map[string]int)

	return func(config battery.Flags) (int, error) {
		key := strings.Join(config.Args(), " ")
		if n, ok := cache[key]; ok {
			return n, nil
		}
		n, err := size(config)
		if err != nil {
			return 0, err
		}
		cache[key] = n

		return n, nil
	}
}

// WriteShell writes one shell line per invocation, calling tool.
func WriteShell(w io.Writer, tool string, b battery.Battery) error {
	for _, inv := range b.Expand() {
		if _, err := fmt.Fprintln(w, battery.ShellLine(inv.Argv(tool))); err != nil {
			return errors.Wrap(err, "write shell line")
		}
	}

	return nil
}
