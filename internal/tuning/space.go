package tuning

import (
	"math"
	"math/rand"
	"strconv"

	"github.com/pkg/errors"

	"github.com/jitsdp/jitsdp-runner/internal/battery"
)

var ErrInvalidRange = errors.New("invalid configuration range")

// Param is one hyperparameter of a configuration space.
type Param interface {
	Name() string
	Sample(r *rand.Rand) string
}

type numeric struct {
	name    string
	lo, hi  float64
	step    float64
	log     bool
	integer bool
}

// Uniform draws uniformly from [lo, hi]. A positive step quantizes the value
// to lo plus a multiple of step.
func Uniform(name string, lo, hi, step float64) Param {
	return numeric{name: name, lo: lo, hi: hi, step: step}
}

// IntUniform is Uniform truncated to an integer.
func IntUniform(name string, lo, hi, step int) Param {
	return numeric{name: name, lo: float64(lo), hi: float64(hi), step: float64(step), integer: true}
}

// LogUniform draws so that the logarithm of the value is uniform in
// [log lo, log hi].
func LogUniform(name string, lo, hi, step float64) Param {
	return numeric{name: name, lo: lo, hi: hi, step: step, log: true}
}

// IntLogUniform is LogUniform truncated to an integer.
func IntLogUniform(name string, lo, hi, step int) Param {
	return numeric{name: name, lo: float64(lo), hi: float64(hi), step: float64(step), log: true, integer: true}
}

func (p numeric) Name() string { return p.name }

func (p numeric) Sample(r *rand.Rand) string {
	var v float64
	if p.log {
		v = math.Exp(math.Log(p.lo) + r.Float64()*(math.Log(p.hi)-math.Log(p.lo)))
	} else {
		v = p.lo + r.Float64()*(p.hi-p.lo)
	}
	if p.step > 0 {
		v = p.lo + math.Round((v-p.lo)/p.step)*p.step
		v = min(v, p.hi)
	}

	if p.integer {
		return strconv.Itoa(int(v))
	}
	if p.step > 0 {
		// drop the noise of the quantization
		v = math.Round(v*1e9) / 1e9
	}

	return strconv.FormatFloat(v, 'g', -1, 64)
}

type choice struct {
	name    string
	options []string
}

// Choice picks one of the options with equal probability.
func Choice(name string, options ...string) Param {
	return choice{name: name, options: options}
}

func (p choice) Name() string { return p.name }

func (p choice) Sample(r *rand.Rand) string {
	return p.options[r.Intn(len(p.options))]
}

// Space is an ordered configuration space.
type Space []Param

// Sample draws end configurations from a generator seeded with 0 and returns
// the [start, end) slice, so a slice is the same whatever the other slices
// drawn.
func (s Space) Sample(start, end int) ([]battery.Flags, error) {
	if start < 0 || end < start {
		return nil, errors.Wrapf(ErrInvalidRange, "[%d, %d)", start, end)
	}

	r := rand.New(rand.NewSource(0))
	configs := make([]battery.Flags, 0, end-start)
	for i := 0; i < end; i++ {
		config := make(battery.Flags, 0, len(s))
		for _, p := range s {
			config = append(config, battery.Value(p.Name(), p.Sample(r)))
		}
		if i >= start {
			configs = append(configs, config)
		}
	}

	return configs, nil
}

func metaModelSpace(metaModel string) Space {
	return Space{
		IntUniform(metaModel+"-waiting-time", 90, 180, 30),
		IntUniform(metaModel+"-ma-window-size", 50, 200, 50),
		Uniform(metaModel+"-th", .3, .5, .05),
		LogUniform(metaModel+"-l0", 1, 20, 0),
		LogUniform(metaModel+"-l1", 1, 20, 0),
		Uniform(metaModel+"-m", 1.1, math.E, .2),
	}
}

func hoeffdingSpace(model string) Space {
	return Space{
		IntUniform(model+"-n-estimators", 10, 40, 10),
		IntUniform(model+"-grace-period", 100, 500, 100),
		Choice(model+"-split-criterion", "gini", "info_gain", "hellinger"),
		LogUniform(model+"-split-confidence", 0.0000001, 0.5, 0),
		Uniform(model+"-tie-threshold", 0.05, 0.5, 0),
		Choice(model+"-no-preprune", "1", "0"),
		Choice(model+"-leaf-prediction", "mc", "nb", "nba"),
	}
}

func concat(spaces ...Space) Space {
	var res Space
	for _, s := range spaces {
		res = append(res, s...)
	}

	return res
}

// ModelSpaces returns the configuration space of every model, keyed by model
// name.
func ModelSpaces() map[string]Space {
	orb := concat(metaModelSpace("orb"), Space{
		LogUniform("orb-decay-factor", .9, .999, 0),
		IntUniform("orb-n", 3, 7, 2),
		IntUniform("orb-rd-grace-period", 100, 500, 100),
	})
	borb := concat(metaModelSpace("borb"), Space{
		IntUniform("borb-pull-request-size", 50, 200, 50),
		IntLogUniform("borb-max-sample-size", MaxSampleSizeStart, MaxSampleSizeEnd, 0),
	})

	return map[string]Space{
		"hts": concat(orb, hoeffdingSpace("hts")),
		"ihf": concat(borb, hoeffdingSpace("ihf")),
		"lr": concat(borb, Space{
			LogUniform("lr-alpha", .01, 1, 0),
			IntUniform("lr-n-epochs", 10, 80, 10),
			IntLogUniform("lr-batch-size", 128, 512, 128),
		}),
		"mlp": concat(borb, Space{
			LogUniform("mlp-learning-rate", .0001, .01, 0),
			IntUniform("mlp-n-epochs", 10, 80, 10),
			IntUniform("mlp-n-hidden-layers", 1, 3, 1),
			IntUniform("mlp-hidden-layers-size", 5, 15, 2),
			Uniform("mlp-dropout-input-layer", .1, .3, .1),
			Uniform("mlp-dropout-hidden-layer", .3, .5, .1),
			IntLogUniform("mlp-batch-size", 128, 512, 128),
		}),
		"nb": concat(borb, Space{
			IntUniform("nb-n-updates", 10, 80, 10),
		}),
		"irf": concat(borb, Space{
			IntUniform("irf-n-estimators", 20, 100, 20),
			Choice("irf-criterion", "gini", "entropy"),
			IntUniform("irf-min-samples-leaf", 100, 300, 100),
			IntUniform("irf-max-features", 3, 7, 2),
		}),
	}
}
