package tuning

import (
	"fmt"
	"math"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"

	"github.com/jitsdp/jitsdp-runner/internal/battery"
)

// Window evaluated by the testing battery.
const (
	TestingStart = 5000
	TestingEnd   = 10000
)

var (
	ErrNoTrials      = errors.New("no tuning trial")
	ErrTestingWindow = errors.New("testing end must be greater than testing start")
)

// Trial is a finished tuning run: the configuration it ran with and the
// g-mean it scored.
type Trial struct {
	MetaModel string
	Config    battery.Flags
	GMean     float64
}

// Best is the configuration of an experiment and dataset with the highest
// g-mean averaged over its seeds.
type Best struct {
	MetaModel string
	// Config has neither seed nor experiment name.
	Config battery.Flags
	GMean  float64
	Seeds  int
}

func (b Best) Name(crossProject bool) string {
	return ConfigName(b.MetaModel, b.Config, crossProject)
}

// ConfigName names a configuration in reports: RATE-META-MODEL-MODEL, with a
// -CP or -WP suffix when cross-project and within-project runs are compared.
func ConfigName(metaModel string, config battery.Flags, crossProject bool) string {
	prefix := ""
	if v, _ := config.Get("rate-driven"); v == "1" {
		prefix = "R"
	}
	model, _ := config.Get("model")
	suffix := ""
	if crossProject {
		suffix = "-WP"
		if v, _ := config.Get("cross-project"); v == "1" {
			suffix = "-CP"
		}
	}

	return strings.ToUpper(fmt.Sprintf("%s%s-%s%s", prefix, metaModel, model, suffix))
}

// groupKeys identify the experiment and dataset a trial belongs to, in
// report order after the dataset.
var groupKeys = []string{"dataset", "model", "rate-driven", "cross-project"}

func groupKey(metaModel string, config battery.Flags) []string {
	key := make([]string, 0, len(groupKeys)+1)
	for i, k := range groupKeys {
		if i == 1 {
			key = append(key, metaModel)
		}
		v, _ := config.Get(k)
		key = append(key, v)
	}

	return key
}

// configKey does not depend on flag order.
func configKey(config battery.Flags) string {
	parts := make([]string, 0, len(config))
	for _, f := range config {
		parts = append(parts, strings.Join(f.Args(), "="))
	}
	sort.Strings(parts)

	return strings.Join(parts, "\x00")
}

// BestConfigs picks, for every meta-model, model, rate-driven, cross-project
// and dataset, the configuration whose mean g-mean over seeds is the highest.
// Ties keep the configuration seen first. Trials with a NaN g-mean are
// ignored. The result is sorted by dataset, meta-model, model, rate-driven
// and cross-project.
func BestConfigs(trials []Trial) []Best {
	type candidate struct {
		config battery.Flags
		gmeans []float64
	}
	type group struct {
		key        []string
		metaModel  string
		candidates []*candidate
		byConfig   map[string]*candidate
	}

	groups := make(map[string]*group)
	for _, t := range trials {
		if math.IsNaN(t.GMean) {
			continue
		}
		config := t.Config.Without("seed").Without("experiment-name")
		key := groupKey(t.MetaModel, config)
		g, ok := groups[strings.Join(key, "\x00")]
		if !ok {
			g = &group{key: key, metaModel: t.MetaModel, byConfig: make(map[string]*candidate)}
			groups[strings.Join(key, "\x00")] = g
		}
		ck := configKey(config)
		c, ok := g.byConfig[ck]
		if !ok {
			c = &candidate{config: config}
			g.byConfig[ck] = c
			g.candidates = append(g.candidates, c)
		}
		c.gmeans = append(c.gmeans, t.GMean)
	}

	sorted := make([]*group, 0, len(groups))
	for _, g := range groups {
		sorted = append(sorted, g)
	}
	sort.Slice(sorted, func(i, j int) bool { return slices.Compare(sorted[i].key, sorted[j].key) < 0 })

	res := make([]Best, 0, len(sorted))
	for _, g := range sorted {
		var best Best
		for i, c := range g.candidates {
			mean := stat.Mean(c.gmeans, nil)
			if i == 0 || mean > best.GMean {
				best = Best{MetaModel: g.metaModel, Config: c.config, GMean: mean, Seeds: len(c.gmeans)}
			}
		}
		res = append(res, best)
	}

	return res
}

// TestingOptions controls TestingBattery.
type TestingOptions struct {
	// Start and End delimit the evaluated commits.
	Start, End int
	// Seeds defaults to Seeds.
	Seeds          []string
	ExperimentName string
}

// TestingBattery runs every best configuration once per seed over the
// testing window. Each configuration is a group whose variants are the seeds.
func TestingBattery(best []Best, opts TestingOptions) (battery.Battery, error) {
	if len(best) == 0 {
		return nil, ErrNoTrials
	}
	if opts.End <= opts.Start {
		return nil, errors.Wrapf(ErrTestingWindow, "[%d, %d)", opts.Start, opts.End)
	}
	seeds := opts.Seeds
	if len(seeds) == 0 {
		seeds = Seeds
	}

	window := battery.Flags{
		battery.Value("start", strconv.Itoa(opts.Start)),
		battery.Value("end", strconv.Itoa(opts.End)),
	}
	if opts.ExperimentName != "" {
		window = append(window, battery.Value("experiment-name", opts.ExperimentName))
	}

	b := make(battery.Battery, 0, len(best))
	for _, bc := range best {
		g := battery.Group{
			Subcommand: bc.MetaModel,
			Flags:      bc.Config.Merge(window),
			Variants:   make([]battery.Flags, 0, len(seeds)),
		}
		for _, s := range seeds {
			g.Variants = append(g.Variants, battery.Flags{battery.Value("seed", s)})
		}
		b = append(b, g)
	}

	return b, nil
}
