package tuning_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jitsdp/jitsdp-runner/internal/battery"
	"github.com/jitsdp/jitsdp-runner/internal/tuning"
)

func flags(kv ...string) battery.Flags {
	fs := make(battery.Flags, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fs = append(fs, battery.Value(kv[i], kv[i+1]))
	}

	return fs
}

func borbTrial(dataset, model, size, seed string, gmean float64) tuning.Trial {
	return tuning.Trial{
		MetaModel: "borb",
		Config: flags("experiment-name", "tuning", "model", model, "rate-driven", "0", "cross-project", "0",
			"borb-max-sample-size", size, "seed", seed, "dataset", dataset, "end", "5000"),
		GMean: gmean,
	}
}

func TestBestConfigs(t *testing.T) {
	t.Parallel()

	reordered := borbTrial("brackets", "ihf", "1000", "1", .75)
	cfg := reordered.Config
	reordered.Config = append(append(battery.Flags{}, cfg[4:]...), cfg[:4]...)

	trials := []tuning.Trial{
		borbTrial("camel", "ihf", "2000", "0", .4),
		borbTrial("brackets", "ihf", "1000", "0", .25),
		borbTrial("brackets", "ihf", "2000", "0", .9),
		reordered,
		borbTrial("brackets", "ihf", "2000", "1", .05),
		borbTrial("brackets", "lr", "3000", "0", .5),
		borbTrial("brackets", "lr", "4000", "0", .5),
		borbTrial("brackets", "lr", "5000", "0", math.NaN()),
		{MetaModel: "orb", Config: flags("model", "hts", "rate-driven", "1", "cross-project", "0", "seed", "0", "dataset", "brackets"), GMean: .3},
	}

	best := tuning.BestConfigs(trials)
	require.Len(t, best, 4)

	type summary struct {
		name  string
		size  string
		gmean float64
		seeds int
	}
	got := make([]summary, len(best))
	for i, b := range best {
		size, _ := b.Config.Get("borb-max-sample-size")
		dataset, _ := b.Config.Get("dataset")
		got[i] = summary{name: dataset + " " + b.Name(false), size: size, gmean: b.GMean, seeds: b.Seeds}
		_, hasSeed := b.Config.Get("seed")
		assert.False(t, hasSeed)
		_, named := b.Config.Get("experiment-name")
		assert.False(t, named)
	}

	assert.Equal(t, []summary{
		{name: "brackets BORB-IHF", size: "1000", gmean: .5, seeds: 2},
		{name: "brackets BORB-LR", size: "3000", gmean: .5, seeds: 1},
		{name: "brackets RORB-HTS", size: "", gmean: .3, seeds: 1},
		{name: "camel BORB-IHF", size: "2000", gmean: .4, seeds: 1},
	}, got)
}

func TestBestConfigsEmpty(t *testing.T) {
	t.Parallel()

	assert.Empty(t, tuning.BestConfigs(nil))
	assert.Empty(t, tuning.BestConfigs([]tuning.Trial{borbTrial("camel", "ihf", "1000", "0", math.NaN())}))
}

func TestConfigName(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		metaModel    string
		config       battery.Flags
		crossProject bool
		want         string
	}{
		"within project":      {metaModel: "borb", config: flags("model", "ihf", "cross-project", "0"), want: "BORB-IHF"},
		"rate driven":         {metaModel: "orb", config: flags("model", "hts", "rate-driven", "1"), want: "RORB-HTS"},
		"compared within":     {metaModel: "borb", config: flags("model", "lr", "cross-project", "0"), crossProject: true, want: "BORB-LR-WP"},
		"compared cross":      {metaModel: "borb", config: flags("model", "lr", "cross-project", "1"), crossProject: true, want: "BORB-LR-CP"},
		"cross but not shown": {metaModel: "borb", config: flags("model", "nb", "cross-project", "1"), want: "BORB-NB"},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, tuning.ConfigName(tt.metaModel, tt.config, tt.crossProject))
		})
	}
}

func TestTestingBattery(t *testing.T) {
	t.Parallel()

	best := tuning.BestConfigs([]tuning.Trial{
		borbTrial("brackets", "ihf", "1000", "0", .5),
		{MetaModel: "orb", Config: flags("model", "hts", "seed", "3", "dataset", "camel"), GMean: .3},
	})

	b, err := tuning.TestingBattery(best, tuning.TestingOptions{
		Start:          tuning.TestingStart,
		End:            tuning.TestingEnd,
		Seeds:          []string{"0", "1"},
		ExperimentName: "testing",
	})
	require.NoError(t, err)
	require.NoError(t, b.Validate())

	var got []string
	for _, inv := range b.Expand() {
		got = append(got, inv.String())
	}
	assert.Equal(t, []string{
		"borb --model ihf --rate-driven 0 --cross-project 0 --borb-max-sample-size 1000 --dataset brackets --end 10000 --start 5000 --experiment-name testing --seed 0",
		"borb --model ihf --rate-driven 0 --cross-project 0 --borb-max-sample-size 1000 --dataset brackets --end 10000 --start 5000 --experiment-name testing --seed 1",
		"orb --model hts --dataset camel --start 5000 --end 10000 --experiment-name testing --seed 0",
		"orb --model hts --dataset camel --start 5000 --end 10000 --experiment-name testing --seed 1",
	}, got)
}

func TestTestingBatteryDefaultSeeds(t *testing.T) {
	t.Parallel()

	best := tuning.BestConfigs([]tuning.Trial{borbTrial("brackets", "ihf", "1000", "0", .5)})
	b, err := tuning.TestingBattery(best, tuning.TestingOptions{Start: 0, End: 10})
	require.NoError(t, err)
	require.Len(t, b, 1)
	assert.Len(t, b.Expand(), len(tuning.Seeds))
	_, named := b[0].Flags.Get("experiment-name")
	assert.False(t, named)
}

func TestTestingBatteryErrors(t *testing.T) {
	t.Parallel()

	_, err := tuning.TestingBattery(nil, tuning.TestingOptions{Start: 0, End: 10})
	require.ErrorIs(t, err, tuning.ErrNoTrials)

	best := tuning.BestConfigs([]tuning.Trial{borbTrial("brackets", "ihf", "1000", "0", .5)})
	_, err = tuning.TestingBattery(best, tuning.TestingOptions{Start: 10, End: 10})
	require.ErrorIs(t, err, tuning.ErrTestingWindow)
}

func TestGenerateExperimentName(t *testing.T) {
	t.Parallel()

	b, err := tuning.Generate(tuning.Options{Start: 0, End: 1, ExperimentName: "tuning-wp"})
	require.NoError(t, err)

	for _, inv := range b.Expand() {
		assert.Equal(t, "tuning-wp", inv.Experiment())
	}
}
