package tuning_test

import (
	"bytes"
	"math/rand"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jitsdp/jitsdp-runner/internal/battery"
	"github.com/jitsdp/jitsdp-runner/internal/tuning"
)

func TestGridToConfigs(t *testing.T) {
	t.Parallel()

	configs := tuning.GridToConfigs(tuning.Grid{
		{Name: "a", Values: []string{"1", "2"}},
		{Name: "b", Values: []string{"x", "y", "z"}},
	})

	require.Len(t, configs, 6)
	assert.Equal(t, []string{"--a", "1", "--b", "x"}, configs[0].Args())
	assert.Equal(t, []string{"--a", "1", "--b", "y"}, configs[1].Args())
	assert.Equal(t, []string{"--a", "2", "--b", "z"}, configs[5].Args())
	assert.Len(t, tuning.GridToConfigs(tuning.SeedDatasetGrid()), 50)
	assert.Equal(t, []battery.Flags{{}}, tuning.GridToConfigs(nil))
}

func TestParamBounds(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		param  tuning.Param
		lo, hi float64
		step   float64
	}{
		"int uniform":     {param: tuning.IntUniform("n", 90, 180, 30), lo: 90, hi: 180, step: 30},
		"float uniform":   {param: tuning.Uniform("th", .3, .5, .05), lo: .3, hi: .5, step: .05},
		"continuous":      {param: tuning.Uniform("tie", .05, .5, 0), lo: .05, hi: .5},
		"log":             {param: tuning.LogUniform("l0", 1, 20, 0), lo: 1, hi: 20},
		"int log stepped": {param: tuning.IntLogUniform("batch", 128, 512, 128), lo: 128, hi: 512, step: 128},
		"int log":         {param: tuning.IntLogUniform("size", 1000, 8000, 0), lo: 999, hi: 8000, step: 1},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			r := rand.New(rand.NewSource(1))
			for range 200 {
				v, err := strconv.ParseFloat(tt.param.Sample(r), 64)
				require.NoError(t, err)
				assert.GreaterOrEqual(t, v, tt.lo)
				assert.LessOrEqual(t, v, tt.hi)
				if tt.step > 0 {
					k := (v - tt.lo) / tt.step
					assert.InDelta(t, float64(int(k+.5)), k, 1e-6, "%v is not on the grid", v)
				}
			}
		})
	}
}

func TestBatchSizesSpreadOverRange(t *testing.T) {
	t.Parallel()

	for _, model := range []string{"lr", "mlp"} {
		configs, err := tuning.ModelSpaces()[model].Sample(0, 50)
		require.NoError(t, err)

		seen := map[string]bool{}
		for _, c := range configs {
			v, ok := c.Get(model + "-batch-size")
			require.True(t, ok)
			seen[v] = true
		}
		assert.Greater(t, len(seen), 1, "%s batch sizes %v", model, seen)
		for v := range seen {
			assert.Contains(t, []string{"128", "256", "384", "512"}, v)
		}
	}
}

func TestChoice(t *testing.T) {
	t.Parallel()

	p := tuning.Choice("criterion", "gini", "entropy")
	r := rand.New(rand.NewSource(1))
	seen := map[string]bool{}
	for range 100 {
		seen[p.Sample(r)] = true
	}
	assert.Equal(t, map[string]bool{"gini": true, "entropy": true}, seen)
	assert.Equal(t, "criterion", p.Name())
}

func TestSpaceSample(t *testing.T) {
	t.Parallel()

	space := tuning.ModelSpaces()["lr"]
	all, err := space.Sample(0, 10)
	require.NoError(t, err)
	require.Len(t, all, 10)
	assert.Len(t, all[0], len(space))

	again, err := space.Sample(0, 10)
	require.NoError(t, err)
	assert.Equal(t, all, again)

	slice, err := space.Sample(4, 7)
	require.NoError(t, err)
	assert.Equal(t, all[4:7], slice)

	_, err = space.Sample(5, 4)
	require.ErrorIs(t, err, tuning.ErrInvalidRange)
}

func TestModelSpaces(t *testing.T) {
	t.Parallel()

	spaces := tuning.ModelSpaces()
	for _, model := range []string{"hts", "ihf", "lr", "mlp", "nb", "irf"} {
		require.Contains(t, spaces, model)
	}
	assert.Len(t, spaces["hts"], 6+3+7)
	assert.Len(t, spaces["ihf"], 6+2+7)
	assert.Len(t, spaces["nb"], 6+2+1)
	assert.Equal(t, "borb-waiting-time", spaces["irf"][0].Name())
	assert.Equal(t, "orb-waiting-time", spaces["hts"][0].Name())
}

func TestScaleMaxSampleSize(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		value     float64
		trainSize int
		want      int
		wantErr   error
	}{
		"lower bound":     {value: 1000, trainSize: 5000, want: 1000},
		"upper bound":     {value: 8000, trainSize: 5000, want: 5000},
		"large train":     {value: 4500, trainSize: 20000, want: 4000},
		"half way":        {value: 4500, trainSize: 3000, want: 2000},
		"rounds":          {value: 6000, trainSize: 8000, want: 6000},
		"train too small": {value: 4000, trainSize: 999, wantErr: tuning.ErrTrainTooSmall},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got, err := tuning.ScaleMaxSampleSize(tt.value, tt.trainSize)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)

				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExperiments(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		crossProject bool
		wantNames    []string
	}{
		"within project": {
			wantNames: []string{"orb-hts-wp", "rorb-hts-wp", "borb-ihf-wp", "rborb-ihf-wp", "rborb-lr-wp", "rborb-mlp-wp", "rborb-nb-wp", "rborb-irf-wp"},
		},
		"cross project": {
			crossProject: true,
			wantNames: []string{
				"orb-hts-wp", "rorb-hts-wp", "orb-hts-cp", "rorb-hts-cp",
				"borb-ihf-wp", "rborb-ihf-wp", "borb-ihf-cp", "rborb-ihf-cp",
				"rborb-lr-wp", "rborb-mlp-wp", "rborb-nb-wp", "rborb-irf-wp",
				"rborb-lr-cp", "rborb-mlp-cp", "rborb-nb-cp", "rborb-irf-cp",
			},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			exps, err := tuning.Experiments(tuning.Options{CrossProject: tt.crossProject, Start: 0, End: 2})
			require.NoError(t, err)

			names := make([]string, len(exps))
			for i, e := range exps {
				names[i] = e.Name()
				assert.Len(t, e.Models, 2)
				assert.Len(t, e.SeedDatasets, 50)
			}
			assert.Equal(t, tt.wantNames, names)
		})
	}
}

func TestExperimentConfigs(t *testing.T) {
	t.Parallel()

	exps, err := tuning.Experiments(tuning.Options{CrossProject: true, Start: 0, End: 1})
	require.NoError(t, err)

	var calls int
	size := func(config battery.Flags) (int, error) {
		calls++
		assert.Equal(t, []string{"dataset", "end", "cross-project", "borb-waiting-time", "borb-max-sample-size"}, names(config))

		return 3000, nil
	}

	for _, e := range exps {
		configs, err := e.Configs(size)
		require.NoError(t, err)
		require.Len(t, configs, 50)

		end, _ := configs[0].Get("end")
		cp, _ := e.Config.Get("cross-project")
		if cp == "1" {
			assert.Equal(t, "1000", end)
		} else {
			assert.Equal(t, "5000", end)
		}
		dataset, _ := configs[49].Get("dataset")
		assert.Equal(t, "spring-integration", dataset)

		if e.MetaModel() == "borb" {
			v, ok := configs[0].Get("borb-max-sample-size")
			require.True(t, ok)
			assert.Contains(t, []string{"1000", "2000", "3000"}, v)
		}
	}
	assert.Equal(t, 12*50, calls)
}

func names(fs battery.Flags) []string {
	res := make([]string, len(fs))
	for i, f := range fs {
		res[i] = f.Name
	}

	return res
}

func TestGenerate(t *testing.T) {
	t.Parallel()

	var calls int
	b, err := tuning.Generate(tuning.Options{Start: 0, End: 1, TrainSize: func(battery.Flags) (int, error) {
		calls++

		return 10000, nil
	}})
	require.NoError(t, err)
	require.NoError(t, b.Validate())
	require.Len(t, b, 8)
	assert.Equal(t, "orb", b[0].Subcommand)
	assert.Equal(t, "borb", b[7].Subcommand)
	// one call per dataset and max sample size, shared across experiments
	assert.LessOrEqual(t, calls, 10)

	invs := b.Expand()
	require.Len(t, invs, 8*50)
	_, hasMeta := invs[0].Flags.Get("meta-model")
	assert.False(t, hasMeta)
	assert.Equal(t, []string{"cross-project", "rate-driven", "model"}, names(invs[0].Flags)[:3])
	assert.Equal(t, []string{"dataset", "seed", "end"}, names(invs[0].Flags)[len(invs[0].Flags)-3:])

	var buf bytes.Buffer
	require.NoError(t, tuning.WriteShell(&buf, "./jitsdp", b))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 400)
	assert.True(t, strings.HasPrefix(lines[0], "./jitsdp orb --cross-project 0 --rate-driven 0 --model hts --orb-waiting-time "), lines[0])
	assert.True(t, strings.HasSuffix(lines[0], " --dataset brackets --seed 0 --end 5000"), lines[0])

	buf.Reset()
	require.NoError(t, battery.Write(&buf, b))
	loaded, err := battery.Load(&buf)
	require.NoError(t, err)
	assert.Equal(t, invs[0].Args(), loaded.Expand()[0].Args())
}

func TestGenerateErrors(t *testing.T) {
	t.Parallel()

	_, err := tuning.Generate(tuning.Options{Start: 3, End: 1})
	require.ErrorIs(t, err, tuning.ErrInvalidRange)

	_, err = tuning.Generate(tuning.Options{Start: 0, End: 1, TrainSize: func(battery.Flags) (int, error) { return 10, nil }})
	require.ErrorIs(t, err, tuning.ErrTrainTooSmall)
}
