package metrics_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jitsdp/jitsdp-runner/internal/metrics"
)

const delta = 1e-8

func stream() []metrics.Result {
	targets := []int{0, 1, 0, 0, 1, 1}
	predictions := []int{metrics.NoPrediction, 0, 0, 0, 1, 1}
	results := make([]metrics.Result, len(targets))
	for i := range targets {
		results[i] = metrics.Result{Timestep: i, Target: targets[i], Prediction: predictions[i]}
	}

	return results
}

func TestPrequentialRecalls(t *testing.T) {
	t.Parallel()

	r0, r1, err := metrics.PrequentialRecalls(stream(), .9)
	require.NoError(t, err)

	assert.InDeltaSlice(t, []float64{0, 0, .526315789, .701107011, .701107011, .701107011}, r0, delta)
	assert.InDeltaSlice(t, []float64{0, 0, 0, 0, .526315789, .701107011}, r1, delta)
}

func TestPrequentialGMean(t *testing.T) {
	t.Parallel()

	r0 := []float64{0, 0, .526315789, .701107011, .701107011, .701107011}
	r1 := []float64{0, 0, 0, 0, .526315789, .701107011}

	assert.InDeltaSlice(t, []float64{0, 0, 0, 0, .607456739, .701107011}, metrics.PrequentialGMean(r0, r1), delta)
}

func TestPrequentialProportions(t *testing.T) {
	t.Parallel()

	p0, p1, err := metrics.PrequentialProportions([]int{1, 0, 0, 0, 1, 1}, .9)
	require.NoError(t, err)

	assert.InDeltaSlice(t, []float64{0, .5263157895, .7011070111, .7880197732, .5955898513, .4684788895}, p0, delta)
	assert.InDeltaSlice(t, []float64{1, .4736842105, .2988929889, .2119802268, .4044101487, .5315211105}, p1, delta)
}

func TestFadingFactorBounds(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		f       float64
		wantErr bool
	}{
		"zero":     {f: 0, wantErr: true},
		"negative": {f: -.5, wantErr: true},
		"above 1":  {f: 1.1, wantErr: true},
		"one":      {f: 1},
		"typical":  {f: .99},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, _, err := metrics.PrequentialRecalls(stream(), tt.f)
			if tt.wantErr {
				require.ErrorIs(t, err, metrics.ErrFadingFactor)

				return
			}
			require.NoError(t, err)
		})
	}
}

func TestPrequentialWithoutFading(t *testing.T) {
	t.Parallel()

	// with f = 1 the faded recall is the plain running recall
	r0, r1, err := metrics.PrequentialRecalls(stream(), 1)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0, 0, .5, 2. / 3, 2. / 3, 2. / 3}, r0, delta)
	assert.InDeltaSlice(t, []float64{0, 0, 0, 0, .5, 2. / 3}, r1, delta)
}

func TestPrequentialTable(t *testing.T) {
	t.Parallel()

	rows, err := metrics.Prequential(stream(), .9, .5)
	require.NoError(t, err)
	require.Len(t, rows, 6)

	last := rows[5]
	assert.Equal(t, 5, last.Timestep)
	assert.InDelta(t, .701107011, last.GMean, delta)
	assert.InDelta(t, 0, last.R0R1, delta)
	assert.InDelta(t, .526315789-0, rows[2].R0R1, delta)
	// predictions 1 at timesteps 4 and 5 only
	assert.InDelta(t, (1+.9*1)/(1+.9+.81+.729+.6561+.59049), last.P1, delta)
	assert.InDelta(t, abs(.5-last.P1), last.THMA, delta)
	// targets 1 at timesteps 1, 4 and 5
	assert.InDelta(t, (1+.9+.6561)/(1+.9+.81+.729+.6561+.59049), last.T1, delta)

	summary := metrics.Summarize(rows)
	assert.Len(t, summary, len(metrics.Names))
	assert.InDelta(t, (.607456739+.701107011)/6, summary[metrics.NameGMean], 1e-6)
}

func TestSummarizeEmpty(t *testing.T) {
	t.Parallel()

	summary := metrics.Summarize(nil)
	for _, name := range metrics.Names {
		assert.Zero(t, summary[name], name)
	}
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}

	return x
}

func TestReadResults(t *testing.T) {
	t.Parallel()

	in := "prediction,timestep,target\n0,1,1\n,0,0\n1.0,2,1\n"
	results, err := metrics.ReadResults(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, []metrics.Result{
		{Timestep: 0, Target: 0, Prediction: metrics.NoPrediction},
		{Timestep: 1, Target: 1, Prediction: 0},
		{Timestep: 2, Target: 1, Prediction: 1},
	}, results)
}

func TestReadResultsErrors(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		in      string
		wantErr error
	}{
		"missing column": {in: "timestep,target\n0,1\n", wantErr: metrics.ErrMissingColumn},
		"bad class":      {in: "timestep,target,prediction\n0,2,1\n"},
		"bad timestep":   {in: "timestep,target,prediction\nx,0,1\n"},
		"empty":          {in: ""},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, err := metrics.ReadResults(strings.NewReader(tt.in))
			require.Error(t, err)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}
