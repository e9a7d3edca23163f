package tracking_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jitsdp/jitsdp-runner/internal/tracking"
)

func openStore(t *testing.T) *tracking.Store {
	t.Helper()

	s, err := tracking.Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	return s
}

func TestStoreRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	s := openStore(t)

	id, err := s.StartInvocation(ctx, "borb-wp", "borb", []string{"--model", "ihf"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	r, err := s.Run(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, tracking.StatusRunning, r.Status)
	assert.Equal(t, []string{"--model", "ihf"}, r.Args)
	assert.Nil(t, r.FinishedAt)
	assert.Nil(t, r.Metrics)

	require.NoError(t, s.FinishInvocation(ctx, id, 0, ""))
	require.NoError(t, s.LogMetrics(ctx, id, map[string]float64{"g-mean": .5, "r0": .75}))
	require.NoError(t, s.LogMetrics(ctx, id, map[string]float64{"g-mean": .6}))

	r, err = s.Run(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, tracking.StatusSucceeded, r.Status)
	assert.Equal(t, "borb-wp", r.Experiment)
	assert.Equal(t, "borb", r.Subcommand)
	require.NotNil(t, r.FinishedAt)
	assert.False(t, r.FinishedAt.Before(r.StartedAt))
	assert.Equal(t, map[string]float64{"g-mean": .6, "r0": .75}, r.Metrics)
}

func TestStoreFailedRun(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	s := openStore(t)

	id, err := s.StartInvocation(ctx, "orb-windows", "orb", nil)
	require.NoError(t, err)
	require.NoError(t, s.FinishInvocation(ctx, id, 2, "exit status 2"))

	r, err := s.Run(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, tracking.StatusFailed, r.Status)
	assert.Equal(t, 2, r.ExitCode)
	assert.Equal(t, "exit status 2", r.Failure)
}

func TestStoreUnknownRun(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	s := openStore(t)

	_, err := s.Run(ctx, "nope")
	require.ErrorIs(t, err, tracking.ErrRunNotFound)
	require.ErrorIs(t, s.FinishInvocation(ctx, "nope", 0, ""), tracking.ErrRunNotFound)
	require.ErrorIs(t, s.LogMetrics(ctx, "nope", map[string]float64{"r0": 1}), tracking.ErrRunNotFound)
	_, err = s.Summary(ctx, "nope")
	require.ErrorIs(t, err, tracking.ErrExperimentNotFound)
}

func seed(t *testing.T, s *tracking.Store) []string {
	t.Helper()

	ctx := t.Context()
	runs := []struct {
		experiment string
		exit       int
		metrics    map[string]float64
	}{
		{experiment: "borb-wp", metrics: map[string]float64{"g-mean": .4, "r0": .9}},
		{experiment: "borb-wp", metrics: map[string]float64{"g-mean": .6}},
		{experiment: "borb-wp", exit: 1, metrics: map[string]float64{"g-mean": 1}},
		{experiment: "borb-cp", metrics: map[string]float64{"g-mean": .2}},
	}

	ids := make([]string, 0, len(runs))
	for _, r := range runs {
		id, err := s.StartInvocation(ctx, r.experiment, "borb", []string{"--seed", "0"})
		require.NoError(t, err)
		require.NoError(t, s.FinishInvocation(ctx, id, r.exit, ""))
		require.NoError(t, s.LogMetrics(ctx, id, r.metrics))
		ids = append(ids, id)
	}
	_, err := s.StartInvocation(ctx, "borb-cp", "borb", nil)
	require.NoError(t, err)

	return ids
}

func TestStoreQueries(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	s := openStore(t)
	ids := seed(t, s)

	exps, err := s.Experiments(ctx)
	require.NoError(t, err)
	assert.Equal(t, []tracking.Experiment{
		{Name: "borb-cp", Runs: 2, Running: 1, Succeeded: 1},
		{Name: "borb-wp", Runs: 3, Succeeded: 2, Failed: 1},
	}, exps)

	runs, err := s.Runs(ctx, "borb-wp")
	require.NoError(t, err)
	require.Len(t, runs, 3)
	for i, r := range runs {
		assert.Equal(t, ids[i], r.ID)
	}
	assert.Equal(t, map[string]float64{"g-mean": .6}, runs[1].Metrics)

	summary, err := s.Summary(ctx, "borb-wp")
	require.NoError(t, err)
	assert.InDelta(t, .5, summary["g-mean"], 1e-12)
	assert.InDelta(t, .9, summary["r0"], 1e-12)

	none, err := s.Runs(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, none)
}
