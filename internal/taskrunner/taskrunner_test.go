package taskrunner_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/dominikbraun/graph"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jitsdp/jitsdp-runner/internal/battery"
	"github.com/jitsdp/jitsdp-runner/internal/runner"
	"github.com/jitsdp/jitsdp-runner/internal/taskrunner"
)

var generatedPaths = []string{"models", "logs", "tests/logs", "data/joblib/jitsdp/data/load_runs"}

func makefileTargets() []taskrunner.Target {
	return []taskrunner.Target{
		{Name: "format", Commands: [][]string{{"autopep8", "--in-place", "--recursive", "jitsdp", "tests"}}},
		{Name: "test", DependsOn: []string{"format"}, Commands: [][]string{{"pytest", "tests"}}},
		{Name: "run", Battery: true},
		{Name: "clean", Remove: generatedPaths},
		{Name: "all", DependsOn: []string{"test", "run"}},
	}
}

type batteryFunc func(ctx context.Context, invs []battery.Invocation) (runner.Summary, error)

func (f batteryFunc) Run(ctx context.Context, invs []battery.Invocation) (runner.Summary, error) {
	return f(ctx, invs)
}

func names(ts []taskrunner.Target) []string {
	res := make([]string, len(ts))
	for i, t := range ts {
		res[i] = t.Name
	}

	return res
}

func TestPlan(t *testing.T) {
	t.Parallel()

	tr, err := taskrunner.New(makefileTargets(), taskrunner.Options{})
	require.NoError(t, err)

	tests := map[string]struct {
		targets []string
		want    []string
		wantErr error
	}{
		"single":          {targets: []string{"clean"}, want: []string{"clean"}},
		"with dependency": {targets: []string{"test"}, want: []string{"format", "test"}},
		"transitive":      {targets: []string{"all"}, want: []string{"format", "run", "test", "all"}},
		"deduplicated":    {targets: []string{"test", "format"}, want: []string{"format", "test"}},
		"unknown":         {targets: []string{"deploy"}, wantErr: taskrunner.ErrUnknownTarget},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			plan, err := tr.Plan(tt.targets...)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)

				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, names(plan))
		})
	}
}

func TestNewErrors(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		targets []taskrunner.Target
		wantErr error
	}{
		"duplicate": {
			targets: []taskrunner.Target{{Name: "test"}, {Name: "test"}},
			wantErr: taskrunner.ErrDuplicateTarget,
		},
		"unknown dependency": {
			targets: []taskrunner.Target{{Name: "test", DependsOn: []string{"lint"}}},
			wantErr: taskrunner.ErrUnknownTarget,
		},
		"cycle": {
			targets: []taskrunner.Target{
				{Name: "a", DependsOn: []string{"b"}},
				{Name: "b", DependsOn: []string{"a"}},
			},
			wantErr: graph.ErrEdgeCreatesCycle,
		},
		"empty name": {
			targets: []taskrunner.Target{{Name: " "}},
			wantErr: taskrunner.ErrTargetNameNotSet,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, err := taskrunner.New(tt.targets, taskrunner.Options{})
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestRun(t *testing.T) {
	t.Parallel()

	var calls [][]string
	exec := runner.ExecutorFunc(func(_ context.Context, cmd runner.Command) (int, error) {
		calls = append(calls, append([]string{cmd.Path}, cmd.Args...))

		return 0, nil
	})
	var ran []battery.Invocation
	invs := []battery.Invocation{{Subcommand: "borb", Flags: battery.Flags{battery.Value("model", "lr")}}}

	tr, err := taskrunner.New(makefileTargets(), taskrunner.Options{
		Root:        t.TempDir(),
		Executor:    exec,
		Invocations: invs,
		Battery: batteryFunc(func(_ context.Context, got []battery.Invocation) (runner.Summary, error) {
			ran = got

			return runner.Summary{}, nil
		}),
	})
	require.NoError(t, err)

	require.NoError(t, tr.Run(t.Context(), "all"))
	assert.Equal(t, [][]string{
		{"autopep8", "--in-place", "--recursive", "jitsdp", "tests"},
		{"pytest", "tests"},
	}, calls)
	assert.Equal(t, invs, ran)
}

func TestRunStopsAtFailingCommand(t *testing.T) {
	t.Parallel()

	var calls int
	exec := runner.ExecutorFunc(func(_ context.Context, _ runner.Command) (int, error) {
		calls++

		return 1, nil
	})
	tr, err := taskrunner.New(makefileTargets(), taskrunner.Options{Executor: exec})
	require.NoError(t, err)

	err = tr.Run(t.Context(), "test")
	require.ErrorIs(t, err, taskrunner.ErrCommandFailed)
	assert.Contains(t, err.Error(), "target format")
	assert.Equal(t, 1, calls)
}

func TestRunBatteryWithoutRunner(t *testing.T) {
	t.Parallel()

	tr, err := taskrunner.New(makefileTargets(), taskrunner.Options{})
	require.NoError(t, err)
	require.ErrorIs(t, tr.Run(t.Context(), "run"), taskrunner.ErrNoBatteryRunner)
}

func TestClean(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	for _, p := range generatedPaths {
		require.NoError(t, os.MkdirAll(filepath.Join(root, p, "nested"), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(root, p, "nested", "file"), []byte("x"), 0o644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(root, "keep.py"), nil, 0o644))

	require.NoError(t, taskrunner.Clean(root, generatedPaths, zerolog.Nop()))

	for _, p := range generatedPaths {
		_, err := os.Stat(filepath.Join(root, p))
		assert.True(t, os.IsNotExist(err), p)
	}
	assert.FileExists(t, filepath.Join(root, "keep.py"))
	assert.DirExists(t, filepath.Join(root, "tests"))
	assert.DirExists(t, filepath.Join(root, "data/joblib/jitsdp/data"))

	// idempotent
	require.NoError(t, taskrunner.Clean(root, generatedPaths, zerolog.Nop()))
}

func TestCleanRejectsEscapingPaths(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "models"), 0o755))

	tests := map[string]struct {
		path string
	}{
		"parent":   {path: "../models"},
		"absolute": {path: "/tmp"},
		"root":     {path: "."},
		"sneaky":   {path: "models/../../x"},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			err := taskrunner.Clean(root, []string{"models", tt.path}, zerolog.Nop())
			require.ErrorIs(t, err, taskrunner.ErrPathEscapesRoot)
			assert.DirExists(t, filepath.Join(root, "models"))
		})
	}
}

func TestDraw(t *testing.T) {
	t.Parallel()

	tr, err := taskrunner.New(makefileTargets(), taskrunner.Options{})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, tr.Draw(&buf))
	assert.Contains(t, buf.String(), `"format" -> "test"`)
	assert.Contains(t, buf.String(), `"run" -> "all"`)
}
