package runner_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jitsdp/jitsdp-runner/internal/runner"
)

func TestExecExecutor(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		cmd      runner.Command
		wantCode int
		wantOut  string
		wantErr  bool
	}{
		"success": {
			cmd:     runner.Command{Path: "sh", Args: []string{"-c", "echo $JITSDP_TEST"}, Env: []string{"JITSDP_TEST=ok"}},
			wantOut: "ok\n",
		},
		"non zero exit": {
			cmd:      runner.Command{Path: "sh", Args: []string{"-c", "exit 3"}},
			wantCode: 3,
		},
		"missing executable": {
			cmd:      runner.Command{Path: "jitsdp-does-not-exist"},
			wantCode: -1,
			wantErr:  true,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			var out bytes.Buffer
			tt.cmd.Stdout = &out
			code, err := runner.ExecExecutor{}.Execute(t.Context(), tt.cmd)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantOut, out.String())
		})
	}
}
