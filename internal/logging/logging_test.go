package logging_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jitsdp/jitsdp-runner/internal/logging"
)

func TestNewJSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, err := logging.New(&buf, "warn", logging.FormatJSON)
	require.NoError(t, err)

	logger.Info().Msg("hidden")
	logger.Warn().Str("experiment", "borb-wp").Msg("visible")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "warn", line["level"])
	assert.Equal(t, "visible", line["message"])
	assert.Equal(t, "borb-wp", line["experiment"])
	assert.Contains(t, line, "time")
}

func TestNewConsole(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, err := logging.New(&buf, "", "")
	require.NoError(t, err)

	logger.Debug().Msg("hidden")
	logger.Info().Msg("battery done")
	assert.Contains(t, buf.String(), "battery done")
	assert.NotContains(t, buf.String(), "hidden")
}

func TestNewErrors(t *testing.T) {
	t.Parallel()

	_, err := logging.New(&bytes.Buffer{}, "loud", "")
	require.Error(t, err)

	_, err = logging.New(&bytes.Buffer{}, "info", "xml")
	require.ErrorIs(t, err, logging.ErrUnknownFormat)
}
