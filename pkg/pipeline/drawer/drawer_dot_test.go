package drawer_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jitsdp/jitsdp-runner/pkg/pipeline/drawer"
	"github.com/jitsdp/jitsdp-runner/pkg/pipeline/measure"
)

func TestDOTDrawerStepsAndLinks(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	d := drawer.NewDOTWriterDrawer(&buf)
	for _, name := range []string{"format", "test", "run", "format"} {
		require.NoError(t, d.AddStep(name))
	}
	require.NoError(t, d.AddLink("format", "test"))
	require.NoError(t, d.AddLink("test", "run"))
	require.NoError(t, d.AddLink("test", "run"))
	require.Error(t, d.AddLink("test", "missing"))

	require.NoError(t, d.Draw())

	dot := buf.String()
	assert.Contains(t, dot, `"format" -> "test"`)
	assert.Contains(t, dot, `"test" -> "run"`)
	assert.Contains(t, dot, `shape="box"`)
	assert.Less(t, bytes.Index(buf.Bytes(), []byte(`"format" [`)), bytes.Index(buf.Bytes(), []byte(`"run" [`)))
}

func TestDOTDrawerMeasureLabels(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "battery.dot")
	d := drawer.NewDOTDrawer(path)
	require.NoError(t, d.AddStep("expand"))
	require.NoError(t, d.AddStep("execute"))
	require.NoError(t, d.AddLink("expand", "execute"))

	msr := measure.NewDefaultMeasure()
	mt := msr.AddMetric("execute", 1)
	mt.AddDuration(2 * time.Second)
	mt.AddTransportDuration("expand", 5*time.Millisecond)

	require.NoError(t, d.AddMeasure(msr))
	require.NoError(t, d.SetTotalTime("expand", time.Now()))
	require.Error(t, d.SetTotalTime("missing", time.Now()))
	require.NoError(t, d.Draw())

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "2s")
	assert.Contains(t, string(content), `label="5ms"`)
	assert.Regexp(t, `(?i)color="#f00000"`, string(content))
}
