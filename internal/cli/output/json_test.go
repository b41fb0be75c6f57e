package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type statusFixture struct {
	Bucket     string `json:"bucket" yaml:"bucket"`
	ActiveJobs int    `json:"active_jobs" yaml:"active_jobs"`
	Healthy    bool   `json:"healthy" yaml:"healthy"`
}

func TestPrintJSON(t *testing.T) {
	t.Parallel()

	data := statusFixture{Bucket: "modaq-recordings", ActiveJobs: 2, Healthy: true}

	var buf bytes.Buffer
	err := PrintJSON(&buf, data)
	require.NoError(t, err)

	got := buf.String()
	assert.Contains(t, got, `"bucket": "modaq-recordings"`)
	assert.Contains(t, got, `"active_jobs": 2`)
	assert.Contains(t, got, `"healthy": true`)
}

func TestPrintJSONMap(t *testing.T) {
	t.Parallel()

	data := map[string]any{
		"found":   150,
		"updated": 3,
		"removed": 1,
	}

	var buf bytes.Buffer
	err := PrintJSON(&buf, data)
	require.NoError(t, err)

	got := buf.String()
	assert.Contains(t, got, `"found": 150`)
	assert.Contains(t, got, `"removed": 1`)
}
