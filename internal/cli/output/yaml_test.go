package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintYAML(t *testing.T) {
	t.Parallel()

	data := statusFixture{Bucket: "modaq-recordings", ActiveJobs: 1, Healthy: true}

	var buf bytes.Buffer
	err := PrintYAML(&buf, data)
	require.NoError(t, err)

	got := buf.String()
	assert.Contains(t, got, "bucket: modaq-recordings")
	assert.Contains(t, got, "active_jobs: 1")
	assert.Contains(t, got, "healthy: true")
}

func TestPrintYAMLNested(t *testing.T) {
	t.Parallel()

	data := map[string]any{
		"stats": map[string]any{
			"total_entries": 4821,
			"exists_count":  4700,
		},
	}

	var buf bytes.Buffer
	err := PrintYAML(&buf, data)
	require.NoError(t, err)

	got := buf.String()
	assert.Contains(t, got, "stats:")
	assert.Contains(t, got, "  total_entries: 4821")
}
