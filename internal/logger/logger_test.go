package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureOutput redirects logger output to a buffer for testing.
// Returns the buffer and a cleanup function to restore original output.
func captureOutput() (*bytes.Buffer, func()) {
	buf := new(bytes.Buffer)

	mu.Lock()
	originalOutput := output
	originalColor := useColor
	output = buf
	useColor = false // disable colors for easier assertions
	mu.Unlock()

	reconfigure()

	cleanup := func() {
		mu.Lock()
		output = originalOutput
		useColor = originalColor
		mu.Unlock()
		SetLevel("INFO")
		SetFormat("text")
	}

	return buf, cleanup
}

func TestLevelFiltering(t *testing.T) {
	t.Run("DebugLevelShowsAllMessages", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetLevel("DEBUG")

		Debug("debug message")
		Info("info message")
		Warn("warn message")
		Error("error message")

		out := buf.String()
		assert.Contains(t, out, "debug message")
		assert.Contains(t, out, "info message")
		assert.Contains(t, out, "warn message")
		assert.Contains(t, out, "error message")
	})

	t.Run("InfoLevelFiltersDebug", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetLevel("INFO")

		Debug("debug message")
		Info("info message")

		out := buf.String()
		assert.NotContains(t, out, "debug message")
		assert.Contains(t, out, "info message")
	})

	t.Run("ErrorLevelFiltersAllButError", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetLevel("ERROR")

		Debug("debug message")
		Info("info message")
		Warn("warn message")
		Error("error message")

		out := buf.String()
		assert.NotContains(t, out, "debug message")
		assert.NotContains(t, out, "info message")
		assert.NotContains(t, out, "warn message")
		assert.Contains(t, out, "error message")
	})

	t.Run("WarningAliasAccepted", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetLevel("WARNING")

		Info("info message")
		Warn("warn message")

		out := buf.String()
		assert.NotContains(t, out, "info message")
		assert.Contains(t, out, "warn message")
	})

	t.Run("InvalidLevelIgnored", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetLevel("INFO")
		SetLevel("BOGUS")

		Info("still logging")
		assert.Contains(t, buf.String(), "still logging")
	})
}

func TestStructuredFields(t *testing.T) {
	buf, cleanup := captureOutput()
	defer cleanup()

	SetLevel("INFO")
	SetFormat("text")

	Info("upload complete", "job_id", "abc-123", "bytes", 4096)

	out := buf.String()
	assert.Contains(t, out, "upload complete")
	assert.Contains(t, out, "job_id=abc-123")
	assert.Contains(t, out, "bytes=4096")
}

func TestJSONFormat(t *testing.T) {
	buf, cleanup := captureOutput()
	defer cleanup()

	SetLevel("INFO")
	SetFormat("json")

	Info("object stored", "bucket", "modaq-data", "count", 3)

	line := strings.TrimSpace(buf.String())
	var record map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &record))

	assert.Equal(t, "object stored", record["msg"])
	assert.Equal(t, "modaq-data", record["bucket"])
	assert.Equal(t, float64(3), record["count"])
	assert.Equal(t, "INFO", record["level"])
}

func TestContextFields(t *testing.T) {
	buf, cleanup := captureOutput()
	defer cleanup()

	SetLevel("INFO")
	SetFormat("text")

	ctx := WithJob(context.Background(), "job-42", "upload")
	InfoCtx(ctx, "file analyzed", "filename", "bag.mcap")

	out := buf.String()
	assert.Contains(t, out, "job_id=job-42")
	assert.Contains(t, out, "category=upload")
	assert.Contains(t, out, "filename=bag.mcap")
}

func TestContextFields_NoContext(t *testing.T) {
	buf, cleanup := captureOutput()
	defer cleanup()

	SetLevel("INFO")

	InfoCtx(context.Background(), "bare message")
	assert.Contains(t, buf.String(), "bare message")
	assert.NotContains(t, buf.String(), "job_id")
}

func TestWithPreBoundFields(t *testing.T) {
	buf, cleanup := captureOutput()
	defer cleanup()

	SetLevel("INFO")

	l := With("bucket", "modaq-data")
	l.Info("reconcile started")

	assert.Contains(t, buf.String(), "bucket=modaq-data")
}

func TestTypedHelpers(t *testing.T) {
	t.Parallel()

	assert.Equal(t, KeyJobID, JobID("x").Key)
	assert.Equal(t, "x", JobID("x").Value.String())
	assert.Equal(t, KeyError, Err(nil).Key)
	assert.Equal(t, "", Err(nil).Value.String())
}

func TestLevelString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "DEBUG", LevelDebug.String())
	assert.Equal(t, "INFO", LevelInfo.String())
	assert.Equal(t, "WARN", LevelWarn.String())
	assert.Equal(t, "ERROR", LevelError.String())
	assert.Equal(t, "UNKNOWN", Level(99).String())
}
