package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modaq/uploader/pkg/audit"
)

func logsRouter(h *LogsHandler) http.Handler {
	r := chi.NewRouter()
	r.Get("/entries", h.Entries)
	r.Get("/files", h.Files)
	r.Get("/stats", h.Stats)
	r.Get("/upload-stats", h.UploadStats)
	r.Post("/sync", h.Ship)
	return r
}

func TestLogsEntriesFiltersByLevel(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.audit.Info(audit.CategoryUpload, "file_upload_completed", "Uploaded rec.mcap", nil)
	f.audit.Error(audit.CategoryUpload, "file_upload_failed", "Failed rec2.mcap", nil)

	h := NewLogsHandler(f.audit, f.config)
	rec := doJSON(t, logsRouter(h), http.MethodGet, "/entries?level=ERROR", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	entries, _ := body["entries"].([]any)
	require.Len(t, entries, 1)
	assert.Equal(t, float64(1), body["total"])
	assert.Equal(t, false, body["has_more"])
}

func TestLogsEntriesPagination(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	for i := 0; i < 5; i++ {
		f.audit.Info(audit.CategoryApp, "tick", "heartbeat", nil)
	}

	h := NewLogsHandler(f.audit, f.config)
	rec := doJSON(t, logsRouter(h), http.MethodGet, "/entries?limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	entries, _ := body["entries"].([]any)
	assert.Len(t, entries, 2)
	assert.Equal(t, float64(5), body["total"])
	assert.Equal(t, true, body["has_more"])
}

func TestLogsFilesListsJournals(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.audit.Info(audit.CategoryApp, "started", "Service started", nil)

	h := NewLogsHandler(f.audit, f.config)
	rec := doJSON(t, logsRouter(h), http.MethodGet, "/files", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	files, _ := decodeBody(t, rec)["files"].([]any)
	assert.NotEmpty(t, files)
}

func TestLogsStatsCountsByLevel(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.audit.Info(audit.CategoryApp, "started", "Service started", nil)
	f.audit.Warning(audit.CategoryUpload, "file_upload_skipped", "Skipped rec.mcap", nil)

	h := NewLogsHandler(f.audit, f.config)
	rec := doJSON(t, logsRouter(h), http.MethodGet, "/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, float64(2), body["total_entries"])
	levels, _ := body["level_counts"].(map[string]any)
	assert.Equal(t, float64(1), levels["WARNING"])
}

func TestLogsUploadStatsEmptyJournal(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	h := NewLogsHandler(f.audit, f.config)
	rec := doJSON(t, logsRouter(h), http.MethodGet, "/upload-stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), decodeBody(t, rec)["total_sessions"])
}

func TestLogsShipRequiresBucket(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	_, _, err := f.config.UpdateSettings(map[string]string{"s3_bucket": ""})
	require.NoError(t, err)

	h := NewLogsHandler(f.audit, f.config)
	rec := doJSON(t, logsRouter(h), http.MethodPost, "/sync", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogsShipUploadsJournals(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.audit.Info(audit.CategoryApp, "started", "Service started", nil)

	h := NewLogsHandler(f.audit, f.config)
	h.newShipper = func(ctx context.Context, profile, region string) (audit.Shipper, error) {
		return f.store, nil
	}

	rec := doJSON(t, logsRouter(h), http.MethodPost, "/sync", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(1), body["synced"])
	assert.NotEmpty(t, f.store.objects)
}
