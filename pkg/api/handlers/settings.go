package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/modaq/uploader/internal/version"

	"github.com/modaq/uploader/pkg/audit"
	"github.com/modaq/uploader/pkg/cache"
	"github.com/modaq/uploader/pkg/config"
	s3gw "github.com/modaq/uploader/pkg/storage/s3"
)

// SettingsHandler exposes the settings surface: the editable settings
// themselves, AWS profile discovery, connection validation, the cache
// maintenance operations, and graceful shutdown.
type SettingsHandler struct {
	config   *config.Store
	cache    *cache.Cache
	audit    *audit.Log
	shutdown func()

	// Swapped out by tests.
	validate   func(ctx context.Context, profile, region, bucket string) s3gw.ValidationResult
	newGateway func(ctx context.Context, profile, region string) (*s3gw.Gateway, error)
	profiles   func() ([]string, error)
}

// NewSettingsHandler creates a settings handler.
//
// The shutdown callback is invoked half a second after a shutdown request
// is acknowledged, so the response reaches the client first.
func NewSettingsHandler(cfg *config.Store, c *cache.Cache, log *audit.Log, shutdown func()) *SettingsHandler {
	return &SettingsHandler{
		config:     cfg,
		cache:      c,
		audit:      log,
		shutdown:   shutdown,
		validate:   s3gw.Validate,
		newGateway: func(ctx context.Context, profile, region string) (*s3gw.Gateway, error) {
			return s3gw.New(ctx, profile, region)
		},
		profiles:   s3gw.AvailableProfiles,
	}
}

// Get handles GET /api/settings.
func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.config.Settings())
}

// Update handles PUT /api/settings.
//
// Unknown keys are dropped; a patch with no allowed keys is a 400. The
// applied settings persist to the settings file and take effect for the
// next job without a restart.
func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var body map[string]string
	if !decodeJSONBody(w, r, &body) {
		return
	}
	if len(body) == 0 {
		respondError(w, http.StatusBadRequest, "Empty body")
		return
	}

	updated, changed, err := h.config.UpdateSettings(body)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.audit.Info(audit.CategorySettings, "settings_updated",
		fmt.Sprintf("Updated settings: %s", strings.Join(changed, ", ")),
		map[string]any{"changed_keys": changed})

	writeJSON(w, http.StatusOK, updated)
}

// Profiles handles GET /api/settings/profiles.
func (h *SettingsHandler) Profiles(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.profiles()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"profiles": profiles})
}

// ValidateRequest optionally overrides the settings under test.
type ValidateRequest struct {
	AWSProfile string `json:"aws_profile"`
	AWSRegion  string `json:"aws_region"`
	S3Bucket   string `json:"s3_bucket"`
}

// Validate handles POST /api/settings/validate.
//
// A failed connection check is a 200 with success=false; clients surface
// the message. Only a missing bucket is a 400.
func (h *SettingsHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	settings := h.config.Settings()
	profile := settings.AWSProfile
	region := settings.AWSRegion
	bucket := settings.S3Bucket
	if req.AWSProfile != "" {
		profile = req.AWSProfile
	}
	if req.AWSRegion != "" {
		region = req.AWSRegion
	}
	if req.S3Bucket != "" {
		bucket = req.S3Bucket
	}

	if bucket == "" {
		respondError(w, http.StatusBadRequest, "S3 bucket not specified")
		return
	}

	result := h.validate(r.Context(), profile, region, bucket)
	meta := map[string]any{
		"bucket":  bucket,
		"profile": profile,
		"region":  region,
		"success": result.Success,
	}
	if result.Success {
		h.audit.Info(audit.CategorySettings, "connection_test",
			fmt.Sprintf("Connection test succeeded for bucket '%s'", bucket), meta)
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": fmt.Sprintf("Successfully connected to bucket '%s'", bucket),
		})
		return
	}

	meta["error"] = result.Error
	h.audit.Warning(audit.CategorySettings, "connection_test",
		fmt.Sprintf("Connection test failed for bucket '%s': %s", bucket, result.Error), meta)
	writeJSON(w, http.StatusOK, map[string]any{
		"success": false,
		"error":   result.Error,
	})
}

// Version handles GET /api/settings/version.
func (h *SettingsHandler) Version(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, version.Info())
}

// CacheStats handles GET /api/settings/cache/stats.
func (h *SettingsHandler) CacheStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.cache.GetStats(r.Context(), h.config.Settings().S3Bucket)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "stats": stats})
}

// CacheInvalidate handles POST /api/settings/cache/invalidate.
func (h *SettingsHandler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	bucket := h.config.Settings().S3Bucket
	deleted, err := h.cache.InvalidateBucket(r.Context(), bucket)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"deleted": deleted,
		"bucket":  bucket,
		"message": fmt.Sprintf("Invalidated %d cache entries for bucket '%s'", deleted, bucket),
	})
}

// CacheSync handles POST /api/settings/cache/sync.
//
// Reconciles the cache against a full bucket listing. Reconcile failures
// are reported as success=false with a 200; only a missing bucket
// configuration is a 400.
func (h *SettingsHandler) CacheSync(w http.ResponseWriter, r *http.Request) {
	settings := h.config.Settings()
	if settings.S3Bucket == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"error":   "S3 bucket not configured",
		})
		return
	}

	gw, err := h.newGateway(r.Context(), settings.AWSProfile, settings.AWSRegion)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": err.Error()})
		return
	}

	result, err := h.cache.Reconcile(r.Context(), gw, settings.S3Bucket, "")
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"bucket":        result.Bucket,
		"files_in_s3":   result.FilesInS3,
		"files_updated": result.FilesUpdated,
		"files_removed": result.FilesRemoved,
		"message": fmt.Sprintf("Synced cache with S3. Found %d files, marked %d as deleted.",
			result.FilesInS3, result.FilesRemoved),
	})
}

// Shutdown handles POST /api/settings/shutdown.
//
// Acknowledges first, then triggers the process's graceful stop after a
// short delay so the response reaches the client.
func (h *SettingsHandler) Shutdown(w http.ResponseWriter, r *http.Request) {
	h.audit.Info(audit.CategoryApp, "shutdown_requested",
		"Graceful shutdown requested via settings API", nil)

	if h.shutdown != nil {
		time.AfterFunc(500*time.Millisecond, h.shutdown)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Server is shutting down...",
	})
}
