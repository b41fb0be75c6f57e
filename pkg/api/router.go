package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/modaq/uploader/internal/logger"

	"github.com/modaq/uploader/pkg/api/handlers"
	"github.com/modaq/uploader/pkg/audit"
	"github.com/modaq/uploader/pkg/cache"
	"github.com/modaq/uploader/pkg/config"
	"github.com/modaq/uploader/pkg/events"
	"github.com/modaq/uploader/pkg/jobs"
	"github.com/modaq/uploader/pkg/metrics"
)

// Deps bundles everything the API surface reaches into.
type Deps struct {
	Config  *config.Store
	Uploads *jobs.UploadEngine
	Deletes *jobs.DeleteEngine
	Hub     *events.Hub
	Cache   *cache.Cache
	Audit   *audit.Log

	// Shutdown triggers the process's graceful stop. Invoked by
	// POST /api/settings/shutdown shortly after the response is sent.
	Shutdown func()
}

// NewRouter creates and configures the chi router with all middleware and
// routes.
//
// There is deliberately no global timeout middleware: the progress routes
// stream server-sent events for the life of a job, which can run for
// hours.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	// Middleware stack - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	upload := handlers.NewUploadHandler(deps.Uploads, deps.Hub, deps.Config)
	deletes := handlers.NewDeleteHandler(deps.Deletes, deps.Hub, deps.Config)
	settings := handlers.NewSettingsHandler(deps.Config, deps.Cache, deps.Audit, deps.Shutdown)
	logs := handlers.NewLogsHandler(deps.Audit, deps.Config)

	r.Route("/api", func(r chi.Router) {
		r.Route("/upload", func(r chi.Router) {
			r.Post("/analyze", upload.Analyze)
			r.Post("/bulk-analyze", upload.BulkAnalyze)
			r.Post("/start/{jobID}", upload.Start)
			r.Get("/progress/{jobID}", upload.Progress)
			r.Get("/status/{jobID}", upload.Status)
			r.Get("/active", upload.Active)
			r.Post("/cancel/{jobID}", upload.Cancel)
			r.Post("/scan-folder", upload.ScanFolder)
			r.Get("/scan-progress/{scanID}", upload.ScanProgress)
			r.Get("/scan-status/{scanID}", upload.ScanStatus)
			r.Post("/scan-cancel/{scanID}", upload.ScanCancel)
		})

		r.Route("/delete", func(r chi.Router) {
			r.Post("/scan", deletes.Scan)
			r.Post("/start/{jobID}", deletes.Start)
			r.Get("/progress/{jobID}", deletes.Progress)
			r.Get("/status/{jobID}", deletes.Status)
			r.Post("/cancel/{jobID}", deletes.Cancel)
		})

		r.Route("/settings", func(r chi.Router) {
			r.Get("/", settings.Get)
			r.Put("/", settings.Update)
			r.Get("/profiles", settings.Profiles)
			r.Post("/validate", settings.Validate)
			r.Get("/version", settings.Version)
			r.Get("/cache/stats", settings.CacheStats)
			r.Post("/cache/invalidate", settings.CacheInvalidate)
			r.Post("/cache/sync", settings.CacheSync)
			r.Post("/shutdown", settings.Shutdown)
		})

		r.Route("/logs", func(r chi.Router) {
			r.Get("/entries", logs.Entries)
			r.Get("/files", logs.Files)
			r.Get("/stats", logs.Stats)
			r.Get("/upload-stats", logs.UploadStats)
			r.Post("/sync", logs.Ship)
		})
	})

	r.Get("/health", handlers.Health)

	if reg := metrics.GetRegistry(); reg != nil {
		r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}

	return r
}

// requestLogger is a custom middleware that logs requests using the
// internal logger.
//
// It logs:
//   - Request start (DEBUG level): method, path, remote addr
//   - Request completion (INFO level): method, path, status, duration
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		logger.Debug("API request started",
			logger.KeyRequestID, requestID,
			logger.KeyMethod, r.Method,
			logger.KeyPath, r.URL.Path,
			logger.KeyRemote, r.RemoteAddr,
		)

		// Wrap response writer to capture status code
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		logger.Info("API request completed",
			logger.KeyRequestID, requestID,
			logger.KeyMethod, r.Method,
			logger.KeyPath, r.URL.Path,
			logger.KeyStatus, ww.Status(),
			logger.KeyBytes, ww.BytesWritten(),
			logger.KeyDurationMs, logger.Duration(start),
		)
	})
}
