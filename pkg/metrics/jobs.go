package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/modaq/uploader/pkg/jobs"
)

// jobMetrics is the Prometheus implementation of jobs.Metrics.
type jobMetrics struct {
	fileUploads     *prometheus.CounterVec
	fileBytes       *prometheus.CounterVec
	uploadDuration  *prometheus.HistogramVec
	jobsTotal       *prometheus.CounterVec
	jobFiles        prometheus.Histogram
	deletePhaseTime *prometheus.HistogramVec
}

// NewJobMetrics creates a Prometheus-backed jobs.Metrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewJobMetrics() jobs.Metrics {
	if !IsEnabled() {
		return nil
	}

	reg := GetRegistry()

	return &jobMetrics{
		fileUploads: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "modaq_upload_files_total",
				Help: "Total file transfers by terminal status",
			},
			[]string{"status"},
		),
		fileBytes: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "modaq_upload_bytes_total",
				Help: "Total bytes transferred by terminal status",
			},
			[]string{"status"},
		),
		uploadDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "modaq_upload_file_duration_seconds",
				Help: "Per-file transfer duration",
				Buckets: []float64{
					0.1,
					0.5,
					1,
					5,
					30,
					120,
					600, // multi-gigabyte recordings
				},
			},
			[]string{"status"},
		),
		jobsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "modaq_upload_jobs_total",
				Help: "Total upload jobs by terminal status",
			},
			[]string{"status"},
		),
		jobFiles: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "modaq_upload_job_files",
				Help:    "Files per terminal upload job",
				Buckets: []float64{1, 5, 10, 50, 100, 500, 1000},
			},
		),
		deletePhaseTime: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "modaq_delete_phase_duration_seconds",
				Help: "Duration of each delete job phase",
				Buckets: []float64{
					0.1,
					0.5,
					1,
					5,
					30,
					120,
				},
			},
			[]string{"phase"},
		),
	}
}

func (m *jobMetrics) RecordFileUpload(status string, bytes int64, duration time.Duration) {
	if m == nil {
		return
	}
	m.fileUploads.WithLabelValues(status).Inc()
	m.fileBytes.WithLabelValues(status).Add(float64(bytes))
	m.uploadDuration.WithLabelValues(status).Observe(duration.Seconds())
}

func (m *jobMetrics) RecordJob(status string, files int) {
	if m == nil {
		return
	}
	m.jobsTotal.WithLabelValues(status).Inc()
	m.jobFiles.Observe(float64(files))
}

func (m *jobMetrics) RecordDeletePhase(phase string, duration time.Duration) {
	if m == nil {
		return
	}
	m.deletePhaseTime.WithLabelValues(phase).Observe(duration.Seconds())
}
