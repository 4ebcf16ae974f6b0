// Package metrics is the Prometheus metrics sink for the ingest-to-
// playback pipeline's own operation (SPEC_FULL.md §2/§6): per-stage
// outcome counters and duration histograms, modeled on the teacher's
// promauto-constructed VODPipelineMetrics. Forwarding samples to an
// external per-user/per-company analytics system is out of this core's
// scope (spec.md §1); this registry only covers the core's own stages.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// stageLabels keys every per-stage metric by the pipeline stage name
// (probe, thumbnail, transcode, manifest, ...) and, where applicable, by
// quality/format so ladder fan-out cost is visible per rendition.
var stageLabels = []string{"stage"}
var transcodeLabels = []string{"quality", "format"}
var janitorLabels = []string{"job"}

// PipelineMetrics is the metrics sink's top-level registry.
type PipelineMetrics struct {
	// JobsInFlight tracks the count of videos currently being processed
	// by the orchestrator (C8), mirroring the teacher's JobsInFlight gauge.
	JobsInFlight prometheus.Gauge

	// StageDuration observes wall-clock time for one orchestrator stage
	// (probe, thumbnail, manifest); per-rendition transcode time goes to
	// TranscodeDuration instead.
	StageDuration *prometheus.HistogramVec

	// StageOutcome counts stage completions, labeled by stage and
	// outcome ("success" | "error" | "cancelled").
	StageOutcome *prometheus.CounterVec

	// TranscodeDuration observes one (quality, format) transcoder
	// invocation's wall-clock time (spec.md §4.5's fan-out).
	TranscodeDuration *prometheus.HistogramVec

	// UploadChunksReceived counts chunks accepted by the upload
	// coordinator (C7), across all videos.
	UploadChunksReceived prometheus.Counter

	// UploadFinalized counts successful chunk-compose finalizations.
	UploadFinalized prometheus.Counter

	// VideosReady / VideosErrored count terminal orchestrator outcomes.
	VideosReady    prometheus.Counter
	VideosErrored  *prometheus.CounterVec // labeled by a coarse error kind
	ProcessingTime prometheus.Histogram

	// JanitorSweeps counts each periodic job's runs, labeled by job name
	// and outcome (spec.md §4.9's "best-effort; a failure MUST NOT abort
	// the sweep").
	JanitorSweeps          *prometheus.CounterVec
	JanitorRecordsAffected *prometheus.CounterVec
}

func NewMetrics() *PipelineMetrics {
	buckets := []float64{.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600}

	return &PipelineMetrics{
		JobsInFlight: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "vodpipe_jobs_in_flight",
			Help: "Number of videos currently being processed by the orchestrator",
		}),
		StageDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vodpipe_stage_duration_seconds",
			Help:    "Wall-clock duration of one orchestrator stage",
			Buckets: buckets,
		}, stageLabels),
		StageOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vodpipe_stage_outcome_total",
			Help: "Count of orchestrator stage completions by outcome",
		}, append(append([]string{}, stageLabels...), "outcome")),
		TranscodeDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vodpipe_transcode_duration_seconds",
			Help:    "Wall-clock duration of one (quality, format) transcoder invocation",
			Buckets: buckets,
		}, transcodeLabels),
		UploadChunksReceived: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vodpipe_upload_chunks_received_total",
			Help: "Count of chunks accepted by the upload coordinator",
		}),
		UploadFinalized: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vodpipe_upload_finalized_total",
			Help: "Count of successful chunk-compose finalizations",
		}),
		VideosReady: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vodpipe_videos_ready_total",
			Help: "Count of videos that reached the ready terminal state",
		}),
		VideosErrored: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vodpipe_videos_errored_total",
			Help: "Count of videos that reached the error terminal state, by error kind",
		}, []string{"kind"}),
		ProcessingTime: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "vodpipe_processing_time_seconds",
			Help:    "End-to-end processing time from uploaded to ready/error",
			Buckets: buckets,
		}),
		JanitorSweeps: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vodpipe_janitor_sweeps_total",
			Help: "Count of janitor sweep runs by job and outcome",
		}, append(append([]string{}, janitorLabels...), "outcome")),
		JanitorRecordsAffected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vodpipe_janitor_records_affected_total",
			Help: "Count of records touched by a janitor sweep, by job",
		}, janitorLabels),
	}
}

var Metrics = NewMetrics()
