// Package metrics exposes Prometheus instruments for pipeline runs and a
// small HTTP server that serves them.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vast_runs_total",
		Help: "Total number of pipeline runs, by final status",
	}, []string{"status"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vast_stage_duration_seconds",
		Help:    "Duration of pipeline stages",
		Buckets: []float64{0.5, 1, 5, 10, 30, 60, 120, 300, 600, 1800},
	}, []string{"stage"})

	FramesSampledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vast_frames_sampled_total",
		Help: "Total number of frames sampled across all runs",
	})

	FramesComparedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vast_frame_pairs_compared_total",
		Help: "Total number of adjacent frame pairs scored, by strategy",
	}, []string{"strategy"})

	SegmentsDetectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vast_segments_detected_total",
		Help: "Total number of scene segments produced by detection",
	})

	ClipsExportedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vast_clips_exported_total",
		Help: "Total number of clips handled by the exporter, by result",
	}, []string{"result"})

	SpansDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vast_spans_dropped_total",
		Help: "Total number of transcript spans not contained by any segment",
	})

	ObjectsUploadedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vast_objects_uploaded_total",
		Help: "Total number of artifacts mirrored to object storage",
	})
)

// ObserveStage records the duration of a finished stage.
func ObserveStage(stage string, elapsed time.Duration) {
	StageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
}

// ObserveClip counts one exporter result. It matches the export observer
// signature.
func ObserveClip(result string) {
	ClipsExportedTotal.WithLabelValues(result).Inc()
}
