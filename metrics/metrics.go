// Package metrics holds the process-wide prometheus collectors. The CLI can
// dump them to a node_exporter textfile after a run.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Conversion metrics
var (
	ConversionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediaconv_conversions_total",
			Help: "Total number of conversions by source, target and outcome",
		},
		[]string{"from", "to", "outcome"}, // outcome: "ok" or a failure kind
	)

	ConversionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mediaconv_conversion_duration_seconds",
			Help:    "Wall time of a conversion including staging and cleanup",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"kind"}, // "image" or "video"
	)

	ConversionBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediaconv_conversion_bytes_total",
			Help: "Bytes passed through conversions",
		},
		[]string{"direction"}, // "in" or "out"
	)

	StagedFilesCleanupFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mediaconv_cleanup_failures_total",
			Help: "Staged files that could not be deleted after a conversion",
		},
	)
)

// Engine metrics
var (
	EngineLoadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediaconv_engine_loads_total",
			Help: "Total number of engine load attempts by result",
		},
		[]string{"result"}, // "ok", "failed", "discarded"
	)

	EngineLoadDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mediaconv_engine_load_duration_seconds",
			Help:    "Engine load duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	EngineReady = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mediaconv_engine_ready",
			Help: "1 while an engine instance is loaded and ready",
		},
	)

	EngineQueueWaiting = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mediaconv_engine_queue_waiting",
			Help: "Conversions waiting for the engine",
		},
	)
)

// WriteTextfile writes every registered metric to path in the text
// exposition format, for node_exporter's textfile collector.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
