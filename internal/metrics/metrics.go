// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Packet results counted by PacketsTotal.
const (
	ResultSeen        = "seen"
	ResultNoSelection = "no_selection"
	ResultRejected    = "rejected"
	ResultSampled     = "sampled"
	ResultDropped     = "dropped" // queued but never processed, e.g. at shutdown
)

var (
	// PacketsTotal counts packets per device by processing result
	PacketsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hsprobe_packets_total",
			Help: "Total number of packets by processing result",
		},
		[]string{"device", "result"},
	)

	// RecordsExportedTotal counts records handed to the exporter
	RecordsExportedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hsprobe_records_exported_total",
			Help: "Total number of records handed to the exporter",
		},
		[]string{"device", "template"},
	)

	// ExportErrorsTotal counts rejected records and failed flushes
	ExportErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hsprobe_export_errors_total",
			Help: "Total number of export and flush failures",
		},
		[]string{"device", "op"},
	)

	// FlushesTotal counts exporter flushes by trigger
	FlushesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hsprobe_flushes_total",
			Help: "Total number of exporter flushes",
		},
		[]string{"device", "reason"},
	)

	// CaptureReceived is the capture layer's received counter of live devices
	CaptureReceived = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hsprobe_capture_received",
			Help: "Packets received as reported by the capture layer",
		},
		[]string{"device"},
	)

	// CaptureDropped is the capture layer's drop counter of live devices
	CaptureDropped = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hsprobe_capture_dropped",
			Help: "Packets dropped as reported by the capture layer",
		},
		[]string{"device"},
	)

	// DispatchBatchSize tracks how many packets one readiness notification dispatched
	DispatchBatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hsprobe_dispatch_batch_size",
			Help:    "Number of packets dispatched per readiness notification",
			Buckets: prometheus.LinearBuckets(1, 1, 10),
		},
	)

	// SamplingRatio is the configured sampling window in percent of the hash space
	SamplingRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hsprobe_sampling_ratio_percent",
			Help: "Share of the 32-bit hash space admitted by the sampling window",
		},
	)

	// ConsoleCommandsTotal counts console commands by letter
	ConsoleCommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hsprobe_console_commands_total",
			Help: "Total number of runtime console commands",
		},
		[]string{"cmd"},
	)
)
