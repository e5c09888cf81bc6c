package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsAppended = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "uirec_events_appended_total",
		Help: "Total number of normalized events appended to the event log, labelled by kind.",
	}, []string{"kind"})

	EventsIgnored = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "uirec_events_ignored_total",
		Help: "Total number of events dropped at ingestion, labelled by reason.",
	}, []string{"reason"})

	EventsTruncated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "uirec_events_truncated_total",
		Help: "Total number of events dropped because the event log reached its size limit.",
	})

	EventsUnexplained = promauto.NewCounter(prometheus.CounterOpts{
		Name: "uirec_events_unexplained_total",
		Help: "Total number of events discarded because no hook event preceded them.",
	})

	PatternsMatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "uirec_patterns_matched_total",
		Help: "Total number of pattern matches, labelled by pattern name.",
	}, []string{"pattern"})

	HandlerErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "uirec_handler_errors_total",
		Help: "Total number of handler failures, labelled by handler name.",
	}, []string{"handler"})

	FragmentsEmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "uirec_fragments_emitted_total",
		Help: "Total number of script fragments written to the sink.",
	})

	Rebuilds = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "uirec_tree_rebuilds_total",
		Help: "Total number of control tree rebuilds, labelled by outcome.",
	}, []string{"outcome"})

	RebuildDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "uirec_tree_rebuild_duration_ms",
		Help:    "Control tree rebuild latency in milliseconds.",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	})

	UpdateCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "uirec_update_cycles_total",
		Help: "Total number of suspend-resubscribe-resume cycles, labelled by outcome.",
	}, []string{"outcome"})

	Sessions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "uirec_sessions_ended_total",
		Help: "Total number of recording sessions ended, labelled by reason.",
	}, []string{"reason"})

	LogSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "uirec_event_log_size",
		Help: "Events buffered in the event log after the last matching cycle.",
	})
)
