package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	MessagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracker_ingest_messages_received_total",
		Help: "Stream messages received, by topic.",
	}, []string{"topic"})
	MessagesMalformed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracker_ingest_messages_malformed_total",
		Help: "Stream messages dropped because they could not be decoded, by topic.",
	}, []string{"topic"})
	CacheWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracker_ingest_cache_write_failures_total",
		Help: "Vehicle state writes that failed against the hot cache.",
	})

	BroadcastDrops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracker_broadcast_dropped_total",
		Help: "Messages dropped for a subscriber whose queue was full.",
	})
	Subscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tracker_broadcast_subscribers",
		Help: "Live subscribers currently attached to the broadcaster.",
	})

	HistoryDispatchDrops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracker_history_dispatch_dropped_total",
		Help: "Samples not handed to the history writer (channel full or unencodable key).",
	})
	HistoryWriteSuccess = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracker_history_write_success_total",
		Help: "Samples appended to the historical store.",
	})
	HistoryWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracker_history_write_failures_total",
		Help: "Samples lost after the history writer exhausted its retry.",
	})

	ScanRowsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracker_history_scan_rows_skipped_total",
		Help: "Historical rows skipped during scans because of malformed keys or payloads.",
	})
	QueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tracker_query_duration_seconds",
		Help:    "Query engine operation latency.",
		Buckets: []float64{0.005, 0.025, 0.1, 0.5, 1.0, 2.5, 10.0},
	}, []string{"op"})
)

func Handler() http.Handler {
	return promhttp.Handler()
}
