package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	messagesSaved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "assistdb_messages_saved_total",
		Help: "Messages appended to conversations.",
	})
	messageWriteErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "assistdb_message_write_errors_total",
		Help: "Failed message writes.",
	})
	messageSaveSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "assistdb_message_save_seconds",
		Help:    "Latency of message append operations.",
		Buckets: prometheus.DefBuckets,
	})
	embedBootstraps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assistdb_embed_bootstraps_total",
		Help: "Widget bootstrap attempts by outcome.",
	}, []string{"outcome"})
)

// CountEmbedBootstrap records one widget bootstrap attempt.
// outcome is "allowed", "denied" or "error".
func CountEmbedBootstrap(outcome string) {
	embedBootstraps.WithLabelValues(outcome).Inc()
}
