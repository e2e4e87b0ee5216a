package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Listener metrics
	PacketsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pts_packets_received_total",
		Help: "Datagrams received, by decoded kind",
	}, []string{"kind"})

	PacketsIgnored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pts_packets_ignored_total",
		Help: "Datagrams with an unrecognized discriminant byte",
	})

	DecodeErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pts_decode_errors_total",
		Help: "Datagrams that failed to decode, by kind",
	}, []string{"kind"})

	// DB metrics
	DBWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pts_db_writes_total",
		Help: "Persistence operations, by operation and result",
	}, []string{"operation", "result"})

	DBWriteDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pts_db_write_duration_seconds",
		Help:    "Persistence operation duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	DBSessionOpens = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pts_db_session_opens_total",
		Help: "Times the database session was opened",
	})

	DBSessionCloses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pts_db_session_closes_total",
		Help: "Times the database session was closed",
	})

	DBSessionOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pts_db_session_open",
		Help: "1 while the database session is open",
	})

	// SSE metrics
	StreamClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pts_stream_clients",
		Help: "Connected event stream clients",
	})
)
