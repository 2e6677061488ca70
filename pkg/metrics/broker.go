package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	MessagesAppended = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "broker_messages_appended_total",
		Help: "Total number of messages appended to partitions",
	})

	BytesAppended = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "broker_bytes_appended_total",
		Help: "Total payload bytes appended to partitions",
	})

	MessagesPolled = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "broker_messages_polled_total",
		Help: "Total number of messages returned by polls",
	})

	CommandLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "broker_command_latency_seconds",
		Help:    "Histogram of command processing latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"command", "transport"})

	CommandErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "broker_command_errors_total",
		Help: "Total number of commands rejected, by error kind",
	}, []string{"command", "kind"})

	StreamsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "broker_streams",
		Help: "Current number of streams",
	})

	TopicsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "broker_topics",
		Help: "Current number of topics across all streams",
	})
)
