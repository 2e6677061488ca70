package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/downfa11-org/rill/util"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func init() {
	prometheus.MustRegister(MessagesAppended, BytesAppended, MessagesPolled, CommandLatency, CommandErrors)
	prometheus.MustRegister(StreamsTotal, TopicsTotal)
}

// StartMetricsServer serves /metrics on port until ctx is cancelled.
func StartMetricsServer(ctx context.Context, port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}

	go func() {
		util.Info("Prometheus exporter listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			util.Error("Failed to start metrics server: %v", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}

// ObserveAppend records appended messages and their payload bytes.
func ObserveAppend(count, bytes int) {
	MessagesAppended.Add(float64(count))
	BytesAppended.Add(float64(bytes))
}

// ObserveCommand records the latency of one command and, on failure, its error kind.
func ObserveCommand(command, transport, kind string, elapsed time.Duration) {
	CommandLatency.WithLabelValues(command, transport).Observe(elapsed.Seconds())
	if kind != "" {
		CommandErrors.WithLabelValues(command, kind).Inc()
	}
}
