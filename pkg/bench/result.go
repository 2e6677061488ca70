package bench

import (
	"fmt"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// latency histograms hold microseconds up to one hour
const (
	histMin     = 1
	histMax     = int64(time.Hour / time.Microsecond)
	histSigFigs = 3
)

func newHistogram() *hdrhistogram.Histogram {
	return hdrhistogram.New(histMin, histMax, histSigFigs)
}

// WorkerResult is what one producer or consumer reports after its run.
type WorkerResult struct {
	Worker         string
	Consumer       bool
	TotalSizeBytes uint64
	Messages       uint64
	Calls          uint64
	Duration       time.Duration
	Latency        *hdrhistogram.Histogram
	latencySum     time.Duration
}

func newWorkerResult(name string) *WorkerResult {
	return &WorkerResult{Worker: name, Latency: newHistogram()}
}

func (r *WorkerResult) observe(elapsed time.Duration) {
	r.Calls++
	r.latencySum += elapsed
	us := elapsed.Microseconds()
	if us < histMin {
		us = histMin
	}
	if us > histMax {
		us = histMax
	}
	_ = r.Latency.RecordValue(us)
}

// AverageLatencyMS is the mean per-call latency in milliseconds.
func (r *WorkerResult) AverageLatencyMS() float64 {
	if r.Calls == 0 {
		return 0
	}
	return float64(r.latencySum) / float64(r.Calls) / float64(time.Millisecond)
}

// Summary aggregates the workers of one pass. TotalDuration is the sum of
// worker durations, not wall clock, so throughput reflects per-worker
// service time.
type Summary struct {
	Transport        string
	Kind             Kind
	TotalMessages    uint64
	PolledMessages   uint64
	TotalSizeBytes   uint64
	TotalDuration    time.Duration
	AverageLatencyMS float64
	ThroughputMBps   float64
	P50LatencyMS     float64
	P99LatencyMS     float64
}

// Aggregate combines worker results. Workers that made no calls are left
// out of the latency mean.
func Aggregate(transport string, kind Kind, totalMessages uint64, results []*WorkerResult) Summary {
	s := Summary{Transport: transport, Kind: kind, TotalMessages: totalMessages}
	merged := newHistogram()

	var latencySum float64
	var active int
	for _, r := range results {
		s.TotalSizeBytes += r.TotalSizeBytes
		s.TotalDuration += r.Duration
		if r.Consumer {
			s.PolledMessages += r.Messages
		}
		if r.Calls > 0 {
			latencySum += r.AverageLatencyMS()
			active++
		}
		merged.Merge(r.Latency)
	}
	if active > 0 {
		s.AverageLatencyMS = latencySum / float64(active)
	}
	if secs := s.TotalDuration.Seconds(); secs > 0 {
		s.ThroughputMBps = float64(s.TotalSizeBytes) / secs / 1024 / 1024
	}
	s.P50LatencyMS = float64(merged.ValueAtQuantile(50)) / 1000
	s.P99LatencyMS = float64(merged.ValueAtQuantile(99)) / 1000
	return s
}

func (s Summary) String() string {
	return fmt.Sprintf("[%s] %s: total_messages=%d, total_duration=%dms, total_size_bytes=%d, average_latency=%.2fms, average_throughput=%.2fMB/s (sum of worker durations)",
		s.Transport, s.Kind, s.TotalMessages, s.TotalDuration.Milliseconds(), s.TotalSizeBytes, s.AverageLatencyMS, s.ThroughputMBps)
}

// Percentiles renders the latency distribution line.
func (s Summary) Percentiles() string {
	return fmt.Sprintf("[%s] %s: p50_latency=%.2fms, p99_latency=%.2fms", s.Transport, s.Kind, s.P50LatencyMS, s.P99LatencyMS)
}
