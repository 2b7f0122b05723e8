// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Prometheus-backed metrics registry. Keeps the teacher's dynamic
// Set/GetSnapshot surface (arbitrary named values for Stats()) but backs the
// fixed cycle-engine counters/gauges with real github.com/prometheus/
// client_golang collectors instead of a bare map, so a caller can mount
// MetricsRegistry.Registry() behind promhttp and scrape it directly.

package control

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsRegistry holds the fixed Prometheus collectors for an Array plus a
// dynamic map for ad hoc values reported through Set. The Prometheus
// collectors are write-only from client_golang's own API (there is no
// exported Counter.Value), so each fixed metric keeps a parallel atomic
// counter purely so GetSnapshot can report it without a full Gather pass.
type MetricsRegistry struct {
	reg *prometheus.Registry

	CyclesTotal       prometheus.Counter
	TransfersTotal    prometheus.Counter
	TerminationsTotal prometheus.Counter
	ChannelsAttached  prometheus.Gauge
	WaitSeconds       prometheus.Histogram

	cycles, transfers, terms, channels atomic.Int64

	mu      sync.RWMutex
	metrics map[string]any
	updated time.Time
}

// NewMetricsRegistry creates a registry with the cycle-engine collectors
// pre-registered under the cyclemux namespace.
func NewMetricsRegistry() *MetricsRegistry {
	reg := prometheus.NewRegistry()
	mr := &MetricsRegistry{
		reg:     reg,
		metrics: make(map[string]any),
		CyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cyclemux", Name: "cycles_total", Help: "Completed Array.Enter/Exit cycles.",
		}),
		TransfersTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cyclemux", Name: "transfers_total", Help: "Transfer events produced across all channels.",
		}),
		TerminationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cyclemux", Name: "terminations_total", Help: "Terminate events produced across all channels.",
		}),
		ChannelsAttached: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cyclemux", Name: "channels_attached", Help: "Channels currently attached to the Array.",
		}),
		WaitSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "cyclemux", Name: "wait_seconds", Help: "Time spent blocked in the kernel backend's Wait per cycle.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(mr.CyclesTotal, mr.TransfersTotal, mr.TerminationsTotal, mr.ChannelsAttached, mr.WaitSeconds)
	return mr
}

// Registry exposes the underlying prometheus.Registry for mounting behind
// promhttp.HandlerFor in a caller's HTTP server.
func (mr *MetricsRegistry) Registry() *prometheus.Registry { return mr.reg }

// RecordCycle updates the fixed collectors after one completed Array cycle.
func (mr *MetricsRegistry) RecordCycle(transfers, terminations, attached int, wait time.Duration) {
	mr.CyclesTotal.Inc()
	mr.cycles.Add(1)
	mr.TransfersTotal.Add(float64(transfers))
	mr.transfers.Add(int64(transfers))
	mr.TerminationsTotal.Add(float64(terminations))
	mr.terms.Add(int64(terminations))
	mr.ChannelsAttached.Set(float64(attached))
	mr.channels.Store(int64(attached))
	mr.WaitSeconds.Observe(wait.Seconds())
}

// Set records an ad hoc named value, for metrics that don't warrant their
// own collector (e.g. build info, config digests).
func (mr *MetricsRegistry) Set(key string, value any) {
	mr.mu.Lock()
	mr.metrics[key] = value
	mr.updated = time.Now()
	mr.mu.Unlock()
}

// GetSnapshot returns the fixed collectors' current values merged with the
// ad hoc map.
func (mr *MetricsRegistry) GetSnapshot() map[string]any {
	mr.mu.RLock()
	out := make(map[string]any, len(mr.metrics)+4)
	for k, v := range mr.metrics {
		out[k] = v
	}
	mr.mu.RUnlock()

	out["cycles_total"] = mr.cycles.Load()
	out["transfers_total"] = mr.transfers.Load()
	out["terminations_total"] = mr.terms.Load()
	out["channels_attached"] = mr.channels.Load()
	return out
}
