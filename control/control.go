// control/control.go
// Author: momentics <momentics@gmail.com>
//
// Control composes ConfigStore, MetricsRegistry and DebugProbes into a
// single api.Control implementation, plus a bounded ring of recent cycle
// samples (internal/dispatch.SampleRing) that RegisterPlatformProbes-style
// probes can expose for introspection without re-deriving them from
// Prometheus's own pull model.

package control

import (
	"time"

	"github.com/cyclemux/cyclemux/api"
	"github.com/cyclemux/cyclemux/config"
	"github.com/cyclemux/cyclemux/internal/dispatch"
)

const recentCyclesCapacity = 64

// CycleSample is one Array cycle's summary, as recorded by RecordCycle.
type CycleSample struct {
	At           time.Time
	Transfers    int
	Terminations int
	Attached     int
	Wait         time.Duration
}

// Control is the concrete api.Control implementation wired for an Array.
type Control struct {
	cfg     *ConfigStore
	metrics *MetricsRegistry
	debug   *DebugProbes
	recent  *dispatch.SampleRing[CycleSample]
}

// New creates a Control with fresh, empty config/metrics/debug state and
// registers the built-in probes (recent-cycle history, platform info).
func New() *Control {
	c := &Control{
		cfg:     NewConfigStore(),
		metrics: NewMetricsRegistry(),
		debug:   NewDebugProbes(),
		recent:  dispatch.NewSampleRing[CycleSample](recentCyclesCapacity),
	}
	c.debug.RegisterProbe("cycles.recent", func() any { return c.recent.Snapshot() })
	RegisterPlatformProbes(c.debug)
	return c
}

// Metrics returns the underlying MetricsRegistry for direct collector
// access (e.g. mounting Registry() behind promhttp).
func (c *Control) Metrics() *MetricsRegistry { return c.metrics }

// RecordCycle feeds one completed Array cycle's summary into both the
// Prometheus collectors and the recent-cycle ring.
func (c *Control) RecordCycle(transfers, terminations, attached int, wait time.Duration) {
	c.metrics.RecordCycle(transfers, terminations, attached, wait)
	c.recent.Push(CycleSample{At: time.Now(), Transfers: transfers, Terminations: terminations, Attached: attached, Wait: wait})
}

// GetConfig returns a snapshot of all configuration settings.
func (c *Control) GetConfig() map[string]any { return c.cfg.GetSnapshot() }

// SetConfig atomically updates or merges configuration settings.
func (c *Control) SetConfig(cfg map[string]any) error {
	c.cfg.SetConfig(cfg)
	return nil
}

// Stats returns current aggregated runtime and performance metrics.
func (c *Control) Stats() map[string]any { return c.metrics.GetSnapshot() }

// OnReload registers a callback for hot-reload/config updates.
func (c *Control) OnReload(fn func()) { c.cfg.OnReload(fn) }

// WatchConfigFile registers a process-wide reload hook (see
// RegisterReloadHook) that re-reads path and applies it to this Control's
// config store whenever TriggerHotReload fires. A malformed or missing file
// at reload time is ignored, keeping the last-good config rather than
// wiping it.
func (c *Control) WatchConfigFile(path string) {
	RegisterReloadHook(func() {
		tun, err := config.Load(path)
		if err != nil {
			return
		}
		c.SetConfig(map[string]any{
			"array.capacity":             tun.Array.Capacity,
			"array.wait_deadline_millis": tun.Array.WaitDeadlineMillis,
			"port.eintr_budget":          tun.Port.EINTRBudget,
			"port.backlog":               tun.Port.Backlog,
			"datagram.space":             tun.Datagram.Space,
			"datagram.count":             tun.Datagram.Count,
		})
	})
}

// RegisterDebugProbe dynamically registers a named debug probe function.
func (c *Control) RegisterDebugProbe(name string, fn func() any) { c.debug.RegisterProbe(name, fn) }

// DumpState returns the output of every registered debug probe.
func (c *Control) DumpState() map[string]any { return c.debug.DumpState() }

var _ api.Control = (*Control)(nil)
