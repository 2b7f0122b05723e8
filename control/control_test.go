// File: control/control_test.go
// Author: momentics <momentics@gmail.com>

package control

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigStoreSetAndSnapshot(t *testing.T) {
	cs := NewConfigStore()
	cs.SetConfig(map[string]any{"a": 1})
	cs.SetConfig(map[string]any{"b": 2})

	snap := cs.GetSnapshot()
	assert.Equal(t, 1, snap["a"])
	assert.Equal(t, 2, snap["b"])

	snap["a"] = 99
	assert.Equal(t, 1, cs.GetSnapshot()["a"], "GetSnapshot must return an independent copy")
}

func TestConfigStoreOnReloadFiresOnSetConfig(t *testing.T) {
	cs := NewConfigStore()
	done := make(chan struct{})
	cs.OnReload(func() { close(done) })

	cs.SetConfig(map[string]any{"x": true})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reload listener never fired")
	}
}

func TestDebugProbesRegisterAndDump(t *testing.T) {
	dp := NewDebugProbes()
	dp.RegisterProbe("answer", func() any { return 42 })
	dp.RegisterProbe("name", func() any { return "cyclemux" })

	out := dp.DumpState()
	assert.Equal(t, 42, out["answer"])
	assert.Equal(t, "cyclemux", out["name"])
}

func TestDebugProbesLaterRegistrationOverwrites(t *testing.T) {
	dp := NewDebugProbes()
	dp.RegisterProbe("v", func() any { return 1 })
	dp.RegisterProbe("v", func() any { return 2 })
	assert.Equal(t, 2, dp.DumpState()["v"])
}

func TestMetricsRegistryRecordCycleUpdatesSnapshot(t *testing.T) {
	mr := NewMetricsRegistry()
	mr.RecordCycle(3, 1, 5, 10*time.Millisecond)
	mr.RecordCycle(2, 0, 4, 5*time.Millisecond)

	snap := mr.GetSnapshot()
	assert.EqualValues(t, 2, snap["cycles_total"])
	assert.EqualValues(t, 5, snap["transfers_total"])
	assert.EqualValues(t, 1, snap["terminations_total"])
	assert.EqualValues(t, 4, snap["channels_attached"])
}

func TestMetricsRegistrySetMergesAdHocValues(t *testing.T) {
	mr := NewMetricsRegistry()
	mr.Set("build", "dev")
	snap := mr.GetSnapshot()
	assert.Equal(t, "dev", snap["build"])
}

func TestControlComposesConfigMetricsAndDebug(t *testing.T) {
	c := New()

	require.NoError(t, c.SetConfig(map[string]any{"workers": 4}))
	assert.Equal(t, 4, c.GetConfig()["workers"])

	c.RecordCycle(2, 1, 3, 2*time.Millisecond)
	stats := c.Stats()
	assert.EqualValues(t, 1, stats["cycles_total"])

	dump := c.DumpState()
	recent, ok := dump["cycles.recent"].([]CycleSample)
	require.True(t, ok)
	require.Len(t, recent, 1)
	assert.Equal(t, 2, recent[0].Transfers)

	var reloaded bool
	c.OnReload(func() { reloaded = true })
	c.SetConfig(map[string]any{"workers": 8})
	time.Sleep(10 * time.Millisecond)
	assert.True(t, reloaded)

	var calls int
	c.RegisterDebugProbe("custom", func() any { calls++; return calls })
	assert.Equal(t, 1, c.DumpState()["custom"])
}

func TestControlWatchConfigFileAppliesOnTrigger(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tuning.yaml")
	require.NoError(t, os.WriteFile(path, []byte("array:\n  capacity: 99\n"), 0o644))

	c := New()
	c.WatchConfigFile(path)

	TriggerHotReload()
	require.Eventually(t, func() bool {
		v, ok := c.GetConfig()["array.capacity"]
		return ok && v == 99
	}, time.Second, 5*time.Millisecond)
}
