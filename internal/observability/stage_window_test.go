package observability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStageWindowSnapshot(t *testing.T) {
	w := NewStageWindow(8)
	w.Observe("recalling", 500*time.Millisecond)
	w.Observe("recalling", 700*time.Millisecond)
	w.Observe("recalling", 900*time.Millisecond)
	w.Count("recall_degraded_short_term")
	w.Count("recall_degraded_short_term")
	w.Count("  ")

	snap := w.Snapshot()
	assert.Equal(t, 8, snap.WindowSize)
	require.Len(t, snap.Stages, 1)

	s := snap.Stages[0]
	assert.Equal(t, "recalling", s.Stage)
	assert.Equal(t, 3, s.Samples)
	assert.Equal(t, 900.0, s.LastMS)
	assert.Equal(t, 700.0, s.P50MS)
	assert.Greater(t, s.P95MS, 700.0)
	assert.LessOrEqual(t, s.P95MS, 900.0)
	assert.Equal(t, 3000.0, s.TargetP95MS)

	require.Len(t, snap.Indicators, 1)
	assert.Equal(t, Indicator{Name: "recall_degraded_short_term", Count: 2}, snap.Indicators[0])
}

func TestStageWindowWrapsAround(t *testing.T) {
	w := NewStageWindow(2)
	w.Observe("invoking", 10*time.Millisecond)
	w.Observe("invoking", 20*time.Millisecond)
	w.Observe("invoking", 30*time.Millisecond)

	snap := w.Snapshot()
	require.Len(t, snap.Stages, 1)
	assert.Equal(t, 2, snap.Stages[0].Samples)
	assert.Equal(t, 25.0, snap.Stages[0].AvgMS)
	assert.Equal(t, 30.0, snap.Stages[0].LastMS)
}

func TestStageWindowNilSafe(t *testing.T) {
	var w *StageWindow
	w.Observe("x", time.Second)
	w.Count("x")
}
