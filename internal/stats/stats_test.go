package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRecordAndSummarize(t *testing.T) {
	r := NewRegistry()
	start := time.Now()

	r.Record(UnitStat{UnitID: "a", Started: start, Ended: start.Add(2 * time.Second), Passed: true})
	r.Record(UnitStat{UnitID: "b", Started: start, Ended: start.Add(5 * time.Second), Passed: false})

	summary := r.Summarize()
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 1, summary.Passed)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 5*time.Second, summary.Duration)
}

func TestRegistryPreservesInsertionOrder(t *testing.T) {
	r := NewRegistry()
	r.Record(UnitStat{UnitID: "b"})
	r.Record(UnitStat{UnitID: "a"})

	all := r.All()
	require.Len(t, all, 2)
	assert.Equal(t, "b", all[0].UnitID)
	assert.Equal(t, "a", all[1].UnitID)
}

func TestDurationsAndFailed(t *testing.T) {
	r := NewRegistry()
	start := time.Now()
	r.Record(UnitStat{UnitID: "a", Started: start, Ended: start.Add(3 * time.Second), Passed: false})

	durations := r.Durations()
	assert.InDelta(t, 3.0, durations["a"], 0.01)

	failed := r.Failed()
	assert.True(t, failed["a"])
}
