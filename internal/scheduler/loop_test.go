package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pabot-dev/pabot/internal/discovery"
	"github.com/pabot-dev/pabot/internal/worker"
)

type scriptedSpawner struct {
	mu      sync.Mutex
	started []string
	fail    map[string]bool
}

func (s *scriptedSpawner) Spawn(ctx context.Context, unit *discovery.Unit, opts worker.Options, callerID string, timeout time.Duration) worker.Result {
	s.mu.Lock()
	s.started = append(s.started, unit.ID)
	s.mu.Unlock()

	if s.fail[unit.ID] {
		return worker.Result{UnitID: unit.ID, ExitCode: 1, Class: worker.ExitTestFailure}
	}
	return worker.Result{UnitID: unit.ID, ExitCode: 0, Class: worker.ExitPassed}
}

func (s *scriptedSpawner) SpawnGroup(ctx context.Context, group *discovery.Group, opts worker.Options, callerID string, timeout time.Duration) worker.Result {
	return worker.Result{UnitID: group.ID, ExitCode: 0, Class: worker.ExitPassed}
}

func newTestPool(spawner worker.Spawner, n int) *worker.Pool {
	return worker.NewPool(worker.Options{NumberOfProcesses: n}, worker.Deps{Spawner: spawner})
}

func TestLoopRunsIndependentUnitsConcurrently(t *testing.T) {
	spawner := &scriptedSpawner{}
	pool := newTestPool(spawner, 4)
	loop := NewLoop(pool, nil, time.Second)

	entries := []*Entry{
		{Unit: &discovery.Unit{ID: "a"}},
		{Unit: &discovery.Unit{ID: "b"}},
	}

	results, skipped, err := loop.Run(context.Background(), entries)
	require.NoError(t, err)
	assert.Empty(t, skipped)
	assert.Len(t, results, 2)
}

func TestLoopSkipsDependentOfFailedUnit(t *testing.T) {
	spawner := &scriptedSpawner{fail: map[string]bool{"a": true}}
	pool := newTestPool(spawner, 4)
	loop := NewLoop(pool, nil, time.Second)

	entries := []*Entry{
		{Unit: &discovery.Unit{ID: "a"}},
		{Unit: &discovery.Unit{ID: "b", DependsOn: []string{"a"}}},
	}

	results, skipped, err := loop.Run(context.Background(), entries)
	require.NoError(t, err)
	assert.Contains(t, skipped, "b")
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].UnitID)
}

func TestLoopRunsDependentAfterPredecessorPasses(t *testing.T) {
	spawner := &scriptedSpawner{}
	pool := newTestPool(spawner, 4)
	loop := NewLoop(pool, nil, time.Second)

	entries := []*Entry{
		{Unit: &discovery.Unit{ID: "a"}},
		{Unit: &discovery.Unit{ID: "b", DependsOn: []string{"a"}}},
	}

	results, skipped, err := loop.Run(context.Background(), entries)
	require.NoError(t, err)
	assert.Empty(t, skipped)
	assert.Len(t, results, 2)
}

func TestLoopBarrierBlocksUntilPriorSegmentCompletes(t *testing.T) {
	spawner := &scriptedSpawner{}
	pool := newTestPool(spawner, 4)
	loop := NewLoop(pool, nil, time.Second)

	entries := []*Entry{
		{Unit: &discovery.Unit{ID: "a"}},
		{IsBarrier: true},
		{Unit: &discovery.Unit{ID: "b"}},
	}

	results, _, err := loop.Run(context.Background(), entries)
	require.NoError(t, err)
	require.Len(t, results, 2)

	spawner.mu.Lock()
	defer spawner.mu.Unlock()
	require.Equal(t, []string{"a", "b"}, spawner.started)
}
