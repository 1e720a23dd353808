package worker

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/pabot-dev/pabot/internal/discovery"
	"github.com/pabot-dev/pabot/internal/events"
)

// Deps bundles a Pool's collaborators.
type Deps struct {
	Events  *events.Bus
	Spawner Spawner
}

// Pool bounds concurrent unit dispatch to opts.NumberOfProcesses using a
// weighted semaphore, mirroring the teacher's worker pool but generalized
// from a raw channel to golang.org/x/sync/semaphore; the scheduler loop
// relies on this semaphore for its parallelism bound.
type Pool struct {
	opts    Options
	deps    Deps
	sem     *semaphore.Weighted
	mu      sync.Mutex
	results []Result
}

// NewPool returns a Pool that runs at most opts.NumberOfProcesses units
// concurrently.
func NewPool(opts Options, deps Deps) *Pool {
	if deps.Spawner == nil {
		deps.Spawner = NewProcessSpawner()
	}
	n := opts.NumberOfProcesses
	if n <= 0 {
		n = 1
	}
	return &Pool{
		opts: opts,
		deps: deps,
		sem:  semaphore.NewWeighted(int64(n)),
	}
}

// Run spawns unit's subprocess once a slot is free and blocks the caller
// until the unit has finished, holding the slot for the whole run, then
// returns its Result. It is safe to call Run from many goroutines at once;
// the semaphore enforces the parallelism budget.
func (p *Pool) Run(ctx context.Context, unit *discovery.Unit, timeout time.Duration) Result {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return Result{UnitID: unit.ID, QueueIndex: unit.QueueIndex, Err: &SpawnError{UnitID: unit.ID, Err: err}}
	}
	defer p.sem.Release(1)

	callerID := uuid.NewString()

	if p.deps.Events != nil {
		p.deps.Events.Publish(events.NewEvent(events.WorkerSpawned, unit.ID).WithQueueIndex(unit.QueueIndex))
	}

	result := p.deps.Spawner.Spawn(ctx, unit, p.opts, callerID, timeout)

	p.mu.Lock()
	p.results = append(p.results, result)
	p.mu.Unlock()

	if p.deps.Events != nil {
		evtType := events.WorkerExited
		if result.TimedOut {
			evtType = events.WorkerHardKilled
		}
		evt := events.NewEvent(evtType, unit.ID).WithQueueIndex(unit.QueueIndex)
		if result.Err != nil {
			evt = evt.WithError(result.Err)
		}
		p.deps.Events.Publish(evt)
	}

	return result
}

// RunGroup spawns a Group's members as one sequential subprocess once a
// slot is free, counting as a single occupant of the parallelism budget.
func (p *Pool) RunGroup(ctx context.Context, group *discovery.Group, timeout time.Duration) Result {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return Result{UnitID: group.ID, Err: &SpawnError{UnitID: group.ID, Err: err}}
	}
	defer p.sem.Release(1)

	callerID := uuid.NewString()

	if p.deps.Events != nil {
		p.deps.Events.Publish(events.NewEvent(events.GroupStarted, group.ID))
	}

	result := p.deps.Spawner.SpawnGroup(ctx, group, p.opts, callerID, timeout)

	p.mu.Lock()
	p.results = append(p.results, result)
	p.mu.Unlock()

	if p.deps.Events != nil {
		evt := events.NewEvent(events.GroupCompleted, group.ID)
		if result.Err != nil {
			evt = evt.WithError(result.Err)
		}
		p.deps.Events.Publish(evt)
	}

	return result
}

// Results returns every Result recorded so far, in completion order.
func (p *Pool) Results() []Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Result, len(p.results))
	copy(out, p.results)
	return out
}
