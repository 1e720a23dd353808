package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pabot-dev/pabot/internal/events"
	"github.com/pabot-dev/pabot/internal/worker"
)

// Loop drives a resolved Entry sequence to completion against a worker.Pool,
// honoring WaitBarrier total-barrier semantics, per-entry dependency suffix
// constraints, and parallel (non-serializing) sleep hints.
type Loop struct {
	pool    *worker.Pool
	bus     *events.Bus
	timeout time.Duration

	mu        sync.Mutex
	passed    map[string]bool
	skipped   []string
	results   []worker.Result
}

// NewLoop returns a Loop dispatching against pool, publishing lifecycle
// events to bus (may be nil), applying timeout to every spawned subprocess.
func NewLoop(pool *worker.Pool, bus *events.Bus, timeout time.Duration) *Loop {
	return &Loop{pool: pool, bus: bus, timeout: timeout, passed: make(map[string]bool)}
}

// Run dispatches every Entry in order, splitting dispatch into barrier
// segments: all entries before a WaitBarrier fully complete before any
// entry after it starts. Within a segment, entries whose dependencies are
// already satisfied run concurrently (bounded by the Pool's semaphore);
// an entry whose dependency failed is recorded as skipped and never runs.
func (l *Loop) Run(ctx context.Context, entries []*Entry) ([]worker.Result, []string, error) {
	var segment []*Entry
	for _, e := range entries {
		if e.IsBarrier {
			if err := l.runSegment(ctx, segment); err != nil {
				return l.results, l.skipped, err
			}
			segment = nil
			if l.bus != nil {
				l.bus.Publish(events.NewEvent(events.BarrierPassed, ""))
			}
			continue
		}
		segment = append(segment, e)
	}
	if err := l.runSegment(ctx, segment); err != nil {
		return l.results, l.skipped, err
	}
	return l.results, l.skipped, nil
}

// runSegment dispatches every entry in one barrier-delimited segment and
// blocks until all of them have reached a terminal state.
func (l *Loop) runSegment(ctx context.Context, segment []*Entry) error {
	if len(segment) == 0 {
		return nil
	}

	done := make(map[string]chan struct{}, len(segment))
	for _, e := range segment {
		done[e.ID()] = make(chan struct{})
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for _, e := range segment {
		wg.Add(1)
		go func(e *Entry) {
			defer wg.Done()
			defer close(done[e.ID()])

			if err := l.waitDeps(ctx, e.DependsOn(), done); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return
			}

			if l.dependencyFailed(e.DependsOn()) {
				l.recordSkipped(e.ID())
				return
			}

			if e.SleepSeconds > 0 {
				select {
				case <-time.After(time.Duration(e.SleepSeconds * float64(time.Second))):
				case <-ctx.Done():
					return
				}
			}

			var result worker.Result
			if e.Group != nil {
				result = l.pool.RunGroup(ctx, e.Group, l.timeout)
			} else {
				result = l.pool.Run(ctx, e.Unit, l.timeout)
			}

			l.recordResult(e.ID(), result)
		}(e)
	}

	wg.Wait()
	return firstErr
}

// waitDeps blocks until every named dependency's done channel closes, or
// ctx is cancelled.
func (l *Loop) waitDeps(ctx context.Context, deps []string, done map[string]chan struct{}) error {
	for _, dep := range deps {
		ch, ok := done[dep]
		if !ok {
			// Dependency belongs to an earlier segment; it already
			// completed before this segment could start (barrier).
			continue
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return fmt.Errorf("cancelled waiting on dependency %q: %w", dep, ctx.Err())
		}
	}
	return nil
}

func (l *Loop) dependencyFailed(deps []string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, dep := range deps {
		if passed, known := l.passed[dep]; known && !passed {
			return true
		}
	}
	return false
}

func (l *Loop) recordSkipped(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.skipped = append(l.skipped, id)
	l.passed[id] = false
	if l.bus != nil {
		l.bus.Publish(events.NewEvent(events.UnitBlocked, id))
	}
}

func (l *Loop) recordResult(id string, result worker.Result) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.passed[id] = result.Passed()
	l.results = append(l.results, result)

	if l.bus == nil {
		return
	}
	evtType := events.UnitCompleted
	if !result.Passed() {
		evtType = events.UnitFailed
	}
	evt := events.NewEvent(evtType, id)
	if result.Err != nil {
		evt = evt.WithError(result.Err)
	}
	l.bus.Publish(evt)
}
