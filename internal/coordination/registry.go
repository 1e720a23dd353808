package coordination

import (
	"strings"
	"sync"
)

// Registry is the single source of truth for all coordination-server
// state: locks, value sets, the parallel key/value store, and the
// run-once registry. Every operation holds the same mutex, which is what
// makes the server's state mutations linearizable regardless of how many
// worker connections are talking to it concurrently.
type Registry struct {
	mu sync.Mutex

	locks     map[string]*Lock
	valueSets []*ValueSet // insertion order; duplicate Names allowed
	kv        map[string]string
	runOnce   map[string]bool
	liveness  map[string]struct{} // registered caller ids
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		locks:    make(map[string]*Lock),
		kv:       make(map[string]string),
		runOnce:  make(map[string]bool),
		liveness: make(map[string]struct{}),
	}
}

// Register records a caller as live (a worker that has connected and
// identified itself via its CALLER_ID).
func (r *Registry) Register(callerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.liveness[callerID] = struct{}{}
}

// Deregister removes a caller's liveness entry and releases any locks or
// value-set leases it still held, so one crashed worker can't wedge the
// whole run.
func (r *Registry) Deregister(callerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.liveness, callerID)

	for _, lock := range r.locks {
		if lock.Holder == callerID {
			r.releaseLockLocked(lock, callerID)
		}
		lock.WaitQueue = removeFromQueue(lock.WaitQueue, callerID)
	}
	for _, vs := range r.valueSets {
		if vs.Holder == callerID {
			vs.Holder = ""
		}
	}
}

// AcquireLock blocks the caller's logical turn in favor of the wire
// protocol deciding whether to grant immediately (ok=true) or queue
// (ok=false, the caller must retry/poll per the wire protocol's framing).
func (r *Registry) AcquireLock(name, callerID string) (granted bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	lock, ok := r.locks[name]
	if !ok {
		lock = &Lock{Name: name}
		r.locks[name] = lock
	}

	if lock.Holder == "" {
		lock.Holder = callerID
		lock.WaitQueue = removeFromQueue(lock.WaitQueue, callerID)
		return true
	}
	if lock.Holder == callerID {
		return true // re-entrant acquire by the current holder is a no-op grant
	}
	if !containsCaller(lock.WaitQueue, callerID) {
		lock.WaitQueue = append(lock.WaitQueue, callerID)
	}
	return false
}

// ReleaseLock releases name if callerID is its current holder and promotes
// the next FIFO waiter, if any. Returns LockError if callerID never held
// the lock.
func (r *Registry) ReleaseLock(name, callerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	lock, ok := r.locks[name]
	if !ok || lock.Holder != callerID {
		return &LockError{Lock: name, Message: "release without matching acquire"}
	}
	r.releaseLockLocked(lock, callerID)
	return nil
}

// releaseLockLocked must be called with r.mu held.
func (r *Registry) releaseLockLocked(lock *Lock, callerID string) {
	lock.Holder = ""
	if len(lock.WaitQueue) > 0 {
		lock.Holder = lock.WaitQueue[0]
		lock.WaitQueue = lock.WaitQueue[1:]
	}
}

// LockHolder reports the current holder of name, or "" if free.
func (r *Registry) LockHolder(name string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if lock, ok := r.locks[name]; ok {
		return lock.Holder
	}
	return ""
}

// DefineValueSet appends a new ValueSet tagged with tags and backed by
// values, as loaded from a resource file. Duplicate names are allowed:
// each call adds a distinct set rather than replacing one of the same
// name, so a resource file may declare several sets sharing one name and
// one tag.
func (r *Registry) DefineValueSet(name string, tags []string, values map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.valueSets = append(r.valueSets, &ValueSet{Name: name, Tags: tags, Values: values})
}

// AcquireValueSet leases an unleased ValueSet matching tag (case-insensitive)
// to callerID, first-free-first-served by insertion order, and returns the
// leased set's name. Omitting tag makes every ValueSet eligible. If
// callerID already holds a lease, that lease's name is returned unchanged.
// Fails with NoSuchTag if no ValueSet carries tag at all, or with
// NoValueSetAvailable if every matching set is already leased.
func (r *Registry) AcquireValueSet(tag, callerID string) (name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if held := r.heldSetLocked(callerID); held != nil {
		return held.Name, nil
	}

	var sawTag bool
	for _, vs := range r.valueSets {
		if tag != "" && !hasTagFold(vs.Tags, tag) {
			continue
		}
		sawTag = true
		if vs.Holder == "" {
			vs.Holder = callerID
			return vs.Name, nil
		}
	}
	if tag != "" && !sawTag {
		return "", &ValueSetError{Set: tag, Kind: NoSuchTag}
	}
	return "", &ValueSetError{Set: tag, Kind: NoValueSetAvailable}
}

// GetValueFromSet returns the value for a case-insensitive key lookup
// against the ValueSet currently leased by callerID. Fails with
// NoValueSetAvailable if callerID holds no lease, or NoSuchTag if key is
// absent from the leased set.
func (r *Registry) GetValueFromSet(key, callerID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	vs := r.heldSetLocked(callerID)
	if vs == nil {
		return "", &ValueSetError{Set: callerID, Kind: NoValueSetAvailable}
	}
	for k, v := range vs.Values {
		if strings.EqualFold(k, key) {
			return v, nil
		}
	}
	return "", &ValueSetError{Set: vs.Name, Kind: NoSuchTag}
}

// AddValueToSet inserts a new ValueSet named name at runtime. mapping's
// "tags" entry, if present, is split on commas into the set's tag list;
// every other entry becomes one of its leasable values.
func (r *Registry) AddValueToSet(name string, mapping map[string]string) {
	tags, values := splitTagsAndValues(mapping)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.valueSets = append(r.valueSets, &ValueSet{Name: name, Tags: tags, Values: values})
}

// ReleaseValueSet clears callerID's lease, if it holds one. A no-op, not
// an error, if callerID holds no lease.
func (r *Registry) ReleaseValueSet(callerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if vs := r.heldSetLocked(callerID); vs != nil {
		vs.Holder = ""
	}
}

// heldSetLocked returns the ValueSet callerID currently leases, or nil.
// Must be called with r.mu held.
func (r *Registry) heldSetLocked(callerID string) *ValueSet {
	for _, vs := range r.valueSets {
		if vs.Holder == callerID {
			return vs
		}
	}
	return nil
}

func hasTagFold(tags []string, tag string) bool {
	for _, t := range tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// SetParallelValue stores a key/value pair visible to every worker.
func (r *Registry) SetParallelValue(key, value string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kv[key] = value
}

// GetParallelValue returns the value for key, and whether it was set.
func (r *Registry) GetParallelValue(key string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.kv[key]
	return v, ok
}

// RunOnlyOnce returns true the first time it is called for a given name,
// and false on every subsequent call, so concurrent workers can coordinate
// one-time setup.
func (r *Registry) RunOnlyOnce(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.runOnce[name] {
		return false
	}
	r.runOnce[name] = true
	return true
}

func removeFromQueue(queue []string, callerID string) []string {
	out := queue[:0:0]
	for _, id := range queue {
		if id != callerID {
			out = append(out, id)
		}
	}
	return out
}

func containsCaller(queue []string, callerID string) bool {
	for _, id := range queue {
		if id == callerID {
			return true
		}
	}
	return false
}

