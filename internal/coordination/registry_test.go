package coordination

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireReleaseLockFIFO(t *testing.T) {
	r := NewRegistry()

	assert.True(t, r.AcquireLock("db", "worker-1"))
	assert.False(t, r.AcquireLock("db", "worker-2"))
	assert.False(t, r.AcquireLock("db", "worker-3"))

	require.NoError(t, r.ReleaseLock("db", "worker-1"))
	assert.Equal(t, "worker-2", r.LockHolder("db"))

	require.NoError(t, r.ReleaseLock("db", "worker-2"))
	assert.Equal(t, "worker-3", r.LockHolder("db"))
}

func TestReleaseLockWithoutAcquireErrors(t *testing.T) {
	r := NewRegistry()
	err := r.ReleaseLock("db", "worker-1")
	require.Error(t, err)
	var lerr *LockError
	require.ErrorAs(t, err, &lerr)
}

// TestAcquireValueSetLeasesWholeSetByTag mirrors a resource file with two
// sets sharing one tag: two concurrent acquires each get a distinct set, and
// a third is refused until one is released.
func TestAcquireValueSetLeasesWholeSetByTag(t *testing.T) {
	r := NewRegistry()
	r.DefineValueSet("S1", []string{"admin"}, map[string]string{"HOST": "h1"})
	r.DefineValueSet("S2", []string{"admin"}, map[string]string{"HOST": "h2"})

	name1, err := r.AcquireValueSet("admin", "worker-1")
	require.NoError(t, err)
	name2, err := r.AcquireValueSet("admin", "worker-2")
	require.NoError(t, err)
	assert.NotEqual(t, name1, name2)
	assert.ElementsMatch(t, []string{"S1", "S2"}, []string{name1, name2})

	_, err = r.AcquireValueSet("admin", "worker-3")
	require.Error(t, err)
	var vserr *ValueSetError
	require.ErrorAs(t, err, &vserr)
	assert.Equal(t, NoValueSetAvailable, vserr.Kind)

	r.ReleaseValueSet("worker-1")
	name3, err := r.AcquireValueSet("admin", "worker-3")
	require.NoError(t, err)
	assert.Equal(t, name1, name3)
}

func TestAcquireValueSetConcurrentWorkersGetDistinctSets(t *testing.T) {
	r := NewRegistry()
	r.DefineValueSet("S1", []string{"admin"}, map[string]string{"HOST": "h1"})
	r.DefineValueSet("S2", []string{"admin"}, map[string]string{"HOST": "h2"})

	var wg sync.WaitGroup
	names := make([]string, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			names[i], errs[i] = r.AcquireValueSet("admin", fmt.Sprintf("worker-%d", i))
		}()
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.NotEqual(t, names[0], names[1])
}

func TestAcquireValueSetNoSuchTag(t *testing.T) {
	r := NewRegistry()
	r.DefineValueSet("S1", []string{"admin"}, map[string]string{"HOST": "h1"})

	_, err := r.AcquireValueSet("nonexistent", "worker-1")
	require.Error(t, err)
	var vserr *ValueSetError
	require.ErrorAs(t, err, &vserr)
	assert.Equal(t, NoSuchTag, vserr.Kind)
}

func TestAcquireValueSetOmittedTagAcceptsAnyFreeSet(t *testing.T) {
	r := NewRegistry()
	r.DefineValueSet("S1", []string{"admin"}, map[string]string{"HOST": "h1"})

	name, err := r.AcquireValueSet("", "worker-1")
	require.NoError(t, err)
	assert.Equal(t, "S1", name)
}

func TestAcquireValueSetReentrantReturnsExistingLease(t *testing.T) {
	r := NewRegistry()
	r.DefineValueSet("S1", []string{"admin"}, map[string]string{"HOST": "h1"})
	r.DefineValueSet("S2", []string{"admin"}, map[string]string{"HOST": "h2"})

	name1, err := r.AcquireValueSet("admin", "worker-1")
	require.NoError(t, err)
	name2, err := r.AcquireValueSet("admin", "worker-1")
	require.NoError(t, err)
	assert.Equal(t, name1, name2)
}

func TestGetValueFromSetCaseInsensitive(t *testing.T) {
	r := NewRegistry()
	r.DefineValueSet("env", []string{"staging"}, map[string]string{"Staging": "https://staging.example.com"})

	_, err := r.AcquireValueSet("staging", "worker-1")
	require.NoError(t, err)

	v, err := r.GetValueFromSet("STAGING", "worker-1")
	require.NoError(t, err)
	assert.Equal(t, "https://staging.example.com", v)

	_, err = r.GetValueFromSet("prod", "worker-1")
	require.Error(t, err)
	var vserr *ValueSetError
	require.ErrorAs(t, err, &vserr)
	assert.Equal(t, NoSuchTag, vserr.Kind)
}

func TestGetValueFromSetFailsWithoutLease(t *testing.T) {
	r := NewRegistry()
	r.DefineValueSet("env", []string{"staging"}, map[string]string{"Staging": "https://staging.example.com"})

	_, err := r.GetValueFromSet("staging", "worker-1")
	require.Error(t, err)
	var vserr *ValueSetError
	require.ErrorAs(t, err, &vserr)
	assert.Equal(t, NoValueSetAvailable, vserr.Kind)
}

func TestReleaseValueSetWithoutLeaseIsNoop(t *testing.T) {
	r := NewRegistry()
	require.NotPanics(t, func() {
		r.ReleaseValueSet("worker-1")
	})
}

func TestAddValueToSetDerivesTagsFromMapping(t *testing.T) {
	r := NewRegistry()
	r.AddValueToSet("env", map[string]string{"tags": "staging, production", "Staging": "url"})

	name, err := r.AcquireValueSet("production", "worker-1")
	require.NoError(t, err)
	assert.Equal(t, "env", name)

	v, err := r.GetValueFromSet("staging", "worker-1")
	require.NoError(t, err)
	assert.Equal(t, "url", v)
}

func TestRunOnlyOnceFirstCallerWins(t *testing.T) {
	r := NewRegistry()
	assert.True(t, r.RunOnlyOnce("create-db"))
	assert.False(t, r.RunOnlyOnce("create-db"))
}

func TestDeregisterReleasesHeldLocksAndValueSetLease(t *testing.T) {
	r := NewRegistry()
	require.True(t, r.AcquireLock("db", "worker-1"))
	require.False(t, r.AcquireLock("db", "worker-2"))

	r.DefineValueSet("S1", []string{"admin"}, map[string]string{"HOST": "h1"})
	_, err := r.AcquireValueSet("admin", "worker-1")
	require.NoError(t, err)

	r.Deregister("worker-1")
	assert.Equal(t, "worker-2", r.LockHolder("db"))

	name, err := r.AcquireValueSet("admin", "worker-2")
	require.NoError(t, err)
	assert.Equal(t, "S1", name)
}

func TestParallelValueRoundTrip(t *testing.T) {
	r := NewRegistry()
	r.SetParallelValue("run_id", "abc123")
	v, ok := r.GetParallelValue("run_id")
	require.True(t, ok)
	assert.Equal(t, "abc123", v)

	_, ok = r.GetParallelValue("missing")
	assert.False(t, ok)
}
