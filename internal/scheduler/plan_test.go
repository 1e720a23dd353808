package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pabot-dev/pabot/internal/discovery"
	"github.com/pabot-dev/pabot/internal/plan"
)

func unitMap(units ...*discovery.Unit) map[string]*discovery.Unit {
	m := make(map[string]*discovery.Unit, len(units))
	for _, u := range units {
		m[u.Name] = u
	}
	return m
}

func TestBuildEntriesLoneUnits(t *testing.T) {
	p := &plan.Plan{Items: []plan.Item{
		{Kind: plan.ItemUnit, Name: "Login"},
		{Kind: plan.ItemUnit, Name: "Logout"},
	}}
	units := unitMap(&discovery.Unit{ID: "login", Name: "Login"}, &discovery.Unit{ID: "logout", Name: "Logout"})

	entries, err := BuildEntries(p, units)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "login", entries[0].ID())
	assert.Equal(t, "logout", entries[1].ID())
}

func TestBuildEntriesMergesGroupMembers(t *testing.T) {
	p := &plan.Plan{Items: []plan.Item{
		{Kind: plan.ItemUnit, Name: "A", GroupID: "g1"},
		{Kind: plan.ItemUnit, Name: "B", GroupID: "g1"},
		{Kind: plan.ItemUnit, Name: "C"},
	}}
	units := unitMap(
		&discovery.Unit{ID: "a", Name: "A"},
		&discovery.Unit{ID: "b", Name: "B"},
		&discovery.Unit{ID: "c", Name: "C"},
	)

	entries, err := BuildEntries(p, units)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.NotNil(t, entries[0].Group)
	assert.Equal(t, "g1", entries[0].ID())
	assert.Len(t, entries[0].Group.Members, 2)
	assert.Equal(t, "c", entries[1].ID())
}

func TestBuildEntriesAttachesSleepToFollowingUnit(t *testing.T) {
	p := &plan.Plan{Items: []plan.Item{
		{Kind: plan.ItemSleepHint, SleepSeconds: 2.5},
		{Kind: plan.ItemUnit, Name: "A"},
	}}
	units := unitMap(&discovery.Unit{ID: "a", Name: "A"})

	entries, err := BuildEntries(p, units)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 2.5, entries[0].SleepSeconds)
}

func TestBuildEntriesWaitBarrier(t *testing.T) {
	p := &plan.Plan{Items: []plan.Item{
		{Kind: plan.ItemUnit, Name: "A"},
		{Kind: plan.ItemWaitBarrier},
		{Kind: plan.ItemUnit, Name: "B"},
	}}
	units := unitMap(&discovery.Unit{ID: "a", Name: "A"}, &discovery.Unit{ID: "b", Name: "B"})

	entries, err := BuildEntries(p, units)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.True(t, entries[1].IsBarrier)
}

func TestBuildEntriesUnknownUnitNameErrors(t *testing.T) {
	p := &plan.Plan{Items: []plan.Item{{Kind: plan.ItemUnit, Name: "Ghost"}}}
	_, err := BuildEntries(p, unitMap())
	require.Error(t, err)
}

func TestBuildEntriesDiscardsSleepUnattachedBeforeBarrier(t *testing.T) {
	p := &plan.Plan{Items: []plan.Item{
		{Kind: plan.ItemUnit, Name: "A"},
		{Kind: plan.ItemSleepHint, SleepSeconds: 5},
		{Kind: plan.ItemWaitBarrier},
		{Kind: plan.ItemUnit, Name: "B"},
	}}
	units := unitMap(&discovery.Unit{ID: "a", Name: "A"}, &discovery.Unit{ID: "b", Name: "B"})

	entries, err := BuildEntries(p, units)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.True(t, entries[1].IsBarrier)
	assert.Equal(t, float64(0), entries[2].SleepSeconds, "sleep hint with no group open at the barrier must be discarded, not carried to the next unit")
}
