package plan

import "strconv"

// ItemKind discriminates the members of the PlanItem tagged union.
type ItemKind string

const (
	ItemUnit        ItemKind = "unit"
	ItemWaitBarrier ItemKind = "wait"
	ItemSleepHint   ItemKind = "sleep"
)

// Item is one line of a resolved execution plan. Exactly one of the
// kind-specific fields is meaningful, selected by Kind.
type Item struct {
	Kind ItemKind

	// ItemUnit
	Flag      string // "--suite" or "--test"
	Name      string
	DependsOn []string
	GroupID   string // non-empty while nested inside a `{`/`}` group

	// ItemSleepHint
	SleepSeconds float64
}

// Plan is the fully parsed, ordered sequence of Items a text plan file
// resolves to, before the scheduler turns it into a dependency graph.
type Plan struct {
	Items []Item
}

// PlanError reports a malformed plan file: bad grammar or an out-of-range
// value. Unresolvable dependency names and dependency cycles are reported
// as UnresolvedDependencyError and CycleError instead.
type PlanError struct {
	Line    int
	Message string
}

func (e *PlanError) Error() string {
	if e.Line > 0 {
		return "plan line " + strconv.Itoa(e.Line) + ": " + e.Message
	}
	return e.Message
}
