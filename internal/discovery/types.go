package discovery

// Unit is a single executable test (a Robot Framework test case or suite
// leaf) as resolved by a dry-run of the underlying test runner.
type Unit struct {
	ID         string   // stable identifier, e.g. "tests/login.robot::Valid Login"
	Kind       UnitKind // Suite or Test
	Name       string   // longname as reported by the runner
	Source     string   // path to the suite file/directory backing this unit
	Args       []string // extra arguments synthesized for this unit's invocation
	DependsOn  []string // unit IDs that must complete first (#DEPENDS)
	Sleep      float64  // seconds to wait before dispatch (#SLEEP), 0 if none
	QueueIndex int      // position assigned at plan time, stable across reruns
	GroupID    string   // non-empty if this unit is a member of a Group
}

// UnitKind distinguishes whole-suite units from single-test units produced
// by --testlevelsplit.
type UnitKind string

const (
	KindSuite UnitKind = "suite"
	KindTest  UnitKind = "test"
)

// Group bundles Units that must execute sequentially inside one worker
// subprocess, sharing a single queue_index and a single listener port.
type Group struct {
	ID      string
	Members []*Unit
}
