package scheduler

import (
	"fmt"
	"log"

	"github.com/pabot-dev/pabot/internal/discovery"
	"github.com/pabot-dev/pabot/internal/plan"
)

// Entry is one dispatchable item derived from a resolved Plan: either a
// single Unit, a sequential Group of Units sharing one subprocess, or a
// WaitBarrier marker. Exactly one of Unit/Group is set when IsBarrier is
// false; a SleepHint never forms an Entry of its own but is carried in the
// SleepSeconds of the unit/group entry it precedes.
type Entry struct {
	Unit         *discovery.Unit   // set for a lone unit
	Group        *discovery.Group  // set for a sequential group
	IsBarrier    bool              // WaitBarrier: blocks until all prior entries complete
	SleepSeconds float64           // attached to the unit/group that follows
}

// ID returns the identifier dependents reference: the unit ID, or the
// group's ID for a grouped entry.
func (e *Entry) ID() string {
	if e.Group != nil {
		return e.Group.ID
	}
	if e.Unit != nil {
		return e.Unit.ID
	}
	return ""
}

// DependsOn returns the dependency names the entry must wait on.
func (e *Entry) DependsOn() []string {
	if e.Group != nil && len(e.Group.Members) > 0 {
		return e.Group.Members[0].DependsOn
	}
	if e.Unit != nil {
		return e.Unit.DependsOn
	}
	return nil
}

// BuildEntries turns a resolved Plan plus the discovery units it names into
// an ordered Entry list: a pending SleepHint attaches to the following
// unit/group, and consecutive ItemUnit entries sharing a non-empty GroupID
// are merged into one sequential Group.
func BuildEntries(p *plan.Plan, units map[string]*discovery.Unit) ([]*Entry, error) {
	var entries []*Entry
	var pendingSleep float64
	var openGroup *discovery.Group
	var groupSleep float64

	flushGroup := func() {
		if openGroup != nil {
			entries = append(entries, &Entry{Group: openGroup, SleepSeconds: groupSleep})
			openGroup = nil
		}
	}

	for _, item := range p.Items {
		switch item.Kind {
		case plan.ItemWaitBarrier:
			flushGroup()
			if pendingSleep != 0 {
				log.Printf("plan: #SLEEP %g before #WAIT has no unit to attach to, discarding", pendingSleep)
				pendingSleep = 0
			}
			entries = append(entries, &Entry{IsBarrier: true})
		case plan.ItemSleepHint:
			pendingSleep = item.SleepSeconds
		case plan.ItemUnit:
			unit, ok := units[item.Name]
			if !ok {
				return nil, fmt.Errorf("plan references unknown unit %q", item.Name)
			}
			deps := make([]string, 0, len(item.DependsOn))
			for _, name := range item.DependsOn {
				dep, ok := units[name]
				if !ok {
					return nil, fmt.Errorf("plan: %q depends on unknown unit %q", item.Name, name)
				}
				deps = append(deps, dep.ID)
			}
			unit.DependsOn = deps

			if item.GroupID == "" {
				flushGroup()
				entries = append(entries, &Entry{Unit: unit, SleepSeconds: pendingSleep})
				pendingSleep = 0
				continue
			}

			if openGroup != nil && openGroup.ID == item.GroupID {
				openGroup.Members = append(openGroup.Members, unit)
				if pendingSleep != 0 {
					groupSleep = pendingSleep
					pendingSleep = 0
				}
				continue
			}

			flushGroup()
			openGroup = &discovery.Group{ID: item.GroupID, Members: []*discovery.Unit{unit}}
			groupSleep = pendingSleep
			pendingSleep = 0
		}
	}
	flushGroup()

	return entries, nil
}
