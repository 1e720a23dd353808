package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/pabot-dev/pabot/internal/events"
)

// Bridge connects the run's event bus to the bubbletea program, translating
// domain events into tea.Msg values the dispatch board understands.
type Bridge struct {
	program *tea.Program
}

// NewBridge creates a new bridge for the given program.
func NewBridge(program *tea.Program) *Bridge {
	return &Bridge{
		program: program,
	}
}

// Handler returns an event handler suitable for events.Bus.Subscribe.
func (b *Bridge) Handler() events.Handler {
	return func(evt events.Event) {
		msg := b.eventToMsg(evt)
		if msg != nil {
			b.program.Send(msg)
		}
	}
}

// eventToMsg converts an events.Event to a tea.Msg, or nil if the event
// type has no board representation.
func (b *Bridge) eventToMsg(evt events.Event) tea.Msg {
	switch evt.Type {
	case events.RunStarted:
		totalUnits := 0
		if payload, ok := evt.Payload.(map[string]any); ok {
			if t, ok := payload["unit_count"].(int); ok {
				totalUnits = t
			}
		}
		return RunStartedMsg{
			TotalUnits: totalUnits,
		}

	case events.UnitStarted, events.WorkerSpawned:
		queueIndex := 0
		if evt.QueueIndex != nil {
			queueIndex = *evt.QueueIndex
		}
		return UnitStartedMsg{
			UnitID:     evt.Unit,
			QueueIndex: queueIndex,
		}

	case events.UnitCompleted:
		return UnitCompletedMsg{
			UnitID: evt.Unit,
		}

	case events.UnitFailed, events.UnitTimedOut:
		return UnitFailedMsg{
			UnitID: evt.Unit,
			Error:  evt.Error,
		}

	case events.UnitBlocked:
		return UnitBlockedMsg{
			UnitID: evt.Unit,
		}

	default:
		return nil
	}
}

// SendDone sends a DoneMsg to the program.
func (b *Bridge) SendDone() {
	b.program.Send(DoneMsg{})
}

// SendQuit sends a QuitMsg to the program.
func (b *Bridge) SendQuit() {
	b.program.Send(QuitMsg{})
}
