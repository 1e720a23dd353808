package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// Update implements tea.Model
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.Quitting = true
			return m, tea.Quit
		}

	case TickMsg:
		// Continue ticking for timer updates
		return m, tickCmd()

	case DoneMsg:
		m.Done = true
		return m, tea.Quit

	case QuitMsg:
		m.Quitting = true
		return m, tea.Quit

	case RunStartedMsg:
		m.TotalUnits = msg.TotalUnits

	case UnitStartedMsg:
		m.ActiveUnits[msg.UnitID] = &UnitState{
			ID:         msg.UnitID,
			QueueIndex: msg.QueueIndex,
			Phase:      "running",
			PhaseIcon:  IconActive,
			StartedAt:  time.Now(),
		}

	case UnitCompletedMsg:
		delete(m.ActiveUnits, msg.UnitID)
		m.CompletedUnits++

	case UnitFailedMsg:
		delete(m.ActiveUnits, msg.UnitID)
		m.FailedUnits++

	case UnitBlockedMsg:
		delete(m.ActiveUnits, msg.UnitID)
		m.BlockedUnits++

	case LogMsg:
		m.LogLines = append(m.LogLines, msg.Line)
		if m.LogLimit > 0 && len(m.LogLines) > m.LogLimit {
			m.LogLines = m.LogLines[len(m.LogLines)-m.LogLimit:]
		}
	}

	return m, nil
}
