package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// UnitState tracks the dispatch state of a single in-flight unit.
type UnitState struct {
	ID         string
	QueueIndex int
	Phase      string
	PhaseIcon  string
	StartedAt  time.Time
}

// Model is the bubbletea model backing the dispatch board.
type Model struct {
	// Configuration
	TotalUnits int
	Processes  int
	Styles     Styles

	// State
	ActiveUnits    map[string]*UnitState
	CompletedUnits int
	FailedUnits    int
	BlockedUnits   int
	StartTime      time.Time
	LogLines       []string
	LogLimit       int
	ShowLogs       bool
	Width          int
	Height         int

	// Control
	Quitting bool
	Done     bool
}

// NewModel creates a dispatch-board model for a run of totalUnits units
// across the given worker process budget.
func NewModel(totalUnits, processes int) *Model {
	return &Model{
		TotalUnits:  totalUnits,
		Processes:   processes,
		Styles:      DefaultStyles(),
		ActiveUnits: make(map[string]*UnitState),
		StartTime:   time.Now(),
		LogLimit:    500,
	}
}

// Init implements tea.Model
func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
	)
}

// TickMsg is sent every second to update the timer
type TickMsg time.Time

// tickCmd returns a command that sends TickMsg every second
func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// DoneMsg signals the TUI should exit
type DoneMsg struct{}

// QuitMsg signals the user requested quit (q or Ctrl+C)
type QuitMsg struct{}

// RunStartedMsg carries the resolved unit count once discovery/planning
// completes, updating the board's total before any unit dispatches.
type RunStartedMsg struct {
	TotalUnits int
}

// UnitStartedMsg indicates a unit's worker subprocess was spawned.
type UnitStartedMsg struct {
	UnitID     string
	QueueIndex int
}

// UnitCompletedMsg indicates a unit's worker exited and the unit passed.
type UnitCompletedMsg struct {
	UnitID string
}

// UnitFailedMsg indicates a unit's worker exited with a failure, or the
// worker itself errored.
type UnitFailedMsg struct {
	UnitID string
	Error  string
}

// UnitBlockedMsg indicates a unit was skipped because a dependency failed.
type UnitBlockedMsg struct {
	UnitID string
}
