package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/pabot-dev/pabot/internal/scheduler"
)

// DisplayConfig controls status output formatting
type DisplayConfig struct {
	Width          int  // Terminal width for progress bars
	UseColor       bool // Enable ANSI color codes
	ShowTimestamps bool // Include timestamps in output
}

// UnitDisplay represents one dispatched unit's display state.
type UnitDisplay struct {
	ID         string
	QueueIndex int
	Status     scheduler.UnitStatus
	Progress   float64 // 0.0 to 1.0
	Duration   time.Duration
	BlockedBy  []string // unit IDs blocking this unit
}

// StatusSymbol is the glyph rendered for a unit's current status.
type StatusSymbol string

const (
	SymbolComplete   StatusSymbol = "✓"
	SymbolInProgress StatusSymbol = "●"
	SymbolPending    StatusSymbol = "○"
	SymbolFailed     StatusSymbol = "✗"
	SymbolBlocked    StatusSymbol = "→"
)

// RenderProgressBar renders a progress bar of specified width
func RenderProgressBar(progress float64, width int) string {
	// Handle edge cases
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}

	// Calculate filled vs empty segments
	filled := int(progress * float64(width))
	empty := width - filled

	// Use Unicode block characters
	bar := strings.Repeat("█", filled) + strings.Repeat("░", empty)

	// Append percentage
	percent := int(progress * 100)
	return fmt.Sprintf("[%s] %3d%%", bar, percent)
}

// GetStatusSymbol returns the symbol for a unit status.
func GetStatusSymbol(status scheduler.UnitStatus) StatusSymbol {
	switch status {
	case scheduler.StatusComplete:
		return SymbolComplete
	case scheduler.StatusInProgress:
		return SymbolInProgress
	case scheduler.StatusFailed:
		return SymbolFailed
	case scheduler.StatusBlocked:
		return SymbolBlocked
	default:
		return SymbolPending
	}
}

// FormatUnitStatus formats a single unit's status line for display.
func FormatUnitStatus(unit *UnitDisplay, cfg DisplayConfig) string {
	var result strings.Builder

	symbol := GetStatusSymbol(unit.Status)
	progressBar := RenderProgressBar(unit.Progress, cfg.Width)
	result.WriteString(fmt.Sprintf(" %s [%d] %s %s (%s)", symbol, unit.QueueIndex, unit.ID, progressBar, unit.Status))
	if unit.Duration > 0 {
		result.WriteString(fmt.Sprintf(" %s", unit.Duration.Round(time.Millisecond)))
	}
	result.WriteString("\n")

	if len(unit.BlockedBy) > 0 {
		result.WriteString(fmt.Sprintf("   → blocked by: %s\n", strings.Join(unit.BlockedBy, ", ")))
	}

	return result.String()
}
