package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/nathoo/condcore/engine/events"
)

// renderStatusBar produces a full-width inverted status line showing the
// ruleset title, the root verdict and the fact count.
func (m Model) renderStatusBar() string {
	defs := m.session.Engine.Defs()

	title := defs.Meta.Title
	if title == "" {
		title = "untitled"
	}
	left := " " + title

	if root := defs.Composites.RootKey(); root != "" {
		verdict := m.session.RootState()
		candidate := fmt.Sprintf("%s | %s: %s", left, root, verdictLabel(verdict))
		if lipgloss.Width(candidate) < m.width/2 || m.width == 0 {
			left = candidate
		} else {
			left = fmt.Sprintf("%s | %s", left, verdictLabel(verdict))
		}
	}

	right := fmt.Sprintf("Facts: %d | #%d ", m.session.Facts.Len(), len(m.session.History))
	if m.trace {
		right = "TRACE | " + right
	}

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 0 {
		gap = 0
	}

	bar := left + strings.Repeat(" ", gap) + right
	return styleStatusBar.Width(m.width).Render(bar)
}

func verdictLabel(s events.State) string {
	switch s {
	case events.True:
		return "TRUE"
	case events.False:
		return "FALSE"
	case events.Failed:
		return "ERROR"
	default:
		return "?"
	}
}
