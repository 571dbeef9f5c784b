package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Styles used throughout the TUI.
var (
	styleStatusBar = lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("252")).
			Bold(true)

	styleInputPrompt = lipgloss.NewStyle().
				Foreground(lipgloss.Color("34"))

	styleText = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255"))

	styleTrue = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	styleFalse = lipgloss.NewStyle().
			Foreground(lipgloss.Color("209"))

	styleTransition = lipgloss.NewStyle().
			Foreground(lipgloss.Color("228")).
			Bold(true)

	styleSkipped = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true)

	styleSystem = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	styleError = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	styleUserInput = lipgloss.NewStyle().
			Foreground(lipgloss.Color("34"))

	styleTrace = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))
)

// lineKind identifies the type of an output line for styling.
type lineKind int

const (
	kindText lineKind = iota
	kindTrue
	kindFalse
	kindTransition
	kindSkipped
	kindSystem
	kindError
	kindTrace
)

// classifyLine determines what kind of output line this is.
func classifyLine(line string) lineKind {
	switch {
	case strings.HasPrefix(line, "[trace]"):
		return kindTrace
	case strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]"):
		return kindSystem
	case strings.HasPrefix(line, "error: "), strings.Contains(line, ": error: "),
		strings.HasPrefix(line, "usage: "), strings.HasPrefix(line, "Unknown command"):
		return kindError
	case strings.Contains(line, " -> "):
		return kindTransition
	case strings.HasSuffix(line, "(skipped)"):
		return kindSkipped
	case strings.HasSuffix(line, "= true"):
		return kindTrue
	case strings.HasSuffix(line, "= false"):
		return kindFalse
	default:
		return kindText
	}
}

// renderLineKind applies the style for a given lineKind.
func renderLineKind(line string, kind lineKind) string {
	switch kind {
	case kindTrue:
		return styledVerdict(line, styleTrue)
	case kindFalse:
		return styledVerdict(line, styleFalse)
	case kindTransition:
		return styleTransition.Render(line)
	case kindSkipped:
		return styleSkipped.Render(line)
	case kindSystem:
		return styleSystem.Render(line)
	case kindError:
		return styleError.Render(line)
	case kindTrace:
		return styleTrace.Render(line)
	default:
		return styleText.Render(line)
	}
}

// styledVerdict renders "X = true" with only the verdict coloured.
func styledVerdict(line string, verdict lipgloss.Style) string {
	i := strings.LastIndex(line, "= ")
	if i < 0 {
		return verdict.Render(line)
	}
	return styleText.Render(line[:i+2]) + verdict.Render(line[i+2:])
}

// styledSystemMsg renders a system message in gray with brackets.
func styledSystemMsg(text string) string {
	return styleSystem.Render("[" + text + "]")
}
