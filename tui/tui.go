package tui

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/nathoo/condcore/engine"
	"github.com/nathoo/condcore/engine/save"
	"github.com/nathoo/condcore/types"
)

// rawLine stores an unstyled output line with its classification,
// so we can re-wrap and re-style when the terminal is resized.
type rawLine struct {
	text     string
	kind     lineKind
	isInput  bool // true for echoed user input
	isSystem bool // true for system messages
}

// Model is the Bubble Tea model for the condition inspector.
type Model struct {
	session *engine.Session
	reload  func() error

	viewport viewport.Model
	input    textinput.Model
	history  *History

	rawLines []rawLine // accumulated output lines (unstyled, for re-wrapping)

	width    int
	height   int
	ready    bool
	trace    bool
	quitting bool
	lastCmd  string
	saveDir  string
}

// outputMsg carries session output into the Update loop.
type outputMsg struct {
	input    string   // echoed user input (empty for the banner)
	lines    []string // output lines
	isSystem bool     // true for meta-command output
}

// ReloadedMsg tells the model the ruleset was reloaded outside the UI, for
// example by a file watcher. Err is set when the reload failed.
type ReloadedMsg struct {
	Err error
}

// New creates a TUI model wired to the given session. reload backs the
// /reload command and may be nil.
func New(s *engine.Session, reload func() error) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Focus()
	ti.CharLimit = 256
	ti.PromptStyle = styleInputPrompt

	home, _ := os.UserHomeDir()
	return Model{
		session: s,
		reload:  reload,
		input:   ti,
		history: NewHistory(100),
		saveDir: filepath.Join(home, ".condcore", "facts"),
	}
}

// WithTrace returns a copy of m with trace output switched on or off.
func (m Model) WithTrace(on bool) Model {
	m.trace = on
	return m
}

// NewProgram wraps m in a full-screen Bubble Tea program. Callers may use
// the program's Send to deliver ReloadedMsg.
func NewProgram(m Model) *tea.Program {
	return tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
}

// Run starts the Bubble Tea program and blocks until the user quits.
func Run(s *engine.Session, reload func() error) error {
	_, err := NewProgram(New(s, reload)).Run()
	return err
}

// Init returns the initial command that prints the banner and root verdict.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.initialOutput())
}

func (m Model) initialOutput() tea.Cmd {
	return func() tea.Msg {
		meta := m.session.Engine.Defs().Meta
		var lines []string
		if meta.Title != "" {
			banner := meta.Title
			if meta.Version != "" {
				banner += " v" + meta.Version
			}
			if meta.Author != "" {
				banner += " by " + meta.Author
			}
			lines = append(lines, banner, "")
		}
		lines = append(lines, m.session.Status().Output...)
		return outputMsg{lines: lines}
	}
}

// Update handles messages (key presses, window resize, session output).
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		vpHeight := m.height - 2 // 1 status bar + 1 input line
		if vpHeight < 1 {
			vpHeight = 1
		}

		if !m.ready {
			m.viewport = viewport.New(m.width, vpHeight)
			m.viewport.KeyMap = viewportKeyMap()
			m.ready = true
		} else {
			m.viewport.Width = m.width
			m.viewport.Height = vpHeight
		}

		m.refreshViewport()

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.quitting = true
			return m, tea.Quit

		case "enter":
			return m.handleEnter()

		case "up":
			if prev, ok := m.history.Prev(); ok {
				m.input.SetValue(prev)
				m.input.CursorEnd()
			}
			return m, nil

		case "down":
			if next, ok := m.history.Next(); ok {
				m.input.SetValue(next)
				m.input.CursorEnd()
			} else {
				m.input.SetValue("")
				m.history.ResetCursor()
			}
			return m, nil

		case "pgup", "pgdown":
			var vpCmd tea.Cmd
			m.viewport, vpCmd = m.viewport.Update(msg)
			return m, vpCmd
		}

	case outputMsg:
		m = m.appendOutput(msg)

	case ReloadedMsg:
		m = m.appendOutput(outputMsg{lines: m.reloaded(msg.Err), isSystem: true})
		return m, nil
	}

	var inputCmd tea.Cmd
	m.input, inputCmd = m.input.Update(msg)
	cmds = append(cmds, inputCmd)

	return m, tea.Batch(cmds...)
}

// handleEnter processes the submitted input line.
func (m Model) handleEnter() (tea.Model, tea.Cmd) {
	input := strings.TrimSpace(m.input.Value())
	m.input.SetValue("")

	if input == "" {
		return m, nil
	}

	m.history.Push(input)
	m.history.ResetCursor()

	lower := strings.ToLower(input)
	if lower == "again" || lower == "g" {
		if m.lastCmd == "" {
			m = m.appendOutput(outputMsg{
				input: input, lines: []string{"Nothing to repeat."}, isSystem: true,
			})
			return m, nil
		}
		input = m.lastCmd
	} else {
		m.lastCmd = input
	}

	if strings.HasPrefix(input, "/") {
		output, quit := m.handleMeta(input)
		m = m.appendOutput(outputMsg{input: input, lines: output, isSystem: true})
		if quit {
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil
	}

	result := m.session.Step(input)
	output := result.Output
	if m.trace {
		output = append(output, formatTrace(result)...)
	}
	m = m.appendOutput(outputMsg{input: input, lines: output})
	return m, nil
}

// appendOutput adds lines to the transcript and refreshes the viewport.
func (m Model) appendOutput(msg outputMsg) Model {
	if msg.input != "" {
		m.rawLines = append(m.rawLines, rawLine{
			text: "> " + msg.input, isInput: true,
		})
	}

	for _, line := range msg.lines {
		rl := rawLine{text: line, isSystem: msg.isSystem}
		if !msg.isSystem {
			rl.kind = classifyLine(line)
		}
		m.rawLines = append(m.rawLines, rl)
	}

	// Blank line separator between commands.
	m.rawLines = append(m.rawLines, rawLine{})

	m.refreshViewport()

	return m
}

// refreshViewport re-wraps and re-styles all raw lines at the current width
// and updates the viewport content.
func (m *Model) refreshViewport() {
	if !m.ready {
		return
	}

	width := m.width
	if width < 10 {
		width = 10
	}

	var styled []string
	for _, rl := range m.rawLines {
		if rl.text == "" {
			styled = append(styled, "")
			continue
		}

		wrapped := wordWrap(rl.text, width)

		switch {
		case rl.isInput:
			styled = append(styled, styleUserInput.Render(wrapped))
		case rl.isSystem:
			styled = append(styled, styledSystemMsg(wrapped))
		default:
			styled = append(styled, renderLineKind(wrapped, rl.kind))
		}
	}

	m.viewport.SetContent(strings.Join(styled, "\n"))
	m.viewport.GotoBottom()
}

// wordWrap wraps text to fit within the given width, breaking at word
// boundaries. Leading indentation is kept on the first line so explain
// trees stay aligned.
func wordWrap(text string, width int) string {
	if width <= 0 || len(text) <= width {
		return text
	}

	indent := text[:len(text)-len(strings.TrimLeft(text, " "))]

	var result strings.Builder
	result.WriteString(indent)
	lineLen := len(indent)

	for i, word := range strings.Fields(text) {
		wLen := len(word)

		if i == 0 {
			result.WriteString(word)
			lineLen += wLen
			continue
		}

		if lineLen+1+wLen > width {
			result.WriteString("\n")
			result.WriteString(word)
			lineLen = wLen
		} else {
			result.WriteString(" ")
			result.WriteString(word)
			lineLen += 1 + wLen
		}
	}

	return result.String()
}

// View renders the full TUI layout: viewport + status bar + input.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return "Loading..."
	}

	return m.viewport.View() + "\n" + m.renderStatusBar() + "\n" + m.input.View()
}

// handleMeta dispatches meta-commands. Returns output lines and quit flag.
func (m *Model) handleMeta(input string) ([]string, bool) {
	parts := strings.Fields(input)
	cmd := parts[0]
	var arg string
	if len(parts) > 1 {
		arg = parts[1]
	}

	switch cmd {
	case "/quit", "/exit":
		return []string{"Goodbye."}, true

	case "/save":
		return m.cmdSave(arg), false

	case "/load":
		return m.cmdLoad(arg), false

	case "/reload":
		if m.reload == nil {
			return []string{"Reload is not available."}, false
		}
		return m.reloaded(m.reload()), false

	case "/help":
		return cmdHelp(), false

	case "/state":
		return m.cmdState(), false

	case "/trace":
		m.trace = !m.trace
		if m.trace {
			return []string{"Trace output enabled."}, false
		}
		return []string{"Trace output disabled."}, false

	default:
		return []string{fmt.Sprintf("Unknown command: %s. Type /help for available commands.", cmd)}, false
	}
}

// reloaded re-baselines the root verdict after a reload attempt.
func (m *Model) reloaded(err error) []string {
	if err != nil {
		return []string{fmt.Sprintf("Reload failed: %v", err)}
	}
	m.session.Rewatch()
	defs := m.session.Engine.Defs()
	return []string{fmt.Sprintf("Ruleset reloaded (%d atoms, %d composites).",
		defs.Atoms.Len(), defs.Composites.Len())}
}

func (m *Model) cmdSave(name string) []string {
	if name == "" {
		name = "quicksave"
	}

	data, err := save.Save(m.session.Facts, m.session.Engine.Defs(), m.session.History)
	if err != nil {
		return []string{fmt.Sprintf("Save failed: %v", err)}
	}

	if err := os.MkdirAll(m.saveDir, 0o755); err != nil {
		return []string{fmt.Sprintf("Save failed: %v", err)}
	}

	path := filepath.Join(m.saveDir, name+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return []string{fmt.Sprintf("Save failed: %v", err)}
	}

	return []string{fmt.Sprintf("Facts saved to %s.", name)}
}

func (m *Model) cmdLoad(name string) []string {
	if name == "" {
		name = "quicksave"
	}

	path := filepath.Join(m.saveDir, name+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		return []string{fmt.Sprintf("Load failed: %v", err)}
	}

	sd, err := save.Load(data)
	if err != nil {
		return []string{fmt.Sprintf("Load failed: %v", err)}
	}

	save.ApplySave(m.session.Facts, sd)
	m.session.Rewatch()

	output := []string{fmt.Sprintf("Facts loaded from %s (%d facts).", name, m.session.Facts.Len())}
	return append(output, m.session.Status().Output...)
}

func cmdHelp() []string {
	help := []string{
		"System:",
		"  /save [name]  Save facts (default: quicksave)",
		"  /load [name]  Load facts (default: quicksave)",
		"  /reload       Reload the ruleset from disk",
		"  /quit         Exit",
		"  /help         Show this help",
		"  /state        Show ruleset and session state",
		"  /trace        Toggle trace output",
		"",
		"Inspector commands:",
		"  again (g)     Repeat your last command",
	}
	help = append(help, engine.HelpText[1:]...)
	return append(help, "", "Navigation: PgUp/PgDn to scroll, Up/Down for command history")
}

func (m *Model) cmdState() []string {
	defs := m.session.Engine.Defs()
	output := []string{
		fmt.Sprintf("Ruleset: %s", defs.Meta.Title),
		fmt.Sprintf("Conditions: %d atoms, %d composites", defs.Atoms.Len(), defs.Composites.Len()),
	}
	if root := defs.Composites.RootKey(); root != "" {
		output = append(output, fmt.Sprintf("Root: %s = %s", root, m.session.RootState()))
	}
	return append(output,
		fmt.Sprintf("Facts: %d", m.session.Facts.Len()),
		fmt.Sprintf("Commands: %d", len(m.session.History)),
	)
}

func formatTrace(result types.Result) []string {
	var lines []string
	for _, t := range result.Trace {
		lines = append(lines, "[trace] "+t)
	}
	if len(result.Effects) > 0 {
		lines = append(lines, fmt.Sprintf("[trace] Effects: %d", len(result.Effects)))
		for _, e := range result.Effects {
			lines = append(lines, fmt.Sprintf("[trace]   %s %v", e.Type, e.Params))
		}
	}
	if len(result.Events) > 0 {
		lines = append(lines, fmt.Sprintf("[trace] Events: %d", len(result.Events)))
		for _, e := range result.Events {
			lines = append(lines, fmt.Sprintf("[trace]   %s", e.Type))
		}
	}
	return lines
}

// viewportKeyMap returns a viewport keymap with Up/Down disabled
// (we use those for input history).
func viewportKeyMap() viewport.KeyMap {
	return viewport.KeyMap{
		PageDown:     key.NewBinding(key.WithKeys("pgdown")),
		PageUp:       key.NewBinding(key.WithKeys("pgup")),
		HalfPageDown: key.NewBinding(key.WithKeys("ctrl+d")),
		HalfPageUp:   key.NewBinding(key.WithKeys("ctrl+u")),
		Up:           key.NewBinding(key.WithDisabled()),
		Down:         key.NewBinding(key.WithDisabled()),
	}
}
