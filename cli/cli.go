// Package cli provides terminal I/O, output formatting, and meta-command
// dispatch for the condition inspector.
package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/nathoo/condcore/engine"
	"github.com/nathoo/condcore/engine/save"
	"github.com/nathoo/condcore/types"
)

// CLI runs an inspector session over a line-oriented terminal.
type CLI struct {
	Session   *engine.Session
	In        io.Reader
	Out       io.Writer
	SaveDir   string
	Trace     bool
	EchoInput bool // echo each input line after the prompt (for script playback)
	// Reload, when set, backs the /reload command.
	Reload  func() error
	lastCmd string // for "again"/"g" repeat
}

// New creates a CLI wired to the given session.
func New(s *engine.Session) *CLI {
	home, _ := os.UserHomeDir()
	return &CLI{
		Session: s,
		In:      os.Stdin,
		Out:     os.Stdout,
		SaveDir: filepath.Join(home, ".condcore", "facts"),
	}
}

// Run prints the ruleset header and root verdict, then loops:
// prompt, input, dispatch, output.
func (c *CLI) Run() {
	meta := c.Session.Engine.Defs().Meta
	if meta.Title != "" {
		c.printLine(header(meta))
		c.printLine("")
	}
	c.printResult(c.Session.Status())

	scanner := bufio.NewScanner(c.In)
	for {
		c.print("> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		// Skip comment lines (for script files).
		if strings.HasPrefix(input, "#") {
			continue
		}
		if c.EchoInput {
			c.printLine(input)
		}

		if strings.HasPrefix(input, "/") {
			if c.handleMeta(input) {
				return // /quit
			}
			continue
		}

		lower := strings.ToLower(input)
		if lower == "again" || lower == "g" {
			if c.lastCmd == "" {
				c.printLine("Nothing to repeat.")
				continue
			}
			input = c.lastCmd
		} else {
			c.lastCmd = input
		}

		result := c.Session.Step(input)
		c.printResult(result)

		if c.Trace {
			c.printTrace(result)
		}
	}
}

func header(meta types.RulesetMeta) string {
	h := meta.Title
	if meta.Author != "" {
		h += " by " + meta.Author
	}
	if meta.Version != "" {
		h += " (v" + meta.Version + ")"
	}
	return h
}

// handleMeta dispatches meta-commands. Returns true if the session should exit.
func (c *CLI) handleMeta(input string) bool {
	parts := strings.Fields(input)
	cmd := parts[0]
	var arg string
	if len(parts) > 1 {
		arg = parts[1]
	}

	switch cmd {
	case "/quit", "/exit":
		c.printSystem("Goodbye.")
		return true

	case "/save":
		c.cmdSave(arg)

	case "/load":
		c.cmdLoad(arg)

	case "/reload":
		c.cmdReload()

	case "/help":
		c.cmdHelp()

	case "/state":
		c.cmdState()

	case "/history":
		for i, line := range c.Session.History {
			c.printLine(fmt.Sprintf("%3d  %s", i+1, line))
		}

	case "/trace":
		c.Trace = !c.Trace
		if c.Trace {
			c.printSystem("Trace output enabled.")
		} else {
			c.printSystem("Trace output disabled.")
		}

	default:
		c.printSystem(fmt.Sprintf("Unknown command: %s. Type /help for available commands.", cmd))
	}

	return false
}

func (c *CLI) cmdSave(name string) {
	if name == "" {
		name = "quicksave"
	}

	data, err := save.Save(c.Session.Facts, c.Session.Engine.Defs(), c.Session.History)
	if err != nil {
		c.printSystem(fmt.Sprintf("Save failed: %v", err))
		return
	}

	if err := os.MkdirAll(c.SaveDir, 0o755); err != nil {
		c.printSystem(fmt.Sprintf("Save failed: %v", err))
		return
	}

	path := filepath.Join(c.SaveDir, name+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		c.printSystem(fmt.Sprintf("Save failed: %v", err))
		return
	}

	c.printSystem(fmt.Sprintf("Facts saved to %s.", name))
}

func (c *CLI) cmdLoad(name string) {
	if name == "" {
		name = "quicksave"
	}

	path := filepath.Join(c.SaveDir, name+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		c.printSystem(fmt.Sprintf("Load failed: %v", err))
		return
	}

	sd, err := save.Load(data)
	if err != nil {
		c.printSystem(fmt.Sprintf("Load failed: %v", err))
		return
	}

	save.ApplySave(c.Session.Facts, sd)
	c.Session.Rewatch()
	c.printSystem(fmt.Sprintf("Facts loaded from %s (%d facts).", name, c.Session.Facts.Len()))

	c.printResult(c.Session.Status())
}

func (c *CLI) cmdReload() {
	if c.Reload == nil {
		c.printSystem("Reload is not available.")
		return
	}
	if err := c.Reload(); err != nil {
		c.printSystem(fmt.Sprintf("Reload failed: %v", err))
		return
	}
	c.Session.Rewatch()
	defs := c.Session.Engine.Defs()
	c.printSystem(fmt.Sprintf("Ruleset reloaded (%d atoms, %d composites).",
		defs.Atoms.Len(), defs.Composites.Len()))
}

func (c *CLI) cmdHelp() {
	help := []string{
		"System:",
		"  /save [name]  Save facts (default: quicksave)",
		"  /load [name]  Load facts (default: quicksave)",
		"  /reload       Reload the ruleset from disk",
		"  /history      Show the command history",
		"  /quit         Exit",
		"  /help         Show this help",
		"  /state        Show ruleset and session state",
		"  /trace        Toggle trace output",
		"",
		"Inspector commands:",
		"  again (g)     Repeat your last command",
	}
	for _, line := range append(help, engine.HelpText[1:]...) {
		c.printLine(line)
	}
}

func (c *CLI) cmdState() {
	defs := c.Session.Engine.Defs()
	c.printSystem(fmt.Sprintf("Ruleset: %s", defs.Meta.Title))
	c.printSystem(fmt.Sprintf("Conditions: %d atoms, %d composites", defs.Atoms.Len(), defs.Composites.Len()))
	if root := defs.Composites.RootKey(); root != "" {
		c.printSystem(fmt.Sprintf("Root: %s = %s", root, c.Session.RootState()))
	}
	c.printSystem(fmt.Sprintf("Facts: %d", c.Session.Facts.Len()))
	c.printSystem(fmt.Sprintf("Commands: %d", len(c.Session.History)))
}

func (c *CLI) printTrace(result types.Result) {
	for _, line := range result.Trace {
		c.printSystem("[trace] " + line)
	}
	if len(result.Effects) > 0 {
		c.printSystem(fmt.Sprintf("[trace] Effects: %d", len(result.Effects)))
		for _, e := range result.Effects {
			c.printSystem(fmt.Sprintf("[trace]   %s %v", e.Type, e.Params))
		}
	}
	if len(result.Events) > 0 {
		c.printSystem(fmt.Sprintf("[trace] Events: %d", len(result.Events)))
		for _, e := range result.Events {
			c.printSystem(fmt.Sprintf("[trace]   %s", e.Type))
		}
	}
}

func (c *CLI) printResult(result types.Result) {
	for _, line := range result.Output {
		c.printLine(line)
	}
}

func (c *CLI) printLine(text string) {
	fmt.Fprintln(c.Out, text)
}

func (c *CLI) print(text string) {
	fmt.Fprint(c.Out, text)
}

func (c *CLI) printSystem(text string) {
	fmt.Fprintf(c.Out, "[%s]\n", text)
}
