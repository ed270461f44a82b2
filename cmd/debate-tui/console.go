package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/ashureev/debate-panel/internal/conversation"
	"github.com/ashureev/debate-panel/internal/domain"
)

var agentColors = map[string]*color.Color{
	"Business Promoter": color.New(color.FgGreen, color.Bold),
	"Critical Analyst":  color.New(color.FgRed, color.Bold),
	"Neutral Evaluator": color.New(color.FgCyan, color.Bold),
	"Market Researcher": color.New(color.FgYellow, color.Bold),
}

var (
	dim     = color.New(color.Faint)
	cyan    = color.New(color.FgCyan)
	green   = color.New(color.FgGreen)
	errText = color.New(color.FgRed)
)

// console reads operator commands and prints session updates.
type console struct {
	ctrl *conversation.Controller

	mu        sync.Mutex
	out       io.Writer
	sessionID string
	printed   int
	phase     domain.Phase
	lastErr   string
}

func newConsole(ctrl *conversation.Controller, out io.Writer) *console {
	return &console{ctrl: ctrl, out: out, phase: domain.PhaseStopped}
}

func (c *console) run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	lines := make(chan string)
	errCh := make(chan error, 1)

	go func() {
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			errCh <- err
			return
		}
		errCh <- io.EOF
	}()

	for {
		c.prompt()
		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		case line := <-lines:
			if quit := c.handle(ctx, strings.TrimSpace(line)); quit {
				return nil
			}
		}
	}
}

func (c *console) prompt() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if b := c.ctrl.Selected(); b != nil {
		fmt.Fprintf(c.out, "[%s]> ", b.Name)
		return
	}
	fmt.Fprint(c.out, "> ")
}

// handle executes one command line and reports whether the console should exit.
func (c *console) handle(ctx context.Context, input string) bool {
	if input == "" {
		return false
	}
	cmd, arg, _ := strings.Cut(input, " ")
	arg = strings.TrimSpace(arg)

	var err error
	switch cmd {
	case "/quit", "/exit", "/q":
		return true
	case "/help":
		c.printHelp()
	case "/businesses":
		err = c.listBusinesses(ctx)
	case "/use":
		err = c.use(ctx, arg)
	case "/start":
		err = c.ctrl.StartSelected(ctx)
	case "/pause":
		err = c.ctrl.Pause(ctx)
	case "/resume":
		err = c.ctrl.Resume(ctx)
	case "/stop":
		err = c.ctrl.Stop(ctx)
	case "/reset":
		c.ctrl.Reset()
		c.printf(green, "Session cleared\n")
	case "/status":
		c.printStatus()
	case "/agents":
		c.printAgents()
	default:
		c.printf(errText, "Unknown command %q, try /help\n", cmd)
	}
	if err != nil {
		c.printf(errText, "[error] %v\n", err)
	}
	return false
}

func (c *console) listBusinesses(ctx context.Context) error {
	list, err := c.ctrl.LoadBusinesses(ctx)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		c.printf(dim, "No businesses available\n")
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, b := range list {
		cyan.Fprintf(c.out, "  %-6s", b.ID)
		fmt.Fprintf(c.out, " %s", b.Name)
		if b.IndustryCategory != "" {
			dim.Fprintf(c.out, " (%s)", b.IndustryCategory)
		}
		fmt.Fprintln(c.out)
	}
	return nil
}

func (c *console) use(ctx context.Context, id string) error {
	if len(c.ctrl.Businesses()) == 0 {
		if _, err := c.ctrl.LoadBusinesses(ctx); err != nil {
			return err
		}
	}
	b, err := c.ctrl.Select(id)
	if err != nil {
		return err
	}
	if b == nil {
		c.printf(green, "Cleared business selection\n")
		return nil
	}
	c.printf(green, "Now using %s\n", b.Name)
	return nil
}

func (c *console) printStatus() {
	snap := c.ctrl.Snapshot()
	c.mu.Lock()
	defer c.mu.Unlock()

	id := snap.ID
	if id == "" {
		id = "-"
	}
	fmt.Fprintf(c.out, "  session:  %s\n", id)
	fmt.Fprintf(c.out, "  phase:    %s\n", snap.Phase)
	fmt.Fprintf(c.out, "  round:    %d\n", snap.Round)
	fmt.Fprintf(c.out, "  messages: %d (%d loaded)\n", snap.MessageCount, len(snap.Messages))
	if snap.Business != nil {
		fmt.Fprintf(c.out, "  business: %s\n", snap.Business.Name)
	}
	if snap.Error != "" {
		errText.Fprintf(c.out, "  error:    %s\n", snap.Error)
	}
}

func (c *console) printAgents() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, a := range c.ctrl.Agents() {
		state := dim.Sprint("idle")
		if a.Active {
			state = green.Sprint("active")
		}
		agentColor(a.Name).Fprintf(c.out, "  %-18s", a.Name)
		fmt.Fprintf(c.out, " %-11s %s\n", a.Model, state)
	}
}

func (c *console) printHelp() {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprint(c.out, `Commands:
  /businesses      List businesses from the backend
  /use <id>        Select the business to promote (no id clears)
  /start           Start a conversation for the selected business
  /pause           Pause the running conversation
  /resume          Resume a paused conversation
  /stop            Stop the conversation (log is kept)
  /reset           Clear the local session
  /status          Show the session state
  /agents          Show the agent roster
  /quit            Exit
`)
}

// watch prints new messages and phase changes until ctx is done.
func (c *console) watch(ctx context.Context) {
	updates, _ := c.ctrl.Subscribe(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			c.render(snap)
		}
	}
}

func (c *console) render(snap domain.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if snap.ID != c.sessionID {
		c.sessionID = snap.ID
		c.printed = 0
	}
	if len(snap.Messages) < c.printed {
		c.printed = len(snap.Messages)
	}
	for _, m := range snap.Messages[c.printed:] {
		fmt.Fprintln(c.out)
		agentColor(m.AgentName).Fprintf(c.out, "%s", m.AgentName)
		dim.Fprintf(c.out, " %s\n", m.Timestamp.Local().Format("15:04:05"))
		fmt.Fprintln(c.out, m.Content)
	}
	c.printed = len(snap.Messages)

	if snap.Phase != c.phase {
		c.phase = snap.Phase
		cyan.Fprintf(c.out, "\n-- conversation %s (round %d) --\n", snap.Phase, snap.Round)
	}
	if snap.Error != c.lastErr {
		c.lastErr = snap.Error
		if snap.Error != "" {
			errText.Fprintf(c.out, "[error] %s\n", snap.Error)
		}
	}
}

func (c *console) printf(col *color.Color, format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	col.Fprintf(c.out, format, args...)
}

func agentColor(name string) *color.Color {
	if col, ok := agentColors[name]; ok {
		return col
	}
	return color.New(color.FgWhite, color.Bold)
}
