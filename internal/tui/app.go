// Package tui provides a live terminal view over an orchestration run's
// event stream.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mkarras/foreman/internal/orchestrator"
)

// EventMsg wraps an orchestrator event for the TUI.
type EventMsg struct {
	Event orchestrator.Event
}

// StreamClosedMsg signals that the event stream has ended.
type StreamClosedMsg struct{}

// taskLine is one task's display state.
type taskLine struct {
	index  int
	role   string
	status string
	title  string
}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFC857"))
	roleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#45B7D1"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#96E6A1"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
	skipStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	hintStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#666666")).Italic(true)
)

// App is the bubbletea model rendering a run's progress.
type App struct {
	events  <-chan orchestrator.Event
	spin    spinner.Model
	goal    string
	tasks   []taskLine
	logs    []string
	summary string
	done    bool
	failed  bool
	width   int
}

// New creates a TUI over the given event stream.
func New(goal string, events <-chan orchestrator.Event) *App {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return &App{
		events: events,
		spin:   sp,
		goal:   goal,
		width:  80,
	}
}

// Init implements tea.Model.
func (a *App) Init() tea.Cmd {
	return tea.Batch(a.spin.Tick, a.waitForEvent())
}

// waitForEvent blocks on the next orchestrator event.
func (a *App) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-a.events
		if !ok {
			return StreamClosedMsg{}
		}
		return EventMsg{Event: ev}
	}
}

// Update implements tea.Model.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return a, tea.Quit
		}
	case tea.WindowSizeMsg:
		a.width = msg.Width
	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spin, cmd = a.spin.Update(msg)
		return a, cmd
	case EventMsg:
		a.apply(msg.Event)
		if a.done {
			return a, tea.Quit
		}
		return a, a.waitForEvent()
	case StreamClosedMsg:
		a.done = true
		return a, tea.Quit
	}
	return a, nil
}

// apply folds one orchestrator event into the display state.
func (a *App) apply(ev orchestrator.Event) {
	switch ev.Type {
	case orchestrator.EventPlanStarted:
		a.log("planning…")
	case orchestrator.EventWorkersGenerated:
		a.log("workers: " + ev.Message)
	case orchestrator.EventPlanCompleted:
		a.log(ev.Message)
	case orchestrator.EventTaskAssigned:
		a.tasks = append(a.tasks, taskLine{
			index:  ev.TaskIndex,
			role:   ev.Role,
			status: "running",
			title:  firstLine(ev.Message),
		})
	case orchestrator.EventTaskTool:
		a.log(fmt.Sprintf("%s → %s", ev.Role, ev.ToolName))
	case orchestrator.EventTaskCompleted:
		for i := range a.tasks {
			if a.tasks[i].index == ev.TaskIndex {
				a.tasks[i].status = ev.Status
			}
		}
	case orchestrator.EventSummarizeStarted:
		a.log("summarizing…")
	case orchestrator.EventSummarizeCompleted:
		a.summary = ev.Message
	case orchestrator.EventFinished:
		a.done = true
	case orchestrator.EventError:
		a.done = true
		a.failed = true
		if ev.Error != nil {
			a.log("error: " + ev.Error.Error())
		}
	}
}

func (a *App) log(line string) {
	a.logs = append(a.logs, line)
	if len(a.logs) > 8 {
		a.logs = a.logs[len(a.logs)-8:]
	}
}

// View implements tea.Model.
func (a *App) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("foreman") + " " + a.goal + "\n\n")

	for _, task := range a.tasks {
		marker := a.spin.View()
		switch task.status {
		case "success":
			marker = successStyle.Render("✓")
		case "error":
			marker = errorStyle.Render("✗")
		case "skipped":
			marker = skipStyle.Render("-")
		}
		fmt.Fprintf(&b, " %s %s %s\n", marker, roleStyle.Render(task.role), task.title)
	}

	if len(a.logs) > 0 {
		b.WriteString("\n")
		for _, line := range a.logs {
			b.WriteString(hintStyle.Render("  "+line) + "\n")
		}
	}

	if a.summary != "" {
		b.WriteString("\n" + a.summary + "\n")
	}
	if !a.done {
		b.WriteString("\n" + hintStyle.Render("press q to quit") + "\n")
	}

	return b.String()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
