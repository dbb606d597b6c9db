package watch

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/interpd/internal/events"
)

// Model is the main BubbleTea model for the watch TUI.
type Model struct {
	apiURL string
	apiKey string

	width  int
	height int

	// State
	status    statusMsg
	connected bool
	eventLog  []events.Event

	// Live indicators
	pulse Pulse

	workerTable table.Model
	theme       Theme

	// Communication
	hubEvents chan events.Event

	lastError string
}

// New creates a new watch TUI model.
func New(apiURL, apiKey string) *Model {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "ST", Width: 2},
			{Title: "Worker", Width: 8},
			{Title: "State", Width: 12},
			{Title: "Task", Width: 38},
		}),
		table.WithFocused(true),
		table.WithHeight(8),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	return &Model{
		apiURL:      apiURL,
		apiKey:      apiKey,
		eventLog:    make([]events.Event, 0),
		hubEvents:   make(chan events.Event, 100),
		pulse:       NewPulse(),
		workerTable: t,
		theme:       NewDefaultTheme(),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		subscribeToEvents(m.apiURL, m.apiKey, m.hubEvents),
		receiveNextEvent(m.hubEvents),
		func() tea.Msg { return fetchStatus(m.apiURL, m.apiKey) },
		tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) }),
		tea.EnterAltScreen,
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.workerTable.SetWidth(m.width - 6)

	case tickMsg:
		m.pulse.Decay()
		return m, tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })

	case eventMsg:
		e := events.Event(msg)

		// Newest first, capped.
		m.eventLog = append([]events.Event{e}, m.eventLog...)
		if len(m.eventLog) > 50 {
			m.eventLog = m.eventLog[:50]
		}

		switch e.Type {
		case events.TypeTaskCompleted, events.TypeTaskFailed:
			m.pulse.OnEvent()
		}

		m.connected = true
		m.lastError = ""
		return m, receiveNextEvent(m.hubEvents)

	case statusMsg:
		m.status = msg
		m.connected = true
		m.lastError = ""
		m.updateTable()
		return m, tea.Tick(2*time.Second, func(t time.Time) tea.Msg {
			return fetchStatus(m.apiURL, m.apiKey)
		})

	case sseDisconnectedMsg:
		m.connected = false
		m.lastError = "event stream disconnected, reconnecting..."
		return m, tea.Tick(3*time.Second, func(t time.Time) tea.Msg {
			return reconnectMsg{}
		})

	case reconnectMsg:
		return m, subscribeToEvents(m.apiURL, m.apiKey, m.hubEvents)

	case errMsg:
		m.lastError = msg.Error()
		return m, tea.Tick(5*time.Second, func(t time.Time) tea.Msg {
			return fetchStatus(m.apiURL, m.apiKey)
		})
	}

	m.workerTable, cmd = m.workerTable.Update(msg)
	return m, cmd
}

func (m *Model) updateTable() {
	rows := make([]table.Row, 0, len(m.status.Pool.Workers))
	for _, w := range m.status.Pool.Workers {
		sym := m.stateSymbol(w.State)
		task := "-"
		if w.Rid != "" {
			task = w.Rid
		}
		rows = append(rows, table.Row{sym, fmt.Sprintf("#%d", w.ID), w.State, task})
	}
	m.workerTable.SetRows(rows)
}

func (m Model) stateSymbol(state string) string {
	switch state {
	case "idle":
		return m.theme.StateIdle.Render("●")
	case "busy":
		return m.theme.StateBusy.Render("◉")
	case "crashed":
		return m.theme.StateCrashed.Render("∅")
	case "respawning", "starting":
		return m.theme.StateRespawning.Render("◑")
	case "terminating", "dead":
		return m.theme.StateDead.Render("◔")
	default:
		return "○"
	}
}

func (m Model) View() string {
	if m.width == 0 {
		return "Connecting to interpd..."
	}

	header := m.renderHeader()
	workers := m.theme.Border.Width(m.width - 4).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			m.theme.Title.Render("Workers"),
			m.workerTable.View(),
		),
	)
	eventsView := m.theme.Border.Width(m.width - 4).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			m.theme.Title.Render("Event Stream"),
			m.renderEvents(),
		),
	)

	var errBar string
	if m.lastError != "" {
		errBar = m.theme.StateCrashed.Render(fmt.Sprintf(" ⚠ %s", m.lastError))
	}

	help := m.theme.Dim.Render(" [q] Quit")

	parts := []string{header, workers, eventsView}
	if errBar != "" {
		parts = append(parts, errBar)
	}
	parts = append(parts, help)

	return lipgloss.NewStyle().Margin(1, 2).Render(
		lipgloss.JoinVertical(lipgloss.Left, parts...),
	)
}

func (m Model) renderHeader() string {
	conn := m.theme.StateIdle.Render("CONNECTED")
	if !m.connected {
		conn = m.theme.StateCrashed.Render("OFFLINE")
	}

	items := []string{
		fmt.Sprintf("Status: %s %s", conn, m.pulse.Render(m.theme)),
		fmt.Sprintf("Queue: %d", m.status.Pool.QueueDepth),
		fmt.Sprintf("Workers: %d/%d", len(m.status.Pool.Workers), m.status.Pool.MaxWorkers),
		m.renderHistory(),
	}

	cell := (m.width - 4) / len(items)
	rendered := make([]string, len(items))
	for i, item := range items {
		rendered[i] = lipgloss.NewStyle().Width(cell).Render(item)
	}

	return m.theme.Border.Width(m.width - 4).Render(
		lipgloss.JoinHorizontal(lipgloss.Top, rendered...),
	)
}

func (m Model) renderHistory() string {
	if m.status.History == nil {
		return "Tasks: -"
	}
	return fmt.Sprintf("Tasks: %d ok / %d failed",
		m.status.History.Succeeded, m.status.History.Failed)
}

func (m Model) renderEvents() string {
	var lines []string
	for i, e := range m.eventLog {
		if i >= 10 {
			break
		}
		ts := e.At.Format("15:04:05")
		lines = append(lines, fmt.Sprintf("%s | %-16s | %s", ts, e.Type, string(e.Data)))
	}
	if len(lines) == 0 {
		return "  No events yet..."
	}
	return lipgloss.NewStyle().Padding(0, 1).Render(strings.Join(lines, "\n"))
}
