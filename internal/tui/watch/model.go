package watch

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/banphlet/trigger.dev-rails/internal/events"
	"github.com/banphlet/trigger.dev-rails/internal/runs"
)

const eventLogSize = 30

// Model is the main BubbleTea model for the watch TUI: a table of recent
// runs on top, the live event stream below it.
type Model struct {
	apiURL string
	apiKey string

	width  int
	height int

	health    healthMsg
	connected bool
	runs      []*runs.Run
	eventLog  []events.Event
	lastError string

	table table.Model
	theme Theme

	hubEvents chan events.Event
}

// New creates a new watch TUI model.
func New(apiURL, apiKey string) *Model {
	columns := []table.Column{
		{Title: "Run", Width: 10},
		{Title: "Task", Width: 18},
		{Title: "Status", Width: 10},
		{Title: "Exit", Width: 5},
		{Title: "Started", Width: 20},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(12),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.Bold(true)
	t.SetStyles(styles)

	return &Model{
		apiURL:    apiURL,
		apiKey:    apiKey,
		table:     t,
		theme:     NewDefaultTheme(),
		eventLog:  make([]events.Event, 0, eventLogSize),
		hubEvents: make(chan events.Event, 100),
	}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		subscribeToEvents(m.apiURL, m.apiKey, m.hubEvents),
		receiveNextEvent(m.hubEvents),
		func() tea.Msg { return fetchHealth(m.apiURL, m.apiKey) },
		func() tea.Msg { return fetchRuns(m.apiURL, m.apiKey) },
		tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) }),
		tea.EnterAltScreen,
	)
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, func() tea.Msg { return fetchRuns(m.apiURL, m.apiKey) }
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		return m, tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })

	case eventMsg:
		e := events.Event(msg)

		// Newest first.
		m.eventLog = append([]events.Event{e}, m.eventLog...)
		if len(m.eventLog) > eventLogSize {
			m.eventLog = m.eventLog[:eventLogSize]
		}

		m.connected = true
		m.lastError = ""

		cmds := []tea.Cmd{receiveNextEvent(m.hubEvents)}
		// A lifecycle transition changes the run table.
		if e.Type == events.TypeRunStarted || e.Type == events.TypeRunFinished {
			cmds = append(cmds, func() tea.Msg { return fetchRuns(m.apiURL, m.apiKey) })
		}
		return m, tea.Batch(cmds...)

	case runsMsg:
		m.runs = msg
		m.table.SetRows(runRows(msg))

	case healthMsg:
		m.health = msg
		m.connected = true
		m.lastError = ""
		return m, tea.Tick(5*time.Second, func(t time.Time) tea.Msg {
			return fetchHealth(m.apiURL, m.apiKey)
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
			return fetchHealth(m.apiURL, m.apiKey)
		})
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m *Model) View() string {
	if m.width == 0 {
		return "Connecting..."
	}

	header := m.renderHeader()
	runTable := m.theme.Border.Render(m.table.View())
	eventStream := m.renderEventStream()

	var errBar string
	if m.lastError != "" {
		errBar = m.theme.StatusFailed.Render(fmt.Sprintf(" ⚠ %s", m.lastError))
	}

	help := m.theme.Dim.Render(" [q] Quit • [r] Refresh • [↑/↓] Navigate")

	parts := []string{header, runTable, eventStream}
	if errBar != "" {
		parts = append(parts, errBar)
	}
	parts = append(parts, help)

	return lipgloss.NewStyle().Margin(1, 2).Render(
		lipgloss.JoinVertical(lipgloss.Left, parts...),
	)
}

func (m *Model) renderHeader() string {
	conn := m.theme.StatusFailed.Render("●")
	if m.connected {
		conn = m.theme.StatusOK.Render("●")
	}

	title := m.theme.Title.Render("triggerhost watch")
	status := m.theme.Dim.Render(fmt.Sprintf("uptime %ds • %d tasks",
		m.health.UptimeSeconds, m.health.TasksConfigured))

	return lipgloss.JoinHorizontal(lipgloss.Center, conn, " ", title, "  ", status)
}

func (m *Model) renderEventStream() string {
	lines := make([]string, 0, len(m.eventLog)+1)
	lines = append(lines, m.theme.Header.Render("Events"))

	max := len(m.eventLog)
	if max > 8 {
		max = 8
	}
	for _, e := range m.eventLog[:max] {
		stamp := m.theme.Dim.Render(e.At.Format("15:04:05"))
		line := fmt.Sprintf("%s  %s  %s", stamp, m.styleEventType(e.Type), shortRunID(e.RunID))
		lines = append(lines, line)
	}
	if len(m.eventLog) == 0 {
		lines = append(lines, m.theme.Dim.Render("  (no events yet)"))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (m *Model) styleEventType(t string) string {
	switch t {
	case events.TypeRunFinished:
		return m.theme.StatusOK.Render(t)
	case events.TypeRunStarted:
		return m.theme.StatusRunning.Render(t)
	default:
		return m.theme.Highlight.Render(t)
	}
}

func runRows(list []*runs.Run) []table.Row {
	rows := make([]table.Row, 0, len(list))
	for _, r := range list {
		exit := "-"
		if r.ExitCode != nil {
			exit = fmt.Sprintf("%d", *r.ExitCode)
		}
		rows = append(rows, table.Row{
			shortRunID(r.ID),
			r.Task,
			string(r.Status),
			exit,
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
		})
	}
	return rows
}

func shortRunID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
