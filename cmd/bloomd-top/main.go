package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF00FF")).
			MarginLeft(2).
			MarginTop(1)

	statsBoxStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#00FF00")).
			Padding(1, 2).
			MarginRight(2)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000")).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			MarginTop(1).
			MarginLeft(2)
)

type keyMap struct {
	Refresh key.Binding
	Quit    key.Binding
	Up      key.Binding
	Down    key.Binding
}

var keys = keyMap{
	Refresh: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
	Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	Up:      key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("up/k", "up")),
	Down:    key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("down/j", "down")),
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Refresh, k.Up, k.Down, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

// filterRow is one line of the "list" reply: name probability bytesize capacity size.
type filterRow struct {
	Name        string
	Probability float64
	ByteSize    int64
	Capacity    int
	Size        uint64
}

type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(2*time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

type snapshotMsg struct {
	rows []filterRow
	err  error
}

func pollCmd(addr string) tea.Cmd {
	return func() tea.Msg {
		rows, err := fetchFilterList(addr)
		return snapshotMsg{rows: rows, err: err}
	}
}

// fetchFilterList dials addr, issues "list", and parses the START/END block
// bloomd's line protocol replies with.
func fetchFilterList(addr string) ([]filterRow, error) {
	conn, err := net.DialTimeout("tcp", addr, 3*time.Second)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", addr, err)
	}
	defer conn.Close()

	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))
	if _, err := conn.Write([]byte("list\n")); err != nil {
		return nil, fmt.Errorf("send list: %w", err)
	}

	reader := bufio.NewReader(conn)
	first, err := reader.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("read reply: %w", err)
	}
	if strings.TrimRight(first, "\r\n") != "START" {
		return nil, fmt.Errorf("unexpected reply: %q", first)
	}

	var rows []filterRow
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("read reply: %w", err)
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "END" {
			break
		}
		row, err := parseFilterRow(line)
		if err != nil {
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func parseFilterRow(line string) (filterRow, error) {
	fields := strings.Fields(line)
	if len(fields) != 5 {
		return filterRow{}, fmt.Errorf("malformed list row: %q", line)
	}
	prob, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return filterRow{}, err
	}
	byteSize, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return filterRow{}, err
	}
	capacity, err := strconv.Atoi(fields[3])
	if err != nil {
		return filterRow{}, err
	}
	size, err := strconv.ParseUint(fields[4], 10, 64)
	if err != nil {
		return filterRow{}, err
	}
	return filterRow{Name: fields[0], Probability: prob, ByteSize: byteSize, Capacity: capacity, Size: size}, nil
}

type model struct {
	addr      string
	tbl       table.Model
	help      help.Model
	keys      keyMap
	width     int
	startTime time.Time
	lastErr   error
	rowCount  int
}

func initialModel(addr string) model {
	columns := []table.Column{
		{Title: "Filter", Width: 24},
		{Title: "Probability", Width: 12},
		{Title: "Bytes", Width: 12},
		{Title: "Capacity", Width: 12},
		{Title: "Size", Width: 10},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(15),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("#00FFFF")).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("#FFFFFF")).
		Background(lipgloss.Color("#FF00FF")).
		Bold(false)
	t.SetStyles(s)

	return model{
		addr:      addr,
		tbl:       t,
		help:      help.New(),
		keys:      keys,
		startTime: time.Now(),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(pollCmd(m.addr), tickCmd())
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width

	case tickMsg:
		return m, tea.Batch(pollCmd(m.addr), tickCmd())

	case snapshotMsg:
		m.lastErr = msg.err
		if msg.err == nil {
			m.rowCount = len(msg.rows)
			m.tbl.SetRows(rowsToTable(msg.rows))
		}

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Refresh):
			return m, pollCmd(m.addr)
		}
	}

	var cmd tea.Cmd
	m.tbl, cmd = m.tbl.Update(msg)
	return m, cmd
}

func rowsToTable(rows []filterRow) []table.Row {
	out := make([]table.Row, 0, len(rows))
	for _, r := range rows {
		out = append(out, table.Row{
			r.Name,
			fmt.Sprintf("%.2e", r.Probability),
			fmt.Sprintf("%d", r.ByteSize),
			fmt.Sprintf("%d", r.Capacity),
			fmt.Sprintf("%d", r.Size),
		})
	}
	return out
}

func (m model) View() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render(fmt.Sprintf("bloomd-top — %s", m.addr)))
	s.WriteString("\n\n")

	s.WriteString(statsBoxStyle.Render(m.tbl.View()))
	s.WriteString("\n")

	uptime := time.Since(m.startTime).Round(time.Second)
	s.WriteString(fmt.Sprintf("filters: %d   uptime: %s", m.rowCount, uptime))

	if m.lastErr != nil {
		s.WriteString("\n\n")
		s.WriteString(errorStyle.Render("✗ " + m.lastErr.Error()))
	}

	s.WriteString("\n\n")
	s.WriteString(helpStyle.Render(m.help.ShortHelpView(m.keys.ShortHelp())))

	return s.String()
}

func main() {
	addr := flag.String("addr", "127.0.0.1:8673", "bloomd TCP address to poll")
	flag.Parse()

	p := tea.NewProgram(initialModel(*addr), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		log.Fatalf("bloomd-top: %v", err)
	}
}
