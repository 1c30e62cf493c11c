package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dgnsrekt/ttsproxy/internal/daemon"
	"github.com/dustin/go-humanize"
	runewidth "github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"
)

const (
	topRefresh     = time.Second
	topNameWidth   = 14
	topStateWidth  = 20
	topMaxPending  = 5
	topMinMsgWidth = 12
)

var topCmd = &cobra.Command{
	Use:   "top",
	Short: "Watch the queues live",
	Long:  paragraph(fmt.Sprintf("\n%s every instance's state and queue, refreshed each second. Select an instance to skip its current announcement or clear its queue.", keyword("Watch"))),
	Args:  cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		a := clientAddr()
		if _, err := tea.NewProgram(newTopModel(daemon.NewClient(a), a), tea.WithAltScreen()).Run(); err != nil {
			return fmt.Errorf("unable to run tui program: %w", err)
		}
		return nil
	},
}

// topClient is the part of daemon.Client the live view uses.
type topClient interface {
	Instances(ctx context.Context) ([]daemon.InstanceStatus, error)
	Skip(ctx context.Context, name string) (daemon.SkipResponse, error)
	Clear(ctx context.Context, name string) (int, error)
}

type (
	statusMsg struct {
		instances []daemon.InstanceStatus
		err       error
	}
	refreshMsg struct{}
	actionMsg  struct {
		note string
		err  error
	}
)

type topModel struct {
	client    topClient
	addr      string
	instances []daemon.InstanceStatus
	selected  int
	err       error
	note      string
	spinner   spinner.Model
	width     int
	now       func() time.Time
}

func newTopModel(c topClient, addr string) topModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(green)
	return topModel{
		client:  c,
		addr:    addr,
		spinner: sp,
		width:   80,
		now:     time.Now,
	}
}

func (m topModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.fetch)
}

func (m topModel) fetch() tea.Msg {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	all, err := m.client.Instances(ctx)
	return statusMsg{instances: all, err: err}
}

func (m topModel) selectedName() (string, bool) {
	if m.selected < 0 || m.selected >= len(m.instances) {
		return "", false
	}
	return m.instances[m.selected].Name, true
}

func (m topModel) skip(name string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		resp, err := m.client.Skip(ctx, name)
		if err != nil {
			return actionMsg{err: err}
		}
		if resp.Skipped == "" {
			return actionMsg{note: "nothing playing on " + name}
		}
		return actionMsg{note: "skipped " + shortID(resp.Skipped) + " on " + name}
	}
}

func (m topModel) clear(name string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		n, err := m.client.Clear(ctx, name)
		if err != nil {
			return actionMsg{err: err}
		}
		return actionMsg{note: fmt.Sprintf("cleared %d on %s", n, name)}
	}
}

func (m topModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "up", "k":
			if m.selected > 0 {
				m.selected--
			}
		case "down", "j":
			if m.selected < len(m.instances)-1 {
				m.selected++
			}
		case "s":
			if name, ok := m.selectedName(); ok {
				return m, m.skip(name)
			}
		case "c":
			if name, ok := m.selectedName(); ok {
				return m, m.clear(name)
			}
		}

	case statusMsg:
		m.err = msg.err
		if msg.err == nil {
			m.instances = msg.instances
			if m.selected >= len(m.instances) {
				m.selected = max(len(m.instances)-1, 0)
			}
		}
		return m, tea.Tick(topRefresh, func(time.Time) tea.Msg { return refreshMsg{} })

	case refreshMsg:
		return m, m.fetch

	case actionMsg:
		m.note, m.err = msg.note, msg.err

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m topModel) View() string {
	var b strings.Builder
	now := m.now()

	b.WriteString(bright("ttsproxy") + faint(" · "+m.addr) + "\n\n")

	if len(m.instances) == 0 && m.err == nil {
		b.WriteString(faint("  waiting for the daemon…") + "\n")
	}

	msgWidth := max(m.width-topNameWidth-topStateWidth-22, topMinMsgWidth)
	for i, st := range m.instances {
		cursor := "  "
		if i == m.selected {
			cursor = keyword("> ")
		}

		icon := " "
		current := faint("-")
		if st.Current != nil {
			icon = m.spinner.View()
			current = runewidth.Truncate(st.Current.Message, msgWidth, "…")
		}

		name := runewidth.FillRight(runewidth.Truncate(st.Name, topNameWidth, "…"), topNameWidth)
		state := stateStyle(runewidth.FillRight(st.State, topStateWidth))
		fmt.Fprintf(&b, "%s%s %s %s %3d queued  %s\n", cursor, icon, bright(name), state, st.QueueSize, current)

		if i != m.selected {
			continue
		}
		for j, a := range st.Pending {
			if j == topMaxPending {
				fmt.Fprintf(&b, "      %s\n", faint(fmt.Sprintf("… %d more", len(st.Pending)-topMaxPending)))
				break
			}
			line := fmt.Sprintf("p%-3d %s", a.Priority, runewidth.Truncate(a.Message, msgWidth+topStateWidth, "…"))
			fmt.Fprintf(&b, "      %s %s\n", line, faint(humanize.RelTime(a.EnqueuedAt, now, "ago", "from now")))
		}
		if f := st.LastFinished; f != nil {
			fmt.Fprintf(&b, "      %s\n", faint(fmt.Sprintf("last: %s, %s", f.Outcome, humanize.RelTime(f.FinishedAt, now, "ago", "from now"))))
		}
	}

	b.WriteString("\n")
	switch {
	case m.err != nil:
		b.WriteString(warning("  "+m.err.Error()) + "\n")
	case m.note != "":
		b.WriteString(keyword("  "+m.note) + "\n")
	}
	b.WriteString(faint("  ↑/↓ select • s skip • c clear • q quit"))
	return b.String()
}
