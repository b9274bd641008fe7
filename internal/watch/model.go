package watch

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"posture-monitor/internal/models"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Opener 打开事件流（StreamClient）
type Opener interface {
	Open(ctx context.Context, target Target) (*EventStream, error)
}

type openedMsg struct{ stream *EventStream }
type eventMsg struct{ event models.StreamEvent }
type endMsg struct{ err error }

// Model 终端监测界面
type Model struct {
	ctx           context.Context
	cancel        context.CancelFunc
	opener        Opener
	target        Target
	holdThreshold float64

	stream *EventStream
	state  State
	width  int
}

// NewModel holdThreshold 仅用于着色
func NewModel(opener Opener, target Target, holdThreshold float64) Model {
	ctx, cancel := context.WithCancel(context.Background())
	return Model{
		ctx:           ctx,
		cancel:        cancel,
		opener:        opener,
		target:        target,
		holdThreshold: holdThreshold,
	}
}

func (m Model) Init() tea.Cmd {
	return openStream(m.ctx, m.opener, m.target)
}

func openStream(ctx context.Context, opener Opener, target Target) tea.Cmd {
	return func() tea.Msg {
		stream, err := opener.Open(ctx, target)
		if err != nil {
			return endMsg{err: err}
		}
		return openedMsg{stream: stream}
	}
}

func nextEvent(stream *EventStream) tea.Cmd {
	return func() tea.Msg {
		ev, err := stream.Next()
		if err == io.EOF {
			return endMsg{}
		}
		if err != nil {
			return endMsg{err: err}
		}
		return eventMsg{event: ev}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.shutdown()
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case openedMsg:
		m.stream = msg.stream
		return m, nextEvent(m.stream)
	case eventMsg:
		m.state.Apply(msg.event, time.Now())
		if m.state.Done {
			m.closeStream()
			return m, nil
		}
		return m, nextEvent(m.stream)
	case endMsg:
		m.state.Finish(msg.err)
		m.closeStream()
	}
	return m, nil
}

func (m *Model) closeStream() {
	if m.stream != nil {
		m.stream.Close()
		m.stream = nil
	}
}

func (m *Model) shutdown() {
	m.cancel()
	m.closeStream()
}

// State 当前界面状态
func (m Model) State() State {
	return m.state
}

func (m Model) View() string {
	var b strings.Builder

	title := titleStyle.Render("posture-watch") + "  " + labelStyle.Render(m.target.Describe())
	if m.target.PatientID != "" {
		title += "  " + valueStyle.Render(fmt.Sprintf("patient %s %s", m.target.PatientID, m.target.PatientName))
	}
	b.WriteString(title + "\n")

	b.WriteString(panelStyle.Render(m.renderStatus()) + "\n")
	if len(m.state.Alerts) > 0 {
		b.WriteString(alertPanelStyle.Render(m.renderAlerts()) + "\n")
	}

	switch {
	case m.state.Err != "":
		b.WriteString(critStyle.Render("stream ended: "+m.state.Err) + "\n")
	case m.state.Done:
		b.WriteString(okStyle.Render("stream finished") + "\n")
	}
	b.WriteString(helpStyle.Render("q quit"))
	return b.String()
}

func (m Model) renderStatus() string {
	s := m.state
	rows := []string{}

	if s.Metadata != nil {
		kind := "file"
		if s.Metadata.IsLive {
			kind = "live"
		}
		rows = append(rows, row("source", fmt.Sprintf("%s  %.1f fps  %s", kind, s.Metadata.FPS, models.FormatTimestamp(s.Metadata.Duration))))
	} else {
		rows = append(rows, row("source", "connecting..."))
	}

	if s.Last == nil {
		rows = append(rows, row("position", "-"))
		return strings.Join(rows, "\n")
	}

	held := s.HeldFor()
	rows = append(rows,
		row("time", s.Last.TimestampFormatted),
		row("position", strings.ToUpper(s.Last.Label)),
		row("confidence", fmt.Sprintf("%.0f%%", s.Last.Confidence*100)),
		labelStyle.Render(fmt.Sprintf("%-11s", "held")) + heldStyle(held, m.holdThreshold).Render(fmt.Sprintf("%.0fs", held)),
		row("decisions", fmt.Sprintf("%d", s.Frames)),
		row("alerts", fmt.Sprintf("%d", s.AlertCount)),
	)
	return strings.Join(rows, "\n")
}

func (m Model) renderAlerts() string {
	lines := []string{critStyle.Render("ALERTS")}
	for _, a := range m.state.Alerts {
		lines = append(lines, fmt.Sprintf("%s  %s  %s",
			labelStyle.Render(a.ReceivedAt.Format("15:04:05")),
			warnStyle.Render(models.FormatTimestamp(a.Event.Timestamp)),
			valueStyle.Render(a.Event.Message),
		))
	}
	out := strings.Join(lines, "\n")
	if m.width > 4 {
		out = lipgloss.NewStyle().MaxWidth(m.width - 4).Render(out)
	}
	return out
}

func row(label, value string) string {
	return labelStyle.Render(fmt.Sprintf("%-11s", label)) + valueStyle.Render(value)
}
