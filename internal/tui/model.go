// Package tui provides the Bubble Tea practice monitor.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ayusman/mudra/internal/app"
	"github.com/ayusman/mudra/internal/auth"
	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/session"
)

// Practice is the practice loop driven by the monitor.
type Practice interface {
	StartPractice(ctx context.Context, id auth.Identity) error
	StartCamera(ctx context.Context) error
	StopCamera() error
	Skip()
	Exit() error
	State() app.State
	Subscribe() (<-chan app.Event, func())
}

type keyMap struct {
	Start  key.Binding
	Skip   key.Binding
	Camera key.Binding
	Exit   key.Binding
	Quit   key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Start, k.Skip, k.Camera, k.Exit, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

var keys = keyMap{
	Start:  key.NewBinding(key.WithKeys("s", "enter"), key.WithHelp("s", "start")),
	Skip:   key.NewBinding(key.WithKeys("n", "right"), key.WithHelp("n", "skip sign")),
	Camera: key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "camera on/off")),
	Exit:   key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "end session")),
	Quit:   key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

var (
	titleStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A")).Bold(true)
	signStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0")).Bold(true).Padding(1, 2).Border(lipgloss.RoundedBorder(), true).BorderForeground(lipgloss.Color("#4A4A4A"))
	mutedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
	correctStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#00C800")).Bold(true)
	incorrectStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF8C00")).Bold(true)
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
)

type eventMsg app.Event

type eventsClosedMsg struct{}

type actionMsg struct {
	err error
}

// Model implements the Bubble Tea practice monitor.
type Model struct {
	practice    Practice
	ctx         context.Context
	identity    auth.Identity
	events      <-chan app.Event
	unsubscribe func()

	state   app.State
	summary *session.Summary
	errMsg  string

	spinner spinner.Model
	bar     progress.Model
	help    help.Model

	width  int
	height int
}

// NewModel constructs a monitor for p. Camera runs it starts are bound to ctx.
func NewModel(ctx context.Context, p Practice, id auth.Identity) *Model {
	events, cancel := p.Subscribe()
	return &Model{
		practice:    p,
		ctx:         ctx,
		identity:    id,
		events:      events,
		unsubscribe: cancel,
		state:       p.State(),
		spinner:     spinner.New(spinner.WithSpinner(spinner.Dot)),
		bar:         progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		help:        help.New(),
	}
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForEvent(m.events))
}

func waitForEvent(ch <-chan app.Event) tea.Cmd {
	return func() tea.Msg {
		e, ok := <-ch
		if !ok {
			return eventsClosedMsg{}
		}
		return eventMsg(e)
	}
}

func (m *Model) run(f func() error) tea.Cmd {
	return func() tea.Msg {
		return actionMsg{err: f()}
	}
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.bar.Width = min(max(msg.Width-8, 10), 60)
		m.help.Width = msg.Width
		return m, nil
	case tea.KeyMsg:
		return m, m.handleKey(msg)
	case actionMsg:
		m.errMsg = errorText(msg.err)
		m.state = m.practice.State()
		return m, nil
	case eventMsg:
		m.applyEvent(app.Event(msg))
		return m, waitForEvent(m.events)
	case eventsClosedMsg:
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	default:
		return m, nil
	}
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, keys.Quit):
		m.unsubscribe()
		return tea.Sequence(m.run(m.practice.Exit), tea.Quit)
	case key.Matches(msg, keys.Start):
		m.summary = nil
		return m.run(func() error {
			err := m.practice.StartPractice(m.ctx, m.identity)
			if errors.Is(err, session.ErrActive) {
				return m.practice.StartCamera(m.ctx)
			}
			return err
		})
	case key.Matches(msg, keys.Skip):
		return m.run(func() error {
			m.practice.Skip()
			return nil
		})
	case key.Matches(msg, keys.Camera):
		if m.state.Streaming {
			return m.run(m.practice.StopCamera)
		}
		return m.run(func() error { return m.practice.StartCamera(m.ctx) })
	case key.Matches(msg, keys.Exit):
		return m.run(m.practice.Exit)
	}
	return nil
}

func (m *Model) applyEvent(e app.Event) {
	m.state = m.practice.State()

	switch e.Type {
	case app.EventCompleted:
		m.summary = e.Summary
	case app.EventCamera:
		if e.Error != "" {
			m.errMsg = e.Error
		} else if e.Streaming {
			m.errMsg = ""
		}
	}
}

func errorText(err error) string {
	var de *capture.DeviceError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &de):
		return de.UserMessage()
	case errors.Is(err, session.ErrNoItems):
		return "No vocabulary to practise. Run `mudra seed` first."
	default:
		return err.Error()
	}
}

// View implements tea.Model.
func (m *Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("mudra · sign practice"))
	b.WriteString("\n\n")

	s := m.state.Session
	switch {
	case m.summary != nil && s.State == session.StateCompleted:
		b.WriteString(m.renderSummary(*m.summary))
	case s.State == session.StateActive && s.Current != nil:
		b.WriteString(m.renderActive(s))
	default:
		b.WriteString(mutedStyle.Render("Press s to start practising."))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.renderCamera())
	b.WriteString("\n")
	if m.errMsg != "" {
		b.WriteString(errorStyle.Render(m.errMsg))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(m.help.View(keys))

	content := b.String()
	if m.width == 0 || m.height == 0 {
		return content
	}
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, content)
}

func (m *Model) renderActive(s session.Snapshot) string {
	var b strings.Builder

	total := len(s.Items)
	fmt.Fprintf(&b, "Sign %d of %d\n", s.Index+1, total)
	b.WriteString(m.bar.ViewAs(float64(s.Index) / float64(total)))
	b.WriteString("\n\n")

	name := s.Current.DisplayName
	if name == "" {
		name = s.Current.ClassName
	}
	b.WriteString(signStyle.Render(name))
	b.WriteString("\n")
	if s.Current.Description != "" {
		b.WriteString(mutedStyle.Render(s.Current.Description))
		b.WriteString("\n")
	}

	switch s.Feedback {
	case session.FeedbackCorrect:
		b.WriteString(correctStyle.Render("✓ Correct!"))
	case session.FeedbackIncorrect:
		b.WriteString(incorrectStyle.Render("✗ Not quite, try again"))
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "Attempts %d · Correct %d\n", s.Attempts, s.Successes)
	return b.String()
}

func (m *Model) renderSummary(sum session.Summary) string {
	var b strings.Builder

	b.WriteString(correctStyle.Render("Session complete"))
	b.WriteString("\n")
	fmt.Fprintf(&b, "Correct signs: %d of %d\n", sum.Successes, sum.Items)
	fmt.Fprintf(&b, "Attempts: %d · Success rate: %.0f%%\n", sum.Attempts, sum.SuccessRate*100)
	fmt.Fprintf(&b, "Time: %s\n", sum.Duration.Round(time.Second))
	return b.String()
}

func (m *Model) renderCamera() string {
	camera := mutedStyle.Render("○ camera off")
	if m.state.Streaming {
		camera = correctStyle.Render("● camera on")
	}

	status := m.state.Status
	if status == app.StatusProcessing {
		status = m.spinner.View() + " " + status
	}
	return camera + "  " + mutedStyle.Render("detection: ") + status
}
