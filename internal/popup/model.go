package popup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/bft-labs/meetrec/internal/app"
	"github.com/bft-labs/meetrec/internal/domain"
)

// MessageTTL is how long a status message stays visible.
const MessageTTL = 5 * time.Second

// Controller issues commands to the coordinator.
type Controller interface {
	Start(ctx context.Context, tabID string, includeMic bool) (bool, error)
	Stop(ctx context.Context) error
	Tabs(ctx context.Context) ([]app.TabStatus, error)
	CheckMeetPage(ctx context.Context, tabID string) (bool, error)
}

// StateLoader reads the persisted recording state.
type StateLoader interface {
	Load(ctx context.Context) (domain.SharedState, error)
}

// MessageKind selects how a status message is styled.
type MessageKind string

const (
	MessageInfo    MessageKind = "info"
	MessageSuccess MessageKind = "success"
	MessageError   MessageKind = "error"
)

// Options configures a Model.
type Options struct {
	// TabID is the tab to record. Empty picks the only connected tab.
	TabID string

	// IncludeMic is the initial microphone choice.
	IncludeMic bool

	// CommandTimeout bounds each coordinator call.
	CommandTimeout time.Duration

	// Updates delivers state changes observed on disk. May be nil.
	Updates <-chan domain.SharedState
}

// Messages
type tickMsg time.Time

type stateMsg struct {
	state domain.SharedState
	err   error
}

type clearMsg struct{ id int }

type commandMsg struct {
	kind MessageKind
	text string
}

type message struct {
	id   int
	kind MessageKind
	text string
}

// Model is the bubbletea model of the controller.
type Model struct {
	ctl     Controller
	states  StateLoader
	opts    Options
	now     func() time.Time
	state   domain.SharedState
	message message
	nextID  int
	busy    bool
}

// New creates the controller model.
func New(ctl Controller, states StateLoader, opts Options) Model {
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = 30 * time.Second
	}
	return Model{ctl: ctl, states: states, opts: opts, now: time.Now}
}

// State returns the recording state the model currently shows.
func (m Model) State() domain.SharedState { return m.state }

// Message returns the visible status message, if any.
func (m Model) Message() (MessageKind, string) { return m.message.kind, m.message.text }

// IncludeMic reports the current microphone choice.
func (m Model) IncludeMic() bool { return m.opts.IncludeMic }

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.loadState,
		tick(),
		waitForUpdate(m.opts.Updates),
		tea.SetWindowTitle("meetrec"),
	)
}

func (m Model) loadState() tea.Msg {
	s, err := m.states.Load(context.Background())
	return stateMsg{state: s, err: err}
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func waitForUpdate(ch <-chan domain.SharedState) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		s, ok := <-ch
		if !ok {
			return nil
		}
		return stateMsg{state: s}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tickMsg:
		return m, tick()

	case stateMsg:
		return m.applyState(msg)

	case commandMsg:
		m.busy = false
		return m.setMessage(msg.kind, msg.text)

	case clearMsg:
		if msg.id == m.message.id {
			m.message = message{id: m.message.id}
		}
		return m, nil
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "esc", "ctrl+c":
		return m, tea.Quit
	case "enter", " ", "r":
		if m.busy {
			return m, nil
		}
		m.busy = true
		if m.state.IsRecording {
			return m, m.stop()
		}
		return m, m.start()
	case "m":
		if !m.state.IsRecording {
			m.opts.IncludeMic = !m.opts.IncludeMic
		}
	}
	return m, nil
}

func (m Model) applyState(msg stateMsg) (tea.Model, tea.Cmd) {
	next := waitForUpdate(m.opts.Updates)
	if msg.err != nil {
		// Load failures leave the last known state on screen.
		mm, expire := m.setMessage(MessageError, "Failed to read state: "+msg.err.Error())
		return mm, tea.Batch(expire, next)
	}

	started := !m.state.IsRecording && msg.state.IsRecording
	m.state = msg.state
	if started {
		mm, expire := m.setMessage(MessageSuccess, "Recording started!")
		return mm, tea.Batch(expire, next)
	}
	return m, next
}

func (m Model) setMessage(kind MessageKind, text string) (Model, tea.Cmd) {
	m.nextID++
	id := m.nextID
	m.message = message{id: id, kind: kind, text: text}
	return m, tea.Tick(MessageTTL, func(time.Time) tea.Msg {
		return clearMsg{id: id}
	})
}

func (m Model) start() tea.Cmd {
	ctl, opts := m.ctl, m.opts
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opts.CommandTimeout)
		defer cancel()

		tabID, err := ResolveTab(ctx, ctl, opts.TabID)
		if err != nil {
			return commandMsg{kind: MessageError, text: errorText(err)}
		}
		micDenied, err := ctl.Start(ctx, tabID, opts.IncludeMic)
		if err != nil {
			return commandMsg{kind: MessageError, text: errorText(err)}
		}
		if micDenied {
			return commandMsg{kind: MessageInfo, text: "Microphone unavailable, recording without it"}
		}
		return commandMsg{kind: MessageInfo, text: "Waiting for screen share approval..."}
	}
}

func (m Model) stop() tea.Cmd {
	ctl, timeout := m.ctl, m.opts.CommandTimeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := ctl.Stop(ctx); err != nil {
			return commandMsg{kind: MessageError, text: errorText(err)}
		}
		return commandMsg{kind: MessageInfo, text: "Stopping recording..."}
	}
}

// ResolveTab picks the tab to record and checks that it shows a meeting.
// With no tab given, the only connected tab is used.
func ResolveTab(ctx context.Context, ctl Controller, tabID string) (string, error) {
	if tabID == "" {
		tabs, err := ctl.Tabs(ctx)
		if err != nil {
			return "", err
		}
		if len(tabs) != 1 {
			return "", domain.ErrNotMeetPage
		}
		tabID = tabs[0].TabID
	}

	ok, err := ctl.CheckMeetPage(ctx, tabID)
	if err != nil {
		if errors.Is(err, domain.ErrTabNotFound) {
			return "", domain.ErrNotMeetPage
		}
		return "", err
	}
	if !ok {
		return "", domain.ErrNotMeetPage
	}
	return tabID, nil
}

func errorText(err error) string {
	msg := err.Error()
	if msg == "" {
		return "Unknown error"
	}
	return strings.ToUpper(msg[:1]) + msg[1:]
}

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Meet Recorder"))
	b.WriteString("\n\n")

	if m.state.IsRecording {
		b.WriteString(recordingStyle.Render("● Recording"))
		b.WriteString("  ")
		b.WriteString(timerStyle.Render(FormatElapsed(m.state.Elapsed(m.now()))))
		b.WriteString("\n\n")
		b.WriteString(stopButtonStyle.Render("Stop Recording"))
	} else {
		b.WriteString(idleStyle.Render("Not recording"))
		b.WriteString("\n\n")
		b.WriteString(buttonStyle.Render("Start Recording"))
	}
	b.WriteString("\n")

	mic := "[ ]"
	if m.opts.IncludeMic {
		mic = "[x]"
	}
	b.WriteString(dimStyle.Render(fmt.Sprintf("%s Include microphone", mic)))
	b.WriteString("\n")

	if m.message.text != "" {
		b.WriteString("\n")
		b.WriteString(messageStyle(m.message.kind).Render(m.message.text))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(dimStyle.Render("enter: start/stop • m: microphone • q: quit"))
	b.WriteString("\n")
	return b.String()
}

func messageStyle(kind MessageKind) lipgloss.Style {
	switch kind {
	case MessageSuccess:
		return successStyle
	case MessageError:
		return errorStyle
	default:
		return infoStyle
	}
}

// Run shows the controller until the user quits or ctx ends.
func Run(ctx context.Context, m Model) error {
	_, err := tea.NewProgram(m, tea.WithContext(ctx)).Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
