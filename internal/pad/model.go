// Package pad provides the Bubble Tea touch simulator.
package pad

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/sirupsen/logrus"

	"github.com/verte-zerg/touchx/internal/event"
	"github.com/verte-zerg/touchx/internal/explore"
	"github.com/verte-zerg/touchx/internal/loop"
)

const maxLogLines = 500

var (
	stateStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A")).Bold(true)
	idleStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
	fingerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0"))
	dispatchStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#5FAFD7"))
	discardStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	rewriteStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0"))
	changeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A"))
	footerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
)

// Options configures the pad.
type Options struct {
	// CellWidth and CellHeight convert terminal cells to surface units.
	CellWidth  float64
	CellHeight float64
	Logger     logrus.FieldLogger
	// Sink also receives every output, for recording.
	Sink loop.Sink
	// Observer also receives every state change.
	Observer func(explore.Transition)
}

type timerMsg struct {
	token explore.Token
}

// teaScheduler turns timer requests made during Update into tick commands.
type teaScheduler struct {
	now     func() time.Duration
	pending []tea.Cmd
	armed   map[explore.Token]time.Duration
}

func (s *teaScheduler) ScheduleAt(deadline time.Duration, token explore.Token) {
	s.armed[token] = deadline
	delay := deadline - s.now()
	if delay < 0 {
		delay = 0
	}
	s.pending = append(s.pending, tea.Tick(delay, func(time.Time) tea.Msg {
		return timerMsg{token: token}
	}))
}

func (s *teaScheduler) Cancel(token explore.Token) {
	delete(s.armed, token)
}

func (s *teaScheduler) drain() tea.Cmd {
	if len(s.pending) == 0 {
		return nil
	}
	cmd := tea.Batch(s.pending...)
	s.pending = nil
	return cmd
}

// Model implements the Bubble Tea pad UI. The mouse is finger 1; keys 2
// and 3 toggle extra fingers at the pointer.
type Model struct {
	ctrl   *explore.Controller
	sched  *teaScheduler
	opts   Options
	origin time.Time
	clock  func() time.Time

	pointer   event.Point
	mouseDown bool
	extra     map[int]bool

	mouseEvents   bool
	cursorVisible bool

	log    viewport.Model
	lines  []string
	errMsg string

	width  int
	height int
}

// NewModel constructs a pad model around a fresh controller.
func NewModel(cfg explore.Config, opts Options) (*Model, error) {
	if opts.CellWidth <= 0 {
		opts.CellWidth = 8
	}
	if opts.CellHeight <= 0 {
		opts.CellHeight = 16
	}
	m := &Model{
		opts:          opts,
		origin:        time.Now(),
		clock:         time.Now,
		extra:         map[int]bool{},
		cursorVisible: true,
		log:           viewport.New(0, 0),
	}
	m.sched = &teaScheduler{now: m.now, armed: map[explore.Token]time.Duration{}}
	ctrl, err := explore.New(cfg, explore.Options{
		Scheduler: m.sched,
		Sink: explore.SinkFunc(func(ev event.Event) {
			m.emit(loop.Output{Event: ev, Status: explore.Rewritten, Dispatched: true})
		}),
		Cursor:   m,
		Logger:   opts.Logger,
		Observer: m.observe,
	})
	if err != nil {
		return nil, err
	}
	m.ctrl = ctrl
	return m, nil
}

// Controller exposes the controller driven by the pad.
func (m *Model) Controller() *explore.Controller {
	return m.ctrl
}

// MouseEventsEnabled implements explore.CursorClient.
func (m *Model) MouseEventsEnabled() bool { return m.mouseEvents }

// EnableMouseEvents implements explore.CursorClient.
func (m *Model) EnableMouseEvents() { m.mouseEvents = true }

// CursorVisible implements explore.CursorClient.
func (m *Model) CursorVisible() bool { return m.cursorVisible }

// HideCursor implements explore.CursorClient.
func (m *Model) HideCursor() { m.cursorVisible = false }

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateLayout()
		return m, nil
	case timerMsg:
		m.ctrl.HandleTimer(msg.token)
		return m, m.sched.drain()
	case tea.MouseMsg:
		m.handleMouse(msg)
		return m, m.sched.drain()
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "2", "3":
			m.toggleFinger(int(msg.Runes[0] - '0'))
			return m, m.sched.drain()
		case "t":
			if _, pending := m.ctrl.TimerPending(); pending {
				m.ctrl.FireTapTimerNow()
			} else {
				m.errMsg = "no tap timer pending"
			}
			return m, m.sched.drain()
		case "c":
			m.lines = nil
			m.errMsg = ""
			m.refreshLog()
			return m, nil
		default:
			var cmd tea.Cmd
			m.log, cmd = m.log.Update(msg)
			return m, cmd
		}
	}
	return m, nil
}

// View implements tea.Model.
func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}
	return strings.Join([]string{
		m.renderStatus(),
		m.log.View(),
		m.renderFooter(),
	}, "\n")
}

func (m *Model) now() time.Duration {
	return m.clock().Sub(m.origin)
}

func (m *Model) handleMouse(msg tea.MouseMsg) {
	m.pointer = event.Pt(float64(msg.X)*m.opts.CellWidth, float64(msg.Y)*m.opts.CellHeight)
	flags := mouseFlags(msg)
	switch msg.Action {
	case tea.MouseActionPress:
		if msg.Button != tea.MouseButtonLeft || m.mouseDown {
			return
		}
		m.mouseDown = true
		m.feed(event.NewTouch(event.TouchPressed, m.pointer, 1, m.now()).WithFlags(flags))
	case tea.MouseActionMotion:
		if !m.mouseDown {
			return
		}
		m.feed(event.NewTouch(event.TouchMoved, m.pointer, 1, m.now()).WithFlags(flags))
	case tea.MouseActionRelease:
		if !m.mouseDown {
			return
		}
		m.mouseDown = false
		m.feed(event.NewTouch(event.TouchReleased, m.pointer, 1, m.now()).WithFlags(flags))
	}
}

func mouseFlags(msg tea.MouseMsg) event.Flags {
	var f event.Flags
	if msg.Shift {
		f |= event.FlagShift
	}
	if msg.Alt {
		f |= event.FlagAlt
	}
	if msg.Ctrl {
		f |= event.FlagControl
	}
	return f
}

func (m *Model) toggleFinger(id int) {
	typ := event.TouchPressed
	if m.extra[id] {
		typ = event.TouchReleased
		delete(m.extra, id)
	} else {
		m.extra[id] = true
	}
	loc := m.pointer
	if held, ok := m.ctrl.FingerLocation(id); ok {
		loc = held
	}
	m.feed(event.NewTouch(typ, loc, id, m.now()))
}

func (m *Model) feed(ev event.Event) {
	m.errMsg = ""
	res := m.ctrl.RewriteEvent(ev)
	out := loop.Output{Input: ev, Status: res.Status, Event: ev}
	if res.Status == explore.Rewritten {
		out.Event = res.Event
	}
	m.emit(out)
}

func (m *Model) emit(out loop.Output) {
	if m.opts.Sink != nil {
		m.opts.Sink.Emit(out)
	}
	style := rewriteStyle
	switch {
	case out.Dispatched:
		style = dispatchStyle
	case out.Status == explore.Discard:
		style = discardStyle
	}
	m.appendLine(style, out.String())
}

func (m *Model) observe(tr explore.Transition) {
	if m.opts.Observer != nil {
		m.opts.Observer(tr)
	}
	m.appendLine(changeStyle, fmt.Sprintf("%dms %s -> %s", tr.At.Milliseconds(), tr.From, tr.To))
}

func (m *Model) appendLine(style lipgloss.Style, line string) {
	if m.width > 0 {
		line = runewidth.Truncate(line, m.width, "…")
	}
	m.lines = append(m.lines, style.Render(line))
	if len(m.lines) > maxLogLines {
		m.lines = m.lines[len(m.lines)-maxLogLines:]
	}
	m.refreshLog()
}

func (m *Model) refreshLog() {
	m.log.SetContent(strings.Join(m.lines, "\n"))
	m.log.GotoBottom()
}

func (m *Model) updateLayout() {
	m.log.Width = m.width
	h := m.height - 2
	if h < 1 {
		h = 1
	}
	m.log.Height = h
	m.refreshLog()
}

func (m *Model) renderStatus() string {
	state := m.ctrl.State()
	style := stateStyle
	if state == explore.NoFingersDown {
		style = idleStyle
	}
	segments := []string{style.Render(state.String())}

	ids := m.ctrl.Fingers()
	sort.Ints(ids)
	fingers := make([]string, 0, len(ids))
	for _, id := range ids {
		loc, _ := m.ctrl.FingerLocation(id)
		fingers = append(fingers, fmt.Sprintf("%d%s", id, loc))
	}
	if len(fingers) > 0 {
		segments = append(segments, fingerStyle.Render("fingers "+strings.Join(fingers, " ")))
	}
	if deadline, pending := m.ctrl.TimerPending(); pending {
		left := deadline - m.now()
		if left < 0 {
			left = 0
		}
		segments = append(segments, fmt.Sprintf("timer %dms", left.Milliseconds()))
	}
	if !m.cursorVisible {
		segments = append(segments, idleStyle.Render("cursor hidden"))
	}
	return truncate(strings.Join(segments, "  "), m.width)
}

func (m *Model) renderFooter() string {
	if m.errMsg != "" {
		return errorStyle.Render(truncate(m.errMsg, m.width))
	}
	help := "Mouse: finger 1  2/3: toggle finger  t: fire timer  c: clear  q: quit"
	return footerStyle.Render(truncate(help, m.width))
}

// truncate cuts plain or styled text to width cells.
func truncate(s string, width int) string {
	if width <= 0 || lipgloss.Width(s) <= width {
		return s
	}
	return runewidth.Truncate(s, width, "…")
}

func logErrf(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}

// Run starts the pad program and blocks until the user quits.
func Run(m *Model) error {
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	if _, err := p.Run(); err != nil {
		logErrf("pad failed: %v\n", err)
		return fmt.Errorf("failed to run pad: %w", err)
	}
	return nil
}
