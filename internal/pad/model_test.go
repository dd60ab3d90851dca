package pad

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/verte-zerg/touchx/internal/event"
	"github.com/verte-zerg/touchx/internal/explore"
	"github.com/verte-zerg/touchx/internal/loop"
)

type fixedClock struct {
	t time.Time
}

func (c *fixedClock) now() time.Time { return c.t }

func newTestModel(t *testing.T) (*Model, *fixedClock, *[]loop.Output) {
	t.Helper()
	var outs []loop.Output
	m, err := NewModel(explore.DefaultConfig(), Options{
		Sink: loop.SinkFunc(func(out loop.Output) { outs = append(outs, out) }),
	})
	if err != nil {
		t.Fatalf("new model: %v", err)
	}
	clock := &fixedClock{t: m.origin}
	m.clock = clock.now
	m.Update(tea.WindowSizeMsg{Width: 80, Height: 12})
	return m, clock, &outs
}

func press(x, y int) tea.MouseMsg {
	return tea.MouseMsg{X: x, Y: y, Action: tea.MouseActionPress, Button: tea.MouseButtonLeft}
}

func release(x, y int) tea.MouseMsg {
	return tea.MouseMsg{X: x, Y: y, Action: tea.MouseActionRelease, Button: tea.MouseButtonLeft}
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestMousePressArmsTimer(t *testing.T) {
	m, _, outs := newTestModel(t)
	_, cmd := m.Update(press(2, 3))
	if cmd == nil {
		t.Fatalf("expected a tick command for the tap timer")
	}
	if m.ctrl.State() != explore.SingleTapPressed {
		t.Fatalf("expected SINGLE_TAP_PRESSED, got %s", m.ctrl.State())
	}
	loc, ok := m.ctrl.FingerLocation(1)
	if !ok || loc != event.Pt(16, 48) {
		t.Fatalf("expected finger 1 at (16,48), got %v %v", loc, ok)
	}
	if len(*outs) != 1 || (*outs)[0].Status != explore.Discard {
		t.Fatalf("expected one discarded output, got %+v", *outs)
	}
}

func TestFireTimerKeyStartsExploration(t *testing.T) {
	m, _, outs := newTestModel(t)
	m.Update(press(1, 1))
	m.Update(runes("t"))

	if m.ctrl.State() != explore.TouchExploration {
		t.Fatalf("expected TOUCH_EXPLORATION, got %s", m.ctrl.State())
	}
	if m.CursorVisible() || !m.MouseEventsEnabled() {
		t.Fatalf("expected mouse mode with hidden cursor")
	}
	last := (*outs)[len(*outs)-1]
	if !last.Dispatched || last.Event.Type != event.MouseMoved {
		t.Fatalf("expected dispatched mouse move, got %+v", last)
	}
	if !strings.Contains(m.View(), "cursor hidden") {
		t.Fatalf("status should report the hidden cursor:\n%s", m.View())
	}
}

func TestFireTimerKeyWithoutTimer(t *testing.T) {
	m, _, _ := newTestModel(t)
	m.Update(runes("t"))
	if !strings.Contains(m.renderFooter(), "no tap timer pending") {
		t.Fatalf("expected footer error, got %q", m.renderFooter())
	}
}

func TestTimerMessageFiresArmedToken(t *testing.T) {
	m, clock, _ := newTestModel(t)
	m.Update(press(0, 0))
	m.Update(release(0, 0))
	if m.ctrl.State() != explore.SingleTapReleased {
		t.Fatalf("expected SINGLE_TAP_RELEASED, got %s", m.ctrl.State())
	}
	var token explore.Token
	for tok := range m.sched.armed {
		token = tok
	}
	m.Update(timerMsg{token: token + 100})
	if m.ctrl.State() != explore.SingleTapReleased {
		t.Fatalf("stale token changed state to %s", m.ctrl.State())
	}
	clock.t = clock.t.Add(400 * time.Millisecond)
	m.Update(timerMsg{token: token})
	if !m.ctrl.Idle() {
		t.Fatalf("expected idle after expiry, got %s", m.ctrl.State())
	}
}

func TestToggleFingerEscalates(t *testing.T) {
	m, _, _ := newTestModel(t)
	m.Update(press(0, 0))
	m.Update(runes("2"))
	if m.ctrl.State() != explore.TwoToOneFinger {
		t.Fatalf("expected TWO_TO_ONE_FINGER, got %s", m.ctrl.State())
	}
	m.Update(runes("3"))
	if m.ctrl.State() != explore.Passthrough {
		t.Fatalf("expected PASSTHROUGH, got %s", m.ctrl.State())
	}
	m.Update(runes("3"))
	m.Update(runes("2"))
	m.Update(release(0, 0))
	if !m.ctrl.Idle() || len(m.extra) != 0 {
		t.Fatalf("expected all fingers lifted, state %s extra %v", m.ctrl.State(), m.extra)
	}
}

func TestMotionWithoutPressIgnored(t *testing.T) {
	m, _, outs := newTestModel(t)
	m.Update(tea.MouseMsg{X: 4, Y: 4, Action: tea.MouseActionMotion})
	m.Update(release(4, 4))
	if len(*outs) != 0 {
		t.Fatalf("expected no outputs, got %+v", *outs)
	}
}

func TestClearEmptiesLog(t *testing.T) {
	m, _, _ := newTestModel(t)
	m.Update(press(0, 0))
	if len(m.lines) == 0 {
		t.Fatalf("expected log lines")
	}
	m.Update(runes("c"))
	if len(m.lines) != 0 {
		t.Fatalf("expected empty log, got %d lines", len(m.lines))
	}
}

func TestQuitKeys(t *testing.T) {
	m, _, _ := newTestModel(t)
	for _, msg := range []tea.KeyMsg{runes("q"), {Type: tea.KeyCtrlC}} {
		_, cmd := m.Update(msg)
		if cmd == nil {
			t.Fatalf("expected quit command for %q", msg.String())
		}
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Fatalf("expected QuitMsg for %q", msg.String())
		}
	}
}

func TestTruncateRespectsWidth(t *testing.T) {
	if got := truncate("abcdefgh", 5); got != "abcd…" {
		t.Fatalf("unexpected truncation: %q", got)
	}
	if got := truncate("abc", 0); got != "abc" {
		t.Fatalf("zero width should not truncate: %q", got)
	}
}
