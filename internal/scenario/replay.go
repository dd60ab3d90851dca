package scenario

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/verte-zerg/touchx/internal/event"
	"github.com/verte-zerg/touchx/internal/explore"
	"github.com/verte-zerg/touchx/internal/loop"
	"github.com/verte-zerg/touchx/internal/timer"
)

// maxTrailingFires bounds the timer expiries run after the last input when
// the scenario has no Until.
const maxTrailingFires = 16

// Options configures Replay.
type Options struct {
	// Base is the config the scenario overrides are applied to.
	Base   explore.Config
	Logger logrus.FieldLogger
}

// Result is the outcome of a replay.
type Result struct {
	Outputs     []loop.Output
	Transitions []explore.Transition
	Final       explore.State
}

// Produced returns the dispatched and rewritten events, the ones Expect
// describes.
func (r *Result) Produced() []event.Event {
	var out []event.Event
	for _, o := range r.Outputs {
		if o.Dispatched || o.Status == explore.Rewritten {
			out = append(out, o.Event)
		}
	}
	return out
}

// Replay runs the scenario through a fresh controller on a virtual clock.
// Before each input, timers whose deadline is strictly earlier fire at their
// deadline. After the last input the clock advances to Until.
func Replay(sc *Scenario, opts Options) (*Result, error) {
	base := opts.Base
	if base.DoubleTapTimeout == 0 {
		base = explore.DefaultConfig()
	}
	cfg := sc.Config.Apply(base)

	res := &Result{}
	sched := timer.NewManual()
	ctrl, err := explore.New(cfg, explore.Options{
		Scheduler: sched,
		Sink: explore.SinkFunc(func(ev event.Event) {
			res.Outputs = append(res.Outputs, loop.Output{Event: ev, Status: explore.Rewritten, Dispatched: true})
		}),
		Logger:   opts.Logger,
		Observer: func(tr explore.Transition) { res.Transitions = append(res.Transitions, tr) },
	})
	if err != nil {
		return nil, err
	}

	var last time.Duration
	for i, step := range sc.Events {
		ev, err := step.Event()
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		if ev.Time < last {
			return nil, fmt.Errorf("event %d: timestamp %v goes backwards", i, ev.Time)
		}
		last = ev.Time
		for {
			tok, _, ok := sched.Due(ev.Time)
			if !ok {
				break
			}
			ctrl.HandleTimer(tok)
		}
		r := ctrl.RewriteEvent(ev)
		out := loop.Output{Input: ev, Status: r.Status, Event: ev}
		if r.Status == explore.Rewritten {
			out.Event = r.Event
		}
		res.Outputs = append(res.Outputs, out)
	}

	if sc.Until != nil {
		until := time.Duration(*sc.Until)
		for {
			tok, _, ok := sched.Due(until + 1)
			if !ok {
				break
			}
			ctrl.HandleTimer(tok)
		}
	} else {
		for i := 0; i < maxTrailingFires; i++ {
			tok, _, ok := sched.Pop()
			if !ok {
				break
			}
			ctrl.HandleTimer(tok)
		}
	}
	res.Final = ctrl.State()
	return res, nil
}

// Mismatch describes one difference between expected and produced output.
type Mismatch struct {
	Index int
	Want  string
	Got   string
}

func (m Mismatch) String() string {
	return fmt.Sprintf("#%d: want %s, got %s", m.Index, m.Want, m.Got)
}

// Check compares a replay result with the scenario's expectations. Expected
// flags are compared only when listed.
func Check(sc *Scenario, res *Result) []Mismatch {
	var out []Mismatch
	got := res.Produced()
	n := len(sc.Expect)
	if len(got) > n {
		n = len(got)
	}
	for i := 0; i < n; i++ {
		switch {
		case i >= len(sc.Expect):
			out = append(out, Mismatch{Index: i, Want: "nothing", Got: got[i].String()})
		case i >= len(got):
			want, _ := sc.Expect[i].Event()
			out = append(out, Mismatch{Index: i, Want: want.String(), Got: "nothing"})
		default:
			want, _ := sc.Expect[i].Event()
			if !matches(want, got[i], sc.Expect[i].Flags != nil) {
				out = append(out, Mismatch{Index: i, Want: want.String(), Got: got[i].String()})
			}
		}
	}
	if sc.Final != "" && sc.Final != res.Final.String() {
		out = append(out, Mismatch{Index: -1, Want: "final " + sc.Final, Got: "final " + res.Final.String()})
	}
	return out
}

func matches(want, got event.Event, checkFlags bool) bool {
	if want.Type != got.Type || want.Time != got.Time || want.Location != got.Location {
		return false
	}
	if want.IsTouch() && want.TouchID != got.TouchID {
		return false
	}
	if checkFlags && want.Flags != got.Flags {
		return false
	}
	return true
}
