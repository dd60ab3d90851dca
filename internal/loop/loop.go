// Package loop runs an explore controller against a live event source.
package loop

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/verte-zerg/touchx/internal/event"
	"github.com/verte-zerg/touchx/internal/explore"
	"github.com/verte-zerg/touchx/internal/timer"
)

// Output is one event leaving the controller. Dispatched outputs were
// emitted by the controller on its own and have no input.
type Output struct {
	Input      event.Event
	Event      event.Event
	Status     explore.Status
	Dispatched bool
}

// Forwarded reports whether Event goes downstream.
func (o Output) Forwarded() bool {
	return o.Status != explore.Discard
}

func (o Output) String() string {
	switch {
	case o.Dispatched:
		return fmt.Sprintf("dispatch  %s", o.Event)
	case o.Status == explore.Discard:
		return fmt.Sprintf("discard   %s", o.Input)
	case o.Status == explore.Continue:
		return fmt.Sprintf("continue  %s", o.Input)
	default:
		return fmt.Sprintf("rewritten %s -> %s", o.Input, o.Event)
	}
}

// Sink receives outputs in order.
type Sink interface {
	Emit(out Output)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(out Output)

// Emit implements Sink.
func (f SinkFunc) Emit(out Output) { f(out) }

// Options configures a Runner.
type Options struct {
	Logger   logrus.FieldLogger
	Cursor   explore.CursorClient
	Observer func(explore.Transition)
}

// Runner owns one controller. Input events and timer expiries are handled
// on the goroutine that calls Run, so the controller needs no locking.
type Runner struct {
	ctrl *explore.Controller
	wall *timer.Wall
	sink Sink
	log  logrus.FieldLogger

	// offset maps the source clock onto the wall clock; set by the first
	// input.
	offset  time.Duration
	aligned bool
}

// New builds a Runner whose outputs go to sink.
func New(cfg explore.Config, sink Sink, opts Options) (*Runner, error) {
	log := opts.Logger
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	r := &Runner{
		wall: timer.NewWall(),
		sink: sink,
		log:  log,
	}
	ctrl, err := explore.New(cfg, explore.Options{
		Scheduler: alignedScheduler{r},
		Sink: explore.SinkFunc(func(ev event.Event) {
			r.sink.Emit(Output{Event: ev, Status: explore.Rewritten, Dispatched: true})
		}),
		Cursor:   opts.Cursor,
		Logger:   log,
		Observer: opts.Observer,
	})
	if err != nil {
		r.wall.Stop()
		return nil, err
	}
	r.ctrl = ctrl
	return r, nil
}

// Controller exposes the controller for inspection. It must only be used
// from the Run goroutine or after Run returned.
func (r *Runner) Controller() *explore.Controller {
	return r.ctrl
}

// Feed passes one input event through the controller and emits the result.
func (r *Runner) Feed(ev event.Event) Output {
	if !r.aligned {
		r.offset = r.wall.Now() - ev.Time
		r.aligned = true
	}
	res := r.ctrl.RewriteEvent(ev)
	out := Output{Input: ev, Status: res.Status, Event: ev}
	if res.Status == explore.Rewritten {
		out.Event = res.Event
	}
	r.sink.Emit(out)
	return out
}

// Run consumes in until it closes or ctx is done. Pending timers are dropped
// on return.
func (r *Runner) Run(ctx context.Context, in <-chan event.Event) error {
	defer r.wall.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-in:
			if !ok {
				return nil
			}
			r.Feed(ev)
		case tok := <-r.wall.C():
			// Inputs already queued happened before the token was read.
			// Feeding them first lets their timestamps decide the timer.
			if !r.drain(in) {
				return nil
			}
			if !r.ctrl.HandleTimer(tok) {
				r.log.WithField("token", uint64(tok)).Debug("stale tap timer")
			}
		}
	}
}

// drain feeds every input that is ready without blocking. It returns false
// once in is closed.
func (r *Runner) drain(in <-chan event.Event) bool {
	for {
		select {
		case ev, ok := <-in:
			if !ok {
				return false
			}
			r.Feed(ev)
		default:
			return true
		}
	}
}

// alignedScheduler arms wall timers for deadlines on the source clock.
type alignedScheduler struct {
	r *Runner
}

func (s alignedScheduler) ScheduleAt(deadline time.Duration, token explore.Token) {
	s.r.wall.ScheduleAt(deadline+s.r.offset, token)
}

func (s alignedScheduler) Cancel(token explore.Token) {
	s.r.wall.Cancel(token)
}
