package explore

import (
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/verte-zerg/touchx/internal/event"
)

// Sink receives events the controller dispatches on its own, outside the
// Result of RewriteEvent.
type Sink interface {
	Dispatch(ev event.Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ev event.Event)

// Dispatch implements Sink.
func (f SinkFunc) Dispatch(ev event.Event) { f(ev) }

// Token identifies one arming of the tap timer.
type Token uint64

// Scheduler arms and cancels the tap timer. When a deadline passes, the
// owner of the event loop calls HandleTimer with the token on the same
// goroutine that calls RewriteEvent.
type Scheduler interface {
	ScheduleAt(deadline time.Duration, token Token)
	Cancel(token Token)
}

// CursorClient controls the pointer of the surface. Touch exploration needs
// mouse events enabled and the cursor hidden.
type CursorClient interface {
	MouseEventsEnabled() bool
	EnableMouseEvents()
	CursorVisible() bool
	HideCursor()
}

// Options wires a controller to its collaborators. Every field is optional.
type Options struct {
	Scheduler Scheduler
	Sink      Sink
	Cursor    CursorClient
	Logger    logrus.FieldLogger
	// Observer is called on every state change.
	Observer func(Transition)
}

type tapTimer struct {
	running  bool
	deadline time.Duration
	token    Token
}

// Controller rewrites a stream of touch events for touch exploration. It is
// not safe for concurrent use: every call must come from the goroutine that
// delivers input events.
type Controller struct {
	cfg  Config
	opts Options
	log  logrus.FieldLogger

	state   State
	fingers *fingerSet
	now     time.Duration

	initialPress         event.Event
	lastTouchExploration *event.Event
	lastTwoToOne         event.Event
	lastUnusedFinger     event.Event

	timer     tapTimer
	nextToken Token

	prevState State
	prevEvent *event.Event
}

// New validates cfg and returns an idle controller.
func New(cfg Config, opts Options) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid explore config: %w", err)
	}
	log := opts.Logger
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &Controller{
		cfg:     cfg,
		opts:    opts,
		log:     log,
		state:   NoFingersDown,
		fingers: newFingerSet(),
	}, nil
}

// Config returns the thresholds the controller was built with.
func (c *Controller) Config() Config {
	return c.cfg
}

// State returns the current state.
func (c *Controller) State() State {
	return c.state
}

// Idle reports whether the controller is in NoFingersDown.
func (c *Controller) Idle() bool {
	return c.state == NoFingersDown
}

// Fingers returns the ids of the fingers currently down, in press order.
func (c *Controller) Fingers() []int {
	return c.fingers.list()
}

// FingerLocation returns the last known location of a finger that is down.
func (c *Controller) FingerLocation(id int) (event.Point, bool) {
	return c.fingers.location(id)
}

// TimerPending reports whether the tap timer is armed, and its deadline.
func (c *Controller) TimerPending() (time.Duration, bool) {
	return c.timer.deadline, c.timer.running
}

// LastExploration returns the location that double taps are anchored at.
func (c *Controller) LastExploration() (event.Point, bool) {
	if c.lastTouchExploration == nil {
		return event.Point{}, false
	}
	return c.lastTouchExploration.Location, true
}

// SetSink replaces the downstream sink.
func (c *Controller) SetSink(sink Sink) {
	c.opts.Sink = sink
}

// FireTapTimerNow stops the pending tap timer and runs its expiry at once.
func (c *Controller) FireTapTimerNow() {
	if !c.timer.running {
		c.violation("FireTapTimerNow", "tap timer is not running")
		return
	}
	c.OnTapTimerFired()
}

// HandleTimer runs the tap timer expiry if token is the armed one. Stale
// tokens from cancelled timers are ignored.
func (c *Controller) HandleTimer(token Token) bool {
	if !c.timer.running || c.timer.token != token {
		return false
	}
	c.OnTapTimerFired()
	return true
}

// RewriteEvent is the single entry point for input events.
func (c *Controller) RewriteEvent(ev event.Event) Result {
	if !ev.IsTouch() {
		c.logNonTouch(ev)
		return cont()
	}

	// Resolve an overdue timer first so the outcome depends on event
	// timestamps, not on when the timer callback got to run.
	if c.timer.running && ev.Time > c.timer.deadline {
		c.OnTapTimerFired()
	}
	c.now = ev.Time

	switch ev.Type {
	case event.TouchPressed:
		c.fingers.press(ev.TouchID, ev.Location)
	case event.TouchReleased, event.TouchCancelled:
		// Fingers that went down before exploration was enabled.
		if !c.fingers.release(ev.TouchID) {
			return cont()
		}
	case event.TouchMoved:
		if !c.fingers.move(ev.TouchID, ev.Location) {
			return cont()
		}
	}
	c.logState("RewriteEvent")
	c.logEvent(ev, "RewriteEvent")

	switch c.state {
	case NoFingersDown:
		return c.inNoFingersDown(ev)
	case SingleTapPressed:
		return c.inSingleTapPressed(ev)
	case SingleTapReleased, TouchExploreReleased:
		return c.inSingleTapOrTouchExploreReleased(ev)
	case DoubleTapPressed:
		return c.inDoubleTapPressed(ev)
	case TouchExploration:
		return c.inTouchExploration(ev)
	case TouchExploreSecondPress:
		return c.inTouchExploreSecondPress(ev)
	case TwoToOneFinger:
		return c.inTwoToOneFinger(ev)
	case Passthrough:
		return c.inPassthrough(ev)
	case WaitForRelease:
		return c.inWaitForRelease(ev)
	}
	return c.unexpected(ev, "RewriteEvent")
}

func (c *Controller) inNoFingersDown(ev event.Event) Result {
	if ev.Type != event.TouchPressed {
		return c.unexpected(ev, "inNoFingersDown")
	}
	c.initialPress = ev
	c.lastUnusedFinger = ev
	c.startTimer(ev.Time)
	c.setState(SingleTapPressed, "inNoFingersDown")
	return discard()
}

func (c *Controller) inSingleTapPressed(ev event.Event) Result {
	switch ev.Type {
	case event.TouchPressed:
		// Only the second finger passes through from here on. The first
		// one stays in initialPress until a third finger shows up.
		c.stopTimer()
		c.lastTwoToOne = ev
		c.setState(TwoToOneFinger, "inSingleTapPressed")
		return rewritten(copyTouch(ev, ev.Type, ev.Location, ev.TouchID))
	case event.TouchReleased, event.TouchCancelled:
		if c.fingers.len() != 0 {
			return c.unexpected(ev, "inSingleTapPressed")
		}
		c.setState(SingleTapReleased, "inSingleTapPressed")
		return discard()
	case event.TouchMoved:
		if ev.Location.Dist(c.initialPress.Location) > c.cfg.TouchSlop {
			c.enterTouchToMouseMode()
			c.setState(TouchExploration, "inSingleTapPressed")
			return c.inTouchExploration(ev)
		}
		return discard()
	}
	return c.unexpected(ev, "inSingleTapPressed")
}

func (c *Controller) inSingleTapOrTouchExploreReleased(ev event.Event) Result {
	switch ev.Type {
	case event.TouchPressed:
		// Second tap of a double tap, forwarded where the user last
		// explored. Nothing to forward without an exploration.
		if c.lastTouchExploration == nil {
			return discard()
		}
		c.stopTimer()
		c.initialPress = ev
		c.setState(DoubleTapPressed, "inSingleTapOrTouchExploreReleased")
		return rewritten(copyTouch(ev, event.TouchPressed, c.lastTouchExploration.Location, ev.TouchID))
	case event.TouchReleased, event.TouchCancelled, event.TouchMoved:
		// Only reachable for a press discarded above.
		if c.lastTouchExploration != nil {
			return c.unexpected(ev, "inSingleTapOrTouchExploreReleased")
		}
		if ev.Type != event.TouchMoved && c.fingers.len() == 0 {
			c.resetToNoFingersDown("inSingleTapOrTouchExploreReleased")
		}
		return discard()
	}
	return c.unexpected(ev, "inSingleTapOrTouchExploreReleased")
}

func (c *Controller) inDoubleTapPressed(ev event.Event) Result {
	switch ev.Type {
	case event.TouchPressed, event.TouchMoved:
		return discard()
	case event.TouchReleased, event.TouchCancelled:
		if c.fingers.len() != 0 {
			return discard()
		}
		if c.lastTouchExploration == nil {
			return c.unexpected(ev, "inDoubleTapPressed")
		}
		out := copyTouch(ev, event.TouchReleased, c.lastTouchExploration.Location, c.initialPress.TouchID)
		c.resetToNoFingersDown("inDoubleTapPressed")
		return rewritten(out)
	}
	return c.unexpected(ev, "inDoubleTapPressed")
}

func (c *Controller) inTouchExploration(ev event.Event) Result {
	switch ev.Type {
	case event.TouchPressed:
		// Split tap.
		if c.lastTouchExploration == nil {
			return c.unexpected(ev, "inTouchExploration")
		}
		c.initialPress = ev
		c.stopTimer()
		c.setState(TouchExploreSecondPress, "inTouchExploration")
		return rewritten(copyTouch(ev, event.TouchPressed, c.lastTouchExploration.Location, ev.TouchID))
	case event.TouchReleased, event.TouchCancelled:
		c.initialPress = ev
		c.startTimer(ev.Time)
		c.setState(TouchExploreReleased, "inTouchExploration")
	case event.TouchMoved:
	default:
		return c.unexpected(ev, "inTouchExploration")
	}

	explored := ev
	c.lastTouchExploration = &explored
	return rewritten(c.mouseMove(ev.Location, ev.Flags, ev.Time))
}

func (c *Controller) inTouchExploreSecondPress(ev event.Event) Result {
	switch ev.Type {
	case event.TouchPressed, event.TouchMoved:
		return discard()
	case event.TouchReleased, event.TouchCancelled:
		// With the exploring finger gone there is nothing to return to;
		// the remaining finger acts as the second tap.
		if ev.TouchID == c.lastTouchExploration.TouchID {
			c.setState(DoubleTapPressed, "inTouchExploreSecondPress")
			return discard()
		}
		if c.fingers.len() != 1 {
			return discard()
		}
		out := copyTouch(ev, event.TouchReleased, c.lastTouchExploration.Location, c.initialPress.TouchID)
		c.setState(TouchExploration, "inTouchExploreSecondPress")
		return rewritten(out)
	}
	return c.unexpected(ev, "inTouchExploreSecondPress")
}

func (c *Controller) inTwoToOneFinger(ev event.Event) Result {
	switch ev.Type {
	case event.TouchReleased, event.TouchCancelled:
		if c.fingers.len() != 1 {
			return c.unexpected(ev, "inTwoToOneFinger")
		}
		out := copyTouch(ev, event.TouchReleased, c.lastTwoToOne.Location, c.lastTwoToOne.TouchID)
		c.setState(WaitForRelease, "inTwoToOneFinger")
		return rewritten(out)
	case event.TouchPressed:
		if c.fingers.len() != 3 {
			return c.unexpected(ev, "inTwoToOneFinger")
		}
		c.setState(Passthrough, "inTwoToOneFinger")
		held := c.lastUnusedFinger
		loc, ok := c.fingers.location(held.TouchID)
		if !ok {
			loc = held.Location
		}
		press := copyTouch(held, event.TouchPressed, loc, held.TouchID)
		press.Time = ev.Time
		c.dispatch(press)
		return rewritten(copyTouch(ev, event.TouchPressed, ev.Location, ev.TouchID))
	case event.TouchMoved:
		switch ev.TouchID {
		case c.lastUnusedFinger.TouchID:
			c.lastUnusedFinger = ev
			return discard()
		case c.lastTwoToOne.TouchID:
			c.lastTwoToOne = ev
			return rewritten(copyTouch(ev, event.TouchMoved, ev.Location, ev.TouchID))
		}
	}
	return c.unexpected(ev, "inTwoToOneFinger")
}

func (c *Controller) inPassthrough(ev event.Event) Result {
	out := copyTouch(ev, ev.Type, ev.Location, ev.TouchID)
	if c.fingers.len() == 0 {
		c.resetToNoFingersDown("inPassthrough")
	}
	return rewritten(out)
}

func (c *Controller) inWaitForRelease(ev event.Event) Result {
	if c.fingers.len() == 0 {
		c.resetToNoFingersDown("inWaitForRelease")
	}
	return discard()
}

// OnTapTimerFired runs the tap timer expiry for the current state and
// disarms the timer.
func (c *Controller) OnTapTimerFired() {
	at := c.timer.deadline
	c.stopTimer()
	c.now = at

	switch c.state {
	case SingleTapReleased:
		c.resetToNoFingersDown("OnTapTimerFired")
		if !c.cfg.AnnounceSingleTap {
			return
		}
	case TouchExploreReleased:
		c.resetToNoFingersDown("OnTapTimerFired")
		explored := c.initialPress
		c.lastTouchExploration = &explored
		return
	case SingleTapPressed:
		c.enterTouchToMouseMode()
		c.setState(TouchExploration, "OnTapTimerFired")
	default:
		return
	}

	c.dispatch(c.mouseMove(c.initialPress.Location, c.initialPress.Flags, at))
	explored := c.initialPress
	c.lastTouchExploration = &explored
}

func (c *Controller) startTimer(from time.Duration) {
	c.stopTimer()
	c.nextToken++
	c.timer = tapTimer{
		running:  true,
		deadline: from + c.cfg.DoubleTapTimeout,
		token:    c.nextToken,
	}
	if c.opts.Scheduler != nil {
		c.opts.Scheduler.ScheduleAt(c.timer.deadline, c.timer.token)
	}
}

func (c *Controller) stopTimer() {
	if !c.timer.running {
		return
	}
	c.timer.running = false
	if c.opts.Scheduler != nil {
		c.opts.Scheduler.Cancel(c.timer.token)
	}
}

// resetToNoFingersDown returns to idle. A timer expiring while a discarded
// press is still held leaves fingers down, those are swallowed until they
// lift.
func (c *Controller) resetToNoFingersDown(fn string) {
	c.stopTimer()
	if c.fingers.len() > 0 {
		c.setState(WaitForRelease, fn)
		return
	}
	c.setState(NoFingersDown, fn)
}

func (c *Controller) setState(s State, fn string) {
	if s == c.state {
		return
	}
	from := c.state
	c.state = s
	c.logState(fn)
	if c.opts.Observer != nil {
		c.opts.Observer(Transition{From: from, To: s, At: c.now})
	}
}

func (c *Controller) enterTouchToMouseMode() {
	cursor := c.opts.Cursor
	if cursor == nil {
		return
	}
	if !cursor.MouseEventsEnabled() {
		cursor.EnableMouseEvents()
	}
	if cursor.CursorVisible() {
		cursor.HideCursor()
	}
}

func (c *Controller) dispatch(ev event.Event) {
	if c.opts.Sink == nil {
		c.log.WithField("event", ev.String()).Debug("no sink, dropping dispatched event")
		return
	}
	c.opts.Sink.Dispatch(ev)
}

func (c *Controller) mouseMove(loc event.Point, flags event.Flags, at time.Duration) event.Event {
	return event.NewMouseMove(loc, flags|event.FlagSynthesized|event.FlagTouchAccessibility, at)
}

func (c *Controller) unexpected(ev event.Event, fn string) Result {
	c.violation(fn, fmt.Sprintf("unexpected %s for finger %d in %s", ev.Type, ev.TouchID, c.state))
	return cont()
}

func (c *Controller) violation(fn, msg string) {
	if c.cfg.Strict {
		panic(fmt.Sprintf("explore: %s: %s", fn, msg))
	}
	c.log.WithFields(logrus.Fields{"func": fn, "state": c.state.String()}).Warn(msg)
}

// copyTouch builds a fresh touch event carrying src's timestamp and flags.
func copyTouch(src event.Event, typ event.Type, loc event.Point, id int) event.Event {
	return event.NewTouch(typ, loc, id, src.Time).WithFlags(src.Flags)
}
