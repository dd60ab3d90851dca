package explore

import (
	"fmt"
	"time"

	"github.com/verte-zerg/touchx/internal/event"
)

// State is a state of the gesture state machine.
type State int

const (
	// NoFingersDown is the idle state.
	NoFingersDown State = iota
	// SingleTapPressed: one finger down, still ambiguous between tap,
	// exploration and a multi-finger gesture.
	SingleTapPressed
	// SingleTapReleased: a tap completed, a second tap may follow.
	SingleTapReleased
	// TouchExploreReleased: the exploring finger lifted, a tap may follow.
	TouchExploreReleased
	// DoubleTapPressed: the second tap of a double tap is down and is
	// forwarded at the last exploration location.
	DoubleTapPressed
	// TouchExploration: one finger drags and emits mouse moves.
	TouchExploration
	// TouchExploreSecondPress: split tap, a second finger pressed while
	// exploring.
	TouchExploreSecondPress
	// TwoToOneFinger: two fingers down, only the second one passes through.
	TwoToOneFinger
	// Passthrough: three or more fingers, everything passes through.
	Passthrough
	// WaitForRelease swallows everything until every finger lifts.
	WaitForRelease
)

var stateNames = [...]string{
	NoFingersDown:           "NO_FINGERS_DOWN",
	SingleTapPressed:        "SINGLE_TAP_PRESSED",
	SingleTapReleased:       "SINGLE_TAP_RELEASED",
	TouchExploreReleased:    "TOUCH_EXPLORE_RELEASED",
	DoubleTapPressed:        "DOUBLE_TAP_PRESSED",
	TouchExploration:        "TOUCH_EXPLORATION",
	TouchExploreSecondPress: "TOUCH_EXPLORE_SECOND_PRESS",
	TwoToOneFinger:          "TWO_TO_ONE_FINGER",
	Passthrough:             "PASSTHROUGH",
	WaitForRelease:          "WAIT_FOR_RELEASE",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// ParseState maps a state name back to a State.
func ParseState(name string) (State, error) {
	for i, n := range stateNames {
		if n == name {
			return State(i), nil
		}
	}
	return 0, fmt.Errorf("unknown state %q", name)
}

// Status tells the caller what to do with the event it passed in.
type Status int

const (
	// Continue forwards the original event unchanged.
	Continue Status = iota
	// Discard drops the event.
	Discard
	// Rewritten replaces the event with Result.Event.
	Rewritten
)

func (s Status) String() string {
	switch s {
	case Continue:
		return "continue"
	case Discard:
		return "discard"
	case Rewritten:
		return "rewritten"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Result is the outcome of RewriteEvent. Event is set only when Status is
// Rewritten.
type Result struct {
	Status Status
	Event  event.Event
}

func cont() Result    { return Result{Status: Continue} }
func discard() Result { return Result{Status: Discard} }

func rewritten(ev event.Event) Result {
	return Result{Status: Rewritten, Event: ev}
}

// Transition records a state change.
type Transition struct {
	From State
	To   State
	At   time.Duration
}
