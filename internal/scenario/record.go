package scenario

import (
	"time"

	"github.com/verte-zerg/touchx/internal/event"
	"github.com/verte-zerg/touchx/internal/explore"
	"github.com/verte-zerg/touchx/internal/model"
)

// FromRecords rebuilds a scenario from a stored session. Inputs become
// events; dispatched and rewritten outputs become expectations.
func FromRecords(sess model.Session, events []model.EventRecord, final string) *Scenario {
	timeout := Duration(time.Duration(sess.DoubleTapTimeoutMs) * time.Millisecond)
	slop := sess.TouchSlop
	announce := sess.AnnounceSingleTap
	sc := &Scenario{
		Name: sess.Name,
		Config: Config{
			DoubleTapTimeout:  &timeout,
			TouchSlop:         &slop,
			AnnounceSingleTap: &announce,
		},
		Final: final,
	}
	for _, rec := range events {
		step := Step{
			At:    Duration(rec.TimeNs),
			Type:  rec.Type,
			X:     rec.X,
			Y:     rec.Y,
			Flags: event.Flags(rec.Flags).Names(),
			Key:   rec.KeyCode,
			Name:  rec.Name,
		}
		if typ, err := event.ParseType(rec.Type); err == nil && typ.Kind() == event.KindTouch {
			step.ID = rec.TouchID
		}
		if rec.Direction == model.DirectionIn {
			sc.Events = append(sc.Events, step)
			continue
		}
		sc.Expect = append(sc.Expect, step)
	}
	return sc
}

// FinalState returns the state after the last transition, or the idle state.
func FinalState(transitions []model.TransitionRecord) string {
	if len(transitions) == 0 {
		return explore.NoFingersDown.String()
	}
	return transitions[len(transitions)-1].To
}
