package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/verte-zerg/touchx/internal/event"
	"github.com/verte-zerg/touchx/internal/explore"
	"github.com/verte-zerg/touchx/internal/loop"
	"github.com/verte-zerg/touchx/internal/model"
)

// Recorder collects a session in memory. It is a loop.Sink and its Observe
// method is an explore transition observer. Not safe for concurrent use.
type Recorder struct {
	sess        model.Session
	events      []model.EventRecord
	transitions []model.TransitionRecord
}

// NewRecorder starts recording a session now.
func NewRecorder(source, name string, cfg explore.Config) *Recorder {
	return &Recorder{sess: model.Session{
		ID:                 uuid.NewString(),
		Source:             source,
		Name:               name,
		StartedAt:          time.Now(),
		DoubleTapTimeoutMs: cfg.DoubleTapTimeout.Milliseconds(),
		TouchSlop:          cfg.TouchSlop,
		AnnounceSingleTap:  cfg.AnnounceSingleTap,
	}}
}

// ID returns the session id.
func (r *Recorder) ID() string {
	return r.sess.ID
}

// Len returns the number of recorded input events.
func (r *Recorder) Len() int {
	n := 0
	for _, ev := range r.events {
		if ev.Direction == model.DirectionIn {
			n++
		}
	}
	return n
}

// Emit implements loop.Sink.
func (r *Recorder) Emit(out loop.Output) {
	if out.Dispatched {
		r.add(model.DirectionOut, "dispatch", out.Event)
		return
	}
	r.add(model.DirectionIn, out.Status.String(), out.Input)
	if out.Status == explore.Rewritten {
		r.add(model.DirectionOut, out.Status.String(), out.Event)
	}
}

// Observe records a state change.
func (r *Recorder) Observe(tr explore.Transition) {
	r.transitions = append(r.transitions, model.TransitionRecord{
		Seq:    len(r.transitions),
		From:   tr.From.String(),
		To:     tr.To.String(),
		TimeNs: int64(tr.At),
	})
}

func (r *Recorder) add(dir, status string, ev event.Event) {
	r.events = append(r.events, model.EventRecord{
		Seq:       len(r.events),
		Direction: dir,
		Status:    status,
		Type:      ev.Type.String(),
		TouchID:   ev.TouchID,
		X:         ev.Location.X,
		Y:         ev.Location.Y,
		Flags:     uint32(ev.Flags),
		KeyCode:   ev.KeyCode,
		Name:      ev.Name,
		TimeNs:    int64(ev.Time),
	})
}

// Save ends the session and stores it.
func (r *Recorder) Save(ctx context.Context, s *Store) (string, error) {
	r.sess.EndedAt = time.Now()
	return s.InsertSession(ctx, r.sess, r.events, r.transitions)
}
