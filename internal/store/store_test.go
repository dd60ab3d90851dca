package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/verte-zerg/touchx/internal/event"
	"github.com/verte-zerg/touchx/internal/explore"
	"github.com/verte-zerg/touchx/internal/loop"
	"github.com/verte-zerg/touchx/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "data", "touchx.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := st.Close(); err != nil {
			t.Errorf("close store: %v", err)
		}
	})
	return st
}

// recordTap runs a double tap after an exploration through a real
// controller and records it.
func recordTap(t *testing.T, source string) *Recorder {
	t.Helper()
	cfg := explore.DefaultConfig()
	rec := NewRecorder(source, "double tap", cfg)
	ctrl, err := explore.New(cfg, explore.Options{
		Sink: explore.SinkFunc(func(ev event.Event) {
			rec.Emit(loop.Output{Event: ev, Status: explore.Rewritten, Dispatched: true})
		}),
		Observer: rec.Observe,
	})
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	feed := func(typ event.Type, id int, x, y float64, ms int) {
		ev := event.NewTouch(typ, event.Pt(x, y), id, time.Duration(ms)*time.Millisecond)
		res := ctrl.RewriteEvent(ev)
		out := loop.Output{Input: ev, Status: res.Status, Event: ev}
		if res.Status == explore.Rewritten {
			out.Event = res.Event
		}
		rec.Emit(out)
	}
	feed(event.TouchPressed, 1, 0, 0, 0)
	ctrl.FireTapTimerNow()
	feed(event.TouchReleased, 1, 0, 0, 400)
	feed(event.TouchPressed, 1, 5, 5, 1000)
	feed(event.TouchReleased, 1, 5, 5, 1040)
	feed(event.TouchPressed, 2, 9, 9, 1100)
	feed(event.TouchReleased, 2, 9, 9, 1150)
	return rec
}

func TestInsertAndGetSession(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	rec := recordTap(t, "replay")

	id, err := rec.Save(ctx, st)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if id != rec.ID() {
		t.Fatalf("expected recorder id %s, got %s", rec.ID(), id)
	}

	sess, events, transitions, err := st.GetSession(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if sess.Source != "replay" || sess.DoubleTapTimeoutMs != 300 || sess.TouchSlop != 15 {
		t.Fatalf("unexpected session: %+v", sess)
	}
	if rec.Len() != 6 {
		t.Fatalf("expected 6 inputs, got %d", rec.Len())
	}
	if len(events) != len(rec.events) {
		t.Fatalf("expected %d events, got %d", len(rec.events), len(events))
	}
	first := events[0]
	if first.Direction != model.DirectionIn || first.Status != "discard" || first.Type != "press" {
		t.Fatalf("unexpected first event: %+v", first)
	}
	dispatched := events[1]
	if dispatched.Direction != model.DirectionOut || dispatched.Status != "dispatch" || dispatched.TimeNs != int64(300*time.Millisecond) {
		t.Fatalf("unexpected dispatched event: %+v", dispatched)
	}
	if event.Flags(dispatched.Flags) != event.FlagSynthesized|event.FlagTouchAccessibility {
		t.Fatalf("flags not preserved: %v", dispatched.Flags)
	}
	if len(transitions) == 0 || transitions[0].From != "NO_FINGERS_DOWN" || transitions[0].To != "SINGLE_TAP_PRESSED" {
		t.Fatalf("unexpected transitions: %+v", transitions)
	}
}

func TestListSessionsCountsStatuses(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	if _, err := recordTap(t, "replay").Save(ctx, st); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := recordTap(t, "pad").Save(ctx, st); err != nil {
		t.Fatalf("save: %v", err)
	}

	all, err := st.ListSessions(ctx, model.StatsConfig{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(all))
	}
	agg := all[0]
	// The hold press and the first tap are discarded; the explore release
	// and the double tap are rewritten.
	if agg.Inputs != 6 || agg.Discarded != 3 || agg.Rewritten != 3 || agg.Dispatched != 1 || agg.Passed != 0 {
		t.Fatalf("unexpected aggregate: %+v", agg)
	}

	pads, err := st.ListSessions(ctx, model.StatsConfig{Source: "pad"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(pads) != 1 || pads[0].Source != "pad" {
		t.Fatalf("source filter failed: %+v", pads)
	}

	last, err := st.ListSessions(ctx, model.StatsConfig{Last: 1})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(last) != 1 || last[0].SessionID != all[1].SessionID {
		t.Fatalf("last filter failed: %+v", last)
	}

	future := time.Now().Add(time.Hour)
	none, err := st.ListSessions(ctx, model.StatsConfig{Since: &future})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected no sessions after %v", future)
	}
}

func TestCountTransitions(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	id, err := recordTap(t, "replay").Save(ctx, st)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	counts, err := st.CountTransitions(ctx, []string{id})
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	found := false
	for _, c := range counts {
		if c.From == "SINGLE_TAP_RELEASED" && c.To == "DOUBLE_TAP_PRESSED" {
			found = c.Count == 1
		}
	}
	if !found {
		t.Fatalf("double tap transition missing: %+v", counts)
	}
	if empty, err := st.CountTransitions(ctx, nil); err != nil || empty != nil {
		t.Fatalf("expected nil for no sessions, got %v %v", empty, err)
	}
}

func TestDeleteSession(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	id, err := recordTap(t, "replay").Save(ctx, st)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := st.DeleteSession(ctx, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, _, _, err := st.GetSession(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := st.DeleteSession(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}
