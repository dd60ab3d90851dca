package generator

import (
	"reflect"
	"testing"

	"github.com/verte-zerg/touchx/internal/event"
)

func TestGenerateIsDeterministicPerSeed(t *testing.T) {
	p := DefaultParams()
	a := NewSeeded(42).Generate(p, 20)
	b := NewSeeded(42).Generate(p, 20)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("expected identical streams for the same seed")
	}
	if len(a) == 0 {
		t.Fatalf("expected events")
	}
}

func TestGenerateProducesValidStreams(t *testing.T) {
	p := DefaultParams()
	for seed := int64(0); seed < 50; seed++ {
		events := NewSeeded(seed).Generate(p, 30)
		down := map[int]bool{}
		var last event.Event
		for i, ev := range events {
			if i > 0 && ev.Time < last.Time {
				t.Fatalf("seed %d: time went backwards at %d", seed, i)
			}
			switch ev.Type {
			case event.TouchPressed:
				if down[ev.TouchID] {
					t.Fatalf("seed %d: finger %d pressed twice", seed, ev.TouchID)
				}
				down[ev.TouchID] = true
			case event.TouchMoved:
				if !down[ev.TouchID] {
					t.Fatalf("seed %d: finger %d moved while up", seed, ev.TouchID)
				}
			case event.TouchReleased, event.TouchCancelled:
				if !down[ev.TouchID] {
					t.Fatalf("seed %d: finger %d lifted while up", seed, ev.TouchID)
				}
				delete(down, ev.TouchID)
			}
			if ev.Location.X < 0 || ev.Location.X > p.Width || ev.Location.Y < 0 || ev.Location.Y > p.Height {
				t.Fatalf("seed %d: location %v off surface", seed, ev.Location)
			}
			last = ev
		}
		if len(down) != 0 {
			t.Fatalf("seed %d: fingers left down: %v", seed, down)
		}
	}
}

func TestGenerateWeightedHonorsZeroWeights(t *testing.T) {
	p := DefaultParams()
	p.CancelPct = 0
	events := NewSeeded(7).GenerateWeighted(p, 10, map[Gesture]float64{Tap: 1})
	if len(events) != 20 {
		t.Fatalf("expected 10 press/release pairs, got %d events", len(events))
	}
	for _, ev := range events {
		if ev.Type == event.TouchMoved || ev.TouchID != 1 {
			t.Fatalf("unexpected event for tap-only stream: %v", ev)
		}
	}
	if got := NewSeeded(7).GenerateWeighted(p, 10, nil); got != nil {
		t.Fatalf("expected nil stream without weights")
	}
}

func TestParseGesture(t *testing.T) {
	for _, g := range All() {
		parsed, err := ParseGesture(g.String())
		if err != nil || parsed != g {
			t.Fatalf("round trip failed for %s: %v", g, err)
		}
	}
	if _, err := ParseGesture("pinch"); err == nil {
		t.Fatalf("expected error for unknown gesture")
	}
}
