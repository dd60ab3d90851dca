package stats

import (
	"testing"

	"github.com/verte-zerg/touchx/internal/model"
)

func TestTopTransitions(t *testing.T) {
	counts := []model.TransitionCount{
		{From: "B", To: "C", Count: 3},
		{From: "A", To: "B", Count: 5},
		{From: "A", To: "C", Count: 3},
	}
	top := TopTransitions(counts, 2)
	if len(top) != 2 {
		t.Fatalf("expected 2 transitions, got %d", len(top))
	}
	if top[0].From != "A" || top[0].To != "B" || top[1].From != "A" || top[1].To != "C" {
		t.Fatalf("unexpected order: %v", top)
	}
	if got := TopTransitions(counts, 0); len(got) != 3 {
		t.Fatalf("expected all transitions, got %d", len(got))
	}
}
