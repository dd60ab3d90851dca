package stats

import (
	"context"

	"github.com/verte-zerg/touchx/internal/model"
	"github.com/verte-zerg/touchx/internal/store"
)

// Report contains precomputed data for stats rendering.
type Report struct {
	Sessions    []model.SessionAggregate
	Transitions []model.TransitionCount
	Gestures    Gestures
}

// BuildReport loads and prepares data for stats rendering.
func BuildReport(ctx context.Context, st *store.Store, cfg model.StatsConfig) (Report, error) {
	sessions, err := st.ListSessions(ctx, cfg)
	if err != nil {
		return Report{}, err
	}
	transitions, err := st.CountTransitions(ctx, sessionIDs(sessions))
	if err != nil {
		return Report{}, err
	}
	return Report{
		Sessions:    sessions,
		Transitions: transitions,
		Gestures:    CountGestures(transitions),
	}, nil
}

func sessionIDs(sessions []model.SessionAggregate) []string {
	ids := make([]string, len(sessions))
	for i, s := range sessions {
		ids[i] = s.SessionID
	}
	return ids
}
