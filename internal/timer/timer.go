// Package timer provides tap timer schedulers for the explore controller.
package timer

import (
	"sort"
	"sync"
	"time"

	"github.com/verte-zerg/touchx/internal/explore"
)

// Manual is a virtual clock scheduler. Nothing fires on its own; the owner
// asks for due tokens and hands them to the controller.
type Manual struct {
	pending map[explore.Token]time.Duration
}

// NewManual returns an empty Manual scheduler.
func NewManual() *Manual {
	return &Manual{pending: map[explore.Token]time.Duration{}}
}

// ScheduleAt implements explore.Scheduler.
func (m *Manual) ScheduleAt(deadline time.Duration, token explore.Token) {
	m.pending[token] = deadline
}

// Cancel implements explore.Scheduler.
func (m *Manual) Cancel(token explore.Token) {
	delete(m.pending, token)
}

// Len returns the number of armed timers.
func (m *Manual) Len() int {
	return len(m.pending)
}

// Next returns the earliest armed timer.
func (m *Manual) Next() (explore.Token, time.Duration, bool) {
	if len(m.pending) == 0 {
		return 0, 0, false
	}
	tokens := make([]explore.Token, 0, len(m.pending))
	for tok := range m.pending {
		tokens = append(tokens, tok)
	}
	sort.Slice(tokens, func(i, j int) bool {
		a, b := m.pending[tokens[i]], m.pending[tokens[j]]
		if a != b {
			return a < b
		}
		return tokens[i] < tokens[j]
	})
	return tokens[0], m.pending[tokens[0]], true
}

// Due returns the earliest timer whose deadline is strictly before now and
// disarms it.
func (m *Manual) Due(now time.Duration) (explore.Token, time.Duration, bool) {
	tok, deadline, ok := m.Next()
	if !ok || deadline >= now {
		return 0, 0, false
	}
	delete(m.pending, tok)
	return tok, deadline, true
}

// Pop disarms and returns the earliest timer regardless of the clock.
func (m *Manual) Pop() (explore.Token, time.Duration, bool) {
	tok, deadline, ok := m.Next()
	if ok {
		delete(m.pending, tok)
	}
	return tok, deadline, ok
}

// Wall arms real timers relative to a monotonic origin. Expired tokens are
// posted on C and must be handed to the controller by the goroutine that owns
// it.
type Wall struct {
	origin time.Time

	mu     sync.Mutex
	timers map[explore.Token]*time.Timer
	c      chan explore.Token
	done   chan struct{}
	closed bool
}

// NewWall returns a Wall scheduler whose clock starts now.
func NewWall() *Wall {
	return NewWallAt(time.Now())
}

// NewWallAt returns a Wall scheduler with the given origin.
func NewWallAt(origin time.Time) *Wall {
	return &Wall{
		origin: origin,
		timers: map[explore.Token]*time.Timer{},
		c:      make(chan explore.Token, 8),
		done:   make(chan struct{}),
	}
}

// Now returns the time elapsed since the origin, in the controller's clock.
func (w *Wall) Now() time.Duration {
	return time.Since(w.origin)
}

// C delivers the tokens of expired timers.
func (w *Wall) C() <-chan explore.Token {
	return w.c
}

// ScheduleAt implements explore.Scheduler.
func (w *Wall) ScheduleAt(deadline time.Duration, token explore.Token) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if old, ok := w.timers[token]; ok {
		old.Stop()
	}
	delay := deadline - w.Now()
	if delay < 0 {
		delay = 0
	}
	w.timers[token] = time.AfterFunc(delay, func() {
		w.mu.Lock()
		delete(w.timers, token)
		w.mu.Unlock()
		select {
		case w.c <- token:
		case <-w.done:
		}
	})
}

// Cancel implements explore.Scheduler. A token already posted on C stays
// there; the controller ignores it as stale.
func (w *Wall) Cancel(token explore.Token) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[token]; ok {
		t.Stop()
		delete(w.timers, token)
	}
}

// Stop cancels every armed timer. The scheduler cannot be reused.
func (w *Wall) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.closed = true
	for tok, t := range w.timers {
		t.Stop()
		delete(w.timers, tok)
	}
	close(w.done)
}
