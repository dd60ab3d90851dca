// Package generator builds synthetic touch gesture streams.
package generator

import (
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/verte-zerg/touchx/internal/event"
)

// Gesture names a kind of generated gesture.
type Gesture int

const (
	Tap Gesture = iota
	Hold
	Explore
	DoubleTap
	SplitTap
	TwoFingerDrag
	ThreeFingerSwipe
	gestureCount
)

var gestureNames = [...]string{
	Tap:              "tap",
	Hold:             "hold",
	Explore:          "explore",
	DoubleTap:        "double-tap",
	SplitTap:         "split-tap",
	TwoFingerDrag:    "two-finger-drag",
	ThreeFingerSwipe: "three-finger-swipe",
}

func (g Gesture) String() string {
	if g >= 0 && g < gestureCount {
		return gestureNames[g]
	}
	return fmt.Sprintf("gesture(%d)", int(g))
}

// ParseGesture maps a name to a Gesture.
func ParseGesture(name string) (Gesture, error) {
	name = strings.TrimSpace(strings.ToLower(name))
	for i, n := range gestureNames {
		if n == name {
			return Gesture(i), nil
		}
	}
	return 0, fmt.Errorf("unknown gesture %q", name)
}

// All lists every gesture kind.
func All() []Gesture {
	out := make([]Gesture, 0, gestureCount)
	for g := Gesture(0); g < gestureCount; g++ {
		out = append(out, g)
	}
	return out
}

// Params shapes the generated stream.
type Params struct {
	DoubleTapTimeout time.Duration
	TouchSlop        float64
	Width            float64
	Height           float64
	// CancelPct is the probability that a finger lift is a cancel.
	CancelPct float64
}

// DefaultParams matches the default controller thresholds on a 1280x800
// surface.
func DefaultParams() Params {
	return Params{
		DoubleTapTimeout: 300 * time.Millisecond,
		TouchSlop:        15,
		Width:            1280,
		Height:           800,
		CancelPct:        0.05,
	}
}

// Generator produces randomized, physically valid touch streams: fingers
// only move or lift while down, and every gesture lifts all its fingers.
type Generator struct {
	rnd *rand.Rand
}

// New returns a Generator seeded with the current time.
func New() *Generator {
	return NewSeeded(time.Now().UnixNano())
}

// NewSeeded returns a deterministic Generator.
func NewSeeded(seed int64) *Generator {
	return &Generator{rnd: rand.New(rand.NewSource(seed))}
}

// Generate emits count gestures chosen uniformly.
func (g *Generator) Generate(p Params, count int) []event.Event {
	kinds := make([]Gesture, 0, count)
	for i := 0; i < count; i++ {
		kinds = append(kinds, Gesture(g.rnd.Intn(int(gestureCount))))
	}
	return g.build(p, kinds)
}

// GenerateWeighted emits count gestures drawn with the given weights.
// Gestures missing from weights are never drawn.
func (g *Generator) GenerateWeighted(p Params, count int, weights map[Gesture]float64) []event.Event {
	total := 0.0
	for _, w := range weights {
		if w > 0 {
			total += w
		}
	}
	if total == 0 {
		return nil
	}
	kinds := make([]Gesture, 0, count)
	for i := 0; i < count; i++ {
		r := g.rnd.Float64() * total
		acc := 0.0
		pick := Tap
		for _, k := range All() {
			w := weights[k]
			if w <= 0 {
				continue
			}
			acc += w
			pick = k
			if r <= acc {
				break
			}
		}
		kinds = append(kinds, pick)
	}
	return g.build(p, kinds)
}

// Sequence emits the listed gestures in order.
func (g *Generator) Sequence(p Params, kinds ...Gesture) []event.Event {
	return g.build(p, kinds)
}

type stream struct {
	p      Params
	rnd    *rand.Rand
	now    time.Duration
	events []event.Event
}

func (g *Generator) build(p Params, kinds []Gesture) []event.Event {
	s := &stream{p: p, rnd: g.rnd}
	for _, k := range kinds {
		s.gesture(k)
		s.gap()
	}
	return s.events
}

func (s *stream) gesture(k Gesture) {
	switch k {
	case Tap:
		s.tap(1)
	case Hold:
		at := s.point()
		s.press(1, at)
		s.advance(s.p.DoubleTapTimeout + s.jitter(s.p.DoubleTapTimeout))
		s.lift(1, at)
	case Explore:
		s.drag(1, s.point(), 4+s.rnd.Intn(8))
	case DoubleTap:
		s.tap(1)
		s.advance(s.jitter(s.p.DoubleTapTimeout / 2))
		s.tap(1)
	case SplitTap:
		explorer := s.point()
		s.press(1, explorer)
		explorer = s.moveFar(1, explorer)
		split := s.point()
		s.press(2, split)
		s.step()
		if s.rnd.Intn(2) == 0 {
			s.lift(2, split)
			s.step()
			s.lift(1, explorer)
		} else {
			s.lift(1, explorer)
			s.step()
			s.lift(2, split)
		}
	case TwoFingerDrag:
		a, b := s.point(), s.point()
		s.press(1, a)
		s.step()
		s.press(2, b)
		for i := 0; i < 3+s.rnd.Intn(4); i++ {
			a = s.nudge(1, a)
			b = s.nudge(2, b)
		}
		s.lift(2, b)
		s.step()
		s.lift(1, a)
	case ThreeFingerSwipe:
		pts := []event.Point{s.point(), s.point(), s.point()}
		for i, pt := range pts {
			s.press(i+1, pt)
			s.step()
		}
		for n := 0; n < 3+s.rnd.Intn(4); n++ {
			for i := range pts {
				pts[i] = s.nudge(i+1, pts[i])
			}
		}
		for _, i := range s.rnd.Perm(len(pts)) {
			s.lift(i+1, pts[i])
			s.step()
		}
	}
}

func (s *stream) tap(id int) {
	at := s.point()
	s.press(id, at)
	s.step()
	s.lift(id, at)
}

func (s *stream) drag(id int, from event.Point, steps int) {
	s.press(id, from)
	at := s.moveFar(id, from)
	for i := 0; i < steps; i++ {
		at = s.nudge(id, at)
	}
	s.lift(id, at)
}

// moveFar moves a finger past the slop distance.
func (s *stream) moveFar(id int, from event.Point) event.Point {
	angle := s.rnd.Float64() * 2 * math.Pi
	dist := s.p.TouchSlop + 1 + s.rnd.Float64()*40
	to := s.clamp(event.Pt(from.X+dist*math.Cos(angle), from.Y+dist*math.Sin(angle)))
	if to.Dist(from) <= s.p.TouchSlop {
		// Clamped against an edge, go the other way.
		to = s.clamp(event.Pt(from.X-dist*math.Cos(angle), from.Y-dist*math.Sin(angle)))
	}
	s.step()
	s.emit(event.TouchMoved, id, to)
	return to
}

func (s *stream) nudge(id int, from event.Point) event.Point {
	to := s.clamp(event.Pt(from.X+s.rnd.Float64()*20-10, from.Y+s.rnd.Float64()*20-10))
	s.step()
	s.emit(event.TouchMoved, id, to)
	return to
}

func (s *stream) press(id int, at event.Point) {
	s.emit(event.TouchPressed, id, at)
}

func (s *stream) lift(id int, at event.Point) {
	typ := event.TouchReleased
	if s.rnd.Float64() < s.p.CancelPct {
		typ = event.TouchCancelled
	}
	s.emit(typ, id, at)
}

func (s *stream) emit(typ event.Type, id int, at event.Point) {
	s.events = append(s.events, event.NewTouch(typ, at, id, s.now))
}

func (s *stream) point() event.Point {
	return event.Pt(math.Round(s.rnd.Float64()*s.p.Width), math.Round(s.rnd.Float64()*s.p.Height))
}

func (s *stream) clamp(pt event.Point) event.Point {
	pt.X = math.Max(0, math.Min(s.p.Width, pt.X))
	pt.Y = math.Max(0, math.Min(s.p.Height, pt.Y))
	return pt
}

func (s *stream) step() {
	s.advance(time.Duration(5+s.rnd.Intn(30)) * time.Millisecond)
}

// gap leaves between zero and two timeouts between gestures so that both
// in-window and expired follow-ups occur.
func (s *stream) gap() {
	s.advance(s.jitter(2 * s.p.DoubleTapTimeout))
}

func (s *stream) jitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(s.rnd.Int63n(int64(max)))
}

func (s *stream) advance(d time.Duration) {
	s.now += d
}
