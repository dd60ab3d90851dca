// Package event defines the input events flowing through the rewriter.
package event

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Type identifies an event. The set is closed; Kind groups types into
// touch, mouse, key and gesture variants.
type Type int

const (
	Unknown Type = iota
	TouchPressed
	TouchMoved
	TouchReleased
	TouchCancelled
	MouseMoved
	KeyPressed
	KeyReleased
	Gesture
)

// Kind is the variant of an event.
type Kind int

const (
	KindUnknown Kind = iota
	KindTouch
	KindMouse
	KindKey
	KindGesture
)

var typeNames = map[Type]string{
	Unknown:        "unknown",
	TouchPressed:   "press",
	TouchMoved:     "move",
	TouchReleased:  "release",
	TouchCancelled: "cancel",
	MouseMoved:     "mouse-move",
	KeyPressed:     "key-press",
	KeyReleased:    "key-release",
	Gesture:        "gesture",
}

// String returns the short name used in scenarios and logs.
func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("type(%d)", int(t))
}

// ParseType maps a short name back to a Type.
func ParseType(name string) (Type, error) {
	name = strings.TrimSpace(strings.ToLower(name))
	for t, n := range typeNames {
		if n == name && t != Unknown {
			return t, nil
		}
	}
	return Unknown, fmt.Errorf("unknown event type %q", name)
}

// Kind reports the variant the type belongs to.
func (t Type) Kind() Kind {
	switch t {
	case TouchPressed, TouchMoved, TouchReleased, TouchCancelled:
		return KindTouch
	case MouseMoved:
		return KindMouse
	case KeyPressed, KeyReleased:
		return KindKey
	case Gesture:
		return KindGesture
	default:
		return KindUnknown
	}
}

// Point is a location in surface coordinates.
type Point struct {
	X float64
	Y float64
}

// Pt is shorthand for Point{X: x, Y: y}.
func Pt(x, y float64) Point {
	return Point{X: x, Y: y}
}

// Sub returns p-q.
func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y}
}

// Len returns the Euclidean length of p as a vector.
func (p Point) Len() float64 {
	return math.Hypot(p.X, p.Y)
}

// Dist returns the Euclidean distance between p and q.
func (p Point) Dist(q Point) float64 {
	return p.Sub(q).Len()
}

func (p Point) String() string {
	return fmt.Sprintf("(%g,%g)", p.X, p.Y)
}

// Event is a single input event. Time and Flags are common to every
// variant; the remaining fields are meaningful only for the variant named
// by Type.
type Event struct {
	Type  Type
	Time  time.Duration // monotonic, relative to the source's origin
	Flags Flags

	// Touch.
	TouchID  int
	Location Point

	// Key.
	KeyCode int
	Char    rune

	// Gesture.
	Name string
}

// Kind reports the variant of e.
func (e Event) Kind() Kind {
	return e.Type.Kind()
}

// IsTouch reports whether e is a touch event.
func (e Event) IsTouch() bool {
	return e.Kind() == KindTouch
}

// NewTouch builds a touch event.
func NewTouch(typ Type, loc Point, id int, at time.Duration) Event {
	return Event{Type: typ, Location: loc, TouchID: id, Time: at}
}

// NewMouseMove builds a mouse move event. The location doubles as the root
// location, there is no separate root coordinate space here.
func NewMouseMove(loc Point, flags Flags, at time.Duration) Event {
	return Event{Type: MouseMoved, Location: loc, Flags: flags, Time: at}
}

// NewKey builds a key event.
func NewKey(typ Type, code int, char rune, flags Flags, at time.Duration) Event {
	return Event{Type: typ, KeyCode: code, Char: char, Flags: flags, Time: at}
}

// WithFlags returns a copy of e with flags replaced.
func (e Event) WithFlags(flags Flags) Event {
	e.Flags = flags
	return e
}

// String renders the event in a compact single-line form.
func (e Event) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", formatTime(e.Time), e.Type)
	switch e.Kind() {
	case KindTouch:
		fmt.Fprintf(&b, " id=%d %s", e.TouchID, e.Location)
	case KindMouse:
		fmt.Fprintf(&b, " %s", e.Location)
	case KindKey:
		fmt.Fprintf(&b, " code=%d", e.KeyCode)
		if e.Char != 0 {
			fmt.Fprintf(&b, " char=%q", e.Char)
		}
	case KindGesture:
		fmt.Fprintf(&b, " %s", e.Name)
	}
	if e.Flags != 0 {
		fmt.Fprintf(&b, " [%s]", e.Flags)
	}
	return b.String()
}

func formatTime(d time.Duration) string {
	return fmt.Sprintf("%dms", d.Milliseconds())
}
