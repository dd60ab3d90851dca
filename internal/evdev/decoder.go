//go:build linux

package evdev

import (
	"io"
	"sort"
	"time"

	goevdev "github.com/gvalkov/golang-evdev"
	"github.com/sirupsen/logrus"

	"github.com/verte-zerg/touchx/internal/event"
)

const noTrackingID = -1

// Single-touch devices report one contact in slot 0 with tracking id 0.
const (
	singleTouchSlot  = 0
	singleTouchTrack = 0
)

type slot struct {
	id    int
	x, y  int32
	loc   event.Point
	stale int

	active  bool
	pressed bool
	moved   bool
	lifted  bool
}

// Decoder turns multitouch protocol B frames into touch events keyed by
// tracking id. Devices without ABS_MT axes are decoded as a single touch
// driven by BTN_TOUCH and ABS_X/ABS_Y.
type Decoder struct {
	surface Surface
	log     logrus.FieldLogger

	slots    map[int]*slot
	current  int
	multi    bool
	dropping bool

	origin    time.Duration
	hasOrigin bool
}

// NewDecoder returns a decoder for the given surface.
func NewDecoder(surface Surface, log logrus.FieldLogger) *Decoder {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &Decoder{
		surface: surface,
		log:     log,
		slots:   map[int]*slot{},
	}
}

// Feed consumes one kernel event and returns the touch events completed by
// it. Touch events are only produced on SYN_REPORT.
func (d *Decoder) Feed(raw goevdev.InputEvent) []event.Event {
	at := time.Duration(raw.Time.Nano())
	if d.dropping {
		if raw.Type == goevdev.EV_SYN && raw.Code == goevdev.SYN_REPORT {
			d.dropping = false
		}
		return nil
	}
	switch raw.Type {
	case goevdev.EV_ABS:
		d.abs(raw)
	case goevdev.EV_KEY:
		if raw.Code == goevdev.BTN_TOUCH && !d.multi {
			s := d.slot(singleTouchSlot)
			switch {
			case raw.Value == 0:
				s.lifted = true
			case !s.active:
				s.id = singleTouchTrack
				s.pressed = true
			}
		}
	case goevdev.EV_SYN:
		switch raw.Code {
		case goevdev.SYN_REPORT:
			return d.frame(at)
		case goevdev.SYN_DROPPED:
			d.log.Warn("evdev buffer overrun, cancelling active touches")
			d.dropping = true
			return d.cancelAll(at)
		}
	}
	return nil
}

// Active reports the tracking ids currently down.
func (d *Decoder) Active() []int {
	var ids []int
	for _, s := range d.slots {
		if s.active {
			ids = append(ids, s.id)
		}
	}
	sort.Ints(ids)
	return ids
}

func (d *Decoder) slot(n int) *slot {
	s, ok := d.slots[n]
	if !ok {
		s = &slot{id: noTrackingID, stale: noTrackingID}
		d.slots[n] = s
	}
	return s
}

func (d *Decoder) abs(raw goevdev.InputEvent) {
	switch raw.Code {
	case goevdev.ABS_MT_SLOT:
		d.multi = true
		d.current = int(raw.Value)
	case goevdev.ABS_MT_TRACKING_ID:
		d.multi = true
		s := d.slot(d.current)
		if raw.Value == noTrackingID {
			s.lifted = true
			return
		}
		if s.active {
			// A new contact took over the slot; the old one is lifted first.
			s.stale = s.id
		}
		s.lifted = false
		s.id = int(raw.Value)
		s.pressed = true
	case goevdev.ABS_MT_POSITION_X:
		d.multi = true
		s := d.slot(d.current)
		s.x = raw.Value
		s.moved = true
	case goevdev.ABS_MT_POSITION_Y:
		d.multi = true
		s := d.slot(d.current)
		s.y = raw.Value
		s.moved = true
	case goevdev.ABS_X, goevdev.ABS_Y:
		if d.multi {
			return
		}
		s := d.slot(singleTouchSlot)
		if raw.Code == goevdev.ABS_X {
			s.x = raw.Value
		} else {
			s.y = raw.Value
		}
		s.moved = true
	}
}

func (d *Decoder) stamp(t time.Duration) time.Duration {
	if !d.hasOrigin {
		d.origin = t
		d.hasOrigin = true
	}
	return t - d.origin
}

func (d *Decoder) frame(t time.Duration) []event.Event {
	at := d.stamp(t)
	keys := d.slotKeys()

	// Releases go first so a finger lifting and another landing in the same
	// frame never look like an extra finger.
	var out []event.Event
	for _, n := range keys {
		s := d.slots[n]
		switch {
		case s.stale != noTrackingID:
			out = append(out, event.NewTouch(event.TouchReleased, s.loc, s.stale, at))
			s.stale = noTrackingID
			s.active = false
		case s.lifted && s.active && !s.pressed:
			out = append(out, event.NewTouch(event.TouchReleased, s.loc, s.id, at))
			s.active = false
			s.lifted = false
		}
	}
	for _, n := range keys {
		s := d.slots[n]
		switch {
		case s.pressed:
			s.loc = d.surface.point(s.x, s.y)
			out = append(out, event.NewTouch(event.TouchPressed, s.loc, s.id, at))
			s.active = true
			if s.lifted {
				out = append(out, event.NewTouch(event.TouchReleased, s.loc, s.id, at))
				s.active = false
			}
		case s.moved && s.active:
			loc := d.surface.point(s.x, s.y)
			if loc != s.loc {
				s.loc = loc
				out = append(out, event.NewTouch(event.TouchMoved, loc, s.id, at))
			}
		}
		s.pressed, s.moved, s.lifted = false, false, false
	}
	return out
}

func (d *Decoder) slotKeys() []int {
	keys := make([]int, 0, len(d.slots))
	for n := range d.slots {
		keys = append(keys, n)
	}
	sort.Ints(keys)
	return keys
}

func (d *Decoder) cancelAll(t time.Duration) []event.Event {
	at := d.stamp(t)
	var out []event.Event
	for _, n := range d.slotKeys() {
		s := d.slots[n]
		if s.active {
			out = append(out, event.NewTouch(event.TouchCancelled, s.loc, s.id, at))
		}
	}
	d.slots = map[int]*slot{}
	d.current = 0
	return out
}
