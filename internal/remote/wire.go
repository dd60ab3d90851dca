// Package remote serves the rewriter to touch surfaces over WebSocket.
package remote

import (
	"fmt"
	"time"

	"github.com/verte-zerg/touchx/internal/event"
	"github.com/verte-zerg/touchx/internal/loop"
)

// Message is an event on the wire. At is in milliseconds on the client's
// monotonic clock.
type Message struct {
	Type  string   `json:"type"`
	At    float64  `json:"at"`
	ID    int      `json:"id,omitempty"`
	X     float64  `json:"x"`
	Y     float64  `json:"y"`
	Flags []string `json:"flags,omitempty"`
	Key   int      `json:"key,omitempty"`
	Char  string   `json:"char,omitempty"`
	Name  string   `json:"name,omitempty"`
}

// Hello is the first frame sent on a new connection.
type Hello struct {
	Session          string  `json:"session"`
	State            string  `json:"state"`
	DoubleTapTimeout float64 `json:"double_tap_timeout_ms"`
	TouchSlop        float64 `json:"touch_slop"`
}

// Reply reports one output of the controller. Input is absent for
// dispatched events.
type Reply struct {
	Status string   `json:"status"`
	Input  *Message `json:"input,omitempty"`
	Event  *Message `json:"event,omitempty"`
	State  string   `json:"state"`
}

// Fault is sent when a client frame cannot be decoded.
type Fault struct {
	Error string `json:"error"`
}

// MessageFromEvent converts ev for the wire.
func MessageFromEvent(ev event.Event) Message {
	msg := Message{
		Type:  ev.Type.String(),
		At:    float64(ev.Time) / float64(time.Millisecond),
		Flags: ev.Flags.Names(),
	}
	switch ev.Kind() {
	case event.KindTouch:
		msg.ID = ev.TouchID
		msg.X, msg.Y = ev.Location.X, ev.Location.Y
	case event.KindMouse:
		msg.X, msg.Y = ev.Location.X, ev.Location.Y
	case event.KindKey:
		msg.Key = ev.KeyCode
		if ev.Char != 0 {
			msg.Char = string(ev.Char)
		}
	case event.KindGesture:
		msg.Name = ev.Name
	}
	return msg
}

// Event converts m into an event.
func (m Message) Event() (event.Event, error) {
	typ, err := event.ParseType(m.Type)
	if err != nil {
		return event.Event{}, err
	}
	if m.At < 0 {
		return event.Event{}, fmt.Errorf("negative time %g", m.At)
	}
	flags, err := event.ParseFlags(m.Flags)
	if err != nil {
		return event.Event{}, err
	}
	at := time.Duration(m.At * float64(time.Millisecond))
	ev := event.Event{Type: typ, Time: at, Flags: flags}
	switch typ.Kind() {
	case event.KindTouch:
		ev.TouchID = m.ID
		ev.Location = event.Pt(m.X, m.Y)
	case event.KindMouse:
		ev.Location = event.Pt(m.X, m.Y)
	case event.KindKey:
		ev.KeyCode = m.Key
		if r := []rune(m.Char); len(r) > 0 {
			ev.Char = r[0]
		}
	case event.KindGesture:
		ev.Name = m.Name
	}
	return ev, nil
}

func replyFromOutput(out loop.Output, state string) Reply {
	reply := Reply{Status: out.Status.String(), State: state}
	if out.Dispatched {
		reply.Status = "dispatch"
	} else {
		in := MessageFromEvent(out.Input)
		reply.Input = &in
	}
	if out.Forwarded() {
		ev := MessageFromEvent(out.Event)
		reply.Event = &ev
	}
	return reply
}
