// Package model defines shared data structures.
package model

import "time"

// Directions of a recorded event.
const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

// Session describes one recorded run of the controller.
type Session struct {
	ID                 string
	Source             string
	Name               string
	StartedAt          time.Time
	EndedAt            time.Time
	DoubleTapTimeoutMs int64
	TouchSlop          float64
	AnnounceSingleTap  bool
}

// EventRecord is one event entering or leaving the controller. Input rows
// carry the controller's verdict in Status.
type EventRecord struct {
	Seq       int
	Direction string
	Status    string
	Type      string
	TouchID   int
	X         float64
	Y         float64
	Flags     uint32
	KeyCode   int
	Name      string
	TimeNs    int64
}

// TransitionRecord is one state change of a recorded session.
type TransitionRecord struct {
	Seq    int
	From   string
	To     string
	TimeNs int64
}

// StatsConfig defines filters and options for stats output.
type StatsConfig struct {
	Source string
	Since  *time.Time
	Last   int
}

// SessionAggregate summarizes a session for reporting.
type SessionAggregate struct {
	SessionID  string
	Source     string
	Name       string
	EndedAt    time.Time
	Inputs     int
	Discarded  int
	Rewritten  int
	Passed     int
	Dispatched int
	DurationMs int64
}

// TransitionCount counts one kind of state change across sessions.
type TransitionCount struct {
	From  string
	To    string
	Count int
}
