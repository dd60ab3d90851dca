// Package scenario loads, replays and checks recorded gesture scenarios.
package scenario

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/verte-zerg/touchx/internal/event"
	"github.com/verte-zerg/touchx/internal/explore"
)

// Duration is a time.Duration written as "300ms" in YAML.
type Duration time.Duration

// UnmarshalYAML accepts Go duration strings and bare integers (milliseconds).
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var ms int64
	if err := node.Decode(&ms); err == nil {
		*d = Duration(time.Duration(ms) * time.Millisecond)
		return nil
	}
	var raw string
	if err := node.Decode(&raw); err != nil {
		return fmt.Errorf("line %d: invalid duration: %w", node.Line, err)
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q: %w", node.Line, raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Config overrides controller thresholds. Unset fields keep the caller's
// base config.
type Config struct {
	DoubleTapTimeout  *Duration `yaml:"double-tap-timeout,omitempty"`
	TouchSlop         *float64  `yaml:"touch-slop,omitempty"`
	AnnounceSingleTap *bool     `yaml:"announce-single-tap,omitempty"`
}

// Apply returns base with the scenario overrides applied.
func (c Config) Apply(base explore.Config) explore.Config {
	if c.DoubleTapTimeout != nil {
		base.DoubleTapTimeout = time.Duration(*c.DoubleTapTimeout)
	}
	if c.TouchSlop != nil {
		base.TouchSlop = *c.TouchSlop
	}
	if c.AnnounceSingleTap != nil {
		base.AnnounceSingleTap = *c.AnnounceSingleTap
	}
	return base
}

// Step is one event in a scenario, either an input or an expected output.
type Step struct {
	At    Duration `yaml:"at"`
	Type  string   `yaml:"type"`
	ID    int      `yaml:"id,omitempty"`
	X     float64  `yaml:"x"`
	Y     float64  `yaml:"y"`
	Flags []string `yaml:"flags,omitempty,flow"`
	Key   int      `yaml:"key,omitempty"`
	Name  string   `yaml:"name,omitempty"`
}

// Event converts the step into an event.
func (s Step) Event() (event.Event, error) {
	typ, err := event.ParseType(s.Type)
	if err != nil {
		return event.Event{}, err
	}
	flags, err := event.ParseFlags(s.Flags)
	if err != nil {
		return event.Event{}, err
	}
	at := time.Duration(s.At)
	switch typ.Kind() {
	case event.KindTouch:
		return event.NewTouch(typ, event.Pt(s.X, s.Y), s.ID, at).WithFlags(flags), nil
	case event.KindMouse:
		return event.NewMouseMove(event.Pt(s.X, s.Y), flags, at), nil
	case event.KindKey:
		return event.NewKey(typ, s.Key, 0, flags, at), nil
	default:
		return event.Event{Type: typ, Name: s.Name, Flags: flags, Time: at}, nil
	}
}

// StepFromEvent is the inverse of Step.Event.
func StepFromEvent(ev event.Event) Step {
	s := Step{
		At:    Duration(ev.Time),
		Type:  ev.Type.String(),
		Flags: ev.Flags.Names(),
	}
	switch ev.Kind() {
	case event.KindTouch:
		s.ID = ev.TouchID
		s.X, s.Y = ev.Location.X, ev.Location.Y
	case event.KindMouse:
		s.X, s.Y = ev.Location.X, ev.Location.Y
	case event.KindKey:
		s.Key = ev.KeyCode
	case event.KindGesture:
		s.Name = ev.Name
	}
	return s
}

// Scenario is a recorded input sequence with the outputs it should produce.
// Expect lists the events the controller produced, dispatched or rewritten,
// in order; discarded and passed-through inputs are not listed.
type Scenario struct {
	Name   string    `yaml:"name"`
	Config Config    `yaml:"config,omitempty"`
	Events []Step    `yaml:"events"`
	Until  *Duration `yaml:"until,omitempty"`
	Expect []Step    `yaml:"expect,omitempty"`
	// Final is the expected state after Until.
	Final string `yaml:"final,omitempty"`
}

// Parse decodes a scenario document.
func Parse(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("failed to parse scenario: %w", err)
	}
	for i, s := range sc.Events {
		if _, err := s.Event(); err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
	}
	for i, s := range sc.Expect {
		if _, err := s.Event(); err != nil {
			return nil, fmt.Errorf("expect %d: %w", i, err)
		}
	}
	if sc.Final != "" {
		if _, err := explore.ParseState(sc.Final); err != nil {
			return nil, err
		}
	}
	return &sc, nil
}

// Load reads a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario: %w", err)
	}
	sc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return sc, nil
}

// Marshal encodes a scenario document.
func Marshal(sc *Scenario) ([]byte, error) {
	data, err := yaml.Marshal(sc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode scenario: %w", err)
	}
	return data, nil
}

// FromEvents builds a scenario with the given inputs and no expectations.
func FromEvents(name string, events []event.Event) *Scenario {
	sc := &Scenario{Name: name}
	for _, ev := range events {
		sc.Events = append(sc.Events, StepFromEvent(ev))
	}
	return sc
}
