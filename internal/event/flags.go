package event

import (
	"fmt"
	"strings"
)

// Flags is a bitmask of modifier and origin flags carried by events.
type Flags uint32

const (
	FlagShift Flags = 1 << iota
	FlagControl
	FlagAlt
	FlagCommand
	// FlagSynthesized marks events produced by the rewriter rather than by
	// hardware.
	FlagSynthesized
	// FlagTouchAccessibility marks mouse events that stand in for a touch
	// exploring the surface.
	FlagTouchAccessibility
)

var flagNames = []struct {
	flag Flags
	name string
}{
	{FlagShift, "shift"},
	{FlagControl, "ctrl"},
	{FlagAlt, "alt"},
	{FlagCommand, "cmd"},
	{FlagSynthesized, "synthesized"},
	{FlagTouchAccessibility, "accessibility"},
}

// Has reports whether all bits in f2 are set in f.
func (f Flags) Has(f2 Flags) bool {
	return f&f2 == f2
}

// Names lists the set flags in a stable order.
func (f Flags) Names() []string {
	var names []string
	for _, fn := range flagNames {
		if f&fn.flag != 0 {
			names = append(names, fn.name)
		}
	}
	return names
}

func (f Flags) String() string {
	if f == 0 {
		return ""
	}
	return strings.Join(f.Names(), ",")
}

// ParseFlags is the inverse of Names.
func ParseFlags(names []string) (Flags, error) {
	var f Flags
outer:
	for _, name := range names {
		name = strings.TrimSpace(strings.ToLower(name))
		if name == "" {
			continue
		}
		for _, fn := range flagNames {
			if fn.name == name {
				f |= fn.flag
				continue outer
			}
		}
		return 0, fmt.Errorf("unknown flag %q", name)
	}
	return f, nil
}
