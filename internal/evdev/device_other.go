//go:build !linux

package evdev

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/verte-zerg/touchx/internal/event"
)

var errUnsupported = errors.New("evdev devices are only supported on linux")

// Device is unavailable outside Linux.
type Device struct {
	Path string
	Name string
}

// Open always fails outside Linux.
func Open(path string, log logrus.FieldLogger) (*Device, error) {
	return nil, errUnsupported
}

// FindTouchDevice always fails outside Linux.
func FindTouchDevice() (string, error) {
	return "", errUnsupported
}

// Surface returns s unchanged.
func (d *Device) Surface(s Surface) Surface { return s }

// Grab always fails outside Linux.
func (d *Device) Grab() error { return errUnsupported }

// Close is a no-op outside Linux.
func (d *Device) Close() error { return nil }

// Run always fails outside Linux.
func (d *Device) Run(ctx context.Context, surface Surface, out chan<- event.Event) error {
	return errUnsupported
}
