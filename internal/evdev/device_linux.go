//go:build linux

package evdev

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
	"unsafe"

	goevdev "github.com/gvalkov/golang-evdev"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/verte-zerg/touchx/internal/event"
)

// input_absinfo. golang-evdev keeps its copy unexported.
type absInfo struct {
	Value      int32
	Min        int32
	Max        int32
	Fuzz       int32
	Flat       int32
	Resolution int32
}

// Device is an open evdev node.
type Device struct {
	Path string
	Name string

	dev     *goevdev.InputDevice
	grabbed bool
	log     logrus.FieldLogger
}

// Open opens the input device at path.
func Open(path string, log logrus.FieldLogger) (*Device, error) {
	dev, err := goevdev.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &Device{Path: dev.Fn, Name: dev.Name, dev: dev, log: log}, nil
}

// FindTouchDevice returns the first /dev/input/event* node that reports
// multitouch positions or whose name mentions a touch surface.
func FindTouchDevice() (string, error) {
	devs, err := goevdev.ListInputDevices()
	if err != nil {
		return "", fmt.Errorf("failed to list input devices: %w", err)
	}
	found := ""
	for _, dev := range devs {
		if found == "" && isTouch(dev) {
			found = dev.Fn
		}
		if cerr := dev.File.Close(); cerr != nil {
			// Best-effort close of a listing handle.
			_ = cerr
		}
	}
	if found == "" {
		return "", errors.New("no touch device found under /dev/input")
	}
	return found, nil
}

func isTouch(dev *goevdev.InputDevice) bool {
	if hasAbs(dev, goevdev.ABS_MT_POSITION_X) {
		return true
	}
	name := strings.ToLower(dev.Name)
	return strings.Contains(name, "touch") || strings.Contains(name, "goodix")
}

func hasAbs(dev *goevdev.InputDevice, code int) bool {
	for typ, codes := range dev.Capabilities {
		if typ.Type != goevdev.EV_ABS {
			continue
		}
		for _, c := range codes {
			if c.Code == code {
				return true
			}
		}
	}
	return false
}

func (d *Device) absRange(code int) (AbsRange, bool) {
	if !hasAbs(d.dev, code) {
		return AbsRange{}, false
	}
	var info absInfo
	req := uintptr(goevdev.EVIOCGABS(code))
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, d.dev.File.Fd(), req, uintptr(unsafe.Pointer(&info))); errno != 0 {
		d.log.WithError(errno).WithField("axis", code).Debug("failed to read axis range")
		return AbsRange{}, false
	}
	return AbsRange{Min: info.Min, Max: info.Max}, true
}

// Surface fills the axis ranges of s from the device, preferring the
// multitouch axes.
func (d *Device) Surface(s Surface) Surface {
	if r, ok := d.absRange(goevdev.ABS_MT_POSITION_X); ok {
		s.X = r
	} else if r, ok := d.absRange(goevdev.ABS_X); ok {
		s.X = r
	}
	if r, ok := d.absRange(goevdev.ABS_MT_POSITION_Y); ok {
		s.Y = r
	} else if r, ok := d.absRange(goevdev.ABS_Y); ok {
		s.Y = r
	}
	return s
}

// Grab takes exclusive access so the rest of the system stops seeing the
// device's events.
func (d *Device) Grab() error {
	if err := d.dev.Grab(); err != nil {
		return fmt.Errorf("failed to grab %s: %w", d.Path, err)
	}
	d.grabbed = true
	return nil
}

// Close releases the grab and closes the device.
func (d *Device) Close() error {
	if d.grabbed {
		if err := d.dev.Release(); err != nil {
			// Best-effort ungrab; closing releases it anyway.
			_ = err
		}
		d.grabbed = false
	}
	return d.dev.File.Close()
}

// pollable swaps the device file for a non-blocking duplicate so reads
// honour deadlines. File.Fd, which golang-evdev calls for every ioctl,
// leaves a file in blocking mode. The duplicate shares the grab.
func (d *Device) pollable() error {
	fd, err := unix.FcntlInt(d.dev.File.Fd(), unix.F_DUPFD_CLOEXEC, 0)
	if err != nil {
		return fmt.Errorf("failed to duplicate %s: %w", d.Path, err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		if cerr := unix.Close(fd); cerr != nil {
			// Best-effort close of the unused duplicate.
			_ = cerr
		}
		return fmt.Errorf("failed to set %s non-blocking: %w", d.Path, err)
	}
	old := d.dev.File
	d.dev.File = os.NewFile(uintptr(fd), d.Path)
	if cerr := old.Close(); cerr != nil {
		// Best-effort close; the duplicate keeps the device open.
		_ = cerr
	}
	return nil
}

// Run decodes events onto surface until ctx is cancelled or the device
// fails, sending touch events on out. out is not closed.
func (d *Device) Run(ctx context.Context, surface Surface, out chan<- event.Event) error {
	if err := d.pollable(); err != nil {
		return err
	}
	dec := NewDecoder(surface, d.log)
	done := make(chan struct{})
	defer close(done)
	go watch(ctx, done, func() {
		if err := d.dev.File.SetReadDeadline(time.Now()); err != nil {
			d.log.WithError(err).Debug("failed to interrupt device read")
		}
	})

	for {
		events, err := d.dev.Read()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to read %s: %w", d.Path, err)
		}
		for _, raw := range events {
			for _, ev := range dec.Feed(raw) {
				select {
				case out <- ev:
				case <-ctx.Done():
					return nil
				}
			}
		}
	}
}
