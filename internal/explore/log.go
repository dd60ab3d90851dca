package explore

import (
	"github.com/sirupsen/logrus"

	"github.com/verte-zerg/touchx/internal/event"
)

// logState logs the state only when it changed since the last log line.
func (c *Controller) logState(fn string) {
	if c.prevState == c.state {
		return
	}
	c.prevState = c.state
	c.log.WithFields(logrus.Fields{
		"func":  fn,
		"state": c.state.String(),
	}).Debug("state")
}

// logEvent skips repeats of the same type and finger, and moves following
// moves, which otherwise alternate between fingers and flood the log.
func (c *Controller) logEvent(ev event.Event, fn string) {
	if prev := c.prevEvent; prev != nil {
		if prev.Type == ev.Type && prev.TouchID == ev.TouchID {
			return
		}
		if prev.Type == event.TouchMoved && ev.Type == event.TouchMoved {
			return
		}
	}
	c.log.WithFields(logrus.Fields{
		"func":     fn,
		"type":     ev.Type.String(),
		"location": ev.Location.String(),
		"touch_id": ev.TouchID,
	}).Debug("touch event")
	logged := ev
	c.prevEvent = &logged
}

func (c *Controller) logNonTouch(ev event.Event) {
	switch ev.Kind() {
	case event.KindKey:
		c.log.WithFields(logrus.Fields{
			"type":     ev.Type.String(),
			"key_code": ev.KeyCode,
			"flags":    ev.Flags.String(),
			"is_char":  ev.Char != 0,
		}).Debug("keyboard event")
	case event.KindGesture:
		c.log.WithField("name", ev.Name).Debug("gesture event")
	}
}
