package device

import (
	"fmt"
	"math"
	"time"

	"github.com/nerrad567/myhome-bridge/internal/openwebnet"
)

// Flash periods for non-dimmable lights.
const (
	flashShort = 500 * time.Millisecond
	flashLong  = 1500 * time.Millisecond
)

// Light is a WHO=1 actuator, optionally dimmable.
//
// State keys: "on", and for dimmers "brightness" (percent) and
// "brightness_255". Both are zero while a dimmer is off.
type Light struct {
	entity
}

// newLight creates a light entity.
func newLight(cfg Config, sender Sender, out *output) *Light {
	return &Light{entity: newEntity(cfg, sender, out)}
}

// HandleEvent applies lighting status and brightness frames.
func (l *Light) HandleEvent(msg openwebnet.Message) {
	ev, ok := msg.(*openwebnet.LightingEvent)
	if !ok {
		return
	}
	l.update(msg, func(s map[string]any) bool {
		changed := false
		if ev.On != nil {
			s["on"] = *ev.On
			changed = true
		}
		if !l.cfg.Dimmable {
			return changed
		}
		switch {
		case ev.Brightness != nil:
			s["brightness"] = *ev.Brightness
			s["brightness_255"] = Brightness255(*ev.Brightness)
			changed = true
		case ev.On != nil && !*ev.On:
			s["brightness"] = 0
			s["brightness_255"] = 0
		}
		return changed
	})
}

// AsyncUpdate polls the brightness of dimmers and the state of the rest.
func (l *Light) AsyncUpdate() {
	if l.cfg.Dimmable {
		l.sender.SendStatusRequest(openwebnet.LightingGetBrightness(l.cfg.FullWhere()))
		return
	}
	l.sender.SendStatusRequest(openwebnet.LightingStatus(l.cfg.FullWhere()))
}

// Command handles turn_on, turn_off and set_brightness.
func (l *Light) Command(cmd Command) error {
	where := l.cfg.FullWhere()

	switch cmd.Action {
	case ActionTurnOn, ActionSetBrightness:
		if cmd.Action == ActionSetBrightness && cmd.Brightness == nil {
			return fmt.Errorf("%w: set_brightness needs a brightness", ErrInvalidCommand)
		}
		if cmd.Brightness != nil {
			if !l.cfg.Dimmable {
				return fmt.Errorf("%w: %s is not dimmable", ErrInvalidCommand, l.cfg.Key)
			}
			if *cmd.Brightness < 0 || *cmd.Brightness > 100 {
				return fmt.Errorf("%w: brightness %d out of range 0-100", ErrInvalidCommand, *cmd.Brightness)
			}
			if *cmd.Brightness == 0 {
				l.turnOff(where, cmd)
				return nil
			}
			l.sender.Send(openwebnet.LightingSetBrightness(where, *cmd.Brightness, transition(cmd)))
			return nil
		}
		if period, ok := flashPeriod(cmd.Flash); ok && !l.cfg.Dimmable {
			l.sender.Send(openwebnet.LightingFlash(where, period))
			return nil
		}
		if cmd.Transition != nil {
			l.sender.Send(openwebnet.LightingOnWithTransition(where, *cmd.Transition))
			return nil
		}
		l.sender.Send(openwebnet.LightingOn(where))
		if l.cfg.Dimmable {
			l.sender.SendStatusRequest(openwebnet.LightingGetBrightness(where))
		}
		return nil

	case ActionTurnOff:
		l.turnOff(where, cmd)
		return nil

	default:
		return l.unsupported(cmd.Action)
	}
}

func (l *Light) turnOff(where string, cmd Command) {
	if period, ok := flashPeriod(cmd.Flash); ok && !l.cfg.Dimmable {
		l.sender.Send(openwebnet.LightingFlash(where, period))
		return
	}
	if cmd.Transition != nil {
		l.sender.Send(openwebnet.LightingOffWithTransition(where, *cmd.Transition))
		return
	}
	l.sender.Send(openwebnet.LightingOff(where))
}

// Brightness255 converts a percent level to the 0-255 scale.
func Brightness255(percent int) int {
	return int(math.Round(255 * float64(percent) / 100)) //nolint:mnd // 8-bit scale
}

func transition(cmd Command) int {
	if cmd.Transition == nil {
		return 0
	}
	return *cmd.Transition
}

func flashPeriod(flash string) (time.Duration, bool) {
	switch flash {
	case "short":
		return flashShort, true
	case "long":
		return flashLong, true
	default:
		return 0, false
	}
}

// Switch is a WHO=1 on/off actuator (class switch or outlet).
//
// State keys: "on".
type Switch struct {
	entity
}

// newSwitch creates a switch entity.
func newSwitch(cfg Config, sender Sender, out *output) *Switch {
	return &Switch{entity: newEntity(cfg, sender, out)}
}

// HandleEvent applies lighting on/off frames.
func (s *Switch) HandleEvent(msg openwebnet.Message) {
	ev, ok := msg.(*openwebnet.LightingEvent)
	if !ok || ev.On == nil {
		return
	}
	s.update(msg, func(st map[string]any) bool {
		st["on"] = *ev.On
		return true
	})
}

// AsyncUpdate polls the switch state.
func (s *Switch) AsyncUpdate() {
	s.sender.SendStatusRequest(openwebnet.LightingStatus(s.cfg.FullWhere()))
}

// Command handles turn_on and turn_off.
func (s *Switch) Command(cmd Command) error {
	switch cmd.Action {
	case ActionTurnOn:
		s.sender.Send(openwebnet.LightingOn(s.cfg.FullWhere()))
	case ActionTurnOff:
		s.sender.Send(openwebnet.LightingOff(s.cfg.FullWhere()))
	default:
		return s.unsupported(cmd.Action)
	}
	return nil
}
