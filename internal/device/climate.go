package device

import (
	"fmt"
	"slices"

	"github.com/nerrad567/myhome-bridge/internal/openwebnet"
)

// Temperature limits accepted by set_temperature.
const (
	minTargetTemperature = 5.0
	maxTargetTemperature = 40.0
)

// HVAC actions reported in the "hvac_action" state key.
const (
	hvacActionOff     = "off"
	hvacActionIdle    = "idle"
	hvacActionHeating = "heating"
	hvacActionCooling = "cooling"
)

// Climate is a WHO=4 heating/cooling zone or the central unit.
//
// State keys: "current_temperature", "humidity", "target_temperature",
// "local_offset", "local_target_temperature", "hvac_mode", "hvac_action".
type Climate struct {
	entity

	zone string

	// Guarded by entity.mu.
	target *float64
	offset int
	mode   openwebnet.ClimateMode
	action string
}

func newClimate(cfg Config, sender Sender, out *output) *Climate {
	return &Climate{entity: newEntity(cfg, sender, out), zone: cfg.Key.Where()}
}

// statusWhere is the address used for status requests: "#<zone>" for
// zones governed by a central unit.
func (c *Climate) statusWhere() string {
	if c.cfg.Central {
		return "#" + c.zone
	}
	return c.zone
}

// isCentralUnit reports whether the entity is the central unit itself.
func (c *Climate) isCentralUnit() bool {
	return c.zone == "0"
}

// modeWhere is the address of operating mode commands: "#<zone>" unless
// the zone is a standalone thermostat.
func (c *Climate) modeWhere() string {
	if c.cfg.Standalone {
		return c.zone
	}
	return "#" + c.zone
}

// Modes returns the operating modes the zone supports. Off is always
// supported; auto needs heating or cooling and is not offered by the
// central unit.
func (c *Climate) Modes() []openwebnet.ClimateMode {
	modes := []openwebnet.ClimateMode{openwebnet.ClimateOff}
	heat, cool := c.cfg.CanHeat(), c.cfg.Cool
	if !heat && !cool {
		return modes
	}
	if !c.cfg.Central && !c.isCentralUnit() {
		modes = append(modes, openwebnet.ClimateAuto)
	}
	if heat {
		modes = append(modes, openwebnet.ClimateHeat)
	}
	if cool {
		modes = append(modes, openwebnet.ClimateCool)
	}
	return modes
}

func (c *Climate) supports(mode openwebnet.ClimateMode) bool {
	return slices.Contains(c.Modes(), mode)
}

// HandleEvent applies heating dimension frames.
func (c *Climate) HandleEvent(msg openwebnet.Message) {
	ev, ok := msg.(*openwebnet.HeatingEvent)
	if !ok {
		return
	}
	c.update(msg, func(s map[string]any) bool {
		switch {
		case ev.MainTemperature != nil:
			s["current_temperature"] = *ev.MainTemperature
		case ev.MainHumidity != nil:
			s["humidity"] = *ev.MainHumidity
		case ev.TargetTemp != nil:
			t := *ev.TargetTemp
			c.target = &t
			s["target_temperature"] = t
			s["local_target_temperature"] = t + float64(c.offset)
		case ev.LocalOffset != nil:
			c.offset = *ev.LocalOffset
			s["local_offset"] = c.offset
			if c.target != nil {
				s["local_target_temperature"] = *c.target + float64(c.offset)
			}
		case ev.LocalSetTemp != nil:
			s["local_target_temperature"] = *ev.LocalSetTemp
		case ev.Mode != "":
			if !c.supports(ev.Mode) {
				return false
			}
			c.mode = ev.Mode
			s["hvac_mode"] = string(c.mode)
			switch {
			case c.mode == openwebnet.ClimateOff:
				c.setAction(s, hvacActionOff)
			case c.action == hvacActionOff:
				c.setAction(s, hvacActionIdle)
			}
		case ev.Active != nil:
			action, ok := c.actionFor(ev)
			if !ok {
				return false
			}
			c.setAction(s, action)
		default:
			return false
		}
		return true
	})
}

// actionFor derives the HVAC action from a valve or actuator frame.
func (c *Climate) actionFor(ev *openwebnet.HeatingEvent) (string, bool) {
	if !*ev.Active {
		if c.mode == openwebnet.ClimateOff {
			return hvacActionOff, true
		}
		return hvacActionIdle, true
	}
	heat, cool := c.cfg.CanHeat(), c.cfg.Cool
	switch {
	case heat && cool && ev.Heating:
		return hvacActionHeating, true
	case heat && cool && ev.Cooling:
		return hvacActionCooling, true
	case heat && cool:
		return "", false
	case heat:
		return hvacActionHeating, true
	case cool:
		return hvacActionCooling, true
	default:
		return "", false
	}
}

func (c *Climate) setAction(s map[string]any, action string) {
	c.action = action
	s["hvac_action"] = action
}

// AsyncUpdate polls the zone.
func (c *Climate) AsyncUpdate() {
	c.sender.SendStatusRequest(openwebnet.HeatingStatus(c.statusWhere()))
}

// Command handles set_temperature and set_hvac_mode.
func (c *Climate) Command(cmd Command) error {
	switch cmd.Action {
	case ActionSetTemperature:
		return c.setTemperature(cmd)
	case ActionSetHVACMode:
		return c.setMode(openwebnet.ClimateMode(cmd.HVACMode))
	default:
		return c.unsupported(cmd.Action)
	}
}

// setTemperature writes the set point in the current mode. The requested
// temperature is what the user sees locally, so the thermostat's local
// offset is removed first.
func (c *Climate) setTemperature(cmd Command) error {
	if cmd.Temperature == nil {
		return fmt.Errorf("%w: set_temperature needs a temperature", ErrInvalidCommand)
	}
	t := *cmd.Temperature
	if t < minTargetTemperature || t > maxTargetTemperature {
		return fmt.Errorf("%w: temperature %.1f out of range %.0f-%.0f",
			ErrInvalidCommand, t, minTargetTemperature, maxTargetTemperature)
	}

	c.mu.Lock()
	offset, mode := c.offset, c.mode
	c.mu.Unlock()

	c.sender.Send(openwebnet.HeatingSetTemperature(c.zone, t-float64(offset), setPointMode(mode)))
	return nil
}

// setMode switches the zone off, back to its program, or to manual heating
// or cooling at the last known set point.
func (c *Climate) setMode(mode openwebnet.ClimateMode) error {
	if !c.supports(mode) {
		return fmt.Errorf("%w: %s does not support hvac mode %q", ErrInvalidCommand, c.cfg.Key, mode)
	}

	switch mode {
	case openwebnet.ClimateOff:
		c.sender.Send(openwebnet.HeatingOff(c.modeWhere()))
	case openwebnet.ClimateAuto:
		c.sender.Send(openwebnet.HeatingAuto(c.modeWhere()))
	default:
		c.mu.Lock()
		target := c.target
		c.mu.Unlock()
		if target == nil {
			return fmt.Errorf("%w: no set point known yet for %s", ErrInvalidCommand, c.cfg.Key)
		}
		c.sender.Send(openwebnet.HeatingSetTemperature(c.zone, *target, setPointMode(mode)))
	}
	return nil
}

func setPointMode(mode openwebnet.ClimateMode) int {
	switch mode {
	case openwebnet.ClimateHeat:
		return openwebnet.HeatingModeHeating
	case openwebnet.ClimateCool:
		return openwebnet.HeatingModeCooling
	default:
		return openwebnet.HeatingModeGeneric
	}
}
