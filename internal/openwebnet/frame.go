package openwebnet

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Frame is an outbound OpenWebNet frame.
type Frame string

// String returns the frame text.
func (f Frame) String() string { return string(f) }

// Who returns the WHO of the frame, or -1 if it cannot be determined.
func (f Frame) Who() Who {
	body := strings.TrimPrefix(strings.TrimPrefix(string(f), frameStart), "#")
	who, _, _ := strings.Cut(body, "*")
	var n int
	if _, err := fmt.Sscanf(who, "%d", &n); err != nil {
		return -1
	}
	return Who(n)
}

// ParseFrame validates a user-supplied raw frame (for example from the
// send_message service) and returns it as a Frame.
//
// Returns:
//   - Frame: the validated frame
//   - error: wrapping ErrDecode if the text is not a well-formed frame
func ParseFrame(raw string) (Frame, error) {
	raw = strings.TrimSpace(raw)
	if !wellFormed(raw) || raw == ACK || raw == NACK {
		return "", fmt.Errorf("%w: %q", ErrDecode, raw)
	}
	return Frame(raw), nil
}

func command(who Who, what, where string) Frame {
	return Frame(fmt.Sprintf("*%d*%s*%s##", int(who), what, where))
}

func status(who Who, where string) Frame {
	return Frame(fmt.Sprintf("*#%d*%s##", int(who), where))
}

func dimensionRequest(who Who, where string, dim int) Frame {
	return Frame(fmt.Sprintf("*#%d*%s*%d##", int(who), where, dim))
}

func dimensionWrite(who Who, where, dim string, values ...string) Frame {
	return Frame(fmt.Sprintf("*#%d*%s*#%s*%s##", int(who), where, dim, strings.Join(values, "*")))
}

// Lighting commands.

// LightingStatus requests the on/off state of a light, area, group or the whole system.
func LightingStatus(where string) Frame { return status(WhoLighting, where) }

// LightingGetBrightness requests the brightness of a dimmer.
func LightingGetBrightness(where string) Frame {
	return dimensionRequest(WhoLighting, where, DimLightingBrightness)
}

// LightingGetIlluminance requests the lux reading of a light sensor.
func LightingGetIlluminance(where string) Frame {
	return dimensionRequest(WhoLighting, where, DimLightingIlluminance)
}

// LightingOn switches a light on.
func LightingOn(where string) Frame { return command(WhoLighting, "1", where) }

// LightingOff switches a light off.
func LightingOff(where string) Frame { return command(WhoLighting, "0", where) }

// LightingOnWithTransition switches a light on over the given number of seconds.
func LightingOnWithTransition(where string, seconds int) Frame {
	return command(WhoLighting, fmt.Sprintf("1#%d", max(seconds, 0)), where)
}

// LightingOffWithTransition switches a light off over the given number of seconds.
func LightingOffWithTransition(where string, seconds int) Frame {
	return command(WhoLighting, fmt.Sprintf("0#%d", max(seconds, 0)), where)
}

// LightingSetBrightness sets a dimmer to percent (0-100).
// A transition of 0 lets the actuator use its default speed.
func LightingSetBrightness(where string, percent, transitionSeconds int) Frame {
	level := brightnessLevelBase + clamp(percent, 0, 100) //nolint:mnd // percent range
	return dimensionWrite(WhoLighting, where, "1", fmt.Sprintf("%d", level), fmt.Sprintf("%d", max(transitionSeconds, 0)))
}

// LightingFlash blinks a light with the given period, rounded to the
// nearest supported step (0.5s to 5s).
func LightingFlash(where string, period time.Duration) Frame {
	const first, last = 20, 29
	step := int(math.Round(period.Seconds()/0.5)) - 1 //nolint:mnd // 0.5s steps
	return command(WhoLighting, fmt.Sprintf("%d", clamp(first+step, first, last)), where)
}

// Automation commands.

// AutomationStatus requests the state of a cover.
func AutomationStatus(where string) Frame { return status(WhoAutomation, where) }

// AutomationRaise opens a cover.
func AutomationRaise(where string) Frame { return command(WhoAutomation, "1", where) }

// AutomationLower closes a cover.
func AutomationLower(where string) Frame { return command(WhoAutomation, "2", where) }

// AutomationStop stops a cover.
func AutomationStop(where string) Frame { return command(WhoAutomation, "0", where) }

// AutomationSetPosition moves an advanced shutter actuator to percent (0-100).
func AutomationSetPosition(where string, percent int) Frame {
	return dimensionWrite(WhoAutomation, where, "11#001", fmt.Sprintf("%d", clamp(percent, 0, 100))) //nolint:mnd // percent range
}

// Heating commands.

// Set-point write modes.
const (
	HeatingModeHeating = 1
	HeatingModeCooling = 2
	// HeatingModeGeneric lets the zone keep its heating or cooling mode.
	HeatingModeGeneric = 3
)

// HeatingOff switches a zone off. where is "#<zone>" for zones governed by
// a central unit and "<zone>" for standalone thermostats.
func HeatingOff(where string) Frame { return command(WhoHeating, "303", where) }

// HeatingAuto puts a zone back on its weekly program.
func HeatingAuto(where string) Frame { return command(WhoHeating, "311", where) }

// HeatingStatus requests the state of a zone.
func HeatingStatus(zone string) Frame { return status(WhoHeating, zone) }

// HeatingGetTemperature requests the measured temperature of a probe.
func HeatingGetTemperature(where string) Frame {
	return dimensionRequest(WhoHeating, where, DimHeatingMainTemperature)
}

// HeatingSetTemperature sets the target temperature of a zone.
// Central-unit zones are addressed as "#<zone>".
func HeatingSetTemperature(zone string, celsius float64, mode int) Frame {
	if !strings.HasPrefix(zone, "#") {
		zone = "#" + zone
	}
	return dimensionWrite(WhoHeating, zone, fmt.Sprintf("%d", DimHeatingTargetTemp), EncodeTemperature(celsius), fmt.Sprintf("%d", mode))
}

// Special commands.

// DisableCommands locks a device: it stops obeying its local controls.
func DisableCommands(where string) Frame { return command(WhoSpecial, "0", where) }

// EnableCommands unlocks a device disabled with DisableCommands.
func EnableCommands(where string) Frame { return command(WhoSpecial, "1", where) }

// Energy commands.

// EnergyActivePower requests the instantaneous active power of a meter.
func EnergyActivePower(where string) Frame {
	return dimensionRequest(WhoEnergy, where, DimEnergyActivePower)
}

// EnergyTotalizer requests the total energy of a meter.
func EnergyTotalizer(where string) Frame {
	return dimensionRequest(WhoEnergy, where, DimEnergyTotalizer)
}

// EnergyStartInstantPower asks a meter to push its active power for the
// given number of minutes (max 255).
func EnergyStartInstantPower(where string, minutes int) Frame {
	return dimensionWrite(WhoEnergy, where, "1200#1", fmt.Sprintf("%d", clamp(minutes, 1, 255))) //nolint:mnd // protocol range
}

// Dry contact and auxiliary commands.

// DryContactStatus requests the state of a dry contact.
func DryContactStatus(where string) Frame { return status(WhoDryContact, where) }

// AuxStatus requests the state of an auxiliary channel.
func AuxStatus(where string) Frame { return status(WhoAux, where) }

// Gateway commands.

// GatewaySetDateTime sets the gateway clock.
//
// Format: *#13**#22*HH*MM*SS*TZ*DW*DD*MM*YYYY## where TZ is a sign digit
// followed by the UTC offset in hours and DW is the weekday (00 = Sunday).
func GatewaySetDateTime(t time.Time) Frame {
	_, offset := t.Zone()
	sign := "0"
	if offset < 0 {
		sign = "1"
		offset = -offset
	}
	tz := fmt.Sprintf("%s%02d", sign, offset/3600) //nolint:mnd // seconds per hour
	return Frame(fmt.Sprintf("*#13**#22*%02d*%02d*%02d*%s*%02d*%02d*%02d*%04d##",
		t.Hour(), t.Minute(), t.Second(), tz,
		int(t.Weekday()), t.Day(), int(t.Month()), t.Year()))
}

// GatewayModelRequest asks the gateway for its model.
func GatewayModelRequest() Frame { return dimensionRequest(WhoGateway, "", 15) } //nolint:mnd // model dimension

// GatewayFirmwareRequest asks the gateway for its firmware version.
func GatewayFirmwareRequest() Frame { return dimensionRequest(WhoGateway, "", 16) } //nolint:mnd // firmware dimension
