package openwebnet

import (
	"fmt"
	"strings"
)

// Message is a decoded inbound frame.
//
// The set of implementations is closed: LightingEvent, AutomationEvent,
// HeatingEvent, HeatingCommand, EnergyEvent, DryContactEvent, AuxEvent,
// CENEvent, CENPlusEvent, GatewayEvent and UnknownMessage. Consumers switch on
// the concrete type.
type Message interface {
	// Raw returns the frame exactly as received.
	Raw() string
	// Who returns the device category.
	Who() Who
	// Where returns the address as it appeared in the frame.
	Where() string
	// Key returns the handler key for this message.
	Key() Key
	// IsTranslation reports whether the frame echoes a command the gateway
	// has just executed on behalf of a client.
	IsTranslation() bool

	sealed()
}

// header holds the fields shared by every message type.
type header struct {
	raw         string
	who         Who
	where       string
	translation bool
}

func (h header) Raw() string         { return h.raw }
func (h header) Who() Who            { return h.who }
func (h header) Where() string       { return h.where }
func (h header) Key() Key            { return NewKey(h.who, h.where) }
func (h header) IsTranslation() bool { return h.translation }
func (h header) String() string      { return h.raw }
func (header) sealed()               {}

// Dimension codes used by the decoders.
const (
	DimLightingBrightness  = 1
	DimLightingIlluminance = 6

	DimAutomationAdvanced = 10

	DimHeatingMainTemperature = 0
	DimHeatingLocalSetTemp    = 12
	DimHeatingLocalOffset     = 13
	DimHeatingTargetTemp      = 14
	DimHeatingValves          = 19
	DimHeatingActuator        = 20
	DimHeatingMainHumidity    = 60

	DimEnergyActivePower  = 113
	DimEnergyTotalizer    = 51
	DimEnergyCurrentMonth = 53
	DimEnergyCurrentDay   = 54
)

const (
	noDimension         = -1
	brightnessPresetMin = 2
	brightnessPresetMax = 10
	brightnessLevelBase = 100
)

// LightingEvent is a WHO=1 frame.
type LightingEvent struct {
	header
	Scope Scope

	// What is the command code, or -1 for dimension frames.
	What int
	// Dimension is the dimension code, or -1 for command frames.
	Dimension int

	// On is nil when the frame carries no on/off state.
	On *bool
	// Brightness is the level in percent, nil when unknown.
	Brightness *int
	// Preset is true for WHAT 2-10, which set a level without reporting it.
	Preset bool
	// Illuminance in lux, from light sensors.
	Illuminance *int
}

// IsOn returns the on state, false if unknown.
func (m *LightingEvent) IsOn() bool { return m.On != nil && *m.On }

// AutomationEvent is a WHO=2 frame.
type AutomationEvent struct {
	header
	Scope Scope

	What      int
	Dimension int

	Opening bool
	Closing bool
	// Position in percent (0 closed, 100 open) from advanced shutter actuators.
	Position *int
}

// IsClosed returns whether the cover reports fully closed, nil when unknown.
func (m *AutomationEvent) IsClosed() *bool {
	if m.Position == nil {
		return nil
	}
	closed := *m.Position == 0
	return &closed
}

// ClimateMode is the operating mode of a heating zone.
type ClimateMode string

// Climate modes. The empty mode means the frame carries none.
const (
	ClimateOff  ClimateMode = "off"
	ClimateAuto ClimateMode = "auto"
	ClimateHeat ClimateMode = "heat"
	ClimateCool ClimateMode = "cool"
)

// HeatingEvent is a WHO=4 status or dimension frame.
type HeatingEvent struct {
	header
	// What is the command code, or -1 for dimension frames.
	What      int
	Dimension int
	// Zone is the WHERE with any leading '#' and actuator suffix removed.
	Zone string

	// Mode is set by operating mode frames ("*4*303*1##" is off).
	Mode ClimateMode

	MainTemperature  *float64
	MainHumidity     *float64
	TargetTemp       *float64
	LocalSetTemp     *float64
	LocalOffset      *int
	LocalOffsetLabel string

	// Active is set by valve and actuator frames; Heating and Cooling tell
	// which valve is open when the frame distinguishes them.
	Active  *bool
	Heating bool
	Cooling bool
}

// Key returns "4-<zone>" so central-unit frames ("#1") and zone frames ("1")
// route to the same handler.
func (m *HeatingEvent) Key() Key { return NewKey(WhoHeating, m.Zone) }

// HeatingCommand is a heating dimension write echoed on the event session,
// e.g. "*#4*#1*#14*0215*3##" after a set-point change.
type HeatingCommand struct {
	header
	Dimension int
	Zone      string
	Values    []string
}

// Key returns "4-<zone>".
func (m *HeatingCommand) Key() Key { return NewKey(WhoHeating, m.Zone) }

// EnergyEvent is a WHO=18 dimension frame.
type EnergyEvent struct {
	header
	Dimension int

	// ActivePower in watts.
	ActivePower *int
	// Energy in Wh for totalizer, month and day dimensions.
	Energy *int
}

// DryContactEvent is a WHO=25 WHAT=31/32 frame.
type DryContactEvent struct {
	header
	On bool
}

// AuxEvent is a WHO=9 frame.
type AuxEvent struct {
	header
	What int
	On   bool
}

// ButtonAction is the normalised pushbutton action.
type ButtonAction string

// Button actions.
const (
	ShortPress   ButtonAction = "short_press"
	ShortRelease ButtonAction = "short_release"
	LongPress    ButtonAction = "long_press"
	LongRelease  ButtonAction = "long_release"
	NoAction     ButtonAction = ""
)

// CENEvent is a WHO=15 pushbutton frame.
type CENEvent struct {
	header
	Object     int
	PushButton int
	Action     ButtonAction
}

// CENPlusEvent is a WHO=25 WHAT=21-24 pushbutton frame.
type CENPlusEvent struct {
	header
	Object     int
	PushButton int
	Action     ButtonAction
}

// GatewayEvent is a WHO=13 management frame (time, date, IP, firmware...).
type GatewayEvent struct {
	header
	Dimension int
	Values    []string
}

// UnknownMessage is any well-formed frame this package does not model.
type UnknownMessage struct {
	header
}

// Describe returns a short human-readable description for logs.
func Describe(m Message) string {
	switch v := m.(type) {
	case *LightingEvent:
		var b strings.Builder
		fmt.Fprintf(&b, "light %s (%s)", v.Where(), v.Scope.Kind)
		if v.On != nil {
			fmt.Fprintf(&b, " on=%t", *v.On)
		}
		if v.Brightness != nil {
			fmt.Fprintf(&b, " brightness=%d%%", *v.Brightness)
		}
		if v.Illuminance != nil {
			fmt.Fprintf(&b, " illuminance=%dlx", *v.Illuminance)
		}
		return b.String()
	case *AutomationEvent:
		return fmt.Sprintf("cover %s opening=%t closing=%t", v.Where(), v.Opening, v.Closing)
	case *HeatingEvent:
		return fmt.Sprintf("heating zone %s dimension %d", v.Zone, v.Dimension)
	case *HeatingCommand:
		return fmt.Sprintf("heating command zone %s dimension %d", v.Zone, v.Dimension)
	case *EnergyEvent:
		return fmt.Sprintf("energy meter %s dimension %d", v.Where(), v.Dimension)
	case *DryContactEvent:
		return fmt.Sprintf("dry contact %s on=%t", v.Where(), v.On)
	case *AuxEvent:
		return fmt.Sprintf("aux %s on=%t", v.Where(), v.On)
	case *CENEvent:
		return fmt.Sprintf("CEN object %d button %d %s", v.Object, v.PushButton, v.Action)
	case *CENPlusEvent:
		return fmt.Sprintf("CEN+ object %d button %d %s", v.Object, v.PushButton, v.Action)
	case *GatewayEvent:
		return fmt.Sprintf("gateway dimension %d %v", v.Dimension, v.Values)
	default:
		return "unsupported frame " + m.Raw()
	}
}
