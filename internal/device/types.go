package device

import (
	"time"

	"github.com/nerrad567/myhome-bridge/internal/openwebnet"
)

// Platform is the kind of entity a device section declares.
type Platform string

// Platform constants, matching the section names of the device file.
const (
	PlatformLight        Platform = "light"
	PlatformSwitch       Platform = "switch"
	PlatformCover        Platform = "cover"
	PlatformBinarySensor Platform = "binary_sensor"
	PlatformSensor       Platform = "sensor"
	PlatformClimate      Platform = "climate"
	// PlatformButton entities are derived from point-to-point, area and
	// general lights, switches and covers; they have no file section.
	PlatformButton Platform = "button"
)

// AllPlatforms returns all valid platforms.
func AllPlatforms() []Platform {
	return []Platform{
		PlatformLight,
		PlatformSwitch,
		PlatformCover,
		PlatformBinarySensor,
		PlatformSensor,
		PlatformClimate,
		PlatformButton,
	}
}

// Switch classes.
const (
	SwitchClassSwitch = "switch"
	SwitchClassOutlet = "outlet"
)

// Sensor classes.
const (
	SensorClassPower       = "power"
	SensorClassEnergy      = "energy"
	SensorClassTemperature = "temperature"
	SensorClassIlluminance = "illuminance"
)

// DefaultManufacturer is used when a device entry names none.
const DefaultManufacturer = "BTicino S.p.A."

// Config is one device entry of the device file.
//
// Fields that only apply to some platforms are ignored elsewhere. The
// derived fields (ID, Platform, Key) are filled in by the loader.
type Config struct {
	// ID is the entry name in the device file.
	ID string `yaml:"-" json:"id"`
	// Platform is the section the entry was declared in.
	Platform Platform `yaml:"-" json:"platform"`
	// Key is the handler key, e.g. "1-0101" or "1-0101#4#01".
	Key openwebnet.Key `yaml:"-" json:"key"`

	Name         string `yaml:"name" json:"name"`
	Who          int    `yaml:"who" json:"who"`
	Where        string `yaml:"where" json:"where,omitempty"`
	Interface    string `yaml:"bus_interface" json:"bus_interface,omitempty"`
	Manufacturer string `yaml:"manufacturer" json:"manufacturer"`
	Model        string `yaml:"model" json:"model,omitempty"`

	// Class is the switch class (switch, outlet), the binary sensor device
	// class or the sensor class (power, energy, temperature, illuminance).
	Class string `yaml:"class" json:"class,omitempty"`

	// Light
	Dimmable bool `yaml:"dimmable" json:"dimmable,omitempty"`

	// Cover. Travel times are in seconds; both must be set for timed
	// positioning of covers without an advanced actuator.
	AdvancedShutter bool    `yaml:"advanced_shutter" json:"advanced_shutter,omitempty"`
	OpeningTime     float64 `yaml:"opening_time" json:"opening_time,omitempty"`
	ClosingTime     float64 `yaml:"closing_time" json:"closing_time,omitempty"`

	// Binary sensor
	Inverted bool `yaml:"inverted" json:"inverted,omitempty"`

	// Climate
	Zone       string `yaml:"zone" json:"zone,omitempty"`
	Heat       *bool  `yaml:"heat" json:"heat,omitempty"`
	Cool       bool   `yaml:"cool" json:"cool,omitempty"`
	Fan        bool   `yaml:"fan" json:"fan,omitempty"`
	Standalone bool   `yaml:"standalone" json:"standalone,omitempty"`
	Central    bool   `yaml:"central" json:"central,omitempty"`
}

// FullWhere returns the bus address including the "#4#" interface suffix.
func (c Config) FullWhere() string {
	if c.Interface == "" {
		return c.Where
	}
	return c.Where + "#4#" + c.Interface
}

// CanHeat reports whether a climate zone supports heating (default true).
func (c Config) CanHeat() bool {
	return c.Heat == nil || *c.Heat
}

// Command is a request to change an entity, decoded from MQTT or HTTP.
type Command struct {
	Action string `json:"action"`

	// Brightness in percent (0-100).
	Brightness *int `json:"brightness,omitempty"`
	// Transition in seconds.
	Transition *int `json:"transition,omitempty"`
	// Flash is "short" or "long".
	Flash string `json:"flash,omitempty"`
	// Position in percent, 0 closed and 100 open.
	Position *int `json:"position,omitempty"`
	// Temperature in degrees Celsius.
	Temperature *float64 `json:"temperature,omitempty"`
	// HVACMode is off, auto, heat or cool.
	HVACMode string `json:"hvac_mode,omitempty"`
}

// Command actions.
const (
	ActionTurnOn         = "turn_on"
	ActionTurnOff        = "turn_off"
	ActionSetBrightness  = "set_brightness"
	ActionOpen           = "open"
	ActionClose          = "close"
	ActionStop           = "stop"
	ActionSetPosition    = "set_position"
	ActionSetTemperature = "set_temperature"
	ActionSetHVACMode    = "set_hvac_mode"
	ActionLock           = "lock"
	ActionUnlock         = "unlock"
)

// StateMessage is published on the state topic whenever an entity changes.
type StateMessage struct {
	Gateway   string         `json:"gateway"`
	Key       string         `json:"key"`
	Platform  Platform       `json:"platform"`
	Name      string         `json:"name"`
	State     map[string]any `json:"state"`
	Message   string         `json:"message,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Info is the API view of an entity.
type Info struct {
	Config    Config         `json:"config"`
	State     map[string]any `json:"state"`
	UpdatedAt *time.Time     `json:"updated_at,omitempty"`
}
