package device

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/myhome-bridge/internal/openwebnet"
)

// Validation constants.
const (
	maxNameLength = 100
	macHexLength  = 12
	maxInterface  = 15
	maxGroup      = 255
	maxArea       = 10
	maxLightPoint = 15
)

var specialWhereRegex = regexp.MustCompile(`^[0-9#]+$`)

// Pre-computed validation sets.
var (
	validSwitchClasses       = setOf(SwitchClassSwitch, SwitchClassOutlet)
	validBinarySensorWho     = setOf(1, 4, 9, 18, 25)
	validBinarySensorClasses = setOf(
		"battery", "battery_charging", "cold", "connectivity", "door", "garage_door",
		"gas", "heat", "light", "lock", "moisture", "motion", "moving", "occupancy",
		"opening", "plug", "power", "presence", "problem", "safety", "smoke", "sound",
		"vibration", "window",
	)
	// sensorClassWho maps each sensor class to the only WHO that can serve it.
	sensorClassWho = map[string]int{
		SensorClassPower:       18,
		SensorClassEnergy:      18,
		SensorClassTemperature: 4,
		SensorClassIlluminance: 1,
	}
)

func setOf[T comparable](values ...T) map[T]struct{} {
	m := make(map[T]struct{}, len(values))
	for _, v := range values {
		m[v] = struct{}{}
	}
	return m
}

// File is a parsed device file.
type File struct {
	// Gateways maps a normalised gateway MAC to its devices, ordered by key.
	Gateways map[string][]Config
}

// Devices returns the devices configured for a gateway. The MAC may use
// any separator style.
func (f *File) Devices(mac string) []Config {
	if f == nil {
		return nil
	}
	normalised, err := NormalizeMAC(mac)
	if err != nil {
		return nil
	}
	return f.Gateways[normalised]
}

// gatewaySection is the raw YAML shape of one gateway entry.
type gatewaySection struct {
	MAC          string            `yaml:"mac"`
	Light        map[string]Config `yaml:"light"`
	Switch       map[string]Config `yaml:"switch"`
	Cover        map[string]Config `yaml:"cover"`
	BinarySensor map[string]Config `yaml:"binary_sensor"`
	Sensor       map[string]Config `yaml:"sensor"`
	Climate      map[string]Config `yaml:"climate"`
}

func (s gatewaySection) platforms() map[Platform]map[string]Config {
	return map[Platform]map[string]Config{
		PlatformLight:        s.Light,
		PlatformSwitch:       s.Switch,
		PlatformCover:        s.Cover,
		PlatformBinarySensor: s.BinarySensor,
		PlatformSensor:       s.Sensor,
		PlatformClimate:      s.Climate,
	}
}

// LoadFile reads and validates a device file.
//
// The file is keyed by a free-form gateway name; each entry carries the
// gateway "mac" and one section per platform:
//
//	home:
//	  mac: 00:03:50:12:34:56
//	  light:
//	    kitchen:
//	      where: "0101"
//	      name: Kitchen
//	      dimmable: true
//
// Returns:
//   - *File: devices keyed by normalised gateway MAC
//   - error: ErrInvalidFile when the file cannot be read or parsed, or
//     every validation problem joined together
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path from trusted config
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", ErrInvalidFile, path, err)
	}
	return Parse(data)
}

// Parse validates a device file already in memory. See LoadFile.
func Parse(data []byte) (*File, error) {
	var raw map[string]gatewaySection
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFile, err)
	}

	file := &File{Gateways: make(map[string][]Config, len(raw))}
	var errs []error

	for _, name := range sortedKeys(raw) {
		section := raw[name]

		mac, err := NormalizeMAC(section.MAC)
		if err != nil {
			errs = append(errs, fmt.Errorf("gateway %q: %w", name, err))
			continue
		}

		seen := make(map[openwebnet.Key]string)
		var devices []Config
		for _, platform := range AllPlatforms() {
			entries := section.platforms()[platform]
			for _, id := range sortedKeys(entries) {
				cfg := entries[id]
				cfg.ID = id
				cfg.Platform = platform
				if err := Normalize(&cfg); err != nil {
					errs = append(errs, fmt.Errorf("gateway %q %s %q: %w", name, platform, id, err))
					continue
				}
				if other, dup := seen[cfg.Key]; dup {
					errs = append(errs, fmt.Errorf("gateway %q %s %q: %w: key %s also used by %s",
						name, platform, id, ErrDeviceExists, cfg.Key, other))
					continue
				}
				seen[cfg.Key] = fmt.Sprintf("%s %q", platform, id)
				devices = append(devices, cfg)
			}
		}

		devices = append(devices, deriveButtons(devices, seen)...)
		slices.SortFunc(devices, func(a, b Config) int { return strings.Compare(string(a.Key), string(b.Key)) })
		file.Gateways[mac] = append(file.Gateways[mac], devices...)
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return file, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// NormalizeMAC returns mac as lowercase colon-separated hex
// ("00:03:50:12:34:56"). Dots, dashes, colons and spaces are accepted as
// separators.
func NormalizeMAC(mac string) (string, error) {
	stripped := strings.Map(func(r rune) rune {
		switch r {
		case '.', ':', '-', ' ', '\t':
			return -1
		}
		return r
	}, mac)
	stripped = strings.ToLower(stripped)

	if len(stripped) != macHexLength {
		return "", fmt.Errorf("%w: %q", ErrInvalidMAC, mac)
	}
	for _, r := range stripped {
		if !strings.ContainsRune("0123456789abcdef", r) {
			return "", fmt.Errorf("%w: %q", ErrInvalidMAC, mac)
		}
	}

	var b strings.Builder
	for i := 0; i < macHexLength; i += 2 {
		if i > 0 {
			b.WriteByte(':')
		}
		b.WriteString(stripped[i : i+2])
	}
	return b.String(), nil
}

// Normalize applies platform defaults to cfg, validates it and derives
// its key. cfg.Platform must be set.
func Normalize(cfg *Config) error {
	if cfg.Manufacturer == "" {
		cfg.Manufacturer = DefaultManufacturer
	}

	var err error
	switch cfg.Platform {
	case PlatformLight:
		err = normalizeActuator(cfg, int(openwebnet.WhoLighting))
	case PlatformSwitch:
		if cfg.Class == "" {
			cfg.Class = SwitchClassSwitch
		}
		if _, ok := validSwitchClasses[cfg.Class]; !ok {
			return fmt.Errorf("%w: switch class %q", ErrInvalidDevice, cfg.Class)
		}
		err = normalizeActuator(cfg, int(openwebnet.WhoLighting))
	case PlatformCover:
		if cfg.OpeningTime < 0 || cfg.ClosingTime < 0 {
			return fmt.Errorf("%w: travel times must not be negative", ErrInvalidDevice)
		}
		err = normalizeActuator(cfg, int(openwebnet.WhoAutomation))
	case PlatformBinarySensor:
		err = normalizeBinarySensor(cfg)
	case PlatformSensor:
		err = normalizeSensor(cfg)
	case PlatformClimate:
		err = normalizeClimate(cfg)
	case PlatformButton:
		err = normalizeButton(cfg)
	default:
		return fmt.Errorf("%w: %q", ErrInvalidPlatform, cfg.Platform)
	}
	if err != nil {
		return err
	}

	if cfg.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidDevice)
	}
	if len(cfg.Name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidDevice, maxNameLength)
	}
	return nil
}

// normalizeActuator validates lights, switches and covers, which accept
// general, area, group or point-to-point addresses.
func normalizeActuator(cfg *Config, who int) error {
	if cfg.Who == 0 {
		cfg.Who = who
	}
	if cfg.Who != who {
		return fmt.Errorf("%w: %s must use WHO %d, got %d", ErrInvalidDevice, cfg.Platform, who, cfg.Who)
	}

	where, err := ValidateActuatorWhere(cfg.Where)
	if err != nil {
		return err
	}
	cfg.Where = where

	if err := validateInterface(cfg.Interface); err != nil {
		return err
	}
	cfg.Key = openwebnet.NewKey(openwebnet.Who(cfg.Who), cfg.FullWhere())
	return nil
}

func normalizeButton(cfg *Config) error {
	if cfg.Who == 0 {
		cfg.Who = int(openwebnet.WhoSpecial)
	}
	if cfg.Who != int(openwebnet.WhoSpecial) {
		return fmt.Errorf("%w: button must use WHO 14, got %d", ErrInvalidDevice, cfg.Who)
	}
	if strings.HasPrefix(cfg.Where, "#") {
		return fmt.Errorf("%w: button cannot address group %q", ErrInvalidAddress, cfg.Where)
	}
	where, err := ValidateActuatorWhere(cfg.Where)
	if err != nil {
		return err
	}
	cfg.Where = where
	if err := validateInterface(cfg.Interface); err != nil {
		return err
	}
	cfg.Key = openwebnet.NewKey(openwebnet.WhoSpecial, cfg.FullWhere())
	return nil
}

// deriveButtons returns a lock button for every light, switch and cover
// that is not addressed as a group. When two devices share an address the
// first one, in key order, owns the button.
func deriveButtons(devices []Config, seen map[openwebnet.Key]string) []Config {
	sorted := slices.Clone(devices)
	slices.SortFunc(sorted, func(a, b Config) int { return strings.Compare(string(a.Key), string(b.Key)) })

	var buttons []Config
	for _, d := range sorted {
		switch d.Platform {
		case PlatformLight, PlatformSwitch, PlatformCover:
		default:
			continue
		}
		if strings.HasPrefix(d.Where, "#") {
			continue
		}
		b := Config{
			ID:           d.ID,
			Platform:     PlatformButton,
			Name:         d.Name,
			Where:        d.Where,
			Interface:    d.Interface,
			Manufacturer: d.Manufacturer,
			Model:        d.Model,
		}
		if err := Normalize(&b); err != nil {
			continue
		}
		if _, dup := seen[b.Key]; dup {
			continue
		}
		seen[b.Key] = fmt.Sprintf("%s %q", PlatformButton, b.ID)
		buttons = append(buttons, b)
	}
	return buttons
}

func normalizeBinarySensor(cfg *Config) error {
	if cfg.Who == 0 {
		cfg.Who = int(openwebnet.WhoDryContact)
	}
	if _, ok := validBinarySensorWho[cfg.Who]; !ok {
		return fmt.Errorf("%w: binary sensor WHO %d", ErrInvalidDevice, cfg.Who)
	}
	if cfg.Class != "" {
		if _, ok := validBinarySensorClasses[cfg.Class]; !ok {
			return fmt.Errorf("%w: binary sensor class %q", ErrInvalidDevice, cfg.Class)
		}
	}
	if err := validateSpecialWhere(cfg.Where); err != nil {
		return err
	}
	cfg.Key = openwebnet.NewKey(openwebnet.Who(cfg.Who), cfg.Where)
	return nil
}

func normalizeSensor(cfg *Config) error {
	who, ok := sensorClassWho[cfg.Class]
	if !ok {
		return fmt.Errorf("%w: sensor class %q", ErrInvalidDevice, cfg.Class)
	}
	if cfg.Who == 0 {
		cfg.Who = who
	}
	if cfg.Who != who {
		return fmt.Errorf("%w: sensor class %s needs WHO %d, got %d", ErrInvalidDevice, cfg.Class, who, cfg.Who)
	}
	if err := validateSpecialWhere(cfg.Where); err != nil {
		return err
	}
	cfg.Key = openwebnet.NewKey(openwebnet.Who(cfg.Who), heatingZone(cfg.Where))
	return nil
}

func normalizeClimate(cfg *Config) error {
	if cfg.Who == 0 {
		cfg.Who = int(openwebnet.WhoHeating)
	}
	if cfg.Who != int(openwebnet.WhoHeating) {
		return fmt.Errorf("%w: climate must use WHO 4, got %d", ErrInvalidDevice, cfg.Who)
	}
	if cfg.Zone == "" {
		cfg.Zone = "#0"
	}
	zone := heatingZone(cfg.Zone)
	if !isDigits(zone) {
		return fmt.Errorf("%w: zone %q", ErrInvalidAddress, cfg.Zone)
	}
	if cfg.Name == "" {
		if zone == "0" {
			cfg.Name = "Central unit"
		} else {
			cfg.Name = "Zone " + zone
		}
	}
	cfg.Key = openwebnet.NewKey(openwebnet.WhoHeating, zone)
	return nil
}

// heatingZone strips the leading '#' used for central-unit addressing.
func heatingZone(where string) string {
	return strings.TrimPrefix(where, "#")
}

// ValidateActuatorWhere checks a lighting or automation address and returns
// its canonical form ("#05" becomes "#5").
//
// Accepted forms:
//   - "0": general
//   - "00", "1"-"10": area
//   - "#1"-"#255": group
//   - "AP" or "AAPP" with A 0-10 and P 0-15: point to point
func ValidateActuatorWhere(where string) (string, error) {
	switch {
	case where == "":
		return "", fmt.Errorf("%w: where is required", ErrInvalidAddress)
	case where == "0", where == "00":
		return where, nil
	case strings.HasPrefix(where, "#"):
		n, err := strconv.Atoi(where[1:])
		if err != nil || !isDigits(where[1:]) || n < 1 || n > maxGroup {
			return "", fmt.Errorf("%w: group %q must be #1-#255", ErrInvalidAddress, where)
		}
		return "#" + strconv.Itoa(n), nil
	case !isDigits(where):
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, where)
	case len(where) == 1, where == "10":
		return where, nil
	case len(where) == 2 || len(where) == 4: //nolint:mnd // AP or AAPP
		half := len(where) / 2 //nolint:mnd // split A and PL
		a, _ := strconv.Atoi(where[:half])  //nolint:errcheck // digits checked above
		pl, _ := strconv.Atoi(where[half:]) //nolint:errcheck // digits checked above
		if a > maxArea || pl > maxLightPoint {
			return "", fmt.Errorf("%w: %q, A must be 0-10 and PL 0-15", ErrInvalidAddress, where)
		}
		return where, nil
	default:
		return "", fmt.Errorf("%w: %q must be 2 or 4 digits", ErrInvalidAddress, where)
	}
}

func validateSpecialWhere(where string) error {
	if !specialWhereRegex.MatchString(where) {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, where)
	}
	return nil
}

func validateInterface(iface string) error {
	if iface == "" {
		return nil
	}
	n, err := strconv.Atoi(iface)
	if err != nil || len(iface) != 2 || !isDigits(iface) || n > maxInterface {
		return fmt.Errorf("%w: bus interface %q must be 00-15", ErrInvalidAddress, iface)
	}
	return nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
