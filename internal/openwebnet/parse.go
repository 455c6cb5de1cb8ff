package openwebnet

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Control frames.
const (
	ACK  = "*#*1##"
	NACK = "*#*0##"

	frameStart      = "*"
	frameTerminator = "##"
	translationMark = "1000#"

	// minFrameLen is the shortest well-formed frame ("*#*1##" is 6, "*1*1*1##" 8).
	minFrameLen = 6
)

// Parse decodes a raw inbound frame.
//
// Frames that are well formed but not modelled decode to *UnknownMessage.
// Malformed frames and control frames (ACK/NACK) return an error wrapping ErrDecode.
func Parse(raw string) (Message, error) {
	raw = strings.TrimSpace(raw)
	if !wellFormed(raw) {
		return nil, fmt.Errorf("%w: %q", ErrDecode, raw)
	}
	if raw == ACK || raw == NACK {
		return nil, fmt.Errorf("%w: control frame %s", ErrDecode, raw)
	}

	body := raw[len(frameStart) : len(raw)-len(frameTerminator)]
	if strings.HasPrefix(body, "#") {
		return parseDimension(raw, strings.Split(body[1:], "*"))
	}
	return parseCommand(raw, strings.Split(body, "*"))
}

// wellFormed checks the frame envelope and alphabet.
func wellFormed(raw string) bool {
	if len(raw) < minFrameLen || !strings.HasPrefix(raw, frameStart) || !strings.HasSuffix(raw, frameTerminator) {
		return false
	}
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if (c < '0' || c > '9') && c != '*' && c != '#' {
			return false
		}
	}
	return true
}

// parseCommand decodes "*WHO*WHAT*WHERE##".
func parseCommand(raw string, fields []string) (Message, error) {
	if len(fields) < 3 { //nolint:mnd // WHO, WHAT, WHERE
		return nil, fmt.Errorf("%w: command frame needs WHO*WHAT*WHERE: %q", ErrDecode, raw)
	}
	who, err := strconv.Atoi(fields[0])
	if err != nil {
		return nil, fmt.Errorf("%w: WHO %q", ErrDecode, fields[0])
	}

	what := fields[1]
	h := header{raw: raw, who: Who(who), where: fields[2]}
	if strings.HasPrefix(what, translationMark) {
		h.translation = true
		what = strings.TrimPrefix(what, translationMark)
	}
	whatParts := strings.Split(what, "#")
	code, err := strconv.Atoi(whatParts[0])
	if err != nil {
		return nil, fmt.Errorf("%w: WHAT %q", ErrDecode, fields[1])
	}

	switch Who(who) {
	case WhoLighting:
		return decodeLightingCommand(h, code), nil
	case WhoAutomation:
		return decodeAutomationCommand(h, code), nil
	case WhoHeating:
		return &HeatingEvent{header: h, What: code, Dimension: noDimension, Zone: heatingZone(h.where), Mode: heatingMode(code)}, nil
	case WhoAux:
		return &AuxEvent{header: h, What: code, On: code == 1}, nil
	case WhoCEN:
		return decodeCEN(h, code, whatParts)
	case WhoDryContact:
		return decodeWho25(h, code, whatParts)
	case WhoGateway:
		return &GatewayEvent{header: h, Dimension: noDimension, Values: fields[1:]}, nil
	default:
		return &UnknownMessage{header: h}, nil
	}
}

func decodeLightingCommand(h header, code int) *LightingEvent {
	m := &LightingEvent{header: h, Scope: ParseScope(h.where), What: code, Dimension: noDimension}
	switch {
	case code == 0:
		m.On = boolPtr(false)
	case code == 1:
		m.On = boolPtr(true)
	case code >= brightnessPresetMin && code <= brightnessPresetMax:
		m.On = boolPtr(true)
		m.Preset = true
	case code >= 11 && code <= 19: //nolint:mnd // timed switch-on
		m.On = boolPtr(true)
	}
	return m
}

func decodeAutomationCommand(h header, code int) *AutomationEvent {
	return &AutomationEvent{
		header:    h,
		Scope:     ParseScope(h.where),
		What:      code,
		Dimension: noDimension,
		Opening:   code == 1,
		Closing:   code == 2, //nolint:mnd // WHAT 2 = down
	}
}

// decodeCEN decodes "*15*N[#x]*WHERE##".
func decodeCEN(h header, button int, whatParts []string) (Message, error) {
	object, err := strconv.Atoi(strings.SplitN(h.where, "#", 2)[0]) //nolint:mnd // address before interface
	if err != nil {
		return nil, fmt.Errorf("%w: CEN object %q", ErrDecode, h.where)
	}
	action := ShortPress
	if len(whatParts) > 1 {
		switch whatParts[1] {
		case "1":
			action = ShortRelease
		case "2":
			action = LongPress
		case "3":
			action = LongRelease
		default:
			action = NoAction
		}
	}
	return &CENEvent{header: h, Object: object, PushButton: button, Action: action}, nil
}

// decodeWho25 splits WHO=25 into CEN+ (WHAT 21-24) and dry contacts (WHAT 31/32).
func decodeWho25(h header, code int, whatParts []string) (Message, error) {
	switch code {
	case 31, 32: //nolint:mnd // dry contact on/off
		return &DryContactEvent{header: h, On: code == 31}, nil //nolint:mnd // 31 = on
	case 21, 22, 23, 24: //nolint:mnd // CEN+ actions
		button := 0
		if len(whatParts) > 1 {
			b, err := strconv.Atoi(whatParts[1])
			if err != nil {
				return nil, fmt.Errorf("%w: CEN+ button %q", ErrDecode, whatParts[1])
			}
			button = b
		}
		objectField := h.where
		if len(objectField) > 1 && objectField[0] == '2' {
			objectField = objectField[1:]
		}
		object, err := strconv.Atoi(objectField)
		if err != nil {
			return nil, fmt.Errorf("%w: CEN+ object %q", ErrDecode, h.where)
		}
		var action ButtonAction
		switch code {
		case 21: //nolint:mnd // short pressure
			action = ShortPress
		case 22, 23: //nolint:mnd // start / continue extended pressure
			action = LongPress
		default:
			action = LongRelease
		}
		return &CENPlusEvent{header: h, Object: object, PushButton: button, Action: action}, nil
	default:
		return &UnknownMessage{header: h}, nil
	}
}

// parseDimension decodes "*#WHO*WHERE[*DIM*VAL...]##".
func parseDimension(raw string, fields []string) (Message, error) {
	if len(fields) < 2 { //nolint:mnd // WHO, WHERE
		return nil, fmt.Errorf("%w: dimension frame needs WHO*WHERE: %q", ErrDecode, raw)
	}
	who, err := strconv.Atoi(fields[0])
	if err != nil {
		return nil, fmt.Errorf("%w: WHO %q", ErrDecode, fields[0])
	}
	h := header{raw: raw, who: Who(who), where: fields[1]}

	// Status request echo: no dimension.
	if len(fields) == 2 { //nolint:mnd // WHO, WHERE only
		return &UnknownMessage{header: h}, nil
	}

	dimField := fields[2]
	isWrite := strings.HasPrefix(dimField, "#")
	dim, err := strconv.Atoi(strings.SplitN(strings.TrimPrefix(dimField, "#"), "#", 2)[0]) //nolint:mnd // strip sub-dimension
	if err != nil {
		return nil, fmt.Errorf("%w: dimension %q", ErrDecode, dimField)
	}
	values := fields[3:]

	switch Who(who) {
	case WhoLighting:
		return decodeLightingDimension(h, dim, values), nil
	case WhoAutomation:
		return decodeAutomationDimension(h, dim, values), nil
	case WhoHeating:
		zone := heatingZone(h.where)
		if isWrite {
			return &HeatingCommand{header: h, Dimension: dim, Zone: zone, Values: values}, nil
		}
		return decodeHeatingDimension(h, zone, dim, values)
	case WhoEnergy:
		if isWrite {
			return &UnknownMessage{header: h}, nil
		}
		return decodeEnergyDimension(h, dim, values), nil
	case WhoGateway:
		return &GatewayEvent{header: h, Dimension: dim, Values: values}, nil
	default:
		return &UnknownMessage{header: h}, nil
	}
}

func decodeLightingDimension(h header, dim int, values []string) *LightingEvent {
	m := &LightingEvent{header: h, Scope: ParseScope(h.where), What: -1, Dimension: dim}
	if len(values) == 0 {
		return m
	}
	switch dim {
	case DimLightingBrightness:
		level, err := strconv.Atoi(values[0])
		if err != nil {
			return m
		}
		pct := clamp(level-brightnessLevelBase, 0, 100) //nolint:mnd // percent range
		m.Brightness = &pct
		m.On = boolPtr(pct > 0)
	case DimLightingIlluminance:
		if lux, err := strconv.Atoi(values[0]); err == nil {
			m.Illuminance = &lux
		}
	}
	return m
}

// decodeAutomationDimension decodes the advanced shutter status
// "*#2*WHERE*10*STATUS*LEVEL*PRIORITY*INFO##".
func decodeAutomationDimension(h header, dim int, values []string) *AutomationEvent {
	m := &AutomationEvent{header: h, Scope: ParseScope(h.where), What: -1, Dimension: dim}
	if dim != DimAutomationAdvanced || len(values) < 2 { //nolint:mnd // STATUS, LEVEL
		return m
	}
	switch values[0] {
	case "11":
		m.Opening = true
	case "12":
		m.Closing = true
	}
	if level, err := strconv.Atoi(values[1]); err == nil {
		pos := clamp(level, 0, 100) //nolint:mnd // percent range
		m.Position = &pos
	}
	return m
}

// heatingZone strips the central-unit '#' and the "#<actuator>" suffix.
func heatingZone(where string) string {
	zone, _, _ := strings.Cut(strings.TrimPrefix(where, "#"), "#")
	return zone
}

// heatingMode maps an operating mode WHAT: the first digit selects heating
// (1), cooling (2) or generic (3); the rest is the mode itself.
func heatingMode(code int) ClimateMode {
	switch code {
	case 103, 203, 303: //nolint:mnd // off
		return ClimateOff
	case 111, 211, 311: //nolint:mnd // weekly program
		return ClimateAuto
	case 110: //nolint:mnd // manual heating
		return ClimateHeat
	case 210: //nolint:mnd // manual cooling
		return ClimateCool
	default:
		return ""
	}
}

func decodeHeatingDimension(h header, zone string, dim int, values []string) (Message, error) {
	m := &HeatingEvent{header: h, What: -1, Dimension: dim, Zone: zone}
	if len(values) == 0 {
		return m, nil
	}
	switch dim {
	case DimHeatingMainTemperature:
		t, err := DecodeTemperature(values[0])
		if err != nil {
			return nil, err
		}
		m.MainTemperature = &t
	case DimHeatingTargetTemp:
		t, err := DecodeTemperature(values[0])
		if err != nil {
			return nil, err
		}
		m.TargetTemp = &t
	case DimHeatingLocalSetTemp:
		t, err := DecodeTemperature(values[0])
		if err != nil {
			return nil, err
		}
		m.LocalSetTemp = &t
	case DimHeatingLocalOffset:
		offset, label := decodeLocalOffset(values[0])
		m.LocalOffset = &offset
		m.LocalOffsetLabel = label
	case DimHeatingValves:
		// *#4*WHERE*19*CV*HV##: conditioning and heating valve
		cooling := values[0] == "1"
		heating := len(values) > 1 && values[1] == "1"
		active := cooling || heating
		m.Active = &active
		m.Cooling = cooling
		m.Heating = heating
	case DimHeatingActuator:
		active := values[0] == "1"
		m.Active = &active
	case DimHeatingMainHumidity:
		hum, err := strconv.Atoi(values[0])
		if err != nil {
			return nil, fmt.Errorf("%w: humidity %q", ErrDecode, values[0])
		}
		v := float64(hum)
		m.MainHumidity = &v
	}
	return m, nil
}

func decodeEnergyDimension(h header, dim int, values []string) *EnergyEvent {
	m := &EnergyEvent{header: h, Dimension: dim}
	if len(values) == 0 {
		return m
	}
	v, err := strconv.Atoi(values[0])
	if err != nil {
		return m
	}
	switch dim {
	case DimEnergyActivePower:
		m.ActivePower = &v
	case DimEnergyTotalizer, DimEnergyCurrentMonth, DimEnergyCurrentDay:
		m.Energy = &v
	}
	return m
}

// DecodeTemperature decodes the OpenWebNet temperature encoding: a sign digit
// (0 positive, 1 negative) followed by the value in tenths of a degree.
// "0215" is 21.5, "1050" is -5.0.
func DecodeTemperature(s string) (float64, error) {
	if len(s) != 4 || !isDigits(s) { //nolint:mnd // sign + 3 digits
		return 0, fmt.Errorf("%w: temperature %q", ErrDecode, s)
	}
	tenths, _ := strconv.Atoi(s[1:]) //nolint:errcheck // digits checked above
	t := float64(tenths) / 10        //nolint:mnd // tenths of a degree
	if s[0] == '1' {
		t = -t
	}
	return t, nil
}

// EncodeTemperature is the inverse of DecodeTemperature.
func EncodeTemperature(t float64) string {
	sign := "0"
	if t < 0 {
		sign = "1"
		t = -t
	}
	return fmt.Sprintf("%s%03d", sign, int(math.Round(t*10))) //nolint:mnd // tenths
}

// decodeLocalOffset decodes the thermostat knob position.
func decodeLocalOffset(code string) (int, string) {
	switch code {
	case "00":
		return 0, ""
	case "01", "02", "03":
		n, _ := strconv.Atoi(code[1:]) //nolint:errcheck // literal digits
		return n, ""
	case "11", "12", "13":
		n, _ := strconv.Atoi(code[1:]) //nolint:errcheck // literal digits
		return -n, ""
	case "4":
		return 0, "off"
	case "5":
		return 0, "protection"
	default:
		return 0, "unknown"
	}
}

func boolPtr(b bool) *bool { return &b }

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
