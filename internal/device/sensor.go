package device

import (
	"github.com/nerrad567/myhome-bridge/internal/openwebnet"
)

// BinarySensor reports the on/off state of a dry contact (WHO 25), an
// auxiliary channel (WHO 9) or a lighting point (WHO 1), optionally
// inverted.
//
// State keys: "on".
type BinarySensor struct {
	entity
}

func newBinarySensor(cfg Config, sender Sender, out *output) *BinarySensor {
	return &BinarySensor{entity: newEntity(cfg, sender, out)}
}

// HandleEvent applies dry contact, aux and lighting frames.
func (b *BinarySensor) HandleEvent(msg openwebnet.Message) {
	var on bool
	switch ev := msg.(type) {
	case *openwebnet.DryContactEvent:
		on = ev.On
	case *openwebnet.AuxEvent:
		on = ev.On
	case *openwebnet.LightingEvent:
		if ev.On == nil {
			return
		}
		on = *ev.On
	default:
		return
	}
	b.update(msg, func(s map[string]any) bool {
		s["on"] = on != b.cfg.Inverted
		return true
	})
}

// AsyncUpdate polls the sensor state.
func (b *BinarySensor) AsyncUpdate() {
	switch openwebnet.Who(b.cfg.Who) {
	case openwebnet.WhoDryContact:
		b.sender.SendStatusRequest(openwebnet.DryContactStatus(b.cfg.Where))
	case openwebnet.WhoAux:
		b.sender.SendStatusRequest(openwebnet.AuxStatus(b.cfg.Where))
	case openwebnet.WhoLighting:
		b.sender.SendStatusRequest(openwebnet.LightingStatus(b.cfg.Where))
	}
}

// Command is not supported by sensors.
func (b *BinarySensor) Command(cmd Command) error {
	return b.unsupported(cmd.Action)
}

// Sensor is a read-only measurement: an energy meter (power and energy
// classes), a temperature probe or a light sensor.
//
// State keys by class:
//   - power, energy: "power" (W), "energy_total", "energy_month", "energy_day" (Wh)
//   - temperature: "temperature" (°C)
//   - illuminance: "illuminance" (lx)
type Sensor struct {
	entity
}

func newSensor(cfg Config, sender Sender, out *output) *Sensor {
	return &Sensor{entity: newEntity(cfg, sender, out)}
}

// HandleEvent applies the frames matching the sensor class.
func (s *Sensor) HandleEvent(msg openwebnet.Message) {
	switch ev := msg.(type) {
	case *openwebnet.EnergyEvent:
		if s.cfg.Class != SensorClassPower && s.cfg.Class != SensorClassEnergy {
			return
		}
		s.handleEnergy(ev)
	case *openwebnet.HeatingEvent:
		if s.cfg.Class != SensorClassTemperature || ev.MainTemperature == nil {
			return
		}
		s.update(msg, func(st map[string]any) bool {
			st["temperature"] = *ev.MainTemperature
			return true
		})
	case *openwebnet.LightingEvent:
		if s.cfg.Class != SensorClassIlluminance || ev.Illuminance == nil {
			return
		}
		s.update(msg, func(st map[string]any) bool {
			st["illuminance"] = *ev.Illuminance
			return true
		})
	}
}

func (s *Sensor) handleEnergy(ev *openwebnet.EnergyEvent) {
	var total *int
	s.update(ev, func(st map[string]any) bool {
		switch {
		case ev.ActivePower != nil:
			st["power"] = *ev.ActivePower
		case ev.Energy != nil && ev.Dimension == openwebnet.DimEnergyTotalizer:
			st["energy_total"] = *ev.Energy
			total = ev.Energy
		case ev.Energy != nil && ev.Dimension == openwebnet.DimEnergyCurrentMonth:
			st["energy_month"] = *ev.Energy
		case ev.Energy != nil && ev.Dimension == openwebnet.DimEnergyCurrentDay:
			st["energy_day"] = *ev.Energy
		default:
			return false
		}
		return true
	})

	if m := s.out.sinks.Metrics; m != nil && (ev.ActivePower != nil || total != nil) {
		m.WriteEnergyMetric(s.out.gateway, string(s.cfg.Key), ev.ActivePower, total)
	}
}

// AsyncUpdate polls the reading for the sensor class.
func (s *Sensor) AsyncUpdate() {
	switch s.cfg.Class {
	case SensorClassPower, SensorClassEnergy:
		s.sender.SendStatusRequest(openwebnet.EnergyActivePower(s.cfg.Where))
		s.sender.SendStatusRequest(openwebnet.EnergyTotalizer(s.cfg.Where))
	case SensorClassTemperature:
		s.sender.SendStatusRequest(openwebnet.HeatingGetTemperature(s.cfg.Where))
	case SensorClassIlluminance:
		s.sender.SendStatusRequest(openwebnet.LightingGetIlluminance(s.cfg.Where))
	}
}

// Command is not supported by sensors.
func (s *Sensor) Command(cmd Command) error {
	return s.unsupported(cmd.Action)
}
