package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by the bridge.
const (
	MeasurementDevice  = "myhome_device"
	MeasurementEnergy  = "myhome_energy"
	MeasurementGateway = "myhome_gateway"
)

// WriteDeviceState records the numeric part of a device state update.
//
// Non-numeric values in fields are skipped. Booleans are stored as 0/1 so
// on/off history can be graphed next to brightness and temperatures.
//
// Parameters:
//   - gateway: MAC of the gateway the device belongs to
//   - key: handler key, e.g. "1-0101"
//   - platform: device platform ("light", "cover", "climate", ...)
//   - fields: state values keyed by attribute name
//
// Example:
//
//	client.WriteDeviceState("00:03:50:aa:bb:cc", "1-0101", "light",
//	    map[string]any{"on": true, "brightness": 75})
func (c *Client) WriteDeviceState(gateway, key, platform string, fields map[string]any) {
	if !c.IsConnected() {
		return
	}

	numeric := numericFields(fields)
	if len(numeric) == 0 {
		return
	}

	c.write(MeasurementDevice, map[string]string{
		"gateway":  gateway,
		"key":      key,
		"platform": platform,
	}, numeric)
}

// WriteEnergyMetric records an energy meter reading.
//
// Parameters:
//   - gateway: MAC of the gateway
//   - key: handler key of the meter, e.g. "18-51"
//   - powerWatts: instantaneous active power, nil if not part of this reading
//   - energyWh: totalizer in watt hours, nil if not part of this reading
func (c *Client) WriteEnergyMetric(gateway, key string, powerWatts, energyWh *int) {
	if !c.IsConnected() {
		return
	}

	fields := make(map[string]any, 2) //nolint:mnd // two optional fields
	if powerWatts != nil {
		fields["power_watts"] = *powerWatts
	}
	if energyWh != nil {
		fields["energy_wh"] = *energyWh
	}
	if len(fields) == 0 {
		return
	}

	c.write(MeasurementEnergy, map[string]string{"gateway": gateway, "key": key}, fields)
}

// WriteGatewayHealth records one periodic health report of a gateway:
// queue depth, managed devices and the bus counters. healthy is stored as
// 0/1 next to them.
func (c *Client) WriteGatewayHealth(gateway string, healthy bool, fields map[string]any) {
	if !c.IsConnected() {
		return
	}

	numeric := numericFields(fields)
	numeric["healthy"] = boolInt(healthy)
	c.write(MeasurementGateway, map[string]string{"gateway": gateway}, numeric)
}

func (c *Client) write(measurement string, tags map[string]string, fields map[string]any) {
	c.writes.WritePoint(write.NewPoint(measurement, tags, fields, time.Now()))
}

// numericFields keeps the values InfluxDB can aggregate.
func numericFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		switch n := v.(type) {
		case int, int64, float64:
			out[k] = n
		case uint64:
			out[k] = n
		case *int:
			if n != nil {
				out[k] = *n
			}
		case *float64:
			if n != nil {
				out[k] = *n
			}
		case bool:
			out[k] = boolInt(n)
		case *bool:
			if n != nil {
				out[k] = boolInt(*n)
			}
		}
	}
	return out
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
