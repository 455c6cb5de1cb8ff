// Package influxdb writes bus telemetry to InfluxDB v2.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, batched non-blocking writes and health checks.
//
// # Measurements
//
//   - myhome_device: numeric state of every device handler (brightness,
//     position, temperatures, on/off as 0/1), tagged by gateway, key and platform
//   - myhome_energy: energy meter readings (power_watts, energy_wh)
//   - myhome_gateway: periodic health of each gateway (queue depth, frame
//     counters, healthy as 0/1), tagged by gateway
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    client = nil // writes on a nil client are dropped
//	}
//	defer client.Close()
//
//	client.WriteDeviceState(mac, "1-0101", "light", map[string]any{"brightness": 75})
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// Write errors are delivered asynchronously through SetOnError.
package influxdb
