// Package api implements the HTTP REST API and WebSocket server for the
// MyHOME bridge.
//
// This package provides:
//   - Gateway status, connectivity test and services (sync_time, send_message)
//   - Device listing, state and commands
//   - The bus journal (fired events and device state updates)
//   - On-demand SSDP gateway discovery
//   - Prometheus metrics at /metrics
//   - WebSocket hub for live bus events and state changes
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Routes
//
//	GET  /api/v1/health
//	GET  /api/v1/gateway
//	POST /api/v1/gateway/test
//	POST /api/v1/gateway/services/{name}
//	GET  /api/v1/devices
//	GET  /api/v1/devices/{key}
//	POST /api/v1/devices/{key}/command
//	GET  /api/v1/events
//	GET  /api/v1/discovery
//	GET  /api/v1/ws
//	GET  /metrics
//
// Device keys in paths use the MQTT topic encoding: '_' stands for '#'.
//
// # WebSocket
//
// Clients send {"type":"subscribe","payload":{"channels":[...]}} for
// "bus.event" and/or "device.state_changed" and receive
// {"type":"event","event_type":<channel>,"payload":...} messages.
//
// # Graceful Degradation
//
// Journal, discovery and health are optional; their routes answer 503
// when the component is not configured.
package api
