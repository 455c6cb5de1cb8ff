package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/myhome-bridge/internal/device"
	"github.com/nerrad567/myhome-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/myhome-bridge/internal/openwebnet"
)

// keyParam reads the {key} path parameter. Keys use the MQTT topic
// encoding, with '_' standing for '#' ("1-_5" is group 5).
func keyParam(r *http.Request) openwebnet.Key {
	return openwebnet.Key(mqtt.DecodeKey(chi.URLParam(r, "key")))
}

// handleListDevices returns the configured devices.
//
// Query parameters:
//   - platform: filter by platform (light, switch, cover, binary_sensor, sensor, climate)
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	platform := device.Platform(r.URL.Query().Get("platform"))
	if platform != "" && !isPlatform(platform) {
		writeBadRequest(w, "unknown platform: "+string(platform))
		return
	}

	devices := s.devices.List(platform)
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

func isPlatform(p device.Platform) bool {
	for _, known := range device.AllPlatforms() {
		if p == known {
			return true
		}
	}
	return false
}

// handleGetDevice returns one device with its current state.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	key := keyParam(r)
	info, err := s.devices.Info(key)
	if err != nil {
		writeDeviceError(w, key, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// handleDeviceCommand sends a command to a device. The command body has
// the same shape as the MQTT command payload.
func (s *Server) handleDeviceCommand(w http.ResponseWriter, r *http.Request) {
	key := keyParam(r)

	var cmd device.Command
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if cmd.Action == "" {
		writeBadRequest(w, "action is required")
		return
	}

	if err := s.devices.HandleCommand(key, cmd); err != nil {
		writeDeviceError(w, key, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued", "key": string(key)})
}

func writeDeviceError(w http.ResponseWriter, key openwebnet.Key, err error) {
	switch {
	case errors.Is(err, device.ErrDeviceNotFound):
		writeNotFound(w, "device not found: "+string(key))
	case errors.Is(err, device.ErrInvalidCommand):
		writeBadRequest(w, err.Error())
	default:
		writeInternalError(w, "device operation failed")
	}
}
