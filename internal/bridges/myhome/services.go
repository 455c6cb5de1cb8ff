package myhome

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/myhome-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/myhome-bridge/internal/openwebnet"
)

// Gateway service names.
const (
	ServiceSyncTime    = "sync_time"
	ServiceSendMessage = "send_message"
)

// Services lists the supported service names.
var Services = []string{ServiceSyncTime, ServiceSendMessage}

type syncTimeData struct {
	// Timezone is an IANA zone name. Default: the process local zone.
	Timezone string `json:"timezone"`
}

type sendMessageData struct {
	Message string `json:"message"`
}

// CallService runs a gateway service. data is the JSON service payload and
// may be empty for sync_time.
//
// Both services only enqueue a frame; the gateway's answer is not awaited.
//
// Returns:
//   - error: ErrUnknownService for an unsupported name, ErrInvalidServiceData
//     when the payload or frame is invalid
func (g *Gateway) CallService(name string, data []byte) error {
	switch name {
	case ServiceSyncTime:
		var req syncTimeData
		if err := decodeServiceData(data, &req); err != nil {
			return err
		}
		loc := time.Local
		if req.Timezone != "" {
			l, err := time.LoadLocation(req.Timezone)
			if err != nil {
				return fmt.Errorf("%w: timezone %q: %w", ErrInvalidServiceData, req.Timezone, err)
			}
			loc = l
		}
		frame := openwebnet.GatewaySetDateTime(g.now().In(loc))
		g.log.get().Info("synchronising gateway time", "gateway", g.LogID(), "timezone", loc.String())
		g.Send(frame)
		return nil

	case ServiceSendMessage:
		var req sendMessageData
		if err := decodeServiceData(data, &req); err != nil {
			return err
		}
		frame, err := openwebnet.ParseFrame(req.Message)
		if err != nil {
			g.log.get().Error("could not send invalid message", "gateway", g.LogID(), "message", req.Message)
			return fmt.Errorf("%w: %w", ErrInvalidServiceData, err)
		}
		g.log.get().Debug("sending raw message", "gateway", g.LogID(), "message", frame.String())
		g.Send(frame)
		return nil

	default:
		return fmt.Errorf("%w: %s", ErrUnknownService, name)
	}
}

func decodeServiceData(data []byte, v any) error {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidServiceData, err)
	}
	return nil
}

// ServiceHandler returns an MQTT handler for myhome/service/<mac>/+ that
// dispatches to CallService by the last topic level.
func (g *Gateway) ServiceHandler() mqtt.MessageHandler {
	return func(topic string, payload []byte) error {
		return g.CallService(mqtt.LastLevel(topic), payload)
	}
}
