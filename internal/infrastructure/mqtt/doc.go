// Package mqtt provides MQTT client connectivity for the MyHOME bridge.
//
// MQTT is the host bus: device state, bus events, health and the service
// interface of each gateway are published here, and device commands and
// service calls are received here.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support, restored on reconnect
//   - Last Will and Testament (LWT) for offline detection
//
// # Topics
//
//	myhome/state/{mac}/{key}      device state (retained)
//	myhome/command/{mac}/{key}    device commands
//	myhome/event/{name}           bus events (myhome_general_light_event, ...)
//	myhome/service/{mac}/{name}   service calls (sync_time, send_message)
//	myhome/health/{mac}           gateway health (retained)
//	myhome/bridge/status          process online/offline (retained, LWT)
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Publish(mqtt.Topics{}.State(mac, "1-0101"), payload, 1, true)
package mqtt
