// Package device provides the MyHOME device entities for the bridge.
//
// Devices are declared in a YAML file keyed by gateway MAC, one section per
// platform. Each configured device becomes an Entity that owns one bus key
// and is registered in the gateway's handler registry, so the event listener
// can route frames to it.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────────────────┐
//	│                              Manager                                  │
//	│                                                                       │
//	│  ┌────────────────┐    ┌──────────────────┐    ┌──────────────────┐  │
//	│  │  Device file   │    │     Entities     │    │      Sinks       │  │
//	│  │  (config.go)   │───▶│ light, switch,   │───▶│ MQTT state       │  │
//	│  │                │    │ cover, sensor,   │    │ InfluxDB points  │  │
//	│  │ • YAML parse   │    │ binary_sensor,   │    │ sqlite journal   │  │
//	│  │ • validation   │    │ climate          │    │ live listeners   │  │
//	│  └────────────────┘    └──────────────────┘    └──────────────────┘  │
//	│                                 ▲   │                                 │
//	└─────────────────────────────────│───│─────────────────────────────────┘
//	                                  │   ▼
//	                   HandleEvent    │   Send / SendStatusRequest
//	┌─────────────────────────────────┴──────────────────────────────────────┐
//	│                   myhome.Gateway (listener + dispatch pool)             │
//	└────────────────────────────────────────────────────────────────────────┘
//
// # Usage
//
//	file, err := device.LoadFile(cfg.Gateway.DevicesFile)
//	if err != nil {
//	    return err
//	}
//
//	mgr := device.NewManager(gw.MAC(), gw, gw.Registry(), device.Sinks{
//	    Publisher: mqttClient,
//	    Metrics:   influxClient,
//	    Recorder:  journal,
//	})
//	mgr.SetLogger(log)
//	if err := mgr.Load(file.Devices(gw.MAC())); err != nil {
//	    return err
//	}
//
//	// Route MQTT commands to entities.
//	mqttClient.Subscribe(mqtt.Topics{}.AllCommands(gw.MAC()), 1, mgr.CommandHandler())
//
// # Thread Safety
//
// Entities are safe for concurrent use. HandleEvent is called from the
// listener goroutine while commands arrive from MQTT and the HTTP API.
package device
