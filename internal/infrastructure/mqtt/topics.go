package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes for the MyHOME bridge.
//
// All topics use the flat scheme: myhome/{category}/{gateway_mac}/{key}
const (
	// TopicPrefix is the base for all bridge topics.
	TopicPrefix = "myhome"

	// TopicPrefixBridge is the base for process-level topics.
	TopicPrefixBridge = "myhome/bridge"
)

// Topics provides builders for MyHOME MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.State("00:03:50:12:34:56", "1-0101")
//	// Returns: "myhome/state/00:03:50:12:34:56/1-0101"
//
// Handler keys may contain '#' (groups, bus interfaces), which is a wildcard
// in MQTT. Builders encode it as '_'; use DecodeKey on received topics.
type Topics struct{}

// EncodeKey makes a handler key safe for use as a topic level.
func EncodeKey(key string) string {
	return strings.ReplaceAll(key, "#", "_")
}

// DecodeKey reverses EncodeKey.
func DecodeKey(level string) string {
	return strings.ReplaceAll(level, "_", "#")
}

// =============================================================================
// Device Topics
// =============================================================================

// State returns the topic for device state updates.
//
// Example: myhome/state/00:03:50:12:34:56/1-0101
func (Topics) State(mac, key string) string {
	return fmt.Sprintf("%s/state/%s/%s", TopicPrefix, mac, EncodeKey(key))
}

// Command returns the topic for commands to a device.
//
// Example: myhome/command/00:03:50:12:34:56/1-0101
func (Topics) Command(mac, key string) string {
	return fmt.Sprintf("%s/command/%s/%s", TopicPrefix, mac, EncodeKey(key))
}

// =============================================================================
// Gateway Topics
// =============================================================================

// Event returns the topic for host bus events.
//
// Example: myhome/event/myhome_general_light_event
func (Topics) Event(name string) string {
	return fmt.Sprintf("%s/event/%s", TopicPrefix, name)
}

// Health returns the topic for gateway health status.
//
// Example: myhome/health/00:03:50:12:34:56
func (Topics) Health(mac string) string {
	return fmt.Sprintf("%s/health/%s", TopicPrefix, mac)
}

// BridgeStatus returns the process online/offline topic.
//
// Example: myhome/bridge/status
func (Topics) BridgeStatus() string {
	return TopicPrefixBridge + "/status"
}

// =============================================================================
// Wildcard Patterns for Subscriptions
// =============================================================================

// AllCommands returns a pattern matching every device command for a gateway.
//
// Pattern: myhome/command/{mac}/+
func (Topics) AllCommands(mac string) string {
	return fmt.Sprintf("%s/command/%s/+", TopicPrefix, mac)
}

// AllServices returns a pattern matching every service call for a gateway.
//
// Pattern: myhome/service/{mac}/+
func (Topics) AllServices(mac string) string {
	return fmt.Sprintf("%s/service/%s/+", TopicPrefix, mac)
}

// LastLevel returns the final level of a topic, e.g. the key of a command
// topic or the name of a service topic.
func LastLevel(topic string) string {
	if i := strings.LastIndexByte(topic, '/'); i >= 0 {
		return topic[i+1:]
	}
	return topic
}
