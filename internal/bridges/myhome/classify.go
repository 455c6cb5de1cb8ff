package myhome

import (
	"github.com/nerrad567/myhome-bridge/internal/openwebnet"
)

// Host event names.
const (
	EventGeneralLight      = "myhome_general_light_event"
	EventAreaLight         = "myhome_area_light_event"
	EventGroupLight        = "myhome_group_light_event"
	EventGeneralAutomation = "myhome_general_automation_event"
	EventAreaAutomation    = "myhome_area_automation_event"
	EventGroupAutomation   = "myhome_group_automation_event"
	EventCEN               = "myhome_cen_event"
	EventCENPlus           = "myhome_cenplus_event"
)

// Broadcast semantics.
const (
	SemanticOn    = "on"
	SemanticOff   = "off"
	SemanticOpen  = "open"
	SemanticClose = "close"
	SemanticStop  = "stop"
)

// Decision is the dispatch outcome for one inbound message.
// The concrete types are Ignore, Broadcast, Requery, Routed, Button and Unknown.
type Decision interface {
	decision()
}

// Ignore drops the message. Translation echoes of our own commands end here.
type Ignore struct {
	Reason string
}

// Broadcast is a general, area or group command seen on the bus.
type Broadcast struct {
	// Event is the host event name, e.g. EventAreaLight.
	Event string
	Scope openwebnet.Scope
	// Semantic is on/off for lighting and open/close/stop for automation.
	Semantic string
	// StatusRequest re-polls the members of a general or area lighting
	// broadcast. Empty when no re-query is needed.
	StatusRequest openwebnet.Frame
}

// Requery asks the handler for Key to poll its device instead of applying
// the message, because the message says the state changed without saying to what.
type Requery struct {
	Key        openwebnet.Key
	Registered bool
	// Fallback is enqueued when no handler is registered. Empty when the
	// miss should only be logged.
	Fallback openwebnet.Frame
}

// Routed delivers the message to the handler for Key.
type Routed struct {
	Key        openwebnet.Key
	Registered bool
}

// Button is a CEN or CEN+ pushbutton action, republished as a host event.
type Button struct {
	Event      string
	Object     int
	PushButton int
	Action     openwebnet.ButtonAction
}

// Unknown is a message with no routing policy. It is logged only.
type Unknown struct {
	Reason string
}

func (Ignore) decision()    {}
func (Broadcast) decision() {}
func (Requery) decision()   {}
func (Routed) decision()    {}
func (Button) decision()    {}
func (Unknown) decision()   {}

// Classify maps a decoded message and the registered keys to a Decision.
// It performs no I/O and does not modify its arguments.
func Classify(msg openwebnet.Message, known KeySet) Decision {
	if msg == nil {
		return Unknown{Reason: "nil message"}
	}
	if msg.IsTranslation() {
		return Ignore{Reason: "translation"}
	}

	switch m := msg.(type) {
	case *openwebnet.LightingEvent:
		return classifyLighting(m, known)
	case *openwebnet.AutomationEvent:
		return classifyAutomation(m, known)
	case *openwebnet.HeatingEvent, *openwebnet.EnergyEvent,
		*openwebnet.DryContactEvent, *openwebnet.AuxEvent:
		return routed(msg.Key(), known)
	case *openwebnet.HeatingCommand:
		if m.Dimension != openwebnet.DimHeatingTargetTemp {
			return Unknown{Reason: "heating command"}
		}
		key := m.Key()
		r := Requery{Key: key, Registered: known.Has(key)}
		if !r.Registered {
			r.Fallback = openwebnet.HeatingStatus(m.Zone)
		}
		return r
	case *openwebnet.CENEvent:
		return Button{Event: EventCEN, Object: m.Object, PushButton: m.PushButton, Action: m.Action}
	case *openwebnet.CENPlusEvent:
		return Button{Event: EventCENPlus, Object: m.Object, PushButton: m.PushButton, Action: m.Action}
	case *openwebnet.GatewayEvent:
		return Unknown{Reason: "gateway management"}
	case *openwebnet.UnknownMessage:
		return Unknown{Reason: "unsupported frame"}
	default:
		return Unknown{Reason: "unsupported message type"}
	}
}

func routed(key openwebnet.Key, known KeySet) Routed {
	return Routed{Key: key, Registered: known.Has(key)}
}

func classifyLighting(m *openwebnet.LightingEvent, known KeySet) Decision {
	semantic := SemanticOff
	if m.IsOn() {
		semantic = SemanticOn
	}

	switch m.Scope.Kind {
	case openwebnet.ScopeGeneral:
		return Broadcast{Event: EventGeneralLight, Scope: m.Scope, Semantic: semantic,
			StatusRequest: openwebnet.LightingStatus("0")}
	case openwebnet.ScopeArea:
		return Broadcast{Event: EventAreaLight, Scope: m.Scope, Semantic: semantic,
			StatusRequest: openwebnet.LightingStatus(m.Scope.ID)}
	case openwebnet.ScopeGroup:
		return Broadcast{Event: EventGroupLight, Scope: m.Scope, Semantic: semantic}
	}

	if m.Preset {
		return Requery{Key: m.Key(), Registered: known.Has(m.Key())}
	}
	return routed(m.Key(), known)
}

func classifyAutomation(m *openwebnet.AutomationEvent, known KeySet) Decision {
	var event string
	switch m.Scope.Kind {
	case openwebnet.ScopeGeneral:
		event = EventGeneralAutomation
	case openwebnet.ScopeArea:
		event = EventAreaAutomation
	case openwebnet.ScopeGroup:
		event = EventGroupAutomation
	default:
		return routed(m.Key(), known)
	}
	return Broadcast{Event: event, Scope: m.Scope, Semantic: coverSemantic(m.Opening, m.Closing)}
}

// coverSemantic derives open/close/stop by simple boolean precedence.
func coverSemantic(opening, closing bool) string {
	switch {
	case opening && !closing:
		return SemanticOpen
	case closing && !opening:
		return SemanticClose
	default:
		return SemanticStop
	}
}
