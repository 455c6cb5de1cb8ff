package myhome

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMQTTEventBusPublishes(t *testing.T) {
	pub := newMockPublisher(true)
	bus := NewMQTTEventBus(pub, "00:03:50:12:34:56", 1)

	bus.Fire(EventAreaLight, map[string]any{"message": "*1*1*3##", "event": "on", "area": "3"})

	msgs := pub.getMessages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "myhome/event/myhome_area_light_event", msgs[0].topic)
	assert.Equal(t, byte(1), msgs[0].qos)
	assert.False(t, msgs[0].retained)

	var ev HostEvent
	require.NoError(t, json.Unmarshal(msgs[0].payload, &ev))
	_, err := uuid.Parse(ev.ID)
	assert.NoError(t, err)
	assert.Equal(t, EventAreaLight, ev.Name)
	assert.Equal(t, "00:03:50:12:34:56", ev.Gateway)
	assert.Equal(t, "3", ev.Data["area"])
	assert.False(t, ev.Timestamp.IsZero())
}

func TestMQTTEventBusDisconnected(t *testing.T) {
	pub := newMockPublisher(false)
	logger := &recordingLogger{}
	bus := NewMQTTEventBus(pub, "00:03:50:12:34:56", 0)
	bus.SetLogger(logger)

	bus.Fire(EventCEN, map[string]any{"object": 21})

	assert.Empty(t, pub.getMessages())
	assert.Equal(t, 1, logger.Count("warn"))
}

func TestBusesFanOut(t *testing.T) {
	a, b := &recordingBus{}, &recordingBus{}
	var calls int
	buses := Buses{a, nil, b, EventBusFunc(func(string, map[string]any) { calls++ })}

	buses.Fire(EventGeneralLight, map[string]any{"event": "off"})

	assert.Len(t, a.Events(), 1)
	assert.Len(t, b.Events(), 1)
	assert.Equal(t, 1, calls)
}
