package myhome

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallServiceSyncTime(t *testing.T) {
	g, _ := newTestGateway(t, newFakeDialer())
	// Thursday 2026-03-12 14:05:09 UTC
	g.now = func() time.Time { return time.Date(2026, 3, 12, 14, 5, 9, 0, time.UTC) }

	require.NoError(t, g.CallService(ServiceSyncTime, []byte(`{"timezone":"UTC"}`)))
	require.NoError(t, g.CallService(ServiceSyncTime, []byte(`{"timezone":"Europe/Rome"}`)))

	tasks := g.Queue().Snapshot()
	require.Len(t, tasks, 2)
	assert.Equal(t, "*#13**#22*14*05*09*000*04*12*03*2026##", tasks[0].Message.String())
	assert.Equal(t, "*#13**#22*15*05*09*001*04*12*03*2026##", tasks[1].Message.String())
	assert.False(t, tasks[0].StatusRequest)
}

func TestCallServiceSyncTimeDefaultZone(t *testing.T) {
	g, _ := newTestGateway(t, newFakeDialer())

	require.NoError(t, g.CallService(ServiceSyncTime, nil))
	assert.Equal(t, 1, g.QueueDepth())
}

func TestCallServiceSendMessage(t *testing.T) {
	g, _ := newTestGateway(t, newFakeDialer())

	require.NoError(t, g.CallService(ServiceSendMessage, []byte(`{"message":"*1*1*0101##"}`)))
	assert.Equal(t, []Task{{Message: "*1*1*0101##"}}, g.Queue().Snapshot())
}

func TestCallServiceErrors(t *testing.T) {
	g, _ := newTestGateway(t, newFakeDialer())

	tests := []struct {
		name    string
		service string
		data    string
		want    error
	}{
		{"invalid frame", ServiceSendMessage, `{"message":"hello"}`, ErrInvalidServiceData},
		{"missing frame", ServiceSendMessage, `{}`, ErrInvalidServiceData},
		{"bad json", ServiceSendMessage, `{"message":`, ErrInvalidServiceData},
		{"bad timezone", ServiceSyncTime, `{"timezone":"Mars/Olympus"}`, ErrInvalidServiceData},
		{"unknown service", "reboot", ``, ErrUnknownService},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, g.CallService(tt.service, []byte(tt.data)), tt.want)
		})
	}
	assert.Zero(t, g.QueueDepth(), "rejected calls enqueue nothing")
}

func TestServiceHandler(t *testing.T) {
	g, _ := newTestGateway(t, newFakeDialer())
	handler := g.ServiceHandler()

	require.NoError(t, handler("myhome/service/00:03:50:12:34:56/send_message", []byte(`{"message":"*#1*0##"}`)))
	assert.ErrorIs(t, handler("myhome/service/00:03:50:12:34:56/nope", nil), ErrUnknownService)
	assert.Equal(t, 1, g.QueueDepth())
}
