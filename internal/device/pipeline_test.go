package device

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/myhome-bridge/internal/bridges/myhome"
	"github.com/nerrad567/myhome-bridge/internal/openwebnet"
)

// pipeSession is an in-memory gateway session.
type pipeSession struct {
	inbound chan openwebnet.Message

	mu   sync.Mutex
	sent []openwebnet.Frame
}

func (s *pipeSession) Next(ctx context.Context) (openwebnet.Message, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case msg := <-s.inbound:
		return msg, nil
	}
}

func (s *pipeSession) Send(_ context.Context, frame openwebnet.Frame, _ bool) error {
	s.mu.Lock()
	s.sent = append(s.sent, frame)
	s.mu.Unlock()
	return nil
}

func (s *pipeSession) Close() error { return nil }

func (s *pipeSession) Sent() []openwebnet.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]openwebnet.Frame(nil), s.sent...)
}

// pipeDialer hands out one shared event session and one shared command
// session.
type pipeDialer struct {
	events   *pipeSession
	commands *pipeSession
}

func (d *pipeDialer) Dial(ctx context.Context, kind openwebnet.SessionKind) (openwebnet.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if kind == openwebnet.EventSession {
		return d.events, nil
	}
	return d.commands, nil
}

func startPipeline(t *testing.T) (*myhome.Gateway, *Manager, *pipeDialer) {
	t.Helper()
	dialer := &pipeDialer{
		events:   &pipeSession{inbound: make(chan openwebnet.Message, 16)},
		commands: &pipeSession{},
	}
	gw, err := myhome.New(myhome.Config{
		Identity: myhome.Identity{Host: "192.168.1.35", Port: 20000, MAC: testMAC},
		Registry: myhome.NewRegistry(),
		Dialer:   dialer,
		Reconnect: myhome.Backoff{
			InitialDelay: 10 * time.Millisecond,
			MaxDelay:     20 * time.Millisecond,
			Jitter:       -1,
		},
	})
	require.NoError(t, err)

	mgr := NewManager(gw.MAC(), gw, gw.Registry(), Sinks{})
	loadSample(t, mgr)

	require.NoError(t, gw.StartListening(context.Background()))
	t.Cleanup(func() {
		gw.CloseListener()
		gw.Wait()
	})
	require.Eventually(t, func() bool { return gw.ListenerState() == myhome.StateListening },
		time.Second, time.Millisecond)
	return gw, mgr, dialer
}

// A brightness frame from the bus reaches the registered dimmer.
func TestPipelineBrightnessReachesLight(t *testing.T) {
	_, mgr, dialer := startPipeline(t)
	light := mustGet(t, mgr, "1-0101")

	dialer.events.inbound <- mustParse(t, "*#1*0101*1*170*0##")

	require.Eventually(t, func() bool { return light.State()["on"] == true }, time.Second, time.Millisecond)
	assert.Equal(t, 70, light.State()["brightness"])
}

// A host command travels through the queue to the command session.
func TestPipelineCommandIsSent(t *testing.T) {
	gw, mgr, dialer := startPipeline(t)

	require.NoError(t, mgr.HandleCommand("2-41", Command{Action: ActionClose}))

	require.Eventually(t, func() bool { return len(dialer.commands.Sent()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, []openwebnet.Frame{"*2*2*41##"}, dialer.commands.Sent())
	require.Eventually(t, func() bool { return gw.Stats().FramesSent == 1 }, time.Second, time.Millisecond)
}

// A dimmer preset is not reported by the bus, so the dimmer is polled.
func TestPipelinePresetRequeriesDimmer(t *testing.T) {
	_, _, dialer := startPipeline(t)

	dialer.events.inbound <- mustParse(t, "*1*5*0101##")

	require.Eventually(t, func() bool { return len(dialer.commands.Sent()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, []openwebnet.Frame{"*#1*0101*1##"}, dialer.commands.Sent())
}
