package device

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/myhome-bridge/internal/bridges/myhome"
	"github.com/nerrad567/myhome-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/myhome-bridge/internal/openwebnet"
)

type managerFixture struct {
	mgr      *Manager
	registry *myhome.Registry
	sender   *recordingSender
	pub      *mockPublisher
	metrics  *mockMetrics
	recorder *mockRecorder
}

func newManagerFixture(t *testing.T) *managerFixture {
	t.Helper()
	f := &managerFixture{
		registry: myhome.NewRegistry(),
		sender:   &recordingSender{},
		pub:      &mockPublisher{},
		metrics:  &mockMetrics{},
		recorder: &mockRecorder{},
	}
	f.mgr = NewManager(testMAC, f.sender, f.registry, Sinks{
		Publisher: f.pub,
		Metrics:   f.metrics,
		Recorder:  f.recorder,
	})
	return f
}

func loadSample(t *testing.T, mgr *Manager) {
	t.Helper()
	file, err := Parse([]byte(sampleFile))
	require.NoError(t, err)
	require.NoError(t, mgr.Load(file.Devices(testMAC)))
}

func TestManagerLoad(t *testing.T) {
	f := newManagerFixture(t)
	loadSample(t, f.mgr)

	assert.Equal(t, 14, f.mgr.Count())
	assert.Equal(t, 14, f.registry.Len())
	for _, e := range f.mgr.Entities() {
		h, ok := f.registry.Get(e.Key())
		require.True(t, ok, e.Key())
		assert.Same(t, e, h)
	}

	light, ok := f.mgr.Get("1-0101")
	require.True(t, ok)
	assert.IsType(t, &Light{}, light)

	assert.IsType(t, &Switch{}, mustGet(t, f.mgr, "1-0203"))
	assert.IsType(t, &Cover{}, mustGet(t, f.mgr, "2-41"))
	assert.IsType(t, &BinarySensor{}, mustGet(t, f.mgr, "25-9999"))
	assert.IsType(t, &Sensor{}, mustGet(t, f.mgr, "18-51"))
	assert.IsType(t, &Climate{}, mustGet(t, f.mgr, "4-3"))
	assert.IsType(t, &Button{}, mustGet(t, f.mgr, "14-41"))
}

func mustGet(t *testing.T, mgr *Manager, key openwebnet.Key) Entity {
	t.Helper()
	e, ok := mgr.Get(key)
	require.True(t, ok, key)
	return e
}

func TestManagerLoadKeepsGoodDevices(t *testing.T) {
	f := newManagerFixture(t)

	err := f.mgr.Load([]Config{
		{Platform: PlatformLight, ID: "a", Name: "A", Where: "11"},
		{Platform: PlatformLight, ID: "bad", Name: "Bad", Where: "9999"},
		{Platform: PlatformSwitch, ID: "dup", Name: "Dup", Where: "11"},
		{Platform: PlatformCover, ID: "c", Name: "C", Where: "41"},
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidAddress)
	assert.ErrorIs(t, err, ErrDeviceExists)
	assert.Equal(t, []openwebnet.Key{"1-11", "2-41"}, f.registry.Keys())
}

func TestManagerRejectsKeyOwnedByAnotherHandler(t *testing.T) {
	f := newManagerFixture(t)
	other := newLight(mustConfig(t, Config{Platform: PlatformLight, Name: "X", Where: "11"}), f.sender, newOutput(testMAC, Sinks{}))
	require.NoError(t, f.registry.Add(other))

	_, err := f.mgr.Add(Config{Platform: PlatformLight, Name: "A", Where: "11"})
	assert.ErrorIs(t, err, ErrDeviceExists)
	assert.ErrorIs(t, err, myhome.ErrDuplicateHandler)
	assert.Zero(t, f.mgr.Count())
}

func TestManagerRemove(t *testing.T) {
	f := newManagerFixture(t)
	loadSample(t, f.mgr)

	assert.True(t, f.mgr.Remove("1-0101"))
	assert.False(t, f.mgr.Remove("1-0101"))
	assert.False(t, f.registry.Has("1-0101"))
	assert.Equal(t, 13, f.mgr.Count())
}

func TestManagerListAndInfo(t *testing.T) {
	f := newManagerFixture(t)
	loadSample(t, f.mgr)

	lights := f.mgr.List(PlatformLight)
	require.Len(t, lights, 3)
	assert.Equal(t, openwebnet.Key("1-#5"), lights[0].Config.Key)
	assert.Len(t, f.mgr.List(""), 14)
	assert.Len(t, f.mgr.List(PlatformButton), 4)

	info, err := f.mgr.Info("1-0101")
	require.NoError(t, err)
	assert.Nil(t, info.UpdatedAt)
	assert.Empty(t, info.State)

	mustGet(t, f.mgr, "1-0101").HandleEvent(mustParse(t, "*1*1*0101##"))
	info, err = f.mgr.Info("1-0101")
	require.NoError(t, err)
	assert.NotNil(t, info.UpdatedAt)
	assert.Equal(t, true, info.State["on"])

	_, err = f.mgr.Info("1-9999")
	assert.ErrorIs(t, err, ErrDeviceNotFound)
}

func TestManagerStateReachesSinks(t *testing.T) {
	f := newManagerFixture(t)
	var mu sync.Mutex
	var live []StateMessage
	f.mgr = NewManager(testMAC, f.sender, f.registry, Sinks{
		Publisher: f.pub,
		Metrics:   f.metrics,
		Recorder:  f.recorder,
		OnState: func(m StateMessage) {
			mu.Lock()
			live = append(live, m)
			mu.Unlock()
		},
	})
	loadSample(t, f.mgr)

	mustGet(t, f.mgr, "1-#5").HandleEvent(mustParse(t, "*1*1*#5##"))

	require.Len(t, f.pub.Messages(), 1)
	assert.Equal(t, "myhome/state/"+testMAC+"/1-_5", f.pub.Messages()[0].topic)
	assert.Equal(t, []recordedState{{key: "1-#5", platform: "light", message: "*1*1*#5##"}}, f.recorder.Records())
	require.Len(t, f.metrics.states, 1)
	assert.Equal(t, true, f.metrics.states[0]["on"])

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, live, 1)
	assert.Equal(t, testMAC, live[0].Gateway)
}

func TestManagerPublishFailureIsLogged(t *testing.T) {
	f := newManagerFixture(t)
	f.pub.err = errors.New("not connected")
	log := &recordingLogger{}
	f.mgr.SetLogger(log)
	loadSample(t, f.mgr)

	mustGet(t, f.mgr, "1-0101").HandleEvent(mustParse(t, "*1*1*0101##"))

	assert.True(t, log.Has("warn", "publishing device state failed"))
	assert.Len(t, f.recorder.Records(), 1, "other sinks still run")
}

func TestManagerRefreshAll(t *testing.T) {
	f := newManagerFixture(t)
	loadSample(t, f.mgr)

	f.mgr.RefreshAll()
	assert.ElementsMatch(t, []openwebnet.Frame{
		"*#1*#5##",
		"*#1*0101*1##",
		"*#1*0203##",
		"*#1*12#4#01##",
		"*#18*51*113##",
		"*#18*51*51##",
		"*#2*41##",
		"*#25*9999##",
		"*#4*0##",
		"*#4*#3##",
		"*#4*500*0##",
	}, f.sender.Requests())
}

func TestManagerHandleCommand(t *testing.T) {
	f := newManagerFixture(t)
	loadSample(t, f.mgr)

	require.NoError(t, f.mgr.HandleCommand("2-41", Command{Action: ActionOpen}))
	require.NoError(t, f.mgr.HandleCommand("14-41", Command{Action: ActionLock}))
	assert.Equal(t, []openwebnet.Frame{"*2*1*41##", "*14*0*41##"}, f.sender.Sent())

	assert.ErrorIs(t, f.mgr.HandleCommand("2-99", Command{Action: ActionOpen}), ErrDeviceNotFound)
	assert.ErrorIs(t, f.mgr.HandleCommand("25-9999", Command{Action: ActionOpen}), ErrInvalidCommand)
}

func TestManagerCommandHandler(t *testing.T) {
	f := newManagerFixture(t)
	loadSample(t, f.mgr)
	handler := f.mgr.CommandHandler()
	topics := mqtt.Topics{}

	require.NoError(t, handler(topics.Command(testMAC, "1-#5"), []byte(`{"action":"turn_off"}`)))
	require.NoError(t, handler(topics.Command(testMAC, "1-0101"), []byte(`{"action":"set_brightness","brightness":30}`)))
	assert.Equal(t, []openwebnet.Frame{"*1*0*#5##", "*#1*0101*#1*130*0##"}, f.sender.Sent())

	assert.ErrorIs(t, handler(topics.Command(testMAC, "1-0101"), []byte(`{`)), ErrInvalidCommand)
	assert.ErrorIs(t, handler(topics.Command(testMAC, "1-77"), []byte(`{"action":"turn_on"}`)), ErrDeviceNotFound)
}

// recordingLogger captures log calls by level.
type recordingLogger struct {
	mu      sync.Mutex
	entries [][2]string
}

func (l *recordingLogger) add(level, msg string) {
	l.mu.Lock()
	l.entries = append(l.entries, [2]string{level, msg})
	l.mu.Unlock()
}

func (l *recordingLogger) Debug(msg string, _ ...any) { l.add("debug", msg) }
func (l *recordingLogger) Info(msg string, _ ...any)  { l.add("info", msg) }
func (l *recordingLogger) Warn(msg string, _ ...any)  { l.add("warn", msg) }
func (l *recordingLogger) Error(msg string, _ ...any) { l.add("error", msg) }

func (l *recordingLogger) Has(level, msg string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e == [2]string{level, msg} {
			return true
		}
	}
	return false
}
