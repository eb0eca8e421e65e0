package host

import (
	"context"
	"testing"
	"time"

	"github.com/itohio/capdaq/pkg/daq"
	"github.com/itohio/capdaq/pkg/fdc1004"
	"github.com/itohio/capdaq/pkg/link"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPeriod = 5 * time.Millisecond

var testTiming = Timing{
	EchoTimeout:   500 * time.Millisecond,
	ReplyTimeout:  500 * time.Millisecond,
	RecordTimeout: 500 * time.Millisecond,
}

type testDevice struct {
	cfg    *daq.Config
	bus    *fdc1004.MockBus
	client *Client
}

// startDevice runs the acquisition core on one end of an in-memory pipe and
// returns a client on the other end.
func startDevice(t *testing.T, addr uint16) *testDevice {
	t.Helper()

	devSide, hostSide := link.Pipe()

	bus := fdc1004.NewMockBus(&fdc1004.MockConfig{CapacitancePF: 10})
	sensor := fdc1004.New(bus, addr)
	cfg := &daq.Config{SampleCount: 5, Channel: 1, Input: 1, Rate: 400}

	flag := &daq.Flag{}
	trig, err := daq.NewTickerTrigger(testPeriod, flag)
	require.NoError(t, err)

	acq := daq.NewAcquirer(cfg, flag, trig, sensor, daq.NewMonotonicClock(), devSide)
	disp := daq.NewDispatcher(devSide, cfg, sensor, acq,
		daq.WithTiming(daq.Timing{RetryInterval: time.Millisecond, Retries: 50}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = disp.Serve(ctx)
	}()

	client := NewWithStream(hostSide)
	client.SetTiming(testTiming)

	t.Cleanup(func() {
		cancel()
		<-done
		client.Close()
		devSide.Close()
	})

	return &testDevice{cfg: cfg, bus: bus, client: client}
}

func TestClient_Session(t *testing.T) {
	dev := startDevice(t, 0)
	ctx := context.Background()

	require.NoError(t, dev.client.SetOffset(ctx, 3))
	assert.Equal(t, 3, dev.cfg.Offset)
	assert.Equal(t, uint16(3), (dev.bus.Register(0x08)>>5)&0x1F, "CAPDAC must reach the sensor")

	require.NoError(t, dev.client.SetSampleCount(ctx, 10))
	assert.Equal(t, 10, dev.cfg.SampleCount)

	records, err := dev.client.Acquire(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 10)

	// 10 pF seen through 3 CAPDAC steps of 3.125 pF
	for _, r := range records {
		assert.InDelta(t, (10-3*3.125)*524288, float64(r.Value), 1)
	}

	s := Summarize(records, testPeriod)
	assert.Equal(t, 10, s.Count)
	assert.GreaterOrEqual(t, s.MinDelta, time.Duration(0))
	assert.GreaterOrEqual(t, s.MeanDelta, testPeriod/2)
	assert.LessOrEqual(t, s.MeanDelta, testPeriod*3)
}

func TestClient_TwoSessions(t *testing.T) {
	dev := startDevice(t, 0)
	ctx := context.Background()

	require.NoError(t, dev.client.SetSampleCount(ctx, 4))

	for range 2 {
		records, err := dev.client.Acquire(ctx, 4)
		require.NoError(t, err)
		assert.Len(t, records, 4)
		for i := 1; i < len(records); i++ {
			assert.GreaterOrEqual(t, records[i].Timestamp, records[i-1].Timestamp)
		}
	}
}

func TestClient_SetOffsetClamps(t *testing.T) {
	dev := startDevice(t, 0)
	ctx := context.Background()

	require.NoError(t, dev.client.SetOffset(ctx, 40))
	assert.Equal(t, MaxOffset, dev.cfg.Offset)

	require.NoError(t, dev.client.SetOffset(ctx, -5))
	assert.Equal(t, 0, dev.cfg.Offset)
}

func TestClient_Rejected(t *testing.T) {
	// Sensor at the wrong address: Configure fails, the device answers 'F'
	dev := startDevice(t, 0x51)

	err := dev.client.SetOffset(context.Background(), 4)
	assert.ErrorIs(t, err, ErrRejected)
	assert.Equal(t, 0, dev.cfg.Offset)
}

func TestClient_ShortStream(t *testing.T) {
	dev := startDevice(t, 0)
	ctx := context.Background()

	require.NoError(t, dev.client.SetSampleCount(ctx, 3))

	dev.client.SetTiming(Timing{RecordTimeout: 50 * time.Millisecond})
	records, err := dev.client.Acquire(ctx, 5)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Len(t, records, 3)
}

func TestClient_NoDevice(t *testing.T) {
	a, b := link.Pipe()
	defer a.Close()
	defer b.Close()

	client := NewWithStream(b)
	client.SetTiming(Timing{EchoTimeout: 20 * time.Millisecond})

	err := client.SetSampleCount(context.Background(), 10)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestClient_WrongEcho(t *testing.T) {
	a, b := link.Pipe()
	defer a.Close()
	defer b.Close()

	go func() {
		if _, err := a.ReadByteTimeout(time.Second); err == nil {
			_ = a.WriteByte('X')
		}
	}()

	client := NewWithStream(b)
	client.SetTiming(testTiming)

	err := client.SetSampleCount(context.Background(), 10)
	assert.ErrorIs(t, err, ErrUnexpectedReply)
}

func TestClient_NotConnected(t *testing.T) {
	client := New("/dev/null-port", 0)
	assert.False(t, client.IsConnected())

	err := client.SetOffset(context.Background(), 1)
	assert.ErrorIs(t, err, ErrNotConnected)

	assert.NoError(t, client.Close())
}

func TestClient_InvalidSampleCount(t *testing.T) {
	a, b := link.Pipe()
	defer a.Close()
	defer b.Close()

	assert.Error(t, NewWithStream(b).SetSampleCount(context.Background(), -1))
}

func TestClient_Close(t *testing.T) {
	a, b := link.Pipe()
	defer a.Close()

	client := NewWithStream(b)
	assert.True(t, client.IsConnected())
	require.NoError(t, client.Close())
	assert.False(t, client.IsConnected())

	select {
	case <-b.Done():
	case <-time.After(time.Second):
		t.Fatal("stream reader did not stop")
	}
}
