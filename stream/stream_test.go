package stream

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/mklimuk/magnetic/tli493d"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, topic string, payload []byte) error {
	args := m.Called(ctx, topic, payload)
	return args.Error(0)
}

func (m *MockPublisher) Close() {
	m.Called()
}

func newSource(t *testing.T) (*tli493d.Dev, *tli493d.Simulator) {
	t.Helper()
	sim := tli493d.NewSimulator(tli493d.ProductA0)
	dev := tli493d.New(sim, tli493d.WithPowerCycleDelay(0))
	require.NoError(t, dev.Begin(context.Background(), false))
	return dev, sim
}

func TestOnce(t *testing.T) {
	dev, sim := newSource(t)
	sim.SetMeasurement(770, -385, 0, 1180)

	pub := &MockPublisher{}
	var published []byte
	pub.On("Publish", mock.Anything, "magnetic/test", mock.Anything).
		Run(func(args mock.Arguments) { published = args.Get(2).([]byte) }).
		Return(nil).Once()

	s := NewStreamer(dev, pub, "magnetic/test", time.Second)
	s.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	require.NoError(t, s.Once(context.Background()))
	pub.AssertExpectations(t)

	var p Payload
	require.NoError(t, json.Unmarshal(published, &p))
	assert.InDelta(t, 100, p.X, 0.01)
	assert.InDelta(t, -50, p.Y, 0.01)
	assert.InDelta(t, 25, p.Temperature, 0.01)
	assert.Equal(t, [4]int16{770, -385, 0, 1180}, p.Raw)
	assert.Equal(t, "full", p.Range)
	assert.Equal(t, "2026-01-02T03:04:05Z", p.Time)
}

func TestOnceReadFailure(t *testing.T) {
	dev, sim := newSource(t)
	pub := &MockPublisher{}
	sim.FailNext(errors.New("no acknowledge"))
	s := NewStreamer(dev, pub, "magnetic/test", time.Second)
	err := s.Once(context.Background())
	assert.ErrorIs(t, err, tli493d.ErrBus)
	pub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}

func TestRunStopsOnCancel(t *testing.T) {
	dev, sim := newSource(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pub := &MockPublisher{}
	calls := 0
	pub.On("Publish", mock.Anything, "magnetic/test", mock.Anything).
		Run(func(args mock.Arguments) {
			calls++
			if calls == 3 {
				cancel()
			}
		}).
		Return(nil)

	// one failed read is skipped, streaming goes on
	sim.FailNext(errors.New("no acknowledge"))
	s := NewStreamer(dev, pub, "magnetic/test", time.Millisecond)
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("streamer did not stop")
	}
	assert.Equal(t, 3, calls)
}
