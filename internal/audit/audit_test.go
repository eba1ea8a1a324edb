package audit

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Write(_ context.Context, e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return s.err
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func TestNewEvent(t *testing.T) {
	a := NewEvent("device", "GetDeviceInformation")
	b := NewEvent("device", "GetDeviceInformation")

	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, time.UTC, a.Time.Location())
	assert.Equal(t, "device", a.Service)
}

func TestBusDeliversToAllSinks(t *testing.T) {
	first := &recordingSink{}
	second := &recordingSink{err: errors.New("sink down")}
	bus := NewBus(8, nil, nil, first, second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = bus.Run(ctx)
		close(done)
	}()

	for i := 0; i < 3; i++ {
		require.True(t, bus.Publish(NewEvent("media", "GetProfiles")))
	}

	assert.Eventually(t, func() bool {
		return first.count() == 3 && second.count() == 3
	}, time.Second, 10*time.Millisecond)

	cancel()
	<-done
}

func TestBusDropsWhenFull(t *testing.T) {
	var drops atomic.Int32
	bus := NewBus(2, nil, func() { drops.Add(1) })

	assert.True(t, bus.Publish(Event{}))
	assert.True(t, bus.Publish(Event{}))
	assert.False(t, bus.Publish(Event{}))

	assert.Equal(t, uint64(1), bus.Dropped())
	assert.Equal(t, int32(1), drops.Load())
}

func TestBusDrainsOnShutdown(t *testing.T) {
	sink := &recordingSink{}
	bus := NewBus(4, nil, nil, sink)

	bus.Publish(Event{ID: "1"})
	bus.Publish(Event{ID: "2"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, bus.Run(ctx))

	assert.Equal(t, 2, sink.count())
}

func TestHubSubscribe(t *testing.T) {
	hub := NewHub(nil)
	sub := hub.Subscribe(1)
	assert.Equal(t, 1, hub.Subscribers())

	e := NewEvent("device", "GetServices")
	require.NoError(t, hub.Write(context.Background(), e))
	// full buffer: second event is skipped instead of blocking
	require.NoError(t, hub.Write(context.Background(), NewEvent("device", "GetServices")))

	got := <-sub
	assert.Equal(t, e.ID, got.ID)

	hub.Unsubscribe(sub)
	assert.Equal(t, 0, hub.Subscribers())
	_, ok := <-sub
	assert.False(t, ok)

	// double unsubscribe is harmless
	hub.Unsubscribe(sub)
}

func TestHubClose(t *testing.T) {
	hub := NewHub(nil)
	sub := hub.Subscribe(1)
	hub.Close()

	_, ok := <-sub
	assert.False(t, ok)

	late := hub.Subscribe(1)
	_, ok = <-late
	assert.False(t, ok)
}

func TestHubServeHTTPStreamsEvents(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, time.Second, 10*time.Millisecond)

	e := NewEvent("device", "GetDeviceInformation")
	e.Outcome = OutcomeRejected
	e.Reason = "bad_password"
	require.NoError(t, hub.Write(context.Background(), e))

	var got Event
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, e.ID, got.ID)
	assert.Equal(t, OutcomeRejected, got.Outcome)
	assert.Equal(t, "bad_password", got.Reason)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return hub.Subscribers() == 0 }, 2*time.Second, 10*time.Millisecond)
}
