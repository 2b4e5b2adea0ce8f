package event

import (
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestPublishSubscribe(t *testing.T) {
	bus := NewBus(testLogger(), 16)
	go bus.Start()
	defer bus.Stop()

	var mu sync.Mutex
	var received []Event
	done := make(chan struct{})

	bus.Subscribe(TrackRepaired, func(e Event) {
		mu.Lock()
		received = append(received, e)
		mu.Unlock()
		close(done)
	})

	bus.Publish(Event{Type: TrackRepaired, Data: map[string]any{"track_id": "t1"}})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event delivery")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 {
		t.Fatalf("expected 1 event, got %d", len(received))
	}
	if received[0].Data["track_id"] != "t1" {
		t.Errorf("unexpected event data: %v", received[0].Data)
	}
	if received[0].Timestamp.IsZero() {
		t.Error("expected timestamp to be set")
	}
}

func TestUnsubscribedTypeIgnored(t *testing.T) {
	bus := NewBus(testLogger(), 16)
	go bus.Start()
	defer bus.Stop()

	delivered := make(chan Event, 1)
	bus.Subscribe(IndexRebuilt, func(e Event) { delivered <- e })

	bus.Publish(Event{Type: RepairCompleted})
	bus.Publish(Event{Type: IndexRebuilt, Data: map[string]any{"bucket": "music"}})

	select {
	case e := <-delivered:
		if e.Type != IndexRebuilt {
			t.Errorf("expected IndexRebuilt, got %s", e.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestHandlerPanicDoesNotStopBus(t *testing.T) {
	bus := NewBus(testLogger(), 16)
	go bus.Start()
	defer bus.Stop()

	done := make(chan struct{})
	bus.Subscribe(StreamCorrected, func(Event) { panic("boom") })
	bus.Subscribe(StreamCorrected, func(Event) { close(done) })

	bus.Publish(Event{Type: StreamCorrected})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("second handler never ran after panic in first")
	}
}

func TestFullBufferDropsWithoutBlocking(t *testing.T) {
	bus := NewBus(testLogger(), 1)
	// Not started: the buffer fills after one event.

	doneCh := make(chan struct{})
	go func() {
		bus.Publish(Event{Type: IndexRebuilt})
		bus.Publish(Event{Type: IndexRebuilt})
		close(doneCh)
	}()

	select {
	case <-doneCh:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on full buffer")
	}
}
