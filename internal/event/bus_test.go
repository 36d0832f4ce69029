package event

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"pathwatch/internal/metrics"
)

func TestBusSubscribePublish(t *testing.T) {
	bus := NewBus[int](BusOptions{Registry: &metrics.Registry{}})
	t.Cleanup(bus.Close)

	ch, cancel := bus.Subscribe()
	defer cancel()

	bus.Publish(42)

	select {
	case got := <-ch:
		if got != 42 {
			t.Fatalf("expected 42, got %d", got)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timed out waiting for event")
	}

	cancel()
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected channel to close after cancel")
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timed out waiting for channel close")
	}
}

func TestBusFilteredSubscription(t *testing.T) {
	bus := NewBus[int](BusOptions{Registry: &metrics.Registry{}})
	t.Cleanup(bus.Close)

	ch, cancel := bus.SubscribeFiltered(func(value int) bool {
		return value%2 == 0
	})
	defer cancel()

	bus.Publish(1)
	bus.Publish(2)

	select {
	case got := <-ch:
		if got != 2 {
			t.Fatalf("expected filtered value 2, got %d", got)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timed out waiting for filtered event")
	}
}

func TestBusCloseClosesSubscribers(t *testing.T) {
	bus := NewBus[int](BusOptions{Registry: &metrics.Registry{}})
	ch, _ := bus.Subscribe()

	bus.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected channel to close after bus close")
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timed out waiting for channel close")
	}
}

func TestBusDropOnFull(t *testing.T) {
	registry := &metrics.Registry{}
	bus := NewBus[string](BusOptions{
		Name:                 "drop",
		SubscriberBufferSize: 1,
		Registry:             registry,
	})
	t.Cleanup(bus.Close)

	ch, _ := bus.Subscribe()

	bus.Publish("first")

	done := make(chan struct{})
	go func() {
		bus.Publish("second")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("publish blocked with a full subscriber")
	}

	select {
	case got := <-ch:
		if got != "first" {
			t.Fatalf("expected first event, got %q", got)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timed out waiting for first event")
	}

	var output bytes.Buffer
	if err := registry.WritePrometheus(&output); err != nil {
		t.Fatalf("write prometheus: %v", err)
	}
	if !strings.Contains(output.String(), `pathwatch_bus_dropped_total{bus="drop"} 1`) {
		t.Fatalf("expected drop counter, got:\n%s", output.String())
	}
}
