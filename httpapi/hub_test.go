package httpapi

import (
	"testing"
	"time"

	"pkt.systems/drowse/schema"
)

func tabEvent(id schema.TabID, newState schema.TabState) schema.TabEvent {
	return schema.TabEvent{
		Type:      schema.TabEventState,
		Tab:       schema.TabSnapshot{ID: id, URL: "https://example.com", State: newState},
		NewState:  newState,
		Timestamp: time.Now(),
	}
}

func TestHubAssignsSequence(t *testing.T) {
	hub := NewHub(10)
	hub.OnTabEvent(tabEvent("t1", schema.TabStateActive))
	hub.OnTabEvent(tabEvent("t1", schema.TabStateHibernating))
	events := hub.Replay(0)
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Seq != 1 || events[1].Seq != 2 {
		t.Fatalf("expected seq 1,2 got %d,%d", events[0].Seq, events[1].Seq)
	}
}

func TestHubReplayAfter(t *testing.T) {
	hub := NewHub(10)
	for i := 0; i < 5; i++ {
		hub.OnTabEvent(tabEvent("t1", schema.TabStateActive))
	}
	events := hub.Replay(3)
	if len(events) != 2 {
		t.Fatalf("expected 2 events after seq 3, got %d", len(events))
	}
	if events[0].Seq != 4 {
		t.Fatalf("expected first replayed seq 4, got %d", events[0].Seq)
	}
}

func TestHubHistoryIsBounded(t *testing.T) {
	hub := NewHub(3)
	for i := 0; i < 10; i++ {
		hub.OnTabEvent(tabEvent("t1", schema.TabStateActive))
	}
	events := hub.Replay(0)
	if len(events) != 3 {
		t.Fatalf("expected history capped at 3, got %d", len(events))
	}
	if events[0].Seq != 8 {
		t.Fatalf("expected oldest retained seq 8, got %d", events[0].Seq)
	}
}

func TestHubSubscribeDelivers(t *testing.T) {
	hub := NewHub(10)
	ch, unsubscribe, seq := hub.Subscribe()
	defer unsubscribe()
	if seq != 0 {
		t.Fatalf("expected seq 0 on fresh hub, got %d", seq)
	}
	hub.OnPressureEvent(schema.PressureEvent{Old: schema.PressureNormal, New: schema.PressureWarning, Timestamp: time.Now()})
	select {
	case event := <-ch:
		if event.Type != "pressure" || event.Pressure == nil {
			t.Fatalf("unexpected event: %+v", event)
		}
		if event.Pressure.New != schema.PressureWarning {
			t.Fatalf("expected warning pressure, got %v", event.Pressure.New)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for event")
	}
}

func TestHubPublishDuringUnsubscribeDoesNotPanic(t *testing.T) {
	hub := NewHub(10)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			hub.OnTabEvent(tabEvent("t1", schema.TabStateActive))
		}
	}()
	// Racing unsubscribes must never close a channel a publish is about
	// to send on.
	for i := 0; i < 1000; i++ {
		_, unsubscribe, _ := hub.Subscribe()
		unsubscribe()
	}
	<-done
}

func TestHubUnsubscribeIsIdempotent(t *testing.T) {
	hub := NewHub(10)
	_, unsubscribe, _ := hub.Subscribe()
	unsubscribe()
	unsubscribe()
	hub.OnTabEvent(tabEvent("t1", schema.TabStateActive))
}
