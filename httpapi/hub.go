package httpapi

import (
	"sync"
	"time"

	"pkt.systems/drowse/schema"
)

// StreamEvent is sent to SSE clients.
type StreamEvent struct {
	Seq        uint64                  `json:"seq"`
	Type       string                  `json:"type"`
	TabEvent   string                  `json:"tab_event,omitempty"`
	Tab        *schema.TabSnapshot     `json:"tab,omitempty"`
	OldState   schema.TabState         `json:"old_state,omitempty"`
	NewState   schema.TabState         `json:"new_state,omitempty"`
	Reason     schema.TransitionReason `json:"reason,omitempty"`
	Foreground schema.TabID            `json:"foreground,omitempty"`
	Pressure   *schema.PressureEvent   `json:"pressure,omitempty"`
	Snapshot   *SnapshotPayload        `json:"snapshot,omitempty"`
	Timestamp  time.Time               `json:"timestamp"`
}

// SnapshotPayload seeds client state on connect.
type SnapshotPayload struct {
	Tabs       []schema.TabSnapshot `json:"tabs"`
	Foreground schema.TabID         `json:"foreground"`
	Pressure   schema.PressureLevel `json:"pressure"`
	Recent     []schema.ClosedTab   `json:"recently_closed,omitempty"`
}

// Hub broadcasts change-feed events to SSE subscribers and keeps a
// bounded replay history for reconnects.
type Hub struct {
	mu          sync.Mutex
	seq         uint64
	history     []StreamEvent
	subs        map[chan StreamEvent]struct{}
	historySize int
}

// NewHub constructs a hub with the given history size.
func NewHub(historySize int) *Hub {
	if historySize <= 0 {
		historySize = 1000
	}
	return &Hub{
		subs:        make(map[chan StreamEvent]struct{}),
		historySize: historySize,
	}
}

// OnTabEvent implements core.EventSink.
func (h *Hub) OnTabEvent(event schema.TabEvent) {
	tab := event.Tab
	h.publish(StreamEvent{
		Type:       "tab",
		TabEvent:   string(event.Type),
		Tab:        &tab,
		OldState:   event.OldState,
		NewState:   event.NewState,
		Reason:     event.Reason,
		Foreground: event.Foreground,
		Timestamp:  event.Timestamp,
	})
}

// OnPressureEvent implements core.EventSink.
func (h *Hub) OnPressureEvent(event schema.PressureEvent) {
	pressure := event
	h.publish(StreamEvent{
		Type:      "pressure",
		Pressure:  &pressure,
		Timestamp: event.Timestamp,
	})
}

// Subscribe registers a subscriber and returns its channel, a cancel
// func and the current sequence number.
func (h *Hub) Subscribe() (<-chan StreamEvent, func(), uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch := make(chan StreamEvent, 256)
	h.subs[ch] = struct{}{}
	seq := h.seq
	unsub := func() {
		h.mu.Lock()
		_, ok := h.subs[ch]
		delete(h.subs, ch)
		h.mu.Unlock()
		if ok {
			close(ch)
		}
	}
	return ch, unsub, seq
}

// Replay returns events after the provided seq.
func (h *Hub) Replay(after uint64) []StreamEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	events := make([]StreamEvent, 0, len(h.history))
	for _, event := range h.history {
		if event.Seq > after {
			events = append(events, event)
		}
	}
	return events
}

func (h *Hub) publish(event StreamEvent) {
	h.mu.Lock()
	h.seq++
	event.Seq = h.seq
	h.history = append(h.history, event)
	if len(h.history) > h.historySize {
		h.history = h.history[len(h.history)-h.historySize:]
	}
	// Deliver under the lock so a concurrent unsubscribe cannot close a
	// channel mid-publish; sends are non-blocking.
	for sub := range h.subs {
		select {
		case sub <- event:
		default:
		}
	}
	h.mu.Unlock()
}
