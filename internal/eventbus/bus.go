package eventbus

import (
	"context"
	"sync"

	"pkt.systems/drowse/schema"
	"pkt.systems/pslog"
)

// EventType identifies the event payload.
type EventType string

const (
	// EventTab carries tab lifecycle and state updates.
	EventTab EventType = "tab"
	// EventPressure carries committed pressure-level changes.
	EventPressure EventType = "pressure"
)

// Event represents a UI-facing event emitted by the core service.
type Event struct {
	Type     EventType
	Tab      schema.TabEvent
	Pressure schema.PressureEvent
}

// Bus fans events out to subscribers. Slow subscribers drop events
// rather than stall the feed.
type Bus struct {
	mu    sync.Mutex
	subs  map[chan Event]schema.TabID
	log   pslog.Logger
	depth int
}

// New constructs a Bus.
func New(logger pslog.Logger) *Bus {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Bus{
		subs:  make(map[chan Event]schema.TabID),
		log:   logger,
		depth: 256,
	}
}

// Subscribe registers a subscriber and returns a channel + cancel. A
// non-empty tab id limits tab events to that tab; pressure events are
// always delivered.
func (b *Bus) Subscribe(tabID schema.TabID) (<-chan Event, func()) {
	if b == nil {
		return nil, func() {}
	}
	ch := make(chan Event, b.depth)
	b.mu.Lock()
	b.subs[ch] = tabID
	count := len(b.subs)
	b.mu.Unlock()
	if b.log != nil {
		b.log.Debug("eventbus subscribe", "subs", count)
	}
	return ch, func() {
		b.mu.Lock()
		_, ok := b.subs[ch]
		delete(b.subs, ch)
		b.mu.Unlock()
		if ok {
			close(ch)
		}
		if b.log != nil {
			b.log.Debug("eventbus unsubscribe")
		}
	}
}

// OnTabEvent publishes a tab event.
func (b *Bus) OnTabEvent(event schema.TabEvent) {
	b.publish(event.Tab.ID, Event{Type: EventTab, Tab: event})
}

// OnPressureEvent publishes a pressure event.
func (b *Bus) OnPressureEvent(event schema.PressureEvent) {
	b.publish("", Event{Type: EventPressure, Pressure: event})
}

func (b *Bus) publish(tabID schema.TabID, event Event) {
	if b == nil {
		return
	}
	// Sends stay under the lock so a concurrent unsubscribe cannot close
	// a channel mid-publish; they are non-blocking, so holding it is safe.
	b.mu.Lock()
	dropped := 0
	for sub, filter := range b.subs {
		if tabID != "" && filter != "" && filter != tabID {
			continue
		}
		select {
		case sub <- event:
		default:
			dropped++
		}
	}
	b.mu.Unlock()
	if dropped > 0 && b.log != nil {
		b.log.Trace("eventbus dropped", "count", dropped)
	}
}
