package core

import "pkt.systems/drowse/schema"

// EventSink receives change-feed events from the tab service. Sinks must
// not call back into the service and should return quickly; slow
// consumers belong behind a buffering fanout.
type EventSink interface {
	OnTabEvent(event schema.TabEvent)
	OnPressureEvent(event schema.PressureEvent)
}
