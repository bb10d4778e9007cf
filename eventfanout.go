package drowse

import (
	"pkt.systems/drowse/core"
	"pkt.systems/drowse/schema"
)

type eventFanout struct {
	sinks []core.EventSink
}

func (f eventFanout) OnTabEvent(event schema.TabEvent) {
	for _, sink := range f.sinks {
		if sink == nil {
			continue
		}
		sink.OnTabEvent(event)
	}
}

func (f eventFanout) OnPressureEvent(event schema.PressureEvent) {
	for _, sink := range f.sinks {
		if sink == nil {
			continue
		}
		sink.OnPressureEvent(event)
	}
}
