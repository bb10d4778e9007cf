package core

import (
	"github.com/benbjohnson/clock"

	"pkt.systems/pslog"
)

// ServiceDeps captures dependencies for the tab service. Loader is
// required; the rest default to sane implementations.
type ServiceDeps struct {
	Loader    ContentLoader
	EventSink EventSink
	Logger    pslog.Logger
	Clock     clock.Clock
}
