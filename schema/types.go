package schema

import "time"

// TabID identifies a tab for its entire lifetime.
type TabID string

// TabState is the resource state of a tab.
type TabState string

const (
	// TabStateActive means the tab owns a live content handle.
	TabStateActive TabState = "active"
	// TabStateHibernating means the tab's content handle is being released.
	TabStateHibernating TabState = "hibernating"
	// TabStateHibernated means the tab holds metadata only.
	TabStateHibernated TabState = "hibernated"
	// TabStateWaking means a new content handle is being acquired.
	TabStateWaking TabState = "waking"
	// TabStateClosed is the terminal state.
	TabStateClosed TabState = "closed"
)

// Transitional reports whether the state is a transitional state.
func (s TabState) Transitional() bool {
	return s == TabStateHibernating || s == TabStateWaking
}

// PressureLevel is the discrete system memory-scarcity signal.
type PressureLevel int

const (
	// PressureNormal means memory is plentiful.
	PressureNormal PressureLevel = iota
	// PressureWarning means memory is getting scarce.
	PressureWarning
	// PressureCritical means memory is critically scarce.
	PressureCritical
)

// String returns the lowercase level name.
func (l PressureLevel) String() string {
	switch l {
	case PressureNormal:
		return "normal"
	case PressureWarning:
		return "warning"
	case PressureCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Levels lists all pressure levels in ascending severity.
func Levels() []PressureLevel {
	return []PressureLevel{PressureNormal, PressureWarning, PressureCritical}
}

// RestoreSnapshot is the minimal state needed to reconstruct a tab's
// content after hibernation. Captured before release begins and kept for
// the rest of the tab's lifetime.
type RestoreSnapshot struct {
	URL        string    `json:"url"`
	Title      string    `json:"title,omitempty"`
	ScrollX    float64   `json:"scroll_x,omitempty"`
	ScrollY    float64   `json:"scroll_y,omitempty"`
	FormToken  string    `json:"form_token,omitempty"`
	CapturedAt time.Time `json:"captured_at,omitempty"`
}

// TabSnapshot is a read-only view of a tab. It never carries a live
// content handle.
type TabSnapshot struct {
	ID           TabID     `json:"id"`
	URL          string    `json:"url"`
	Title        string    `json:"title,omitempty"`
	FaviconRef   string    `json:"favicon_ref,omitempty"`
	LastAccessed time.Time `json:"last_accessed"`
	Pinned       bool      `json:"pinned,omitempty"`
	State        TabState  `json:"state"`
	Foreground   bool      `json:"foreground,omitempty"`
	HasSnapshot  bool      `json:"has_snapshot,omitempty"`
}

// ClosedTab is a reopenable entry in the recently-closed list.
type ClosedTab struct {
	ID       TabID           `json:"id"`
	URL      string          `json:"url"`
	Title    string          `json:"title,omitempty"`
	Pinned   bool            `json:"pinned,omitempty"`
	ClosedAt time.Time       `json:"closed_at"`
	Restore  RestoreSnapshot `json:"restore"`
}
