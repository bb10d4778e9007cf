package schema

// Tab lifecycle.

// OpenTabRequest describes a request to open a tab.
type OpenTabRequest struct {
	URL    string
	Title  string
	Pinned bool
}

// OpenTabResponse reports the opened tab.
type OpenTabResponse struct {
	Tab TabSnapshot
}

// CloseTabRequest describes a request to close a tab.
type CloseTabRequest struct {
	TabID TabID
}

// CloseTabResponse reports the closed tab snapshot. Closed reports false
// when the id was already gone (idempotent no-op).
type CloseTabResponse struct {
	Tab    TabSnapshot
	Closed bool
}

// SetForegroundRequest describes a request to foreground a tab.
type SetForegroundRequest struct {
	TabID TabID
}

// SetForegroundResponse reports the foregrounded tab after any wake.
type SetForegroundResponse struct {
	Tab TabSnapshot
}

// Resource transitions.

// HibernateRequest describes an explicit hibernate request.
type HibernateRequest struct {
	TabID TabID
}

// HibernateResponse reports the tab after the release completed.
type HibernateResponse struct {
	Tab TabSnapshot
}

// WakeRequest describes an explicit wake request.
type WakeRequest struct {
	TabID TabID
}

// WakeResponse reports the tab after the wake completed.
type WakeResponse struct {
	Tab TabSnapshot
}

// Metadata.

// NavigateRequest describes a navigation-driven metadata update.
type NavigateRequest struct {
	TabID      TabID
	URL        string
	Title      string
	FaviconRef string
}

// NavigateResponse reports the updated tab.
type NavigateResponse struct {
	Tab TabSnapshot
}

// SetPinnedRequest pins or unpins a tab.
type SetPinnedRequest struct {
	TabID  TabID
	Pinned bool
}

// SetPinnedResponse reports the updated tab.
type SetPinnedResponse struct {
	Tab TabSnapshot
}

// Read path.

// SnapshotRequest describes a request for the registry view.
type SnapshotRequest struct{}

// SnapshotResponse is the ordered registry view.
type SnapshotResponse struct {
	Tabs       []TabSnapshot
	Foreground TabID
	Pressure   PressureLevel
}

// Recently closed.

// ReopenClosedRequest reopens a closed tab. An empty TabID reopens the
// most recently closed one.
type ReopenClosedRequest struct {
	TabID TabID
}

// ReopenClosedResponse reports the reopened tab.
type ReopenClosedResponse struct {
	Tab TabSnapshot
}

// RecentlyClosedRequest lists reopenable tabs.
type RecentlyClosedRequest struct{}

// RecentlyClosedResponse lists reopenable tabs, most recent first.
type RecentlyClosedResponse struct {
	Tabs []ClosedTab
}
