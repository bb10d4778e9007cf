package core

import (
	"time"

	"pkt.systems/drowse/schema"
)

// tab tracks one browsing context and its resource state. The tab owns
// its content handle and restore snapshot; callers only ever see
// schema.TabSnapshot views.
type tab struct {
	ID           schema.TabID
	URL          string
	Title        string
	FaviconRef   string
	LastAccessed time.Time
	Pinned       bool
	State        schema.TabState
	handle       ContentHandle
	restore      *schema.RestoreSnapshot
}

// Snapshot returns a transport-friendly view of the tab.
func (t *tab) Snapshot(foreground bool) schema.TabSnapshot {
	return schema.TabSnapshot{
		ID:           t.ID,
		URL:          t.URL,
		Title:        t.Title,
		FaviconRef:   t.FaviconRef,
		LastAccessed: t.LastAccessed,
		Pinned:       t.Pinned,
		State:        t.State,
		Foreground:   foreground,
		HasSnapshot:  t.restore != nil,
	}
}

// ensureRestore guarantees a restore snapshot exists once the tab leaves
// the active state, synthesizing one from metadata when capture failed.
func (t *tab) ensureRestore(now time.Time) {
	if t.restore != nil {
		return
	}
	t.restore = &schema.RestoreSnapshot{
		URL:        t.URL,
		Title:      t.Title,
		CapturedAt: now,
	}
}
