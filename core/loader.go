package core

import (
	"context"

	"pkt.systems/drowse/schema"
)

// ContentLoader allocates and restores the heavy per-tab content
// resource. Implementations report allocation failure by returning an
// error wrapping schema.ErrResourceUnavailable.
type ContentLoader interface {
	// Acquire loads url into a fresh content handle. A non-nil snapshot
	// asks the loader to restore scroll position and form state.
	Acquire(ctx context.Context, url string, snapshot *schema.RestoreSnapshot) (ContentHandle, error)
}

// ContentHandle is the live content resource backing an active tab. A
// handle has exactly one owner (the tab) at all times; the coordinator
// only borrows it for the duration of a transition.
type ContentHandle interface {
	// CaptureSnapshot records the minimal state needed to reconstruct
	// the content later.
	CaptureSnapshot(ctx context.Context) (schema.RestoreSnapshot, error)
	// Release destroys the resource. Implementations report unclean
	// release by returning an error wrapping schema.ErrReleaseFailed.
	Release(ctx context.Context) error
}
