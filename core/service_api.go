package core

import (
	"context"

	"pkt.systems/drowse/schema"
)

// Service is the transport-agnostic API for managing tabs and their
// resource states. All mutations are serialized through a single writer;
// operations that acquire or release content suspend without holding it.
type Service interface {
	OpenTab(ctx context.Context, req schema.OpenTabRequest) (schema.OpenTabResponse, error)
	CloseTab(ctx context.Context, req schema.CloseTabRequest) (schema.CloseTabResponse, error)
	SetForeground(ctx context.Context, req schema.SetForegroundRequest) (schema.SetForegroundResponse, error)
	Hibernate(ctx context.Context, req schema.HibernateRequest) (schema.HibernateResponse, error)
	Wake(ctx context.Context, req schema.WakeRequest) (schema.WakeResponse, error)
	Navigate(ctx context.Context, req schema.NavigateRequest) (schema.NavigateResponse, error)
	SetPinned(ctx context.Context, req schema.SetPinnedRequest) (schema.SetPinnedResponse, error)
	Snapshot(ctx context.Context, req schema.SnapshotRequest) (schema.SnapshotResponse, error)
	ReopenClosed(ctx context.Context, req schema.ReopenClosedRequest) (schema.ReopenClosedResponse, error)
	RecentlyClosed(ctx context.Context, req schema.RecentlyClosedRequest) (schema.RecentlyClosedResponse, error)

	// OnPressureChange is the pressure monitor's entry point. A level
	// increase triggers a hibernation sweep.
	OnPressureChange(level schema.PressureLevel)

	// Close shuts the service down, cancelling in-flight transitions.
	Close() error
}
