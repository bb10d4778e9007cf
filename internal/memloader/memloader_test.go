package memloader

import (
	"context"
	"errors"
	"testing"

	"pkt.systems/drowse/schema"
)

func TestAcquireCapacity(t *testing.T) {
	loader := New(2, nil)
	ctx := context.Background()

	h1, err := loader.Acquire(ctx, "https://example.com/1", nil)
	if err != nil {
		t.Fatalf("acquire 1: %v", err)
	}
	if _, err := loader.Acquire(ctx, "https://example.com/2", nil); err != nil {
		t.Fatalf("acquire 2: %v", err)
	}
	if _, err := loader.Acquire(ctx, "https://example.com/3", nil); !errors.Is(err, schema.ErrResourceUnavailable) {
		t.Fatalf("expected ErrResourceUnavailable at capacity, got %v", err)
	}

	if err := h1.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := loader.Acquire(ctx, "https://example.com/3", nil); err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	if got := loader.Live(); got != 2 {
		t.Fatalf("expected 2 live handles, got %d", got)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	loader := New(0, nil)
	ctx := context.Background()

	h, err := loader.Acquire(ctx, "https://example.com", nil)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	h.(*handle).Scroll(0, 420)
	snap, err := h.CaptureSnapshot(ctx)
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if snap.URL != "https://example.com" || snap.ScrollY != 420 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if err := h.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}

	restored, err := loader.Acquire(ctx, snap.URL, &snap)
	if err != nil {
		t.Fatalf("acquire with restore: %v", err)
	}
	got, err := restored.CaptureSnapshot(ctx)
	if err != nil {
		t.Fatalf("capture restored: %v", err)
	}
	if got.ScrollY != 420 {
		t.Fatalf("scroll position lost across restore, got %+v", got)
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	loader := New(0, nil)
	ctx := context.Background()

	h, err := loader.Acquire(ctx, "https://example.com", nil)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := h.Release(ctx); err != nil {
		t.Fatalf("first release: %v", err)
	}
	if err := h.Release(ctx); err != nil {
		t.Fatalf("second release: %v", err)
	}
	if got := loader.Live(); got != 0 {
		t.Fatalf("expected 0 live handles, got %d", got)
	}
}

func TestCaptureAfterReleaseFails(t *testing.T) {
	loader := New(0, nil)
	ctx := context.Background()

	h, err := loader.Acquire(ctx, "https://example.com", nil)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := h.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := h.CaptureSnapshot(ctx); !errors.Is(err, schema.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}
