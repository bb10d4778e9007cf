// Package memloader provides an in-process ContentLoader that models
// per-tab memory cost without a real renderer. It backs tests and the
// default serve mode when no browser endpoint is configured.
package memloader

import (
	"context"
	"fmt"
	"sync"
	"time"

	"pkt.systems/drowse/core"
	"pkt.systems/drowse/schema"
	"pkt.systems/pslog"
)

// Loader allocates synthetic content handles. MaxHandles bounds the
// number of concurrently live handles; 0 means unlimited.
type Loader struct {
	MaxHandles int

	log  pslog.Logger
	mu   sync.Mutex
	live int
}

// New constructs a Loader.
func New(maxHandles int, logger pslog.Logger) *Loader {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Loader{MaxHandles: maxHandles, log: logger}
}

// Acquire allocates a synthetic handle for the url.
func (l *Loader) Acquire(ctx context.Context, url string, snapshot *schema.RestoreSnapshot) (core.ContentHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	if l.MaxHandles > 0 && l.live >= l.MaxHandles {
		l.mu.Unlock()
		return nil, fmt.Errorf("%w: %d handles live", schema.ErrResourceUnavailable, l.MaxHandles)
	}
	l.live++
	l.mu.Unlock()

	h := &handle{loader: l, url: url}
	if snapshot != nil {
		h.scrollX = snapshot.ScrollX
		h.scrollY = snapshot.ScrollY
		h.title = snapshot.Title
	}
	l.log.Trace("memloader acquire", "url", url)
	return h, nil
}

// Live reports the number of live handles.
func (l *Loader) Live() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.live
}

type handle struct {
	loader *Loader
	url    string
	title  string

	mu       sync.Mutex
	scrollX  float64
	scrollY  float64
	released bool
}

func (h *handle) CaptureSnapshot(ctx context.Context) (schema.RestoreSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return schema.RestoreSnapshot{}, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return schema.RestoreSnapshot{}, schema.ErrInvalidState
	}
	return schema.RestoreSnapshot{
		URL:        h.url,
		Title:      h.title,
		ScrollX:    h.scrollX,
		ScrollY:    h.scrollY,
		CapturedAt: time.Now(),
	}, nil
}

func (h *handle) Release(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.Lock()
	if h.released {
		h.mu.Unlock()
		return nil
	}
	h.released = true
	h.mu.Unlock()

	h.loader.mu.Lock()
	h.loader.live--
	h.loader.mu.Unlock()
	h.loader.log.Trace("memloader release", "url", h.url)
	return nil
}

// Scroll updates the synthetic scroll position, standing in for user
// interaction with live content.
func (h *handle) Scroll(x, y float64) {
	h.mu.Lock()
	h.scrollX = x
	h.scrollY = y
	h.mu.Unlock()
}
