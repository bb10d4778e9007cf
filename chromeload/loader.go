// Package chromeload implements the content loader against a headless
// Chrome, one browser tab per handle. Hibernating a tab closes its
// Chrome target; waking navigates a fresh target and restores scroll
// position from the captured snapshot.
package chromeload

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"

	"pkt.systems/drowse/core"
	"pkt.systems/drowse/schema"
	"pkt.systems/pslog"
)

// Config tunes the browser allocator.
type Config struct {
	// ExecPath overrides the Chrome binary location.
	ExecPath string
	// Headless runs the browser without a window.
	Headless bool
	// NoSandbox disables the Chrome sandbox (needed in containers).
	NoSandbox bool
	// UserDataDir keeps the browser profile across runs. Empty uses a
	// throwaway profile.
	UserDataDir string
}

// Loader allocates Chrome-backed content handles.
type Loader struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	log         pslog.Logger
}

// New constructs a Loader. The browser process launches lazily on the
// first Acquire.
func New(cfg Config, logger pslog.Logger) *Loader {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", cfg.NoSandbox),
	)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(cfg.UserDataDir))
	}
	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)
	return &Loader{allocCtx: allocCtx, allocCancel: cancel, log: logger}
}

// Acquire opens a browser tab, navigates it to url and restores scroll
// position when a snapshot is present.
func (l *Loader) Acquire(ctx context.Context, url string, snapshot *schema.RestoreSnapshot) (core.ContentHandle, error) {
	tabCtx, cancel := chromedp.NewContext(l.allocCtx)
	// A caller that gives up tears the half-built tab down with it.
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	actions := []chromedp.Action{chromedp.Navigate(url)}
	if snapshot != nil && (snapshot.ScrollX != 0 || snapshot.ScrollY != 0) {
		actions = append(actions, chromedp.Evaluate(
			fmt.Sprintf("window.scrollTo(%v, %v)", snapshot.ScrollX, snapshot.ScrollY), nil))
	}
	if err := chromedp.Run(tabCtx, actions...); err != nil {
		cancel()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		l.log.Warn("browser tab acquire failed", "url", url, "err", err)
		return nil, fmt.Errorf("%w: %v", schema.ErrResourceUnavailable, err)
	}
	l.log.Debug("browser tab acquired", "url", url)
	return &handle{ctx: tabCtx, cancel: cancel, url: url, log: l.log}, nil
}

// Close shuts the allocator and any remaining browser targets down.
func (l *Loader) Close() error {
	l.allocCancel()
	return nil
}

type handle struct {
	ctx    context.Context
	cancel context.CancelFunc
	url    string
	log    pslog.Logger
}

type pageState struct {
	URL   string  `json:"url"`
	Title string  `json:"title"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
}

func (h *handle) CaptureSnapshot(ctx context.Context) (schema.RestoreSnapshot, error) {
	var state pageState
	done := make(chan error, 1)
	go func() {
		done <- chromedp.Run(h.ctx, chromedp.Evaluate(
			`({url: location.href, title: document.title, x: window.scrollX, y: window.scrollY})`,
			&state))
	}()
	select {
	case err := <-done:
		if err != nil {
			return schema.RestoreSnapshot{}, err
		}
	case <-ctx.Done():
		// The tab stays alive; only this capture is abandoned.
		return schema.RestoreSnapshot{}, ctx.Err()
	}
	url := state.URL
	if url == "" {
		url = h.url
	}
	return schema.RestoreSnapshot{
		URL:        url,
		Title:      state.Title,
		ScrollX:    state.X,
		ScrollY:    state.Y,
		CapturedAt: time.Now(),
	}, nil
}

func (h *handle) Release(ctx context.Context) error {
	done := make(chan error, 1)
	go func() {
		done <- chromedp.Cancel(h.ctx)
	}()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("%w: %v", schema.ErrReleaseFailed, err)
		}
		h.log.Debug("browser tab released", "url", h.url)
		return nil
	case <-ctx.Done():
		// Graceful close timed out; hard-cancel and report unclean.
		h.cancel()
		return fmt.Errorf("%w: %v", schema.ErrReleaseFailed, ctx.Err())
	}
}
