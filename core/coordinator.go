package core

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/clock"

	"pkt.systems/drowse/schema"
)

type transitionKind int

const (
	hibernateKind transitionKind = iota
	wakeKind
)

// transition tracks one in-flight hibernate or wake. At most one exists
// per tab at any time; callers join by waiting on done and reading err.
type transition struct {
	kind   transitionKind
	reason schema.TransitionReason
	cancel context.CancelFunc
	done   chan struct{}
	err    error

	// foregroundBound marks a wake the current foreground tab depends
	// on; losing focus cancels it. Guarded by the service mutex, like
	// canceled.
	foregroundBound bool
	canceled        bool

	timedOut atomic.Bool
}

// startHibernate begins releasing a tab's content. The state flips to
// hibernating and the returned transition completes when the release
// resolves one way or the other.
func (s *service) startHibernate(id schema.TabID, reason schema.TransitionReason) (*transition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, schema.ErrServiceClosed
	}
	t := s.tabs[id]
	if t == nil {
		return nil, schema.ErrTabNotFound
	}
	if s.foreground == id {
		return nil, schema.ErrForegroundTab
	}
	if s.inflight[id] != nil {
		return nil, schema.ErrTransitionInProgress
	}
	if t.State != schema.TabStateActive {
		return nil, fmt.Errorf("%w: cannot hibernate %s tab", schema.ErrInvalidState, t.State)
	}

	tctx, cancel := context.WithCancel(context.Background())
	tr := &transition{
		kind:   hibernateKind,
		reason: reason,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.inflight[id] = tr
	oldState := t.State
	t.State = schema.TabStateHibernating
	s.emitTabLocked(schema.TabEvent{
		Type:     schema.TabEventState,
		Tab:      t.Snapshot(false),
		OldState: oldState,
		NewState: schema.TabStateHibernating,
		Reason:   reason,
	})
	handle := t.handle
	timer := s.clock.AfterFunc(s.cfg.TransitionTimeout, func() {
		tr.timedOut.Store(true)
		cancel()
	})
	go s.runHibernate(tctx, cancel, timer, tr, id, handle)
	return tr, nil
}

func (s *service) runHibernate(ctx context.Context, cancel context.CancelFunc, timer *clock.Timer, tr *transition, id schema.TabID, handle ContentHandle) {
	defer cancel()
	defer timer.Stop()
	log := s.logger.With("tab", id)

	// A failed capture degrades to a metadata-only restore point; the
	// release still proceeds.
	var snapshot *schema.RestoreSnapshot
	if captured, err := handle.CaptureSnapshot(ctx); err != nil {
		log.Debug("content snapshot capture failed", "err", err)
	} else {
		snapshot = &captured
	}
	relErr := handle.Release(ctx)
	s.finishHibernate(tr, id, handle, snapshot, relErr)
}

// finishHibernate commits or reverts a hibernation under the lock.
func (s *service) finishHibernate(tr *transition, id schema.TabID, handle ContentHandle, snapshot *schema.RestoreSnapshot, relErr error) {
	s.mu.Lock()
	if s.inflight[id] == tr {
		delete(s.inflight, id)
	}
	t := s.tabs[id]
	if t == nil {
		// Closed while hibernating. The handle is ours to dispose; retry
		// the release detached if it failed under the transition context.
		tr.err = schema.ErrTabNotFound
		close(tr.done)
		s.mu.Unlock()
		if relErr != nil {
			s.releaseDetached(handle, "closed during hibernate")
		}
		return
	}
	now := s.clock.Now()
	if snapshot != nil {
		t.restore = snapshot
	}
	if relErr == nil {
		t.ensureRestore(now)
		t.handle = nil
		oldState := t.State
		t.State = schema.TabStateHibernated
		s.emitTabLocked(schema.TabEvent{
			Type:     schema.TabEventState,
			Tab:      t.Snapshot(s.foreground == id),
			OldState: oldState,
			NewState: schema.TabStateHibernated,
			Reason:   tr.reason,
		})
		// A close may have promoted this tab to foreground while the
		// release was in flight; the foreground tab never stays
		// hibernated, so wake it right back.
		if s.foreground == id && !s.closed {
			s.startWakeLocked(t, true, schema.ReasonNone)
		}
	} else {
		// The release failed or timed out. The handle stays installed and
		// the tab reverts to its last-known-good state.
		reason := schema.ReasonReleaseFailed
		tr.err = fmt.Errorf("%w: %v", schema.ErrReleaseFailed, relErr)
		if tr.timedOut.Load() {
			reason = schema.ReasonTimeout
			tr.err = schema.ErrTransitionTimeout
		}
		oldState := t.State
		t.State = schema.TabStateActive
		s.emitTabLocked(schema.TabEvent{
			Type:     schema.TabEventState,
			Tab:      t.Snapshot(s.foreground == id),
			OldState: oldState,
			NewState: schema.TabStateActive,
			Reason:   reason,
		})
		s.logger.Warn("tab hibernation reverted", "tab", id, "reason", reason, "err", relErr)
	}
	close(tr.done)
	s.mu.Unlock()
	s.persistSession()
}

// startWakeLocked begins reacquiring content for a hibernated tab. The
// caller holds mu and has verified the tab is hibernated with no
// transition in flight.
func (s *service) startWakeLocked(t *tab, foregroundBound bool, reason schema.TransitionReason) *transition {
	tctx, cancel := context.WithCancel(context.Background())
	tr := &transition{
		kind:            wakeKind,
		reason:          reason,
		cancel:          cancel,
		done:            make(chan struct{}),
		foregroundBound: foregroundBound,
	}
	s.inflight[t.ID] = tr
	oldState := t.State
	t.State = schema.TabStateWaking
	s.emitTabLocked(schema.TabEvent{
		Type:     schema.TabEventState,
		Tab:      t.Snapshot(s.foreground == t.ID),
		OldState: oldState,
		NewState: schema.TabStateWaking,
		Reason:   reason,
	})
	url := t.URL
	var restore *schema.RestoreSnapshot
	if t.restore != nil {
		restoreCopy := *t.restore
		restore = &restoreCopy
	}
	timer := s.clock.AfterFunc(s.cfg.TransitionTimeout, func() {
		tr.timedOut.Store(true)
		cancel()
	})
	go s.runWake(tctx, cancel, timer, tr, t.ID, url, restore)
	return tr
}

func (s *service) runWake(ctx context.Context, cancel context.CancelFunc, timer *clock.Timer, tr *transition, id schema.TabID, url string, restore *schema.RestoreSnapshot) {
	defer cancel()
	defer timer.Stop()
	handle, err := s.loader.Acquire(ctx, url, restore)
	s.finishWake(tr, id, handle, err)
}

// finishWake commits or reverts a wake under the lock. A handle that
// arrives after cancellation or timeout is discarded, never installed.
func (s *service) finishWake(tr *transition, id schema.TabID, handle ContentHandle, err error) {
	s.mu.Lock()
	if s.inflight[id] == tr {
		delete(s.inflight, id)
	}
	t := s.tabs[id]
	switch {
	case t == nil:
		tr.err = schema.ErrTabNotFound
		close(tr.done)
		s.mu.Unlock()
		if handle != nil {
			s.releaseDetached(handle, "closed during wake")
		}
		return
	case tr.canceled || tr.timedOut.Load():
		reason := schema.ReasonCanceled
		tr.err = context.Canceled
		if tr.timedOut.Load() {
			reason = schema.ReasonTimeout
			tr.err = schema.ErrTransitionTimeout
		}
		oldState := t.State
		t.State = schema.TabStateHibernated
		s.emitTabLocked(schema.TabEvent{
			Type:     schema.TabEventState,
			Tab:      t.Snapshot(false),
			OldState: oldState,
			NewState: schema.TabStateHibernated,
			Reason:   reason,
		})
		if s.foreground == id {
			s.foreground = s.nextLiveForegroundLocked(id)
			s.emitForegroundLocked(s.tabs[s.foreground])
		}
		s.mu.Unlock()
		if handle != nil {
			s.releaseDetached(handle, "wake canceled")
		}
		close(tr.done)
		s.persistSession()
		return
	case err != nil:
		tr.err = err
		oldState := t.State
		t.State = schema.TabStateHibernated
		s.emitTabLocked(schema.TabEvent{
			Type:     schema.TabEventState,
			Tab:      t.Snapshot(false),
			OldState: oldState,
			NewState: schema.TabStateHibernated,
			Reason:   schema.ReasonAcquireFailed,
		})
		if s.foreground == id {
			s.foreground = s.nextLiveForegroundLocked(id)
			s.emitForegroundLocked(s.tabs[s.foreground])
		}
		s.logger.Warn("tab wake failed", "tab", id, "err", err)
	default:
		t.handle = handle
		oldState := t.State
		t.State = schema.TabStateActive
		s.emitTabLocked(schema.TabEvent{
			Type:     schema.TabEventState,
			Tab:      t.Snapshot(s.foreground == id),
			OldState: oldState,
			NewState: schema.TabStateActive,
			Reason:   tr.reason,
		})
	}
	close(tr.done)
	s.mu.Unlock()
	s.persistSession()
}

// waitTransition blocks until the transition resolves or the caller's
// context expires. The transition itself keeps running in the latter
// case; abandoning a wait does not cancel it.
func (s *service) waitTransition(ctx context.Context, tr *transition) error {
	select {
	case <-tr.done:
		return tr.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OnPressureChange commits a new pressure level and, when the level
// rose, sweeps excess active tabs into hibernation.
func (s *service) OnPressureChange(level schema.PressureLevel) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	old := s.pressure
	if old == level {
		s.mu.Unlock()
		return
	}
	s.pressure = level
	s.emitPressureLocked(schema.PressureEvent{Old: old, New: level})
	s.mu.Unlock()

	s.logger.Info("pressure level changed", "old", old, "new", level)
	if level > old {
		s.sweep(context.Background(), level)
	}
}

// sweep hibernates the oldest eligible tabs until the active count fits
// under the ceiling for the given level. Tabs that refuse (in-flight
// transition, failed release) are skipped, not retried.
func (s *service) sweep(ctx context.Context, level schema.PressureLevel) {
	snapshot, err := s.Snapshot(ctx, schema.SnapshotRequest{})
	if err != nil {
		return
	}
	ceiling := s.cfg.Ceilings.Ceiling(level)
	candidates := SelectForHibernation(snapshot.Tabs, level, ceiling)
	if len(candidates) == 0 {
		return
	}
	log := s.logger.With("level", level, "ceiling", ceiling)
	log.Info("hibernation sweep start", "candidates", len(candidates))

	concurrency := s.cfg.SweepConcurrency
	if concurrency < 1 {
		concurrency = 1
	}
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	for _, id := range candidates {
		sem <- struct{}{}
		wg.Add(1)
		go func(id schema.TabID) {
			defer wg.Done()
			defer func() { <-sem }()
			tr, err := s.startHibernate(id, schema.ReasonSweep)
			if err != nil {
				log.Debug("sweep candidate skipped", "tab", id, "err", err)
				return
			}
			if err := s.waitTransition(ctx, tr); err != nil {
				log.Debug("sweep hibernation failed", "tab", id, "err", err)
			}
		}(id)
	}
	wg.Wait()
	log.Info("hibernation sweep done")
}

// releaseDetached disposes a handle the registry no longer tracks. Best
// effort with a real-time bound; failures are logged and dropped.
func (s *service) releaseDetached(handle ContentHandle, why string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.TransitionTimeout)
		defer cancel()
		if err := handle.Release(ctx); err != nil {
			s.logger.Warn("detached content release failed", "reason", why, "err", err)
		}
	}()
}
