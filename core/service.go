package core

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	lru "github.com/hashicorp/golang-lru/v2"

	"pkt.systems/drowse/internal/logx"
	"pkt.systems/drowse/internal/persist"
	"pkt.systems/drowse/schema"
	"pkt.systems/pslog"
)

// service implements the tab service behavior. All registry mutations are
// serialized through mu (single logical writer); content acquisition and
// release run in transition goroutines that report back under the lock.
type service struct {
	cfg    schema.ServiceConfig
	loader ContentLoader
	sink   EventSink
	store  *persist.Store
	logger pslog.Logger
	clock  clock.Clock

	mu         sync.Mutex
	tabs       map[schema.TabID]*tab
	order      []schema.TabID
	foreground schema.TabID
	pressure   schema.PressureLevel
	inflight   map[schema.TabID]*transition
	recent     *lru.Cache[schema.TabID, schema.ClosedTab]
	closed     bool

	feed     chan feedItem
	feedDone chan struct{}
}

// feedItem carries one change-feed entry through the ordered dispatcher.
type feedItem struct {
	tab      *schema.TabEvent
	pressure *schema.PressureEvent
}

const feedDepth = 1024

// NewService constructs the tab service implementation.
func NewService(cfg schema.ServiceConfig, deps ServiceDeps) (Service, error) {
	normalized, err := schema.NormalizeServiceConfig(cfg)
	if err != nil {
		return nil, err
	}
	cfg = normalized
	if deps.Loader == nil {
		return nil, schema.ErrResourceUnavailable
	}
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	clk := deps.Clock
	if clk == nil {
		clk = clock.New()
	}
	recent, err := lru.New[schema.TabID, schema.ClosedTab](cfg.RecentlyClosedMax)
	if err != nil {
		return nil, err
	}
	var store *persist.Store
	if cfg.StateDir != "" {
		store, err = persist.NewStoreWithLogger(cfg.StateDir, logger)
		if err != nil {
			return nil, err
		}
	}
	s := &service{
		cfg:      cfg,
		loader:   deps.Loader,
		sink:     deps.EventSink,
		store:    store,
		logger:   logger,
		clock:    clk,
		tabs:     make(map[schema.TabID]*tab),
		inflight: make(map[schema.TabID]*transition),
		recent:   recent,
		feed:     make(chan feedItem, feedDepth),
		feedDone: make(chan struct{}),
	}
	if store != nil {
		s.loadSession()
	}
	go s.dispatch()
	return s, nil
}

// loadSession restores tab metadata from disk. Content handles do not
// survive restarts, so restored tabs come back hibernated with no
// foreground tab.
func (s *service) loadSession() {
	snapshot, ok, err := s.store.Load()
	if err != nil || !ok {
		if err != nil {
			s.logger.Warn("service session load failed", "err", err)
		}
		return
	}
	for _, rec := range snapshot.Tabs {
		t := &tab{
			ID:           rec.ID,
			URL:          rec.URL,
			Title:        rec.Title,
			FaviconRef:   rec.FaviconRef,
			LastAccessed: rec.LastAccessed,
			Pinned:       rec.Pinned,
			State:        schema.TabStateHibernated,
			restore:      rec.Restore,
		}
		t.ensureRestore(rec.LastAccessed)
		s.tabs[t.ID] = t
	}
	for _, id := range snapshot.Order {
		if _, ok := s.tabs[id]; ok {
			s.order = append(s.order, id)
		}
	}
	for _, entry := range snapshot.RecentlyClosed {
		s.recent.Add(entry.ID, entry)
	}
	s.logger.Info("service session restored", "tabs", len(s.tabs))
}

func (s *service) OpenTab(ctx context.Context, req schema.OpenTabRequest) (schema.OpenTabResponse, error) {
	url, err := schema.NormalizeURL(req.URL)
	if err != nil {
		return schema.OpenTabResponse{}, err
	}
	log := logx.Ctx(ctx).With("url", url)
	log.Debug("service tab open start")

	// Acquire before registration: a failed open leaves no trace in the
	// registry and emits no events.
	handle, err := s.loader.Acquire(ctx, url, nil)
	if err != nil {
		log.Warn("service tab open failed", "err", err)
		return schema.OpenTabResponse{}, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.releaseDetached(handle, "open after close")
		return schema.OpenTabResponse{}, schema.ErrServiceClosed
	}
	now := s.clock.Now()
	t := &tab{
		ID:           schema.TabID(newID()),
		URL:          url,
		Title:        req.Title,
		Pinned:       req.Pinned,
		LastAccessed: now,
		State:        schema.TabStateActive,
		handle:       handle,
	}
	s.tabs[t.ID] = t
	s.order = append(s.order, t.ID)
	s.foreground = t.ID
	s.emitTabLocked(schema.TabEvent{
		Type:     schema.TabEventOpened,
		Tab:      t.Snapshot(true),
		NewState: schema.TabStateActive,
	})
	s.emitForegroundLocked(t)
	level := s.pressure
	snap := t.Snapshot(true)
	s.mu.Unlock()

	s.persistSession()
	log.Info("service tab opened", "tab", t.ID)
	if level > schema.PressureNormal {
		go s.sweep(context.Background(), level)
	}
	return schema.OpenTabResponse{Tab: snap}, nil
}

func (s *service) CloseTab(ctx context.Context, req schema.CloseTabRequest) (schema.CloseTabResponse, error) {
	log := logx.WithTab(ctx, req.TabID)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return schema.CloseTabResponse{}, schema.ErrServiceClosed
	}
	t := s.tabs[req.TabID]
	if t == nil {
		// Second close of the same id is a success no-op: one closed
		// transition per tab, ever.
		s.mu.Unlock()
		log.Debug("service tab close ignored", "reason", "already closed")
		return schema.CloseTabResponse{Closed: false}, nil
	}
	tr := s.inflight[req.TabID]
	if tr != nil {
		tr.canceled = true
		tr.cancel()
	}
	// An in-flight hibernate owns the handle; its goroutine disposes it.
	var orphan ContentHandle
	if t.handle != nil && (tr == nil || tr.kind != hibernateKind) {
		orphan = t.handle
		t.handle = nil
	}
	now := s.clock.Now()
	t.ensureRestore(now)
	oldState := t.State
	t.State = schema.TabStateClosed
	snap := t.Snapshot(false)
	delete(s.tabs, req.TabID)
	s.order = removeTabID(s.order, req.TabID)
	s.recent.Add(t.ID, schema.ClosedTab{
		ID:       t.ID,
		URL:      t.URL,
		Title:    t.Title,
		Pinned:   t.Pinned,
		ClosedAt: now,
		Restore:  *t.restore,
	})
	s.emitTabLocked(schema.TabEvent{
		Type:     schema.TabEventClosed,
		Tab:      snap,
		OldState: oldState,
		NewState: schema.TabStateClosed,
	})
	if s.foreground == req.TabID {
		next := s.nextForegroundLocked(req.TabID)
		s.foreground = next
		if nt := s.tabs[next]; nt != nil {
			s.emitForegroundLocked(nt)
			if nt.State == schema.TabStateHibernated {
				// The foreground tab must never stay hibernated; wake it
				// without blocking the close.
				s.startWakeLocked(nt, true, schema.ReasonNone)
			}
		} else {
			s.emitForegroundLocked(nil)
		}
	}
	s.mu.Unlock()

	if orphan != nil {
		s.releaseDetached(orphan, "tab closed")
	}
	s.persistSession()
	log.Info("service tab closed")
	return schema.CloseTabResponse{Tab: snap, Closed: true}, nil
}

func (s *service) SetForeground(ctx context.Context, req schema.SetForegroundRequest) (schema.SetForegroundResponse, error) {
	log := logx.WithTab(ctx, req.TabID)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return schema.SetForegroundResponse{}, schema.ErrServiceClosed
	}
	t := s.tabs[req.TabID]
	if t == nil {
		s.mu.Unlock()
		log.Warn("service foreground failed", "err", schema.ErrTabNotFound)
		return schema.SetForegroundResponse{}, schema.ErrTabNotFound
	}
	if t.State == schema.TabStateHibernating {
		s.mu.Unlock()
		log.Warn("service foreground failed", "err", schema.ErrTransitionInProgress)
		return schema.SetForegroundResponse{}, schema.ErrTransitionInProgress
	}
	t.LastAccessed = s.clock.Now()
	prev := s.foreground
	if prev != req.TabID {
		s.foreground = req.TabID
		s.emitForegroundLocked(t)
		// A wake bound to the previous foreground tab lost its purpose;
		// cancel it so the late handle is discarded, not installed.
		if pt := s.tabs[prev]; pt != nil && pt.State == schema.TabStateWaking {
			if ptr := s.inflight[prev]; ptr != nil && ptr.kind == wakeKind && ptr.foregroundBound {
				ptr.canceled = true
				ptr.cancel()
			}
		}
	}
	var tr *transition
	switch t.State {
	case schema.TabStateActive:
	case schema.TabStateWaking:
		tr = s.inflight[req.TabID]
		if tr != nil {
			tr.foregroundBound = true
		}
	case schema.TabStateHibernated:
		tr = s.startWakeLocked(t, true, schema.ReasonUser)
	}
	s.mu.Unlock()

	if tr != nil {
		if err := s.waitTransition(ctx, tr); err != nil {
			log.Warn("service foreground wake failed", "err", err)
			s.persistSession()
			return schema.SetForegroundResponse{}, err
		}
	}
	s.mu.Lock()
	snap := schema.TabSnapshot{}
	if cur := s.tabs[req.TabID]; cur != nil {
		snap = cur.Snapshot(s.foreground == req.TabID)
	}
	s.mu.Unlock()
	s.persistSession()
	log.Info("service tab foregrounded")
	return schema.SetForegroundResponse{Tab: snap}, nil
}

func (s *service) Hibernate(ctx context.Context, req schema.HibernateRequest) (schema.HibernateResponse, error) {
	log := logx.WithTab(ctx, req.TabID)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return schema.HibernateResponse{}, schema.ErrServiceClosed
	}
	t := s.tabs[req.TabID]
	if t == nil {
		s.mu.Unlock()
		return schema.HibernateResponse{}, schema.ErrTabNotFound
	}
	if t.State == schema.TabStateHibernated {
		snap := t.Snapshot(false)
		s.mu.Unlock()
		return schema.HibernateResponse{Tab: snap}, nil
	}
	s.mu.Unlock()

	// Explicit hibernation is allowed for pinned tabs; only the
	// foreground tab is refused.
	tr, err := s.startHibernate(req.TabID, schema.ReasonUser)
	if err != nil {
		log.Warn("service hibernate failed", "err", err)
		return schema.HibernateResponse{}, err
	}
	if err := s.waitTransition(ctx, tr); err != nil {
		log.Warn("service hibernate failed", "err", err)
		return schema.HibernateResponse{}, err
	}
	s.mu.Lock()
	snap := schema.TabSnapshot{}
	if cur := s.tabs[req.TabID]; cur != nil {
		snap = cur.Snapshot(s.foreground == req.TabID)
	}
	s.mu.Unlock()
	log.Info("service tab hibernated")
	return schema.HibernateResponse{Tab: snap}, nil
}

func (s *service) Wake(ctx context.Context, req schema.WakeRequest) (schema.WakeResponse, error) {
	log := logx.WithTab(ctx, req.TabID)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return schema.WakeResponse{}, schema.ErrServiceClosed
	}
	t := s.tabs[req.TabID]
	if t == nil {
		s.mu.Unlock()
		return schema.WakeResponse{}, schema.ErrTabNotFound
	}
	var tr *transition
	switch t.State {
	case schema.TabStateActive:
		snap := t.Snapshot(s.foreground == req.TabID)
		s.mu.Unlock()
		return schema.WakeResponse{Tab: snap}, nil
	case schema.TabStateWaking:
		// Join the in-flight wake.
		tr = s.inflight[req.TabID]
	case schema.TabStateHibernating:
		s.mu.Unlock()
		return schema.WakeResponse{}, schema.ErrTransitionInProgress
	case schema.TabStateHibernated:
		tr = s.startWakeLocked(t, false, schema.ReasonUser)
	}
	s.mu.Unlock()

	if tr != nil {
		if err := s.waitTransition(ctx, tr); err != nil {
			log.Warn("service wake failed", "err", err)
			return schema.WakeResponse{}, err
		}
	}
	s.mu.Lock()
	snap := schema.TabSnapshot{}
	if cur := s.tabs[req.TabID]; cur != nil {
		snap = cur.Snapshot(s.foreground == req.TabID)
	}
	s.mu.Unlock()
	s.persistSession()
	log.Info("service tab woken")
	return schema.WakeResponse{Tab: snap}, nil
}

func (s *service) Navigate(ctx context.Context, req schema.NavigateRequest) (schema.NavigateResponse, error) {
	url, err := schema.NormalizeURL(req.URL)
	if err != nil {
		return schema.NavigateResponse{}, err
	}
	log := logx.WithTab(ctx, req.TabID)

	s.mu.Lock()
	t := s.tabs[req.TabID]
	if t == nil {
		s.mu.Unlock()
		return schema.NavigateResponse{}, schema.ErrTabNotFound
	}
	t.URL = url
	if req.Title != "" {
		t.Title = req.Title
	}
	if req.FaviconRef != "" {
		t.FaviconRef = req.FaviconRef
	}
	snap := t.Snapshot(s.foreground == req.TabID)
	s.emitTabLocked(schema.TabEvent{Type: schema.TabEventUpdated, Tab: snap})
	s.mu.Unlock()

	s.persistSession()
	log.Debug("service tab navigated", "url", url)
	return schema.NavigateResponse{Tab: snap}, nil
}

func (s *service) SetPinned(ctx context.Context, req schema.SetPinnedRequest) (schema.SetPinnedResponse, error) {
	log := logx.WithTab(ctx, req.TabID)

	s.mu.Lock()
	t := s.tabs[req.TabID]
	if t == nil {
		s.mu.Unlock()
		return schema.SetPinnedResponse{}, schema.ErrTabNotFound
	}
	t.Pinned = req.Pinned
	snap := t.Snapshot(s.foreground == req.TabID)
	s.emitTabLocked(schema.TabEvent{Type: schema.TabEventUpdated, Tab: snap})
	s.mu.Unlock()

	s.persistSession()
	log.Debug("service tab pin updated", "pinned", req.Pinned)
	return schema.SetPinnedResponse{Tab: snap}, nil
}

func (s *service) Snapshot(ctx context.Context, req schema.SnapshotRequest) (schema.SnapshotResponse, error) {
	_ = ctx
	_ = req
	s.mu.Lock()
	defer s.mu.Unlock()
	tabs := make([]schema.TabSnapshot, 0, len(s.order))
	for _, id := range s.order {
		t := s.tabs[id]
		if t == nil {
			continue
		}
		tabs = append(tabs, t.Snapshot(id == s.foreground))
	}
	return schema.SnapshotResponse{
		Tabs:       tabs,
		Foreground: s.foreground,
		Pressure:   s.pressure,
	}, nil
}

func (s *service) ReopenClosed(ctx context.Context, req schema.ReopenClosedRequest) (schema.ReopenClosedResponse, error) {
	s.mu.Lock()
	id := req.TabID
	if id == "" {
		keys := s.recent.Keys()
		if len(keys) == 0 {
			s.mu.Unlock()
			return schema.ReopenClosedResponse{}, schema.ErrNothingToReopen
		}
		id = keys[len(keys)-1]
	}
	entry, ok := s.recent.Get(id)
	if !ok {
		s.mu.Unlock()
		return schema.ReopenClosedResponse{}, schema.ErrNothingToReopen
	}
	s.recent.Remove(id)
	s.mu.Unlock()

	log := logx.Ctx(ctx).With("url", entry.URL)
	restore := entry.Restore
	handle, err := s.loader.Acquire(ctx, entry.URL, &restore)
	if err != nil {
		// Keep the entry reopenable after a failed acquire.
		s.mu.Lock()
		s.recent.Add(id, entry)
		s.mu.Unlock()
		log.Warn("service tab reopen failed", "err", err)
		return schema.ReopenClosedResponse{}, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.releaseDetached(handle, "reopen after close")
		return schema.ReopenClosedResponse{}, schema.ErrServiceClosed
	}
	now := s.clock.Now()
	t := &tab{
		ID:           schema.TabID(newID()),
		URL:          entry.URL,
		Title:        entry.Title,
		Pinned:       entry.Pinned,
		LastAccessed: now,
		State:        schema.TabStateActive,
		handle:       handle,
		restore:      &restore,
	}
	s.tabs[t.ID] = t
	s.order = append(s.order, t.ID)
	s.foreground = t.ID
	s.emitTabLocked(schema.TabEvent{
		Type:     schema.TabEventOpened,
		Tab:      t.Snapshot(true),
		NewState: schema.TabStateActive,
	})
	s.emitForegroundLocked(t)
	snap := t.Snapshot(true)
	s.mu.Unlock()

	s.persistSession()
	log.Info("service tab reopened", "tab", t.ID)
	return schema.ReopenClosedResponse{Tab: snap}, nil
}

func (s *service) RecentlyClosed(ctx context.Context, req schema.RecentlyClosedRequest) (schema.RecentlyClosedResponse, error) {
	_ = ctx
	_ = req
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := s.recent.Keys()
	tabs := make([]schema.ClosedTab, 0, len(keys))
	for i := len(keys) - 1; i >= 0; i-- {
		if entry, ok := s.recent.Peek(keys[i]); ok {
			tabs = append(tabs, entry)
		}
	}
	return schema.RecentlyClosedResponse{Tabs: tabs}, nil
}

func (s *service) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return schema.ErrServiceClosed
	}
	s.closed = true
	transitions := make([]*transition, 0, len(s.inflight))
	for _, tr := range s.inflight {
		tr.canceled = true
		tr.cancel()
		transitions = append(transitions, tr)
	}
	handles := make([]ContentHandle, 0, len(s.tabs))
	for _, t := range s.tabs {
		if t.handle != nil && s.inflight[t.ID] == nil {
			handles = append(handles, t.handle)
			t.handle = nil
		}
	}
	s.mu.Unlock()

	for _, tr := range transitions {
		<-tr.done
	}
	// A hibernate canceled by shutdown reverts its tab to active with the
	// handle retained; collect those after the transitions settle.
	s.mu.Lock()
	for _, t := range s.tabs {
		if t.handle != nil {
			handles = append(handles, t.handle)
			t.handle = nil
		}
	}
	s.mu.Unlock()
	for _, handle := range handles {
		s.releaseDetached(handle, "service close")
	}

	s.mu.Lock()
	close(s.feed)
	s.mu.Unlock()
	<-s.feedDone
	s.logger.Info("service closed")
	return nil
}

// dispatch delivers change-feed entries to the sink in commit order.
func (s *service) dispatch() {
	for item := range s.feed {
		if s.sink == nil {
			continue
		}
		if item.tab != nil {
			s.sink.OnTabEvent(*item.tab)
		}
		if item.pressure != nil {
			s.sink.OnPressureEvent(*item.pressure)
		}
	}
	close(s.feedDone)
}

// emitTabLocked queues a change-feed entry. Callers hold mu, which is
// what guarantees per-tab ordering.
func (s *service) emitTabLocked(event schema.TabEvent) {
	if s.closed {
		return
	}
	event.Timestamp = s.clock.Now()
	event.Foreground = s.foreground
	select {
	case s.feed <- feedItem{tab: &event}:
	default:
		s.logger.Warn("service change feed full, event dropped", "tab", event.Tab.ID, "type", event.Type)
	}
}

func (s *service) emitForegroundLocked(t *tab) {
	event := schema.TabEvent{Type: schema.TabEventForeground}
	if t != nil {
		event.Tab = t.Snapshot(true)
	}
	s.emitTabLocked(event)
}

func (s *service) emitPressureLocked(event schema.PressureEvent) {
	if s.closed {
		return
	}
	event.Timestamp = s.clock.Now()
	select {
	case s.feed <- feedItem{pressure: &event}:
	default:
		s.logger.Warn("service change feed full, pressure event dropped")
	}
}

// nextForegroundLocked picks the most-recently-accessed remaining
// non-pinned tab, falling back to any remaining tab.
func (s *service) nextForegroundLocked(exclude schema.TabID) schema.TabID {
	var best schema.TabID
	var bestAt time.Time
	for _, id := range s.order {
		t := s.tabs[id]
		if t == nil || id == exclude || t.Pinned {
			continue
		}
		if best == "" || t.LastAccessed.After(bestAt) {
			best = id
			bestAt = t.LastAccessed
		}
	}
	if best != "" {
		return best
	}
	for _, id := range s.order {
		if id != exclude && s.tabs[id] != nil {
			return id
		}
	}
	return ""
}

// nextLiveForegroundLocked picks a replacement foreground among tabs that
// already satisfy the foreground invariant (active or waking).
func (s *service) nextLiveForegroundLocked(exclude schema.TabID) schema.TabID {
	var best schema.TabID
	var bestAt time.Time
	for _, id := range s.order {
		t := s.tabs[id]
		if t == nil || id == exclude {
			continue
		}
		if t.State != schema.TabStateActive && t.State != schema.TabStateWaking {
			continue
		}
		if best == "" || t.LastAccessed.After(bestAt) {
			best = id
			bestAt = t.LastAccessed
		}
	}
	return best
}

func (s *service) persistSession() {
	if s.store == nil {
		return
	}
	s.mu.Lock()
	snapshot := persist.SessionSnapshot{
		Order: append([]schema.TabID(nil), s.order...),
		Tabs:  make([]persist.TabRecord, 0, len(s.order)),
	}
	for _, id := range s.order {
		t := s.tabs[id]
		if t == nil {
			continue
		}
		var restore *schema.RestoreSnapshot
		if t.restore != nil {
			restoreCopy := *t.restore
			restore = &restoreCopy
		}
		snapshot.Tabs = append(snapshot.Tabs, persist.TabRecord{
			ID:           t.ID,
			URL:          t.URL,
			Title:        t.Title,
			FaviconRef:   t.FaviconRef,
			LastAccessed: t.LastAccessed,
			Pinned:       t.Pinned,
			Restore:      restore,
		})
	}
	keys := s.recent.Keys()
	for _, key := range keys {
		if entry, ok := s.recent.Peek(key); ok {
			snapshot.RecentlyClosed = append(snapshot.RecentlyClosed, entry)
		}
	}
	s.mu.Unlock()

	if err := s.store.Save(snapshot); err != nil {
		s.logger.Warn("service persist failed", "err", err)
	}
}

func removeTabID(order []schema.TabID, id schema.TabID) []schema.TabID {
	for i, current := range order {
		if current == id {
			return append(order[:i], order[i+1:]...)
		}
	}
	return order
}
