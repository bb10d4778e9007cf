package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"pkt.systems/drowse/core"
	"pkt.systems/drowse/internal/logx"
	"pkt.systems/drowse/schema"
)

// Server serves the HTTP API.
type Server struct {
	cfg      Config
	service  core.Service
	hub      *Hub
	basePath string
}

// NewServer constructs an HTTP server.
func NewServer(cfg Config, service core.Service, hub *Hub) *Server {
	return &Server{
		cfg:      cfg,
		service:  service,
		hub:      hub,
		basePath: normalizeBasePath(cfg.BasePath),
	}
}

// Handler returns an http.Handler for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tabs", s.handleTabs)
	mux.HandleFunc("/api/tabs/close", s.handleClose)
	mux.HandleFunc("/api/tabs/foreground", s.handleForeground)
	mux.HandleFunc("/api/tabs/hibernate", s.handleHibernate)
	mux.HandleFunc("/api/tabs/wake", s.handleWake)
	mux.HandleFunc("/api/tabs/navigate", s.handleNavigate)
	mux.HandleFunc("/api/tabs/pin", s.handlePin)
	mux.HandleFunc("/api/recent", s.handleRecent)
	mux.HandleFunc("/api/recent/reopen", s.handleReopen)
	mux.HandleFunc("/api/stream", s.handleStream)

	handler := withRequestLogging(mux)
	if s.basePath == "" {
		return handler
	}
	prefix := s.basePath
	root := http.NewServeMux()
	root.Handle(prefix+"/", http.StripPrefix(prefix, handler))
	root.HandleFunc(prefix, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != prefix {
			http.NotFound(w, r)
			return
		}
		http.Redirect(w, r, prefix+"/", http.StatusTemporaryRedirect)
	})
	return root
}

func (s *Server) handleTabs(w http.ResponseWriter, r *http.Request) {
	log := logx.Ctx(r.Context())
	switch r.Method {
	case http.MethodGet:
		resp, err := s.service.Snapshot(r.Context(), schema.SnapshotRequest{})
		if err != nil {
			log.Warn("http tabs list failed", "err", err)
			writeError(w, statusForError(err), err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
		log.Debug("http tabs list ok", "count", len(resp.Tabs))
	case http.MethodPost:
		var payload struct {
			URL    string `json:"url"`
			Title  string `json:"title"`
			Pinned bool   `json:"pinned"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			log.Warn("http tabs decode failed", "err", err)
			writeError(w, http.StatusBadRequest, err)
			return
		}
		resp, err := s.service.OpenTab(r.Context(), schema.OpenTabRequest{
			URL:    payload.URL,
			Title:  payload.Title,
			Pinned: payload.Pinned,
		})
		if err != nil {
			log.Warn("http tabs open failed", "err", err)
			writeError(w, statusForError(err), err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
		log.Info("http tabs open ok", "tab", resp.Tab.ID)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	s.tabCommand(w, r, "close", func(ctx context.Context, tabID schema.TabID) (any, error) {
		return s.service.CloseTab(ctx, schema.CloseTabRequest{TabID: tabID})
	})
}

func (s *Server) handleForeground(w http.ResponseWriter, r *http.Request) {
	s.tabCommand(w, r, "foreground", func(ctx context.Context, tabID schema.TabID) (any, error) {
		return s.service.SetForeground(ctx, schema.SetForegroundRequest{TabID: tabID})
	})
}

func (s *Server) handleHibernate(w http.ResponseWriter, r *http.Request) {
	s.tabCommand(w, r, "hibernate", func(ctx context.Context, tabID schema.TabID) (any, error) {
		return s.service.Hibernate(ctx, schema.HibernateRequest{TabID: tabID})
	})
}

func (s *Server) handleWake(w http.ResponseWriter, r *http.Request) {
	s.tabCommand(w, r, "wake", func(ctx context.Context, tabID schema.TabID) (any, error) {
		return s.service.Wake(ctx, schema.WakeRequest{TabID: tabID})
	})
}

// tabCommand handles the shared shape of POST { tab_id } endpoints.
func (s *Server) tabCommand(w http.ResponseWriter, r *http.Request, name string, run func(context.Context, schema.TabID) (any, error)) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	log := logx.Ctx(r.Context())
	var payload struct {
		TabID string `json:"tab_id"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		log.Warn("http "+name+" decode failed", "err", err)
		writeError(w, http.StatusBadRequest, err)
		return
	}
	log = log.With("tab", payload.TabID)
	resp, err := run(r.Context(), schema.TabID(payload.TabID))
	if err != nil {
		log.Warn("http "+name+" failed", "err", err)
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
	log.Info("http " + name + " ok")
}

func (s *Server) handleNavigate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	log := logx.Ctx(r.Context())
	var payload struct {
		TabID      string `json:"tab_id"`
		URL        string `json:"url"`
		Title      string `json:"title"`
		FaviconRef string `json:"favicon_ref"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		log.Warn("http navigate decode failed", "err", err)
		writeError(w, http.StatusBadRequest, err)
		return
	}
	resp, err := s.service.Navigate(r.Context(), schema.NavigateRequest{
		TabID:      schema.TabID(payload.TabID),
		URL:        payload.URL,
		Title:      payload.Title,
		FaviconRef: payload.FaviconRef,
	})
	if err != nil {
		log.Warn("http navigate failed", "err", err, "tab", payload.TabID)
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
	log.Debug("http navigate ok", "tab", resp.Tab.ID)
}

func (s *Server) handlePin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	log := logx.Ctx(r.Context())
	var payload struct {
		TabID  string `json:"tab_id"`
		Pinned bool   `json:"pinned"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		log.Warn("http pin decode failed", "err", err)
		writeError(w, http.StatusBadRequest, err)
		return
	}
	resp, err := s.service.SetPinned(r.Context(), schema.SetPinnedRequest{
		TabID:  schema.TabID(payload.TabID),
		Pinned: payload.Pinned,
	})
	if err != nil {
		log.Warn("http pin failed", "err", err, "tab", payload.TabID)
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
	log.Debug("http pin ok", "tab", resp.Tab.ID, "pinned", payload.Pinned)
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	log := logx.Ctx(r.Context())
	resp, err := s.service.RecentlyClosed(r.Context(), schema.RecentlyClosedRequest{})
	if err != nil {
		log.Warn("http recent failed", "err", err)
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
	log.Debug("http recent ok", "count", len(resp.Tabs))
}

func (s *Server) handleReopen(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	log := logx.Ctx(r.Context())
	var payload struct {
		TabID string `json:"tab_id"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil && !errors.Is(err, io.EOF) {
		log.Warn("http reopen decode failed", "err", err)
		writeError(w, http.StatusBadRequest, err)
		return
	}
	resp, err := s.service.ReopenClosed(r.Context(), schema.ReopenClosedRequest{
		TabID: schema.TabID(payload.TabID),
	})
	if err != nil {
		log.Warn("http reopen failed", "err", err)
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
	log.Info("http reopen ok", "tab", resp.Tab.ID)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errors.New("stream unsupported"))
		return
	}
	log := logx.Ctx(r.Context())

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	lastID := parseUint(r.Header.Get("Last-Event-ID"))

	snapshot := s.buildSnapshot(r.Context())
	_ = writeSSEvent(w, StreamEvent{
		Type:      "snapshot",
		Snapshot:  &snapshot,
		Timestamp: time.Now(),
	})
	flusher.Flush()

	replayCount := 0
	if lastID > 0 {
		replay := s.hub.Replay(lastID)
		replayCount = len(replay)
		for _, event := range replay {
			_ = writeSSEvent(w, event)
		}
		flusher.Flush()
	}

	ch, unsubscribe, _ := s.hub.Subscribe()
	defer unsubscribe()

	notify := r.Context().Done()
	log.Info("http stream opened", "last_id", lastID, "replay", replayCount, "tabs", len(snapshot.Tabs))
	for {
		select {
		case <-notify:
			log.Info("http stream closed")
			return
		case event := <-ch:
			_ = writeSSEvent(w, event)
			flusher.Flush()
		}
	}
}

func (s *Server) buildSnapshot(ctx context.Context) SnapshotPayload {
	resp, err := s.service.Snapshot(ctx, schema.SnapshotRequest{})
	if err != nil {
		return SnapshotPayload{}
	}
	payload := SnapshotPayload{
		Tabs:       resp.Tabs,
		Foreground: resp.Foreground,
		Pressure:   resp.Pressure,
	}
	if recent, err := s.service.RecentlyClosed(ctx, schema.RecentlyClosedRequest{}); err == nil {
		payload.Recent = recent.Tabs
	}
	return payload
}

// statusForError maps service errors onto HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, schema.ErrTabNotFound), errors.Is(err, schema.ErrNothingToReopen):
		return http.StatusNotFound
	case errors.Is(err, schema.ErrTransitionInProgress), errors.Is(err, schema.ErrForegroundTab), errors.Is(err, schema.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, schema.ErrInvalidURL):
		return http.StatusBadRequest
	case errors.Is(err, schema.ErrResourceUnavailable), errors.Is(err, schema.ErrServiceClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, schema.ErrTransitionTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, schema.ErrReleaseFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(body io.Reader, target any) error {
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	data, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func writeSSEvent(w http.ResponseWriter, event StreamEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if event.Seq > 0 {
		_, _ = fmt.Fprintf(w, "id: %d\n", event.Seq)
	}
	_, _ = fmt.Fprintf(w, "data: %s\n\n", strings.TrimSpace(string(data)))
	return nil
}

func parseUint(value string) uint64 {
	if value == "" {
		return 0
	}
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0
	}
	return parsed
}
