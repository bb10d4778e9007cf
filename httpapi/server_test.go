package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"pkt.systems/drowse/core"
	"pkt.systems/drowse/internal/memloader"
	"pkt.systems/drowse/schema"
)

func newTestServer(t *testing.T) (*httptest.Server, core.Service, *Hub) {
	t.Helper()
	service, err := core.NewService(schema.ServiceConfig{StateDir: t.TempDir()}, core.ServiceDeps{
		Loader: memloader.New(0, nil),
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	t.Cleanup(func() { _ = service.Close() })
	hub := NewHub(100)
	srv := NewServer(Config{}, service, hub)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, service, hub
}

func postJSON(t *testing.T, url string, payload any) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, target any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		t.Fatalf("decode body: %v", err)
	}
}

func TestOpenAndListTabs(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/tabs", map[string]any{"url": "https://example.com", "title": "Example"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("open status = %d", resp.StatusCode)
	}
	var opened schema.OpenTabResponse
	decodeBody(t, resp, &opened)
	if opened.Tab.ID == "" || opened.Tab.State != schema.TabStateActive {
		t.Fatalf("unexpected opened tab: %+v", opened.Tab)
	}
	if !opened.Tab.Foreground {
		t.Fatalf("opened tab must be foreground")
	}

	listResp, err := http.Get(ts.URL + "/api/tabs")
	if err != nil {
		t.Fatalf("get tabs: %v", err)
	}
	var snapshot schema.SnapshotResponse
	decodeBody(t, listResp, &snapshot)
	if len(snapshot.Tabs) != 1 || snapshot.Tabs[0].ID != opened.Tab.ID {
		t.Fatalf("unexpected snapshot: %+v", snapshot)
	}
	if snapshot.Foreground != opened.Tab.ID {
		t.Fatalf("expected foreground %s, got %s", opened.Tab.ID, snapshot.Foreground)
	}
}

func TestOpenTabRejectsInvalidURL(t *testing.T) {
	ts, _, _ := newTestServer(t)
	resp := postJSON(t, ts.URL+"/api/tabs", map[string]any{"url": "not a url"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestOpenTabRejectsUnknownFields(t *testing.T) {
	ts, _, _ := newTestServer(t)
	resp := postJSON(t, ts.URL+"/api/tabs", map[string]any{"url": "https://example.com", "bogus": true})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", resp.StatusCode)
	}
}

func TestCloseUnknownTabReportsNotClosed(t *testing.T) {
	ts, _, _ := newTestServer(t)
	resp := postJSON(t, ts.URL+"/api/tabs/close", map[string]any{"tab_id": "missing"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("close status = %d", resp.StatusCode)
	}
	var closed schema.CloseTabResponse
	decodeBody(t, resp, &closed)
	if closed.Closed {
		t.Fatalf("expected Closed=false for unknown id")
	}
}

func TestForegroundUnknownTabIsNotFound(t *testing.T) {
	ts, _, _ := newTestServer(t)
	resp := postJSON(t, ts.URL+"/api/tabs/foreground", map[string]any{"tab_id": "missing"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestHibernateForegroundIsConflict(t *testing.T) {
	ts, _, _ := newTestServer(t)
	resp := postJSON(t, ts.URL+"/api/tabs", map[string]any{"url": "https://example.com"})
	var opened schema.OpenTabResponse
	decodeBody(t, resp, &opened)

	hibResp := postJSON(t, ts.URL+"/api/tabs/hibernate", map[string]any{"tab_id": string(opened.Tab.ID)})
	defer hibResp.Body.Close()
	if hibResp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for foreground hibernate, got %d", hibResp.StatusCode)
	}
}

func TestHibernateAndWakeRoundTrip(t *testing.T) {
	ts, _, _ := newTestServer(t)
	first := postJSON(t, ts.URL+"/api/tabs", map[string]any{"url": "https://one.example.com"})
	var opened schema.OpenTabResponse
	decodeBody(t, first, &opened)
	second := postJSON(t, ts.URL+"/api/tabs", map[string]any{"url": "https://two.example.com"})
	decodeBody(t, second, &schema.OpenTabResponse{})

	hibResp := postJSON(t, ts.URL+"/api/tabs/hibernate", map[string]any{"tab_id": string(opened.Tab.ID)})
	if hibResp.StatusCode != http.StatusOK {
		t.Fatalf("hibernate status = %d", hibResp.StatusCode)
	}
	var hibernated schema.HibernateResponse
	decodeBody(t, hibResp, &hibernated)
	if hibernated.Tab.State != schema.TabStateHibernated {
		t.Fatalf("expected hibernated, got %s", hibernated.Tab.State)
	}

	wakeResp := postJSON(t, ts.URL+"/api/tabs/wake", map[string]any{"tab_id": string(opened.Tab.ID)})
	if wakeResp.StatusCode != http.StatusOK {
		t.Fatalf("wake status = %d", wakeResp.StatusCode)
	}
	var woken schema.WakeResponse
	decodeBody(t, wakeResp, &woken)
	if woken.Tab.State != schema.TabStateActive {
		t.Fatalf("expected active after wake, got %s", woken.Tab.State)
	}
}

func TestReopenEmptyListIsNotFound(t *testing.T) {
	ts, _, _ := newTestServer(t)
	resp := postJSON(t, ts.URL+"/api/recent/reopen", map[string]any{})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 with nothing to reopen, got %d", resp.StatusCode)
	}
}

func TestRecentListsClosedTabs(t *testing.T) {
	ts, _, _ := newTestServer(t)
	openResp := postJSON(t, ts.URL+"/api/tabs", map[string]any{"url": "https://example.com"})
	var opened schema.OpenTabResponse
	decodeBody(t, openResp, &opened)
	closeResp := postJSON(t, ts.URL+"/api/tabs/close", map[string]any{"tab_id": string(opened.Tab.ID)})
	decodeBody(t, closeResp, &schema.CloseTabResponse{})

	resp, err := http.Get(ts.URL + "/api/recent")
	if err != nil {
		t.Fatalf("get recent: %v", err)
	}
	var recent schema.RecentlyClosedResponse
	decodeBody(t, resp, &recent)
	if len(recent.Tabs) != 1 || recent.Tabs[0].URL != "https://example.com" {
		t.Fatalf("unexpected recent list: %+v", recent.Tabs)
	}

	reopenResp := postJSON(t, ts.URL+"/api/recent/reopen", map[string]any{"tab_id": string(recent.Tabs[0].ID)})
	if reopenResp.StatusCode != http.StatusOK {
		t.Fatalf("reopen status = %d", reopenResp.StatusCode)
	}
	var reopened schema.ReopenClosedResponse
	decodeBody(t, reopenResp, &reopened)
	if reopened.Tab.URL != "https://example.com" {
		t.Fatalf("unexpected reopened tab: %+v", reopened.Tab)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	ts, _, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/api/tabs/close")
	if err != nil {
		t.Fatalf("get close: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.StatusCode)
	}
}

func TestBasePathMounting(t *testing.T) {
	service, err := core.NewService(schema.ServiceConfig{StateDir: t.TempDir()}, core.ServiceDeps{
		Loader: memloader.New(0, nil),
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	t.Cleanup(func() { _ = service.Close() })
	srv := NewServer(Config{BasePath: "/drowse"}, service, NewHub(10))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	resp, err := http.Get(ts.URL + "/drowse/api/tabs")
	if err != nil {
		t.Fatalf("get prefixed tabs: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 under base path, got %d", resp.StatusCode)
	}

	bare, err := http.Get(ts.URL + "/api/tabs")
	if err != nil {
		t.Fatalf("get bare tabs: %v", err)
	}
	defer bare.Body.Close()
	if bare.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 outside base path, got %d", bare.StatusCode)
	}
}

func TestStatusForError(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{schema.ErrTabNotFound, http.StatusNotFound},
		{schema.ErrNothingToReopen, http.StatusNotFound},
		{schema.ErrTransitionInProgress, http.StatusConflict},
		{schema.ErrForegroundTab, http.StatusConflict},
		{schema.ErrInvalidState, http.StatusConflict},
		{schema.ErrInvalidURL, http.StatusBadRequest},
		{schema.ErrResourceUnavailable, http.StatusServiceUnavailable},
		{schema.ErrServiceClosed, http.StatusServiceUnavailable},
		{schema.ErrTransitionTimeout, http.StatusGatewayTimeout},
		{schema.ErrReleaseFailed, http.StatusBadGateway},
		{fmt.Errorf("wrapped: %w", schema.ErrTabNotFound), http.StatusNotFound},
	}
	for _, tc := range cases {
		if got := statusForError(tc.err); got != tc.want {
			t.Fatalf("statusForError(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}
