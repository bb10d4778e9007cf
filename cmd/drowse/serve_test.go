package main

import (
	"testing"

	"pkt.systems/drowse/internal/appconfig"
)

func TestSelectLoaderMemory(t *testing.T) {
	cfg := appconfig.Config{Browser: appconfig.BrowserConfig{Backend: "memory"}}
	loader, closeFn, err := selectLoader(cfg, nil)
	if err != nil {
		t.Fatalf("selectLoader: %v", err)
	}
	if loader == nil {
		t.Fatalf("expected loader")
	}
	if closeFn != nil {
		t.Fatalf("memory backend needs no close func")
	}
}

func TestSelectLoaderRejectsUnknownBackend(t *testing.T) {
	cfg := appconfig.Config{Browser: appconfig.BrowserConfig{Backend: "firefox"}}
	if _, _, err := selectLoader(cfg, nil); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}
