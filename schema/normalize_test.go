package schema

import (
	"errors"
	"testing"
)

func TestNormalizeURLAddsScheme(t *testing.T) {
	got, err := NormalizeURL("example.com/page")
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if got != "https://example.com/page" {
		t.Fatalf("expected https scheme, got %q", got)
	}
}

func TestNormalizeURLKeepsAboutPages(t *testing.T) {
	got, err := NormalizeURL("about:blank")
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if got != "about:blank" {
		t.Fatalf("expected about:blank, got %q", got)
	}
}

func TestNormalizeURLRejectsEmpty(t *testing.T) {
	if _, err := NormalizeURL("   "); !errors.Is(err, ErrInvalidURL) {
		t.Fatalf("expected ErrInvalidURL, got %v", err)
	}
}

func TestNormalizeURLRejectsScheme(t *testing.T) {
	if _, err := NormalizeURL("ftp://example.com"); !errors.Is(err, ErrInvalidURL) {
		t.Fatalf("expected ErrInvalidURL for ftp, got %v", err)
	}
	if _, err := NormalizeURL("javascript:alert(1)"); !errors.Is(err, ErrInvalidURL) {
		t.Fatalf("expected ErrInvalidURL for javascript, got %v", err)
	}
}
