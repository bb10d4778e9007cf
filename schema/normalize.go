package schema

import (
	"net/url"
	"strings"
)

// NormalizeURL validates and normalizes a tab url. Scheme-less input is
// given https; only http(s) and about schemes are accepted.
func NormalizeURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", ErrInvalidURL
	}
	if strings.HasPrefix(trimmed, "about:") {
		return trimmed, nil
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", ErrInvalidURL
	}
	switch parsed.Scheme {
	case "http", "https":
	default:
		return "", ErrInvalidURL
	}
	if parsed.Host == "" {
		return "", ErrInvalidURL
	}
	return parsed.String(), nil
}
