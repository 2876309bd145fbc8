// Package server validates the Origin header of websocket upgrade requests
// against the relay's configured allow-list.
package server

import (
	"log"
	"net/http"
	"net/url"
	"strings"
)

// normalizeOrigins canonicalizes the configured origins and reports whether
// the wildcard entry "*" was present. Entries that do not parse as
// scheme://host are dropped with a warning rather than silently matched.
func normalizeOrigins(origins []string) ([]string, bool) {
	if len(origins) == 0 {
		return nil, false
	}

	allowAll := false
	normalized := make([]string, 0, len(origins))

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		switch {
		case trimmed == "":
			continue
		case trimmed == "*":
			allowAll = true
			continue
		}

		key, ok := originKey(trimmed)
		if !ok {
			log.Printf("Dropping invalid origin from relay configuration: %q", origin)
			continue
		}
		normalized = append(normalized, key)
	}

	return normalized, allowAll
}

// originKey reduces an origin to its lowercase scheme://host form, the shape
// stored in the allow-list.
func originKey(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}
	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}

func isOriginAllowed(r *http.Request) bool {
	header := r.Header.Get("Origin")
	if header == "" {
		return false
	}

	key, ok := originKey(header)
	if !ok {
		return false
	}

	configMu.RLock()
	defer configMu.RUnlock()

	if allowAllOrigins {
		return true
	}
	_, exists := allowedOrigins[key]
	return exists
}

// checkOrigin is the upgrader's origin policy.
func checkOrigin(r *http.Request) bool {
	if isOriginAllowed(r) {
		return true
	}

	log.Printf("Refusing websocket upgrade from disallowed origin %q", r.Header.Get("Origin"))
	return false
}
