package server

import (
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// TestHealthEndpoint verifies the health check responds with plain text.
func TestHealthEndpoint(t *testing.T) {
	_, testServer := newTestRelay(t, nil)

	resp, err := http.Get(testServer.URL + "/")
	if err != nil {
		t.Fatalf("Health request failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/plain" {
		t.Errorf("Content-Type = %q, want text/plain", ct)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "running") {
		t.Errorf("Body = %q, want a running notice", body)
	}
}

// TestMetricsEndpoint verifies Prometheus metrics are exposed.
func TestMetricsEndpoint(t *testing.T) {
	_, testServer := newTestRelay(t, nil)

	resp, err := http.Get(testServer.URL + "/metrics")
	if err != nil {
		t.Fatalf("Metrics request failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "chat_connections_active") {
		t.Error("Metrics output missing chat_connections_active")
	}
}

// TestWebSocketRejectsDisallowedOrigin verifies the upgrade is refused for
// origins outside the configured allow-list.
func TestWebSocketRejectsDisallowedOrigin(t *testing.T) {
	_, testServer := newTestRelay(t, nil)

	header := http.Header{}
	header.Set("Origin", "http://evil.example.com")

	dialer := websocket.Dialer{HandshakeTimeout: 2 * time.Second}
	conn, resp, err := dialer.Dial(wsURL(t, testServer), header)
	if resp != nil {
		_ = resp.Body.Close()
	}
	if err == nil {
		_ = conn.Close()
		t.Fatal("Expected upgrade to be rejected for disallowed origin")
	}
	if resp != nil && resp.StatusCode != http.StatusForbidden {
		t.Errorf("Status = %d, want %d", resp.StatusCode, http.StatusForbidden)
	}
}

// TestCreateServerTimeouts verifies the production timeout defaults.
func TestCreateServerTimeouts(t *testing.T) {
	srv := CreateServer(":0", http.NewServeMux())

	if srv.ReadTimeout != 15*time.Second {
		t.Errorf("ReadTimeout = %s, want 15s", srv.ReadTimeout)
	}
	if srv.WriteTimeout != 15*time.Second {
		t.Errorf("WriteTimeout = %s, want 15s", srv.WriteTimeout)
	}
	if srv.IdleTimeout != 60*time.Second {
		t.Errorf("IdleTimeout = %s, want 60s", srv.IdleTimeout)
	}
}
