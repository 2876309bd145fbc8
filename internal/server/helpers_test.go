package server

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

const testPasskey = "secure123"

// newTestRelay starts a hub with fresh injected state behind an httptest
// server and points the active configuration at it. Cleanup restores the
// default configuration and shuts the hub down.
func newTestRelay(t *testing.T, customize func(cfg *Config)) (*Hub, *httptest.Server) {
	t.Helper()

	registry := NewConnectionRegistry()
	store := NewMessageStore()
	hub := NewHub(registry, store)
	go hub.Run()

	// Routes capture the upload directory at setup time, so the
	// configuration must be in place before the router is built. The test
	// server's own URL only becomes known afterwards; origins are checked
	// per request, so re-applying the config then is enough.
	cfg := NewConfig()
	cfg.Passkey = testPasskey
	if customize != nil {
		customize(cfg)
	}
	SetConfig(cfg)

	testServer := httptest.NewServer(SetupRoutes(hub))
	cfg.AllowedOrigins = append([]string{testServer.URL}, cfg.AllowedOrigins...)
	SetConfig(cfg)

	t.Cleanup(func() {
		testServer.Close()
		if err := hub.Shutdown(2 * time.Second); err != nil {
			t.Logf("hub shutdown: %v", err)
		}
		SetConfig(nil)
	})

	return hub, testServer
}

func wsURL(t *testing.T, testServer *httptest.Server) string {
	t.Helper()
	u, err := url.Parse(testServer.URL)
	if err != nil {
		t.Fatalf("Failed to parse test server URL: %v", err)
	}
	u.Scheme = "ws"
	u.Path = "/ws"
	return u.String()
}

func dialRelay(t *testing.T, testServer *httptest.Server) *websocket.Conn {
	t.Helper()

	header := http.Header{}
	header.Set("Origin", testServer.URL)

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(t, testServer), header)
	if resp != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("Failed to connect to WebSocket: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func sendEvent(t *testing.T, conn *websocket.Conn, event string, payload any) {
	t.Helper()

	data, err := EncodeEvent(event, payload)
	if err != nil {
		t.Fatalf("Failed to encode %s event: %v", event, err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("Failed to send %s event: %v", event, err)
	}
}

func readEnvelope(t *testing.T, conn *websocket.Conn, timeout time.Duration) (Envelope, bool) {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	_, raw, err := conn.ReadMessage()
	if err != nil {
		return Envelope{}, false
	}
	env, err := DecodeEnvelope(raw)
	if err != nil {
		t.Fatalf("Received undecodable frame: %v", err)
	}
	return env, true
}

// waitForEvent reads frames until one carries the named event, skipping any
// others that arrive first.
func waitForEvent(t *testing.T, conn *websocket.Conn, event string) Envelope {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		env, ok := readEnvelope(t, conn, time.Until(deadline))
		if !ok {
			break
		}
		if env.Event == event {
			return env
		}
	}
	t.Fatalf("Timed out waiting for %s event", event)
	return Envelope{}
}

// expectNoEvent asserts that the named event does not arrive within the
// timeout. Other events are read and ignored.
func expectNoEvent(t *testing.T, conn *websocket.Conn, event string, timeout time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		env, ok := readEnvelope(t, conn, time.Until(deadline))
		if !ok {
			return
		}
		if env.Event == event {
			t.Fatalf("Expected no %s event, but received one", event)
		}
	}
}

// authenticate performs the login handshake and waits for the chat history
// that confirms registration.
func authenticate(t *testing.T, conn *websocket.Conn, username, room string) HistoryPayload {
	t.Helper()

	sendEvent(t, conn, EventAuthenticate, AuthenticatePayload{
		Passkey:  testPasskey,
		Username: username,
		Room:     room,
	})

	env := waitForEvent(t, conn, EventChatHistory)
	var history HistoryPayload
	if err := env.DecodePayload(&history); err != nil {
		t.Fatalf("Failed to decode chat_history payload: %v", err)
	}
	return history
}

func decodeMessage(t *testing.T, env Envelope) Message {
	t.Helper()

	var msg Message
	if err := env.DecodePayload(&msg); err != nil {
		t.Fatalf("Failed to decode %s payload: %v", env.Event, err)
	}
	return msg
}

func usernames(users []Identity) []string {
	names := make([]string, 0, len(users))
	for _, user := range users {
		names = append(names, user.Username)
	}
	return names
}
