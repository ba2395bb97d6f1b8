package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"log/slog"

	"github.com/gorilla/websocket"

	"github.com/chatwire/chatwire/pkg/protocol"
)

func TestWebsocketURL(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"http://localhost:8080", "ws://localhost:8080/ws", false},
		{"https://chat.example.com", "wss://chat.example.com/ws", false},
		{"http://localhost:8080/", "ws://localhost:8080/ws", false},
		{"ftp://example.com", "", true},
	}
	for _, tc := range tests {
		got, err := websocketURL(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("websocketURL(%q) expected error, got %q", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("websocketURL(%q) error: %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("websocketURL(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestLogin(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/auth/login" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if req["password"] != "goodpassword" {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid credentials"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"token": "tok-123",
			"user":  map[string]string{"username": "alice"},
		})
	}))
	defer srv.Close()

	token, username, err := Login(context.Background(), srv.URL, "alice", "goodpassword")
	if err != nil {
		t.Fatalf("Login() error: %v", err)
	}
	if token != "tok-123" {
		t.Errorf("token = %q, want %q", token, "tok-123")
	}
	if username != "alice" {
		t.Errorf("username = %q, want %q", username, "alice")
	}

	// Logging in by email yields the canonical username for the identify
	// handshake.
	_, username, err = Login(context.Background(), srv.URL, "alice@example.com", "goodpassword")
	if err != nil {
		t.Fatalf("Login() by email error: %v", err)
	}
	if username != "alice" {
		t.Errorf("username = %q, want %q", username, "alice")
	}

	_, _, err = Login(context.Background(), srv.URL, "alice", "badpassword")
	if err == nil {
		t.Fatal("expected error for bad password")
	}
}

func TestClientConnectAndSend(t *testing.T) {
	upgrader := websocket.Upgrader{}
	received := make(chan protocol.Envelope, 4)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-abc" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// First event must be the identify.
		var env protocol.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			return
		}
		received <- env

		// Reply with a presence snapshot.
		_ = conn.WriteJSON(protocol.Envelope{
			Type:      protocol.TypeUsersOnline,
			Timestamp: time.Now(),
			Payload:   protocol.UsersOnline{Users: []string{"alice"}},
		})

		// Hold the connection open until the client disconnects.
		for {
			if err := conn.ReadJSON(&env); err != nil {
				return
			}
			received <- env
		}
	}))
	defer srv.Close()

	events := make(chan protocol.Envelope, 4)
	c := New(Options{
		ServerURL: srv.URL,
		Username:  "alice",
		Token:     "tok-abc",
	}, func(env protocol.Envelope) {
		events <- env
	}, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = c.Run(ctx) }()

	// Server sees the identify event.
	select {
	case env := <-received:
		if env.Type != protocol.TypeUserConnected {
			t.Fatalf("first event = %q, want %q", env.Type, protocol.TypeUserConnected)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for identify event")
	}

	// Client handler sees the presence snapshot.
	select {
	case env := <-events:
		if env.Type != protocol.TypeUsersOnline {
			t.Fatalf("handler event = %q, want %q", env.Type, protocol.TypeUsersOnline)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for presence event")
	}

	// Sending after connect reaches the server.
	if err := c.Send(protocol.TypeSendPrivateMessage, protocol.SendPrivateMessage{
		Receiver: "bob",
		Message:  "hi",
	}); err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	select {
	case env := <-received:
		if env.Type != protocol.TypeSendPrivateMessage {
			t.Fatalf("server event = %q, want %q", env.Type, protocol.TypeSendPrivateMessage)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for message event")
	}
}

func TestSendNotConnected(t *testing.T) {
	c := New(Options{ServerURL: "http://localhost:0", Username: "x", Token: "t"}, nil, slog.Default())
	if err := c.Send(protocol.TypeTyping, protocol.TypingSignal{Receiver: "bob"}); err == nil {
		t.Fatal("expected error when not connected")
	}
}
