// Package client manages a chat client's connection to a chatwire server:
// HTTP login and the WebSocket event stream.
package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/gorilla/websocket"

	"github.com/chatwire/chatwire/pkg/protocol"
)

// EventHandler processes events received from the server.
type EventHandler func(env protocol.Envelope)

// Options configures a Client.
type Options struct {
	ServerURL         string // base URL, e.g. http://localhost:8080
	Username          string
	Token             string // bearer token for the WebSocket
	TLSSkipVerify     bool
	ReconnectInterval time.Duration // default 3s

	// OnStateChange, when set, is called after the connection is established
	// and again when it is lost.
	OnStateChange func(connected bool)
}

// Client manages the WebSocket connection to the server.
type Client struct {
	opts    Options
	handler EventHandler
	logger  *slog.Logger

	mu   sync.Mutex
	conn *websocket.Conn
}

// New creates a client. The handler is invoked for every event received from
// the server, on the connection's read goroutine.
func New(opts Options, handler EventHandler, logger *slog.Logger) *Client {
	if opts.ReconnectInterval <= 0 {
		opts.ReconnectInterval = 3 * time.Second
	}
	return &Client{
		opts:    opts,
		handler: handler,
		logger:  logger.With("component", "client"),
	}
}

// Login authenticates against the server's HTTP API and returns the session
// token together with the logged-in username. The identifier may be a
// username or an email address; the returned username is the canonical one
// to bind the WebSocket with.
func Login(ctx context.Context, serverURL, identifier, password string) (string, string, error) {
	body, err := json.Marshal(map[string]string{
		"username": identifier,
		"password": password,
	})
	if err != nil {
		return "", "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(serverURL, "/")+"/api/auth/login", bytes.NewReader(body))
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("login request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			return "", "", fmt.Errorf("login failed: %s", e.Error)
		}
		return "", "", fmt.Errorf("login failed: status %d", resp.StatusCode)
	}

	var result struct {
		Token string `json:"token"`
		User  struct {
			Username string `json:"username"`
		} `json:"user"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", "", fmt.Errorf("decode login response: %w", err)
	}
	return result.Token, result.User.Username, nil
}

// Register creates an account via the server's HTTP API.
func Register(ctx context.Context, serverURL, email, username, password string) error {
	body, err := json.Marshal(map[string]string{
		"email":    email,
		"username": username,
		"password": password,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(serverURL, "/")+"/api/auth/register", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("register request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			return fmt.Errorf("registration failed: %s", e.Error)
		}
		return fmt.Errorf("registration failed: status %d", resp.StatusCode)
	}
	return nil
}

// Run establishes the WebSocket connection and processes events until the
// context is canceled, reconnecting with a fixed delay on failure.
func (c *Client) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := c.connectOnce(ctx); err != nil && ctx.Err() == nil {
			c.logger.Warn("connection lost", "error", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.opts.ReconnectInterval):
			c.logger.Info("reconnecting", "delay", c.opts.ReconnectInterval)
		}
	}
}

func (c *Client) connectOnce(ctx context.Context) error {
	wsURL, err := websocketURL(c.opts.ServerURL)
	if err != nil {
		return err
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	if c.opts.TLSSkipVerify {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.opts.Token)

	conn, _, err := dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		return fmt.Errorf("dial server: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		conn.Close()
	}()

	// Bind the connection to our username before anything else.
	if err := c.Send(protocol.TypeUserConnected, protocol.UserConnected{Username: c.opts.Username}); err != nil {
		return fmt.Errorf("identify: %w", err)
	}

	c.logger.Info("connected", "url", wsURL, "username", c.opts.Username)
	if c.opts.OnStateChange != nil {
		c.opts.OnStateChange(true)
		defer c.opts.OnStateChange(false)
	}

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"))
			return ctx.Err()
		default:
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read event: %w", err)
		}

		var env protocol.Envelope
		if err := json.Unmarshal(msg, &env); err != nil {
			c.logger.Warn("invalid event from server", "error", err)
			continue
		}

		if c.handler != nil {
			c.handler(env)
		}
	}
}

// Send sends a protocol envelope to the server.
func (c *Client) Send(eventType string, payload any) error {
	env := protocol.Envelope{
		Type:      eventType,
		Timestamp: time.Now(),
		Payload:   payload,
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("not connected")
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Close closes the underlying connection if one is open.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// websocketURL converts a server base URL into the /ws endpoint URL.
func websocketURL(serverURL string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String(), nil
}
