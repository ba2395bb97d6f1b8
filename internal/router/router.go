// Package router manages WebSocket connections for chat clients and routes
// messages, presence and typing signals between them.
package router

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/chatwire/chatwire/internal/auth"
	"github.com/chatwire/chatwire/internal/store"
	"github.com/chatwire/chatwire/pkg/protocol"
)

// makeUpgrader creates a WebSocket upgrader with origin checking.
func makeUpgrader(allowedOrigins []string) websocket.Upgrader {
	allowAll := len(allowedOrigins) == 0 || (len(allowedOrigins) == 1 && allowedOrigins[0] == "*")
	originSet := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		originSet[o] = true
	}

	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if allowAll {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true // non-browser clients
			}
			return originSet[origin]
		},
	}
}

// Router owns all live WebSocket connections and the in-memory presence and
// room state derived from them.
type Router struct {
	store        store.Store
	authProvider auth.Provider
	logger       *slog.Logger
	upgrader     websocket.Upgrader

	historyLimit    int
	maxMessageSize  int64
	maxConnsPerUser int

	mu          sync.RWMutex
	clients     map[string]*clientConn            // conn_id -> conn
	connsByUser map[string]map[string]*clientConn // username -> conn_id -> conn (identified only)
	rooms       map[string]map[string]*clientConn // room_id -> conn_id -> conn
}

// clientConn is one upgraded WebSocket connection. A connection starts
// anonymous and becomes identified after a valid user_connected event; the
// identified flag is only touched from the connection's own read loop.
type clientConn struct {
	id         string
	userID     string
	username   string // token subject
	identified bool
	conn       *websocket.Conn

	mu          sync.Mutex // guards writes, rate limiter and lastSeen
	msgTokens   float64
	msgLastTime time.Time
	lastSeen    time.Time
}

// Options configures the Router.
type Options struct {
	AllowedOrigins  []string // for WebSocket origin check
	HistoryLimit    int      // group history size on join (default 100)
	MaxMessageBytes int64    // max WebSocket message size from clients (default 64KB)
	MaxConnsPerUser int      // default 8
}

// New creates a new Router.
func New(s store.Store, ap auth.Provider, logger *slog.Logger, opts Options) *Router {
	historyLimit := opts.HistoryLimit
	if historyLimit == 0 {
		historyLimit = 100
	}
	msgLimit := opts.MaxMessageBytes
	if msgLimit == 0 {
		msgLimit = 64 * 1024 // 64KB default
	}
	maxConnsPerUser := opts.MaxConnsPerUser
	if maxConnsPerUser == 0 {
		maxConnsPerUser = 8
	}

	return &Router{
		store:           s,
		authProvider:    ap,
		logger:          logger.With("component", "router"),
		upgrader:        makeUpgrader(opts.AllowedOrigins),
		historyLimit:    historyLimit,
		maxMessageSize:  msgLimit,
		maxConnsPerUser: maxConnsPerUser,
		clients:         make(map[string]*clientConn),
		connsByUser:     make(map[string]map[string]*clientConn),
		rooms:           make(map[string]map[string]*clientConn),
	}
}

// HandleWS handles WebSocket connections from chat clients.
func (r *Router) HandleWS(w http.ResponseWriter, req *http.Request) {
	// Extract JWT from query param or Authorization header.
	// JWT in a query parameter is required for WebSocket connections since
	// browsers cannot set custom headers during the handshake. Ensure access
	// logs exclude query parameters to prevent token leakage.
	tokenStr := req.URL.Query().Get("token")
	if tokenStr == "" {
		tokenStr = req.Header.Get("Authorization")
		if len(tokenStr) > 7 && tokenStr[:7] == "Bearer " {
			tokenStr = tokenStr[7:]
		}
	}

	identity, err := r.authProvider.ValidateToken(req.Context(), tokenStr)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	// Count every live socket opened with this token subject, identified or
	// not, so a client cannot hold extra connections by skipping the
	// user_connected handshake.
	r.mu.RLock()
	userConns := 0
	for _, other := range r.clients {
		if other.username == identity.Username {
			userConns++
		}
	}
	r.mu.RUnlock()
	if userConns >= r.maxConnsPerUser {
		r.logger.Warn("too many WebSocket connections for user", "user", identity.Username, "limit", r.maxConnsPerUser)
		http.Error(w, "too many connections", http.StatusTooManyRequests)
		return
	}

	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	connID := uuid.New().String()
	cc := &clientConn{
		id:       connID,
		userID:   identity.UserID,
		username: identity.Username,
		conn:     conn,
		lastSeen: time.Now(),
	}

	r.mu.Lock()
	r.clients[connID] = cc
	r.mu.Unlock()

	conn.SetReadLimit(r.maxMessageSize)

	r.logger.Info("client connected", "user", identity.Username, "conn_id", connID)

	// Disconnect cleanup runs exactly once regardless of how the read loop
	// ends: drop room subscriptions, unbind the identity, and announce the
	// user offline if this was their last connection.
	defer func() {
		r.mu.Lock()
		delete(r.clients, connID)
		for roomID, conns := range r.rooms {
			delete(conns, connID)
			if len(conns) == 0 {
				delete(r.rooms, roomID)
			}
		}
		r.mu.Unlock()

		if cc.identified && r.unbindUser(cc) {
			r.broadcastPresence()
		}
		r.logger.Info("client disconnected", "user", identity.Username, "conn_id", connID)
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			r.logger.Debug("client read error", "conn_id", connID, "error", err)
			return
		}

		cc.touch()

		if !cc.allowMessage() {
			r.logger.Debug("client message rate limited", "conn_id", connID)
			continue
		}

		var env protocol.Envelope
		if err := json.Unmarshal(msg, &env); err != nil {
			r.logger.Warn("invalid message from client", "conn_id", connID, "error", err)
			continue
		}

		if !r.handleClientMessage(cc, env) {
			return
		}
	}
}

// handleClientMessage processes one inbound event. Returns false when the
// connection must be closed.
func (r *Router) handleClientMessage(cc *clientConn, env protocol.Envelope) bool {
	if env.Type != protocol.TypeUserConnected && !cc.identified {
		r.sendError(cc, "unauthorized", "not authenticated")
		return true
	}

	switch env.Type {
	case protocol.TypeUserConnected:
		var msg protocol.UserConnected
		decodePayload(env.Payload, &msg)

		if cc.identified {
			r.sendError(cc, "validation_failure", "already identified")
			return true
		}
		if msg.Username == "" {
			r.sendError(cc, "validation_failure", "username is required")
			return true
		}
		// The announced username must match the token the socket was
		// opened with; a mismatch is a spoofing attempt.
		if msg.Username != cc.username {
			r.sendError(cc, "unauthorized", "username does not match token")
			return false
		}

		cc.identified = true
		wentOnline := r.bindUser(cc)
		if wentOnline {
			r.broadcastPresence()
		} else {
			r.sendToClient(cc, protocol.TypeUsersOnline, protocol.UsersOnline{Users: r.OnlineUsers()})
		}

	case protocol.TypeJoinPrivateChat:
		var msg protocol.JoinPrivateChat
		decodePayload(env.Payload, &msg)
		if msg.OtherUser == "" {
			r.sendError(cc, "validation_failure", "otherUser is required")
			return true
		}
		// No membership check: any two users may open a private room.
		r.joinRoom(PrivateRoomID(cc.username, msg.OtherUser), cc)

	case protocol.TypeJoinGroup:
		var msg protocol.JoinGroup
		decodePayload(env.Payload, &msg)
		if msg.Group == "" {
			r.sendError(cc, "validation_failure", "group is required")
			return true
		}

		ctx := context.Background()
		group, err := r.store.GetGroup(ctx, msg.Group)
		if err != nil {
			r.sendError(cc, "persistence_failure", "failed to load group")
			return true
		}
		if group == nil {
			r.sendError(cc, "not_found", "group not found")
			return true
		}
		member, err := r.store.IsGroupMember(ctx, msg.Group, cc.username)
		if err != nil {
			r.sendError(cc, "persistence_failure", "failed to check membership")
			return true
		}
		if !member {
			r.sendError(cc, "unauthorized", "not a member of this group")
			return true
		}

		r.joinRoom(groupRoomID(msg.Group), cc)

		msgs, err := r.store.ListGroupMessages(ctx, msg.Group, r.historyLimit)
		if err != nil {
			r.sendError(cc, "persistence_failure", "failed to load history")
			return true
		}
		r.sendToClient(cc, protocol.TypeGroupChatHistory, protocol.GroupChatHistory{
			Group:    msg.Group,
			Messages: toChatMessages(msgs),
		})

	case protocol.TypeLeaveGroup:
		var msg protocol.LeaveGroup
		decodePayload(env.Payload, &msg)
		r.leaveRoom(groupRoomID(msg.Group), cc)

	case protocol.TypeSendPrivateMessage:
		var msg protocol.SendPrivateMessage
		decodePayload(env.Payload, &msg)
		if msg.Receiver == "" || msg.Message == "" {
			r.sendError(cc, "validation_failure", "receiver and message are required")
			return true
		}
		if msg.Sender != "" && msg.Sender != cc.username {
			r.sendError(cc, "unauthorized", "sender does not match identity")
			return true
		}

		stored := &store.Message{
			ID:        uuid.New().String(),
			Sender:    cc.username,
			Receiver:  msg.Receiver,
			Body:      msg.Message,
			CreatedAt: time.Now(),
		}
		if err := r.store.AppendMessage(context.Background(), stored); err != nil {
			r.logger.Warn("persist private message failed", "sender", cc.username, "error", err)
			r.sendError(cc, "persistence_failure", "failed to persist message")
			return true
		}

		// Deliver to every live connection of the receiver, and echo to all
		// of the sender's own connections so every open session sees it.
		out := toChatMessage(stored)
		for _, target := range r.connsForUser(msg.Receiver) {
			r.sendToClient(target, protocol.TypeReceivePrivateMessage, out)
		}
		for _, target := range r.connsForUser(cc.username) {
			r.sendToClient(target, protocol.TypeReceivePrivateMessage, out)
		}

	case protocol.TypeSendGroupMessage:
		var msg protocol.SendGroupMessage
		decodePayload(env.Payload, &msg)
		if msg.Group == "" || msg.Message == "" {
			r.sendError(cc, "validation_failure", "group and message are required")
			return true
		}
		if msg.Sender != "" && msg.Sender != cc.username {
			r.sendError(cc, "unauthorized", "sender does not match identity")
			return true
		}

		// Membership is re-checked against the store on every send, not the
		// in-memory room: a user removed after joining loses send rights
		// immediately.
		ctx := context.Background()
		member, err := r.store.IsGroupMember(ctx, msg.Group, cc.username)
		if err != nil {
			r.sendError(cc, "persistence_failure", "failed to check membership")
			return true
		}
		if !member {
			r.sendError(cc, "unauthorized", "not authorized to send message to this group")
			return true
		}

		stored := &store.Message{
			ID:        uuid.New().String(),
			Sender:    cc.username,
			Group:     msg.Group,
			Body:      msg.Message,
			CreatedAt: time.Now(),
		}
		if err := r.store.AppendMessage(ctx, stored); err != nil {
			r.logger.Warn("persist group message failed", "sender", cc.username, "group", msg.Group, "error", err)
			r.sendError(cc, "persistence_failure", "failed to persist message")
			return true
		}

		out := toChatMessage(stored)
		for _, target := range r.roomConns(groupRoomID(msg.Group)) {
			r.sendToClient(target, protocol.TypeReceiveGroupMessage, out)
		}

	case protocol.TypeTyping, protocol.TypeStopTyping:
		var msg protocol.TypingSignal
		decodePayload(env.Payload, &msg)
		if msg.Receiver == "" {
			return true
		}
		outType := protocol.TypeUserTyping
		if env.Type == protocol.TypeStopTyping {
			outType = protocol.TypeUserStoppedTyping
		}
		for _, target := range r.connsForUser(msg.Receiver) {
			r.sendToClient(target, outType, protocol.UserTyping{Sender: cc.username})
		}

	case protocol.TypeTypingGroup, protocol.TypeStopTypingGroup:
		var msg protocol.GroupTypingSignal
		decodePayload(env.Payload, &msg)
		if msg.Group == "" {
			return true
		}
		outType := protocol.TypeUserTypingGroup
		if env.Type == protocol.TypeStopTypingGroup {
			outType = protocol.TypeUserStoppedTypingGroup
		}
		// All of the sender's own connections are excluded, not just the
		// one the signal arrived on.
		for _, target := range r.roomConns(groupRoomID(msg.Group)) {
			if target.username == cc.username {
				continue
			}
			r.sendToClient(target, outType, protocol.UserTypingGroup{Sender: cc.username, Group: msg.Group})
		}

	default:
		r.logger.Warn("unknown client message type", "type", env.Type, "user", cc.username)
	}

	return true
}

// allowMessage is a per-connection token bucket limiting inbound event rate.
func (cc *clientConn) allowMessage() bool {
	const rate = 30.0  // messages per second
	const burst = 50.0 // max burst

	now := time.Now()
	cc.mu.Lock()
	defer cc.mu.Unlock()

	if cc.msgLastTime.IsZero() {
		cc.msgTokens = burst
		cc.msgLastTime = now
	}

	elapsed := now.Sub(cc.msgLastTime).Seconds()
	cc.msgTokens += elapsed * rate
	if cc.msgTokens > burst {
		cc.msgTokens = burst
	}
	cc.msgLastTime = now

	if cc.msgTokens < 1 {
		return false
	}
	cc.msgTokens--
	return true
}

func (cc *clientConn) touch() {
	cc.mu.Lock()
	cc.lastSeen = time.Now()
	cc.mu.Unlock()
}

func (cc *clientConn) idleSince() time.Time {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.lastSeen
}

func (r *Router) sendToClient(cc *clientConn, msgType string, payload any) {
	env := protocol.Envelope{
		Type:      msgType,
		Timestamp: time.Now(),
		Payload:   payload,
	}

	data, err := json.Marshal(env)
	if err != nil {
		return
	}

	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.conn.WriteMessage(websocket.TextMessage, data)
}

func (r *Router) sendError(cc *clientConn, code, message string) {
	r.sendToClient(cc, protocol.TypeError, protocol.ErrorResponse{Code: code, Message: message})
}

// StartIdleReaper starts a background goroutine that closes connections
// silent longer than timeout.
func (r *Router) StartIdleReaper(ctx context.Context, timeout time.Duration) {
	if timeout <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(1 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cutoff := time.Now().Add(-timeout)

				r.mu.RLock()
				stale := make([]*clientConn, 0)
				for _, cc := range r.clients {
					if cc.idleSince().Before(cutoff) {
						stale = append(stale, cc)
					}
				}
				r.mu.RUnlock()

				for _, cc := range stale {
					r.logger.Info("idle reaper: closing connection", "conn_id", cc.id, "user", cc.username)
					cc.conn.Close()
				}
			}
		}
	}()
}

// decodePayload re-marshals an envelope payload into a typed struct.
func decodePayload(payload any, v any) {
	data, _ := json.Marshal(payload)
	json.Unmarshal(data, v)
}

func toChatMessage(m *store.Message) protocol.ChatMessage {
	return protocol.ChatMessage{
		ID:        m.ID,
		Sender:    m.Sender,
		Receiver:  m.Receiver,
		Group:     m.Group,
		Message:   m.Body,
		Timestamp: m.CreatedAt,
	}
}

func toChatMessages(msgs []store.Message) []protocol.ChatMessage {
	out := make([]protocol.ChatMessage, len(msgs))
	for i := range msgs {
		out[i] = toChatMessage(&msgs[i])
	}
	return out
}
