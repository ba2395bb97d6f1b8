// Package api provides the HTTP API and middleware for the chat server.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"log/slog"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/chatwire/chatwire/internal/auth"
	"github.com/chatwire/chatwire/internal/config"
	"github.com/chatwire/chatwire/internal/router"
	"github.com/chatwire/chatwire/internal/store"
)

// Server is the HTTP API server.
type Server struct {
	store         store.Store
	authProvider  auth.Provider
	loginProvider auth.LoginProvider
	router        *router.Router
	logger        *slog.Logger
	mux           *chi.Mux
	startTime     time.Time
	maxBodyBytes  int64
	historyLimit  int
	loginRL       *rateLimiter
	rl            *rateLimiter
}

// NewServer creates a new API server.
func NewServer(s store.Store, ap auth.Provider, lp auth.LoginProvider, rt *router.Router, cfg *config.Config, logger *slog.Logger) *Server {
	srv := &Server{
		store:         s,
		authProvider:  ap,
		loginProvider: lp,
		router:        rt,
		logger:        logger.With("component", "api"),
		startTime:     time.Now(),
		maxBodyBytes:  cfg.Server.MaxBodyBytes,
		historyLimit:  cfg.Chat.HistoryLimit,
	}

	mux := chi.NewRouter()
	mux.Use(chimw.Recoverer)
	mux.Use(chimw.RealIP)
	mux.Use(securityHeadersMiddleware)
	mux.Use(makeCORSMiddleware(cfg.Server.AllowedOrigins))

	// Health check routes (unauthenticated)
	mux.Get("/healthz", srv.handleHealthz)
	mux.Get("/readyz", srv.handleReadyz)

	// Auth config endpoint (unauthenticated)
	mux.Get("/api/auth/config", srv.handleAuthConfig)

	// Login and registration only registered when using builtin auth.
	if lp != nil {
		srv.loginRL = newRateLimiter(5, 10)
		mux.With(loginIPRateLimitMiddleware(srv.loginRL)).Post("/api/auth/login", srv.handleLogin)
		mux.With(loginIPRateLimitMiddleware(srv.loginRL)).Post("/api/auth/register", srv.handleRegister)
	}

	// WebSocket route (auth handled inside)
	mux.Get("/ws", rt.HandleWS)

	// Authenticated API routes
	srv.rl = newRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	mux.Group(func(r chi.Router) {
		r.Use(srv.authMiddleware)
		r.Use(rateLimitMiddleware(srv.rl))

		r.Get("/api/me", srv.handleGetMe)
		r.Get("/api/users", srv.handleListUsers)
		r.Get("/api/messages", srv.handleListMessages)
		r.Get("/api/messages/unread", srv.handleUnreadCounts)
		r.Put("/api/messages/read/{sender}", srv.handleMarkRead)
		r.Get("/api/groups", srv.handleListGroups)
		r.Post("/api/groups", srv.handleCreateGroup)
		r.Post("/api/groups/{name}/members", srv.handleAddGroupMember)
		r.Delete("/api/groups/{name}/members/{username}", srv.handleRemoveGroupMember)
		r.Get("/api/groups/{name}/messages", srv.handleListGroupMessages)
		r.Get("/api/groups/{name}/unread", srv.handleGroupUnreadCount)
		r.Put("/api/groups/{name}/messages/read", srv.handleMarkGroupRead)
	})

	srv.mux = mux
	return srv
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// StartBackgroundTasks starts periodic cleanup tasks for rate limiters.
func (s *Server) StartBackgroundTasks(ctx context.Context) {
	if s.loginRL != nil {
		s.loginRL.StartCleanup(ctx, 5*time.Minute, 10*time.Minute)
	}
	if s.rl != nil {
		s.rl.StartCleanup(ctx, 5*time.Minute, 10*time.Minute)
	}
}

// --- Health handlers ---

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"uptime": time.Since(s.startTime).Truncate(time.Second).String(),
	})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// --- Auth handlers ---

func (s *Server) handleAuthConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"provider": s.authProvider.Name()})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
	// The username field accepts either a username or an email address.
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Username) < 3 || len(req.Username) > 254 {
		writeError(w, http.StatusBadRequest, "username or email must be 3-254 characters")
		return
	}

	token, user, err := s.loginProvider.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		s.logger.Info("login failed", "username", req.Username)
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"token": token,
		"user":  user,
	})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
	var req struct {
		Email    string `json:"email"`
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Username) < 3 || len(req.Username) > 64 {
		writeError(w, http.StatusBadRequest, "username must be 3-64 characters")
		return
	}
	if len(req.Password) < 8 || len(req.Password) > 128 {
		writeError(w, http.StatusBadRequest, "password must be 8-128 characters")
		return
	}
	if !strings.Contains(req.Email, "@") {
		writeError(w, http.StatusBadRequest, "invalid email address")
		return
	}

	user, err := s.loginProvider.Register(r.Context(), req.Email, req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrUserExists) {
			writeError(w, http.StatusConflict, "username or email already taken")
			return
		}
		s.logger.Error("registration failed", "username", req.Username, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create account")
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

func (s *Server) handleGetMe(w http.ResponseWriter, r *http.Request) {
	identity := getIdentityFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{
		"id":       identity.UserID,
		"username": identity.Username,
	})
}

// --- User handlers ---

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.store.ListUsers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list users")
		return
	}
	if users == nil {
		users = []store.User{}
	}

	online := s.router.OnlineUsers()
	onlineSet := make(map[string]bool, len(online))
	for _, u := range online {
		onlineSet[u] = true
	}

	type userResponse struct {
		store.User
		Online bool `json:"online"`
	}
	result := make([]userResponse, len(users))
	for i, u := range users {
		result[i] = userResponse{User: u, Online: onlineSet[u.Username]}
	}

	writeJSON(w, http.StatusOK, result)
}

// --- Message handlers ---

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	identity := getIdentityFromContext(r.Context())

	other := r.URL.Query().Get("with")
	if other == "" {
		writeError(w, http.StatusBadRequest, "missing 'with' query parameter")
		return
	}

	limit := s.parseLimit(r)
	messages, err := s.store.ListPrivateMessages(r.Context(), identity.Username, other, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list messages")
		return
	}
	if messages == nil {
		messages = []store.Message{}
	}
	writeJSON(w, http.StatusOK, messages)
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	identity := getIdentityFromContext(r.Context())
	sender := chi.URLParam(r, "sender")

	updated, err := s.store.MarkConversationRead(r.Context(), sender, identity.Username)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to mark messages read")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"updated": updated})
}

func (s *Server) handleUnreadCounts(w http.ResponseWriter, r *http.Request) {
	identity := getIdentityFromContext(r.Context())

	counts, err := s.store.CountUnread(r.Context(), identity.Username)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to count unread messages")
		return
	}
	if counts == nil {
		counts = map[string]int{}
	}
	writeJSON(w, http.StatusOK, counts)
}

// --- Group handlers ---

func (s *Server) handleListGroups(w http.ResponseWriter, r *http.Request) {
	var (
		groups []store.Group
		err    error
	)
	if member := r.URL.Query().Get("member"); member != "" {
		groups, err = s.store.ListGroupsForUser(r.Context(), member)
	} else {
		groups, err = s.store.ListGroups(r.Context())
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list groups")
		return
	}
	if groups == nil {
		groups = []store.Group{}
	}
	writeJSON(w, http.StatusOK, groups)
}

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
	identity := getIdentityFromContext(r.Context())

	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Name) < 1 || len(req.Name) > 64 {
		writeError(w, http.StatusBadRequest, "group name must be 1-64 characters")
		return
	}

	existing, err := s.store.GetGroup(r.Context(), req.Name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to check group")
		return
	}
	if existing != nil {
		writeError(w, http.StatusConflict, "group already exists")
		return
	}

	group := &store.Group{
		Name:      req.Name,
		Admin:     identity.Username,
		CreatedAt: time.Now(),
	}
	if err := s.store.CreateGroup(r.Context(), group); err != nil {
		s.logger.Error("failed to create group", "group", req.Name, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create group")
		return
	}

	s.logger.Info("group created", "group", req.Name, "admin", identity.Username)
	writeJSON(w, http.StatusCreated, group)
}

func (s *Server) handleAddGroupMember(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
	identity := getIdentityFromContext(r.Context())
	name := chi.URLParam(r, "name")

	var req struct {
		Username string `json:"username"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	group, err := s.store.GetGroup(r.Context(), name)
	if err != nil || group == nil {
		writeError(w, http.StatusNotFound, "group not found")
		return
	}
	if group.Admin != identity.Username {
		writeError(w, http.StatusForbidden, "only the group admin can add members")
		return
	}

	user, err := s.store.GetUserByUsername(r.Context(), req.Username)
	if err != nil || user == nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}

	if err := s.store.AddGroupMember(r.Context(), name, req.Username); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to add member")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "added"})
}

func (s *Server) handleRemoveGroupMember(w http.ResponseWriter, r *http.Request) {
	identity := getIdentityFromContext(r.Context())
	name := chi.URLParam(r, "name")
	username := chi.URLParam(r, "username")

	group, err := s.store.GetGroup(r.Context(), name)
	if err != nil || group == nil {
		writeError(w, http.StatusNotFound, "group not found")
		return
	}
	// Members may remove themselves; only the admin removes others.
	if group.Admin != identity.Username && username != identity.Username {
		writeError(w, http.StatusForbidden, "only the group admin can remove members")
		return
	}
	if username == group.Admin {
		writeError(w, http.StatusBadRequest, "cannot remove the group admin")
		return
	}

	if err := s.store.RemoveGroupMember(r.Context(), name, username); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to remove member")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (s *Server) handleListGroupMessages(w http.ResponseWriter, r *http.Request) {
	identity := getIdentityFromContext(r.Context())
	name := chi.URLParam(r, "name")

	group, err := s.store.GetGroup(r.Context(), name)
	if err != nil || group == nil {
		writeError(w, http.StatusNotFound, "group not found")
		return
	}
	member, err := s.store.IsGroupMember(r.Context(), name, identity.Username)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to check membership")
		return
	}
	if !member {
		writeError(w, http.StatusForbidden, "not a member of this group")
		return
	}

	limit := s.parseLimit(r)
	messages, err := s.store.ListGroupMessages(r.Context(), name, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list messages")
		return
	}
	if messages == nil {
		messages = []store.Message{}
	}
	writeJSON(w, http.StatusOK, messages)
}

// handleGroupUnreadCount returns the number of group messages from other
// members the caller has not read yet, limited to the last 24 hours.
func (s *Server) handleGroupUnreadCount(w http.ResponseWriter, r *http.Request) {
	identity := getIdentityFromContext(r.Context())
	name := chi.URLParam(r, "name")

	group, err := s.store.GetGroup(r.Context(), name)
	if err != nil || group == nil {
		writeError(w, http.StatusNotFound, "group not found")
		return
	}
	member, err := s.store.IsGroupMember(r.Context(), name, identity.Username)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to check membership")
		return
	}
	if !member {
		writeError(w, http.StatusForbidden, "not a member of this group")
		return
	}

	since := time.Now().Add(-24 * time.Hour)
	count, err := s.store.CountGroupUnread(r.Context(), name, identity.Username, since)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to count unread messages")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"unread": count})
}

func (s *Server) handleMarkGroupRead(w http.ResponseWriter, r *http.Request) {
	identity := getIdentityFromContext(r.Context())
	name := chi.URLParam(r, "name")

	group, err := s.store.GetGroup(r.Context(), name)
	if err != nil || group == nil {
		writeError(w, http.StatusNotFound, "group not found")
		return
	}
	member, err := s.store.IsGroupMember(r.Context(), name, identity.Username)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to check membership")
		return
	}
	if !member {
		writeError(w, http.StatusForbidden, "not a member of this group")
		return
	}

	updated, err := s.store.MarkGroupRead(r.Context(), name, identity.Username)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to mark messages read")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"updated": updated})
}

// parseLimit reads a ?limit= query param, clamped to 500.
func (s *Server) parseLimit(r *http.Request) int {
	limit := s.historyLimit
	if limit <= 0 {
		limit = 100
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}
	return limit
}

// --- Response helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
