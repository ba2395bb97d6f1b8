package router

import (
	"sort"

	"github.com/chatwire/chatwire/pkg/protocol"
)

// bindUser records a connection as belonging to its username. Returns true
// when this is the user's first live connection (offline to online).
func (r *Router) bindUser(cc *clientConn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.connsByUser[cc.username] == nil {
		r.connsByUser[cc.username] = make(map[string]*clientConn)
	}
	r.connsByUser[cc.username][cc.id] = cc
	return len(r.connsByUser[cc.username]) == 1
}

// unbindUser removes a connection from its username's set. Returns true when
// it was the user's last live connection (online to offline).
func (r *Router) unbindUser(cc *clientConn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	conns, ok := r.connsByUser[cc.username]
	if !ok {
		return false
	}
	if _, ok := conns[cc.id]; !ok {
		return false
	}
	delete(conns, cc.id)
	if len(conns) == 0 {
		delete(r.connsByUser, cc.username)
		return true
	}
	return false
}

// connsForUser returns a snapshot of a user's live connections. Empty when
// the user is offline.
func (r *Router) connsForUser(username string) []*clientConn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conns := make([]*clientConn, 0, len(r.connsByUser[username]))
	for _, cc := range r.connsByUser[username] {
		conns = append(conns, cc)
	}
	return conns
}

// OnlineUsers returns the sorted list of usernames with at least one live
// connection.
func (r *Router) OnlineUsers() []string {
	r.mu.RLock()
	users := make([]string, 0, len(r.connsByUser))
	for username := range r.connsByUser {
		users = append(users, username)
	}
	r.mu.RUnlock()
	sort.Strings(users)
	return users
}

// broadcastPresence sends the full online-user snapshot to every connection.
func (r *Router) broadcastPresence() {
	users := r.OnlineUsers()

	r.mu.RLock()
	clients := make([]*clientConn, 0, len(r.clients))
	for _, cc := range r.clients {
		clients = append(clients, cc)
	}
	r.mu.RUnlock()

	for _, cc := range clients {
		r.sendToClient(cc, protocol.TypeUsersOnline, protocol.UsersOnline{Users: users})
	}
}
