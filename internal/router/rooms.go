package router

// PrivateRoomID returns the canonical room identifier for a 1:1 conversation.
// It is order-independent: both participants compute the same identifier.
func PrivateRoomID(userA, userB string) string {
	if userA > userB {
		userA, userB = userB, userA
	}
	return userA + "-" + userB
}

// groupRoomID namespaces group rooms so a group name can never collide with
// a private pair identifier.
func groupRoomID(group string) string {
	return "group:" + group
}

// joinRoom subscribes a connection to a room.
func (r *Router) joinRoom(roomID string, cc *clientConn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rooms[roomID] == nil {
		r.rooms[roomID] = make(map[string]*clientConn)
	}
	r.rooms[roomID][cc.id] = cc
}

// leaveRoom removes a connection from a room. Idempotent.
func (r *Router) leaveRoom(roomID string, cc *clientConn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if conns, ok := r.rooms[roomID]; ok {
		delete(conns, cc.id)
		if len(conns) == 0 {
			delete(r.rooms, roomID)
		}
	}
}

// roomConns returns a snapshot of the connections currently joined to a room.
func (r *Router) roomConns(roomID string) []*clientConn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conns := make([]*clientConn, 0, len(r.rooms[roomID]))
	for _, cc := range r.rooms[roomID] {
		conns = append(conns, cc)
	}
	return conns
}
