// Package protocol defines the wire protocol exchanged between chat clients
// and the chatwire server over WebSocket.
//
// All events are JSON-encoded and share a common envelope with a "type" field
// that determines the payload structure.
package protocol

import "time"

// Envelope is the top-level wire format for all events.
type Envelope struct {
	Type      string    `json:"type"`
	ID        string    `json:"id,omitempty"` // event ID for idempotency
	Timestamp time.Time `json:"ts"`
	Payload   any       `json:"payload,omitempty"`
}

// --- Client → Server events ---

const (
	TypeUserConnected      = "user_connected"
	TypeJoinPrivateChat    = "join_private_chat"
	TypeJoinGroup          = "join_group"
	TypeLeaveGroup         = "leave_group"
	TypeSendPrivateMessage = "send_private_message"
	TypeSendGroupMessage   = "send_group_message"
	TypeTyping             = "typing"
	TypeStopTyping         = "stop_typing"
	TypeTypingGroup        = "typing_group"
	TypeStopTypingGroup    = "stop_typing_group"
)

// --- Server → Client events ---

const (
	TypeUsersOnline            = "users_online"
	TypeGroupChatHistory       = "group_chat_history"
	TypeReceivePrivateMessage  = "receive_private_message"
	TypeReceiveGroupMessage    = "receive_group_message"
	TypeUserTyping             = "user_typing"
	TypeUserStoppedTyping      = "userStoppedTyping"
	TypeUserTypingGroup        = "user_typing_group"
	TypeUserStoppedTypingGroup = "userStoppedTyping_group"
	TypeError                  = "error"
)

// UserConnected binds the connection to a username. Must be the first event
// a client sends; the username has to match the token the socket was opened
// with.
type UserConnected struct {
	Username string `json:"username"`
}

// JoinPrivateChat subscribes the connection to the 1:1 room shared with
// another user.
type JoinPrivateChat struct {
	OtherUser string `json:"otherUser"`
}

// JoinGroup subscribes the connection to a group room. The server replies
// with GroupChatHistory on success.
type JoinGroup struct {
	Group string `json:"group"`
}

// LeaveGroup unsubscribes the connection from a group room.
type LeaveGroup struct {
	Group string `json:"group"`
}

// SendPrivateMessage carries a direct message. Sender is implied by the
// bound identity; a mismatched explicit sender is rejected.
type SendPrivateMessage struct {
	Sender   string `json:"sender,omitempty"`
	Receiver string `json:"receiver"`
	Message  string `json:"message"`
}

// SendGroupMessage carries a group message.
type SendGroupMessage struct {
	Sender  string `json:"sender,omitempty"`
	Group   string `json:"group"`
	Message string `json:"message"`
}

// TypingSignal is the payload for typing and stop_typing.
type TypingSignal struct {
	Receiver string `json:"receiver"`
}

// GroupTypingSignal is the payload for typing_group and stop_typing_group.
type GroupTypingSignal struct {
	Group string `json:"group"`
}

// UsersOnline carries the full sorted list of currently online usernames.
type UsersOnline struct {
	Users []string `json:"users"`
}

// ChatMessage is a message as delivered to clients, both live and in history.
type ChatMessage struct {
	ID        string    `json:"id"`
	Sender    string    `json:"sender"`
	Receiver  string    `json:"receiver,omitempty"`
	Group     string    `json:"group,omitempty"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"ts"`
}

// GroupChatHistory returns the most recent messages of a group, oldest first.
type GroupChatHistory struct {
	Group    string        `json:"group"`
	Messages []ChatMessage `json:"messages"`
}

// UserTyping is the payload for user_typing and userStoppedTyping.
type UserTyping struct {
	Sender string `json:"sender"`
}

// UserTypingGroup is the payload for user_typing_group and
// userStoppedTyping_group.
type UserTypingGroup struct {
	Sender string `json:"sender"`
	Group  string `json:"group"`
}

// ErrorResponse carries an error from server to client.
type ErrorResponse struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}
