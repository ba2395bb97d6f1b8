// Package store defines the persistence interface for chatwire and provides
// SQLite and PostgreSQL implementations.
package store

import (
	"context"
	"time"
)

// Store is the persistence interface for accounts, groups and messages.
type Store interface {
	// Users
	CreateUser(ctx context.Context, user *User) error
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	ListUsers(ctx context.Context) ([]User, error)

	// Groups
	CreateGroup(ctx context.Context, group *Group) error
	GetGroup(ctx context.Context, name string) (*Group, error)
	AddGroupMember(ctx context.Context, group, username string) error
	RemoveGroupMember(ctx context.Context, group, username string) error
	IsGroupMember(ctx context.Context, group, username string) (bool, error)
	ListGroups(ctx context.Context) ([]Group, error)
	ListGroupsForUser(ctx context.Context, username string) ([]Group, error)

	// Messages
	AppendMessage(ctx context.Context, msg *Message) error
	ListPrivateMessages(ctx context.Context, userA, userB string, limit int) ([]Message, error)
	ListGroupMessages(ctx context.Context, group string, limit int) ([]Message, error)
	MarkConversationRead(ctx context.Context, sender, receiver string) (int64, error)
	CountUnread(ctx context.Context, receiver string) (map[string]int, error)
	MarkGroupRead(ctx context.Context, group, username string) (int64, error)
	CountGroupUnread(ctx context.Context, group, username string, since time.Time) (int, error)

	// Health
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// User represents a registered account.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Group represents a named group chat. Members is populated on reads that
// load the full group.
type Group struct {
	Name      string    `json:"name"`
	Admin     string    `json:"admin"`
	Members   []string  `json:"members,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Message is a persisted chat message. Exactly one of Receiver and Group is
// set: Receiver for direct messages, Group for group messages.
type Message struct {
	ID        string    `json:"id"`
	Sender    string    `json:"sender"`
	Receiver  string    `json:"receiver,omitempty"`
	Group     string    `json:"group,omitempty"`
	Body      string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}
