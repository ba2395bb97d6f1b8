package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestUser is a helper that inserts a user and returns it.
func createTestUser(t *testing.T, s *SQLiteStore, username string) *User {
	t.Helper()
	u := &User{
		ID:           uuid.New().String(),
		Email:        username + "@example.com",
		Username:     username,
		PasswordHash: "hash-" + username,
		CreatedAt:    time.Now(),
	}
	if err := s.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("createTestUser(%s): %v", username, err)
	}
	return u
}

// createTestGroup is a helper that inserts a group and returns it.
func createTestGroup(t *testing.T, s *SQLiteStore, name, admin string) *Group {
	t.Helper()
	g := &Group{
		Name:      name,
		Admin:     admin,
		CreatedAt: time.Now(),
	}
	if err := s.CreateGroup(context.Background(), g); err != nil {
		t.Fatalf("createTestGroup(%s): %v", name, err)
	}
	return g
}

// appendTestMessage is a helper that persists a message with the given fields.
func appendTestMessage(t *testing.T, s *SQLiteStore, sender, receiver, group, body string, at time.Time) *Message {
	t.Helper()
	m := &Message{
		ID:        uuid.New().String(),
		Sender:    sender,
		Receiver:  receiver,
		Group:     group,
		Body:      body,
		CreatedAt: at,
	}
	if err := s.AppendMessage(context.Background(), m); err != nil {
		t.Fatalf("appendTestMessage: %v", err)
	}
	return m
}

func TestCreateAndGetUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	user := &User{
		ID:           uuid.New().String(),
		Email:        "alice@example.com",
		Username:     "alice",
		PasswordHash: "hashed-pw",
		CreatedAt:    time.Now(),
	}

	if err := s.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	got, err := s.GetUserByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}
	if got == nil {
		t.Fatal("GetUserByUsername returned nil")
	}
	if got.ID != user.ID {
		t.Errorf("ID: got %q, want %q", got.ID, user.ID)
	}
	if got.PasswordHash != "hashed-pw" {
		t.Errorf("PasswordHash: got %q", got.PasswordHash)
	}

	byEmail, err := s.GetUserByEmail(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail: %v", err)
	}
	if byEmail == nil || byEmail.ID != user.ID {
		t.Errorf("GetUserByEmail: got %v", byEmail)
	}

	// Unknown user is (nil, nil), not an error.
	missing, err := s.GetUserByUsername(ctx, "nobody")
	if err != nil {
		t.Fatalf("GetUserByUsername(nobody): %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for unknown user, got %v", missing)
	}
}

func TestCreateUserDuplicateUsername(t *testing.T) {
	s := newTestStore(t)
	createTestUser(t, s, "alice")

	dup := &User{
		ID:           uuid.New().String(),
		Email:        "other@example.com",
		Username:     "alice",
		PasswordHash: "x",
		CreatedAt:    time.Now(),
	}
	if err := s.CreateUser(context.Background(), dup); err == nil {
		t.Fatal("expected unique constraint error for duplicate username")
	}
}

func TestListUsers(t *testing.T) {
	s := newTestStore(t)
	createTestUser(t, s, "bob")
	createTestUser(t, s, "alice")

	users, err := s.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("ListUsers: got %d, want 2", len(users))
	}
	// Ordered by username.
	if users[0].Username != "alice" || users[1].Username != "bob" {
		t.Errorf("order: got [%s %s]", users[0].Username, users[1].Username)
	}
	// Password hashes never leave the list query.
	if users[0].PasswordHash != "" {
		t.Error("ListUsers leaked password hash")
	}
}

func TestGroupLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	createTestGroup(t, s, "team", "alice")

	g, err := s.GetGroup(ctx, "team")
	if err != nil {
		t.Fatalf("GetGroup: %v", err)
	}
	if g == nil {
		t.Fatal("GetGroup returned nil")
	}
	if g.Admin != "alice" {
		t.Errorf("Admin: got %q, want alice", g.Admin)
	}
	// Creating a group enrolls the admin.
	if len(g.Members) != 1 || g.Members[0] != "alice" {
		t.Errorf("Members: got %v, want [alice]", g.Members)
	}

	if err := s.AddGroupMember(ctx, "team", "bob"); err != nil {
		t.Fatalf("AddGroupMember: %v", err)
	}
	// Adding twice is a no-op.
	if err := s.AddGroupMember(ctx, "team", "bob"); err != nil {
		t.Fatalf("AddGroupMember (repeat): %v", err)
	}

	ok, err := s.IsGroupMember(ctx, "team", "bob")
	if err != nil {
		t.Fatalf("IsGroupMember: %v", err)
	}
	if !ok {
		t.Error("bob should be a member")
	}
	ok, err = s.IsGroupMember(ctx, "team", "mallory")
	if err != nil {
		t.Fatalf("IsGroupMember: %v", err)
	}
	if ok {
		t.Error("mallory should not be a member")
	}

	if err := s.RemoveGroupMember(ctx, "team", "bob"); err != nil {
		t.Fatalf("RemoveGroupMember: %v", err)
	}
	ok, err = s.IsGroupMember(ctx, "team", "bob")
	if err != nil {
		t.Fatalf("IsGroupMember: %v", err)
	}
	if ok {
		t.Error("bob still a member after removal")
	}

	missing, err := s.GetGroup(ctx, "nope")
	if err != nil {
		t.Fatalf("GetGroup(nope): %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for unknown group, got %v", missing)
	}
}

func TestListGroupsForUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	createTestGroup(t, s, "team", "alice")
	createTestGroup(t, s, "random", "bob")
	if err := s.AddGroupMember(ctx, "random", "alice"); err != nil {
		t.Fatal(err)
	}

	groups, err := s.ListGroupsForUser(ctx, "alice")
	if err != nil {
		t.Fatalf("ListGroupsForUser: %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("alice groups: got %d, want 2", len(groups))
	}

	groups, err = s.ListGroupsForUser(ctx, "bob")
	if err != nil {
		t.Fatalf("ListGroupsForUser: %v", err)
	}
	if len(groups) != 1 || groups[0].Name != "random" {
		t.Errorf("bob groups: got %v", groups)
	}

	all, err := s.ListGroups(ctx)
	if err != nil {
		t.Fatalf("ListGroups: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("ListGroups: got %d, want 2", len(all))
	}
}

func TestPrivateMessages(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	appendTestMessage(t, s, "alice", "bob", "", "hi", base)
	appendTestMessage(t, s, "bob", "alice", "", "hey", base.Add(time.Minute))
	appendTestMessage(t, s, "alice", "carol", "", "other thread", base.Add(2*time.Minute))

	msgs, err := s.ListPrivateMessages(ctx, "alice", "bob", 100)
	if err != nil {
		t.Fatalf("ListPrivateMessages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	// Oldest first.
	if msgs[0].Body != "hi" || msgs[1].Body != "hey" {
		t.Errorf("order: got [%s %s]", msgs[0].Body, msgs[1].Body)
	}

	// Limit keeps the newest.
	msgs, err = s.ListPrivateMessages(ctx, "alice", "bob", 1)
	if err != nil {
		t.Fatalf("ListPrivateMessages: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Body != "hey" {
		t.Errorf("limited: got %v", msgs)
	}
}

func TestGroupMessages(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	for i := 0; i < 5; i++ {
		appendTestMessage(t, s, "alice", "", "team", "msg", base.Add(time.Duration(i)*time.Second))
	}
	appendTestMessage(t, s, "alice", "bob", "", "private", base)

	msgs, err := s.ListGroupMessages(ctx, "team", 3)
	if err != nil {
		t.Fatalf("ListGroupMessages: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}
	// Ascending by time even when the limit trims the head.
	for i := 1; i < len(msgs); i++ {
		if msgs[i].CreatedAt.Before(msgs[i-1].CreatedAt) {
			t.Errorf("messages out of order at %d", i)
		}
	}
}

func TestUnreadTracking(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	appendTestMessage(t, s, "alice", "bob", "", "one", base)
	appendTestMessage(t, s, "alice", "bob", "", "two", base.Add(time.Second))
	appendTestMessage(t, s, "carol", "bob", "", "three", base.Add(2*time.Second))

	counts, err := s.CountUnread(ctx, "bob")
	if err != nil {
		t.Fatalf("CountUnread: %v", err)
	}
	if counts["alice"] != 2 || counts["carol"] != 1 {
		t.Errorf("counts: got %v", counts)
	}

	n, err := s.MarkConversationRead(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("MarkConversationRead: %v", err)
	}
	if n != 2 {
		t.Errorf("marked: got %d, want 2", n)
	}

	counts, err = s.CountUnread(ctx, "bob")
	if err != nil {
		t.Fatalf("CountUnread: %v", err)
	}
	if _, ok := counts["alice"]; ok {
		t.Error("alice conversation still unread")
	}
	if counts["carol"] != 1 {
		t.Errorf("carol count: got %d, want 1", counts["carol"])
	}

	// Marking again affects nothing.
	n, err = s.MarkConversationRead(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("MarkConversationRead (repeat): %v", err)
	}
	if n != 0 {
		t.Errorf("repeat mark: got %d, want 0", n)
	}
}

func TestGroupUnreadTracking(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	appendTestMessage(t, s, "alice", "", "team", "recent one", now.Add(-time.Hour))
	appendTestMessage(t, s, "alice", "", "team", "recent two", now.Add(-time.Minute))
	appendTestMessage(t, s, "carol", "", "team", "stale", now.Add(-48*time.Hour))
	appendTestMessage(t, s, "bob", "", "team", "own", now.Add(-time.Minute))
	appendTestMessage(t, s, "alice", "", "other", "elsewhere", now.Add(-time.Minute))

	// Bob's own messages and anything older than the window don't count.
	since := now.Add(-24 * time.Hour)
	n, err := s.CountGroupUnread(ctx, "team", "bob", since)
	if err != nil {
		t.Fatalf("CountGroupUnread: %v", err)
	}
	if n != 2 {
		t.Errorf("unread: got %d, want 2", n)
	}

	// Mark-read clears everything from others, window or not.
	updated, err := s.MarkGroupRead(ctx, "team", "bob")
	if err != nil {
		t.Fatalf("MarkGroupRead: %v", err)
	}
	if updated != 3 {
		t.Errorf("marked: got %d, want 3", updated)
	}

	n, err = s.CountGroupUnread(ctx, "team", "bob", since)
	if err != nil {
		t.Fatalf("CountGroupUnread: %v", err)
	}
	if n != 0 {
		t.Errorf("unread after mark: got %d, want 0", n)
	}

	// The other group is untouched.
	n, err = s.CountGroupUnread(ctx, "other", "bob", since)
	if err != nil {
		t.Fatalf("CountGroupUnread(other): %v", err)
	}
	if n != 1 {
		t.Errorf("other group unread: got %d, want 1", n)
	}

	updated, err = s.MarkGroupRead(ctx, "team", "bob")
	if err != nil {
		t.Fatalf("MarkGroupRead (repeat): %v", err)
	}
	if updated != 0 {
		t.Errorf("repeat mark: got %d, want 0", updated)
	}
}
