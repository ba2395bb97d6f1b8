package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite store and runs migrations.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	// For in-memory databases, use shared cache so all connections in the pool
	// see the same data. Without this, each pooled connection gets a separate
	// empty database.
	if dsn == ":memory:" {
		dsn = "file::memory:?cache=shared"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Enable WAL mode for better concurrent read/write.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			email TEXT UNIQUE NOT NULL,
			username TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS groups (
			name TEXT PRIMARY KEY,
			admin TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS group_members (
			group_name TEXT NOT NULL REFERENCES groups(name),
			username TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (group_name, username)
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			sender TEXT NOT NULL,
			receiver TEXT NOT NULL DEFAULT '',
			group_name TEXT NOT NULL DEFAULT '',
			body TEXT NOT NULL,
			is_read INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_pair ON messages(sender, receiver)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_group ON messages(group_name)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_created_at ON messages(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_group_members_username ON group_members(username)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n  SQL: %s", err, m)
		}
	}

	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Users ---

func (s *SQLiteStore) CreateUser(ctx context.Context, user *User) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO users (id, email, username, password_hash, created_at) VALUES (?, ?, ?, ?, ?)",
		user.ID, user.Email, user.Username, user.PasswordHash, user.CreatedAt,
	)
	return err
}

func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	var u User
	err := s.db.QueryRowContext(ctx,
		"SELECT id, email, username, password_hash, created_at FROM users WHERE username = ?",
		username,
	).Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &u, err
}

func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	var u User
	err := s.db.QueryRowContext(ctx,
		"SELECT id, email, username, password_hash, created_at FROM users WHERE email = ?",
		email,
	).Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &u, err
}

func (s *SQLiteStore) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, email, username, created_at FROM users ORDER BY username",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Email, &u.Username, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// --- Groups ---

func (s *SQLiteStore) CreateGroup(ctx context.Context, group *Group) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO groups (name, admin, created_at) VALUES (?, ?, ?)",
		group.Name, group.Admin, group.CreatedAt,
	); err != nil {
		return err
	}
	// The admin is always a member.
	if _, err := tx.ExecContext(ctx,
		"INSERT OR IGNORE INTO group_members (group_name, username) VALUES (?, ?)",
		group.Name, group.Admin,
	); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetGroup(ctx context.Context, name string) (*Group, error) {
	var g Group
	err := s.db.QueryRowContext(ctx,
		"SELECT name, admin, created_at FROM groups WHERE name = ?", name,
	).Scan(&g.Name, &g.Admin, &g.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT username FROM group_members WHERE group_name = ? ORDER BY username", name,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var member string
		if err := rows.Scan(&member); err != nil {
			return nil, err
		}
		g.Members = append(g.Members, member)
	}
	return &g, rows.Err()
}

func (s *SQLiteStore) AddGroupMember(ctx context.Context, group, username string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO group_members (group_name, username) VALUES (?, ?)",
		group, username,
	)
	return err
}

func (s *SQLiteStore) RemoveGroupMember(ctx context.Context, group, username string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM group_members WHERE group_name = ? AND username = ?",
		group, username,
	)
	return err
}

func (s *SQLiteStore) IsGroupMember(ctx context.Context, group, username string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM group_members WHERE group_name = ? AND username = ?",
		group, username,
	).Scan(&count)
	return count > 0, err
}

func (s *SQLiteStore) ListGroups(ctx context.Context) ([]Group, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT name, admin, created_at FROM groups ORDER BY name",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanGroups(rows)
}

func (s *SQLiteStore) ListGroupsForUser(ctx context.Context, username string) ([]Group, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT g.name, g.admin, g.created_at FROM groups g
		 JOIN group_members m ON m.group_name = g.name
		 WHERE m.username = ? ORDER BY g.name`, username,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanGroups(rows)
}

func scanGroups(rows *sql.Rows) ([]Group, error) {
	var groups []Group
	for rows.Next() {
		var g Group
		if err := rows.Scan(&g.Name, &g.Admin, &g.CreatedAt); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// --- Messages ---

func (s *SQLiteStore) AppendMessage(ctx context.Context, msg *Message) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, sender, receiver, group_name, body, is_read, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.Sender, msg.Receiver, msg.Group, msg.Body, msg.Read, msg.CreatedAt,
	)
	return err
}

func (s *SQLiteStore) ListPrivateMessages(ctx context.Context, userA, userB string, limit int) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, sender, receiver, group_name, body, is_read, created_at FROM messages
		 WHERE group_name = '' AND ((sender = ? AND receiver = ?) OR (sender = ? AND receiver = ?))
		 ORDER BY created_at DESC, id DESC LIMIT ?`,
		userA, userB, userB, userA, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessagesNewestFirst(rows)
}

func (s *SQLiteStore) ListGroupMessages(ctx context.Context, group string, limit int) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, sender, receiver, group_name, body, is_read, created_at FROM messages
		 WHERE group_name = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		group, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessagesNewestFirst(rows)
}

// scanMessagesNewestFirst reads rows ordered newest-first and returns them
// oldest-first, which is the order clients render history in.
func scanMessagesNewestFirst(rows *sql.Rows) ([]Message, error) {
	var messages []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.Sender, &m.Receiver, &m.Group, &m.Body, &m.Read, &m.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (s *SQLiteStore) MarkConversationRead(ctx context.Context, sender, receiver string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE messages SET is_read = 1 WHERE sender = ? AND receiver = ? AND is_read = 0",
		sender, receiver,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) CountUnread(ctx context.Context, receiver string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT sender, COUNT(*) FROM messages
		 WHERE receiver = ? AND is_read = 0 GROUP BY sender`,
		receiver,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var sender string
		var n int
		if err := rows.Scan(&sender, &n); err != nil {
			return nil, err
		}
		counts[sender] = n
	}
	return counts, rows.Err()
}

// MarkGroupRead clears the unread flag on group messages sent by others.
// The flag is shared across members, so one member catching up clears the
// group for everyone.
func (s *SQLiteStore) MarkGroupRead(ctx context.Context, group, username string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE messages SET is_read = 1 WHERE group_name = ? AND sender <> ? AND is_read = 0",
		group, username,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) CountGroupUnread(ctx context.Context, group, username string, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages
		 WHERE group_name = ? AND sender <> ? AND is_read = 0 AND created_at > ?`,
		group, username, since,
	).Scan(&n)
	return n, err
}
