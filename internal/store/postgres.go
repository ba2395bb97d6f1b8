package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres creates a new PostgreSQL store and runs migrations.
func NewPostgres(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	s := &PostgresStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *PostgresStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			email TEXT UNIQUE NOT NULL,
			username TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS groups (
			name TEXT PRIMARY KEY,
			admin TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS group_members (
			group_name TEXT NOT NULL REFERENCES groups(name),
			username TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (group_name, username)
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			sender TEXT NOT NULL,
			receiver TEXT NOT NULL DEFAULT '',
			group_name TEXT NOT NULL DEFAULT '',
			body TEXT NOT NULL,
			is_read BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
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

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// --- Users ---

func (s *PostgresStore) CreateUser(ctx context.Context, user *User) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO users (id, email, username, password_hash, created_at) VALUES ($1, $2, $3, $4, $5)",
		user.ID, user.Email, user.Username, user.PasswordHash, user.CreatedAt,
	)
	return err
}

func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	var u User
	err := s.db.QueryRowContext(ctx,
		"SELECT id, email, username, password_hash, created_at FROM users WHERE username = $1",
		username,
	).Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &u, err
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	var u User
	err := s.db.QueryRowContext(ctx,
		"SELECT id, email, username, password_hash, created_at FROM users WHERE email = $1",
		email,
	).Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &u, err
}

func (s *PostgresStore) ListUsers(ctx context.Context) ([]User, error) {
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

func (s *PostgresStore) CreateGroup(ctx context.Context, group *Group) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO groups (name, admin, created_at) VALUES ($1, $2, $3)",
		group.Name, group.Admin, group.CreatedAt,
	); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO group_members (group_name, username) VALUES ($1, $2) ON CONFLICT DO NOTHING",
		group.Name, group.Admin,
	); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *PostgresStore) GetGroup(ctx context.Context, name string) (*Group, error) {
	var g Group
	err := s.db.QueryRowContext(ctx,
		"SELECT name, admin, created_at FROM groups WHERE name = $1", name,
	).Scan(&g.Name, &g.Admin, &g.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT username FROM group_members WHERE group_name = $1 ORDER BY username", name,
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

func (s *PostgresStore) AddGroupMember(ctx context.Context, group, username string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO group_members (group_name, username) VALUES ($1, $2) ON CONFLICT DO NOTHING",
		group, username,
	)
	return err
}

func (s *PostgresStore) RemoveGroupMember(ctx context.Context, group, username string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM group_members WHERE group_name = $1 AND username = $2",
		group, username,
	)
	return err
}

func (s *PostgresStore) IsGroupMember(ctx context.Context, group, username string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM group_members WHERE group_name = $1 AND username = $2",
		group, username,
	).Scan(&count)
	return count > 0, err
}

func (s *PostgresStore) ListGroups(ctx context.Context) ([]Group, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT name, admin, created_at FROM groups ORDER BY name",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanGroups(rows)
}

func (s *PostgresStore) ListGroupsForUser(ctx context.Context, username string) ([]Group, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT g.name, g.admin, g.created_at FROM groups g
		 JOIN group_members m ON m.group_name = g.name
		 WHERE m.username = $1 ORDER BY g.name`, username,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanGroups(rows)
}

// --- Messages ---

func (s *PostgresStore) AppendMessage(ctx context.Context, msg *Message) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, sender, receiver, group_name, body, is_read, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		msg.ID, msg.Sender, msg.Receiver, msg.Group, msg.Body, msg.Read, msg.CreatedAt,
	)
	return err
}

func (s *PostgresStore) ListPrivateMessages(ctx context.Context, userA, userB string, limit int) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, sender, receiver, group_name, body, is_read, created_at FROM messages
		 WHERE group_name = '' AND ((sender = $1 AND receiver = $2) OR (sender = $2 AND receiver = $1))
		 ORDER BY created_at DESC, id DESC LIMIT $3`,
		userA, userB, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessagesNewestFirst(rows)
}

func (s *PostgresStore) ListGroupMessages(ctx context.Context, group string, limit int) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, sender, receiver, group_name, body, is_read, created_at FROM messages
		 WHERE group_name = $1 ORDER BY created_at DESC, id DESC LIMIT $2`,
		group, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessagesNewestFirst(rows)
}

func (s *PostgresStore) MarkConversationRead(ctx context.Context, sender, receiver string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE messages SET is_read = TRUE WHERE sender = $1 AND receiver = $2 AND is_read = FALSE",
		sender, receiver,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *PostgresStore) CountUnread(ctx context.Context, receiver string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT sender, COUNT(*) FROM messages
		 WHERE receiver = $1 AND is_read = FALSE GROUP BY sender`,
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
func (s *PostgresStore) MarkGroupRead(ctx context.Context, group, username string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE messages SET is_read = TRUE WHERE group_name = $1 AND sender <> $2 AND is_read = FALSE",
		group, username,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *PostgresStore) CountGroupUnread(ctx context.Context, group, username string, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages
		 WHERE group_name = $1 AND sender <> $2 AND is_read = FALSE AND created_at > $3`,
		group, username, since,
	).Scan(&n)
	return n, err
}
