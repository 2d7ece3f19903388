package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/rooksgc/rooksgc-dev-server/internal/apperr"
	"github.com/rooksgc/rooksgc-dev-server/internal/models"
)

// sqlQuerier is satisfied by both *sql.DB and *sql.Tx.
type sqlQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// SQLiteStore handles SQLite database operations.
//
// SQLite has no row locks; transactions are opened with BEGIN IMMEDIATE
// (_txlock=immediate) so writers are serialized for their whole duration.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/chat.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/chat.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_txlock=immediate&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}

	// Initialize schema
	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// newSQLiteStoreFromDB wraps an already opened database without touching the schema.
func newSQLiteStoreFromDB(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL DEFAULT '',
		email TEXT UNIQUE NOT NULL,
		photo TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL DEFAULT 'USER',
		password TEXT NOT NULL DEFAULT '',
		is_active INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS channels (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		owner_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		photo TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS channel_members (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		channel_id INTEGER NOT NULL REFERENCES channels(id) ON DELETE CASCADE,
		user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		UNIQUE (channel_id, user_id)
	);

	CREATE TABLE IF NOT EXISTS user_contacts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		contact_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		UNIQUE (user_id, contact_id)
	);

	CREATE TABLE IF NOT EXISTS invites (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		inviter_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		inviter_name TEXT NOT NULL DEFAULT '',
		user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		user_name TEXT NOT NULL DEFAULT '',
		type TEXT NOT NULL,
		text TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (inviter_id, user_id, type)
	);

	CREATE INDEX IF NOT EXISTS idx_channel_members_user ON channel_members(user_id);
	CREATE INDEX IF NOT EXISTS idx_invites_user ON invites(user_id);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateUser creates a new user record.
func (s *SQLiteStore) CreateUser(ctx context.Context, name, email, passwordHash string) (*models.User, error) {
	now := time.Now()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO users (name, email, password, role, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, name, NormalizeEmail(email), passwordHash, models.RoleUser, now, now)
	if err != nil {
		if isSQLiteUniqueViolation(err) {
			return nil, apperr.ErrEmailAllreadyExists
		}
		return nil, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.GetUserByID(ctx, id)
}

// GetUserByID retrieves a user with contacts and channels.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	return sqliteLoadUser(ctx, s.db, `WHERE id = ?`, id)
}

// GetUserByEmail retrieves a user by email.
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return sqliteLoadUser(ctx, s.db, `WHERE email = ?`, NormalizeEmail(email))
}

// GetUsersByIDs retrieves users in id order. Unknown ids are skipped.
func (s *SQLiteStore) GetUsersByIDs(ctx context.Context, ids []int64) ([]models.User, error) {
	users := make([]models.User, 0, len(ids))
	for _, id := range sortedUnique(ids) {
		u, err := sqliteLoadUser(ctx, s.db, `WHERE id = ?`, id)
		if err != nil {
			return nil, err
		}
		if u != nil {
			users = append(users, *u)
		}
	}
	return users, nil
}

// ListUsers returns every user in id order.
func (s *SQLiteStore) ListUsers(ctx context.Context) ([]models.User, error) {
	ids, err := sqliteQueryIDs(ctx, s.db, `SELECT id FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return s.GetUsersByIDs(ctx, ids)
}

// UpdateUserPhoto replaces a user's photo.
func (s *SQLiteStore) UpdateUserPhoto(ctx context.Context, id int64, photo string) error {
	return s.updateUser(ctx, `photo`, id, photo)
}

// UpdateUserPassword replaces a user's password hash.
func (s *SQLiteStore) UpdateUserPassword(ctx context.Context, id int64, passwordHash string) error {
	return s.updateUser(ctx, `password`, id, passwordHash)
}

func (s *SQLiteStore) updateUser(ctx context.Context, column string, id int64, value string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET `+column+` = ?, updated_at = ? WHERE id = ?`, value, time.Now(), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.ErrUserNotFound
	}
	return nil
}

// CountUsers returns the number of registered users.
func (s *SQLiteStore) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}

// GetChannel retrieves a channel with its members.
func (s *SQLiteStore) GetChannel(ctx context.Context, id int64) (*models.Channel, error) {
	return sqliteLoadChannel(ctx, s.db, id)
}

// GetChannelsByIDs retrieves channels in id order. Unknown ids are skipped.
func (s *SQLiteStore) GetChannelsByIDs(ctx context.Context, ids []int64) ([]models.Channel, error) {
	channels := make([]models.Channel, 0, len(ids))
	for _, id := range sortedUnique(ids) {
		ch, err := sqliteLoadChannel(ctx, s.db, id)
		if err != nil {
			return nil, err
		}
		if ch != nil {
			channels = append(channels, *ch)
		}
	}
	return channels, nil
}

// CountChannels returns the number of channels.
func (s *SQLiteStore) CountChannels(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM channels`).Scan(&n)
	return n, err
}

// ListInvites returns invites addressed to and sent by userID.
func (s *SQLiteStore) ListInvites(ctx context.Context, userID int64) ([]models.Invite, []models.Invite, error) {
	incoming, err := sqliteQueryInvites(ctx, s.db, `WHERE user_id = ?`, userID)
	if err != nil {
		return nil, nil, err
	}
	outgoing, err := sqliteQueryInvites(ctx, s.db, `WHERE inviter_id = ?`, userID)
	if err != nil {
		return nil, nil, err
	}
	return incoming, outgoing, nil
}

// WithTx runs fn inside an immediate transaction.
func (s *SQLiteStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	if err := fn(&sqliteTx{tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// sqliteTx implements Tx on a database/sql transaction.
type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) LockUsers(ctx context.Context, ids ...int64) (map[int64]*models.User, error) {
	users := make(map[int64]*models.User, len(ids))
	for _, id := range sortedUnique(ids) {
		u, err := sqliteLoadUser(ctx, t.tx, `WHERE id = ?`, id)
		if err != nil {
			return nil, err
		}
		if u != nil {
			users[id] = u
		}
	}
	return users, nil
}

func (t *sqliteTx) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return sqliteLoadUser(ctx, t.tx, `WHERE email = ?`, NormalizeEmail(email))
}

func (t *sqliteTx) LockChannel(ctx context.Context, id int64) (*models.Channel, error) {
	return sqliteLoadChannel(ctx, t.tx, id)
}

func (t *sqliteTx) CreateChannel(ctx context.Context, ch *models.Channel) error {
	ch.CreatedAt = time.Now()
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO channels (owner_id, name, description, photo, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, ch.OwnerID, ch.Name, ch.Description, ch.Photo, ch.CreatedAt)
	if err != nil {
		return err
	}
	if ch.ID, err = res.LastInsertId(); err != nil {
		return err
	}
	if err := t.AddChannelMember(ctx, ch.ID, ch.OwnerID); err != nil {
		return err
	}
	ch.Members = []int64{ch.OwnerID}
	return nil
}

func (t *sqliteTx) AddChannelMember(ctx context.Context, channelID, userID int64) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO channel_members (channel_id, user_id) VALUES (?, ?)
	`, channelID, userID)
	return err
}

func (t *sqliteTx) RemoveChannelMember(ctx context.Context, channelID, userID int64) error {
	_, err := t.tx.ExecContext(ctx, `
		DELETE FROM channel_members WHERE channel_id = ? AND user_id = ?
	`, channelID, userID)
	return err
}

func (t *sqliteTx) AddContact(ctx context.Context, userID, contactID int64) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO user_contacts (user_id, contact_id) VALUES (?, ?)
	`, userID, contactID)
	return err
}

func (t *sqliteTx) RemoveContact(ctx context.Context, userID, contactID int64) error {
	_, err := t.tx.ExecContext(ctx, `
		DELETE FROM user_contacts WHERE user_id = ? AND contact_id = ?
	`, userID, contactID)
	return err
}

func (t *sqliteTx) FindInvite(ctx context.Context, inviterID, userID int64, inviteType string) (*models.Invite, error) {
	invites, err := sqliteQueryInvites(ctx, t.tx, `WHERE inviter_id = ? AND user_id = ? AND type = ?`, inviterID, userID, inviteType)
	if err != nil {
		return nil, err
	}
	if len(invites) == 0 {
		return nil, nil
	}
	return &invites[0], nil
}

func (t *sqliteTx) CreateInvite(ctx context.Context, inv *models.Invite) error {
	inv.CreatedAt = time.Now()
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO invites (inviter_id, inviter_name, user_id, user_name, type, text, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, inv.InviterID, inv.InviterName, inv.UserID, inv.UserName, inv.Type, inv.Text, inv.CreatedAt)
	if err != nil {
		if isSQLiteUniqueViolation(err) {
			return apperr.ErrInviteAllreadyExists
		}
		return err
	}
	inv.ID, err = res.LastInsertId()
	return err
}

func (t *sqliteTx) DeleteInvite(ctx context.Context, id int64) error {
	_, err := t.tx.ExecContext(ctx, `DELETE FROM invites WHERE id = ?`, id)
	return err
}

func sqliteLoadUser(ctx context.Context, q sqlQuerier, where string, arg any) (*models.User, error) {
	user := &models.User{}
	var isActive int
	err := q.QueryRowContext(ctx, `
		SELECT id, name, email, photo, role, password, is_active, created_at, updated_at
		FROM users `+where, arg).Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.Photo,
		&user.Role,
		&user.PasswordHash,
		&isActive,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	user.IsActive = isActive == 1

	if user.Contacts, err = sqliteQueryIDs(ctx, q, `
		SELECT contact_id FROM user_contacts WHERE user_id = ? ORDER BY id
	`, user.ID); err != nil {
		return nil, err
	}
	if user.Channels, err = sqliteQueryIDs(ctx, q, `
		SELECT channel_id FROM channel_members WHERE user_id = ? ORDER BY id
	`, user.ID); err != nil {
		return nil, err
	}
	return user, nil
}

func sqliteLoadChannel(ctx context.Context, q sqlQuerier, id int64) (*models.Channel, error) {
	ch := &models.Channel{}
	err := q.QueryRowContext(ctx, `
		SELECT id, owner_id, name, description, photo, created_at
		FROM channels WHERE id = ?
	`, id).Scan(
		&ch.ID,
		&ch.OwnerID,
		&ch.Name,
		&ch.Description,
		&ch.Photo,
		&ch.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	ch.Members, err = sqliteQueryIDs(ctx, q, `
		SELECT user_id FROM channel_members WHERE channel_id = ? ORDER BY id
	`, ch.ID)
	if err != nil {
		return nil, err
	}
	return ch, nil
}

func sqliteQueryIDs(ctx context.Context, q sqlQuerier, query string, args ...any) ([]int64, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func sqliteQueryInvites(ctx context.Context, q sqlQuerier, where string, args ...any) ([]models.Invite, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, inviter_id, inviter_name, user_id, user_name, type, text, created_at
		FROM invites `+where+` ORDER BY id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invites []models.Invite
	for rows.Next() {
		var inv models.Invite
		if err := rows.Scan(
			&inv.ID,
			&inv.InviterID,
			&inv.InviterName,
			&inv.UserID,
			&inv.UserName,
			&inv.Type,
			&inv.Text,
			&inv.CreatedAt,
		); err != nil {
			return nil, err
		}
		invites = append(invites, inv)
	}
	return invites, rows.Err()
}

func isSQLiteUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
