package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rooksgc/rooksgc-dev-server/internal/apperr"
	"github.com/rooksgc/rooksgc-dev-server/internal/metrics"
	"github.com/rooksgc/rooksgc-dev-server/internal/models"
)

const pgUniqueViolation = "23505"

const postgresSchema = `
CREATE TABLE IF NOT EXISTS users (
	id BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL DEFAULT '',
	email TEXT UNIQUE NOT NULL,
	photo TEXT NOT NULL DEFAULT '',
	role TEXT NOT NULL DEFAULT 'USER',
	password TEXT NOT NULL DEFAULT '',
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS channels (
	id BIGSERIAL PRIMARY KEY,
	owner_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	photo TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS channel_members (
	id BIGSERIAL PRIMARY KEY,
	channel_id BIGINT NOT NULL REFERENCES channels(id) ON DELETE CASCADE,
	user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (channel_id, user_id)
);

CREATE TABLE IF NOT EXISTS user_contacts (
	id BIGSERIAL PRIMARY KEY,
	user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	contact_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	UNIQUE (user_id, contact_id)
);

CREATE TABLE IF NOT EXISTS invites (
	id BIGSERIAL PRIMARY KEY,
	inviter_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	inviter_name TEXT NOT NULL DEFAULT '',
	user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	user_name TEXT NOT NULL DEFAULT '',
	type TEXT NOT NULL,
	text TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (inviter_id, user_id, type)
);

CREATE INDEX IF NOT EXISTS idx_channel_members_user ON channel_members(user_id);
CREATE INDEX IF NOT EXISTS idx_invites_user ON invites(user_id);
`

// pgQuerier is satisfied by both *pgxpool.Pool and pgx.Tx.
type pgQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool
// and ensures the schema exists.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// CreateUser creates a new user record.
func (s *PostgresStore) CreateUser(ctx context.Context, name, email, passwordHash string) (*models.User, error) {
	defer metrics.ObservePostgres()()

	user := &models.User{}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO users (name, email, password, role)
		VALUES ($1, $2, $3, $4)
		RETURNING id, name, email, photo, role, password, is_active, created_at, updated_at
	`, name, NormalizeEmail(email), passwordHash, models.RoleUser).Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.Photo,
		&user.Role,
		&user.PasswordHash,
		&user.IsActive,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperr.ErrEmailAllreadyExists
		}
		return nil, err
	}
	return user, nil
}

// GetUserByID retrieves a user with contacts and channels.
func (s *PostgresStore) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	defer metrics.ObservePostgres()()
	return pgLoadUser(ctx, s.pool, `WHERE id = $1`, id)
}

// GetUserByEmail retrieves a user by email.
func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	defer metrics.ObservePostgres()()
	return pgLoadUser(ctx, s.pool, `WHERE email = $1`, NormalizeEmail(email))
}

// GetUsersByIDs retrieves users in id order. Unknown ids are skipped.
func (s *PostgresStore) GetUsersByIDs(ctx context.Context, ids []int64) ([]models.User, error) {
	defer metrics.ObservePostgres()()

	users := make([]models.User, 0, len(ids))
	for _, id := range sortedUnique(ids) {
		u, err := pgLoadUser(ctx, s.pool, `WHERE id = $1`, id)
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
func (s *PostgresStore) ListUsers(ctx context.Context) ([]models.User, error) {
	defer metrics.ObservePostgres()()

	rows, err := s.pool.Query(ctx, `SELECT id FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, err
	}

	users := make([]models.User, 0, len(ids))
	for _, id := range ids {
		u, err := pgLoadUser(ctx, s.pool, `WHERE id = $1`, id)
		if err != nil {
			return nil, err
		}
		if u != nil {
			users = append(users, *u)
		}
	}
	return users, nil
}

// UpdateUserPhoto replaces a user's photo.
func (s *PostgresStore) UpdateUserPhoto(ctx context.Context, id int64, photo string) error {
	defer metrics.ObservePostgres()()
	return pgUpdateUser(ctx, s.pool, `photo`, id, photo)
}

// UpdateUserPassword replaces a user's password hash.
func (s *PostgresStore) UpdateUserPassword(ctx context.Context, id int64, passwordHash string) error {
	defer metrics.ObservePostgres()()
	return pgUpdateUser(ctx, s.pool, `password`, id, passwordHash)
}

func pgUpdateUser(ctx context.Context, q pgQuerier, column string, id int64, value string) error {
	tag, err := q.Exec(ctx, `UPDATE users SET `+column+` = $2, updated_at = NOW() WHERE id = $1`, id, value)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.ErrUserNotFound
	}
	return nil
}

// CountUsers returns the number of registered users.
func (s *PostgresStore) CountUsers(ctx context.Context) (int64, error) {
	defer metrics.ObservePostgres()()

	var n int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}

// GetChannel retrieves a channel with its members.
func (s *PostgresStore) GetChannel(ctx context.Context, id int64) (*models.Channel, error) {
	defer metrics.ObservePostgres()()
	return pgLoadChannel(ctx, s.pool, id, false)
}

// GetChannelsByIDs retrieves channels in id order. Unknown ids are skipped.
func (s *PostgresStore) GetChannelsByIDs(ctx context.Context, ids []int64) ([]models.Channel, error) {
	defer metrics.ObservePostgres()()

	channels := make([]models.Channel, 0, len(ids))
	for _, id := range sortedUnique(ids) {
		ch, err := pgLoadChannel(ctx, s.pool, id, false)
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
func (s *PostgresStore) CountChannels(ctx context.Context) (int64, error) {
	defer metrics.ObservePostgres()()

	var n int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM channels`).Scan(&n)
	return n, err
}

// ListInvites returns invites addressed to and sent by userID.
func (s *PostgresStore) ListInvites(ctx context.Context, userID int64) ([]models.Invite, []models.Invite, error) {
	defer metrics.ObservePostgres()()

	incoming, err := pgQueryInvites(ctx, s.pool, `WHERE user_id = $1`, userID)
	if err != nil {
		return nil, nil, err
	}
	outgoing, err := pgQueryInvites(ctx, s.pool, `WHERE inviter_id = $1`, userID)
	if err != nil {
		return nil, nil, err
	}
	return incoming, outgoing, nil
}

// WithTx runs fn inside a read-committed transaction.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	defer metrics.ObservePostgres()()

	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(&pgTx{tx: tx})
	})
}

// pgTx implements Tx on a pgx transaction.
type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) LockUsers(ctx context.Context, ids ...int64) (map[int64]*models.User, error) {
	users := make(map[int64]*models.User, len(ids))
	for _, id := range sortedUnique(ids) {
		u, err := pgLoadUser(ctx, t.tx, `WHERE id = $1 FOR UPDATE`, id)
		if err != nil {
			return nil, err
		}
		if u != nil {
			users[id] = u
		}
	}
	return users, nil
}

func (t *pgTx) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return pgLoadUser(ctx, t.tx, `WHERE email = $1`, NormalizeEmail(email))
}

func (t *pgTx) LockChannel(ctx context.Context, id int64) (*models.Channel, error) {
	return pgLoadChannel(ctx, t.tx, id, true)
}

func (t *pgTx) CreateChannel(ctx context.Context, ch *models.Channel) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO channels (owner_id, name, description, photo)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, ch.OwnerID, ch.Name, ch.Description, ch.Photo).Scan(&ch.ID, &ch.CreatedAt)
	if err != nil {
		return err
	}
	if err := t.AddChannelMember(ctx, ch.ID, ch.OwnerID); err != nil {
		return err
	}
	ch.Members = []int64{ch.OwnerID}
	return nil
}

func (t *pgTx) AddChannelMember(ctx context.Context, channelID, userID int64) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO channel_members (channel_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (channel_id, user_id) DO NOTHING
	`, channelID, userID)
	return err
}

func (t *pgTx) RemoveChannelMember(ctx context.Context, channelID, userID int64) error {
	_, err := t.tx.Exec(ctx, `
		DELETE FROM channel_members WHERE channel_id = $1 AND user_id = $2
	`, channelID, userID)
	return err
}

func (t *pgTx) AddContact(ctx context.Context, userID, contactID int64) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO user_contacts (user_id, contact_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id, contact_id) DO NOTHING
	`, userID, contactID)
	return err
}

func (t *pgTx) RemoveContact(ctx context.Context, userID, contactID int64) error {
	_, err := t.tx.Exec(ctx, `
		DELETE FROM user_contacts WHERE user_id = $1 AND contact_id = $2
	`, userID, contactID)
	return err
}

func (t *pgTx) FindInvite(ctx context.Context, inviterID, userID int64, inviteType string) (*models.Invite, error) {
	invites, err := pgQueryInvites(ctx, t.tx, `WHERE inviter_id = $1 AND user_id = $2 AND type = $3 FOR UPDATE`, inviterID, userID, inviteType)
	if err != nil {
		return nil, err
	}
	if len(invites) == 0 {
		return nil, nil
	}
	return &invites[0], nil
}

func (t *pgTx) CreateInvite(ctx context.Context, inv *models.Invite) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO invites (inviter_id, inviter_name, user_id, user_name, type, text)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`, inv.InviterID, inv.InviterName, inv.UserID, inv.UserName, inv.Type, inv.Text).Scan(&inv.ID, &inv.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.ErrInviteAllreadyExists
		}
		return err
	}
	return nil
}

func (t *pgTx) DeleteInvite(ctx context.Context, id int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM invites WHERE id = $1`, id)
	return err
}

// pgLoadUser loads one user row selected by where, plus its association lists.
func pgLoadUser(ctx context.Context, q pgQuerier, where string, arg any) (*models.User, error) {
	user := &models.User{}
	err := q.QueryRow(ctx, `
		SELECT id, name, email, photo, role, password, is_active, created_at, updated_at
		FROM users `+where, arg).Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.Photo,
		&user.Role,
		&user.PasswordHash,
		&user.IsActive,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	if user.Contacts, err = pgQueryIDs(ctx, q, `
		SELECT contact_id FROM user_contacts WHERE user_id = $1 ORDER BY id
	`, user.ID); err != nil {
		return nil, err
	}
	if user.Channels, err = pgQueryIDs(ctx, q, `
		SELECT channel_id FROM channel_members WHERE user_id = $1 ORDER BY id
	`, user.ID); err != nil {
		return nil, err
	}
	return user, nil
}

func pgLoadChannel(ctx context.Context, q pgQuerier, id int64, forUpdate bool) (*models.Channel, error) {
	query := `
		SELECT id, owner_id, name, description, photo, created_at
		FROM channels WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	ch := &models.Channel{}
	err := q.QueryRow(ctx, query, id).Scan(
		&ch.ID,
		&ch.OwnerID,
		&ch.Name,
		&ch.Description,
		&ch.Photo,
		&ch.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	ch.Members, err = pgQueryIDs(ctx, q, `
		SELECT user_id FROM channel_members WHERE channel_id = $1 ORDER BY id
	`, ch.ID)
	if err != nil {
		return nil, err
	}
	return ch, nil
}

func pgQueryIDs(ctx context.Context, q pgQuerier, query string, arg any) ([]int64, error) {
	rows, err := q.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

func pgQueryInvites(ctx context.Context, q pgQuerier, where string, args ...any) ([]models.Invite, error) {
	rows, err := q.Query(ctx, `
		SELECT id, inviter_id, inviter_name, user_id, user_name, type, text, created_at
		FROM invites `+where, args...)
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

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
