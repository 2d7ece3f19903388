package store

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rooksgc/rooksgc-dev-server/internal/apperr"
	"github.com/rooksgc/rooksgc-dev-server/internal/models"
)

func newMockSQLite(t *testing.T) (*SQLiteStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return newSQLiteStoreFromDB(db), mock
}

var userColumns = []string{"id", "name", "email", "photo", "role", "password", "is_active", "created_at", "updated_at"}

func TestSQLiteCreateUserDuplicateEmail(t *testing.T) {
	s, mock := newMockSQLite(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users")).
		WillReturnError(sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique})

	_, err := s.CreateUser(context.Background(), "a", "a@x.com", "hash")
	assert.ErrorIs(t, err, apperr.ErrEmailAllreadyExists)
}

func TestSQLiteGetUserLoadsAssociations(t *testing.T) {
	s, mock := newMockSQLite(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE id = ?")).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows(userColumns).
			AddRow(1, "alice", "alice@x.com", "", models.RoleUser, "hash", 1, now, now))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT contact_id FROM user_contacts")).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"contact_id"}).AddRow(2).AddRow(3))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT channel_id FROM channel_members")).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"channel_id"}).AddRow(10))

	u, err := s.GetUserByID(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.True(t, u.IsActive)
	assert.Equal(t, []int64{2, 3}, u.Contacts)
	assert.Equal(t, []int64{10}, u.Channels)
}

func TestSQLiteGetChannelMissing(t *testing.T) {
	s, mock := newMockSQLite(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM channels WHERE id = ?")).
		WithArgs(int64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "owner_id", "name", "description", "photo", "created_at"}))

	ch, err := s.GetChannel(context.Background(), 9)
	require.NoError(t, err)
	assert.Nil(t, ch)
}

func TestSQLiteWithTxRollsBackOnError(t *testing.T) {
	s, mock := newMockSQLite(t)
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT OR IGNORE INTO channel_members")).
		WithArgs(int64(1), int64(2)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectRollback()

	err := s.WithTx(context.Background(), func(tx Tx) error {
		require.NoError(t, tx.AddChannelMember(context.Background(), 1, 2))
		return boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestSQLiteWithTxCommits(t *testing.T) {
	s, mock := newMockSQLite(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM invites WHERE id = ?")).
		WithArgs(int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.WithTx(context.Background(), func(tx Tx) error {
		return tx.DeleteInvite(context.Background(), 5)
	})
	assert.NoError(t, err)
}

func TestSQLiteUpdateMissingUser(t *testing.T) {
	s, mock := newMockSQLite(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET photo = ?, updated_at = ? WHERE id = ?")).
		WithArgs("https://cdn.example.com/a.png", sqlmock.AnyArg(), int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.UpdateUserPhoto(context.Background(), 42, "https://cdn.example.com/a.png")
	assert.ErrorIs(t, err, apperr.ErrUserNotFound)
}

func TestSQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := NewSQLiteStore(ctx, filepath.Join(t.TempDir(), "chat.db"))
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	defer s.Close()

	alice, err := s.CreateUser(ctx, "alice", "alice@x.com", "hash")
	require.NoError(t, err)
	bob, err := s.CreateUser(ctx, "bob", "bob@x.com", "hash")
	require.NoError(t, err)

	_, err = s.CreateUser(ctx, "again", "alice@x.com", "hash")
	assert.ErrorIs(t, err, apperr.ErrEmailAllreadyExists)

	ch := &models.Channel{OwnerID: alice.ID, Name: "Devs"}
	err = s.WithTx(ctx, func(tx Tx) error {
		if err := tx.CreateChannel(ctx, ch); err != nil {
			return err
		}
		if err := tx.AddChannelMember(ctx, ch.ID, bob.ID); err != nil {
			return err
		}
		if err := tx.AddContact(ctx, alice.ID, bob.ID); err != nil {
			return err
		}
		return tx.CreateInvite(ctx, &models.Invite{InviterID: bob.ID, UserID: alice.ID, Type: models.InviteTypeContact})
	})
	require.NoError(t, err)

	got, err := s.GetChannel(ctx, ch.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{alice.ID, bob.ID}, got.Members)

	u, err := s.GetUserByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{bob.ID}, u.Contacts)
	assert.Equal(t, []int64{ch.ID}, u.Channels)

	incoming, outgoing, err := s.ListInvites(ctx, alice.ID)
	require.NoError(t, err)
	assert.Len(t, incoming, 1)
	assert.Empty(t, outgoing)

	err = s.WithTx(ctx, func(tx Tx) error {
		return tx.CreateInvite(ctx, &models.Invite{InviterID: bob.ID, UserID: alice.ID, Type: models.InviteTypeContact})
	})
	assert.ErrorIs(t, err, apperr.ErrInviteAllreadyExists)

	users, err := s.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), users)

	byEmail, err := s.GetUserByEmail(ctx, "ALICE@X.COM")
	require.NoError(t, err)
	require.NotNil(t, byEmail)
	assert.Equal(t, alice.ID, byEmail.ID)

	require.NoError(t, s.UpdateUserPhoto(ctx, bob.ID, "https://cdn.example.com/b.png"))
	all, err := s.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, alice.ID, all[0].ID)
	assert.Equal(t, "https://cdn.example.com/b.png", all[1].Photo)

	assert.ErrorIs(t, s.UpdateUserPassword(ctx, 999, "hash"), apperr.ErrUserNotFound)
}
