package store

import (
	"context"
	"slices"
	"strings"

	"github.com/samber/lo"

	"github.com/rooksgc/rooksgc-dev-server/internal/models"
)

// DataStore defines the interface for persistent storage of users, channels
// and invites. PostgresStore, SQLiteStore and MemoryStore implement it.
//
// Lookups return (nil, nil) when the row does not exist.
type DataStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// User operations. Emails are stored and matched lowercased.
	CreateUser(ctx context.Context, name, email, passwordHash string) (*models.User, error)
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUsersByIDs(ctx context.Context, ids []int64) ([]models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	CountUsers(ctx context.Context) (int64, error)
	// UpdateUserPhoto and UpdateUserPassword return apperr.ErrUserNotFound
	// when id does not resolve.
	UpdateUserPhoto(ctx context.Context, id int64, photo string) error
	UpdateUserPassword(ctx context.Context, id int64, passwordHash string) error

	// Channel operations
	GetChannel(ctx context.Context, id int64) (*models.Channel, error)
	GetChannelsByIDs(ctx context.Context, ids []int64) ([]models.Channel, error)
	CountChannels(ctx context.Context) (int64, error)

	// Invite operations
	ListInvites(ctx context.Context, userID int64) (incoming, outgoing []models.Invite, err error)

	// WithTx runs fn in a single transaction. It commits when fn returns nil
	// and rolls back otherwise, returning fn's error unchanged.
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the set of operations available inside WithTx.
//
// LockUsers and LockChannel take a write lock on the returned rows that is
// held until the transaction ends, so read-modify-write sequences on the
// same user or channel are serialized across concurrent transactions.
type Tx interface {
	// LockUsers locks the given users in ascending id order. Ids that do not
	// resolve are absent from the result.
	LockUsers(ctx context.Context, ids ...int64) (map[int64]*models.User, error)
	// FindUserByEmail resolves an email without locking.
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	LockChannel(ctx context.Context, id int64) (*models.Channel, error)

	// CreateChannel inserts ch, assigns ch.ID and makes the owner its first member.
	CreateChannel(ctx context.Context, ch *models.Channel) error
	AddChannelMember(ctx context.Context, channelID, userID int64) error
	RemoveChannelMember(ctx context.Context, channelID, userID int64) error

	AddContact(ctx context.Context, userID, contactID int64) error
	RemoveContact(ctx context.Context, userID, contactID int64) error

	FindInvite(ctx context.Context, inviterID, userID int64, inviteType string) (*models.Invite, error)
	// CreateInvite returns apperr.ErrInviteAllreadyExists on a duplicate pair.
	CreateInvite(ctx context.Context, inv *models.Invite) error
	DeleteInvite(ctx context.Context, id int64) error
}

// NormalizeEmail is the canonical form emails are stored and looked up in.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// sortedUnique returns ids in ascending order without duplicates.
func sortedUnique(ids []int64) []int64 {
	out := lo.Uniq(ids)
	slices.Sort(out)
	return out
}
