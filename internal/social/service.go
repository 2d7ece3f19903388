// Package social implements the relationship mutations of the chat: channel
// membership, contacts and contact invites.
//
// Every mutation runs inside one store transaction. Realtime notifications
// are collected while the transaction runs and pushed only after it commits,
// so a rolled-back mutation never reaches a client.
package social

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/rooksgc/rooksgc-dev-server/internal/apperr"
	"github.com/rooksgc/rooksgc-dev-server/internal/metrics"
	"github.com/rooksgc/rooksgc-dev-server/internal/models"
	"github.com/rooksgc/rooksgc-dev-server/internal/store"
)

// Emitter pushes events to live connections. realtime.Hub implements it.
type Emitter interface {
	EmitToUser(userID int64, event string, payload any) int
	EmitToRoom(roomID, event string, payload any, exclude string) int
	JoinUser(userID int64, roomID string) int
	LeaveUser(userID int64, roomID string)
}

// History persists chat messages. store.RedisStore implements it.
type History interface {
	AddMessage(ctx context.Context, msg *models.Message) error
	GetChannelMessages(ctx context.Context, channelID string, limit int, before int64) ([]models.Message, error)
	StoreDM(ctx context.Context, dm *models.DirectMessage) error
	GetDMsForUser(ctx context.Context, userID int64, limit int) ([]models.DirectMessage, error)
}

// Service is the social graph service.
type Service struct {
	store   store.DataStore
	emitter Emitter
	history History
	log     zerolog.Logger
}

// NewService creates a Service. history may be nil, in which case messages
// are relayed but not kept.
func NewService(ds store.DataStore, emitter Emitter, history History, log zerolog.Logger) *Service {
	return &Service{
		store:   ds,
		emitter: emitter,
		history: history,
		log:     log.With().Str("component", "social").Logger(),
	}
}

// hooks collects notifications to run once the transaction has committed.
type hooks []func()

func (h *hooks) add(fn func()) { *h = append(*h, fn) }

// mutate runs fn in a transaction and then its hooks. Store failures that are
// not part of the error taxonomy are wrapped as internal errors.
func (s *Service) mutate(ctx context.Context, op string, fn func(tx store.Tx, after *hooks) error) error {
	var after hooks
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		after = after[:0]
		return fn(tx, &after)
	})
	if err != nil {
		metrics.Mutations.WithLabelValues(op, apperr.CodeOf(err)).Inc()
		var appErr *apperr.Error
		if !errors.As(err, &appErr) {
			return apperr.Internal(err)
		}
		return err
	}
	metrics.Mutations.WithLabelValues(op, "ok").Inc()

	for _, fn := range after {
		s.runHook(op, fn)
	}
	return nil
}

func (s *Service) runHook(op string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Str("op", op).Interface("panic", r).Msg("post-commit notification failed")
		}
	}()
	fn()
}

// lockUser locks a single user and maps a missing row to ErrUserNotFound.
func lockUser(ctx context.Context, tx store.Tx, id int64) (*models.User, error) {
	users, err := tx.LockUsers(ctx, id)
	if err != nil {
		return nil, err
	}
	u, ok := users[id]
	if !ok {
		return nil, apperr.ErrUserNotFound
	}
	return u, nil
}

// GetUser returns a user's public projection.
func (s *Service) GetUser(ctx context.Context, id int64) (*models.UserDTO, error) {
	u, err := s.store.GetUserByID(ctx, id)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if u == nil {
		return nil, apperr.ErrUserNotFound
	}
	dto := u.ToDTO()
	return &dto, nil
}

// Stats is a point-in-time summary of stored data.
type Stats struct {
	Users    int64 `json:"users"`
	Channels int64 `json:"channels"`
}

// Stats counts users and channels.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	users, err := s.store.CountUsers(ctx)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	channels, err := s.store.CountChannels(ctx)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return &Stats{Users: users, Channels: channels}, nil
}
