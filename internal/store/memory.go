package store

import (
	"context"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/rooksgc/rooksgc-dev-server/internal/apperr"
	"github.com/rooksgc/rooksgc-dev-server/internal/models"
)

// MemoryStore keeps all data in process memory. It backs local development
// (STORE_DRIVER=memory) and tests.
//
// Transactions hold the write lock for their whole duration and operate on a
// copy of the state which replaces the live state on commit.
type MemoryStore struct {
	mu    sync.RWMutex
	state *memState
}

type memState struct {
	nextUserID    int64
	nextChannelID int64
	nextInviteID  int64
	users         map[int64]*models.User
	channels      map[int64]*models.Channel
	invites       map[int64]*models.Invite
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: &memState{
		users:    make(map[int64]*models.User),
		channels: make(map[int64]*models.Channel),
		invites:  make(map[int64]*models.Invite),
	}}
}

func (st *memState) clone() *memState {
	c := &memState{
		nextUserID:    st.nextUserID,
		nextChannelID: st.nextChannelID,
		nextInviteID:  st.nextInviteID,
		users:         make(map[int64]*models.User, len(st.users)),
		channels:      make(map[int64]*models.Channel, len(st.channels)),
		invites:       make(map[int64]*models.Invite, len(st.invites)),
	}
	for id, u := range st.users {
		c.users[id] = copyUser(u)
	}
	for id, ch := range st.channels {
		c.channels[id] = copyChannel(ch)
	}
	for id, inv := range st.invites {
		cp := *inv
		c.invites[id] = &cp
	}
	return c
}

func copyUser(u *models.User) *models.User {
	cp := *u
	cp.Contacts = append([]int64(nil), u.Contacts...)
	cp.Channels = append([]int64(nil), u.Channels...)
	return &cp
}

func copyChannel(ch *models.Channel) *models.Channel {
	cp := *ch
	cp.Members = append([]int64(nil), ch.Members...)
	return &cp
}

func (st *memState) userByEmail(email string) *models.User {
	email = NormalizeEmail(email)
	for _, u := range st.users {
		if u.Email == email {
			return u
		}
	}
	return nil
}

func (s *MemoryStore) Close() {}

func (s *MemoryStore) Ping(ctx context.Context) error { return ctx.Err() }

// CreateUser creates a new user record.
func (s *MemoryStore) CreateUser(ctx context.Context, name, email, passwordHash string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.userByEmail(email) != nil {
		return nil, apperr.ErrEmailAllreadyExists
	}
	s.state.nextUserID++
	now := time.Now()
	u := &models.User{
		ID:           s.state.nextUserID,
		Name:         name,
		Email:        NormalizeEmail(email),
		Role:         models.RoleUser,
		PasswordHash: passwordHash,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.state.users[u.ID] = u
	return copyUser(u), nil
}

func (s *MemoryStore) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.state.users[id]
	if !ok {
		return nil, nil
	}
	return copyUser(u), nil
}

func (s *MemoryStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u := s.state.userByEmail(email)
	if u == nil {
		return nil, nil
	}
	return copyUser(u), nil
}

func (s *MemoryStore) GetUsersByIDs(ctx context.Context, ids []int64) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]models.User, 0, len(ids))
	for _, id := range sortedUnique(ids) {
		if u, ok := s.state.users[id]; ok {
			users = append(users, *copyUser(u))
		}
	}
	return users, nil
}

func (s *MemoryStore) ListUsers(ctx context.Context) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]models.User, 0, len(s.state.users))
	for _, id := range sortedUnique(lo.Keys(s.state.users)) {
		users = append(users, *copyUser(s.state.users[id]))
	}
	return users, nil
}

func (s *MemoryStore) UpdateUserPhoto(ctx context.Context, id int64, photo string) error {
	return s.updateUser(id, func(u *models.User) { u.Photo = photo })
}

func (s *MemoryStore) UpdateUserPassword(ctx context.Context, id int64, passwordHash string) error {
	return s.updateUser(id, func(u *models.User) { u.PasswordHash = passwordHash })
}

func (s *MemoryStore) updateUser(id int64, fn func(u *models.User)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.state.users[id]
	if !ok {
		return apperr.ErrUserNotFound
	}
	fn(u)
	u.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) CountUsers(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.state.users)), nil
}

func (s *MemoryStore) GetChannel(ctx context.Context, id int64) (*models.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ch, ok := s.state.channels[id]
	if !ok {
		return nil, nil
	}
	return copyChannel(ch), nil
}

func (s *MemoryStore) GetChannelsByIDs(ctx context.Context, ids []int64) ([]models.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	channels := make([]models.Channel, 0, len(ids))
	for _, id := range sortedUnique(ids) {
		if ch, ok := s.state.channels[id]; ok {
			channels = append(channels, *copyChannel(ch))
		}
	}
	return channels, nil
}

func (s *MemoryStore) CountChannels(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.state.channels)), nil
}

func (s *MemoryStore) ListInvites(ctx context.Context, userID int64) ([]models.Invite, []models.Invite, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var incoming, outgoing []models.Invite
	for _, id := range sortedUnique(lo.Keys(s.state.invites)) {
		inv := s.state.invites[id]
		if inv.UserID == userID {
			incoming = append(incoming, *inv)
		}
		if inv.InviterID == userID {
			outgoing = append(outgoing, *inv)
		}
	}
	return incoming, outgoing, nil
}

// WithTx serializes fn against all other transactions and commits its
// changes atomically.
func (s *MemoryStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	work := s.state.clone()
	if err := fn(&memTx{st: work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

// memTx implements Tx on a private copy of the state.
type memTx struct {
	st *memState
}

func (t *memTx) LockUsers(ctx context.Context, ids ...int64) (map[int64]*models.User, error) {
	users := make(map[int64]*models.User, len(ids))
	for _, id := range ids {
		if u, ok := t.st.users[id]; ok {
			users[id] = copyUser(u)
		}
	}
	return users, nil
}

func (t *memTx) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	u := t.st.userByEmail(email)
	if u == nil {
		return nil, nil
	}
	return copyUser(u), nil
}

func (t *memTx) LockChannel(ctx context.Context, id int64) (*models.Channel, error) {
	ch, ok := t.st.channels[id]
	if !ok {
		return nil, nil
	}
	return copyChannel(ch), nil
}

func (t *memTx) CreateChannel(ctx context.Context, ch *models.Channel) error {
	owner, ok := t.st.users[ch.OwnerID]
	if !ok {
		return apperr.ErrUserNotFound
	}
	t.st.nextChannelID++
	ch.ID = t.st.nextChannelID
	ch.CreatedAt = time.Now()
	ch.Members = []int64{ch.OwnerID}
	t.st.channels[ch.ID] = copyChannel(ch)
	owner.Channels = append(owner.Channels, ch.ID)
	return nil
}

func (t *memTx) AddChannelMember(ctx context.Context, channelID, userID int64) error {
	ch, ok := t.st.channels[channelID]
	if !ok {
		return apperr.ErrChannelNotFound
	}
	u, ok := t.st.users[userID]
	if !ok {
		return apperr.ErrUserNotFound
	}
	if !lo.Contains(ch.Members, userID) {
		ch.Members = append(ch.Members, userID)
	}
	if !lo.Contains(u.Channels, channelID) {
		u.Channels = append(u.Channels, channelID)
	}
	return nil
}

func (t *memTx) RemoveChannelMember(ctx context.Context, channelID, userID int64) error {
	if ch, ok := t.st.channels[channelID]; ok {
		ch.Members = lo.Without(ch.Members, userID)
	}
	if u, ok := t.st.users[userID]; ok {
		u.Channels = lo.Without(u.Channels, channelID)
	}
	return nil
}

func (t *memTx) AddContact(ctx context.Context, userID, contactID int64) error {
	u, ok := t.st.users[userID]
	if !ok {
		return apperr.ErrUserNotFound
	}
	if !lo.Contains(u.Contacts, contactID) {
		u.Contacts = append(u.Contacts, contactID)
	}
	return nil
}

func (t *memTx) RemoveContact(ctx context.Context, userID, contactID int64) error {
	if u, ok := t.st.users[userID]; ok {
		u.Contacts = lo.Without(u.Contacts, contactID)
	}
	return nil
}

func (t *memTx) FindInvite(ctx context.Context, inviterID, userID int64, inviteType string) (*models.Invite, error) {
	for _, inv := range t.st.invites {
		if inv.InviterID == inviterID && inv.UserID == userID && inv.Type == inviteType {
			cp := *inv
			return &cp, nil
		}
	}
	return nil, nil
}

func (t *memTx) CreateInvite(ctx context.Context, inv *models.Invite) error {
	existing, _ := t.FindInvite(ctx, inv.InviterID, inv.UserID, inv.Type)
	if existing != nil {
		return apperr.ErrInviteAllreadyExists
	}
	t.st.nextInviteID++
	inv.ID = t.st.nextInviteID
	inv.CreatedAt = time.Now()
	cp := *inv
	t.st.invites[inv.ID] = &cp
	return nil
}

func (t *memTx) DeleteInvite(ctx context.Context, id int64) error {
	delete(t.st.invites, id)
	return nil
}
