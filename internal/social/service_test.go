package social

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rooksgc/rooksgc-dev-server/internal/apperr"
	"github.com/rooksgc/rooksgc-dev-server/internal/models"
	"github.com/rooksgc/rooksgc-dev-server/internal/store"
)

type emitted struct {
	target  string
	event   string
	payload any
	exclude string
}

type fakeEmitter struct {
	mu     sync.Mutex
	events []emitted
	joins  []string
	leaves []string
}

func (f *fakeEmitter) EmitToUser(userID int64, event string, payload any) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, emitted{target: "user:" + strconv.FormatInt(userID, 10), event: event, payload: payload})
	return 1
}

func (f *fakeEmitter) EmitToRoom(roomID, event string, payload any, exclude string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, emitted{target: "room:" + roomID, event: event, payload: payload, exclude: exclude})
	return 1
}

func (f *fakeEmitter) JoinUser(userID int64, roomID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joins = append(f.joins, strconv.FormatInt(userID, 10)+"->"+roomID)
	return 1
}

func (f *fakeEmitter) LeaveUser(userID int64, roomID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leaves = append(f.leaves, strconv.FormatInt(userID, 10)+"->"+roomID)
}

func (f *fakeEmitter) names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e.target+" "+e.event)
	}
	return out
}

type fixture struct {
	ctx   context.Context
	store *store.MemoryStore
	emit  *fakeEmitter
	svc   *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ds := store.NewMemoryStore()
	emit := &fakeEmitter{}
	return &fixture{
		ctx:   context.Background(),
		store: ds,
		emit:  emit,
		svc:   NewService(ds, emit, nil, zerolog.Nop()),
	}
}

func (f *fixture) user(t *testing.T, name string) *models.User {
	t.Helper()
	u, err := f.store.CreateUser(f.ctx, name, name+"@x.com", "hash")
	require.NoError(t, err)
	return u
}

func (f *fixture) reload(t *testing.T, id int64) *models.User {
	t.Helper()
	u, err := f.store.GetUserByID(f.ctx, id)
	require.NoError(t, err)
	require.NotNil(t, u)
	return u
}

// Scenario A
func TestCreateChannel(t *testing.T) {
	f := newFixture(t)
	owner := f.user(t, "a")

	id, err := f.svc.CreateChannel(f.ctx, CreateChannelInput{Name: "Devs", OwnerID: owner.ID})
	require.NoError(t, err)

	assert.Contains(t, f.reload(t, owner.ID).Channels, id)
	ch, err := f.store.GetChannel(f.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []int64{owner.ID}, ch.Members)
	assert.Empty(t, f.emit.names())
}

func TestCreateChannelErrors(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateChannel(f.ctx, CreateChannelInput{Name: "Devs", OwnerID: 404})
	assert.ErrorIs(t, err, apperr.ErrUserNotFound)

	_, err = f.svc.CreateChannel(f.ctx, CreateChannelInput{Name: "  ", OwnerID: 1})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestAddUserToChannel(t *testing.T) {
	f := newFixture(t)
	owner := f.user(t, "a")
	bob := f.user(t, "b")
	id, err := f.svc.CreateChannel(f.ctx, CreateChannelInput{Name: "Devs", OwnerID: owner.ID})
	require.NoError(t, err)

	dto, err := f.svc.AddUserToChannel(f.ctx, id, "b@x.com", "a")
	require.NoError(t, err)
	assert.Equal(t, bob.ID, dto.ID)
	assert.Contains(t, dto.Channels, id)

	ch, _ := f.store.GetChannel(f.ctx, id)
	assert.Equal(t, []int64{owner.ID, bob.ID}, ch.Members)
	assert.Contains(t, f.reload(t, bob.ID).Channels, id)

	room := models.RoomID(id)
	assert.Equal(t, []string{strconv.FormatInt(bob.ID, 10) + "->" + room}, f.emit.joins)
	assert.Equal(t, []string{
		"room:" + room + " " + models.EventMemberJoin,
		"user:" + strconv.FormatInt(bob.ID, 10) + " " + models.EventChannelAddUser,
	}, f.emit.names())

	_, err = f.svc.AddUserToChannel(f.ctx, id, "b@x.com", "a")
	assert.ErrorIs(t, err, apperr.ErrUserAllreadyInChannel)
	_, err = f.svc.AddUserToChannel(f.ctx, id, "nobody@x.com", "a")
	assert.ErrorIs(t, err, apperr.ErrEmailDoesNotExist)
	_, err = f.svc.AddUserToChannel(f.ctx, 999, "b@x.com", "a")
	assert.ErrorIs(t, err, apperr.ErrChannelNotFound)
	assert.Len(t, f.emit.names(), 2)
}

func TestLeaveChannel(t *testing.T) {
	f := newFixture(t)
	owner := f.user(t, "a")
	bob := f.user(t, "b")
	carol := f.user(t, "c")
	id, _ := f.svc.CreateChannel(f.ctx, CreateChannelInput{Name: "Devs", OwnerID: owner.ID})
	_, err := f.svc.AddUserToChannel(f.ctx, id, "b@x.com", "a")
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.LeaveChannel(f.ctx, id, owner.ID), apperr.ErrOwnerCannotLeave)
	assert.ErrorIs(t, f.svc.LeaveChannel(f.ctx, id, carol.ID), apperr.ErrNotChannelMember)
	assert.ErrorIs(t, f.svc.LeaveChannel(f.ctx, 999, bob.ID), apperr.ErrChannelNotFound)

	require.NoError(t, f.svc.LeaveChannel(f.ctx, id, bob.ID))
	ch, _ := f.store.GetChannel(f.ctx, id)
	assert.Equal(t, []int64{owner.ID}, ch.Members)
	assert.NotContains(t, f.reload(t, bob.ID).Channels, id)
	assert.Contains(t, f.emit.leaves, strconv.FormatInt(bob.ID, 10)+"->"+models.RoomID(id))
	assert.Contains(t, f.emit.names(), "room:"+models.RoomID(id)+" "+models.EventMemberLeave)
}

// Scenario B
func TestInviteFastPathCompletesContact(t *testing.T) {
	f := newFixture(t)
	a := f.user(t, "a")
	b := f.user(t, "b")
	require.NoError(t, f.store.WithTx(f.ctx, func(tx store.Tx) error {
		return tx.AddContact(f.ctx, b.ID, a.ID)
	}))

	res, err := f.svc.InviteToContacts(f.ctx, InviteInput{
		InviterID:    a.ID,
		InviterName:  "a",
		InviterEmail: "a@x.com",
		Email:        "b@x.com",
	})
	require.NoError(t, err)
	assert.True(t, res.ContactAdded)
	assert.Nil(t, res.Invite)
	assert.Contains(t, f.reload(t, a.ID).Contacts, b.ID)

	incoming, outgoing, err := f.svc.ListInvites(f.ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, incoming)
	assert.Empty(t, outgoing)
	assert.Equal(t, []string{"user:" + strconv.FormatInt(b.ID, 10) + " " + models.EventContactAdd}, f.emit.names())
}

func TestInviteUniqueness(t *testing.T) {
	f := newFixture(t)
	a := f.user(t, "a")
	b := f.user(t, "b")
	in := InviteInput{InviterID: a.ID, InviterName: "a", InviterEmail: "a@x.com", Email: "b@x.com", Text: "hi"}

	res, err := f.svc.InviteToContacts(f.ctx, in)
	require.NoError(t, err)
	require.NotNil(t, res.Invite)
	assert.False(t, res.ContactAdded)
	assert.Equal(t, b.ID, res.Invite.UserID)

	_, err = f.svc.InviteToContacts(f.ctx, in)
	assert.ErrorIs(t, err, apperr.ErrInviteAllreadyExists)
	assert.Equal(t, []string{"user:" + strconv.FormatInt(b.ID, 10) + " " + models.EventContactInvite}, f.emit.names())
}

func TestInviteErrors(t *testing.T) {
	f := newFixture(t)
	a := f.user(t, "a")
	b := f.user(t, "b")

	_, err := f.svc.InviteToContacts(f.ctx, InviteInput{InviterID: a.ID, InviterEmail: "a@x.com", Email: "A@x.com"})
	assert.ErrorIs(t, err, apperr.ErrCantAddSelfToContacts)

	_, err = f.svc.InviteToContacts(f.ctx, InviteInput{InviterID: a.ID, InviterEmail: "a@x.com", Email: "zz@x.com"})
	assert.ErrorIs(t, err, apperr.ErrEmailDoesNotExist)

	require.NoError(t, f.store.WithTx(f.ctx, func(tx store.Tx) error {
		return tx.AddContact(f.ctx, a.ID, b.ID)
	}))
	_, err = f.svc.InviteToContacts(f.ctx, InviteInput{InviterID: a.ID, InviterEmail: "a@x.com", Email: "b@x.com"})
	assert.ErrorIs(t, err, apperr.ErrContactAllreadyExist)
}

func TestAcceptInviteIsSymmetric(t *testing.T) {
	f := newFixture(t)
	a := f.user(t, "a")
	b := f.user(t, "b")
	_, err := f.svc.InviteToContacts(f.ctx, InviteInput{InviterID: a.ID, InviterEmail: "a@x.com", Email: "b@x.com"})
	require.NoError(t, err)

	inviter, err := f.svc.AddContact(f.ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, inviter.ID)

	assert.Contains(t, f.reload(t, a.ID).Contacts, b.ID)
	assert.Contains(t, f.reload(t, b.ID).Contacts, a.ID)
	incoming, _, _ := f.svc.ListInvites(f.ctx, b.ID)
	assert.Empty(t, incoming)

	last := f.emit.events[len(f.emit.events)-1]
	assert.Equal(t, "user:"+strconv.FormatInt(a.ID, 10), last.target)
	assert.Equal(t, models.EventContactAdd, last.event)
	assert.Equal(t, b.ID, last.payload.(models.UserDTO).ID)
}

func TestAcceptAfterFastPathSkipsExistingEdge(t *testing.T) {
	f := newFixture(t)
	a := f.user(t, "a")
	b := f.user(t, "b")
	require.NoError(t, f.store.WithTx(f.ctx, func(tx store.Tx) error {
		if err := tx.AddContact(f.ctx, b.ID, a.ID); err != nil {
			return err
		}
		return tx.CreateInvite(f.ctx, &models.Invite{InviterID: a.ID, UserID: b.ID, Type: models.InviteTypeContact})
	}))

	_, err := f.svc.AddContact(f.ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{a.ID}, f.reload(t, b.ID).Contacts)
	assert.Equal(t, []int64{b.ID}, f.reload(t, a.ID).Contacts)
}

// Scenario C
func TestAcceptWithoutInvite(t *testing.T) {
	f := newFixture(t)
	a := f.user(t, "a")
	b := f.user(t, "b")

	_, err := f.svc.AddContact(f.ctx, a.ID, b.ID)
	assert.ErrorIs(t, err, apperr.ErrInviteWasCancelled)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	assert.Empty(t, f.reload(t, a.ID).Contacts)
	assert.Empty(t, f.reload(t, b.ID).Contacts)
	assert.Empty(t, f.emit.names())
}

// Scenario D
func TestConcurrentAcceptsKeepBothEdges(t *testing.T) {
	f := newFixture(t)
	a := f.user(t, "a")
	b := f.user(t, "b")
	c := f.user(t, "c")
	for _, email := range []string{"b@x.com", "c@x.com"} {
		_, err := f.svc.InviteToContacts(f.ctx, InviteInput{InviterID: a.ID, InviterEmail: "a@x.com", Email: email})
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, invitee := range []int64{b.ID, c.ID} {
		wg.Add(1)
		go func(i int, invitee int64) {
			defer wg.Done()
			_, errs[i] = f.svc.AddContact(f.ctx, a.ID, invitee)
		}(i, invitee)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.ElementsMatch(t, []int64{b.ID, c.ID}, f.reload(t, a.ID).Contacts)
}

func TestConcurrentAcceptsOnSQLite(t *testing.T) {
	ctx := context.Background()
	ds, err := store.NewSQLiteStore(ctx, filepath.Join(t.TempDir(), "chat.db"))
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	t.Cleanup(func() { ds.Close() })
	svc := NewService(ds, &fakeEmitter{}, nil, zerolog.Nop())

	a, err := ds.CreateUser(ctx, "a", "a@x.com", "hash")
	require.NoError(t, err)
	const n = 20
	invitees := make([]int64, n)
	for i := range invitees {
		email := "u" + strconv.Itoa(i) + "@x.com"
		u, err := ds.CreateUser(ctx, "u"+strconv.Itoa(i), email, "hash")
		require.NoError(t, err)
		invitees[i] = u.ID
		_, err = svc.InviteToContacts(ctx, InviteInput{InviterID: a.ID, InviterEmail: "a@x.com", Email: email})
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i, invitee := range invitees {
		wg.Add(1)
		go func(i int, invitee int64) {
			defer wg.Done()
			_, errs[i] = svc.AddContact(ctx, a.ID, invitee)
		}(i, invitee)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	inviter, err := ds.GetUserByID(ctx, a.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, invitees, inviter.Contacts)
	for _, id := range invitees {
		u, err := ds.GetUserByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, []int64{a.ID}, u.Contacts)
	}
	incoming, outgoing, err := ds.ListInvites(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, incoming)
	assert.Empty(t, outgoing)
}

func TestAllUsersAndChangePhoto(t *testing.T) {
	f := newFixture(t)
	a := f.user(t, "a")
	b := f.user(t, "b")

	users, err := f.svc.AllUsers(f.ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, a.ID, users[0].ID)
	assert.Equal(t, b.ID, users[1].ID)

	dto, err := f.svc.ChangePhoto(f.ctx, b.ID, "https://cdn.example.com/b.png")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/b.png", dto.Photo)
	assert.Equal(t, "https://cdn.example.com/b.png", f.reload(t, b.ID).Photo)

	_, err = f.svc.ChangePhoto(f.ctx, 999, "https://cdn.example.com/x.png")
	assert.ErrorIs(t, err, apperr.ErrUserNotFound)
}

func TestRemoveContact(t *testing.T) {
	f := newFixture(t)
	a := f.user(t, "a")
	b := f.user(t, "b")
	link := func() {
		require.NoError(t, f.store.WithTx(f.ctx, func(tx store.Tx) error {
			if err := tx.AddContact(f.ctx, a.ID, b.ID); err != nil {
				return err
			}
			return tx.AddContact(f.ctx, b.ID, a.ID)
		}))
	}

	link()
	require.NoError(t, f.svc.RemoveContact(f.ctx, a.ID, b.ID, false))
	assert.Nil(t, f.reload(t, a.ID).ToDTO().Contacts)
	assert.Equal(t, []int64{a.ID}, f.reload(t, b.ID).Contacts)
	assert.Empty(t, f.emit.names())

	link()
	require.NoError(t, f.svc.RemoveContact(f.ctx, a.ID, b.ID, true))
	assert.Empty(t, f.reload(t, a.ID).Contacts)
	assert.Empty(t, f.reload(t, b.ID).Contacts)
	assert.Equal(t, []string{"user:" + strconv.FormatInt(b.ID, 10) + " " + models.EventContactRemove}, f.emit.names())

	assert.ErrorIs(t, f.svc.RemoveContact(f.ctx, a.ID, b.ID, false), apperr.ErrContactNotFound)
	assert.ErrorIs(t, f.svc.RemoveContact(f.ctx, a.ID, 999, false), apperr.ErrUserNotFound)
}

func TestRemoveInvite(t *testing.T) {
	f := newFixture(t)
	a := f.user(t, "a")
	b := f.user(t, "b")
	invite := func() {
		_, err := f.svc.InviteToContacts(f.ctx, InviteInput{InviterID: a.ID, InviterEmail: "a@x.com", Email: "b@x.com"})
		require.NoError(t, err)
	}

	invite()
	require.NoError(t, f.svc.RemoveInvite(f.ctx, a.ID, b.ID, RemoveByInviter))
	invite()
	require.NoError(t, f.svc.RemoveInvite(f.ctx, a.ID, b.ID, RemoveByInvitee))

	bu := "user:" + strconv.FormatInt(b.ID, 10)
	au := "user:" + strconv.FormatInt(a.ID, 10)
	assert.Equal(t, []string{
		bu + " " + models.EventContactInvite,
		bu + " " + models.EventInviteCancel,
		bu + " " + models.EventContactInvite,
		au + " " + models.EventInviteRemove,
	}, f.emit.names())

	assert.ErrorIs(t, f.svc.RemoveInvite(f.ctx, a.ID, b.ID, RemoveByInviter), apperr.ErrInviteDoesNotExists)
}

type failingStore struct {
	*store.MemoryStore
}

func (s failingStore) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return s.MemoryStore.WithTx(ctx, func(tx store.Tx) error {
		return fn(failingTx{Tx: tx})
	})
}

type failingTx struct {
	store.Tx
}

func (failingTx) DeleteInvite(ctx context.Context, id int64) error {
	return errors.New("disk on fire")
}

func TestFailedTransactionRollsBackAndStaysQuiet(t *testing.T) {
	f := newFixture(t)
	a := f.user(t, "a")
	b := f.user(t, "b")
	_, err := f.svc.InviteToContacts(f.ctx, InviteInput{InviterID: a.ID, InviterEmail: "a@x.com", Email: "b@x.com"})
	require.NoError(t, err)
	before := len(f.emit.names())

	svc := NewService(failingStore{f.store}, f.emit, nil, zerolog.Nop())
	_, err = svc.AddContact(f.ctx, a.ID, b.ID)
	require.Error(t, err)
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))

	assert.Empty(t, f.reload(t, a.ID).Contacts)
	assert.Empty(t, f.reload(t, b.ID).Contacts)
	incoming, _, _ := f.svc.ListInvites(f.ctx, b.ID)
	assert.Len(t, incoming, 1)
	assert.Len(t, f.emit.names(), before)
}

func TestPopulate(t *testing.T) {
	f := newFixture(t)
	a := f.user(t, "a")
	b := f.user(t, "b")
	c := f.user(t, "c")
	id, _ := f.svc.CreateChannel(f.ctx, CreateChannelInput{Name: "Devs", OwnerID: a.ID})

	contacts, err := f.svc.PopulateContacts(f.ctx, a.ID, "["+strconv.FormatInt(c.ID, 10)+","+strconv.FormatInt(b.ID, 10)+",999]")
	require.NoError(t, err)
	require.Len(t, contacts, 2)
	assert.Equal(t, b.ID, contacts[0].ID)
	assert.Equal(t, c.ID, contacts[1].ID)

	channels, err := f.svc.PopulateChannels(f.ctx, "["+strconv.FormatInt(id, 10)+"]")
	require.NoError(t, err)
	require.Len(t, channels, 1)
	assert.Equal(t, "Devs", channels[0].Name)

	empty, err := f.svc.PopulateChannels(f.ctx, "null")
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = f.svc.PopulateContacts(f.ctx, a.ID, "[1,")
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = f.svc.PopulateChannels(f.ctx, `{"id":1}`)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

type memHistory struct {
	mu   sync.Mutex
	msgs []models.Message
	dms  []models.DirectMessage
}

func (h *memHistory) AddMessage(ctx context.Context, msg *models.Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	msg.ID = strconv.Itoa(len(h.msgs) + 1)
	h.msgs = append(h.msgs, *msg)
	return nil
}

func (h *memHistory) GetChannelMessages(ctx context.Context, channelID string, limit int, before int64) ([]models.Message, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []models.Message
	for i := len(h.msgs) - 1; i >= 0 && len(out) < limit; i-- {
		if h.msgs[i].ChannelID == channelID {
			out = append(out, h.msgs[i])
		}
	}
	return out, nil
}

func (h *memHistory) StoreDM(ctx context.Context, dm *models.DirectMessage) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dms = append(h.dms, *dm)
	return nil
}

func (h *memHistory) GetDMsForUser(ctx context.Context, userID int64, limit int) ([]models.DirectMessage, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []models.DirectMessage
	for _, dm := range h.dms {
		if dm.ToID == userID {
			out = append(out, dm)
		}
	}
	return out, nil
}

func TestChannelMessages(t *testing.T) {
	f := newFixture(t)
	hist := &memHistory{}
	svc := NewService(f.store, f.emit, hist, zerolog.Nop())
	a := f.user(t, "a")
	b := f.user(t, "b")
	id, _ := svc.CreateChannel(f.ctx, CreateChannelInput{Name: "Devs", OwnerID: a.ID})

	msg, err := svc.SendChannelMessage(f.ctx, ChannelMessageInput{
		FromID:    a.ID,
		ChannelID: id,
		Message:   json.RawMessage(`{"text":"hello","author":"a"}`),
		Exclude:   "conn-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", msg.Text)

	last := f.emit.events[len(f.emit.events)-1]
	assert.Equal(t, "room:"+models.RoomID(id), last.target)
	assert.Equal(t, "conn-1", last.exclude)
	assert.JSONEq(t, `{"text":"hello","author":"a"}`, string(last.payload.(ChannelBroadcast).Message))

	_, err = svc.SendChannelMessage(f.ctx, ChannelMessageInput{FromID: b.ID, ChannelID: id, Message: json.RawMessage(`"hi"`)})
	assert.ErrorIs(t, err, apperr.ErrNotChannelMember)
	_, err = svc.SendChannelMessage(f.ctx, ChannelMessageInput{FromID: a.ID, ChannelID: id, Message: json.RawMessage(`42`)})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	history, err := svc.ChannelMessages(f.ctx, id, a.ID, 50, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "hello", history[0].Text)

	_, err = svc.ChannelMessages(f.ctx, id, b.ID, 50, 0)
	assert.ErrorIs(t, err, apperr.ErrNotChannelMember)
}

func TestPrivateMessages(t *testing.T) {
	f := newFixture(t)
	hist := &memHistory{}
	svc := NewService(f.store, f.emit, hist, zerolog.Nop())
	a := f.user(t, "a")
	b := f.user(t, "b")

	_, err := svc.SendPrivateMessage(f.ctx, PrivateMessageInput{FromID: a.ID, ToID: b.ID, Message: json.RawMessage(`"psst"`)})
	require.NoError(t, err)
	assert.Equal(t, []string{"user:" + strconv.FormatInt(b.ID, 10) + " " + models.EventContactPrivate}, f.emit.names())

	dms, err := svc.DirectMessages(f.ctx, b.ID, 10)
	require.NoError(t, err)
	require.Len(t, dms, 1)
	assert.Equal(t, "psst", dms[0].Text)
	assert.Equal(t, a.ID, dms[0].FromID)

	_, err = svc.SendPrivateMessage(f.ctx, PrivateMessageInput{FromID: a.ID, ToID: 999, Message: json.RawMessage(`"x"`)})
	assert.ErrorIs(t, err, apperr.ErrUserNotFound)
}
