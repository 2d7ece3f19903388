package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rooksgc/rooksgc-dev-server/internal/models"
	"github.com/rooksgc/rooksgc-dev-server/internal/presence"
	"github.com/rooksgc/rooksgc-dev-server/internal/rooms"
)

type fakeConn struct {
	id     string
	userID int64
	limit  int

	mu     sync.Mutex
	frames []outboundFrame
	closed bool
}

type outboundFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func newFakeConn(id string, userID int64) *fakeConn {
	return &fakeConn{id: id, userID: userID, limit: 1000}
}

func (c *fakeConn) ID() string    { return c.id }
func (c *fakeConn) UserID() int64 { return c.userID }

func (c *fakeConn) Send(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || len(c.frames) >= c.limit {
		return false
	}
	var f outboundFrame
	if err := json.Unmarshal(frame, &f); err != nil {
		panic(err)
	}
	c.frames = append(c.frames, f)
	return true
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) events(name string) []json.RawMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []json.RawMessage
	for _, f := range c.frames {
		if f.Event == name {
			out = append(out, f.Data)
		}
	}
	return out
}

func (c *fakeConn) names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.frames))
	for _, f := range c.frames {
		out = append(out, f.Event)
	}
	return out
}

func newTestHub() *Hub {
	return NewHub(zerolog.Nop(), presence.NewRegistry(), rooms.NewManager())
}

func TestRegisterAnnouncesConnection(t *testing.T) {
	h := newTestHub()
	c1 := newFakeConn("c1", 1)
	c2 := newFakeConn("c2", 2)

	h.Register(c1)
	h.Register(c2)

	assert.Equal(t, []string{models.EventUsersConnected, models.EventUserConnected}, c1.names())
	assert.Equal(t, []string{models.EventUsersConnected}, c2.names())

	var announced UserConnectedPayload
	require.NoError(t, json.Unmarshal(c1.events(models.EventUserConnected)[0], &announced))
	assert.Equal(t, UserConnectedPayload{SocketID: "c2", UserID: 2}, announced)

	var snapshot map[string][]string
	require.NoError(t, json.Unmarshal(c2.events(models.EventUsersConnected)[0], &snapshot))
	assert.Equal(t, []string{"c1"}, snapshot["1"])
	assert.Equal(t, []string{"c2"}, snapshot["2"])
}

func TestEmitToUserReachesEveryConnection(t *testing.T) {
	h := newTestHub()
	a1 := newFakeConn("a1", 1)
	a2 := newFakeConn("a2", 1)
	b := newFakeConn("b", 2)
	h.Register(a1)
	h.Register(a2)
	h.Register(b)

	n := h.EmitToUser(1, models.EventContactAdd, map[string]int{"id": 2})

	assert.Equal(t, 2, n)
	assert.Len(t, a1.events(models.EventContactAdd), 1)
	assert.Len(t, a2.events(models.EventContactAdd), 1)
	assert.Empty(t, b.events(models.EventContactAdd))

	assert.Zero(t, h.EmitToUser(99, models.EventContactAdd, nil))
}

func TestEmitToRoomHonoursExclude(t *testing.T) {
	h := newTestHub()
	a := newFakeConn("a", 1)
	b := newFakeConn("b", 2)
	c := newFakeConn("c", 3)
	for _, conn := range []*fakeConn{a, b, c} {
		h.Register(conn)
	}
	h.Subscribe("a", "10")
	h.Subscribe("b", "10")

	n := h.EmitToRoom("10", models.EventChannelBroadcast, "hi", "a")

	assert.Equal(t, 1, n)
	assert.Empty(t, a.events(models.EventChannelBroadcast))
	assert.Len(t, b.events(models.EventChannelBroadcast), 1)
	assert.Empty(t, c.events(models.EventChannelBroadcast))
}

func TestJoinAndLeaveUser(t *testing.T) {
	h := newTestHub()
	h.Register(newFakeConn("a1", 1))
	h.Register(newFakeConn("a2", 1))

	assert.Equal(t, 2, h.JoinUser(1, "7"))
	assert.ElementsMatch(t, []string{"a1", "a2"}, h.Rooms().Members("7"))

	h.LeaveUser(1, "7")
	assert.Empty(t, h.Rooms().Members("7"))
}

func TestUnregisterCleansUp(t *testing.T) {
	h := newTestHub()
	a := newFakeConn("a", 1)
	h.Register(a)
	h.Subscribe("a", "1")
	h.Subscribe("a", "2")

	h.Unregister(a)
	h.Unregister(a)

	assert.False(t, h.Presence().Online(1))
	assert.Zero(t, h.Rooms().Count())
	assert.False(t, h.Subscribe("a", "3"), "closed connection must not rejoin")
	assert.Empty(t, h.Rooms().Members("3"))
}

func TestSlowConsumerIsSkipped(t *testing.T) {
	h := newTestHub()
	slow := newFakeConn("slow", 1)
	slow.limit = 1
	fast := newFakeConn("fast", 1)
	h.Register(slow)
	h.Register(fast)

	n := h.EmitToUser(1, models.EventContactInvite, "x")
	assert.Equal(t, 1, n)
	assert.Len(t, fast.events(models.EventContactInvite), 1)
}

func TestEmitOrderIsPreservedPerConnection(t *testing.T) {
	h := newTestHub()
	a := newFakeConn("a", 1)
	h.Register(a)
	h.Subscribe("a", "5")

	h.EmitToRoom("5", models.EventMemberJoin, 1, "")
	h.EmitToUser(1, models.EventChannelAddUser, 2)
	h.EmitToRoom("5", models.EventMemberLeave, 3, "")

	assert.Equal(t, []string{
		models.EventUsersConnected,
		models.EventMemberJoin,
		models.EventChannelAddUser,
		models.EventMemberLeave,
	}, a.names())
}

func TestDispatch(t *testing.T) {
	h := newTestHub()
	a := newFakeConn("a", 1)

	var got string
	h.On("ping", func(ctx context.Context, c Conn, data json.RawMessage) error {
		got = c.ID() + string(data)
		return nil
	})

	require.NoError(t, h.Dispatch(context.Background(), a, Envelope{Event: "ping", Data: json.RawMessage(`1`)}))
	assert.Equal(t, "a1", got)
	assert.ErrorIs(t, h.Dispatch(context.Background(), a, Envelope{Event: "nope"}), ErrUnknownEvent)
}

func TestConcurrentRegisterAndEmit(t *testing.T) {
	h := newTestHub()
	var wg sync.WaitGroup
	conns := make([]*fakeConn, 50)
	for i := range conns {
		conns[i] = newFakeConn("c"+string(rune('A'+i)), int64(i%5))
		conns[i].limit = 1 << 20
	}

	for _, c := range conns {
		wg.Add(1)
		go func(c *fakeConn) {
			defer wg.Done()
			h.Register(c)
			h.Subscribe(c.ID(), "room")
			h.EmitToRoom("room", models.EventChannelBroadcast, "x", c.ID())
		}(c)
	}
	wg.Wait()

	_, total := h.Presence().Stats()
	assert.Equal(t, 50, total)
	assert.Len(t, h.Rooms().Members("room"), 50)
}
