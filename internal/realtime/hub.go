package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"github.com/rooksgc/rooksgc-dev-server/internal/metrics"
	"github.com/rooksgc/rooksgc-dev-server/internal/models"
	"github.com/rooksgc/rooksgc-dev-server/internal/presence"
	"github.com/rooksgc/rooksgc-dev-server/internal/rooms"
)

// Conn is one live client connection as seen by the Hub.
type Conn interface {
	ID() string
	UserID() int64
	// Send enqueues a pre-encoded frame without blocking. It returns false
	// when the frame could not be queued.
	Send(frame []byte) bool
	Close()
}

// Envelope is the wire format of every event in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// HandlerFunc handles one inbound event from c.
type HandlerFunc func(ctx context.Context, c Conn, data json.RawMessage) error

// Hub routes events between connections. It owns the connection table and
// combines the presence registry (user fanout) with the room manager (room
// fanout).
//
// Each emit encodes its payload once and enqueues the frame on every target
// connection in a single pass, so events emitted sequentially by one caller
// reach each connection in that order.
type Hub struct {
	log      zerolog.Logger
	presence *presence.Registry
	rooms    *rooms.Manager

	conns sync.Map // connection id -> Conn

	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// NewHub creates a Hub on top of the given registry and room manager.
func NewHub(log zerolog.Logger, reg *presence.Registry, rm *rooms.Manager) *Hub {
	return &Hub{
		log:      log.With().Str("component", "hub").Logger(),
		presence: reg,
		rooms:    rm,
		handlers: make(map[string]HandlerFunc),
	}
}

// Presence returns the underlying connection registry.
func (h *Hub) Presence() *presence.Registry { return h.presence }

// Rooms returns the underlying room manager.
func (h *Hub) Rooms() *rooms.Manager { return h.rooms }

// On installs the handler for an inbound event, replacing any previous one.
func (h *Hub) On(event string, fn HandlerFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[event] = fn
}

// Register admits c into the registry, sends it the current presence
// snapshot and announces it to every other connection.
func (h *Hub) Register(c Conn) {
	h.conns.Store(c.ID(), c)
	if h.presence.Admit(c.UserID(), c.ID()) {
		metrics.UsersOnline.Inc()
	}
	metrics.ConnectionsActive.Inc()

	h.log.Debug().
		Str("conn_id", c.ID()).
		Int64("user_id", c.UserID()).
		Msg("connection admitted")

	h.EmitToConnection(c.ID(), models.EventUsersConnected, h.presence.Snapshot())
	h.Broadcast(models.EventUserConnected, UserConnectedPayload{
		SocketID: c.ID(),
		UserID:   c.UserID(),
	}, c.ID())
}

// Unregister removes c from the connection table, every room and the
// registry. Calling it more than once is harmless.
func (h *Hub) Unregister(c Conn) {
	if _, loaded := h.conns.LoadAndDelete(c.ID()); !loaded {
		return
	}
	h.rooms.LeaveAll(c.ID())
	if h.presence.Remove(c.UserID(), c.ID()) {
		metrics.UsersOnline.Dec()
	}
	metrics.ConnectionsActive.Dec()

	h.log.Debug().
		Str("conn_id", c.ID()).
		Int64("user_id", c.UserID()).
		Msg("connection removed")
}

func (h *Hub) conn(id string) (Conn, bool) {
	v, ok := h.conns.Load(id)
	if !ok {
		return nil, false
	}
	return v.(Conn), true
}

// Dispatch runs the handler registered for env.Event.
func (h *Hub) Dispatch(ctx context.Context, c Conn, env Envelope) error {
	h.mu.RLock()
	fn, ok := h.handlers[env.Event]
	h.mu.RUnlock()
	if !ok {
		return ErrUnknownEvent
	}
	return fn(ctx, c, env.Data)
}

func (h *Hub) encode(event string, payload any) ([]byte, bool) {
	frame, err := json.Marshal(outbound{Event: event, Data: payload})
	if err != nil {
		h.log.Error().Err(err).Str("event", event).Msg("failed to encode event")
		return nil, false
	}
	return frame, true
}

func (h *Hub) deliver(ids []string, exclude, event, mode string, frame []byte) int {
	delivered := 0
	for _, id := range ids {
		if id == exclude {
			continue
		}
		c, ok := h.conn(id)
		if !ok {
			metrics.EventsDropped.WithLabelValues("closed").Inc()
			continue
		}
		if c.Send(frame) {
			delivered++
		} else {
			metrics.EventsDropped.WithLabelValues("slow_consumer").Inc()
		}
	}
	metrics.EventsEmitted.WithLabelValues(event, mode).Add(float64(delivered))
	return delivered
}

// EmitToUser pushes an event to every live connection of userID and returns
// how many connections it was queued on. Offline users are a silent no-op.
func (h *Hub) EmitToUser(userID int64, event string, payload any) int {
	ids := h.presence.LiveConnections(userID)
	if len(ids) == 0 {
		metrics.EventsDropped.WithLabelValues("offline").Inc()
		return 0
	}
	frame, ok := h.encode(event, payload)
	if !ok {
		return 0
	}
	return h.deliver(ids, "", event, "user", frame)
}

// EmitToRoom pushes an event to every connection subscribed to roomID
// except exclude (which may be empty).
func (h *Hub) EmitToRoom(roomID, event string, payload any, exclude string) int {
	ids := h.rooms.Members(roomID)
	if len(ids) == 0 {
		return 0
	}
	frame, ok := h.encode(event, payload)
	if !ok {
		return 0
	}
	return h.deliver(ids, exclude, event, "room", frame)
}

// EmitToConnection pushes an event to a single connection.
func (h *Hub) EmitToConnection(connID, event string, payload any) bool {
	frame, ok := h.encode(event, payload)
	if !ok {
		return false
	}
	return h.deliver([]string{connID}, "", event, "connection", frame) == 1
}

// Broadcast pushes an event to every live connection except exclude.
func (h *Hub) Broadcast(event string, payload any, exclude string) int {
	var ids []string
	h.conns.Range(func(key, _ any) bool {
		ids = append(ids, key.(string))
		return true
	})
	if len(ids) == 0 {
		return 0
	}
	frame, ok := h.encode(event, payload)
	if !ok {
		return 0
	}
	return h.deliver(ids, exclude, event, "broadcast", frame)
}

// Subscribe joins connID to roomID if the connection is still live.
func (h *Hub) Subscribe(connID, roomID string) bool {
	h.rooms.Join(connID, roomID)
	// A concurrent Unregister may have run LeaveAll before our Join landed.
	if _, ok := h.conn(connID); !ok {
		h.rooms.Leave(connID, roomID)
		return false
	}
	return true
}

// Unsubscribe removes connID from roomID.
func (h *Hub) Unsubscribe(connID, roomID string) {
	h.rooms.Leave(connID, roomID)
}

// JoinUser subscribes every live connection of userID to roomID.
func (h *Hub) JoinUser(userID int64, roomID string) int {
	n := 0
	for _, id := range h.presence.LiveConnections(userID) {
		if h.Subscribe(id, roomID) {
			n++
		}
	}
	return n
}

// LeaveUser unsubscribes every live connection of userID from roomID.
func (h *Hub) LeaveUser(userID int64, roomID string) {
	for _, id := range h.presence.LiveConnections(userID) {
		h.rooms.Leave(id, roomID)
	}
}

// CloseAll closes every live connection. Used on shutdown.
func (h *Hub) CloseAll() {
	h.conns.Range(func(_, v any) bool {
		v.(Conn).Close()
		return true
	})
}
