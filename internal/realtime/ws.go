package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/rooksgc/rooksgc-dev-server/internal/apperr"
	"github.com/rooksgc/rooksgc-dev-server/internal/models"
)

// Identifier resolves a bearer token to a user id. auth.Authenticator
// implements it.
type Identifier interface {
	UserIDFromToken(token string) (int64, error)
}

// Options tunes the websocket transport.
type Options struct {
	PingPeriod     time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	SendBuffer     int
	MaxMessageSize int64
	AllowedOrigins []string
}

func (o *Options) defaults() {
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.PingPeriod <= 0 || o.PingPeriod >= o.PongWait {
		o.PingPeriod = o.PongWait * 9 / 10
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 256
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 64 * 1024
	}
}

// Server upgrades HTTP requests on /ws into hub connections.
type Server struct {
	hub      *Hub
	ident    Identifier
	opts     Options
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

// NewServer creates a websocket Server.
func NewServer(hub *Hub, ident Identifier, opts Options, log zerolog.Logger) *Server {
	opts.defaults()
	s := &Server{
		hub:   hub,
		ident: ident,
		opts:  opts,
		log:   log.With().Str("component", "ws").Logger(),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.opts.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range s.opts.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// authenticate resolves the handshake identity. A userId query attribute,
// when present, must agree with the token.
func (s *Server) authenticate(r *http.Request) (int64, error) {
	token := r.URL.Query().Get("token")
	if token == "" {
		if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
			token = strings.TrimPrefix(h, "Bearer ")
		}
	}
	if token == "" {
		return 0, apperr.ErrUnauthenticated
	}
	userID, err := s.ident.UserIDFromToken(token)
	if err != nil {
		return 0, apperr.ErrUnauthenticated
	}
	if raw := r.URL.Query().Get("userId"); raw != "" {
		claimed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || claimed != userID {
			return 0, apperr.ErrUnauthenticated
		}
	}
	return userID, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, err := s.authenticate(r)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"error": apperr.ErrUnauthenticated.Message})
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		s.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &client{
		id:     ulid.Make().String(),
		userID: userID,
		ws:     ws,
		send:   make(chan []byte, s.opts.SendBuffer),
		done:   make(chan struct{}),
		opts:   s.opts,
	}
	c.log = s.log.With().
		Str("conn_id", c.id).
		Str("session_id", uuid.NewString()).
		Int64("user_id", userID).
		Logger()

	s.hub.Register(c)
	go c.writePump()
	c.readPump(r.Context(), s.hub)
}

// client is a single websocket connection. Frames queued on send are
// written by writePump alone, which keeps per-connection delivery FIFO.
type client struct {
	id     string
	userID int64
	ws     *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
	opts   Options
	log    zerolog.Logger
}

func (c *client) ID() string    { return c.id }
func (c *client) UserID() int64 { return c.userID }

// Send queues frame. A full queue means the peer is not keeping up, so the
// connection is closed rather than letting it hold memory.
func (c *client) Send(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		c.log.Warn().Msg("send queue full, dropping connection")
		c.Close()
		return false
	}
}

func (c *client) Close() {
	c.once.Do(func() {
		close(c.done)
	})
}

func (c *client) readPump(ctx context.Context, hub *Hub) {
	defer func() {
		hub.Unregister(c)
		c.Close()
		c.ws.Close()
	}()

	c.ws.SetReadLimit(c.opts.MaxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug().Err(err).Msg("connection closed unexpectedly")
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
			c.reportError(hub, env.Event, ErrMalformedEvent)
			continue
		}
		if err := hub.Dispatch(ctx, c, env); err != nil {
			c.reportError(hub, env.Event, err)
		}
	}
}

func (c *client) reportError(hub *Hub, event string, err error) {
	if apperr.KindOf(err) == apperr.KindInternal {
		c.log.Error().Err(err).Str("event", event).Msg("event handler failed")
	}
	msg := "internal error"
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		msg = appErr.Message
	}
	hub.EmitToConnection(c.id, models.EventError, ErrorPayload{
		Event: event,
		Code:  apperr.CodeOf(err),
		Error: msg,
	})
}

func (c *client) writePump() {
	ticker := time.NewTicker(c.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.Close()
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
