package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"strconv"

	"github.com/rooksgc/rooksgc-dev-server/internal/apperr"
	"github.com/rooksgc/rooksgc-dev-server/internal/models"
	"github.com/rooksgc/rooksgc-dev-server/internal/social"
)

var (
	ErrUnknownEvent   = apperr.Validation("unknown event")
	ErrMalformedEvent = apperr.Validation("malformed event payload")
)

// UserConnectedPayload announces a newly admitted connection.
type UserConnectedPayload struct {
	SocketID string `json:"socketId"`
	UserID   int64  `json:"userId"`
}

// ErrorPayload reports a failed inbound event back to its sender.
type ErrorPayload struct {
	Event string `json:"event"`
	Code  string `json:"code"`
	Error string `json:"error"`
}

// Backend is the persistence side of inbound socket events.
// social.Service implements it.
type Backend interface {
	IsChannelMember(ctx context.Context, channelID, userID int64) (bool, error)
	LeaveChannel(ctx context.Context, channelID, userID int64) error
	SendChannelMessage(ctx context.Context, in social.ChannelMessageInput) (*models.Message, error)
	SendPrivateMessage(ctx context.Context, in social.PrivateMessageInput) (*models.DirectMessage, error)
}

// flexID accepts an id sent as a number, a numeric string or an {"id": ...}
// object. Clients are not consistent about which one they send.
type flexID int64

func (f *flexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '{' {
		var obj struct {
			ID flexID `json:"id"`
		}
		if err := json.Unmarshal(b, &obj); err != nil {
			return err
		}
		*f = obj.ID
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return err
		}
		*f = flexID(n)
		return nil
	}
	var n int64
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexID(n)
	return nil
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return ErrMalformedEvent
	}
	if err := json.Unmarshal(data, v); err != nil {
		return ErrMalformedEvent
	}
	return nil
}

// RegisterEvents installs the handlers for every client event.
func RegisterEvents(h *Hub, b Backend) {
	h.On(models.EventChannelsSubscribe, func(ctx context.Context, c Conn, data json.RawMessage) error {
		ids, err := decodeChannelList(data)
		if err != nil {
			return err
		}
		for _, id := range ids {
			ok, err := b.IsChannelMember(ctx, int64(id), c.UserID())
			if err != nil || !ok {
				continue
			}
			h.Subscribe(c.ID(), models.RoomID(int64(id)))
		}
		return nil
	})

	h.On(models.EventChannelSubscribe, func(ctx context.Context, c Conn, data json.RawMessage) error {
		var id flexID
		if err := decode(data, &id); err != nil {
			return err
		}
		ok, err := b.IsChannelMember(ctx, int64(id), c.UserID())
		if err != nil {
			return err
		}
		if !ok {
			return apperr.ErrNotChannelMember
		}
		h.Subscribe(c.ID(), models.RoomID(int64(id)))
		return nil
	})

	h.On(models.EventChannelLeave, func(ctx context.Context, c Conn, data json.RawMessage) error {
		var req struct {
			ChannelID flexID `json:"channelId"`
			UserID    flexID `json:"userId"`
		}
		if err := decode(data, &req); err != nil {
			return err
		}
		if req.UserID != 0 && int64(req.UserID) != c.UserID() {
			return apperr.ErrUnauthorized
		}
		return b.LeaveChannel(ctx, int64(req.ChannelID), c.UserID())
	})

	h.On(models.EventChannelInvite, func(ctx context.Context, c Conn, data json.RawMessage) error {
		var req struct {
			UserID    flexID `json:"userId"`
			ChannelID flexID `json:"channelId"`
		}
		if err := decode(data, &req); err != nil {
			return err
		}
		channelID := int64(req.ChannelID)
		ok, err := b.IsChannelMember(ctx, channelID, c.UserID())
		if err != nil {
			return err
		}
		if !ok {
			return apperr.ErrNotChannelMember
		}
		// The invitee must already have been added through the API.
		ok, err = b.IsChannelMember(ctx, channelID, int64(req.UserID))
		if err != nil {
			return err
		}
		if !ok {
			return apperr.ErrNotChannelMember
		}
		h.JoinUser(int64(req.UserID), models.RoomID(channelID))
		return nil
	})

	h.On(models.EventChannelMessageSend, func(ctx context.Context, c Conn, data json.RawMessage) error {
		var req struct {
			ActiveChannelID flexID          `json:"activeChannelId"`
			Message         json.RawMessage `json:"message"`
		}
		if err := decode(data, &req); err != nil {
			return err
		}
		_, err := b.SendChannelMessage(ctx, social.ChannelMessageInput{
			FromID:    c.UserID(),
			ChannelID: int64(req.ActiveChannelID),
			Message:   req.Message,
			Exclude:   c.ID(),
		})
		return err
	})

	h.On(models.EventContactMessageSend, func(ctx context.Context, c Conn, data json.RawMessage) error {
		var req struct {
			From    flexID          `json:"from"`
			To      flexID          `json:"to"`
			Message json.RawMessage `json:"message"`
		}
		if err := decode(data, &req); err != nil {
			return err
		}
		if req.From != 0 && int64(req.From) != c.UserID() {
			return apperr.ErrUnauthorized
		}
		_, err := b.SendPrivateMessage(ctx, social.PrivateMessageInput{
			FromID:  c.UserID(),
			ToID:    int64(req.To),
			Message: req.Message,
		})
		return err
	})

	relays := map[string]string{
		models.EventContactInviteRequest: models.EventContactInvite,
		models.EventContactAddRequest:    models.EventContactAdd,
		models.EventInviteRemoveRequest:  models.EventInviteRemove,
		models.EventInviteCancelRequest:  models.EventInviteCancel,
	}
	for in, out := range relays {
		h.On(in, relayContact(h, out))
	}

	h.On(models.EventChannelAddUserReq, func(ctx context.Context, c Conn, data json.RawMessage) error {
		var req struct {
			To          flexID          `json:"to"`
			InviterName string          `json:"inviterName"`
			Channel     json.RawMessage `json:"channel"`
		}
		if err := decode(data, &req); err != nil {
			return err
		}
		h.EmitToUser(int64(req.To), models.EventChannelAddUser, struct {
			InviterName string          `json:"inviterName"`
			Channel     json.RawMessage `json:"channel"`
		}{req.InviterName, req.Channel})
		return nil
	})
}

// relayContact forwards {to, contact} requests to every connection of "to".
func relayContact(h *Hub, event string) HandlerFunc {
	return func(ctx context.Context, c Conn, data json.RawMessage) error {
		var req struct {
			To      flexID          `json:"to"`
			Contact json.RawMessage `json:"contact"`
		}
		if err := decode(data, &req); err != nil {
			return err
		}
		h.EmitToUser(int64(req.To), event, req.Contact)
		return nil
	}
}

// decodeChannelList accepts [1,2], [{"id":1}] or {"userChannelsList":[...]}.
func decodeChannelList(data json.RawMessage) ([]flexID, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var wrapped struct {
			List []flexID `json:"userChannelsList"`
		}
		if err := decode(trimmed, &wrapped); err != nil {
			return nil, err
		}
		return wrapped.List, nil
	}
	var ids []flexID
	if err := decode(trimmed, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}
