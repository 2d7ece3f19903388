package social

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/rooksgc/rooksgc-dev-server/internal/apperr"
	"github.com/rooksgc/rooksgc-dev-server/internal/metrics"
	"github.com/rooksgc/rooksgc-dev-server/internal/models"
)

const maxMessageLength = 4000

// ChannelMessageInput is a message sent to a channel room. Exclude is the
// sending connection, which does not get its own message echoed back.
type ChannelMessageInput struct {
	FromID    int64
	ChannelID int64
	Message   json.RawMessage
	Exclude   string
}

// PrivateMessageInput is a message sent to a single user.
type PrivateMessageInput struct {
	FromID  int64
	ToID    int64
	Message json.RawMessage
}

// ChannelBroadcast is the payload of channel:message:broadcast.
type ChannelBroadcast struct {
	ActiveChannelID string          `json:"activeChannelId"`
	Message         json.RawMessage `json:"message"`
}

// PrivateDelivery is the payload of contact:message:private.
type PrivateDelivery struct {
	From    int64           `json:"from"`
	Message json.RawMessage `json:"message"`
}

// messageText pulls the text out of a client message, which is either a
// JSON string or an object with a "text" field.
func messageText(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", apperr.Validation("message is required")
	}
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		var obj struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(raw, &obj); err != nil {
			return "", apperr.Validation("message must be a string or an object with text")
		}
		text = obj.Text
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", apperr.Validation("message text is required")
	}
	if len(text) > maxMessageLength {
		return "", apperr.Validation("message too long")
	}
	return text, nil
}

// SendChannelMessage records a message in the channel history and fans it
// out to the channel room. The sender must be a member.
func (s *Service) SendChannelMessage(ctx context.Context, in ChannelMessageInput) (*models.Message, error) {
	text, err := messageText(in.Message)
	if err != nil {
		return nil, err
	}
	member, err := s.IsChannelMember(ctx, in.ChannelID, in.FromID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, apperr.ErrNotChannelMember
	}

	msg := &models.Message{
		ID:        ulid.Make().String(),
		ChannelID: models.RoomID(in.ChannelID),
		FromID:    in.FromID,
		Text:      text,
		Timestamp: time.Now().UnixMilli(),
	}
	if s.history != nil {
		if err := s.history.AddMessage(ctx, msg); err != nil {
			s.log.Warn().Err(err).Int64("channel_id", in.ChannelID).Msg("failed to store channel message")
		}
	}

	s.emitter.EmitToRoom(msg.ChannelID, models.EventChannelBroadcast, ChannelBroadcast{
		ActiveChannelID: msg.ChannelID,
		Message:         in.Message,
	}, in.Exclude)
	metrics.MessagesSent.WithLabelValues("channel").Inc()
	return msg, nil
}

// SendPrivateMessage records a message in the recipient's inbox and pushes
// it to every live connection of the recipient.
func (s *Service) SendPrivateMessage(ctx context.Context, in PrivateMessageInput) (*models.DirectMessage, error) {
	text, err := messageText(in.Message)
	if err != nil {
		return nil, err
	}
	to, err := s.store.GetUserByID(ctx, in.ToID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if to == nil {
		return nil, apperr.ErrUserNotFound
	}

	dm := &models.DirectMessage{
		ID:        ulid.Make().String(),
		FromID:    in.FromID,
		ToID:      to.ID,
		Text:      text,
		Timestamp: time.Now().UnixMilli(),
	}
	if s.history != nil {
		if err := s.history.StoreDM(ctx, dm); err != nil {
			s.log.Warn().Err(err).Int64("to", to.ID).Msg("failed to store private message")
		}
	}

	s.emitter.EmitToUser(to.ID, models.EventContactPrivate, PrivateDelivery{
		From:    in.FromID,
		Message: in.Message,
	})
	metrics.MessagesSent.WithLabelValues("private").Inc()
	return dm, nil
}

// ChannelMessages returns the newest messages of a channel the caller
// belongs to. before is an exclusive Unix ms bound; 0 means now.
func (s *Service) ChannelMessages(ctx context.Context, channelID, userID int64, limit int, before int64) ([]models.Message, error) {
	member, err := s.IsChannelMember(ctx, channelID, userID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, apperr.ErrNotChannelMember
	}
	if s.history == nil {
		return []models.Message{}, nil
	}
	msgs, err := s.history.GetChannelMessages(ctx, models.RoomID(channelID), limit, before)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return msgs, nil
}

// DirectMessages returns the newest private messages addressed to userID.
func (s *Service) DirectMessages(ctx context.Context, userID int64, limit int) ([]models.DirectMessage, error) {
	if s.history == nil {
		return []models.DirectMessage{}, nil
	}
	dms, err := s.history.GetDMsForUser(ctx, userID, limit)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return dms, nil
}
