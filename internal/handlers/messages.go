package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/rooksgc/rooksgc-dev-server/internal/api/middleware"
	"github.com/rooksgc/rooksgc-dev-server/internal/models"
	"github.com/rooksgc/rooksgc-dev-server/internal/social"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// ChannelMessagesResponse represents a page of channel history.
type ChannelMessagesResponse struct {
	ChannelID int64            `json:"channelId"`
	Messages  []models.Message `json:"messages"`
	HasMore   bool             `json:"has_more"`
}

// PostMessageRequest represents a message posted over REST. Message is a
// JSON string or an object with a "text" field.
type PostMessageRequest struct {
	Message json.RawMessage `json:"message" validate:"required"`
}

// PostMessageResponse represents the post message response.
type PostMessageResponse struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"ts"`
}

// GetChannelMessages returns channel history, newest first. Pages are
// walked with ?before=<ts of the oldest message seen>.
func (h *Handler) GetChannelMessages(w http.ResponseWriter, r *http.Request) {
	channelID, err := pathID(r, "id")
	if err != nil {
		h.Error(w, r, "channel_messages", err)
		return
	}

	limit := parseLimit(r)
	var before int64
	if b, err := strconv.ParseInt(r.URL.Query().Get("before"), 10, 64); err == nil && b > 0 {
		before = b
	}

	// Fetch one extra for the has_more check
	messages, err := h.social.ChannelMessages(r.Context(), channelID, middleware.GetUserIDFromContext(r.Context()), limit+1, before)
	if err != nil {
		h.Error(w, r, "channel_messages", err)
		return
	}

	hasMore := len(messages) > limit
	if hasMore {
		messages = messages[:limit]
	}

	h.OK(w, http.StatusOK, "", ChannelMessagesResponse{
		ChannelID: channelID,
		Messages:  messages,
		HasMore:   hasMore,
	})
}

// PostChannelMessage broadcasts a message to a channel the caller belongs to.
func (h *Handler) PostChannelMessage(w http.ResponseWriter, r *http.Request) {
	channelID, err := pathID(r, "id")
	if err != nil {
		h.Error(w, r, "post_channel_message", err)
		return
	}
	var req PostMessageRequest
	if err := h.decode(r, &req); err != nil {
		h.Error(w, r, "post_channel_message", err)
		return
	}

	msg, err := h.social.SendChannelMessage(r.Context(), social.ChannelMessageInput{
		FromID:    middleware.GetUserIDFromContext(r.Context()),
		ChannelID: channelID,
		Message:   req.Message,
	})
	if err != nil {
		h.Error(w, r, "post_channel_message", err)
		return
	}
	h.OK(w, http.StatusCreated, "message sent", PostMessageResponse{ID: msg.ID, Timestamp: msg.Timestamp})
}

// SendDM delivers a private message to a user.
func (h *Handler) SendDM(w http.ResponseWriter, r *http.Request) {
	toID, err := pathID(r, "id")
	if err != nil {
		h.Error(w, r, "send_dm", err)
		return
	}
	var req PostMessageRequest
	if err := h.decode(r, &req); err != nil {
		h.Error(w, r, "send_dm", err)
		return
	}

	dm, err := h.social.SendPrivateMessage(r.Context(), social.PrivateMessageInput{
		FromID:  middleware.GetUserIDFromContext(r.Context()),
		ToID:    toID,
		Message: req.Message,
	})
	if err != nil {
		h.Error(w, r, "send_dm", err)
		return
	}
	h.OK(w, http.StatusCreated, "message sent", PostMessageResponse{ID: dm.ID, Timestamp: dm.Timestamp})
}

// GetDMs returns the caller's recent private messages.
func (h *Handler) GetDMs(w http.ResponseWriter, r *http.Request) {
	dms, err := h.social.DirectMessages(r.Context(), middleware.GetUserIDFromContext(r.Context()), parseLimit(r))
	if err != nil {
		h.Error(w, r, "get_dms", err)
		return
	}
	h.OK(w, http.StatusOK, "", dms)
}

func parseLimit(r *http.Request) int {
	limit := defaultHistoryLimit
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 {
		limit = l
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	return limit
}
