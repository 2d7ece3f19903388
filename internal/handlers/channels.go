package handlers

import (
	"net/http"

	"github.com/rooksgc/rooksgc-dev-server/internal/api/middleware"
	"github.com/rooksgc/rooksgc-dev-server/internal/apperr"
	"github.com/rooksgc/rooksgc-dev-server/internal/social"
)

// CreateChannelRequest represents the channel creation request body.
type CreateChannelRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"max=1000"`
	Photo       string `json:"photo" validate:"omitempty,max=2048"`
}

// CreateChannelResponse represents the channel creation response.
type CreateChannelResponse struct {
	ID int64 `json:"id"`
}

// AddMemberRequest represents the add-member request body.
type AddMemberRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// CreateChannel creates a channel owned by the caller.
func (h *Handler) CreateChannel(w http.ResponseWriter, r *http.Request) {
	var req CreateChannelRequest
	if err := h.decode(r, &req); err != nil {
		h.Error(w, r, "create_channel", err)
		return
	}

	id, err := h.social.CreateChannel(r.Context(), social.CreateChannelInput{
		Name:        sanitizeName(req.Name),
		Description: req.Description,
		Photo:       req.Photo,
		OwnerID:     middleware.GetUserIDFromContext(r.Context()),
	})
	if err != nil {
		h.Error(w, r, "create_channel", err)
		return
	}
	h.OK(w, http.StatusCreated, "channel created", CreateChannelResponse{ID: id})
}

// UserChannels lists the caller's channels. A "list" query parameter (JSON
// id array) resolves those channels instead.
func (h *Handler) UserChannels(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userId")
	if err != nil {
		h.Error(w, r, "user_channels", err)
		return
	}
	if userID != middleware.GetUserIDFromContext(r.Context()) {
		h.Error(w, r, "user_channels", apperr.ErrUnauthorized)
		return
	}

	if list, ok := r.URL.Query()["list"]; ok {
		channels, err := h.social.PopulateChannels(r.Context(), list[0])
		if err != nil {
			h.Error(w, r, "populate_channels", err)
			return
		}
		h.OK(w, http.StatusOK, "", channels)
		return
	}

	channels, err := h.social.UserChannels(r.Context(), userID)
	if err != nil {
		h.Error(w, r, "user_channels", err)
		return
	}
	h.OK(w, http.StatusOK, "", channels)
}

// AddChannelMember adds a user, by email, to a channel the caller belongs to.
func (h *Handler) AddChannelMember(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	channelID, err := pathID(r, "id")
	if err != nil {
		h.Error(w, r, "add_channel_member", err)
		return
	}
	var req AddMemberRequest
	if err := h.decode(r, &req); err != nil {
		h.Error(w, r, "add_channel_member", err)
		return
	}

	callerID := middleware.GetUserIDFromContext(ctx)
	member, err := h.social.IsChannelMember(ctx, channelID, callerID)
	if err != nil {
		h.Error(w, r, "add_channel_member", err)
		return
	}
	if !member {
		h.Error(w, r, "add_channel_member", apperr.ErrNotChannelMember)
		return
	}
	caller, err := h.social.GetUser(ctx, callerID)
	if err != nil {
		h.Error(w, r, "add_channel_member", err)
		return
	}

	added, err := h.social.AddUserToChannel(ctx, channelID, req.Email, caller.Name)
	if err != nil {
		h.Error(w, r, "add_channel_member", err)
		return
	}
	h.OK(w, http.StatusOK, "user added to channel", added)
}

// LeaveChannel removes the caller from a channel.
func (h *Handler) LeaveChannel(w http.ResponseWriter, r *http.Request) {
	channelID, err := pathID(r, "id")
	if err != nil {
		h.Error(w, r, "leave_channel", err)
		return
	}
	if err := h.social.LeaveChannel(r.Context(), channelID, middleware.GetUserIDFromContext(r.Context())); err != nil {
		h.Error(w, r, "leave_channel", err)
		return
	}
	h.OK(w, http.StatusOK, "left channel", nil)
}
