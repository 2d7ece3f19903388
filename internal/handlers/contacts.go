package handlers

import (
	"net/http"
	"strconv"

	"github.com/rooksgc/rooksgc-dev-server/internal/api/middleware"
	"github.com/rooksgc/rooksgc-dev-server/internal/apperr"
	"github.com/rooksgc/rooksgc-dev-server/internal/models"
	"github.com/rooksgc/rooksgc-dev-server/internal/social"
)

// InviteRequest represents the contact invite request body.
type InviteRequest struct {
	Email    string  `json:"email" validate:"required,email"`
	Text     string  `json:"text" validate:"max=500"`
	Contacts []int64 `json:"contacts"`
}

// AcceptRequest represents the invite acceptance request body.
type AcceptRequest struct {
	InviterID int64 `json:"inviterId" validate:"required,gt=0"`
}

// InvitesResponse lists pending invites on both sides.
type InvitesResponse struct {
	Incoming []models.Invite `json:"incoming"`
	Outgoing []models.Invite `json:"outgoing"`
}

// InviteToContacts sends a contact invite from the caller.
func (h *Handler) InviteToContacts(w http.ResponseWriter, r *http.Request) {
	var req InviteRequest
	if err := h.decode(r, &req); err != nil {
		h.Error(w, r, "invite_to_contacts", err)
		return
	}

	claims := middleware.GetClaimsFromContext(r.Context())
	result, err := h.social.InviteToContacts(r.Context(), social.InviteInput{
		InviterID:       middleware.GetUserIDFromContext(r.Context()),
		InviterEmail:    claims.Email,
		InviterContacts: req.Contacts,
		Email:           req.Email,
		Text:            req.Text,
	})
	if err != nil {
		h.Error(w, r, "invite_to_contacts", err)
		return
	}

	message := "invite sent"
	if result.ContactAdded {
		message = "contact added"
	}
	h.OK(w, http.StatusOK, message, result)
}

// AcceptInvite accepts a pending invite addressed to the caller.
func (h *Handler) AcceptInvite(w http.ResponseWriter, r *http.Request) {
	var req AcceptRequest
	if err := h.decode(r, &req); err != nil {
		h.Error(w, r, "add_contact", err)
		return
	}

	inviter, err := h.social.AddContact(r.Context(), req.InviterID, middleware.GetUserIDFromContext(r.Context()))
	if err != nil {
		h.Error(w, r, "add_contact", err)
		return
	}
	h.OK(w, http.StatusOK, "contact added", inviter)
}

// RemoveContact drops a contact from the caller's list. With ?mirror=true
// the caller is dropped from the contact's list too.
func (h *Handler) RemoveContact(w http.ResponseWriter, r *http.Request) {
	contactID, err := pathID(r, "id")
	if err != nil {
		h.Error(w, r, "remove_contact", err)
		return
	}
	mirror, _ := strconv.ParseBool(r.URL.Query().Get("mirror"))

	if err := h.social.RemoveContact(r.Context(), middleware.GetUserIDFromContext(r.Context()), contactID, mirror); err != nil {
		h.Error(w, r, "remove_contact", err)
		return
	}
	h.OK(w, http.StatusOK, "contact removed", nil)
}

// ListInvites returns the caller's incoming and outgoing invites.
func (h *Handler) ListInvites(w http.ResponseWriter, r *http.Request) {
	incoming, outgoing, err := h.social.ListInvites(r.Context(), middleware.GetUserIDFromContext(r.Context()))
	if err != nil {
		h.Error(w, r, "list_invites", err)
		return
	}
	h.OK(w, http.StatusOK, "", InvitesResponse{Incoming: incoming, Outgoing: outgoing})
}

// RemoveInvite deletes a pending invite. ?inviterId=N declines an invite
// addressed to the caller; ?userId=N withdraws one the caller sent.
func (h *Handler) RemoveInvite(w http.ResponseWriter, r *http.Request) {
	callerID := middleware.GetUserIDFromContext(r.Context())
	q := r.URL.Query()

	var err error
	switch {
	case q.Has("inviterId") && !q.Has("userId"):
		var inviterID int64
		if inviterID, err = queryID(r, "inviterId"); err == nil {
			err = h.social.RemoveInvite(r.Context(), inviterID, callerID, social.RemoveByInvitee)
		}
	case q.Has("userId") && !q.Has("inviterId"):
		var userID int64
		if userID, err = queryID(r, "userId"); err == nil {
			err = h.social.RemoveInvite(r.Context(), callerID, userID, social.RemoveByInviter)
		}
	default:
		err = apperr.Validation("exactly one of inviterId or userId is required")
	}
	if err != nil {
		h.Error(w, r, "remove_invite", err)
		return
	}
	h.OK(w, http.StatusOK, "invite removed", nil)
}
