package handlers

import (
	"net/http"

	"github.com/rooksgc/rooksgc-dev-server/internal/api/middleware"
	"github.com/rooksgc/rooksgc-dev-server/internal/apperr"
)

// ChangePhotoRequest carries the new photo URL.
type ChangePhotoRequest struct {
	Photo string `json:"photo" validate:"required,url,max=2048"`
}

// ListUsers returns every registered user.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.social.AllUsers(r.Context())
	if err != nil {
		h.Error(w, r, "list_users", err)
		return
	}
	h.OK(w, http.StatusOK, "", users)
}

// GetUser handles user profile lookup.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.Error(w, r, "get_user", err)
		return
	}

	user, err := h.social.GetUser(r.Context(), id)
	if err != nil {
		h.Error(w, r, "get_user", err)
		return
	}
	h.OK(w, http.StatusOK, "", user)
}

// ChangePhoto updates the caller's photo.
func (h *Handler) ChangePhoto(w http.ResponseWriter, r *http.Request) {
	var req ChangePhotoRequest
	if err := h.decode(r, &req); err != nil {
		h.Error(w, r, "change_photo", err)
		return
	}

	user, err := h.social.ChangePhoto(r.Context(), middleware.GetUserIDFromContext(r.Context()), req.Photo)
	if err != nil {
		h.Error(w, r, "change_photo", err)
		return
	}
	h.OK(w, http.StatusOK, "photo changed", user)
}

// GetUserContacts resolves the caller's contacts into profiles. A "list"
// query parameter (JSON id array) overrides the stored contact list.
func (h *Handler) GetUserContacts(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.Error(w, r, "get_user_contacts", err)
		return
	}
	if id != middleware.GetUserIDFromContext(r.Context()) {
		h.Error(w, r, "get_user_contacts", apperr.ErrUnauthorized)
		return
	}

	if list, ok := r.URL.Query()["list"]; ok {
		contacts, err := h.social.PopulateContacts(r.Context(), id, list[0])
		if err != nil {
			h.Error(w, r, "populate_contacts", err)
			return
		}
		h.OK(w, http.StatusOK, "", contacts)
		return
	}

	contacts, err := h.social.Contacts(r.Context(), id)
	if err != nil {
		h.Error(w, r, "get_user_contacts", err)
		return
	}
	h.OK(w, http.StatusOK, "", contacts)
}
