package handlers

import (
	"net/http"
)

// StatsResponse represents the response from the stats endpoint.
type StatsResponse struct {
	TotalUsers    int64 `json:"total_users"`
	TotalChannels int64 `json:"total_channels"`
	OnlineUsers   int   `json:"online_users"`
	Connections   int   `json:"connections"`
}

// Stats returns stored and live counts.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stored, err := h.social.Stats(r.Context())
	if err != nil {
		h.Error(w, r, "stats", err)
		return
	}

	resp := StatsResponse{
		TotalUsers:    stored.Users,
		TotalChannels: stored.Channels,
	}
	if h.presence != nil {
		resp.OnlineUsers, resp.Connections = h.presence.Stats()
	}
	h.OK(w, http.StatusOK, "", resp)
}
