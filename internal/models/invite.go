package models

import "time"

// InviteTypeContact is the only invite type currently issued.
const InviteTypeContact = "contact"

// Invite is a pending one-directional contact request.
// At most one exists per (InviterID, UserID, Type).
type Invite struct {
	ID          int64     `json:"id"`
	InviterID   int64     `json:"inviterId"`
	InviterName string    `json:"inviterName"`
	UserID      int64     `json:"userId"`
	UserName    string    `json:"userName"`
	Type        string    `json:"type"`
	Text        string    `json:"text,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}
