package models

// DirectMessage represents a private message between contacts.
type DirectMessage struct {
	ID        string `json:"id"`
	FromID    int64  `json:"from"`
	ToID      int64  `json:"to"`
	Text      string `json:"text"`
	Timestamp int64  `json:"ts"`
}
