package models

// Message represents a channel message stored in Redis.
type Message struct {
	ID        string `json:"id"` // ULID
	ChannelID string `json:"channel_id"`
	FromID    int64  `json:"from"`
	Text      string `json:"text"`
	Timestamp int64  `json:"ts"` // Unix ms
}
