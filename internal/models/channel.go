package models

import (
	"strconv"
	"time"
)

// Channel represents a persisted chat channel. The owner is always a member.
type Channel struct {
	ID          int64     `json:"id"`
	OwnerID     int64     `json:"ownerId"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Photo       string    `json:"photo,omitempty"`
	Members     []int64   `json:"members"`
	CreatedAt   time.Time `json:"-"`
}

// RoomID returns the broadcast room identifier of the channel.
func (c *Channel) RoomID() string {
	return RoomID(c.ID)
}

// IsMember reports whether userID belongs to the channel.
func (c *Channel) IsMember(userID int64) bool {
	for _, m := range c.Members {
		if m == userID {
			return true
		}
	}
	return false
}

// RoomID converts a channel id into its room identifier.
func RoomID(channelID int64) string {
	return strconv.FormatInt(channelID, 10)
}

// ChannelDTO is the client-facing projection of a Channel.
type ChannelDTO struct {
	ID          int64   `json:"id"`
	OwnerID     int64   `json:"ownerId"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Photo       string  `json:"photo,omitempty"`
	Members     []int64 `json:"members"`
}

func (c *Channel) ToDTO() ChannelDTO {
	return ChannelDTO{
		ID:          c.ID,
		OwnerID:     c.OwnerID,
		Name:        c.Name,
		Description: c.Description,
		Photo:       c.Photo,
		Members:     nilIfEmpty(c.Members),
	}
}
