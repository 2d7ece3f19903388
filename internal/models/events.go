package models

// Server -> client event names.
const (
	EventUsersConnected   = "users:connected"
	EventUserConnected    = "user:connected"
	EventChannelBroadcast = "channel:message:broadcast"
	EventContactPrivate   = "contact:message:private"
	EventContactInvite    = "contact:invite"
	EventContactAdd       = "contact:add"
	EventContactRemove    = "contact:remove"
	EventInviteRemove     = "invite:remove"
	EventInviteCancel     = "invite:cancel"
	EventChannelAddUser   = "channel:adduser"
	EventMemberJoin       = "channel:member:join"
	EventMemberLeave      = "channel:member:leave"
	EventError            = "error"
)

// Client -> server event names.
const (
	EventChannelsSubscribe    = "channels:subscribe"
	EventChannelSubscribe     = "channel:subscribe"
	EventChannelLeave         = "channel:leave"
	EventChannelInvite        = "channel:invite"
	EventChannelMessageSend   = "channel:message:send"
	EventContactMessageSend   = "contact:message:send"
	EventContactInviteRequest = "contact:invite:request"
	EventContactAddRequest    = "contact:add:request"
	EventInviteRemoveRequest  = "invite:remove:request"
	EventInviteCancelRequest  = "invite:cancel:request"
	EventChannelAddUserReq    = "channel:adduser:request"
)

// ChannelAddUserPayload is pushed to a user added to a channel.
type ChannelAddUserPayload struct {
	InviterName string     `json:"inviterName"`
	Channel     ChannelDTO `json:"channel"`
}

// MemberJoinPayload is pushed to a channel room when a member joins.
type MemberJoinPayload struct {
	ChannelID int64   `json:"channelId"`
	User      UserDTO `json:"user"`
}

// MemberLeavePayload is pushed to a channel room when a member leaves.
type MemberLeavePayload struct {
	ChannelID int64 `json:"channelId"`
	UserID    int64 `json:"userId"`
}

// ContactRemovePayload is pushed to a user dropped from someone's contacts.
type ContactRemovePayload struct {
	UserID int64 `json:"userId"`
}
