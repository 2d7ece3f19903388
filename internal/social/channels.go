package social

import (
	"context"
	"strings"

	"github.com/rooksgc/rooksgc-dev-server/internal/apperr"
	"github.com/rooksgc/rooksgc-dev-server/internal/models"
	"github.com/rooksgc/rooksgc-dev-server/internal/store"
)

// CreateChannelInput describes a new channel.
type CreateChannelInput struct {
	Name        string
	Description string
	Photo       string
	OwnerID     int64
}

// CreateChannel persists a channel whose only member is its owner and
// records it in the owner's channel list.
func (s *Service) CreateChannel(ctx context.Context, in CreateChannelInput) (int64, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return 0, apperr.Validation("channel name is required")
	}

	var id int64
	err := s.mutate(ctx, "create_channel", func(tx store.Tx, _ *hooks) error {
		if _, err := lockUser(ctx, tx, in.OwnerID); err != nil {
			return err
		}
		ch := &models.Channel{
			OwnerID:     in.OwnerID,
			Name:        name,
			Description: in.Description,
			Photo:       in.Photo,
		}
		if err := tx.CreateChannel(ctx, ch); err != nil {
			return err
		}
		id = ch.ID
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// AddUserToChannel adds the user owning email to a channel. Once committed
// the user's live connections join the channel room, the user is told who
// added them and existing members are told about the newcomer.
func (s *Service) AddUserToChannel(ctx context.Context, channelID int64, email, inviterName string) (*models.UserDTO, error) {
	var dto models.UserDTO
	err := s.mutate(ctx, "add_user_to_channel", func(tx store.Tx, after *hooks) error {
		ch, err := tx.LockChannel(ctx, channelID)
		if err != nil {
			return err
		}
		if ch == nil {
			return apperr.ErrChannelNotFound
		}

		found, err := tx.FindUserByEmail(ctx, email)
		if err != nil {
			return err
		}
		if found == nil {
			return apperr.ErrEmailDoesNotExist
		}
		user, err := lockUser(ctx, tx, found.ID)
		if err != nil {
			return err
		}
		if ch.IsMember(user.ID) {
			return apperr.ErrUserAllreadyInChannel
		}

		if err := tx.AddChannelMember(ctx, ch.ID, user.ID); err != nil {
			return err
		}
		ch.Members = append(ch.Members, user.ID)
		user.Channels = append(user.Channels, ch.ID)
		dto = user.ToDTO()

		// Existing members hear about the newcomer before it joins the room.
		room := ch.RoomID()
		channelDTO := ch.ToDTO()
		after.add(func() {
			s.emitter.EmitToRoom(room, models.EventMemberJoin, models.MemberJoinPayload{
				ChannelID: ch.ID,
				User:      dto,
			}, "")
		})
		after.add(func() {
			s.emitter.JoinUser(user.ID, room)
			s.emitter.EmitToUser(user.ID, models.EventChannelAddUser, models.ChannelAddUserPayload{
				InviterName: inviterName,
				Channel:     channelDTO,
			})
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &dto, nil
}

// LeaveChannel removes userID from a channel. The owner cannot leave.
func (s *Service) LeaveChannel(ctx context.Context, channelID, userID int64) error {
	return s.mutate(ctx, "leave_channel", func(tx store.Tx, after *hooks) error {
		ch, err := tx.LockChannel(ctx, channelID)
		if err != nil {
			return err
		}
		if ch == nil {
			return apperr.ErrChannelNotFound
		}
		if _, err := lockUser(ctx, tx, userID); err != nil {
			return err
		}
		if !ch.IsMember(userID) {
			return apperr.ErrNotChannelMember
		}
		if ch.OwnerID == userID {
			return apperr.ErrOwnerCannotLeave
		}
		if err := tx.RemoveChannelMember(ctx, ch.ID, userID); err != nil {
			return err
		}

		room := ch.RoomID()
		after.add(func() {
			s.emitter.LeaveUser(userID, room)
			s.emitter.EmitToRoom(room, models.EventMemberLeave, models.MemberLeavePayload{
				ChannelID: ch.ID,
				UserID:    userID,
			}, "")
		})
		return nil
	})
}

// IsChannelMember reports whether userID belongs to channelID.
func (s *Service) IsChannelMember(ctx context.Context, channelID, userID int64) (bool, error) {
	ch, err := s.store.GetChannel(ctx, channelID)
	if err != nil {
		return false, apperr.Internal(err)
	}
	if ch == nil {
		return false, apperr.ErrChannelNotFound
	}
	return ch.IsMember(userID), nil
}

// UserChannels returns the channels userID belongs to.
func (s *Service) UserChannels(ctx context.Context, userID int64) ([]models.ChannelDTO, error) {
	u, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if u == nil {
		return nil, apperr.ErrUserNotFound
	}
	return s.channelsByIDs(ctx, u.Channels)
}

func (s *Service) channelsByIDs(ctx context.Context, ids []int64) ([]models.ChannelDTO, error) {
	if len(ids) == 0 {
		return []models.ChannelDTO{}, nil
	}
	channels, err := s.store.GetChannelsByIDs(ctx, ids)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	out := make([]models.ChannelDTO, 0, len(channels))
	for i := range channels {
		out = append(out, channels[i].ToDTO())
	}
	return out, nil
}
