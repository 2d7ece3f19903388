package social

import (
	"context"
	"strings"

	"github.com/rooksgc/rooksgc-dev-server/internal/apperr"
	"github.com/rooksgc/rooksgc-dev-server/internal/models"
	"github.com/rooksgc/rooksgc-dev-server/internal/store"
)

// InviteInput describes a contact invite. InviterContacts is what the client
// believes the inviter's contact list to be; the stored row wins when the
// two disagree.
type InviteInput struct {
	InviterID       int64
	InviterName     string
	InviterEmail    string
	InviterContacts []int64
	Email           string
	Text            string
}

// InviteResult is the outcome of InviteToContacts. Exactly one of Invite
// (pending request created) or ContactAdded (contact completed immediately)
// is set.
type InviteResult struct {
	ContactAdded bool            `json:"contactAdded"`
	Contact      *models.UserDTO `json:"contact,omitempty"`
	Invite       *models.Invite  `json:"invite,omitempty"`
}

// InviteToContacts asks the user owning in.Email to become the inviter's
// contact. If that user already lists the inviter, the contact is completed
// on the spot instead of creating an invite.
func (s *Service) InviteToContacts(ctx context.Context, in InviteInput) (*InviteResult, error) {
	email := strings.TrimSpace(in.Email)
	if email == "" {
		return nil, apperr.Validation("email is required")
	}
	if strings.EqualFold(in.InviterEmail, email) {
		return nil, apperr.ErrCantAddSelfToContacts
	}

	var result InviteResult
	err := s.mutate(ctx, "invite_to_contacts", func(tx store.Tx, after *hooks) error {
		found, err := tx.FindUserByEmail(ctx, email)
		if err != nil {
			return err
		}
		if found == nil {
			return apperr.ErrEmailDoesNotExist
		}
		if found.ID == in.InviterID {
			return apperr.ErrCantAddSelfToContacts
		}

		users, err := tx.LockUsers(ctx, in.InviterID, found.ID)
		if err != nil {
			return err
		}
		inviter, ok := users[in.InviterID]
		if !ok {
			return apperr.ErrUserNotFound
		}
		target, ok := users[found.ID]
		if !ok {
			return apperr.ErrEmailDoesNotExist
		}
		if inviter.HasContact(target.ID) {
			return apperr.ErrContactAllreadyExist
		}

		if target.HasContact(inviter.ID) {
			if err := tx.AddContact(ctx, inviter.ID, target.ID); err != nil {
				return err
			}
			inviter.Contacts = append(inviter.Contacts, target.ID)
			targetDTO := target.ToDTO()
			inviterDTO := inviter.ToDTO()
			result = InviteResult{ContactAdded: true, Contact: &targetDTO}

			after.add(func() {
				s.emitter.EmitToUser(target.ID, models.EventContactAdd, inviterDTO)
			})
			return nil
		}

		name := in.InviterName
		if name == "" {
			name = inviter.Name
		}
		inv := &models.Invite{
			InviterID:   inviter.ID,
			InviterName: name,
			UserID:      target.ID,
			UserName:    target.Name,
			Type:        models.InviteTypeContact,
			Text:        in.Text,
		}
		if err := tx.CreateInvite(ctx, inv); err != nil {
			return err
		}
		result = InviteResult{Invite: inv}

		invite := *inv
		after.add(func() {
			s.emitter.EmitToUser(target.ID, models.EventContactInvite, invite)
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// AddContact accepts the invite sent by inviterID to userID. Both users end
// up in each other's contacts and the invite is removed.
func (s *Service) AddContact(ctx context.Context, inviterID, userID int64) (*models.UserDTO, error) {
	var inviterDTO models.UserDTO
	err := s.mutate(ctx, "add_contact", func(tx store.Tx, after *hooks) error {
		users, err := tx.LockUsers(ctx, inviterID, userID)
		if err != nil {
			return err
		}
		inviter, ok := users[inviterID]
		if !ok {
			return apperr.ErrUserNotFound
		}
		user, ok := users[userID]
		if !ok {
			return apperr.ErrUserNotFound
		}

		inv, err := tx.FindInvite(ctx, inviterID, userID, models.InviteTypeContact)
		if err != nil {
			return err
		}
		if inv == nil {
			return apperr.ErrInviteWasCancelled
		}

		// Either side may already hold the edge from an earlier fast-path invite.
		if !inviter.HasContact(user.ID) {
			if err := tx.AddContact(ctx, inviter.ID, user.ID); err != nil {
				return err
			}
			inviter.Contacts = append(inviter.Contacts, user.ID)
		}
		if !user.HasContact(inviter.ID) {
			if err := tx.AddContact(ctx, user.ID, inviter.ID); err != nil {
				return err
			}
			user.Contacts = append(user.Contacts, inviter.ID)
		}
		if err := tx.DeleteInvite(ctx, inv.ID); err != nil {
			return err
		}

		inviterDTO = inviter.ToDTO()
		userDTO := user.ToDTO()
		after.add(func() {
			s.emitter.EmitToUser(inviter.ID, models.EventContactAdd, userDTO)
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &inviterDTO, nil
}

// RemoveContact drops contactID from userID's contacts. With mirror set the
// reverse edge is dropped in the same transaction and contactID is notified.
func (s *Service) RemoveContact(ctx context.Context, userID, contactID int64, mirror bool) error {
	return s.mutate(ctx, "remove_contact", func(tx store.Tx, after *hooks) error {
		users, err := tx.LockUsers(ctx, userID, contactID)
		if err != nil {
			return err
		}
		user, ok := users[userID]
		if !ok {
			return apperr.ErrUserNotFound
		}
		contact, ok := users[contactID]
		if !ok {
			return apperr.ErrUserNotFound
		}
		if !user.HasContact(contact.ID) {
			return apperr.ErrContactNotFound
		}

		if err := tx.RemoveContact(ctx, user.ID, contact.ID); err != nil {
			return err
		}
		if !mirror {
			return nil
		}
		if err := tx.RemoveContact(ctx, contact.ID, user.ID); err != nil {
			return err
		}
		after.add(func() {
			s.emitter.EmitToUser(contact.ID, models.EventContactRemove, models.ContactRemovePayload{UserID: user.ID})
		})
		return nil
	})
}

// Contacts returns the contacts of userID.
func (s *Service) Contacts(ctx context.Context, userID int64) ([]models.UserDTO, error) {
	u, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if u == nil {
		return nil, apperr.ErrUserNotFound
	}
	return s.usersByIDs(ctx, u.Contacts)
}

func (s *Service) usersByIDs(ctx context.Context, ids []int64) ([]models.UserDTO, error) {
	if len(ids) == 0 {
		return []models.UserDTO{}, nil
	}
	users, err := s.store.GetUsersByIDs(ctx, ids)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	out := make([]models.UserDTO, 0, len(users))
	for i := range users {
		out = append(out, users[i].ToDTO())
	}
	return out, nil
}
