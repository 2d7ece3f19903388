package social

import (
	"context"

	"github.com/rooksgc/rooksgc-dev-server/internal/apperr"
	"github.com/rooksgc/rooksgc-dev-server/internal/models"
	"github.com/rooksgc/rooksgc-dev-server/internal/store"
)

// RemoveKind says which side of an invite is removing it.
type RemoveKind int

const (
	// RemoveByInviter withdraws an invite; the invitee is notified.
	RemoveByInviter RemoveKind = iota
	// RemoveByInvitee declines an invite; the inviter is notified.
	RemoveByInvitee
)

// RemoveInvite deletes the pending invite from inviterID to userID.
func (s *Service) RemoveInvite(ctx context.Context, inviterID, userID int64, kind RemoveKind) error {
	return s.mutate(ctx, "remove_invite", func(tx store.Tx, after *hooks) error {
		inv, err := tx.FindInvite(ctx, inviterID, userID, models.InviteTypeContact)
		if err != nil {
			return err
		}
		if inv == nil {
			return apperr.ErrInviteDoesNotExists
		}
		if err := tx.DeleteInvite(ctx, inv.ID); err != nil {
			return err
		}

		removed := *inv
		after.add(func() {
			if kind == RemoveByInvitee {
				s.emitter.EmitToUser(removed.InviterID, models.EventInviteRemove, removed)
				return
			}
			s.emitter.EmitToUser(removed.UserID, models.EventInviteCancel, removed)
		})
		return nil
	})
}

// ListInvites returns the invites addressed to userID and those it sent.
func (s *Service) ListInvites(ctx context.Context, userID int64) (incoming, outgoing []models.Invite, err error) {
	incoming, outgoing, err = s.store.ListInvites(ctx, userID)
	if err != nil {
		return nil, nil, apperr.Internal(err)
	}
	if incoming == nil {
		incoming = []models.Invite{}
	}
	if outgoing == nil {
		outgoing = []models.Invite{}
	}
	return incoming, outgoing, nil
}
