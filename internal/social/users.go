package social

import (
	"context"
	"errors"

	"github.com/rooksgc/rooksgc-dev-server/internal/apperr"
	"github.com/rooksgc/rooksgc-dev-server/internal/models"
)

// AllUsers lists every registered user in id order.
func (s *Service) AllUsers(ctx context.Context) ([]models.UserDTO, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	dtos := make([]models.UserDTO, 0, len(users))
	for i := range users {
		dtos = append(dtos, users[i].ToDTO())
	}
	return dtos, nil
}

// ChangePhoto replaces a user's photo and returns the updated profile.
func (s *Service) ChangePhoto(ctx context.Context, userID int64, photo string) (*models.UserDTO, error) {
	if err := s.store.UpdateUserPhoto(ctx, userID, photo); err != nil {
		if errors.Is(err, apperr.ErrUserNotFound) {
			return nil, err
		}
		return nil, apperr.Internal(err)
	}
	return s.GetUser(ctx, userID)
}
