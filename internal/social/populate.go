package social

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/samber/lo"

	"github.com/rooksgc/rooksgc-dev-server/internal/apperr"
	"github.com/rooksgc/rooksgc-dev-server/internal/models"
)

// parseIDList decodes a JSON array of ids such as "[3,1,2]". An empty string
// or "null" is an empty list.
func parseIDList(raw string) ([]int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return nil, nil
	}
	var ids []int64
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, apperr.Validation("id list must be a JSON array of integers")
	}
	return lo.Uniq(ids), nil
}

// PopulateContacts expands an id list into contact DTOs. Ids that do not
// resolve are skipped.
func (s *Service) PopulateContacts(ctx context.Context, userID int64, raw string) ([]models.UserDTO, error) {
	ids, err := parseIDList(raw)
	if err != nil {
		return nil, err
	}
	ids = lo.Without(ids, userID)
	return s.usersByIDs(ctx, ids)
}

// PopulateChannels expands an id list into channel DTOs. Ids that do not
// resolve are skipped.
func (s *Service) PopulateChannels(ctx context.Context, raw string) ([]models.ChannelDTO, error) {
	ids, err := parseIDList(raw)
	if err != nil {
		return nil, err
	}
	return s.channelsByIDs(ctx, ids)
}
