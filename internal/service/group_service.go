package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/campusexchange/points/internal/domain"
	"github.com/campusexchange/points/internal/repository"
)

// CreateGroupRequest creates a new access-control group.
type CreateGroupRequest struct {
	Name string `json:"name" binding:"required"`
}

// MemberBatchRequest adds or removes a batch of members in one call.
type MemberBatchRequest struct {
	UserIDs []uuid.UUID `json:"userIds" binding:"required,min=1"`
}

// GroupService implements access control (C10): group CRUD and membership
// management underlying the offer/bet visibility filter.
type GroupService struct {
	groups *repository.GroupRepository
}

// NewGroupService creates a GroupService.
func NewGroupService(groups *repository.GroupRepository) *GroupService {
	return &GroupService{groups: groups}
}

// Create registers a new group.
func (s *GroupService) Create(ctx context.Context, req CreateGroupRequest) (*domain.Group, error) {
	g := &domain.Group{ID: uuid.New(), Name: req.Name, CreatedAt: time.Now().UTC()}
	if err := s.groups.Create(ctx, g); err != nil {
		return nil, err
	}
	return g, nil
}

// Get fetches a group by id.
func (s *GroupService) Get(ctx context.Context, id uuid.UUID) (*domain.Group, error) {
	return s.groups.GetByID(ctx, id)
}

// List returns every group.
func (s *GroupService) List(ctx context.Context) ([]*domain.Group, error) {
	return s.groups.List(ctx)
}

// AddMembers adds a batch of users to a group, idempotently.
func (s *GroupService) AddMembers(ctx context.Context, groupID uuid.UUID, req MemberBatchRequest) error {
	if _, err := s.groups.GetByID(ctx, groupID); err != nil {
		return err
	}
	return s.groups.AddMembers(ctx, groupID, req.UserIDs)
}

// RemoveMembers removes a batch of users from a group.
func (s *GroupService) RemoveMembers(ctx context.Context, groupID uuid.UUID, req MemberBatchRequest) error {
	if _, err := s.groups.GetByID(ctx, groupID); err != nil {
		return err
	}
	return s.groups.RemoveMembers(ctx, groupID, req.UserIDs)
}

// MemberGroups returns every group id userID belongs to (GET /me/groups).
func (s *GroupService) MemberGroups(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	return s.groups.MemberGroupIDs(ctx, userID)
}
