package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"group-chat/internal/domain"
	"group-chat/internal/repository"
)

// GroupService administra grupos y membresías.
type GroupService struct {
	logger  *zap.Logger
	groups  repository.GroupRepository
	members repository.MembershipRepository
}

var ErrGroupServiceNotConfigured = errors.New("group service not configured")

func NewGroupService(logger *zap.Logger, groups repository.GroupRepository, members repository.MembershipRepository) *GroupService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GroupService{logger: logger, groups: groups, members: members}
}

func (s *GroupService) ready() error {
	if s == nil || s.groups == nil || s.members == nil {
		return ErrGroupServiceNotConfigured
	}
	return nil
}

// Create da de alta un grupo (id generado si viene vacío) y suma al creador.
func (s *GroupService) Create(ctx context.Context, creatorID, groupID string) (domain.Group, error) {
	if err := s.ready(); err != nil {
		return domain.Group{}, err
	}
	groupID = strings.TrimSpace(groupID)
	if groupID == "" {
		groupID = uuid.NewString()
	} else if _, err := requireUUID("group_uuid", groupID); err != nil {
		return domain.Group{}, err
	}

	group, err := s.groups.Create(ctx, groupID)
	if err != nil {
		return domain.Group{}, err
	}
	if _, err := s.members.Add(ctx, group.ID, creatorID); err != nil {
		return domain.Group{}, err
	}
	s.logger.Info("group created", zap.String("group", group.ID), zap.String("creator", creatorID))
	return group, nil
}

func (s *GroupService) Join(ctx context.Context, userID, groupID string) (domain.Participant, error) {
	if err := s.ready(); err != nil {
		return domain.Participant{}, err
	}
	groupID, err := s.existing(ctx, groupID)
	if err != nil {
		return domain.Participant{}, err
	}
	return s.members.Add(ctx, groupID, userID)
}

func (s *GroupService) Leave(ctx context.Context, userID, groupID string) error {
	if err := s.ready(); err != nil {
		return err
	}
	groupID, err := s.existing(ctx, groupID)
	if err != nil {
		return err
	}
	return s.members.Remove(ctx, groupID, userID)
}

// Mine lista los grupos del usuario.
func (s *GroupService) Mine(ctx context.Context, userID string) ([]string, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.members.GroupsForUser(ctx, userID)
}

func (s *GroupService) existing(ctx context.Context, groupID string) (string, error) {
	groupID, err := requireUUID("group_uuid", groupID)
	if err != nil {
		return "", err
	}
	ok, err := s.groups.Exists(ctx, groupID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: group %s", domain.ErrNotFound, groupID)
	}
	return groupID, nil
}
