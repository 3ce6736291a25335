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

// UserService coordina reglas de negocio para usuarios.
type UserService struct {
	logger *zap.Logger
	users  repository.UserRepository
}

func NewUserService(logger *zap.Logger, users repository.UserRepository) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{logger: logger, users: users}
}

type RegisterInput struct {
	Name string `validate:"required,max=25"`
}

var (
	ErrUserServiceNotConfigured = errors.New("user service not configured")
	ErrInvalidCredentials       = fmt.Errorf("%w: invalid credentials", domain.ErrNotAuthenticated)
)

// Register crea un usuario con nombre único (1..25 caracteres).
func (s *UserService) Register(ctx context.Context, in RegisterInput) (domain.User, error) {
	if s == nil || s.users == nil {
		return domain.User{}, ErrUserServiceNotConfigured
	}
	in.Name = strings.TrimSpace(in.Name)
	if err := validateStruct(in); err != nil {
		return domain.User{}, err
	}
	user, err := s.users.Create(ctx, domain.User{ID: uuid.NewString(), Name: in.Name})
	if err != nil {
		return domain.User{}, err
	}
	s.logger.Info("user registered", zap.String("user_id", user.ID), zap.String("name", user.Name))
	return user, nil
}

// Login identifica al usuario por nombre. Un nombre desconocido es un error de
// autenticación, no un NotFound, para no filtrar qué nombres existen.
func (s *UserService) Login(ctx context.Context, name string) (domain.User, error) {
	if s == nil || s.users == nil {
		return domain.User{}, ErrUserServiceNotConfigured
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.User{}, ErrInvalidCredentials
	}
	user, err := s.users.GetByName(ctx, name)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.User{}, ErrInvalidCredentials
		}
		return domain.User{}, err
	}
	return user, nil
}

func (s *UserService) Get(ctx context.Context, id string) (domain.User, error) {
	if s == nil || s.users == nil {
		return domain.User{}, ErrUserServiceNotConfigured
	}
	id, err := requireUUID("user_uuid", id)
	if err != nil {
		return domain.User{}, err
	}
	return s.users.GetByID(ctx, id)
}
