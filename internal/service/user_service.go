package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"storefront/internal/auth"
	"storefront/internal/models"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// UpdateUserRequest lists the fields an admin may change. Passwords are not
// part of it; a password in the payload is dropped during decoding.
type UpdateUserRequest struct {
	Name  *string      `json:"name"`
	Email *string      `json:"email"`
	Phone *string      `json:"phone"`
	Role  *models.Role `json:"role"`
}

type UserService struct {
	users  UserRepository
	logger *zap.Logger
}

func NewUserService(users UserRepository) *UserService {
	return &UserService{users: users, logger: util.GetLogger()}
}

func (s *UserService) List(ctx context.Context) ([]models.User, error) {
	return s.users.ListUsers(ctx)
}

func (s *UserService) Get(ctx context.Context, id int64) (*models.User, error) {
	return s.users.GetUserByID(ctx, id)
}

func (s *UserService) Update(ctx context.Context, id int64, req *UpdateUserRequest) (*models.User, error) {
	ctx, span := util.StartSpan(ctx, "UserService.Update")
	defer span.End()

	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		if strings.TrimSpace(*req.Name) == "" {
			return nil, validationf("name must not be empty")
		}
		user.Name = strings.TrimSpace(*req.Name)
	}
	if req.Email != nil {
		email := normalizeEmail(*req.Email)
		if email == "" {
			return nil, validationf("email must not be empty")
		}
		user.Email = email
	}
	if req.Phone != nil {
		user.Phone = *req.Phone
	}
	if req.Role != nil {
		if !req.Role.Valid() {
			return nil, validationf("role must be customer or admin")
		}
		user.Role = *req.Role
	}

	if err := s.users.UpdateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	s.logger.Info("User updated", zap.Int64("user_id", id), zap.String("role", string(user.Role)))
	return user, nil
}

func (s *UserService) Delete(ctx context.Context, id int64) error {
	if err := s.users.DeleteUser(ctx, id); err != nil {
		return err
	}
	s.logger.Info("User deleted", zap.Int64("user_id", id))
	return nil
}

// EnsureAdmin elevates the account registered under email to admin, or
// creates it with password when there is none. It reports whether a new
// account was created.
func (s *UserService) EnsureAdmin(ctx context.Context, name, email, password string) (*models.User, bool, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, false, validationf("email is required")
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		if user.Role == models.RoleAdmin {
			return user, false, nil
		}
		user.Role = models.RoleAdmin
		if err := s.users.UpdateUser(ctx, user); err != nil {
			return nil, false, fmt.Errorf("failed to elevate user: %w", err)
		}
		s.logger.Info("User elevated to admin", zap.Int64("user_id", user.ID))
		return user, false, nil
	case !errors.Is(err, ErrNotFound):
		return nil, false, err
	}

	if len(password) < 6 {
		return nil, false, validationf("password must be at least 6 characters")
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, false, err
	}
	if strings.TrimSpace(name) == "" {
		name = "Administrator"
	}
	user = &models.User{Name: strings.TrimSpace(name), Email: email, PasswordHash: hash, Role: models.RoleAdmin}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, false, fmt.Errorf("failed to create admin: %w", err)
	}
	s.logger.Info("Admin created", zap.Int64("user_id", user.ID))
	return user, true, nil
}
