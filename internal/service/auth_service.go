package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"storefront/internal/auth"
	"storefront/internal/models"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// Principal is the caller identity resolved from a bearer credential.
// UserID is zero for the built-in admin.
type Principal struct {
	UserID int64       `json:"id,omitempty"`
	Name   string      `json:"name,omitempty"`
	Email  string      `json:"email"`
	Role   models.Role `json:"role"`
}

func (p *Principal) IsAdmin() bool {
	return p != nil && p.Role == models.RoleAdmin
}

// BuiltInAdmin is the break-glass admin account that has no user record.
// An empty Email disables it.
type BuiltInAdmin struct {
	Email    string
	Password string
}

// AuthService handles signup, login and credential checks
type AuthService struct {
	users  UserRepository
	tokens *auth.TokenManager
	admin  BuiltInAdmin
	logger *zap.Logger
}

func NewAuthService(users UserRepository, tokens *auth.TokenManager, admin BuiltInAdmin) *AuthService {
	return &AuthService{
		users:  users,
		tokens: tokens,
		admin:  admin,
		logger: util.GetLogger(),
	}
}

type SignupRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
	Phone    string `json:"phone"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// AuthResponse is returned by signup and login.
type AuthResponse struct {
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expires_at"`
	User      *Principal `json:"user"`
}

// Signup creates a customer account and logs it in.
func (s *AuthService) Signup(ctx context.Context, req *SignupRequest) (*AuthResponse, error) {
	ctx, span := util.StartSpan(ctx, "AuthService.Signup")
	defer span.End()

	email := normalizeEmail(req.Email)
	if strings.TrimSpace(req.Name) == "" || email == "" {
		return nil, validationf("name and email are required")
	}
	if len(req.Password) < 6 {
		return nil, validationf("password must be at least 6 characters")
	}
	if s.isBuiltInAdmin(email) {
		return nil, ErrEmailTaken
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Name:         strings.TrimSpace(req.Name),
		Email:        email,
		PasswordHash: hash,
		Phone:        req.Phone,
		Role:         models.RoleCustomer,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.Info("User signed up", zap.Int64("user_id", user.ID))
	return s.issue(principalOf(user))
}

// Login checks the built-in admin first, then stored users.
func (s *AuthService) Login(ctx context.Context, req *LoginRequest) (*AuthResponse, error) {
	ctx, span := util.StartSpan(ctx, "AuthService.Login")
	defer span.End()

	email := normalizeEmail(req.Email)
	if s.isBuiltInAdmin(email) {
		if subtle.ConstantTimeCompare([]byte(req.Password), []byte(s.admin.Password)) != 1 {
			return nil, ErrInvalidCredentials
		}
		s.logger.Info("Built-in admin logged in")
		return s.issue(&Principal{Email: s.admin.Email, Role: models.RoleAdmin})
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !auth.CheckPassword(user.PasswordHash, req.Password) {
		return nil, ErrInvalidCredentials
	}
	return s.issue(principalOf(user))
}

// Authenticate resolves a token into a Principal. Tokens naming a stored
// user are re-read so that edits to the account apply immediately.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*Principal, error) {
	claims, err := s.verify(token)
	if err != nil {
		return nil, err
	}
	if !claims.Persisted() {
		return &Principal{Email: claims.Email, Role: claims.Role}, nil
	}

	user, err := s.users.GetUserByID(ctx, claims.UserID)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrUnauthenticated
	}
	if err != nil {
		return nil, err
	}
	return principalOf(user), nil
}

// AuthorizeAdmin is the gate in front of every admin operation. The claim
// must say admin; a token naming a stored user must additionally still
// belong to an admin account at call time.
func (s *AuthService) AuthorizeAdmin(ctx context.Context, token string) (*Principal, error) {
	ctx, span := util.StartSpan(ctx, "AuthService.AuthorizeAdmin")
	defer span.End()

	p, err := s.authorizeAdmin(ctx, token)
	switch {
	case err == nil:
		util.AdminDecisionsTotal.WithLabelValues("allowed").Inc()
	case errors.Is(err, ErrForbidden):
		util.AdminDecisionsTotal.WithLabelValues("forbidden").Inc()
	case errors.Is(err, ErrUnauthenticated):
		util.AdminDecisionsTotal.WithLabelValues("unauthenticated").Inc()
	}
	return p, err
}

func (s *AuthService) authorizeAdmin(ctx context.Context, token string) (*Principal, error) {
	claims, err := s.verify(token)
	if err != nil {
		return nil, err
	}
	if claims.Role != models.RoleAdmin {
		return nil, ErrForbidden
	}
	if !claims.Persisted() {
		return &Principal{Email: claims.Email, Role: models.RoleAdmin}, nil
	}

	user, err := s.users.GetUserByID(ctx, claims.UserID)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrUnauthenticated
	}
	if err != nil {
		return nil, err
	}
	if user.Role != models.RoleAdmin {
		s.logger.Warn("Stale admin claim rejected", zap.Int64("user_id", user.ID))
		return nil, ErrForbidden
	}
	return principalOf(user), nil
}

func (s *AuthService) verify(token string) (*auth.Claims, error) {
	if token == "" {
		return nil, ErrUnauthenticated
	}
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	return claims, nil
}

func (s *AuthService) issue(p *Principal) (*AuthResponse, error) {
	token, exp, err := s.tokens.Issue(p.UserID, p.Email, p.Role)
	if err != nil {
		return nil, err
	}
	return &AuthResponse{Token: token, ExpiresAt: exp, User: p}, nil
}

func (s *AuthService) isBuiltInAdmin(email string) bool {
	return s.admin.Email != "" && email == normalizeEmail(s.admin.Email)
}

func principalOf(u *models.User) *Principal {
	return &Principal{UserID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
