// internal/auth/service.go
// Account registration, login and token validation.
// Also serves as the user directory for the rest of the app.

package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/imadgeboyega/kiekky-chat/internal/common/apperror"
	"github.com/imadgeboyega/kiekky-chat/internal/common/utils"
)

// Common errors
var (
	ErrUserNotFound       = apperror.NotFound("USER_NOT_FOUND", "user not found")
	ErrAccountExists      = apperror.Conflict("ACCOUNT_EXISTS", "username or email already registered")
	ErrInvalidCredentials = apperror.New(apperror.KindAuth, "INVALID_CREDENTIALS", "invalid credentials")
	ErrInvalidToken       = apperror.New(apperror.KindAuth, "INVALID_TOKEN", "invalid or expired token")
	ErrInvalidTokenType   = apperror.New(apperror.KindAuth, "INVALID_TOKEN_TYPE", "invalid token type")
)

// Service interface
type Service interface {
	Register(ctx context.Context, req *RegisterRequest) (*AuthResponse, error)
	Login(ctx context.Context, req *LoginRequest) (*AuthResponse, error)
	ValidateToken(ctx context.Context, token string) (*utils.JWTClaims, error)
	GetUserByID(ctx context.Context, userID int64) (*User, error)
	GetProfile(ctx context.Context, userID int64) (*Profile, error)
}

// Config holds service configuration
type Config struct {
	JWTSecret         string
	JWTIssuer         string
	AccessTokenExpiry time.Duration
	BCryptCost        int
}

type service struct {
	repo   Repository
	config *Config
	logger *zap.Logger
}

// NewService creates a new auth service
func NewService(repo Repository, config *Config, logger *zap.Logger) Service {
	return &service{
		repo:   repo,
		config: config,
		logger: logger.Named("auth"),
	}
}

// Register creates an account and signs the user in
func (s *service) Register(ctx context.Context, req *RegisterRequest) (*AuthResponse, error) {
	req.Username = strings.ToLower(strings.TrimSpace(req.Username))
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Name = strings.TrimSpace(req.Name)

	if err := utils.ValidateStruct(req); err != nil {
		return nil, apperror.Validation("INVALID_REGISTRATION", err.Error())
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.config.BCryptCost)
	if err != nil {
		return nil, apperror.Internal("failed to hash password", err)
	}

	user := &User{
		Name:         req.Name,
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: string(hash),
		Avatar:       DefaultAvatar,
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		if errors.Is(err, ErrAccountExists) {
			return nil, err
		}
		return nil, apperror.Internal("failed to create account", err)
	}

	s.logger.Info("account registered", zap.Int64("user_id", user.ID), zap.String("username", user.Username))
	return s.issue(user)
}

// Login verifies credentials. Unknown accounts and bad passwords are
// indistinguishable to the caller.
func (s *service) Login(ctx context.Context, req *LoginRequest) (*AuthResponse, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, apperror.Validation("INVALID_LOGIN", err.Error())
	}

	user, err := s.repo.GetUserByIdentifier(ctx, strings.TrimSpace(req.Identifier))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, apperror.Internal("failed to load account", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return s.issue(user)
}

// ValidateToken accepts only unexpired access tokens
func (s *service) ValidateToken(ctx context.Context, token string) (*utils.JWTClaims, error) {
	claims, err := utils.ValidateJWT(token, s.config.JWTSecret)
	if err != nil {
		return nil, ErrInvalidToken.WithCause(err)
	}
	if claims.Type != utils.TokenTypeAccess {
		return nil, ErrInvalidTokenType
	}
	return claims, nil
}

func (s *service) GetUserByID(ctx context.Context, userID int64) (*User, error) {
	return s.repo.GetUserByID(ctx, userID)
}

// GetProfile resolves a user id to its public profile
func (s *service) GetProfile(ctx context.Context, userID int64) (*Profile, error) {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return user.Profile(), nil
}

func (s *service) issue(user *User) (*AuthResponse, error) {
	claims := utils.NewAccessClaims(user.ID, user.Username, s.config.JWTIssuer, s.config.AccessTokenExpiry)
	token, err := utils.GenerateJWT(claims, s.config.JWTSecret)
	if err != nil {
		return nil, apperror.Internal("failed to issue token", err)
	}

	return &AuthResponse{
		User:        user.Profile(),
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.config.AccessTokenExpiry.Seconds()),
	}, nil
}
