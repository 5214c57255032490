package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/pergamon-io/pergamon/internal/auth"
	"github.com/pergamon-io/pergamon/internal/domain"
	"github.com/pergamon-io/pergamon/internal/repository"
)

// AuthService handles registration and login.
type AuthService struct {
	userRepo repository.UserRepository
	codec    *auth.TokenCodec
	logger   zerolog.Logger
}

// NewAuthService creates a new AuthService.
func NewAuthService(
	userRepo repository.UserRepository,
	codec *auth.TokenCodec,
	logger zerolog.Logger,
) *AuthService {
	return &AuthService{
		userRepo: userRepo,
		codec:    codec,
		logger:   logger.With().Str("service", "auth").Logger(),
	}
}

// =============================================================================
// Input/Output Structs
// =============================================================================

// RegisterInput contains the data needed to register a member.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Phone    string
}

// RegisterOutput contains the result of registering a member.
type RegisterOutput struct {
	User *domain.User
}

// LoginInput contains the data needed to log in.
type LoginInput struct {
	Email    string
	Password string
}

// LoginOutput contains the result of a successful login.
type LoginOutput struct {
	Token string
	User  *domain.User
}

// =============================================================================
// Service Methods
// =============================================================================

// Register creates a new member account. Self-registration always produces
// a member; librarian accounts are provisioned through user management.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*RegisterOutput, error) {
	if err := validateRegistration(input); err != nil {
		return nil, err
	}

	email := domain.NormalizeEmail(input.Email)

	exists, err := s.userRepo.ExistsByEmail(ctx, email)
	if err != nil {
		s.logger.Error().Err(err).Str("email", email).Msg("failed to check email existence")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	if exists {
		return nil, domain.ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to hash password")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	user := domain.NewUser(strings.TrimSpace(input.Name), email, string(hash), input.Phone, domain.RoleMember)

	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, domain.ErrEmailTaken) {
			return nil, domain.ErrEmailTaken
		}
		s.logger.Error().Err(err).Str("email", email).Msg("failed to create user")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	s.logger.Info().
		Int64("user_id", user.ID).
		Str("email", user.Email).
		Msg("member registered")

	return &RegisterOutput{User: user}, nil
}

// Login verifies credentials and issues a bearer token. Unknown email,
// wrong password, and deactivated account all collapse to the same
// error so a caller cannot probe which emails are registered.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*LoginOutput, error) {
	user, err := s.userRepo.GetByEmail(ctx, input.Email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		s.logger.Error().Err(err).Msg("failed to get user by email")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)); err != nil {
		return nil, domain.ErrInvalidCredentials
	}

	if !user.CanAuthenticate() {
		return nil, domain.ErrInvalidCredentials
	}

	token, err := s.codec.Issue(user)
	if err != nil {
		s.logger.Error().Err(err).Int64("user_id", user.ID).Msg("failed to issue token")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	s.logger.Info().
		Int64("user_id", user.ID).
		Str("email", user.Email).
		Msg("user logged in")

	return &LoginOutput{Token: token, User: user}, nil
}

// validateRegistration checks the registration fields.
func validateRegistration(input RegisterInput) error {
	if len(strings.TrimSpace(input.Name)) < 2 {
		return ErrInvalidName
	}
	if !strings.Contains(input.Email, "@") {
		return ErrInvalidEmail
	}
	if len(input.Password) < 6 {
		return ErrInvalidPassword
	}
	if len(strings.TrimSpace(input.Phone)) < 10 {
		return ErrInvalidPhone
	}
	return nil
}
