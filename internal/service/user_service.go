package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/pergamon-io/pergamon/internal/domain"
	"github.com/pergamon-io/pergamon/internal/repository"
)

// UserService handles user management operations.
type UserService struct {
	userRepo repository.UserRepository
	logger   zerolog.Logger
}

// NewUserService creates a new UserService.
func NewUserService(
	userRepo repository.UserRepository,
	logger zerolog.Logger,
) *UserService {
	return &UserService{
		userRepo: userRepo,
		logger:   logger.With().Str("service", "user").Logger(),
	}
}

// =============================================================================
// Input/Output Structs
// =============================================================================

// CreateUserInput contains the data needed to create a user.
// Unlike self-registration, this path may assign any role.
type CreateUserInput struct {
	Name     string
	Email    string
	Password string
	Phone    string
	Role     domain.UserRole
}

// CreateUserOutput contains the result of creating a user.
type CreateUserOutput struct {
	User *domain.User
}

// UpdateUserInput contains the data needed to update a user profile.
type UpdateUserInput struct {
	UserID int64
	Name   string
	Email  string
	Phone  string
}

// UpdateUserOutput contains the result of updating a user.
type UpdateUserOutput struct {
	User *domain.User
}

// ListUsersInput contains pagination options for listing users.
type ListUsersInput struct {
	Offset int
	Limit  int
}

// ListUsersOutput contains the result of listing users.
type ListUsersOutput struct {
	Users []*domain.User
	Total int64
}

// ChangePasswordInput contains the data needed to change a password.
type ChangePasswordInput struct {
	UserID          int64
	CurrentPassword string
	NewPassword     string
}

// =============================================================================
// Service Methods
// =============================================================================

// CreateUser creates a user with an explicit role. Librarian provisioning
// path; self-registration goes through AuthService.Register instead.
func (s *UserService) CreateUser(ctx context.Context, input CreateUserInput) (*CreateUserOutput, error) {
	if err := validateRegistration(RegisterInput{
		Name:     input.Name,
		Email:    input.Email,
		Password: input.Password,
		Phone:    input.Phone,
	}); err != nil {
		return nil, err
	}
	if !input.Role.Valid() {
		return nil, fmt.Errorf("invalid role: %q", input.Role)
	}

	email := domain.NormalizeEmail(input.Email)

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to hash password")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	user := domain.NewUser(strings.TrimSpace(input.Name), email, string(hash), input.Phone, input.Role)

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
		Str("role", string(user.Role)).
		Msg("user created")

	return &CreateUserOutput{User: user}, nil
}

// GetUser retrieves a user by ID.
func (s *UserService) GetUser(ctx context.Context, userID int64) (*domain.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrUserNotFound
		}
		s.logger.Error().Err(err).Int64("user_id", userID).Msg("failed to get user")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	return user, nil
}

// UpdateUser updates a user's profile fields.
func (s *UserService) UpdateUser(ctx context.Context, input UpdateUserInput) (*UpdateUserOutput, error) {
	user, err := s.userRepo.GetByID(ctx, input.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrUserNotFound
		}
		s.logger.Error().Err(err).Int64("user_id", input.UserID).Msg("failed to get user")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	if input.Name != "" {
		if len(strings.TrimSpace(input.Name)) < 2 {
			return nil, ErrInvalidName
		}
		user.Name = strings.TrimSpace(input.Name)
	}
	if input.Email != "" {
		if !strings.Contains(input.Email, "@") {
			return nil, ErrInvalidEmail
		}
		user.Email = domain.NormalizeEmail(input.Email)
	}
	if input.Phone != "" {
		if len(input.Phone) < 10 {
			return nil, ErrInvalidPhone
		}
		user.Phone = input.Phone
	}

	if err := s.userRepo.Update(ctx, user); err != nil {
		if errors.Is(err, domain.ErrEmailTaken) {
			return nil, domain.ErrEmailTaken
		}
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrUserNotFound
		}
		s.logger.Error().Err(err).Int64("user_id", input.UserID).Msg("failed to update user")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	s.logger.Info().Int64("user_id", user.ID).Msg("user updated")

	return &UpdateUserOutput{User: user}, nil
}

// DeactivateUser soft-deletes a user by flipping status to inactive.
// Standing loans are untouched; the books come back through the normal
// return flow. Idempotent on an already-inactive user.
func (s *UserService) DeactivateUser(ctx context.Context, userID int64) error {
	if err := s.userRepo.Deactivate(ctx, userID); err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return domain.ErrUserNotFound
		}
		s.logger.Error().Err(err).Int64("user_id", userID).Msg("failed to deactivate user")
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	s.logger.Info().Int64("user_id", userID).Msg("user deactivated")
	return nil
}

// ListUsers returns users with pagination.
func (s *UserService) ListUsers(ctx context.Context, input ListUsersInput) (*ListUsersOutput, error) {
	limit := input.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	result, err := s.userRepo.List(ctx, repository.ListOptions{Offset: input.Offset, Limit: limit})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list users")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	return &ListUsersOutput{Users: result.Items, Total: result.Total}, nil
}

// SearchUsers returns users whose name contains the given substring.
func (s *UserService) SearchUsers(ctx context.Context, name string) ([]*domain.User, error) {
	users, err := s.userRepo.SearchByName(ctx, name)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to search users")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	return users, nil
}

// CountByRole returns the number of active users per role.
func (s *UserService) CountByRole(ctx context.Context) (map[domain.UserRole]int64, error) {
	counts, err := s.userRepo.CountByRole(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to count users by role")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	return counts, nil
}

// ChangePassword verifies the current password and installs a new one.
func (s *UserService) ChangePassword(ctx context.Context, input ChangePasswordInput) error {
	if len(input.NewPassword) < 6 {
		return ErrInvalidPassword
	}

	user, err := s.userRepo.GetByID(ctx, input.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return domain.ErrUserNotFound
		}
		s.logger.Error().Err(err).Int64("user_id", input.UserID).Msg("failed to get user")
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.CurrentPassword)); err != nil {
		return domain.ErrInvalidCredentials
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to hash password")
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	user.PasswordHash = string(hash)
	if err := s.userRepo.Update(ctx, user); err != nil {
		s.logger.Error().Err(err).Int64("user_id", input.UserID).Msg("failed to update password")
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	s.logger.Info().Int64("user_id", input.UserID).Msg("password changed")
	return nil
}
