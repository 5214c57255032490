package service

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/pergamon-io/pergamon/internal/domain"
)

func newUserService(users *MockUserRepository) *UserService {
	return NewUserService(users, zerolog.Nop())
}

func TestUserService_CreateUser(t *testing.T) {
	t.Run("librarian provisioning", func(t *testing.T) {
		users := NewMockUserRepository()
		svc := newUserService(users)

		out, err := svc.CreateUser(context.Background(), CreateUserInput{
			Name:     "Head Librarian",
			Email:    "head@library.example",
			Password: "secret1",
			Role:     domain.RoleLibrarian,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out.User.Role != domain.RoleLibrarian {
			t.Errorf("role = %s, want LIBRARIAN", out.User.Role)
		}
	})

	t.Run("unknown role", func(t *testing.T) {
		svc := newUserService(NewMockUserRepository())

		_, err := svc.CreateUser(context.Background(), CreateUserInput{
			Name:     "Reader",
			Email:    "reader@example.com",
			Password: "secret1",
			Role:     domain.UserRole("ADMIN"),
		})
		if err == nil {
			t.Error("unknown roles must be rejected")
		}
	})
}

func TestUserService_UpdateUser(t *testing.T) {
	seed := func() (*UserService, *domain.User) {
		users := NewMockUserRepository()
		u := users.Add(domain.NewUser("Reader", "reader@example.com", "hash", "+15551234567", domain.RoleMember))
		return newUserService(users), u
	}

	t.Run("partial update keeps unset fields", func(t *testing.T) {
		svc, u := seed()

		out, err := svc.UpdateUser(context.Background(), UpdateUserInput{UserID: u.ID, Name: "Renamed"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out.User.Name != "Renamed" {
			t.Errorf("name = %q", out.User.Name)
		}
		if out.User.Email != "reader@example.com" || out.User.Phone != "+15551234567" {
			t.Error("unset fields must keep their values")
		}
	})

	t.Run("invalid field rejected", func(t *testing.T) {
		svc, u := seed()

		if _, err := svc.UpdateUser(context.Background(), UpdateUserInput{UserID: u.ID, Name: "X"}); !errors.Is(err, ErrInvalidName) {
			t.Errorf("expected ErrInvalidName, got %v", err)
		}
		if _, err := svc.UpdateUser(context.Background(), UpdateUserInput{UserID: u.ID, Email: "no-at-sign"}); !errors.Is(err, ErrInvalidEmail) {
			t.Errorf("expected ErrInvalidEmail, got %v", err)
		}
	})

	t.Run("unknown user", func(t *testing.T) {
		svc, _ := seed()
		if _, err := svc.UpdateUser(context.Background(), UpdateUserInput{UserID: 99, Name: "Renamed"}); !errors.Is(err, domain.ErrUserNotFound) {
			t.Errorf("expected ErrUserNotFound, got %v", err)
		}
	})
}

func TestUserService_DeactivateUser(t *testing.T) {
	users := NewMockUserRepository()
	u := users.Add(domain.NewUser("Reader", "reader@example.com", "hash", "", domain.RoleMember))
	svc := newUserService(users)

	if err := svc.DeactivateUser(context.Background(), u.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ := users.GetByID(context.Background(), u.ID)
	if got.Status != domain.UserInactive {
		t.Errorf("status = %s, want INACTIVE", got.Status)
	}

	// Idempotent.
	if err := svc.DeactivateUser(context.Background(), u.ID); err != nil {
		t.Errorf("second deactivation must succeed: %v", err)
	}

	if err := svc.DeactivateUser(context.Background(), 99); !errors.Is(err, domain.ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
}

// racingUserRepo injects a deactivation between UpdateUser's read and its
// write, the window where a full-row update could resurrect the account.
type racingUserRepo struct {
	*MockUserRepository
	beforeUpdate func()
}

func (r *racingUserRepo) Update(ctx context.Context, user *domain.User) error {
	if r.beforeUpdate != nil {
		r.beforeUpdate()
	}
	return r.MockUserRepository.Update(ctx, user)
}

func TestUserService_UpdateUser_DoesNotResurrectDeactivated(t *testing.T) {
	users := NewMockUserRepository()
	u := users.Add(domain.NewUser("Reader", "reader@example.com", "hash", "+15551234567", domain.RoleMember))

	raced := &racingUserRepo{MockUserRepository: users}
	raced.beforeUpdate = func() {
		if err := users.Deactivate(context.Background(), u.ID); err != nil {
			t.Fatalf("deactivation failed: %v", err)
		}
	}
	svc := NewUserService(raced, zerolog.Nop())

	if _, err := svc.UpdateUser(context.Background(), UpdateUserInput{UserID: u.ID, Name: "Renamed"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, _ := users.GetByID(context.Background(), u.ID)
	if got.Name != "Renamed" {
		t.Errorf("name = %q, want %q", got.Name, "Renamed")
	}
	if got.Status != domain.UserInactive {
		t.Errorf("status = %s, a profile update must not reactivate the account", got.Status)
	}
}

func TestUserService_ListUsers_ClampsLimit(t *testing.T) {
	users := NewMockUserRepository()
	for i := 0; i < 3; i++ {
		users.Add(domain.NewUser("Reader", "reader@example.com", "hash", "", domain.RoleMember))
	}
	svc := newUserService(users)

	tests := []struct {
		name  string
		limit int
	}{
		{"zero limit", 0},
		{"negative limit", -5},
		{"oversized limit", 1000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := svc.ListUsers(context.Background(), ListUsersInput{Limit: tt.limit})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if out.Total != 3 || len(out.Users) != 3 {
				t.Errorf("got %d/%d users", len(out.Users), out.Total)
			}
		})
	}
}

func TestUserService_ChangePassword(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("current1"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}

	seed := func() (*UserService, *MockUserRepository, *domain.User) {
		users := NewMockUserRepository()
		u := users.Add(domain.NewUser("Reader", "reader@example.com", string(hash), "", domain.RoleMember))
		return newUserService(users), users, u
	}

	t.Run("success", func(t *testing.T) {
		svc, users, u := seed()

		err := svc.ChangePassword(context.Background(), ChangePasswordInput{
			UserID:          u.ID,
			CurrentPassword: "current1",
			NewPassword:     "brand-new",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		got, _ := users.GetByID(context.Background(), u.ID)
		if bcrypt.CompareHashAndPassword([]byte(got.PasswordHash), []byte("brand-new")) != nil {
			t.Error("new password must verify")
		}
	})

	t.Run("wrong current password", func(t *testing.T) {
		svc, _, u := seed()

		err := svc.ChangePassword(context.Background(), ChangePasswordInput{
			UserID:          u.ID,
			CurrentPassword: "wrong12",
			NewPassword:     "brand-new",
		})
		if !errors.Is(err, domain.ErrInvalidCredentials) {
			t.Errorf("expected ErrInvalidCredentials, got %v", err)
		}
	})

	t.Run("new password too short", func(t *testing.T) {
		svc, _, u := seed()

		err := svc.ChangePassword(context.Background(), ChangePasswordInput{
			UserID:          u.ID,
			CurrentPassword: "current1",
			NewPassword:     "short",
		})
		if !errors.Is(err, ErrInvalidPassword) {
			t.Errorf("expected ErrInvalidPassword, got %v", err)
		}
	})
}
