package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/pergamon-io/pergamon/internal/auth"
	"github.com/pergamon-io/pergamon/internal/domain"
)

func newAuthService(users *MockUserRepository) *AuthService {
	codec := auth.NewTokenCodec("0123456789abcdef0123456789abcdef", time.Hour, "pergamon")
	return NewAuthService(users, codec, zerolog.Nop())
}

func TestAuthService_Register(t *testing.T) {
	tests := []struct {
		name    string
		input   RegisterInput
		wantErr error
		seed    func(*MockUserRepository)
	}{
		{
			name:  "success",
			input: RegisterInput{Name: "Reader", Email: "reader@example.com", Password: "secret1", Phone: "+15551234567"},
		},
		{
			name:    "name too short",
			input:   RegisterInput{Name: " R ", Email: "reader@example.com", Password: "secret1", Phone: "+15551234567"},
			wantErr: ErrInvalidName,
		},
		{
			name:    "email without at sign",
			input:   RegisterInput{Name: "Reader", Email: "reader.example.com", Password: "secret1", Phone: "+15551234567"},
			wantErr: ErrInvalidEmail,
		},
		{
			name:    "password too short",
			input:   RegisterInput{Name: "Reader", Email: "reader@example.com", Password: "short", Phone: "+15551234567"},
			wantErr: ErrInvalidPassword,
		},
		{
			name:    "phone too short",
			input:   RegisterInput{Name: "Reader", Email: "reader@example.com", Password: "secret1", Phone: "12345"},
			wantErr: ErrInvalidPhone,
		},
		{
			name:    "phone missing",
			input:   RegisterInput{Name: "Reader", Email: "reader@example.com", Password: "secret1"},
			wantErr: ErrInvalidPhone,
		},
		{
			name:    "phone all whitespace",
			input:   RegisterInput{Name: "Reader", Email: "reader@example.com", Password: "secret1", Phone: "           "},
			wantErr: ErrInvalidPhone,
		},
		{
			name:    "email taken",
			input:   RegisterInput{Name: "Reader", Email: "Taken@Example.com", Password: "secret1", Phone: "+15551234567"},
			wantErr: domain.ErrEmailTaken,
			seed: func(m *MockUserRepository) {
				m.Add(domain.NewUser("Other", "taken@example.com", "hash", "", domain.RoleMember))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users := NewMockUserRepository()
			if tt.seed != nil {
				tt.seed(users)
			}
			svc := newAuthService(users)

			out, err := svc.Register(context.Background(), tt.input)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if out.User.Role != domain.RoleMember {
				t.Errorf("self-registration must produce a member, got %s", out.User.Role)
			}
			if out.User.Email != domain.NormalizeEmail(tt.input.Email) {
				t.Errorf("email not normalized: %q", out.User.Email)
			}
			if out.User.PasswordHash == tt.input.Password {
				t.Error("password must not be stored in the clear")
			}
			if bcrypt.CompareHashAndPassword([]byte(out.User.PasswordHash), []byte(tt.input.Password)) != nil {
				t.Error("stored hash must verify against the password")
			}
		})
	}
}

func TestAuthService_Login(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("secret1"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}

	seed := func() *MockUserRepository {
		users := NewMockUserRepository()
		users.Add(domain.NewUser("Reader", "reader@example.com", string(hash), "", domain.RoleMember))
		return users
	}

	t.Run("success", func(t *testing.T) {
		svc := newAuthService(seed())

		out, err := svc.Login(context.Background(), LoginInput{Email: "reader@example.com", Password: "secret1"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out.Token == "" {
			t.Error("login must issue a token")
		}
		if out.User.Email != "reader@example.com" {
			t.Errorf("wrong user: %s", out.User.Email)
		}
	})

	t.Run("case-insensitive email", func(t *testing.T) {
		svc := newAuthService(seed())

		if _, err := svc.Login(context.Background(), LoginInput{Email: "Reader@Example.COM", Password: "secret1"}); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	// Unknown email, wrong password, and a deactivated account must be
	// indistinguishable to the caller.
	t.Run("failure modes collapse", func(t *testing.T) {
		inactive := seed()
		for _, u := range inactive.users {
			u.Status = domain.UserInactive
		}

		tests := []struct {
			name  string
			users *MockUserRepository
			input LoginInput
		}{
			{"unknown email", seed(), LoginInput{Email: "ghost@example.com", Password: "secret1"}},
			{"wrong password", seed(), LoginInput{Email: "reader@example.com", Password: "wrong12"}},
			{"deactivated account", inactive, LoginInput{Email: "reader@example.com", Password: "secret1"}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				svc := newAuthService(tt.users)
				_, err := svc.Login(context.Background(), tt.input)
				if !errors.Is(err, domain.ErrInvalidCredentials) {
					t.Errorf("expected ErrInvalidCredentials, got %v", err)
				}
			})
		}
	})
}
