package domain

import (
	"testing"
)

func TestNormalizeEmail(t *testing.T) {
	if got := NormalizeEmail("  Reader@Example.COM "); got != "reader@example.com" {
		t.Errorf("NormalizeEmail() = %q", got)
	}
}

func TestUserCanAuthenticate(t *testing.T) {
	active := &User{Status: UserActive}
	inactive := &User{Status: UserInactive}

	if !active.CanAuthenticate() {
		t.Error("active accounts must be able to authenticate")
	}
	if inactive.CanAuthenticate() {
		t.Error("deactivated accounts must not authenticate")
	}
}

func TestUserRoleValid(t *testing.T) {
	if !RoleMember.Valid() || !RoleLibrarian.Valid() {
		t.Error("known roles should be valid")
	}
	if UserRole("ADMIN").Valid() {
		t.Error("unknown role should be invalid")
	}
}

func TestNewUserNormalizesEmail(t *testing.T) {
	u := NewUser("Reader", "Reader@Example.com", "hash", "", RoleMember)
	if u.Email != "reader@example.com" {
		t.Errorf("email not normalized: %q", u.Email)
	}
	if u.Status != UserActive {
		t.Errorf("new users must start active, got %s", u.Status)
	}
}
