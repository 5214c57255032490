package auth

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/pergamon-io/pergamon/internal/domain"
)

// Operation names a protected action for capability lookup.
type Operation string

// Protected operations. Public reads (catalog browsing, token verification)
// do not appear here; anything absent from the table is denied for every
// role, so new operations must be registered explicitly.
const (
	OpBookManage        Operation = "book:manage"
	OpUserManage        Operation = "user:manage"
	OpUserRead          Operation = "user:read"
	OpLoanGrant         Operation = "loan:grant"
	OpLoanRenew         Operation = "loan:renew"
	OpLoanReturn        Operation = "loan:return"
	OpLoanList          Operation = "loan:list"
	OpLoanListOwn       Operation = "loan:list-own"
	OpReservationCreate Operation = "reservation:create"
	OpReservationCancel Operation = "reservation:cancel"
	OpReservationList   Operation = "reservation:list"
	OpReservationOwn    Operation = "reservation:list-own"
	OpPasswordChange    Operation = "password:change"
	OpDashboard         Operation = "dashboard:read"
)

// capabilities is the single (operation, role) -> allowed table.
// Role checks live here and nowhere else; handlers only name the
// operation they implement.
var capabilities = map[Operation]map[domain.UserRole]bool{
	OpBookManage:        {domain.RoleLibrarian: true},
	OpUserManage:        {domain.RoleLibrarian: true},
	OpUserRead:          {domain.RoleMember: true, domain.RoleLibrarian: true},
	OpLoanGrant:         {domain.RoleMember: true, domain.RoleLibrarian: true},
	OpLoanRenew:         {domain.RoleMember: true, domain.RoleLibrarian: true},
	OpLoanReturn:        {domain.RoleMember: true, domain.RoleLibrarian: true},
	OpLoanList:          {domain.RoleLibrarian: true},
	OpLoanListOwn:       {domain.RoleMember: true, domain.RoleLibrarian: true},
	OpReservationCreate: {domain.RoleMember: true, domain.RoleLibrarian: true},
	OpReservationCancel: {domain.RoleMember: true, domain.RoleLibrarian: true},
	OpReservationList:   {domain.RoleLibrarian: true},
	OpReservationOwn:    {domain.RoleMember: true, domain.RoleLibrarian: true},
	OpPasswordChange:    {domain.RoleMember: true, domain.RoleLibrarian: true},
	OpDashboard:         {domain.RoleLibrarian: true},
}

// Authorize checks the context identity against the capability table.
// Returns domain.ErrUnauthenticated when no identity is attached and
// domain.ErrForbidden when the role lacks the capability. This is the
// fail-closed half of the two-phase contract: authentication upstream
// never rejects, authorization here always does.
func Authorize(ctx context.Context, op Operation) (*Identity, error) {
	id := IdentityFrom(ctx)
	if id == nil {
		return nil, domain.ErrUnauthenticated
	}
	if !capabilities[op][id.Role] {
		return nil, domain.ErrForbidden
	}
	return id, nil
}

// Require wraps a handler with an authorization check for the operation.
func Require(op Operation) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, err := Authorize(r.Context(), op); err != nil {
				status := http.StatusForbidden
				if err == domain.ErrUnauthenticated {
					status = http.StatusUnauthorized
				}
				writeAuthError(w, status, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// writeAuthError writes a JSON error response for authorization failures.
func writeAuthError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
