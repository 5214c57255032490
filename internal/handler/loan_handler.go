package handler

import (
	"net/http"

	"github.com/pergamon-io/pergamon/internal/auth"
	"github.com/pergamon-io/pergamon/internal/domain"
	"github.com/pergamon-io/pergamon/internal/service"
)

// LoanHandler handles loan lifecycle requests.
type LoanHandler struct {
	loans *service.LoanService
}

// NewLoanHandler creates a new LoanHandler.
func NewLoanHandler(loans *service.LoanService) *LoanHandler {
	return &LoanHandler{loans: loans}
}

type grantLoanRequest struct {
	// UserID is the borrower. Optional; defaults to the caller. Only
	// librarians may grant on someone else's behalf.
	UserID int64 `json:"user_id"`
	BookID int64 `json:"book_id"`
}

// Grant handles POST /api/loans.
func (h *LoanHandler) Grant(w http.ResponseWriter, r *http.Request) {
	identity, err := auth.Authorize(r.Context(), auth.OpLoanGrant)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	var req grantLoanRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	userID := req.UserID
	if userID == 0 {
		userID = identity.UserID
	}
	if userID != identity.UserID && identity.Role != domain.RoleLibrarian {
		writeJSON(w, http.StatusForbidden, errorResponse(domain.ErrForbidden.Error()))
		return
	}
	if req.BookID == 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse("missing book_id"))
		return
	}

	out, err := h.loans.Grant(r.Context(), service.GrantLoanInput{UserID: userID, BookID: req.BookID})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, out.Loan)
}

// Renew handles PUT /api/loans/{id}/renew.
func (h *LoanHandler) Renew(w http.ResponseWriter, r *http.Request) {
	identity, err := auth.Authorize(r.Context(), auth.OpLoanRenew)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if !h.ownsOrLibrarian(w, r, identity, id) {
		return
	}

	out, err := h.loans.Renew(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, out.Loan)
}

// Return handles PUT /api/loans/{id}/return.
func (h *LoanHandler) Return(w http.ResponseWriter, r *http.Request) {
	identity, err := auth.Authorize(r.Context(), auth.OpLoanReturn)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if !h.ownsOrLibrarian(w, r, identity, id) {
		return
	}

	out, err := h.loans.Return(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, out.Loan)
}

// List handles GET /api/loans, returning all open loans.
func (h *LoanHandler) List(w http.ResponseWriter, r *http.Request) {
	loans, err := h.loans.ListOpen(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, loans)
}

// Overdue handles GET /api/loans/overdue.
func (h *LoanHandler) Overdue(w http.ResponseWriter, r *http.Request) {
	loans, err := h.loans.Overdue(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, loans)
}

// Mine handles GET /api/loans/mine.
func (h *LoanHandler) Mine(w http.ResponseWriter, r *http.Request) {
	identity, err := auth.Authorize(r.Context(), auth.OpLoanListOwn)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	loans, err := h.loans.ListByUser(r.Context(), identity.UserID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, loans)
}

// ownsOrLibrarian verifies the caller may act on the loan. The loan must
// belong to the caller unless they are a librarian. Writes the error
// response itself.
func (h *LoanHandler) ownsOrLibrarian(w http.ResponseWriter, r *http.Request, identity *auth.Identity, loanID int64) bool {
	if identity.Role == domain.RoleLibrarian {
		return true
	}

	loan, err := h.loans.GetLoan(r.Context(), loanID)
	if err != nil {
		writeServiceError(w, err)
		return false
	}
	if loan.UserID != identity.UserID {
		writeJSON(w, http.StatusForbidden, errorResponse(domain.ErrForbidden.Error()))
		return false
	}
	return true
}
