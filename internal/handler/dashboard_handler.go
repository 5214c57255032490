package handler

import (
	"net/http"

	"github.com/pergamon-io/pergamon/internal/domain"
	"github.com/pergamon-io/pergamon/internal/service"
)

// DashboardHandler serves the librarian overview.
type DashboardHandler struct {
	books        *service.BookService
	users        *service.UserService
	loans        *service.LoanService
	reservations *service.ReservationService
}

// NewDashboardHandler creates a new DashboardHandler.
func NewDashboardHandler(
	books *service.BookService,
	users *service.UserService,
	loans *service.LoanService,
	reservations *service.ReservationService,
) *DashboardHandler {
	return &DashboardHandler{
		books:        books,
		users:        users,
		loans:        loans,
		reservations: reservations,
	}
}

type dashboardStats struct {
	Books        *domain.BookStats         `json:"books"`
	Users        map[domain.UserRole]int64 `json:"users"`
	Loans        *domain.LoanStats         `json:"loans"`
	Reservations *domain.ReservationStats  `json:"reservations"`
}

// Stats handles GET /api/dashboard/stats.
func (h *DashboardHandler) Stats(w http.ResponseWriter, r *http.Request) {
	bookStats, err := h.books.BookStats(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	userCounts, err := h.users.CountByRole(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	loanStats, err := h.loans.LoanStats(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resStats, err := h.reservations.ReservationStats(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dashboardStats{
		Books:        bookStats,
		Users:        userCounts,
		Loans:        loanStats,
		Reservations: resStats,
	})
}
