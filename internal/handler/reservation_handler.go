package handler

import (
	"net/http"

	"github.com/pergamon-io/pergamon/internal/auth"
	"github.com/pergamon-io/pergamon/internal/domain"
	"github.com/pergamon-io/pergamon/internal/service"
)

// ReservationHandler handles reservation lifecycle requests.
type ReservationHandler struct {
	reservations *service.ReservationService
}

// NewReservationHandler creates a new ReservationHandler.
func NewReservationHandler(reservations *service.ReservationService) *ReservationHandler {
	return &ReservationHandler{reservations: reservations}
}

type createReservationRequest struct {
	BookID int64 `json:"book_id"`
}

// Create handles POST /api/reservations. A hold is always placed for the
// caller themselves.
func (h *ReservationHandler) Create(w http.ResponseWriter, r *http.Request) {
	identity, err := auth.Authorize(r.Context(), auth.OpReservationCreate)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	var req createReservationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.BookID == 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse("missing book_id"))
		return
	}

	out, err := h.reservations.Create(r.Context(), service.CreateReservationInput{
		UserID: identity.UserID,
		BookID: req.BookID,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, out.Reservation)
}

// Cancel handles DELETE /api/reservations/{id}. Owners may cancel their
// own holds; librarians may cancel anyone's.
func (h *ReservationHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	identity, err := auth.Authorize(r.Context(), auth.OpReservationCancel)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if identity.Role != domain.RoleLibrarian {
		res, err := h.reservations.GetReservation(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if res.UserID != identity.UserID {
			writeJSON(w, http.StatusForbidden, errorResponse(domain.ErrForbidden.Error()))
			return
		}
	}

	if err := h.reservations.Cancel(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Mine handles GET /api/reservations/mine.
func (h *ReservationHandler) Mine(w http.ResponseWriter, r *http.Request) {
	identity, err := auth.Authorize(r.Context(), auth.OpReservationOwn)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	reservations, err := h.reservations.ListByUser(r.Context(), identity.UserID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, reservations)
}

// ListByBook handles GET /api/reservations/book/{id}, the hold queue in
// fulfillment order.
func (h *ReservationHandler) ListByBook(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	reservations, err := h.reservations.ListActiveByBook(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, reservations)
}
