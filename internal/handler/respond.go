// Package handler provides the HTTP API for Pergamon.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/pergamon-io/pergamon/internal/domain"
	"github.com/pergamon-io/pergamon/internal/service"
)

// maxBodySize caps JSON request bodies.
const maxBodySize = 1 << 20 // 1MB

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func errorResponse(msg string) map[string]string {
	return map[string]string{"error": msg}
}

// decodeJSON parses a request body into dst, enforcing the size cap.
// Writes the error response itself and reports whether decoding succeeded.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse("request body too large"))
			return false
		}
		writeJSON(w, http.StatusBadRequest, errorResponse("invalid request body"))
		return false
	}
	return true
}

// writeServiceError maps service and domain sentinels onto the response
// taxonomy: validation 400, unauthenticated 401, forbidden 403, missing
// resource 404, state conflict 409, everything else 500.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	// Validation
	case errors.Is(err, service.ErrInvalidName),
		errors.Is(err, service.ErrInvalidEmail),
		errors.Is(err, service.ErrInvalidPassword),
		errors.Is(err, service.ErrInvalidPhone),
		errors.Is(err, service.ErrInvalidTitle),
		errors.Is(err, service.ErrInvalidAuthor),
		errors.Is(err, service.ErrInvalidPeriod),
		errors.Is(err, domain.ErrInvalidISBN):
		writeJSON(w, http.StatusBadRequest, errorResponse(err.Error()))

	// Authentication / authorization
	case errors.Is(err, domain.ErrInvalidCredentials),
		errors.Is(err, domain.ErrUnauthenticated):
		writeJSON(w, http.StatusUnauthorized, errorResponse(err.Error()))
	case errors.Is(err, domain.ErrForbidden):
		writeJSON(w, http.StatusForbidden, errorResponse(err.Error()))

	// Missing resources
	case errors.Is(err, domain.ErrUserNotFound),
		errors.Is(err, domain.ErrBookNotFound),
		errors.Is(err, domain.ErrLoanNotFound),
		errors.Is(err, domain.ErrReservationNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse(err.Error()))

	// State conflicts
	case errors.Is(err, domain.ErrEmailTaken),
		errors.Is(err, domain.ErrISBNTaken),
		errors.Is(err, domain.ErrBookUnavailable),
		errors.Is(err, domain.ErrBookAvailable),
		errors.Is(err, domain.ErrLoanAlreadyReturned),
		errors.Is(err, domain.ErrRenewalLimitReached),
		errors.Is(err, domain.ErrDuplicateReservation),
		errors.Is(err, domain.ErrReservationInactive),
		errors.Is(err, domain.ErrUserInactive):
		writeJSON(w, http.StatusConflict, errorResponse(err.Error()))

	default:
		writeJSON(w, http.StatusInternalServerError, errorResponse("internal server error"))
	}
}
