package domain

import (
	"time"
)

// ReservationStatus is the lifecycle state of a reservation.
// Active is the only live state; the three inactive states record why the
// reservation ended and are all terminal.
type ReservationStatus string

const (
	// ReservationActive reservations hold a queue position for the book.
	ReservationActive ReservationStatus = "ACTIVE"

	// ReservationFulfilled reservations were converted into a loan.
	ReservationFulfilled ReservationStatus = "FULFILLED"

	// ReservationExpired reservations passed their expiry date unfulfilled.
	ReservationExpired ReservationStatus = "EXPIRED"

	// ReservationCancelled reservations were cancelled by the requester
	// or a librarian.
	ReservationCancelled ReservationStatus = "CANCELLED"
)

// Valid reports whether the status is one of the known states.
func (s ReservationStatus) Valid() bool {
	switch s {
	case ReservationActive, ReservationFulfilled, ReservationExpired, ReservationCancelled:
		return true
	}
	return false
}

// Reservation represents a hold placed on a currently-unavailable book.
// A user may hold at most one active reservation per book.
type Reservation struct {
	// ID is the unique identifier for the reservation (auto-generated).
	ID int64 `json:"id"`

	// UserID references the requester.
	UserID int64 `json:"user_id"`

	// BookID references the reserved book.
	BookID int64 `json:"book_id"`

	// ReservationDate is when the hold was placed. Fulfillment order is
	// FIFO by this field, ties broken by lowest ID.
	ReservationDate time.Time `json:"reservation_date"`

	// ExpiryDate is when the hold lapses if unfulfilled.
	ExpiryDate time.Time `json:"expiry_date"`

	// Status is the lifecycle state.
	Status ReservationStatus `json:"status"`

	// Notified is set when the requester was told their book became
	// available (at fulfillment time).
	Notified bool `json:"notified"`

	// CreatedAt is the timestamp when the reservation row was created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is the timestamp when the reservation was last updated.
	UpdatedAt time.Time `json:"updated_at"`
}

// NewReservation creates a new active Reservation with the given hold window.
func NewReservation(userID, bookID int64, reservedAt time.Time, hold time.Duration) *Reservation {
	now := time.Now().UTC()
	return &Reservation{
		UserID:          userID,
		BookID:          bookID,
		ReservationDate: reservedAt,
		ExpiryDate:      reservedAt.Add(hold),
		Status:          ReservationActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// Active reports whether the reservation still holds a queue position.
func (r *Reservation) Active() bool {
	return r.Status == ReservationActive
}

// Expired reports whether the reservation's hold window has lapsed at the
// given instant. An active but expired reservation is skipped during
// fulfillment and flipped to ReservationExpired by the sweep.
func (r *Reservation) Expired(now time.Time) bool {
	return now.After(r.ExpiryDate)
}

// ReservationStats holds reservation-level aggregate counts.
type ReservationStats struct {
	// TotalReservations is the number of reservations ever created.
	TotalReservations int64 `json:"total_reservations"`

	// ActiveReservations is the number of currently-active holds.
	ActiveReservations int64 `json:"active_reservations"`
}
