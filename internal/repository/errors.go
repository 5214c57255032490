package repository

import "errors"

// Repository errors
var (
	// ErrStaleLoan indicates a conditional loan update did not apply
	// because the loan changed underneath the caller (already returned,
	// or renewed concurrently). The caller should re-read and decide.
	ErrStaleLoan = errors.New("loan state changed concurrently")

	// ErrStaleReservation indicates a conditional reservation transition
	// did not apply because the reservation already left the active state.
	ErrStaleReservation = errors.New("reservation is no longer active")
)
