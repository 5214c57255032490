// Package domain contains the core business entities for Pergamon.
package domain

import "errors"

// Domain errors - these represent business rule violations.
// They are distinct from infrastructure errors (database, network, etc.).

var (
	// ===========================================
	// User Errors
	// ===========================================

	// ErrUserNotFound indicates the requested user does not exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrEmailTaken indicates a user with the same email exists.
	ErrEmailTaken = errors.New("email already in use")

	// ErrUserInactive indicates the user account is deactivated.
	ErrUserInactive = errors.New("user account is inactive")

	// ErrInvalidCredentials indicates authentication failed.
	// Unknown email, deactivated account, and wrong password all collapse
	// into this error so callers cannot enumerate accounts.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ===========================================
	// Book Errors
	// ===========================================

	// ErrBookNotFound indicates the requested book does not exist.
	ErrBookNotFound = errors.New("book not found")

	// ErrISBNTaken indicates a book with the same ISBN exists.
	ErrISBNTaken = errors.New("ISBN already exists")

	// ErrInvalidISBN indicates the ISBN does not normalize to 10 or 13 digits.
	ErrInvalidISBN = errors.New("ISBN must have 10 or 13 digits")

	// ErrBookUnavailable indicates the book is already on loan.
	ErrBookUnavailable = errors.New("book is already on loan")

	// ErrBookAvailable indicates the book is not on loan, so it cannot
	// be reserved.
	ErrBookAvailable = errors.New("book is currently available")

	// ===========================================
	// Loan Errors
	// ===========================================

	// ErrLoanNotFound indicates the requested loan does not exist.
	ErrLoanNotFound = errors.New("loan not found")

	// ErrLoanAlreadyReturned indicates the loan is closed.
	ErrLoanAlreadyReturned = errors.New("loan is already returned")

	// ErrRenewalLimitReached indicates the loan has been renewed the
	// maximum number of times.
	ErrRenewalLimitReached = errors.New("loan renewal limit reached")

	// ===========================================
	// Reservation Errors
	// ===========================================

	// ErrReservationNotFound indicates the requested reservation does not exist.
	ErrReservationNotFound = errors.New("reservation not found")

	// ErrReservationInactive indicates the reservation is not active.
	ErrReservationInactive = errors.New("reservation is no longer active")

	// ErrDuplicateReservation indicates the user already holds an active
	// reservation for the book.
	ErrDuplicateReservation = errors.New("active reservation already exists for this book")

	// ===========================================
	// Authentication/Authorization Errors
	// ===========================================

	// ErrUnauthenticated indicates the operation requires an identity and
	// none was presented (or the presented token did not resolve to one).
	ErrUnauthenticated = errors.New("authentication required")

	// ErrForbidden indicates the identity lacks the role required for the
	// operation.
	ErrForbidden = errors.New("insufficient permissions")
)
