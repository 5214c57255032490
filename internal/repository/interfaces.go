// Package repository defines data access interfaces for Pergamon.
// These interfaces abstract database operations, allowing for different
// implementations (PostgreSQL, SQLite, in-memory for testing) while keeping
// the service layer clean.
//
// All cross-entity invariants (notably the book availability flag versus
// open-loan existence) are enforced through the conditional-update methods
// on these interfaces rather than in-process locks, because multiple service
// instances may run against the same store.
package repository

import (
	"context"
	"time"

	"github.com/pergamon-io/pergamon/internal/domain"
)

// =============================================================================
// User Repository
// =============================================================================

// UserRepository defines the interface for user data access.
type UserRepository interface {
	// Create creates a new user. Returns domain.ErrEmailTaken when the
	// email is already registered.
	Create(ctx context.Context, user *domain.User) error

	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id int64) (*domain.User, error)

	// GetByEmail retrieves a user by email, compared case-insensitively.
	GetByEmail(ctx context.Context, email string) (*domain.User, error)

	// Update updates a user's profile fields (not the status).
	Update(ctx context.Context, user *domain.User) error

	// Deactivate conditionally flips status from active to inactive.
	// A user that is already inactive is left untouched and reported as
	// success, so repeated deactivation is idempotent. Returns
	// domain.ErrUserNotFound when the user does not exist.
	Deactivate(ctx context.Context, id int64) error

	// List returns all users with pagination.
	List(ctx context.Context, opts ListOptions) (*ListResult[domain.User], error)

	// SearchByName returns users whose name contains the given substring.
	SearchByName(ctx context.Context, name string) ([]*domain.User, error)

	// ExistsByEmail checks if a user with the given email exists.
	ExistsByEmail(ctx context.Context, email string) (bool, error)

	// CountByRole returns the number of active users per role.
	CountByRole(ctx context.Context) (map[domain.UserRole]int64, error)
}

// =============================================================================
// Book Repository
// =============================================================================

// BookRepository defines the interface for book data access.
// MarkLoaned and MarkAvailable are the only writers of the availability
// flag anywhere in the system.
type BookRepository interface {
	// Create creates a new book. Returns domain.ErrISBNTaken when the
	// ISBN already exists.
	Create(ctx context.Context, book *domain.Book) error

	// GetByID retrieves a book by ID.
	GetByID(ctx context.Context, id int64) (*domain.Book, error)

	// GetByISBN retrieves a book by its normalized ISBN.
	GetByISBN(ctx context.Context, isbn string) (*domain.Book, error)

	// Update updates a book's catalog fields (not the availability flag).
	Update(ctx context.Context, book *domain.Book) error

	// Delete deletes a book by ID.
	Delete(ctx context.Context, id int64) error

	// List returns all books with pagination.
	List(ctx context.Context, opts ListOptions) (*ListResult[domain.Book], error)

	// ListAvailable returns all books whose availability flag is set.
	ListAvailable(ctx context.Context) ([]*domain.Book, error)

	// ListByCategory returns all books in a category.
	ListByCategory(ctx context.Context, category string) ([]*domain.Book, error)

	// ListRecent returns the most recently added books.
	ListRecent(ctx context.Context, limit int) ([]*domain.Book, error)

	// Search returns books whose title, author, ISBN, or category contains
	// the given substring.
	Search(ctx context.Context, query string) ([]*domain.Book, error)

	// ExistsByISBN checks if a book with the given ISBN exists.
	ExistsByISBN(ctx context.Context, isbn string) (bool, error)

	// MarkLoaned atomically flips available from true to false.
	// It is a compare-and-set: of N concurrent callers on the same book
	// exactly one succeeds. Returns domain.ErrBookUnavailable when the
	// flag was already false and domain.ErrBookNotFound when the book
	// does not exist.
	MarkLoaned(ctx context.Context, bookID int64) error

	// MarkAvailable flips available back to true.
	// Returns domain.ErrBookNotFound when the book does not exist.
	MarkAvailable(ctx context.Context, bookID int64) error

	// Stats returns catalog-level aggregate counts.
	Stats(ctx context.Context) (*domain.BookStats, error)
}

// =============================================================================
// Loan Repository
// =============================================================================

// LoanRepository defines the interface for loan data access.
// Loans are append-and-update only; they are never deleted.
type LoanRepository interface {
	// Create creates a new loan.
	Create(ctx context.Context, loan *domain.Loan) error

	// GetByID retrieves a loan by ID.
	GetByID(ctx context.Context, id int64) (*domain.Loan, error)

	// GetOpenByBook retrieves the open (unreturned) loan for a book,
	// if any. At most one can exist.
	GetOpenByBook(ctx context.Context, bookID int64) (*domain.Loan, error)

	// ListByUser returns all loans for a user, newest first.
	ListByUser(ctx context.Context, userID int64) ([]*domain.Loan, error)

	// ListOpen returns all open loans.
	ListOpen(ctx context.Context) ([]*domain.Loan, error)

	// ListOverdue returns open loans whose due date is before now.
	ListOverdue(ctx context.Context, now time.Time) ([]*domain.Loan, error)

	// Renew conditionally applies one renewal: it extends the due date,
	// sets the renewed flag, and increments the renewal count, but only
	// if the loan is still open and its renewal count equals
	// expectedCount. The guard makes a renew/return race and a
	// double-renew race lose cleanly: the failed writer gets
	// ErrStaleLoan and must re-read.
	Renew(ctx context.Context, loanID int64, newDueDate time.Time, expectedCount int) error

	// MarkReturned conditionally closes the loan: sets returned and the
	// return date only if the loan is still open. Returns ErrStaleLoan
	// when the loan was already returned, domain.ErrLoanNotFound when it
	// does not exist.
	MarkReturned(ctx context.Context, loanID int64, returnDate time.Time) error

	// Stats returns circulation-level aggregate counts.
	Stats(ctx context.Context, now time.Time) (*domain.LoanStats, error)
}

// =============================================================================
// Reservation Repository
// =============================================================================

// ReservationRepository defines the interface for reservation data access.
type ReservationRepository interface {
	// Create creates a new reservation.
	Create(ctx context.Context, res *domain.Reservation) error

	// GetByID retrieves a reservation by ID.
	GetByID(ctx context.Context, id int64) (*domain.Reservation, error)

	// ListActiveByBook returns the active reservations for a book in
	// fulfillment order: reservation date ascending, then ID ascending.
	ListActiveByBook(ctx context.Context, bookID int64) ([]*domain.Reservation, error)

	// ListByUser returns all reservations for a user, newest first.
	ListByUser(ctx context.Context, userID int64) ([]*domain.Reservation, error)

	// HasActiveForUserAndBook checks whether the user already holds an
	// active reservation for the book.
	HasActiveForUserAndBook(ctx context.Context, userID, bookID int64) (bool, error)

	// Finish conditionally moves a reservation out of the active state.
	// The transition only applies while the row is still active, so a
	// cancel, an expiry sweep, and a fulfillment racing on the same
	// reservation resolve to whichever write commits first; the losers
	// get ErrStaleReservation. Terminal states never reactivate.
	Finish(ctx context.Context, id int64, status domain.ReservationStatus, notified bool) error

	// ExpireBefore flips every active reservation whose expiry date is
	// before now to the expired state, returning how many were flipped.
	// Safe to call from any number of concurrent sweepers.
	ExpireBefore(ctx context.Context, now time.Time) (int64, error)

	// Stats returns reservation-level aggregate counts.
	Stats(ctx context.Context) (*domain.ReservationStats, error)
}

// =============================================================================
// Common Types
// =============================================================================

// ListOptions contains common pagination options.
type ListOptions struct {
	// Offset is the number of records to skip.
	Offset int

	// Limit is the maximum number of records to return.
	Limit int
}

// ListResult is a generic paginated list result.
type ListResult[T any] struct {
	// Items is the list of items.
	Items []*T

	// Total is the total number of items (without pagination).
	Total int64

	// Offset is the current offset.
	Offset int

	// Limit is the current limit.
	Limit int
}
