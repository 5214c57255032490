package domain

import (
	"time"
)

// MaxRenewals is the hard cap on loan renewals.
const MaxRenewals = 2

// Loan represents one lending of a book to a user.
// A loan is Open until returned; Closed is terminal. Loans are never
// physically deleted, they form the audit trail of the catalog.
type Loan struct {
	// ID is the unique identifier for the loan (auto-generated).
	ID int64 `json:"id"`

	// UserID references the borrower. Non-owning; the user outlives the loan.
	UserID int64 `json:"user_id"`

	// BookID references the borrowed book.
	BookID int64 `json:"book_id"`

	// LoanDate is when the loan was granted.
	LoanDate time.Time `json:"loan_date"`

	// DueDate is when the book must be returned. Always >= LoanDate.
	// Frozen once the loan is returned.
	DueDate time.Time `json:"due_date"`

	// ReturnDate is set when the book is returned, nil while open.
	ReturnDate *time.Time `json:"return_date,omitempty"`

	// Returned is true once the loan is closed. Closed is terminal.
	Returned bool `json:"returned"`

	// Renewed is true once the loan has been renewed at least once.
	Renewed bool `json:"renewed"`

	// RenewalCount is the number of renewals applied, 0..MaxRenewals.
	RenewalCount int `json:"renewal_count"`

	// CreatedAt is the timestamp when the loan row was created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is the timestamp when the loan was last updated.
	UpdatedAt time.Time `json:"updated_at"`
}

// NewLoan creates a new open Loan for the given borrower and book.
func NewLoan(userID, bookID int64, loanDate, dueDate time.Time) *Loan {
	now := time.Now().UTC()
	return &Loan{
		UserID:    userID,
		BookID:    bookID,
		LoanDate:  loanDate,
		DueDate:   dueDate,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsOverdue reports whether the loan is open and past its due date at the
// given instant. Reporting only; it does not block renewal or return.
func (l *Loan) IsOverdue(now time.Time) bool {
	return !l.Returned && now.After(l.DueDate)
}

// CanRenew reports whether the loan is open and under the renewal cap.
func (l *Loan) CanRenew() bool {
	return !l.Returned && l.RenewalCount < MaxRenewals
}

// LoanStats holds circulation-level aggregate counts.
type LoanStats struct {
	// TotalLoans is the number of loans ever granted.
	TotalLoans int64 `json:"total_loans"`

	// ActiveLoans is the number of currently-open loans.
	ActiveLoans int64 `json:"active_loans"`

	// OverdueLoans is the number of open loans past their due date.
	OverdueLoans int64 `json:"overdue_loans"`
}
