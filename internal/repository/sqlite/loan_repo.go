package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pergamon-io/pergamon/internal/domain"
	"github.com/pergamon-io/pergamon/internal/repository"
)

// loanRepository implements repository.LoanRepository for SQLite.
type loanRepository struct {
	db *DB
}

// NewLoanRepository creates a new SQLite loan repository.
func NewLoanRepository(db *DB) repository.LoanRepository {
	return &loanRepository{db: db}
}

const loanColumns = `id, user_id, book_id, loan_date, due_date, return_date, returned, renewed, renewal_count, created_at, updated_at`

// scanLoan scans one loan row from any row scanner.
func scanLoan(scan func(dest ...interface{}) error) (*domain.Loan, error) {
	loan := &domain.Loan{}
	var returned, renewed int
	var loanDate, dueDate, createdAt, updatedAt string
	var returnDate sql.NullString

	err := scan(
		&loan.ID,
		&loan.UserID,
		&loan.BookID,
		&loanDate,
		&dueDate,
		&returnDate,
		&returned,
		&renewed,
		&loan.RenewalCount,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	loan.LoanDate = parseTime(loanDate)
	loan.DueDate = parseTime(dueDate)
	if returnDate.Valid {
		t := parseTime(returnDate.String)
		loan.ReturnDate = &t
	}
	loan.Returned = returned != 0
	loan.Renewed = renewed != 0
	loan.CreatedAt = parseTime(createdAt)
	loan.UpdatedAt = parseTime(updatedAt)
	return loan, nil
}

// Create creates a new loan. The partial unique index on open loans makes
// a second open loan for the same book fail as a unique violation, which
// surfaces as the book being unavailable.
func (r *loanRepository) Create(ctx context.Context, loan *domain.Loan) error {
	query := `
		INSERT INTO loans (user_id, book_id, loan_date, due_date, returned, renewed, renewal_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		loan.UserID,
		loan.BookID,
		formatTime(loan.LoanDate),
		formatTime(loan.DueDate),
		boolToInt(loan.Returned),
		boolToInt(loan.Renewed),
		loan.RenewalCount,
		formatTime(loan.CreatedAt),
		formatTime(loan.UpdatedAt),
	)

	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrBookUnavailable
		}
		return fmt.Errorf("failed to create loan: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert ID: %w", err)
	}
	loan.ID = id

	return nil
}

// GetByID retrieves a loan by ID.
func (r *loanRepository) GetByID(ctx context.Context, id int64) (*domain.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans WHERE id = ?`

	loan, err := scanLoan(r.db.QueryRowContext(ctx, query, id).Scan)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrLoanNotFound
		}
		return nil, fmt.Errorf("failed to get loan by ID: %w", err)
	}
	return loan, nil
}

// GetOpenByBook retrieves the open loan for a book, if any.
func (r *loanRepository) GetOpenByBook(ctx context.Context, bookID int64) (*domain.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans WHERE book_id = ? AND returned = 0`

	loan, err := scanLoan(r.db.QueryRowContext(ctx, query, bookID).Scan)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrLoanNotFound
		}
		return nil, fmt.Errorf("failed to get open loan by book: %w", err)
	}
	return loan, nil
}

// ListByUser returns all loans for a user, newest first.
func (r *loanRepository) ListByUser(ctx context.Context, userID int64) ([]*domain.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans WHERE user_id = ? ORDER BY loan_date DESC, id DESC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list loans by user: %w", err)
	}
	defer rows.Close()

	return collectLoans(rows)
}

// ListOpen returns all open loans.
func (r *loanRepository) ListOpen(ctx context.Context) ([]*domain.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans WHERE returned = 0 ORDER BY due_date, id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list open loans: %w", err)
	}
	defer rows.Close()

	return collectLoans(rows)
}

// ListOverdue returns open loans whose due date is before now.
// Due dates are stored as RFC 3339 UTC strings, so lexicographic
// comparison matches chronological order.
func (r *loanRepository) ListOverdue(ctx context.Context, now time.Time) ([]*domain.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans WHERE returned = 0 AND due_date < ? ORDER BY due_date, id`

	rows, err := r.db.QueryContext(ctx, query, formatTime(now))
	if err != nil {
		return nil, fmt.Errorf("failed to list overdue loans: %w", err)
	}
	defer rows.Close()

	return collectLoans(rows)
}

// Renew conditionally applies one renewal. The renewal-count guard in the
// WHERE clause makes a concurrent double-renew or renew-after-return lose
// with zero rows affected.
func (r *loanRepository) Renew(ctx context.Context, loanID int64, newDueDate time.Time, expectedCount int) error {
	query := `
		UPDATE loans
		SET due_date = ?, renewed = 1, renewal_count = renewal_count + 1, updated_at = ?
		WHERE id = ? AND returned = 0 AND renewal_count = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		formatTime(newDueDate),
		formatTime(time.Now()),
		loanID,
		expectedCount,
	)
	if err != nil {
		return fmt.Errorf("failed to renew loan: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return repository.ErrStaleLoan
	}

	return nil
}

// MarkReturned conditionally closes the loan.
func (r *loanRepository) MarkReturned(ctx context.Context, loanID int64, returnDate time.Time) error {
	query := `
		UPDATE loans
		SET returned = 1, return_date = ?, updated_at = ?
		WHERE id = ? AND returned = 0
	`

	result, err := r.db.ExecContext(ctx, query,
		formatTime(returnDate),
		formatTime(time.Now()),
		loanID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark loan returned: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		var count int
		if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM loans WHERE id = ?`, loanID).Scan(&count); err != nil {
			return fmt.Errorf("failed to check loan existence: %w", err)
		}
		if count == 0 {
			return domain.ErrLoanNotFound
		}
		return repository.ErrStaleLoan
	}

	return nil
}

// Stats returns circulation-level aggregate counts.
func (r *loanRepository) Stats(ctx context.Context, now time.Time) (*domain.LoanStats, error) {
	stats := &domain.LoanStats{}

	err := r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN returned = 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN returned = 0 AND due_date < ? THEN 1 ELSE 0 END), 0)
		FROM loans
	`, formatTime(now)).Scan(&stats.TotalLoans, &stats.ActiveLoans, &stats.OverdueLoans)
	if err != nil {
		return nil, fmt.Errorf("failed to count loans: %w", err)
	}

	return stats, nil
}

// collectLoans drains a loan result set.
func collectLoans(rows *sql.Rows) ([]*domain.Loan, error) {
	var loans []*domain.Loan
	for rows.Next() {
		loan, err := scanLoan(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan loan: %w", err)
		}
		loans = append(loans, loan)
	}
	return loans, rows.Err()
}

// Ensure loanRepository implements repository.LoanRepository.
var _ repository.LoanRepository = (*loanRepository)(nil)
