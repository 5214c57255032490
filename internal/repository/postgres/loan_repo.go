package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pergamon-io/pergamon/internal/domain"
	"github.com/pergamon-io/pergamon/internal/repository"
)

// loanRepository implements repository.LoanRepository for PostgreSQL.
type loanRepository struct {
	db *DB
}

// NewLoanRepository creates a new PostgreSQL loan repository.
func NewLoanRepository(db *DB) repository.LoanRepository {
	return &loanRepository{db: db}
}

const loanColumns = `id, user_id, book_id, loan_date, due_date, return_date, returned, renewed, renewal_count, created_at, updated_at`

// scanLoan scans one loan row.
func scanLoan(row pgx.Row) (*domain.Loan, error) {
	loan := &domain.Loan{}
	err := row.Scan(
		&loan.ID,
		&loan.UserID,
		&loan.BookID,
		&loan.LoanDate,
		&loan.DueDate,
		&loan.ReturnDate,
		&loan.Returned,
		&loan.Renewed,
		&loan.RenewalCount,
		&loan.CreatedAt,
		&loan.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return loan, nil
}

// Create creates a new loan. The partial unique index on open loans makes
// a second open loan for the same book fail as a unique violation.
func (r *loanRepository) Create(ctx context.Context, loan *domain.Loan) error {
	query := `
		INSERT INTO loans (user_id, book_id, loan_date, due_date, returned, renewed, renewal_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`

	err := r.db.Pool.QueryRow(ctx, query,
		loan.UserID,
		loan.BookID,
		loan.LoanDate,
		loan.DueDate,
		loan.Returned,
		loan.Renewed,
		loan.RenewalCount,
		loan.CreatedAt,
		loan.UpdatedAt,
	).Scan(&loan.ID)

	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrBookUnavailable
		}
		return fmt.Errorf("failed to create loan: %w", err)
	}

	return nil
}

// GetByID retrieves a loan by ID.
func (r *loanRepository) GetByID(ctx context.Context, id int64) (*domain.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans WHERE id = $1`

	loan, err := scanLoan(r.db.Pool.QueryRow(ctx, query, id))
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
	query := `SELECT ` + loanColumns + ` FROM loans WHERE book_id = $1 AND NOT returned`

	loan, err := scanLoan(r.db.Pool.QueryRow(ctx, query, bookID))
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
	query := `SELECT ` + loanColumns + ` FROM loans WHERE user_id = $1 ORDER BY loan_date DESC, id DESC`

	rows, err := r.db.Pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list loans by user: %w", err)
	}
	defer rows.Close()

	return collectLoans(rows)
}

// ListOpen returns all open loans.
func (r *loanRepository) ListOpen(ctx context.Context) ([]*domain.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans WHERE NOT returned ORDER BY due_date, id`

	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list open loans: %w", err)
	}
	defer rows.Close()

	return collectLoans(rows)
}

// ListOverdue returns open loans whose due date is before now.
func (r *loanRepository) ListOverdue(ctx context.Context, now time.Time) ([]*domain.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans WHERE NOT returned AND due_date < $1 ORDER BY due_date, id`

	rows, err := r.db.Pool.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list overdue loans: %w", err)
	}
	defer rows.Close()

	return collectLoans(rows)
}

// Renew conditionally applies one renewal.
func (r *loanRepository) Renew(ctx context.Context, loanID int64, newDueDate time.Time, expectedCount int) error {
	query := `
		UPDATE loans
		SET due_date = $1, renewed = TRUE, renewal_count = renewal_count + 1, updated_at = $2
		WHERE id = $3 AND NOT returned AND renewal_count = $4
	`

	result, err := r.db.Pool.Exec(ctx, query, newDueDate, time.Now().UTC(), loanID, expectedCount)
	if err != nil {
		return fmt.Errorf("failed to renew loan: %w", err)
	}

	if result.RowsAffected() == 0 {
		return repository.ErrStaleLoan
	}

	return nil
}

// MarkReturned conditionally closes the loan.
func (r *loanRepository) MarkReturned(ctx context.Context, loanID int64, returnDate time.Time) error {
	query := `
		UPDATE loans
		SET returned = TRUE, return_date = $1, updated_at = $2
		WHERE id = $3 AND NOT returned
	`

	result, err := r.db.Pool.Exec(ctx, query, returnDate, time.Now().UTC(), loanID)
	if err != nil {
		return fmt.Errorf("failed to mark loan returned: %w", err)
	}

	if result.RowsAffected() == 0 {
		var count int
		if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM loans WHERE id = $1`, loanID).Scan(&count); err != nil {
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

	err := r.db.Pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE NOT returned),
			COUNT(*) FILTER (WHERE NOT returned AND due_date < $1)
		FROM loans
	`, now).Scan(&stats.TotalLoans, &stats.ActiveLoans, &stats.OverdueLoans)
	if err != nil {
		return nil, fmt.Errorf("failed to count loans: %w", err)
	}

	return stats, nil
}

// collectLoans drains a loan result set.
func collectLoans(rows pgx.Rows) ([]*domain.Loan, error) {
	var loans []*domain.Loan
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan loan: %w", err)
		}
		loans = append(loans, loan)
	}
	return loans, rows.Err()
}

// Ensure loanRepository implements repository.LoanRepository.
var _ repository.LoanRepository = (*loanRepository)(nil)
