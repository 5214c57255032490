package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pergamon-io/pergamon/internal/domain"
	"github.com/pergamon-io/pergamon/internal/repository"
)

// reservationRepository implements repository.ReservationRepository for SQLite.
type reservationRepository struct {
	db *DB
}

// NewReservationRepository creates a new SQLite reservation repository.
func NewReservationRepository(db *DB) repository.ReservationRepository {
	return &reservationRepository{db: db}
}

const reservationColumns = `id, user_id, book_id, reservation_date, expiry_date, status, notified, created_at, updated_at`

// scanReservation scans one reservation row from any row scanner.
func scanReservation(scan func(dest ...interface{}) error) (*domain.Reservation, error) {
	res := &domain.Reservation{}
	var notified int
	var reservationDate, expiryDate, createdAt, updatedAt string

	err := scan(
		&res.ID,
		&res.UserID,
		&res.BookID,
		&reservationDate,
		&expiryDate,
		&res.Status,
		&notified,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	res.ReservationDate = parseTime(reservationDate)
	res.ExpiryDate = parseTime(expiryDate)
	res.Notified = notified != 0
	res.CreatedAt = parseTime(createdAt)
	res.UpdatedAt = parseTime(updatedAt)
	return res, nil
}

// Create creates a new reservation. The partial unique index on active
// reservations rejects a second active hold by the same user on the same
// book.
func (r *reservationRepository) Create(ctx context.Context, res *domain.Reservation) error {
	query := `
		INSERT INTO reservations (user_id, book_id, reservation_date, expiry_date, status, notified, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		res.UserID,
		res.BookID,
		formatTime(res.ReservationDate),
		formatTime(res.ExpiryDate),
		string(res.Status),
		boolToInt(res.Notified),
		formatTime(res.CreatedAt),
		formatTime(res.UpdatedAt),
	)

	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateReservation
		}
		return fmt.Errorf("failed to create reservation: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert ID: %w", err)
	}
	res.ID = id

	return nil
}

// GetByID retrieves a reservation by ID.
func (r *reservationRepository) GetByID(ctx context.Context, id int64) (*domain.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = ?`

	res, err := scanReservation(r.db.QueryRowContext(ctx, query, id).Scan)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrReservationNotFound
		}
		return nil, fmt.Errorf("failed to get reservation by ID: %w", err)
	}
	return res, nil
}

// ListActiveByBook returns active reservations for a book in fulfillment
// order: oldest hold first, ties broken by lowest ID.
func (r *reservationRepository) ListActiveByBook(ctx context.Context, bookID int64) ([]*domain.Reservation, error) {
	query := `
		SELECT ` + reservationColumns + `
		FROM reservations
		WHERE book_id = ? AND status = ?
		ORDER BY reservation_date, id
	`

	rows, err := r.db.QueryContext(ctx, query, bookID, string(domain.ReservationActive))
	if err != nil {
		return nil, fmt.Errorf("failed to list active reservations by book: %w", err)
	}
	defer rows.Close()

	return collectReservations(rows)
}

// ListByUser returns all reservations for a user, newest first.
func (r *reservationRepository) ListByUser(ctx context.Context, userID int64) ([]*domain.Reservation, error) {
	query := `
		SELECT ` + reservationColumns + `
		FROM reservations
		WHERE user_id = ?
		ORDER BY reservation_date DESC, id DESC
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reservations by user: %w", err)
	}
	defer rows.Close()

	return collectReservations(rows)
}

// HasActiveForUserAndBook checks for an existing active hold.
func (r *reservationRepository) HasActiveForUserAndBook(ctx context.Context, userID, bookID int64) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM reservations WHERE user_id = ? AND book_id = ? AND status = ?
	`, userID, bookID, string(domain.ReservationActive)).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check active reservation: %w", err)
	}
	return count > 0, nil
}

// Finish conditionally moves a reservation out of the active state. The
// status guard makes racing writers (cancel, sweep, fulfillment) resolve
// to whichever commits first.
func (r *reservationRepository) Finish(ctx context.Context, id int64, status domain.ReservationStatus, notified bool) error {
	query := `
		UPDATE reservations
		SET status = ?, notified = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		string(status),
		boolToInt(notified),
		formatTime(time.Now()),
		id,
		string(domain.ReservationActive),
	)
	if err != nil {
		return fmt.Errorf("failed to finish reservation: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		var count int
		if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reservations WHERE id = ?`, id).Scan(&count); err != nil {
			return fmt.Errorf("failed to check reservation existence: %w", err)
		}
		if count == 0 {
			return domain.ErrReservationNotFound
		}
		return repository.ErrStaleReservation
	}

	return nil
}

// ExpireBefore flips lapsed active reservations to the expired state.
func (r *reservationRepository) ExpireBefore(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE reservations
		SET status = ?, updated_at = ?
		WHERE status = ? AND expiry_date < ?
	`

	result, err := r.db.ExecContext(ctx, query,
		string(domain.ReservationExpired),
		formatTime(now),
		string(domain.ReservationActive),
		formatTime(now),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to expire reservations: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected, nil
}

// Stats returns reservation-level aggregate counts.
func (r *reservationRepository) Stats(ctx context.Context) (*domain.ReservationStats, error) {
	stats := &domain.ReservationStats{}

	err := r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0)
		FROM reservations
	`, string(domain.ReservationActive)).Scan(&stats.TotalReservations, &stats.ActiveReservations)
	if err != nil {
		return nil, fmt.Errorf("failed to count reservations: %w", err)
	}

	return stats, nil
}

// collectReservations drains a reservation result set.
func collectReservations(rows *sql.Rows) ([]*domain.Reservation, error) {
	var reservations []*domain.Reservation
	for rows.Next() {
		res, err := scanReservation(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reservation: %w", err)
		}
		reservations = append(reservations, res)
	}
	return reservations, rows.Err()
}

// Ensure reservationRepository implements repository.ReservationRepository.
var _ repository.ReservationRepository = (*reservationRepository)(nil)
