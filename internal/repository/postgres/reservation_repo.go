package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pergamon-io/pergamon/internal/domain"
	"github.com/pergamon-io/pergamon/internal/repository"
)

// reservationRepository implements repository.ReservationRepository for PostgreSQL.
type reservationRepository struct {
	db *DB
}

// NewReservationRepository creates a new PostgreSQL reservation repository.
func NewReservationRepository(db *DB) repository.ReservationRepository {
	return &reservationRepository{db: db}
}

const reservationColumns = `id, user_id, book_id, reservation_date, expiry_date, status, notified, created_at, updated_at`

// scanReservation scans one reservation row.
func scanReservation(row pgx.Row) (*domain.Reservation, error) {
	res := &domain.Reservation{}
	err := row.Scan(
		&res.ID,
		&res.UserID,
		&res.BookID,
		&res.ReservationDate,
		&res.ExpiryDate,
		&res.Status,
		&res.Notified,
		&res.CreatedAt,
		&res.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Create creates a new reservation. The partial unique index on active
// reservations rejects a second active hold by the same user on the same
// book.
func (r *reservationRepository) Create(ctx context.Context, res *domain.Reservation) error {
	query := `
		INSERT INTO reservations (user_id, book_id, reservation_date, expiry_date, status, notified, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	err := r.db.Pool.QueryRow(ctx, query,
		res.UserID,
		res.BookID,
		res.ReservationDate,
		res.ExpiryDate,
		res.Status,
		res.Notified,
		res.CreatedAt,
		res.UpdatedAt,
	).Scan(&res.ID)

	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateReservation
		}
		return fmt.Errorf("failed to create reservation: %w", err)
	}

	return nil
}

// GetByID retrieves a reservation by ID.
func (r *reservationRepository) GetByID(ctx context.Context, id int64) (*domain.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = $1`

	res, err := scanReservation(r.db.Pool.QueryRow(ctx, query, id))
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
		WHERE book_id = $1 AND status = $2
		ORDER BY reservation_date, id
	`

	rows, err := r.db.Pool.Query(ctx, query, bookID, domain.ReservationActive)
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
		WHERE user_id = $1
		ORDER BY reservation_date DESC, id DESC
	`

	rows, err := r.db.Pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reservations by user: %w", err)
	}
	defer rows.Close()

	return collectReservations(rows)
}

// HasActiveForUserAndBook checks for an existing active hold.
func (r *reservationRepository) HasActiveForUserAndBook(ctx context.Context, userID, bookID int64) (bool, error) {
	var count int
	err := r.db.Pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM reservations WHERE user_id = $1 AND book_id = $2 AND status = $3
	`, userID, bookID, domain.ReservationActive).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check active reservation: %w", err)
	}
	return count > 0, nil
}

// Finish conditionally moves a reservation out of the active state.
func (r *reservationRepository) Finish(ctx context.Context, id int64, status domain.ReservationStatus, notified bool) error {
	query := `
		UPDATE reservations
		SET status = $1, notified = $2, updated_at = $3
		WHERE id = $4 AND status = $5
	`

	result, err := r.db.Pool.Exec(ctx, query,
		status,
		notified,
		time.Now().UTC(),
		id,
		domain.ReservationActive,
	)
	if err != nil {
		return fmt.Errorf("failed to finish reservation: %w", err)
	}

	if result.RowsAffected() == 0 {
		var count int
		if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM reservations WHERE id = $1`, id).Scan(&count); err != nil {
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
		SET status = $1, updated_at = $2
		WHERE status = $3 AND expiry_date < $2
	`

	result, err := r.db.Pool.Exec(ctx, query,
		domain.ReservationExpired,
		now,
		domain.ReservationActive,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to expire reservations: %w", err)
	}

	return result.RowsAffected(), nil
}

// Stats returns reservation-level aggregate counts.
func (r *reservationRepository) Stats(ctx context.Context) (*domain.ReservationStats, error) {
	stats := &domain.ReservationStats{}

	err := r.db.Pool.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE status = $1) FROM reservations
	`, domain.ReservationActive).Scan(&stats.TotalReservations, &stats.ActiveReservations)
	if err != nil {
		return nil, fmt.Errorf("failed to count reservations: %w", err)
	}

	return stats, nil
}

// collectReservations drains a reservation result set.
func collectReservations(rows pgx.Rows) ([]*domain.Reservation, error) {
	var reservations []*domain.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reservation: %w", err)
		}
		reservations = append(reservations, res)
	}
	return reservations, rows.Err()
}

// Ensure reservationRepository implements repository.ReservationRepository.
var _ repository.ReservationRepository = (*reservationRepository)(nil)
