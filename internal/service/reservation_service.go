package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/pergamon-io/pergamon/internal/domain"
	"github.com/pergamon-io/pergamon/internal/metrics"
	"github.com/pergamon-io/pergamon/internal/repository"
)

// ReservationService handles the reservation lifecycle and fulfillment.
type ReservationService struct {
	resRepo  repository.ReservationRepository
	bookRepo repository.BookRepository
	userRepo repository.UserRepository

	loans *LoanService

	hold     time.Duration
	notifier Notifier
	metrics  metrics.Recorder
	logger   zerolog.Logger

	now func() time.Time
}

// NewReservationService creates a new ReservationService.
func NewReservationService(
	resRepo repository.ReservationRepository,
	bookRepo repository.BookRepository,
	userRepo repository.UserRepository,
	loans *LoanService,
	hold time.Duration,
	notifier Notifier,
	recorder metrics.Recorder,
	logger zerolog.Logger,
) *ReservationService {
	return &ReservationService{
		resRepo:  resRepo,
		bookRepo: bookRepo,
		userRepo: userRepo,
		loans:    loans,
		hold:     hold,
		notifier: notifier,
		metrics:  recorder,
		logger:   logger.With().Str("service", "reservation").Logger(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// =============================================================================
// Input/Output Structs
// =============================================================================

// CreateReservationInput contains the data needed to place a hold.
type CreateReservationInput struct {
	UserID int64
	BookID int64
}

// CreateReservationOutput contains the result of placing a hold.
type CreateReservationOutput struct {
	Reservation *domain.Reservation
}

// =============================================================================
// Service Methods
// =============================================================================

// Create places a hold on a book. Holds only make sense on books that are
// out: an available book is simply borrowed.
func (s *ReservationService) Create(ctx context.Context, input CreateReservationInput) (*CreateReservationOutput, error) {
	user, err := s.userRepo.GetByID(ctx, input.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrUserNotFound
		}
		s.logger.Error().Err(err).Int64("user_id", input.UserID).Msg("failed to get user")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	if !user.IsActive() {
		return nil, domain.ErrUserInactive
	}

	book, err := s.bookRepo.GetByID(ctx, input.BookID)
	if err != nil {
		if errors.Is(err, domain.ErrBookNotFound) {
			return nil, domain.ErrBookNotFound
		}
		s.logger.Error().Err(err).Int64("book_id", input.BookID).Msg("failed to get book")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	if book.Available {
		return nil, domain.ErrBookAvailable
	}

	exists, err := s.resRepo.HasActiveForUserAndBook(ctx, input.UserID, input.BookID)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to check active reservation")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	if exists {
		return nil, domain.ErrDuplicateReservation
	}

	res := domain.NewReservation(input.UserID, input.BookID, s.now(), s.hold)

	if err := s.resRepo.Create(ctx, res); err != nil {
		if errors.Is(err, domain.ErrDuplicateReservation) {
			return nil, domain.ErrDuplicateReservation
		}
		s.logger.Error().Err(err).
			Int64("user_id", input.UserID).
			Int64("book_id", input.BookID).
			Msg("failed to create reservation")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	s.metrics.RecordReservationCreated()
	s.logger.Info().
		Int64("reservation_id", res.ID).
		Int64("user_id", input.UserID).
		Int64("book_id", input.BookID).
		Time("expiry_date", res.ExpiryDate).
		Msg("reservation created")

	return &CreateReservationOutput{Reservation: res}, nil
}

// Cancel withdraws an active hold. Only the active state can be
// cancelled; terminal reservations stay as they are.
func (s *ReservationService) Cancel(ctx context.Context, reservationID int64) error {
	res, err := s.resRepo.GetByID(ctx, reservationID)
	if err != nil {
		if errors.Is(err, domain.ErrReservationNotFound) {
			return domain.ErrReservationNotFound
		}
		s.logger.Error().Err(err).Int64("reservation_id", reservationID).Msg("failed to get reservation")
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	err = s.resRepo.Finish(ctx, reservationID, domain.ReservationCancelled, res.Notified)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrStaleReservation):
			return domain.ErrReservationInactive
		case errors.Is(err, domain.ErrReservationNotFound):
			return domain.ErrReservationNotFound
		}
		s.logger.Error().Err(err).Int64("reservation_id", reservationID).Msg("failed to cancel reservation")
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	s.metrics.RecordReservationFinished("cancelled")
	s.logger.Info().Int64("reservation_id", reservationID).Msg("reservation cancelled")
	return nil
}

// GetReservation retrieves a reservation by ID.
func (s *ReservationService) GetReservation(ctx context.Context, reservationID int64) (*domain.Reservation, error) {
	res, err := s.resRepo.GetByID(ctx, reservationID)
	if err != nil {
		if errors.Is(err, domain.ErrReservationNotFound) {
			return nil, domain.ErrReservationNotFound
		}
		s.logger.Error().Err(err).Int64("reservation_id", reservationID).Msg("failed to get reservation")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	return res, nil
}

// ListByUser returns all reservations for a user, newest first.
func (s *ReservationService) ListByUser(ctx context.Context, userID int64) ([]*domain.Reservation, error) {
	reservations, err := s.resRepo.ListByUser(ctx, userID)
	if err != nil {
		s.logger.Error().Err(err).Int64("user_id", userID).Msg("failed to list reservations by user")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	return reservations, nil
}

// ListActiveByBook returns the active holds on a book in queue order.
func (s *ReservationService) ListActiveByBook(ctx context.Context, bookID int64) ([]*domain.Reservation, error) {
	reservations, err := s.resRepo.ListActiveByBook(ctx, bookID)
	if err != nil {
		s.logger.Error().Err(err).Int64("book_id", bookID).Msg("failed to list active reservations")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	return reservations, nil
}

// ReservationStats returns reservation-level aggregate counts.
func (s *ReservationService) ReservationStats(ctx context.Context) (*domain.ReservationStats, error) {
	stats, err := s.resRepo.Stats(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to get reservation stats")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	return stats, nil
}

// OnBookReturned walks the book's hold queue in FIFO order and converts
// the first eligible hold into a loan on the requester's behalf. Lapsed
// holds are skipped (the sweep retires them); requesters the loan cannot
// be granted to are skipped as well. Losing the book to a concurrent
// walk-in borrower ends the walk.
//
// Runs after the return has fully committed, so a failure here never
// undoes the return itself.
func (s *ReservationService) OnBookReturned(ctx context.Context, bookID int64) {
	queue, err := s.resRepo.ListActiveByBook(ctx, bookID)
	if err != nil {
		s.logger.Error().Err(err).Int64("book_id", bookID).Msg("failed to list hold queue")
		return
	}

	now := s.now()
	for _, res := range queue {
		if res.Expired(now) {
			continue
		}

		out, err := s.loans.Grant(ctx, GrantLoanInput{UserID: res.UserID, BookID: bookID})
		if err != nil {
			if errors.Is(err, domain.ErrBookUnavailable) {
				// A walk-in borrower beat the queue to the flag.
				return
			}
			s.logger.Warn().Err(err).
				Int64("reservation_id", res.ID).
				Int64("user_id", res.UserID).
				Msg("skipping unfulfillable reservation")
			continue
		}

		// The loan stands even if the reservation was concurrently
		// cancelled or swept; last writer wins on the status.
		if err := s.resRepo.Finish(ctx, res.ID, domain.ReservationFulfilled, true); err != nil &&
			!errors.Is(err, repository.ErrStaleReservation) {
			s.logger.Error().Err(err).Int64("reservation_id", res.ID).Msg("failed to mark reservation fulfilled")
		}

		s.metrics.RecordReservationFinished("fulfilled")
		s.logger.Info().
			Int64("reservation_id", res.ID).
			Int64("loan_id", out.Loan.ID).
			Int64("user_id", res.UserID).
			Int64("book_id", bookID).
			Msg("reservation fulfilled")

		s.notify(ctx, res, bookID)
		return
	}
}

// ExpireSweep retires every lapsed active hold. Idempotent; safe to run
// from any number of instances concurrently.
func (s *ReservationService) ExpireSweep(ctx context.Context, now time.Time) (int64, error) {
	expired, err := s.resRepo.ExpireBefore(ctx, now)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to expire reservations")
		return 0, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	for i := int64(0); i < expired; i++ {
		s.metrics.RecordReservationFinished("expired")
	}
	if expired > 0 {
		s.logger.Info().Int64("expired", expired).Msg("expired lapsed reservations")
	}

	return expired, nil
}

// notify looks up the parties and fires the availability notification.
func (s *ReservationService) notify(ctx context.Context, res *domain.Reservation, bookID int64) {
	if s.notifier == nil {
		return
	}

	user, err := s.userRepo.GetByID(ctx, res.UserID)
	if err != nil {
		s.logger.Error().Err(err).Int64("user_id", res.UserID).Msg("failed to resolve user for notification")
		return
	}
	book, err := s.bookRepo.GetByID(ctx, bookID)
	if err != nil {
		s.logger.Error().Err(err).Int64("book_id", bookID).Msg("failed to resolve book for notification")
		return
	}

	s.notifier.NotifyBookAvailable(ctx, user, book, res)
}

// Ensure ReservationService can hook into the loan return path.
var _ ReturnListener = (*ReservationService)(nil)
