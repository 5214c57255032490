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

// ReturnListener is notified after a book has come back and its
// availability flag is set. The reservation service implements it to run
// fulfillment.
type ReturnListener interface {
	OnBookReturned(ctx context.Context, bookID int64)
}

// LoanService handles the loan lifecycle.
//
// The availability flag and the loan table are kept consistent without
// cross-entity transactions: Grant claims the flag first through the
// MarkLoaned compare-and-set and compensates by releasing it when the
// loan row cannot be written, so of N concurrent grants on one book
// exactly one wins.
type LoanService struct {
	loanRepo repository.LoanRepository
	bookRepo repository.BookRepository
	userRepo repository.UserRepository

	loanPeriod time.Duration
	extension  time.Duration

	listener ReturnListener
	metrics  metrics.Recorder
	logger   zerolog.Logger

	now func() time.Time
}

// NewLoanService creates a new LoanService.
func NewLoanService(
	loanRepo repository.LoanRepository,
	bookRepo repository.BookRepository,
	userRepo repository.UserRepository,
	loanPeriod time.Duration,
	extension time.Duration,
	recorder metrics.Recorder,
	logger zerolog.Logger,
) *LoanService {
	return &LoanService{
		loanRepo:   loanRepo,
		bookRepo:   bookRepo,
		userRepo:   userRepo,
		loanPeriod: loanPeriod,
		extension:  extension,
		metrics:    recorder,
		logger:     logger.With().Str("service", "loan").Logger(),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// SetReturnListener installs the post-return hook. Called once at wiring
// time; breaks the construction cycle with the reservation service.
func (s *LoanService) SetReturnListener(l ReturnListener) {
	s.listener = l
}

// =============================================================================
// Input/Output Structs
// =============================================================================

// GrantLoanInput contains the data needed to grant a loan.
type GrantLoanInput struct {
	UserID int64
	BookID int64
}

// GrantLoanOutput contains the result of granting a loan.
type GrantLoanOutput struct {
	Loan *domain.Loan
}

// RenewLoanOutput contains the result of renewing a loan.
type RenewLoanOutput struct {
	Loan *domain.Loan
}

// ReturnLoanOutput contains the result of returning a loan.
type ReturnLoanOutput struct {
	Loan *domain.Loan
}

// =============================================================================
// Service Methods
// =============================================================================

// Grant lends a book to a user. The flag claim goes first; a loan row is
// only written once this caller owns the flag, and the claim is released
// if that write fails.
func (s *LoanService) Grant(ctx context.Context, input GrantLoanInput) (*GrantLoanOutput, error) {
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

	if _, err := s.bookRepo.GetByID(ctx, input.BookID); err != nil {
		if errors.Is(err, domain.ErrBookNotFound) {
			return nil, domain.ErrBookNotFound
		}
		s.logger.Error().Err(err).Int64("book_id", input.BookID).Msg("failed to get book")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	if err := s.bookRepo.MarkLoaned(ctx, input.BookID); err != nil {
		switch {
		case errors.Is(err, domain.ErrBookUnavailable):
			return nil, domain.ErrBookUnavailable
		case errors.Is(err, domain.ErrBookNotFound):
			return nil, domain.ErrBookNotFound
		}
		s.logger.Error().Err(err).Int64("book_id", input.BookID).Msg("failed to claim book")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	now := s.now()
	loan := domain.NewLoan(input.UserID, input.BookID, now, now.Add(s.loanPeriod))

	if err := s.loanRepo.Create(ctx, loan); err != nil {
		// Compensating release: this caller owns the flag but could not
		// record the loan, so the book must become lendable again.
		if relErr := s.bookRepo.MarkAvailable(ctx, input.BookID); relErr != nil {
			s.logger.Error().Err(relErr).Int64("book_id", input.BookID).Msg("failed to release book after loan create failure")
		}
		s.logger.Error().Err(err).
			Int64("user_id", input.UserID).
			Int64("book_id", input.BookID).
			Msg("failed to create loan")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	s.metrics.RecordLoanGranted()
	s.logger.Info().
		Int64("loan_id", loan.ID).
		Int64("user_id", input.UserID).
		Int64("book_id", input.BookID).
		Time("due_date", loan.DueDate).
		Msg("loan granted")

	return &GrantLoanOutput{Loan: loan}, nil
}

// Renew extends a loan's due date from the renewal time, not from the
// previous due date. At most domain.MaxRenewals renewals; overdue loans
// may still renew.
func (s *LoanService) Renew(ctx context.Context, loanID int64) (*RenewLoanOutput, error) {
	loan, err := s.loanRepo.GetByID(ctx, loanID)
	if err != nil {
		if errors.Is(err, domain.ErrLoanNotFound) {
			return nil, domain.ErrLoanNotFound
		}
		s.logger.Error().Err(err).Int64("loan_id", loanID).Msg("failed to get loan")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	if loan.Returned {
		return nil, domain.ErrLoanAlreadyReturned
	}
	if !loan.CanRenew() {
		return nil, domain.ErrRenewalLimitReached
	}

	newDueDate := s.now().Add(s.extension)

	err = s.loanRepo.Renew(ctx, loanID, newDueDate, loan.RenewalCount)
	if err != nil {
		if errors.Is(err, repository.ErrStaleLoan) {
			// Lost a race with a return or another renewal. Re-read to
			// report the right reason.
			fresh, readErr := s.loanRepo.GetByID(ctx, loanID)
			if readErr != nil {
				s.logger.Error().Err(readErr).Int64("loan_id", loanID).Msg("failed to re-read loan after stale renew")
				return nil, fmt.Errorf("%w: %v", ErrInternalError, readErr)
			}
			if fresh.Returned {
				return nil, domain.ErrLoanAlreadyReturned
			}
			return nil, domain.ErrRenewalLimitReached
		}
		s.logger.Error().Err(err).Int64("loan_id", loanID).Msg("failed to renew loan")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	loan.DueDate = newDueDate
	loan.Renewed = true
	loan.RenewalCount++

	s.metrics.RecordLoanRenewed()
	s.logger.Info().
		Int64("loan_id", loanID).
		Int("renewal_count", loan.RenewalCount).
		Time("due_date", newDueDate).
		Msg("loan renewed")

	return &RenewLoanOutput{Loan: loan}, nil
}

// Return closes a loan and releases the book. Ordering matters: the loan
// closes first, then the flag flips, then reservations get a chance to
// re-claim it. A second return of the same loan fails without touching
// the flag.
func (s *LoanService) Return(ctx context.Context, loanID int64) (*ReturnLoanOutput, error) {
	loan, err := s.loanRepo.GetByID(ctx, loanID)
	if err != nil {
		if errors.Is(err, domain.ErrLoanNotFound) {
			return nil, domain.ErrLoanNotFound
		}
		s.logger.Error().Err(err).Int64("loan_id", loanID).Msg("failed to get loan")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	returnDate := s.now()

	err = s.loanRepo.MarkReturned(ctx, loanID, returnDate)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrStaleLoan):
			return nil, domain.ErrLoanAlreadyReturned
		case errors.Is(err, domain.ErrLoanNotFound):
			return nil, domain.ErrLoanNotFound
		}
		s.logger.Error().Err(err).Int64("loan_id", loanID).Msg("failed to mark loan returned")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	if err := s.bookRepo.MarkAvailable(ctx, loan.BookID); err != nil {
		s.logger.Error().Err(err).Int64("book_id", loan.BookID).Msg("failed to mark book available after return")
	}

	loan.Returned = true
	loan.ReturnDate = &returnDate

	s.metrics.RecordLoanReturned()
	s.logger.Info().
		Int64("loan_id", loanID).
		Int64("book_id", loan.BookID).
		Msg("loan returned")

	if s.listener != nil {
		s.listener.OnBookReturned(ctx, loan.BookID)
	}

	return &ReturnLoanOutput{Loan: loan}, nil
}

// GetLoan retrieves a loan by ID.
func (s *LoanService) GetLoan(ctx context.Context, loanID int64) (*domain.Loan, error) {
	loan, err := s.loanRepo.GetByID(ctx, loanID)
	if err != nil {
		if errors.Is(err, domain.ErrLoanNotFound) {
			return nil, domain.ErrLoanNotFound
		}
		s.logger.Error().Err(err).Int64("loan_id", loanID).Msg("failed to get loan")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	return loan, nil
}

// ListByUser returns all loans for a user, newest first.
func (s *LoanService) ListByUser(ctx context.Context, userID int64) ([]*domain.Loan, error) {
	loans, err := s.loanRepo.ListByUser(ctx, userID)
	if err != nil {
		s.logger.Error().Err(err).Int64("user_id", userID).Msg("failed to list loans by user")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	return loans, nil
}

// ListOpen returns all open loans.
func (s *LoanService) ListOpen(ctx context.Context) ([]*domain.Loan, error) {
	loans, err := s.loanRepo.ListOpen(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list open loans")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	return loans, nil
}

// Overdue returns open loans past their due date.
func (s *LoanService) Overdue(ctx context.Context) ([]*domain.Loan, error) {
	loans, err := s.loanRepo.ListOverdue(ctx, s.now())
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list overdue loans")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	return loans, nil
}

// LoanStats returns circulation-level aggregate counts.
func (s *LoanService) LoanStats(ctx context.Context) (*domain.LoanStats, error) {
	stats, err := s.loanRepo.Stats(ctx, s.now())
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to get loan stats")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	return stats, nil
}
