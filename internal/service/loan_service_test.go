package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/pergamon-io/pergamon/internal/domain"
	"github.com/pergamon-io/pergamon/internal/metrics"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

const (
	testLoanPeriod = 14 * 24 * time.Hour
	testExtension  = 14 * 24 * time.Hour
)

// loanFixture bundles the mocks behind a LoanService under test.
type loanFixture struct {
	svc   *LoanService
	users *MockUserRepository
	books *MockBookRepository
	loans *MockLoanRepository
}

func newLoanFixture() *loanFixture {
	f := &loanFixture{
		users: NewMockUserRepository(),
		books: NewMockBookRepository(),
		loans: NewMockLoanRepository(),
	}
	f.svc = NewLoanService(f.loans, f.books, f.users, testLoanPeriod, testExtension, metrics.Noop{}, zerolog.Nop())
	f.svc.now = func() time.Time { return fixedNow }
	return f
}

func (f *loanFixture) activeUser() *domain.User {
	return f.users.Add(domain.NewUser("Reader", "reader@example.com", "hash", "", domain.RoleMember))
}

func (f *loanFixture) availableBook() *domain.Book {
	return f.books.Add(domain.NewBook("The Go Programming Language", "Donovan & Kernighan", "9780134190440", "Programming"))
}

func TestLoanService_Grant(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		f := newLoanFixture()
		user := f.activeUser()
		book := f.availableBook()

		out, err := f.svc.Grant(context.Background(), GrantLoanInput{UserID: user.ID, BookID: book.ID})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if out.Loan.UserID != user.ID || out.Loan.BookID != book.ID {
			t.Error("loan references wrong parties")
		}
		if !out.Loan.LoanDate.Equal(fixedNow) {
			t.Errorf("loan date = %v, want %v", out.Loan.LoanDate, fixedNow)
		}
		if want := fixedNow.Add(testLoanPeriod); !out.Loan.DueDate.Equal(want) {
			t.Errorf("due date = %v, want %v", out.Loan.DueDate, want)
		}

		got, _ := f.books.GetByID(context.Background(), book.ID)
		if got.Available {
			t.Error("granted book must be unavailable")
		}
	})

	t.Run("unknown user", func(t *testing.T) {
		f := newLoanFixture()
		book := f.availableBook()

		_, err := f.svc.Grant(context.Background(), GrantLoanInput{UserID: 99, BookID: book.ID})
		if !errors.Is(err, domain.ErrUserNotFound) {
			t.Errorf("expected ErrUserNotFound, got %v", err)
		}
	})

	t.Run("inactive user", func(t *testing.T) {
		f := newLoanFixture()
		user := f.activeUser()
		user.Status = domain.UserInactive
		book := f.availableBook()

		_, err := f.svc.Grant(context.Background(), GrantLoanInput{UserID: user.ID, BookID: book.ID})
		if !errors.Is(err, domain.ErrUserInactive) {
			t.Errorf("expected ErrUserInactive, got %v", err)
		}
	})

	t.Run("unknown book", func(t *testing.T) {
		f := newLoanFixture()
		user := f.activeUser()

		_, err := f.svc.Grant(context.Background(), GrantLoanInput{UserID: user.ID, BookID: 99})
		if !errors.Is(err, domain.ErrBookNotFound) {
			t.Errorf("expected ErrBookNotFound, got %v", err)
		}
	})

	t.Run("book already on loan", func(t *testing.T) {
		f := newLoanFixture()
		user := f.activeUser()
		book := f.availableBook()
		book.Available = false

		_, err := f.svc.Grant(context.Background(), GrantLoanInput{UserID: user.ID, BookID: book.ID})
		if !errors.Is(err, domain.ErrBookUnavailable) {
			t.Errorf("expected ErrBookUnavailable, got %v", err)
		}
	})

	t.Run("loan write failure releases the claim", func(t *testing.T) {
		f := newLoanFixture()
		user := f.activeUser()
		book := f.availableBook()
		f.loans.createErr = errors.New("disk full")

		_, err := f.svc.Grant(context.Background(), GrantLoanInput{UserID: user.ID, BookID: book.ID})
		if !errors.Is(err, ErrInternalError) {
			t.Errorf("expected ErrInternalError, got %v", err)
		}

		got, _ := f.books.GetByID(context.Background(), book.ID)
		if !got.Available {
			t.Error("claim must be released when the loan row cannot be written")
		}
	})
}

func TestLoanService_Grant_ConcurrentSingleWinner(t *testing.T) {
	f := newLoanFixture()
	book := f.availableBook()

	const borrowers = 16
	userIDs := make([]int64, borrowers)
	for i := range userIDs {
		u := f.users.Add(domain.NewUser("Reader", "reader@example.com", "hash", "", domain.RoleMember))
		userIDs[i] = u.ID
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var granted, unavailable, other int

	for _, userID := range userIDs {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			_, err := f.svc.Grant(context.Background(), GrantLoanInput{UserID: userID, BookID: book.ID})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				granted++
			case errors.Is(err, domain.ErrBookUnavailable):
				unavailable++
			default:
				other++
			}
		}(userID)
	}
	wg.Wait()

	if granted != 1 {
		t.Errorf("exactly one grant must win, got %d", granted)
	}
	if unavailable != borrowers-1 {
		t.Errorf("losers must see ErrBookUnavailable, got %d of %d", unavailable, borrowers-1)
	}
	if other != 0 {
		t.Errorf("unexpected errors: %d", other)
	}

	open, _ := f.loans.ListOpen(context.Background())
	if len(open) != 1 {
		t.Errorf("expected one open loan, got %d", len(open))
	}
}

func TestLoanService_Renew(t *testing.T) {
	t.Run("extends from renewal time", func(t *testing.T) {
		f := newLoanFixture()
		loan := f.loans.Add(domain.NewLoan(1, 1, fixedNow.Add(-10*24*time.Hour), fixedNow.Add(-time.Hour)))

		// Overdue loans may still renew.
		out, err := f.svc.Renew(context.Background(), loan.ID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if want := fixedNow.Add(testExtension); !out.Loan.DueDate.Equal(want) {
			t.Errorf("due date = %v, want %v (counted from renewal time)", out.Loan.DueDate, want)
		}
		if out.Loan.RenewalCount != 1 || !out.Loan.Renewed {
			t.Error("renewal must be recorded")
		}
	})

	t.Run("renewal cap", func(t *testing.T) {
		f := newLoanFixture()
		loan := domain.NewLoan(1, 1, fixedNow, fixedNow.Add(testLoanPeriod))
		loan.RenewalCount = domain.MaxRenewals
		f.loans.Add(loan)

		_, err := f.svc.Renew(context.Background(), loan.ID)
		if !errors.Is(err, domain.ErrRenewalLimitReached) {
			t.Errorf("expected ErrRenewalLimitReached, got %v", err)
		}
	})

	t.Run("already returned", func(t *testing.T) {
		f := newLoanFixture()
		loan := domain.NewLoan(1, 1, fixedNow, fixedNow.Add(testLoanPeriod))
		loan.Returned = true
		f.loans.Add(loan)

		_, err := f.svc.Renew(context.Background(), loan.ID)
		if !errors.Is(err, domain.ErrLoanAlreadyReturned) {
			t.Errorf("expected ErrLoanAlreadyReturned, got %v", err)
		}
	})

	t.Run("unknown loan", func(t *testing.T) {
		f := newLoanFixture()
		_, err := f.svc.Renew(context.Background(), 99)
		if !errors.Is(err, domain.ErrLoanNotFound) {
			t.Errorf("expected ErrLoanNotFound, got %v", err)
		}
	})

	t.Run("sequential renewals stop at the cap", func(t *testing.T) {
		f := newLoanFixture()
		loan := f.loans.Add(domain.NewLoan(1, 1, fixedNow, fixedNow.Add(testLoanPeriod)))

		for i := 0; i < domain.MaxRenewals; i++ {
			if _, err := f.svc.Renew(context.Background(), loan.ID); err != nil {
				t.Fatalf("renewal %d failed: %v", i+1, err)
			}
		}
		_, err := f.svc.Renew(context.Background(), loan.ID)
		if !errors.Is(err, domain.ErrRenewalLimitReached) {
			t.Errorf("expected ErrRenewalLimitReached after %d renewals, got %v", domain.MaxRenewals, err)
		}
	})

	t.Run("lost race with a return", func(t *testing.T) {
		f := newLoanFixture()
		loan := f.loans.Add(domain.NewLoan(1, 1, fixedNow, fixedNow.Add(testLoanPeriod)))

		// The loan closes between the service's read and its conditional
		// renew; the stale write must resolve to the return, not blow up.
		raced := &racingLoanRepo{MockLoanRepository: f.loans}
		raced.beforeRenew = func() {
			_ = f.loans.MarkReturned(context.Background(), loan.ID, fixedNow)
		}
		f.svc.loanRepo = raced

		_, err := f.svc.Renew(context.Background(), loan.ID)
		if !errors.Is(err, domain.ErrLoanAlreadyReturned) {
			t.Errorf("expected ErrLoanAlreadyReturned, got %v", err)
		}
	})
}

// racingLoanRepo injects a state change between the service's read and
// its conditional write.
type racingLoanRepo struct {
	*MockLoanRepository
	beforeRenew func()
}

func (r *racingLoanRepo) Renew(ctx context.Context, loanID int64, newDueDate time.Time, expectedCount int) error {
	if r.beforeRenew != nil {
		r.beforeRenew()
	}
	return r.MockLoanRepository.Renew(ctx, loanID, newDueDate, expectedCount)
}

// recordingListener captures return notifications.
type recordingListener struct {
	mu      sync.Mutex
	bookIDs []int64
}

func (l *recordingListener) OnBookReturned(ctx context.Context, bookID int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.bookIDs = append(l.bookIDs, bookID)
}

func TestLoanService_Return(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		f := newLoanFixture()
		book := f.availableBook()
		book.Available = false
		loan := f.loans.Add(domain.NewLoan(1, book.ID, fixedNow.Add(-24*time.Hour), fixedNow.Add(testLoanPeriod)))

		listener := &recordingListener{}
		f.svc.SetReturnListener(listener)

		out, err := f.svc.Return(context.Background(), loan.ID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if !out.Loan.Returned || out.Loan.ReturnDate == nil {
			t.Error("loan must be closed with a return date")
		}
		got, _ := f.books.GetByID(context.Background(), book.ID)
		if !got.Available {
			t.Error("returned book must be available")
		}
		if len(listener.bookIDs) != 1 || listener.bookIDs[0] != book.ID {
			t.Errorf("listener must fire once for the book, got %v", listener.bookIDs)
		}
	})

	t.Run("double return", func(t *testing.T) {
		f := newLoanFixture()
		book := f.availableBook()
		book.Available = false
		loan := f.loans.Add(domain.NewLoan(1, book.ID, fixedNow, fixedNow.Add(testLoanPeriod)))

		if _, err := f.svc.Return(context.Background(), loan.ID); err != nil {
			t.Fatalf("first return failed: %v", err)
		}
		releases := f.books.markAvailableCalls

		_, err := f.svc.Return(context.Background(), loan.ID)
		if !errors.Is(err, domain.ErrLoanAlreadyReturned) {
			t.Errorf("expected ErrLoanAlreadyReturned, got %v", err)
		}
		if f.books.markAvailableCalls != releases {
			t.Error("a failed return must not touch the availability flag")
		}
	})

	t.Run("unknown loan", func(t *testing.T) {
		f := newLoanFixture()
		_, err := f.svc.Return(context.Background(), 99)
		if !errors.Is(err, domain.ErrLoanNotFound) {
			t.Errorf("expected ErrLoanNotFound, got %v", err)
		}
	})

	t.Run("no listener installed", func(t *testing.T) {
		f := newLoanFixture()
		book := f.availableBook()
		book.Available = false
		loan := f.loans.Add(domain.NewLoan(1, book.ID, fixedNow, fixedNow.Add(testLoanPeriod)))

		if _, err := f.svc.Return(context.Background(), loan.ID); err != nil {
			t.Fatalf("return without listener failed: %v", err)
		}
	})
}

func TestLoanService_Overdue(t *testing.T) {
	f := newLoanFixture()
	f.loans.Add(domain.NewLoan(1, 1, fixedNow.Add(-20*24*time.Hour), fixedNow.Add(-time.Hour)))
	f.loans.Add(domain.NewLoan(1, 2, fixedNow, fixedNow.Add(testLoanPeriod)))
	closed := domain.NewLoan(1, 3, fixedNow.Add(-40*24*time.Hour), fixedNow.Add(-20*24*time.Hour))
	closed.Returned = true
	f.loans.Add(closed)

	overdue, err := f.svc.Overdue(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(overdue) != 1 {
		t.Errorf("expected 1 overdue loan, got %d", len(overdue))
	}
}
