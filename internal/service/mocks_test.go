package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pergamon-io/pergamon/internal/domain"
	"github.com/pergamon-io/pergamon/internal/repository"
)

// =============================================================================
// Mock User Repository
// =============================================================================

// MockUserRepository is a map-backed implementation of repository.UserRepository.
type MockUserRepository struct {
	mu     sync.Mutex
	users  map[int64]*domain.User
	nextID int64

	createErr error
	getErr    error
}

func NewMockUserRepository() *MockUserRepository {
	return &MockUserRepository{
		users:  make(map[int64]*domain.User),
		nextID: 1,
	}
}

// Add seeds a user, assigning an ID, and returns it.
func (m *MockUserRepository) Add(user *domain.User) *domain.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	user.ID = m.nextID
	m.nextID++
	m.users[user.ID] = user
	return user
}

func (m *MockUserRepository) Create(ctx context.Context, user *domain.User) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == user.Email {
			return domain.ErrEmailTaken
		}
	}
	user.ID = m.nextID
	m.nextID++
	m.users[user.ID] = user
	return nil
}

func (m *MockUserRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, domain.ErrUserNotFound
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	email = domain.NormalizeEmail(email)
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

// Update writes profile fields only; the status is owned by Deactivate,
// matching the real repositories.
func (m *MockUserRepository) Update(ctx context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.users[user.ID]
	if !ok {
		return domain.ErrUserNotFound
	}
	updated := *user
	updated.Status = existing.Status
	m.users[user.ID] = &updated
	return nil
}

// Deactivate is the conditional active-to-inactive transition.
func (m *MockUserRepository) Deactivate(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	if u.Status == domain.UserActive {
		u.Status = domain.UserInactive
		u.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func (m *MockUserRepository) List(ctx context.Context, opts repository.ListOptions) (*repository.ListResult[domain.User], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []*domain.User
	for _, u := range m.users {
		all = append(all, u)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return &repository.ListResult[domain.User]{
		Items:  paginate(all, opts),
		Total:  int64(len(all)),
		Offset: opts.Offset,
		Limit:  opts.Limit,
	}, nil
}

func (m *MockUserRepository) SearchByName(ctx context.Context, name string) ([]*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*domain.User
	for _, u := range m.users {
		if strings.Contains(strings.ToLower(u.Name), strings.ToLower(name)) {
			result = append(result, u)
		}
	}
	return result, nil
}

func (m *MockUserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	if m.getErr != nil {
		return false, m.getErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	email = domain.NormalizeEmail(email)
	for _, u := range m.users {
		if u.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (m *MockUserRepository) CountByRole(ctx context.Context) (map[domain.UserRole]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[domain.UserRole]int64)
	for _, u := range m.users {
		if u.IsActive() {
			counts[u.Role]++
		}
	}
	return counts, nil
}

// =============================================================================
// Mock Book Repository
// =============================================================================

// MockBookRepository is a map-backed implementation of repository.BookRepository.
// MarkLoaned is a real compare-and-set under the mutex, so concurrent
// grant tests exercise the same exactly-one-winner contract as the
// database implementations.
type MockBookRepository struct {
	mu     sync.Mutex
	books  map[int64]*domain.Book
	nextID int64

	markLoanedCalls    int
	markAvailableCalls int
}

func NewMockBookRepository() *MockBookRepository {
	return &MockBookRepository{
		books:  make(map[int64]*domain.Book),
		nextID: 1,
	}
}

// Add seeds a book, assigning an ID, and returns it.
func (m *MockBookRepository) Add(book *domain.Book) *domain.Book {
	m.mu.Lock()
	defer m.mu.Unlock()
	book.ID = m.nextID
	m.nextID++
	m.books[book.ID] = book
	return book
}

func (m *MockBookRepository) Create(ctx context.Context, book *domain.Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.books {
		if b.ISBN == book.ISBN {
			return domain.ErrISBNTaken
		}
	}
	book.ID = m.nextID
	m.nextID++
	m.books[book.ID] = book
	return nil
}

func (m *MockBookRepository) GetByID(ctx context.Context, id int64) (*domain.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.books[id]; ok {
		copied := *b
		return &copied, nil
	}
	return nil, domain.ErrBookNotFound
}

func (m *MockBookRepository) GetByISBN(ctx context.Context, isbn string) (*domain.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.books {
		if b.ISBN == isbn {
			copied := *b
			return &copied, nil
		}
	}
	return nil, domain.ErrBookNotFound
}

func (m *MockBookRepository) Update(ctx context.Context, book *domain.Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.books[book.ID]
	if !ok {
		return domain.ErrBookNotFound
	}
	book.Available = existing.Available
	m.books[book.ID] = book
	return nil
}

func (m *MockBookRepository) Delete(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.books[id]; !ok {
		return domain.ErrBookNotFound
	}
	delete(m.books, id)
	return nil
}

func (m *MockBookRepository) List(ctx context.Context, opts repository.ListOptions) (*repository.ListResult[domain.Book], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []*domain.Book
	for _, b := range m.books {
		all = append(all, b)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return &repository.ListResult[domain.Book]{
		Items:  paginate(all, opts),
		Total:  int64(len(all)),
		Offset: opts.Offset,
		Limit:  opts.Limit,
	}, nil
}

func (m *MockBookRepository) ListAvailable(ctx context.Context) ([]*domain.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*domain.Book
	for _, b := range m.books {
		if b.Available {
			result = append(result, b)
		}
	}
	return result, nil
}

func (m *MockBookRepository) ListByCategory(ctx context.Context, category string) ([]*domain.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*domain.Book
	for _, b := range m.books {
		if b.Category == category {
			result = append(result, b)
		}
	}
	return result, nil
}

func (m *MockBookRepository) ListRecent(ctx context.Context, limit int) ([]*domain.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []*domain.Book
	for _, b := range m.books {
		all = append(all, b)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (m *MockBookRepository) Search(ctx context.Context, query string) ([]*domain.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := strings.ToLower(query)
	var result []*domain.Book
	for _, b := range m.books {
		if strings.Contains(strings.ToLower(b.Title), q) ||
			strings.Contains(strings.ToLower(b.Author), q) ||
			strings.Contains(b.ISBN, query) ||
			strings.Contains(strings.ToLower(b.Category), q) {
			result = append(result, b)
		}
	}
	return result, nil
}

func (m *MockBookRepository) ExistsByISBN(ctx context.Context, isbn string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.books {
		if b.ISBN == isbn {
			return true, nil
		}
	}
	return false, nil
}

func (m *MockBookRepository) MarkLoaned(ctx context.Context, bookID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.markLoanedCalls++
	b, ok := m.books[bookID]
	if !ok {
		return domain.ErrBookNotFound
	}
	if !b.Available {
		return domain.ErrBookUnavailable
	}
	b.Available = false
	return nil
}

func (m *MockBookRepository) MarkAvailable(ctx context.Context, bookID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.markAvailableCalls++
	b, ok := m.books[bookID]
	if !ok {
		return domain.ErrBookNotFound
	}
	b.Available = true
	return nil
}

func (m *MockBookRepository) Stats(ctx context.Context) (*domain.BookStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := &domain.BookStats{BooksByCategory: make(map[string]int64)}
	for _, b := range m.books {
		stats.TotalBooks++
		if b.Available {
			stats.AvailableBooks++
		} else {
			stats.LoanedBooks++
		}
		if b.Category != "" {
			stats.BooksByCategory[b.Category]++
		}
	}
	return stats, nil
}

// =============================================================================
// Mock Loan Repository
// =============================================================================

// MockLoanRepository is a map-backed implementation of repository.LoanRepository
// with the same conditional-update semantics as the database backends.
type MockLoanRepository struct {
	mu     sync.Mutex
	loans  map[int64]*domain.Loan
	nextID int64

	createErr error
}

func NewMockLoanRepository() *MockLoanRepository {
	return &MockLoanRepository{
		loans:  make(map[int64]*domain.Loan),
		nextID: 1,
	}
}

// Add seeds a loan, assigning an ID, and returns it.
func (m *MockLoanRepository) Add(loan *domain.Loan) *domain.Loan {
	m.mu.Lock()
	defer m.mu.Unlock()
	loan.ID = m.nextID
	m.nextID++
	m.loans[loan.ID] = loan
	return loan
}

func (m *MockLoanRepository) Create(ctx context.Context, loan *domain.Loan) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	loan.ID = m.nextID
	m.nextID++
	m.loans[loan.ID] = loan
	return nil
}

func (m *MockLoanRepository) GetByID(ctx context.Context, id int64) (*domain.Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.loans[id]; ok {
		copied := *l
		return &copied, nil
	}
	return nil, domain.ErrLoanNotFound
}

func (m *MockLoanRepository) GetOpenByBook(ctx context.Context, bookID int64) (*domain.Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.loans {
		if l.BookID == bookID && !l.Returned {
			copied := *l
			return &copied, nil
		}
	}
	return nil, domain.ErrLoanNotFound
}

func (m *MockLoanRepository) ListByUser(ctx context.Context, userID int64) ([]*domain.Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*domain.Loan
	for _, l := range m.loans {
		if l.UserID == userID {
			result = append(result, l)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID > result[j].ID })
	return result, nil
}

func (m *MockLoanRepository) ListOpen(ctx context.Context) ([]*domain.Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*domain.Loan
	for _, l := range m.loans {
		if !l.Returned {
			result = append(result, l)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *MockLoanRepository) ListOverdue(ctx context.Context, now time.Time) ([]*domain.Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*domain.Loan
	for _, l := range m.loans {
		if l.IsOverdue(now) {
			result = append(result, l)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *MockLoanRepository) Renew(ctx context.Context, loanID int64, newDueDate time.Time, expectedCount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.loans[loanID]
	if !ok {
		return domain.ErrLoanNotFound
	}
	if l.Returned || l.RenewalCount != expectedCount {
		return repository.ErrStaleLoan
	}
	l.DueDate = newDueDate
	l.Renewed = true
	l.RenewalCount++
	return nil
}

func (m *MockLoanRepository) MarkReturned(ctx context.Context, loanID int64, returnDate time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.loans[loanID]
	if !ok {
		return domain.ErrLoanNotFound
	}
	if l.Returned {
		return repository.ErrStaleLoan
	}
	l.Returned = true
	l.ReturnDate = &returnDate
	return nil
}

func (m *MockLoanRepository) Stats(ctx context.Context, now time.Time) (*domain.LoanStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := &domain.LoanStats{}
	for _, l := range m.loans {
		stats.TotalLoans++
		if !l.Returned {
			stats.ActiveLoans++
		}
		if l.IsOverdue(now) {
			stats.OverdueLoans++
		}
	}
	return stats, nil
}

// =============================================================================
// Mock Reservation Repository
// =============================================================================

// MockReservationRepository is a map-backed implementation of
// repository.ReservationRepository.
type MockReservationRepository struct {
	mu           sync.Mutex
	reservations map[int64]*domain.Reservation
	nextID       int64
}

func NewMockReservationRepository() *MockReservationRepository {
	return &MockReservationRepository{
		reservations: make(map[int64]*domain.Reservation),
		nextID:       1,
	}
}

// Add seeds a reservation, assigning an ID, and returns it.
func (m *MockReservationRepository) Add(res *domain.Reservation) *domain.Reservation {
	m.mu.Lock()
	defer m.mu.Unlock()
	res.ID = m.nextID
	m.nextID++
	m.reservations[res.ID] = res
	return res
}

func (m *MockReservationRepository) Create(ctx context.Context, res *domain.Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.reservations {
		if r.UserID == res.UserID && r.BookID == res.BookID && r.Active() {
			return domain.ErrDuplicateReservation
		}
	}
	res.ID = m.nextID
	m.nextID++
	m.reservations[res.ID] = res
	return nil
}

func (m *MockReservationRepository) GetByID(ctx context.Context, id int64) (*domain.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.reservations[id]; ok {
		copied := *r
		return &copied, nil
	}
	return nil, domain.ErrReservationNotFound
}

func (m *MockReservationRepository) ListActiveByBook(ctx context.Context, bookID int64) ([]*domain.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*domain.Reservation
	for _, r := range m.reservations {
		if r.BookID == bookID && r.Active() {
			copied := *r
			result = append(result, &copied)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].ReservationDate.Equal(result[j].ReservationDate) {
			return result[i].ReservationDate.Before(result[j].ReservationDate)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (m *MockReservationRepository) ListByUser(ctx context.Context, userID int64) ([]*domain.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*domain.Reservation
	for _, r := range m.reservations {
		if r.UserID == userID {
			result = append(result, r)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID > result[j].ID })
	return result, nil
}

func (m *MockReservationRepository) HasActiveForUserAndBook(ctx context.Context, userID, bookID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.reservations {
		if r.UserID == userID && r.BookID == bookID && r.Active() {
			return true, nil
		}
	}
	return false, nil
}

func (m *MockReservationRepository) Finish(ctx context.Context, id int64, status domain.ReservationStatus, notified bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reservations[id]
	if !ok {
		return domain.ErrReservationNotFound
	}
	if !r.Active() {
		return repository.ErrStaleReservation
	}
	r.Status = status
	r.Notified = notified
	return nil
}

func (m *MockReservationRepository) ExpireBefore(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var expired int64
	for _, r := range m.reservations {
		if r.Active() && r.ExpiryDate.Before(now) {
			r.Status = domain.ReservationExpired
			expired++
		}
	}
	return expired, nil
}

func (m *MockReservationRepository) Stats(ctx context.Context) (*domain.ReservationStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := &domain.ReservationStats{}
	for _, r := range m.reservations {
		stats.TotalReservations++
		if r.Active() {
			stats.ActiveReservations++
		}
	}
	return stats, nil
}

// paginate slices a sorted list the way the SQL LIMIT/OFFSET queries do.
func paginate[T any](items []*T, opts repository.ListOptions) []*T {
	if opts.Offset >= len(items) {
		return nil
	}
	items = items[opts.Offset:]
	if opts.Limit > 0 && len(items) > opts.Limit {
		items = items[:opts.Limit]
	}
	return items
}

// =============================================================================
// Interface Guards
// =============================================================================

var (
	_ repository.UserRepository        = (*MockUserRepository)(nil)
	_ repository.BookRepository        = (*MockBookRepository)(nil)
	_ repository.LoanRepository        = (*MockLoanRepository)(nil)
	_ repository.ReservationRepository = (*MockReservationRepository)(nil)
)
