package sqlite

import (
	"github.com/pergamon-io/pergamon/internal/repository"
)

// NewRepositories bundles all SQLite repositories over one connection.
func NewRepositories(db *DB) *repository.Repositories {
	return &repository.Repositories{
		User:        NewUserRepository(db),
		Book:        NewBookRepository(db),
		Loan:        NewLoanRepository(db),
		Reservation: NewReservationRepository(db),
	}
}
