package postgres

import (
	"github.com/pergamon-io/pergamon/internal/repository"
)

// NewRepositories bundles all PostgreSQL repositories over one pool.
func NewRepositories(db *DB) *repository.Repositories {
	return &repository.Repositories{
		User:        NewUserRepository(db),
		Book:        NewBookRepository(db),
		Loan:        NewLoanRepository(db),
		Reservation: NewReservationRepository(db),
	}
}
