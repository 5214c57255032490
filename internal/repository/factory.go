package repository

import (
	"context"
)

// Repositories holds all repository instances.
type Repositories struct {
	User        UserRepository
	Book        BookRepository
	Loan        LoanRepository
	Reservation ReservationRepository
}

// DatabaseHealth is an interface for database health checks.
// Both database backends satisfy it; health endpoints depend on it
// instead of a concrete backend.
type DatabaseHealth interface {
	Ping(ctx context.Context) error
	Close() error
}
