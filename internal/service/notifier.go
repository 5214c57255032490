package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/pergamon-io/pergamon/internal/domain"
)

// Notifier tells a user their reserved book became available. Delivery is
// out of scope here; implementations decide the channel.
type Notifier interface {
	NotifyBookAvailable(ctx context.Context, user *domain.User, book *domain.Book, res *domain.Reservation)
}

// LogNotifier writes the notification to the structured log.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier creates a Notifier backed by the given logger.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("service", "notifier").Logger()}
}

// NotifyBookAvailable logs the fulfillment notification.
func (n *LogNotifier) NotifyBookAvailable(ctx context.Context, user *domain.User, book *domain.Book, res *domain.Reservation) {
	n.logger.Info().
		Int64("user_id", user.ID).
		Str("email", user.Email).
		Int64("book_id", book.ID).
		Str("title", book.Title).
		Int64("reservation_id", res.ID).
		Msg("reserved book available")
}

var _ Notifier = (*LogNotifier)(nil)
