package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/pergamon-io/pergamon/internal/domain"
	"github.com/pergamon-io/pergamon/internal/metrics"
)

// AuthorizationHeader is the header carrying the bearer credential.
const AuthorizationHeader = "Authorization"

// bearerPrefix is the expected credential scheme prefix.
const bearerPrefix = "Bearer "

// IdentityResolver looks up the current account for verified claims.
// The store is consulted on every authenticated request so that stale
// claims (in particular the active flag) are never trusted.
type IdentityResolver interface {
	// GetByID retrieves a user by ID. Returns domain.ErrUserNotFound
	// when the account no longer exists.
	GetByID(ctx context.Context, id int64) (*domain.User, error)
}

// Middleware returns the request authorizer. It is evaluated exactly once
// per inbound call and never rejects the request by itself:
//
//   - no bearer credential: the request proceeds as anonymous;
//   - malformed, badly signed, or expired token: the request proceeds as
//     anonymous (logged at debug);
//   - valid claims whose account is gone or deactivated: the request
//     proceeds as anonymous;
//   - valid claims with a live account: the resolved identity is attached
//     to the request context.
//
// Authentication is fail-open here; authorization on protected operations
// (Require) is where missing identities turn into hard rejections. This
// keeps anonymous access to public reads working even when a broken token
// header is present.
func Middleware(codec *TokenCodec, resolver IdentityResolver, recorder metrics.Recorder, logger zerolog.Logger) func(http.Handler) http.Handler {
	logger = logger.With().Str("component", "auth").Logger()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := extractBearer(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := codec.Verify(token)
			if err != nil {
				// The error kind matters only for the log line and metric.
				recorder.RecordTokenRejected(rejectionReason(err))
				logger.Debug().Err(err).Str("path", r.URL.Path).Msg("token rejected, proceeding as anonymous")
				next.ServeHTTP(w, r)
				return
			}

			user, err := resolver.GetByID(r.Context(), claims.UserID)
			if err != nil {
				if !errors.Is(err, domain.ErrUserNotFound) {
					logger.Error().Err(err).Int64("user_id", claims.UserID).Msg("identity resolution failed")
				}
				next.ServeHTTP(w, r)
				return
			}
			if !user.IsActive() {
				logger.Debug().Int64("user_id", user.ID).Msg("deactivated account presented a valid token")
				next.ServeHTTP(w, r)
				return
			}

			ctx := WithIdentity(r.Context(), IdentityFromUser(user))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// rejectionReason maps a verification error to a metric label.
func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrTokenExpired):
		return "expired"
	case errors.Is(err, ErrTokenSignatureInvalid):
		return "signature"
	default:
		return "malformed"
	}
}

// extractBearer pulls the token out of the Authorization header.
// Returns false when no bearer credential is present at all.
func extractBearer(r *http.Request) (string, bool) {
	header := r.Header.Get(AuthorizationHeader)
	if header == "" {
		return "", false
	}
	token, found := strings.CutPrefix(header, bearerPrefix)
	if !found || token == "" {
		// A non-bearer or empty Authorization header is treated the
		// same as a bad token: anonymous.
		return "", false
	}
	return token, true
}
