// Package refreshtokens declares the repository contract for server-stored
// refresh tokens.
package refreshtokens

import (
	"context"
	"time"

	"github.com/alexivashchenko/auth-service/internal/server/models"
)

// Repository defines operations for issuing, retrieving, and revoking
// refresh tokens. The user_id column carries a unique constraint, so a user
// holds at most one row at any time.
type Repository interface {
	// Create stores a new refresh token for userID expiring at expiresAt.
	// A conflicting row (same user or same token value) yields
	// common.ErrorConflict.
	Create(ctx context.Context, userID string, token string, expiresAt time.Time) error

	// Find looks up a refresh token by its opaque token string.
	// Absent tokens yield common.ErrorNotFound.
	Find(ctx context.Context, token string) (*models.RefreshToken, error)

	// FindByUser returns the token currently held by userID, or
	// common.ErrorNotFound when the user holds none.
	FindByUser(ctx context.Context, userID string) (*models.RefreshToken, error)

	// Delete removes a refresh token by its token string. Deleting an
	// absent token is not an error.
	Delete(ctx context.Context, token string) error

	// DeleteByUser removes whatever token userID currently holds.
	DeleteByUser(ctx context.Context, userID string) error

	// DeleteExpired removes every token whose expiry is at or before now
	// and reports how many rows went away.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
