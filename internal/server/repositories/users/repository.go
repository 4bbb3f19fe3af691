// Package users declares the repository contract for user accounts.
package users

import (
	"context"

	"github.com/alexivashchenko/auth-service/internal/server/models"
)

type Repository interface {
	// Create inserts the user and returns it with the generated ID.
	// A duplicate email yields common.ErrorConflict.
	Create(ctx context.Context, user *models.User) (*models.User, error)

	// GetByEmail returns the user with the given (already normalized)
	// email, or common.ErrorNotFound.
	GetByEmail(ctx context.Context, email string) (*models.User, error)

	// GetByID returns the user with the given ID, or common.ErrorNotFound.
	GetByID(ctx context.Context, id string) (*models.User, error)
}
