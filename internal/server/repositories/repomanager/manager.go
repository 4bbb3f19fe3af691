package repomanager

import (
	"context"
	"database/sql"

	"github.com/alexivashchenko/auth-service/internal/dbx"
	"github.com/alexivashchenko/auth-service/internal/server/repositories/refreshtokens"
	"github.com/alexivashchenko/auth-service/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to a DBTX, so the same
// repository code runs standalone or inside a transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
}
