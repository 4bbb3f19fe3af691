package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/alexivashchenko/auth-service/internal/common"
	"github.com/alexivashchenko/auth-service/internal/dbx"
	"github.com/alexivashchenko/auth-service/internal/server/config"
	"github.com/alexivashchenko/auth-service/internal/server/repositories/repomanager"
)

// SessionService owns the server-stored refresh tokens. A user holds at
// most one token at a time: issuing replaces whatever the user held, and
// redeeming never hands out the same token twice because every successful
// redeem is followed by an issue in the same transaction.
type SessionService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	validity    time.Duration
	now         func() time.Time
}

// NewSessionService constructs a SessionService using repositories and
// server config.
func NewSessionService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config) *SessionService {
	return &SessionService{
		db:          db,
		repomanager: m,
		validity:    cfg.RefreshTokenValidityDuration,
		now:         time.Now,
	}
}

// Issue mints a fresh opaque refresh token for userID and stores it on the
// given handle, replacing any token the user previously held.
func (s *SessionService) Issue(ctx context.Context, tx dbx.DBTX, userID string) (string, error) {
	repo := s.repomanager.RefreshTokens(tx)

	if err := repo.DeleteByUser(ctx, userID); err != nil {
		return "", fmt.Errorf("error replacing refresh token: %w", err)
	}

	token := uuid.NewString()
	if err := repo.Create(ctx, userID, token, s.now().Add(s.validity)); err != nil {
		return "", fmt.Errorf("error storing refresh token: %w", err)
	}
	return token, nil
}

// Redeem resolves a refresh token to its owner. An unknown token yields
// common.ErrInvalidRefreshToken. An expired token is deleted on sight and
// yields the same error, so callers cannot distinguish the two cases.
// A valid row stays; the following Issue for the owner replaces it.
func (s *SessionService) Redeem(ctx context.Context, tx dbx.DBTX, token string) (string, error) {
	repo := s.repomanager.RefreshTokens(tx)

	stored, err := repo.Find(ctx, token)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return "", common.ErrInvalidRefreshToken
		}
		return "", fmt.Errorf("error searching refresh token: %w", err)
	}

	if !stored.Expires.After(s.now()) {
		// The sentinel makes the caller's transaction roll back, so the
		// reap runs on the base connection to outlive it.
		if err := s.repomanager.RefreshTokens(s.db).Delete(ctx, token); err != nil {
			return "", fmt.Errorf("error reaping expired refresh token: %w", err)
		}
		return "", common.ErrInvalidRefreshToken
	}

	return stored.UserID, nil
}

// IssueToken runs Issue inside its own transaction.
func (s *SessionService) IssueToken(ctx context.Context, userID string) (string, error) {
	var token string
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var issueErr error
		token, issueErr = s.Issue(ctx, tx, userID)
		return issueErr
	})
	if err != nil {
		return "", err
	}
	return token, nil
}

// RedeemToken runs Redeem inside its own transaction.
func (s *SessionService) RedeemToken(ctx context.Context, token string) (string, error) {
	var userID string
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var redeemErr error
		userID, redeemErr = s.Redeem(ctx, tx, token)
		return redeemErr
	})
	if err != nil {
		return "", err
	}
	return userID, nil
}

// Revoke drops whatever refresh token the owner of the given token holds.
// An unknown token is a no-op. Lookup and delete run in one transaction so
// a rotation committed in between cannot make the delete hit the
// replacement token.
func (s *SessionService) Revoke(ctx context.Context, token string) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.RefreshTokens(tx)

		stored, err := repo.Find(ctx, token)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return nil
			}
			return fmt.Errorf("error searching refresh token: %w", err)
		}
		if err := repo.DeleteByUser(ctx, stored.UserID); err != nil {
			return fmt.Errorf("error revoking refresh token: %w", err)
		}
		return nil
	})
}

// ReapExpired purges refresh tokens whose expiry has passed and reports
// how many rows were removed.
func (s *SessionService) ReapExpired(ctx context.Context) (int64, error) {
	repo := s.repomanager.RefreshTokens(s.db)
	return repo.DeleteExpired(ctx, s.now())
}
