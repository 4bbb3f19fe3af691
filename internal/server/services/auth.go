// Package services contains the server-side business logic: AuthService
// for registration, login, token refresh, and logout, and SessionService
// for the refresh-token lifecycle behind it.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/alexivashchenko/auth-service/internal/common"
	"github.com/alexivashchenko/auth-service/internal/dbx"
	"github.com/alexivashchenko/auth-service/internal/logging"
	"github.com/alexivashchenko/auth-service/internal/server/auth"
	"github.com/alexivashchenko/auth-service/internal/server/config"
	"github.com/alexivashchenko/auth-service/internal/server/models"
	"github.com/alexivashchenko/auth-service/internal/server/password"
	"github.com/alexivashchenko/auth-service/internal/server/repositories/repomanager"
)

// MinPasswordLength applies to registration only; stored hashes verify
// whatever length they were created with.
const MinPasswordLength = 8

// TokenPair bundles a short-lived access token and a long-lived refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// AuthService provides authentication operations:
//   - Register: create accounts
//   - Login: verify credentials and mint tokens
//   - Refresh: rotate refresh tokens and mint new access tokens
//   - Logout: revoke the caller's refresh token
type AuthService struct {
	db                          *sql.DB
	repomanager                 repomanager.RepositoryManager
	sessions                    *SessionService
	logger                      logging.Logger
	jwtSecret                   []byte
	accessTokenValidityDuration time.Duration
	bcryptCost                  int
	now                         func() time.Time
}

// NewAuthService constructs an AuthService using repositories and server config.
func NewAuthService(db *sql.DB, m repomanager.RepositoryManager, sessions *SessionService, logger logging.Logger, cfg *config.Config) *AuthService {
	return &AuthService{
		db:                          db,
		repomanager:                 m,
		sessions:                    sessions,
		logger:                      logger,
		jwtSecret:                   []byte(cfg.SecretKey),
		accessTokenValidityDuration: cfg.AccessTokenValidityDuration,
		bcryptCost:                  cfg.BcryptCost,
		now:                         time.Now,
	}
}

// NormalizeEmail lowercases and trims an email address so lookups and the
// unique index agree on a single spelling.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateCredentials(email, pw string) error {
	if _, err := mail.ParseAddress(email); err != nil {
		return fmt.Errorf("%w: invalid email address", common.ErrValidation)
	}
	if len(pw) < MinPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", common.ErrValidation, MinPasswordLength)
	}
	return nil
}

// Register creates a new account. A duplicate email yields
// common.ErrUserAlreadyExists whether it is caught by the pre-check or by
// the unique index.
func (s *AuthService) Register(ctx context.Context, email, pw string) (*models.User, error) {
	email = NormalizeEmail(email)
	if err := validateCredentials(email, pw); err != nil {
		return nil, err
	}

	repo := s.repomanager.Users(s.db)
	if _, err := repo.GetByEmail(ctx, email); err == nil {
		return nil, common.ErrUserAlreadyExists
	} else if !errors.Is(err, common.ErrorNotFound) {
		return nil, fmt.Errorf("error checking existing user: %w", err)
	}

	hash, err := password.Hash(pw, s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("error hashing password: %w", err)
	}

	user, err := repo.Create(ctx, &models.User{Email: email, PasswordHash: hash})
	if err != nil {
		if errors.Is(err, common.ErrorConflict) {
			return nil, common.ErrUserAlreadyExists
		}
		return nil, fmt.Errorf("error creating user: %w", err)
	}

	s.logger.Info(ctx, "user registered", "user_id", user.ID)
	return user, nil
}

// Login verifies the credentials and, on success, returns a new TokenPair.
// Unknown emails and wrong passwords both yield common.ErrInvalidCredentials;
// unknown emails still burn a hash comparison so the two paths take
// similar time.
func (s *AuthService) Login(ctx context.Context, email, pw string) (*TokenPair, error) {
	email = NormalizeEmail(email)

	repo := s.repomanager.Users(s.db)
	user, err := repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			password.VerifyDummy(pw)
			return nil, common.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("error searching user: %w", err)
	}

	if !password.Verify(user.PasswordHash, pw) {
		return nil, common.ErrInvalidCredentials
	}

	var pair *TokenPair
	if err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var genErr error
		pair, genErr = s.generateTokenPair(ctx, tx, user.ID)
		return genErr
	}); err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "user logged in", "user_id", user.ID)
	return pair, nil
}

// Refresh redeems a refresh token and rotates it, returning a fresh
// TokenPair. Redeem and re-issue run in one transaction, so a token is
// either fully rotated or not consumed at all.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	var pair *TokenPair
	if err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		userID, err := s.sessions.Redeem(ctx, tx, refreshToken)
		if err != nil {
			return err
		}
		pair, err = s.generateTokenPair(ctx, tx, userID)
		return err
	}); err != nil {
		return nil, err
	}
	return pair, nil
}

// Logout revokes the refresh token presented by the caller. An unknown or
// empty token is treated as already logged out.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return s.sessions.Revoke(ctx, refreshToken)
}

// GetUser returns the account for an authenticated user ID.
func (s *AuthService) GetUser(ctx context.Context, userID string) (*models.User, error) {
	return s.repomanager.Users(s.db).GetByID(ctx, userID)
}

func (s *AuthService) generateTokenPair(ctx context.Context, tx dbx.DBTX, userID string) (*TokenPair, error) {
	access, err := auth.GenerateToken(userID, s.jwtSecret, s.now(), s.accessTokenValidityDuration)
	if err != nil {
		return nil, common.ErrorInternal
	}
	refresh, err := s.sessions.Issue(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}
