package services

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alexivashchenko/auth-service/internal/common"
	"github.com/alexivashchenko/auth-service/internal/logging"
	"github.com/alexivashchenko/auth-service/internal/server/auth"
	"github.com/alexivashchenko/auth-service/internal/server/password"
)

func discardLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func newAuthService(t *testing.T, db *sql.DB, rm *fakeRepoManager, now time.Time) *AuthService {
	t.Helper()
	cfg := testConfig()
	sessions := NewSessionService(db, rm, cfg)
	sessions.now = func() time.Time { return now }
	s := NewAuthService(db, rm, sessions, discardLogger(), cfg)
	s.now = func() time.Time { return now }
	return s
}

func newFakes() *fakeRepoManager {
	return &fakeRepoManager{u: newMemUsersRepo(), r: newMemRefreshRepo()}
}

func TestRegister_Success(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	rm := newFakes()
	s := newAuthService(t, db, rm, time.Now())

	user, err := s.Register(context.Background(), "  Alice@Example.COM ", "hunter2hunter2")
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if user.Email != "alice@example.com" {
		t.Fatalf("email not normalized: %q", user.Email)
	}
	if !password.Verify(user.PasswordHash, "hunter2hunter2") {
		t.Fatal("stored hash must verify the original password")
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	rm := newFakes()
	s := newAuthService(t, db, rm, time.Now())

	if _, err := s.Register(context.Background(), "bob@example.com", "hunter2hunter2"); err != nil {
		t.Fatalf("first Register error: %v", err)
	}
	_, err := s.Register(context.Background(), "BOB@example.com", "otherpassword")
	if !errors.Is(err, common.ErrUserAlreadyExists) {
		t.Fatalf("want ErrUserAlreadyExists, got %v", err)
	}
}

func TestRegister_UniqueIndexRace(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	rm := newFakes()
	// pre-check misses, insert hits the unique index
	rm.u.getErr = common.ErrorNotFound
	rm.u.createErr = common.ErrorConflict
	s := newAuthService(t, db, rm, time.Now())

	_, err := s.Register(context.Background(), "bob@example.com", "hunter2hunter2")
	if !errors.Is(err, common.ErrUserAlreadyExists) {
		t.Fatalf("want ErrUserAlreadyExists, got %v", err)
	}
}

func TestRegister_Validation(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	s := newAuthService(t, db, newFakes(), time.Now())

	tests := []struct {
		name  string
		email string
		pw    string
	}{
		{"not an email", "notanemail", "hunter2hunter2"},
		{"blank email", "", "hunter2hunter2"},
		{"short password", "carol@example.com", "short"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Register(context.Background(), tt.email, tt.pw)
			if !errors.Is(err, common.ErrValidation) {
				t.Fatalf("want ErrValidation, got %v", err)
			}
		})
	}
}

func TestLogin_Success(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	mock.ExpectBegin()
	mock.ExpectCommit()

	now := time.Now()
	rm := newFakes()
	s := newAuthService(t, db, rm, now)

	user, err := s.Register(context.Background(), "alice@example.com", "hunter2hunter2")
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}

	pair, err := s.Login(context.Background(), "Alice@Example.com", "hunter2hunter2")
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatalf("empty tokens: %+v", pair)
	}

	userID, err := auth.GetUserIDFromToken(pair.AccessToken, []byte("k"), now)
	if err != nil {
		t.Fatalf("access token does not verify: %v", err)
	}
	if userID != user.ID {
		t.Fatalf("access token subject %q, want %q", userID, user.ID)
	}
	if _, ok := rm.r.byToken[pair.RefreshToken]; !ok {
		t.Fatal("refresh token must be stored server-side")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sql expectations: %v", err)
	}
}

func TestLogin_UnknownEmailAndWrongPasswordLookAlike(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	mock.ExpectBegin()
	mock.ExpectCommit()

	rm := newFakes()
	s := newAuthService(t, db, rm, time.Now())

	if _, err := s.Register(context.Background(), "alice@example.com", "hunter2hunter2"); err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if _, err := s.Login(context.Background(), "alice@example.com", "hunter2hunter2"); err != nil {
		t.Fatalf("Login error: %v", err)
	}

	_, errUnknown := s.Login(context.Background(), "nobody@example.com", "whatever12345")
	_, errWrong := s.Login(context.Background(), "alice@example.com", "wrongpassword")

	if !errors.Is(errUnknown, common.ErrInvalidCredentials) {
		t.Fatalf("unknown email: want ErrInvalidCredentials, got %v", errUnknown)
	}
	if !errors.Is(errWrong, common.ErrInvalidCredentials) {
		t.Fatalf("wrong password: want ErrInvalidCredentials, got %v", errWrong)
	}
}

func TestLogin_ReplacesPreviousRefreshToken(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	mock.ExpectBegin()
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectRollback()

	now := time.Now()
	rm := newFakes()
	s := newAuthService(t, db, rm, now)

	if _, err := s.Register(context.Background(), "alice@example.com", "hunter2hunter2"); err != nil {
		t.Fatalf("Register error: %v", err)
	}
	first, err := s.Login(context.Background(), "alice@example.com", "hunter2hunter2")
	if err != nil {
		t.Fatalf("first Login error: %v", err)
	}
	second, err := s.Login(context.Background(), "alice@example.com", "hunter2hunter2")
	if err != nil {
		t.Fatalf("second Login error: %v", err)
	}
	if first.RefreshToken == second.RefreshToken {
		t.Fatal("logins must mint distinct refresh tokens")
	}

	_, err = s.Refresh(context.Background(), first.RefreshToken)
	if !errors.Is(err, common.ErrInvalidRefreshToken) {
		t.Fatalf("stale token after re-login: want ErrInvalidRefreshToken, got %v", err)
	}
}

func TestRefresh_RotatesToken(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	mock.ExpectBegin()
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectCommit()

	now := time.Now()
	rm := newFakes()
	s := newAuthService(t, db, rm, now)

	user, err := s.Register(context.Background(), "alice@example.com", "hunter2hunter2")
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}
	pair0, err := s.Login(context.Background(), "alice@example.com", "hunter2hunter2")
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}

	pair1, err := s.Refresh(context.Background(), pair0.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh error: %v", err)
	}
	if pair1.RefreshToken == pair0.RefreshToken {
		t.Fatal("refresh must rotate the token")
	}
	userID, err := auth.GetUserIDFromToken(pair1.AccessToken, []byte("k"), now)
	if err != nil || userID != user.ID {
		t.Fatalf("rotated access token subject %q (%v), want %q", userID, err, user.ID)
	}

	// replaying the consumed token fails
	if _, err := s.Refresh(context.Background(), pair0.RefreshToken); !errors.Is(err, common.ErrInvalidRefreshToken) {
		t.Fatalf("replay: want ErrInvalidRefreshToken, got %v", err)
	}

	// the fresh token still works
	if _, err := s.Refresh(context.Background(), pair1.RefreshToken); err != nil {
		t.Fatalf("fresh token Refresh error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sql expectations: %v", err)
	}
}

func TestRefresh_ExpiredToken(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	mock.ExpectBegin()
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectRollback()

	now := time.Now()
	rm := newFakes()
	s := newAuthService(t, db, rm, now)

	if _, err := s.Register(context.Background(), "alice@example.com", "hunter2hunter2"); err != nil {
		t.Fatalf("Register error: %v", err)
	}
	pair, err := s.Login(context.Background(), "alice@example.com", "hunter2hunter2")
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}

	// jump past the refresh token lifetime
	later := now.Add(721 * time.Hour)
	s.sessions.now = func() time.Time { return later }

	_, err = s.Refresh(context.Background(), pair.RefreshToken)
	if !errors.Is(err, common.ErrInvalidRefreshToken) {
		t.Fatalf("want ErrInvalidRefreshToken, got %v", err)
	}
}

func TestLogout_RevokesToken(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	mock.ExpectBegin()
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectRollback()

	rm := newFakes()
	s := newAuthService(t, db, rm, time.Now())

	if _, err := s.Register(context.Background(), "alice@example.com", "hunter2hunter2"); err != nil {
		t.Fatalf("Register error: %v", err)
	}
	pair, err := s.Login(context.Background(), "alice@example.com", "hunter2hunter2")
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}

	if err := s.Logout(context.Background(), pair.RefreshToken); err != nil {
		t.Fatalf("Logout error: %v", err)
	}
	if _, err := s.Refresh(context.Background(), pair.RefreshToken); !errors.Is(err, common.ErrInvalidRefreshToken) {
		t.Fatalf("token after logout: want ErrInvalidRefreshToken, got %v", err)
	}
}

func TestLogout_EmptyAndUnknownTokensAreNoops(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	mock.ExpectBegin()
	mock.ExpectCommit()

	s := newAuthService(t, db, newFakes(), time.Now())

	if err := s.Logout(context.Background(), ""); err != nil {
		t.Fatalf("empty token: %v", err)
	}
	if err := s.Logout(context.Background(), "never-issued"); err != nil {
		t.Fatalf("unknown token: %v", err)
	}
}

func TestGetUser(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	rm := newFakes()
	s := newAuthService(t, db, rm, time.Now())

	user, err := s.Register(context.Background(), "alice@example.com", "hunter2hunter2")
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}

	got, err := s.GetUser(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("GetUser error: %v", err)
	}
	if got.Email != "alice@example.com" {
		t.Fatalf("unexpected user: %+v", got)
	}

	if _, err := s.GetUser(context.Background(), "u404"); !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want ErrorNotFound, got %v", err)
	}
}
