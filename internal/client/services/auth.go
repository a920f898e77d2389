// This file defines the authentication service: login against the identity
// provider, session restore on start, logout and the remembered username.
package services

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/ioukeeper/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/ioukeeper/internal/client/session"
	"github.com/dmitrijs2005/ioukeeper/internal/common"
	"github.com/dmitrijs2005/ioukeeper/internal/logging"
)

const usernameKey = "auth.username"

// AuthService defines authentication operations for the CLI.
//
// Contract:
//   - Login: password grant; remembers the username locally.
//   - Restore: resume a persisted session, if any.
//   - WhoAmI: the current credential, renewed when it is close to expiry, or
//     common.ErrNoSession / common.ErrRefreshFailure when there is none.
//   - Logout: forget the session and every locally cached record.
//   - LastUsername: the username of the last successful login.
type AuthService interface {
	Login(ctx context.Context, username string, password []byte) (*session.Credential, error)
	Restore(ctx context.Context) (*session.Credential, error)
	WhoAmI(ctx context.Context) (*session.Credential, error)
	Logout(ctx context.Context) error
	LastUsername(ctx context.Context) string
}

// Authenticator is the part of *session.Manager the auth service needs.
type Authenticator interface {
	Authenticate(ctx context.Context, username string, password []byte) (*session.Credential, error)
	Restore(ctx context.Context) (*session.Credential, error)
	EnsureFresh(ctx context.Context) (*session.Credential, error)
	Logout(ctx context.Context) error
}

// Ledger is the part of LedgerService that follows the session: published
// views are re-derived for a new identity and dropped on logout.
type Ledger interface {
	Rebind(ctx context.Context, email string)
	Reset(ctx context.Context) error
}

type authService struct {
	sessions Authenticator
	ledger   Ledger
	db       *sql.DB
	logger   logging.Logger
}

// NewAuthService constructs an AuthService. db may be nil, in which case the
// username is not remembered.
func NewAuthService(sessions Authenticator, ledger Ledger, db *sql.DB, logger logging.Logger) AuthService {
	if logger == nil {
		logger = logging.Discard()
	}
	return &authService{sessions: sessions, ledger: ledger, db: db, logger: logger}
}

func (a *authService) getMetadataRepo() metadata.Repository {
	return metadata.NewSQLiteRepository(a.db)
}

// Login authenticates and wipes password afterwards.
func (a *authService) Login(ctx context.Context, username string, password []byte) (*session.Credential, error) {
	defer common.WipeByteArray(password)

	cred, err := a.sessions.Authenticate(ctx, username, password)
	if err != nil {
		return nil, err
	}
	a.rebind(ctx, cred)

	if a.db != nil {
		if err := a.getMetadataRepo().Set(ctx, usernameKey, []byte(username)); err != nil {
			a.logger.Warn(ctx, "failed to remember username", "error", err)
		}
	}
	return cred, nil
}

func (a *authService) Restore(ctx context.Context) (*session.Credential, error) {
	cred, err := a.sessions.Restore(ctx)
	if err != nil {
		return nil, fmt.Errorf("restore session: %w", err)
	}
	a.rebind(ctx, cred)
	return cred, nil
}

// WhoAmI treats an expired access token as a live session as long as it can
// still be refreshed.
func (a *authService) WhoAmI(ctx context.Context) (*session.Credential, error) {
	cred, err := a.sessions.EnsureFresh(ctx)
	if err != nil {
		return nil, err
	}
	a.rebind(ctx, cred)
	return cred, nil
}

func (a *authService) rebind(ctx context.Context, cred *session.Credential) {
	if a.ledger == nil || cred == nil {
		return
	}
	a.ledger.Rebind(ctx, cred.Email())
}

// Logout clears the session first so that a cache failure still logs out.
func (a *authService) Logout(ctx context.Context) error {
	if err := a.sessions.Logout(ctx); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	if a.ledger != nil {
		if err := a.ledger.Reset(ctx); err != nil {
			return fmt.Errorf("logout: %w", err)
		}
	}
	return nil
}

func (a *authService) LastUsername(ctx context.Context) string {
	if a.db == nil {
		return ""
	}
	v, err := a.getMetadataRepo().Get(ctx, usernameKey)
	if err != nil {
		a.logger.Debug(ctx, "no remembered username", "error", err)
		return ""
	}
	return string(v)
}
