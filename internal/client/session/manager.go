// Package session manages the authenticated session against an OpenID
// Connect identity provider: password login, claim parsing, proactive
// refresh and logout.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/ioukeeper/internal/common"
	"github.com/dmitrijs2005/ioukeeper/internal/logging"
	"github.com/dmitrijs2005/ioukeeper/internal/metrics"
	"golang.org/x/sync/singleflight"
)

// RefreshWindow is how close to expiry a token may get before EnsureFresh
// refreshes it.
const RefreshWindow = 30 * time.Second

// Options configure a Manager.
type Options struct {
	IdentityURL string
	Realm       string
	ClientID    string
	HTTPClient  *http.Client
	Store       TokenStore
	Logger      logging.Logger
	Metrics     metrics.Recorder
	Now         func() time.Time
}

// Manager owns the current Credential. It is safe for concurrent use.
type Manager struct {
	tokenURL string
	clientID string
	http     *http.Client
	store    TokenStore
	logger   logging.Logger
	metrics  metrics.Recorder
	now      func() time.Time

	sf   singleflight.Group
	mu   sync.RWMutex
	cred *Credential
}

func NewManager(opts Options) *Manager {
	m := &Manager{
		tokenURL: TokenURL(opts.IdentityURL, opts.Realm),
		clientID: opts.ClientID,
		http:     opts.HTTPClient,
		store:    opts.Store,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		now:      opts.Now,
	}
	if m.http == nil {
		m.http = http.DefaultClient
	}
	if m.logger == nil {
		m.logger = logging.Discard()
	}
	if m.metrics == nil {
		m.metrics = metrics.Nop{}
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m
}

// TokenURL builds the token endpoint of a realm.
func TokenURL(identityURL, realm string) string {
	return strings.TrimRight(identityURL, "/") + "/realms/" + url.PathEscape(realm) + "/protocol/openid-connect/token"
}

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	ExpiresIn        int    `json:"expires_in"`
	RefreshExpiresIn int    `json:"refresh_expires_in"`
	TokenType        string `json:"token_type"`
}

type tokenError struct {
	Error       string `json:"error"`
	Description string `json:"error_description"`
}

// Authenticate performs a password grant and installs the resulting
// credential. Any failure is reported as common.ErrAuthFailure.
func (m *Manager) Authenticate(ctx context.Context, username string, password []byte) (*Credential, error) {
	form := url.Values{
		"grant_type": {"password"},
		"client_id":  {m.clientID},
		"username":   {username},
		"password":   {string(password)},
	}

	cred, err := m.requestToken(ctx, form)
	if err != nil {
		// a failed login ends whatever session was held before
		m.drop(ctx)
		m.logger.Warn(ctx, "login failed", "username", username, "error", err)
		return nil, fmt.Errorf("%w: %w", common.ErrAuthFailure, err)
	}

	m.install(ctx, cred)
	m.logger.Info(ctx, "logged in", "email", cred.Email(), "expires_at", cred.ExpiresAt())
	return cred, nil
}

// Current returns the held credential, or nil when there is none or it has
// expired. It never performs I/O.
func (m *Manager) Current() *Credential {
	m.mu.RLock()
	c := m.cred
	m.mu.RUnlock()

	if c == nil || c.Expired(m.now()) {
		return nil
	}
	return c
}

// EnsureFresh returns a credential valid for at least RefreshWindow (or half
// the token lifetime, for short-lived tokens), refreshing it first when
// needed. Concurrent callers share one refresh.
func (m *Manager) EnsureFresh(ctx context.Context) (*Credential, error) {
	m.mu.RLock()
	c := m.cred
	m.mu.RUnlock()

	if c == nil {
		return nil, common.ErrNoSession
	}
	if !c.NeedsRefresh(m.now(), RefreshWindow) {
		return c, nil
	}
	return m.refresh(ctx, c)
}

// RefreshIfCurrent is called after the engine rejected rejectedToken. It
// refreshes only when that token is still the held one; otherwise another
// caller already refreshed and the newer credential is returned.
func (m *Manager) RefreshIfCurrent(ctx context.Context, rejectedToken string) (*Credential, error) {
	m.mu.RLock()
	c := m.cred
	m.mu.RUnlock()

	if c == nil {
		return nil, common.ErrNoSession
	}
	if c.Token() != rejectedToken {
		return c, nil
	}
	return m.refresh(ctx, c)
}

func (m *Manager) refresh(ctx context.Context, stale *Credential) (*Credential, error) {
	v, err, _ := m.sf.Do("refresh", func() (any, error) {
		m.mu.RLock()
		cur := m.cred
		m.mu.RUnlock()

		if cur == nil {
			return nil, fmt.Errorf("%w: %w", common.ErrRefreshFailure, common.ErrNoSession)
		}
		if cur != stale && !cur.NeedsRefresh(m.now(), RefreshWindow) {
			return cur, nil
		}
		if cur.RefreshToken() == "" {
			m.drop(ctx)
			m.metrics.RecordTokenRefresh(metrics.OutcomeError)
			return nil, fmt.Errorf("%w: no refresh token", common.ErrRefreshFailure)
		}

		cred, err := m.requestToken(ctx, url.Values{
			"grant_type":    {"refresh_token"},
			"client_id":     {m.clientID},
			"refresh_token": {cur.RefreshToken()},
		})
		if err != nil {
			m.drop(ctx)
			m.metrics.RecordTokenRefresh(metrics.OutcomeError)
			m.logger.Warn(ctx, "token refresh failed, session cleared", "error", err)
			return nil, fmt.Errorf("%w: %w", common.ErrRefreshFailure, err)
		}

		m.install(ctx, cred)
		m.metrics.RecordTokenRefresh(metrics.OutcomeOK)
		m.logger.Debug(ctx, "token refreshed", "expires_at", cred.ExpiresAt())
		return cred, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Credential), nil
}

// Logout forgets the credential and the persisted tokens. Calling it without
// a session is not an error.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	m.cred = nil
	m.mu.Unlock()

	if m.store == nil {
		return nil
	}
	if err := m.store.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear stored tokens: %w", err)
	}
	return nil
}

// Restore loads persisted tokens. Unparsable tokens, and expired ones that
// cannot be refreshed, are discarded; in that case nil is returned with no
// error.
func (m *Manager) Restore(ctx context.Context) (*Credential, error) {
	if m.store == nil {
		return nil, nil
	}

	access, refresh, err := m.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load stored tokens: %w", err)
	}
	if access == "" {
		return nil, nil
	}

	cred, err := ParseCredential(access, refresh)
	if err != nil {
		m.logger.Warn(ctx, "discarding stored session", "error", err)
		m.drop(ctx)
		return nil, nil
	}

	m.mu.Lock()
	m.cred = cred
	m.mu.Unlock()

	fresh, err := m.EnsureFresh(ctx)
	if err != nil {
		m.logger.Info(ctx, "stored session could not be renewed", "error", err)
		return nil, nil
	}
	return fresh, nil
}

func (m *Manager) install(ctx context.Context, cred *Credential) {
	m.mu.Lock()
	m.cred = cred
	m.mu.Unlock()

	if m.store == nil {
		return
	}
	if err := m.store.Save(ctx, cred.Token(), cred.RefreshToken()); err != nil {
		m.logger.Warn(ctx, "failed to persist session", "error", err)
	}
}

func (m *Manager) drop(ctx context.Context) {
	m.mu.Lock()
	m.cred = nil
	m.mu.Unlock()

	if m.store == nil {
		return
	}
	if err := m.store.Clear(ctx); err != nil {
		m.logger.Warn(ctx, "failed to clear stored tokens", "error", err)
	}
}

func (m *Manager) requestToken(ctx context.Context, form url.Values) (*Credential, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := m.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrUnreachable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrUnreachable, err)
	}

	if resp.StatusCode != http.StatusOK {
		var te tokenError
		_ = json.Unmarshal(body, &te)
		msg := te.Description
		if msg == "" {
			msg = te.Error
		}
		if msg == "" {
			msg = resp.Status
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, fmt.Errorf("%w: identity provider: %s", common.ErrUnreachable, msg)
		}
		return nil, errors.New(msg)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}
	cred, err := ParseCredential(tr.AccessToken, tr.RefreshToken)
	if err != nil {
		return nil, err
	}
	cred.obtainedAt = m.now()
	return cred, nil
}
