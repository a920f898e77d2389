package session

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrijs2005/ioukeeper/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// StringList decodes a claim that may be a single string or a list of strings.
type StringList []string

func (s *StringList) UnmarshalJSON(b []byte) error {
	var one string
	if err := json.Unmarshal(b, &one); err == nil {
		if one == "" {
			*s = nil
		} else {
			*s = StringList{one}
		}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return err
	}
	*s = many
	return nil
}

// Claims are the access token claims the client cares about.
type Claims struct {
	jwt.RegisteredClaims
	Email             string     `json:"email,omitempty"`
	PreferredUsername string     `json:"preferred_username,omitempty"`
	Name              string     `json:"name,omitempty"`
	Organization      StringList `json:"organization,omitempty"`
	RealmAccess       struct {
		Roles []string `json:"roles,omitempty"`
	} `json:"realm_access"`
}

// Credential is an authenticated session. It is only built by parsing a
// token, so its claims always match the token string.
type Credential struct {
	token        string
	refreshToken string
	claims       Claims
	expiresAt    time.Time
	// obtainedAt is when the identity provider issued the token to us. It is
	// zero for tokens loaded from the store.
	obtainedAt time.Time
}

// ParseCredential decodes the claims of an access token. Signatures are not
// verified here; the engine does that on every call. A token without an
// expiry is rejected.
func ParseCredential(token, refreshToken string) (*Credential, error) {
	if token == "" {
		return nil, common.ErrInvalidToken
	}

	var claims Claims
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, &claims); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrInvalidToken, err)
	}
	if claims.ExpiresAt == nil {
		return nil, fmt.Errorf("%w: missing exp claim", common.ErrInvalidToken)
	}

	return &Credential{
		token:        token,
		refreshToken: refreshToken,
		claims:       claims,
		expiresAt:    claims.ExpiresAt.Time,
	}, nil
}

func (c *Credential) Token() string        { return c.token }
func (c *Credential) RefreshToken() string { return c.refreshToken }
func (c *Credential) Subject() string      { return c.claims.Subject }
func (c *Credential) Email() string        { return c.claims.Email }
func (c *Credential) Username() string     { return c.claims.PreferredUsername }
func (c *Credential) Name() string         { return c.claims.Name }
func (c *Credential) ExpiresAt() time.Time { return c.expiresAt }

// Organization returns a copy of the organization claim.
func (c *Credential) Organization() []string {
	return append([]string(nil), c.claims.Organization...)
}

// Roles returns a copy of the realm roles.
func (c *Credential) Roles() []string {
	return append([]string(nil), c.claims.RealmAccess.Roles...)
}

// Expired reports whether the access token is no longer valid at now.
func (c *Credential) Expired(now time.Time) bool {
	return !now.Before(c.expiresAt)
}

// ExpiresWithin reports whether the token expires in less than d from now.
func (c *Credential) ExpiresWithin(now time.Time, d time.Duration) bool {
	return c.expiresAt.Sub(now) < d
}

// NeedsRefresh reports whether the token is due for renewal at now: it
// expires within window, or within half its lifetime when that is shorter.
// A token with a lifetime under 2*window is therefore not renewed right after
// it was issued.
func (c *Credential) NeedsRefresh(now time.Time, window time.Duration) bool {
	if life := c.lifetime(); life > 0 && life/2 < window {
		window = life / 2
	}
	return c.ExpiresWithin(now, window)
}

func (c *Credential) lifetime() time.Duration {
	start := c.obtainedAt
	if start.IsZero() && c.claims.IssuedAt != nil {
		start = c.claims.IssuedAt.Time
	}
	if start.IsZero() {
		return 0
	}
	return c.expiresAt.Sub(start)
}
