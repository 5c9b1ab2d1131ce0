// Package session holds the authenticated state shared by the REST client and
// the connection supervisor.
package session

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// Terminal is the client kind reported at login. Values are wire codes.
type Terminal int

const (
	TerminalDesktop Terminal = 0
	TerminalMobile  Terminal = 1
	TerminalWeb     Terminal = 2
)

func ParseTerminal(value string) (Terminal, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "desktop", "pc":
		return TerminalDesktop, nil
	case "mobile":
		return TerminalMobile, nil
	case "web":
		return TerminalWeb, nil
	default:
		return 0, fmt.Errorf("unknown terminal kind %q", value)
	}
}

func (t Terminal) String() string {
	switch t {
	case TerminalDesktop:
		return "desktop"
	case TerminalMobile:
		return "mobile"
	case TerminalWeb:
		return "web"
	default:
		return fmt.Sprintf("terminal(%d)", int(t))
	}
}

// Credentials are retained for the re-login fallback.
type Credentials struct {
	Identity string
	Secret   string
	Terminal Terminal
}

func (c Credentials) Valid() bool {
	return strings.TrimSpace(c.Identity) != "" && c.Secret != ""
}

// Session is one authenticated identity. Token.Expiry is the access token
// expiry; RefreshExpiry is zero when the server did not report one.
type Session struct {
	Token         *oauth2.Token
	RefreshExpiry time.Time
	SubjectID     int64
	Terminal      Terminal
	IssuedAt      time.Time
}

func (s Session) AccessToken() string {
	if s.Token == nil {
		return ""
	}
	return s.Token.AccessToken
}

func (s Session) RefreshToken() string {
	if s.Token == nil {
		return ""
	}
	return s.Token.RefreshToken
}

func (s Session) AccessExpiry() time.Time {
	if s.Token == nil {
		return time.Time{}
	}
	return s.Token.Expiry
}

// LoggedIn reports whether the access token is present and more than
// threshold away from expiry at now.
func (s Session) LoggedIn(now time.Time, threshold time.Duration) bool {
	if s.AccessToken() == "" || s.Token.Expiry.IsZero() {
		return false
	}
	return now.Before(s.Token.Expiry.Add(-threshold))
}

// RefreshUsable reports whether the refresh token can still be presented.
func (s Session) RefreshUsable(now time.Time) bool {
	if s.RefreshToken() == "" {
		return false
	}
	return s.RefreshExpiry.IsZero() || now.Before(s.RefreshExpiry)
}

// Store guards the current Session. Readers get copies.
type Store struct {
	mu      sync.RWMutex
	current Session
	present bool
}

func NewStore() *Store {
	return &Store{}
}

func (s *Store) Snapshot() (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.present {
		return Session{}, false
	}
	return s.current.clone(), true
}

// Replace installs a brand new session, as after a login.
func (s *Store) Replace(next Session) {
	s.mu.Lock()
	s.current = next.clone()
	s.present = next.AccessToken() != ""
	s.mu.Unlock()
}

// UpdateTokens swaps tokens in place after a refresh. An empty refresh token
// keeps the previous one; a zero refresh expiry keeps the previous expiry.
func (s *Store) UpdateTokens(accessToken string, expiry time.Time, refreshToken string, refreshExpiry time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.present || accessToken == "" {
		return false
	}
	token := *s.current.Token
	token.AccessToken = accessToken
	token.Expiry = expiry
	if refreshToken != "" {
		token.RefreshToken = refreshToken
	}
	s.current.Token = &token
	if !refreshExpiry.IsZero() {
		s.current.RefreshExpiry = refreshExpiry
	}
	return true
}

// Invalidate expires the access token so LoggedIn reports false while the
// identity stays available for logging.
func (s *Store) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.present {
		return
	}
	token := *s.current.Token
	token.Expiry = time.Unix(0, 0)
	s.current.Token = &token
}

func (s *Store) Clear() {
	s.mu.Lock()
	s.current = Session{}
	s.present = false
	s.mu.Unlock()
}

func (s Session) clone() Session {
	if s.Token != nil {
		token := *s.Token
		s.Token = &token
	}
	return s
}
