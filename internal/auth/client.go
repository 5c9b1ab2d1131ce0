// Package auth obtains and keeps a valid session for the bot account.
package auth

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/oauth2"

	"boxim-bot/internal/logging"
	"boxim-bot/internal/rest"
	"boxim-bot/internal/session"
)

const (
	pathLogin    = "/api/login"
	pathRefresh  = "/api/refresh"
	pathSelfInfo = "/api/user/self"

	// Used when the login response omits a lifetime.
	fallbackAccessLifetime = 30 * time.Minute
)

type Config struct {
	RefreshThreshold time.Duration
	RefreshCooldown  time.Duration
	CheckCooldown    time.Duration
}

// RefreshOutcome says which path a Refresh call took. The cooldown and
// in-flight outcomes mean the caller should assume the session is still
// valid.
type RefreshOutcome int

const (
	RefreshPerformed RefreshOutcome = iota
	RefreshReloggedIn
	RefreshCoolingDown
	RefreshInFlight
	RefreshFailed
)

func (o RefreshOutcome) String() string {
	switch o {
	case RefreshPerformed:
		return "refreshed"
	case RefreshReloggedIn:
		return "relogged in"
	case RefreshCoolingDown:
		return "cooling down"
	case RefreshInFlight:
		return "in flight"
	default:
		return "failed"
	}
}

type Client struct {
	rest   *rest.Client
	store  *session.Store
	cfg    Config
	logger *logging.Logger
	now    func() time.Time

	refreshing atomic.Bool

	mu                 sync.Mutex
	creds              session.Credentials
	lastRefreshAttempt time.Time
	lastCheck          time.Time
}

type loginRequest struct {
	Terminal session.Terminal `json:"terminal"`
	UserName string           `json:"userName"`
	Password string           `json:"password"`
}

type refreshRequest struct {
	RefreshToken string           `json:"refreshToken"`
	Terminal     session.Terminal `json:"terminal"`
}

type tokenGrant struct {
	AccessToken           string `json:"accessToken"`
	AccessTokenExpiresIn  int64  `json:"accessTokenExpiresIn"`
	RefreshToken          string `json:"refreshToken"`
	RefreshTokenExpiresIn int64  `json:"refreshTokenExpiresIn"`
}

type selfInfo struct {
	ID int64 `json:"id"`
}

func New(restClient *rest.Client, store *session.Store, creds session.Credentials, cfg Config, logger *logging.Logger) *Client {
	if restClient == nil {
		panic("auth.New: rest client must not be nil")
	}
	if store == nil {
		panic("auth.New: session store must not be nil")
	}
	if logger == nil {
		panic("auth.New: logger must not be nil")
	}
	return &Client{
		rest:   restClient,
		store:  store,
		cfg:    cfg,
		creds:  creds,
		logger: logger,
		now:    time.Now,
	}
}

// Login authenticates with creds and replaces the stored session. On any
// failure the store is cleared so no partially valid session remains.
func (c *Client) Login(ctx context.Context, creds session.Credentials) (session.Session, error) {
	if !creds.Valid() {
		c.store.Clear()
		return session.Session{}, &AuthError{Op: "login", Err: errors.New("identity and secret are required")}
	}
	c.logger.Info("logging in", logging.Field("identity", creds.Identity), logging.Field("terminal", creds.Terminal.String()))

	grant := tokenGrant{}
	req := loginRequest{Terminal: creds.Terminal, UserName: creds.Identity, Password: creds.Secret}
	if err := c.rest.Call(ctx, http.MethodPost, pathLogin, "", req, &grant); err != nil {
		c.store.Clear()
		return session.Session{}, &AuthError{Op: "login", Err: err}
	}
	if grant.AccessToken == "" {
		c.store.Clear()
		return session.Session{}, &AuthError{Op: "login", Err: errors.New("response carried no access token")}
	}

	subject, err := c.resolveSubject(ctx, grant.AccessToken)
	if err != nil {
		c.store.Clear()
		return session.Session{}, &AuthError{Op: "login", Err: err}
	}

	now := c.now()
	next := session.Session{
		Token: &oauth2.Token{
			AccessToken:  grant.AccessToken,
			RefreshToken: grant.RefreshToken,
			Expiry:       expiryAfter(now, grant.AccessTokenExpiresIn, fallbackAccessLifetime),
		},
		RefreshExpiry: expiryAfter(now, grant.RefreshTokenExpiresIn, 0),
		SubjectID:     subject,
		Terminal:      creds.Terminal,
		IssuedAt:      now,
	}
	c.store.Replace(next)

	c.mu.Lock()
	c.creds = creds
	c.lastRefreshAttempt = now
	c.mu.Unlock()

	c.logger.Info("login succeeded",
		logging.Field("subject", subject),
		logging.Field("access_expiry", next.Token.Expiry.Format(time.RFC3339)),
	)
	return next, nil
}

// Relogin replaces the session using the stored credentials.
func (c *Client) Relogin(ctx context.Context) error {
	c.mu.Lock()
	creds := c.creds
	c.mu.Unlock()
	_, err := c.Login(ctx, creds)
	return err
}

// Refresh exchanges the refresh token for a new access token, falling back
// to a full login. Concurrent callers never block: the second one gets
// RefreshInFlight. Attempts closer together than the cooldown get
// RefreshCoolingDown.
func (c *Client) Refresh(ctx context.Context) (RefreshOutcome, error) {
	if !c.refreshing.CompareAndSwap(false, true) {
		c.logger.Debug("token refresh already in flight")
		return RefreshInFlight, nil
	}
	defer c.refreshing.Store(false)

	now := c.now()
	c.mu.Lock()
	if !c.lastRefreshAttempt.IsZero() && now.Sub(c.lastRefreshAttempt) < c.cfg.RefreshCooldown {
		c.mu.Unlock()
		c.logger.Debug("token refresh skipped during cooldown")
		return RefreshCoolingDown, nil
	}
	c.lastRefreshAttempt = now
	c.mu.Unlock()

	current, ok := c.store.Snapshot()
	if ok && current.RefreshUsable(now) {
		err := c.exchangeRefreshToken(ctx, current)
		if err == nil {
			return RefreshPerformed, nil
		}
		c.logger.Warn("token refresh failed, falling back to login", logging.Field("error", err))
	}

	if err := c.Relogin(ctx); err != nil {
		c.store.Invalidate()
		c.logger.Error("re-login after refresh failure failed", logging.Field("error", err))
		var authErr *AuthError
		if errors.As(err, &authErr) {
			return RefreshFailed, authErr
		}
		return RefreshFailed, &AuthError{Op: "refresh", Err: err}
	}
	return RefreshReloggedIn, nil
}

func (c *Client) exchangeRefreshToken(ctx context.Context, current session.Session) error {
	grant := tokenGrant{}
	req := refreshRequest{RefreshToken: current.RefreshToken(), Terminal: current.Terminal}
	if err := c.rest.Call(ctx, http.MethodPost, pathRefresh, "", req, &grant); err != nil {
		return err
	}
	if grant.AccessToken == "" {
		return errors.New("refresh response carried no access token")
	}
	now := c.now()
	if !c.store.UpdateTokens(
		grant.AccessToken,
		expiryAfter(now, grant.AccessTokenExpiresIn, fallbackAccessLifetime),
		grant.RefreshToken,
		expiryAfter(now, grant.RefreshTokenExpiresIn, 0),
	) {
		return errors.New("session vanished during refresh")
	}
	c.logger.Info("access token refreshed", logging.Field("rotated_refresh_token", grant.RefreshToken != ""))
	return nil
}

// EnsureValid refreshes when the token is absent or near expiry. Checks
// inside the check cooldown return true without looking.
func (c *Client) EnsureValid(ctx context.Context) bool {
	now := c.now()
	c.mu.Lock()
	if !c.lastCheck.IsZero() && now.Sub(c.lastCheck) < c.cfg.CheckCooldown {
		c.mu.Unlock()
		return true
	}
	c.lastCheck = now
	c.mu.Unlock()

	current, ok := c.store.Snapshot()
	if ok && current.LoggedIn(now, c.cfg.RefreshThreshold) {
		return true
	}
	outcome, err := c.Refresh(ctx)
	if err != nil {
		return false
	}
	c.logger.Debug("ensure valid refreshed session", logging.Field("outcome", outcome.String()))
	return true
}

func (c *Client) IsLoggedIn() bool {
	current, ok := c.store.Snapshot()
	return ok && current.LoggedIn(c.now(), c.cfg.RefreshThreshold)
}

func (c *Client) AccessToken() string {
	current, _ := c.store.Snapshot()
	return current.AccessToken()
}

func (c *Client) SubjectID() int64 {
	current, _ := c.store.Snapshot()
	return current.SubjectID
}

func (c *Client) Session() (session.Session, bool) {
	return c.store.Snapshot()
}

func (c *Client) resolveSubject(ctx context.Context, accessToken string) (int64, error) {
	if id, ok := subjectFromToken(accessToken); ok {
		return id, nil
	}
	c.logger.Debug("token carried no subject claim, asking for self info")
	info := selfInfo{}
	if err := c.rest.Call(ctx, http.MethodGet, pathSelfInfo, accessToken, nil, &info); err != nil {
		return 0, err
	}
	if info.ID == 0 {
		return 0, errors.New("self info carried no id")
	}
	return info.ID, nil
}

func expiryAfter(now time.Time, seconds int64, fallback time.Duration) time.Time {
	if seconds > 0 {
		return now.Add(time.Duration(seconds) * time.Second)
	}
	if fallback > 0 {
		return now.Add(fallback)
	}
	return time.Time{}
}
