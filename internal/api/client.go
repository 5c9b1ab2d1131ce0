// Package api is the authenticated REST surface used by message handlers.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"boxim-bot/internal/auth"
	"boxim-bot/internal/logging"
	"boxim-bot/internal/rest"
)

const (
	forcedRefreshInterval = 30 * time.Second
	usernameTTL           = time.Hour
	groupMuteTTL          = time.Hour
	tmpIDDigits           = 16
)

var (
	ErrNoSession        = errors.New("no valid session for api call")
	ErrRefreshThrottled = errors.New("token refresh after rejection is throttled")
	ErrGroupMuted       = errors.New("group is muted")
)

// Authenticator is the part of the auth client API calls depend on.
type Authenticator interface {
	EnsureValid(ctx context.Context) bool
	AccessToken() string
	Refresh(ctx context.Context) (auth.RefreshOutcome, error)
}

type cachedName struct {
	name    string
	fetched time.Time
}

type Client struct {
	rest   *rest.Client
	auth   Authenticator
	logger *logging.Logger
	now    func() time.Time

	mu           sync.Mutex
	lastForced   time.Time
	names        map[int64]cachedName
	mutedSince   map[int64]time.Time
	messagesSent int64
	sendFailures int64
}

func New(restClient *rest.Client, authenticator Authenticator, logger *logging.Logger) *Client {
	if restClient == nil || authenticator == nil {
		panic("api.New: rest client and authenticator must not be nil")
	}
	if logger == nil {
		panic("api.New: logger must not be nil")
	}
	return &Client{
		rest:       restClient,
		auth:       authenticator,
		logger:     logger,
		now:        time.Now,
		names:      make(map[int64]cachedName),
		mutedSince: make(map[int64]time.Time),
	}
}

// Do performs an authenticated call. A rejected token triggers one refresh
// and exactly one retry, at most once per 30 seconds.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	if !c.auth.EnsureValid(ctx) {
		return ErrNoSession
	}
	err := c.rest.Call(ctx, method, path, c.auth.AccessToken(), body, out)
	if err == nil || !rest.IsUnauthorized(err) {
		return err
	}

	c.mu.Lock()
	now := c.now()
	if !c.lastForced.IsZero() && now.Sub(c.lastForced) < forcedRefreshInterval {
		c.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrRefreshThrottled, err)
	}
	c.lastForced = now
	c.mu.Unlock()

	c.logger.Warn("token rejected, refreshing and retrying", logging.Field("path", path))
	outcome, refreshErr := c.auth.Refresh(ctx)
	if refreshErr != nil {
		return fmt.Errorf("refresh after rejection (%s): %w", outcome, refreshErr)
	}
	return c.rest.Call(ctx, method, path, c.auth.AccessToken(), body, out)
}

type UserInfo struct {
	ID        int64  `json:"id"`
	UserName  string `json:"userName"`
	NickName  string `json:"nickName"`
	Sex       int    `json:"sex"`
	Signature string `json:"signature"`
	HeadImage string `json:"headImageThumb"`
	Online    bool   `json:"online"`
}

type GroupInfo struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	OwnerID    int64  `json:"ownerId"`
	Notice     string `json:"notice"`
	IsAllMuted bool   `json:"isAllMuted"`
	IsMuted    bool   `json:"isMuted"`
	IsBanned   bool   `json:"isBanned"`
	Dissolve   bool   `json:"dissolve"`
	Quit       bool   `json:"quit"`
}

type GroupMember struct {
	UserID         int64  `json:"userId"`
	ShowNickName   string `json:"showNickName"`
	RemarkNickName string `json:"remarkNickName"`
	Online         bool   `json:"online"`
	IsMuted        bool   `json:"isMuted"`
	Quit           bool   `json:"quit"`
}

func (c *Client) SelfInfo(ctx context.Context) (UserInfo, error) {
	var out UserInfo
	err := c.Do(ctx, http.MethodGet, "/api/user/self", nil, &out)
	return out, err
}

func (c *Client) UserInfo(ctx context.Context, userID int64) (UserInfo, error) {
	var out UserInfo
	err := c.Do(ctx, http.MethodGet, "/api/user/find/"+strconv.FormatInt(userID, 10), nil, &out)
	return out, err
}

// Username returns the user's nickname, cached for an hour. Lookup
// failures fall back to a generic label and are not cached.
func (c *Client) Username(ctx context.Context, userID int64) string {
	now := c.now()
	c.mu.Lock()
	cached, ok := c.names[userID]
	c.mu.Unlock()
	if ok && now.Sub(cached.fetched) < usernameTTL {
		return cached.name
	}

	info, err := c.UserInfo(ctx, userID)
	if err != nil || info.NickName == "" {
		if err != nil {
			c.logger.Debug("username lookup failed", logging.Field("user_id", userID), logging.Field("error", err.Error()))
		}
		return fallbackName(userID)
	}
	c.mu.Lock()
	c.names[userID] = cachedName{name: info.NickName, fetched: now}
	c.mu.Unlock()
	return info.NickName
}

func fallbackName(userID int64) string {
	return "用户" + strconv.FormatInt(userID, 10)
}

func (c *Client) GroupInfo(ctx context.Context, groupID int64) (GroupInfo, error) {
	var out GroupInfo
	err := c.Do(ctx, http.MethodGet, "/api/group/find/"+strconv.FormatInt(groupID, 10), nil, &out)
	return out, err
}

func (c *Client) GroupMembers(ctx context.Context, groupID int64) ([]GroupMember, error) {
	var out []GroupMember
	err := c.Do(ctx, http.MethodGet, "/api/group/members/"+strconv.FormatInt(groupID, 10), nil, &out)
	return out, err
}

func (c *Client) JoinedGroups(ctx context.Context) ([]GroupInfo, error) {
	var out []GroupInfo
	err := c.Do(ctx, http.MethodGet, "/api/group/list", nil, &out)
	return out, err
}
