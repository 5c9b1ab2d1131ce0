// Package bot wires the session, connection and message handling pieces
// into one running chat bot.
package bot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"boxim-bot/internal/api"
	"boxim-bot/internal/auth"
	"boxim-bot/internal/config"
	"boxim-bot/internal/dispatch"
	"boxim-bot/internal/guard"
	"boxim-bot/internal/logging"
	"boxim-bot/internal/rest"
	"boxim-bot/internal/runstatus"
	"boxim-bot/internal/session"
	"boxim-bot/internal/store"
	"boxim-bot/internal/supervisor"
)

const (
	statusLogInterval = 10 * time.Minute
	statSaveInterval  = 30 * time.Minute
)

type Options struct {
	Credentials session.Credentials
	Endpoints   config.Endpoints
	Timings     config.Timings
	VerifyTLS   bool

	// HTTPClient defaults to one with the request timeout.
	HTTPClient *http.Client
	// Store is optional; without it activity is not persisted.
	Store *store.Store

	// Zero values keep the supervisor defaults. Tests shorten them.
	AuthSettle  time.Duration
	StartupWait time.Duration
	DialPause   time.Duration
}

type Callbacks struct {
	OnStatusChange func(string)
}

type Bot struct {
	opts   Options
	logger *logging.Logger
	hooks  Callbacks
	now    func() time.Time

	sessions   *session.Store
	auth       *auth.Client
	api        *api.Client
	dispatcher *dispatch.Dispatcher
	guard      *guard.Guard
	store      *store.Store
	supervisor *supervisor.Supervisor

	status   runtimeStatusState
	activity activity
	started  time.Time
}

func New(opts Options, logger *logging.Logger, hooks Callbacks) (*Bot, error) {
	if logger == nil {
		panic("bot.New: logger must not be nil")
	}
	if !opts.Credentials.Valid() {
		return nil, fmt.Errorf("bot credentials are required")
	}
	if strings.TrimSpace(opts.Endpoints.BaseURL) == "" || strings.TrimSpace(opts.Endpoints.WebSocketURL) == "" {
		return nil, fmt.Errorf("bot endpoints are required")
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timings.Request}
	}

	b := &Bot{
		opts:     opts,
		logger:   logger,
		hooks:    hooks,
		now:      time.Now,
		sessions: session.NewStore(),
		store:    opts.Store,
	}

	restClient := rest.New(httpClient, opts.Endpoints.BaseURL, opts.Endpoints.Origin, logger.Named("rest"))
	b.auth = auth.New(restClient, b.sessions, opts.Credentials, auth.Config{
		RefreshThreshold: opts.Timings.RefreshThreshold,
		RefreshCooldown:  opts.Timings.RefreshCooldown,
		CheckCooldown:    opts.Timings.CheckCooldown,
	}, logger.Named("auth"))
	b.api = api.New(restClient, b.auth, logger.Named("api"))

	var resetter guard.Resetter
	if b.store != nil {
		resetter = b.store
	}
	b.guard = guard.New(guard.DefaultConfig(), resetter, logger.Named("guard"))
	b.dispatcher = dispatch.New(b.handlers(), logger.Named("dispatch"))

	header := http.Header{}
	if opts.Endpoints.Origin != "" {
		header.Set("Origin", opts.Endpoints.Origin)
	}
	b.supervisor = supervisor.New(supervisor.Config{
		URL:                  opts.Endpoints.WebSocketURL,
		Header:               header,
		ConnectTimeout:       opts.Timings.Connect,
		HeartbeatInterval:    opts.Timings.Heartbeat,
		ReconnectBase:        opts.Timings.ReconnectBase,
		ReconnectCap:         opts.Timings.ReconnectCap,
		MaxReconnectAttempts: opts.Timings.MaxReconnectAttempts,
		VerifyTLS:            opts.VerifyTLS,
		AuthSettle:           opts.AuthSettle,
		StartupWait:          opts.StartupWait,
		DialPause:            opts.DialPause,
	}, b.auth, b.dispatcher, logger.Named("ws"), supervisor.WithStateHook(b.onSupervisorState))
	return b, nil
}

func (b *Bot) Run() error {
	return b.RunContext(context.Background())
}

// RunContext logs in, connects and blocks until ctx ends or the server
// forces the session offline.
func (b *Bot) RunContext(ctx context.Context) error {
	b.started = b.now()
	b.activity.rollover(b.started)
	b.logger.Info("bot starting",
		logging.Field("user", b.opts.Credentials.Identity),
		logging.Field("terminal", b.opts.Credentials.Terminal.String()),
		logging.Field("ws_url", b.opts.Endpoints.WebSocketURL),
	)

	b.setRuntimeStatus(runstatus.LoggingIn)
	sess, err := b.auth.Login(ctx, b.opts.Credentials)
	if err != nil {
		b.setRuntimeStatus(runstatus.AuthFailed)
		return err
	}
	b.setRuntimeStatus(runstatus.Authenticated)
	b.logger.Info("logged in",
		logging.Field("subject_id", sess.SubjectID),
		logging.Field("access_expiry", sess.AccessExpiry().Format(time.DateTime)),
	)
	b.restoreWarnings(ctx)

	if err := b.supervisor.Connect(ctx); err != nil {
		b.supervisor.Disconnect()
		if errors.Is(err, supervisor.ErrForcedOffline) {
			return err
		}
		return fmt.Errorf("connect: %w", err)
	}
	b.logger.Info("bot running, listening for messages")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := b.supervisor.Wait(gctx)
		if gctx.Err() != nil && !errors.Is(err, supervisor.ErrForcedOffline) {
			return nil
		}
		if err == nil {
			return supervisor.ErrStopped
		}
		return err
	})
	g.Go(func() error {
		b.maintain(gctx)
		return nil
	})
	runErr := g.Wait()

	b.supervisor.Disconnect()
	b.saveDailyStat(context.WithoutCancel(ctx))
	if errors.Is(runErr, supervisor.ErrForcedOffline) {
		b.setRuntimeStatus(runstatus.ForcedOffline)
		return runErr
	}
	b.setRuntimeStatus(runstatus.Disconnected)
	if runErr != nil {
		return runErr
	}
	b.logger.Info("bot stopped")
	return ctx.Err()
}

// maintain logs a heartbeat status line and persists daily stats until
// ctx ends.
func (b *Bot) maintain(ctx context.Context) {
	statusTicker := time.NewTicker(statusLogInterval)
	defer statusTicker.Stop()
	saveTicker := time.NewTicker(statSaveInterval)
	defer saveTicker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-statusTicker.C:
			b.logStatus()
			b.guard.Sweep()
		case <-saveTicker.C:
			b.saveDailyStat(ctx)
		}
	}
}

func (b *Bot) logStatus() {
	st := b.Status()
	if !st.Connected {
		b.logger.Info("bot running, not connected", logging.Field("state", st.State))
		return
	}
	silence := "never"
	if !st.LastMessageAt.IsZero() {
		silence = b.now().Sub(st.LastMessageAt).Round(time.Second).String()
	}
	b.logger.Info("bot running",
		logging.Field("last_message", silence),
		logging.Field("messages_today", st.MessagesToday),
		logging.Field("reconnects", st.Reconnects),
	)
}

func (b *Bot) restoreWarnings(ctx context.Context) {
	if b.store == nil {
		return
	}
	warned, err := b.store.ListWarned(ctx)
	if err != nil {
		b.logger.Warn("could not load spam warnings", logging.Field("error", err.Error()))
		return
	}
	restored := 0
	for _, u := range warned {
		if b.guard.Restore(u.ID, u.SpamWarnings, u.LastWarningAt) {
			restored++
			continue
		}
		if err := b.store.ClearSpamWarnings(ctx, u.ID); err != nil {
			b.logger.Warn("clearing expired spam warning failed", logging.Field("user_id", u.ID), logging.Field("error", err.Error()))
		}
	}
	if len(warned) > 0 {
		b.logger.Debug("restored spam warnings",
			logging.Field("restored", restored),
			logging.Field("expired", len(warned)-restored),
		)
	}
}

func (b *Bot) saveDailyStat(ctx context.Context) {
	day, count := b.activity.today()
	b.saveStat(ctx, day, count)
}

func (b *Bot) saveStat(ctx context.Context, day time.Time, count int64) {
	if b.store == nil || day.IsZero() {
		return
	}
	stat := store.DailyStat{Date: day.Format(store.DateLayout), MessageCount: count}
	if active, err := b.store.ActiveSince(ctx, day); err == nil {
		stat.ActiveUsers = active
	}
	if err := b.store.SaveDailyStat(ctx, stat); err != nil {
		b.logger.Warn("saving daily stats failed", logging.Field("error", err.Error()))
		return
	}
	b.logger.Debug("daily stats saved", logging.Field("date", stat.Date), logging.Field("messages", stat.MessageCount))
}

func (b *Bot) onSupervisorState(_, to supervisor.State) {
	switch to {
	case supervisor.StateConnecting, supervisor.StateAuthenticating:
		b.setRuntimeStatus(runstatus.Connecting)
	case supervisor.StateActive:
		b.setRuntimeStatus(runstatus.Connected)
	case supervisor.StateReconnecting, supervisor.StateClosing:
		b.setRuntimeStatus(runstatus.Reconnecting)
	case supervisor.StateReLoggingIn:
		b.setRuntimeStatus(runstatus.ReLoggingIn)
	case supervisor.StateForcedOffline:
		b.setRuntimeStatus(runstatus.ForcedOffline)
	case supervisor.StateStopped:
		b.setRuntimeStatus(runstatus.Disconnected)
	}
}

type runtimeStatusState struct {
	mu      sync.Mutex
	current string
}

func (s *runtimeStatusState) update(status string) (string, string, bool) {
	trimmed := strings.TrimSpace(status)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == trimmed {
		return s.current, trimmed, false
	}
	previous := s.current
	s.current = trimmed
	return previous, trimmed, true
}

func (s *runtimeStatusState) get() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (b *Bot) setRuntimeStatus(status string) {
	previous, next, changed := b.status.update(status)
	if !changed {
		return
	}
	b.logger.Debug("runtime status transition",
		logging.Field("from", previous),
		logging.Field("to", next),
	)
	if b.hooks.OnStatusChange != nil {
		b.hooks.OnStatusChange(next)
	}
}
