package runtime

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"boxim-bot/internal/bot"
	"boxim-bot/internal/config"
	"boxim-bot/internal/logging"
	"boxim-bot/internal/retry"
	"boxim-bot/internal/session"
	"boxim-bot/internal/store"
	"boxim-bot/internal/supervisor"
)

const (
	restartBase        = 30 * time.Second
	restartCap         = 300 * time.Second
	restartMaxExponent = 5
)

type Service interface {
	RunContext(ctx context.Context) error
}

// BotService runs the bot and restarts it after failures until the context
// ends or the server forces the session offline.
type BotService struct {
	opts         bot.Options
	databasePath string
	logger       *logging.Logger
	hooks        StartHooks
	backoff      backoff.BackOff
}

func NewService(opts config.Options, logger *logging.Logger) (*BotService, error) {
	return NewServiceWithHooks(opts, logger, StartHooks{})
}

func NewServiceWithHooks(opts config.Options, logger *logging.Logger, hooks StartHooks) (*BotService, error) {
	if logger == nil {
		panic("runtime.NewServiceWithHooks: logger must not be nil")
	}
	if err := config.ValidateRequired(opts); err != nil {
		return nil, err
	}
	endpoints, err := config.BuildEndpoints(opts.BaseURL, opts.WSURL)
	if err != nil {
		return nil, err
	}
	terminal, err := session.ParseTerminal(opts.Terminal)
	if err != nil {
		return nil, err
	}
	logger.Debug("constructed service endpoints",
		logging.Field("base_url", endpoints.BaseURL),
		logging.Field("ws_url", endpoints.WebSocketURL),
		logging.Field("origin", endpoints.Origin),
	)

	timings := opts.Timings()
	return &BotService{
		opts: bot.Options{
			Credentials: session.Credentials{
				Identity: strings.TrimSpace(opts.Username),
				Secret:   opts.Password,
				Terminal: terminal,
			},
			Endpoints:  endpoints,
			Timings:    timings,
			VerifyTLS:  opts.VerifyTLS,
			HTTPClient: &http.Client{Timeout: timings.Request},
		},
		databasePath: strings.TrimSpace(opts.DatabasePath),
		logger:       logger,
		hooks:        hooks,
		backoff:      &retry.Exponential{Base: restartBase, Max: restartCap, MaxExponent: restartMaxExponent},
	}, nil
}

func (s *BotService) RunContext(ctx context.Context) error {
	opts := s.opts
	if s.databasePath != "" {
		st, err := store.Open(ctx, s.databasePath)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				s.logger.Warn("closing database failed", logging.Field("error", closeErr))
			}
		}()
		opts.Store = st
		s.logger.Info("database ready", logging.Field("path", s.databasePath))
	}

	return runWithRestarts(ctx, s.backoff, s.logger, func(ctx context.Context) error {
		b, err := bot.New(opts, s.logger.Named("bot"), bot.Callbacks{OnStatusChange: s.hooks.OnStatus})
		if err != nil {
			return err
		}
		if s.hooks.OnBot != nil {
			s.hooks.OnBot(b)
		}
		return b.RunContext(ctx)
	})
}

// runWithRestarts calls run until it ends for a reason a restart cannot fix.
// A run that lasted longer than the restart cap resets the backoff.
func runWithRestarts(ctx context.Context, policy backoff.BackOff, logger *logging.Logger, run func(context.Context) error) error {
	policy.Reset()
	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		started := time.Now()
		runErr := run(ctx)
		switch {
		case ctx.Err() != nil:
			return struct{}{}, backoff.Permanent(ctx.Err())
		case runErr == nil:
			return struct{}{}, nil
		case errors.Is(runErr, supervisor.ErrForcedOffline):
			logger.Warn("session forced offline, not restarting")
			return struct{}{}, backoff.Permanent(runErr)
		}
		if time.Since(started) > restartCap {
			policy.Reset()
		}
		logger.Error("bot run failed", logging.Field("attempt", attempt), logging.Field("error", runErr))
		return struct{}{}, runErr
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Info("restarting bot", logging.Field("in", next.String()))
		}),
	)
	return err
}
