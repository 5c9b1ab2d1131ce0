// Package runtime starts and stops the bot service on behalf of the process
// entrypoint and the console view.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"boxim-bot/internal/bot"
	"boxim-bot/internal/config"
	"boxim-bot/internal/logging"
)

type Controller struct {
	rootCtx    context.Context
	newService func(config.Options, *logging.Logger, StartHooks) (Service, error)

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
	current *bot.Bot
	wg      sync.WaitGroup
}

type StartHooks struct {
	OnStatus func(string)
	// OnBot is called with each bot instance before it runs.
	OnBot  func(*bot.Bot)
	OnExit func(error)
}

func NewController(rootCtx context.Context) *Controller {
	if rootCtx == nil {
		rootCtx = context.Background()
	}
	return &Controller{
		rootCtx: rootCtx,
		newService: func(opts config.Options, logger *logging.Logger, hooks StartHooks) (Service, error) {
			return NewServiceWithHooks(opts, logger, hooks)
		},
	}
}

func (c *Controller) Start(opts config.Options, logger *logging.Logger, hooks StartHooks) error {
	if logger == nil {
		panic("runtime.Controller.Start: logger must not be nil")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return fmt.Errorf("bot is already running")
	}
	if err := config.ValidateRequired(opts); err != nil {
		return err
	}
	logger.Debug("runtime start requested",
		logging.Field("user", opts.Username),
		logging.Field("database", opts.DatabasePath),
	)

	onBot := hooks.OnBot
	hooks.OnBot = func(b *bot.Bot) {
		c.mu.Lock()
		c.current = b
		c.mu.Unlock()
		if onBot != nil {
			onBot(b)
		}
	}
	service, err := c.newService(opts, logger, hooks)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(c.rootCtx)
	c.cancel = cancel
	c.running = true
	c.wg.Go(func() {
		defer cancel()
		runErr := service.RunContext(ctx)
		if errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded) {
			logger.Debug("runtime service exited due to context cancellation", logging.Field("error", runErr))
			runErr = nil
		} else if runErr != nil {
			logger.Warn("runtime service exited with error", logging.Field("error", runErr))
		} else {
			logger.Info("runtime service exited")
		}
		c.mu.Lock()
		c.running = false
		c.cancel = nil
		c.mu.Unlock()

		if hooks.OnExit != nil {
			hooks.OnExit(runErr)
		}
	})

	return nil
}

func (c *Controller) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (c *Controller) Wait(timeout time.Duration) bool {
	waitDone := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(waitDone)
	}()
	if timeout <= 0 {
		<-waitDone
		return true
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-waitDone:
		return true
	case <-timer.C:
		return false
	}
}

func (c *Controller) StopAndWait(timeout time.Duration) bool {
	c.Stop()
	return c.Wait(timeout)
}

func (c *Controller) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Status reports the most recent bot instance, which may have exited.
func (c *Controller) Status() (bot.Status, bool) {
	c.mu.Lock()
	current := c.current
	c.mu.Unlock()
	if current == nil {
		return bot.Status{}, false
	}
	return current.Status(), true
}
