package runtime

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"boxim-bot/internal/config"
	"boxim-bot/internal/logging"
	"boxim-bot/internal/retry"
	"boxim-bot/internal/supervisor"
)

func testLogger() *logging.Logger {
	logger := logging.New(false)
	logger.SetOutput(io.Discard)
	return logger
}

func validOptions() config.Options {
	return config.Options{
		BaseURL:              "https://chat.example.com",
		WSURL:                "wss://chat.example.com/im",
		Username:             "bot",
		Password:             "pw",
		Terminal:             "desktop",
		RequestTimeout:       30,
		ConnectionTimeout:    30,
		HeartbeatInterval:    15,
		ReconnectDelay:       3,
		MaxReconnectDelay:    60,
		MaxReconnectAttempts: 10,
	}
}

type serviceFunc func(ctx context.Context) error

func (f serviceFunc) RunContext(ctx context.Context) error { return f(ctx) }

func fastPolicy() *retry.Exponential {
	return &retry.Exponential{Base: time.Millisecond, Max: 4 * time.Millisecond}
}

func TestRunWithRestartsRetriesUntilForcedOffline(t *testing.T) {
	var calls atomic.Int32
	err := runWithRestarts(context.Background(), fastPolicy(), testLogger(), func(context.Context) error {
		if calls.Add(1) < 3 {
			return errors.New("connect: dial refused")
		}
		return supervisor.ErrForcedOffline
	})
	if !errors.Is(err, supervisor.ErrForcedOffline) {
		t.Fatalf("runWithRestarts() error = %v, want ErrForcedOffline", err)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("run called %d times, want 3", got)
	}
}

func TestRunWithRestartsStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	err := runWithRestarts(ctx, fastPolicy(), testLogger(), func(ctx context.Context) error {
		if calls.Add(1) == 2 {
			cancel()
			<-ctx.Done()
			return ctx.Err()
		}
		return errors.New("boom")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("runWithRestarts() error = %v, want context.Canceled", err)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("run called %d times, want 2", got)
	}
}

func TestRunWithRestartsUsesPolicyDelays(t *testing.T) {
	policy := fastPolicy()
	var calls atomic.Int32
	_ = runWithRestarts(context.Background(), policy, testLogger(), func(context.Context) error {
		if calls.Add(1) <= 4 {
			return errors.New("fail")
		}
		return supervisor.ErrForcedOffline
	})
	if got := policy.Attempts(); got != 4 {
		t.Fatalf("policy handed out %d delays, want 4", got)
	}
}

func TestNewServiceValidatesOptions(t *testing.T) {
	opts := validOptions()
	opts.Password = ""
	if _, err := NewService(opts, testLogger()); err == nil {
		t.Fatal("NewService() accepted a missing password")
	}

	opts = validOptions()
	opts.WSURL = "https://chat.example.com/im"
	if _, err := NewService(opts, testLogger()); err == nil {
		t.Fatal("NewService() accepted a non-websocket URL")
	}

	opts = validOptions()
	opts.Terminal = "fax"
	if _, err := NewService(opts, testLogger()); err == nil {
		t.Fatal("NewService() accepted an unknown terminal")
	}

	svc, err := NewService(validOptions(), testLogger())
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	if svc.opts.Endpoints.WebSocketURL != "wss://chat.example.com/im" || svc.opts.Timings.Heartbeat != 15*time.Second {
		t.Fatalf("service options = %+v", svc.opts)
	}
}

func TestControllerLifecycle(t *testing.T) {
	c := NewController(context.Background())
	started := make(chan struct{})
	c.newService = func(config.Options, *logging.Logger, StartHooks) (Service, error) {
		return serviceFunc(func(ctx context.Context) error {
			close(started)
			<-ctx.Done()
			return ctx.Err()
		}), nil
	}

	exited := make(chan error, 1)
	if err := c.Start(validOptions(), testLogger(), StartHooks{OnExit: func(err error) { exited <- err }}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	<-started
	if !c.IsRunning() {
		t.Fatal("IsRunning() = false after Start")
	}
	if err := c.Start(validOptions(), testLogger(), StartHooks{}); err == nil {
		t.Fatal("second Start() succeeded")
	}
	if _, ok := c.Status(); ok {
		t.Fatal("Status() reported a bot before one was created")
	}

	if !c.StopAndWait(2 * time.Second) {
		t.Fatal("StopAndWait() timed out")
	}
	if c.IsRunning() {
		t.Fatal("IsRunning() = true after stop")
	}
	if err := <-exited; err != nil {
		t.Fatalf("OnExit error = %v, want nil for a cancelled run", err)
	}
}

func TestControllerReportsServiceError(t *testing.T) {
	c := NewController(context.Background())
	c.newService = func(config.Options, *logging.Logger, StartHooks) (Service, error) {
		return serviceFunc(func(context.Context) error { return supervisor.ErrForcedOffline }), nil
	}
	exited := make(chan error, 1)
	if err := c.Start(validOptions(), testLogger(), StartHooks{OnExit: func(err error) { exited <- err }}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !c.Wait(2 * time.Second) {
		t.Fatal("Wait() timed out")
	}
	if err := <-exited; !errors.Is(err, supervisor.ErrForcedOffline) {
		t.Fatalf("OnExit error = %v, want ErrForcedOffline", err)
	}
}

func TestControllerRejectsInvalidOptions(t *testing.T) {
	c := NewController(context.Background())
	opts := validOptions()
	opts.Username = ""
	if err := c.Start(opts, testLogger(), StartHooks{}); err == nil {
		t.Fatal("Start() accepted a missing username")
	}
	if c.IsRunning() {
		t.Fatal("IsRunning() = true after a rejected start")
	}
}
