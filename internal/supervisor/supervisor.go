package supervisor

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"boxim-bot/internal/dispatch"
	"boxim-bot/internal/logging"
	"boxim-bot/internal/protocol"
	"boxim-bot/internal/retry"
)

// Authenticator is the slice of the auth client the connection loop needs.
type Authenticator interface {
	EnsureValid(ctx context.Context) bool
	AccessToken() string
	Relogin(ctx context.Context) error
}

// FrameHandler consumes every inbound text frame. Returning
// dispatch.ErrForceOffline ends the session for good.
type FrameHandler interface {
	Dispatch(ctx context.Context, raw []byte) error
}

type Snapshot struct {
	State               State
	ConnectionID        string
	AttemptCount        int
	ConsecutiveFailures int
	Reconnects          int
	LastConnectedAt     time.Time
	LastMessageAt       time.Time
	LastError           string
}

func (s Snapshot) Connected() bool { return s.State == StateActive }

type Supervisor struct {
	cfg     Config
	auth    Authenticator
	handler FrameHandler
	logger  *logging.Logger
	dialer  *websocket.Dialer

	sleep   func(ctx context.Context, d time.Duration) error
	onState func(from, to State)

	// writerFor picks the heartbeat's writer for an active connection.
	writerFor func(conn *websocket.Conn) frameWriter

	mu                  sync.Mutex
	state               State
	attemptCount        int
	consecutiveFailures int
	reconnects          int
	connID              string
	lastConnectedAt     time.Time
	lastMessageAt       time.Time
	lastErr             error
	conn                *websocket.Conn
	cancel              context.CancelFunc
	done                chan struct{}
	activated           chan struct{}
	runErr              error
}

type Option func(*Supervisor)

// WithSleep replaces the wait between reconnect attempts. A non-nil
// return stops the loop.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Supervisor) {
		if fn != nil {
			s.sleep = fn
		}
	}
}

// WithStateHook is called after every state transition, outside the lock.
func WithStateHook(fn func(from, to State)) Option {
	return func(s *Supervisor) { s.onState = fn }
}

func New(cfg Config, auth Authenticator, handler FrameHandler, logger *logging.Logger, opts ...Option) *Supervisor {
	if logger == nil {
		panic("supervisor.New: logger must not be nil")
	}
	if auth == nil || handler == nil {
		panic("supervisor.New: auth and handler must not be nil")
	}
	cfg = cfg.withDefaults()
	s := &Supervisor{
		cfg:     cfg,
		auth:    auth,
		handler: handler,
		logger:  logger,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.ConnectTimeout,
			// #nosec G402 -- certificate checks are disabled only on explicit opt-out.
			TLSClientConfig: &tls.Config{InsecureSkipVerify: !cfg.VerifyTLS},
		},
		sleep:     sleepContext,
		writerFor: func(conn *websocket.Conn) frameWriter { return conn },
		state:     StateIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Supervisor) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		State:               s.state,
		ConnectionID:        s.connID,
		AttemptCount:        s.attemptCount,
		ConsecutiveFailures: s.consecutiveFailures,
		Reconnects:          s.reconnects,
		LastConnectedAt:     s.lastConnectedAt,
		LastMessageAt:       s.lastMessageAt,
	}
	if s.lastErr != nil {
		snap.LastError = s.lastErr.Error()
	}
	return snap
}

func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connect starts the connection loop and waits up to the startup window
// for the first active session. A timeout leaves the loop running; the
// caller decides whether to Disconnect.
func (s *Supervisor) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateForcedOffline {
		s.mu.Unlock()
		return ErrForcedOffline
	}
	if s.state.running() {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if !s.auth.EnsureValid(ctx) || s.auth.AccessToken() == "" {
		return ErrNoSession
	}

	s.mu.Lock()
	if s.state.running() {
		s.mu.Unlock()
		return nil
	}
	if s.state == StateForcedOffline {
		s.mu.Unlock()
		return ErrForcedOffline
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	activated := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.activated = activated
	s.runErr = nil
	s.attemptCount = 0
	s.consecutiveFailures = 0
	from := s.swapStateLocked(StateConnecting)
	s.mu.Unlock()
	s.notify(from, StateConnecting)

	go s.run(runCtx, done)

	timer := time.NewTimer(s.cfg.StartupWait)
	defer timer.Stop()
	select {
	case <-activated:
		return nil
	case <-done:
		s.mu.Lock()
		err := s.runErr
		s.mu.Unlock()
		if err == nil {
			err = ErrStopped
		}
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrStartupTimeout
	}
}

// Wait blocks until the connection loop exits. It returns ErrForcedOffline
// when the server ended the session and nil after a Disconnect.
func (s *Supervisor) Wait(ctx context.Context) error {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runErr
}

// Disconnect stops the loop, closes any live socket and waits for the loop
// to exit. Safe to call repeatedly.
func (s *Supervisor) Disconnect() {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	conn := s.conn
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		closeConn(conn)
	}
	if done != nil {
		<-done
	}

	s.mu.Lock()
	from := s.state
	changed := from != StateForcedOffline && from != StateStopped
	if changed {
		s.state = StateStopped
	}
	s.cancel = nil
	s.mu.Unlock()
	if changed {
		s.notify(from, StateStopped)
	}
}

// Reauthorize performs a fresh login after a forced offline and returns
// the supervisor to idle so Connect may be called again.
func (s *Supervisor) Reauthorize(ctx context.Context) error {
	if s.State() != StateForcedOffline {
		return ErrNotForcedOffline
	}
	if err := s.auth.Relogin(ctx); err != nil {
		return fmt.Errorf("reauthorize: %w", err)
	}
	s.mu.Lock()
	s.attemptCount = 0
	s.consecutiveFailures = 0
	s.lastErr = nil
	s.done = nil
	from := s.swapStateLocked(StateIdle)
	s.mu.Unlock()
	s.notify(from, StateIdle)
	s.logger.Info("session reauthorized after forced offline")
	return nil
}

func (s *Supervisor) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer s.stopped()
	for {
		if ctx.Err() != nil {
			return
		}
		if s.failures() >= s.cfg.MaxReconnectAttempts {
			s.relogin(ctx)
		} else {
			s.transition(StateConnecting)
			conn, err := s.open(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.recordFailure(err)
			} else {
				err = s.serve(ctx, conn)
				if errors.Is(err, dispatch.ErrForceOffline) {
					s.forcedOffline()
					return
				}
				if ctx.Err() != nil {
					return
				}
				s.recordDrop(err)
			}
		}

		delay := s.nextDelay()
		s.transition(StateReconnecting)
		s.logger.Info("reconnect scheduled", logging.Field("delay", delay.String()), logging.Field("attempt", s.Snapshot().AttemptCount))
		if err := s.sleep(ctx, delay); err != nil {
			return
		}
	}
}

func (s *Supervisor) relogin(ctx context.Context) {
	s.transition(StateReLoggingIn)
	s.logger.Warn("reconnect attempts exhausted, logging in again", logging.Field("max_attempts", s.cfg.MaxReconnectAttempts))
	if err := s.auth.Relogin(ctx); err != nil {
		s.mu.Lock()
		s.consecutiveFailures = s.cfg.MaxReconnectAttempts - 1
		s.lastErr = err
		s.mu.Unlock()
		s.logger.Error("relogin failed", logging.Field("error", err.Error()))
		return
	}
	s.mu.Lock()
	s.consecutiveFailures = 0
	s.attemptCount = 0
	s.mu.Unlock()
	s.logger.Info("relogin succeeded")
}

// open dials the socket, sends the auth frame and marks the session active.
func (s *Supervisor) open(ctx context.Context) (*websocket.Conn, error) {
	header := s.cfg.Header.Clone()
	conn, err := backoff.Retry(ctx, func() (*websocket.Conn, error) {
		conn, resp, err := s.dialer.DialContext(ctx, s.cfg.URL, header)
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		if err != nil {
			if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
				return nil, backoff.Permanent(fmt.Errorf("dial: handshake rejected with HTTP %d: %w", resp.StatusCode, err))
			}
			return nil, fmt.Errorf("dial: %w", err)
		}
		return conn, nil
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(s.cfg.DialPause)),
		backoff.WithMaxTries(uint(s.cfg.DialAttempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			s.logger.Warn("dial failed, retrying", logging.Field("error", err.Error()), logging.Field("retry_in", next.String()))
		}),
	)
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(maxFrameBytes)

	s.transition(StateAuthenticating)
	frame, err := protocol.AuthFrame(s.auth.AccessToken())
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.AuthWriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("send auth frame: %w", err)
	}
	_ = conn.SetWriteDeadline(time.Time{})
	if err := sleepContext(ctx, s.cfg.AuthSettle); err != nil {
		_ = conn.Close()
		return nil, err
	}

	s.mu.Lock()
	if ctx.Err() != nil {
		s.mu.Unlock()
		_ = conn.Close()
		return nil, ctx.Err()
	}
	if !s.lastConnectedAt.IsZero() {
		s.reconnects++
	}
	s.conn = conn
	s.connID = uuid.NewString()
	s.lastConnectedAt = time.Now()
	s.attemptCount = 0
	s.consecutiveFailures = 0
	s.lastErr = nil
	activated := s.activated
	s.activated = nil
	from := s.swapStateLocked(StateActive)
	connID := s.connID
	s.mu.Unlock()
	if activated != nil {
		close(activated)
	}
	s.notify(from, StateActive)
	s.logger.Info("connection active", logging.Field("connection_id", connID))
	return conn, nil
}

// serve runs the heartbeat and receive loops until either ends. The
// heartbeat goroutine is the only data writer while the session is active.
func (s *Supervisor) serve(ctx context.Context, conn *websocket.Conn) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.heartbeat(gctx, s.writerFor(conn)) })
	g.Go(func() error { return s.receive(gctx, conn) })
	g.Go(func() error {
		<-gctx.Done()
		closeConn(conn)
		return nil
	})
	err := g.Wait()

	s.mu.Lock()
	s.conn = nil
	from := s.swapStateLocked(StateClosing)
	s.mu.Unlock()
	s.notify(from, StateClosing)
	return err
}

type frameWriter interface {
	SetWriteDeadline(t time.Time) error
	WriteMessage(messageType int, data []byte) error
}

func (s *Supervisor) heartbeat(ctx context.Context, w frameWriter) error {
	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()
	failures := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		_ = w.SetWriteDeadline(time.Now().Add(s.cfg.HeartbeatWriteTimeout))
		err := w.WriteMessage(websocket.TextMessage, protocol.HeartbeatFrame())
		if err == nil {
			failures = 0
			s.logger.Debug("heartbeat sent")
			continue
		}
		failures++
		s.logger.Warn("heartbeat failed", logging.Field("failures", failures), logging.Field("error", err.Error()))
		if failures >= s.cfg.MaxHeartbeatFailures {
			return fmt.Errorf("heartbeat: %d consecutive failures: %w", failures, err)
		}
	}
}

func (s *Supervisor) receive(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("receive: %w", err)
		}
		s.mu.Lock()
		s.lastMessageAt = time.Now()
		s.mu.Unlock()
		if err := s.handler.Dispatch(ctx, data); errors.Is(err, dispatch.ErrForceOffline) {
			return err
		}
	}
}

func (s *Supervisor) stopped() {
	s.mu.Lock()
	from := s.state
	if from == StateForcedOffline || from == StateStopped {
		s.mu.Unlock()
		return
	}
	s.state = StateStopped
	s.conn = nil
	s.mu.Unlock()
	s.notify(from, StateStopped)
}

func (s *Supervisor) forcedOffline() {
	s.mu.Lock()
	s.runErr = ErrForcedOffline
	s.lastErr = ErrForcedOffline
	from := s.swapStateLocked(StateForcedOffline)
	s.mu.Unlock()
	s.notify(from, StateForcedOffline)
	s.logger.Warn("server forced this session offline, not reconnecting")
}

func (s *Supervisor) recordFailure(err error) {
	s.mu.Lock()
	s.consecutiveFailures++
	s.lastErr = err
	failures := s.consecutiveFailures
	s.mu.Unlock()
	s.logger.Warn("connect failed", logging.Field("failures", failures), logging.Field("error", err.Error()))
}

func (s *Supervisor) recordDrop(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
	if err != nil {
		s.logger.Warn("connection lost", logging.Field("error", err.Error()))
	}
}

func (s *Supervisor) failures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.consecutiveFailures
}

func (s *Supervisor) nextDelay() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attemptCount++
	return retry.Delay(s.cfg.ReconnectBase, s.cfg.ReconnectCap, s.attemptCount)
}

func (s *Supervisor) transition(to State) {
	s.mu.Lock()
	from := s.swapStateLocked(to)
	s.mu.Unlock()
	s.notify(from, to)
}

func (s *Supervisor) swapStateLocked(to State) State {
	from := s.state
	s.state = to
	return from
}

func (s *Supervisor) notify(from, to State) {
	if from == to {
		return
	}
	s.logger.Debug("state changed", logging.Field("from", from.String()), logging.Field("to", to.String()))
	if s.onState != nil {
		s.onState(from, to)
	}
}

func closeConn(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeFrameTimeout))
	_ = conn.Close()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
