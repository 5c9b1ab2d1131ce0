package supervisor

import (
	"net/http"
	"time"
)

type Config struct {
	URL    string
	Header http.Header

	ConnectTimeout       time.Duration
	HeartbeatInterval    time.Duration
	ReconnectBase        time.Duration
	ReconnectCap         time.Duration
	MaxReconnectAttempts int
	VerifyTLS            bool

	// Zero values take the defaults below.
	DialAttempts          int
	DialPause             time.Duration
	AuthWriteTimeout      time.Duration
	AuthSettle            time.Duration
	HeartbeatWriteTimeout time.Duration
	MaxHeartbeatFailures  int
	StartupWait           time.Duration
}

const (
	defaultDialAttempts          = 3
	defaultDialPause             = 2 * time.Second
	defaultAuthWriteTimeout      = 5 * time.Second
	defaultAuthSettle            = time.Second
	defaultHeartbeatWriteTimeout = 3 * time.Second
	defaultMaxHeartbeatFailures  = 3
	defaultStartupWait           = 5 * time.Second
	defaultHeartbeatInterval     = 15 * time.Second
	closeFrameTimeout            = time.Second
	maxFrameBytes                = 1 << 20
)

func (c Config) withDefaults() Config {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = defaultHeartbeatInterval
	}
	if c.DialAttempts <= 0 {
		c.DialAttempts = defaultDialAttempts
	}
	if c.DialPause <= 0 {
		c.DialPause = defaultDialPause
	}
	if c.AuthWriteTimeout <= 0 {
		c.AuthWriteTimeout = defaultAuthWriteTimeout
	}
	if c.AuthSettle < 0 {
		c.AuthSettle = 0
	} else if c.AuthSettle == 0 {
		c.AuthSettle = defaultAuthSettle
	}
	if c.HeartbeatWriteTimeout <= 0 {
		c.HeartbeatWriteTimeout = defaultHeartbeatWriteTimeout
	}
	if c.MaxHeartbeatFailures <= 0 {
		c.MaxHeartbeatFailures = defaultMaxHeartbeatFailures
	}
	if c.StartupWait <= 0 {
		c.StartupWait = defaultStartupWait
	}
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = 1
	}
	if c.ReconnectCap < c.ReconnectBase {
		c.ReconnectCap = c.ReconnectBase
	}
	return c
}
