package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	flags "github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
)

// Options is parsed from flags, the environment and an optional .env file.
// Durations are whole seconds.
type Options struct {
	BaseURL  string `long:"base-url" env:"BOXIM_BASE_URL" default:"https://www.boxim.online" description:"Chat service REST base URL"`
	WSURL    string `long:"ws-url" env:"BOXIM_WS_URL" default:"wss://www.boxim.online/im" description:"Chat service WebSocket URL"`
	Username string `long:"username" env:"BOT_USERNAME" description:"Bot account login name"`
	Password string `long:"password" env:"BOT_PASSWORD" description:"Bot account password"`
	Terminal string `long:"terminal" env:"BOT_TERMINAL" default:"desktop" choice:"desktop" choice:"mobile" choice:"web" description:"Terminal kind reported at login"`

	RequestTimeout        int `long:"request-timeout" env:"REQUEST_TIMEOUT" default:"30" description:"REST request timeout in seconds"`
	ConnectionTimeout     int `long:"connection-timeout" env:"CONNECTION_TIMEOUT" default:"30" description:"WebSocket handshake timeout in seconds"`
	HeartbeatInterval     int `long:"heartbeat-interval" env:"HEARTBEAT_INTERVAL" default:"15" description:"Heartbeat interval in seconds"`
	ReconnectDelay        int `long:"reconnect-delay" env:"RECONNECT_DELAY" default:"3" description:"Reconnect backoff base in seconds"`
	MaxReconnectDelay     int `long:"max-reconnect-delay" env:"MAX_RECONNECT_DELAY" default:"60" description:"Reconnect backoff cap in seconds"`
	MaxReconnectAttempts  int `long:"max-reconnect-attempts" env:"MAX_RECONNECT_ATTEMPTS" default:"10" description:"Consecutive connect failures before a full re-login"`
	TokenRefreshThreshold int `long:"token-refresh-threshold" env:"TOKEN_REFRESH_THRESHOLD" default:"300" description:"Refresh the access token this many seconds before expiry"`
	TokenRefreshCooldown  int `long:"token-refresh-cooldown" env:"TOKEN_REFRESH_COOLDOWN" default:"30" description:"Minimum seconds between refresh attempts"`
	TokenCheckCooldown    int `long:"token-check-cooldown" env:"TOKEN_CHECK_COOLDOWN" default:"10" description:"Minimum seconds between validity checks"`

	VerifyTLS    bool   `long:"ws-verify-tls" env:"BOXIM_WS_VERIFY_TLS" description:"Validate the WebSocket endpoint certificate"`
	DatabasePath string `long:"database" env:"DATABASE_PATH" default:"data/db/bot_data.db" description:"SQLite database for per-user state"`
	LogDir       string `long:"log-dir" env:"BOT_LOG_DIR" description:"Directory for JSONL log files (defaults to the user cache dir)"`
	SettingsFile string `long:"settings" env:"BOT_SETTINGS" description:"Runtime settings file watched for changes"`
	TUI          bool   `long:"tui" env:"BOT_TUI" description:"Show the interactive status console"`
	Debug        bool   `long:"debug" env:"BOT_DEBUG" description:"Enable verbose debug output"`
}

// Timings converts the second-valued options into durations.
type Timings struct {
	Request              time.Duration
	Connect              time.Duration
	Heartbeat            time.Duration
	ReconnectBase        time.Duration
	ReconnectCap         time.Duration
	MaxReconnectAttempts int
	RefreshThreshold     time.Duration
	RefreshCooldown      time.Duration
	CheckCooldown        time.Duration
}

type Endpoints struct {
	BaseURL      string
	Origin       string
	WebSocketURL string
}

func ParseOptions(args []string) (Options, error) {
	_ = godotenv.Load()
	opts := Options{}
	parser := flags.NewParser(&opts, flags.Default)
	var err error
	if args == nil {
		_, err = parser.Parse()
	} else {
		_, err = parser.ParseArgs(args)
	}
	if err != nil {
		return Options{}, err
	}
	return opts, nil
}

func ValidateRequired(opts Options) error {
	if strings.TrimSpace(opts.Username) == "" {
		return errors.New("bot username is required")
	}
	if strings.TrimSpace(opts.Password) == "" {
		return errors.New("bot password is required")
	}
	positive := []struct {
		name  string
		value int
	}{
		{"request timeout", opts.RequestTimeout},
		{"connection timeout", opts.ConnectionTimeout},
		{"heartbeat interval", opts.HeartbeatInterval},
		{"reconnect delay", opts.ReconnectDelay},
		{"max reconnect delay", opts.MaxReconnectDelay},
		{"max reconnect attempts", opts.MaxReconnectAttempts},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return fmt.Errorf("%s must be positive, got %d", p.name, p.value)
		}
	}
	if opts.MaxReconnectDelay < opts.ReconnectDelay {
		return errors.New("max reconnect delay must not be below reconnect delay")
	}
	return nil
}

func (o Options) Timings() Timings {
	sec := func(v int) time.Duration { return time.Duration(max(v, 0)) * time.Second }
	return Timings{
		Request:              sec(o.RequestTimeout),
		Connect:              sec(o.ConnectionTimeout),
		Heartbeat:            sec(o.HeartbeatInterval),
		ReconnectBase:        sec(o.ReconnectDelay),
		ReconnectCap:         sec(o.MaxReconnectDelay),
		MaxReconnectAttempts: o.MaxReconnectAttempts,
		RefreshThreshold:     sec(o.TokenRefreshThreshold),
		RefreshCooldown:      sec(o.TokenRefreshCooldown),
		CheckCooldown:        sec(o.TokenCheckCooldown),
	}
}

// BuildEndpoints validates both service URLs. Pasted paths, queries and
// fragments are dropped from the REST base.
func BuildEndpoints(rawBaseURL, rawWSURL string) (Endpoints, error) {
	base, err := parseAbsolute(rawBaseURL, "base URL", "http", "https")
	if err != nil {
		return Endpoints{}, err
	}
	base.Path, base.RawPath, base.RawQuery, base.Fragment = "", "", "", ""

	ws, err := parseAbsolute(rawWSURL, "WebSocket URL", "ws", "wss")
	if err != nil {
		return Endpoints{}, err
	}
	ws.Fragment = ""

	origin := strings.TrimRight(base.String(), "/")
	return Endpoints{
		BaseURL:      origin,
		Origin:       origin,
		WebSocketURL: ws.String(),
	}, nil
}

func parseAbsolute(raw, name string, schemes ...string) (*url.URL, error) {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("%s must be absolute, like %s://example.com", name, schemes[len(schemes)-1])
	}
	for _, scheme := range schemes {
		if strings.EqualFold(parsed.Scheme, scheme) {
			parsed.Scheme = scheme
			return parsed, nil
		}
	}
	return nil, fmt.Errorf("%s scheme must be one of %s", name, strings.Join(schemes, ", "))
}
