package runstatus

import "strings"

const (
	LoggingIn     = "Logging in"
	Authenticated = "Authenticated"
	Connecting    = "Connecting"
	Connected     = "Connected"
	Reconnecting  = "Reconnecting"
	ReLoggingIn   = "Re-logging in"
	Disconnected  = "Disconnected"
	ForcedOffline = "Forced offline"
	AuthFailed    = "Login failed"
)

const (
	KeyLoggingIn     = "logging in"
	KeyAuthenticated = "authenticated"
	KeyConnecting    = "connecting"
	KeyConnected     = "connected"
	KeyReconnecting  = "reconnecting"
	KeyReLoggingIn   = "re-logging in"
	KeyDisconnected  = "disconnected"
	KeyForcedOffline = "forced offline"
	KeyAuthFailed    = "login failed"
)

func Key(status string) string {
	return strings.ToLower(strings.TrimSpace(status))
}

// Healthy reports whether status means the bot is receiving messages.
func Healthy(status string) bool {
	return Key(status) == KeyConnected
}
