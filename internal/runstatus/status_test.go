package runstatus

import "testing"

func TestKeysMatchLabels(t *testing.T) {
	pairs := map[string]string{
		LoggingIn:     KeyLoggingIn,
		Authenticated: KeyAuthenticated,
		Connecting:    KeyConnecting,
		Connected:     KeyConnected,
		Reconnecting:  KeyReconnecting,
		ReLoggingIn:   KeyReLoggingIn,
		Disconnected:  KeyDisconnected,
		ForcedOffline: KeyForcedOffline,
		AuthFailed:    KeyAuthFailed,
	}
	for label, key := range pairs {
		if got := Key("  " + label + " "); got != key {
			t.Fatalf("Key(%q) = %q, want %q", label, got, key)
		}
	}
	if !Healthy(Connected) || Healthy(Reconnecting) {
		t.Fatal("Healthy() mismatch")
	}
}
