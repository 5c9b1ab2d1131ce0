package session

import (
	"testing"
	"time"

	"golang.org/x/oauth2"
)

func TestParseTerminal(t *testing.T) {
	tests := []struct {
		in      string
		want    Terminal
		wantErr bool
	}{
		{in: "desktop", want: TerminalDesktop},
		{in: "PC", want: TerminalDesktop},
		{in: "", want: TerminalDesktop},
		{in: "mobile", want: TerminalMobile},
		{in: " Web ", want: TerminalWeb},
		{in: "watch", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseTerminal(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("ParseTerminal(%q) succeeded, want error", tt.in)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Fatalf("ParseTerminal(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
		}
	}
}

func TestLoggedInHonoursThreshold(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := Session{Token: &oauth2.Token{AccessToken: "a", Expiry: now.Add(10 * time.Minute)}}

	if !s.LoggedIn(now, 5*time.Minute) {
		t.Fatalf("LoggedIn with 10m left and 5m threshold = false")
	}
	if s.LoggedIn(now, 10*time.Minute) {
		t.Fatalf("LoggedIn exactly at threshold = true, want false")
	}
	if (Session{}).LoggedIn(now, 0) {
		t.Fatalf("empty session reported logged in")
	}
	if (Session{Token: &oauth2.Token{AccessToken: "a"}}).LoggedIn(now, 0) {
		t.Fatalf("session without expiry reported logged in")
	}
}

func TestStoreUpdateTokensKeepsRefreshWhenOmitted(t *testing.T) {
	now := time.Now()
	store := NewStore()
	store.Replace(Session{
		Token:         &oauth2.Token{AccessToken: "a1", RefreshToken: "r1", Expiry: now.Add(time.Hour)},
		RefreshExpiry: now.Add(24 * time.Hour),
		SubjectID:     7,
	})

	if !store.UpdateTokens("a2", now.Add(2*time.Hour), "", time.Time{}) {
		t.Fatalf("UpdateTokens() = false")
	}
	got, ok := store.Snapshot()
	if !ok {
		t.Fatalf("Snapshot() missing session")
	}
	if got.AccessToken() != "a2" || got.RefreshToken() != "r1" {
		t.Fatalf("tokens = %q/%q, want a2/r1", got.AccessToken(), got.RefreshToken())
	}
	if !got.RefreshExpiry.Equal(now.Add(24 * time.Hour)) {
		t.Fatalf("refresh expiry changed to %v", got.RefreshExpiry)
	}
	if got.SubjectID != 7 {
		t.Fatalf("SubjectID = %d, want 7", got.SubjectID)
	}
}

func TestStoreSnapshotIsACopy(t *testing.T) {
	store := NewStore()
	store.Replace(Session{Token: &oauth2.Token{AccessToken: "a", Expiry: time.Now().Add(time.Hour)}})
	snap, _ := store.Snapshot()
	snap.Token.AccessToken = "mutated"
	again, _ := store.Snapshot()
	if again.AccessToken() != "a" {
		t.Fatalf("store mutated through snapshot: %q", again.AccessToken())
	}
}

func TestStoreInvalidateAndClear(t *testing.T) {
	now := time.Now()
	store := NewStore()
	if store.UpdateTokens("a", now, "", time.Time{}) {
		t.Fatalf("UpdateTokens on empty store = true")
	}
	store.Replace(Session{Token: &oauth2.Token{AccessToken: "a", Expiry: now.Add(time.Hour)}, SubjectID: 9})
	store.Invalidate()
	got, ok := store.Snapshot()
	if !ok || got.SubjectID != 9 {
		t.Fatalf("Invalidate dropped identity: %#v ok=%v", got, ok)
	}
	if got.LoggedIn(now, 0) {
		t.Fatalf("invalidated session still logged in")
	}
	store.Clear()
	if _, ok := store.Snapshot(); ok {
		t.Fatalf("Snapshot() after Clear() present")
	}
}

func TestRefreshUsable(t *testing.T) {
	now := time.Now()
	if (Session{Token: &oauth2.Token{RefreshToken: "r"}}).RefreshUsable(now) != true {
		t.Fatalf("refresh token without expiry should be usable")
	}
	expired := Session{Token: &oauth2.Token{RefreshToken: "r"}, RefreshExpiry: now.Add(-time.Second)}
	if expired.RefreshUsable(now) {
		t.Fatalf("expired refresh token reported usable")
	}
}
