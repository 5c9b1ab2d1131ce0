package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTempStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "db", "bot.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	return store
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	if _, err := Open(context.Background(), "  "); err == nil {
		t.Fatal("expected empty path error")
	}
}

func TestOpenAppliesMigrationsOnce(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bot.db")
	first, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	version, err := first.SchemaVersion(context.Background())
	if err != nil {
		t.Fatalf("schema version: %v", err)
	}
	if version != 3 {
		t.Fatalf("schema version = %d, want 3", version)
	}
	if err := first.Upsert(context.Background(), User{ID: 5, Exp: 9, Level: 3}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	second, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer second.Close()
	if version, _ := second.SchemaVersion(context.Background()); version != 3 {
		t.Fatalf("schema version after reopen = %d, want 3", version)
	}
	got, err := second.GetOrDefault(context.Background(), 5)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Exp != 9 || got.CommandCount != 0 {
		t.Fatalf("user = %+v, want exp 9 and defaulted command count", got)
	}
}

func TestGetOrDefaultDoesNotWrite(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	got, err := store.GetOrDefault(context.Background(), 42)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != 42 || got.Level != 1 || got.Label != DefaultLabel {
		t.Fatalf("default user = %+v", got)
	}
	if n, _ := store.Count(context.Background()); n != 0 {
		t.Fatalf("count = %d, want 0", n)
	}
}

func TestRecordActivityLevelsUp(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	at := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	first, err := store.RecordActivity(context.Background(), 7, at)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if !first.LeveledUp || first.OldLevel != 1 || first.User.Level != 2 {
		t.Fatalf("first activity = %+v, want level 1 -> 2", first)
	}

	second, err := store.RecordActivity(context.Background(), 7, at.Add(time.Minute))
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if second.LeveledUp {
		t.Fatalf("second activity leveled up: %+v", second)
	}
	got, _ := store.GetOrDefault(context.Background(), 7)
	if got.Exp != 2 || got.TotalMessages != 2 || !got.LastMessageAt.Equal(at.Add(time.Minute)) {
		t.Fatalf("stored user = %+v", got)
	}
}

func TestResetClearsProgressAndWarnings(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	if err := store.Upsert(ctx, User{ID: 3, Exp: 500, Level: 20, Points: 80, SpamWarnings: 1}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := store.Reset(ctx, 3); err != nil {
		t.Fatalf("reset: %v", err)
	}
	got, _ := store.GetOrDefault(ctx, 3)
	if got.Exp != 0 || got.Level != 1 || got.Points != 0 || got.SpamWarnings != 0 || got.Label != DefaultLabel {
		t.Fatalf("user after reset = %+v", got)
	}
}

func TestSpamWarningsRoundTrip(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	if err := store.SetSpamWarnings(ctx, 11, 1, at); err != nil {
		t.Fatalf("set warnings: %v", err)
	}
	if err := store.SetSpamWarnings(ctx, 12, 0, at); err != nil {
		t.Fatalf("set warnings: %v", err)
	}
	warned, err := store.ListWarned(ctx)
	if err != nil {
		t.Fatalf("list warned: %v", err)
	}
	if len(warned) != 1 || warned[0].ID != 11 || !warned[0].LastWarningAt.Equal(at) {
		t.Fatalf("warned = %+v, want only user 11", warned)
	}
}

func TestClearSpamWarningsKeepsProgress(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	if err := store.Upsert(ctx, User{ID: 21, Exp: 40, Level: 5, SpamWarnings: 1, LastWarningAt: at}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := store.ClearSpamWarnings(ctx, 21); err != nil {
		t.Fatalf("clear warnings: %v", err)
	}
	if err := store.ClearSpamWarnings(ctx, 22); err != nil {
		t.Fatalf("clear warnings for unknown user: %v", err)
	}

	got, _ := store.GetOrDefault(ctx, 21)
	if got.SpamWarnings != 0 || got.Exp != 40 || got.Level != 5 || !got.LastWarningAt.Equal(at) {
		t.Fatalf("user after clear = %+v", got)
	}
	if warned, _ := store.ListWarned(ctx); len(warned) != 0 {
		t.Fatalf("warned after clear = %+v, want none", warned)
	}
	if n, _ := store.Count(ctx); n != 1 {
		t.Fatalf("count = %d, want 1 (unknown user not created)", n)
	}
}

func TestListRanksByField(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	for _, u := range []User{{ID: 1, Points: 5}, {ID: 2, Points: 50}, {ID: 3}} {
		if err := store.Upsert(ctx, u); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}
	got, err := store.List(ctx, RankPoints, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].ID != 2 || got[1].ID != 1 {
		t.Fatalf("ranked = %+v", got)
	}
	if _, err := store.List(ctx, RankField("password; DROP TABLE users"), 1); err != nil {
		t.Fatalf("invalid field should fall back to exp: %v", err)
	}
}

func TestDailyStatUpsert(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	if err := store.SaveDailyStat(ctx, DailyStat{Date: "2026-03-01", MessageCount: 10, ActiveUsers: 2}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.SaveDailyStat(ctx, DailyStat{Date: "2026-03-01", MessageCount: 25, ActiveUsers: 4}); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, ok, err := store.DailyStat(ctx, "2026-03-01")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got.MessageCount != 25 || got.ActiveUsers != 4 {
		t.Fatalf("stat = %+v", got)
	}
	if _, ok, _ := store.DailyStat(ctx, "2026-03-02"); ok {
		t.Fatal("unexpected stat for missing day")
	}
	if err := store.SaveDailyStat(ctx, DailyStat{Date: "yesterday"}); err == nil {
		t.Fatal("expected invalid date error")
	}
}

func TestActiveSince(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	_, _ = store.RecordActivity(ctx, 1, day.Add(-time.Hour))
	_, _ = store.RecordActivity(ctx, 2, day.Add(time.Hour))
	n, err := store.ActiveSince(ctx, day)
	if err != nil {
		t.Fatalf("active since: %v", err)
	}
	if n != 1 {
		t.Fatalf("active = %d, want 1", n)
	}
}

func TestLevelCurve(t *testing.T) {
	t.Parallel()

	cases := []struct {
		exp  int64
		want int
	}{
		{0, 2}, {1, 2}, {2, 3}, {5, 3}, {6, 4}, {10, 4}, {14, 5},
	}
	for _, tc := range cases {
		if got := LevelForExp(tc.exp); got != tc.want {
			t.Fatalf("LevelForExp(%d) = %d, want %d", tc.exp, got, tc.want)
		}
	}
	for level := 2; level < 40; level++ {
		if got := LevelForExp(ExpForLevel(level)); got < level {
			t.Fatalf("LevelForExp(ExpForLevel(%d)) = %d", level, got)
		}
	}
	if LabelForLevel(1) != DefaultLabel || LabelForLevel(33) != "传奇" || LabelForLevel(5000) != "无敌" {
		t.Fatal("unexpected labels")
	}
}
