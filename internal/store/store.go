// Package store persists per-user activity and daily statistics in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"boxim-bot/internal/store/migrations"
)

type User struct {
	ID              int64
	Exp             int64
	Level           int
	TotalMessages   int64
	LastMessageAt   time.Time
	SpamWarnings    int
	LastWarningAt   time.Time
	Label           string
	Points          int64
	LastSignDate    string
	ConsecutiveDays int
	TotalSignDays   int
	LotteryCount    int
	LotteryWins     int
	CommandCount    int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// DefaultUser is the state of a user the bot has never seen.
func DefaultUser(id int64) User {
	return User{ID: id, Level: 1, Label: DefaultLabel}
}

type DailyStat struct {
	Date         string
	MessageCount int64
	ActiveUsers  int64
	UpdatedAt    time.Time
}

// Activity is the result of recording one message.
type Activity struct {
	User      User
	OldLevel  int
	LeveledUp bool
}

type RankField string

const (
	RankExp           RankField = "exp"
	RankLevel         RankField = "level"
	RankPoints        RankField = "points"
	RankTotalSignDays RankField = "total_sign_days"
	RankStreak        RankField = "consecutive_days"
	RankCommands      RankField = "command_count"
)

func (f RankField) valid() bool {
	switch f {
	case RankExp, RankLevel, RankPoints, RankTotalSignDays, RankStreak, RankCommands:
		return true
	default:
		return false
	}
}

const DateLayout = "2006-01-02"

type Store struct {
	sqlDB *sql.DB
	now   func() time.Time
}

func toMillis(value time.Time) int64 {
	if value.IsZero() {
		return 0
	}
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	if value == 0 {
		return time.Time{}
	}
	return time.UnixMilli(value).UTC()
}

// Open opens the SQLite database at path, creating parent directories, and
// applies embedded migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	if dir := filepath.Dir(cleanPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB, now: time.Now}, nil
}

func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// SchemaVersion is the number of applied migrations.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var n int
	if err := s.sqlDB.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+migrationTable).Scan(&n); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return n, nil
}

const userColumns = `user_id, exp, level, total_messages, last_message_at, spam_warnings,
	last_warning_at, current_label, points, last_sign_date, consecutive_days,
	total_sign_days, lottery_count, lottery_wins, command_count, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (User, error) {
	var (
		u                                      User
		lastMsg, lastWarn, createdAt, updateAt int64
	)
	err := row.Scan(
		&u.ID, &u.Exp, &u.Level, &u.TotalMessages, &lastMsg, &u.SpamWarnings,
		&lastWarn, &u.Label, &u.Points, &u.LastSignDate, &u.ConsecutiveDays,
		&u.TotalSignDays, &u.LotteryCount, &u.LotteryWins, &u.CommandCount, &createdAt, &updateAt,
	)
	if err != nil {
		return User{}, err
	}
	u.LastMessageAt = fromMillis(lastMsg)
	u.LastWarningAt = fromMillis(lastWarn)
	u.CreatedAt = fromMillis(createdAt)
	u.UpdatedAt = fromMillis(updateAt)
	return u, nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// GetOrDefault returns the stored user or DefaultUser when none exists.
// Nothing is written.
func (s *Store) GetOrDefault(ctx context.Context, id int64) (User, error) {
	return getOrDefault(ctx, s.sqlDB, id)
}

func getOrDefault(ctx context.Context, q querier, id int64) (User, error) {
	row := q.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE user_id = ?", id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return DefaultUser(id), nil
	}
	if err != nil {
		return User{}, fmt.Errorf("get user %d: %w", id, err)
	}
	return u, nil
}

func (s *Store) Upsert(ctx context.Context, u User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return upsert(ctx, s.sqlDB, u, s.now())
}

func upsert(ctx context.Context, q querier, u User, now time.Time) error {
	if u.ID == 0 {
		return fmt.Errorf("user id is required")
	}
	if u.Level < 1 {
		u.Level = 1
	}
	if u.Label == "" {
		u.Label = LabelForLevel(u.Level)
	}
	nowMillis := toMillis(now)
	_, err := q.ExecContext(ctx, `INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
		  exp = excluded.exp,
		  level = excluded.level,
		  total_messages = excluded.total_messages,
		  last_message_at = excluded.last_message_at,
		  spam_warnings = excluded.spam_warnings,
		  last_warning_at = excluded.last_warning_at,
		  current_label = excluded.current_label,
		  points = excluded.points,
		  last_sign_date = excluded.last_sign_date,
		  consecutive_days = excluded.consecutive_days,
		  total_sign_days = excluded.total_sign_days,
		  lottery_count = excluded.lottery_count,
		  lottery_wins = excluded.lottery_wins,
		  command_count = excluded.command_count,
		  updated_at = excluded.updated_at`,
		u.ID, u.Exp, u.Level, u.TotalMessages, toMillis(u.LastMessageAt), u.SpamWarnings,
		toMillis(u.LastWarningAt), u.Label, u.Points, u.LastSignDate, u.ConsecutiveDays,
		u.TotalSignDays, u.LotteryCount, u.LotteryWins, u.CommandCount, nowMillis, nowMillis,
	)
	if err != nil {
		return fmt.Errorf("upsert user %d: %w", u.ID, err)
	}
	return nil
}

// Reset wipes everything the bot has accumulated for id.
func (s *Store) Reset(ctx context.Context, id int64) error {
	return s.Upsert(ctx, DefaultUser(id))
}

// RecordActivity credits one message to id and recomputes the level.
func (s *Store) RecordActivity(ctx context.Context, id int64, at time.Time) (Activity, error) {
	var out Activity
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		u, err := getOrDefault(ctx, tx, id)
		if err != nil {
			return err
		}
		out.OldLevel = u.Level
		u.Exp++
		u.TotalMessages++
		u.LastMessageAt = at
		if level := LevelForExp(u.Exp); level > u.Level {
			u.Level = level
			u.Label = LabelForLevel(level)
			out.LeveledUp = true
		}
		if err := upsert(ctx, tx, u, s.now()); err != nil {
			return err
		}
		out.User = u
		return nil
	})
	return out, err
}

func (s *Store) SetSpamWarnings(ctx context.Context, id int64, warnings int, at time.Time) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		u, err := getOrDefault(ctx, tx, id)
		if err != nil {
			return err
		}
		u.SpamWarnings = warnings
		if warnings > 0 {
			u.LastWarningAt = at
		}
		return upsert(ctx, tx, u, s.now())
	})
}

// ClearSpamWarnings drops a pending warning for id, keeping the time of the
// last one. Unknown users are left alone.
func (s *Store) ClearSpamWarnings(ctx context.Context, id int64) error {
	_, err := s.sqlDB.ExecContext(ctx,
		"UPDATE users SET spam_warnings = 0, updated_at = ? WHERE user_id = ? AND spam_warnings > 0",
		toMillis(s.now()), id)
	if err != nil {
		return fmt.Errorf("clear spam warnings for %d: %w", id, err)
	}
	return nil
}

// ListWarned returns users with a pending spam warning.
func (s *Store) ListWarned(ctx context.Context) ([]User, error) {
	return s.queryUsers(ctx, "SELECT "+userColumns+" FROM users WHERE spam_warnings > 0 ORDER BY user_id")
}

// List returns the top users by field, skipping zero values.
func (s *Store) List(ctx context.Context, field RankField, limit int) ([]User, error) {
	if !field.valid() {
		field = RankExp
	}
	if limit <= 0 {
		limit = 10
	}
	query := fmt.Sprintf("SELECT %s FROM users WHERE %s > 0 ORDER BY %s DESC, user_id ASC LIMIT ?", userColumns, field, field)
	return s.queryUsers(ctx, query, limit)
}

func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.sqlDB.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

// ActiveSince counts users whose last message is at or after since.
func (s *Store) ActiveSince(ctx context.Context, since time.Time) (int64, error) {
	var n int64
	err := s.sqlDB.QueryRowContext(ctx, "SELECT COUNT(*) FROM users WHERE last_message_at >= ?", toMillis(since)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active users: %w", err)
	}
	return n, nil
}

func (s *Store) SaveDailyStat(ctx context.Context, stat DailyStat) error {
	if _, err := time.Parse(DateLayout, stat.Date); err != nil {
		return fmt.Errorf("daily stat date %q: %w", stat.Date, err)
	}
	_, err := s.sqlDB.ExecContext(ctx, `INSERT INTO daily_stats (date, message_count, active_users, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
		  message_count = excluded.message_count,
		  active_users = excluded.active_users,
		  updated_at = excluded.updated_at`,
		stat.Date, stat.MessageCount, stat.ActiveUsers, toMillis(s.now()),
	)
	if err != nil {
		return fmt.Errorf("save daily stat %s: %w", stat.Date, err)
	}
	return nil
}

func (s *Store) DailyStat(ctx context.Context, date string) (DailyStat, bool, error) {
	var (
		stat    DailyStat
		updated int64
	)
	err := s.sqlDB.QueryRowContext(ctx,
		"SELECT date, message_count, active_users, updated_at FROM daily_stats WHERE date = ?", date,
	).Scan(&stat.Date, &stat.MessageCount, &stat.ActiveUsers, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return DailyStat{}, false, nil
	}
	if err != nil {
		return DailyStat{}, false, fmt.Errorf("get daily stat %s: %w", date, err)
	}
	stat.UpdatedAt = fromMillis(updated)
	return stat, true, nil
}

func (s *Store) queryUsers(ctx context.Context, query string, args ...any) ([]User, error) {
	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()
	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
