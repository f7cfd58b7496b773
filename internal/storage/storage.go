// Package storage is the sqlite persistence layer behind the relay core.
//
// It implements relay.Store plus the aggregate queries the statistics
// display needs. One connection, WAL mode, embedded migrations.
package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"slotrelay/internal/relay"
	"slotrelay/internal/transport"
	"slotrelay/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means default
}

type SQLite struct {
	db  *sql.DB
	log logx.Logger

	opCount    atomic.Uint64
	pruneEvery uint64
}

// Open initializes the sqlite store, creating the file and schema if needed.
func Open(cfg Config, log logx.Logger) (*SQLite, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("storage path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers; a single
	// connection also serializes the event loop and predictor naturally.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if log.IsZero() {
		log = logx.Nop()
	}
	s := &SQLite{db: db, log: log, pruneEvery: 500}

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ---- permanent seen-message guard ----

func (s *SQLite) SeenMessage(ctx context.Context, sourceMessageID int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM seen_messages WHERE msg_id = ?`, sourceMessageID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *SQLite) MarkMessageSeen(ctx context.Context, sourceMessageID int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO seen_messages(msg_id, seen_at) VALUES(?, ?)`,
		sourceMessageID, at.UnixMilli())
	return err
}

// ---- fingerprint window ----

func (s *SQLite) FingerprintSeenWithin(ctx context.Context, fingerprint string, window time.Duration, now time.Time) (bool, error) {
	if fingerprint == "" {
		return false, nil
	}
	var lastSeen int64
	err := s.db.QueryRowContext(ctx,
		`SELECT last_seen FROM fingerprints WHERE fp = ?`, fingerprint).Scan(&lastSeen)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return now.UnixMilli()-lastSeen < window.Milliseconds(), nil
}

func (s *SQLite) RecordFingerprint(ctx context.Context, fingerprint string, now time.Time) error {
	if fingerprint == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO fingerprints(fp, last_seen) VALUES(?, ?)
		 ON CONFLICT(fp) DO UPDATE SET last_seen=excluded.last_seen`,
		fingerprint, now.UnixMilli())
	if err == nil && s.opCount.Add(1)%s.pruneEvery == 0 {
		pctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		s.pruneFingerprints(pctx, now)
		cancel()
	}
	return err
}

// pruneFingerprints drops records too old to matter for any sane window.
// Best-effort housekeeping; the window check never relies on it.
func (s *SQLite) pruneFingerprints(ctx context.Context, now time.Time) {
	cutoff := now.Add(-24 * time.Hour).UnixMilli()
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM fingerprints WHERE last_seen < ?`, cutoff); err != nil {
		s.log.Debug("fingerprint prune failed", logx.Err(err))
	}
}

// ---- announcements ----

func (s *SQLite) SaveAnnouncement(ctx context.Context, a relay.Announcement) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	// The new admission supersedes any still-active one for the location,
	// so correlation can only ever reach the most recent instance.
	if _, err := tx.ExecContext(ctx,
		`UPDATE announcements SET state = ? WHERE location = ? AND state = ?`,
		relay.StateSuperseded, a.Location, relay.StateAdmitted); err != nil {
		return 0, err
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO announcements(location, service, fp, state, first_seen, slot_count, chat_id, thread_id, message_id)
		 VALUES(?,?,?,?,?,?,?,?,?)`,
		a.Location, a.Service, a.Fingerprint, relay.StateAdmitted,
		a.FirstSeenAt.UnixMilli(), a.SlotCount(),
		a.MessageRef.ChatID, a.MessageRef.ThreadID, a.MessageRef.MessageID)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return id, tx.Commit()
}

func (s *SQLite) SetAnnouncementMessage(ctx context.Context, id int64, ref transport.MessageRef) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE announcements SET chat_id = ?, thread_id = ?, message_id = ? WHERE id = ?`,
		ref.ChatID, ref.ThreadID, ref.MessageID, id)
	return err
}

func (s *SQLite) ActiveAnnouncement(ctx context.Context, location string) (relay.Announcement, bool, error) {
	var (
		a         relay.Announcement
		firstSeen int64
		state     string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, location, service, fp, state, first_seen, chat_id, thread_id, message_id
		 FROM announcements
		 WHERE location = ? AND state = ?
		 ORDER BY first_seen DESC, id DESC
		 LIMIT 1`,
		location, relay.StateAdmitted).Scan(
		&a.ID, &a.Location, &a.Service, &a.Fingerprint, &state, &firstSeen,
		&a.MessageRef.ChatID, &a.MessageRef.ThreadID, &a.MessageRef.MessageID)
	if errors.Is(err, sql.ErrNoRows) {
		return relay.Announcement{}, false, nil
	}
	if err != nil {
		return relay.Announcement{}, false, err
	}
	a.State = relay.State(state)
	a.FirstSeenAt = time.UnixMilli(firstSeen).UTC()
	return a, true, nil
}

func (s *SQLite) MarkExhausted(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE announcements SET state = ? WHERE id = ?`, relay.StateExhausted, id)
	return err
}

// ---- historical buckets ----

func (s *SQLite) RecordHourBucket(ctx context.Context, location string, hourOfDay int, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO hour_buckets(location, hour, at) VALUES(?,?,?)`,
		location, hourOfDay, at.UnixMilli())
	return err
}

// TopBuckets returns the k most frequent hours and locations among
// admissions within the trailing window, each ordered by frequency.
func (s *SQLite) TopBuckets(ctx context.Context, window time.Duration, k int, now time.Time) ([]int, []string, error) {
	if k <= 0 {
		k = 3
	}
	cutoff := now.Add(-window).UnixMilli()

	hours := make([]int, 0, k)
	rows, err := s.db.QueryContext(ctx,
		`SELECT hour FROM hour_buckets WHERE at >= ?
		 GROUP BY hour ORDER BY COUNT(*) DESC, hour ASC LIMIT ?`, cutoff, k)
	if err != nil {
		return nil, nil, err
	}
	for rows.Next() {
		var h int
		if err := rows.Scan(&h); err != nil {
			rows.Close()
			return nil, nil, err
		}
		hours = append(hours, h)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, nil, err
	}
	rows.Close()

	locations := make([]string, 0, k)
	rows, err = s.db.QueryContext(ctx,
		`SELECT location FROM hour_buckets WHERE at >= ?
		 GROUP BY location ORDER BY COUNT(*) DESC, location ASC LIMIT ?`, cutoff, k)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var l string
		if err := rows.Scan(&l); err != nil {
			return nil, nil, err
		}
		locations = append(locations, l)
	}
	return hours, locations, rows.Err()
}

// ---- statistics display ----

type CityCount struct {
	Name  string
	Count int
}

// Summary aggregates admitted announcements over a trailing window for the
// /start statistics display.
type Summary struct {
	Messages int
	Slots    int
	Cities   []CityCount // ordered by Count descending
}

func (s *SQLite) StatsSummary(ctx context.Context, days int, now time.Time) (Summary, error) {
	if days <= 0 {
		days = 7
	}
	cutoff := now.AddDate(0, 0, -days).UnixMilli()

	rows, err := s.db.QueryContext(ctx,
		`SELECT location, COUNT(*), COALESCE(SUM(slot_count), 0)
		 FROM announcements WHERE first_seen >= ?
		 GROUP BY location ORDER BY COUNT(*) DESC, location ASC`, cutoff)
	if err != nil {
		return Summary{}, err
	}
	defer rows.Close()

	var sum Summary
	for rows.Next() {
		var (
			city  string
			n     int
			slots int
		)
		if err := rows.Scan(&city, &n, &slots); err != nil {
			return Summary{}, err
		}
		sum.Messages += n
		sum.Slots += slots
		sum.Cities = append(sum.Cities, CityCount{Name: city, Count: n})
	}
	return sum, rows.Err()
}
