// Package store persists control samples to a SQLite time-series table with
// bounded retention.
//
// The table layout is shared with the dashboard:
//
//	temperature(timestamp TEXT, temp, proportional, integral, derivative, duty_cycle)
//
// Timestamps are UTC text that sorts lexicographically in time order.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// TimeLayout is the on-disk timestamp format. The fixed-width fractional
// part keeps sub-second sample periods strictly ordered.
const TimeLayout = "2006-01-02 15:04:05.000000"

// legacyTimeLayout is accepted on read.
const legacyTimeLayout = "2006-01-02 15:04:05"

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

var (
	// ErrStore wraps failures to persist a sample.
	ErrStore = errors.New("store fault")
	// ErrLocked reports that another process already writes to the database.
	ErrLocked = errors.New("store: database locked by another writer")
	// ErrReadOnly is returned by Append on a store opened read-only.
	ErrReadOnly = errors.New("store: opened read-only")
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("store: closed")
)

const schema = `
CREATE TABLE IF NOT EXISTS temperature (
	timestamp    TEXT NOT NULL,
	temp         REAL NOT NULL,
	proportional REAL NOT NULL,
	integral     REAL NOT NULL,
	derivative   REAL NOT NULL,
	duty_cycle   REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS temperature_timestamp ON temperature(timestamp);
`

// Sample is one control cycle.
type Sample struct {
	Timestamp    time.Time
	Temperature  float64
	Proportional float64
	Integral     float64
	Derivative   float64
	DutyCycle    float64
}

// Options configure Open.
type Options struct {
	// Capacity is the retention capacity N (>= 1). Required for writers.
	Capacity int

	// ReadOnly opens the database for queries only. No writer lock is taken.
	ReadOnly bool

	// Log receives eviction and lock messages. Defaults to the standard logger.
	Log *logrus.Entry
}

// Store is a single-writer, many-reader time-series table.
type Store struct {
	// dbMu guards db; queries hold it for reading so Close waits for them.
	dbMu sync.RWMutex
	db   *sql.DB

	capacity int
	readOnly bool
	log      *logrus.Entry
	lock     *os.File

	// mu serializes appends; lastTS is the newest timestamp written here.
	mu     sync.Mutex
	lastTS time.Time
}

// Open opens (creating if needed) the database at path.
func Open(path string, opts Options) (*Store, error) {
	if !opts.ReadOnly && opts.Capacity < 1 {
		return nil, fmt.Errorf("store: capacity must be >= 1, got %d", opts.Capacity)
	}
	log := opts.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	s := &Store{
		capacity: opts.Capacity,
		readOnly: opts.ReadOnly,
		log:      log,
	}

	if !opts.ReadOnly && path != MemoryPath {
		f, err := lockFile(path + ".lock")
		if err != nil {
			return nil, err
		}
		s.lock = f
	}

	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		s.releaseLock()
		return nil, fmt.Errorf("open database: %w", err)
	}
	if path == MemoryPath {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	s.db = db

	if _, err := db.Exec(schema); err != nil {
		s.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	if latest, ok, err := s.Latest(context.Background()); err != nil {
		s.Close()
		return nil, fmt.Errorf("read latest sample: %w", err)
	} else if ok {
		s.lastTS = latest.Timestamp
	}

	return s, nil
}

func dsn(path string) string {
	if path == MemoryPath {
		return path
	}
	q := url.Values{}
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "journal_mode(WAL)")
	return "file:" + path + "?" + q.Encode()
}

// Capacity returns the configured retention capacity.
func (s *Store) Capacity() int {
	return s.capacity
}

// Append evicts all but the Capacity most recent rows when the table already
// holds Capacity or more, then inserts sample. The table therefore holds at
// most Capacity+1 rows.
//
// Timestamps that do not advance past the previous append are moved one
// microsecond after it.
func (s *Store) Append(ctx context.Context, sample Sample) error {
	if s.readOnly {
		return ErrReadOnly
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.dbMu.RLock()
	defer s.dbMu.RUnlock()
	if s.db == nil {
		return fmt.Errorf("%w: %w", ErrStore, ErrClosed)
	}

	ts := sample.Timestamp.UTC().Truncate(time.Microsecond)
	if !s.lastTS.IsZero() && !ts.After(s.lastTS) {
		ts = s.lastTS.Add(time.Microsecond)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", ErrStore, err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			s.log.WithError(err).Debug("store: rollback")
		}
	}()

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM temperature`).Scan(&count); err != nil {
		return fmt.Errorf("%w: count: %v", ErrStore, err)
	}
	if count >= s.capacity {
		res, err := tx.ExecContext(ctx, `
			DELETE FROM temperature WHERE rowid NOT IN (
				SELECT rowid FROM temperature ORDER BY timestamp DESC, rowid DESC LIMIT ?
			)`, s.capacity)
		if err != nil {
			return fmt.Errorf("%w: evict: %v", ErrStore, err)
		}
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			s.log.WithFields(logrus.Fields{"evicted": n, "capacity": s.capacity}).Debug("store: evicted old samples")
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO temperature (timestamp, temp, proportional, integral, derivative, duty_cycle)
		VALUES (?, ?, ?, ?, ?, ?)`,
		ts.Format(TimeLayout), sample.Temperature, sample.Proportional, sample.Integral,
		sample.Derivative, sample.DutyCycle)
	if err != nil {
		return fmt.Errorf("%w: insert: %v", ErrStore, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", ErrStore, err)
	}

	s.lastTS = ts
	return nil
}

// QuerySince returns samples with timestamp strictly after since, oldest first.
// A zero since returns every row.
func (s *Store) QuerySince(ctx context.Context, since time.Time) ([]Sample, error) {
	s.dbMu.RLock()
	defer s.dbMu.RUnlock()
	if s.db == nil {
		return nil, ErrClosed
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp, temp, proportional, integral, derivative, duty_cycle
		FROM temperature WHERE timestamp > ? ORDER BY timestamp ASC, rowid ASC`,
		since.UTC().Format(TimeLayout))
	if err != nil {
		return nil, fmt.Errorf("query since: %w", err)
	}
	defer rows.Close()

	var out []Sample
	for rows.Next() {
		sample, err := scanSample(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sample)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query since: %w", err)
	}
	return out, nil
}

// Latest returns the most recent sample. ok is false when the table is empty.
func (s *Store) Latest(ctx context.Context) (Sample, bool, error) {
	s.dbMu.RLock()
	defer s.dbMu.RUnlock()
	if s.db == nil {
		return Sample{}, false, ErrClosed
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT timestamp, temp, proportional, integral, derivative, duty_cycle
		FROM temperature ORDER BY timestamp DESC, rowid DESC LIMIT 1`)
	sample, err := scanSample(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Sample{}, false, nil
	}
	if err != nil {
		return Sample{}, false, fmt.Errorf("latest: %w", err)
	}
	return sample, true, nil
}

// Count returns the number of stored rows.
func (s *Store) Count(ctx context.Context) (int, error) {
	s.dbMu.RLock()
	defer s.dbMu.RUnlock()
	if s.db == nil {
		return 0, ErrClosed
	}

	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM temperature`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

// Close waits for in-flight queries, closes the database and releases the
// writer lock. Later calls return ErrClosed from every operation.
func (s *Store) Close() error {
	var errs []error
	s.dbMu.Lock()
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
		s.db = nil
	}
	s.dbMu.Unlock()
	if err := s.releaseLock(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

func (s *Store) releaseLock() error {
	if s.lock == nil {
		return nil
	}
	err := unlockFile(s.lock)
	s.lock = nil
	if err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSample(row scanner) (Sample, error) {
	var (
		ts     string
		sample Sample
	)
	if err := row.Scan(&ts, &sample.Temperature, &sample.Proportional, &sample.Integral,
		&sample.Derivative, &sample.DutyCycle); err != nil {
		return Sample{}, err
	}
	t, err := ParseTimestamp(ts)
	if err != nil {
		return Sample{}, err
	}
	sample.Timestamp = t
	return sample, nil
}

// ParseTimestamp parses a stored timestamp (UTC).
func ParseTimestamp(s string) (time.Time, error) {
	if t, err := time.ParseInLocation(TimeLayout, s, time.UTC); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(legacyTimeLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}
