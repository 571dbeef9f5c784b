// Package store keeps facts in SQLite so that several processes (a game
// server writing facts, an inspector evaluating them) can share them. A
// Store doubles as an eval.PredicateSource through Source.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nathoo/condcore/engine/eval"
	"github.com/nathoo/condcore/engine/state"
	"github.com/nathoo/condcore/types"
)

const (
	kindFlag  = "flag"
	kindValue = "value"
	kindLabel = "label"
)

// Config configures Open.
type Config struct {
	// Path is the database file; ":memory:" keeps everything in memory.
	Path string
	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// Store is a SQLite-backed fact table. It is safe for concurrent use.
type Store struct {
	db        *sql.DB
	closeOnce sync.Once
	now       func() time.Time

	putStmt    *sql.Stmt
	getStmt    *sql.Stmt
	deleteStmt *sql.Stmt
}

// Open opens (creating if needed) the database at path and migrates it.
func Open(ctx context.Context, path string) (*Store, error) {
	return OpenWithConfig(ctx, Config{Path: path})
}

// OpenWithConfig opens a store with custom configuration.
func OpenWithConfig(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, errors.New("db path cannot be empty")
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(%d)", cfg.Path, cfg.BusyTimeout.Milliseconds())
	if cfg.Path != ":memory:" {
		dsn += "&_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports a single writer; one connection also keeps an
	// in-memory database alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db, now: time.Now}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if err := s.prepare(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS facts (
		name TEXT NOT NULL,
		kind TEXT NOT NULL CHECK (kind IN ('flag', 'value', 'label')),
		flag INTEGER,
		value REAL,
		label TEXT,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (name, kind)
	);

	CREATE INDEX IF NOT EXISTS idx_facts_updated ON facts(updated_at);
	`)
	return err
}

func (s *Store) prepare(ctx context.Context) error {
	var err error

	s.putStmt, err = s.db.PrepareContext(ctx, `
		INSERT INTO facts (name, kind, flag, value, label, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (name, kind) DO UPDATE SET
			flag = excluded.flag,
			value = excluded.value,
			label = excluded.label,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare put statement: %w", err)
	}

	s.getStmt, err = s.db.PrepareContext(ctx, `
		SELECT flag, value, label FROM facts WHERE name = ? AND kind = ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare get statement: %w", err)
	}

	s.deleteStmt, err = s.db.PrepareContext(ctx, `DELETE FROM facts WHERE name = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare delete statement: %w", err)
	}
	return nil
}

// Close releases the database. It is safe to call more than once.
func (s *Store) Close() error {
	var err error
	s.closeOnce.Do(func() {
		for _, stmt := range []*sql.Stmt{s.putStmt, s.getStmt, s.deleteStmt} {
			if stmt != nil {
				stmt.Close()
			}
		}
		err = s.db.Close()
	})
	return err
}

func (s *Store) put(ctx context.Context, name, kind string, flag, value, label any) error {
	if name == "" {
		return errors.New("fact name cannot be empty")
	}
	if _, err := s.putStmt.ExecContext(ctx, name, kind, flag, value, label, s.now().UnixNano()); err != nil {
		return fmt.Errorf("put %s %q: %w", kind, name, err)
	}
	return nil
}

// PutFlag stores a boolean fact.
func (s *Store) PutFlag(ctx context.Context, name string, v bool) error {
	return s.put(ctx, name, kindFlag, v, nil, nil)
}

// PutValue stores a numeric fact.
func (s *Store) PutValue(ctx context.Context, name string, v float64) error {
	return s.put(ctx, name, kindValue, nil, v, nil)
}

// PutLabel stores a string fact.
func (s *Store) PutLabel(ctx context.Context, name, v string) error {
	return s.put(ctx, name, kindLabel, nil, nil, v)
}

// AddValue adds delta to a numeric fact, treating a missing fact as zero,
// and returns the new value.
func (s *Store) AddValue(ctx context.Context, name string, delta float64) (float64, error) {
	if name == "" {
		return 0, errors.New("fact name cannot be empty")
	}
	var v float64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO facts (name, kind, value, updated_at) VALUES (?, 'value', ?, ?)
		ON CONFLICT (name, kind) DO UPDATE SET
			value = COALESCE(facts.value, 0) + excluded.value,
			updated_at = excluded.updated_at
		RETURNING value
	`, name, delta, s.now().UnixNano()).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("add value %q: %w", name, err)
	}
	return v, nil
}

// Delete removes every fact called name and reports whether any existed.
func (s *Store) Delete(ctx context.Context, name string) (bool, error) {
	res, err := s.deleteStmt.ExecContext(ctx, name)
	if err != nil {
		return false, fmt.Errorf("delete %q: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Flag returns a boolean fact. ok is false when it does not exist.
func (s *Store) Flag(ctx context.Context, name string) (v, ok bool, err error) {
	var flag sql.NullBool
	ok, err = s.get(ctx, name, kindFlag, &flag, new(sql.NullFloat64), new(sql.NullString))
	return flag.Bool, ok, err
}

// Value returns a numeric fact. ok is false when it does not exist.
func (s *Store) Value(ctx context.Context, name string) (v float64, ok bool, err error) {
	var value sql.NullFloat64
	ok, err = s.get(ctx, name, kindValue, new(sql.NullBool), &value, new(sql.NullString))
	return value.Float64, ok, err
}

// Label returns a string fact. ok is false when it does not exist.
func (s *Store) Label(ctx context.Context, name string) (v string, ok bool, err error) {
	var label sql.NullString
	ok, err = s.get(ctx, name, kindLabel, new(sql.NullBool), new(sql.NullFloat64), &label)
	return label.String, ok, err
}

func (s *Store) get(ctx context.Context, name, kind string, flag *sql.NullBool, value *sql.NullFloat64, label *sql.NullString) (bool, error) {
	err := s.getStmt.QueryRowContext(ctx, name, kind).Scan(flag, value, label)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s %q: %w", kind, name, err)
	}
	return true, nil
}

// Snapshot returns every stored fact.
func (s *Store) Snapshot(ctx context.Context) (state.Snapshot, error) {
	snap := state.Snapshot{
		Flags:  map[string]bool{},
		Values: map[string]float64{},
		Labels: map[string]string{},
	}
	rows, err := s.db.QueryContext(ctx, `SELECT name, kind, flag, value, label FROM facts ORDER BY name, kind`)
	if err != nil {
		return snap, fmt.Errorf("snapshot: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			name, kind string
			flag       sql.NullBool
			value      sql.NullFloat64
			label      sql.NullString
		)
		if err := rows.Scan(&name, &kind, &flag, &value, &label); err != nil {
			return snap, fmt.Errorf("snapshot: %w", err)
		}
		switch kind {
		case kindFlag:
			snap.Flags[name] = flag.Bool
		case kindValue:
			snap.Values[name] = value.Float64
		case kindLabel:
			snap.Labels[name] = label.String
		}
	}
	return snap, rows.Err()
}

// Restore replaces every stored fact with snap in one transaction.
func (s *Store) Restore(ctx context.Context, snap state.Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("restore: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM facts`); err != nil {
		return fmt.Errorf("restore: %w", err)
	}
	put := tx.StmtContext(ctx, s.putStmt)
	now := s.now().UnixNano()
	for name, v := range snap.Flags {
		if _, err := put.ExecContext(ctx, name, kindFlag, v, nil, nil, now); err != nil {
			return fmt.Errorf("restore flag %q: %w", name, err)
		}
	}
	for name, v := range snap.Values {
		if _, err := put.ExecContext(ctx, name, kindValue, nil, v, nil, now); err != nil {
			return fmt.Errorf("restore value %q: %w", name, err)
		}
	}
	for name, v := range snap.Labels {
		if _, err := put.ExecContext(ctx, name, kindLabel, nil, nil, v, now); err != nil {
			return fmt.Errorf("restore label %q: %w", name, err)
		}
	}
	return tx.Commit()
}

// Load copies every stored fact into facts, replacing its contents.
func (s *Store) Load(ctx context.Context, facts *state.FactSheet) error {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return err
	}
	facts.Restore(snap)
	return nil
}

// Source returns a PredicateSource that queries the store under ctx, so a
// host's deadline bounds every fact lookup of an evaluation.
func (s *Store) Source(ctx context.Context) *Source {
	return &Source{store: s, ctx: ctx}
}

// Source resolves predicates against a Store.
type Source struct {
	store *Store
	ctx   context.Context
}

var _ eval.PredicateSource = (*Source)(nil)

// ResolveBoolean implements eval.PredicateSource with the same label
// payloads as state.FactSheet.
func (src *Source) ResolveBoolean(fact string, payload types.Payload) (bool, error) {
	if match, ok := state.LabelMatcher(payload); ok {
		label, found, err := src.store.Label(src.ctx, fact)
		if err != nil {
			return false, err
		}
		if !found {
			return false, fmt.Errorf("%w: label %q", eval.ErrUnknownFact, fact)
		}
		return match(label), nil
	}

	v, found, err := src.store.Flag(src.ctx, fact)
	if err != nil {
		return false, err
	}
	if !found {
		return false, fmt.Errorf("%w: %q", eval.ErrUnknownFact, fact)
	}
	return v, nil
}

// ResolveValue implements eval.PredicateSource.
func (src *Source) ResolveValue(fact string, _ types.Payload) (float64, error) {
	v, found, err := src.store.Value(src.ctx, fact)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, fmt.Errorf("%w: %q", eval.ErrUnknownFact, fact)
	}
	return v, nil
}
