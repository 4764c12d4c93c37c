// Package store persists the option and selection rows of option families over
// database/sql.
//
// A Store wraps one database handle and, inside WithTx, one transaction. Every
// family gets a Repo bound to its two tables through For. Retrievals honour
// entity.Scope: ScopeActive skips soft-deleted rows, ScopeUnscoped returns
// everything. Nothing in this package retries; store conflicts wrap
// entity.ErrConflict and are returned to the caller.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/stokaro/tenantopts/config"
	"github.com/stokaro/tenantopts/core/family"
	"github.com/stokaro/tenantopts/core/platform"
	"github.com/stokaro/tenantopts/core/renderer"
	"github.com/stokaro/tenantopts/core/renderer/dialects"
)

// querier is implemented by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store gives access to the family tables of one database.
type Store struct {
	db       *sql.DB
	tx       *sql.Tx
	q        querier
	dialect  string
	quoter   renderer.Renderer
	settings *config.Settings
	now      func() time.Time
	logger   *slog.Logger
}

// New creates a store for db. The dialect must be one that can run the
// engines at runtime: postgres, mysql, mariadb or sqlite.
func New(db *sql.DB, dialect string) (*Store, error) {
	normalized := platform.NormalizeDialect(dialect)
	if !platform.SupportsRuntime(normalized) {
		return nil, fmt.Errorf("dialect %q is not supported at runtime", dialect)
	}
	r, err := dialects.GetRenderer(normalized)
	if err != nil {
		return nil, err
	}
	return &Store{
		db:       db,
		q:        db,
		dialect:  normalized,
		quoter:   r,
		settings: config.DefaultSettings(),
		now:      time.Now,
		logger:   slog.Default(),
	}, nil
}

// WithLogger sets the logger for the store
func (s *Store) WithLogger(l *slog.Logger) *Store {
	tmp := *s
	tmp.logger = l
	return &tmp
}

// WithSettings sets the global settings families are resolved against.
func (s *Store) WithSettings(settings *config.Settings) *Store {
	tmp := *s
	tmp.settings = settings
	return &tmp
}

// WithClock replaces the time source used for deletion timestamps.
func (s *Store) WithClock(now func() time.Time) *Store {
	tmp := *s
	tmp.now = now
	return &tmp
}

// Dialect returns the normalized dialect name.
func (s *Store) Dialect() string {
	return s.dialect
}

// Settings returns the global settings.
func (s *Store) Settings() *config.Settings {
	return s.settings
}

// InTx reports whether the store is bound to a transaction.
func (s *Store) InTx() bool {
	return s.tx != nil
}

// WithTx runs fn with a store bound to a new transaction. The transaction is
// committed when fn returns nil and rolled back otherwise. Inside a
// transaction, WithTx reuses it.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Store) error) (err error) {
	if s.tx != nil {
		return fn(s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	txStore := *s
	txStore.tx = tx
	txStore.q = tx

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&txStore); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Warn("Failed to roll back transaction", "error", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", classify(err))
	}
	return nil
}

// For returns the repository of a family. It fails when the family wiring is
// incomplete.
func (s *Store) For(f *family.Family) (*Repo, error) {
	if err := f.RequireWiring(); err != nil {
		return nil, err
	}
	optionScoper, err := f.OptionScoper()
	if err != nil {
		return nil, err
	}
	selectionScoper, err := f.SelectionScoper()
	if err != nil {
		return nil, err
	}
	settings := f.Settings(s.settings)
	return &Repo{
		s:               s,
		family:          f,
		optionScoper:    optionScoper,
		selectionScoper: selectionScoper,
		optionTable:     s.quoter.QuoteIdentifier(f.OptionTable),
		selectionTable:  s.quoter.QuoteIdentifier(f.SelectionTable),
		tenantTable:     s.quoter.QuoteIdentifier(settings.TenantTable),
		tenantKey:       s.quoter.QuoteIdentifier(f.TenantKey),
	}, nil
}

// rebind rewrites ? placeholders into the dialect's bind variables.
func (s *Store) rebind(query string) string {
	if s.dialect != platform.Postgres {
		return query
	}
	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	query = s.rebind(query)
	s.logger.Debug("Executing statement", "query", query, "args", args)
	res, err := s.q.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	return res, nil
}

func (s *Store) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	query = s.rebind(query)
	s.logger.Debug("Running query", "query", query, "args", args)
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	return rows, nil
}

func (s *Store) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	query = s.rebind(query)
	s.logger.Debug("Running query", "query", query, "args", args)
	return s.q.QueryRowContext(ctx, query, args...)
}

// insert runs an INSERT and returns the generated id.
func (s *Store) insert(ctx context.Context, query string, args ...any) (int64, error) {
	if s.dialect == platform.Postgres {
		var id int64
		if err := s.queryRow(ctx, query+" RETURNING id", args...).Scan(&id); err != nil {
			return 0, classify(err)
		}
		return id, nil
	}
	res, err := s.exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// placeholders returns n comma separated ? placeholders.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
