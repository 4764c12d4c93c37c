package migrator

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"slices"
	"time"

	"github.com/stokaro/tenantopts/dbschema"
)

// MigrationStatus summarizes the database against the available migrations.
type MigrationStatus struct {
	CurrentVersion    int   `json:"current_version"`
	PendingMigrations []int `json:"pending_migrations"`
	TotalMigrations   int   `json:"total_migrations"`
	HasPendingChanges bool  `json:"has_pending_changes"`
}

// Migrator applies the generated trigger and table migrations and records
// them in the schema_migrations table. The current version is the highest
// recorded one; migrations are applied in ascending and reverted in
// descending version order, each in its own transaction.
type Migrator struct {
	conn        *dbschema.DatabaseConnection
	provider    MigrationProvider
	initialized bool
	logger      *slog.Logger
}

// NewFSMigrator creates a migrator for the NNNNNNNNNN_name.{up,down}.sql files
// of fsys. It fails if a migration lacks one of its files.
func NewFSMigrator(conn *dbschema.DatabaseConnection, fsys fs.FS) (*Migrator, error) {
	provider, err := NewFSMigrationProvider(fsys)
	if err != nil {
		return nil, err
	}
	return NewMigrator(conn, provider), nil
}

// NewMigrator creates a migrator over conn.
func NewMigrator(conn *dbschema.DatabaseConnection, provider MigrationProvider) *Migrator {
	return &Migrator{
		conn:     conn,
		provider: provider,
		logger:   slog.Default(),
	}
}

// WithLogger returns a copy of m logging to l.
func (m *Migrator) WithLogger(l *slog.Logger) *Migrator {
	tmp := *m
	tmp.logger = l
	return &tmp
}

// MigrationProvider returns the provider of the migrations.
func (m *Migrator) MigrationProvider() MigrationProvider {
	return m.provider
}

// Initialize creates the schema_migrations table if needed.
func (m *Migrator) Initialize(ctx context.Context) error {
	if m.initialized {
		return nil
	}
	if m.conn == nil {
		return errors.New("migrator has no database connection")
	}
	if _, err := m.conn.DB().ExecContext(ctx, migrationsSchemaSQL); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}
	m.initialized = true
	return nil
}

// GetCurrentVersion returns the highest applied version, 0 if none.
func (m *Migrator) GetCurrentVersion(ctx context.Context) (int, error) {
	if err := m.Initialize(ctx); err != nil {
		return 0, fmt.Errorf("failed to initialize migrations table: %w", err)
	}
	var version int
	if err := m.conn.DB().QueryRowContext(ctx, getVersionSQL).Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get current version: %w", err)
	}
	return version, nil
}

// GetAppliedMigrations returns the recorded versions in ascending order.
func (m *Migrator) GetAppliedMigrations(ctx context.Context) ([]int, error) {
	if err := m.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize migrations table: %w", err)
	}
	rows, err := m.conn.DB().QueryContext(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	var applied []int
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied = append(applied, version)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating migration rows: %w", err)
	}
	return applied, nil
}

// GetPendingMigrations returns the versions above the current one.
func (m *Migrator) GetPendingMigrations(ctx context.Context) ([]int, error) {
	current, err := m.GetCurrentVersion(ctx)
	if err != nil {
		return nil, err
	}
	pending := []int{}
	for _, mg := range m.between(current, maxVersion) {
		pending = append(pending, mg.Version)
	}
	return pending, nil
}

// GetPreviousMigrationVersion returns the version below the current one, or
// 0 when the current migration is the first.
func (m *Migrator) GetPreviousMigrationVersion(ctx context.Context) (int, error) {
	current, err := m.GetCurrentVersion(ctx)
	if err != nil {
		return -1, fmt.Errorf("failed to get current version: %w", err)
	}
	if current == 0 {
		return -1, errors.New("no previous migrations exist")
	}
	below := m.between(-1, current-1)
	if len(below) == 0 {
		return 0, nil
	}
	return below[len(below)-1].Version, nil
}

// GetMigrationStatus reports the current version and what is pending.
func (m *Migrator) GetMigrationStatus(ctx context.Context) (*MigrationStatus, error) {
	current, err := m.GetCurrentVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get current version: %w", err)
	}
	pending, err := m.GetPendingMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending migrations: %w", err)
	}
	return &MigrationStatus{
		CurrentVersion:    current,
		PendingMigrations: pending,
		TotalMigrations:   len(m.provider.Migrations()),
		HasPendingChanges: len(pending) > 0,
	}, nil
}

// MigrateUp applies every pending migration.
func (m *Migrator) MigrateUp(ctx context.Context) error {
	if len(m.provider.Migrations()) == 0 {
		m.logger.Info("No migrations to apply")
		return nil
	}
	if err := m.MigrateTo(ctx, maxVersion); err != nil {
		return err
	}
	m.logger.Info("All migrations applied successfully")
	return nil
}

// MigrateDown reverts the latest applied migration.
func (m *Migrator) MigrateDown(ctx context.Context) error {
	target, err := m.GetPreviousMigrationVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to get previous version: %w", err)
	}
	return m.MigrateDownTo(ctx, target)
}

// MigrateDownTo reverts every applied migration above target.
func (m *Migrator) MigrateDownTo(ctx context.Context, target int) error {
	current, err := m.GetCurrentVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}
	if target >= current {
		m.logger.Info("Already at or below target version", "targetVersion", target, "currentVersion", current)
		return nil
	}
	return m.run(ctx, down, m.between(target, current), current, target)
}

// MigrateTo moves the database up or down to target.
func (m *Migrator) MigrateTo(ctx context.Context, target int) error {
	current, err := m.GetCurrentVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}
	switch {
	case target == current:
		m.logger.Info("Already at target version", "version", target)
		return nil
	case target < current:
		return m.MigrateDownTo(ctx, target)
	default:
		return m.run(ctx, up, m.between(current, target), current, target)
	}
}

const maxVersion = int(^uint(0) >> 1)

type direction bool

const (
	up   direction = true
	down direction = false
)

func (d direction) String() string {
	if d == up {
		return "up"
	}
	return "down"
}

// between returns the migrations with from < version <= to, ascending.
func (m *Migrator) between(from, to int) []*Migration {
	var out []*Migration
	for _, mg := range m.provider.Migrations() {
		if mg.Version > from && mg.Version <= to {
			out = append(out, mg)
		}
	}
	return out
}

func (m *Migrator) run(ctx context.Context, dir direction, migrations []*Migration, current, target int) error {
	if dir == down {
		migrations = slices.Clone(migrations)
		slices.Reverse(migrations)
	}
	m.logger.Info("Migrating "+dir.String(), "currentVersion", current, "targetVersion", target, "migrations", len(migrations))

	for _, mg := range migrations {
		if err := m.step(ctx, dir, mg); err != nil {
			return err
		}
	}
	if dir == down {
		m.logger.Info("Migrated down successfully", "targetVersion", target)
	}
	return nil
}

// step applies or reverts one migration together with its bookkeeping row.
// MySQL commits DDL implicitly, so a failed migration there may be partially
// applied.
func (m *Migrator) step(ctx context.Context, dir direction, mg *Migration) error {
	dialect := m.conn.Dialect()
	fn, action := mg.Up, "apply"
	if dir == down {
		fn, action = mg.Down, "revert"
	}
	if fn == nil {
		return fmt.Errorf("migration %d has no %s function", mg.Version, dir)
	}

	if dir == up {
		m.logger.Info("Applying migration", "version", mg.Version, "description", mg.Description)
	} else {
		m.logger.Info("Rolling back migration", "version", mg.Version, "description", mg.Description)
	}

	tx, err := m.conn.DB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for migration %d: %w", mg.Version, err)
	}
	rollback := func(cause error) error {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			m.logger.Warn("Failed to roll back migration", "version", mg.Version, "error", rbErr)
		}
		return cause
	}

	if err := fn(ctx, tx); err != nil {
		return rollback(fmt.Errorf("failed to %s migration %d: %w", action, mg.Version, err))
	}
	if dir == up {
		query := fmt.Sprintf(recordMigrationSQL, placeholder(dialect, 1), placeholder(dialect, 2), placeholder(dialect, 3))
		_, err = tx.ExecContext(ctx, query, mg.Version, mg.Description, time.Now().UTC().Truncate(time.Second))
	} else {
		_, err = tx.ExecContext(ctx, fmt.Sprintf(deleteMigrationSQL, placeholder(dialect, 1)), mg.Version)
	}
	if err != nil {
		return rollback(fmt.Errorf("failed to record migration %d: %w", mg.Version, err))
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction for migration %d: %w", mg.Version, err)
	}

	m.logger.Info("Migration done", "direction", dir.String(), "version", mg.Version)
	return nil
}
