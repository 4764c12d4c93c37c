// Package generator writes migration files for option families: the tenant
// check triggers on selection tables and the family tables themselves. The
// files follow the migrator's NNNNNNNNNN_name.{up,down}.sql convention and
// separate statements with breakpoint lines.
package generator

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/stokaro/tenantopts/config"
	"github.com/stokaro/tenantopts/core/family"
	"github.com/stokaro/tenantopts/core/renderer"
	"github.com/stokaro/tenantopts/core/renderer/dialects"
	"github.com/stokaro/tenantopts/dbschema"
	"github.com/stokaro/tenantopts/migration/migrator"
)

// Options are shared by every generator operation.
type Options struct {
	// Families to generate for, usually the result of Registry.Select.
	Families []*family.Family
	// Settings are the global settings; nil means config.DefaultSettings.
	Settings *config.Settings
	// Dialect overrides the target dialect. When empty the family's
	// DBVendorOverride is used.
	Dialect string
	// FallbackDialect is used when neither Dialect nor an override is set,
	// typically the dialect of the configured database.
	FallbackDialect string
	// OutputDir is the directory holding the migration files
	OutputDir string
	// Force writes a migration even if one already exists
	Force bool
	// DryRun renders the migrations without writing any file
	DryRun bool
	// Confirm is asked before each migration is written; a false answer skips it
	Confirm func(f *family.Family, action string) bool
	// Logger defaults to slog.Default()
	Logger *slog.Logger
}

// RemoveOptions configure RemoveTriggers.
type RemoveOptions struct {
	Options
	// Verify checks the live database for the trigger before removing it
	Verify bool
	// Conn is required with Verify
	Conn *dbschema.DatabaseConnection
}

// MigrationFiles represents the generated migration files
type MigrationFiles struct {
	UpFile   string // Path to the up migration file
	DownFile string // Path to the down migration file
	Version  int    // Migration version (timestamp)
}

// Artifact is the outcome for one family.
type Artifact struct {
	Family  string
	Dialect string
	// Name is the migration name, e.g. "add_priority_selections_tenant_check"
	Name    string
	UpSQL   string
	DownSQL string
	// Files is nil for dry runs and skipped families
	Files *MigrationFiles
	// Skipped explains why nothing was generated, empty otherwise
	Skipped string
}

const (
	actionAddTrigger    = "add"
	actionRemoveTrigger = "remove"
	actionCreateTables  = "create"
)

// GenerateTriggers writes one migration per family creating its tenant check
// trigger. A family whose trigger already has a migration in OutputDir is
// skipped unless Force is set. The create statements drop any previous trigger
// first, so a forced migration applies cleanly.
func GenerateTriggers(opts Options) ([]Artifact, error) {
	return run(opts, actionAddTrigger, func(f *family.Family, r renderer.Renderer, settings *config.Settings, state *dirState) (Artifact, error) {
		tc, err := renderer.NewTriggerContext(f, settings, r)
		if err != nil {
			return Artifact{}, err
		}
		a := Artifact{Name: triggerMigrationName(actionAddTrigger, tc)}
		if file, ok := state.installed(tc.Name); ok && !opts.Force {
			a.Skipped = fmt.Sprintf("trigger %s already exists in %s", tc.Name, file)
			return a, nil
		}
		a.UpSQL = header(f, "tenant check trigger", "UP") + renderer.Join(r.CreateTrigger(tc))
		a.DownSQL = header(f, "tenant check trigger", "DOWN") + renderer.Join(r.DropTrigger(tc))
		return a, nil
	})
}

// RemoveTriggers writes one migration per family dropping a trigger that an
// earlier migration in OutputDir created. Its down migration re-creates the
// trigger. With Verify, families whose trigger is not installed in the
// database are skipped.
func RemoveTriggers(ctx context.Context, opts RemoveOptions) ([]Artifact, error) {
	if opts.Verify && opts.Conn == nil {
		return nil, errors.New("verifying triggers requires a database connection")
	}
	return run(opts.Options, actionRemoveTrigger, func(f *family.Family, r renderer.Renderer, settings *config.Settings, state *dirState) (Artifact, error) {
		tc, err := renderer.NewTriggerContext(f, settings, r)
		if err != nil {
			return Artifact{}, err
		}
		a := Artifact{Name: triggerMigrationName(actionRemoveTrigger, tc)}
		if _, ok := state.installed(tc.Name); !ok && !opts.Force {
			a.Skipped = fmt.Sprintf("no migration creates trigger %s", tc.Name)
			return a, nil
		}
		if opts.Verify {
			present, err := triggerInstalled(ctx, opts.Conn, f.SelectionTable, r.TriggerNames(tc))
			if err != nil {
				return Artifact{}, err
			}
			if !present {
				a.Skipped = fmt.Sprintf("trigger %s is not installed on %s", tc.Name, f.SelectionTable)
				return a, nil
			}
		}
		a.UpSQL = header(f, "tenant check trigger removal", "UP") + renderer.Join(r.DropTrigger(tc))
		a.DownSQL = header(f, "tenant check trigger removal", "DOWN") + renderer.Join(r.CreateTrigger(tc))
		return a, nil
	})
}

// GenerateSchema writes one migration per family creating its option and
// selection tables. The tenant table must already exist.
func GenerateSchema(opts Options) ([]Artifact, error) {
	return run(opts, actionCreateTables, func(f *family.Family, r renderer.Renderer, settings *config.Settings, state *dirState) (Artifact, error) {
		tc, err := renderer.NewTableContext(f, settings)
		if err != nil {
			return Artifact{}, err
		}
		a := Artifact{Name: migrator.SanitizeMigrationName("create_" + f.Name + "_option_tables")}
		if file, ok := state.named(a.Name); ok && !opts.Force {
			a.Skipped = fmt.Sprintf("tables of family %s already exist in %s", f.Name, file)
			return a, nil
		}
		a.UpSQL = header(f, "option tables", "UP") + renderer.Join(r.CreateTables(tc))
		a.DownSQL = header(f, "option tables", "DOWN") + renderer.Join(r.DropTables(tc))
		return a, nil
	})
}

// GenerateEmptyMigration writes empty up and down files for hand-written SQL.
func GenerateEmptyMigration(name, outputDir string) (*MigrationFiles, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errors.New("migration name is required")
	}
	state, err := scanDir(outputDir)
	if err != nil {
		return nil, err
	}
	body := func(direction string) string {
		return fmt.Sprintf("-- %s\n-- Generated on: %s\n-- Direction: %s\n-- Separate statements with a %q line.\n\n",
			name, time.Now().Format(time.RFC3339), direction, renderer.StatementBreakpoint)
	}
	return createMigrationFiles(outputDir, state.nextVersion(), name, body("UP"), body("DOWN"))
}

type renderFunc func(f *family.Family, r renderer.Renderer, settings *config.Settings, state *dirState) (Artifact, error)

// run renders every family and writes the artifacts. It stops at the first
// family that cannot be rendered; files written before stay in place.
func run(opts Options, action string, render renderFunc) ([]Artifact, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	settings := opts.Settings
	if settings == nil {
		settings = config.DefaultSettings()
	}
	if len(opts.Families) == 0 {
		return nil, errors.New("no families selected")
	}
	if opts.OutputDir == "" && !opts.DryRun {
		return nil, errors.New("output directory is required")
	}

	state, err := scanDir(opts.OutputDir)
	if err != nil {
		return nil, err
	}

	artifacts := make([]Artifact, 0, len(opts.Families))
	for _, f := range opts.Families {
		if err := f.RequireWiring(); err != nil {
			return artifacts, err
		}
		dialect := opts.Dialect
		if dialect == "" {
			dialect = f.Settings(settings).DBVendorOverride
		}
		if dialect == "" {
			dialect = opts.FallbackDialect
		}
		if dialect == "" {
			return artifacts, fmt.Errorf("family %s: no target dialect (set a dialect or the db vendor override)", f.Name)
		}
		r, err := dialects.GetRenderer(dialect)
		if err != nil {
			return artifacts, fmt.Errorf("family %s: %w", f.Name, err)
		}

		a, err := render(f, r, settings, state)
		if err != nil {
			return artifacts, err
		}
		a.Family, a.Dialect = f.Name, r.Dialect()

		switch {
		case a.Skipped != "":
			logger.Info("Skipping migration", "family", f.Name, "reason", a.Skipped)
		case opts.Confirm != nil && !opts.Confirm(f, action):
			a.Skipped = "declined"
			a.UpSQL, a.DownSQL = "", ""
			logger.Info("Skipping migration", "family", f.Name, "reason", a.Skipped)
		case opts.DryRun:
			logger.Info("Dry run, migration not written", "family", f.Name, "name", a.Name)
		default:
			files, err := createMigrationFiles(opts.OutputDir, state.nextVersion(), a.Name, a.UpSQL, a.DownSQL)
			if err != nil {
				return artifacts, fmt.Errorf("error creating migration files: %w", err)
			}
			state.record(files, a.Name, a.UpSQL)
			a.Files = files
			logger.Info("Generated migration", "family", f.Name, "up", files.UpFile, "down", files.DownFile)
		}
		artifacts = append(artifacts, a)
	}
	return artifacts, nil
}

func triggerMigrationName(action string, tc renderer.TriggerContext) string {
	return migrator.SanitizeMigrationName(action + "_" + tc.SelectionTable + "_tenant_check")
}

func header(f *family.Family, what, direction string) string {
	return fmt.Sprintf("-- %s of option family %s\n-- Generated on: %s\n-- Direction: %s\n\n",
		what, f.String(), time.Now().Format(time.RFC3339), direction)
}

func triggerInstalled(ctx context.Context, conn *dbschema.DatabaseConnection, table string, names []string) (bool, error) {
	triggers, err := conn.ListTriggers(ctx, table)
	if err != nil {
		return false, fmt.Errorf("failed to list triggers on %s: %w", table, err)
	}
	for _, t := range triggers {
		if slices.Contains(names, t.Name) {
			return true, nil
		}
	}
	return false, nil
}

// createMigrationFiles creates the up and down migration files
func createMigrationFiles(outputDir string, version int, migrationName, upSQL, downSQL string) (*MigrationFiles, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	upFilePath := filepath.Join(outputDir, migrator.GenerateMigrationFileName(version, migrationName, "up"))
	downFilePath := filepath.Join(outputDir, migrator.GenerateMigrationFileName(version, migrationName, "down"))

	if err := os.WriteFile(upFilePath, []byte(upSQL), 0644); err != nil { //nolint:gosec // 0644 is fine
		return nil, fmt.Errorf("failed to write up migration file: %w", err)
	}
	if err := os.WriteFile(downFilePath, []byte(downSQL), 0644); err != nil { //nolint:gosec // 0644 is fine
		return nil, fmt.Errorf("failed to write down migration file: %w", err)
	}

	return &MigrationFiles{
		UpFile:   upFilePath,
		DownFile: downFilePath,
		Version:  version,
	}, nil
}

// upFile is an existing up migration in the output directory.
type upFile struct {
	path    string
	version int
	name    string
	content string
}

// dirState is what the output directory holds, kept current while a run writes.
type dirState struct {
	files      []upFile
	maxVersion int
}

func scanDir(dir string) (*dirState, error) {
	state := &dirState{}
	if dir == "" {
		return state, nil
	}
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return state, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read migration directory: %w", err)
	}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		mf, err := migrator.ParseMigrationFileName(e.Name())
		if err != nil {
			continue
		}
		state.maxVersion = max(state.maxVersion, mf.Version)
		if mf.Direction != "up" {
			continue
		}
		path := filepath.Join(dir, e.Name())
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read migration file: %w", err)
		}
		state.files = append(state.files, upFile{
			path:    path,
			version: mf.Version,
			name:    migrationNameOf(e.Name()),
			content: string(content),
		})
	}
	slices.SortFunc(state.files, func(a, b upFile) int { return a.version - b.version })
	return state, nil
}

// installed reports whether the newest up migration mentioning trigger
// creates it rather than removes it.
func (s *dirState) installed(trigger string) (string, bool) {
	for i := len(s.files) - 1; i >= 0; i-- {
		f := s.files[i]
		if !strings.Contains(f.content, trigger) {
			continue
		}
		if strings.HasPrefix(f.name, actionRemoveTrigger+"_") {
			return "", false
		}
		return f.path, true
	}
	return "", false
}

func (s *dirState) named(name string) (string, bool) {
	for _, f := range s.files {
		if f.name == name {
			return f.path, true
		}
	}
	return "", false
}

// nextVersion is later than every migration in the directory.
func (s *dirState) nextVersion() int {
	return max(migrator.GetNextMigrationVersion(), s.maxVersion+1)
}

func (s *dirState) record(files *MigrationFiles, name, upSQL string) {
	s.maxVersion = max(s.maxVersion, files.Version)
	s.files = append(s.files, upFile{path: files.UpFile, version: files.Version, name: name, content: upSQL})
}

// migrationNameOf extracts "add_x" from "0000000001_add_x.up.sql".
func migrationNameOf(filename string) string {
	name := strings.TrimSuffix(strings.TrimSuffix(filename, ".sql"), ".up")
	if i := strings.IndexByte(name, '_'); i >= 0 {
		return name[i+1:]
	}
	return name
}
