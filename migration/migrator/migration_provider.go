package migrator

import (
	"cmp"
	"fmt"
	"io/fs"
	"maps"
	"slices"
)

// MigrationProvider supplies the migrations a Migrator applies.
type MigrationProvider interface {
	// Migrations returns the migrations in ascending version order.
	Migrations() []*Migration
}

// RegisteredMigrationProvider keeps migrations registered in code.
type RegisteredMigrationProvider struct {
	migrations []*Migration
}

// NewRegisteredMigrationProvider registers migrations in any order.
func NewRegisteredMigrationProvider(migrations ...*Migration) *RegisteredMigrationProvider {
	p := &RegisteredMigrationProvider{}
	for _, m := range migrations {
		p.Register(m)
	}
	return p
}

// Register inserts migration at its version position.
func (p *RegisteredMigrationProvider) Register(migration *Migration) {
	i, _ := slices.BinarySearchFunc(p.migrations, migration.Version, func(m *Migration, v int) int {
		return cmp.Compare(m.Version, v)
	})
	p.migrations = slices.Insert(p.migrations, i, migration)
}

// Migrations returns the registered migrations.
func (p *RegisteredMigrationProvider) Migrations() []*Migration {
	return p.migrations
}

// FSMigrationProvider reads migration files from a filesystem, typically the
// directory the generator writes to. Files in subdirectories are included and
// files not named like migrations are ignored.
type FSMigrationProvider struct {
	migrations []*Migration
}

// filePair collects the two files of one version while scanning.
type filePair struct {
	description string
	up, down    string
}

// NewFSMigrationProvider scans fsys. Every version needs exactly one name and
// both an up and a down file.
func NewFSMigrationProvider(fsys fs.FS) (*FSMigrationProvider, error) {
	pairs, err := scanMigrationFiles(fsys)
	if err != nil {
		return nil, fmt.Errorf("failed to scan migrations directory: %w", err)
	}

	var incomplete []int
	for version, pair := range pairs {
		if pair.up == "" || pair.down == "" {
			incomplete = append(incomplete, version)
		}
	}
	if len(incomplete) > 0 {
		slices.Sort(incomplete)
		return nil, fmt.Errorf("incomplete migrations found (missing up or down files): %v", incomplete)
	}

	p := &FSMigrationProvider{}
	for _, version := range slices.Sorted(maps.Keys(pairs)) {
		pair := pairs[version]
		p.migrations = append(p.migrations, &Migration{
			Version:     version,
			Description: pair.description,
			Up:          MigrationFuncFromSQLFilename(pair.up, fsys),
			Down:        MigrationFuncFromSQLFilename(pair.down, fsys),
		})
	}
	return p, nil
}

// Migrations returns the loaded migrations.
func (p *FSMigrationProvider) Migrations() []*Migration {
	return p.migrations
}

func scanMigrationFiles(fsys fs.FS) (map[int]*filePair, error) {
	pairs := make(map[int]*filePair)
	err := fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		mf, err := ParseMigrationFileName(d.Name())
		if err != nil {
			return nil
		}

		pair, ok := pairs[mf.Version]
		if !ok {
			pair = &filePair{description: mf.Name}
			pairs[mf.Version] = pair
		}
		if pair.description != mf.Name {
			return fmt.Errorf("migration version %d is used by %q and %q", mf.Version, pair.description, mf.Name)
		}
		if mf.Direction == "up" {
			pair.up = path
		} else {
			pair.down = path
		}
		return nil
	})
	return pairs, err
}
