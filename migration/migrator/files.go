package migrator

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/stokaro/tenantopts/core/platform"
)

var (
	migrationFileRe = regexp.MustCompile(`^(\d{10})_([a-zA-Z0-9_]+)\.(up|down)\.sql$`)
	unsafeNameRe    = regexp.MustCompile(`[^a-z0-9_]+`)
)

// MigrationFile is the parsed name of a migration file.
type MigrationFile struct {
	Version   int
	Name      string // human readable, e.g. "Add Priority Triggers"
	Direction string // "up" or "down"
}

// ParseMigrationFileName parses NNNNNNNNNN_description.up.sql and
// NNNNNNNNNN_description.down.sql.
func ParseMigrationFileName(filename string) (*MigrationFile, error) {
	m := migrationFileRe.FindStringSubmatch(filename)
	if m == nil {
		return nil, fmt.Errorf("invalid migration filename %q (expected NNNNNNNNNN_description.up.sql or .down.sql)", filename)
	}
	version, err := strconv.Atoi(m[1])
	if err != nil {
		return nil, fmt.Errorf("invalid migration version in %q: %w", filename, err)
	}
	title := cases.Title(language.English).String(strings.ReplaceAll(m[2], "_", " "))
	return &MigrationFile{Version: version, Name: title, Direction: m[3]}, nil
}

// GenerateMigrationFileName builds a migration file name. The name is lower-cased
// and every run of characters other than letters, digits and underscores
// becomes an underscore.
func GenerateMigrationFileName(version int, name, direction string) string {
	return fmt.Sprintf("%010d_%s.%s.sql", version, SanitizeMigrationName(name), direction)
}

// SanitizeMigrationName turns a description into the name part of a migration file.
func SanitizeMigrationName(name string) string {
	s := strings.Trim(unsafeNameRe.ReplaceAllString(strings.ToLower(name), "_"), "_")
	if s == "" {
		return "migration"
	}
	return s
}

// GetNextMigrationVersion returns a version based on the current Unix time.
func GetNextMigrationVersion() int {
	return int(time.Now().Unix())
}

// placeholder returns the n-th (1-based) bind parameter of a dialect.
func placeholder(dialect string, n int) string {
	if dialect == platform.Postgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}
