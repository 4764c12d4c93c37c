// Package dialects resolves a dialect name to its renderer.
package dialects

import (
	"fmt"
	"strings"

	"github.com/stokaro/tenantopts/core/platform"
	"github.com/stokaro/tenantopts/core/renderer"
	"github.com/stokaro/tenantopts/core/renderer/dialects/mariadb"
	"github.com/stokaro/tenantopts/core/renderer/dialects/mysql"
	"github.com/stokaro/tenantopts/core/renderer/dialects/oracle"
	"github.com/stokaro/tenantopts/core/renderer/dialects/postgres"
	"github.com/stokaro/tenantopts/core/renderer/dialects/sqlite"
)

// GetRenderer returns the renderer for a dialect name or alias.
func GetRenderer(dialect string) (renderer.Renderer, error) {
	switch platform.NormalizeDialect(dialect) {
	case platform.Postgres:
		return postgres.New(), nil
	case platform.MySQL:
		return mysql.New(), nil
	case platform.MariaDB:
		return mariadb.New(), nil
	case platform.SQLite:
		return sqlite.New(), nil
	case platform.Oracle:
		return oracle.New(), nil
	default:
		return nil, fmt.Errorf("unsupported dialect %q (supported: %s)", dialect, strings.Join(platform.Dialects, ", "))
	}
}
