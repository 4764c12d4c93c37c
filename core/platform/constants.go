package platform

import (
	"strings"
)

const (
	Postgres = "postgres"
	MySQL    = "mysql"
	MariaDB  = "mariadb"
	SQLite   = "sqlite"
	Oracle   = "oracle"
)

// Dialects lists every dialect the trigger generator can target, in a stable order.
var Dialects = []string{Postgres, MySQL, MariaDB, SQLite, Oracle}

func NormalizeDialect(dialect string) string {
	switch strings.ToLower(strings.TrimSpace(dialect)) {
	case "pgx", "postgresql", "postgres":
		return Postgres
	case "mysql":
		return MySQL
	case "mariadb":
		return MariaDB
	case "sqlite", "sqlite3":
		return SQLite
	case "oracle":
		return Oracle
	default:
		return ""
	}
}

// IsMySQLLike reports whether the dialect speaks the MySQL wire protocol.
func IsMySQLLike(dialect string) bool {
	d := NormalizeDialect(dialect)
	return d == MySQL || d == MariaDB
}

// SupportsRuntime reports whether the store can open connections for the dialect.
// Oracle is a generation-only target.
func SupportsRuntime(dialect string) bool {
	switch NormalizeDialect(dialect) {
	case Postgres, MySQL, MariaDB, SQLite:
		return true
	default:
		return false
	}
}
