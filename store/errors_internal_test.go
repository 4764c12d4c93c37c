package store

import (
	"errors"
	"fmt"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/stokaro/tenantopts/core/entity"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		conflict bool
	}{
		{name: "postgres unique violation", err: &pgconn.PgError{Code: "23505"}, conflict: true},
		{name: "postgres check violation", err: &pgconn.PgError{Code: "23514"}},
		{name: "mysql duplicate entry", err: &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}, conflict: true},
		{name: "mysql signal", err: &mysql.MySQLError{Number: 1644, Message: "Tenant mismatch"}},
		{name: "sqlite unique", err: errors.New("constraint failed: UNIQUE constraint failed: p_options.name (2067)"), conflict: true},
		{name: "wrapped", err: fmt.Errorf("outer: %w", &pgconn.PgError{Code: "23505"}), conflict: true},
		{name: "other", err: errors.New("connection refused")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := qt.New(t)
			got := classify(tt.err)
			c.Assert(errors.Is(got, entity.ErrConflict), qt.Equals, tt.conflict)
			c.Assert(errors.Is(got, tt.err), qt.IsTrue)
		})
	}

	qt.Assert(t, classify(nil), qt.IsNil)
}

func TestRebind(t *testing.T) {
	c := qt.New(t)

	pg := &Store{dialect: "postgres"}
	c.Assert(pg.rebind("UPDATE t SET a = ? WHERE id IN (?, ?)"), qt.Equals, "UPDATE t SET a = $1 WHERE id IN ($2, $3)")

	lite := &Store{dialect: "sqlite"}
	c.Assert(lite.rebind("SELECT ? FROM t"), qt.Equals, "SELECT ? FROM t")
	c.Assert(placeholders(3), qt.Equals, "?, ?, ?")
}

func TestNullTime_Scan(t *testing.T) {
	tests := []struct {
		name  string
		value any
		valid bool
	}{
		{name: "nil", value: nil},
		{name: "go string form", value: "2024-05-01 10:00:00 +0000 UTC", valid: true},
		{name: "sqlite form", value: "2024-05-01 10:00:00", valid: true},
		{name: "offset form", value: []byte("2024-05-01 12:00:00+02:00"), valid: true},
		{name: "rfc3339", value: "2024-05-01T10:00:00Z", valid: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := qt.New(t)
			var n nullTime
			c.Assert(n.Scan(tt.value), qt.IsNil)
			c.Assert(n.Valid, qt.Equals, tt.valid)
			if tt.valid {
				c.Assert(n.Ptr().Equal(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)), qt.IsTrue)
			} else {
				c.Assert(n.Ptr(), qt.IsNil)
			}
		})
	}

	var n nullTime
	qt.Assert(t, n.Scan("yesterday"), qt.ErrorMatches, `cannot parse timestamp "yesterday"`)
	qt.Assert(t, n.Scan(42), qt.ErrorMatches, `cannot scan int into a timestamp`)
}
