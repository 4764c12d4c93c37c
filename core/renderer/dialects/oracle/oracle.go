package oracle

import (
	"fmt"
	"strings"

	"github.com/stokaro/tenantopts/core/platform"
	"github.com/stokaro/tenantopts/core/renderer"
	"github.com/stokaro/tenantopts/core/renderer/dialects/internal/bufwriter"
)

var (
	_ renderer.Renderer = (*Renderer)(nil)
)

// Oracle error codes tolerated by the idempotent DDL wrappers.
const (
	errObjectExists     = -955
	errTableNotExists   = -942
	errTriggerNotExists = -4080
)

// Renderer provides Oracle-specific SQL rendering. Oracle is a generation-only
// target: the output is meant for the DBA's own tooling.
type Renderer struct{}

// New creates a new Oracle renderer
func New() *Renderer {
	return &Renderer{}
}

func (r *Renderer) Dialect() string {
	return platform.Oracle
}

// MaxIdentifierLength is the pre-12.2 limit, still the safe choice.
func (r *Renderer) MaxIdentifierLength() int {
	return 30
}

func (r *Renderer) TriggerNameLimit() int {
	return r.MaxIdentifierLength()
}

func (r *Renderer) QuoteIdentifier(name string) string {
	return renderer.QuoteQualified(name, func(part string) string {
		return `"` + strings.ReplaceAll(part, `"`, `""`) + `"`
	})
}

func (r *Renderer) TriggerNames(tc renderer.TriggerContext) []string {
	return []string{tc.Name}
}

// CreateTrigger renders a compound-event row trigger. CREATE OR REPLACE makes
// it idempotent.
func (r *Renderer) CreateTrigger(tc renderer.TriggerContext) []string {
	return []string{bufwriter.Statement(func(w *bufwriter.Writer) {
		w.WriteLinef("CREATE OR REPLACE TRIGGER %s", r.QuoteIdentifier(tc.Name))
		w.WriteLinef("BEFORE INSERT OR UPDATE ON %s", r.QuoteIdentifier(tc.SelectionTable))
		w.WriteLine("FOR EACH ROW")
		w.WriteLine("DECLARE")
		w.WriteLine("    mismatches NUMBER;")
		w.WriteLine("BEGIN")
		w.WriteLinef("    SELECT COUNT(*) INTO mismatches FROM (%s);", renderer.CustomMismatchCondition(r.QuoteIdentifier(tc.OptionTable), ":NEW"))
		w.WriteLine("    IF mismatches > 0 THEN")
		w.WriteLinef("        RAISE_APPLICATION_ERROR(-20001, %s);", renderer.QuoteLiteral(tc.Message))
		w.WriteLine("    END IF;")
		w.WriteLine("END;")
	})}
}

func (r *Renderer) DropTrigger(tc renderer.TriggerContext) []string {
	return []string{ignoring(fmt.Sprintf("DROP TRIGGER %s", r.QuoteIdentifier(tc.Name)), errTriggerNotExists)}
}

func (r *Renderer) CreateTables(tc renderer.TableContext) []string {
	q := r.QuoteIdentifier
	limit := r.MaxIdentifierLength()

	onDelete := func(action string) string {
		// Oracle has no RESTRICT or NO ACTION clause; omitting it means NO ACTION.
		if action == "CASCADE" || action == "SET NULL" {
			return " ON DELETE " + action
		}
		return ""
	}

	options := bufwriter.Statement(func(w *bufwriter.Writer) {
		w.WriteLinef("CREATE TABLE %s (", q(tc.OptionTable))
		w.WriteLine("    id NUMBER(19) GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,")
		w.WriteLine("    name VARCHAR2(100) NOT NULL,")
		w.WriteLine("    option_type VARCHAR2(2) DEFAULT 'dm' NOT NULL,")
		w.WriteLinef("    tenant_id NUMBER(19) NULL REFERENCES %s (%s)%s,", q(tc.TenantTable), q(tc.TenantKey), onDelete(tc.TenantOnDelete))
		w.WriteLine("    deleted TIMESTAMP NULL,")
		w.WriteLinef("    CONSTRAINT %s CHECK (%s)", q(renderer.ObjectName(tc.OptionTable, "tenant_check", limit)), renderer.OptionTypeCheck())
		w.WriteLine(")")
	})

	// Oracle keeps keys that are only partly NULL in a unique index, so two
	// defaults with the same name already collide here.
	index := fmt.Sprintf("CREATE UNIQUE INDEX %s ON %s (LOWER(name), tenant_id)",
		q(renderer.ObjectName(tc.OptionTable, "unique_name", limit)), q(tc.OptionTable))

	selections := bufwriter.Statement(func(w *bufwriter.Writer) {
		w.WriteLinef("CREATE TABLE %s (", q(tc.SelectionTable))
		w.WriteLine("    id NUMBER(19) GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,")
		w.WriteLinef("    tenant_id NUMBER(19) NOT NULL REFERENCES %s (%s)%s,", q(tc.TenantTable), q(tc.TenantKey), onDelete(tc.TenantOnDelete))
		w.WriteLinef("    option_id NUMBER(19) NOT NULL REFERENCES %s (id)%s,", q(tc.OptionTable), onDelete(tc.OptionOnDelete))
		w.WriteLine("    deleted TIMESTAMP NULL,")
		w.WriteLinef("    CONSTRAINT %s UNIQUE (tenant_id, option_id)", q(renderer.ObjectName(tc.SelectionTable, "unique_sel", limit)))
		w.WriteLine(")")
	})

	return []string{
		ignoring(options, errObjectExists),
		ignoring(index, errObjectExists),
		ignoring(selections, errObjectExists),
	}
}

func (r *Renderer) DropTables(tc renderer.TableContext) []string {
	return []string{
		ignoring(fmt.Sprintf("DROP TABLE %s", r.QuoteIdentifier(tc.SelectionTable)), errTableNotExists),
		ignoring(fmt.Sprintf("DROP TABLE %s", r.QuoteIdentifier(tc.OptionTable)), errTableNotExists),
	}
}

// ignoring wraps DDL in a PL/SQL block that swallows one expected error code.
func ignoring(ddl string, code int) string {
	return bufwriter.Statement(func(w *bufwriter.Writer) {
		w.WriteLine("BEGIN")
		w.WriteLinef("    EXECUTE IMMEDIATE %s;", renderer.QuoteLiteral(ddl))
		w.WriteLine("EXCEPTION")
		w.WriteLine("    WHEN OTHERS THEN")
		w.WriteLinef("        IF SQLCODE != %d THEN", code)
		w.WriteLine("            RAISE;")
		w.WriteLine("        END IF;")
		w.WriteLine("END;")
	})
}
