package postgres

import (
	"fmt"

	"github.com/lib/pq"

	"github.com/stokaro/tenantopts/core/platform"
	"github.com/stokaro/tenantopts/core/renderer"
	"github.com/stokaro/tenantopts/core/renderer/dialects/internal/bufwriter"
)

var (
	_ renderer.Renderer = (*Renderer)(nil)
)

const functionSuffix = "_func"

// Renderer provides PostgreSQL-specific SQL rendering
type Renderer struct{}

// New creates a new PostgreSQL renderer
func New() *Renderer {
	return &Renderer{}
}

func (r *Renderer) Dialect() string {
	return platform.Postgres
}

func (r *Renderer) MaxIdentifierLength() int {
	return 63
}

// TriggerNameLimit leaves room for the trigger function suffix.
func (r *Renderer) TriggerNameLimit() int {
	return r.MaxIdentifierLength() - len(functionSuffix)
}

func (r *Renderer) QuoteIdentifier(name string) string {
	return renderer.QuoteQualified(name, pq.QuoteIdentifier)
}

func (r *Renderer) TriggerNames(tc renderer.TriggerContext) []string {
	return []string{tc.Name}
}

func (r *Renderer) functionName(tc renderer.TriggerContext) string {
	return r.QuoteIdentifier(tc.Name + functionSuffix)
}

// CreateTrigger renders a row trigger that fires before INSERT and UPDATE and
// raises check_violation when a custom option of another tenant is referenced.
func (r *Renderer) CreateTrigger(tc renderer.TriggerContext) []string {
	trigger := r.QuoteIdentifier(tc.Name)
	table := r.QuoteIdentifier(tc.SelectionTable)

	function := bufwriter.Statement(func(w *bufwriter.Writer) {
		w.WriteLinef("CREATE OR REPLACE FUNCTION %s()", r.functionName(tc))
		w.WriteLine("RETURNS TRIGGER AS $$")
		w.WriteLine("BEGIN")
		w.WriteLinef("    IF EXISTS (%s) THEN", renderer.CustomMismatchCondition(r.QuoteIdentifier(tc.OptionTable), "NEW"))
		w.WriteLinef("        RAISE EXCEPTION USING MESSAGE = %s, ERRCODE = 'check_violation';", pq.QuoteLiteral(tc.Message))
		w.WriteLine("    END IF;")
		w.WriteLine("    RETURN NEW;")
		w.WriteLine("END;")
		w.WriteLine("$$ LANGUAGE plpgsql")
	})

	create := bufwriter.Statement(func(w *bufwriter.Writer) {
		w.WriteLinef("CREATE TRIGGER %s", trigger)
		w.WriteLinef("BEFORE INSERT OR UPDATE ON %s", table)
		w.WriteLine("FOR EACH ROW")
		w.WriteLinef("EXECUTE FUNCTION %s()", r.functionName(tc))
	})

	return []string{
		function,
		fmt.Sprintf("DROP TRIGGER IF EXISTS %s ON %s", trigger, table),
		create,
	}
}

func (r *Renderer) DropTrigger(tc renderer.TriggerContext) []string {
	return []string{
		fmt.Sprintf("DROP TRIGGER IF EXISTS %s ON %s", r.QuoteIdentifier(tc.Name), r.QuoteIdentifier(tc.SelectionTable)),
		fmt.Sprintf("DROP FUNCTION IF EXISTS %s()", r.functionName(tc)),
	}
}

func (r *Renderer) CreateTables(tc renderer.TableContext) []string {
	q := r.QuoteIdentifier
	limit := r.MaxIdentifierLength()

	options := bufwriter.Statement(func(w *bufwriter.Writer) {
		w.WriteLinef("CREATE TABLE IF NOT EXISTS %s (", q(tc.OptionTable))
		w.WriteLine("    id BIGSERIAL PRIMARY KEY,")
		w.WriteLine("    name VARCHAR(100) NOT NULL,")
		w.WriteLine("    option_type VARCHAR(2) NOT NULL DEFAULT 'dm',")
		w.WriteLinef("    tenant_id BIGINT NULL REFERENCES %s (%s) ON DELETE %s,", q(tc.TenantTable), q(tc.TenantKey), tc.TenantOnDelete)
		w.WriteLine("    deleted TIMESTAMPTZ NULL,")
		w.WriteLinef("    CONSTRAINT %s CHECK (%s)", q(renderer.ObjectName(tc.OptionTable, "tenant_check", limit)), renderer.OptionTypeCheck())
		w.WriteLine(")")
	})

	selections := bufwriter.Statement(func(w *bufwriter.Writer) {
		w.WriteLinef("CREATE TABLE IF NOT EXISTS %s (", q(tc.SelectionTable))
		w.WriteLine("    id BIGSERIAL PRIMARY KEY,")
		w.WriteLinef("    tenant_id BIGINT NOT NULL REFERENCES %s (%s) ON DELETE %s,", q(tc.TenantTable), q(tc.TenantKey), tc.TenantOnDelete)
		w.WriteLinef("    option_id BIGINT NOT NULL REFERENCES %s (id) ON DELETE %s,", q(tc.OptionTable), tc.OptionOnDelete)
		w.WriteLine("    deleted TIMESTAMPTZ NULL,")
		w.WriteLinef("    CONSTRAINT %s UNIQUE (tenant_id, option_id)", q(renderer.ObjectName(tc.SelectionTable, "unique_selection", limit)))
		w.WriteLine(")")
	})

	return []string{
		options,
		fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (LOWER(name), tenant_id)",
			q(renderer.ObjectName(tc.OptionTable, "unique_name", limit)), q(tc.OptionTable)),
		fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (LOWER(name)) WHERE %s",
			q(renderer.ObjectName(tc.OptionTable, "unique_default_name", limit)), q(tc.OptionTable), renderer.DefaultOptionPredicate()),
		selections,
	}
}

func (r *Renderer) DropTables(tc renderer.TableContext) []string {
	return []string{
		fmt.Sprintf("DROP TABLE IF EXISTS %s", r.QuoteIdentifier(tc.SelectionTable)),
		fmt.Sprintf("DROP TABLE IF EXISTS %s", r.QuoteIdentifier(tc.OptionTable)),
	}
}
