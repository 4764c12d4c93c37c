package sqlite

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

// Suffixes of the per-event triggers.
const (
	insertSuffix = "_i"
	updateSuffix = "_u"
)

// Renderer provides SQLite-specific SQL rendering
type Renderer struct{}

// New creates a new SQLite renderer
func New() *Renderer {
	return &Renderer{}
}

func (r *Renderer) Dialect() string {
	return platform.SQLite
}

// MaxIdentifierLength is not enforced by SQLite; names are kept readable.
func (r *Renderer) MaxIdentifierLength() int {
	return 200
}

func (r *Renderer) TriggerNameLimit() int {
	return r.MaxIdentifierLength() - len(insertSuffix)
}

func (r *Renderer) QuoteIdentifier(name string) string {
	return renderer.QuoteQualified(name, func(part string) string {
		return `"` + strings.ReplaceAll(part, `"`, `""`) + `"`
	})
}

func (r *Renderer) TriggerNames(tc renderer.TriggerContext) []string {
	return []string{tc.Name + insertSuffix, tc.Name + updateSuffix}
}

// CreateTrigger renders one trigger per event. The WHEN clause keeps the body
// to a single RAISE.
func (r *Renderer) CreateTrigger(tc renderer.TriggerContext) []string {
	table := r.QuoteIdentifier(tc.SelectionTable)
	condition := renderer.CustomMismatchCondition(r.QuoteIdentifier(tc.OptionTable), "NEW")

	var out []string
	for i, event := range []string{"INSERT", "UPDATE"} {
		name := r.QuoteIdentifier(r.TriggerNames(tc)[i])
		out = append(out,
			fmt.Sprintf("DROP TRIGGER IF EXISTS %s", name),
			bufwriter.Statement(func(w *bufwriter.Writer) {
				w.WriteLinef("CREATE TRIGGER %s", name)
				w.WriteLinef("BEFORE %s ON %s", event, table)
				w.WriteLine("FOR EACH ROW")
				w.WriteLinef("WHEN EXISTS (%s)", condition)
				w.WriteLine("BEGIN")
				w.WriteLinef("    SELECT RAISE(ABORT, %s);", renderer.QuoteLiteral(tc.Message))
				w.WriteLine("END")
			}),
		)
	}
	return out
}

func (r *Renderer) DropTrigger(tc renderer.TriggerContext) []string {
	var out []string
	for _, name := range r.TriggerNames(tc) {
		out = append(out, fmt.Sprintf("DROP TRIGGER IF EXISTS %s", r.QuoteIdentifier(name)))
	}
	return out
}

func (r *Renderer) CreateTables(tc renderer.TableContext) []string {
	q := r.QuoteIdentifier
	limit := r.MaxIdentifierLength()

	options := bufwriter.Statement(func(w *bufwriter.Writer) {
		w.WriteLinef("CREATE TABLE IF NOT EXISTS %s (", q(tc.OptionTable))
		w.WriteLine("    id INTEGER PRIMARY KEY AUTOINCREMENT,")
		w.WriteLine("    name VARCHAR(100) NOT NULL,")
		w.WriteLine("    option_type VARCHAR(2) NOT NULL DEFAULT 'dm',")
		w.WriteLinef("    tenant_id INTEGER NULL REFERENCES %s (%s) ON DELETE %s,", q(tc.TenantTable), q(tc.TenantKey), tc.TenantOnDelete)
		w.WriteLine("    deleted TIMESTAMP NULL,")
		w.WriteLinef("    CONSTRAINT %s CHECK (%s)", q(renderer.ObjectName(tc.OptionTable, "tenant_check", limit)), renderer.OptionTypeCheck())
		w.WriteLine(")")
	})

	selections := bufwriter.Statement(func(w *bufwriter.Writer) {
		w.WriteLinef("CREATE TABLE IF NOT EXISTS %s (", q(tc.SelectionTable))
		w.WriteLine("    id INTEGER PRIMARY KEY AUTOINCREMENT,")
		w.WriteLinef("    tenant_id INTEGER NOT NULL REFERENCES %s (%s) ON DELETE %s,", q(tc.TenantTable), q(tc.TenantKey), tc.TenantOnDelete)
		w.WriteLinef("    option_id INTEGER NOT NULL REFERENCES %s (id) ON DELETE %s,", q(tc.OptionTable), tc.OptionOnDelete)
		w.WriteLine("    deleted TIMESTAMP NULL,")
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
