// Package mysqllike holds the rendering shared by MySQL and MariaDB.
package mysqllike

import (
	"fmt"
	"strings"

	"github.com/stokaro/tenantopts/core/renderer"
	"github.com/stokaro/tenantopts/core/renderer/dialects/internal/bufwriter"
)

var (
	_ renderer.Renderer = (*Renderer)(nil)
)

// Suffixes of the per-event triggers; MySQL triggers fire on a single event.
const (
	InsertSuffix = "_i"
	UpdateSuffix = "_u"
)

// Options tune the shared renderer for one server flavour.
type Options struct {
	// FunctionalIndexes enables expression key parts (MySQL 8.0.13+). Without it
	// the case-folded name is kept in a stored generated column.
	FunctionalIndexes bool
	// GeneratedStorage is the keyword of stored generated columns,
	// STORED on MySQL and PERSISTENT on MariaDB.
	GeneratedStorage string
}

// Renderer renders SQL for MySQL-compatible servers
type Renderer struct {
	dialect string
	opts    Options
}

// New creates a renderer for the given dialect name
func New(dialect string, opts Options) *Renderer {
	return &Renderer{dialect: dialect, opts: opts}
}

func (r *Renderer) Dialect() string {
	return r.dialect
}

func (r *Renderer) MaxIdentifierLength() int {
	return 64
}

func (r *Renderer) TriggerNameLimit() int {
	return r.MaxIdentifierLength() - len(InsertSuffix)
}

func (r *Renderer) QuoteIdentifier(name string) string {
	return renderer.QuoteQualified(name, func(part string) string {
		return "`" + strings.ReplaceAll(part, "`", "``") + "`"
	})
}

// QuoteLiteral escapes backslashes as well, since they are escape characters
// in the default SQL mode.
func (r *Renderer) QuoteLiteral(s string) string {
	return renderer.QuoteLiteral(strings.ReplaceAll(s, `\`, `\\`))
}

func (r *Renderer) TriggerNames(tc renderer.TriggerContext) []string {
	return []string{tc.Name + InsertSuffix, tc.Name + UpdateSuffix}
}

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
				w.WriteLine("BEGIN")
				w.WriteLinef("    IF EXISTS (%s) THEN", condition)
				w.WriteLinef("        SIGNAL SQLSTATE '45000' SET MESSAGE_TEXT = %s;", r.QuoteLiteral(tc.Message))
				w.WriteLine("    END IF;")
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

	optionColumns := []string{
		"`id` BIGINT NOT NULL AUTO_INCREMENT",
		"`name` VARCHAR(100) NOT NULL",
		"`option_type` VARCHAR(2) NOT NULL DEFAULT 'dm'",
		"`tenant_id` BIGINT NULL",
		"`deleted` DATETIME(6) NULL",
	}
	uniqueName := q(renderer.ObjectName(tc.OptionTable, "unique_name", limit))
	if r.opts.FunctionalIndexes {
		optionColumns = append(optionColumns,
			"PRIMARY KEY (`id`)",
			fmt.Sprintf("UNIQUE KEY %s ((LOWER(`name`)), `tenant_id`)", uniqueName),
		)
	} else {
		optionColumns = append(optionColumns,
			fmt.Sprintf("`name_lower` VARCHAR(100) AS (LOWER(`name`)) %s", r.opts.GeneratedStorage),
			"PRIMARY KEY (`id`)",
			fmt.Sprintf("UNIQUE KEY %s (`name_lower`, `tenant_id`)", uniqueName),
		)
	}
	// NULL tenants never collide in the key above. default_name is NULL for
	// custom options and the case-folded name otherwise. It cannot derive from
	// tenant_id, whose cascading foreign key rules out generated columns.
	optionColumns = append(optionColumns,
		fmt.Sprintf("`default_name` VARCHAR(100) AS (CASE WHEN %s THEN LOWER(`name`) END) %s",
			renderer.DefaultOptionPredicate(), r.opts.GeneratedStorage),
		fmt.Sprintf("UNIQUE KEY %s (`default_name`)", q(renderer.ObjectName(tc.OptionTable, "unique_default_name", limit))),
	)
	// A column with a cascading foreign key action cannot take part in a
	// CHECK; the row check moves into triggers then.
	checkInTriggers := !restricts(tc.TenantOnDelete)
	if !checkInTriggers {
		optionColumns = append(optionColumns,
			fmt.Sprintf("CONSTRAINT %s CHECK (%s)", q(renderer.ObjectName(tc.OptionTable, "tenant_check", limit)), renderer.OptionTypeCheck()))
	}
	optionColumns = append(optionColumns,
		fmt.Sprintf("CONSTRAINT %s FOREIGN KEY (`tenant_id`) REFERENCES %s (%s) ON DELETE %s",
			q(renderer.ObjectName(tc.OptionTable, "tenant_fk", limit)), q(tc.TenantTable), q(tc.TenantKey), tc.TenantOnDelete))

	selectionColumns := []string{
		"`id` BIGINT NOT NULL AUTO_INCREMENT",
		"`tenant_id` BIGINT NOT NULL",
		"`option_id` BIGINT NOT NULL",
		"`deleted` DATETIME(6) NULL",
		"PRIMARY KEY (`id`)",
		fmt.Sprintf("UNIQUE KEY %s (`tenant_id`, `option_id`)", q(renderer.ObjectName(tc.SelectionTable, "unique_selection", limit))),
		fmt.Sprintf("CONSTRAINT %s FOREIGN KEY (`tenant_id`) REFERENCES %s (%s) ON DELETE %s",
			q(renderer.ObjectName(tc.SelectionTable, "tenant_fk", limit)), q(tc.TenantTable), q(tc.TenantKey), tc.TenantOnDelete),
		fmt.Sprintf("CONSTRAINT %s FOREIGN KEY (`option_id`) REFERENCES %s (`id`) ON DELETE %s",
			q(renderer.ObjectName(tc.SelectionTable, "option_fk", limit)), q(tc.OptionTable), tc.OptionOnDelete),
	}

	out := []string{
		createTable(q(tc.OptionTable), optionColumns),
		createTable(q(tc.SelectionTable), selectionColumns),
	}
	if checkInTriggers {
		out = append(out, r.optionCheckTriggers(tc)...)
	}
	return out
}

// OptionCheckTriggerNames lists the triggers enforcing the option row check
// when the tenant foreign key cascades.
func (r *Renderer) OptionCheckTriggerNames(tc renderer.TableContext) []string {
	base := renderer.ObjectName(tc.OptionTable, "tenant_check", r.MaxIdentifierLength()-len(InsertSuffix))
	return []string{base + InsertSuffix, base + UpdateSuffix}
}

func (r *Renderer) optionCheckTriggers(tc renderer.TableContext) []string {
	var out []string
	for i, event := range []string{"INSERT", "UPDATE"} {
		name := r.QuoteIdentifier(r.OptionCheckTriggerNames(tc)[i])
		out = append(out,
			fmt.Sprintf("DROP TRIGGER IF EXISTS %s", name),
			bufwriter.Statement(func(w *bufwriter.Writer) {
				w.WriteLinef("CREATE TRIGGER %s", name)
				w.WriteLinef("BEFORE %s ON %s", event, r.QuoteIdentifier(tc.OptionTable))
				w.WriteLine("FOR EACH ROW")
				w.WriteLine("BEGIN")
				w.WriteLinef("    IF NOT (%s) THEN", renderer.OptionTypeCheckOf("NEW"))
				w.WriteLinef("        SIGNAL SQLSTATE '45000' SET MESSAGE_TEXT = %s;", r.QuoteLiteral(renderer.OptionTypeMessage))
				w.WriteLine("    END IF;")
				w.WriteLine("END")
			}),
		)
	}
	return out
}

func restricts(action string) bool {
	return action == "RESTRICT" || action == "NO ACTION"
}

func createTable(table string, definitions []string) string {
	return bufwriter.Statement(func(w *bufwriter.Writer) {
		w.WriteLinef("CREATE TABLE IF NOT EXISTS %s (", table)
		for i, def := range definitions {
			if i < len(definitions)-1 {
				def += ","
			}
			w.WriteLine("    " + def)
		}
		w.WriteLine(") ENGINE=InnoDB")
	})
}

func (r *Renderer) DropTables(tc renderer.TableContext) []string {
	return []string{
		fmt.Sprintf("DROP TABLE IF EXISTS %s", r.QuoteIdentifier(tc.SelectionTable)),
		fmt.Sprintf("DROP TABLE IF EXISTS %s", r.QuoteIdentifier(tc.OptionTable)),
	}
}
