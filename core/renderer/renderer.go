// Package renderer defines the per-dialect strategy that turns a family
// descriptor into SQL: the tenant consistency trigger on the selection table
// and the DDL of the option and selection tables.
//
// Dialect knowledge lives in the dialects subpackages only. Every statement a
// Renderer returns is complete on its own and carries no trailing separator,
// so trigger bodies containing semicolons survive splitting.
package renderer

import (
	"crypto/sha1" //nolint:gosec // used for naming, not for security
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/stokaro/tenantopts/config"
	"github.com/stokaro/tenantopts/core/entity"
	"github.com/stokaro/tenantopts/core/family"
)

// StatementBreakpoint separates statements in generated migration files.
const StatementBreakpoint = "--> statement-breakpoint"

var identifierRe = regexp.MustCompile(`^[a-zA-Z0-9_.]+$`)

// TriggerContext is everything a dialect needs to render the tenant check trigger.
type TriggerContext struct {
	Family         string
	Name           string
	SelectionTable string
	OptionTable    string
	Message        string
}

// TableContext is everything a dialect needs to render a family's tables.
type TableContext struct {
	Family         string
	TenantTable    string
	TenantKey      string
	OptionTable    string
	SelectionTable string
	TenantOnDelete string
	OptionOnDelete string
}

// Renderer renders family SQL for one dialect.
type Renderer interface {
	Dialect() string
	// MaxIdentifierLength is the longest identifier the dialect accepts.
	MaxIdentifierLength() int
	// TriggerNameLimit bounds the base trigger name so that every object derived
	// from it, such as per-event triggers or the trigger function, still fits.
	TriggerNameLimit() int
	QuoteIdentifier(name string) string
	// TriggerNames lists the database objects CreateTrigger installs.
	TriggerNames(tc TriggerContext) []string
	CreateTrigger(tc TriggerContext) []string
	DropTrigger(tc TriggerContext) []string
	CreateTables(tc TableContext) []string
	DropTables(tc TableContext) []string
}

// NewTriggerContext derives the trigger context of a family.
func NewTriggerContext(f *family.Family, settings *config.Settings, r Renderer) (TriggerContext, error) {
	if err := f.RequireWiring(); err != nil {
		return TriggerContext{}, err
	}
	name, err := TriggerName(f.SelectionTable, r.TriggerNameLimit())
	if err != nil {
		return TriggerContext{}, err
	}
	return TriggerContext{
		Family:         f.Name,
		Name:           name,
		SelectionTable: f.SelectionTable,
		OptionTable:    f.OptionTable,
		Message:        f.Settings(settings).TriggerMessage,
	}, nil
}

// NewTableContext derives the table context of a family.
func NewTableContext(f *family.Family, settings *config.Settings) (TableContext, error) {
	if err := f.RequireWiring(); err != nil {
		return TableContext{}, err
	}
	s := f.Settings(settings)
	if err := s.Validate(); err != nil {
		return TableContext{}, fmt.Errorf("family %s: %w", f.Name, err)
	}
	return TableContext{
		Family:         f.Name,
		TenantTable:    s.TenantTable,
		TenantKey:      f.TenantKey,
		OptionTable:    f.OptionTable,
		SelectionTable: f.SelectionTable,
		TenantOnDelete: strings.ToUpper(s.TenantOnDelete),
		OptionOnDelete: strings.ToUpper(s.OptionOnDelete),
	}, nil
}

// TriggerName builds "<table>_tenant_check_<hash>" for a selection table.
// Schema dots become underscores, the name always starts with a letter and is
// cut to maxLen while keeping the hash suffix.
func TriggerName(table string, maxLen int) (string, error) {
	cleaned := strings.ReplaceAll(strings.ReplaceAll(table, `"`, ""), ".", "_")
	if cleaned == "" || !identifierRe.MatchString(cleaned) {
		return "", fmt.Errorf("invalid table name %q: only alphanumeric characters, underscores and dots are allowed", table)
	}

	base := cleaned + "_tenant_check"
	sum := sha1.Sum([]byte(base)) //nolint:gosec
	hash := hex.EncodeToString(sum[:])[:10]

	if c := base[0]; !('a' <= c && c <= 'z' || 'A' <= c && c <= 'Z') {
		base = "t" + base
	}

	limit := maxLen - len(hash) - 1
	if limit < 1 {
		return "", fmt.Errorf("identifier limit %d is too short for a trigger name", maxLen)
	}
	if len(base) > limit {
		base = base[:limit]
	}

	name := base + "_" + hash
	if !identifierRe.MatchString(name) {
		return "", fmt.Errorf("generated trigger name %s contains invalid characters", name)
	}
	return name, nil
}

// ObjectName builds "<table>_<suffix>" cut to maxLen, for constraints and indexes.
func ObjectName(table, suffix string, maxLen int) string {
	name := strings.ReplaceAll(table, ".", "_") + "_" + suffix
	if len(name) > maxLen {
		name = name[:maxLen]
	}
	return name
}

// QuoteLiteral quotes a string literal the standard SQL way.
func QuoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// QuoteQualified quotes each dot separated part of name with quote.
func QuoteQualified(name string, quote func(string) string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = quote(p)
	}
	return strings.Join(parts, ".")
}

// CustomMismatchCondition is the predicate shared by every dialect: the
// referenced option is custom and belongs to someone else. newRef is the
// dialect's reference to the incoming row, e.g. "NEW" or ":NEW".
func CustomMismatchCondition(optionTable, newRef string) string {
	return fmt.Sprintf(
		"SELECT 1 FROM %s o WHERE o.id = %s.option_id AND o.option_type = %s AND (o.tenant_id IS NULL OR o.tenant_id <> %s.tenant_id)",
		optionTable, newRef, QuoteLiteral(string(entity.Custom)), newRef,
	)
}

// OptionTypeCheck is the row check of the option table.
func OptionTypeCheck() string {
	return OptionTypeCheckOf("")
}

// OptionTypeCheckOf is OptionTypeCheck over the columns of ref, e.g. "NEW",
// for dialects that enforce it in a trigger.
func OptionTypeCheckOf(ref string) string {
	col := func(name string) string {
		if ref == "" {
			return name
		}
		return ref + "." + name
	}
	return fmt.Sprintf("(%s = %s AND %s IS NOT NULL) OR (%s IN (%s, %s) AND %s IS NULL)",
		col("option_type"), QuoteLiteral(string(entity.Custom)), col("tenant_id"),
		col("option_type"), QuoteLiteral(string(entity.Mandatory)), QuoteLiteral(string(entity.Optional)), col("tenant_id"),
	)
}

// OptionTypeMessage is raised by dialects that enforce the row check in a trigger.
const OptionTypeMessage = "custom options require a tenant and default options must not have one"

// DefaultOptionPredicate selects the default options of an option table.
// Default names are unique among themselves; a plain (name, tenant_id) key
// cannot enforce that because NULL tenants never collide.
func DefaultOptionPredicate() string {
	return fmt.Sprintf("option_type IN (%s, %s)", QuoteLiteral(string(entity.Mandatory)), QuoteLiteral(string(entity.Optional)))
}

// Join renders statements as migration file text separated by breakpoints.
func Join(statements []string) string {
	var sb strings.Builder
	for i, stmt := range statements {
		if i > 0 {
			sb.WriteString("\n" + StatementBreakpoint + "\n")
		}
		sb.WriteString(stmt)
		if !strings.HasSuffix(stmt, ";") {
			sb.WriteString(";")
		}
	}
	if sb.Len() > 0 {
		sb.WriteString("\n")
	}
	return sb.String()
}
