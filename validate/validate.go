// Package validate runs read-only diagnostics over registered option families.
//
// Static checks need only the family descriptors. Database checks run when a
// store is attached, and schema checks when a schema reader is attached. The
// validator never writes; anomalies are reported, not fixed.
package validate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/stokaro/tenantopts/config"
	"github.com/stokaro/tenantopts/core/entity"
	"github.com/stokaro/tenantopts/core/family"
	"github.com/stokaro/tenantopts/core/renderer"
	"github.com/stokaro/tenantopts/core/renderer/dialects"
	"github.com/stokaro/tenantopts/dbschema/types"
	"github.com/stokaro/tenantopts/store"
)

// Severity of a finding. Only errors fail a report.
type Severity int

const (
	Warning Severity = iota
	Error
)

func (s Severity) String() string {
	if s == Error {
		return "error"
	}
	return "warning"
}

// Finding codes.
const (
	CodeNoFamilies        = "no-families"
	CodeWiring            = "wiring"
	CodeScopes            = "scopes"
	CodeSettings          = "settings"
	CodeDefaultType       = "default-type"
	CodeDuplicateDefault  = "duplicate-default"
	CodeNoDefaults        = "no-defaults"
	CodeDuplicateStored   = "duplicate-stored-default"
	CodeOrphanedSelection = "orphaned-selection"
	CodeMissingTable      = "missing-table"
	CodeMissingTrigger    = "missing-trigger"
	CodeStoreError        = "store-error"
)

// Finding is one diagnostic.
type Finding struct {
	Severity Severity
	Family   string
	Code     string
	Message  string
}

func (f Finding) String() string {
	if f.Family == "" {
		return fmt.Sprintf("%s [%s] %s", f.Severity, f.Code, f.Message)
	}
	return fmt.Sprintf("%s [%s] %s: %s", f.Severity, f.Code, f.Family, f.Message)
}

// Report holds the findings of a run in the order they were found.
type Report struct {
	Findings []Finding
}

// OK reports whether the run found no errors. Warnings do not fail.
func (r *Report) OK() bool {
	return len(r.Errors()) == 0
}

// Errors returns the error findings.
func (r *Report) Errors() []Finding {
	return r.bySeverity(Error)
}

// Warnings returns the warning findings.
func (r *Report) Warnings() []Finding {
	return r.bySeverity(Warning)
}

// ExitCode is 0 for a passing report and 1 otherwise.
func (r *Report) ExitCode() int {
	if r.OK() {
		return 0
	}
	return 1
}

func (r *Report) bySeverity(s Severity) []Finding {
	var out []Finding
	for _, f := range r.Findings {
		if f.Severity == s {
			out = append(out, f)
		}
	}
	return out
}

func (r *Report) add(sev Severity, fam, code, format string, args ...any) {
	r.Findings = append(r.Findings, Finding{Severity: sev, Family: fam, Code: code, Message: fmt.Sprintf(format, args...)})
}

// Validator runs the checks.
type Validator struct {
	settings *config.Settings
	store    *store.Store
	schema   types.SchemaReader
	dialect  string
	logger   *slog.Logger
}

// New creates a validator for static checks.
func New(settings *config.Settings) *Validator {
	if settings == nil {
		settings = config.DefaultSettings()
	}
	return &Validator{
		settings: settings,
		logger:   slog.Default(),
	}
}

// WithLogger sets the logger for the validator
func (v *Validator) WithLogger(l *slog.Logger) *Validator {
	tmp := *v
	tmp.logger = l
	return &tmp
}

// WithStore enables the database checks.
func (v *Validator) WithStore(s *store.Store) *Validator {
	tmp := *v
	tmp.store = s.WithSettings(v.settings)
	return &tmp
}

// WithSchemaReader enables the schema checks. dialect selects the trigger
// names to look for.
func (v *Validator) WithSchemaReader(r types.SchemaReader, dialect string) *Validator {
	tmp := *v
	tmp.schema = r
	tmp.dialect = dialect
	return &tmp
}

// Run checks every family and returns the report. It does not stop at the
// first finding.
func (v *Validator) Run(ctx context.Context, families []*family.Family) *Report {
	report := &Report{}
	if len(families) == 0 {
		report.add(Warning, "", CodeNoFamilies, "no option families are registered")
		return report
	}

	var schema *types.DBSchema
	if v.schema != nil {
		var err error
		schema, err = v.schema.ReadSchema(ctx)
		if err != nil {
			report.add(Warning, "", CodeStoreError, "failed to read database schema: %v", err)
			schema = nil
		}
	}

	for _, f := range families {
		if !v.checkFamily(report, f) {
			continue
		}
		if v.store != nil {
			v.checkStore(ctx, report, f)
		}
		if schema != nil {
			v.checkSchema(report, f, schema)
		}
	}

	v.logger.Debug("Validation finished", "families", len(families), "errors", len(report.Errors()), "warnings", len(report.Warnings()))
	return report
}

// checkFamily runs the static checks and reports whether the family is wired
// well enough to look at the database.
func (v *Validator) checkFamily(report *Report, f *family.Family) bool {
	name := "<nil>"
	if f != nil {
		name = f.Name
	}

	if err := f.RequireWiring(); err != nil {
		code := CodeWiring
		var cfgErr *entity.ConfigurationError
		if errors.As(err, &cfgErr) && strings.HasSuffix(cfgErr.Attribute, "scopes") {
			code = CodeScopes
		}
		report.add(Error, name, code, "%v", err)
		return false
	}

	wired := true
	if err := f.Settings(v.settings).Validate(); err != nil {
		report.add(Error, f.Name, CodeSettings, "%v", err)
		wired = false
	}

	seen := make(map[string]string, len(f.Defaults))
	for _, d := range f.Defaults {
		if !d.EffectiveType().IsDefault() {
			report.add(Error, f.Name, CodeDefaultType, "default option %q must be MANDATORY or OPTIONAL, got %q", d.Name, string(d.Type))
		}
		key := entity.FoldName(d.Name)
		if prev, ok := seen[key]; ok {
			report.add(Error, f.Name, CodeDuplicateDefault, "default option %q is declared twice (also as %q)", d.Name, prev)
			continue
		}
		seen[key] = d.Name
	}
	if len(f.Defaults) == 0 {
		report.add(Warning, f.Name, CodeNoDefaults, "no default options are declared")
	}
	return wired
}

func (v *Validator) checkStore(ctx context.Context, report *Report, f *family.Family) {
	repo, err := v.store.For(f)
	if err != nil {
		report.add(Warning, f.Name, CodeStoreError, "%v", err)
		return
	}

	names, err := repo.DuplicateDefaultNames(ctx)
	if err != nil {
		report.add(Warning, f.Name, CodeStoreError, "%v", err)
	}
	for _, n := range names {
		report.add(Warning, f.Name, CodeDuplicateStored, "several active default options are named %q", n)
	}

	orphans, err := repo.OrphanedSelections(ctx)
	if err != nil {
		report.add(Warning, f.Name, CodeStoreError, "%v", err)
		return
	}
	if len(orphans) > 0 {
		ids := make([]string, len(orphans))
		for i, sel := range orphans {
			ids[i] = fmt.Sprintf("%d", sel.ID)
		}
		report.add(Warning, f.Name, CodeOrphanedSelection,
			"%d active selection(s) reference soft-deleted options (selection ids: %s)", len(orphans), strings.Join(ids, ", "))
	}
}

func (v *Validator) checkSchema(report *Report, f *family.Family, schema *types.DBSchema) {
	tenantTable := f.ResolvedTenantTable(v.settings)
	for _, table := range []string{tenantTable, f.OptionTable, f.SelectionTable} {
		if !schema.HasTable(table) {
			report.add(Warning, f.Name, CodeMissingTable, "table %s does not exist", table)
		}
	}
	if !schema.HasTable(f.SelectionTable) {
		return
	}

	r, err := dialects.GetRenderer(v.dialect)
	if err != nil {
		report.add(Warning, f.Name, CodeStoreError, "%v", err)
		return
	}
	tc, err := renderer.NewTriggerContext(f, v.settings, r)
	if err != nil {
		report.add(Warning, f.Name, CodeStoreError, "%v", err)
		return
	}
	for _, name := range r.TriggerNames(tc) {
		if _, ok := schema.Trigger(name); !ok {
			report.add(Warning, f.Name, CodeMissingTrigger, "trigger %s on %s does not exist", name, f.SelectionTable)
		}
	}
}
