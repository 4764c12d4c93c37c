package validate_test

import (
	"context"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/stokaro/tenantopts/config"
	"github.com/stokaro/tenantopts/core/entity"
	"github.com/stokaro/tenantopts/core/family"
	"github.com/stokaro/tenantopts/dbschema/sqlite"
	"github.com/stokaro/tenantopts/defaults"
	"github.com/stokaro/tenantopts/selection"
	"github.com/stokaro/tenantopts/store"
	"github.com/stokaro/tenantopts/store/storetest"
	"github.com/stokaro/tenantopts/validate"
)

type optionOnly struct{}

func (optionOnly) Active() entity.Predicate[entity.Option]  { return entity.Active[entity.Option] }
func (optionOnly) Deleted() entity.Predicate[entity.Option] { return entity.Deleted[entity.Option] }

func codes(findings []validate.Finding) []string {
	out := make([]string, len(findings))
	for i, f := range findings {
		out[i] = f.Family + ":" + f.Code
	}
	return out
}

func TestRun_NoFamilies(t *testing.T) {
	c := qt.New(t)

	report := validate.New(nil).Run(context.Background(), nil)
	c.Assert(report.OK(), qt.IsTrue)
	c.Assert(report.ExitCode(), qt.Equals, 0)
	c.Assert(codes(report.Warnings()), qt.DeepEquals, []string{":no-families"})
	c.Assert(report.Findings[0].String(), qt.Equals, "warning [no-families] no option families are registered")
}

func TestRun_StaticChecks(t *testing.T) {
	c := qt.New(t)

	badAction := "EXPLODE"
	families := []*family.Family{
		family.New("good", family.WithDefaults(family.Mandatory("High"))),
		family.New("unwired", family.WithTables("unwired_options", "")),
		family.New("scoped", family.WithOptionScopes(optionOnly{})),
		family.New("settings", family.WithOverrides(config.Overrides{TenantOnDelete: &badAction})),
		family.New("typed", family.WithDefaults(
			family.Mandatory("High"),
			family.DefaultOption{Name: "Mine", Type: entity.Custom},
			family.Optional("HIGH"),
		)),
		family.New("empty"),
	}

	report := validate.New(config.DefaultSettings()).Run(context.Background(), families)
	c.Assert(report.OK(), qt.IsFalse)
	c.Assert(report.ExitCode(), qt.Equals, 1)
	c.Assert(codes(report.Errors()), qt.DeepEquals, []string{
		"unwired:wiring",
		"scoped:scopes",
		"settings:settings",
		"typed:default-type",
		"typed:duplicate-default",
	})
	c.Assert(codes(report.Warnings()), qt.DeepEquals, []string{
		"settings:no-defaults",
		"empty:no-defaults",
	})

	for _, f := range report.Findings {
		if f.Code == validate.CodeDuplicateDefault {
			c.Assert(f.String(), qt.Equals, `error [duplicate-default] typed: default option "HIGH" is declared twice (also as "High")`)
		}
	}
}

func TestRun_ScopesLackingCustomFailTheReport(t *testing.T) {
	c := qt.New(t)

	report := validate.New(nil).Run(context.Background(), []*family.Family{
		family.New("p", family.WithDefaults(family.Mandatory("High")), family.WithOptionScopes(optionOnly{})),
	})
	c.Assert(report.OK(), qt.IsFalse)
	c.Assert(report.Errors()[0].Code, qt.Equals, validate.CodeScopes)
}

func TestRun_OrphanedSelections(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()

	f := family.New("priority", family.WithDefaults(family.Mandatory("High"), family.Optional("Critical")))
	s, db := storetest.New(c.TB, f)
	_, err := defaults.New(s).Sync(ctx, f)
	c.Assert(err, qt.IsNil)

	repo, err := s.For(f)
	c.Assert(err, qt.IsNil)
	options, err := repo.ListOptions(ctx, store.OptionFilter{DefaultsOnly: true})
	c.Assert(err, qt.IsNil)
	var critical int64
	for _, o := range options {
		if o.Name == "Critical" {
			critical = o.ID
		}
	}

	for _, tenant := range []int64{1, 2} {
		_, err := selection.New(s).ApplySelection(ctx, f, tenant, []int64{critical})
		c.Assert(err, qt.IsNil)
	}
	c.Assert(repo.DeleteOption(ctx, critical), qt.IsNil)

	const activeSelections = `SELECT COUNT(*) FROM priority_selections WHERE deleted IS NULL`
	before := storetest.Count(c.TB, db, activeSelections)

	report := validate.New(nil).WithStore(s).Run(ctx, []*family.Family{f})
	c.Assert(report.OK(), qt.IsTrue)

	var orphans []validate.Finding
	for _, finding := range report.Findings {
		if finding.Code == validate.CodeOrphanedSelection {
			orphans = append(orphans, finding)
		}
	}
	c.Assert(orphans, qt.HasLen, 1)
	c.Assert(orphans[0].Severity, qt.Equals, validate.Warning)
	c.Assert(orphans[0].Message, qt.Matches, `2 active selection\(s\) reference soft-deleted options \(selection ids: \d+, \d+\)`)

	// Validation reports but never repairs.
	c.Assert(storetest.Count(c.TB, db, activeSelections), qt.Equals, before)
}

func TestRun_DuplicateStoredDefaults(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()

	f := family.New("priority", family.WithDefaults(family.Mandatory("High")))
	s, db := storetest.New(c.TB, f)
	// Tables created before default names were unique.
	storetest.Exec(c.TB, db, `DROP INDEX priority_options_unique_default_name`)
	storetest.Exec(c.TB, db, `INSERT INTO priority_options (name, option_type) VALUES ('High', 'dm'), ('high', 'do')`)

	report := validate.New(nil).WithStore(s).Run(ctx, []*family.Family{f})
	c.Assert(report.OK(), qt.IsTrue)
	c.Assert(codes(report.Warnings()), qt.DeepEquals, []string{"priority:duplicate-stored-default"})
	c.Assert(report.Warnings()[0].Message, qt.Equals, `several active default options are named "high"`)
}

func TestRun_SchemaChecks(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()

	created := family.New("priority", family.WithDefaults(family.Mandatory("High")))
	missing := family.New("status", family.WithDefaults(family.Mandatory("Open")))
	untriggered := family.New("colour", family.WithDefaults(family.Mandatory("Red")))
	s, db := storetest.New(c.TB, created, untriggered)
	var dropped string
	err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'trigger' AND tbl_name = 'colour_selections' ORDER BY name LIMIT 1`).Scan(&dropped)
	c.Assert(err, qt.IsNil)
	storetest.Exec(c.TB, db, `DROP TRIGGER "`+dropped+`"`)

	v := validate.New(nil).WithStore(s).WithSchemaReader(sqlite.NewSQLiteReader(db), "sqlite")
	report := v.Run(ctx, []*family.Family{created, missing, untriggered})
	c.Assert(report.OK(), qt.IsTrue)

	var got []string
	for _, f := range report.Warnings() {
		if f.Code == validate.CodeMissingTable || f.Code == validate.CodeMissingTrigger {
			got = append(got, f.Family+":"+f.Code)
		}
	}
	c.Assert(got, qt.DeepEquals, []string{
		"status:missing-table",
		"status:missing-table",
		"colour:missing-trigger",
	})
	for _, f := range report.Warnings() {
		if f.Family == "priority" {
			c.Errorf("unexpected finding for a fully created family: %s", f)
		}
		if f.Code == validate.CodeMissingTrigger {
			c.Assert(f.Message, qt.Equals, "trigger "+dropped+" on colour_selections does not exist")
		}
	}
}
