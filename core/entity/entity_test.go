package entity_test

import (
	"errors"
	"slices"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"

	"github.com/stokaro/tenantopts/core/entity"
)

func TestParseOptionType(t *testing.T) {
	tests := []struct {
		input    string
		expected entity.OptionType
		wantErr  bool
	}{
		{input: "dm", expected: entity.Mandatory},
		{input: "MANDATORY", expected: entity.Mandatory},
		{input: "optional", expected: entity.Optional},
		{input: "do", expected: entity.Optional},
		{input: " Custom ", expected: entity.Custom},
		{input: "", wantErr: true},
		{input: "required", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			c := qt.New(t)
			got, err := entity.ParseOptionType(tt.input)
			if tt.wantErr {
				c.Assert(err, qt.IsNotNil)
				return
			}
			c.Assert(err, qt.IsNil)
			c.Assert(got, qt.Equals, tt.expected)
		})
	}
}

func TestOptionType_IsDefault(t *testing.T) {
	c := qt.New(t)

	c.Assert(entity.Mandatory.IsDefault(), qt.IsTrue)
	c.Assert(entity.Optional.IsDefault(), qt.IsTrue)
	c.Assert(entity.Custom.IsDefault(), qt.IsFalse)
	c.Assert(entity.OptionType("xx").Valid(), qt.IsFalse)
	c.Assert(entity.Mandatory.Rank() < entity.Optional.Rank(), qt.IsTrue)
	c.Assert(entity.Optional.Rank() < entity.Custom.Rank(), qt.IsTrue)
}

func TestSoftDelete_Idempotent(t *testing.T) {
	c := qt.New(t)

	var o entity.Option
	c.Assert(o.IsActive(), qt.IsTrue)

	first := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	o.MarkDeleted(first)
	c.Assert(o.IsActive(), qt.IsFalse)

	o.MarkDeleted(first.Add(time.Hour))
	c.Assert(*o.Deleted, qt.Equals, first)
}

func TestSoftDelete_Reversible(t *testing.T) {
	c := qt.New(t)

	tenant := int64(7)
	original := entity.Option{ID: 3, Name: "Blocked", Type: entity.Custom, TenantID: &tenant}
	o := original

	o.MarkDeleted(time.Now())
	o.Undelete()
	c.Assert(o, qt.DeepEquals, original)

	// undeleting an active record is a no-op
	o.Undelete()
	c.Assert(o.IsActive(), qt.IsTrue)
}

func TestOption_CheckTenant(t *testing.T) {
	tenant := int64(1)
	tests := []struct {
		name    string
		option  entity.Option
		wantErr bool
	}{
		{name: "mandatory without tenant", option: entity.NewDefaultOption("High", entity.Mandatory)},
		{name: "optional without tenant", option: entity.NewDefaultOption("Low", entity.Optional)},
		{name: "custom with tenant", option: entity.NewCustomOption(1, "Blocked")},
		{name: "custom without tenant", option: entity.Option{Name: "x", Type: entity.Custom}, wantErr: true},
		{name: "default with tenant", option: entity.Option{Name: "x", Type: entity.Mandatory, TenantID: &tenant}, wantErr: true},
		{name: "invalid type", option: entity.Option{Name: "x", Type: "zz"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := qt.New(t)
			err := tt.option.CheckTenant()
			c.Assert(err != nil, qt.Equals, tt.wantErr)
		})
	}
}

func TestTenantMatches(t *testing.T) {
	c := qt.New(t)

	c.Assert(entity.TenantMatches(entity.NewDefaultOption("High", entity.Mandatory), 42), qt.IsTrue)
	c.Assert(entity.TenantMatches(entity.NewCustomOption(1, "Blocked"), 1), qt.IsTrue)
	c.Assert(entity.TenantMatches(entity.NewCustomOption(1, "Blocked"), 2), qt.IsFalse)
}

func TestFilterAndPredicates(t *testing.T) {
	c := qt.New(t)

	now := time.Now()
	deleted := entity.NewDefaultOption("Gone", entity.Optional)
	deleted.MarkDeleted(now)

	options := []entity.Option{
		entity.NewDefaultOption("High", entity.Mandatory),
		deleted,
		entity.NewCustomOption(1, "Blocked"),
		entity.NewCustomOption(2, "Waiting"),
	}

	active := entity.Filter(options, entity.Active[entity.Option])
	c.Assert(active, qt.HasLen, 3)

	gone := entity.Filter(options, entity.Deleted[entity.Option])
	c.Assert(gone, qt.HasLen, 1)
	c.Assert(gone[0].Name, qt.Equals, "Gone")

	owned := entity.Filter(options, entity.OwnedBy(2))
	c.Assert(owned, qt.HasLen, 1)
	c.Assert(owned[0].Name, qt.Equals, "Waiting")

	scoper := entity.DefaultOptionScoper{}
	custom := entity.Filter(options, scoper.Active(), scoper.Custom())
	c.Assert(custom, qt.HasLen, 2)
}

func TestCompareOptions(t *testing.T) {
	c := qt.New(t)

	options := []entity.Option{
		{ID: 5, Name: "blocked", Type: entity.Custom},
		{ID: 4, Name: "Low", Type: entity.Optional},
		{ID: 3, Name: "critical", Type: entity.Optional},
		{ID: 2, Name: "High", Type: entity.Mandatory},
		{ID: 1, Name: "Blocked", Type: entity.Custom},
	}
	slices.SortFunc(options, entity.CompareOptions)

	var ids []int64
	for _, o := range options {
		ids = append(ids, o.ID)
	}
	c.Assert(ids, qt.DeepEquals, []int64{2, 3, 4, 1, 5})
	c.Assert(entity.FoldName("STRASSE"), qt.Equals, entity.FoldName("straße"))
}

func TestErrors(t *testing.T) {
	c := qt.New(t)

	var err error = &entity.NotFoundError{Label: "option", ID: int64(4)}
	c.Assert(errors.Is(err, entity.ErrNotFound), qt.IsTrue)
	c.Assert(err.Error(), qt.Equals, "option not found (id=4)")

	err = &entity.OptionNotFoundError{Family: "priority", TenantID: 1, OptionID: 9}
	c.Assert(errors.Is(err, entity.ErrNotFound), qt.IsTrue)

	c.Assert((&entity.InvalidTenantError{}).Error(), qt.Contains, "no tenant provided")
	c.Assert((&entity.ConfigurationError{Family: "priority", Attribute: "selection table"}).Error(),
		qt.Equals, "family priority: selection table is not set")
}

func TestScope_String(t *testing.T) {
	c := qt.New(t)

	c.Assert(entity.ScopeActive.String(), qt.Equals, "active")
	c.Assert(entity.ScopeUnscoped.String(), qt.Equals, "unscoped")
	c.Assert(entity.ScopeDeleted.String(), qt.Equals, "deleted")
}
