package selection_test

import (
	"context"
	"errors"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/stokaro/tenantopts/core/entity"
	"github.com/stokaro/tenantopts/core/family"
	"github.com/stokaro/tenantopts/defaults"
	"github.com/stokaro/tenantopts/selection"
	"github.com/stokaro/tenantopts/store"
	"github.com/stokaro/tenantopts/store/storetest"
	"github.com/stokaro/tenantopts/tenancy"
)

type fixture struct {
	f      *family.Family
	s      *store.Store
	q      *tenancy.Querier
	r      *selection.Reconciler
	byName map[string]int64
}

func setup(c *qt.C) *fixture {
	ctx := context.Background()
	f := family.New("priority", family.WithDefaults(
		family.Mandatory("High"), family.Optional("Critical"), family.Optional("Low"),
	))
	s, _ := storetest.New(c.TB, f)
	_, err := defaults.New(s).Sync(ctx, f)
	c.Assert(err, qt.IsNil)

	fx := &fixture{f: f, s: s, q: tenancy.New(s), r: selection.New(s), byName: map[string]int64{}}
	visible, err := fx.q.OptionsForTenant(ctx, f, 1)
	c.Assert(err, qt.IsNil)
	for _, o := range visible {
		fx.byName[o.Name] = o.ID
	}
	return fx
}

func (fx *fixture) selected(c *qt.C, tenant int64) []string {
	options, err := fx.q.SelectedOptionsForTenant(context.Background(), fx.f, tenant)
	c.Assert(err, qt.IsNil)
	out := make([]string, len(options))
	for i, o := range options {
		out[i] = o.Name
	}
	return out
}

func (fx *fixture) selectionRows(c *qt.C, tenant int64) []entity.Selection {
	repo, err := fx.s.For(fx.f)
	c.Assert(err, qt.IsNil)
	rows, err := repo.ListSelections(context.Background(), store.SelectionFilter{Scope: entity.ScopeUnscoped, TenantID: &tenant})
	c.Assert(err, qt.IsNil)
	return rows
}

func TestApplySelection_SelectAndRevert(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	fx := setup(c)
	high, critical := fx.byName["High"], fx.byName["Critical"]

	delta, err := fx.r.ApplySelection(ctx, fx.f, 1, []int64{critical})
	c.Assert(err, qt.IsNil)
	c.Assert(delta, qt.DeepEquals, selection.Delta{Added: []int64{high, critical}})
	c.Assert(fx.selected(c, 1), qt.DeepEquals, []string{"High", "Critical"})

	delta, err = fx.r.ApplySelection(ctx, fx.f, 1, nil)
	c.Assert(err, qt.IsNil)
	c.Assert(delta, qt.DeepEquals, selection.Delta{Removed: []int64{critical}})
	c.Assert(fx.selected(c, 1), qt.DeepEquals, []string{"High"})

	// The option itself stays active.
	visible, err := fx.q.OptionsForTenant(ctx, fx.f, 1)
	c.Assert(err, qt.IsNil)
	c.Assert(visible, qt.HasLen, 3)

	delta, err = fx.r.ApplySelection(ctx, fx.f, 1, []int64{critical})
	c.Assert(err, qt.IsNil)
	c.Assert(delta, qt.DeepEquals, selection.Delta{Restored: []int64{critical}})

	delta, err = fx.r.ApplySelection(ctx, fx.f, 1, []int64{critical})
	c.Assert(err, qt.IsNil)
	c.Assert(delta.Empty(), qt.IsTrue)
}

func TestApplySelection_NoDuplicateRows(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	fx := setup(c)
	critical, low := fx.byName["Critical"], fx.byName["Low"]

	sequence := [][]int64{
		{critical},
		{critical, low},
		{},
		{low},
		{critical, low, critical},
		{},
		{low},
	}
	for _, desired := range sequence {
		_, err := fx.r.ApplySelection(ctx, fx.f, 1, desired)
		c.Assert(err, qt.IsNil)
	}

	rows := fx.selectionRows(c, 1)
	c.Assert(rows, qt.HasLen, 3)
	seen := map[int64]bool{}
	for _, row := range rows {
		c.Assert(seen[row.OptionID], qt.IsFalse)
		seen[row.OptionID] = true
	}
	c.Assert(fx.selected(c, 1), qt.DeepEquals, []string{"High", "Low"})
}

func TestApplySelection_MandatoryAlwaysIncluded(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	fx := setup(c)

	for _, tenant := range storetest.Tenants {
		_, err := fx.r.ApplySelection(ctx, fx.f, tenant, nil)
		c.Assert(err, qt.IsNil)
		c.Assert(fx.selected(c, tenant), qt.DeepEquals, []string{"High"})

		rows := fx.selectionRows(c, tenant)
		c.Assert(rows, qt.HasLen, 1)
		c.Assert(rows[0].OptionID, qt.Equals, fx.byName["High"])
		c.Assert(rows[0].IsActive(), qt.IsTrue)
	}
}

func TestApplySelection_CustomOptions(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	fx := setup(c)

	blocked, err := fx.q.CreateCustomOption(ctx, fx.f, 1, "Blocked")
	c.Assert(err, qt.IsNil)

	_, err = fx.r.ApplySelection(ctx, fx.f, 1, []int64{blocked.ID})
	c.Assert(err, qt.IsNil)
	c.Assert(fx.selected(c, 1), qt.DeepEquals, []string{"High", "Blocked"})

	// Another tenant cannot select it.
	_, err = fx.r.ApplySelection(ctx, fx.f, 2, []int64{fx.byName["Low"], blocked.ID})
	var notFound *entity.OptionNotFoundError
	c.Assert(errors.As(err, &notFound), qt.IsTrue)
	c.Assert(notFound.OptionID, qt.Equals, blocked.ID)
	c.Assert(errors.Is(err, entity.ErrNotFound), qt.IsTrue)
	c.Assert(fx.selectionRows(c, 2), qt.HasLen, 0)
}

func TestApplySelection_Errors(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	fx := setup(c)

	_, err := fx.r.ApplySelection(ctx, fx.f, 0, nil)
	var invalid *entity.InvalidTenantError
	c.Assert(errors.As(err, &invalid), qt.IsTrue)

	_, err = fx.r.ApplySelection(ctx, fx.f, 1, []int64{999})
	c.Assert(err, qt.ErrorMatches, "option 999 not found for tenant 1 in family priority")

	// Soft-deleted options cannot be selected.
	repo, err := fx.s.For(fx.f)
	c.Assert(err, qt.IsNil)
	c.Assert(repo.DeleteOption(ctx, fx.byName["Low"]), qt.IsNil)
	_, err = fx.r.ApplySelection(ctx, fx.f, 1, []int64{fx.byName["Low"]})
	c.Assert(errors.Is(err, entity.ErrNotFound), qt.IsTrue)

	_, err = fx.r.ApplySelection(ctx, family.New("unwired", family.WithTenantKey("")), 1, nil)
	var cfgErr *entity.ConfigurationError
	c.Assert(errors.As(err, &cfgErr), qt.IsTrue)
}
