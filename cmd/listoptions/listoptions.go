package listoptions

import (
	"context"
	"fmt"
	"io"

	"github.com/go-extras/cobraflags"
	"github.com/spf13/cobra"

	"github.com/stokaro/tenantopts/cmd/internal/app"
	"github.com/stokaro/tenantopts/core/entity"
	"github.com/stokaro/tenantopts/core/family"
	"github.com/stokaro/tenantopts/store"
	"github.com/stokaro/tenantopts/tenancy"
)

const (
	familyFlag         = "family"
	groupFlag          = "group"
	tenantFlag         = "tenant"
	includeDeletedFlag = "include-deleted"
)

var listFlags = map[string]cobraflags.Flag{
	familyFlag: &cobraflags.StringFlag{
		Name:  familyFlag,
		Value: "",
		Usage: "Only list this family (name, group.name or selection table)",
	},
	groupFlag: &cobraflags.StringFlag{
		Name:  groupFlag,
		Value: "",
		Usage: "Only list the families of this group",
	},
	tenantFlag: &cobraflags.IntFlag{
		Name:  tenantFlag,
		Value: 0,
		Usage: "List the options visible to this tenant and mark its selections",
	},
	includeDeletedFlag: &cobraflags.BoolFlag{
		Name:  includeDeletedFlag,
		Value: false,
		Usage: "Include soft-deleted options",
	},
}

// NewListOptionsCommand creates the listoptions command.
func NewListOptionsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "listoptions",
		Short: "List the options of each family",
		Long: `List the options stored for each family.

Without --tenant every default option and every tenant's custom options are
listed. With --tenant only the options visible to that tenant are listed, in
display order, and the selected ones are marked.`,
		Args: cobra.NoArgs,
		RunE: listCommand,
	}
	cobraflags.RegisterMap(cmd, listFlags)
	return cmd
}

func listCommand(cmd *cobra.Command, _ []string) error {
	env, err := app.Load()
	if err != nil {
		return err
	}
	families, err := env.Families(listFlags[familyFlag].GetString(), listFlags[groupFlag].GetString())
	if err != nil {
		return err
	}

	conn, s, err := env.Open()
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx := context.Background()
	tenant := int64(listFlags[tenantFlag].GetInt())
	includeDeleted := listFlags[includeDeletedFlag].GetBool()
	out := cmd.OutOrStdout()

	for _, f := range families {
		fmt.Fprintf(out, "=== %s (%s) ===\n", f.String(), f.OptionTable)
		if tenant != 0 {
			err = listForTenant(ctx, out, s, f, tenant, includeDeleted)
		} else {
			err = listAll(ctx, out, s, f, includeDeleted)
		}
		if err != nil {
			return fmt.Errorf("family %s: %w", f.Name, err)
		}
		fmt.Fprintln(out)
	}
	return nil
}

func listAll(ctx context.Context, out io.Writer, s *store.Store, f *family.Family, includeDeleted bool) error {
	repo, err := s.For(f)
	if err != nil {
		return err
	}
	filter := store.OptionFilter{}
	if includeDeleted {
		filter.Scope = entity.ScopeUnscoped
	}
	options, err := repo.ListOptions(ctx, filter)
	if err != nil {
		return err
	}
	for _, o := range options {
		printOption(out, o, "")
	}
	if len(options) == 0 {
		fmt.Fprintln(out, "(no options)")
	}
	return nil
}

func listForTenant(ctx context.Context, out io.Writer, s *store.Store, f *family.Family, tenant int64, includeDeleted bool) error {
	q := tenancy.New(s)
	var opts []tenancy.QueryOption
	if includeDeleted {
		opts = append(opts, tenancy.IncludeDeleted())
	}
	visible, err := q.OptionsForTenant(ctx, f, tenant, opts...)
	if err != nil {
		return err
	}
	selected, err := q.SelectedOptionsForTenant(ctx, f, tenant)
	if err != nil {
		return err
	}
	isSelected := make(map[int64]bool, len(selected))
	for _, o := range selected {
		isSelected[o.ID] = true
	}

	for _, o := range visible {
		mark := " "
		if isSelected[o.ID] {
			mark = "*"
		}
		printOption(out, o, mark)
	}
	if len(visible) == 0 {
		fmt.Fprintln(out, "(no options)")
	}
	return nil
}

func printOption(out io.Writer, o entity.Option, mark string) {
	tenant := "-"
	if o.TenantID != nil {
		tenant = fmt.Sprintf("%d", *o.TenantID)
	}
	deleted := ""
	if !o.IsActive() {
		deleted = "  (deleted " + o.DeletedAt().Format("2006-01-02 15:04:05") + ")"
	}
	fmt.Fprintf(out, "%s%6d  %-9s  %-6s  %s%s\n", mark, o.ID, o.Type.Label(), tenant, o.Name, deleted)
}
