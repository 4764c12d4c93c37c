package syncoptions

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-extras/cobraflags"
	"github.com/spf13/cobra"

	"github.com/stokaro/tenantopts/cmd/internal/app"
	"github.com/stokaro/tenantopts/defaults"
)

const (
	familyFlag      = "family"
	groupFlag       = "group"
	concurrencyFlag = "concurrency"
)

var syncFlags = map[string]cobraflags.Flag{
	familyFlag: &cobraflags.StringFlag{
		Name:  familyFlag,
		Value: "",
		Usage: "Only sync this family (name, group.name or selection table)",
	},
	groupFlag: &cobraflags.StringFlag{
		Name:  groupFlag,
		Value: "",
		Usage: "Only sync the families of this group",
	},
	concurrencyFlag: &cobraflags.IntFlag{
		Name:  concurrencyFlag,
		Value: 0,
		Usage: "Families synced in parallel (0 uses the sync_concurrency setting)",
	},
}

// NewSyncOptionsCommand creates the syncoptions command.
func NewSyncOptionsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "syncoptions",
		Short: "Synchronize the default options of every family with the database",
		Long: `Create, update and restore the default options declared in the manifest.

Defaults are matched by case-insensitive name. Options removed from the
manifest are never deleted; they are reported as undeclared instead. Each
family is synced in its own transaction and a failing family does not stop
the others.`,
		Args: cobra.NoArgs,
		RunE: syncCommand,
	}
	cobraflags.RegisterMap(cmd, syncFlags)
	return cmd
}

func syncCommand(cmd *cobra.Command, _ []string) error {
	env, err := app.Load()
	if err != nil {
		return err
	}
	families, err := env.Families(syncFlags[familyFlag].GetString(), syncFlags[groupFlag].GetString())
	if err != nil {
		return err
	}

	conn, s, err := env.Open()
	if err != nil {
		return err
	}
	defer conn.Close()

	syncer := defaults.New(s).WithLogger(env.Logger)
	if n := syncFlags[concurrencyFlag].GetInt(); n > 0 {
		syncer = syncer.WithConcurrency(n)
	}

	results, err := syncer.SyncAll(context.Background(), families)

	out := cmd.OutOrStdout()
	for _, r := range results {
		if r.Err != nil {
			fmt.Fprintf(out, "%s: failed: %v\n", r.Family, r.Err)
			continue
		}
		fmt.Fprintf(out, "%s: created %d, updated %d, restored %d, unchanged %d\n",
			r.Family, len(r.Created), len(r.Updated), len(r.Restored), len(r.Unchanged))
		if len(r.Undeclared) > 0 {
			fmt.Fprintf(out, "  not declared in the manifest: %s\n", strings.Join(r.Undeclared, ", "))
		}
	}
	return err
}
