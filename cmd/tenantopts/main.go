// Command tenantopts manages the tenant scoped option families of a database:
// it syncs default options, lists and validates them, and writes and applies
// the table and trigger migrations.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/stokaro/tenantopts/cmd/generate"
	"github.com/stokaro/tenantopts/cmd/internal/app"
	"github.com/stokaro/tenantopts/cmd/listoptions"
	"github.com/stokaro/tenantopts/cmd/maketriggers"
	"github.com/stokaro/tenantopts/cmd/migrate"
	"github.com/stokaro/tenantopts/cmd/syncoptions"
	"github.com/stokaro/tenantopts/cmd/validateoptions"
)

func main() {
	root := &cobra.Command{
		Use:          "tenantopts",
		Short:        "Manage tenant scoped option families",
		SilenceUsage: true,
	}
	app.Register(root)

	root.AddCommand(
		syncoptions.NewSyncOptionsCommand(),
		listoptions.NewListOptionsCommand(),
		validateoptions.NewValidateOptionsCommand(),
		maketriggers.NewMakeTriggersCommand(),
		maketriggers.NewRemoveTriggersCommand(),
		migrate.NewMigrateCommand(),
		generate.NewGenerateCommand(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
