package validateoptions

import (
	"context"
	"fmt"

	"github.com/go-extras/cobraflags"
	"github.com/spf13/cobra"

	"github.com/stokaro/tenantopts/cmd/internal/app"
	"github.com/stokaro/tenantopts/validate"
)

const (
	familyFlag  = "family"
	groupFlag   = "group"
	offlineFlag = "offline"
)

var validateFlags = map[string]cobraflags.Flag{
	familyFlag: &cobraflags.StringFlag{
		Name:  familyFlag,
		Value: "",
		Usage: "Only validate this family (name, group.name or selection table)",
	},
	groupFlag: &cobraflags.StringFlag{
		Name:  groupFlag,
		Value: "",
		Usage: "Only validate the families of this group",
	},
	offlineFlag: &cobraflags.BoolFlag{
		Name:  offlineFlag,
		Value: false,
		Usage: "Skip the database checks even if a database URL is configured",
	},
}

// NewValidateOptionsCommand creates the validateoptions command.
func NewValidateOptionsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validateoptions",
		Short: "Check the family configuration and the stored options",
		Long: `Run the read-only diagnostics over the registered families.

The family declarations are always checked. When a database URL is configured
the stored options, orphaned selections, tables and triggers are checked too.
Nothing is modified. The command fails if any error is found; warnings are
reported only.`,
		Args: cobra.NoArgs,
		RunE: validateCommand,
	}
	cobraflags.RegisterMap(cmd, validateFlags)
	return cmd
}

func validateCommand(cmd *cobra.Command, _ []string) error {
	env, err := app.Load()
	if err != nil {
		return err
	}

	families, err := env.Families(validateFlags[familyFlag].GetString(), validateFlags[groupFlag].GetString())
	if err != nil {
		return err
	}

	v := validate.New(env.Settings).WithLogger(env.Logger)
	if env.HasDatabase() && !validateFlags[offlineFlag].GetBool() {
		conn, s, err := env.Open()
		if err != nil {
			return err
		}
		defer conn.Close()
		v = v.WithStore(s).WithSchemaReader(conn.Reader(), conn.Dialect())
	}

	report := v.Run(context.Background(), families)

	out := cmd.OutOrStdout()
	for _, f := range report.Findings {
		fmt.Fprintln(out, f.String())
	}
	fmt.Fprintf(out, "%d error(s), %d warning(s)\n", len(report.Errors()), len(report.Warnings()))

	if !report.OK() {
		return fmt.Errorf("validation failed with %d error(s)", len(report.Errors()))
	}
	return nil
}
