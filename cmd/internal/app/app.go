// Package app holds what every tenantopts command shares: the persistent
// flags, settings and manifest loading, logging and the database connection.
package app

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/stokaro/tenantopts/config"
	"github.com/stokaro/tenantopts/core/family"
	"github.com/stokaro/tenantopts/dbschema"
	"github.com/stokaro/tenantopts/store"
)

// Persistent flag names.
const (
	ConfigFlag   = "config"
	ManifestFlag = "manifest"
	DBURLFlag    = "db-url"
	LogLevelFlag = "log-level"
)

// Viper keys of the persistent flags. DBURLKey is also read from TENANTOPTS_DB_URL.
const (
	ManifestKey = "manifest"
	DBURLKey    = "db_url"
	LogLevelKey = "log_level"
)

var persistentFlags *pflag.FlagSet

// Register adds the persistent flags to root and installs the logger before
// any subcommand runs.
func Register(root *cobra.Command) {
	pf := root.PersistentFlags()
	pf.String(ConfigFlag, "", "Config file with a tenant_options section (yaml, toml or json)")
	pf.String(ManifestFlag, "tenantopts.yaml", "Manifest declaring the option families")
	pf.String(DBURLFlag, "", "Database URL (postgres://, mysql://, mariadb://, sqlite://); also TENANTOPTS_DB_URL")
	pf.String(LogLevelFlag, "info", "Log level (debug, info, warn, error)")
	persistentFlags = pf

	root.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		level, err := pf.GetString(LogLevelFlag)
		if err != nil {
			return err
		}
		return SetupLogging(cmd.ErrOrStderr(), level)
	}
}

// SetupLogging installs a text handler at level as the default logger.
func SetupLogging(w io.Writer, level string) error {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: l})))
	return nil
}

// Env is the loaded configuration of one command run.
type Env struct {
	Settings *config.Settings
	Registry *family.Registry
	DBURL    string
	Logger   *slog.Logger
}

// Load reads the config file, the environment and the manifest.
func Load() (*Env, error) {
	v := viper.New()
	if persistentFlags != nil {
		for key, flag := range map[string]string{ManifestKey: ManifestFlag, DBURLKey: DBURLFlag, LogLevelKey: LogLevelFlag} {
			if err := v.BindPFlag(key, persistentFlags.Lookup(flag)); err != nil {
				return nil, fmt.Errorf("failed to bind flag %s: %w", flag, err)
			}
		}
		if path, _ := persistentFlags.GetString(ConfigFlag); path != "" {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	settings, err := config.FromViper(v)
	if err != nil {
		return nil, err
	}

	manifestPath := v.GetString(ManifestKey)
	if manifestPath == "" {
		return nil, errors.New("a family manifest is required (--manifest)")
	}
	manifest, err := family.LoadManifestFile(manifestPath)
	if err != nil {
		return nil, err
	}
	registry, err := manifest.Registry()
	if err != nil {
		return nil, fmt.Errorf("invalid manifest %s: %w", manifestPath, err)
	}

	return &Env{
		Settings: settings,
		Registry: registry,
		DBURL:    strings.TrimSpace(v.GetString(DBURLKey)),
		Logger:   slog.Default(),
	}, nil
}

// Families selects the families named by the --family and --group flags.
func (e *Env) Families(familyName, group string) ([]*family.Family, error) {
	return e.Registry.Select(family.Scope{Family: familyName, Group: group})
}

// HasDatabase reports whether a database URL is configured.
func (e *Env) HasDatabase() bool {
	return e.DBURL != ""
}

// Dialect returns the dialect of the configured database, or "" without one.
func (e *Env) Dialect() string {
	if !e.HasDatabase() {
		return ""
	}
	d, err := dbschema.DialectFromURL(e.DBURL)
	if err != nil {
		return ""
	}
	return d
}

// Connect opens the configured database.
func (e *Env) Connect() (*dbschema.DatabaseConnection, error) {
	if !e.HasDatabase() {
		return nil, fmt.Errorf("a database URL is required (--%s or %s_DB_URL)", DBURLFlag, config.EnvPrefix)
	}
	conn, err := dbschema.ConnectToDatabase(e.DBURL)
	if err != nil {
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}
	e.Logger.Debug("Connected to database", "url", conn.Info().URL, "dialect", conn.Dialect(), "version", conn.Info().Version)
	return conn, nil
}

// Store wraps conn in a store carrying the loaded settings.
func (e *Env) Store(conn *dbschema.DatabaseConnection) (*store.Store, error) {
	s, err := store.New(conn.DB(), conn.Dialect())
	if err != nil {
		return nil, err
	}
	return s.WithSettings(e.Settings).WithLogger(e.Logger), nil
}

// Open connects and returns the store; close the connection when done.
func (e *Env) Open() (*dbschema.DatabaseConnection, *store.Store, error) {
	conn, err := e.Connect()
	if err != nil {
		return nil, nil, err
	}
	s, err := e.Store(conn)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	return conn, s, nil
}
