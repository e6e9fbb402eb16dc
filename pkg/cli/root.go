package cli

import (
	"encoding/json"
	"errors"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/platinummonkey/orgadmin/pkg/app"
	"github.com/platinummonkey/orgadmin/pkg/config"
	"github.com/platinummonkey/orgadmin/pkg/observability"
)

var errNoAccount = errors.New("--account is required")

// env is shared by every subcommand. app is opened lazily from the config
// unless it was provided up front.
type env struct {
	configPath string
	account    string
	logLevel   string

	app   *app.App
	owned bool
	out   io.Writer
	in    io.Reader
}

// NewRootCommand creates the root command
func NewRootCommand() *cobra.Command {
	return newRootCommand(&env{out: os.Stdout, in: os.Stdin})
}

func newRootCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "orgadmin-cli",
		Short:         "Maintain organization hierarchy accounts",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if e.out == nil {
				e.out = cmd.OutOrStdout()
			}
			if e.in == nil {
				e.in = cmd.InOrStdin()
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if e.owned && e.app != nil {
				err := e.app.Close()
				e.app, e.owned = nil, false
				return err
			}
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&e.configPath, "config", os.Getenv("ORGADMIN_CONFIG"), "Path to the YAML configuration file")
	flags.StringVar(&e.account, "account", "", "Account id to operate on")
	flags.StringVar(&e.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")

	cmd.AddCommand(
		newExportCmd(e),
		newImportCmd(e),
		newSeedCmd(e),
		newMigrateCmd(e),
		newResetCmd(e),
		newTreeCmd(e),
		newAccountsCmd(e),
		newBackupCmd(e),
	)
	return cmd
}

// open returns the application, building it from the configuration on
// first use
func (e *env) open(cmd *cobra.Command) (*app.App, error) {
	if e.app != nil {
		return e.app, nil
	}
	cfg, err := config.Load(e.configPath)
	if err != nil {
		return nil, err
	}
	logger := observability.NewLogger(observability.ParseLogLevel(e.logLevel), observability.TextFormat, cmd.ErrOrStderr())
	a, err := app.New(cmd.Context(), cfg, logger)
	if err != nil {
		return nil, err
	}
	e.app, e.owned = a, true
	return a, nil
}

// requireAccount returns the --account value
func (e *env) requireAccount() (string, error) {
	if e.account == "" {
		return "", errNoAccount
	}
	return e.account, nil
}

func (e *env) writeJSON(v any) error {
	enc := json.NewEncoder(e.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
