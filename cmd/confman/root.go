package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/confman-io/confman/internal/history"
	"github.com/confman-io/confman/internal/infrastructure/config"
	"github.com/confman-io/confman/internal/infrastructure/database"
	"github.com/confman-io/confman/internal/infrastructure/logging"
	"github.com/confman-io/confman/internal/pipeline"
	"github.com/confman-io/confman/internal/schema"
	"github.com/confman-io/confman/internal/vault"
)

// app carries state shared by every subcommand: loaded settings and the
// logger. Command output goes to stdout; logs go to stderr so piping
// serialized configuration stays clean.
type app struct {
	cfgPath string
	cfg     *config.Config
	log     *logging.Logger
}

func newRootCommand() *cobra.Command {
	// The bootstrap logger covers anything that runs before settings are
	// loaded; init replaces it with the configured one.
	a := &app{log: logging.Default()}

	root := &cobra.Command{
		Use:   "confman",
		Short: "Layered configuration manager with validation, secrets and history",
		Long: `confman manages configuration as layered documents in JSON, YAML,
TOML or INI. Sources are merged with deterministic precedence, validated
against a schema, and committed to a versioned history store. Sensitive
fields are encrypted at rest; environment references are resolved at
load time.

Settings are read from the file given by --config (or CONFMAN_CONFIG),
with CONFMAN_* environment variables overriding individual values.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
	}

	root.PersistentFlags().StringVarP(&a.cfgPath, "config", "c", "", "path to confman settings file")

	root.AddCommand(
		newLoadCommand(a),
		newConvertCommand(a),
		newMergeCommand(a),
		newValidateCommand(a),
		newEnvCommand(a),
		newEncryptCommand(a),
		newDecryptCommand(a),
		newTemplateCommand(a),
		newCommitCommand(a),
		newHistoryCommand(a),
		newDiffCommand(a),
		newRollbackCommand(a),
		newPruneCommand(a),
	)

	return root
}

// init loads settings and builds the logger. Runs before every
// subcommand.
func (a *app) init() error {
	path := a.cfgPath
	if path == "" {
		path = os.Getenv("CONFMAN_CONFIG")
	}

	var err error
	if path != "" {
		a.cfg, err = config.Load(path)
	} else {
		a.cfg, err = config.FromEnvironment()
	}
	if err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}

	a.log = logging.New(a.cfg.Logging, version)
	return nil
}

// markers builds the sensitive-field markers from settings.
func (a *app) markers() *vault.Markers {
	return vault.NewMarkersWithSuffix(a.cfg.Vault.Markers, a.cfg.Vault.Suffix)
}

// openVault creates the vault from configured key material. A nil vault
// with nil error means no key is configured.
func (a *app) openVault() (*vault.Vault, error) {
	key, err := a.cfg.KeyMaterial()
	if err != nil {
		return nil, err
	}
	if key == nil {
		return nil, nil
	}
	return vault.New(key)
}

// requireVault is openVault for commands that cannot work without a key.
func (a *app) requireVault() (*vault.Vault, error) {
	v, err := a.openVault()
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, fmt.Errorf("no vault key configured: set %s or vault.key_file", a.cfg.Vault.KeyEnv)
	}
	return v, nil
}

// openStore opens the history store, running migrations first. The
// returned cleanup closes the database and must be deferred.
func (a *app) openStore(ctx context.Context) (*history.Store, func(), error) {
	db, err := database.Open(database.Config{
		Path:        a.cfg.Store.Path,
		WALMode:     a.cfg.Store.WALMode,
		BusyTimeout: a.cfg.Store.BusyTimeout,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("opening store: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}

	cleanup := func() {
		if err := db.Close(); err != nil {
			a.log.Error("error closing store", "error", err)
		}
	}
	return history.NewStore(db, a.log, a.markers()), cleanup, nil
}

// newPipeline wires a pipeline for dry runs. Commit commands attach the
// store and lock afterwards.
func (a *app) newPipeline(sch *schema.Schema, strict bool) (*pipeline.Pipeline, error) {
	v, err := a.openVault()
	if err != nil {
		return nil, err
	}
	return &pipeline.Pipeline{
		Log:     a.log,
		Vault:   v,
		Markers: a.markers(),
		Schema:  sch,
		Strict:  strict || a.cfg.Validation.Strict,
	}, nil
}
