// Package cli implements the ground command line.
package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/roach88/ground/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigFile string
	Verbose    bool
	Format     string // "json" | "text"

	// Config is loaded before any subcommand runs.
	Config config.Config

	viper *viper.Viper
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the ground CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	if opts.viper == nil {
		opts.viper = config.NewViper()
	}

	cmd := &cobra.Command{
		Use:   "ground",
		Short: "Ground - versioned metadata and provenance",
		Long: `Ground records the version history of metadata items (nodes, edges,
graphs, structures and lineage) and answers questions about it.

Settings come from --config, GROUND_* environment variables and flags.

Examples:
  ground run --db ./ground.db scenario.yaml
  ground leaves --db ./ground.db 4
  ground dag --backend badger --db ./ground-data 4 --format json`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			cfg, err := config.Load(opts.viper, opts.ConfigFile)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load config", err)
			}
			if opts.Verbose {
				cfg.Log.Level = "debug"
			}
			opts.Config = cfg
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.ConfigFile, "config", "", "config file (YAML)")
	flags.String("backend", "", "storage backend (sqlite|badger)")
	flags.String("db", "", "SQLite file or badger directory")
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	flags.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	_ = opts.viper.BindPFlag("backend", flags.Lookup("backend"))
	_ = opts.viper.BindPFlag("path", flags.Lookup("db"))

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewLeavesCommand(opts))
	cmd.AddCommand(NewDAGCommand(opts))
	cmd.AddCommand(NewVersionCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

// formatter returns an OutputFormatter writing to cmd's streams.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}
