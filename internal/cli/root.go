package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	Config  string
	Store   string // overrides store.path from the config

	configSet bool
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// DefaultConfigPath is read when --config is not given. A missing default
// file is not an error: the built-in defaults apply.
const DefaultConfigPath = "entigraph.yaml"

// NewRootCommand creates the root command for the entigraph CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "entigraph",
		Short: "entigraph - transactional entity graphs over flat stores",
		Long: `Inspect and query an entity repository.

Entities are typed by a CUE schema and stored as flat, type-tagged
documents. Queries are compiled to the store's native query language.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			opts.configSet = cmd.Flags().Changed("config")
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.Config, "config", "c", DefaultConfigPath, "repository config file")
	cmd.PersistentFlags().StringVar(&opts.Store, "db", "", "database path (overrides the config)")

	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewDumpCommand(opts))
	cmd.AddCommand(NewGetCommand(opts))
	cmd.AddCommand(NewFindCommand(opts))
	cmd.AddCommand(NewStatsCommand(opts))

	return cmd
}
