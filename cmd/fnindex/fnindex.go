// Package fnindexcmder
package fnindexcmder

import (
	"github.com/spf13/cobra"

	addcmder "github.com/papercomputeco/fnindex/cmd/fnindex/add"
	clearcmder "github.com/papercomputeco/fnindex/cmd/fnindex/clear"
	configcmder "github.com/papercomputeco/fnindex/cmd/fnindex/config"
	initcmder "github.com/papercomputeco/fnindex/cmd/fnindex/init"
	rebuildcmder "github.com/papercomputeco/fnindex/cmd/fnindex/rebuild"
	searchcmder "github.com/papercomputeco/fnindex/cmd/fnindex/search"
	servecmder "github.com/papercomputeco/fnindex/cmd/fnindex/serve"
	statscmder "github.com/papercomputeco/fnindex/cmd/fnindex/stats"
	versioncmder "github.com/papercomputeco/fnindex/cmd/version"
)

const fnindexLongDesc string = `fnindex is a hybrid retrieval engine for function definitions.

Register functions with their descriptions, parameters, use cases and tags,
then find the right one from a free-text query. Ranking fuses semantic
similarity across several text views with keyword and category signals.

Run the server with:
  fnindex serve

Then, against a running server:
  fnindex add -f functions.json    Register functions
  fnindex search "sum two numbers" Find functions
  fnindex stats                    Show index statistics`

const fnindexShortDesc string = "fnindex - Hybrid Function Retrieval"

func NewFnindexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "fnindex",
		Short:         fnindexShortDesc,
		Long:          fnindexLongDesc,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to .fnindex/ config directory")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(searchcmder.NewSearchCmd())
	cmd.AddCommand(addcmder.NewAddCmd())
	cmd.AddCommand(clearcmder.NewClearCmd())
	cmd.AddCommand(rebuildcmder.NewRebuildCmd())
	cmd.AddCommand(statscmder.NewStatsCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
