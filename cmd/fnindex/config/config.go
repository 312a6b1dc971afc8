// Package configcmder provides the config command for managing persistent
// fnindex configuration stored in the .fnindex/ directory.
package configcmder

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/fnindex/pkg/cliui"
	"github.com/papercomputeco/fnindex/pkg/config"
)

const configLongDesc string = `Manage persistent fnindex configuration.

Configuration is stored as config.toml in the .fnindex/ directory. Values
resolve in this order: command flags, FNINDEX_* environment variables,
config.toml, built-in defaults.

Keys use dotted notation matching the TOML section structure, for example
embedding.model or retrieval.semantic_weight. Run "fnindex config list" for
every key.

Examples:
  fnindex config set embedding.provider openai
  fnindex config set retrieval.threshold 0.4
  fnindex config get embedding.provider
  fnindex config list --changed
  fnindex config path`

const configShortDesc string = "Manage persistent fnindex configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newPathCmd())

	return cmd
}

// configKeyCompletion completes the first positional argument with config keys.
func configKeyCompletion(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) == 0 {
		return config.ValidConfigKeys(), cobra.ShellCompDirectiveNoFileComp
	}
	return nil, cobra.ShellCompDirectiveNoFileComp
}

func checkKey(key string) error {
	if config.IsValidConfigKey(key) {
		return nil
	}
	return fmt.Errorf("unknown config key: %q\n\nValid keys: %s",
		key, strings.Join(config.ValidConfigKeys(), ", "))
}

// openConfiger resolves the .fnindex/ directory from the --config-dir flag.
func openConfiger(cmd *cobra.Command) (*config.Configer, error) {
	configDir, _ := cmd.Flags().GetString("config-dir")
	cfger, err := config.NewConfiger(configDir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfger, nil
}

func printSource(w io.Writer, target string) {
	if target == "" {
		fmt.Fprintf(w, "\n  %s\n\n", cliui.DimStyle.Render("No config file found. Using defaults."))
		return
	}
	fmt.Fprintf(w, "\n  %s %s\n\n",
		cliui.KeyStyle.Render("Config file:"),
		cliui.DimStyle.Render(target),
	)
}

func renderValue(value string) string {
	if value == "" {
		return cliui.DimStyle.Render("<not set>")
	}
	return cliui.ValueStyle.Render(value)
}
