package configcmder

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/fnindex/pkg/cliui"
	"github.com/papercomputeco/fnindex/pkg/config"
)

const listLongDesc string = `List configuration values grouped by TOML section.

Values that differ from the built-in defaults are marked with "*". Use
--changed to show only those.

Examples:
  fnindex config list
  fnindex config list --changed`

func newListCmd() *cobra.Command {
	var changedOnly bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all configuration values",
		Long:  listLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfger, err := openConfiger(cmd)
			if err != nil {
				return err
			}

			current, err := cfger.LoadConfig()
			if err != nil {
				return err
			}
			defaults := config.NewDefaultConfig()

			keys := config.ValidConfigKeys()
			width := 0
			for _, k := range keys {
				width = max(width, len(k))
			}

			out := cmd.OutOrStdout()
			printSource(out, cfger.GetTarget())

			section := ""
			for _, key := range keys {
				value := config.KeyValue(current, key)
				changed := value != config.KeyValue(defaults, key)
				if changedOnly && !changed {
					continue
				}

				if s, _, _ := strings.Cut(key, "."); s != section {
					section = s
					fmt.Fprintf(out, "  %s\n", cliui.HeaderStyle.Render("["+section+"]"))
				}

				mark := " "
				if changed {
					mark = "*"
				}
				fmt.Fprintf(out, "  %s %s  %s\n", mark, keyLabel(fmt.Sprintf("%-*s", width, key)), renderValue(value))
			}
			fmt.Fprintln(out)

			return nil
		},
	}

	cmd.Flags().BoolVar(&changedOnly, "changed", false, "Only show values that differ from the defaults")

	return cmd
}
