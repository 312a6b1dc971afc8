package configcmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/fnindex/pkg/cliui"
)

const setLongDesc string = `Set a configuration value.

Writes key = value to config.toml in the .fnindex/ directory. The value is
validated before anything is written. List values (retrieval.views,
events.brokers) are comma separated.

Examples:
  fnindex config set embedding.provider openai
  fnindex config set embedding.dimensions 1536
  fnindex config set retrieval.views combined,keywords`

func newSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:               "set <key> <value>",
		Short:             "Set a configuration value",
		Long:              setLongDesc,
		Args:              cobra.ExactArgs(2),
		ValidArgsFunction: configKeyCompletion,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, value := args[0], args[1]
			if err := checkKey(key); err != nil {
				return err
			}

			cfger, err := openConfiger(cmd)
			if err != nil {
				return err
			}

			if err := cfger.SetConfigValue(key, value); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			printSource(out, cfger.GetTarget())
			fmt.Fprintf(out, "  %s Set %s = %s\n\n",
				cliui.SuccessMark,
				keyLabel(key),
				cliui.ValueStyle.Render(value),
			)
			return nil
		},
	}
}

func keyLabel(key string) string {
	return cliui.KeyStyle.Render(key)
}
