package configcmder

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the path of the active config.toml",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfger, err := openConfiger(cmd)
			if err != nil {
				return err
			}

			target := cfger.GetTarget()
			if target == "" {
				return errors.New(`no .fnindex/ directory found; run "fnindex init" first`)
			}

			fmt.Fprintln(cmd.OutOrStdout(), target)
			return nil
		},
	}
}
