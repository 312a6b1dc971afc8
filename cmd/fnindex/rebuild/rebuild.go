// Package rebuildcmder provides the rebuild command, which re-embeds and
// re-indexes every stored function on a running fnindex server.
package rebuildcmder

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/fnindex/api"
	apiclient "github.com/papercomputeco/fnindex/api/client"
	"github.com/papercomputeco/fnindex/pkg/cliui"
	"github.com/papercomputeco/fnindex/pkg/config"
	"github.com/papercomputeco/fnindex/pkg/logger"
)

type rebuildCommander struct {
	apiTarget string
	out       io.Writer

	debug  bool
	logger *zap.Logger
}

const rebuildLongDesc string = `Rebuild the vector index from the stored function records.

Every function is re-embedded with the server's current embedding provider
and its vectors are replaced. Use this after switching embedding models or
vector stores. Functions that fail to re-index are reported individually.

Example:
  fnindex rebuild
  fnindex rebuild --api-target http://localhost:8081`

const rebuildShortDesc string = "Re-index all stored functions"

func NewRebuildCmd() *cobra.Command {
	cmder := &rebuildCommander{out: os.Stdout}

	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: rebuildShortDesc,
		Long:  rebuildLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			config.BindRegisteredFlags(v, cmd, config.ClientFlags, []string{config.FlagAPITarget})
			cmder.apiTarget = v.GetString("client.api_target")
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmder.debug, _ = cmd.Flags().GetBool("debug")
			cmder.out = cmd.OutOrStdout()
			return cmder.run(cmd.Context())
		},
	}

	config.AddStringFlag(cmd, config.ClientFlags, config.FlagAPITarget, &cmder.apiTarget)

	return cmd
}

func (c *rebuildCommander) run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	c.logger = logger.NewLogger(c.debug)
	defer func() { _ = c.logger.Sync() }()

	client, err := apiclient.New(c.apiTarget)
	if err != nil {
		return err
	}

	c.logger.Debug("rebuilding index", zap.String("api_target", c.apiTarget))

	var resp *api.BatchResponse
	err = cliui.Step(c.out, "Rebuilding function index", func() error {
		var rebuildErr error
		resp, rebuildErr = client.Rebuild(ctx)
		return rebuildErr
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(c.out, "\n  %s %d\n", cliui.KeyStyle.Render("indexed:"), resp.Indexed)
	if len(resp.Failed) == 0 {
		return nil
	}

	fmt.Fprintf(c.out, "  %s %d\n", cliui.KeyStyle.Render("failed:"), len(resp.Failed))
	for _, f := range resp.Failed {
		fmt.Fprintf(c.out, "    %s %s %s\n",
			cliui.FailMark,
			cliui.ValueStyle.Render(f.Name),
			cliui.DimStyle.Render(f.Error),
		)
	}
	return fmt.Errorf("%d functions failed to re-index", len(resp.Failed))
}
