// Package clearcmder provides the clear command, which removes every
// registered function from a running fnindex server.
package clearcmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	apiclient "github.com/papercomputeco/fnindex/api/client"
	"github.com/papercomputeco/fnindex/pkg/cliui"
	"github.com/papercomputeco/fnindex/pkg/config"
	"github.com/papercomputeco/fnindex/pkg/logger"
)

type clearCommander struct {
	yes       bool
	apiTarget string
	out       io.Writer

	debug  bool
	logger *zap.Logger
}

const clearLongDesc string = `Remove every registered function and its vectors.

This cannot be undone. Pass --yes to confirm.

Example:
  fnindex clear --yes
  fnindex clear --yes --api-target http://localhost:8081`

const clearShortDesc string = "Remove all registered functions"

func NewClearCmd() *cobra.Command {
	cmder := &clearCommander{out: os.Stdout}

	cmd := &cobra.Command{
		Use:   "clear",
		Short: clearShortDesc,
		Long:  clearLongDesc,
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

	cmd.Flags().BoolVarP(&cmder.yes, "yes", "y", false, "Confirm removal of all functions")
	config.AddStringFlag(cmd, config.ClientFlags, config.FlagAPITarget, &cmder.apiTarget)

	return cmd
}

func (c *clearCommander) run(ctx context.Context) error {
	if !c.yes {
		return errors.New("refusing to clear the index without --yes")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	c.logger = logger.NewLogger(c.debug)
	defer func() { _ = c.logger.Sync() }()

	client, err := apiclient.New(c.apiTarget)
	if err != nil {
		return err
	}

	c.logger.Debug("clearing index", zap.String("api_target", c.apiTarget))

	return cliui.Step(c.out, "Clearing function index", func() error {
		return client.Clear(ctx)
	})
}
