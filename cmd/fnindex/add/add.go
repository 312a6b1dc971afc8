// Package addcmder provides the add command for registering functions with a
// running fnindex server.
package addcmder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/fnindex/api"
	apiclient "github.com/papercomputeco/fnindex/api/client"
	"github.com/papercomputeco/fnindex/pkg/cliui"
	"github.com/papercomputeco/fnindex/pkg/config"
	"github.com/papercomputeco/fnindex/pkg/function"
	"github.com/papercomputeco/fnindex/pkg/logger"
)

type addCommander struct {
	file      string
	apiTarget string

	in  io.Reader
	out io.Writer

	debug  bool
	logger *zap.Logger
}

const addLongDesc string = `Register functions with a running fnindex server.

The input is a JSON document holding either a single function definition or
an array of them. Arrays are registered as a batch: each function succeeds or
fails on its own, and failures are reported without aborting the rest.

Use "-f -" to read from stdin.

Example:
  fnindex add -f calculate_sum.json
  fnindex add -f functions.json --api-target http://localhost:8081
  cat functions.json | fnindex add -f -`

const addShortDesc string = "Register functions from a JSON file"

func NewAddCmd() *cobra.Command {
	cmder := &addCommander{in: os.Stdin, out: os.Stdout}

	cmd := &cobra.Command{
		Use:   "add",
		Short: addShortDesc,
		Long:  addLongDesc,
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
			cmder.in = cmd.InOrStdin()
			cmder.out = cmd.OutOrStdout()
			return cmder.run(cmd.Context())
		},
	}

	cmd.Flags().StringVarP(&cmder.file, "file", "f", "", "JSON file with a function or an array of functions (\"-\" for stdin)")
	_ = cmd.MarkFlagRequired("file")
	config.AddStringFlag(cmd, config.ClientFlags, config.FlagAPITarget, &cmder.apiTarget)

	return cmd
}

func (c *addCommander) run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	c.logger = logger.NewLogger(c.debug)
	defer func() { _ = c.logger.Sync() }()

	data, err := c.read()
	if err != nil {
		return err
	}

	reqs, batch, err := decodeRequests(data)
	if err != nil {
		return err
	}

	client, err := apiclient.New(c.apiTarget)
	if err != nil {
		return err
	}

	c.logger.Debug("registering functions",
		zap.String("api_target", c.apiTarget),
		zap.Int("count", len(reqs)),
		zap.Bool("batch", batch),
	)

	if !batch {
		var id string
		err := cliui.Step(c.out, fmt.Sprintf("Registering %s", reqs[0].Name), func() error {
			var addErr error
			id, addErr = client.Add(ctx, reqs[0])
			return addErr
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "\n  %s %s\n", cliui.KeyStyle.Render("function_id:"), cliui.ValueStyle.Render(id))
		return nil
	}

	var resp *api.BatchResponse
	err = cliui.Step(c.out, fmt.Sprintf("Registering %d functions", len(reqs)), func() error {
		var batchErr error
		resp, batchErr = client.BatchAdd(ctx, reqs)
		return batchErr
	})
	if err != nil {
		return err
	}

	return printBatch(c.out, resp)
}

func (c *addCommander) read() ([]byte, error) {
	if c.file == "-" {
		data, err := io.ReadAll(c.in)
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		return data, nil
	}

	data, err := os.ReadFile(c.file)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", c.file, err)
	}
	return data, nil
}

// decodeRequests parses a single definition or an array of them. The bool
// reports whether the input was an array.
func decodeRequests(data []byte) ([]function.AddRequest, bool, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, false, errors.New("input is empty")
	}

	if trimmed[0] == '[' {
		var reqs []function.AddRequest
		if err := json.Unmarshal(trimmed, &reqs); err != nil {
			return nil, true, fmt.Errorf("parsing function array: %w", err)
		}
		if len(reqs) == 0 {
			return nil, true, errors.New("function array is empty")
		}
		return reqs, true, nil
	}

	var req function.AddRequest
	if err := json.Unmarshal(trimmed, &req); err != nil {
		return nil, false, fmt.Errorf("parsing function: %w", err)
	}
	return []function.AddRequest{req}, false, nil
}

func printBatch(w io.Writer, resp *api.BatchResponse) error {
	fmt.Fprintf(w, "\n  %s %d\n", cliui.KeyStyle.Render("indexed:"), resp.Indexed)
	for _, id := range resp.Succeeded {
		fmt.Fprintf(w, "    %s %s\n", cliui.SuccessMark, cliui.ValueStyle.Render(id))
	}

	if len(resp.Failed) == 0 {
		return nil
	}

	fmt.Fprintf(w, "  %s %d\n", cliui.KeyStyle.Render("failed:"), len(resp.Failed))
	for _, f := range resp.Failed {
		fmt.Fprintf(w, "    %s #%d %s %s\n",
			cliui.FailMark,
			f.Index,
			cliui.ValueStyle.Render(f.Name),
			cliui.DimStyle.Render(fmt.Sprintf("(%s) %s", f.Code, f.Error)),
		)
	}

	return fmt.Errorf("%d of %d functions failed to register", len(resp.Failed), len(resp.Failed)+resp.Indexed)
}
