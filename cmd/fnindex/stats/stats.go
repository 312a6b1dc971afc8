// Package statscmder provides the stats command for inspecting a running
// fnindex server.
package statscmder

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	apiclient "github.com/papercomputeco/fnindex/api/client"
	"github.com/papercomputeco/fnindex/pkg/cliui"
	"github.com/papercomputeco/fnindex/pkg/config"
	"github.com/papercomputeco/fnindex/pkg/logger"
	"github.com/papercomputeco/fnindex/pkg/registry"
)

type statsCommander struct {
	jsonOut   bool
	apiTarget string
	out       io.Writer

	debug  bool
	logger *zap.Logger
}

const statsLongDesc string = `Show function, vector store and embedding cache statistics.

Example:
  fnindex stats
  fnindex stats --json`

const statsShortDesc string = "Show index statistics"

func NewStatsCmd() *cobra.Command {
	cmder := &statsCommander{out: os.Stdout}

	cmd := &cobra.Command{
		Use:   "stats",
		Short: statsShortDesc,
		Long:  statsLongDesc,
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

	cmd.Flags().BoolVar(&cmder.jsonOut, "json", false, "Print raw JSON")
	config.AddStringFlag(cmd, config.ClientFlags, config.FlagAPITarget, &cmder.apiTarget)

	return cmd
}

func (c *statsCommander) run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	c.logger = logger.NewLogger(c.debug)
	defer func() { _ = c.logger.Sync() }()

	client, err := apiclient.New(c.apiTarget)
	if err != nil {
		return err
	}

	c.logger.Debug("fetching stats", zap.String("api_target", c.apiTarget))

	stats, err := client.Stats(ctx)
	if err != nil {
		return err
	}

	if c.jsonOut {
		enc := json.NewEncoder(c.out)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}

	rendered, err := cliui.RenderMarkdown(statsMarkdown(stats))
	if err != nil {
		c.logger.Debug("markdown rendering failed", zap.Error(err))
	}
	fmt.Fprint(c.out, rendered)
	return nil
}

func statsMarkdown(s *registry.Stats) string {
	hitRate := "n/a"
	if total := s.Cache.Hits + s.Cache.Misses; total > 0 {
		hitRate = fmt.Sprintf("%.1f%%", float64(s.Cache.Hits)/float64(total)*100)
	}

	health := "healthy"
	if !s.Vectors.Healthy {
		health = "unhealthy"
	}

	var b strings.Builder
	b.WriteString("# fnindex stats\n\n")
	b.WriteString("| Metric | Value |\n")
	b.WriteString("| --- | --- |\n")
	fmt.Fprintf(&b, "| Functions | %d |\n", s.Functions)
	fmt.Fprintf(&b, "| Collection | %s |\n", s.Vectors.Collection)
	fmt.Fprintf(&b, "| Vectors | %d |\n", s.Vectors.Points)
	fmt.Fprintf(&b, "| Vector size | %d |\n", s.Vectors.VectorSize)
	fmt.Fprintf(&b, "| Distance | %s |\n", s.Vectors.Distance)
	fmt.Fprintf(&b, "| Vector store | %s |\n", health)
	fmt.Fprintf(&b, "| Cache entries | %d / %d |\n", s.Cache.Size, s.Cache.Capacity)
	fmt.Fprintf(&b, "| Cache hit rate | %s |\n", hitRate)
	return b.String()
}
