// Package searchcmder provides the search command for finding registered
// functions through a running fnindex server.
package searchcmder

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/fnindex/api"
	apiclient "github.com/papercomputeco/fnindex/api/client"
	"github.com/papercomputeco/fnindex/pkg/config"
	"github.com/papercomputeco/fnindex/pkg/logger"
	"github.com/papercomputeco/fnindex/pkg/utils"
)

var (
	rankStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true)
	scoreStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	nameStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	matchStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("213"))
	previewStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	headerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252")).Bold(true)
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type searchCommander struct {
	query     string
	top       int
	threshold float64
	category  string
	quiet     bool

	apiTarget string
	out       io.Writer

	debug  bool
	logger *zap.Logger
}

const searchLongDesc string = `Search registered functions via the fnindex API.

Returns the functions most relevant to the query text, ranked by a fused
semantic, keyword and category score. Requires a running fnindex server.

Use --quiet to output only function ids, one per line. This is useful for
piping into other commands.

Example:
  fnindex search "calculate the sum of two numbers"
  fnindex search "send an email" --top 3
  fnindex search "计算两个数字的和" --threshold 0.5
  fnindex search "resize image" --category media --api-target http://localhost:8081
  fnindex search "parse csv" --quiet`

const searchShortDesc string = "Search registered functions"

func NewSearchCmd() *cobra.Command {
	cmder := &searchCommander{out: os.Stdout}

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: searchShortDesc,
		Long:  searchLongDesc,
		Args:  cobra.ExactArgs(1),
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
		RunE: func(cmd *cobra.Command, args []string) error {
			cmder.query = args[0]
			cmder.debug, _ = cmd.Flags().GetBool("debug")

			var threshold *float64
			if cmd.Flags().Changed("threshold") {
				threshold = &cmder.threshold
			}

			cmder.out = cmd.OutOrStdout()
			return cmder.run(cmd.Context(), threshold)
		},
	}

	cmd.Flags().IntVarP(&cmder.top, "top", "k", 5, "Number of results to return")
	cmd.Flags().Float64VarP(&cmder.threshold, "threshold", "t", 0, "Minimum fused score (default: server configured)")
	cmd.Flags().StringVarP(&cmder.category, "category", "c", "", "Only return functions in this category")
	cmd.Flags().BoolVarP(&cmder.quiet, "quiet", "q", false, "Output only function ids, one per line (for piping)")
	config.AddStringFlag(cmd, config.ClientFlags, config.FlagAPITarget, &cmder.apiTarget)

	return cmd
}

func (c *searchCommander) run(ctx context.Context, threshold *float64) error {
	if ctx == nil {
		ctx = context.Background()
	}

	c.logger = logger.NewLogger(c.debug)
	defer func() { _ = c.logger.Sync() }()

	client, err := apiclient.New(c.apiTarget)
	if err != nil {
		return err
	}

	c.logger.Debug("searching functions",
		zap.String("api_target", c.apiTarget),
		zap.String("query", c.query),
		zap.Int("top", c.top),
	)

	output, err := client.Search(ctx, apiclient.SearchParams{
		Query:      c.query,
		Limit:      c.top,
		Threshold:  threshold,
		Category:   c.category,
		OmitScores: c.quiet,
	})
	if err != nil {
		return err
	}

	if c.quiet {
		for _, result := range output.Results {
			fmt.Fprintln(c.out, result.Function.ID)
		}
		return nil
	}

	if output.Count == 0 {
		fmt.Fprintln(c.out, "No results found.")
		return nil
	}

	fmt.Fprintf(c.out, "\n%s %s\n\n",
		headerStyle.Render("Search Results for:"),
		nameStyle.Render(fmt.Sprintf("%q", output.Query)),
	)

	for i, result := range output.Results {
		c.printResult(i+1, result)
	}

	return nil
}

func (c *searchCommander) printResult(rank int, result api.SearchResult) {
	f := result.Function

	score := ""
	if result.Score != nil {
		score = fmt.Sprintf("score: %.4f", *result.Score)
	}
	fmt.Fprintf(c.out, "  %s  %s  %s  %s\n",
		rankStyle.Render(fmt.Sprintf("#%d", rank)),
		nameStyle.Render(f.Name),
		scoreStyle.Render(score),
		matchStyle.Render(string(result.MatchType)),
	)

	description := strings.ReplaceAll(f.Description, "\n", " ")
	fmt.Fprintf(c.out, "      %s\n", previewStyle.Render(utils.Truncate(description, 100)))

	location := f.Category
	if f.Subcategory != "" {
		location += "/" + f.Subcategory
	}
	meta := []string{"id " + f.ID}
	if location != "" {
		meta = append([]string{location}, meta...)
	}
	if len(f.Tags) > 0 {
		meta = append(meta, "tags "+strings.Join(f.Tags, ","))
	}
	fmt.Fprintf(c.out, "      %s\n", dimStyle.Render(strings.Join(meta, " · ")))

	if result.Explanation != "" {
		fmt.Fprintf(c.out, "      %s\n", dimStyle.Render(result.Explanation))
	}

	fmt.Fprintln(c.out)
}
