package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/papercomputeco/fnindex/pkg/function"
	"github.com/papercomputeco/fnindex/pkg/retrieval"
	"github.com/papercomputeco/fnindex/pkg/vector"
)

var (
	searchToolName    = "search_functions"
	searchDescription = "Search the function index. Returns the registered functions most relevant to the query text, ranked by a fused semantic, keyword and category score."

	getFunctionToolName    = "get_function"
	getFunctionDescription = "Get the full definition of a registered function by its id, including parameters and examples."
)

// SearchInput represents the input arguments for the search_functions tool.
type SearchInput struct {
	Query    string `json:"query" jsonschema:"free-text description of the function you need"`
	Limit    int    `json:"limit,omitempty" jsonschema:"number of results to return (default: server configured)"`
	Category string `json:"category,omitempty" jsonschema:"only return functions in this category"`
}

// SearchResult is one ranked function.
type SearchResult struct {
	FunctionID  string   `json:"function_id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Category    string   `json:"category,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Score       float64  `json:"score"`
	MatchType   string   `json:"match_type"`
	Explanation string   `json:"explanation,omitempty"`
}

// SearchOutput represents the output of the search_functions tool.
type SearchOutput struct {
	Query   string         `json:"query"`
	Results []SearchResult `json:"results"`
	Count   int            `json:"count"`
}

// GetFunctionInput represents the input arguments for the get_function tool.
type GetFunctionInput struct {
	ID string `json:"id" jsonschema:"the function_id returned by search_functions"`
}

// ParameterOutput is a flattened parameter description.
type ParameterOutput struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required"`
}

// ExampleOutput is a sample invocation.
type ExampleOutput struct {
	Input   string `json:"input"`
	Output  string `json:"output"`
	Context string `json:"context,omitempty"`
}

// GetFunctionOutput represents the output of the get_function tool.
type GetFunctionOutput struct {
	FunctionID  string            `json:"function_id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Category    string            `json:"category,omitempty"`
	Subcategory string            `json:"subcategory,omitempty"`
	Parameters  []ParameterOutput `json:"parameters"`
	UseCases    []string          `json:"use_cases,omitempty"`
	Examples    []ExampleOutput   `json:"examples,omitempty"`
	Tags        []string          `json:"tags,omitempty"`
	Version     string            `json:"version"`
	LastUpdated string            `json:"last_updated"`
}

// handleSearch processes a search_functions request.
func (s *Server) handleSearch(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	logger := s.config.Logger

	query := strings.TrimSpace(input.Query)
	if query == "" {
		return errorResult("query is required"), SearchOutput{}, nil
	}

	cfg := s.config.Registry.Engine().Config()
	if input.Limit > 0 {
		cfg.RerankTopN = input.Limit
		cfg.TopK = max(cfg.TopK, input.Limit)
	}

	var filter *vector.Filter
	if input.Category != "" {
		filter = &vector.Filter{Category: input.Category}
	}

	logger.Debug("MCP search request",
		zap.String("query", query),
		zap.Int("limit", cfg.RerankTopN),
	)

	results, err := s.config.Registry.Search(ctx, retrieval.Query{
		Text:   query,
		Filter: filter,
		Config: &cfg,
	})
	if err != nil {
		logger.Error("failed to search functions", zap.Error(err))
		return errorResult(fmt.Sprintf("Failed to search functions: %v", err)), SearchOutput{}, nil
	}

	output := SearchOutput{
		Query:   query,
		Results: make([]SearchResult, 0, len(results)),
	}
	for _, r := range results {
		output.Results = append(output.Results, buildSearchResult(r))
	}
	output.Count = len(output.Results)

	return jsonResult(logger, output)
}

// handleGetFunction processes a get_function request.
func (s *Server) handleGetFunction(ctx context.Context, _ *mcp.CallToolRequest, input GetFunctionInput) (*mcp.CallToolResult, GetFunctionOutput, error) {
	if strings.TrimSpace(input.ID) == "" {
		return errorResult("id is required"), GetFunctionOutput{}, nil
	}

	f, err := s.config.Registry.Get(ctx, input.ID)
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to get function: %v", err)), GetFunctionOutput{}, nil
	}

	return jsonResult(s.config.Logger, buildFunctionOutput(f))
}

// jsonResult serializes the structured output as JSON for the text field.
// MCP tools returning structured content should also return
// serialized JSON in a TextContent block for older clients.
func jsonResult[T any](logger *zap.Logger, output T) (*mcp.CallToolResult, T, error) {
	jsonBytes, err := json.Marshal(output)
	if err != nil {
		logger.Error("failed to marshal tool output", zap.Error(err))
		var zero T
		return errorResult(fmt.Sprintf("Failed to serialize results: %v", err)), zero, nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(jsonBytes)},
		},
	}, output, nil
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: msg},
		},
	}
}

// buildSearchResult converts a ranked result into its tool representation.
func buildSearchResult(r retrieval.Result) SearchResult {
	return SearchResult{
		FunctionID:  r.Function.ID,
		Name:        r.Function.Name,
		Description: r.Function.Description,
		Category:    r.Function.Category,
		Tags:        r.Function.Tags,
		Score:       r.Score,
		MatchType:   string(r.MatchType),
		Explanation: r.Explanation,
	}
}

// buildFunctionOutput flattens a function for the get_function tool.
func buildFunctionOutput(f *function.Function) GetFunctionOutput {
	out := GetFunctionOutput{
		FunctionID:  f.ID,
		Name:        f.Name,
		Description: f.Description,
		Category:    f.Category,
		Subcategory: f.Subcategory,
		Parameters:  make([]ParameterOutput, 0, len(f.Parameters)),
		UseCases:    f.UseCases,
		Tags:        f.Tags,
		Version:     f.Version,
		LastUpdated: f.LastUpdated.Format(time.RFC3339),
	}
	for _, name := range f.ParameterNames() {
		p := f.Parameters[name]
		out.Parameters = append(out.Parameters, ParameterOutput{
			Name:        name,
			Type:        string(p.Type),
			Description: p.Description,
			Required:    p.Required,
		})
	}
	for _, ex := range f.Examples {
		out.Examples = append(out.Examples, ExampleOutput(ex))
	}
	return out
}
