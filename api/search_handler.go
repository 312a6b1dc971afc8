package api

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/fnindex/pkg/function"
	"github.com/papercomputeco/fnindex/pkg/retrieval"
	"github.com/papercomputeco/fnindex/pkg/vector"
)

// SearchFilters are hard constraints applied to a search.
type SearchFilters struct {
	Category    string   `json:"category,omitempty"`
	Subcategory string   `json:"subcategory,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// SearchRequest is the body of POST /v1/search.
type SearchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`

	// IncludeScores defaults to true.
	IncludeScores *bool          `json:"include_scores,omitempty"`
	Filters       *SearchFilters `json:"filters,omitempty"`
	Threshold     *float64       `json:"threshold,omitempty"`
}

// SearchResult is one ranked function. The scoring fields are omitted when
// scores were not requested.
type SearchResult struct {
	Function    *function.Function  `json:"function"`
	Score       *float64            `json:"score,omitempty"`
	MatchType   retrieval.MatchType `json:"match_type,omitempty"`
	Explanation string              `json:"explanation,omitempty"`
	Scores      *retrieval.Scores   `json:"scores,omitempty"`
	View        function.View       `json:"view,omitempty"`
}

// SearchResponse is returned by the search, similar and category endpoints.
type SearchResponse struct {
	Query   string         `json:"query,omitempty"`
	Count   int            `json:"count"`
	Results []SearchResult `json:"results"`
}

// handleSearchPost handles POST /v1/search.
func (s *Server) handleSearchPost(c *fiber.Ctx) error {
	var req SearchRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body: "+err.Error())
	}
	if req.Limit < 0 {
		return badRequest(c, "limit must be a positive integer")
	}

	includeScores := true
	if req.IncludeScores != nil {
		includeScores = *req.IncludeScores
	}

	var filter *vector.Filter
	if req.Filters != nil {
		filter = &vector.Filter{
			Category:    req.Filters.Category,
			Subcategory: req.Filters.Subcategory,
			Tags:        req.Filters.Tags,
		}
	}

	return s.search(c, req.Query, req.Limit, req.Threshold, filter, includeScores)
}

// handleSearchGet handles GET /v1/search.
// Query parameters:
//   - q (required): the search query text
//   - limit (optional): number of results to return
//   - include_scores (optional, default true)
//   - threshold (optional): minimum fused score
//   - category, subcategory (optional): hard filters
func (s *Server) handleSearchGet(c *fiber.Ctx) error {
	limit, err := queryInt(c, "limit", 0)
	if err != nil {
		return badRequest(c, err.Error())
	}
	var threshold *float64
	if raw := c.Query("threshold"); raw != "" {
		t, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return badRequest(c, "threshold must be a number")
		}
		threshold = &t
	}
	includeScores, err := queryBool(c, "include_scores", true)
	if err != nil {
		return badRequest(c, err.Error())
	}

	var filter *vector.Filter
	if category, subcategory := c.Query("category"), c.Query("subcategory"); category != "" || subcategory != "" {
		filter = &vector.Filter{Category: category, Subcategory: subcategory}
	}

	return s.search(c, c.Query("q"), limit, threshold, filter, includeScores)
}

func (s *Server) search(c *fiber.Ctx, query string, limit int, threshold *float64, filter *vector.Filter, includeScores bool) error {
	query = strings.TrimSpace(query)
	if query == "" {
		return badRequest(c, "query is required")
	}

	cfg := s.overrides(limit, threshold)
	results, err := s.registry.Search(c.Context(), retrieval.Query{
		Text:   query,
		Filter: filter,
		Config: cfg,
	})
	if err != nil {
		return s.writeError(c, err)
	}

	resp := buildSearchResponse(results, includeScores)
	resp.Query = query
	return c.JSON(resp)
}

// handleSimilar handles GET /v1/functions/:id/similar?limit=.
func (s *Server) handleSimilar(c *fiber.Ctx) error {
	limit, err := queryInt(c, "limit", 0)
	if err != nil {
		return badRequest(c, err.Error())
	}
	includeScores, err := queryBool(c, "include_scores", true)
	if err != nil {
		return badRequest(c, err.Error())
	}

	results, err := s.registry.Similar(c.Context(), c.Params("id"), s.overrides(limit, nil))
	if err != nil {
		return s.writeError(c, err)
	}

	return c.JSON(buildSearchResponse(results, includeScores))
}

// handleByCategory handles GET /v1/categories/:category/functions.
func (s *Server) handleByCategory(c *fiber.Ctx) error {
	limit, err := queryInt(c, "limit", 0)
	if err != nil {
		return badRequest(c, err.Error())
	}

	results, err := s.registry.ByCategory(c.Context(), c.Params("category"), c.Query("subcategory"), limit)
	if err != nil {
		return s.writeError(c, err)
	}

	return c.JSON(buildSearchResponse(results, true))
}

// overrides derives a per-request config from the engine defaults. It
// returns nil when the request changes nothing.
func (s *Server) overrides(limit int, threshold *float64) *retrieval.Config {
	if limit <= 0 && threshold == nil {
		return nil
	}

	cfg := s.registry.Engine().Config()
	if limit > 0 {
		cfg.RerankTopN = limit
		cfg.TopK = max(cfg.TopK, limit)
	}
	if threshold != nil {
		cfg.Threshold = *threshold
	}
	return &cfg
}

func buildSearchResponse(results []retrieval.Result, includeScores bool) SearchResponse {
	out := SearchResponse{
		Count:   len(results),
		Results: make([]SearchResult, 0, len(results)),
	}
	for _, r := range results {
		sr := SearchResult{Function: r.Function}
		if includeScores {
			score := r.Score
			scores := r.Scores
			sr.Score = &score
			sr.MatchType = r.MatchType
			sr.Explanation = r.Explanation
			sr.Scores = &scores
			sr.View = r.View
		}
		out.Results = append(out.Results, sr)
	}
	return out
}
