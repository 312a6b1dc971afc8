// Package retrieval ranks functions for a query by fusing vector similarity
// with keyword and category matches.
package retrieval

import (
	"fmt"
	"slices"

	"github.com/papercomputeco/fnindex/pkg/function"
)

// Config tunes one search. Weights are relative coefficients: they need not
// sum to 1 and are applied exactly as given.
type Config struct {
	// TopK is the candidate pool size fetched per view before fusion.
	TopK int `json:"top_k" toml:"top_k"`

	// RerankTopN is the number of results returned.
	RerankTopN int `json:"rerank_top_n" toml:"rerank_top_n"`

	SemanticWeight float64 `json:"semantic_weight" toml:"semantic_weight"`
	KeywordWeight  float64 `json:"keyword_weight" toml:"keyword_weight"`
	CategoryWeight float64 `json:"category_weight" toml:"category_weight"`

	// Threshold is the minimum fused score to keep.
	Threshold float64 `json:"threshold" toml:"threshold"`

	// UseCache allows the query embedding to be served from cache.
	UseCache bool `json:"use_cache" toml:"use_cache"`

	// Views are the projections searched for each query.
	Views []function.View `json:"views" toml:"views"`
}

// DefaultConfig returns the default retrieval tuning.
func DefaultConfig() Config {
	return Config{
		TopK:           20,
		RerankTopN:     5,
		SemanticWeight: 0.7,
		KeywordWeight:  0.2,
		CategoryWeight: 0.1,
		Threshold:      0.3,
		UseCache:       true,
		Views:          []function.View{function.ViewCombined},
	}
}

// Validate rejects configs that cannot produce a meaningful ranking.
func (c Config) Validate() error {
	switch {
	case c.TopK <= 0:
		return &function.ValidationError{Field: "top_k", Reason: "must be positive"}
	case c.RerankTopN <= 0:
		return &function.ValidationError{Field: "rerank_top_n", Reason: "must be positive"}
	case c.SemanticWeight < 0 || c.KeywordWeight < 0 || c.CategoryWeight < 0:
		return &function.ValidationError{Field: "weights", Reason: "must not be negative"}
	case c.Threshold < 0 || c.Threshold > 1:
		return &function.ValidationError{Field: "threshold", Reason: "must be within [0,1]"}
	case len(c.Views) == 0:
		return &function.ValidationError{Field: "views", Reason: "at least one view is required"}
	}
	for _, v := range c.Views {
		if !v.Valid() {
			return &function.ValidationError{Field: "views", Reason: fmt.Sprintf("unknown view %q", v)}
		}
	}
	return nil
}

// Clone returns a copy of c that shares no slices.
func (c Config) Clone() Config {
	c.Views = slices.Clone(c.Views)
	return c
}
