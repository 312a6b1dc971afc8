package retrieval

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/papercomputeco/fnindex/pkg/function"
	"github.com/papercomputeco/fnindex/pkg/metrics"
	"github.com/papercomputeco/fnindex/pkg/storage"
	"github.com/papercomputeco/fnindex/pkg/vector"
)

// FunctionSource loads canonical function records.
type FunctionSource interface {
	Get(ctx context.Context, id string) (*function.Function, error)
	List(ctx context.Context) ([]*function.Function, error)
}

// QueryEmbedder turns query text into a vector.
type QueryEmbedder interface {
	// Embed may serve the vector from cache.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedFresh always calls the provider.
	EmbedFresh(ctx context.Context, text string) ([]float32, error)
}

// Query is one search request.
type Query struct {
	Text string

	// Filter applies hard constraints to the vector queries. Its Views field
	// is ignored: the views searched come from the config.
	Filter *vector.Filter

	// Config overrides the engine's default tuning when set.
	Config *Config
}

// Result is one ranked function.
type Result struct {
	Function    *function.Function `json:"function"`
	Score       float64            `json:"score"`
	MatchType   MatchType          `json:"match_type"`
	Explanation string             `json:"explanation"`
	Scores      Scores             `json:"scores"`

	// View is the view whose vector scored best. Empty for category listings.
	View function.View `json:"view,omitempty"`
}

// Options configures an Engine.
type Options struct {
	Embedder QueryEmbedder
	Vectors  vector.Driver
	Source   FunctionSource
	Config   Config
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
}

// Engine ranks functions for queries.
type Engine struct {
	embedder QueryEmbedder
	vectors  vector.Driver
	source   FunctionSource
	config   Config
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// candidate is a function surfaced by at least one view query.
type candidate struct {
	payload  vector.Payload
	semantic float64
	view     function.View
}

// scored is a candidate after fusion.
type scored struct {
	candidate
	scores Scores
	fused  float64
}

// NewEngine creates an Engine. The config is validated up front so a bad
// default fails at startup rather than on the first query.
func NewEngine(o Options) (*Engine, error) {
	if o.Embedder == nil {
		return nil, errors.New("retrieval engine requires an embedder")
	}
	if o.Vectors == nil {
		return nil, errors.New("retrieval engine requires a vector driver")
	}
	if o.Source == nil {
		return nil, errors.New("retrieval engine requires a function source")
	}
	if err := o.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid retrieval config: %w", err)
	}

	logger := o.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Engine{
		embedder: o.Embedder,
		vectors:  o.Vectors,
		source:   o.Source,
		config:   o.Config.Clone(),
		metrics:  o.Metrics,
		logger:   logger,
	}, nil
}

// Config returns a copy of the engine's default tuning.
func (e *Engine) Config() Config {
	return e.config.Clone()
}

func (e *Engine) resolve(override *Config) (Config, error) {
	if override == nil {
		return e.config, nil
	}
	if err := override.Validate(); err != nil {
		return Config{}, err
	}
	return *override, nil
}

// Search ranks functions for q.Text. A query that cannot be embedded fails
// the whole search. A view whose vector query fails is skipped, and the
// search only fails when every view does.
func (e *Engine) Search(ctx context.Context, q Query) ([]Result, error) {
	defer e.metrics.ObserveSearch("search", time.Now())

	cfg, err := e.resolve(q.Config)
	if err != nil {
		return nil, err
	}

	text := strings.TrimSpace(q.Text)
	if text == "" {
		return nil, &function.ValidationError{Field: "query", Reason: "must not be empty"}
	}

	embed := e.embedder.EmbedFresh
	if cfg.UseCache {
		embed = e.embedder.Embed
	}
	qvec, err := embed(ctx, text)
	if err != nil {
		return nil, &Error{Reason: "embedding query", Err: err}
	}

	candidates, err := e.queryViews(ctx, qvec, q.Filter, cfg)
	if err != nil {
		return nil, err
	}

	ranked := rank(candidates, querySignals(text, q.Filter), cfg)
	results, err := e.load(ctx, ranked, cfg.RerankTopN, "")
	if err != nil {
		return nil, err
	}

	e.logger.Debug("search complete",
		zap.String("query", text),
		zap.Int("candidates", len(candidates)),
		zap.Int("results", len(results)),
	)
	return results, nil
}

// Similar ranks functions close to the stored vector of functionID. The
// combined view is used when present, main otherwise. The function itself
// is never returned.
func (e *Engine) Similar(ctx context.Context, functionID string, override *Config) ([]Result, error) {
	defer e.metrics.ObserveSearch("similar", time.Now())

	cfg, err := e.resolve(override)
	if err != nil {
		return nil, err
	}

	target, err := e.source.Get(ctx, functionID)
	if err != nil {
		return nil, err
	}

	points, err := e.vectors.Get(ctx, []string{
		vector.PointID(functionID, function.ViewCombined),
		vector.PointID(functionID, function.ViewMain),
	})
	if err != nil {
		return nil, vector.Wrap("get", err)
	}
	qvec := pickVector(points, functionID)
	if qvec == nil {
		return nil, &Error{Reason: "no stored vector for function " + functionID}
	}

	filter := &vector.Filter{ExcludeIDs: []string{functionID}}
	candidates, err := e.queryViews(ctx, qvec, filter, cfg)
	if err != nil {
		return nil, err
	}
	delete(candidates, functionID)

	ranked := rank(candidates, functionSignals(target), cfg)
	return e.load(ctx, ranked, cfg.RerankTopN, functionID)
}

func pickVector(points []vector.Point, functionID string) []float32 {
	var main []float32
	for _, p := range points {
		if p.Payload.FunctionID != functionID {
			continue
		}
		switch p.Payload.View {
		case function.ViewCombined:
			return p.Vector
		case function.ViewMain:
			main = p.Vector
		}
	}
	return main
}

// ByCategory lists functions in a category, or with a subcategory, without
// a semantic step. Category matches rank above subcategory-only matches,
// then fresher functions first. A limit <= 0 uses the configured RerankTopN.
func (e *Engine) ByCategory(ctx context.Context, category, subcategory string, limit int) ([]Result, error) {
	defer e.metrics.ObserveSearch("category", time.Now())

	if strings.TrimSpace(category) == "" && strings.TrimSpace(subcategory) == "" {
		return nil, &function.ValidationError{Field: "category", Reason: "category or subcategory is required"}
	}
	if limit <= 0 {
		limit = e.config.RerankTopN
	}

	fns, err := e.source.List(ctx)
	if err != nil {
		return nil, err
	}

	s := signals{category: category, subcategory: subcategory}
	var results []Result
	for _, f := range fns {
		score := categoryScore(vector.NewPayload(f, ""), s)
		if score == 0 {
			continue
		}
		scores := Scores{Category: score}
		results = append(results, Result{
			Function:    f,
			Score:       score,
			MatchType:   MatchCategory,
			Explanation: explain(scores, ""),
			Scores:      scores,
		})
	}

	slices.SortFunc(results, func(a, b Result) int {
		return compareRanked(a.Score, b.Score, a.Function.LastUpdated, b.Function.LastUpdated, a.Function.ID, b.Function.ID)
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// queryViews runs one vector query per configured view concurrently and
// merges the hits by function, keeping each function's best similarity.
func (e *Engine) queryViews(ctx context.Context, qvec []float32, filter *vector.Filter, cfg Config) (map[string]candidate, error) {
	type viewHits struct {
		view    function.View
		results []vector.QueryResult
		err     error
	}

	hits := make([]viewHits, len(cfg.Views))
	var g errgroup.Group
	for i, view := range cfg.Views {
		f := viewFilter(filter, view)
		g.Go(func() error {
			results, err := e.vectors.Query(ctx, qvec, f, cfg.TopK)
			hits[i] = viewHits{view: view, results: results, err: err}
			return nil
		})
	}
	_ = g.Wait()

	var (
		candidates = make(map[string]candidate)
		succeeded  int
		lastErr    error
	)
	for _, h := range hits {
		if h.err != nil {
			lastErr = h.err
			e.metrics.ViewFailure(string(h.view))
			e.logger.Warn("vector query failed, continuing with remaining views",
				zap.String("view", string(h.view)),
				zap.Error(h.err),
			)
			continue
		}
		succeeded++

		for _, r := range h.results {
			id := r.Payload.FunctionID
			sim := float64(r.Score)
			if c, ok := candidates[id]; ok && c.semantic >= sim {
				continue
			}
			candidates[id] = candidate{payload: r.Payload, semantic: sim, view: h.view}
		}
	}

	if succeeded == 0 {
		return nil, &Error{Reason: "every view query failed", Err: lastErr}
	}
	return candidates, nil
}

// viewFilter narrows filter to one view. Tags are normalized the way stored
// tags are, so tag filters match regardless of case.
func viewFilter(filter *vector.Filter, view function.View) *vector.Filter {
	f := vector.Filter{}
	if filter != nil {
		f = *filter
		f.Tags = function.NormalizeTags(filter.Tags)
		f.ExcludeIDs = slices.Clone(filter.ExcludeIDs)
	}
	f.Views = []function.View{view}
	return &f
}

// rank scores, thresholds and orders candidates.
func rank(candidates map[string]candidate, s signals, cfg Config) []scored {
	ranked := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		scores := Scores{
			Semantic: c.semantic,
			Keyword:  keywordScore(c.payload, s),
			Category: categoryScore(c.payload, s),
		}
		fused := scores.Fuse(cfg)
		if fused < cfg.Threshold {
			continue
		}
		ranked = append(ranked, scored{candidate: c, scores: scores, fused: fused})
	}

	slices.SortFunc(ranked, func(a, b scored) int {
		return compareRanked(a.fused, b.fused,
			a.payload.LastUpdated, b.payload.LastUpdated,
			a.payload.FunctionID, b.payload.FunctionID)
	})
	return ranked
}

// compareRanked orders by score descending, then fresher first, then id.
func compareRanked(sa, sb float64, ta, tb time.Time, ida, idb string) int {
	if c := cmp.Compare(sb, sa); c != 0 {
		return c
	}
	if c := tb.Compare(ta); c != 0 {
		return c
	}
	return cmp.Compare(ida, idb)
}

// load resolves ranked candidates into full records until limit results
// are collected. Candidates whose record has vanished are skipped.
func (e *Engine) load(ctx context.Context, ranked []scored, limit int, exclude string) ([]Result, error) {
	results := make([]Result, 0, min(limit, len(ranked)))
	for _, r := range ranked {
		if len(results) == limit {
			break
		}
		if r.payload.FunctionID == exclude {
			continue
		}

		f, err := e.source.Get(ctx, r.payload.FunctionID)
		if storage.IsNotFound(err) {
			e.logger.Debug("dropping candidate with no stored record",
				zap.String("function_id", r.payload.FunctionID),
			)
			continue
		}
		if err != nil {
			return nil, err
		}

		results = append(results, Result{
			Function:    f,
			Score:       r.fused,
			MatchType:   r.scores.MatchType(),
			Explanation: explain(r.scores, r.view),
			Scores:      r.scores,
			View:        r.view,
		})
	}
	return results, nil
}
