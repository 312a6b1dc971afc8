// Package chroma provides a Chroma vector database driver implementation.
package chroma

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/papercomputeco/fnindex/pkg/vector"
)

const (
	// DefaultMaxRetries is the number of connection attempts made by NewDriver.
	DefaultMaxRetries = 5

	// DefaultRetryDelay is the initial delay between connection attempts.
	DefaultRetryDelay = 500 * time.Millisecond

	// DefaultMaxRetryDelay caps the delay between connection attempts.
	DefaultMaxRetryDelay = 5 * time.Second

	spaceKey      = "hnsw:space"
	vectorSizeKey = "fnindex:vector_size"

	overfetch = 4
)

// Driver implements vector.Driver using Chroma's REST API.
type Driver struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger

	mu           sync.RWMutex
	cfg          vector.CollectionConfig
	collectionID string
}

// Config holds configuration for the Chroma driver.
type Config struct {
	// URL is the Chroma server URL (e.g., "http://localhost:8000").
	URL string

	// MaxRetries bounds connection attempts while Chroma starts up.
	MaxRetries uint

	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
}

// NewDriver creates a new Chroma vector driver, waiting for the server's
// heartbeat with exponential backoff.
func NewDriver(c Config, logger *zap.Logger) (*Driver, error) {
	if c.URL == "" {
		return nil, fmt.Errorf("chroma URL is required")
	}

	maxRetries := c.MaxRetries
	if maxRetries == 0 {
		maxRetries = DefaultMaxRetries
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.RetryDelay
	if b.InitialInterval == 0 {
		b.InitialInterval = DefaultRetryDelay
	}
	b.MaxInterval = c.MaxRetryDelay
	if b.MaxInterval == 0 {
		b.MaxInterval = DefaultMaxRetryDelay
	}

	d := &Driver{
		baseURL: c.URL,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: logger,
	}

	ctx := context.Background()
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := d.do(ctx, http.MethodGet, "/api/v2/heartbeat", nil, nil)
		if err != nil {
			logger.Debug("chroma not ready", zap.Error(err))
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(maxRetries),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %s after %d attempts: %w", vector.ErrConnection, c.URL, maxRetries, err)
	}

	logger.Info("connected to Chroma", zap.String("url", c.URL))
	return d, nil
}

func (d *Driver) collectionsPath() string {
	return "/api/v2/tenants/default_tenant/databases/default_database/collections"
}

func (d *Driver) recordsPath(op string) (string, vector.CollectionConfig, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.collectionID == "" {
		return "", vector.CollectionConfig{}, vector.ErrNoCollection
	}
	return fmt.Sprintf("%s/%s/%s", d.collectionsPath(), d.collectionID, op), d.cfg, nil
}

// statusError is a non-2xx Chroma response.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.status, e.body)
}

// do sends body as JSON and decodes the response into out when non-nil.
func (d *Driver) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, d.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		raw, _ := io.ReadAll(resp.Body)
		return &statusError{status: resp.StatusCode, body: string(raw)}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

func space(d vector.Distance) string {
	switch d {
	case vector.DistanceEuclid:
		return "l2"
	case vector.DistanceDot:
		return "ip"
	default:
		return "cosine"
	}
}

func distanceFromSpace(s string) vector.Distance {
	switch s {
	case "cosine":
		return vector.DistanceCosine
	case "ip":
		return vector.DistanceDot
	default:
		// Chroma's default space is l2.
		return vector.DistanceEuclid
	}
}

// existingConfig reads the config recorded on a Chroma collection.
func existingConfig(c chromaCollection) vector.CollectionConfig {
	cfg := vector.CollectionConfig{Name: c.Name, Distance: vector.DistanceEuclid}
	if s, ok := c.Metadata[spaceKey].(string); ok {
		cfg.Distance = distanceFromSpace(s)
	}
	if n, ok := c.Metadata[vectorSizeKey].(float64); ok {
		cfg.VectorSize = uint(n)
	}
	if c.Dimension != nil {
		cfg.VectorSize = uint(*c.Dimension)
	}
	return cfg
}

// EnsureCollection gets the configured collection, creating it if absent.
func (d *Driver) EnsureCollection(ctx context.Context, cfg vector.CollectionConfig) error {
	if err := cfg.Validate(); err != nil {
		return vector.Wrap("ensure_collection", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	var existing chromaCollection
	err := d.do(ctx, http.MethodGet, d.collectionsPath()+"/"+cfg.Name, nil, &existing)
	if err == nil {
		have := existingConfig(existing)
		if have.VectorSize == 0 {
			have.VectorSize = cfg.VectorSize
		}
		if !have.Compatible(cfg) {
			return vector.Incompatible(have, cfg)
		}
		d.cfg = cfg
		d.collectionID = existing.ID
		return nil
	}

	id, err := d.create(ctx, cfg)
	if err != nil {
		return vector.Wrap("ensure_collection", err)
	}
	d.cfg = cfg
	d.collectionID = id
	return nil
}

func (d *Driver) create(ctx context.Context, cfg vector.CollectionConfig) (string, error) {
	var created chromaCollection
	err := d.do(ctx, http.MethodPost, d.collectionsPath(), chromaCreateRequest{
		Name: cfg.Name,
		Metadata: map[string]any{
			spaceKey:      space(cfg.Distance),
			vectorSizeKey: cfg.VectorSize,
		},
	}, &created)
	if err != nil {
		return "", fmt.Errorf("creating collection %q: %w", cfg.Name, err)
	}

	d.logger.Info("created chroma collection",
		zap.String("collection", cfg.Name),
		zap.String("collection_id", created.ID),
		zap.Uint("vector_size", cfg.VectorSize),
		zap.String("distance", string(cfg.Distance)),
	)
	return created.ID, nil
}

func toMetadata(p vector.Payload) (map[string]any, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"function_id": p.FunctionID,
		"view":        string(p.View),
		"category":    p.Category,
		"subcategory": p.Subcategory,
		"payload":     string(raw),
	}, nil
}

func fromMetadata(m map[string]any) (vector.Payload, error) {
	var p vector.Payload
	raw, ok := m["payload"].(string)
	if !ok {
		return p, fmt.Errorf("record has no payload")
	}
	err := json.Unmarshal([]byte(raw), &p)
	return p, err
}

// where translates the filter fields Chroma can evaluate server-side. Tags
// are matched client-side.
func where(f *vector.Filter) map[string]any {
	if f == nil {
		return nil
	}

	var conds []map[string]any
	if f.Category != "" {
		conds = append(conds, map[string]any{"category": map[string]any{"$eq": f.Category}})
	}
	if f.Subcategory != "" {
		conds = append(conds, map[string]any{"subcategory": map[string]any{"$eq": f.Subcategory}})
	}
	if len(f.Views) > 0 {
		views := make([]string, len(f.Views))
		for i, v := range f.Views {
			views[i] = string(v)
		}
		conds = append(conds, map[string]any{"view": map[string]any{"$in": views}})
	}
	if len(f.ExcludeIDs) > 0 {
		conds = append(conds, map[string]any{"function_id": map[string]any{"$nin": f.ExcludeIDs}})
	}

	switch len(conds) {
	case 0:
		return nil
	case 1:
		return conds[0]
	default:
		return map[string]any{"$and": conds}
	}
}

// Upsert stores points with their embeddings.
func (d *Driver) Upsert(ctx context.Context, points []vector.Point) error {
	if len(points) == 0 {
		return nil
	}

	path, cfg, err := d.recordsPath("upsert")
	if err != nil {
		return vector.Wrap("upsert", err)
	}
	if err := vector.CheckVectors(points, cfg.VectorSize); err != nil {
		return vector.Wrap("upsert", err)
	}

	req := chromaUpsertRequest{
		IDs:        make([]string, len(points)),
		Embeddings: make([][]float32, len(points)),
		Metadatas:  make([]map[string]any, len(points)),
	}
	for i, p := range points {
		req.IDs[i] = p.ID
		req.Embeddings[i] = p.Vector
		if req.Metadatas[i], err = toMetadata(p.Payload); err != nil {
			return vector.Wrap("upsert", fmt.Errorf("encoding payload for point %s: %w", p.ID, err))
		}
	}

	if err := d.do(ctx, http.MethodPost, path, req, nil); err != nil {
		return vector.Wrap("upsert", err)
	}

	d.logger.Debug("upserted points to chroma",
		zap.Int("count", len(points)),
	)

	return nil
}

// Query finds the limit nearest points to vec that pass filter.
func (d *Driver) Query(ctx context.Context, vec []float32, filter *vector.Filter, limit int) ([]vector.QueryResult, error) {
	if limit <= 0 {
		limit = 10
	}

	path, cfg, err := d.recordsPath("query")
	if err != nil {
		return nil, vector.Wrap("query", err)
	}

	n := limit
	if filter != nil && len(filter.Tags) > 0 {
		n = limit * overfetch
	}

	var queryResp chromaQueryResponse
	err = d.do(ctx, http.MethodPost, path, chromaQueryRequest{
		QueryEmbeddings: [][]float32{vec},
		NResults:        n,
		Where:           where(filter),
		Include:         []string{"metadatas", "distances"},
	}, &queryResp)
	if err != nil {
		return nil, vector.Wrap("query", err)
	}

	// Process first group (we only query with one embedding)
	if len(queryResp.IDs) == 0 || len(queryResp.IDs[0]) == 0 {
		return nil, nil
	}

	ids := queryResp.IDs[0]
	var distances []float64
	if len(queryResp.Distances) > 0 {
		distances = queryResp.Distances[0]
	}
	var metadatas []map[string]any
	if len(queryResp.Metadatas) > 0 {
		metadatas = queryResp.Metadatas[0]
	}

	results := make([]vector.QueryResult, 0, len(ids))
	for i, id := range ids {
		if i >= len(metadatas) || i >= len(distances) {
			break
		}
		p, err := fromMetadata(metadatas[i])
		if err != nil {
			d.logger.Warn("skipping chroma record with bad payload", zap.String("point_id", id), zap.Error(err))
			continue
		}
		if !filter.Match(p) {
			continue
		}
		results = append(results, vector.QueryResult{
			Point: vector.Point{ID: id, Payload: p},
			Score: vector.ScoreFromDistance(cfg.Distance, distances[i]),
		})
		if len(results) == limit {
			break
		}
	}

	d.logger.Debug("queried chroma",
		zap.Int("results", len(results)),
	)

	return results, nil
}

// Get retrieves points by their IDs.
func (d *Driver) Get(ctx context.Context, ids []string) ([]vector.Point, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	path, _, err := d.recordsPath("get")
	if err != nil {
		return nil, vector.Wrap("get", err)
	}

	var getResp chromaGetResponse
	err = d.do(ctx, http.MethodPost, path, chromaGetRequest{
		IDs:     ids,
		Include: []string{"metadatas", "embeddings"},
	}, &getResp)
	if err != nil {
		return nil, vector.Wrap("get", err)
	}

	points := make([]vector.Point, 0, len(getResp.IDs))
	for i, id := range getResp.IDs {
		p := vector.Point{ID: id}
		if i < len(getResp.Metadatas) {
			if p.Payload, err = fromMetadata(getResp.Metadatas[i]); err != nil {
				return nil, vector.Wrap("get", fmt.Errorf("decoding payload for point %s: %w", id, err))
			}
		}
		if i < len(getResp.Embeddings) {
			p.Vector = getResp.Embeddings[i]
		}
		points = append(points, p)
	}

	return points, nil
}

// Delete removes records by ID.
func (d *Driver) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	path, _, err := d.recordsPath("delete")
	if err != nil {
		return vector.Wrap("delete", err)
	}

	if err := d.do(ctx, http.MethodPost, path, chromaDeleteRequest{IDs: ids}, nil); err != nil {
		return vector.Wrap("delete", err)
	}
	return nil
}

// DeleteByFunction removes every record whose function_id matches.
func (d *Driver) DeleteByFunction(ctx context.Context, functionID string) error {
	path, _, err := d.recordsPath("delete")
	if err != nil {
		return vector.Wrap("delete", err)
	}

	err = d.do(ctx, http.MethodPost, path, chromaDeleteRequest{
		Where: map[string]any{"function_id": map[string]any{"$eq": functionID}},
	}, nil)
	if err != nil {
		return vector.Wrap("delete", err)
	}

	d.logger.Debug("deleted function points from chroma",
		zap.String("function_id", functionID),
	)

	return nil
}

// Clear deletes the collection and creates it again with the same config.
func (d *Driver) Clear(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.collectionID == "" {
		return vector.Wrap("clear", vector.ErrNoCollection)
	}

	if err := d.do(ctx, http.MethodDelete, d.collectionsPath()+"/"+d.cfg.Name, nil, nil); err != nil {
		return vector.Wrap("clear", fmt.Errorf("deleting collection %q: %w", d.cfg.Name, err))
	}

	id, err := d.create(ctx, d.cfg)
	if err != nil {
		d.collectionID = ""
		return vector.Wrap("clear", err)
	}
	d.collectionID = id
	return nil
}

// Stats reports the collection's record count.
func (d *Driver) Stats(ctx context.Context) (vector.Stats, error) {
	path, cfg, err := d.recordsPath("count")
	if err != nil {
		return vector.Stats{}, vector.Wrap("stats", err)
	}

	stats := vector.Stats{
		Collection: cfg.Name,
		VectorSize: cfg.VectorSize,
		Distance:   cfg.Distance,
	}
	if err := d.do(ctx, http.MethodGet, path, nil, &stats.Points); err != nil {
		return stats, vector.Wrap("stats", err)
	}
	stats.Healthy = true
	return stats, nil
}

// Close releases resources held by the driver.
func (d *Driver) Close() error {
	// HTTP client doesn't require explicit cleanup
	return nil
}

var _ vector.Driver = (*Driver)(nil)
