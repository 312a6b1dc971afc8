// Package inmemory provides a brute-force in-memory vector driver.
package inmemory

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/papercomputeco/fnindex/pkg/vector"
)

// Driver implements vector.Driver with a map and a linear scan. It is meant
// for tests and small deployments; nothing survives a restart.
type Driver struct {
	mu      sync.RWMutex
	cfg     vector.CollectionConfig
	ensured bool
	points  map[string]vector.Point
	logger  *zap.Logger
}

// NewDriver creates an empty in-memory driver.
func NewDriver(logger *zap.Logger) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{
		points: make(map[string]vector.Point),
		logger: logger,
	}
}

// EnsureCollection records cfg, or checks it against the recorded one.
func (d *Driver) EnsureCollection(_ context.Context, cfg vector.CollectionConfig) error {
	if err := cfg.Validate(); err != nil {
		return vector.Wrap("ensure_collection", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.ensured {
		if !d.cfg.Compatible(cfg) {
			return vector.Incompatible(d.cfg, cfg)
		}
		return nil
	}

	d.cfg = cfg
	d.ensured = true
	d.logger.Info("created in-memory collection",
		zap.String("collection", cfg.Name),
		zap.Uint("vector_size", cfg.VectorSize),
		zap.String("distance", string(cfg.Distance)),
	)
	return nil
}

// Upsert stores points, replacing any with the same ID.
func (d *Driver) Upsert(_ context.Context, points []vector.Point) error {
	if len(points) == 0 {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.ensured {
		return vector.Wrap("upsert", vector.ErrNoCollection)
	}
	if err := vector.CheckVectors(points, d.cfg.VectorSize); err != nil {
		return vector.Wrap("upsert", err)
	}

	for _, p := range points {
		p.Vector = slices.Clone(p.Vector)
		d.points[p.ID] = p
	}
	return nil
}

// Query scans every point and returns the limit most similar ones.
func (d *Driver) Query(_ context.Context, vec []float32, filter *vector.Filter, limit int) ([]vector.QueryResult, error) {
	if limit <= 0 {
		limit = 10
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.ensured {
		return nil, vector.Wrap("query", vector.ErrNoCollection)
	}
	if err := vector.CheckVectors([]vector.Point{{ID: "query", Vector: vec}}, d.cfg.VectorSize); err != nil {
		return nil, vector.Wrap("query", err)
	}

	results := make([]vector.QueryResult, 0, len(d.points))
	for _, p := range d.points {
		if !filter.Match(p.Payload) {
			continue
		}
		results = append(results, vector.QueryResult{
			Point: p,
			Score: vector.Similarity(d.cfg.Distance, vec, p.Vector),
		})
	}

	slices.SortFunc(results, func(a, b vector.QueryResult) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Get returns the points with the given IDs, in the order requested.
func (d *Driver) Get(_ context.Context, ids []string) ([]vector.Point, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]vector.Point, 0, len(ids))
	for _, id := range ids {
		if p, ok := d.points[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// Delete removes the points with the given IDs.
func (d *Driver) Delete(_ context.Context, ids []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, id := range ids {
		delete(d.points, id)
	}
	return nil
}

// DeleteByFunction removes every point whose payload references functionID.
func (d *Driver) DeleteByFunction(_ context.Context, functionID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for id, p := range d.points {
		if p.Payload.FunctionID == functionID {
			delete(d.points, id)
		}
	}
	return nil
}

// Clear drops every point. The collection config is kept.
func (d *Driver) Clear(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.ensured {
		return vector.Wrap("clear", vector.ErrNoCollection)
	}
	d.points = make(map[string]vector.Point)
	d.logger.Info("cleared in-memory collection", zap.String("collection", d.cfg.Name))
	return nil
}

// Stats reports the number of stored points.
func (d *Driver) Stats(_ context.Context) (vector.Stats, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return vector.Stats{
		Collection: d.cfg.Name,
		Points:     len(d.points),
		VectorSize: d.cfg.VectorSize,
		Distance:   d.cfg.Distance,
		Healthy:    d.ensured,
	}, nil
}

// Close is a no-op.
func (d *Driver) Close() error {
	return nil
}

var _ vector.Driver = (*Driver)(nil)
