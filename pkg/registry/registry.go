// Package registry owns the lifecycle of registered functions. It keeps the
// canonical records, their vector points and the embedding cache consistent,
// and fronts the retrieval engine.
package registry

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/papercomputeco/fnindex/pkg/embeddings"
	"github.com/papercomputeco/fnindex/pkg/eventstream"
	"github.com/papercomputeco/fnindex/pkg/eventstream/nop"
	"github.com/papercomputeco/fnindex/pkg/function"
	"github.com/papercomputeco/fnindex/pkg/metrics"
	"github.com/papercomputeco/fnindex/pkg/retrieval"
	"github.com/papercomputeco/fnindex/pkg/storage"
	"github.com/papercomputeco/fnindex/pkg/vector"
)

const (
	defaultBatchConcurrency = 5

	// lockStripes is the number of mutexes function ids are hashed onto.
	lockStripes = 64
)

// Embedder is the part of the embedding service the registry needs.
type Embedder interface {
	EmbedMany(ctx context.Context, texts []string) []embeddings.Result
	Forget(text string)
	Purge()
	CacheStats() embeddings.CacheStats
}

// Deps are the collaborators a Registry is built from.
type Deps struct {
	Store      storage.Driver
	Vectors    vector.Driver
	Embeddings Embedder
	Engine     *retrieval.Engine

	// Events receives lifecycle events. Defaults to a no-op publisher.
	Events eventstream.Publisher

	Metrics *metrics.Metrics
	Logger  *zap.Logger

	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Options tunes a Registry.
type Options struct {
	// BatchConcurrency bounds in-flight items during BatchAdd and Rebuild.
	BatchConcurrency int

	// Collection is ensured on Init.
	Collection vector.CollectionConfig
}

// Registry is safe for concurrent use. ClearAll and Rebuild are exclusive:
// they wait for in-flight operations and block new ones until done.
type Registry struct {
	store    storage.Driver
	vectors  vector.Driver
	embedder Embedder
	engine   *retrieval.Engine
	events   eventstream.Publisher
	metrics  *metrics.Metrics
	logger   *zap.Logger
	clock    func() time.Time

	batchConcurrency int
	collection       vector.CollectionConfig

	clearMu sync.RWMutex

	// idLocks serialize Update and Delete per function id.
	idLocks [lockStripes]sync.Mutex
}

// BatchFailure describes one rejected item of a batch.
type BatchFailure struct {
	Index int
	Name  string
	Err   error
}

// BatchResult reports every item of a batch. Succeeded holds the ids of the
// added functions in request order.
type BatchResult struct {
	Succeeded []string
	Failed    []BatchFailure
}

// RebuildResult reports a Rebuild.
type RebuildResult struct {
	Indexed int
	Failed  []BatchFailure
}

// Stats aggregates registry, vector store and cache state.
type Stats struct {
	Functions int                   `json:"functions"`
	Vectors   vector.Stats          `json:"vectors"`
	Cache     embeddings.CacheStats `json:"cache"`
}

// New creates a Registry. Call Init before use.
func New(d Deps, o Options) (*Registry, error) {
	switch {
	case d.Store == nil:
		return nil, errors.New("registry requires a store")
	case d.Vectors == nil:
		return nil, errors.New("registry requires a vector driver")
	case d.Embeddings == nil:
		return nil, errors.New("registry requires an embedder")
	case d.Engine == nil:
		return nil, errors.New("registry requires a retrieval engine")
	}

	if o.Collection.Name == "" {
		o.Collection.Name = vector.DefaultCollectionName
	}
	if o.Collection.Distance == "" {
		o.Collection.Distance = vector.DistanceCosine
	}
	if err := o.Collection.Validate(); err != nil {
		return nil, err
	}
	if o.BatchConcurrency <= 0 {
		o.BatchConcurrency = defaultBatchConcurrency
	}

	r := &Registry{
		store:            d.Store,
		vectors:          d.Vectors,
		embedder:         d.Embeddings,
		engine:           d.Engine,
		events:           d.Events,
		metrics:          d.Metrics,
		logger:           d.Logger,
		clock:            d.Clock,
		batchConcurrency: o.BatchConcurrency,
		collection:       o.Collection,
	}
	if r.events == nil {
		r.events = nop.NewPublisher()
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	if r.clock == nil {
		r.clock = time.Now
	}

	return r, nil
}

// Init ensures the vector collection exists with the configured shape.
func (r *Registry) Init(ctx context.Context) error {
	if err := r.vectors.EnsureCollection(ctx, r.collection); err != nil {
		return err
	}
	r.refreshGauge(ctx)
	return nil
}

// Engine returns the retrieval engine the registry searches with.
func (r *Registry) Engine() *retrieval.Engine {
	return r.engine
}

// Add registers a new function and returns its id.
func (r *Registry) Add(ctx context.Context, req function.AddRequest) (string, error) {
	r.clearMu.RLock()
	defer r.clearMu.RUnlock()

	f, err := r.add(ctx, req)
	if err != nil {
		return "", err
	}
	r.refreshGauge(ctx)
	return f.ID, nil
}

func (r *Registry) add(ctx context.Context, req function.AddRequest) (*function.Function, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	f := req.NewFunction(uuid.NewString(), r.clock().UTC())
	if err := r.index(ctx, f); err != nil {
		return nil, err
	}

	r.logger.Info("function added",
		zap.String("function_id", f.ID),
		zap.String("name", f.Name),
		zap.String("category", f.Category),
	)
	r.publish(ctx, eventstream.EventTypeFunctionAdded, f)
	return f, nil
}

// index embeds every view of f, stores the record and upserts its points.
// The record is removed again when the points cannot be stored.
func (r *Registry) index(ctx context.Context, f *function.Function) error {
	points, err := r.embedViews(ctx, f, function.Project(f), function.AllViews)
	if err != nil {
		return err
	}

	if err := r.store.Put(ctx, f); err != nil {
		return err
	}

	if err := r.vectors.Upsert(ctx, points); err != nil {
		if derr := r.store.Delete(ctx, f.ID); derr != nil && !storage.IsNotFound(derr) {
			r.logger.Error("failed to roll back function record",
				zap.String("function_id", f.ID),
				zap.Error(derr),
			)
		}
		return err
	}
	return nil
}

// embedViews embeds the listed views of f that have text.
func (r *Registry) embedViews(ctx context.Context, f *function.Function, views function.Views, which []function.View) ([]vector.Point, error) {
	var (
		order []function.View
		texts []string
	)
	for _, view := range which {
		if text, ok := views[view]; ok {
			order = append(order, view)
			texts = append(texts, text)
		}
	}

	results := r.embedder.EmbedMany(ctx, texts)
	points := make([]vector.Point, 0, len(results))
	for i, res := range results {
		if res.Err != nil {
			return nil, fmt.Errorf("embedding %s view of %s: %w", order[i], f.Name, res.Err)
		}
		points = append(points, vector.NewPoint(f, order[i], res.Vector))
	}
	return points, nil
}

// BatchAdd registers every valid request. Items are processed with bounded
// concurrency and fail independently.
func (r *Registry) BatchAdd(ctx context.Context, reqs []function.AddRequest) BatchResult {
	r.clearMu.RLock()
	defer r.clearMu.RUnlock()

	ids := make([]string, len(reqs))
	errs := make([]error, len(reqs))

	var g errgroup.Group
	g.SetLimit(r.batchConcurrency)
	for i, req := range reqs {
		g.Go(func() error {
			f, err := r.add(ctx, req)
			if err != nil {
				errs[i] = err
				return nil
			}
			ids[i] = f.ID
			return nil
		})
	}
	_ = g.Wait()

	var result BatchResult
	for i := range reqs {
		if errs[i] != nil {
			r.logger.Warn("batch item failed",
				zap.Int("index", i),
				zap.String("name", reqs[i].Name),
				zap.Error(errs[i]),
			)
			result.Failed = append(result.Failed, BatchFailure{Index: i, Name: reqs[i].Name, Err: errs[i]})
			continue
		}
		result.Succeeded = append(result.Succeeded, ids[i])
	}

	r.logger.Info("batch add complete",
		zap.Int("succeeded", len(result.Succeeded)),
		zap.Int("failed", len(result.Failed)),
	)
	r.refreshGauge(ctx)
	return result
}

// Get returns the function with id, or storage.NotFoundError.
func (r *Registry) Get(ctx context.Context, id string) (*function.Function, error) {
	r.clearMu.RLock()
	defer r.clearMu.RUnlock()

	return r.store.Get(ctx, id)
}

// List returns every function ordered by name.
func (r *Registry) List(ctx context.Context) ([]*function.Function, error) {
	r.clearMu.RLock()
	defer r.clearMu.RUnlock()

	return r.store.List(ctx)
}

// Update applies req to the function with id. Only views whose text changed
// are re-embedded; the other views keep their vectors but get a fresh
// payload. Points are written before the record; if any step fails the
// previous points are restored so they keep matching the stored record.
func (r *Registry) Update(ctx context.Context, id string, req function.UpdateRequest) (*function.Function, error) {
	r.clearMu.RLock()
	defer r.clearMu.RUnlock()

	if err := req.Validate(); err != nil {
		return nil, err
	}

	unlock := r.lockID(id)
	defer unlock()

	old, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	updated := req.Apply(old)
	updated.LastUpdated = r.next(old.LastUpdated)

	before, after := function.Project(old), function.Project(updated)
	changed := before.Changed(after)

	prev, err := r.vectors.Get(ctx, pointIDs(id, function.AllViews))
	if err != nil {
		return nil, err
	}

	points, missing := reusePoints(updated, after, changed, prev)
	fresh, err := r.embedViews(ctx, updated, after, append(changed, missing...))
	if err != nil {
		return nil, err
	}
	points = append(points, fresh...)
	added := pointIDs(id, lostViews(after, before))

	if err := r.vectors.Upsert(ctx, points); err != nil {
		r.restore(ctx, id, prev, added)
		return nil, err
	}
	if stale := pointIDs(id, lostViews(before, after)); len(stale) > 0 {
		if err := r.vectors.Delete(ctx, stale); err != nil {
			r.restore(ctx, id, prev, added)
			return nil, err
		}
	}
	if err := r.store.Put(ctx, updated); err != nil {
		r.restore(ctx, id, prev, added)
		return nil, err
	}

	for view, text := range before {
		if after[view] != text {
			r.embedder.Forget(text)
		}
	}

	r.logger.Info("function updated",
		zap.String("function_id", id),
		zap.Int("reembedded_views", len(fresh)),
	)
	r.publish(ctx, eventstream.EventTypeFunctionUpdated, updated)
	return updated, nil
}

// restore writes back the points a failed update started from and removes
// the points of views the update added.
func (r *Registry) restore(ctx context.Context, id string, prev []vector.Point, added []string) {
	if len(added) > 0 {
		if err := r.vectors.Delete(ctx, added); err != nil {
			r.logger.Error("failed to remove points of a failed update",
				zap.String("function_id", id),
				zap.Error(err),
			)
		}
	}
	if len(prev) == 0 {
		return
	}
	if err := r.vectors.Upsert(ctx, prev); err != nil {
		r.logger.Error("failed to restore function points",
			zap.String("function_id", id),
			zap.Error(err),
		)
	}
}

// lockID locks the stripe id hashes onto and returns its unlock func.
func (r *Registry) lockID(id string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	mu := &r.idLocks[h.Sum32()%lockStripes]
	mu.Lock()
	return mu.Unlock
}

func pointIDs(functionID string, views []function.View) []string {
	ids := make([]string, len(views))
	for i, view := range views {
		ids[i] = vector.PointID(functionID, view)
	}
	return ids
}

// lostViews lists the views with text in before and none in after.
func lostViews(before, after function.Views) []function.View {
	var lost []function.View
	for _, view := range function.AllViews {
		_, had := before[view]
		_, has := after[view]
		if had && !has {
			lost = append(lost, view)
		}
	}
	return lost
}

// reusePoints rebuilds the points of unchanged views from their previous
// vectors. Unchanged views with no previous vector are returned as missing
// so they get embedded.
func reusePoints(f *function.Function, views function.Views, changed []function.View, prev []vector.Point) ([]vector.Point, []function.View) {
	byView := make(map[function.View][]float32, len(prev))
	for _, p := range prev {
		byView[p.Payload.View] = p.Vector
	}

	var (
		points  []vector.Point
		missing []function.View
	)
	for _, view := range function.AllViews {
		if _, ok := views[view]; !ok || slices.Contains(changed, view) {
			continue
		}
		vec, ok := byView[view]
		if !ok {
			missing = append(missing, view)
			continue
		}
		points = append(points, vector.NewPoint(f, view, vec))
	}
	return points, missing
}

// Delete removes the function's vector points, then its record, and drops
// the cached embeddings of its texts.
func (r *Registry) Delete(ctx context.Context, id string) error {
	r.clearMu.RLock()
	defer r.clearMu.RUnlock()

	unlock := r.lockID(id)
	defer unlock()

	f, err := r.store.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := r.vectors.DeleteByFunction(ctx, id); err != nil {
		return err
	}
	if err := r.store.Delete(ctx, id); err != nil {
		return err
	}
	for _, text := range function.Project(f) {
		r.embedder.Forget(text)
	}

	r.logger.Info("function deleted", zap.String("function_id", id))
	r.publish(ctx, eventstream.EventTypeFunctionDeleted, f)
	r.refreshGauge(ctx)
	return nil
}

// ClearAll drops and recreates the collection, removes every record and
// purges the embedding cache.
func (r *Registry) ClearAll(ctx context.Context) error {
	r.clearMu.Lock()
	defer r.clearMu.Unlock()

	if err := r.vectors.Clear(ctx); err != nil {
		return err
	}
	if err := r.store.Clear(ctx); err != nil {
		return err
	}
	r.embedder.Purge()

	r.logger.Info("registry cleared", zap.String("collection", r.collection.Name))
	r.publish(ctx, eventstream.EventTypeCollectionCleared, nil)
	r.metrics.SetFunctions(0)
	return nil
}

// Rebuild drops and recreates the collection, then re-indexes every stored
// function. Records are kept.
func (r *Registry) Rebuild(ctx context.Context) (RebuildResult, error) {
	r.clearMu.Lock()
	defer r.clearMu.Unlock()

	fns, err := r.store.List(ctx)
	if err != nil {
		return RebuildResult{}, err
	}
	if err := r.vectors.Clear(ctx); err != nil {
		return RebuildResult{}, err
	}

	errs := make([]error, len(fns))
	var g errgroup.Group
	g.SetLimit(r.batchConcurrency)
	for i, f := range fns {
		g.Go(func() error {
			points, err := r.embedViews(ctx, f, function.Project(f), function.AllViews)
			if err == nil {
				err = r.vectors.Upsert(ctx, points)
			}
			errs[i] = err
			return nil
		})
	}
	_ = g.Wait()

	var result RebuildResult
	for i, err := range errs {
		if err != nil {
			result.Failed = append(result.Failed, BatchFailure{Index: i, Name: fns[i].Name, Err: err})
			continue
		}
		result.Indexed++
	}

	r.logger.Info("registry rebuilt",
		zap.Int("indexed", result.Indexed),
		zap.Int("failed", len(result.Failed)),
	)
	return result, nil
}

// Stats reports the number of functions, vector store state and cache
// occupancy.
func (r *Registry) Stats(ctx context.Context) (Stats, error) {
	r.clearMu.RLock()
	defer r.clearMu.RUnlock()

	n, err := r.store.Count(ctx)
	if err != nil {
		return Stats{}, err
	}
	vs, err := r.vectors.Stats(ctx)
	if err != nil {
		return Stats{}, err
	}

	return Stats{
		Functions: n,
		Vectors:   vs,
		Cache:     r.embedder.CacheStats(),
	}, nil
}

// Search ranks functions for a query.
func (r *Registry) Search(ctx context.Context, q retrieval.Query) ([]retrieval.Result, error) {
	r.clearMu.RLock()
	defer r.clearMu.RUnlock()

	return r.engine.Search(ctx, q)
}

// Similar ranks functions close to the function with id, excluding it.
func (r *Registry) Similar(ctx context.Context, id string, cfg *retrieval.Config) ([]retrieval.Result, error) {
	r.clearMu.RLock()
	defer r.clearMu.RUnlock()

	return r.engine.Similar(ctx, id, cfg)
}

// ByCategory lists functions in a category or subcategory.
func (r *Registry) ByCategory(ctx context.Context, category, subcategory string, limit int) ([]retrieval.Result, error) {
	r.clearMu.RLock()
	defer r.clearMu.RUnlock()

	return r.engine.ByCategory(ctx, category, subcategory, limit)
}

// Close releases the store, the vector driver and the event publisher.
func (r *Registry) Close() error {
	return errors.Join(r.store.Close(), r.vectors.Close(), r.events.Close())
}

// next returns the current time, never earlier than prev.
func (r *Registry) next(prev time.Time) time.Time {
	now := r.clock().UTC()
	if now.Before(prev) {
		return prev
	}
	return now
}

func (r *Registry) publish(ctx context.Context, eventType string, f *function.Function) {
	event := eventstream.NewFunctionEvent(eventType, f, r.clock())
	if err := r.events.Publish(ctx, event); err != nil {
		r.logger.Warn("failed to publish event",
			zap.String("event_type", eventType),
			zap.String("event_id", event.EventID),
			zap.Error(err),
		)
	}
}

func (r *Registry) refreshGauge(ctx context.Context) {
	if r.metrics == nil {
		return
	}
	n, err := r.store.Count(ctx)
	if err != nil {
		return
	}
	r.metrics.SetFunctions(n)
}
