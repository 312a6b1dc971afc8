// Package qdrant provides a Qdrant vector database driver over gRPC.
package qdrant

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"

	"github.com/papercomputeco/fnindex/pkg/function"
	"github.com/papercomputeco/fnindex/pkg/vector"
)

// DefaultPort is Qdrant's gRPC port.
const DefaultPort = 6334

// Payload keys. Every filterable key gets a keyword index.
const (
	keyFunctionID  = "function_id"
	keyView        = "view"
	keyName        = "name"
	keyCategory    = "category"
	keySubcategory = "subcategory"
	keyTags        = "tags"
	keyKeywords    = "keywords"
	keyLastUpdated = "last_updated"
)

var indexedKeys = []string{keyFunctionID, keyView, keyCategory, keySubcategory, keyTags}

// Config holds configuration for the Qdrant driver.
type Config struct {
	// Target is "host", "host:port" or a URL such as "http://host:6334".
	Target string

	APIKey string
	UseTLS bool
}

// pointsClient is the part of *qdrant.Client the driver calls.
type pointsClient interface {
	CollectionExists(ctx context.Context, collectionName string) (bool, error)
	GetCollectionInfo(ctx context.Context, collectionName string) (*qdrant.CollectionInfo, error)
	CreateCollection(ctx context.Context, request *qdrant.CreateCollection) error
	CreateFieldIndex(ctx context.Context, request *qdrant.CreateFieldIndexCollection) (*qdrant.UpdateResult, error)
	DeleteCollection(ctx context.Context, collectionName string) error
	Upsert(ctx context.Context, request *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Query(ctx context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	Get(ctx context.Context, request *qdrant.GetPoints) ([]*qdrant.RetrievedPoint, error)
	Delete(ctx context.Context, request *qdrant.DeletePoints) (*qdrant.UpdateResult, error)
	Count(ctx context.Context, request *qdrant.CountPoints) (uint64, error)
	Close() error
}

// Driver implements vector.Driver using the Qdrant gRPC client.
type Driver struct {
	client pointsClient
	logger *zap.Logger

	mu  sync.RWMutex
	cfg vector.CollectionConfig
}

// ParseTarget splits a target into host and gRPC port.
func ParseTarget(target string) (string, int, bool, error) {
	if target == "" {
		return "", 0, false, fmt.Errorf("qdrant target is required")
	}

	useTLS := false
	if u, err := url.Parse(target); err == nil && u.Host != "" {
		useTLS = u.Scheme == "https"
		target = u.Host
	}

	host, portStr, err := net.SplitHostPort(target)
	if err != nil {
		return target, DefaultPort, useTLS, nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, false, fmt.Errorf("invalid qdrant port %q: %w", portStr, err)
	}
	return host, port, useTLS, nil
}

// NewDriver creates a Qdrant driver. The connection is established lazily
// by the client.
func NewDriver(c Config, logger *zap.Logger) (*Driver, error) {
	host, port, useTLS, err := ParseTarget(c.Target)
	if err != nil {
		return nil, err
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: c.APIKey,
		UseTLS: useTLS || c.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", vector.ErrConnection, err)
	}

	logger.Info("qdrant vector driver initialized",
		zap.String("host", host),
		zap.Int("port", port),
	)

	return newDriver(client, logger), nil
}

func newDriver(client pointsClient, logger *zap.Logger) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{
		client: client,
		logger: logger,
	}
}

func toQdrantDistance(d vector.Distance) qdrant.Distance {
	switch d {
	case vector.DistanceDot:
		return qdrant.Distance_Dot
	case vector.DistanceEuclid:
		return qdrant.Distance_Euclid
	default:
		return qdrant.Distance_Cosine
	}
}

func fromQdrantDistance(d qdrant.Distance) vector.Distance {
	switch d {
	case qdrant.Distance_Dot:
		return vector.DistanceDot
	case qdrant.Distance_Euclid:
		return vector.DistanceEuclid
	case qdrant.Distance_Cosine:
		return vector.DistanceCosine
	default:
		return vector.Distance(d.String())
	}
}

func (d *Driver) config() (vector.CollectionConfig, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.cfg.Name == "" {
		return vector.CollectionConfig{}, vector.ErrNoCollection
	}
	return d.cfg, nil
}

// EnsureCollection creates the collection with payload indexes if absent,
// or verifies an existing one.
func (d *Driver) EnsureCollection(ctx context.Context, cfg vector.CollectionConfig) error {
	if err := cfg.Validate(); err != nil {
		return vector.Wrap("ensure_collection", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	exists, err := d.client.CollectionExists(ctx, cfg.Name)
	if err != nil {
		return vector.Wrap("ensure_collection", fmt.Errorf("checking collection %q: %w", cfg.Name, err))
	}

	if exists {
		info, err := d.client.GetCollectionInfo(ctx, cfg.Name)
		if err != nil {
			return vector.Wrap("ensure_collection", fmt.Errorf("reading collection %q: %w", cfg.Name, err))
		}
		params := info.GetConfig().GetParams().GetVectorsConfig().GetParams()
		have := vector.CollectionConfig{
			Name:       cfg.Name,
			VectorSize: uint(params.GetSize()),
			Distance:   fromQdrantDistance(params.GetDistance()),
		}
		if !have.Compatible(cfg) {
			return vector.Incompatible(have, cfg)
		}
		d.cfg = cfg
		return nil
	}

	if err := d.create(ctx, cfg); err != nil {
		return vector.Wrap("ensure_collection", err)
	}
	d.cfg = cfg
	return nil
}

func (d *Driver) create(ctx context.Context, cfg vector.CollectionConfig) error {
	err := d.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: cfg.Name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(cfg.VectorSize),
			Distance: toQdrantDistance(cfg.Distance),
		}),
	})
	if err != nil {
		return fmt.Errorf("creating collection %q: %w", cfg.Name, err)
	}

	wait := true
	for _, key := range indexedKeys {
		_, err := d.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: cfg.Name,
			Wait:           &wait,
			FieldName:      key,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		})
		if err != nil {
			return fmt.Errorf("indexing payload key %q: %w", key, err)
		}
	}

	d.logger.Info("created qdrant collection",
		zap.String("collection", cfg.Name),
		zap.Uint("vector_size", cfg.VectorSize),
		zap.String("distance", string(cfg.Distance)),
	)
	return nil
}

func toValueMap(p vector.Payload) (map[string]*qdrant.Value, error) {
	tags := make([]any, len(p.Tags))
	for i, t := range p.Tags {
		tags[i] = t
	}
	keywords := make([]any, len(p.Keywords))
	for i, k := range p.Keywords {
		keywords[i] = k
	}

	return qdrant.TryValueMap(map[string]any{
		keyFunctionID:  p.FunctionID,
		keyView:        string(p.View),
		keyName:        p.Name,
		keyCategory:    p.Category,
		keySubcategory: p.Subcategory,
		keyTags:        tags,
		keyKeywords:    keywords,
		keyLastUpdated: p.LastUpdated.UnixNano(),
	})
}

func stringList(v *qdrant.Value) []string {
	values := v.GetListValue().GetValues()
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, item := range values {
		out = append(out, item.GetStringValue())
	}
	return out
}

func fromValueMap(m map[string]*qdrant.Value) vector.Payload {
	p := vector.Payload{
		FunctionID:  m[keyFunctionID].GetStringValue(),
		View:        function.View(m[keyView].GetStringValue()),
		Name:        m[keyName].GetStringValue(),
		Category:    m[keyCategory].GetStringValue(),
		Subcategory: m[keySubcategory].GetStringValue(),
		Tags:        stringList(m[keyTags]),
		Keywords:    stringList(m[keyKeywords]),
	}
	if ns := m[keyLastUpdated].GetIntegerValue(); ns != 0 {
		p.LastUpdated = time.Unix(0, ns).UTC()
	}
	return p
}

// toQdrantFilter translates a filter. Tags match-any and excluded function
// ids are expressed with keyword sets.
func toQdrantFilter(f *vector.Filter) *qdrant.Filter {
	if f.Empty() {
		return nil
	}

	out := &qdrant.Filter{}
	if f.Category != "" {
		out.Must = append(out.Must, qdrant.NewMatch(keyCategory, f.Category))
	}
	if f.Subcategory != "" {
		out.Must = append(out.Must, qdrant.NewMatch(keySubcategory, f.Subcategory))
	}
	if len(f.Tags) > 0 {
		out.Must = append(out.Must, qdrant.NewMatchKeywords(keyTags, f.Tags...))
	}
	if len(f.Views) > 0 {
		views := make([]string, len(f.Views))
		for i, v := range f.Views {
			views[i] = string(v)
		}
		out.Must = append(out.Must, qdrant.NewMatchKeywords(keyView, views...))
	}
	if len(f.ExcludeIDs) > 0 {
		out.MustNot = append(out.MustNot, qdrant.NewMatchKeywords(keyFunctionID, f.ExcludeIDs...))
	}
	return out
}

// Upsert stores points, overwriting any with the same ID.
func (d *Driver) Upsert(ctx context.Context, points []vector.Point) error {
	if len(points) == 0 {
		return nil
	}

	cfg, err := d.config()
	if err != nil {
		return vector.Wrap("upsert", err)
	}
	if err := vector.CheckVectors(points, cfg.VectorSize); err != nil {
		return vector.Wrap("upsert", err)
	}

	structs := make([]*qdrant.PointStruct, len(points))
	for i, p := range points {
		payload, err := toValueMap(p.Payload)
		if err != nil {
			return vector.Wrap("upsert", fmt.Errorf("encoding payload for point %s: %w", p.ID, err))
		}
		structs[i] = &qdrant.PointStruct{
			Id:      qdrant.NewID(p.ID),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: payload,
		}
	}

	wait := true
	if _, err := d.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: cfg.Name,
		Wait:           &wait,
		Points:         structs,
	}); err != nil {
		return vector.Wrap("upsert", err)
	}

	d.logger.Debug("upserted points to qdrant",
		zap.Int("count", len(points)),
	)

	return nil
}

// Query finds the limit nearest points to vec that pass filter.
func (d *Driver) Query(ctx context.Context, vec []float32, filter *vector.Filter, limit int) ([]vector.QueryResult, error) {
	if limit <= 0 {
		limit = 10
	}

	cfg, err := d.config()
	if err != nil {
		return nil, vector.Wrap("query", err)
	}

	scored, err := d.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: cfg.Name,
		Query:          qdrant.NewQuery(vec...),
		Filter:         toQdrantFilter(filter),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, vector.Wrap("query", err)
	}

	results := make([]vector.QueryResult, 0, len(scored))
	for _, sp := range scored {
		score := sp.GetScore()
		if cfg.Distance == vector.DistanceEuclid {
			// Qdrant reports the euclidean distance itself.
			score = vector.ScoreFromDistance(cfg.Distance, float64(score))
		}
		results = append(results, vector.QueryResult{
			Point: vector.Point{
				ID:      sp.GetId().GetUuid(),
				Payload: fromValueMap(sp.GetPayload()),
			},
			Score: min(max(score, 0), 1),
		})
	}

	d.logger.Debug("queried qdrant",
		zap.Int("results", len(results)),
	)

	return results, nil
}

// Get retrieves points with their vectors.
func (d *Driver) Get(ctx context.Context, ids []string) ([]vector.Point, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	cfg, err := d.config()
	if err != nil {
		return nil, vector.Wrap("get", err)
	}

	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = qdrant.NewID(id)
	}

	retrieved, err := d.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: cfg.Name,
		Ids:            pointIDs,
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, vector.Wrap("get", err)
	}

	points := make([]vector.Point, 0, len(retrieved))
	for _, rp := range retrieved {
		points = append(points, vector.Point{
			ID:      rp.GetId().GetUuid(),
			Vector:  rp.GetVectors().GetVector().GetData(),
			Payload: fromValueMap(rp.GetPayload()),
		})
	}
	return points, nil
}

// Delete removes points by ID.
func (d *Driver) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	cfg, err := d.config()
	if err != nil {
		return vector.Wrap("delete", err)
	}

	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = qdrant.NewID(id)
	}

	wait := true
	_, err = d.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: cfg.Name,
		Wait:           &wait,
		Points:         qdrant.NewPointsSelector(pointIDs...),
	})
	if err != nil {
		return vector.Wrap("delete", err)
	}
	return nil
}

// DeleteByFunction removes every point whose function_id matches.
func (d *Driver) DeleteByFunction(ctx context.Context, functionID string) error {
	cfg, err := d.config()
	if err != nil {
		return vector.Wrap("delete", err)
	}

	wait := true
	_, err = d.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: cfg.Name,
		Wait:           &wait,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch(keyFunctionID, functionID)},
		}),
	})
	if err != nil {
		return vector.Wrap("delete", err)
	}

	d.logger.Debug("deleted function points from qdrant",
		zap.String("function_id", functionID),
	)
	return nil
}

// Clear deletes the collection and creates it again with the same config.
func (d *Driver) Clear(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cfg.Name == "" {
		return vector.Wrap("clear", vector.ErrNoCollection)
	}

	if err := d.client.DeleteCollection(ctx, d.cfg.Name); err != nil {
		return vector.Wrap("clear", fmt.Errorf("deleting collection %q: %w", d.cfg.Name, err))
	}
	if err := d.create(ctx, d.cfg); err != nil {
		d.logger.Error("qdrant collection dropped but not recreated",
			zap.String("collection", d.cfg.Name),
			zap.Error(err),
		)
		d.cfg = vector.CollectionConfig{}
		return vector.Wrap("clear", err)
	}
	return nil
}

// Stats reports the exact point count and collection status.
func (d *Driver) Stats(ctx context.Context) (vector.Stats, error) {
	cfg, err := d.config()
	if err != nil {
		return vector.Stats{}, vector.Wrap("stats", err)
	}

	stats := vector.Stats{
		Collection: cfg.Name,
		VectorSize: cfg.VectorSize,
		Distance:   cfg.Distance,
	}

	count, err := d.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: cfg.Name,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return stats, vector.Wrap("stats", err)
	}
	stats.Points = int(count)

	info, err := d.client.GetCollectionInfo(ctx, cfg.Name)
	if err != nil {
		return stats, vector.Wrap("stats", err)
	}
	stats.Healthy = info.GetStatus() == qdrant.CollectionStatus_Green
	return stats, nil
}

// Close closes the gRPC connection.
func (d *Driver) Close() error {
	return d.client.Close()
}

var _ vector.Driver = (*Driver)(nil)
