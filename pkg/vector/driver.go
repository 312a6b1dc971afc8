// Package vector provides interfaces and implementations for vector storage
// of function view embeddings.
package vector

import (
	"context"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/fnindex/pkg/function"
)

// DefaultCollectionName is used when no collection is configured.
const DefaultCollectionName = "functions"

// Distance is a vector similarity metric.
type Distance string

const (
	DistanceCosine Distance = "cosine"
	DistanceDot    Distance = "dot"
	DistanceEuclid Distance = "euclid"
)

// Valid reports whether d is a known metric.
func (d Distance) Valid() bool {
	switch d {
	case DistanceCosine, DistanceDot, DistanceEuclid:
		return true
	}
	return false
}

// CollectionConfig describes the collection a driver should hold.
type CollectionConfig struct {
	Name       string
	VectorSize uint
	Distance   Distance
}

// Validate checks that the config can be used to create a collection.
func (c CollectionConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("collection name is required")
	}
	if c.VectorSize == 0 {
		return fmt.Errorf("collection vector size cannot be 0, must be configured")
	}
	if !c.Distance.Valid() {
		return fmt.Errorf("unknown distance metric %q", c.Distance)
	}
	return nil
}

// Compatible reports whether an existing collection described by c can be
// used as other without migrating data.
func (c CollectionConfig) Compatible(other CollectionConfig) bool {
	return c.VectorSize == other.VectorSize && c.Distance == other.Distance
}

// Payload is the denormalized function metadata stored with each point so
// results can be filtered and ranked without a round trip to the registry.
type Payload struct {
	FunctionID  string        `json:"function_id"`
	View        function.View `json:"view"`
	Name        string        `json:"name"`
	Category    string        `json:"category"`
	Subcategory string        `json:"subcategory,omitempty"`
	Tags        []string      `json:"tags,omitempty"`
	Keywords    []string      `json:"keywords,omitempty"`
	LastUpdated time.Time     `json:"last_updated"`
}

// NewPayload builds the payload for one view of f.
func NewPayload(f *function.Function, view function.View) Payload {
	return Payload{
		FunctionID:  f.ID,
		View:        view,
		Name:        f.Name,
		Category:    f.Category,
		Subcategory: f.Subcategory,
		Tags:        slices.Clone(f.Tags),
		Keywords:    function.Keywords(f),
		LastUpdated: f.LastUpdated,
	}
}

// Point is one (function, view) vector.
type Point struct {
	ID      string
	Vector  []float32
	Payload Payload
}

// NewPoint builds the point for one view of f.
func NewPoint(f *function.Function, view function.View, vec []float32) Point {
	return Point{
		ID:      PointID(f.ID, view),
		Vector:  vec,
		Payload: NewPayload(f, view),
	}
}

// pointNamespace seeds PointID. Changing it orphans every stored point.
var pointNamespace = uuid.MustParse("6f1c3b0e-52a4-4d0c-9a53-2f9c1e7d8b41")

// PointID returns the stable point id for a function view. It is a
// name-based UUID, so re-upserting the same view overwrites in place.
func PointID(functionID string, view function.View) string {
	return uuid.NewSHA1(pointNamespace, []byte(functionID+"/"+string(view))).String()
}

// Filter restricts which points a query may return. The zero value and a
// nil *Filter match everything.
type Filter struct {
	Category    string
	Subcategory string

	// Tags matches points carrying any of the given tags.
	Tags []string

	// Views restricts the search to points of the given views.
	Views []function.View

	// ExcludeIDs drops points belonging to these function ids.
	ExcludeIDs []string
}

// Empty reports whether f matches everything.
func (f *Filter) Empty() bool {
	return f == nil || (f.Category == "" && f.Subcategory == "" &&
		len(f.Tags) == 0 && len(f.Views) == 0 && len(f.ExcludeIDs) == 0)
}

// Match reports whether p passes the filter.
func (f *Filter) Match(p Payload) bool {
	if f == nil {
		return true
	}
	if f.Category != "" && f.Category != p.Category {
		return false
	}
	if f.Subcategory != "" && f.Subcategory != p.Subcategory {
		return false
	}
	if len(f.Views) > 0 && !slices.Contains(f.Views, p.View) {
		return false
	}
	if slices.Contains(f.ExcludeIDs, p.FunctionID) {
		return false
	}
	if len(f.Tags) > 0 {
		for _, t := range f.Tags {
			if slices.Contains(p.Tags, t) {
				return true
			}
		}
		return false
	}
	return true
}

// QueryResult is a point with its similarity to the query vector.
type QueryResult struct {
	Point

	// Score is a similarity in [0,1], higher = more similar.
	Score float32
}

// Stats describes the collection a driver holds.
type Stats struct {
	Collection string   `json:"collection"`
	Points     int      `json:"points"`
	VectorSize uint     `json:"vector_size"`
	Distance   Distance `json:"distance"`
	Healthy    bool     `json:"healthy"`
}

// Driver handles storage and retrieval of function view vectors.
type Driver interface {
	// EnsureCollection creates the collection if absent. It is a no-op when
	// the collection already exists with a compatible config and fails with
	// ErrIncompatibleCollection otherwise.
	EnsureCollection(ctx context.Context, cfg CollectionConfig) error

	// Upsert stores points, overwriting any point with the same ID.
	Upsert(ctx context.Context, points []Point) error

	// Query finds the limit nearest points to vec that pass filter.
	Query(ctx context.Context, vec []float32, filter *Filter, limit int) ([]QueryResult, error)

	// Get retrieves points by their IDs. Missing IDs are skipped.
	Get(ctx context.Context, ids []string) ([]Point, error)

	// Delete removes the points with the given IDs. Missing IDs are skipped.
	Delete(ctx context.Context, ids []string) error

	// DeleteByFunction removes every view point of a function.
	DeleteByFunction(ctx context.Context, functionID string) error

	// Clear drops and recreates the collection with its ensured config.
	Clear(ctx context.Context) error

	// Stats reports point count and health.
	Stats(ctx context.Context) (Stats, error)

	// Close releases any resources held by the driver.
	Close() error
}

// CheckVectors rejects points whose vectors do not have size dimensions.
func CheckVectors(points []Point, size uint) error {
	for _, p := range points {
		if uint(len(p.Vector)) != size {
			return fmt.Errorf("point %s: expected %d dimensions, got %d", p.ID, size, len(p.Vector))
		}
	}
	return nil
}

// Similarity scores a against b under d, mapped into [0,1].
func Similarity(d Distance, a, b []float32) float32 {
	switch d {
	case DistanceDot:
		return clamp(dot(a, b))
	case DistanceEuclid:
		var sum float64
		for i := range a {
			diff := float64(a[i] - b[i])
			sum += diff * diff
		}
		return float32(1 / (1 + math.Sqrt(sum)))
	default:
		na, nb := norm(a), norm(b)
		if na == 0 || nb == 0 {
			return 0
		}
		return clamp(dot(a, b) / (na * nb))
	}
}

// ScoreFromDistance converts a distance reported by a store into a
// similarity in [0,1]. Cosine and inner-product distances are 1 - similarity.
func ScoreFromDistance(d Distance, distance float64) float32 {
	switch d {
	case DistanceCosine, DistanceDot:
		return clamp(float32(1 - distance))
	default:
		return float32(1 / (1 + distance))
	}
}

func dot(a, b []float32) float32 {
	var sum float32
	for i := range min(len(a), len(b)) {
		sum += a[i] * b[i]
	}
	return sum
}

func norm(v []float32) float32 {
	return float32(math.Sqrt(float64(dot(v, v))))
}

func clamp(s float32) float32 {
	return min(max(s, 0), 1)
}
