package testutils

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/papercomputeco/fnindex/pkg/function"
	"github.com/papercomputeco/fnindex/pkg/vector"
	"github.com/papercomputeco/fnindex/pkg/vector/inmemory"
)

// ErrMockVector is returned by MockVectorDriver for injected failures.
var ErrMockVector = errors.New("mock vector store failure")

// MockVectorDriver wraps an in-memory driver and fails selected calls. The
// switches may be flipped while other goroutines use the driver.
type MockVectorDriver struct {
	vector.Driver

	mu        sync.Mutex
	failViews []function.View
	onUpsert  func([]vector.Point)

	// FailQuery makes every Query fail.
	FailQuery atomic.Bool

	// FailUpsert makes every Upsert fail.
	FailUpsert atomic.Bool

	// FailDelete makes every Delete and DeleteByFunction fail.
	FailDelete atomic.Bool

	Queries atomic.Int32
}

// NewMockVectorDriver returns a MockVectorDriver over a fresh in-memory driver.
func NewMockVectorDriver() *MockVectorDriver {
	return &MockVectorDriver{Driver: inmemory.NewDriver(nil)}
}

// SetFailViews makes Query fail when the filter targets one of views.
func (m *MockVectorDriver) SetFailViews(views ...function.View) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failViews = views
}

// OnUpsert registers fn to run at the start of every Upsert, before the
// failure switch is checked. fn may block to hold the caller mid-write.
func (m *MockVectorDriver) OnUpsert(fn func([]vector.Point)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onUpsert = fn
}

func (m *MockVectorDriver) Query(ctx context.Context, vec []float32, filter *vector.Filter, limit int) ([]vector.QueryResult, error) {
	m.Queries.Add(1)
	if m.FailQuery.Load() {
		return nil, vector.Wrap("query", ErrMockVector)
	}

	m.mu.Lock()
	failViews := m.failViews
	m.mu.Unlock()
	if filter != nil {
		for _, v := range filter.Views {
			if slices.Contains(failViews, v) {
				return nil, vector.Wrap("query", ErrMockVector)
			}
		}
	}

	return m.Driver.Query(ctx, vec, filter, limit)
}

func (m *MockVectorDriver) Upsert(ctx context.Context, points []vector.Point) error {
	m.mu.Lock()
	hook := m.onUpsert
	m.mu.Unlock()
	if hook != nil {
		hook(points)
	}

	if m.FailUpsert.Load() {
		return vector.Wrap("upsert", ErrMockVector)
	}
	return m.Driver.Upsert(ctx, points)
}

func (m *MockVectorDriver) Delete(ctx context.Context, ids []string) error {
	if m.FailDelete.Load() {
		return vector.Wrap("delete", ErrMockVector)
	}
	return m.Driver.Delete(ctx, ids)
}

func (m *MockVectorDriver) DeleteByFunction(ctx context.Context, functionID string) error {
	if m.FailDelete.Load() {
		return vector.Wrap("delete", ErrMockVector)
	}
	return m.Driver.DeleteByFunction(ctx, functionID)
}

var _ vector.Driver = (*MockVectorDriver)(nil)
