package embeddings

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/papercomputeco/fnindex/pkg/metrics"
)

const (
	// DefaultCacheSize bounds the cache when no size is configured.
	DefaultCacheSize = 10_000

	defaultBatchSize      = 16
	defaultConcurrency    = 5
	defaultInitialBackoff = 200 * time.Millisecond
	defaultMaxBackoff     = 5 * time.Second
)

// ServiceConfig configures a Service.
type ServiceConfig struct {
	// Embedder is the provider client. Required.
	Embedder Embedder

	// Provider and Model are mixed into cache keys. When empty they are
	// taken from Embedder if it implements Identity.
	Provider string
	Model    string

	// Dimensions, when non-zero, rejects vectors of any other length.
	Dimensions uint

	// BatchSize bounds how many texts are sent in one provider request.
	BatchSize int

	// Concurrency bounds in-flight provider requests across all callers.
	Concurrency int

	// MaxRetries is the number of extra attempts for a retryable failure.
	// Zero means a single attempt.
	MaxRetries uint

	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// Cache is optional; a default-sized cache is created when nil.
	Cache *Cache

	Metrics *metrics.Metrics
	Logger  *zap.Logger
}

// Result is the outcome for one input of EmbedMany.
type Result struct {
	Vector []float32
	Err    error
	Cached bool
}

// Service fronts an Embedder with a fingerprint cache, request batching,
// bounded concurrency and per-item retries. It is safe for concurrent use
// and itself satisfies Embedder.
type Service struct {
	embedder   Embedder
	provider   string
	model      string
	dimensions int
	batchSize  int
	maxRetries uint
	initial    time.Duration
	maxBackoff time.Duration

	cache   *Cache
	sem     *semaphore.Weighted
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewService creates a Service.
func NewService(c ServiceConfig) (*Service, error) {
	if c.Embedder == nil {
		return nil, errors.New("embedder is required")
	}

	s := &Service{
		embedder:   c.Embedder,
		provider:   c.Provider,
		model:      c.Model,
		dimensions: int(c.Dimensions),
		batchSize:  c.BatchSize,
		maxRetries: c.MaxRetries,
		initial:    c.InitialBackoff,
		maxBackoff: c.MaxBackoff,
		cache:      c.Cache,
		metrics:    c.Metrics,
		logger:     c.Logger,
	}

	if id, ok := c.Embedder.(Identity); ok {
		if s.provider == "" {
			s.provider = id.Provider()
		}
		if s.model == "" {
			s.model = id.Model()
		}
	}
	if s.batchSize <= 0 {
		s.batchSize = defaultBatchSize
	}
	concurrency := c.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	s.sem = semaphore.NewWeighted(int64(concurrency))
	if s.initial <= 0 {
		s.initial = defaultInitialBackoff
	}
	if s.maxBackoff < s.initial {
		s.maxBackoff = max(defaultMaxBackoff, s.initial)
	}
	if s.cache == nil {
		s.cache = NewCache(DefaultCacheSize, 0)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}

	return s, nil
}

// Embed returns the vector for text, from cache when possible.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	return s.embed(ctx, text, true)
}

// EmbedFresh always calls the provider, then refreshes the cache entry.
func (s *Service) EmbedFresh(ctx context.Context, text string) ([]float32, error) {
	return s.embed(ctx, text, false)
}

func (s *Service) embed(ctx context.Context, text string, readCache bool) ([]float32, error) {
	if NormalizeText(text) == "" {
		return nil, NewError(KindMalformed, errors.New("empty text"))
	}

	key := s.key(text)
	if readCache {
		if vec, ok := s.lookup(key); ok {
			return vec, nil
		}
	}

	vec, err := s.embedOne(ctx, text)
	if err != nil {
		return nil, err
	}
	s.cache.Put(key, vec)
	return vec, nil
}

// EmbedMany embeds texts, returning one Result per input in input order.
// Failures are isolated: a text that cannot be embedded never fails the
// others.
func (s *Service) EmbedMany(ctx context.Context, texts []string) []Result {
	results := make([]Result, len(texts))

	pending := make(map[string][]int)
	keyText := make(map[string]string)
	var order []string

	for i, text := range texts {
		if NormalizeText(text) == "" {
			results[i].Err = NewError(KindMalformed, errors.New("empty text"))
			continue
		}
		key := s.key(text)
		if vec, ok := s.lookup(key); ok {
			results[i] = Result{Vector: vec, Cached: true}
			continue
		}
		if _, seen := pending[key]; !seen {
			order = append(order, key)
			keyText[key] = text
		}
		pending[key] = append(pending[key], i)
	}

	var wg sync.WaitGroup
	for start := 0; start < len(order); start += s.batchSize {
		group := order[start:min(start+s.batchSize, len(order))]

		wg.Add(1)
		go func(group []string) {
			defer wg.Done()

			groupTexts := make([]string, len(group))
			for i, key := range group {
				groupTexts[i] = keyText[key]
			}

			vecs, errs := s.embedGroup(ctx, groupTexts)
			for i, key := range group {
				if errs[i] == nil {
					s.cache.Put(key, vecs[i])
				}
				for _, idx := range pending[key] {
					results[idx] = Result{Vector: vecs[i], Err: errs[i]}
				}
			}
		}(group)
	}
	wg.Wait()

	return results
}

// embedGroup sends texts as one batch request when the provider supports it,
// falling back to individual retried calls for anything the batch did not
// produce.
func (s *Service) embedGroup(ctx context.Context, texts []string) ([][]float32, []error) {
	vecs := make([][]float32, len(texts))
	errs := make([]error, len(texts))

	retry := make([]bool, len(texts))
	for i := range retry {
		retry[i] = true
	}

	if be, ok := s.embedder.(BatchEmbedder); ok && len(texts) > 1 {
		batch, err := s.callBatch(ctx, be, texts)
		switch {
		case err != nil:
			s.logger.Warn("batch embedding failed, retrying items individually",
				zap.Int("batch_size", len(texts)),
				zap.Error(err),
			)
		case len(batch) != len(texts):
			s.logger.Warn("batch embedding returned wrong number of vectors",
				zap.Int("want", len(texts)),
				zap.Int("got", len(batch)),
			)
		default:
			for i, vec := range batch {
				if err := s.checkDimensions(vec); err != nil {
					errs[i] = err
				} else {
					vecs[i] = vec
				}
				retry[i] = false
			}
		}
	}

	for i, text := range texts {
		if !retry[i] {
			continue
		}
		vecs[i], errs[i] = s.embedOne(ctx, text)
	}

	return vecs, errs
}

func (s *Service) callBatch(ctx context.Context, be BatchEmbedder, texts []string) ([][]float32, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, ClassifyTransport(err)
	}
	defer s.sem.Release(1)

	vecs, err := be.EmbedBatch(ctx, texts)
	s.metrics.ProviderCall(outcome(err))
	return vecs, err
}

// embedOne calls the provider for a single text, retrying retryable
// failures with exponential backoff.
func (s *Service) embedOne(ctx context.Context, text string) ([]float32, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.initial
	b.MaxInterval = s.maxBackoff

	vec, err := backoff.Retry(ctx, func() ([]float32, error) {
		vec, err := s.call(ctx, text)
		if err != nil {
			if !IsRetryable(err) {
				return nil, backoff.Permanent(err)
			}
			s.logger.Debug("retrying embedding", zap.Error(err))
			return nil, err
		}
		return vec, nil
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(s.maxRetries+1),
	)
	if err != nil {
		var e *Error
		if !errors.As(err, &e) {
			err = ClassifyTransport(err)
		}
		return nil, err
	}
	return vec, nil
}

func (s *Service) call(ctx context.Context, text string) ([]float32, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, ClassifyTransport(err)
	}
	defer s.sem.Release(1)

	vec, err := s.embedder.Embed(ctx, text)
	s.metrics.ProviderCall(outcome(err))
	if err != nil {
		var e *Error
		if errors.As(err, &e) {
			return nil, err
		}
		return nil, NewError(KindProvider, err)
	}
	if err := s.checkDimensions(vec); err != nil {
		return nil, err
	}
	return vec, nil
}

func (s *Service) checkDimensions(vec []float32) error {
	if len(vec) == 0 {
		return NewError(KindMalformed, errors.New("provider returned an empty vector"))
	}
	if s.dimensions > 0 && len(vec) != s.dimensions {
		return NewError(KindDimension, fmt.Errorf("expected %d dimensions, got %d", s.dimensions, len(vec)))
	}
	return nil
}

func (s *Service) lookup(key string) ([]float32, bool) {
	vec, ok := s.cache.Get(key)
	if ok {
		s.metrics.CacheHit()
	} else {
		s.metrics.CacheMiss()
	}
	return vec, ok
}

func (s *Service) key(text string) string {
	return Fingerprint(text, s.model, s.provider)
}

// Forget drops the cache entry for text, if any.
func (s *Service) Forget(text string) {
	s.cache.Remove(s.key(text))
}

// Purge empties the cache.
func (s *Service) Purge() {
	s.cache.Purge()
}

// CacheStats reports cache occupancy.
func (s *Service) CacheStats() CacheStats {
	return s.cache.Stats()
}

// Dimensions returns the configured vector size, or 0 if unchecked.
func (s *Service) Dimensions() int {
	return s.dimensions
}

// Close closes the underlying provider client.
func (s *Service) Close() error {
	return s.embedder.Close()
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	var e *Error
	if errors.As(err, &e) {
		return string(e.Kind)
	}
	return "error"
}

var _ Embedder = (*Service)(nil)
