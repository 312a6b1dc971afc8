package testutils

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"sync"
	"sync/atomic"

	"github.com/papercomputeco/fnindex/pkg/embeddings"
	"github.com/papercomputeco/fnindex/pkg/function"
)

// MockDimensions is the vector length produced by MockEmbedder.
const MockDimensions = 64

// MockEmbedder is a test embedder that returns predictable embeddings.
// Texts are hashed token-by-token into a bag-of-words vector, so texts that
// share tokens have a positive cosine similarity.
type MockEmbedder struct {
	mu         sync.Mutex
	Embeddings map[string][]float32

	// FailOn causes Embed to return an error when the input text matches
	FailOn string

	// FailErr is returned for FailOn matches. Defaults to a non-retryable
	// malformed-input error.
	FailErr error

	// FailTimes makes the next FailTimes calls fail with a retryable
	// provider error regardless of input.
	FailTimes int32

	Calls atomic.Int32
}

func NewMockEmbedder() *MockEmbedder {
	return &MockEmbedder{
		Embeddings: make(map[string][]float32),
	}
}

func (m *MockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	m.Calls.Add(1)

	if atomic.AddInt32(&m.FailTimes, -1) >= 0 {
		return nil, embeddings.NewError(embeddings.KindProvider, fmt.Errorf("mock transient failure"))
	}

	if m.FailOn != "" && text == m.FailOn {
		if m.FailErr != nil {
			return nil, m.FailErr
		}
		return nil, embeddings.NewError(embeddings.KindMalformed, fmt.Errorf("mock embedding failure for: %s", text))
	}

	m.mu.Lock()
	emb, ok := m.Embeddings[text]
	m.mu.Unlock()
	if ok {
		return emb, nil
	}

	return BagOfWords(text), nil
}

// Set pins the vector returned for text.
func (m *MockEmbedder) Set(text string, vec []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Embeddings[text] = vec
}

func (m *MockEmbedder) Provider() string { return "mock" }
func (m *MockEmbedder) Model() string    { return "mock-bow" }

func (m *MockEmbedder) Close() error {
	return nil
}

// MockBatchEmbedder adds EmbedBatch on top of MockEmbedder.
type MockBatchEmbedder struct {
	*MockEmbedder

	// FailBatch makes every EmbedBatch call fail with a retryable error.
	FailBatch  bool
	BatchCalls atomic.Int32
	MaxBatch   atomic.Int32
}

func NewMockBatchEmbedder() *MockBatchEmbedder {
	return &MockBatchEmbedder{MockEmbedder: NewMockEmbedder()}
}

func (m *MockBatchEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	m.BatchCalls.Add(1)
	for {
		cur := m.MaxBatch.Load()
		if int32(len(texts)) <= cur || m.MaxBatch.CompareAndSwap(cur, int32(len(texts))) {
			break
		}
	}

	if m.FailBatch {
		return nil, embeddings.NewError(embeddings.KindProvider, fmt.Errorf("mock batch failure"))
	}

	out := make([][]float32, len(texts))
	for i, t := range texts {
		if m.FailOn != "" && t == m.FailOn {
			return nil, embeddings.NewError(embeddings.KindMalformed, fmt.Errorf("mock embedding failure for: %s", t))
		}
		out[i] = BagOfWords(t)
	}
	return out, nil
}

// BagOfWords hashes the tokens of text into a unit vector of MockDimensions.
func BagOfWords(text string) []float32 {
	vec := make([]float32, MockDimensions)
	for _, tok := range function.Tokenize(text) {
		h := fnv.New32a()
		h.Write([]byte(tok))
		vec[h.Sum32()%MockDimensions]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v * v)
	}
	if norm == 0 {
		vec[0] = 1
		return vec
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}

var (
	_ embeddings.Embedder      = (*MockEmbedder)(nil)
	_ embeddings.BatchEmbedder = (*MockBatchEmbedder)(nil)
)
