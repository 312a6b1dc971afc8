package worker_test

import (
	"context"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/papercomputeco/fnindex/pkg/eventstream"
	"github.com/papercomputeco/fnindex/pkg/eventstream/worker"
	testutils "github.com/papercomputeco/fnindex/pkg/utils/test"
)

// gatedPublisher blocks every Publish until gate is closed.
type gatedPublisher struct {
	gate chan struct{}

	mu     sync.Mutex
	count  int
	closed bool
}

func (g *gatedPublisher) Publish(ctx context.Context, _ *eventstream.FunctionEvent) error {
	select {
	case <-g.gate:
	case <-ctx.Done():
		return ctx.Err()
	}
	g.mu.Lock()
	g.count++
	g.mu.Unlock()
	return nil
}

func (g *gatedPublisher) Close() error {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
	return nil
}

func event(id string) *eventstream.FunctionEvent {
	return &eventstream.FunctionEvent{
		EventType:  eventstream.EventTypeFunctionAdded,
		FunctionID: id,
	}
}

var _ = Describe("Worker Pool", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	It("requires a publisher", func() {
		_, err := worker.NewPool(&worker.Config{})
		Expect(err).To(HaveOccurred())
	})

	It("delivers queued events before Close returns", func() {
		mock := testutils.NewMockPublisher()
		wp, err := worker.NewPool(&worker.Config{Publisher: mock, Logger: zap.NewNop()})
		Expect(err).NotTo(HaveOccurred())

		for _, id := range []string{"a", "b", "c"} {
			Expect(wp.Publish(ctx, event(id))).To(Succeed())
		}
		Expect(wp.Close()).To(Succeed())

		Expect(mock.Events()).To(HaveLen(3))
	})

	It("rejects nil events", func() {
		wp, err := worker.NewPool(&worker.Config{Publisher: testutils.NewMockPublisher()})
		Expect(err).NotTo(HaveOccurred())
		defer wp.Close()

		Expect(wp.Publish(ctx, nil)).To(MatchError(eventstream.ErrNilEvent))
	})

	It("drops events when the queue is full", func() {
		gated := &gatedPublisher{gate: make(chan struct{})}
		wp, err := worker.NewPool(&worker.Config{
			Publisher:  gated,
			NumWorkers: 1,
			QueueSize:  1,
		})
		Expect(err).NotTo(HaveOccurred())

		// The single worker picks up the first event and blocks on the gate;
		// the second fills the queue.
		Expect(wp.Publish(ctx, event("a"))).To(Succeed())
		Eventually(func() error {
			return wp.Publish(ctx, event("b"))
		}).Should(Succeed())
		Expect(wp.Publish(ctx, event("c"))).To(MatchError(worker.ErrQueueFull))

		close(gated.gate)
		Expect(wp.Close()).To(Succeed())

		gated.mu.Lock()
		defer gated.mu.Unlock()
		Expect(gated.count).To(Equal(2))
		Expect(gated.closed).To(BeTrue())
	})

	It("does not fail the caller when the backend fails", func() {
		mock := testutils.NewMockPublisher()
		mock.FailPublish = true
		wp, err := worker.NewPool(&worker.Config{Publisher: mock, PublishTimeout: time.Second})
		Expect(err).NotTo(HaveOccurred())

		Expect(wp.Publish(ctx, event("a"))).To(Succeed())
		Expect(wp.Close()).To(Succeed())
		Expect(mock.Events()).To(BeEmpty())
	})

	It("refuses events after Close", func() {
		wp, err := worker.NewPool(&worker.Config{Publisher: testutils.NewMockPublisher()})
		Expect(err).NotTo(HaveOccurred())
		Expect(wp.Close()).To(Succeed())
		Expect(wp.Close()).To(Succeed())

		Expect(wp.Publish(ctx, event("a"))).To(MatchError(worker.ErrClosed))
	})
})
