package qdrant_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/papercomputeco/fnindex/pkg/vector"
	"github.com/papercomputeco/fnindex/pkg/vector/qdrant"
)

func TestQdrant(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Qdrant Driver Suite")
}

var _ = Describe("Driver", func() {
	Describe("ParseTarget", func() {
		DescribeTable("splits host and port",
			func(target, host string, port int, tls bool) {
				h, p, useTLS, err := qdrant.ParseTarget(target)
				Expect(err).NotTo(HaveOccurred())
				Expect(h).To(Equal(host))
				Expect(p).To(Equal(port))
				Expect(useTLS).To(Equal(tls))
			},
			Entry("bare host", "localhost", "localhost", qdrant.DefaultPort, false),
			Entry("host and port", "qdrant:7000", "qdrant", 7000, false),
			Entry("http url", "http://qdrant:6334", "qdrant", 6334, false),
			Entry("https url", "https://cloud.example.com:6334", "cloud.example.com", 6334, true),
		)

		It("should reject an empty target", func() {
			_, _, _, err := qdrant.ParseTarget("")
			Expect(err).To(HaveOccurred())
		})

		It("should reject a bad port", func() {
			_, _, _, err := qdrant.ParseTarget("qdrant:abc")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("NewDriver", func() {
		It("should return an error when target is empty", func() {
			_, err := qdrant.NewDriver(qdrant.Config{}, zap.NewNop())
			Expect(err).To(HaveOccurred())
		})

		It("should round trip points against a live server", func() {
			// Requires a running Qdrant instance; covered in integration tests.
			Skip("Requires running Qdrant instance")
		})
	})

	Describe("Interface compliance", func() {
		It("should implement vector.Driver interface", func() {
			var _ vector.Driver = (*qdrant.Driver)(nil)
		})
	})
})
