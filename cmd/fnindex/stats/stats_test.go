package statscmder_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	statscmder "github.com/papercomputeco/fnindex/cmd/fnindex/stats"
	"github.com/papercomputeco/fnindex/pkg/embeddings"
	"github.com/papercomputeco/fnindex/pkg/registry"
	"github.com/papercomputeco/fnindex/pkg/vector"
)

var _ = Describe("Stats command execution", func() {
	var (
		server *httptest.Server
		out    *bytes.Buffer
	)

	BeforeEach(func() {
		out = &bytes.Buffer{}
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer GinkgoRecover()
			Expect(r.URL.Path).To(Equal("/v1/stats"))
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(registry.Stats{
				Functions: 2,
				Vectors: vector.Stats{
					Collection: "functions",
					Points:     2,
					VectorSize: 768,
					Distance:   vector.DistanceCosine,
					Healthy:    true,
				},
				Cache: embeddings.CacheStats{Size: 4, Capacity: 100, Hits: 3, Misses: 1},
			})
		}))
	})

	AfterEach(func() {
		server.Close()
	})

	It("prints raw JSON", func() {
		cmd := statscmder.NewStatsCmd()
		cmd.SetOut(out)
		cmd.SetArgs([]string{"--json", "--api-target", server.URL})
		Expect(cmd.Execute()).To(Succeed())

		var stats registry.Stats
		Expect(json.Unmarshal(out.Bytes(), &stats)).To(Succeed())
		Expect(stats.Functions).To(Equal(2))
		Expect(stats.Vectors.VectorSize).To(Equal(uint(768)))
	})

	It("renders a summary table", func() {
		cmd := statscmder.NewStatsCmd()
		cmd.SetOut(out)
		cmd.SetArgs([]string{"--api-target", server.URL})
		Expect(cmd.Execute()).To(Succeed())

		Expect(out.String()).To(ContainSubstring("Functions"))
		Expect(out.String()).To(ContainSubstring("75.0%"))
		Expect(out.String()).To(ContainSubstring("healthy"))
	})
})
