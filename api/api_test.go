package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gofiber/fiber/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/papercomputeco/fnindex/pkg/embeddings"
	"github.com/papercomputeco/fnindex/pkg/function"
	fnlogger "github.com/papercomputeco/fnindex/pkg/logger"
	"github.com/papercomputeco/fnindex/pkg/registry"
	"github.com/papercomputeco/fnindex/pkg/retrieval"
	"github.com/papercomputeco/fnindex/pkg/storage"
	testutils "github.com/papercomputeco/fnindex/pkg/utils/test"
	"github.com/papercomputeco/fnindex/pkg/vector"
)

// doJSON sends a request with an optional JSON body through the fiber app.
func doJSON(server *Server, method, path string, body any) *http.Response {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		Expect(err).NotTo(HaveOccurred())
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, path, reader)
	Expect(err).NotTo(HaveOccurred())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := server.app.Test(req, -1)
	Expect(err).NotTo(HaveOccurred())
	return resp
}

// decode reads the response body into out.
func decode(resp *http.Response, out any) {
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	Expect(err).NotTo(HaveOccurred())
	Expect(json.Unmarshal(data, out)).To(Succeed())
}

var _ = Describe("NewServer", func() {
	It("returns an error when registry is nil", func() {
		_, err := NewServer(Config{ListenAddr: ":0"}, nil, fnlogger.Nop())
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("registry is required"))
	})

	It("returns an error when logger is nil", func() {
		reg, err := testutils.NewTestRegistry(context.Background(), nil, retrieval.DefaultConfig())
		Expect(err).NotTo(HaveOccurred())

		_, err = NewServer(Config{ListenAddr: ":0"}, reg, nil)
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("logger is required"))
	})
})

var _ = Describe("Server", func() {
	var (
		server  *Server
		reg     *registry.Registry
		ctx     context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()

		var err error
		reg, err = testutils.NewTestRegistry(ctx, nil, retrieval.DefaultConfig())
		Expect(err).NotTo(HaveOccurred())

		server, err = NewServer(Config{
			ListenAddr: ":0",
			Gatherer:   prometheus.NewRegistry(),
		}, reg, fnlogger.Nop())
		Expect(err).NotTo(HaveOccurred())
	})

	addFunction := func(req function.AddRequest) string {
		resp := doJSON(server, http.MethodPost, "/v1/functions", req)
		Expect(resp.StatusCode).To(Equal(fiber.StatusCreated))
		var out AddResponse
		decode(resp, &out)
		Expect(out.FunctionID).NotTo(BeEmpty())
		return out.FunctionID
	}

	Describe("GET /ping", func() {
		It("returns pong", func() {
			resp := doJSON(server, http.MethodGet, "/ping", nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
			var out string
			decode(resp, &out)
			Expect(out).To(Equal("pong"))
		})
	})

	Describe("GET /health", func() {
		It("reports ok with the function count", func() {
			addFunction(testutils.CalculateSumRequest())

			resp := doJSON(server, http.MethodGet, "/health", nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
			var out HealthResponse
			decode(resp, &out)
			Expect(out.Status).To(Equal("ok"))
			Expect(out.Functions).To(Equal(1))
			Expect(out.Vectors).To(BeTrue())
		})
	})

	Describe("POST /v1/functions", func() {
		It("registers a function retrievable by id", func() {
			id := addFunction(testutils.CalculateSumRequest())

			resp := doJSON(server, http.MethodGet, "/v1/functions/"+id, nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
			var f function.Function
			decode(resp, &f)
			Expect(f.ID).To(Equal(id))
			Expect(f.Name).To(Equal("calculate_sum"))
			Expect(f.Version).To(Equal("1.0.0"))
		})

		It("rejects a function without a name", func() {
			resp := doJSON(server, http.MethodPost, "/v1/functions", function.AddRequest{Description: "nameless"})
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
			var out ErrorResponse
			decode(resp, &out)
			Expect(out.Code).To(Equal(function.CodeValidation))
		})

		It("rejects a malformed body", func() {
			req, err := http.NewRequest(http.MethodPost, "/v1/functions", bytes.NewReader([]byte("{not json")))
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set("Content-Type", "application/json")

			resp, err := server.app.Test(req, -1)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
		})
	})

	Describe("POST /v1/functions/batch", func() {
		It("reports successes and failures per item", func() {
			resp := doJSON(server, http.MethodPost, "/v1/functions/batch", []function.AddRequest{
				testutils.CalculateSumRequest(),
				{Description: "missing a name"},
				testutils.NewAddRequest("send_email", "send an email message", "communication"),
			})
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			var out BatchResponse
			decode(resp, &out)
			Expect(out.Succeeded).To(HaveLen(2))
			Expect(out.Indexed).To(Equal(2))
			Expect(out.Failed).To(HaveLen(1))
			Expect(out.Failed[0].Index).To(Equal(1))
			Expect(out.Failed[0].Code).To(Equal(function.CodeValidation))
		})

		It("rejects an empty batch", func() {
			resp := doJSON(server, http.MethodPost, "/v1/functions/batch", []function.AddRequest{})
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
		})
	})

	Describe("GET /v1/functions", func() {
		It("lists functions ordered by name", func() {
			addFunction(testutils.NewAddRequest("zeta", "last function", "misc"))
			addFunction(testutils.NewAddRequest("alpha", "first function", "misc"))

			resp := doJSON(server, http.MethodGet, "/v1/functions", nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
			var out ListResponse
			decode(resp, &out)
			Expect(out.Count).To(Equal(2))
			Expect(out.Functions[0].Name).To(Equal("alpha"))
			Expect(out.Functions[1].Name).To(Equal("zeta"))
		})

		It("returns an empty list when nothing is registered", func() {
			resp := doJSON(server, http.MethodGet, "/v1/functions", nil)
			var out ListResponse
			decode(resp, &out)
			Expect(out.Count).To(Equal(0))
			Expect(out.Functions).To(BeEmpty())
		})
	})

	Describe("GET /v1/functions/:id", func() {
		It("returns 404 for an unknown id", func() {
			resp := doJSON(server, http.MethodGet, "/v1/functions/missing", nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusNotFound))
			var out ErrorResponse
			decode(resp, &out)
			Expect(out.Code).To(Equal(storage.CodeNotFound))
		})
	})

	Describe("PUT /v1/functions/:id", func() {
		It("applies a partial update", func() {
			id := addFunction(testutils.CalculateSumRequest())
			description := "add two numbers together"

			resp := doJSON(server, http.MethodPut, "/v1/functions/"+id, function.UpdateRequest{Description: &description})
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
			var f function.Function
			decode(resp, &f)
			Expect(f.ID).To(Equal(id))
			Expect(f.Name).To(Equal("calculate_sum"))
			Expect(f.Description).To(Equal(description))
		})

		It("returns 404 for an unknown id", func() {
			description := "anything"
			resp := doJSON(server, http.MethodPut, "/v1/functions/missing", function.UpdateRequest{Description: &description})
			Expect(resp.StatusCode).To(Equal(fiber.StatusNotFound))
		})
	})

	Describe("DELETE /v1/functions/:id", func() {
		It("removes the function", func() {
			id := addFunction(testutils.CalculateSumRequest())

			resp := doJSON(server, http.MethodDelete, "/v1/functions/"+id, nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusNoContent))

			resp = doJSON(server, http.MethodGet, "/v1/functions/"+id, nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusNotFound))
		})

		It("returns 404 for an unknown id", func() {
			resp := doJSON(server, http.MethodDelete, "/v1/functions/missing", nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusNotFound))
		})
	})

	Describe("search", func() {
		var sumID string

		BeforeEach(func() {
			sumID = addFunction(testutils.CalculateSumRequest())
			addFunction(testutils.NewAddRequest("send_email", "send an email message to a recipient", "communication", "email"))
		})

		It("ranks the best match first via POST", func() {
			resp := doJSON(server, http.MethodPost, "/v1/search", SearchRequest{Query: "计算两个数字"})
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			var out SearchResponse
			decode(resp, &out)
			Expect(out.Query).To(Equal("计算两个数字"))
			Expect(out.Count).To(BeNumerically(">=", 1))
			Expect(out.Results[0].Function.ID).To(Equal(sumID))
			Expect(out.Results[0].Score).NotTo(BeNil())
			Expect(*out.Results[0].Score).To(BeNumerically(">", retrieval.DefaultConfig().Threshold))
			Expect(out.Results[0].MatchType).NotTo(BeEmpty())
			Expect(out.Results[0].Explanation).NotTo(BeEmpty())
		})

		It("omits scores when include_scores is false", func() {
			includeScores := false
			resp := doJSON(server, http.MethodPost, "/v1/search", SearchRequest{
				Query:         "计算两个数字",
				IncludeScores: &includeScores,
			})
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			var out SearchResponse
			decode(resp, &out)
			Expect(out.Results).NotTo(BeEmpty())
			Expect(out.Results[0].Score).To(BeNil())
			Expect(out.Results[0].MatchType).To(BeEmpty())
			Expect(out.Results[0].Explanation).To(BeEmpty())
		})

		It("applies category filters", func() {
			resp := doJSON(server, http.MethodPost, "/v1/search", SearchRequest{
				Query:   "send an email message",
				Filters: &SearchFilters{Category: "math"},
			})
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			var out SearchResponse
			decode(resp, &out)
			for _, r := range out.Results {
				Expect(r.Function.Category).To(Equal("math"))
			}
		})

		It("honors the limit", func() {
			resp := doJSON(server, http.MethodGet, "/v1/search?q=send+an+email+message&limit=1", nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			var out SearchResponse
			decode(resp, &out)
			Expect(out.Results).To(HaveLen(1))
			Expect(out.Results[0].Function.Name).To(Equal("send_email"))
		})

		It("returns no results above a threshold of one", func() {
			threshold := 1.0
			resp := doJSON(server, http.MethodPost, "/v1/search", SearchRequest{Query: "unrelated words", Threshold: &threshold})
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			var out SearchResponse
			decode(resp, &out)
			Expect(out.Count).To(Equal(0))
			Expect(out.Results).To(BeEmpty())
		})

		It("rejects an out of range threshold", func() {
			threshold := 1.5
			resp := doJSON(server, http.MethodPost, "/v1/search", SearchRequest{Query: "sum", Threshold: &threshold})
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
		})

		It("rejects a missing query", func() {
			resp := doJSON(server, http.MethodGet, "/v1/search", nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
			var out ErrorResponse
			decode(resp, &out)
			Expect(out.Error).To(ContainSubstring("query is required"))
		})

		It("rejects an invalid limit", func() {
			resp := doJSON(server, http.MethodGet, "/v1/search?q=sum&limit=abc", nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
		})

		It("returns similar functions excluding the source", func() {
			resp := doJSON(server, http.MethodGet, "/v1/functions/"+sumID+"/similar", nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			var out SearchResponse
			decode(resp, &out)
			for _, r := range out.Results {
				Expect(r.Function.ID).NotTo(Equal(sumID))
			}
		})

		It("returns 404 for similar of an unknown id", func() {
			resp := doJSON(server, http.MethodGet, "/v1/functions/missing/similar", nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusNotFound))
		})

		It("lists functions by category", func() {
			resp := doJSON(server, http.MethodGet, "/v1/categories/math/functions", nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			var out SearchResponse
			decode(resp, &out)
			Expect(out.Count).To(Equal(1))
			Expect(out.Results[0].Function.ID).To(Equal(sumID))
			Expect(out.Results[0].MatchType).To(Equal(retrieval.MatchCategory))
		})
	})

	Describe("GET /v1/stats", func() {
		It("reports function and vector counts", func() {
			req := testutils.CalculateSumRequest()
			addFunction(req)

			resp := doJSON(server, http.MethodGet, "/v1/stats", nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			var out registry.Stats
			decode(resp, &out)
			Expect(out.Functions).To(Equal(1))
			Expect(out.Vectors.Points).To(Equal(len(function.Project(req.NewFunction("x", testutils.FixedTime)))))
		})
	})

	Describe("admin", func() {
		It("clears every function", func() {
			addFunction(testutils.CalculateSumRequest())

			resp := doJSON(server, http.MethodPost, "/v1/admin/clear", nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			stats, err := reg.Stats(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(stats.Functions).To(Equal(0))
			Expect(stats.Vectors.Points).To(Equal(0))
		})

		It("rebuilds the index from stored functions", func() {
			addFunction(testutils.CalculateSumRequest())
			addFunction(testutils.NewAddRequest("send_email", "send an email message", "communication"))

			resp := doJSON(server, http.MethodPost, "/v1/admin/rebuild", nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			var out BatchResponse
			decode(resp, &out)
			Expect(out.Indexed).To(Equal(2))
			Expect(out.Failed).To(BeEmpty())
		})
	})

	Describe("GET /metrics", func() {
		It("serves the prometheus registry", func() {
			resp := doJSON(server, http.MethodGet, "/metrics", nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
		})
	})

	Describe("unknown routes", func() {
		It("return the error body shape", func() {
			resp := doJSON(server, http.MethodGet, "/v1/nope", nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusNotFound))
			var out ErrorResponse
			decode(resp, &out)
			Expect(out.Code).To(Equal(storage.CodeNotFound))
		})
	})
})

var _ = Describe("statusFor", func() {
	DescribeTable("maps typed errors to statuses",
		func(err error, status int, code string) {
			gotStatus, gotCode := statusFor(err)
			Expect(gotStatus).To(Equal(status))
			Expect(gotCode).To(Equal(code))
		},
		Entry("validation", &function.ValidationError{Field: "name", Reason: "must not be empty"},
			fiber.StatusBadRequest, function.CodeValidation),
		Entry("not found", storage.NotFoundError{ID: "x"},
			fiber.StatusNotFound, storage.CodeNotFound),
		Entry("embedding", embeddings.NewError(embeddings.KindProvider, errors.New("boom")),
			fiber.StatusBadGateway, embeddings.CodeEmbedding),
		Entry("rate limited embedding", embeddings.NewError(embeddings.KindRateLimit, errors.New("slow down")),
			fiber.StatusServiceUnavailable, embeddings.CodeEmbedding),
		Entry("embedding wrapped by retrieval", &retrieval.Error{Reason: "embedding query", Err: embeddings.NewError(embeddings.KindAuth, errors.New("denied"))},
			fiber.StatusBadGateway, embeddings.CodeEmbedding),
		Entry("vector storage", vector.Wrap("query", errors.New("down")),
			fiber.StatusServiceUnavailable, vector.CodeStorage),
		Entry("retrieval", &retrieval.Error{Reason: "all views failed"},
			fiber.StatusBadGateway, retrieval.CodeRetrieval),
		Entry("untyped", errors.New("boom"),
			fiber.StatusInternalServerError, codeInternal),
	)
})
