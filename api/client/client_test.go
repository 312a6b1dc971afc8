package apiclient_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/fnindex/api"
	apiclient "github.com/papercomputeco/fnindex/api/client"
	"github.com/papercomputeco/fnindex/pkg/function"
	testutils "github.com/papercomputeco/fnindex/pkg/utils/test"
)

var _ = Describe("Client", func() {
	var (
		ctx      context.Context
		server   *httptest.Server
		lastReq  *http.Request
		lastBody map[string]any
		handler  http.HandlerFunc
	)

	BeforeEach(func() {
		ctx = context.Background()
		lastReq = nil
		lastBody = nil
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			lastReq = r
			if r.Body != nil {
				_ = json.NewDecoder(r.Body).Decode(&lastBody)
			}
			handler(w, r)
		}))
		DeferCleanup(server.Close)
	})

	writeJSON := func(w http.ResponseWriter, status int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		Expect(json.NewEncoder(w).Encode(v)).To(Succeed())
	}

	It("rejects a target without a scheme", func() {
		_, err := apiclient.New("localhost:8081")
		Expect(err).To(HaveOccurred())
	})

	It("sends search parameters as a query string", func() {
		handler = func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, api.SearchResponse{
				Query: "sum",
				Count: 1,
				Results: []api.SearchResult{{
					Function: testutils.NewTestFunction("calculate_sum", "add numbers", "math"),
				}},
			})
		}

		c, err := apiclient.New(server.URL)
		Expect(err).NotTo(HaveOccurred())

		threshold := 0.5
		out, err := c.Search(ctx, apiclient.SearchParams{
			Query:      "sum",
			Limit:      3,
			Threshold:  &threshold,
			Category:   "math",
			OmitScores: true,
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Count).To(Equal(1))
		Expect(out.Results[0].Function.Name).To(Equal("calculate_sum"))

		Expect(lastReq.Method).To(Equal(http.MethodGet))
		Expect(lastReq.URL.Path).To(Equal("/v1/search"))
		q := lastReq.URL.Query()
		Expect(q.Get("q")).To(Equal("sum"))
		Expect(q.Get("limit")).To(Equal("3"))
		Expect(q.Get("threshold")).To(Equal("0.5"))
		Expect(q.Get("category")).To(Equal("math"))
		Expect(q.Get("include_scores")).To(Equal("false"))
	})

	It("posts a function and returns its id", func() {
		handler = func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusCreated, api.AddResponse{FunctionID: "fn-1"})
		}

		c, err := apiclient.New(server.URL)
		Expect(err).NotTo(HaveOccurred())

		id, err := c.Add(ctx, testutils.CalculateSumRequest())
		Expect(err).NotTo(HaveOccurred())
		Expect(id).To(Equal("fn-1"))
		Expect(lastReq.Method).To(Equal(http.MethodPost))
		Expect(lastReq.URL.Path).To(Equal("/v1/functions"))
		Expect(lastReq.Header.Get("Content-Type")).To(Equal("application/json"))
		Expect(lastBody).To(HaveKeyWithValue("name", "calculate_sum"))
	})

	It("decodes typed API errors", func() {
		handler = func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: "name: must not be empty", Code: function.CodeValidation})
		}

		c, err := apiclient.New(server.URL)
		Expect(err).NotTo(HaveOccurred())

		_, err = c.Add(ctx, function.AddRequest{})
		Expect(err).To(HaveOccurred())

		var apiErr *apiclient.Error
		Expect(errors.As(err, &apiErr)).To(BeTrue())
		Expect(apiErr.Status).To(Equal(http.StatusBadRequest))
		Expect(apiErr.Code).To(Equal(function.CodeValidation))
		Expect(apiErr.Message).To(ContainSubstring("must not be empty"))
	})

	It("keeps the raw body for untyped errors", func() {
		handler = func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("upstream down"))
		}

		c, err := apiclient.New(server.URL)
		Expect(err).NotTo(HaveOccurred())

		err = c.Clear(ctx)
		var apiErr *apiclient.Error
		Expect(errors.As(err, &apiErr)).To(BeTrue())
		Expect(apiErr.Message).To(Equal("upstream down"))
	})

	It("reports rebuild results", func() {
		handler = func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, api.BatchResponse{Indexed: 4, Failed: []api.BatchFailure{}})
		}

		c, err := apiclient.New(server.URL)
		Expect(err).NotTo(HaveOccurred())

		out, err := c.Rebuild(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Indexed).To(Equal(4))
		Expect(lastReq.URL.Path).To(Equal("/v1/admin/rebuild"))
	})
})
