package searchcmder_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/fnindex/api"
	searchcmder "github.com/papercomputeco/fnindex/cmd/fnindex/search"
	"github.com/papercomputeco/fnindex/pkg/function"
	"github.com/papercomputeco/fnindex/pkg/retrieval"
)

var _ = Describe("NewSearchCmd", func() {
	It("requires exactly one query argument", func() {
		cmd := searchcmder.NewSearchCmd()
		Expect(cmd.Args(cmd, []string{})).To(HaveOccurred())
		Expect(cmd.Args(cmd, []string{"sum"})).To(Succeed())
		Expect(cmd.Args(cmd, []string{"a", "b"})).To(HaveOccurred())
	})

	It("registers its flags", func() {
		cmd := searchcmder.NewSearchCmd()
		for _, name := range []string{"top", "threshold", "category", "quiet", "api-target"} {
			Expect(cmd.Flags().Lookup(name)).NotTo(BeNil(), name)
		}
	})
})

var _ = Describe("Search command execution", func() {
	var (
		server *httptest.Server
		query  url.Values
		out    *bytes.Buffer
	)

	BeforeEach(func() {
		query = nil
		out = &bytes.Buffer{}

		score := 0.8123
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer GinkgoRecover()
			Expect(r.URL.Path).To(Equal("/v1/search"))
			query = r.URL.Query()

			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(api.SearchResponse{
				Query: query.Get("q"),
				Count: 1,
				Results: []api.SearchResult{{
					Function: &function.Function{
						ID:          "fn-1",
						Name:        "calculate_sum",
						Description: "计算两个数字的和",
						Category:    "math",
						Tags:        []string{"math"},
					},
					Score:     &score,
					MatchType: retrieval.MatchHybrid,
				}},
			})
		}))
	})

	AfterEach(func() {
		server.Close()
	})

	It("prints ranked results", func() {
		cmd := searchcmder.NewSearchCmd()
		cmd.SetOut(out)
		cmd.SetArgs([]string{"sum two numbers", "--api-target", server.URL, "--top", "3", "--category", "math"})
		Expect(cmd.Execute()).To(Succeed())

		Expect(query.Get("q")).To(Equal("sum two numbers"))
		Expect(query.Get("limit")).To(Equal("3"))
		Expect(query.Get("category")).To(Equal("math"))
		Expect(query.Has("threshold")).To(BeFalse())

		Expect(out.String()).To(ContainSubstring("calculate_sum"))
		Expect(out.String()).To(ContainSubstring("0.8123"))
		Expect(out.String()).To(ContainSubstring("计算两个数字的和"))
	})

	It("forwards an explicit threshold", func() {
		cmd := searchcmder.NewSearchCmd()
		cmd.SetOut(out)
		cmd.SetArgs([]string{"sum", "--api-target", server.URL, "--threshold", "0.5"})
		Expect(cmd.Execute()).To(Succeed())
		Expect(query.Get("threshold")).To(Equal("0.5"))
	})

	It("prints only ids in quiet mode", func() {
		cmd := searchcmder.NewSearchCmd()
		cmd.SetOut(out)
		cmd.SetArgs([]string{"sum", "--api-target", server.URL, "--quiet"})
		Expect(cmd.Execute()).To(Succeed())

		Expect(query.Get("include_scores")).To(Equal("false"))
		Expect(out.String()).To(Equal("fn-1\n"))
	})

	It("fails on an invalid api target", func() {
		cmd := searchcmder.NewSearchCmd()
		cmd.SetOut(out)
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{"sum", "--api-target", "localhost"})
		Expect(cmd.Execute()).To(MatchError(ContainSubstring("scheme and host are required")))
	})
})
