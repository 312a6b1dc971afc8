package mcp

import (
	"context"
	"encoding/json"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/fnindex/pkg/function"
	fnlogger "github.com/papercomputeco/fnindex/pkg/logger"
	"github.com/papercomputeco/fnindex/pkg/registry"
	"github.com/papercomputeco/fnindex/pkg/retrieval"
	testutils "github.com/papercomputeco/fnindex/pkg/utils/test"
)

var _ = Describe("tools", func() {
	var (
		ctx    context.Context
		reg    *registry.Registry
		server *Server
		sumID  string
	)

	BeforeEach(func() {
		ctx = context.Background()

		var err error
		reg, err = testutils.NewTestRegistry(ctx, nil, retrieval.DefaultConfig())
		Expect(err).NotTo(HaveOccurred())

		server, err = NewServer(Config{Registry: reg, Logger: fnlogger.Nop()})
		Expect(err).NotTo(HaveOccurred())

		sumID, err = reg.Add(ctx, testutils.CalculateSumRequest())
		Expect(err).NotTo(HaveOccurred())
		_, err = reg.Add(ctx, testutils.NewAddRequest("send_email", "send an email message to a recipient", "communication", "email"))
		Expect(err).NotTo(HaveOccurred())
	})

	textOf := func(res *gomcp.CallToolResult) string {
		Expect(res.Content).To(HaveLen(1))
		text, ok := res.Content[0].(*gomcp.TextContent)
		Expect(ok).To(BeTrue())
		return text.Text
	}

	Describe("search_functions", func() {
		It("returns the best match first", func() {
			res, out, err := server.handleSearch(ctx, nil, SearchInput{Query: "计算两个数字"})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.IsError).To(BeFalse())
			Expect(out.Count).To(BeNumerically(">=", 1))
			Expect(out.Results[0].FunctionID).To(Equal(sumID))
			Expect(out.Results[0].Name).To(Equal("calculate_sum"))

			var decoded SearchOutput
			Expect(json.Unmarshal([]byte(textOf(res)), &decoded)).To(Succeed())
			Expect(decoded.Count).To(Equal(out.Count))
		})

		It("honors the limit", func() {
			_, out, err := server.handleSearch(ctx, nil, SearchInput{Query: "send an email message", Limit: 1})
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Results).To(HaveLen(1))
			Expect(out.Results[0].Name).To(Equal("send_email"))
		})

		It("restricts results to a category", func() {
			_, out, err := server.handleSearch(ctx, nil, SearchInput{Query: "send an email message", Category: "math"})
			Expect(err).NotTo(HaveOccurred())
			for _, r := range out.Results {
				Expect(r.Category).To(Equal("math"))
			}
		})

		It("reports an empty query as a tool error", func() {
			res, _, err := server.handleSearch(ctx, nil, SearchInput{Query: "  "})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.IsError).To(BeTrue())
			Expect(textOf(res)).To(ContainSubstring("query is required"))
		})
	})

	Describe("get_function", func() {
		It("returns the flattened definition", func() {
			res, out, err := server.handleGetFunction(ctx, nil, GetFunctionInput{ID: sumID})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.IsError).To(BeFalse())
			Expect(out.Name).To(Equal("calculate_sum"))
			Expect(out.Category).To(Equal("math"))
			Expect(out.Parameters).To(HaveLen(2))
			Expect(out.Parameters[0]).To(Equal(ParameterOutput{
				Name:        "a",
				Type:        string(function.ParamNumber),
				Description: "第一个数字",
				Required:    true,
			}))
		})

		It("reports an unknown id as a tool error", func() {
			res, _, err := server.handleGetFunction(ctx, nil, GetFunctionInput{ID: "missing"})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.IsError).To(BeTrue())
			Expect(textOf(res)).To(ContainSubstring("not found"))
		})
	})
})
