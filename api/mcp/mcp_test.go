package mcp_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/fnindex/api/mcp"
	fnlogger "github.com/papercomputeco/fnindex/pkg/logger"
	"github.com/papercomputeco/fnindex/pkg/registry"
	"github.com/papercomputeco/fnindex/pkg/retrieval"
	testutils "github.com/papercomputeco/fnindex/pkg/utils/test"
)

var _ = Describe("MCP Server", func() {
	var (
		server *mcp.Server
		reg    *registry.Registry
	)

	BeforeEach(func() {
		var err error
		reg, err = testutils.NewTestRegistry(context.Background(), nil, retrieval.DefaultConfig())
		Expect(err).NotTo(HaveOccurred())

		server, err = mcp.NewServer(mcp.Config{
			Registry: reg,
			Logger:   fnlogger.Nop(),
		})
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("NewServer", func() {
		It("returns an error when registry is nil", func() {
			_, err := mcp.NewServer(mcp.Config{Logger: fnlogger.Nop()})
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("registry is required"))
		})

		It("returns an error when logger is nil", func() {
			_, err := mcp.NewServer(mcp.Config{Registry: reg})
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("logger is required"))
		})

		It("creates a noop server without dependencies", func() {
			noop, err := mcp.NewServer(mcp.Config{Noop: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(noop.Handler()).NotTo(BeNil())
		})

		It("returns an HTTP handler", func() {
			Expect(server.Handler()).NotTo(BeNil())
		})
	})
})
