package fnindexcmder_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	fnindexcmder "github.com/papercomputeco/fnindex/cmd/fnindex"
)

var _ = Describe("NewFnindexCmd", func() {
	It("registers every subcommand", func() {
		cmd := fnindexcmder.NewFnindexCmd()

		names := make([]string, 0, len(cmd.Commands()))
		for _, sub := range cmd.Commands() {
			names = append(names, sub.Name())
		}
		Expect(names).To(ContainElements(
			"serve", "search", "add", "clear", "rebuild",
			"stats", "config", "init", "version",
		))
	})

	It("exposes the global flags", func() {
		cmd := fnindexcmder.NewFnindexCmd()
		Expect(cmd.PersistentFlags().Lookup("debug")).NotTo(BeNil())
		Expect(cmd.PersistentFlags().Lookup("config-dir")).NotTo(BeNil())
	})
})
