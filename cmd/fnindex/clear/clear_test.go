package clearcmder_test

import (
	"bytes"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	clearcmder "github.com/papercomputeco/fnindex/cmd/fnindex/clear"
)

var _ = Describe("Clear command execution", func() {
	var (
		server *httptest.Server
		calls  []string
	)

	BeforeEach(func() {
		calls = nil
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls = append(calls, r.Method+" "+r.URL.Path)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"status":"cleared"}`))
		}))
	})

	AfterEach(func() {
		server.Close()
	})

	It("refuses without --yes", func() {
		cmd := clearcmder.NewClearCmd()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{"--api-target", server.URL})
		Expect(cmd.Execute()).To(MatchError(ContainSubstring("--yes")))
		Expect(calls).To(BeEmpty())
	})

	It("clears the index", func() {
		cmd := clearcmder.NewClearCmd()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetArgs([]string{"--yes", "--api-target", server.URL})
		Expect(cmd.Execute()).To(Succeed())
		Expect(calls).To(Equal([]string{"POST /v1/admin/clear"}))
	})
})
