package rebuildcmder_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/fnindex/api"
	rebuildcmder "github.com/papercomputeco/fnindex/cmd/fnindex/rebuild"
)

var _ = Describe("Rebuild command execution", func() {
	var (
		resp  api.BatchResponse
		calls []string
		out   *bytes.Buffer
	)

	newServer := func() *httptest.Server {
		return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls = append(calls, r.Method+" "+r.URL.Path)
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(resp)
		}))
	}

	BeforeEach(func() {
		calls = nil
		out = &bytes.Buffer{}
	})

	It("reports the indexed count", func() {
		resp = api.BatchResponse{Indexed: 3, Failed: []api.BatchFailure{}}
		server := newServer()
		defer server.Close()

		cmd := rebuildcmder.NewRebuildCmd()
		cmd.SetOut(out)
		cmd.SetArgs([]string{"--api-target", server.URL})
		Expect(cmd.Execute()).To(Succeed())

		Expect(calls).To(Equal([]string{"POST /v1/admin/rebuild"}))
		Expect(out.String()).To(ContainSubstring("indexed:"))
		Expect(out.String()).To(ContainSubstring("3"))
	})

	It("fails when functions could not be re-indexed", func() {
		resp = api.BatchResponse{Indexed: 1, Failed: []api.BatchFailure{{Name: "send_email", Error: "embedding failed"}}}
		server := newServer()
		defer server.Close()

		cmd := rebuildcmder.NewRebuildCmd()
		cmd.SetOut(out)
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{"--api-target", server.URL})
		Expect(cmd.Execute()).To(MatchError(ContainSubstring("1 functions failed")))
		Expect(out.String()).To(ContainSubstring("send_email"))
	})
})
