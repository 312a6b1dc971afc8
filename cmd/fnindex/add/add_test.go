package addcmder_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/fnindex/api"
	addcmder "github.com/papercomputeco/fnindex/cmd/fnindex/add"
	"github.com/papercomputeco/fnindex/pkg/function"
)

const single = `{
  "name": "calculate_sum",
  "description": "计算两个数字的和",
  "category": "math",
  "parameters": {"a": {"type": "number", "required": true}}
}`

const batch = `[
  {"name": "calculate_sum", "description": "sum two numbers"},
  {"name": "", "description": "missing a name"}
]`

var _ = Describe("Add command execution", func() {
	var (
		server   *httptest.Server
		paths    []string
		received []function.AddRequest
		out      *bytes.Buffer
		dir      string
	)

	BeforeEach(func() {
		paths = nil
		received = nil
		out = &bytes.Buffer{}
		dir = GinkgoT().TempDir()

		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer GinkgoRecover()
			paths = append(paths, r.URL.Path)
			w.Header().Set("Content-Type", "application/json")

			switch r.URL.Path {
			case "/v1/functions":
				var req function.AddRequest
				Expect(json.NewDecoder(r.Body).Decode(&req)).To(Succeed())
				received = append(received, req)
				w.WriteHeader(http.StatusCreated)
				_ = json.NewEncoder(w).Encode(api.AddResponse{FunctionID: "fn-1"})
			case "/v1/functions/batch":
				Expect(json.NewDecoder(r.Body).Decode(&received)).To(Succeed())
				_ = json.NewEncoder(w).Encode(api.BatchResponse{
					Succeeded: []string{"fn-1"},
					Indexed:   1,
					Failed: []api.BatchFailure{{
						Index: 1, Error: "name: must not be empty", Code: "validation_error",
					}},
				})
			default:
				w.WriteHeader(http.StatusNotFound)
			}
		}))
	})

	AfterEach(func() {
		server.Close()
	})

	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		Expect(os.WriteFile(path, []byte(content), 0o600)).To(Succeed())
		return path
	}

	It("requires --file", func() {
		cmd := addcmder.NewAddCmd()
		cmd.SetOut(out)
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{"--api-target", server.URL})
		Expect(cmd.Execute()).To(HaveOccurred())
		Expect(paths).To(BeEmpty())
	})

	It("registers a single definition", func() {
		cmd := addcmder.NewAddCmd()
		cmd.SetOut(out)
		cmd.SetArgs([]string{"-f", write("one.json", single), "--api-target", server.URL})
		Expect(cmd.Execute()).To(Succeed())

		Expect(paths).To(Equal([]string{"/v1/functions"}))
		Expect(received).To(HaveLen(1))
		Expect(received[0].Name).To(Equal("calculate_sum"))
		Expect(received[0].Parameters["a"].Required).To(BeTrue())
		Expect(out.String()).To(ContainSubstring("fn-1"))
	})

	It("registers an array as a batch and reports failures", func() {
		cmd := addcmder.NewAddCmd()
		cmd.SetOut(out)
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{"-f", write("many.json", batch), "--api-target", server.URL})
		err := cmd.Execute()
		Expect(err).To(MatchError(ContainSubstring("1 of 2 functions failed")))

		Expect(paths).To(Equal([]string{"/v1/functions/batch"}))
		Expect(received).To(HaveLen(2))
		Expect(out.String()).To(ContainSubstring("validation_error"))
	})

	It("reads from stdin", func() {
		cmd := addcmder.NewAddCmd()
		cmd.SetOut(out)
		cmd.SetIn(strings.NewReader(single))
		cmd.SetArgs([]string{"-f", "-", "--api-target", server.URL})
		Expect(cmd.Execute()).To(Succeed())
		Expect(paths).To(Equal([]string{"/v1/functions"}))
	})

	It("rejects an empty array without calling the server", func() {
		cmd := addcmder.NewAddCmd()
		cmd.SetOut(out)
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{"-f", write("empty.json", " [] "), "--api-target", server.URL})
		Expect(cmd.Execute()).To(MatchError(ContainSubstring("empty")))
		Expect(paths).To(BeEmpty())
	})

	It("rejects malformed JSON", func() {
		cmd := addcmder.NewAddCmd()
		cmd.SetOut(out)
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{"-f", write("bad.json", "{nope"), "--api-target", server.URL})
		Expect(cmd.Execute()).To(MatchError(ContainSubstring("parsing function")))
	})

	It("surfaces server errors", func() {
		failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: "name: must not be empty", Code: "validation_error"})
		}))
		defer failing.Close()

		cmd := addcmder.NewAddCmd()
		cmd.SetOut(out)
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{"-f", write("one.json", single), "--api-target", failing.URL})
		Expect(cmd.Execute()).To(MatchError(ContainSubstring("validation_error")))
	})
})
