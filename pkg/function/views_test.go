package function_test

import (
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/fnindex/pkg/function"
)

var _ = Describe("Project", func() {
	var f *function.Function

	BeforeEach(func() {
		f = &function.Function{
			Name:        "calculate_sum",
			Description: "Adds two numbers",
			Category:    "math",
			Subcategory: "arithmetic",
			Parameters: map[string]function.Parameter{
				"b": {Type: function.ParamNumber, Description: "second", Required: true},
				"a": {Type: function.ParamNumber, Description: "first", Required: true},
			},
			UseCases: []string{"sum invoice lines"},
			Examples: []function.Example{
				{Input: "1, 2", Output: "3", Context: "calculator"},
				{Input: "5, 5", Output: "10"},
			},
			Tags: []string{"add", "sum"},
		}
	})

	It("builds the main view from name and description", func() {
		Expect(function.Project(f)[function.ViewMain]).To(Equal("calculate_sum: Adds two numbers"))
	})

	It("formats parameters in name order inside the detailed view", func() {
		detailed := function.Project(f)[function.ViewDetailed]
		Expect(detailed).To(ContainSubstring("Category: math/arithmetic"))
		Expect(detailed).To(ContainSubstring("- a (number, required): first\n- b (number, required): second"))
		Expect(detailed).To(ContainSubstring("- 1, 2 -> 3"))
	})

	It("prefixes scenario inputs with their context", func() {
		scenarios := function.Project(f)[function.ViewScenarios]
		Expect(strings.Split(scenarios, "\n")).To(Equal([]string{
			"sum invoice lines",
			"calculator: 1, 2",
			"5, 5",
		}))
	})

	It("collects a sorted keyword set", func() {
		Expect(function.Project(f)[function.ViewKeywords]).To(Equal("a add arithmetic b calculate math sum"))
	})

	It("joins the other views into combined", func() {
		views := function.Project(f)
		combined := views[function.ViewCombined]
		Expect(combined).To(HavePrefix(views[function.ViewMain]))
		Expect(combined).To(HaveSuffix(views[function.ViewKeywords]))
	})

	It("omits views that project to empty text", func() {
		views := function.Project(&function.Function{Name: "noop"})
		Expect(views).To(HaveKey(function.ViewMain))
		Expect(views).NotTo(HaveKey(function.ViewScenarios))
		Expect(views).To(HaveKey(function.ViewCombined))
	})

	It("is deterministic", func() {
		Expect(function.Project(f)).To(Equal(function.Project(f.Clone())))
	})

	Describe("Changed", func() {
		It("reports only views whose text moved", func() {
			before := function.Project(f)
			g := f.Clone()
			g.UseCases = []string{"different"}
			changed := function.Project(g).Changed(before)

			Expect(changed).To(ContainElements(function.ViewDetailed, function.ViewScenarios, function.ViewCombined))
			Expect(changed).NotTo(ContainElement(function.ViewMain))
			Expect(changed).NotTo(ContainElement(function.ViewKeywords))
		})
	})
})

var _ = Describe("SplitName", func() {
	It("splits on underscores, hyphens and spaces", func() {
		Expect(function.SplitName("get_user-by id")).To(Equal([]string{"get", "user", "by", "id"}))
	})
})

var _ = Describe("Tokenize", func() {
	It("lowercases and splits on punctuation", func() {
		Expect(function.Tokenize("Get_User, by-ID!")).To(Equal([]string{"get", "user", "by", "id"}))
	})

	It("emits bigrams for CJK runs", func() {
		Expect(function.Tokenize("计算两个")).To(Equal([]string{"计算", "算两", "两个"}))
	})

	It("separates CJK from latin runs", func() {
		Expect(function.Tokenize("sum计算")).To(Equal([]string{"sum", "计算"}))
	})

	It("keeps a lone CJK character", func() {
		Expect(function.Tokenize("和 x")).To(Equal([]string{"和", "x"}))
	})
})
