package retrieval

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/papercomputeco/fnindex/pkg/function"
	"github.com/papercomputeco/fnindex/pkg/vector"
)

// MatchType names the signal a result owes its score to.
type MatchType string

const (
	MatchSemantic MatchType = "semantic"
	MatchKeyword  MatchType = "keyword"
	MatchCategory MatchType = "category"
	MatchHybrid   MatchType = "hybrid"
)

const (
	tagHitWeight  = 0.6
	jaccardWeight = 0.4

	// minSubstringLen is the shortest token allowed to match a tag by
	// substring. Shorter tokens only match tags exactly.
	minSubstringLen = 3
)

// Scores holds the three component scores of a result, each in [0,1].
type Scores struct {
	Semantic float64 `json:"semantic"`
	Keyword  float64 `json:"keyword"`
	Category float64 `json:"category"`
}

// Fuse combines s with the weights in cfg. Weights are used as given.
func (s Scores) Fuse(cfg Config) float64 {
	return cfg.SemanticWeight*s.Semantic + cfg.KeywordWeight*s.Keyword + cfg.CategoryWeight*s.Category
}

// MatchType is hybrid when two or more components contributed, otherwise
// the single contributing component.
func (s Scores) MatchType() MatchType {
	var contributing []MatchType
	if s.Semantic > 0 {
		contributing = append(contributing, MatchSemantic)
	}
	if s.Keyword > 0 {
		contributing = append(contributing, MatchKeyword)
	}
	if s.Category > 0 {
		contributing = append(contributing, MatchCategory)
	}

	switch len(contributing) {
	case 0:
		return MatchSemantic
	case 1:
		return contributing[0]
	default:
		return MatchHybrid
	}
}

// signals is what a candidate is scored against: the query tokens, plus the
// category and subcategory the caller asked for either explicitly or by
// mentioning them in text.
type signals struct {
	text        string
	tokens      []string
	category    string
	subcategory string
}

func querySignals(text string, filter *vector.Filter) signals {
	s := signals{
		text:   strings.ToLower(text),
		tokens: unique(function.Tokenize(text)),
	}
	if filter != nil {
		s.category = filter.Category
		s.subcategory = filter.Subcategory
	}
	return s
}

func functionSignals(f *function.Function) signals {
	var tokens []string
	for _, k := range function.Keywords(f) {
		tokens = append(tokens, function.Tokenize(k)...)
	}
	return signals{
		tokens:      unique(tokens),
		category:    f.Category,
		subcategory: f.Subcategory,
	}
}

// keywordScore rates the lexical overlap between the query tokens and a
// function's tags and keywords. Tag hits count fully; plain token overlap
// only contributes through the Jaccard index.
func keywordScore(p vector.Payload, s signals) float64 {
	if len(s.tokens) == 0 {
		return 0
	}

	var hits int
	for _, q := range s.tokens {
		if tagHit(q, p.Tags) {
			hits++
		}
	}

	var keywords []string
	for _, k := range p.Keywords {
		keywords = append(keywords, function.Tokenize(k)...)
	}

	score := tagHitWeight*float64(hits)/float64(len(s.tokens)) +
		jaccardWeight*jaccard(s.tokens, unique(keywords))
	return min(score, 1)
}

func tagHit(token string, tags []string) bool {
	for _, t := range tags {
		t = strings.ToLower(t)
		if t == token {
			return true
		}
		if utf8.RuneCountInString(token) >= minSubstringLen && utf8.RuneCountInString(t) >= minSubstringLen &&
			(strings.Contains(t, token) || strings.Contains(token, t)) {
			return true
		}
	}
	return false
}

// categoryScore is 1 for a category match, 0.5 for a subcategory-only
// match and 0 otherwise. A wanted category must equal the function's exactly,
// as it does for vector store filters; a mention in the query text matches
// regardless of case.
func categoryScore(p vector.Payload, s signals) float64 {
	if matches(p.Category, s.category, s.text) {
		return 1
	}
	if matches(p.Subcategory, s.subcategory, s.text) {
		return 0.5
	}
	return 0
}

func matches(value, want, text string) bool {
	if value == "" {
		return false
	}
	return value == want || (text != "" && strings.Contains(text, strings.ToLower(value)))
}

func jaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	set := make(map[string]struct{}, len(a))
	for _, t := range a {
		set[t] = struct{}{}
	}

	var inter int
	union := len(set)
	for _, t := range b {
		if _, ok := set[t]; ok {
			inter++
		} else {
			union++
		}
	}
	return float64(inter) / float64(union)
}

func unique(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := tokens[:0:0]
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func explain(s Scores, view function.View) string {
	if view == "" {
		return fmt.Sprintf("category=%.3f", s.Category)
	}
	return fmt.Sprintf("semantic=%.3f (%s view) keyword=%.3f category=%.3f", s.Semantic, view, s.Keyword, s.Category)
}
