package function

import (
	"strings"
	"unicode"
)

// Tokenize lowercases text and splits it into word tokens. Runs of Han,
// Hiragana, Katakana or Hangul characters have no spaces to split on, so
// they are emitted as overlapping character bigrams instead ("计算两个" →
// "计算", "算两", "两个").
func Tokenize(text string) []string {
	var (
		tokens []string
		run    []rune
		cjk    bool
	)

	flush := func() {
		if len(run) == 0 {
			return
		}
		if cjk && len(run) > 1 {
			for i := 0; i+1 < len(run); i++ {
				tokens = append(tokens, string(run[i:i+2]))
			}
		} else {
			tokens = append(tokens, string(run))
		}
		run = run[:0]
	}

	for _, r := range strings.ToLower(text) {
		switch {
		case isCJK(r):
			if !cjk {
				flush()
				cjk = true
			}
			run = append(run, r)
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if cjk {
				flush()
				cjk = false
			}
			run = append(run, r)
		default:
			flush()
			cjk = false
		}
	}
	flush()

	return tokens
}

func isCJK(r rune) bool {
	return unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul)
}
