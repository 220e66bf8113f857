// Package moderation screens outgoing chat text before it is relayed to the
// partner. A blocked message is dropped and counts as a warning.
package moderation

import (
	"regexp"
	"strings"
	"unicode"
)

// FilterResult describes why a message was blocked. The zero value means
// the message is clean.
type FilterResult struct {
	Blocked bool
	Reason  string // "blocked_keyword" or "spam_pattern"
	Term    string
}

// Filter holds the blocklist. It is safe for concurrent use once built.
type Filter struct {
	words   map[string]struct{}
	phrases []string
}

var defaultTerms = []string{
	"kill yourself",
	"send nudes",
	"child porn",
	"free bitcoin",
	"casino",
	"onlyfans",
}

// NewFilter returns a filter with the default blocklist.
func NewFilter() *Filter {
	return NewFilterWithTerms(defaultTerms)
}

// NewFilterWithTerms builds a filter from single words and multi-word phrases.
func NewFilterWithTerms(terms []string) *Filter {
	f := &Filter{words: make(map[string]struct{})}
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if strings.Contains(t, " ") {
			f.phrases = append(f.phrases, t)
		} else {
			f.words[t] = struct{}{}
		}
	}
	return f
}

var leet = strings.NewReplacer("0", "o", "1", "i", "!", "i", "3", "e", "4", "a", "@", "a", "$", "s", "5", "s", "7", "t")

// Check returns the first reason text must not be relayed.
func (f *Filter) Check(text string) FilterResult {
	if strings.TrimSpace(text) == "" {
		return FilterResult{}
	}

	tokens := tokenize(leet.Replace(strings.ToLower(text)))
	for _, tok := range tokens {
		if _, ok := f.words[tok]; ok {
			return FilterResult{Blocked: true, Reason: "blocked_keyword", Term: tok}
		}
	}
	joined := " " + strings.Join(tokens, " ") + " "
	for _, p := range f.phrases {
		if strings.Contains(joined, " "+p+" ") {
			return FilterResult{Blocked: true, Reason: "blocked_keyword", Term: p}
		}
	}

	return checkSpamPatterns(text)
}

func tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

var (
	// urlPattern matches http/https URLs, www. URLs, t.me links and bare
	// domains followed by a path.
	urlPattern = regexp.MustCompile(`(?i)(https?://\S+|www\.\S+|t\.me/\S+|\S+\.(com|net|org|io|co|xyz|info|biz|ru|ua|tk)/\S*)`)

	// phonePattern matches phone numbers surrounded by whitespace or string boundaries.
	phonePattern = regexp.MustCompile(`(?:^|\s)(\+?\d{1,3}[-.\s]?)?\(?\d{2,4}\)?[-.\s]?\d{3,4}[-.\s]?\d{3,4}(?:\s|$)`)
)

type spamCheck struct {
	name  string
	match func(string) bool
}

// First match wins.
var spamChecks = []spamCheck{
	{name: "url", match: urlPattern.MatchString},
	{name: "phone", match: phonePattern.MatchString},
	{name: "char_flood", match: hasCharFlood},
	{name: "word_flood", match: hasWordFlood},
}

func checkSpamPatterns(text string) FilterResult {
	for _, sc := range spamChecks {
		if sc.match(text) {
			return FilterResult{Blocked: true, Reason: "spam_pattern", Term: sc.name}
		}
	}
	return FilterResult{}
}

// hasCharFlood reports 8 or more identical characters in a row.
func hasCharFlood(text string) bool {
	const threshold = 8

	count := 1
	prev := rune(-1)
	for _, r := range text {
		if r == prev {
			count++
			if count >= threshold {
				return true
			}
		} else {
			count = 1
			prev = r
		}
	}
	return false
}

// hasWordFlood reports the same word 4 or more times in a row.
func hasWordFlood(text string) bool {
	const threshold = 4

	count := 1
	prev := ""
	for _, w := range strings.Fields(text) {
		lower := strings.ToLower(w)
		if lower == prev {
			count++
			if count >= threshold {
				return true
			}
		} else {
			count = 1
			prev = lower
		}
	}
	return false
}
