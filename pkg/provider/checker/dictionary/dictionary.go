// Package dictionary implements an in-process spelling checker backed by a
// plain wordlist.
//
// Unknown words are flagged as [checker.Spelling] issues. Suggestions are
// produced in two stages: Double Metaphone codes narrow the wordlist to
// phonetically plausible candidates, then Jaro-Winkler similarity on the
// original strings ranks them. Both stages come from
// github.com/antzucaro/matchr, so no network calls or subprocesses are
// involved — this checker is fast enough to run on every keystroke burst.
package dictionary

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"

	"github.com/inkbound/redline/pkg/provider/checker"
)

const (
	defaultMinWordLen     = 3
	defaultMaxSuggestions = 3
	defaultSimilarity     = 0.70
)

// Option configures a [Checker].
type Option func(*Checker)

// WithMinWordLength sets the minimum word length considered for checking.
// Shorter tokens are ignored. Default: 3.
func WithMinWordLength(n int) Option {
	return func(c *Checker) { c.minWordLen = n }
}

// WithMaxSuggestions caps the suggestion list per issue. Default: 3.
func WithMaxSuggestions(n int) Option {
	return func(c *Checker) { c.maxSuggestions = n }
}

// WithSimilarityThreshold sets the minimum Jaro-Winkler score a candidate
// needs to be suggested. Default: 0.70.
func WithSimilarityThreshold(t float64) Option {
	return func(c *Checker) { c.similarity = t }
}

// Checker is a wordlist spelling checker. It is read-only after
// construction and safe for concurrent use.
type Checker struct {
	words  map[string]struct{}
	byCode map[string][]string

	minWordLen     int
	maxSuggestions int
	similarity     float64
}

var _ checker.Checker = (*Checker)(nil)

// New builds a Checker from a newline-separated wordlist.
func New(wordlist io.Reader, opts ...Option) (*Checker, error) {
	c := &Checker{
		words:          make(map[string]struct{}),
		byCode:         make(map[string][]string),
		minWordLen:     defaultMinWordLen,
		maxSuggestions: defaultMaxSuggestions,
		similarity:     defaultSimilarity,
	}
	for _, o := range opts {
		o(c)
	}

	scanner := bufio.NewScanner(wordlist)
	for scanner.Scan() {
		word := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if word == "" {
			continue
		}
		if _, seen := c.words[word]; seen {
			continue
		}
		c.words[word] = struct{}{}
		primary, secondary := matchr.DoubleMetaphone(word)
		if primary != "" {
			c.byCode[primary] = append(c.byCode[primary], word)
		}
		if secondary != "" && secondary != primary {
			c.byCode[secondary] = append(c.byCode[secondary], word)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("dictionary: read wordlist: %w", err)
	}
	if len(c.words) == 0 {
		return nil, fmt.Errorf("dictionary: wordlist is empty")
	}
	return c, nil
}

// NewFromFile builds a Checker from the wordlist at path (one word per
// line, e.g. /usr/share/dict/words).
func NewFromFile(path string, opts ...Option) (*Checker, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("dictionary: open %q: %w", path, err)
	}
	defer f.Close()
	return New(f, opts...)
}

// Check implements checker.Checker.
func (c *Checker) Check(ctx context.Context, text string) ([]checker.Issue, error) {
	var issues []checker.Issue

	for _, tok := range tokenize(text) {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if len([]rune(tok.word)) < c.minWordLen {
			continue
		}
		lower := strings.ToLower(tok.word)
		if _, known := c.words[lower]; known {
			continue
		}
		issues = append(issues, checker.Issue{
			Word:        tok.word,
			Start:       tok.start,
			Length:      len(tok.word),
			Kind:        checker.Spelling,
			Message:     fmt.Sprintf("%q is not in the dictionary", tok.word),
			Suggestions: c.suggest(lower),
		})
	}
	return issues, nil
}

// Name implements checker.Checker.
func (c *Checker) Name() string { return "dictionary" }

// suggest returns up to maxSuggestions dictionary words phonetically close
// to word, ranked by Jaro-Winkler similarity.
func (c *Checker) suggest(word string) []string {
	primary, secondary := matchr.DoubleMetaphone(word)

	seen := make(map[string]struct{})
	type ranked struct {
		word  string
		score float64
	}
	var candidates []ranked

	for _, code := range []string{primary, secondary} {
		if code == "" {
			continue
		}
		for _, cand := range c.byCode[code] {
			if cand == word {
				continue
			}
			if _, dup := seen[cand]; dup {
				continue
			}
			seen[cand] = struct{}{}
			score := matchr.JaroWinkler(word, cand, false)
			if score >= c.similarity {
				candidates = append(candidates, ranked{word: cand, score: score})
			}
		}
	}

	// Deterministic order: best score first, ties alphabetically.
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].word < candidates[j].word
	})

	n := len(candidates)
	if n > c.maxSuggestions {
		n = c.maxSuggestions
	}
	out := make([]string, 0, n)
	for _, cand := range candidates[:n] {
		out = append(out, cand.word)
	}
	return out
}

// token is one checkable word with its byte offset in the source text.
type token struct {
	word  string
	start int
}

// tokenize splits text into letter runs, keeping internal apostrophes
// ("don't") and skipping any token containing digits.
func tokenize(text string) []token {
	var tokens []token

	start := -1
	hasDigit := false
	flush := func(end int) {
		if start >= 0 {
			word := strings.Trim(text[start:end], "'")
			if word != "" && !hasDigit {
				tokens = append(tokens, token{word: word, start: start + strings.Index(text[start:end], word)})
			}
		}
		start = -1
		hasDigit = false
	}

	for i, r := range text {
		switch {
		case unicode.IsLetter(r) || r == '\'':
			if start < 0 {
				start = i
			}
		case unicode.IsDigit(r):
			if start < 0 {
				start = i
			}
			hasDigit = true
		default:
			flush(i)
		}
	}
	flush(len(text))
	return tokens
}
