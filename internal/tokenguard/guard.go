// Package tokenguard protects substrings that must not be reworded by the
// correction engine — mentions, emoji shortcodes, URLs, and the object
// replacement glyph used by rich text fields for inline attachments.
//
// [Guard.Protect] swaps each match for a short placeholder marker before the
// text leaves the process; [Guard.Restore] swaps the markers back afterwards.
// Restoration is best-effort: a marker the engine dropped or mangled means
// that token is omitted from the result, and a marker the engine duplicated
// is only substituted once. Callers must not rely on a lossless round trip.
package tokenguard

import (
	"fmt"
	"regexp"
	"strings"
)

// ObjectReplacementChar is the Unicode stand-in rich text fields emit for
// inline images and attachments. Text containing it is not safe to send to
// the correction engine as-is.
const ObjectReplacementChar = '￼'

// Default protected patterns, in match-priority order.
var (
	urlPattern       = regexp.MustCompile(`https?://[^\s]+`)
	mentionPattern   = regexp.MustCompile(`@[A-Za-z0-9_.-]+`)
	shortcodePattern = regexp.MustCompile(`:[a-z0-9_+-]+:`)
	glyphPattern     = regexp.MustCompile(string(ObjectReplacementChar))
)

// Token is one protected substring and the placeholder that replaced it.
type Token struct {
	Placeholder string
	Original    string
}

// Protected pairs the original text with the placeholder-substituted working
// copy that is safe to hand to the correction engine.
type Protected struct {
	Original string
	Working  string

	// Tokens records the substitutions in order of appearance.
	Tokens []Token
}

// Range is a half-open byte range [Start, End) within a specific text
// snapshot.
type Range struct {
	Start int
	End   int
}

// Option configures a [Guard].
type Option func(*Guard)

// WithPatterns replaces the default protected patterns. Patterns are applied
// in the given order; earlier patterns win where matches overlap.
func WithPatterns(patterns ...*regexp.Regexp) Option {
	return func(g *Guard) {
		g.patterns = patterns
	}
}

// Guard finds and substitutes protected substrings. A Guard is read-only
// after construction and safe for concurrent use.
type Guard struct {
	patterns []*regexp.Regexp
}

// New returns a [Guard] with the default patterns: URLs, @mentions,
// :shortcodes:, and the object replacement glyph.
func New(opts ...Option) *Guard {
	g := &Guard{
		patterns: []*regexp.Regexp{urlPattern, mentionPattern, shortcodePattern, glyphPattern},
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Protect substitutes every protected substring in text with a unique
// placeholder marker and records the mapping in order of appearance.
func (g *Guard) Protect(text string) Protected {
	ranges := g.Ranges(text)

	p := Protected{Original: text}
	if len(ranges) == 0 {
		p.Working = text
		return p
	}

	var sb strings.Builder
	last := 0
	for i, r := range ranges {
		placeholder := marker(i)
		sb.WriteString(text[last:r.Start])
		sb.WriteString(placeholder)
		p.Tokens = append(p.Tokens, Token{
			Placeholder: placeholder,
			Original:    text[r.Start:r.End],
		})
		last = r.End
	}
	sb.WriteString(text[last:])
	p.Working = sb.String()
	return p
}

// Restore back-substitutes tokens into corrected in recorded order. Each
// placeholder is replaced at its first occurrence only; missing placeholders
// mean the engine dropped that token and it is silently omitted.
func (g *Guard) Restore(corrected string, tokens []Token) string {
	out := corrected
	for _, tok := range tokens {
		out = strings.Replace(out, tok.Placeholder, tok.Original, 1)
	}
	return out
}

// Ranges returns the byte ranges of every protected substring in text, in
// order of appearance. Overlapping matches are resolved in pattern-priority
// order (the pattern registered first wins).
func (g *Guard) Ranges(text string) []Range {
	var ranges []Range
	for _, pat := range g.patterns {
		for _, m := range pat.FindAllStringIndex(text, -1) {
			r := Range{Start: m[0], End: m[1]}
			if !overlapsAny(r, ranges) {
				ranges = append(ranges, r)
			}
		}
	}
	sortRanges(ranges)
	return ranges
}

// RecoverReplacementGlyphs replaces object replacement glyphs in plain with
// the text found at the same rune positions in rich, a parallel richer
// representation of the same content. Glyphs with no richer equivalent (rich
// is empty, shorter, or carries the same glyph) are left in place.
func RecoverReplacementGlyphs(plain, rich string) string {
	if rich == "" || !strings.ContainsRune(plain, ObjectReplacementChar) {
		return plain
	}

	plainRunes := []rune(plain)
	richRunes := []rune(rich)

	var sb strings.Builder
	for i, r := range plainRunes {
		if r == ObjectReplacementChar && i < len(richRunes) && richRunes[i] != ObjectReplacementChar {
			sb.WriteRune(richRunes[i])
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// marker returns the placeholder for the i-th protected token. The bracket
// characters do not occur in natural prose, so correction engines tend to
// pass them through untouched.
func marker(i int) string {
	return fmt.Sprintf("⟦%d⟧", i)
}

func overlapsAny(r Range, rs []Range) bool {
	for _, o := range rs {
		if r.Start < o.End && o.Start < r.End {
			return true
		}
	}
	return false
}

func sortRanges(rs []Range) {
	for i := 1; i < len(rs); i++ {
		for j := i; j > 0 && rs[j].Start < rs[j-1].Start; j-- {
			rs[j], rs[j-1] = rs[j-1], rs[j]
		}
	}
}
