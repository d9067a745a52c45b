// Package textdiff implements the character- and word-granularity sequence
// diff shared by the correction pipeline and the live feedback loop.
//
// [Diff] produces an ordered edit script of [Segment] values. The result is
// deterministic for identical inputs and round-trips losslessly: joining the
// Equal and Insertion segments reconstructs the new string, joining the Equal
// and Deletion segments reconstructs the old string.
//
// Diff is a pure function with no I/O and is safe for concurrent use.
package textdiff

import (
	"strings"
	"unicode"
)

// Kind classifies a [Segment] within an edit script.
type Kind int

const (
	// Equal marks text present in both inputs.
	Equal Kind = iota

	// Insertion marks text present only in the new input.
	Insertion

	// Deletion marks text present only in the old input.
	Deletion
)

// String returns a short human-readable name for k.
func (k Kind) String() string {
	switch k {
	case Equal:
		return "equal"
	case Insertion:
		return "insertion"
	case Deletion:
		return "deletion"
	}
	return "unknown"
}

// Segment is one run of an edit script. Segments are immutable once produced.
type Segment struct {
	Kind Kind
	Text string
}

// Granularity selects the unit of comparison for [Diff].
type Granularity int

const (
	// Char compares rune by rune.
	Char Granularity = iota

	// Word compares whitespace-delimited tokens. Whitespace stays attached
	// to the token that follows it, so word-level insertions and deletions
	// read naturally when rendered.
	Word
)

// Diff computes an edit script transforming old into new. Adjacent segments
// of the same kind are merged, and within a replaced region deletions are
// emitted before insertions.
func Diff(old, new string, g Granularity) []Segment {
	if old == new {
		return []Segment{{Kind: Equal, Text: old}}
	}

	var a, b []string
	switch g {
	case Word:
		a, b = splitWords(old), splitWords(new)
	default:
		a, b = splitRunes(old), splitRunes(new)
	}

	return merge(backtrack(a, b))
}

// NewText reconstructs the new string from segs (Equal + Insertion).
func NewText(segs []Segment) string {
	var sb strings.Builder
	for _, s := range segs {
		if s.Kind != Deletion {
			sb.WriteString(s.Text)
		}
	}
	return sb.String()
}

// OldText reconstructs the old string from segs (Equal + Deletion).
func OldText(segs []Segment) string {
	var sb strings.Builder
	for _, s := range segs {
		if s.Kind != Insertion {
			sb.WriteString(s.Text)
		}
	}
	return sb.String()
}

// Changed reports whether segs contains any non-Equal segment.
func Changed(segs []Segment) bool {
	for _, s := range segs {
		if s.Kind != Equal {
			return true
		}
	}
	return false
}

// splitRunes splits s into single-rune tokens.
func splitRunes(s string) []string {
	runes := []rune(s)
	tokens := make([]string, len(runes))
	for i, r := range runes {
		tokens[i] = string(r)
	}
	return tokens
}

// splitWords splits s into tokens at whitespace boundaries, keeping each
// whitespace run attached to the token that follows it. A trailing
// whitespace run becomes its own token. Concatenating the tokens yields s.
func splitWords(s string) []string {
	var tokens []string
	runes := []rune(s)

	i := 0
	for i < len(runes) {
		start := i
		for i < len(runes) && unicode.IsSpace(runes[i]) {
			i++
		}
		for i < len(runes) && !unicode.IsSpace(runes[i]) {
			i++
		}
		tokens = append(tokens, string(runes[start:i]))
	}
	return tokens
}

// backtrack computes an LCS table over a and b and walks it back into an
// edit script. Ties prefer deletions over insertions so that within a
// replaced region the old text is emitted first.
func backtrack(a, b []string) []Segment {
	n, m := len(a), len(b)

	// dp[i][j] = LCS length of a[i:] and b[j:].
	dp := make([][]int, n+1)
	for i := range dp {
		dp[i] = make([]int, m+1)
	}
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			if a[i] == b[j] {
				dp[i][j] = dp[i+1][j+1] + 1
			} else if dp[i+1][j] >= dp[i][j+1] {
				dp[i][j] = dp[i+1][j]
			} else {
				dp[i][j] = dp[i][j+1]
			}
		}
	}

	var segs []Segment
	i, j := 0, 0
	for i < n && j < m {
		switch {
		case a[i] == b[j]:
			segs = append(segs, Segment{Kind: Equal, Text: a[i]})
			i++
			j++
		case dp[i+1][j] >= dp[i][j+1]:
			segs = append(segs, Segment{Kind: Deletion, Text: a[i]})
			i++
		default:
			segs = append(segs, Segment{Kind: Insertion, Text: b[j]})
			j++
		}
	}
	for ; i < n; i++ {
		segs = append(segs, Segment{Kind: Deletion, Text: a[i]})
	}
	for ; j < m; j++ {
		segs = append(segs, Segment{Kind: Insertion, Text: b[j]})
	}
	return segs
}

// merge coalesces adjacent segments of the same kind. Within a run of mixed
// deletions and insertions, deletions are ordered first.
func merge(segs []Segment) []Segment {
	var out []Segment

	i := 0
	for i < len(segs) {
		if segs[i].Kind == Equal {
			var sb strings.Builder
			for i < len(segs) && segs[i].Kind == Equal {
				sb.WriteString(segs[i].Text)
				i++
			}
			out = append(out, Segment{Kind: Equal, Text: sb.String()})
			continue
		}

		// Collect the whole changed region, deletions before insertions.
		var del, ins strings.Builder
		for i < len(segs) && segs[i].Kind != Equal {
			if segs[i].Kind == Deletion {
				del.WriteString(segs[i].Text)
			} else {
				ins.WriteString(segs[i].Text)
			}
			i++
		}
		if del.Len() > 0 {
			out = append(out, Segment{Kind: Deletion, Text: del.String()})
		}
		if ins.Len() > 0 {
			out = append(out, Segment{Kind: Insertion, Text: ins.String()})
		}
	}
	return out
}
