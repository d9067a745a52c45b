package textdiff_test

import (
	"testing"

	"github.com/inkbound/redline/internal/textdiff"
)

func TestDiff_Identity(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"", "a", "teh cat", "line one\nline two", "日本語のテキスト"} {
		segs := textdiff.Diff(s, s, textdiff.Char)
		if len(segs) != 1 {
			t.Fatalf("Diff(%q, %q): got %d segments, want 1", s, s, len(segs))
		}
		if segs[0].Kind != textdiff.Equal || segs[0].Text != s {
			t.Errorf("Diff(%q, %q): got %+v, want single Equal segment", s, s, segs[0])
		}
	}
}

func TestDiff_RoundTrip(t *testing.T) {
	t.Parallel()

	cases := []struct {
		old, new string
	}{
		{"teh cat sat on teh mat", "the cat sat on the mat"},
		{"", "hello"},
		{"hello", ""},
		{"abc", "xyz"},
		{"the quick brown fox", "the quick red fox jumps"},
		{"tabs\tand  spaces", "tabs and spaces"},
		{"trailing space ", "trailing space"},
		{"unicode: café", "unicode: cafe"},
		{"a\nb\nc\n", "a\nc\n"},
	}

	for _, g := range []textdiff.Granularity{textdiff.Char, textdiff.Word} {
		for _, tc := range cases {
			segs := textdiff.Diff(tc.old, tc.new, g)
			if got := textdiff.NewText(segs); got != tc.new {
				t.Errorf("granularity %v: NewText(Diff(%q, %q)) = %q, want %q",
					g, tc.old, tc.new, got, tc.new)
			}
			if got := textdiff.OldText(segs); got != tc.old {
				t.Errorf("granularity %v: OldText(Diff(%q, %q)) = %q, want %q",
					g, tc.old, tc.new, got, tc.old)
			}
		}
	}
}

func TestDiff_Deterministic(t *testing.T) {
	t.Parallel()

	old, new := "one two three four", "one 2 three 4 five"
	first := textdiff.Diff(old, new, textdiff.Word)
	for i := 0; i < 10; i++ {
		again := textdiff.Diff(old, new, textdiff.Word)
		if len(again) != len(first) {
			t.Fatalf("run %d: %d segments, want %d", i, len(again), len(first))
		}
		for j := range again {
			if again[j] != first[j] {
				t.Fatalf("run %d segment %d: %+v, want %+v", i, j, again[j], first[j])
			}
		}
	}
}

func TestDiff_WordGranularityKeepsWhitespaceWithFollowingToken(t *testing.T) {
	t.Parallel()

	// Inserting a word mid-sentence must yield a single insertion segment
	// carrying its leading whitespace.
	segs := textdiff.Diff("the fox", "the quick fox", textdiff.Word)

	want := []textdiff.Segment{
		{Kind: textdiff.Equal, Text: "the"},
		{Kind: textdiff.Insertion, Text: " quick"},
		{Kind: textdiff.Equal, Text: " fox"},
	}
	if len(segs) != len(want) {
		t.Fatalf("got %d segments %v, want %d", len(segs), segs, len(want))
	}
	for i := range want {
		if segs[i] != want[i] {
			t.Errorf("segment %d: %+v, want %+v", i, segs[i], want[i])
		}
	}
}

func TestDiff_DeletionsBeforeInsertions(t *testing.T) {
	t.Parallel()

	segs := textdiff.Diff("teh", "the", textdiff.Word)
	var sawInsertion bool
	for _, s := range segs {
		if s.Kind == textdiff.Insertion {
			sawInsertion = true
		}
		if s.Kind == textdiff.Deletion && sawInsertion {
			t.Fatalf("deletion after insertion within one changed region: %v", segs)
		}
	}
}

func TestChanged(t *testing.T) {
	t.Parallel()

	if textdiff.Changed(textdiff.Diff("same", "same", textdiff.Char)) {
		t.Error("Changed = true for identical inputs")
	}
	if !textdiff.Changed(textdiff.Diff("old", "new", textdiff.Char)) {
		t.Error("Changed = false for differing inputs")
	}
}
