package lint_test

import (
	"context"
	"testing"

	"github.com/inkbound/redline/pkg/provider/checker"
	"github.com/inkbound/redline/pkg/provider/checker/lint"
)

// shJSON builds a command that ignores stdin and prints the given JSON.
func shJSON(payload string) []string {
	return []string{"/bin/sh", "-c", `cat >/dev/null; echo '` + payload + `'`}
}

func TestChecker_ParsesIssues(t *testing.T) {
	t.Parallel()

	c, err := lint.New(shJSON(`[
		{"word":"teh","start":0,"end":3,"kind":"spelling","message":"misspelling","suggestions":["the"]},
		{"word":"was ran","start":8,"end":15,"kind":"grammar","suggestions":["was run"]}
	]`))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	issues, err := c.Check(context.Background(), "teh dog was ran over")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if len(issues) != 2 {
		t.Fatalf("got %d issues, want 2: %+v", len(issues), issues)
	}

	if issues[0].Word != "teh" || issues[0].Kind != checker.Spelling || issues[0].Length != 3 {
		t.Errorf("issue 0 = %+v", issues[0])
	}
	if issues[1].Kind != checker.Grammar || issues[1].Suggestions[0] != "was run" {
		t.Errorf("issue 1 = %+v", issues[1])
	}
}

func TestChecker_DiscardsMalformedRanges(t *testing.T) {
	t.Parallel()

	c, err := lint.New(shJSON(`[
		{"word":"x","start":-1,"end":2,"kind":"spelling"},
		{"word":"y","start":5,"end":5,"kind":"spelling"},
		{"word":"z","start":0,"end":999,"kind":"spelling"},
		{"word":"ok","start":0,"end":2,"kind":"style"}
	]`))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	issues, err := c.Check(context.Background(), "ok text")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if len(issues) != 1 || issues[0].Word != "ok" {
		t.Errorf("got %+v, want only the well-formed issue", issues)
	}
}

func TestChecker_EmptyArray(t *testing.T) {
	t.Parallel()

	c, err := lint.New(shJSON(`[]`))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	issues, err := c.Check(context.Background(), "clean text")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if len(issues) != 0 {
		t.Errorf("got %+v, want none", issues)
	}
}
