// Package lint implements a checker that delegates to an external linter
// subprocess.
//
// The linter receives the text snapshot on stdin and prints a JSON array of
// issues on stdout:
//
//	[{"word":"teh","start":0,"end":3,"kind":"spelling",
//	  "message":"Did you mean \"the\"?","suggestions":["the"]}]
//
// kind is one of "spelling", "grammar", or "style"; start and end are byte
// offsets into the snapshot. A fresh process is spawned per check — linter
// state between snapshots is worthless anyway, and a crashed linter then
// costs only that one check.
package lint

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sort"
	"strings"

	"github.com/inkbound/redline/pkg/provider/checker"
)

// wireIssue is the linter's JSON issue shape.
type wireIssue struct {
	Word        string   `json:"word"`
	Start       int      `json:"start"`
	End         int      `json:"end"`
	Kind        string   `json:"kind"`
	Message     string   `json:"message"`
	Suggestions []string `json:"suggestions"`
}

// Checker runs an external linter subprocess per check. Safe for concurrent
// use.
type Checker struct {
	command []string
	name    string
}

var _ checker.Checker = (*Checker)(nil)

// New creates a lint Checker running command (argv). The command's basename
// becomes the checker name.
func New(command []string) (*Checker, error) {
	if len(command) == 0 {
		return nil, fmt.Errorf("lint: command must not be empty")
	}
	name := command[0]
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	return &Checker{command: command, name: name}, nil
}

// Check implements checker.Checker.
func (c *Checker) Check(ctx context.Context, text string) ([]checker.Issue, error) {
	cmd := exec.CommandContext(ctx, c.command[0], c.command[1:]...)
	cmd.Stdin = strings.NewReader(text)

	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("lint: run %s: %w", c.name, err)
	}

	var wire []wireIssue
	if err := json.Unmarshal(out.Bytes(), &wire); err != nil {
		return nil, fmt.Errorf("lint: decode %s output: %w", c.name, err)
	}

	issues := make([]checker.Issue, 0, len(wire))
	for _, w := range wire {
		// Discard malformed ranges instead of letting them corrupt
		// downstream bookkeeping.
		if w.Start < 0 || w.End <= w.Start || w.End > len(text) {
			continue
		}
		word := w.Word
		if word == "" {
			word = text[w.Start:w.End]
		}
		issues = append(issues, checker.Issue{
			Word:        word,
			Start:       w.Start,
			Length:      w.End - w.Start,
			Kind:        checker.KindFromString(w.Kind),
			Message:     w.Message,
			Suggestions: w.Suggestions,
		})
	}

	sort.Slice(issues, func(i, j int) bool { return issues[i].Start < issues[j].Start })
	return issues, nil
}

// Name implements checker.Checker.
func (c *Checker) Name() string { return c.name }
