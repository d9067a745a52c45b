// Package checker defines the Checker interface for pluggable spelling,
// grammar, and style checkers feeding the live feedback loop.
//
// Issue ranges are byte offsets into the exact text snapshot passed to
// Check. They are invalid the instant that snapshot is edited; the live
// feedback loop owns recomputing or shifting them.
package checker

import "context"

// Kind classifies an [Issue].
type Kind int

const (
	Spelling Kind = iota
	Grammar
	Style
)

// String returns a short name for k.
func (k Kind) String() string {
	switch k {
	case Spelling:
		return "spelling"
	case Grammar:
		return "grammar"
	case Style:
		return "style"
	}
	return "unknown"
}

// KindFromString parses the wire names used by external checker bridges.
// Unrecognised values map to [Style], the least alarming kind.
func KindFromString(s string) Kind {
	switch s {
	case "spelling":
		return Spelling
	case "grammar":
		return Grammar
	default:
		return Style
	}
}

// Issue is one problem a checker found in a text snapshot.
type Issue struct {
	// Word is the flagged text, exactly as it appears in the snapshot.
	Word string

	// Start and Length delimit the flagged byte range in the snapshot.
	Start  int
	Length int

	Kind Kind

	// Message is an optional human-readable explanation.
	Message string

	// Suggestions is the ordered list of replacement candidates, best
	// first. May be empty.
	Suggestions []string
}

// End returns the exclusive end offset of the issue's range.
func (i Issue) End() int { return i.Start + i.Length }

// Checker analyses a text snapshot and reports issues. Implementations must
// be safe for concurrent use.
type Checker interface {
	// Check returns the issues found in text, ordered by Start.
	Check(ctx context.Context, text string) ([]Issue, error)

	// Name identifies the checker for logging and merge precedence.
	Name() string
}
