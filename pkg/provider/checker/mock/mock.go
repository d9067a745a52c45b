// Package mock provides a test double for the checker.Checker interface.
package mock

import (
	"context"
	"sync"

	"github.com/inkbound/redline/pkg/provider/checker"
)

// Checker is a mock implementation of checker.Checker. Safe for concurrent
// use.
type Checker struct {
	mu sync.Mutex

	// Issues is returned by every Check call. Err, when non-nil, takes
	// precedence.
	Issues []checker.Issue
	Err    error

	// CheckerName is returned by Name; defaults to "mock".
	CheckerName string

	// CheckFunc, when non-nil, overrides Check entirely (for sequenced or
	// blocking behaviour).
	CheckFunc func(ctx context.Context, text string) ([]checker.Issue, error)

	// Texts records the text passed to each Check call.
	Texts []string
}

var _ checker.Checker = (*Checker)(nil)

func (c *Checker) Check(ctx context.Context, text string) ([]checker.Issue, error) {
	c.mu.Lock()
	c.Texts = append(c.Texts, text)
	fn := c.CheckFunc
	issues, err := c.Issues, c.Err
	c.mu.Unlock()

	if fn != nil {
		return fn(ctx, text)
	}
	if err != nil {
		return nil, err
	}
	out := make([]checker.Issue, len(issues))
	copy(out, issues)
	return out, nil
}

func (c *Checker) Name() string {
	if c.CheckerName != "" {
		return c.CheckerName
	}
	return "mock"
}

// CheckCount returns how many Check calls were made.
func (c *Checker) CheckCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Texts)
}
