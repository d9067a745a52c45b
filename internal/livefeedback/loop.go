// Package livefeedback polls the focused text field and surfaces spelling
// and grammar issues in near-real time.
//
// A timer-driven loop reads the focused field, debounces until the text is
// quiet, runs two independent checkers against the same snapshot, merges and
// filters their issues, and tracks how issue ranges shift as the user
// accepts fixes. Issue ranges are byte offsets into a specific text
// snapshot; every asynchronous result carries the generation it was computed
// for and is discarded silently when the text has moved on.
//
// The loop owns all of its mutable state and is constructed per monitored
// session, never as a package singleton, so independent instances can run
// side by side in tests.
package livefeedback

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode"

	"golang.org/x/sync/errgroup"

	"github.com/inkbound/redline/internal/field"
	"github.com/inkbound/redline/internal/ignore"
	"github.com/inkbound/redline/internal/observe"
	"github.com/inkbound/redline/internal/tokenguard"
	"github.com/inkbound/redline/pkg/provider/checker"
)

// ErrStaleRange means an issue's recorded range no longer matches the field
// text. It is never surfaced to the user; the loop forces a re-check
// instead.
var ErrStaleRange = errors.New("issue range out of date")

// TrackedIssue is one live issue plus the checker that produced it.
type TrackedIssue struct {
	checker.Issue

	// Source is the producing checker's name.
	Source string
}

// Option configures a [Loop].
type Option func(*Loop)

// WithInterval sets the poll interval. Default: 700ms.
func WithInterval(d time.Duration) Option {
	return func(l *Loop) { l.interval = d }
}

// WithQuietPeriod sets how long the text must stay unchanged before a check
// is scheduled. Default: 400ms.
func WithQuietPeriod(d time.Duration) Option {
	return func(l *Loop) { l.quiet = d }
}

// WithMaxIssues caps how many issues are tracked and displayed at once.
// Default: 12.
func WithMaxIssues(n int) Option {
	return func(l *Loop) { l.maxIssues = n }
}

// WithIndicator sets the display sink. Default: [NoopIndicator].
func WithIndicator(ind Indicator) Option {
	return func(l *Loop) { l.indicator = ind }
}

// WithIgnoreStore sets the persistent ignore list. Default: an in-memory
// store.
func WithIgnoreStore(s ignore.Store) Option {
	return func(l *Loop) { l.ignore = s }
}

// WithMetrics sets the metrics instance. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(l *Loop) { l.metrics = m }
}

// Loop is the live feedback poll loop. Construct with [New], drive with
// [Loop.Start] and [Loop.Stop].
type Loop struct {
	fields    field.Adapter
	guard     *tokenguard.Guard
	primary   checker.Checker
	secondary checker.Checker
	ignore    ignore.Store
	indicator Indicator
	metrics   *observe.Metrics

	interval  time.Duration
	quiet     time.Duration
	maxIssues int

	slowEngine   slowChecker
	slowPrompt   string
	slowInterval time.Duration

	now func() time.Time

	generation atomic.Int64
	polling    atomic.Bool
	suspended  atomic.Bool

	mu          sync.Mutex
	status      Status
	issues      []TrackedIssue
	target      field.Target
	checkedText string
	slowChecked string
	lastRead    string
	lastReadAt  time.Time
	force       bool

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a [Loop] over the given adapters. primary and secondary are
// the two checkers run on every sweep; secondary may be nil.
func New(fields field.Adapter, guard *tokenguard.Guard, primary, secondary checker.Checker, opts ...Option) *Loop {
	l := &Loop{
		fields:    fields,
		guard:     guard,
		primary:   primary,
		secondary: secondary,
		indicator: NoopIndicator{},
		interval:  700 * time.Millisecond,
		quiet:     400 * time.Millisecond,
		maxIssues: 12,
		now:       time.Now,
	}
	for _, o := range opts {
		o(l)
	}
	if l.ignore == nil {
		l.ignore = ignore.NewMemoryStore()
	}
	if l.metrics == nil {
		l.metrics = observe.DefaultMetrics()
	}
	return l
}

// Start launches the poll loop (and the slow check loop when configured).
// It returns immediately; call [Loop.Stop] to shut down.
func (l *Loop) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.done = make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(l.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.pollOnce(ctx)
			}
		}
	}()

	if l.slowEngine != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticker := time.NewTicker(l.slowInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					l.slowCheckOnce(ctx)
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(l.done)
	}()
}

// Stop cancels the loop, dismisses the indicator, and resets all tracked
// state. Poll or check callbacks firing after Stop are no-ops.
func (l *Loop) Stop() {
	if l.cancel != nil {
		l.cancel()
		<-l.done
	}

	// Advancing the generation invalidates any check still in flight.
	l.generation.Add(1)

	l.mu.Lock()
	l.status = Status{Phase: PhaseIdle}
	l.issues = nil
	l.target = ""
	l.checkedText = ""
	l.slowChecked = ""
	l.lastRead = ""
	l.force = false
	l.mu.Unlock()

	l.indicator.Dismiss()
}

// Suspend hides the indicator and pauses checking while the correction
// pipeline owns the field.
func (l *Loop) Suspend() {
	l.suspended.Store(true)
	l.indicator.Dismiss()
}

// Resume re-enables checking after [Loop.Suspend] and forces a fresh check,
// since the pipeline probably rewrote the text.
func (l *Loop) Resume() {
	l.mu.Lock()
	l.force = true
	l.mu.Unlock()
	l.suspended.Store(false)
}

// Status returns the loop's current status.
func (l *Loop) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status
}

// Issues returns a snapshot of the currently tracked issues.
func (l *Loop) Issues() []TrackedIssue {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]TrackedIssue, len(l.issues))
	copy(out, l.issues)
	return out
}

// pollOnce is one tick of the loop. Re-entrancy guarded: a tick arriving
// while the previous one is still checking is skipped.
func (l *Loop) pollOnce(ctx context.Context) {
	if !l.polling.CompareAndSwap(false, true) {
		return
	}
	defer l.polling.Store(false)

	if l.suspended.Load() {
		return
	}

	target, ok := l.fields.FocusedTarget(ctx)
	if !ok {
		l.dismiss()
		return
	}
	text, ok := l.fields.ReadFullText(ctx, target)
	if !ok || strings.TrimSpace(text) == "" {
		l.dismiss()
		return
	}

	l.mu.Lock()
	l.target = target
	if text != l.lastRead {
		// The text moved; restart the quiet period and invalidate any
		// in-flight check.
		l.lastRead = text
		l.lastReadAt = l.now()
		l.generation.Add(1)
		l.mu.Unlock()
		return
	}
	ready := l.now().Sub(l.lastReadAt) >= l.quiet && (text != l.checkedText || l.force)
	l.mu.Unlock()

	if ready {
		l.check(ctx, text)
	}
}

// dismiss resets to idle when no text-bearing element is focused.
func (l *Loop) dismiss() {
	l.mu.Lock()
	wasIdle := l.status.Phase == PhaseIdle
	l.status = Status{Phase: PhaseIdle}
	l.issues = nil
	l.target = ""
	l.checkedText = ""
	l.lastRead = ""
	l.mu.Unlock()

	if !wasIdle {
		l.indicator.Dismiss()
	}
}

// check runs both checkers against one text snapshot and commits the merged
// result unless the text changed while checking.
func (l *Loop) check(ctx context.Context, text string) {
	gen := l.generation.Load()

	l.mu.Lock()
	l.status = Status{Phase: PhaseChecking, IssueCount: len(l.issues)}
	l.mu.Unlock()

	start := time.Now()
	merged, err := l.runCheckers(ctx, text)
	l.metrics.CheckDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		slog.Warn("live check failed", "error", err)
		return
	}
	issues := l.filter(text, merged)

	l.mu.Lock()
	if l.generation.Load() != gen {
		// The user kept typing; this result describes text that no
		// longer exists.
		l.mu.Unlock()
		return
	}
	l.issues = issues
	l.checkedText = text
	l.force = false
	status := Status{Phase: PhaseClean}
	if len(issues) > 0 {
		status = Status{Phase: PhaseIssues, IssueCount: len(issues)}
	}
	l.status = status
	l.mu.Unlock()

	l.indicator.Show(status, issues)
	l.metrics.SetLiveIssues(ctx, len(issues))
}

// runCheckers runs the two checkers concurrently against the same snapshot
// and merges their results, preferring the primary wherever ranges overlap.
func (l *Loop) runCheckers(ctx context.Context, text string) ([]TrackedIssue, error) {
	var primaryIssues, secondaryIssues []checker.Issue

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		primaryIssues, err = l.primary.Check(gctx, text)
		return err
	})
	if l.secondary != nil {
		g.Go(func() error {
			var err error
			secondaryIssues, err = l.secondary.Check(gctx, text)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make([]TrackedIssue, 0, len(primaryIssues)+len(secondaryIssues))
	for _, iss := range primaryIssues {
		merged = append(merged, TrackedIssue{Issue: iss, Source: l.primary.Name()})
	}
	for _, iss := range secondaryIssues {
		if overlapsAny(iss, primaryIssues) {
			continue
		}
		merged = append(merged, TrackedIssue{Issue: iss, Source: l.secondary.Name()})
	}
	sortIssues(merged)
	return merged, nil
}

// filter drops issues the user should not see: protected-token overlaps,
// ignored words, likely proper nouns, and acronyms; then caps the count.
func (l *Loop) filter(text string, issues []TrackedIssue) []TrackedIssue {
	protected := l.guard.Ranges(text)

	out := issues[:0]
	for _, iss := range issues {
		if overlapsProtected(iss, protected) {
			continue
		}
		if l.ignore.Contains(iss.Word) {
			continue
		}
		if likelyProperNoun(iss.Word) || isAcronym(iss.Word) {
			continue
		}
		out = append(out, iss)
	}
	if len(out) > l.maxIssues {
		out = out[:l.maxIssues]
	}
	return out
}

// forceRecheck drops the current issue list and makes the next poll check
// from scratch.
func (l *Loop) forceRecheck() {
	l.mu.Lock()
	l.issues = nil
	l.checkedText = ""
	l.force = true
	l.mu.Unlock()
	l.generation.Add(1)
}

func overlapsAny(iss checker.Issue, others []checker.Issue) bool {
	for _, o := range others {
		if iss.Start < o.End() && o.Start < iss.End() {
			return true
		}
	}
	return false
}

func overlapsProtected(iss TrackedIssue, ranges []tokenguard.Range) bool {
	for _, r := range ranges {
		if iss.Start < r.End && r.Start < iss.End() {
			return true
		}
	}
	return false
}

// likelyProperNoun reports whether word looks like a name: leading capital
// with the rest lowercase.
func likelyProperNoun(word string) bool {
	runes := []rune(word)
	if len(runes) < 2 || !unicode.IsUpper(runes[0]) {
		return false
	}
	for _, r := range runes[1:] {
		if unicode.IsUpper(r) {
			return false
		}
	}
	return true
}

// isAcronym reports whether word is all capitals.
func isAcronym(word string) bool {
	if len(word) < 2 {
		return false
	}
	for _, r := range word {
		if !unicode.IsUpper(r) {
			return false
		}
	}
	return true
}

func sortIssues(issues []TrackedIssue) {
	for i := 1; i < len(issues); i++ {
		for j := i; j > 0 && issues[j].Start < issues[j-1].Start; j-- {
			issues[j], issues[j-1] = issues[j-1], issues[j]
		}
	}
}
