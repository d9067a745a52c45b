// Package correct owns the end-to-end correction request: capture the text,
// protect special tokens, invoke the correction engine (with a single
// fallback-model retry), diff the result, and hand it to write-back.
//
// One request runs at a time. A trigger arriving while a request is in
// flight is rejected with [ErrAlreadyProcessing] rather than queued. Every
// terminal outcome, success or failure, emits a history record; a clipboard
// snapshot taken during capture is restored on every path.
package correct

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/inkbound/redline/internal/capture"
	"github.com/inkbound/redline/internal/clipboard"
	"github.com/inkbound/redline/internal/history"
	"github.com/inkbound/redline/internal/observe"
	"github.com/inkbound/redline/internal/textdiff"
	"github.com/inkbound/redline/internal/tokenguard"
	"github.com/inkbound/redline/internal/writeback"
	"github.com/inkbound/redline/pkg/provider/engine"
)

// ErrAlreadyProcessing is returned when a trigger arrives while a request is
// in flight. Requests are never queued.
var ErrAlreadyProcessing = errors.New("correction already in progress")

// ErrNothingToUndo is returned by [Orchestrator.Undo] when no successful
// correction has been applied yet.
var ErrNothingToUndo = errors.New("nothing to undo")

// State is the orchestrator's position in the per-request state machine.
type State int32

const (
	StateIdle State = iota
	StateCapturing
	StateProtecting
	StateCorrecting
	StateRetrying
	StateSucceeded
	StateFailed
)

// String returns a short name for s.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCapturing:
		return "capturing"
	case StateProtecting:
		return "protecting"
	case StateCorrecting:
		return "correcting"
	case StateRetrying:
		return "retrying"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Outcome is the result of one successful correction request.
type Outcome struct {
	Original  string
	Corrected string

	// Changes is the word-granularity diff between Original and Corrected,
	// for preview rendering.
	Changes []textdiff.Segment

	// Result reports how write-back landed.
	Result writeback.Result

	Provider string
	Model    string
	Duration time.Duration
}

// undoPair is the last applied correction, kept for [Orchestrator.Undo].
type undoPair struct {
	target writeback.Request
}

// Option configures an [Orchestrator].
type Option func(*Orchestrator)

// WithFallback sets an alternate engine used for a single retry when the
// primary fails with a retriable error.
func WithFallback(p engine.Provider) Option {
	return func(o *Orchestrator) { o.fallback = p }
}

// WithHistory sets the store receiving a record for every attempt,
// failures included.
func WithHistory(s history.Store) Option {
	return func(o *Orchestrator) { o.history = s }
}

// WithMetrics sets the metrics instance. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithStreamingPreview enables streaming engine calls and delivers the
// accumulated corrected text (tokens restored best-effort) to fn as chunks
// arrive. fn is called from the request goroutine.
func WithStreamingPreview(fn func(accumulated string)) Option {
	return func(o *Orchestrator) { o.preview = fn }
}

// WithInFlightHooks registers callbacks fired when a request starts and
// finishes, used to suspend the live feedback indicator while the pipeline
// owns the field.
func WithInFlightHooks(begin, end func()) Option {
	return func(o *Orchestrator) {
		o.beginHook = begin
		o.endHook = end
	}
}

// Orchestrator drives the capture → protect → correct → diff → write-back
// pipeline. Safe for concurrent use; concurrent triggers beyond the first
// are rejected.
type Orchestrator struct {
	chain  *capture.Chain
	guard  *tokenguard.Guard
	engine engine.Provider
	writer *writeback.Writer
	clip   clipboard.Adapter

	systemPrompt string
	fallback     engine.Provider
	history      history.Store
	metrics      *observe.Metrics
	preview      func(string)
	beginHook    func()
	endHook      func()

	busy  atomic.Bool
	state atomic.Int32

	mu   sync.Mutex
	undo *undoPair
}

// New creates an [Orchestrator] over the given collaborators. systemPrompt
// is sent with every engine call.
func New(chain *capture.Chain, guard *tokenguard.Guard, eng engine.Provider,
	writer *writeback.Writer, clip clipboard.Adapter, systemPrompt string,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		chain:        chain,
		guard:        guard,
		engine:       eng,
		writer:       writer,
		clip:         clip,
		systemPrompt: systemPrompt,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.metrics == nil {
		o.metrics = observe.DefaultMetrics()
	}
	return o
}

// State returns the orchestrator's current state.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

// SetSystemPrompt replaces the instruction sent with subsequent corrections.
// A correction already in flight keeps the prompt it started with.
func (o *Orchestrator) SetSystemPrompt(s string) {
	o.mu.Lock()
	o.systemPrompt = s
	o.mu.Unlock()
}

func (o *Orchestrator) prompt() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.systemPrompt
}

func (o *Orchestrator) setState(s State) {
	o.state.Store(int32(s))
}

// Run executes one correction request end to end.
func (o *Orchestrator) Run(ctx context.Context) (*Outcome, error) {
	if !o.busy.CompareAndSwap(false, true) {
		return nil, ErrAlreadyProcessing
	}
	defer o.busy.Store(false)

	if o.beginHook != nil {
		o.beginHook()
	}
	if o.endHook != nil {
		defer o.endHook()
	}

	start := time.Now()
	outcome, err := o.run(ctx, start)
	if err != nil {
		o.setState(StateFailed)
		o.metrics.RecordCorrection(ctx, o.engine.Name(), "error")
		return nil, err
	}
	o.setState(StateSucceeded)
	o.metrics.RecordCorrection(ctx, outcome.Provider, "ok")
	return outcome, nil
}

func (o *Orchestrator) run(ctx context.Context, start time.Time) (*Outcome, error) {
	// Capture.
	o.setState(StateCapturing)
	captureStart := time.Now()
	captured, err := o.chain.Capture(ctx)
	o.metrics.CaptureDuration.Record(ctx, time.Since(captureStart).Seconds())
	if err != nil {
		o.record(ctx, history.Entry{
			Provider:   o.engine.Name(),
			Model:      o.engine.Model(),
			DurationMs: time.Since(start).Milliseconds(),
			Succeeded:  false,
		})
		return nil, err
	}
	// The snapshot taken by the simulated-copy fallback is restored on
	// every exit path from here on. The restore must still run when the
	// request deadline has already expired, so the cleanup context is
	// detached from cancellation.
	if captured.ClipboardSnapshot != nil {
		defer o.clip.Restore(context.WithoutCancel(ctx), *captured.ClipboardSnapshot)
	}

	// Protect.
	o.setState(StateProtecting)
	protected := o.guard.Protect(captured.Text)

	// Correct, with a single fallback retry.
	o.setState(StateCorrecting)
	corrected, provider, err := o.invokeEngine(ctx, protected)
	if err != nil {
		o.record(ctx, history.Entry{
			Original:   captured.Text,
			Provider:   provider.Name(),
			Model:      provider.Model(),
			DurationMs: time.Since(start).Milliseconds(),
			Succeeded:  false,
		})
		return nil, err
	}
	corrected = o.guard.Restore(corrected, protected.Tokens)

	outcome := &Outcome{
		Original:  captured.Text,
		Corrected: corrected,
		Changes:   textdiff.Diff(captured.Text, corrected, textdiff.Word),
		Provider:  provider.Name(),
		Model:     provider.Model(),
	}

	// Write back.
	req := writeback.Request{Target: captured.Target, Line: captured.Line, Text: corrected}
	wbStart := time.Now()
	result, err := o.writer.Apply(ctx, req)
	o.metrics.WritebackDuration.Record(ctx, time.Since(wbStart).Seconds())
	outcome.Result = result
	outcome.Duration = time.Since(start)

	o.record(ctx, history.Entry{
		Original:   captured.Text,
		Corrected:  corrected,
		Provider:   provider.Name(),
		Model:      provider.Model(),
		DurationMs: outcome.Duration.Milliseconds(),
		Succeeded:  err == nil,
	})
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	o.undo = &undoPair{
		target: writeback.Request{Target: captured.Target, Line: spliceLine(captured.Line, corrected), Text: captured.Text},
	}
	o.mu.Unlock()

	slog.Info("correction applied",
		"provider", outcome.Provider,
		"model", outcome.Model,
		"result", result.String(),
		"duration", outcome.Duration)
	return outcome, nil
}

// invokeEngine calls the primary engine and, when the failure is retriable
// and a fallback is configured, retries exactly once on the fallback.
func (o *Orchestrator) invokeEngine(ctx context.Context, p tokenguard.Protected) (string, engine.Provider, error) {
	corrected, err := o.correctOnce(ctx, o.engine, p)
	if err == nil {
		return corrected, o.engine, nil
	}

	if o.fallback == nil || !engine.Retriable(err) {
		o.metrics.RecordEngineError(ctx, o.engine.Name(), errorKind(err))
		return "", o.engine, err
	}

	o.setState(StateRetrying)
	slog.Warn("engine failed, retrying on fallback model",
		"provider", o.engine.Name(),
		"fallback", o.fallback.Name(),
		"error", err)
	o.metrics.RecordEngineError(ctx, o.engine.Name(), errorKind(err))

	o.setState(StateCorrecting)
	corrected, err = o.correctOnce(ctx, o.fallback, p)
	if err != nil {
		o.metrics.RecordEngineError(ctx, o.fallback.Name(), errorKind(err))
		return "", o.fallback, err
	}
	return corrected, o.fallback, nil
}

// correctOnce performs a single engine call, streaming when a preview sink
// is configured.
func (o *Orchestrator) correctOnce(ctx context.Context, p engine.Provider, prot tokenguard.Protected) (string, error) {
	start := time.Now()
	defer func() {
		o.metrics.EngineDuration.Record(ctx, time.Since(start).Seconds())
	}()

	prompt := o.prompt()

	var corrected string
	var err error
	if o.preview != nil {
		corrected, err = p.CorrectStreaming(ctx, prompt, prot.Working, func(accumulated string) {
			o.preview(o.guard.Restore(accumulated, prot.Tokens))
		})
	} else {
		corrected, err = p.Correct(ctx, prompt, prot.Working)
	}
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(corrected) == "" {
		return "", fmt.Errorf("correct: %s returned blank text: %w", p.Name(), engine.ErrEmptyResponse)
	}
	return corrected, nil
}

// Undo re-applies the last successful correction's original text through the
// same write-back mechanism, bypassing the protect/correct/diff stages.
func (o *Orchestrator) Undo(ctx context.Context) error {
	if !o.busy.CompareAndSwap(false, true) {
		return ErrAlreadyProcessing
	}
	defer o.busy.Store(false)

	o.mu.Lock()
	pair := o.undo
	o.undo = nil
	o.mu.Unlock()

	if pair == nil {
		return ErrNothingToUndo
	}

	if _, err := o.writer.Apply(ctx, pair.target); err != nil {
		return fmt.Errorf("correct: undo: %w", err)
	}
	slog.Info("correction undone")
	return nil
}

// record sends an entry to the history sink. Failures are logged, not
// propagated; history is fire-and-forget.
func (o *Orchestrator) record(ctx context.Context, e history.Entry) {
	if o.history == nil {
		return
	}
	if err := o.history.Append(ctx, e); err != nil {
		slog.Warn("history append failed", "error", err)
	}
}

// spliceLine rebuilds the line context for undoing a line-scoped correction:
// after write-back the field holds the corrected line, so undo must splice
// the original back into that updated full text.
func spliceLine(line *capture.LineContext, corrected string) *capture.LineContext {
	if line == nil {
		return nil
	}
	return &capture.LineContext{
		FullText: line.FullText[:line.Start] + corrected + line.FullText[line.End:],
		Start:    line.Start,
		End:      line.Start + len(corrected),
	}
}

// errorKind maps an engine error to a metrics attribute value.
func errorKind(err error) string {
	switch {
	case errors.Is(err, engine.ErrEngineNotFound):
		return "not_found"
	case errors.Is(err, engine.ErrAuthenticationRequired):
		return "auth"
	case errors.Is(err, engine.ErrTimedOut):
		return "timed_out"
	case errors.Is(err, engine.ErrEmptyResponse):
		return "empty_response"
	case errors.Is(err, engine.ErrProcessFailed):
		return "process_failed"
	}
	return "unknown"
}
