// Command redline is the in-place text correction daemon. It watches the
// focused text field through AT-SPI, corrects selections on demand through a
// configurable LLM engine, and tracks live spelling/grammar issues in the
// background.
//
// The daemon is driven by line commands on stdin: "correct" runs one
// correction of the current selection, "undo" restores the last correction,
// "fix" applies every tracked live-feedback suggestion, "export [path]"
// writes the correction history to CSV, and "quit" exits. Desktop hotkeys
// are expected to deliver these commands (e.g. via a FIFO or wrapper
// script).
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/inkbound/redline/internal/capture"
	"github.com/inkbound/redline/internal/clipboard"
	"github.com/inkbound/redline/internal/config"
	"github.com/inkbound/redline/internal/correct"
	"github.com/inkbound/redline/internal/field/atspi"
	"github.com/inkbound/redline/internal/health"
	"github.com/inkbound/redline/internal/history"
	historypg "github.com/inkbound/redline/internal/history/postgres"
	"github.com/inkbound/redline/internal/ignore"
	"github.com/inkbound/redline/internal/livefeedback"
	"github.com/inkbound/redline/internal/observe"
	"github.com/inkbound/redline/internal/resilience"
	"github.com/inkbound/redline/internal/tokenguard"
	"github.com/inkbound/redline/internal/writeback"
	"github.com/inkbound/redline/pkg/provider/checker"
	"github.com/inkbound/redline/pkg/provider/checker/dictionary"
	"github.com/inkbound/redline/pkg/provider/checker/lint"
	"github.com/inkbound/redline/pkg/provider/engine"
	anyllmeng "github.com/inkbound/redline/pkg/provider/engine/anyllm"
	localeng "github.com/inkbound/redline/pkg/provider/engine/local"
	openaieng "github.com/inkbound/redline/pkg/provider/engine/openai"
)

// version is stamped at build time via -ldflags.
var version = "dev"

const defaultSystemPrompt = "Correct the spelling, grammar, and punctuation " +
	"of the text. Preserve the original meaning, tone, and formatting. " +
	"Return only the corrected text."

const (
	defaultWordlist      = "/usr/share/dict/words"
	defaultEngineTimeout = 30 * time.Second
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "redline.yaml", "path to the YAML configuration file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("redline", version)
		return 0
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "redline: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "redline: %v\n", err)
		}
		return 1
	}

	// Level lives in a LevelVar so the config watcher can adjust it live.
	level := new(slog.LevelVar)
	level.Set(slogLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	slog.Info("redline starting",
		"version", version,
		"config", *configPath,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownMetrics, err := observe.InitProvider(ctx, "redline", version)
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownMetrics(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Engine ────────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinEngines(reg)

	if cfg.Engine.Provider.Name == "" {
		slog.Error("engine.provider.name is not configured")
		return 1
	}
	eng, err := reg.CreateEngine(cfg.Engine.Provider)
	if err != nil {
		slog.Error("failed to create engine", "name", cfg.Engine.Provider.Name, "err", err)
		return 1
	}
	slog.Info("engine ready", "provider", eng.Name(), "model", eng.Model())

	var fallback engine.Provider
	if cfg.Engine.FallbackModel != "" {
		entry := cfg.Engine.Provider
		entry.Model = cfg.Engine.FallbackModel
		fallback, err = reg.CreateEngine(entry)
		if err != nil {
			slog.Error("failed to create fallback engine", "model", entry.Model, "err", err)
			return 1
		}
		slog.Info("fallback engine ready", "model", fallback.Model())
	}

	// ── Adapters ──────────────────────────────────────────────────────────────
	fields, err := atspi.Connect(ctx)
	if err != nil {
		slog.Error("failed to connect to the accessibility bus", "err", err)
		return 1
	}
	defer fields.Close()

	clip := clipboard.NewExecAdapter()
	guard := tokenguard.New()

	chain := capture.NewChain(fields, clip, captureOptions(cfg.Capture)...)
	writer := writeback.NewWriter(fields, clip, writebackOptions(cfg.Writeback)...)

	// ── Stores ────────────────────────────────────────────────────────────────
	hist, closeHistory, err := buildHistory(ctx, cfg.History)
	if err != nil {
		slog.Error("failed to open history store", "err", err)
		return 1
	}
	defer closeHistory()

	ignoreStore := buildIgnore(cfg.Ignore)

	// ── Diagnostics endpoint ──────────────────────────────────────────────────
	if cfg.Server.MetricsAddr != "" {
		checks := []health.Checker{
			{Name: "accessibility_bus", Check: fields.Ping},
		}
		if pg, ok := hist.(*historypg.Store); ok {
			checks = append(checks, health.Checker{Name: "postgres", Check: pg.Ping})
		}
		srv := serveDiagnostics(cfg.Server.MetricsAddr, health.New(checks...))
		defer srv.Close()
	}

	// ── Live feedback ─────────────────────────────────────────────────────────
	primary, secondary := buildCheckers(cfg.Checkers)

	var loop *livefeedback.Loop
	if cfg.LiveFeedback.Enabled {
		if primary == nil {
			slog.Warn("live feedback enabled but no checker could be built; disabling")
		} else {
			loop = livefeedback.New(fields, guard, primary, secondary,
				liveFeedbackOptions(cfg, reg, eng, ignoreStore)...)
			loop.Start(ctx)
			defer loop.Stop()
			slog.Info("live feedback running",
				"primary", primary.Name(),
				"secondary", secondary != nil,
			)
		}
	}

	// ── Orchestrator ──────────────────────────────────────────────────────────
	prompt := cfg.Engine.SystemPrompt
	if prompt == "" {
		prompt = defaultSystemPrompt
	}

	orchOpts := []correct.Option{}
	if fallback != nil {
		orchOpts = append(orchOpts, correct.WithFallback(fallback))
	}
	if hist != nil {
		orchOpts = append(orchOpts, correct.WithHistory(hist))
	}
	if cfg.Engine.Streaming {
		orchOpts = append(orchOpts, correct.WithStreamingPreview(func(accumulated string) {
			slog.Debug("correction preview", "text", truncate(accumulated, 80))
		}))
	}
	if loop != nil {
		orchOpts = append(orchOpts, correct.WithInFlightHooks(loop.Suspend, loop.Resume))
	}

	orch := correct.New(chain, guard, eng, writer, clip, prompt, orchOpts...)

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		d := config.Diff(old, new)
		if d.LogLevelChanged {
			level.Set(slogLevel(d.NewLogLevel))
			slog.Info("log level changed", "level", d.NewLogLevel)
		}
		if d.SystemPromptChanged {
			p := d.NewSystemPrompt
			if p == "" {
				p = defaultSystemPrompt
			}
			orch.SetSystemPrompt(p)
			slog.Info("system prompt changed")
		}
		if d.LiveFeedbackChanged && loop != nil {
			if d.NewLiveFeedback.Enabled {
				loop.Resume()
			} else {
				loop.Suspend()
			}
			slog.Info("live feedback toggled", "enabled", d.NewLiveFeedback.Enabled)
		}
	})
	if err != nil {
		slog.Warn("config hot reload unavailable", "err", err)
	} else {
		defer watcher.Stop()
	}

	slog.Info("redline ready — commands on stdin: correct, undo, fix, export, quit")
	return commandLoop(ctx, cfg, orch, loop, hist)
}

// commandLoop reads line commands from stdin until EOF, "quit", or signal.
func commandLoop(ctx context.Context, cfg *config.Config, orch *correct.Orchestrator, loop *livefeedback.Loop, hist history.Store) int {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			select {
			case lines <- strings.TrimSpace(sc.Text()):
			case <-ctx.Done():
				return
			}
		}
	}()

	timeout := defaultEngineTimeout
	if cfg.Engine.TimeoutMs > 0 {
		timeout = time.Duration(cfg.Engine.TimeoutMs) * time.Millisecond
	}

	for {
		select {
		case <-ctx.Done():
			slog.Info("shutdown signal received, stopping")
			return 0

		case line, ok := <-lines:
			if !ok || line == "quit" || line == "exit" {
				slog.Info("goodbye")
				return 0
			}
			switch {
			case line == "":
			case line == "correct":
				runCorrection(ctx, orch, timeout)
			case line == "undo":
				runUndo(ctx, orch, timeout)
			case line == "fix":
				runFixAll(ctx, loop, hist)
			case line == "export" || strings.HasPrefix(line, "export "):
				runExport(ctx, hist, strings.TrimSpace(strings.TrimPrefix(line, "export")))
			default:
				slog.Warn("unknown command", "command", line)
			}
		}
	}
}

func runCorrection(ctx context.Context, orch *correct.Orchestrator, timeout time.Duration) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	outcome, err := orch.Run(runCtx)
	switch {
	case errors.Is(err, correct.ErrAlreadyProcessing):
		slog.Warn("a correction is already in flight")
	case err != nil:
		slog.Error("correction failed", "err", err)
	default:
		slog.Info("correction applied",
			"provider", outcome.Provider,
			"model", outcome.Model,
			"result", outcome.Result,
			"changes", len(outcome.Changes),
			"duration", outcome.Duration.Round(time.Millisecond),
		)
	}
}

func runUndo(ctx context.Context, orch *correct.Orchestrator, timeout time.Duration) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	switch err := orch.Undo(runCtx); {
	case errors.Is(err, correct.ErrNothingToUndo):
		slog.Info("nothing to undo")
	case errors.Is(err, correct.ErrAlreadyProcessing):
		slog.Warn("a correction is already in flight")
	case err != nil:
		slog.Error("undo failed", "err", err)
	default:
		slog.Info("correction undone")
	}
}

func runFixAll(ctx context.Context, loop *livefeedback.Loop, hist history.Store) {
	if loop == nil {
		slog.Warn("live feedback is not running")
		return
	}

	pair, err := loop.ApplyAllFixes(ctx)
	switch {
	case errors.Is(err, livefeedback.ErrStaleRange):
		slog.Debug("text changed under the fixes; re-checking")
	case err != nil:
		slog.Error("apply fixes failed", "err", err)
	case pair == nil:
		slog.Info("no fixes to apply")
	default:
		slog.Info("fixes applied", "chars", len(pair.Fixed))
		if hist != nil {
			entry := history.Entry{
				Original:  pair.Original,
				Corrected: pair.Fixed,
				Provider:  "live-feedback",
				Succeeded: true,
			}
			if err := hist.Append(ctx, entry); err != nil {
				slog.Warn("failed to record fix in history", "err", err)
			}
		}
	}
}

// runExport writes the recorded correction history to a CSV file for
// spreadsheet review. The path defaults to redline-history.csv in the
// working directory.
func runExport(ctx context.Context, hist history.Store, path string) {
	if hist == nil {
		slog.Warn("history is not configured; nothing to export")
		return
	}
	if path == "" {
		path = "redline-history.csv"
	}

	// LIMIT 0 would return nothing from the postgres store, so ask for a
	// generous fixed window instead.
	entries, err := hist.Recent(ctx, 10000)
	if err != nil {
		slog.Error("history read failed", "err", err)
		return
	}

	f, err := os.Create(expandHome(path))
	if err != nil {
		slog.Error("cannot create export file", "path", path, "err", err)
		return
	}
	defer f.Close()

	if err := history.ExportCSV(f, entries); err != nil {
		slog.Error("history export failed", "path", path, "err", err)
		return
	}
	slog.Info("history exported", "path", path, "entries", len(entries))
}

// ── Engine wiring ─────────────────────────────────────────────────────────────

// registerBuiltinEngines wires the engine factories that ship with redline.
func registerBuiltinEngines(reg *config.Registry) {
	// openai goes through the dedicated client for native streaming.
	reg.RegisterEngine("openai", func(entry config.ProviderEntry) (engine.Provider, error) {
		var opts []openaieng.Option
		if entry.BaseURL != "" {
			opts = append(opts, openaieng.WithBaseURL(entry.BaseURL))
		}
		return openaieng.New(entry.APIKey, entry.Model, opts...)
	})

	// The remaining API backends share the any-llm pattern:
	// optional APIKey + optional BaseURL.
	for _, name := range []string{
		"anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
		reg.RegisterEngine(name, func(entry config.ProviderEntry) (engine.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllmeng.New(name, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not a key.
	reg.RegisterEngine("ollama", func(entry config.ProviderEntry) (engine.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllmeng.New("ollama", entry.Model, opts...)
	})

	// local runs the bundled inference subprocess; Model is the model path.
	reg.RegisterEngine("local", func(entry config.ProviderEntry) (engine.Provider, error) {
		return localeng.New(entry.Command, entry.Model)
	})
}

// ── Component wiring ──────────────────────────────────────────────────────────

func captureOptions(c config.CaptureConfig) []capture.Option {
	var opts []capture.Option
	if c.SettleMs > 0 {
		opts = append(opts, capture.WithSettleDelay(ms(c.SettleMs)))
	}
	if c.PollTimeoutMs > 0 {
		opts = append(opts, capture.WithPollTimeout(ms(c.PollTimeoutMs)))
	}
	return opts
}

func writebackOptions(c config.WritebackConfig) []writeback.Option {
	var opts []writeback.Option
	if c.SettleMs > 0 {
		opts = append(opts, writeback.WithSettleDelay(ms(c.SettleMs)))
	}
	if c.RestoreDelayMs > 0 {
		opts = append(opts, writeback.WithRestoreDelay(ms(c.RestoreDelayMs)))
	}
	return opts
}

func liveFeedbackOptions(cfg *config.Config, reg *config.Registry, eng engine.Provider, ign ignore.Store) []livefeedback.Option {
	lf := cfg.LiveFeedback
	opts := []livefeedback.Option{
		livefeedback.WithIgnoreStore(ign),
		livefeedback.WithIndicator(logIndicator{}),
	}
	if lf.IntervalMs > 0 {
		opts = append(opts, livefeedback.WithInterval(ms(lf.IntervalMs)))
	}
	if lf.QuietMs > 0 {
		opts = append(opts, livefeedback.WithQuietPeriod(ms(lf.QuietMs)))
	}
	if lf.MaxIssues > 0 {
		opts = append(opts, livefeedback.WithMaxIssues(lf.MaxIssues))
	}

	if lf.Slow != nil {
		slowEng := eng
		if lf.Slow.Provider.Name != "" {
			p, err := reg.CreateEngine(lf.Slow.Provider)
			if err != nil {
				slog.Warn("failed to create slow check engine; reusing the correction engine", "err", err)
			} else {
				slowEng = p
			}
		}
		slowPrompt := lf.Slow.SystemPrompt
		if slowPrompt == "" {
			slowPrompt = cfg.Engine.SystemPrompt
		}
		if slowPrompt == "" {
			slowPrompt = defaultSystemPrompt
		}
		interval := 10 * time.Second
		if lf.Slow.IntervalMs > 0 {
			interval = ms(lf.Slow.IntervalMs)
		}
		opts = append(opts, livefeedback.WithSlowEngine(slowEng, slowPrompt, interval))
	}
	return opts
}

// buildCheckers constructs the fast checkers. The dictionary checker is
// primary when available; the lint subprocess runs behind a circuit breaker
// so a broken linter degrades instead of failing every sweep.
func buildCheckers(c config.CheckersConfig) (primary, secondary checker.Checker) {
	wordlist := c.Wordlist
	if wordlist == "" {
		wordlist = defaultWordlist
	}
	dict, err := dictionary.NewFromFile(wordlist)
	if err != nil {
		slog.Warn("dictionary checker unavailable", "wordlist", wordlist, "err", err)
	}

	var lintChecker checker.Checker
	if len(c.Lint.Command) > 0 {
		lc, err := lint.New(c.Lint.Command)
		if err != nil {
			slog.Warn("lint checker unavailable", "err", err)
		} else {
			var bopts []resilience.BreakerOption
			if c.Lint.MaxFailures > 0 {
				bopts = append(bopts, resilience.WithMaxFailures(c.Lint.MaxFailures))
			}
			if c.Lint.CooldownMs > 0 {
				bopts = append(bopts, resilience.WithCooldown(ms(c.Lint.CooldownMs)))
			}
			lintChecker = resilience.Guard(lc, bopts...)
		}
	}

	if dict != nil {
		return dict, lintChecker
	}
	return lintChecker, nil
}

func buildHistory(ctx context.Context, c config.HistoryConfig) (history.Store, func(), error) {
	switch {
	case c.PostgresDSN != "":
		store, err := historypg.NewStore(ctx, c.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		slog.Info("history store ready", "backend", "postgres")
		return store, store.Close, nil

	case c.Path != "":
		store := history.NewFileStore(expandHome(c.Path))
		slog.Info("history store ready", "backend", "file", "path", c.Path)
		return store, func() {}, nil

	default:
		return nil, func() {}, nil
	}
}

func buildIgnore(c config.IgnoreConfig) ignore.Store {
	if c.Path == "" {
		return ignore.NewMemoryStore()
	}
	store, err := ignore.NewFileStore(expandHome(c.Path))
	if err != nil {
		slog.Warn("ignore list unavailable; using in-memory store", "path", c.Path, "err", err)
		return ignore.NewMemoryStore()
	}
	return store
}

// logIndicator surfaces live feedback status on the log; a desktop overlay
// can replace it by implementing livefeedback.Indicator.
type logIndicator struct{}

func (logIndicator) Show(s livefeedback.Status, _ []livefeedback.TrackedIssue) {
	slog.Debug("live feedback", "phase", s.Phase, "issues", s.IssueCount)
}

func (logIndicator) Dismiss() {
	slog.Debug("live feedback", "phase", livefeedback.PhaseIdle)
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// serveDiagnostics exposes Prometheus metrics and the health probes on one
// listener.
func serveDiagnostics(addr string, h *health.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	h.Register(mux)
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		slog.Info("diagnostics endpoint listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Warn("diagnostics endpoint error", "err", err)
		}
	}()
	return srv
}

func slogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

// expandHome resolves a leading "~/" against the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
