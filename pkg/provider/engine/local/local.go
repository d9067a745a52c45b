// Package local provides a correction engine backed by a local model
// inference subprocess.
//
// The subprocess speaks line-delimited JSON on stdin/stdout: each request is
// a single line like
//
//	{"command":"infer","model_path":"...","text":"...","max_length":256}
//
// answered by
//
//	{"status":"ok","corrected":"...","elapsed_ms":142}
//
// or {"status":"error","message":"..."}. A "ping" command health-checks the
// process after startup. The process is started lazily, kept alive between
// requests (it caches the loaded model), and restarted once when a request
// fails to reach it.
package local

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	"github.com/inkbound/redline/pkg/provider/engine"
)

const defaultMaxLength = 256

// request is one line sent to the subprocess.
type request struct {
	Command   string `json:"command"`
	ModelPath string `json:"model_path,omitempty"`
	Text      string `json:"text,omitempty"`
	MaxLength int    `json:"max_length,omitempty"`
}

// response is one line read back from the subprocess.
type response struct {
	Status    string `json:"status"`
	Corrected string `json:"corrected"`
	Message   string `json:"message"`
	ElapsedMs int64  `json:"elapsed_ms"`
}

// Option configures a [Runner].
type Option func(*Runner)

// WithMaxLength caps the generated output length passed to the model.
// Default: 256.
func WithMaxLength(n int) Option {
	return func(r *Runner) { r.maxLength = n }
}

// Runner implements engine.Provider by driving a local inference
// subprocess. Requests are serialized; the protocol is strictly one
// response line per request line. Safe for concurrent use.
type Runner struct {
	command   []string
	modelPath string
	maxLength int

	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
}

var _ engine.Provider = (*Runner)(nil)

// New creates a Runner that launches command (argv, typically the inference
// script with --serve) and infers against the model at modelPath. The
// subprocess is not started until the first request.
func New(command []string, modelPath string, opts ...Option) (*Runner, error) {
	if len(command) == 0 {
		return nil, fmt.Errorf("local: command must not be empty")
	}
	if modelPath == "" {
		return nil, fmt.Errorf("local: modelPath must not be empty")
	}
	r := &Runner{command: command, modelPath: modelPath, maxLength: defaultMaxLength}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// Correct implements engine.Provider. The system prompt is unused: local
// seq2seq correction models are single-purpose and take only the text.
func (r *Runner) Correct(ctx context.Context, _ string, text string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	resp, err := r.roundTrip(ctx, request{
		Command:   "infer",
		ModelPath: r.modelPath,
		Text:      text,
		MaxLength: r.maxLength,
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", err
		}
		// One restart attempt: the process may have died since the last
		// request.
		r.shutdownLocked()
		resp, err = r.roundTrip(ctx, request{
			Command:   "infer",
			ModelPath: r.modelPath,
			Text:      text,
			MaxLength: r.maxLength,
		})
		if err != nil {
			return "", err
		}
	}

	if resp.Status != "ok" {
		if strings.Contains(resp.Message, "Missing package") || strings.Contains(resp.Message, "not found") {
			return "", fmt.Errorf("%w: %s", engine.ErrEngineNotFound, resp.Message)
		}
		return "", fmt.Errorf("%w: %s", engine.ErrProcessFailed, resp.Message)
	}
	if strings.TrimSpace(resp.Corrected) == "" {
		return "", engine.ErrEmptyResponse
	}
	return resp.Corrected, nil
}

// CorrectStreaming implements engine.Provider. The subprocess protocol has
// no incremental output, so onChunk fires once with the full result.
func (r *Runner) CorrectStreaming(ctx context.Context, systemPrompt, text string, onChunk func(string)) (string, error) {
	out, err := r.Correct(ctx, systemPrompt, text)
	if err != nil {
		return "", err
	}
	if onChunk != nil {
		onChunk(out)
	}
	return out, nil
}

// Name implements engine.Provider.
func (r *Runner) Name() string { return "local" }

// Model implements engine.Provider.
func (r *Runner) Model() string { return r.modelPath }

// Close terminates the subprocess if running.
func (r *Runner) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shutdownLocked()
	return nil
}

// roundTrip ensures the subprocess is running and exchanges one request
// line for one response line. Must be called with r.mu held.
func (r *Runner) roundTrip(ctx context.Context, req request) (*response, error) {
	if err := r.ensureStartedLocked(); err != nil {
		return nil, err
	}

	line, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("local: marshal request: %w", err)
	}
	line = append(line, '\n')

	type result struct {
		resp *response
		err  error
	}
	done := make(chan result, 1)
	go func() {
		if _, err := r.stdin.Write(line); err != nil {
			done <- result{err: fmt.Errorf("%w: write: %v", engine.ErrProcessFailed, err)}
			return
		}
		raw, err := r.stdout.ReadString('\n')
		if err != nil {
			done <- result{err: fmt.Errorf("%w: read: %v", engine.ErrProcessFailed, err)}
			return
		}
		var resp response
		if err := json.Unmarshal([]byte(raw), &resp); err != nil {
			done <- result{err: fmt.Errorf("%w: decode: %v", engine.ErrProcessFailed, err)}
			return
		}
		done <- result{resp: &resp}
	}()

	select {
	case res := <-done:
		return res.resp, res.err
	case <-ctx.Done():
		// The process may be stuck mid-inference; kill it so the next
		// request starts clean.
		r.shutdownLocked()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", engine.ErrTimedOut, ctx.Err())
		}
		return nil, ctx.Err()
	}
}

// ensureStartedLocked launches the subprocess and pings it. Must be called
// with r.mu held.
func (r *Runner) ensureStartedLocked() error {
	if r.cmd != nil {
		return nil
	}

	cmd := exec.Command(r.command[0], r.command[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("%w: stdin pipe: %v", engine.ErrProcessFailed, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("%w: stdout pipe: %v", engine.ErrProcessFailed, err)
	}
	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return fmt.Errorf("%w: %v", engine.ErrEngineNotFound, err)
		}
		return fmt.Errorf("%w: start: %v", engine.ErrEngineNotFound, err)
	}

	r.cmd = cmd
	r.stdin = stdin
	r.stdout = bufio.NewReader(stdout)

	// Health check before accepting requests.
	if err := r.pingLocked(); err != nil {
		r.shutdownLocked()
		return err
	}
	return nil
}

// pingLocked verifies the subprocess answers the ping command.
func (r *Runner) pingLocked() error {
	line, _ := json.Marshal(request{Command: "ping"})
	line = append(line, '\n')
	if _, err := r.stdin.Write(line); err != nil {
		return fmt.Errorf("%w: ping write: %v", engine.ErrEngineNotFound, err)
	}
	raw, err := r.stdout.ReadString('\n')
	if err != nil {
		return fmt.Errorf("%w: ping read: %v", engine.ErrEngineNotFound, err)
	}
	var resp response
	if err := json.Unmarshal([]byte(raw), &resp); err != nil || resp.Status != "ok" {
		return fmt.Errorf("%w: ping rejected", engine.ErrEngineNotFound)
	}
	return nil
}

// shutdownLocked kills the subprocess and clears state. Must be called with
// r.mu held.
func (r *Runner) shutdownLocked() {
	if r.cmd == nil {
		return
	}
	_ = r.stdin.Close()
	_ = r.cmd.Process.Kill()
	_ = r.cmd.Wait()
	r.cmd = nil
	r.stdin = nil
	r.stdout = nil
}
