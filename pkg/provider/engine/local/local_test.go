package local_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/inkbound/redline/pkg/provider/engine"
	"github.com/inkbound/redline/pkg/provider/engine/local"
)

// shEcho builds a command that answers every request line with the given
// JSON response, which also satisfies the startup ping.
func shEcho(response string) []string {
	return []string{"/bin/sh", "-c", `while read line; do echo '` + response + `'; done`}
}

func TestRunner_Correct(t *testing.T) {
	t.Parallel()

	r, err := local.New(shEcho(`{"status":"ok","corrected":"the cat sat","elapsed_ms":5}`), "/models/corrector")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.Close()

	got, err := r.Correct(context.Background(), "", "teh cat sat")
	if err != nil {
		t.Fatalf("Correct: %v", err)
	}
	if got != "the cat sat" {
		t.Errorf("Correct = %q, want %q", got, "the cat sat")
	}
}

func TestRunner_ErrorStatus(t *testing.T) {
	t.Parallel()

	r, err := local.New(shEcho(`{"status":"error","message":"model exploded"}`), "/models/corrector")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.Close()

	// Ping accepts only status ok, so this surfaces as engine-not-found at
	// startup rather than a per-request process failure.
	_, err = r.Correct(context.Background(), "", "text")
	if !errors.Is(err, engine.ErrEngineNotFound) {
		t.Fatalf("err = %v, want ErrEngineNotFound", err)
	}
}

func TestRunner_Timeout(t *testing.T) {
	t.Parallel()

	// Answers the ping, then hangs forever.
	cmd := []string{"/bin/sh", "-c", `read line; echo '{"status":"ok"}'; sleep 60`}
	r, err := local.New(cmd, "/models/corrector")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err = r.Correct(ctx, "", "text")
	if !errors.Is(err, engine.ErrTimedOut) {
		t.Fatalf("err = %v, want ErrTimedOut", err)
	}
}

func TestRunner_MissingBinary(t *testing.T) {
	t.Parallel()

	r, err := local.New([]string{"/nonexistent/redline-infer"}, "/models/corrector")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = r.Correct(context.Background(), "", "text")
	if !errors.Is(err, engine.ErrEngineNotFound) {
		t.Fatalf("err = %v, want ErrEngineNotFound", err)
	}
}
