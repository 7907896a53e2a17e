//go:build integration

package supervisor

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/schaermu/devrun/internal/proc"
	"github.com/schaermu/devrun/internal/runner"
)

const (
	defaultTimeout = 2 * time.Minute
	eventTimeout   = 30 * time.Second
)

// devServerScript stands in for a JS dev server: it announces a listening
// URL the way the real one does, then keeps emitting output so the
// supervisor has lines to fingerprint against.
const devServerScript = `#!/bin/sh
echo "fake dev server booting"
echo "  - Local:   http://localhost:3000"
while :; do
  echo "tick $$"
  sleep 0.2
done
`

// Harness runs a supervised fake dev server inside a throwaway project.
type Harness struct {
	t *testing.T

	Dir      string
	WebDir   string
	Manifest string

	script   string
	recorder *eventRecorder
	runErr   chan error
}

// NewHarness lays out a temp project: a web dir with a package manifest and
// the fake dev server script.
func NewHarness(t *testing.T) *Harness {
	t.Helper()

	dir := t.TempDir()
	webDir := filepath.Join(dir, ".web")
	if err := os.Mkdir(webDir, 0o755); err != nil {
		t.Fatalf("mkdir web dir: %v", err)
	}

	h := &Harness{
		t:        t,
		Dir:      dir,
		WebDir:   webDir,
		Manifest: filepath.Join(webDir, "package.json"),
		script:   filepath.Join(dir, "fake-dev-server.sh"),
		recorder: newEventRecorder(),
		runErr:   make(chan error, 1),
	}

	h.WriteManifest(map[string]string{"react": "19.0.0"})
	if err := os.WriteFile(h.script, []byte(devServerScript), 0o755); err != nil {
		t.Fatalf("write dev server script: %v", err)
	}
	return h
}

// Start launches the supervision engine against the fake dev server.
func (h *Harness) Start(ctx context.Context) {
	h.t.Helper()

	logger := slog.New(slog.NewTextHandler(
		&testWriter{t: h.t, prefix: "[engine] "},
		&slog.HandlerOptions{Level: slog.LevelDebug},
	))

	sys := proc.NewSystem()
	engine := runner.New(runner.Config{
		Command:      proc.Command{Argv: []string{"sh", h.script}, Dir: h.WebDir},
		ManifestPath: h.Manifest,
	}, sys, sys, h.recorder, logger)

	go func() {
		h.runErr <- engine.Run(ctx)
	}()
}

// WriteManifest writes the package manifest with the given dependencies.
// The write goes through a rename so the engine never observes a partial
// manifest.
func (h *Harness) WriteManifest(deps map[string]string) {
	h.t.Helper()

	data, err := json.Marshal(map[string]any{"dependencies": deps})
	if err != nil {
		h.t.Fatalf("marshal manifest: %v", err)
	}
	tmp := h.Manifest + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		h.t.Fatalf("write manifest: %v", err)
	}
	if err := os.Rename(tmp, h.Manifest); err != nil {
		h.t.Fatalf("replace manifest: %v", err)
	}
}

// WaitReady blocks until the supervisor reports the app URL.
func (h *Harness) WaitReady() string {
	h.t.Helper()
	select {
	case url := <-h.recorder.readyCh:
		return url
	case <-time.After(eventTimeout):
		h.t.Fatal("timed out waiting for the ready announcement")
		return ""
	}
}

// WaitUpdating blocks until the supervisor reports a transparent restart.
func (h *Harness) WaitUpdating() {
	h.t.Helper()
	select {
	case <-h.recorder.updatingCh:
	case <-time.After(eventTimeout):
		h.t.Fatal("timed out waiting for the updating announcement")
	}
}

// WaitDone blocks until the engine returns and reports its error.
func (h *Harness) WaitDone() error {
	h.t.Helper()
	select {
	case err := <-h.runErr:
		return err
	case <-time.After(eventTimeout):
		h.t.Fatal("timed out waiting for the engine to return")
		return nil
	}
}

// Counts returns how many ready and updating events were observed.
func (h *Harness) Counts() (ready, updating int) {
	return h.recorder.counts()
}

// eventRecorder implements runner.Notifier for scenario assertions.
type eventRecorder struct {
	mu       sync.Mutex
	ready    int
	updating int

	readyCh    chan string
	updatingCh chan struct{}
}

func newEventRecorder() *eventRecorder {
	return &eventRecorder{
		readyCh:    make(chan string, 8),
		updatingCh: make(chan struct{}, 8),
	}
}

func (r *eventRecorder) Ready(url string) {
	r.mu.Lock()
	r.ready++
	r.mu.Unlock()
	r.readyCh <- url
}

func (r *eventRecorder) Updating() {
	r.mu.Lock()
	r.updating++
	r.mu.Unlock()
	r.updatingCh <- struct{}{}
}

func (r *eventRecorder) Hint(msg string) {}

func (r *eventRecorder) Line(line string) {}

func (r *eventRecorder) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ready, r.updating
}

// testWriter wraps test logging for engine output
type testWriter struct {
	t      *testing.T
	prefix string
}

func (w *testWriter) Write(p []byte) (n int, err error) {
	lines := strings.Split(string(p), "\n")
	for _, line := range lines {
		if line != "" {
			w.t.Log(w.prefix + line)
		}
	}
	return len(p), nil
}

var _ io.Writer = (*testWriter)(nil)
