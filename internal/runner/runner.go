// Package runner supervises a development server child process: it streams
// the child's stdout, announces readiness, and restarts the child whenever
// the package manifest changes underneath it.
package runner

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"

	"github.com/schaermu/devrun/internal/manifest"
	"github.com/schaermu/devrun/internal/proc"
)

// maxLineBytes caps a single line of child output. Bundlers occasionally
// dump very long diagnostic lines, so this is generous.
const maxLineBytes = 1 << 20

// Notifier receives user-facing supervision events. The engine reports,
// the caller decides how to render.
type Notifier interface {
	// Ready fires once per Run, on the first listening announcement.
	Ready(url string)
	// Updating fires on every listening announcement after the first,
	// which happens when the dev server reloads after a package install.
	Updating()
	// Hint carries a remedy for a recognized failure in child output.
	Hint(msg string)
	// Line receives every line of child output as it streams.
	Line(line string)
}

// Config describes the child to supervise.
type Config struct {
	// Command is spawned and respawned for each supervision cycle.
	Command proc.Command
	// ManifestPath is fingerprinted after each ordinary output line;
	// a change triggers a restart.
	ManifestPath string
	// PathPrefix is resolved against the announced URL before it is
	// reported, e.g. "/admin".
	PathPrefix string
}

// Engine runs one supervised child at a time. It is not safe for
// concurrent use.
type Engine struct {
	cfg      Config
	spawner  proc.Spawner
	killer   proc.Killer
	notifier Notifier
	logger   *slog.Logger

	ready    bool
	lastHash string
}

// New creates an Engine.
func New(cfg Config, spawner proc.Spawner, killer proc.Killer, notifier Notifier, logger *slog.Logger) *Engine {
	return &Engine{
		cfg:      cfg,
		spawner:  spawner,
		killer:   killer,
		notifier: notifier,
		logger:   logger,
	}
}

// Run supervises the child until its output drains without a pending
// manifest change, the context is cancelled, or supervision fails.
// Manifest changes restart the child; the ready state carries across
// restarts so reinstall cycles report "updating" rather than a second
// "ready".
func (e *Engine) Run(ctx context.Context) error {
	e.ready = false

	hash, err := manifest.Fingerprint(e.cfg.ManifestPath)
	if err != nil {
		return fmt.Errorf("initial manifest fingerprint: %w", err)
	}
	e.lastHash = hash

	for {
		restart, err := e.superviseOnce(ctx)
		if err != nil {
			return err
		}
		if !restart {
			return nil
		}
		e.logger.Debug("restarting after manifest change", "manifest", e.cfg.ManifestPath)
	}
}

// superviseOnce spawns the child and consumes its output. It returns
// restart=true when the manifest changed and the child tree has been
// confirmed dead, so the caller can spawn a fresh instance.
func (e *Engine) superviseOnce(ctx context.Context) (restart bool, err error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	child, err := e.spawner.Spawn(e.cfg.Command)
	if err != nil {
		return false, fmt.Errorf("spawn child: %w", err)
	}
	e.logger.Debug("child started", "pid", child.PID(), "argv", e.cfg.Command.Argv)

	// On cancellation the watcher tears the tree down, which closes the
	// child's stdout and unblocks the scan loop below.
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			_ = e.killer.TerminateTree(context.Background(), child.PID())
		case <-watchDone:
		}
	}()

	scanner := bufio.NewScanner(child.Stdout())
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	for scanner.Scan() {
		line := scanner.Text()
		e.notifier.Line(line)

		switch m := Classify(line); m.Kind {
		case KindReady:
			if e.ready {
				e.notifier.Updating()
			} else {
				e.ready = true
				e.notifier.Ready(JoinPathPrefix(m.URL, e.cfg.PathPrefix))
			}
			// Listening announcements never trigger a manifest check.
			continue
		case KindKnownFailure:
			e.notifier.Hint(m.Hint)
		}

		hash, err := manifest.Fingerprint(e.cfg.ManifestPath)
		if err != nil {
			_ = e.killer.TerminateTree(context.Background(), child.PID())
			_ = child.Wait()
			return false, fmt.Errorf("manifest fingerprint: %w", err)
		}
		if hash != e.lastHash {
			e.lastHash = hash
			e.logger.Info("package manifest changed, restarting child",
				"manifest", e.cfg.ManifestPath, "pid", child.PID())
			if err := e.killer.TerminateTree(ctx, child.PID()); err != nil {
				_ = child.Wait()
				return false, fmt.Errorf("terminate child tree: %w", err)
			}
			_ = child.Wait()
			return true, nil
		}
	}

	if err := scanner.Err(); err != nil {
		_ = e.killer.TerminateTree(context.Background(), child.PID())
		_ = child.Wait()
		return false, fmt.Errorf("read child output: %w", err)
	}

	_ = child.Wait()

	if err := ctx.Err(); err != nil {
		return false, err
	}
	return false, nil
}
