//go:build e2e

// Package e2e exercises the built devrun binary end to end: real command
// wiring, real config loading, real child processes. Requires a POSIX sh.
package e2e

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

const suiteTimeout = 5 * time.Minute

// fakeBunScript stands in for the JS package executor: whatever script it
// is asked to run, it behaves like a dev server that announces its URL and
// keeps ticking.
const fakeBunScript = `#!/bin/sh
echo "$ bun $*"
echo "  - Local:   http://localhost:3000"
while :; do
  echo "tick"
  sleep 0.2
done
`

func TestCLI(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("relies on sh scripts")
	}

	ctx, cancel := context.WithTimeout(context.Background(), suiteTimeout)
	defer cancel()

	bin := buildBinary(ctx, t)

	t.Run("Version", func(t *testing.T) {
		out, err := exec.CommandContext(ctx, bin, "version").CombinedOutput()
		if err != nil {
			t.Fatalf("devrun version: %v\n%s", err, out)
		}
		if !strings.Contains(string(out), "devrun") {
			t.Errorf("version output missing binary name: %q", out)
		}
	})

	t.Run("DoctorWithoutConfig", func(t *testing.T) {
		cmd := exec.CommandContext(ctx, bin, "doctor")
		cmd.Dir = t.TempDir()
		out, err := cmd.CombinedOutput()
		if err != nil {
			t.Fatalf("devrun doctor: %v\n%s", err, out)
		}
		if !strings.Contains(string(out), "System Info") {
			t.Errorf("doctor output missing report header: %q", out)
		}
	})

	t.Run("FrontendSupervision", func(t *testing.T) {
		testFrontendSupervision(ctx, t, bin)
	})
}

// testFrontendSupervision runs `devrun frontend` against a throwaway
// project with a fake bun on PATH and walks it through the full lifecycle:
// ready, manifest change, transparent restart, interrupt.
func testFrontendSupervision(ctx context.Context, t *testing.T, bin string) {
	t.Helper()

	proj := t.TempDir()
	webDir := filepath.Join(proj, ".web")
	binDir := filepath.Join(proj, "bin")
	for _, dir := range []string{webDir, binDir} {
		if err := os.Mkdir(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}

	manifest := filepath.Join(webDir, "package.json")
	writeFile(t, manifest, `{"dependencies":{"react":"19.0.0"}}`, 0o644)
	writeFile(t, filepath.Join(binDir, "bun"), fakeBunScript, 0o755)
	writeFile(t, filepath.Join(proj, "devrun.yaml"), "app:\n  name: \"demo\"\n", 0o644)

	cmd := exec.CommandContext(ctx, bin, "frontend", "--config", "devrun.yaml", "--frontend-only")
	cmd.Dir = proj
	cmd.Env = append(os.Environ(), "PATH="+binDir+string(os.PathListSeparator)+os.Getenv("PATH"))

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		t.Fatalf("stdout pipe: %v", err)
	}
	if err := cmd.Start(); err != nil {
		t.Fatalf("start devrun: %v", err)
	}

	sawReady := false
	sawUpdate := false
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		line := scanner.Text()
		t.Logf("[devrun] %s", line)

		if !sawReady && strings.Contains(line, "App running at:") {
			sawReady = true
			// Install a new dependency; the supervisor must notice and
			// restart the fake dev server.
			bumpManifest(t, manifest)
			continue
		}
		if strings.Contains(line, "New packages detected") {
			sawUpdate = true
			if err := cmd.Process.Signal(os.Interrupt); err != nil {
				t.Fatalf("interrupt devrun: %v", err)
			}
		}
	}

	if err := cmd.Wait(); err != nil {
		t.Errorf("devrun exited with %v, want a clean shutdown after interrupt", err)
	}
	if !sawReady {
		t.Error("never saw the ready announcement")
	}
	if !sawUpdate {
		t.Error("never saw the update announcement after the manifest change")
	}
}

func buildBinary(ctx context.Context, t *testing.T) string {
	t.Helper()

	root, err := findProjectRoot()
	if err != nil {
		t.Fatalf("find project root: %v", err)
	}

	bin := filepath.Join(t.TempDir(), "devrun")
	cmd := exec.CommandContext(ctx, "go", "build", "-o", bin, "./cmd/devrun")
	cmd.Dir = root
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("go build: %v\n%s", err, out)
	}
	return bin
}

func writeFile(t *testing.T, path, content string, mode os.FileMode) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), mode); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// bumpManifest swaps in a manifest with an extra dependency, through a
// rename so the supervisor never reads a partial file.
func bumpManifest(t *testing.T, path string) {
	t.Helper()
	tmp := path + ".tmp"
	writeFile(t, tmp, `{"dependencies":{"react":"19.0.0","lodash":"4.17.21"}}`, 0o644)
	if err := os.Rename(tmp, path); err != nil {
		t.Fatalf("replace manifest: %v", err)
	}
}

// findProjectRoot walks up the directory tree from this source file to the
// module root.
func findProjectRoot() (string, error) {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return "", fmt.Errorf("failed to get caller information")
	}

	dir := filepath.Dir(filename)
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found in any parent directory")
		}
		dir = parent
	}
}
