// Package frontend picks the JS package executor (bun or npm) and builds
// the command vectors that launch the frontend dev and prod servers.
package frontend

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/schaermu/devrun/internal/proc"
)

// Toolchain resolves the JS tooling installed on this machine.
type Toolchain struct {
	lookPath func(string) (string, error)
	useNPM   bool
}

// NewToolchain creates a Toolchain backed by the real PATH. With useNPM set
// npm is used even when bun is installed.
func NewToolchain(useNPM bool) *Toolchain {
	return &Toolchain{lookPath: exec.LookPath, useNPM: useNPM}
}

// Executor returns the package executor binary to drive the frontend with.
// bun is preferred; npm is the fallback and the forced choice under
// DEVRUN_USE_NPM.
func (t *Toolchain) Executor() (string, error) {
	if t.useNPM {
		path, err := t.lookPath("npm")
		if err != nil {
			return "", fmt.Errorf("npm was requested via DEVRUN_USE_NPM but is not in PATH: %w", err)
		}
		return path, nil
	}
	if path, err := t.lookPath("bun"); err == nil {
		return path, nil
	}
	if path, err := t.lookPath("npm"); err == nil {
		return path, nil
	}
	return "", errors.New("no JS package executor found, install bun or npm")
}

// RunScript builds the command that runs a package.json script ("dev" or
// "prod") inside webDir, with the server port handed down via PORT.
func (t *Toolchain) RunScript(script, webDir string, port int) (proc.Command, error) {
	exe, err := t.Executor()
	if err != nil {
		return proc.Command{}, err
	}
	return proc.Command{
		Argv: []string{exe, "run", script},
		Dir:  webDir,
		Env:  []string{"PORT=" + strconv.Itoa(port)},
	}, nil
}

// ToolVersion reports where a tool is installed and what version it
// announces. Both are empty when the tool is missing; the version alone is
// empty when the tool refuses to report one.
func (t *Toolchain) ToolVersion(ctx context.Context, name string) (path, version string) {
	p, err := t.lookPath(name)
	if err != nil {
		return "", ""
	}
	out, err := exec.CommandContext(ctx, p, "--version").Output()
	if err != nil {
		return p, ""
	}
	return p, strings.TrimSpace(string(out))
}
