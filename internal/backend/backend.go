// Package backend selects the ASGI server runtime for the supervised
// application and builds the command vectors to launch it in development
// and production mode.
package backend

import (
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
	"strconv"
	"sync"

	"github.com/schaermu/devrun/internal/config"
	"github.com/schaermu/devrun/internal/proc"
)

// Runtime is an ASGI server implementation devrun knows how to drive.
type Runtime string

const (
	RuntimeGranian Runtime = "granian"
	RuntimeUvicorn Runtime = "uvicorn"
)

// skipCompileEnv tells production children that the app bundle is already
// built and recompilation can be skipped.
const skipCompileEnv = "DEVRUN_SKIP_COMPILE=true"

// Prober decides which runtime to use based on what is installed, and
// builds the launch commands for it.
type Prober struct {
	logger   *slog.Logger
	lookPath func(string) (string, error)
	goos     string
	warnOnce sync.Once
}

// NewProber creates a Prober backed by the real PATH.
func NewProber(logger *slog.Logger) *Prober {
	return &Prober{logger: logger, lookPath: exec.LookPath, goos: runtime.GOOS}
}

func (p *Prober) installed(name string) bool {
	_, err := p.lookPath(name)
	return err == nil
}

// Detect picks the runtime. An explicit override by name wins. Otherwise
// granian is chosen whenever the uvicorn/gunicorn pair is incomplete, and
// uvicorn only when both are present, with a one-time notice since granian
// is the preferred default.
func (p *Prober) Detect(override string) (Runtime, error) {
	switch override {
	case "":
	case string(RuntimeGranian):
		return RuntimeGranian, nil
	case string(RuntimeUvicorn):
		return RuntimeUvicorn, nil
	default:
		return "", fmt.Errorf("unknown backend runtime %q (granian or uvicorn)", override)
	}

	if !p.installed("uvicorn") || !p.installed("gunicorn") {
		return RuntimeGranian, nil
	}
	p.warnOnce.Do(func() {
		p.logger.Warn("using uvicorn for the backend as it is installed")
	})
	return RuntimeUvicorn, nil
}

// DevCommand builds the hot-reloading development server invocation.
// The runtime's own reloader watches reloadPaths; devrun does not watch
// backend files itself.
func (p *Prober) DevCommand(rt Runtime, cfg *config.Config, reloadPaths []string, logLevel string) (proc.Command, error) {
	host := cfg.Backend.Host
	port := strconv.Itoa(cfg.Backend.Port)

	switch rt {
	case RuntimeGranian:
		if err := p.requireGranian(); err != nil {
			return proc.Command{}, err
		}
		argv := []string{
			"granian",
			"--workers-kill-timeout", "2",
			"--host", host,
			"--port", port,
			"--interface", "asgi",
			"--log-level", logLevel,
			"--reload",
			"--reload-ignore-worker-failure",
			"--reload-tick", "100",
		}
		for _, rp := range reloadPaths {
			argv = append(argv, "--reload-paths", rp)
		}
		argv = append(argv, "--factory", cfg.TargetFile())
		return proc.Command{Argv: argv}, nil

	case RuntimeUvicorn:
		argv := []string{
			"uvicorn",
			"--host", host,
			"--port", port,
			"--log-level", logLevel,
			"--reload",
			"--reload-delay", "0.1",
		}
		for _, rp := range reloadPaths {
			argv = append(argv, "--reload-dir", rp)
		}
		argv = append(argv, "--factory", cfg.Target())
		return proc.Command{Argv: argv}, nil
	}
	return proc.Command{}, fmt.Errorf("unsupported backend runtime %q", rt)
}

// ProdCommand builds the production server invocation. Granian serves with
// its own worker pool; the uvicorn runtime is served by gunicorn, except on
// Windows where gunicorn is unavailable and uvicorn runs its own workers.
func (p *Prober) ProdCommand(rt Runtime, cfg *config.Config, logLevel string) (proc.Command, error) {
	host := cfg.Backend.Host
	port := strconv.Itoa(cfg.Backend.Port)
	workers := strconv.Itoa(NumWorkers(cfg.Backend.Workers))

	var argv []string
	switch {
	case rt == RuntimeGranian:
		if err := p.requireGranian(); err != nil {
			return proc.Command{}, err
		}
		argv = []string{
			"granian",
			"--workers", workers,
			"--host", host,
			"--port", port,
			"--interface", "asgi",
			"--log-level", logLevel,
			"--factory", cfg.TargetFile(),
		}

	case p.goos == "windows":
		argv = []string{"uvicorn"}
		if cfg.Backend.MaxRequests > 0 {
			argv = append(argv, "--limit-max-requests", strconv.Itoa(cfg.Backend.MaxRequests))
		}
		if cfg.Backend.Timeout > 0 {
			argv = append(argv, "--timeout-keep-alive", strconv.Itoa(cfg.Backend.Timeout))
		}
		argv = append(argv,
			"--host", host,
			"--port", port,
			"--workers", workers,
			"--factory", cfg.Target(),
			"--log-level", logLevel,
		)

	default:
		argv = []string{
			"gunicorn",
			"--worker-class", cfg.Backend.WorkerClass,
			"--max-requests", strconv.Itoa(cfg.Backend.MaxRequests),
			"--max-requests-jitter", strconv.Itoa(cfg.Backend.MaxRequestsJitter),
			"--preload",
			"--timeout", strconv.Itoa(cfg.Backend.Timeout),
			"--bind", host + ":" + port,
			"--threads", workers,
			cfg.Target() + "()",
			"--log-level", logLevel,
		}
	}

	return proc.Command{Argv: argv, Env: []string{skipCompileEnv}}, nil
}

func (p *Prober) requireGranian() error {
	if p.installed("granian") {
		return nil
	}
	return errors.New("granian is not installed, run `pip install granian` or set DEVRUN_BACKEND=uvicorn")
}

// NumWorkers returns the configured worker count, or the conventional
// 2*CPU+1 sizing when unset.
func NumWorkers(configured int) int {
	if configured > 0 {
		return configured
	}
	return runtime.NumCPU()*2 + 1
}
