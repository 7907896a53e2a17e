package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/schaermu/devrun/internal/backend"
	"github.com/schaermu/devrun/internal/config"
	"github.com/schaermu/devrun/internal/console"
	"github.com/schaermu/devrun/internal/frontend"
	"github.com/schaermu/devrun/internal/proc"
	"github.com/schaermu/devrun/internal/reload"
	"github.com/schaermu/devrun/internal/runner"
	"github.com/spf13/cobra"
)

var (
	// Set by goreleaser
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// Global flags
	cfgFile   string
	logLevel  string
	logFormat string

	frontendOnly bool
	prodMode     bool
	portOverride int
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "devrun",
	Short: "Supervise the development processes of a web app",
	Long: `devrun runs and supervises the long-lived child processes of a web
application: the JS frontend dev server and the ASGI backend server.

The frontend child is restarted transparently whenever the package manifest
changes underneath it (for example after installing a dependency), and the
backend server is launched with hot-reload watch paths computed from the
app layout.`,
	SilenceUsage: true,
}

var frontendCmd = &cobra.Command{
	Use:   "frontend",
	Short: "Run the frontend dev server under supervision",
	Long: `Frontend launches the JS dev server through the package executor (bun, or
npm with DEVRUN_USE_NPM=1) and streams its output.

The first listening announcement is reported with the app URL; afterwards the
package manifest is fingerprinted as output streams, and a manifest change
kills the whole child process tree and respawns it so new packages are picked
up without manual intervention.`,
	RunE: runFrontend,
}

var backendCmd = &cobra.Command{
	Use:   "backend",
	Short: "Run the ASGI backend server",
	Long: `Backend launches the app's ASGI server, picking granian or uvicorn based on
what is installed (override with DEVRUN_BACKEND).

In development mode the server runs with hot reload across the app's watch
paths; with --prod it runs the production invocation instead (gunicorn or
granian with a real worker pool).`,
	RunE: runBackend,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("devrun %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./devrun.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")

	// Frontend command flags
	frontendCmd.Flags().BoolVar(&frontendOnly, "frontend-only", false, "no backend is running, skip backend announcements")
	frontendCmd.Flags().BoolVar(&prodMode, "prod", false, "run the production server instead of the dev server")
	frontendCmd.Flags().IntVar(&portOverride, "port", 0, "override the configured frontend port")

	// Backend command flags
	backendCmd.Flags().BoolVar(&prodMode, "prod", false, "run the production server instead of the dev server")
	backendCmd.Flags().IntVar(&portOverride, "port", 0, "override the configured backend port")

	// Add commands
	rootCmd.AddCommand(frontendCmd)
	rootCmd.AddCommand(backendCmd)
	rootCmd.AddCommand(versionCmd)
}

func runFrontend(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger()
	cons := setupConsole()

	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	env := config.LoadEnv()

	script := "dev"
	if prodMode || env.IsProd() {
		script = "prod"
	}
	port := cfg.Frontend.Port
	if portOverride != 0 {
		port = portOverride
	}

	toolchain := frontend.NewToolchain(env.UseNPM)
	command, err := toolchain.RunScript(script, cfg.WebDir(), port)
	if err != nil {
		return err
	}

	cons.Rule("App Running")

	sys := proc.NewSystem()
	notifier := &frontendNotifier{
		cons:           cons,
		backendPresent: !frontendOnly,
		backendAddr:    fmt.Sprintf("http://%s:%d", cfg.Backend.Host, cfg.Backend.Port),
	}
	engine := runner.New(runner.Config{
		Command:      command,
		ManifestPath: cfg.ManifestPath(),
		PathPrefix:   cfg.Frontend.Path,
	}, sys, sys, notifier, logger)

	logger.Info("starting frontend supervisor", "script", script, "port", port)
	if err := engine.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("frontend supervisor stopped")
			return nil
		}
		logger.Error("frontend supervision failed", "error", err)
		return err
	}
	return nil
}

func runBackend(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger()
	cons := setupConsole()

	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	env := config.LoadEnv()

	if portOverride != 0 {
		cfg.Backend.Port = portOverride
	}

	prober := backend.NewProber(logger)
	rt, err := prober.Detect(env.Backend)
	if err != nil {
		return err
	}
	logger.Debug("backend runtime selected", "runtime", string(rt))

	level := backendLogLevel(logLevel)
	sys := proc.NewSystem()

	cons.Info("Backend running at: %s",
		console.Highlight(fmt.Sprintf("http://%s:%d", cfg.Backend.Host, cfg.Backend.Port)))

	if prodMode || env.IsProd() {
		command, err := prober.ProdCommand(rt, cfg, level)
		if err != nil {
			return err
		}
		logger.Info("starting production backend", "runtime", string(rt), "port", cfg.Backend.Port)
		return runChild(ctx, sys, command, logger)
	}

	// An existing web build does not need recompiling for backend work.
	if _, err := os.Stat(cfg.WebDir()); err == nil {
		if err := touch(cfg.NoCompileFile()); err != nil {
			logger.Warn("could not write the no-compile marker", "error", err)
		}
	}

	paths, err := reload.Resolve(cfg.App.Name, cfg.App.ModuleFile,
		env.HotReloadIncludePaths, env.HotReloadExcludePaths)
	if err != nil {
		return fmt.Errorf("failed to resolve reload paths: %w", err)
	}
	logger.Debug("hot reload paths resolved", "paths", paths)

	command, err := prober.DevCommand(rt, cfg, paths, level)
	if err != nil {
		return err
	}
	logger.Info("starting development backend", "runtime", string(rt), "port", cfg.Backend.Port)
	return runChild(ctx, sys, command, logger)
}

// runChild runs a non-supervised child wired to the terminal until it
// exits or the context is cancelled.
func runChild(ctx context.Context, sys *proc.System, command proc.Command, logger *slog.Logger) error {
	if err := sys.Run(ctx, command); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("backend stopped")
			return nil
		}
		return err
	}
	return nil
}

// frontendNotifier renders supervision events on the console.
type frontendNotifier struct {
	cons           *console.Console
	backendPresent bool
	backendAddr    string
}

func (n *frontendNotifier) Ready(url string) {
	msg := "App running at: " + console.Highlight(url)
	if !n.backendPresent {
		msg += " (Frontend-only mode)"
	}
	n.cons.Info("%s", msg)
	if n.backendPresent {
		n.cons.Info("Backend running at: %s", console.Highlight(n.backendAddr))
	}
}

func (n *frontendNotifier) Updating() {
	n.cons.Info("New packages detected: Updating app...")
}

func (n *frontendNotifier) Hint(msg string) {
	n.cons.Error("%s", msg)
}

func (n *frontendNotifier) Line(line string) {
	n.cons.Debug("%s", line)
}

func setupLogger() *slog.Logger {
	// Parse log level
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	// Create handler based on format
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if logFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

func setupConsole() *console.Console {
	level, err := console.ParseLevel(logLevel)
	if err != nil {
		level = console.LevelInfo
	}
	return console.New(os.Stdout, level)
}

// backendLogLevel maps the flag vocabulary onto the ASGI servers' level
// names ("warn" is "warning" over there).
func backendLogLevel(level string) string {
	if level == "warn" {
		return "warning"
	}
	return level
}

// touch creates the file if it does not exist and refreshes its mtime when
// it does.
func touch(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	now := time.Now()
	return os.Chtimes(path, now, now)
}

func configPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return "devrun.yaml"
}

func loadConfig(logger *slog.Logger) (*config.Config, error) {
	path := configPath()
	logger.Info("loading configuration", "path", path)

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	logger.Debug("configuration loaded",
		"app", cfg.App.Name,
		"module", cfg.App.Module,
		"web_dir", cfg.WebDir(),
		"backend_port", cfg.Backend.Port)

	return cfg, nil
}

func setupSignalHandler() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		cancel()
	}()

	return ctx, cancel
}
