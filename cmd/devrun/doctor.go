package main

import (
	"runtime"

	"github.com/schaermu/devrun/internal/backend"
	"github.com/schaermu/devrun/internal/config"
	"github.com/schaermu/devrun/internal/frontend"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/spf13/cobra"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Print a report of the local toolchain and environment",
	Long: `Doctor inspects the machine devrun runs on: operating system, JS toolchain
(node, bun, npm), the package executor that would drive the frontend, and
the ASGI runtime that would serve the backend.

Use it to diagnose toolchain mismatches before filing a bug.`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger()
	cons := setupConsole()
	env := config.LoadEnv()

	cons.Rule("System Info")
	cons.Info("devrun %s (commit %s, built %s)", version, commit, date)
	cons.Info("go: %s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	if info, err := host.InfoWithContext(ctx); err == nil {
		cons.Info("os: %s %s (kernel %s)", info.Platform, info.PlatformVersion, info.KernelVersion)
	} else {
		cons.Warn("os: unavailable (%v)", err)
	}
	cons.Info("mode: %s", env.Mode)

	cons.Rule("Frontend Toolchain")
	toolchain := frontend.NewToolchain(env.UseNPM)
	for _, tool := range []string{"node", "bun", "npm"} {
		path, toolVersion := toolchain.ToolVersion(ctx, tool)
		switch {
		case path == "":
			cons.Warn("%s: not installed", tool)
		case toolVersion == "":
			cons.Info("%s: %s (version unknown)", tool, path)
		default:
			cons.Info("%s: %s (%s)", tool, path, toolVersion)
		}
	}
	if exe, err := toolchain.Executor(); err == nil {
		cons.Info("package executor: %s", exe)
	} else {
		cons.Error("package executor: %v", err)
	}

	cons.Rule("Backend Runtime")
	prober := backend.NewProber(logger)
	if rt, err := prober.Detect(env.Backend); err == nil {
		cons.Info("asgi runtime: %s", string(rt))
	} else {
		cons.Error("asgi runtime: %v", err)
	}

	// The config file is optional here: doctor should work in a bare
	// checkout too.
	if cfg, err := config.Load(configPath()); err == nil {
		cons.Info("config: app %q, web dir %q", cfg.App.Name, cfg.WebDir())
	} else {
		cons.Warn("config: %v", err)
		def := config.Default()
		cons.Info("config defaults: web dir %q, frontend port %d, backend port %d",
			def.WebDir(), def.Frontend.Port, def.Backend.Port)
	}

	return nil
}
