package config

import (
	"path/filepath"

	"github.com/spf13/viper"
)

// Environment mode values for DEVRUN_ENV_MODE.
const (
	EnvModeDev  = "dev"
	EnvModeProd = "prod"
)

// Env holds the DEVRUN_* process-environment overrides. Unlike the config
// file these are per-invocation knobs, so they live in the environment
// rather than in the project configuration.
type Env struct {
	// HotReloadIncludePaths are extra watch paths for the backend
	// reloader, bypassing the default exclusions.
	HotReloadIncludePaths []string
	// HotReloadExcludePaths are watch paths to drop, matched by file
	// identity.
	HotReloadExcludePaths []string
	// UseNPM forces npm as the JS package executor even when bun is
	// installed.
	UseNPM bool
	// Backend overrides the ASGI runtime probe by name.
	Backend string
	// Mode switches between development and production behavior.
	Mode string
}

// LoadEnv reads the DEVRUN_* environment overrides.
func LoadEnv() *Env {
	v := viper.New()
	v.SetEnvPrefix("DEVRUN")
	v.AutomaticEnv()
	v.SetDefault("env_mode", EnvModeDev)

	return &Env{
		HotReloadIncludePaths: splitPathList(v.GetString("hot_reload_include_paths")),
		HotReloadExcludePaths: splitPathList(v.GetString("hot_reload_exclude_paths")),
		UseNPM:                v.GetBool("use_npm"),
		Backend:               v.GetString("backend"),
		Mode:                  v.GetString("env_mode"),
	}
}

// IsProd reports whether production mode was requested.
func (e *Env) IsProd() bool {
	return e.Mode == EnvModeProd
}

// splitPathList splits an OS path list ("a:b" on POSIX, "a;b" on Windows)
// into its entries.
func splitPathList(s string) []string {
	if s == "" {
		return nil
	}
	return filepath.SplitList(s)
}
