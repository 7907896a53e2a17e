package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the complete devrun project configuration
type Config struct {
	App      AppConfig      `yaml:"app"`
	Paths    PathsConfig    `yaml:"paths"`
	Frontend FrontendConfig `yaml:"frontend"`
	Backend  BackendConfig  `yaml:"backend"`
}

// AppConfig identifies the supervised application
type AppConfig struct {
	// Name is the application package name, e.g. "myapp".
	Name string `yaml:"name"`
	// Module is the dotted import path of the app module. Defaults to
	// "<name>.<name>".
	Module string `yaml:"module"`
	// ModuleFile is the filesystem path of the app module. Defaults to
	// the Module path with slashes.
	ModuleFile string `yaml:"module_file"`
	// Instance is the app factory attribute inside the module.
	Instance string `yaml:"instance"`
}

// PathsConfig configures local filesystem paths
type PathsConfig struct {
	WebDir string `yaml:"web_dir"`
}

// FrontendConfig configures the JS dev server child
type FrontendConfig struct {
	Port int `yaml:"port"`
	// Path is the URL sub-path the app is served under, e.g. "/admin".
	Path string `yaml:"path"`
}

// BackendConfig configures the ASGI server child
type BackendConfig struct {
	Host              string `yaml:"host"`
	Port              int    `yaml:"port"`
	Workers           int    `yaml:"workers"`
	Timeout           int    `yaml:"timeout"`
	MaxRequests       int    `yaml:"max_requests"`
	MaxRequestsJitter int    `yaml:"max_requests_jitter"`
	WorkerClass       string `yaml:"worker_class"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	// Expand environment variables in path
	path = os.ExpandEnv(path)

	// Read file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse YAML
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Expand environment variables in string fields
	cfg.expandEnv()

	// Apply defaults
	cfg.applyDefaults()

	// Validate
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Default returns a configuration with defaults applied and no app set.
// Commands that only inspect the environment use it when no config file
// is present.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

// expandEnv expands environment variables in all string fields
func (c *Config) expandEnv() {
	c.App.Name = os.ExpandEnv(c.App.Name)
	c.App.Module = os.ExpandEnv(c.App.Module)
	c.App.ModuleFile = os.ExpandEnv(c.App.ModuleFile)
	c.Paths.WebDir = os.ExpandEnv(c.Paths.WebDir)
	c.Frontend.Path = os.ExpandEnv(c.Frontend.Path)
	c.Backend.Host = os.ExpandEnv(c.Backend.Host)
	c.Backend.WorkerClass = os.ExpandEnv(c.Backend.WorkerClass)
}

// applyDefaults fills in zero-value fields with sensible defaults.
func (c *Config) applyDefaults() {
	if c.App.Module == "" && c.App.Name != "" {
		c.App.Module = c.App.Name + "." + c.App.Name
	}
	if c.App.ModuleFile == "" && c.App.Module != "" {
		c.App.ModuleFile = filepath.FromSlash(strings.ReplaceAll(c.App.Module, ".", "/") + ".py")
	}
	if c.App.Instance == "" {
		c.App.Instance = "app"
	}
	if c.Paths.WebDir == "" {
		c.Paths.WebDir = ".web"
	}
	if c.Frontend.Port == 0 {
		c.Frontend.Port = 3000
	}
	if c.Backend.Host == "" {
		c.Backend.Host = "0.0.0.0"
	}
	if c.Backend.Port == 0 {
		c.Backend.Port = 8000
	}
	if c.Backend.Timeout == 0 {
		c.Backend.Timeout = 120
	}
	if c.Backend.MaxRequests == 0 {
		c.Backend.MaxRequests = 120
	}
	if c.Backend.MaxRequestsJitter == 0 {
		c.Backend.MaxRequestsJitter = 25
	}
	if c.Backend.WorkerClass == "" {
		c.Backend.WorkerClass = "uvicorn.workers.UvicornWorker"
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.App.Name == "" {
		return fmt.Errorf("app.name is required")
	}

	// The frontend path must be URL-absolute so it can be joined onto the
	// announced server URL.
	if c.Frontend.Path != "" && !strings.HasPrefix(c.Frontend.Path, "/") {
		return fmt.Errorf("frontend.path must start with a slash: %s", c.Frontend.Path)
	}

	if c.Frontend.Port < 0 || c.Frontend.Port > 65535 {
		return fmt.Errorf("frontend.port out of range: %d", c.Frontend.Port)
	}
	if c.Backend.Port < 0 || c.Backend.Port > 65535 {
		return fmt.Errorf("backend.port out of range: %d", c.Backend.Port)
	}

	return nil
}

// WebDir returns the directory holding the compiled JS app
func (c *Config) WebDir() string {
	return c.Paths.WebDir
}

// ManifestPath returns the path of the JS package manifest watched for
// dependency changes
func (c *Config) ManifestPath() string {
	return filepath.Join(c.Paths.WebDir, "package.json")
}

// NoCompileFile returns the marker file that tells backend children the
// frontend bundle is already compiled
func (c *Config) NoCompileFile() string {
	return filepath.Join(c.Paths.WebDir, ".nocompile")
}

// Target returns the "<module>:<instance>" import target for servers that
// load the app by dotted path
func (c *Config) Target() string {
	return c.App.Module + ":" + c.App.Instance
}

// TargetFile returns the "<file>:<instance>" target for servers that load
// the app by file path
func (c *Config) TargetFile() string {
	return c.App.ModuleFile + ":" + c.App.Instance
}
