package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	// Create a temporary config file
	tmpfile, err := os.CreateTemp("", "devrun-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		_ = os.Remove(tmpfile.Name())
	}()

	content := `
app:
  name: "myapp"
  instance: "application"

paths:
  web_dir: ".web"

frontend:
  port: 3100
  path: "/admin"

backend:
  host: "127.0.0.1"
  port: 8100
  workers: 4
`

	if _, err := tmpfile.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := tmpfile.Close(); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(tmpfile.Name())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	// Verify loaded values
	if cfg.App.Name != "myapp" {
		t.Errorf("expected app name myapp, got %s", cfg.App.Name)
	}
	if cfg.App.Instance != "application" {
		t.Errorf("expected instance application, got %s", cfg.App.Instance)
	}
	if cfg.Frontend.Port != 3100 {
		t.Errorf("expected frontend port 3100, got %d", cfg.Frontend.Port)
	}
	if cfg.Backend.Host != "127.0.0.1" {
		t.Errorf("expected backend host 127.0.0.1, got %s", cfg.Backend.Host)
	}

	// Defaults fill in what the file leaves out
	if cfg.App.Module != "myapp.myapp" {
		t.Errorf("expected default module myapp.myapp, got %s", cfg.App.Module)
	}
	if cfg.Backend.WorkerClass != "uvicorn.workers.UvicornWorker" {
		t.Errorf("expected default worker class, got %s", cfg.Backend.WorkerClass)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "devrun.yaml")); err == nil {
		t.Fatal("Load() should fail for a missing config file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "valid config",
			cfg: Config{
				App:      AppConfig{Name: "myapp"},
				Frontend: FrontendConfig{Port: 3000, Path: "/admin"},
				Backend:  BackendConfig{Port: 8000},
			},
			wantErr: false,
		},
		{
			name:    "missing app name",
			cfg:     Config{},
			wantErr: true,
		},
		{
			name: "frontend path without leading slash",
			cfg: Config{
				App:      AppConfig{Name: "myapp"},
				Frontend: FrontendConfig{Path: "admin"},
			},
			wantErr: true,
		},
		{
			name: "frontend port out of range",
			cfg: Config{
				App:      AppConfig{Name: "myapp"},
				Frontend: FrontendConfig{Port: 70000},
			},
			wantErr: true,
		},
		{
			name: "backend port out of range",
			cfg: Config{
				App:     AppConfig{Name: "myapp"},
				Backend: BackendConfig{Port: -1},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{App: AppConfig{Name: "myapp"}}
	cfg.applyDefaults()

	if cfg.App.Module != "myapp.myapp" {
		t.Errorf("applyDefaults() module = %q, want %q", cfg.App.Module, "myapp.myapp")
	}
	if want := filepath.FromSlash("myapp/myapp.py"); cfg.App.ModuleFile != want {
		t.Errorf("applyDefaults() module file = %q, want %q", cfg.App.ModuleFile, want)
	}
	if cfg.App.Instance != "app" {
		t.Errorf("applyDefaults() instance = %q, want %q", cfg.App.Instance, "app")
	}
	if cfg.Paths.WebDir != ".web" {
		t.Errorf("applyDefaults() web dir = %q, want %q", cfg.Paths.WebDir, ".web")
	}
	if cfg.Frontend.Port != 3000 || cfg.Backend.Port != 8000 {
		t.Errorf("applyDefaults() ports = %d/%d, want 3000/8000", cfg.Frontend.Port, cfg.Backend.Port)
	}
	if cfg.Backend.Host != "0.0.0.0" {
		t.Errorf("applyDefaults() backend host = %q, want 0.0.0.0", cfg.Backend.Host)
	}
	if cfg.Backend.MaxRequests != 120 || cfg.Backend.MaxRequestsJitter != 25 {
		t.Errorf("applyDefaults() max requests = %d/%d, want 120/25",
			cfg.Backend.MaxRequests, cfg.Backend.MaxRequestsJitter)
	}

	// Explicit values must not be overwritten
	cfg2 := Config{
		App:   AppConfig{Name: "myapp", Module: "custom.entry", Instance: "application"},
		Paths: PathsConfig{WebDir: "frontend"},
	}
	cfg2.applyDefaults()

	if cfg2.App.Module != "custom.entry" {
		t.Errorf("applyDefaults() overwrote explicit module, got %q", cfg2.App.Module)
	}
	if want := filepath.FromSlash("custom/entry.py"); cfg2.App.ModuleFile != want {
		t.Errorf("applyDefaults() module file = %q, want %q", cfg2.App.ModuleFile, want)
	}
	if cfg2.Paths.WebDir != "frontend" {
		t.Errorf("applyDefaults() overwrote explicit web dir, got %q", cfg2.Paths.WebDir)
	}
}

func TestConfigHelpers(t *testing.T) {
	cfg := Config{
		App:   AppConfig{Module: "myapp.myapp", ModuleFile: "myapp/myapp.py", Instance: "app"},
		Paths: PathsConfig{WebDir: ".web"},
	}

	if got, want := cfg.ManifestPath(), filepath.Join(".web", "package.json"); got != want {
		t.Errorf("ManifestPath() = %s, want %s", got, want)
	}
	if got, want := cfg.NoCompileFile(), filepath.Join(".web", ".nocompile"); got != want {
		t.Errorf("NoCompileFile() = %s, want %s", got, want)
	}
	if got := cfg.Target(); got != "myapp.myapp:app" {
		t.Errorf("Target() = %s, want myapp.myapp:app", got)
	}
	if got := cfg.TargetFile(); got != "myapp/myapp.py:app" {
		t.Errorf("TargetFile() = %s, want myapp/myapp.py:app", got)
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("DEVRUN_TEST_APP", "expanded")

	cfg := Config{
		App: AppConfig{
			Name:   "${DEVRUN_TEST_APP}",
			Module: "${DEVRUN_TEST_APP}.entry",
		},
		Paths:    PathsConfig{WebDir: "${DEVRUN_TEST_APP}/.web"},
		Frontend: FrontendConfig{Path: "/${DEVRUN_TEST_APP}"},
		Backend:  BackendConfig{Host: "${DEVRUN_TEST_APP}.local"},
	}

	cfg.expandEnv()

	checks := []struct {
		name string
		got  string
		want string
	}{
		{"App.Name", cfg.App.Name, "expanded"},
		{"App.Module", cfg.App.Module, "expanded.entry"},
		{"Paths.WebDir", cfg.Paths.WebDir, "expanded/.web"},
		{"Frontend.Path", cfg.Frontend.Path, "/expanded"},
		{"Backend.Host", cfg.Backend.Host, "expanded.local"},
	}

	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("expandEnv() %s = %s, want %s", c.name, c.got, c.want)
		}
	}
}
