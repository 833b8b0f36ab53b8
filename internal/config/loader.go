package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

var current atomic.Pointer[Config]

var (
	onReloadMu        sync.Mutex
	onReloadCallbacks []func(*Config)
)

// Get returns the current in-memory config (hot-reloaded when the file changes).
func Get() *Config { return current.Load() }

// Set sets the current in-memory config. Used at startup and by the file watcher.
func Set(c *Config) {
	if c != nil {
		current.Store(c)
	}
}

// RegisterOnReload registers a callback that runs after config is hot-reloaded.
func RegisterOnReload(fn func(*Config)) {
	onReloadMu.Lock()
	defer onReloadMu.Unlock()
	onReloadCallbacks = append(onReloadCallbacks, fn)
}

func notifyReload(cfg *Config) {
	onReloadMu.Lock()
	cb := make([]func(*Config), len(onReloadCallbacks))
	copy(cb, onReloadCallbacks)
	onReloadMu.Unlock()
	for _, fn := range cb {
		fn(cfg)
	}
}

//go:embed config.example.yaml
var exampleConfigBytes []byte

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := expandEnvVars(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyLoadDefaults(cfg)
	resolveRelativePaths(cfg, filepath.Dir(path))

	return cfg, nil
}

func applyLoadDefaults(cfg *Config) {
	if cfg.Gateway.Port <= 0 {
		cfg.Gateway.Port = 19700
	}
	if cfg.USSD.SessionTTL <= 0 {
		cfg.USSD.SessionTTL = Duration(120 * time.Second)
	}
	if cfg.USSD.SweepInterval <= 0 {
		cfg.USSD.SweepInterval = Duration(30 * time.Second)
	}
	if cfg.Outbox.MaxAttempts <= 0 {
		cfg.Outbox.MaxAttempts = 5
	}
	if cfg.Outbox.BackoffBase <= 0 {
		cfg.Outbox.BackoffBase = Duration(2 * time.Second)
	}
	if cfg.Outbox.BackoffCap <= 0 {
		cfg.Outbox.BackoffCap = Duration(2 * time.Minute)
	}
	if cfg.Outbox.DispatchInterval <= 0 {
		cfg.Outbox.DispatchInterval = Duration(time.Second)
	}
	if cfg.Data.Timeout <= 0 {
		cfg.Data.Timeout = Duration(400 * time.Millisecond)
	}
	if cfg.Transport.Timeout <= 0 {
		cfg.Transport.Timeout = Duration(5 * time.Second)
	}
	if cfg.Transport.Mode == "" {
		cfg.Transport.Mode = "log"
	}
}

func expandEnvVars(content string) string {
	return envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		varName := match[2 : len(match)-1]
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}

func resolveRelativePaths(cfg *Config, baseDir string) {
	if cfg.USSD.MenuPath != "" && !filepath.IsAbs(cfg.USSD.MenuPath) {
		cfg.USSD.MenuPath = filepath.Join(baseDir, cfg.USSD.MenuPath)
	}
}

// CreateFromExample writes the embedded config.example.yaml to targetPath.
func CreateFromExample(targetPath string) error {
	dir := filepath.Dir(targetPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(targetPath, exampleConfigBytes, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
