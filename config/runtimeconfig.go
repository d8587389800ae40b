// Package config loads the two on-disk configuration shapes the runtime
// consumes: the process-wide RuntimeConfig (environment-variable driven,
// the way testcontainers-moby-ryuk/config.go loads its reaper config via
// caarlos0/env) and the per-scope ScopeConfig (a strict JSON file).
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/arin-halvorsen/scoped/errs"
)

// disabledInterval is the sentinel value meaning "reap/expiry disabled".
const disabledInterval = -1 * time.Second

const minLogFileSize = 1024

// RegistryConfig names the local registry and where its runtime config
// file lives on disk.
type RegistryConfig struct {
	Identity   string `json:"identity" env:"IDENTITY"`
	ConfigFile string `json:"config_file" env:"CONFIG_FILE"`
}

// DefaultConfig names the default message-transport middleware.
type DefaultConfig struct {
	Middleware string `json:"middleware" env:"MIDDLEWARE" envDefault:"inproc"`
}

// ReapConfig carries the reaper's two tunables. Either may be the sentinel
// -1 to disable reaping entirely.
type ReapConfig struct {
	Expiry   time.Duration `json:"expiry" env:"EXPIRY" envDefault:"30s"`
	Interval time.Duration `json:"interval" env:"INTERVAL" envDefault:"5s"`
}

// RuntimeConfig is the full key set a scoperegistryd process loads at
// startup: registry identity, transport middleware selection, reaper
// tuning, and the handful of directories/log limits the teacher's
// DefaultRigDir convention generalises to this domain.
type RuntimeConfig struct {
	Registry             RegistryConfig `json:"registry" envPrefix:"SCOPED_REGISTRY_"`
	Default              DefaultConfig  `json:"default" envPrefix:"SCOPED_DEFAULT_"`
	MiddlewareConfigFile string         `json:"middleware_config_file" env:"SCOPED_MIDDLEWARE_CONFIG_FILE"`
	Reap                 ReapConfig     `json:"reap" envPrefix:"SCOPED_REAP_"`

	CacheDir  string `json:"cache_dir" env:"SCOPED_CACHE_DIR"`
	AppDir    string `json:"app_dir" env:"SCOPED_APP_DIR"`
	ConfigDir string `json:"config_dir" env:"SCOPED_CONFIG_DIR"`
	LogDir    string `json:"log_dir" env:"SCOPED_LOG_DIR"`

	MaxLogFileSize int64 `json:"max_log_file_size" env:"SCOPED_MAX_LOG_FILE_SIZE" envDefault:"1048576"`
	MaxLogDirSize  int64 `json:"max_log_dir_size" env:"SCOPED_MAX_LOG_DIR_SIZE" envDefault:"10485760"`
}

// Load reads path (a JSON file, if non-empty) as a base RuntimeConfig, then
// layers environment variables on top the way caarlos0/env.Parse overrides
// whatever's already on the struct, and finally validates the result.
func Load(path string) (RuntimeConfig, error) {
	var cfg RuntimeConfig

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return RuntimeConfig{}, fmt.Errorf("config: load runtime config %s: %w: %v", path, errs.ErrResourceError, err)
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return RuntimeConfig{}, fmt.Errorf("config: parse runtime config %s: %w: %v", path, errs.ErrInvalidArgument, err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return RuntimeConfig{}, fmt.Errorf("config: parse runtime config env: %w: %v", errs.ErrInvalidArgument, err)
	}

	if err := cfg.validate(); err != nil {
		return RuntimeConfig{}, err
	}
	return cfg, nil
}

// DefaultDir resolves dir if set, else falls back to a subdirectory of
// $HOME, mirroring the teacher's DefaultRigDir convention: absence of
// $HOME is a hard error only when a default is actually needed.
func DefaultDir(dir, subdir string) (string, error) {
	if dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "", fmt.Errorf("config: resolve default dir %s: %w: $HOME is not set", subdir, errs.ErrResourceError)
	}
	return home + "/.scoped/" + subdir, nil
}

func (c RuntimeConfig) validate() error {
	if err := validateInterval("reap.expiry", c.Reap.Expiry); err != nil {
		return err
	}
	if err := validateInterval("reap.interval", c.Reap.Interval); err != nil {
		return err
	}
	if c.MaxLogFileSize < minLogFileSize {
		return fmt.Errorf("config: validate runtime config: %w: max_log_file_size must be >= %d", errs.ErrInvalidArgument, minLogFileSize)
	}
	if c.MaxLogDirSize <= c.MaxLogFileSize {
		return fmt.Errorf("config: validate runtime config: %w: max_log_dir_size must exceed max_log_file_size", errs.ErrInvalidArgument)
	}
	return nil
}

func validateInterval(name string, d time.Duration) error {
	if d == disabledInterval {
		return nil
	}
	if d <= 0 {
		return fmt.Errorf("config: validate runtime config: %w: %s must be positive or -1s to disable", errs.ErrInvalidArgument, name)
	}
	return nil
}
