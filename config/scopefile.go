package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/arin-halvorsen/scoped/errs"
)

// ScopeConfig is the on-disk schema of a single ".scope" file: everything
// the registry needs to register a scope and spawn its worker process.
type ScopeConfig struct {
	ScopeID      string `json:"scope_id"`
	DisplayName  string `json:"display_name"`
	Description  string `json:"description"`
	Icon         string `json:"icon,omitempty"`
	Art          string `json:"art,omitempty"`
	SearchHint   string `json:"search_hint,omitempty"`
	HotKey       string `json:"hot_key,omitempty"`
	Overrideable bool   `json:"overrideable,omitempty"`

	// Exec is the scope worker's argv[0] plus any fixed arguments. The
	// registry appends the runtime config file and this scope's own
	// config file path before spawning, per the child-process spawn
	// contract.
	Exec []string `json:"exec"`
}

// LoadScopeFile reads and validates a scope config file at path. Unknown
// top-level keys are rejected, matching the distilled spec's strictness;
// missing required keys (scope_id, display_name, description, exec) are
// likewise rejected.
func LoadScopeFile(path string) (ScopeConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ScopeConfig{}, fmt.Errorf("config: load scope file %s: %w: %v", path, errs.ErrResourceError, err)
	}
	return ParseScopeFile(data)
}

// ParseScopeFile validates and decodes a scope config file's contents.
func ParseScopeFile(data []byte) (ScopeConfig, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var cfg ScopeConfig
	if err := dec.Decode(&cfg); err != nil {
		return ScopeConfig{}, fmt.Errorf("config: parse scope file: %w: %v", errs.ErrInvalidArgument, err)
	}

	if cfg.ScopeID == "" {
		return ScopeConfig{}, fmt.Errorf("config: parse scope file: %w: missing scope_id", errs.ErrInvalidArgument)
	}
	if cfg.DisplayName == "" {
		return ScopeConfig{}, fmt.Errorf("config: parse scope file: %w: missing display_name", errs.ErrInvalidArgument)
	}
	if cfg.Description == "" {
		return ScopeConfig{}, fmt.Errorf("config: parse scope file: %w: missing description", errs.ErrInvalidArgument)
	}
	if len(cfg.Exec) == 0 {
		return ScopeConfig{}, fmt.Errorf("config: parse scope file: %w: missing exec", errs.ErrInvalidArgument)
	}
	return cfg, nil
}
