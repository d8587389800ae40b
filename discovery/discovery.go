// Package discovery scans a directory for scope config files and keeps the
// registry's local scope catalog in sync with what's on disk, optionally
// watching for changes with fsnotify.
package discovery

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/arin-halvorsen/scoped/config"
	"github.com/arin-halvorsen/scoped/errs"
	"github.com/arin-halvorsen/scoped/registry"
)

const scopeFileGlob = "*.scope"

// Registrar is the subset of *registry.Registry the discovery scan drives.
type Registrar interface {
	AddLocalScope(meta registry.ScopeMetadata, execArgv []string, scopeConfigFile string) error
	RemoveLocalScope(scopeID string) bool
}

// Scan finds every *.scope file directly under dir and registers it on reg.
// A file that fails to parse is logged and skipped rather than aborting the
// whole scan, so one malformed scope file never blocks the rest from
// loading.
func Scan(dir string, reg Registrar, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}

	matches, err := filepath.Glob(filepath.Join(dir, scopeFileGlob))
	if err != nil {
		return fmt.Errorf("discovery: scan %s: %w: %v", dir, errs.ErrResourceError, err)
	}

	for _, path := range matches {
		if err := registerScopeFile(path, reg); err != nil {
			log.Warn("discovery: skipping malformed scope file", "path", path, "error", err)
		}
	}
	return nil
}

func registerScopeFile(path string, reg Registrar) error {
	cfg, err := config.LoadScopeFile(path)
	if err != nil {
		return err
	}
	meta := registry.ScopeMetadata{
		ScopeID:     cfg.ScopeID,
		DisplayName: cfg.DisplayName,
		Description: cfg.Description,
		Icon:        cfg.Icon,
		Art:         cfg.Art,
		SearchHint:  cfg.SearchHint,
		HotKey:      cfg.HotKey,
	}
	return reg.AddLocalScope(meta, cfg.Exec, path)
}
