// Command scoperegistryd runs a scoped registry as a standalone daemon: it
// loads runtime configuration, watches a directory of .scope files for
// local scopes to register, and serves the registry over the configured
// transport until it receives SIGINT or SIGTERM.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/arin-halvorsen/scoped/config"
	"github.com/arin-halvorsen/scoped/discovery"
	"github.com/arin-halvorsen/scoped/runtime"
)

func main() {
	identity := flag.String("identity", "registry", "registry identity, used to name its own transport endpoint")
	configFile := flag.String("config", "", "path to a runtime config JSON file (env vars always override)")
	addrFile := flag.String("addr-file", "", "path to atomically write the bound endpoint to (default <app-dir>/registry.addr)")
	flag.Parse()

	log := slog.Default()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "scoperegistryd: %v\n", err)
		os.Exit(1)
	}

	rt, err := runtime.Create(*identity, *configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "scoperegistryd: %v\n", err)
		os.Exit(1)
	}
	defer rt.Close()

	if *addrFile == "" {
		appDir, err := config.DefaultDir(cfg.AppDir, "run")
		if err != nil {
			fmt.Fprintf(os.Stderr, "scoperegistryd: %v\n", err)
			os.Exit(1)
		}
		if err := os.MkdirAll(appDir, 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "scoperegistryd: mkdir %s: %v\n", appDir, err)
			os.Exit(1)
		}
		*addrFile = filepath.Join(appDir, "registry.addr")
	}
	if err := writeAddrFile(*addrFile, rt.Endpoint().String()); err != nil {
		fmt.Fprintf(os.Stderr, "scoperegistryd: %v\n", err)
		os.Exit(1)
	}
	defer os.Remove(*addrFile)

	log.Info("scoperegistryd listening", "endpoint", rt.Endpoint().String())

	var watcher *discovery.Watcher
	if cfg.ConfigDir != "" {
		watcher, err = discovery.Bootstrap(cfg.ConfigDir, rt.Registry(), log)
		if err != nil {
			fmt.Fprintf(os.Stderr, "scoperegistryd: watch %s: %v\n", cfg.ConfigDir, err)
			os.Exit(1)
		}
		defer watcher.Close()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go watcher.Run(ctx)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("scoperegistryd received signal, shutting down", "signal", sig.String())
}

// writeAddrFile writes addr to path via a temp file plus rename, so a
// concurrent reader never observes a partially written address.
func writeAddrFile(path, addr string) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(addr), 0o644); err != nil {
		return fmt.Errorf("write addr file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename addr file: %w", err)
	}
	return nil
}
