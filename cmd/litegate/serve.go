package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tonlite/litegate/pkg/api"
	"github.com/tonlite/litegate/pkg/cache"
	"github.com/tonlite/litegate/pkg/config"
	"github.com/tonlite/litegate/pkg/lite"
	"github.com/tonlite/litegate/pkg/log"
	"github.com/tonlite/litegate/pkg/manager"
	"github.com/tonlite/litegate/pkg/types"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gateway: spawn one worker per liteserver and serve HTTP",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("config", "", "Path to a YAML settings file (optional; env vars and defaults still apply)")
	serveCmd.Flags().String("listen-addr", "", "Override the configured HTTP listen address")
}

func runServe(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	listenOverride, _ := cmd.Flags().GetString("listen-addr")

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	if listenOverride != "" {
		cfg.ListenAddr = listenOverride
	}

	logger := log.WithComponent("serve")

	liteservers, err := config.LoadLiteservers(cfg.LiteserverConfigPath)
	if err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	if len(liteservers) == 0 {
		return fmt.Errorf("serve: liteserver config %s lists no liteservers", cfg.LiteserverConfigPath)
	}
	for i := range liteservers {
		if liteservers[i].ParallelReqs == 0 {
			liteservers[i].ParallelReqs = cfg.ParallelRequests
		}
	}
	logger.Info().Int("count", len(liteservers)).Str("source", cfg.LiteserverConfigPath).Msg("loaded liteserver list")

	backend, closeBackend, err := newCacheBackend(cfg.Cache)
	if err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	if closeBackend != nil {
		defer closeBackend()
	}
	var gatewayCache *cache.Cache
	if cfg.Cache.Enabled {
		gatewayCache = cache.New(backend)
	}

	mgr := manager.New(manager.Options{
		Liteservers:           liteservers,
		NewCapability:         newCapabilityFactory(),
		QueueSize:             cfg.ParallelRequests,
		RequestTimeout:        cfg.RequestTimeout,
		Cache:                 gatewayCache,
		StrictMessageDecoding: cfg.StrictMessageDecoding,
		RestartThreshold:      cfg.RestartThreshold,
		QuarantineWindow:      cfg.QuarantineWindow,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mgr.Start(ctx)
	defer mgr.Shutdown()

	server := api.NewServer(mgr)
	logger.Info().Str("addr", cfg.ListenAddr).Msg("listening")
	if err := server.Start(ctx, cfg.ListenAddr); err != nil {
		return fmt.Errorf("serve: http server: %w", err)
	}
	return nil
}

// newCacheBackend builds the cache.Backend the configured backend names,
// matching setup_cache's Disabled/Redis choice.
func newCacheBackend(cfg config.CacheConfig) (cache.Backend, func(), error) {
	if !cfg.Enabled {
		return nil, nil, nil
	}
	switch cfg.Backend {
	case config.CacheRedis:
		r := cache.NewRedis(cfg.Redis.Endpoint, cfg.Redis.Port, cfg.Redis.Timeout)
		return r, func() { _ = r.Close() }, nil
	case config.CacheDisabled, "":
		return cache.NewMemory(), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

// newCapabilityFactory returns the worker pool's native capability
// constructor. No ADNL/liteserver wire-protocol client exists anywhere in
// the retrieval pack this gateway was built from, so workers run against
// the deterministic in-memory stub that otherwise only backs tests — it
// satisfies the same lite.Capability interface a real client would, which
// is the whole point of the interface. Swapping in a genuine TL/ADNL
// client only requires a new implementation of that interface here.
func newCapabilityFactory() func(types.LiteserverConfig) (lite.Capability, error) {
	return func(cfg types.LiteserverConfig) (lite.Capability, error) {
		return lite.NewMock(1, cfg.ArchivalHint), nil
	}
}
