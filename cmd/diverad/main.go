package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/N1c093/diverad/internal/api"
	"github.com/N1c093/diverad/internal/cache"
	"github.com/N1c093/diverad/internal/config"
	"github.com/N1c093/diverad/internal/divera"
	"github.com/N1c093/diverad/internal/health"
	dlog "github.com/N1c093/diverad/internal/log"
	"github.com/N1c093/diverad/internal/monitorfile"
	"github.com/N1c093/diverad/internal/poll"
	"github.com/N1c093/diverad/internal/store"
	"github.com/N1c093/diverad/internal/version"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("diverad %s (commit: %s, built: %s)\n", version.Version, version.Commit, version.BuildDate)
		os.Exit(0)
	}

	// Safe defaults until the real configuration is loaded.
	dlog.Configure(dlog.Config{
		Level:   "info",
		Service: "diverad",
		Version: version.Version,
	})
	logger := dlog.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Explicit --config wins; otherwise pick up ${DIVERAD_DATA}/config.yaml
	// when it exists.
	effectiveConfigPath := strings.TrimSpace(*configPath)
	if effectiveConfigPath == "" {
		dataDir := strings.TrimSpace(config.ParseString("DIVERAD_DATA", config.DefaultDataDir))
		autoPath := filepath.Join(dataDir, "config.yaml")
		if _, err := os.Stat(autoPath); err == nil {
			effectiveConfigPath = autoPath
		}
	}

	loader := config.NewLoader(effectiveConfigPath)
	cfg, err := loader.Load()
	if err != nil {
		logger.Fatal().
			Err(err).
			Str(dlog.FieldEvent, "config.load_failed").
			Str("config_path", effectiveConfigPath).
			Msg("failed to load configuration")
	}

	dlog.Configure(dlog.Config{
		Level:   cfg.LogLevel,
		Service: cfg.LogService,
		Version: version.Version,
	})

	logger.Info().
		Str(dlog.FieldEvent, "startup").
		Str("version", version.Version).
		Str("commit", version.Commit).
		Str("addr", cfg.ListenAddr).
		Msg("starting diverad")
	logger.Info().Msgf("→ Divera: %s (%d unit(s) configured)", cfg.BaseURL, len(cfg.UCRIDs))
	logger.Info().Msgf("→ Scan interval: %s", cfg.ScanInterval)
	logger.Info().Msgf("→ Data dir: %s", cfg.DataDir)
	if cfg.APIToken != "" {
		logger.Info().Msg("→ API token: configured")
	} else {
		logger.Warn().Msg("→ API token: NOT configured, mutating routes are open. Set DIVERAD_API_TOKEN.")
	}

	if err := run(ctx, cfg, loader, effectiveConfigPath); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("daemon exited with error")
	}
	logger.Info().Str(dlog.FieldEvent, "shutdown.complete").Msg("shutdown complete")
}

func run(ctx context.Context, cfg config.AppConfig, loader *config.Loader, configPath string) error {
	logger := dlog.WithComponent("daemon")

	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	arch, err := store.Open(cfg.SQLitePath, store.DefaultSQLiteConfig())
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer func() { _ = arch.Close() }()

	if problems, err := store.VerifyIntegrity(cfg.SQLitePath); err != nil {
		logger.Warn().Err(err).Msg("archive integrity check failed to run")
	} else if len(problems) > 0 {
		logger.Warn().Strs("problems", problems).Msg("archive integrity check reported problems")
	}

	respCache := buildCache(cfg)
	defer func() { _ = respCache.Close() }()

	// Discover the active unit when none is configured explicitly.
	ucrIDs := cfg.UCRIDs
	if len(ucrIDs) == 0 {
		discovered, err := poll.DiscoverUCRs(ctx, divera.New(cfg.BaseURL, cfg.AccessKey))
		if err != nil {
			return fmt.Errorf("unit discovery: %w", err)
		}
		ucrIDs = discovered
	}

	manager := poll.NewManager(ucrIDs,
		func(ucrID int) poll.Client {
			return divera.New(cfg.BaseURL, cfg.AccessKey, divera.WithUCR(ucrID))
		},
		cfg.ScanInterval,
		poll.WithArchiver(arch),
		poll.WithMonitorWriter(monitorfile.New(cfg.DataDir)),
	)

	healthMgr := health.NewManager(version.Version)
	healthMgr.RegisterChecker(health.NewPollChecker(
		manager.Ready,
		manager.UCRs,
		func(ucrID int) time.Time { return manager.Coordinator(ucrID).LastSuccess() },
		3*cfg.ScanInterval,
	))
	healthMgr.RegisterChecker(health.NewStoreChecker(arch))

	holder := config.NewHolder(cfg, loader, configPath)
	servIncludesMetrics := cfg.MetricsAddr == ""
	server := api.New(holder, manager,
		api.WithHistory(arch),
		api.WithCache(respCache),
		api.WithHealthManager(healthMgr),
	)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.Router(servIncludesMetrics),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return manager.Run(ctx) })

	if configPath != "" {
		g.Go(func() error { return holder.Watch(ctx) })
	}
	g.Go(func() error { return reloadOnSIGHUP(ctx, holder) })

	// Apply reloaded configuration where it can take effect live.
	updates := make(chan config.AppConfig, 1)
	holder.Subscribe(updates)
	g.Go(func() error { return applyConfigUpdates(ctx, cfg, updates, manager) })

	g.Go(func() error {
		logger.Info().Str(dlog.FieldEvent, "api.listen").Str("addr", cfg.ListenAddr).Msg("API listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			logger.Info().Str(dlog.FieldEvent, "metrics.listen").Str("addr", cfg.MetricsAddr).Msg("metrics listening")
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	// Graceful shutdown once the context is cancelled.
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		logger.Info().Str(dlog.FieldEvent, "shutdown.begin").Msg("shutting down")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("api shutdown failed")
		}
		if metricsServer != nil {
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				logger.Warn().Err(err).Msg("metrics shutdown failed")
			}
		}
		return ctx.Err()
	})

	return g.Wait()
}

func buildCache(cfg config.AppConfig) cache.Cache {
	logger := dlog.WithComponent("cache")
	if cfg.RedisAddr == "" {
		return cache.NewMemoryCache(time.Minute)
	}
	rc, err := cache.NewRedisCache(cache.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, logger)
	if err != nil {
		logger.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unavailable, using in-memory cache")
		return cache.NewMemoryCache(time.Minute)
	}
	logger.Info().Str("addr", cfg.RedisAddr).Msg("using redis cache")
	return rc
}

// applyConfigUpdates reacts to reloaded configuration. Scan interval, log
// level and API token take effect live; fields baked into running
// components (access key, base URL, UCR set, listen addrs) need a restart
// and are called out when they change.
func applyConfigUpdates(ctx context.Context, prev config.AppConfig, updates <-chan config.AppConfig, manager *poll.Manager) error {
	logger := dlog.WithComponent("daemon")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case next := <-updates:
			if next.ScanInterval != prev.ScanInterval {
				manager.SetInterval(next.ScanInterval)
				logger.Info().
					Str(dlog.FieldEvent, "config.applied").
					Dur("scan_interval", next.ScanInterval).
					Msg("scan interval updated")
			}
			if next.LogLevel != prev.LogLevel || next.LogService != prev.LogService {
				dlog.Configure(dlog.Config{
					Level:   next.LogLevel,
					Service: next.LogService,
					Version: version.Version,
				})
				logger.Info().
					Str(dlog.FieldEvent, "config.applied").
					Str("log_level", next.LogLevel).
					Msg("log configuration updated")
			}
			if next.AccessKey != prev.AccessKey || next.BaseURL != prev.BaseURL ||
				!equalInts(next.UCRIDs, prev.UCRIDs) ||
				next.ListenAddr != prev.ListenAddr || next.MetricsAddr != prev.MetricsAddr {
				logger.Warn().
					Str(dlog.FieldEvent, "config.restart_required").
					Msg("changed upstream/listener settings take effect after a restart")
			}
			prev = next
		}
	}
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// reloadOnSIGHUP reloads the configuration when the process receives SIGHUP.
func reloadOnSIGHUP(ctx context.Context, holder *config.Holder) error {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	logger := dlog.WithComponent("daemon")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-hup:
			logger.Info().Str(dlog.FieldEvent, "config.sighup").Msg("SIGHUP received, reloading configuration")
			if err := holder.Reload(ctx); err != nil {
				logger.Error().Err(err).Msg("config reload failed, keeping previous configuration")
			}
		}
	}
}
