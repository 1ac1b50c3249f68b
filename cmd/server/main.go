// Command server runs the credential-pool proxy: the downstream HTTP
// surface, the dispatch engine over the upstream providers, and the
// background maintenance schedulers.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/tanaikit/pool2api/internal/api"
	"github.com/tanaikit/pool2api/internal/api/handlers"
	"github.com/tanaikit/pool2api/internal/auth/antigravity"
	"github.com/tanaikit/pool2api/internal/auth/kiro"
	"github.com/tanaikit/pool2api/internal/auth/orchids"
	"github.com/tanaikit/pool2api/internal/config"
	"github.com/tanaikit/pool2api/internal/constant"
	"github.com/tanaikit/pool2api/internal/executor"
	"github.com/tanaikit/pool2api/internal/logging"
	"github.com/tanaikit/pool2api/internal/pool"
	"github.com/tanaikit/pool2api/internal/quota"
	"github.com/tanaikit/pool2api/internal/registry"
	"github.com/tanaikit/pool2api/internal/scheduler"
	"github.com/tanaikit/pool2api/internal/store"
	"github.com/tanaikit/pool2api/internal/usage"
	"github.com/tanaikit/pool2api/internal/util"
)

const shutdownGrace = 15 * time.Second

func main() {
	var configFile string
	flag.StringVar(&configFile, "config", "config.yaml", "path to the configuration file")
	flag.Parse()

	logging.SetupBaseLogger()

	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	applyLogSettings(cfg)

	st, err := store.Open(cfg.Database.DSN())
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer func() { _ = st.Close() }()

	authClient := util.SetProxy(cfg.ProxyURL, &http.Client{Timeout: 30 * time.Second})
	antigravityRefresher := antigravity.NewTokenRefresher(authClient)
	antigravityRefresher.Onboard = antigravity.NewOnboarder(authClient)
	refreshers := map[string]pool.Refresher{
		constant.ProviderKiro:        kiro.NewTokenRefresher(authClient),
		constant.ProviderAntigravity: antigravityRefresher,
		constant.ProviderOrchids:     orchids.NewTokenRefresher(authClient),
		// The protobuf agent uses static tokens; no refresher.
	}
	refreshService := pool.NewRefreshService(refreshers, st)
	credentialPool := pool.New(refreshService, cfg.DisableCredentialLock)

	reg := registry.New()
	dispatcher := executor.NewDispatcher(credentialPool, st,
		executor.NewKiroExecutor(cfg.ProxyURL, reg),
		executor.NewAntigravityExecutor(cfg.ProxyURL, reg),
		executor.NewOrchidsExecutor(cfg.ProxyURL, reg),
		executor.NewAgentExecutor(cfg.ProxyURL, reg),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	usageManager := usage.NewManager(512)
	usageManager.Register(usage.NewDBLogger(st))
	stats, err := openStats()
	if err != nil {
		log.Fatalf("failed to open usage statistics: %v", err)
	}
	defer func() { _ = stats.Close() }()
	usageManager.Register(stats)
	usageManager.Start(ctx)
	defer usageManager.Stop()

	enforcer := quota.NewEnforcer(st)
	h := handlers.New(dispatcher, reg, usageManager)
	srv := api.NewServer(cfg, h, st, enforcer)
	srv.UsageStats(stats, st)

	sched := scheduler.New(st, credentialPool, refreshers, dispatcher,
		time.Duration(cfg.LogRetentionDays)*24*time.Hour)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		sched.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return config.Watch(gctx, configFile, func(updated *config.Config) {
			applyLogSettings(updated)
		})
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err = g.Wait(); err != nil {
		log.Errorf("server exited: %v", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

func applyLogSettings(cfg *config.Config) {
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}
	if err := logging.ConfigureLogOutput(cfg.RequestLog); err != nil {
		log.Warnf("failed to configure log output: %v", err)
	}
}

func openStats() (*usage.Stats, error) {
	if err := os.MkdirAll("data", 0o755); err != nil {
		return nil, err
	}
	return usage.OpenStats("data/usage_stats.db")
}
