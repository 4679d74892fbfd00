package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"keyrelay/internal/cli"
	"keyrelay/internal/config"
	"keyrelay/internal/domain"
	"keyrelay/internal/gateway"
	"keyrelay/internal/ledger"
	"keyrelay/internal/llm"
	"keyrelay/internal/relay"
	"keyrelay/internal/scheduler"
	"keyrelay/internal/secrets"
	"keyrelay/internal/security"
)

// runDaemon serves the gateway until shutdown. If shutdownCh is non-nil, it
// returns when shutdownCh is closed (for tests). Otherwise it blocks on OS signals.
func runDaemon(cmd *cobra.Command, src cli.ConfigSource, shutdownCh <-chan struct{}) error {
	euidGetter := security.EffectiveUIDGetter()
	if daemonEUIDGetter != nil {
		euidGetter = daemonEUIDGetter
	}
	asRoot, err := security.RootPolicyFromEnv(euidGetter, src.Env).Check()
	if err != nil {
		return err
	}

	cfgPath := src.ConfigPath()
	cfg, found, err := src.Load()
	if err != nil {
		return err
	}
	logger := cli.NewLogger(cfg.Infra, daemonLogWriter)
	slog.SetDefault(logger)
	logger.Info("keyrelay starting", "version", getVersion(), "config", cfgPath, "configFound", found)
	if asRoot {
		logger.Warn("running as root", "override", security.AllowRootEnv)
	}

	var getSecret llm.SecretGetter
	if store, err := daemonOpenSecrets(); err != nil {
		logger.Warn("secrets store unavailable; keys must come from config or environment", "error", err)
	} else {
		getSecret = secrets.Lookup(store)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	rec, err := ledger.Open(ctx, cfg.Ledger)
	if err != nil {
		logger.Warn("quarantine ledger unavailable; recording in memory", "driver", cfg.Ledger.Driver, "error", err)
		rec = ledger.NewMemoryLedger(cfg.Ledger.MaxLen)
	}
	defer rec.Close()

	opts := relay.Options{Logger: logger, Ledger: rec}
	r, err := relay.Build(cfg, getSecret, opts)
	if err != nil {
		return err
	}
	holder := relay.NewHolder(r, logger)
	defer func() { _ = holder.Load().Close() }()

	if cfg.StatusSchedule != "" {
		sched := scheduler.NewScheduler(scheduler.NewRobfigCronEngine(), scheduler.WithLogger(logger))
		if err := sched.Add(scheduler.StatusReport(cfg.StatusSchedule, holder, logger)); err != nil {
			logger.Error("status reports disabled", "schedule", cfg.StatusSchedule, "error", err)
		} else {
			sched.Start()
			defer sched.Stop()
		}
	}

	rebuild := func(next *domain.Config) {
		src.ApplyEnv(next)
		_ = holder.Rebuild(next, getSecret, opts)
	}
	if found {
		watcher := config.NewWatcher(cfgPath, logger)
		if err := watcher.Start(rebuild); err != nil {
			logger.Warn("config watcher not started; reload with SIGHUP", "error", err)
		} else {
			defer watcher.Stop()
		}
	}

	reloadCh, stopReload := daemonReloadCh, func() {}
	if reloadCh == nil {
		reloadCh, stopReload = daemonNotifyReload()
	}
	defer stopReload()
	reloadDone := make(chan struct{})
	defer close(reloadDone)
	go func() {
		for {
			select {
			case <-reloadCh:
				next, _, err := src.Load()
				if err != nil {
					logger.Error("config reload failed; keeping current key pool", "error", err)
					continue
				}
				_ = holder.Rebuild(next, getSecret, opts)
			case <-reloadDone:
				return
			}
		}
	}()

	srv, err := gateway.NewServer(&cfg.Gateway, holder, logger)
	if err != nil {
		return fmt.Errorf("gateway: %w", err)
	}
	gatewayShutdown := make(chan struct{})
	runDone := make(chan error, 1)
	go func() {
		runDone <- srv.Run(gatewayShutdown)
	}()
	// Wait until the server has bound so "ready" means clients can connect.
	var bound string
	for i := 0; i < daemonBindWaitIterations; i++ {
		if a := srv.Addr(); a != "" {
			bound = a
			break
		}
		if srv.ListenErr() != nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if bound == "" {
		close(gatewayShutdown)
		if err := srv.ListenErr(); err != nil {
			return fmt.Errorf("gateway failed to bind: %w", err)
		}
		return fmt.Errorf("gateway failed to bind port %d (check port or permissions)", cfg.Gateway.Port)
	}
	logger.Info("ready", "addr", bound, "keys", holder.Status().Total)
	if daemonOnReady != nil {
		daemonOnReady(bound)
	}

	if shutdownCh != nil {
		<-shutdownCh
	} else {
		daemonWaitForShutdown()
	}
	logger.Info("shutting down")
	close(gatewayShutdown)
	if err := <-runDone; err != nil {
		logger.Error("gateway shutdown", "error", err)
	}
	return nil
}

// daemonShutdownCh is set by tests to unblock runDaemon without signals. Production leaves it nil.
var daemonShutdownCh <-chan struct{}

// daemonEUIDGetter is set by tests to avoid RequireNonRoot failing when test runs as root. Production leaves it nil.
var daemonEUIDGetter func() int

// daemonWaitForShutdown and daemonNotifyReload are set by init in main_signal*.go.
var (
	daemonWaitForShutdown func()
	daemonNotifyReload    func() (<-chan struct{}, func())
)

// daemonReloadCh is set by tests to trigger a reload without SIGHUP. Production leaves it nil.
var daemonReloadCh <-chan struct{}

// daemonOpenSecrets opens the store consulted when the config names no keys; tests replace it.
var daemonOpenSecrets = secrets.DefaultStore

// daemonLogWriter receives the daemon's structured logs.
var daemonLogWriter io.Writer = os.Stderr

// daemonOnReady is called with the bound gateway address once the daemon serves. Tests set it.
var daemonOnReady func(addr string)

// daemonBindWaitIterations is the max loop count waiting for the gateway to bind.
var daemonBindWaitIterations = 50
