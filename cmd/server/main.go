// CaseSync - UAT Case Tracker and CRM Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/casesync

// Package main is the entry point of the CaseSync server.
//
// The server runs two supervised layers:
//
//  1. Sync layer: scheduled incremental passes over every active company
//     (sync.schedule_interval, 0 disables scheduling)
//  2. API layer: the HTTP API for manual passes, per-case push and refresh,
//     connection checks, tenant CRM settings, health and metrics
//
// Services are restarted by the suture supervisor tree when they fail.
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest priority wins):
//   - Environment variables (CREATIO_BASE_URL, SYNC_PASS_TIMEOUT, JWT_SECRET, ...)
//   - Config file (CONFIG_PATH, ./config.yaml or /etc/casesync/config.yaml)
//   - Built-in defaults
//
// JWT_SECRET (32+ characters) is required; operator tokens are issued with
// "casesync token".
//
// # Signal Handling
//
// SIGINT and SIGTERM stop the tree: the HTTP server drains in-flight requests
// within server.shutdown_timeout and a running pass stops at its next case.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/tomtom215/casesync/internal/api"
	"github.com/tomtom215/casesync/internal/app"
	"github.com/tomtom215/casesync/internal/config"
	"github.com/tomtom215/casesync/internal/logging"
	"github.com/tomtom215/casesync/internal/supervisor"
	"github.com/tomtom215/casesync/internal/supervisor/services"
	syncpkg "github.com/tomtom215/casesync/internal/sync"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if err := cfg.ValidateServer(); err != nil {
		logging.Fatal().Err(err).Msg("Invalid server configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
		Service:   "casesync-server",
		Output:    os.Stderr,
	})
	logging.Info().Msg("Starting CaseSync with supervisor tree")

	if err := run(cfg); err != nil {
		logging.Fatal().Err(err).Msg("Server stopped with error")
	}
	logging.Info().Msg("Server stopped")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := app.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing runtime")
		}
	}()

	jwtManager, err := api.NewJWTManager(cfg.Security.JWTSecret, 0)
	if err != nil {
		return fmt.Errorf("initialize JWT manager: %w", err)
	}

	// A nil *CredentialEncryptor must stay a nil interface.
	var secrets api.SecretEncrypter
	if rt.Encryptor != nil {
		secrets = rt.Encryptor
	}
	handler := api.NewHandler(rt.Manager, rt.Store, secrets)
	router := api.NewRouter(handler, jwtManager, api.MiddlewareConfigFrom(cfg.Security))

	server := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	tree := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))
	logging.Info().Str("addr", server.Addr).Msg("HTTP API registered")

	if cfg.Sync.ScheduleInterval > 0 {
		tree.AddSyncService(services.NewSchedulerService("incremental-sync", cfg.Sync.ScheduleInterval, true,
			func(ctx context.Context) error {
				return runScheduledPasses(ctx, rt.Manager)
			}))
		logging.Info().Dur("interval", cfg.Sync.ScheduleInterval).Msg("Scheduled incremental sync registered")
	} else {
		logging.Info().Msg("Scheduled sync disabled (sync.schedule_interval = 0)")
	}

	errCh := tree.ServeBackground(ctx)

	var treeErr error
	select {
	case <-ctx.Done():
		logging.Info().Msg("Shutdown signal received, waiting for supervisor to finish")
		treeErr = <-errCh
	case treeErr = <-errCh:
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}
	if treeErr != nil && !errors.Is(treeErr, context.Canceled) {
		return fmt.Errorf("supervisor tree: %w", treeErr)
	}
	return nil
}

// runScheduledPasses runs an incremental pass for every active company.
// Per-company failures are logged by the manager; only a failure to list
// companies is returned.
func runScheduledPasses(ctx context.Context, mgr *syncpkg.Manager) error {
	passes, err := mgr.RunAll(ctx, syncpkg.ModeIncremental)
	if err != nil {
		return fmt.Errorf("scheduled sync: %w", err)
	}
	var synced, failed, errored int
	for _, p := range passes {
		if p.Err != nil {
			errored++
		}
		if p.Result != nil {
			synced += p.Result.Synced
			failed += p.Result.Failed
		}
	}
	logging.Ctx(ctx).Info().
		Int("companies", len(passes)).
		Int("companies_failed", errored).
		Int("synced", synced).
		Int("failed", failed).
		Msg("Scheduled sync completed")
	return nil
}
