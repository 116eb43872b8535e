// CaseSync - UAT Case Tracker and CRM Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/casesync

// Command casesync runs one synchronization pass for every active company
// and exits.
//
// Usage:
//
//	casesync                    incremental pass for every active company
//	casesync --full-sync        pull every remote case instead of recent changes
//	casesync --test-connection  only check CRM connectivity
//	casesync --company 3        limit to one company
//	casesync token --subject ops
//
// The exit status is 1 when any company's pass or connection check failed.
// Configuration is read the same way as the server (config.yaml plus
// environment variables).
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/tomtom215/casesync/internal/api"
	"github.com/tomtom215/casesync/internal/app"
	"github.com/tomtom215/casesync/internal/config"
	"github.com/tomtom215/casesync/internal/logging"
	"github.com/tomtom215/casesync/internal/models"
	syncpkg "github.com/tomtom215/casesync/internal/sync"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd := &cli.Command{
		Name:  "casesync",
		Usage: "Synchronize UAT cases with the Creatio CRM",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "test-connection", Usage: "check CRM connectivity for each company and exit"},
			&cli.BoolFlag{Name: "full-sync", Usage: "pull every remote case instead of changes since the last sync"},
			&cli.Int64Flag{Name: "company", Usage: "limit to one company id"},
		},
		Commands: []*cli.Command{tokenCommand()},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return run(ctx, os.Stdout, options{
				testConnection: cmd.Bool("test-connection"),
				fullSync:       cmd.Bool("full-sync"),
				companyID:      cmd.Int64("company"),
			})
		},
	}

	if err := cmd.Run(ctx, os.Args); err != nil {
		logging.Error().Err(err).Msg("casesync failed")
		os.Exit(1)
	}
}

type options struct {
	testConnection bool
	fullSync       bool
	companyID      int64
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
		Service:   "casesync",
		Output:    os.Stderr,
	})
	return cfg, nil
}

func run(ctx context.Context, out io.Writer, opts options) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	rt, err := app.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing runtime")
		}
	}()

	companies, err := selectCompanies(ctx, rt, opts.companyID)
	if err != nil {
		return err
	}
	if len(companies) == 0 {
		fmt.Fprintln(out, "No active companies")
		return nil
	}

	failed := 0
	if opts.testConnection {
		for _, c := range companies {
			res := rt.Manager.TestConnection(ctx, c.ID)
			fmt.Fprintln(out, formatProbe(c, res.OK, res.Message))
			if !res.OK {
				failed++
			}
		}
		return exitStatus(failed, len(companies), "connection check")
	}

	mode := syncpkg.ModeIncremental
	if opts.fullSync {
		mode = syncpkg.ModeFull
	}
	for _, c := range companies {
		if err := ctx.Err(); err != nil {
			return err
		}
		res, err := rt.Manager.RunPass(ctx, c.ID, mode)
		fmt.Fprintln(out, formatPass(c, res, err))
		if err != nil || (res != nil && res.Failed > 0) {
			failed++
		}
	}
	return exitStatus(failed, len(companies), "sync pass")
}

// selectCompanies returns the requested company, or every active one.
func selectCompanies(ctx context.Context, rt *app.Runtime, companyID int64) ([]models.Company, error) {
	if companyID > 0 {
		c, err := rt.Store.GetCompany(ctx, companyID)
		if err != nil {
			return nil, fmt.Errorf("company %d: %w", companyID, err)
		}
		return []models.Company{*c}, nil
	}
	return rt.Store.ListActiveCompanies(ctx)
}

func exitStatus(failed, total int, what string) error {
	if failed == 0 {
		return nil
	}
	return cli.Exit(fmt.Sprintf("%d of %d companies failed the %s", failed, total, what), 1)
}

func tokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "Issue an operator bearer token for the HTTP API",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "subject", Value: "operator", Usage: "token subject"},
			&cli.DurationFlag{Name: "ttl", Value: 24 * time.Hour, Usage: "token lifetime"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			m, err := api.NewJWTManager(cfg.Security.JWTSecret, cmd.Duration("ttl"))
			if err != nil {
				return err
			}
			token, err := m.GenerateToken(cmd.String("subject"))
			if err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout, token)
			return nil
		},
	}
}
