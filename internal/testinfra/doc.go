// CaseSync - UAT Case Tracker and CRM Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/casesync

// Package testinfra starts throwaway containers for integration tests.
//
// Everything here is behind the "integration" build tag and needs a
// Docker daemon; tests call SkipIfNoDocker first.
//
// # PostgreSQL
//
//	func TestStoreOnPostgres(t *testing.T) {
//	    testinfra.SkipIfNoDocker(t)
//	    ctx := context.Background()
//	    pg, err := testinfra.NewPostgresContainer(ctx)
//	    if err != nil {
//	        t.Fatal(err)
//	    }
//	    defer testinfra.CleanupContainer(t, ctx, pg)
//
//	    s, err := store.Open(ctx, config.DatabaseConfig{Driver: "postgres", DSN: pg.DSN})
//	    // ...
//	}
//
// # NATS
//
// NewNATSContainer starts a JetStream-enabled NATS server for the event
// publisher; its URL goes into events.nats_url.
//
// Run with:
//
//	go test -tags integration ./...
package testinfra
