// Copyright © 2026 PureBoot Contributors
//
// SPDX-License-Identifier: MIT

// Package storage is the relational persistence layer for the controller:
// nodes, device groups, state logs, events, health snapshots and alerts,
// backed by Postgres via sqlx/lib/pq. Open verifies connectivity with a
// bounded-timeout ping before handing back a usable Store.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Store is the Postgres-backed implementation of every persistence
// interface the core packages need: statemachine.NodeStore, bootengine.Store,
// ingest.Store, and health.Store.
type Store struct {
	db *sqlx.DB
}

// Open connects to Postgres at dsn and verifies connectivity with a ping.
// The returned Store must be closed by the caller.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	return &Store{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}
