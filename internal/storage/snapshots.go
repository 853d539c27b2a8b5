// Copyright © 2026 PureBoot Contributors
//
// SPDX-License-Identifier: MIT

package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/mrveiss/pureboot/pkg/node"
)

// InsertSnapshot records a periodic point-in-time health capture.
func (s *Store) InsertSnapshot(ctx context.Context, snap *node.NodeHealthSnapshot) error {
	if snap.ID == "" {
		snap.ID = newID()
	}
	now := time.Now()
	snap.CreatedAt, snap.UpdatedAt = now, now
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO node_health_snapshots (id, created_at, updated_at, node_id, time, health_status,
			health_score, seconds_since_seen, boot_count, install_attempts, ip)
		VALUES (:id, :created_at, :updated_at, :node_id, :time, :health_status,
			:health_score, :seconds_since_seen, :boot_count, :install_attempts, :ip)
	`, snap)
	if err != nil {
		return fmt.Errorf("inserting health snapshot for %s: %w", snap.NodeID, err)
	}
	return nil
}

// DeleteSnapshotsOlderThan prunes snapshots recorded before cutoff, per the
// daily health_cleanup job's retention policy, returning the number
// of rows removed.
func (s *Store) DeleteSnapshotsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM node_health_snapshots WHERE time < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning health snapshots older than %s: %w", cutoff, err)
	}
	return result.RowsAffected()
}

// ListSnapshotsForNode returns a node's health-snapshot history, most
// recent first.
func (s *Store) ListSnapshotsForNode(ctx context.Context, nodeID string, limit int) ([]*node.NodeHealthSnapshot, error) {
	if limit <= 0 {
		limit = 100
	}
	var snaps []*node.NodeHealthSnapshot
	err := s.db.SelectContext(ctx, &snaps, `
		SELECT id, created_at, updated_at, node_id, time, health_status, health_score,
			seconds_since_seen, boot_count, install_attempts, ip
		FROM node_health_snapshots WHERE node_id = $1 ORDER BY time DESC LIMIT $2
	`, nodeID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing health snapshots for %s: %w", nodeID, err)
	}
	return snaps, nil
}
