// Copyright © 2026 PureBoot Contributors
//
// SPDX-License-Identifier: MIT

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mrveiss/pureboot/pkg/node"
)

// ActiveAlert returns the active alert for (nodeID, alertType), if any.
// at most one active alert per (node, alert_type).
func (s *Store) ActiveAlert(ctx context.Context, nodeID string, alertType node.AlertType) (*node.HealthAlert, error) {
	var a node.HealthAlert
	err := s.db.GetContext(ctx, &a, `
		SELECT id, created_at, updated_at, node_id, alert_type, severity, status, message,
			details, acknowledged_at, acknowledged_by, resolved_at
		FROM health_alerts WHERE node_id = $1 AND alert_type = $2 AND status = $3
	`, nodeID, string(alertType), string(node.AlertActive))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading active alert for %s/%s: %w", nodeID, alertType, err)
	}
	return &a, nil
}

// CreateAlert inserts a new alert in the active status.
func (s *Store) CreateAlert(ctx context.Context, a *node.HealthAlert) error {
	if a.ID == "" {
		a.ID = newID()
	}
	now := time.Now()
	a.CreatedAt, a.UpdatedAt = now, now
	if a.Status == "" {
		a.Status = node.AlertActive
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO health_alerts (id, created_at, updated_at, node_id, alert_type, severity, status,
			message, details, acknowledged_at, acknowledged_by, resolved_at)
		VALUES (:id, :created_at, :updated_at, :node_id, :alert_type, :severity, :status,
			:message, :details, :acknowledged_at, :acknowledged_by, :resolved_at)
	`, a)
	if err != nil {
		return fmt.Errorf("creating alert %s/%s: %w", a.NodeID, a.AlertType, err)
	}
	return nil
}

// ResolveAlert marks the active alert for (nodeID, alertType) resolved at
// now. It is a no-op if no active alert exists.
func (s *Store) ResolveAlert(ctx context.Context, nodeID string, alertType node.AlertType, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE health_alerts SET status = $1, resolved_at = $2, updated_at = $2
		WHERE node_id = $3 AND alert_type = $4 AND status = $5
	`, string(node.AlertResolved), now, nodeID, string(alertType), string(node.AlertActive))
	if err != nil {
		return fmt.Errorf("resolving alert %s/%s: %w", nodeID, alertType, err)
	}
	return nil
}

// AcknowledgeAlert marks an active alert acknowledged by the given operator.
func (s *Store) AcknowledgeAlert(ctx context.Context, alertID, by string, now time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE health_alerts SET status = $1, acknowledged_at = $2, acknowledged_by = $3, updated_at = $2
		WHERE id = $4 AND status = $5
	`, string(node.AlertAcknowledged), now, by, alertID, string(node.AlertActive))
	if err != nil {
		return fmt.Errorf("acknowledging alert %s: %w", alertID, err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("acknowledging alert %s: %w", alertID, ErrNotFound)
	}
	return nil
}

// ListActiveAlerts returns every alert currently in the active status.
func (s *Store) ListActiveAlerts(ctx context.Context) ([]*node.HealthAlert, error) {
	var alerts []*node.HealthAlert
	err := s.db.SelectContext(ctx, &alerts, `
		SELECT id, created_at, updated_at, node_id, alert_type, severity, status, message,
			details, acknowledged_at, acknowledged_by, resolved_at
		FROM health_alerts WHERE status = $1 ORDER BY created_at DESC
	`, string(node.AlertActive))
	if err != nil {
		return nil, fmt.Errorf("listing active alerts: %w", err)
	}
	return alerts, nil
}
