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

	"github.com/lib/pq"

	"github.com/mrveiss/pureboot/pkg/node"
)

// ErrNotFound is returned when a lookup by id or MAC matches no row.
var ErrNotFound = errors.New("storage: not found")

// nodeRow is the flattened row shape for the nodes table: node.Node embeds
// Hardware and Tags with db:"-" since they don't map 1:1 onto columns, so
// this type carries the real column set and is converted to/from node.Node
// at the edges.
type nodeRow struct {
	ID        string    `db:"id"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`

	MAC      string `db:"mac"`
	Hostname string `db:"hostname"`
	IP       string `db:"ip"`
	Arch     string `db:"architecture"`
	BootMode string `db:"boot_mode"`

	Vendor     string `db:"vendor"`
	Model      string `db:"model"`
	Serial     string `db:"serial"`
	SystemUUID string `db:"system_uuid"`

	GroupID string         `db:"group_id"`
	Tags    pq.StringArray `db:"tags"`

	State           string `db:"state"`
	WorkflowID      string `db:"workflow_id"`
	InstallAttempts int    `db:"install_attempts"`
	LastInstallErr  string `db:"last_install_error"`

	BootCount      int            `db:"boot_count"`
	LastBootAt     sql.NullTime   `db:"last_boot_at"`
	LastIPChangeAt sql.NullTime   `db:"last_ip_change_at"`
	PreviousIP     string         `db:"previous_ip"`

	HealthStatus string `db:"health_status"`
	HealthScore  int    `db:"health_score"`

	LastSeenAt     sql.NullTime `db:"last_seen_at"`
	StateChangedAt time.Time    `db:"state_changed_at"`
}

func (r *nodeRow) toNode() *node.Node {
	n := &node.Node{
		ResourceMeta: node.ResourceMeta{ID: r.ID, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt},
		MAC:          r.MAC,
		Hostname:     r.Hostname,
		IP:           r.IP,
		Arch:         node.Architecture(r.Arch),
		BootMode:     node.BootMode(r.BootMode),
		Hardware: node.Hardware{
			Vendor:     r.Vendor,
			Model:      r.Model,
			Serial:     r.Serial,
			SystemUUID: r.SystemUUID,
		},
		GroupID:         r.GroupID,
		Tags:            append([]string{}, r.Tags...),
		State:           node.State(r.State),
		WorkflowID:      r.WorkflowID,
		InstallAttempts: r.InstallAttempts,
		LastInstallErr:  r.LastInstallErr,
		BootCount:       r.BootCount,
		PreviousIP:      r.PreviousIP,
		HealthStatus:    node.HealthStatus(r.HealthStatus),
		HealthScore:     r.HealthScore,
		StateChangedAt:  r.StateChangedAt,
	}
	if r.LastBootAt.Valid {
		n.LastBootAt = &r.LastBootAt.Time
	}
	if r.LastIPChangeAt.Valid {
		n.LastIPChangeAt = &r.LastIPChangeAt.Time
	}
	if r.LastSeenAt.Valid {
		n.LastSeenAt = &r.LastSeenAt.Time
	}
	return n
}

func rowFromNode(n *node.Node) *nodeRow {
	r := &nodeRow{
		ID:              n.ID,
		CreatedAt:       n.CreatedAt,
		UpdatedAt:       n.UpdatedAt,
		MAC:             n.MAC,
		Hostname:        n.Hostname,
		IP:              n.IP,
		Arch:            string(n.Arch),
		BootMode:        string(n.BootMode),
		Vendor:          n.Hardware.Vendor,
		Model:           n.Hardware.Model,
		Serial:          n.Hardware.Serial,
		SystemUUID:      n.Hardware.SystemUUID,
		GroupID:         n.GroupID,
		Tags:            pq.StringArray(n.Tags),
		State:           string(n.State),
		WorkflowID:      n.WorkflowID,
		InstallAttempts: n.InstallAttempts,
		LastInstallErr:  n.LastInstallErr,
		BootCount:       n.BootCount,
		PreviousIP:      n.PreviousIP,
		HealthStatus:    string(n.HealthStatus),
		HealthScore:     n.HealthScore,
		StateChangedAt:  n.StateChangedAt,
	}
	if n.LastBootAt != nil {
		r.LastBootAt = sql.NullTime{Time: *n.LastBootAt, Valid: true}
	}
	if n.LastIPChangeAt != nil {
		r.LastIPChangeAt = sql.NullTime{Time: *n.LastIPChangeAt, Valid: true}
	}
	if n.LastSeenAt != nil {
		r.LastSeenAt = sql.NullTime{Time: *n.LastSeenAt, Valid: true}
	}
	return r
}

const nodeColumns = `
	id, created_at, updated_at, mac, hostname, ip, architecture, boot_mode,
	vendor, model, serial, system_uuid, group_id, tags, state, workflow_id,
	install_attempts, last_install_error, boot_count, last_boot_at,
	last_ip_change_at, previous_ip, health_status, health_score,
	last_seen_at, state_changed_at`

// GetNode loads a single node by id.
func (s *Store) GetNode(ctx context.Context, id string) (*node.Node, error) {
	var r nodeRow
	err := s.db.GetContext(ctx, &r, `SELECT `+nodeColumns+` FROM nodes WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("node %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading node %s: %w", id, err)
	}
	return r.toNode(), nil
}

// GetNodeByMAC loads a single node by its normalized MAC address.
func (s *Store) GetNodeByMAC(ctx context.Context, mac string) (*node.Node, error) {
	var r nodeRow
	err := s.db.GetContext(ctx, &r, `SELECT `+nodeColumns+` FROM nodes WHERE mac = $1`, mac)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("node with mac %s: %w", mac, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading node by mac %s: %w", mac, err)
	}
	return r.toNode(), nil
}

// CreateNode inserts a new node row.
func (s *Store) CreateNode(ctx context.Context, n *node.Node) error {
	r := rowFromNode(n)
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO nodes (`+nodeColumns+`)
		VALUES (:id, :created_at, :updated_at, :mac, :hostname, :ip, :architecture, :boot_mode,
			:vendor, :model, :serial, :system_uuid, :group_id, :tags, :state, :workflow_id,
			:install_attempts, :last_install_error, :boot_count, :last_boot_at,
			:last_ip_change_at, :previous_ip, :health_status, :health_score,
			:last_seen_at, :state_changed_at)
	`, r)
	if err != nil {
		return fmt.Errorf("creating node %s: %w", n.MAC, err)
	}
	return nil
}

// SaveNode upserts a node row, used by every code path that mutates an
// already-persisted node.
func (s *Store) SaveNode(ctx context.Context, n *node.Node) error {
	r := rowFromNode(n)
	result, err := s.db.NamedExecContext(ctx, `
		UPDATE nodes SET
			updated_at = :updated_at, hostname = :hostname, ip = :ip,
			architecture = :architecture, boot_mode = :boot_mode,
			vendor = :vendor, model = :model, serial = :serial, system_uuid = :system_uuid,
			group_id = :group_id, tags = :tags, state = :state, workflow_id = :workflow_id,
			install_attempts = :install_attempts, last_install_error = :last_install_error,
			boot_count = :boot_count, last_boot_at = :last_boot_at,
			last_ip_change_at = :last_ip_change_at, previous_ip = :previous_ip,
			health_status = :health_status, health_score = :health_score,
			last_seen_at = :last_seen_at, state_changed_at = :state_changed_at
		WHERE id = :id
	`, r)
	if err != nil {
		return fmt.Errorf("saving node %s: %w", n.ID, err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("saving node %s: %w", n.ID, ErrNotFound)
	}
	return nil
}

// ListNonRetiredNodes returns every node not in the retired or
// decommissioned states, for the health monitor's periodic sweep.
func (s *Store) ListNonRetiredNodes(ctx context.Context) ([]*node.Node, error) {
	var rows []nodeRow
	err := s.db.SelectContext(ctx, &rows, `SELECT `+nodeColumns+` FROM nodes
		WHERE state NOT IN ($1, $2) ORDER BY id`,
		string(node.StateRetired), string(node.StateDecommissioned))
	if err != nil {
		return nil, fmt.Errorf("listing non-retired nodes: %w", err)
	}
	out := make([]*node.Node, len(rows))
	for i := range rows {
		out[i] = rows[i].toNode()
	}
	return out, nil
}

// ListNodes returns every node, for operator-facing listing endpoints.
func (s *Store) ListNodes(ctx context.Context) ([]*node.Node, error) {
	var rows []nodeRow
	err := s.db.SelectContext(ctx, &rows, `SELECT `+nodeColumns+` FROM nodes ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing nodes: %w", err)
	}
	out := make([]*node.Node, len(rows))
	for i := range rows {
		out[i] = rows[i].toNode()
	}
	return out, nil
}

// DeleteNode removes a node row. Callers are expected to have already moved
// the node to a terminal state; this is an operator/admin escape hatch, not
// part of the lifecycle itself.
func (s *Store) DeleteNode(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM nodes WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting node %s: %w", id, err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("deleting node %s: %w", id, ErrNotFound)
	}
	return nil
}

// AppendStateLog inserts an append-only state-transition record.
func (s *Store) AppendStateLog(ctx context.Context, log *node.NodeStateLog) error {
	if log.ID == "" {
		log.ID = newID()
	}
	now := time.Now()
	log.CreatedAt, log.UpdatedAt = now, now
	if len(log.Metadata) == 0 {
		log.Metadata = nil
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO node_state_logs (id, created_at, updated_at, node_id, from_state, to_state, triggered_by, time, metadata)
		VALUES (:id, :created_at, :updated_at, :node_id, :from_state, :to_state, :triggered_by, :time, :metadata)
	`, log)
	if err != nil {
		return fmt.Errorf("appending state log for %s: %w", log.NodeID, err)
	}
	return nil
}

// AppendEvent inserts an append-only node event record. When evt.EventID is
// set and a row already exists for (node_id, event_id), it returns
// node.ErrDuplicateEvent instead of inserting a second row, so a site
// agent's queue-processor retry of an already-applied mutation can't
// double-apply its side effects.
func (s *Store) AppendEvent(ctx context.Context, evt *node.NodeEvent) error {
	if evt.ID == "" {
		evt.ID = newID()
	}
	now := time.Now()
	evt.CreatedAt, evt.UpdatedAt = now, now
	if len(evt.Metadata) == 0 {
		evt.Metadata = nil
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO node_events (id, created_at, updated_at, node_id, event_id, event, status, message, progress, metadata, client_ip, time)
		VALUES (:id, :created_at, :updated_at, :node_id, :event_id, :event, :status, :message, :progress, :metadata, :client_ip, :time)
	`, evt)
	if err != nil {
		var pqErr *pq.Error
		if evt.EventID != "" && errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return node.ErrDuplicateEvent
		}
		return fmt.Errorf("appending event for %s: %w", evt.NodeID, err)
	}
	return nil
}

// ListEventsForNode returns a node's event history, most recent first.
func (s *Store) ListEventsForNode(ctx context.Context, nodeID string, limit int) ([]*node.NodeEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	var events []*node.NodeEvent
	err := s.db.SelectContext(ctx, &events, `
		SELECT id, created_at, updated_at, node_id, event_id, event, status, message, progress, metadata, client_ip, time
		FROM node_events WHERE node_id = $1 ORDER BY time DESC LIMIT $2
	`, nodeID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing events for %s: %w", nodeID, err)
	}
	return events, nil
}

// ListRecentEvents returns the most recent events across every node, for
// the operator-facing activity feed.
func (s *Store) ListRecentEvents(ctx context.Context, limit int) ([]*node.NodeEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	var events []*node.NodeEvent
	err := s.db.SelectContext(ctx, &events, `
		SELECT id, created_at, updated_at, node_id, event_id, event, status, message, progress, metadata, client_ip, time
		FROM node_events ORDER BY time DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing recent events: %w", err)
	}
	return events, nil
}

// ListStateLogForNode returns a node's state-transition history, most
// recent first.
func (s *Store) ListStateLogForNode(ctx context.Context, nodeID string, limit int) ([]*node.NodeStateLog, error) {
	if limit <= 0 {
		limit = 100
	}
	var logs []*node.NodeStateLog
	err := s.db.SelectContext(ctx, &logs, `
		SELECT id, created_at, updated_at, node_id, from_state, to_state, triggered_by, time, metadata
		FROM node_state_logs WHERE node_id = $1 ORDER BY time DESC LIMIT $2
	`, nodeID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing state log for %s: %w", nodeID, err)
	}
	return logs, nil
}
