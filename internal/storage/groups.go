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

// groupRow is the flattened row shape for device_groups: DeviceGroup.AgentConfig
// is db:"-" since it only applies when IsSite is set, so this type carries
// the real columns and is converted at the edges, mirroring the nodeRow
// pattern.
type groupRow struct {
	ID        string    `db:"id"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`

	Name              string `db:"name"`
	DefaultWorkflowID string `db:"default_workflow_id"`
	AutoProvision     bool   `db:"auto_provision"`

	IsSite           bool   `db:"is_site"`
	AutonomyLevel    string `db:"autonomy_level"`
	CachePolicy      string `db:"cache_policy"`
	ConflictStrategy string `db:"conflict_strategy"`
}

func (r *groupRow) toGroup() *node.DeviceGroup {
	g := &node.DeviceGroup{
		ResourceMeta:      node.ResourceMeta{ID: r.ID, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt},
		Name:              r.Name,
		DefaultWorkflowID: r.DefaultWorkflowID,
		AutoProvision:     r.AutoProvision,
		IsSite:            r.IsSite,
	}
	if r.IsSite {
		g.AgentConfig = node.AgentConfig{
			AutonomyLevel:    r.AutonomyLevel,
			CachePolicy:      node.CachePolicy(r.CachePolicy),
			ConflictStrategy: node.ConflictStrategy(r.ConflictStrategy),
		}
	}
	return g
}

func rowFromGroup(g *node.DeviceGroup) *groupRow {
	return &groupRow{
		ID:                g.ID,
		CreatedAt:         g.CreatedAt,
		UpdatedAt:         g.UpdatedAt,
		Name:              g.Name,
		DefaultWorkflowID: g.DefaultWorkflowID,
		AutoProvision:     g.AutoProvision,
		IsSite:            g.IsSite,
		AutonomyLevel:     g.AgentConfig.AutonomyLevel,
		CachePolicy:       string(g.AgentConfig.CachePolicy),
		ConflictStrategy:  string(g.AgentConfig.ConflictStrategy),
	}
}

const groupColumns = `
	id, created_at, updated_at, name, default_workflow_id, auto_provision,
	is_site, autonomy_level, cache_policy, conflict_strategy`

// CreateGroup inserts a new device group.
func (s *Store) CreateGroup(ctx context.Context, g *node.DeviceGroup) error {
	if g.ID == "" {
		g.ID = newID()
	}
	now := time.Now()
	g.CreatedAt, g.UpdatedAt = now, now
	r := rowFromGroup(g)
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO device_groups (`+groupColumns+`)
		VALUES (:id, :created_at, :updated_at, :name, :default_workflow_id, :auto_provision,
			:is_site, :autonomy_level, :cache_policy, :conflict_strategy)
	`, r)
	if err != nil {
		return fmt.Errorf("creating group %s: %w", g.Name, err)
	}
	return nil
}

// GetGroup loads a single device group by id.
func (s *Store) GetGroup(ctx context.Context, id string) (*node.DeviceGroup, error) {
	var r groupRow
	err := s.db.GetContext(ctx, &r, `SELECT `+groupColumns+` FROM device_groups WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("group %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading group %s: %w", id, err)
	}
	return r.toGroup(), nil
}

// ListGroups returns every device group.
func (s *Store) ListGroups(ctx context.Context) ([]*node.DeviceGroup, error) {
	var rows []groupRow
	err := s.db.SelectContext(ctx, &rows, `SELECT `+groupColumns+` FROM device_groups ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing groups: %w", err)
	}
	out := make([]*node.DeviceGroup, len(rows))
	for i := range rows {
		out[i] = rows[i].toGroup()
	}
	return out, nil
}

// UpdateGroup persists changes to an existing device group.
func (s *Store) UpdateGroup(ctx context.Context, g *node.DeviceGroup) error {
	g.UpdatedAt = time.Now()
	r := rowFromGroup(g)
	result, err := s.db.NamedExecContext(ctx, `
		UPDATE device_groups SET
			updated_at = :updated_at, name = :name, default_workflow_id = :default_workflow_id,
			auto_provision = :auto_provision, is_site = :is_site, autonomy_level = :autonomy_level,
			cache_policy = :cache_policy, conflict_strategy = :conflict_strategy
		WHERE id = :id
	`, r)
	if err != nil {
		return fmt.Errorf("updating group %s: %w", g.ID, err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("updating group %s: %w", g.ID, ErrNotFound)
	}
	return nil
}

// DeleteGroup removes a device group. Nodes referencing it keep their
// group_id as a dangling reference; there is no ON DELETE CASCADE on
// group_id since it is an optional, soft foreign key.
func (s *Store) DeleteGroup(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM device_groups WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting group %s: %w", id, err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("deleting group %s: %w", id, ErrNotFound)
	}
	return nil
}
