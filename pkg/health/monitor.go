// Copyright © 2026 PureBoot Contributors
//
// SPDX-License-Identifier: MIT

// Package health computes per-node health status and score, raises and
// clears alerts, and (via Scheduler) periodically snapshots history and
// prunes old snapshots.
package health

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/mrveiss/pureboot/pkg/broadcast"
	"github.com/mrveiss/pureboot/pkg/node"
	"github.com/mrveiss/pureboot/pkg/statemachine"
)

// Weights are the three scoring component weights, which must sum to 100.
// Defaults are 40/30/30.
type Weights struct {
	Staleness int
	Install   int
	Boot      int
}

// DefaultWeights returns the documented default weighting.
func DefaultWeights() Weights {
	return Weights{Staleness: 40, Install: 30, Boot: 30}
}

// Config holds the health monitor's policy knobs.
type Config struct {
	StaleThresholdMinutes   int
	OfflineThresholdMinutes int
	Weights                 Weights
	AlertOnStale            bool
	AlertOnOffline          bool
	AlertOnScoreBelow       int
	SnapshotIntervalMinutes int
	SnapshotRetentionDays   int
}

// DefaultConfig returns the documented default thresholds.
func DefaultConfig() Config {
	return Config{
		StaleThresholdMinutes:   15,
		OfflineThresholdMinutes: 60,
		Weights:                 DefaultWeights(),
		AlertOnStale:            true,
		AlertOnOffline:          true,
		AlertOnScoreBelow:       50,
		SnapshotIntervalMinutes: 5,
		SnapshotRetentionDays:   30,
	}
}

// Store is the persistence contract the health monitor needs.
type Store interface {
	GetNode(ctx context.Context, id string) (*node.Node, error)
	SaveNode(ctx context.Context, n *node.Node) error
	ListNonRetiredNodes(ctx context.Context) ([]*node.Node, error)
	ActiveAlert(ctx context.Context, nodeID string, alertType node.AlertType) (*node.HealthAlert, error)
	CreateAlert(ctx context.Context, a *node.HealthAlert) error
	ResolveAlert(ctx context.Context, nodeID string, alertType node.AlertType, now time.Time) error
	ListActiveAlerts(ctx context.Context) ([]*node.HealthAlert, error)
	InsertSnapshot(ctx context.Context, s *node.NodeHealthSnapshot) error
	DeleteSnapshotsOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Monitor computes health status/score and manages alert lifecycle.
type Monitor struct {
	store   Store
	hub     *broadcast.Hub
	machine *statemachine.Machine
	cfg     Config
}

// NewMonitor constructs a Monitor. machine should be the same Machine
// instance driving transitions for these nodes, so RecomputeNode's writes
// share its per-node lock table; it may be nil in tests that never run
// concurrently against a real Machine.
func NewMonitor(store Store, hub *broadcast.Hub, machine *statemachine.Machine, cfg Config) *Monitor {
	return &Monitor{store: store, hub: hub, machine: machine, cfg: cfg}
}

// withNodeLock serializes fn via the shared Machine lock table when one is
// configured, and runs fn unguarded otherwise.
func (m *Monitor) withNodeLock(nodeID string, fn func() error) error {
	if m.machine == nil {
		return fn()
	}
	return m.machine.WithNodeLock(nodeID, fn)
}

// Status classifies a node's health from the elapsed time since it was last
// seen.
func (m *Monitor) Status(lastSeenAt *time.Time, now time.Time) node.HealthStatus {
	if lastSeenAt == nil {
		return node.HealthUnknown
	}
	minutesSince := now.Sub(*lastSeenAt).Minutes()
	switch {
	case minutesSince <= float64(m.cfg.StaleThresholdMinutes):
		return node.HealthHealthy
	case minutesSince <= float64(m.cfg.OfflineThresholdMinutes):
		return node.HealthStale
	default:
		return node.HealthOffline
	}
}

// Score computes the 0-100 health score from the three weighted penalty
// components.
func (m *Monitor) Score(n *node.Node, now time.Time) int {
	w := m.cfg.Weights

	var stalenessPenalty float64
	if n.LastSeenAt == nil {
		stalenessPenalty = float64(w.Staleness)
	} else {
		minutesSince := now.Sub(*n.LastSeenAt).Minutes()
		ratio := math.Min(minutesSince/float64(m.cfg.OfflineThresholdMinutes), 1.0)
		stalenessPenalty = float64(w.Staleness) * ratio
	}

	installPenalty := float64(w.Install) * math.Min(float64(n.InstallAttempts)/5.0, 1.0)
	bootPenalty := float64(w.Boot) * math.Min(math.Max(0, float64(n.BootCount-10))/20.0, 1.0)

	score := 100.0 - stalenessPenalty - installPenalty - bootPenalty
	rounded := int(math.Round(score))
	if rounded < 0 {
		return 0
	}
	if rounded > 100 {
		return 100
	}
	return rounded
}

// RecomputeNode recomputes status and score for a single node, updates
// alerts, and publishes health:status_changed when the status transitions.
// Used both by the scheduled health_check job and by event ingest. The
// read-modify-write against the node row is serialized through the same
// per-node lock statemachine.Machine uses for transitions, so a health
// tick can never read a node mid-transition and then overwrite the whole
// row once the transition has committed.
func (m *Monitor) RecomputeNode(ctx context.Context, nodeID string) (*node.Node, error) {
	var n *node.Node
	var oldStatus, newStatus node.HealthStatus
	now := time.Now()

	lockErr := m.withNodeLock(nodeID, func() error {
		fresh, err := m.store.GetNode(ctx, nodeID)
		if err != nil {
			return fmt.Errorf("loading node %s: %w", nodeID, err)
		}
		if fresh.State == node.StateRetired {
			n = fresh
			return nil
		}

		oldStatus = fresh.HealthStatus
		newStatus = m.Status(fresh.LastSeenAt, now)
		fresh.HealthStatus = newStatus
		fresh.HealthScore = m.Score(fresh, now)
		fresh.UpdatedAt = now

		if err := m.store.SaveNode(ctx, fresh); err != nil {
			return fmt.Errorf("saving node %s: %w", nodeID, err)
		}
		n = fresh
		return nil
	})
	if lockErr != nil {
		return nil, lockErr
	}
	if n.State == node.StateRetired {
		return n, nil
	}

	if err := m.applyAlertPolicy(ctx, n, oldStatus, newStatus, now); err != nil {
		return nil, err
	}

	if oldStatus != newStatus {
		m.publish(broadcast.HealthStatusChanged, n.ID, map[string]any{"nodeId": n.ID, "from": oldStatus, "to": newStatus})
	}
	return n, nil
}

func (m *Monitor) applyAlertPolicy(ctx context.Context, n *node.Node, oldStatus, newStatus node.HealthStatus, now time.Time) error {
	switch newStatus {
	case node.HealthStale:
		if m.cfg.AlertOnStale && oldStatus != node.HealthStale {
			if err := m.ensureActiveAlert(ctx, n, node.AlertNodeStale, node.SeverityWarning, "node has not reported in over the stale threshold", now); err != nil {
				return err
			}
		}
	case node.HealthOffline:
		if m.cfg.AlertOnOffline && oldStatus != node.HealthOffline {
			if err := m.resolveAlertIfActive(ctx, n.ID, node.AlertNodeStale, now); err != nil {
				return err
			}
			if err := m.ensureActiveAlert(ctx, n, node.AlertNodeOffline, node.SeverityCritical, "node has not reported in over the offline threshold", now); err != nil {
				return err
			}
		}
	case node.HealthHealthy:
		if err := m.resolveAlertIfActive(ctx, n.ID, node.AlertNodeStale, now); err != nil {
			return err
		}
		if err := m.resolveAlertIfActive(ctx, n.ID, node.AlertNodeOffline, now); err != nil {
			return err
		}
	}

	if m.cfg.AlertOnScoreBelow > 0 {
		if n.HealthScore < m.cfg.AlertOnScoreBelow {
			if err := m.ensureActiveAlert(ctx, n, node.AlertLowHealthScore, node.SeverityWarning, "health score below configured threshold", now); err != nil {
				return err
			}
		} else {
			if err := m.resolveAlertIfActive(ctx, n.ID, node.AlertLowHealthScore, now); err != nil {
				return err
			}
		}
	}
	return nil
}

// ensureActiveAlert creates a new active alert unless one already exists
// for (node, alert_type).
func (m *Monitor) ensureActiveAlert(ctx context.Context, n *node.Node, alertType node.AlertType, severity node.AlertSeverity, message string, now time.Time) error {
	existing, err := m.store.ActiveAlert(ctx, n.ID, alertType)
	if err != nil {
		return fmt.Errorf("checking active alert: %w", err)
	}
	if existing != nil {
		return nil
	}

	alert := &node.HealthAlert{
		ResourceMeta: node.ResourceMeta{ID: uuid.NewString(), CreatedAt: now, UpdatedAt: now},
		NodeID:       n.ID,
		AlertType:    alertType,
		Severity:     severity,
		Status:       node.AlertActive,
		Message:      message,
	}
	if err := m.store.CreateAlert(ctx, alert); err != nil {
		return fmt.Errorf("creating alert: %w", err)
	}
	m.publish(broadcast.HealthAlertCreated, n.ID, alert)
	return nil
}

func (m *Monitor) resolveAlertIfActive(ctx context.Context, nodeID string, alertType node.AlertType, now time.Time) error {
	existing, err := m.store.ActiveAlert(ctx, nodeID, alertType)
	if err != nil {
		return fmt.Errorf("checking active alert: %w", err)
	}
	if existing == nil {
		return nil
	}
	if err := m.store.ResolveAlert(ctx, nodeID, alertType, now); err != nil {
		return fmt.Errorf("resolving alert: %w", err)
	}
	m.publish(broadcast.HealthAlertResolved, nodeID, map[string]any{"nodeId": nodeID, "alertType": alertType})
	return nil
}

func (m *Monitor) publish(t broadcast.EventType, nodeID string, payload any) {
	if m.hub == nil {
		return
	}
	m.hub.Publish(broadcast.Event{Type: t, NodeID: nodeID, Payload: payload})
}

// CheckAll recomputes health for every non-retired node, used by the
// scheduled health_check job.
func (m *Monitor) CheckAll(ctx context.Context) error {
	nodes, err := m.store.ListNonRetiredNodes(ctx)
	if err != nil {
		return fmt.Errorf("listing nodes: %w", err)
	}

	for _, n := range nodes {
		if _, err := m.RecomputeNode(ctx, n.ID); err != nil {
			return fmt.Errorf("recomputing node %s: %w", n.ID, err)
		}
	}

	if len(nodes) > 0 {
		summary, err := m.Summarize(ctx)
		if err == nil {
			m.publish(broadcast.HealthSummaryUpdated, "", summary)
		}
	}
	return nil
}

// Summarize builds the Summary roll-up exposed via GET /health/summary.
func (m *Monitor) Summarize(ctx context.Context) (*node.Summary, error) {
	nodes, err := m.store.ListNonRetiredNodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing nodes: %w", err)
	}

	totals := make(map[node.HealthStatus]int)
	var scoreSum float64
	for _, n := range nodes {
		totals[n.HealthStatus]++
		scoreSum += float64(n.HealthScore)
	}

	avg := 0.0
	if len(nodes) > 0 {
		avg = math.Round(scoreSum/float64(len(nodes))*10) / 10
	}

	alerts, err := m.store.ListActiveAlerts(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing active alerts: %w", err)
	}
	critical := 0
	for _, a := range alerts {
		if a.Severity == node.SeverityCritical {
			critical++
		}
	}

	return &node.Summary{
		TotalsByStatus:       totals,
		NonRetiredTotal:      len(nodes),
		AverageScore:         avg,
		ActiveAlerts:         len(alerts),
		ActiveCriticalAlerts: critical,
	}, nil
}
