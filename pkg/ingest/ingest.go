// Copyright © 2026 PureBoot Contributors
//
// SPDX-License-Identifier: MIT

// Package ingest implements the event-ingest and state-advancer pipeline:
// turn an incoming StatusReport into node bookkeeping updates, an
// append-only NodeEvent, and (where the event warrants it) a state machine
// transition, driving the node lifecycle defined in pkg/statemachine.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/mrveiss/pureboot/pkg/health"
	"github.com/mrveiss/pureboot/pkg/node"
	"github.com/mrveiss/pureboot/pkg/statemachine"
	"github.com/mrveiss/pureboot/pkg/validation"
)

// ErrNodeNotFound is returned when a StatusReport references a MAC with no
// registered node. Callers (the HTTP handler) should turn this into a 404.
var ErrNodeNotFound = errors.New("ingest: node not found")

// Store is the persistence contract the ingest pipeline needs beyond the
// state machine's own NodeStore.
type Store interface {
	statemachine.NodeStore
	GetNodeByMAC(ctx context.Context, mac string) (*node.Node, error)
	AppendEvent(ctx context.Context, evt *node.NodeEvent) error
}

// Pipeline ingests StatusReports and advances node state accordingly.
type Pipeline struct {
	store   Store
	machine *statemachine.Machine
	monitor *health.Monitor
	logger  *log.Logger
}

// New constructs a Pipeline. logger may be nil.
func New(store Store, machine *statemachine.Machine, monitor *health.Monitor, logger *log.Logger) *Pipeline {
	if logger == nil {
		logger = log.New(log.Writer(), "ingest: ", log.LstdFlags)
	}
	return &Pipeline{store: store, machine: machine, monitor: monitor, logger: logger}
}

// Ingest implements the full algorithm for a single StatusReport.
func (p *Pipeline) Ingest(ctx context.Context, clientIP string, report node.StatusReport) (*node.Node, error) {
	report, err := normalizeReport(report)
	if err != nil {
		return nil, fmt.Errorf("normalizing report: %w", err)
	}

	mac, err := validation.NormalizeMAC(report.MAC)
	if err != nil {
		return nil, fmt.Errorf("invalid mac %q: %w", report.MAC, err)
	}

	initial, err := p.store.GetNodeByMAC(ctx, mac)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, mac)
	}

	// Reload and mutate under the node's lock, shared with
	// statemachine.Machine, so this observation can never race a concurrent
	// transition or health recompute and overwrite it with a stale row.
	var n *node.Node
	now := time.Now()
	lockErr := p.machine.WithNodeLock(initial.ID, func() error {
		fresh, err := p.store.GetNode(ctx, initial.ID)
		if err != nil {
			return err
		}
		fresh.LastSeenAt = &now
		fresh.ObserveIP(clientIP, now)
		if report.Hardware != nil {
			fresh.OverwriteHardware(*report.Hardware)
		}
		fresh.UpdatedAt = now
		if err := p.store.SaveNode(ctx, fresh); err != nil {
			return err
		}
		n = fresh
		return nil
	})
	if lockErr != nil {
		return nil, fmt.Errorf("saving node %s: %w", initial.ID, lockErr)
	}

	evt := &node.NodeEvent{
		ResourceMeta: node.ResourceMeta{ID: uuid.NewString(), CreatedAt: now, UpdatedAt: now},
		NodeID:       n.ID,
		EventID:      report.EventID,
		Event:        report.Event,
		Status:       report.Status,
		Message:      report.Message,
		Progress:     report.Progress,
		Metadata:     report.EventMetadata,
		ClientIP:     clientIP,
		Time:         now,
	}
	if err := p.store.AppendEvent(ctx, evt); err != nil {
		if errors.Is(err, node.ErrDuplicateEvent) {
			p.logger.Printf("ignoring already-applied event %s for node %s (event_id=%s)", report.Event, n.ID, report.EventID)
			return n, nil
		}
		return nil, fmt.Errorf("appending event for %s: %w", n.ID, err)
	}

	updated, err := p.dispatch(ctx, n, report)
	if err != nil {
		return nil, err
	}

	if p.monitor != nil {
		if recomputed, err := p.monitor.RecomputeNode(ctx, updated.ID); err != nil {
			p.logger.Printf("health recompute failed for %s after event %s: %v", updated.ID, report.Event, err)
		} else {
			updated = recomputed
		}
	}

	return updated, nil
}

// dispatch applies the per-event-type state advancement. Each
// case is idempotent: an event that arrives when the node is not in the
// state it expects is logged and otherwise ignored rather than erroring,
// since retries and reordered reports from flaky network boot paths are
// normal.
func (p *Pipeline) dispatch(ctx context.Context, n *node.Node, report node.StatusReport) (*node.Node, error) {
	switch report.Event {
	case node.EventBootStarted:
		return p.recordBoot(ctx, n)

	case node.EventInstallStarted:
		if n.State != node.StatePending {
			p.logger.Printf("ignoring install_started for %s in state %s", n.ID, n.State)
			return n, nil
		}
		return p.machine.Transition(ctx, n.ID, node.StateInstalling, node.TriggeredByNodeReport, report.EventMetadata)

	case node.EventInstallProgress:
		return n, nil

	case node.EventInstallComplete:
		if n.State != node.StateInstalling {
			p.logger.Printf("ignoring duplicate/out-of-order install_complete for %s in state %s", n.ID, n.State)
			return n, nil
		}
		return p.machine.Transition(ctx, n.ID, node.StateInstalled, node.TriggeredByNodeReport, report.EventMetadata)

	case node.EventInstallFailed:
		if n.State != node.StateInstalling {
			p.logger.Printf("ignoring install_failed for %s in state %s", n.ID, n.State)
			return n, nil
		}
		return p.machine.HandleInstallFailure(ctx, n.ID, report.Message)

	case node.EventFirstBoot:
		if n.State != node.StateInstalled {
			p.logger.Printf("ignoring first_boot for %s in state %s", n.ID, n.State)
			return n, nil
		}
		return p.machine.Transition(ctx, n.ID, node.StateActive, node.TriggeredByNodeReport, report.EventMetadata)

	case node.EventHeartbeat:
		return n, nil

	default:
		return nil, fmt.Errorf("unknown event type %q", report.Event)
	}
}

// recordBoot applies the boot_started bookkeeping (boot_count, last_boot_at)
// without advancing state; boot_started never transitions a node. Reloads
// fresh under the node's lock for the same reason Ingest itself does.
func (p *Pipeline) recordBoot(ctx context.Context, n *node.Node) (*node.Node, error) {
	var updated *node.Node
	err := p.machine.WithNodeLock(n.ID, func() error {
		fresh, err := p.store.GetNode(ctx, n.ID)
		if err != nil {
			return err
		}
		now := time.Now()
		fresh.BootCount++
		fresh.LastBootAt = &now
		fresh.UpdatedAt = now
		if err := p.store.SaveNode(ctx, fresh); err != nil {
			return err
		}
		updated = fresh
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("recording boot for %s: %w", n.ID, err)
	}
	return updated, nil
}
