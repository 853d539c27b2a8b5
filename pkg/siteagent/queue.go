// Copyright © 2026 PureBoot Contributors
//
// SPDX-License-Identifier: MIT

package siteagent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/mrveiss/pureboot/internal/agentstore"
	"github.com/mrveiss/pureboot/pkg/client"
	"github.com/mrveiss/pureboot/pkg/node"
)

// ProcessorConfig holds the queue-drain policy knobs.
type ProcessorConfig struct {
	BatchSize  int
	MaxRetries int
	RetryDelay time.Duration
}

// DefaultProcessorConfig returns the documented default policy knobs.
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{BatchSize: 20, MaxRetries: 5, RetryDelay: 10 * time.Second}
}

// Processor drains the persistent mutation queue against the central
// controller whenever connectivity flips from offline to online.
type Processor struct {
	store  *agentstore.Store
	client *client.Client
	cfg    ProcessorConfig
	logger *log.Logger
}

// NewProcessor constructs a Processor. logger may be nil.
func NewProcessor(store *agentstore.Store, c *client.Client, cfg ProcessorConfig, logger *log.Logger) *Processor {
	if logger == nil {
		logger = log.New(log.Writer(), "siteagent.queue: ", log.LstdFlags)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultProcessorConfig().BatchSize
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultProcessorConfig().MaxRetries
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultProcessorConfig().RetryDelay
	}
	return &Processor{store: store, client: c, cfg: cfg, logger: logger}
}

// AttachTo wires the processor to fire on every offline->online flip.
func (p *Processor) AttachTo(conn *Connectivity) {
	conn.OnFlip(func(online bool) {
		if !online {
			return
		}
		if err := p.Drain(context.Background()); err != nil {
			p.logger.Printf("queue drain failed: %v", err)
		}
	})
}

// Drain implements the batch-drain algorithm: peek up to BatchSize
// actionable items in insertion order, attempt each against central, and
// keep draining past items that individually fail and get marked so
// unrelated mutations are never blocked. Items already marked
// QueueItemFailed stay in the store for operator inspection but are
// excluded from the actionable set, so a permanently failed mutation can
// never keep Drain looping forever.
func (p *Processor) Drain(ctx context.Context) error {
	for {
		pending, err := p.store.PendingMutations()
		if err != nil {
			return fmt.Errorf("listing pending mutations: %w", err)
		}

		var actionable []*node.QueueItem
		for _, item := range pending {
			if item.Status != node.QueueItemFailed {
				actionable = append(actionable, item)
			}
		}
		if len(actionable) == 0 {
			return nil
		}

		batch := actionable
		if len(batch) > p.cfg.BatchSize {
			batch = batch[:p.cfg.BatchSize]
		}

		anyRemaining := false
		for _, item := range batch {
			if err := p.send(ctx, item); err != nil {
				item.Attempts++
				item.LastError = err.Error()
				if item.Attempts >= p.cfg.MaxRetries {
					item.Status = node.QueueItemFailed
					p.logger.Printf("mutation seq=%d for node=%s permanently failed after %d attempts: %v", item.Sequence, item.NodeID, item.Attempts, err)
				} else {
					anyRemaining = true
				}
				if uerr := p.store.UpdateMutation(item); uerr != nil {
					return fmt.Errorf("recording failed attempt for seq %d: %w", item.Sequence, uerr)
				}
				continue
			}
			if err := p.store.DequeueMutation(item.Sequence); err != nil {
				return fmt.Errorf("dequeuing seq %d: %w", item.Sequence, err)
			}
		}

		if !anyRemaining {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.cfg.RetryDelay):
		}
	}
}

// send proxies a single queued mutation to the central controller.
func (p *Processor) send(ctx context.Context, item *node.QueueItem) error {
	switch item.Type {
	case node.QueueRegistration:
		return p.client.RegisterNode(ctx, item.Payload)
	case node.QueueStateUpdate:
		return p.client.UpdateNodeState(ctx, item.NodeID, item.Payload)
	case node.QueueEvent:
		return p.client.ReportEvent(ctx, item.Payload)
	default:
		return fmt.Errorf("unknown queue item type %q", item.Type)
	}
}

// Proxy intercepts would-be writes against the central controller: it
// proxies live while online, and queues while offline.
type Proxy struct {
	conn   *Connectivity
	client *client.Client
	store  *agentstore.Store
}

// NewProxy constructs a Proxy.
func NewProxy(conn *Connectivity, c *client.Client, store *agentstore.Store) *Proxy {
	return &Proxy{conn: conn, client: c, store: store}
}

// ProxyResult is the write-proxy's response shape.
type ProxyResult struct {
	Status  string `json:"status"`
	Offline bool   `json:"offline"`
}

// Write proxies a single mutation, queuing it if the agent is currently
// offline. For event reports, it stamps a stable EventID onto the payload
// before it is first sent or enqueued, so every retry of the same mutation
// (whether retried live by the caller or replayed later by Drain) carries
// the same idempotency key and central can dedup it.
func (p *Proxy) Write(ctx context.Context, nodeID string, itemType node.QueueItemType, payload []byte) (ProxyResult, error) {
	if itemType == node.QueueEvent {
		stamped, err := stampEventID(payload)
		if err != nil {
			return ProxyResult{}, fmt.Errorf("stamping event id: %w", err)
		}
		payload = stamped
	}

	if p.conn.IsOnline() {
		if err := p.proxyLive(ctx, itemType, nodeID, payload); err != nil {
			return ProxyResult{}, fmt.Errorf("proxying live write: %w", err)
		}
		return ProxyResult{Status: "ok"}, nil
	}

	item := &node.QueueItem{NodeID: nodeID, Type: itemType, Payload: payload, Status: node.QueueItemPending}
	if err := p.store.EnqueueMutation(item); err != nil {
		return ProxyResult{}, fmt.Errorf("queuing offline write: %w", err)
	}
	return ProxyResult{Status: "queued", Offline: true}, nil
}

// stampEventID assigns a fresh EventID to a StatusReport payload that
// doesn't already carry one, so a caller that never set one still gets
// replay protection once the report reaches central.
func stampEventID(payload []byte) ([]byte, error) {
	var report node.StatusReport
	if err := json.Unmarshal(payload, &report); err != nil {
		return nil, fmt.Errorf("decoding status report: %w", err)
	}
	if report.EventID != "" {
		return payload, nil
	}
	report.EventID = uuid.NewString()
	stamped, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("encoding status report: %w", err)
	}
	return stamped, nil
}

func (p *Proxy) proxyLive(ctx context.Context, itemType node.QueueItemType, nodeID string, payload []byte) error {
	switch itemType {
	case node.QueueRegistration:
		return p.client.RegisterNode(ctx, payload)
	case node.QueueStateUpdate:
		return p.client.UpdateNodeState(ctx, nodeID, payload)
	case node.QueueEvent:
		return p.client.ReportEvent(ctx, payload)
	default:
		return fmt.Errorf("unknown write type %q", itemType)
	}
}
