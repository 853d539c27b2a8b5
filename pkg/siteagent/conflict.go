// Copyright © 2026 PureBoot Contributors
//
// SPDX-License-Identifier: MIT

package siteagent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mrveiss/pureboot/internal/agentstore"
	"github.com/mrveiss/pureboot/pkg/client"
	"github.com/mrveiss/pureboot/pkg/node"
)

// Detector walks the central nodes list against the local cache after a
// successful queue drain or a full resync pull, recording any divergence as
// a Conflict.
type Detector struct {
	store    *agentstore.Store
	cache    *Cache
	client   *client.Client
	strategy node.ConflictStrategy
}

// NewDetector constructs a Detector.
func NewDetector(store *agentstore.Store, cache *Cache, c *client.Client, strategy node.ConflictStrategy) *Detector {
	return &Detector{store: store, cache: cache, client: c, strategy: strategy}
}

// Resync pulls the full central node list and reconciles it against the
// local cache, recording a Conflict for every divergence found and
// resolving those the configured strategy allows to auto-resolve.
func (d *Detector) Resync(ctx context.Context) error {
	central, err := d.client.ListNodes(ctx)
	if err != nil {
		return fmt.Errorf("pulling central node list: %w", err)
	}

	centralByMAC := make(map[string]client.NodeSummary, len(central))
	for _, n := range central {
		centralByMAC[n.MAC] = n
	}

	cached, err := d.cache.ListNodes()
	if err != nil {
		return fmt.Errorf("listing cached nodes: %w", err)
	}
	cachedByMAC := make(map[string]*node.Node, len(cached))
	for _, n := range cached {
		cachedByMAC[n.MAC] = n
	}

	now := time.Now()
	for mac, centralNode := range centralByMAC {
		localNode, ok := cachedByMAC[mac]
		if !ok {
			if _, _, err := d.record(mac, "", node.State(centralNode.State), time.Time{}, centralNode.UpdatedAt, node.ConflictMissingLocal, now); err != nil {
				return err
			}
			continue
		}
		if localNode.State != node.State(centralNode.State) {
			resolution, centralWins, err := d.record(mac, localNode.State, node.State(centralNode.State), localNode.StateChangedAt, centralNode.UpdatedAt, node.ConflictStateMismatch, now)
			if err != nil {
				return err
			}
			switch resolution {
			case node.ConflictCentralWins:
				localNode.State = node.State(centralNode.State)
				if err := d.cache.PutNode(localNode); err != nil {
					return fmt.Errorf("reconciling cache for %s: %w", mac, err)
				}
			case node.ConflictSiteWins:
				if err := d.pushStateToCentral(ctx, centralNode.ID, localNode.State); err != nil {
					return fmt.Errorf("pushing resolved state to central for %s: %w", mac, err)
				}
			case node.ConflictLastWrite:
				if centralWins {
					localNode.State = node.State(centralNode.State)
					if err := d.cache.PutNode(localNode); err != nil {
						return fmt.Errorf("reconciling cache for %s: %w", mac, err)
					}
				} else if err := d.pushStateToCentral(ctx, centralNode.ID, localNode.State); err != nil {
					return fmt.Errorf("pushing resolved state to central for %s: %w", mac, err)
				}
			}
		}
	}

	for mac, localNode := range cachedByMAC {
		if _, ok := centralByMAC[mac]; !ok {
			if _, _, err := d.record(mac, localNode.State, "", localNode.StateChangedAt, time.Time{}, node.ConflictMissingCentral, now); err != nil {
				return err
			}
		}
	}
	return nil
}

// pushStateToCentral applies a site-wins (or last-write-local-wins)
// resolution by patching the node's state on the central controller, using
// the same PATCH /nodes/{id}/state path a live state-update proxy write
// would use.
func (d *Detector) pushStateToCentral(ctx context.Context, nodeID string, state node.State) error {
	payload, err := json.Marshal(struct {
		State node.State `json:"state"`
	}{State: state})
	if err != nil {
		return fmt.Errorf("encoding state push: %w", err)
	}
	return d.client.UpdateNodeState(ctx, nodeID, payload)
}

// record persists the conflict and returns the resolution strategy that was
// actually applied (empty if the conflict remains unresolved, e.g. manual)
// along with whether central's side is the one that won (meaningful for
// ConflictCentralWins and ConflictLastWrite; the caller still must push the
// winning state through before treating the conflict as settled).
func (d *Detector) record(mac string, localState, centralState node.State, localTime, centralTime time.Time, conflictType node.ConflictType, now time.Time) (node.ConflictStrategy, bool, error) {
	resolved := false
	var resolvedVia node.ConflictStrategy
	centralWins := false

	switch d.strategy {
	case node.ConflictCentralWins:
		resolved = true
		resolvedVia = node.ConflictCentralWins
		centralWins = true
	case node.ConflictSiteWins:
		resolved = true
		resolvedVia = node.ConflictSiteWins
	case node.ConflictLastWrite:
		resolved = true
		resolvedVia = node.ConflictLastWrite
		centralWins = !localTime.After(centralTime)
		if centralWins {
			localState = centralState
		} else {
			centralState = localState
		}
	case node.ConflictManual:
		// Surfaces to operators; automatic reconciliation is blocked for
		// this node until an operator resolves it.
	}

	c := &node.Conflict{
		ResourceMeta:  node.ResourceMeta{ID: uuid.NewString(), CreatedAt: now, UpdatedAt: now},
		NodeMAC:       mac,
		LocalState:    localState,
		CentralState:  centralState,
		LocalTime:     localTime,
		CentralTime:   centralTime,
		Type:          conflictType,
		Resolved:      resolved,
		ResolutionVia: resolvedVia,
	}
	if err := d.store.RecordConflict(c); err != nil {
		return "", false, fmt.Errorf("recording conflict for %s: %w", mac, err)
	}
	return resolvedVia, centralWins, nil
}
