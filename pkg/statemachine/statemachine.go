// Copyright © 2026 PureBoot Contributors
//
// SPDX-License-Identifier: MIT

// Package statemachine implements the node lifecycle finite automaton:
// the legal transition table, the single mutation path that may
// change a node's state, and the install-failure sub-protocol. It is the
// only package in this repository allowed to mutate Node.State.
package statemachine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mrveiss/pureboot/pkg/broadcast"
	"github.com/mrveiss/pureboot/pkg/node"
)

// DefaultMaxInstallAttempts is used when a Machine is constructed without an
// explicit override.
const DefaultMaxInstallAttempts = 3

// transitions is the legal from -> {to...} table. Retire is handled
// separately as a policy override allowed from any non-terminal state.
var transitions = map[node.State][]node.State{
	node.StateDiscovered:     {node.StatePending, node.StateIgnored},
	node.StateIgnored:        {node.StateDiscovered},
	node.StatePending:        {node.StateInstalling},
	node.StateInstalling:     {node.StateInstalled, node.StateInstallFailed},
	node.StateInstallFailed:  {node.StatePending, node.StateRetired},
	node.StateInstalled:      {node.StateActive},
	node.StateActive:         {node.StateReprovision, node.StateMigrating, node.StateRetired, node.StateDecommissioned},
	node.StateReprovision:    {node.StatePending},
	node.StateMigrating:      {node.StateActive},
	node.StateRetired:        {node.StateDecommissioned},
	node.StateDecommissioned: {node.StateWiping},
	node.StateWiping:         {node.StateDecommissioned},
}

// InvalidStateTransition is returned when a requested transition is not in
// the legal set for the node's current state.
type InvalidStateTransition struct {
	From  node.State
	To    node.State
	Legal []node.State
}

func (e *InvalidStateTransition) Error() string {
	return fmt.Sprintf("%s->%s not allowed; legal: %v", e.From, e.To, e.Legal)
}

// NodeStore is the persistence contract the state machine needs: load and
// save a single node, and append a state log row. Implementations must
// serialize writes per node id
type NodeStore interface {
	GetNode(ctx context.Context, id string) (*node.Node, error)
	SaveNode(ctx context.Context, n *node.Node) error
	AppendStateLog(ctx context.Context, log *node.NodeStateLog) error
}

// Machine drives node state transitions against a NodeStore, publishing
// state_changed notifications through a broadcast.Hub.
type Machine struct {
	store               NodeStore
	hub                 *broadcast.Hub
	locks               *NodeLocks
	maxInstallAttempts  int
}

// New constructs a Machine. hub may be nil, in which case notifications are
// dropped (useful in tests).
func New(store NodeStore, hub *broadcast.Hub, maxInstallAttempts int) *Machine {
	if maxInstallAttempts <= 0 {
		maxInstallAttempts = DefaultMaxInstallAttempts
	}
	return &Machine{
		store:              store,
		hub:                hub,
		locks:              NewNodeLocks(),
		maxInstallAttempts: maxInstallAttempts,
	}
}

// CanTransition is a pure predicate over the transition table plus the
// retire policy override.
func CanTransition(from, to node.State) bool {
	if to == node.StateRetired && from != node.StateRetired {
		return true
	}
	for _, candidate := range transitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// LegalTransitions returns the set of states reachable from from, including
// the always-available retire override.
func LegalTransitions(from node.State) []node.State {
	legal := append([]node.State{}, transitions[from]...)
	if from != node.StateRetired {
		for _, s := range legal {
			if s == node.StateRetired {
				return legal
			}
		}
		legal = append(legal, node.StateRetired)
	}
	return legal
}

// Transition atomically moves n to the requested state: verifies legality,
// updates state/state_changed_at, appends a NodeStateLog, and publishes a
// state_changed notification. It is the only path that mutates
// Node.State.
func (m *Machine) Transition(ctx context.Context, nodeID string, to node.State, triggeredBy node.TriggeredBy, metadata json.RawMessage) (*node.Node, error) {
	unlock := m.locks.Lock(nodeID)
	defer unlock()

	n, err := m.store.GetNode(ctx, nodeID)
	if err != nil {
		return nil, fmt.Errorf("loading node %s: %w", nodeID, err)
	}

	from := n.State
	if !CanTransition(from, to) {
		return nil, &InvalidStateTransition{From: from, To: to, Legal: LegalTransitions(from)}
	}

	now := time.Now()
	n.State = to
	n.StateChangedAt = now
	n.UpdatedAt = now

	if to == node.StateInstalling && from == node.StatePending {
		n.InstallAttempts = 0
	}

	if err := m.store.SaveNode(ctx, n); err != nil {
		return nil, fmt.Errorf("saving node %s: %w", nodeID, err)
	}

	logEntry := &node.NodeStateLog{
		NodeID:      nodeID,
		FromState:   from,
		ToState:     to,
		TriggeredBy: triggeredBy,
		Time:        now,
		Metadata:    metadata,
	}
	if err := m.store.AppendStateLog(ctx, logEntry); err != nil {
		return nil, fmt.Errorf("appending state log for %s: %w", nodeID, err)
	}

	m.publish(n, from, to)
	return n, nil
}

func (m *Machine) publish(n *node.Node, from, to node.State) {
	if m.hub == nil {
		return
	}
	m.hub.Publish(broadcast.Event{
		Type: broadcast.NodeStateChanged,
		NodeID: n.ID,
		Payload: map[string]any{
			"nodeId": n.ID,
			"mac":    n.MAC,
			"from":   from,
			"to":     to,
		},
	})
}

// HandleInstallFailure implements the install-failure sub-protocol:
// increments install_attempts, records the error, and transitions to
// install_failed once the threshold is reached; otherwise the node stays in
// installing so the next boot retries.
func (m *Machine) HandleInstallFailure(ctx context.Context, nodeID string, installErr string) (*node.Node, error) {
	unlock := m.locks.Lock(nodeID)

	n, err := m.store.GetNode(ctx, nodeID)
	if err != nil {
		unlock()
		return nil, fmt.Errorf("loading node %s: %w", nodeID, err)
	}

	n.InstallAttempts++
	n.LastInstallErr = installErr
	n.UpdatedAt = time.Now()

	reachedLimit := n.InstallAttempts >= m.maxInstallAttempts

	if err := m.store.SaveNode(ctx, n); err != nil {
		unlock()
		return nil, fmt.Errorf("saving node %s: %w", nodeID, err)
	}
	unlock()

	if !reachedLimit {
		return n, nil
	}

	meta, _ := json.Marshal(map[string]string{"error": installErr})
	return m.Transition(ctx, nodeID, node.StateInstallFailed, node.TriggeredByAuto, meta)
}

// MaxInstallAttempts returns the configured threshold.
func (m *Machine) MaxInstallAttempts() int {
	return m.maxInstallAttempts
}

// WithNodeLock serializes fn against Transition, HandleInstallFailure, and
// every other WithNodeLock call for the same node id. Every package that
// performs its own GetNode -> mutate -> SaveNode sequence outside of
// Transition (event ingest bookkeeping, boot-engine observation, scheduled
// health recomputation, queue-drain writes) must route that sequence
// through this method, since SaveNode overwrites the full row and an
// unserialized writer can silently revert a concurrent transition.
func (m *Machine) WithNodeLock(nodeID string, fn func() error) error {
	unlock := m.locks.Lock(nodeID)
	defer unlock()
	return fn()
}
