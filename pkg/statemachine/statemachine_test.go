// Copyright © 2026 PureBoot Contributors
//
// SPDX-License-Identifier: MIT

package statemachine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/mrveiss/pureboot/pkg/broadcast"
	"github.com/mrveiss/pureboot/pkg/node"
)

// memStore is a minimal in-memory NodeStore used across pkg tests.
type memStore struct {
	mu    sync.Mutex
	nodes map[string]*node.Node
	logs  []*node.NodeStateLog
}

func newMemStore() *memStore {
	return &memStore{nodes: make(map[string]*node.Node)}
}

func (s *memStore) put(n *node.Node) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *n
	s.nodes[n.ID] = &cp
}

func (s *memStore) GetNode(ctx context.Context, id string) (*node.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[id]
	if !ok {
		return nil, fmt.Errorf("node %s not found", id)
	}
	cp := *n
	return &cp, nil
}

func (s *memStore) SaveNode(ctx context.Context, n *node.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *n
	s.nodes[n.ID] = &cp
	return nil
}

func (s *memStore) AppendStateLog(ctx context.Context, l *node.NodeStateLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, l)
	return nil
}

func (s *memStore) logsFor(id string) []*node.NodeStateLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*node.NodeStateLog
	for _, l := range s.logs {
		if l.NodeID == id {
			out = append(out, l)
		}
	}
	return out
}

func TestCanTransitionLegalTable(t *testing.T) {
	cases := []struct {
		from, to node.State
		want     bool
	}{
		{node.StateDiscovered, node.StatePending, true},
		{node.StateDiscovered, node.StateActive, false},
		{node.StatePending, node.StateInstalling, true},
		{node.StateInstalling, node.StateInstalled, true},
		{node.StateInstalling, node.StateInstallFailed, true},
		{node.StateInstallFailed, node.StatePending, true},
		{node.StateActive, node.StateReprovision, true},
		{node.StateWiping, node.StateDecommissioned, true},
		{node.StateDecommissioned, node.StateWiping, true},
		// retire override: allowed from any non-retired state
		{node.StateDiscovered, node.StateRetired, true},
		{node.StateInstalling, node.StateRetired, true},
		{node.StateRetired, node.StateRetired, false},
	}
	for _, c := range cases {
		if got := CanTransition(c.from, c.to); got != c.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestTransitionHappyPath(t *testing.T) {
	store := newMemStore()
	hub := broadcast.NewHub()
	ch, unsubscribe := hub.Subscribe()
	defer unsubscribe()

	store.put(&node.Node{ResourceMeta: node.ResourceMeta{ID: "n1"}, MAC: "aa:bb:cc:dd:ee:01", State: node.StateDiscovered})

	m := New(store, hub, 3)
	updated, err := m.Transition(context.Background(), "n1", node.StatePending, node.TriggeredByAdmin, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.State != node.StatePending {
		t.Fatalf("expected state pending, got %s", updated.State)
	}

	logs := store.logsFor("n1")
	if len(logs) != 1 || logs[0].ToState != node.StatePending {
		t.Fatalf("expected exactly one state log to pending, got %+v", logs)
	}

	select {
	case evt := <-ch:
		if evt.Type != broadcast.NodeStateChanged {
			t.Fatalf("expected state_changed event, got %s", evt.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a state_changed broadcast")
	}
}

func TestTransitionIllegalReturnsInvalidStateTransition(t *testing.T) {
	store := newMemStore()
	store.put(&node.Node{ResourceMeta: node.ResourceMeta{ID: "n1"}, State: node.StateDiscovered})
	m := New(store, nil, 3)

	_, err := m.Transition(context.Background(), "n1", node.StateActive, node.TriggeredByAdmin, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	var invalid *InvalidStateTransition
	if !asInvalid(err, &invalid) {
		t.Fatalf("expected InvalidStateTransition, got %T: %v", err, err)
	}
	if invalid.From != node.StateDiscovered || invalid.To != node.StateActive {
		t.Fatalf("unexpected error contents: %+v", invalid)
	}

	n, _ := store.GetNode(context.Background(), "n1")
	if n.State != node.StateDiscovered {
		t.Fatalf("node state must be unchanged, got %s", n.State)
	}
	if len(store.logsFor("n1")) != 0 {
		t.Fatal("no state log should be written on an illegal transition")
	}
}

func asInvalid(err error, target **InvalidStateTransition) bool {
	if e, ok := err.(*InvalidStateTransition); ok {
		*target = e
		return true
	}
	return false
}

func TestInstallAttemptsResetOnPendingToInstalling(t *testing.T) {
	store := newMemStore()
	store.put(&node.Node{ResourceMeta: node.ResourceMeta{ID: "n1"}, State: node.StatePending, InstallAttempts: 2})
	m := New(store, nil, 3)

	updated, err := m.Transition(context.Background(), "n1", node.StateInstalling, node.TriggeredByNodeReport, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.InstallAttempts != 0 {
		t.Fatalf("expected install_attempts reset to 0, got %d", updated.InstallAttempts)
	}
}

func TestHandleInstallFailureRetriesThenFails(t *testing.T) {
	store := newMemStore()
	store.put(&node.Node{ResourceMeta: node.ResourceMeta{ID: "n1"}, State: node.StateInstalling})
	m := New(store, nil, 3)
	ctx := context.Background()

	for i := 1; i <= 2; i++ {
		n, err := m.HandleInstallFailure(ctx, "n1", "boom")
		if err != nil {
			t.Fatalf("attempt %d: unexpected error: %v", i, err)
		}
		if n.State != node.StateInstalling {
			t.Fatalf("attempt %d: expected still installing, got %s", i, n.State)
		}
		if n.InstallAttempts != i {
			t.Fatalf("attempt %d: expected install_attempts=%d, got %d", i, i, n.InstallAttempts)
		}
	}

	n, err := m.HandleInstallFailure(ctx, "n1", "boom")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.State != node.StateInstallFailed {
		t.Fatalf("expected install_failed after reaching threshold, got %s", n.State)
	}
	if n.InstallAttempts != 3 {
		t.Fatalf("expected install_attempts=3, got %d", n.InstallAttempts)
	}
}

func TestReplayingInstallCompleteIsNoOp(t *testing.T) {
	store := newMemStore()
	store.put(&node.Node{ResourceMeta: node.ResourceMeta{ID: "n1"}, State: node.StateInstalled})
	m := New(store, nil, 3)

	// installed -> installed is not a legal transition; a duplicate
	// install_complete report must be treated as a no-op by the caller
	// (pkg/ingest), not attempted as a transition.
	if CanTransition(node.StateInstalled, node.StateInstalled) {
		t.Fatal("installed->installed must not be a legal transition")
	}
	if _, err := m.Transition(context.Background(), "n1", node.StateInstalled, node.TriggeredByNodeReport, nil); err == nil {
		t.Fatal("expected a replayed installed->installed transition to be rejected")
	}
	if len(store.logsFor("n1")) != 0 {
		t.Fatal("no state log should be written for a rejected replay")
	}
}
