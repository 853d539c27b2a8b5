// Copyright © 2026 PureBoot Contributors
//
// SPDX-License-Identifier: MIT

package agentstore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mrveiss/pureboot/pkg/node"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agent.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutAndGetNode(t *testing.T) {
	s := openTestStore(t)
	n := &node.Node{ResourceMeta: node.ResourceMeta{ID: "n1"}, MAC: "aa:bb:cc:dd:ee:20", State: node.StatePending}

	if err := s.PutNode(n); err != nil {
		t.Fatalf("PutNode: %v", err)
	}
	got, err := s.GetNode("aa:bb:cc:dd:ee:20")
	if err != nil {
		t.Fatalf("GetNode: %v", err)
	}
	if got == nil || got.ID != "n1" {
		t.Fatalf("expected cached node n1, got %+v", got)
	}
}

func TestGetNodeMissingReturnsNil(t *testing.T) {
	s := openTestStore(t)
	got, err := s.GetNode("no:such:mac")
	if err != nil {
		t.Fatalf("GetNode: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for uncached mac, got %+v", got)
	}
}

func TestEnqueueMutationsPreserveFIFOOrder(t *testing.T) {
	s := openTestStore(t)
	for i := 0; i < 5; i++ {
		if err := s.EnqueueMutation(&node.QueueItem{
			ResourceMeta: node.ResourceMeta{ID: uuid.NewString()},
			NodeID:       "n1",
			Type:         node.QueueStateUpdate,
			Status:       node.QueueItemPending,
		}); err != nil {
			t.Fatalf("EnqueueMutation %d: %v", i, err)
		}
	}

	pending, err := s.PendingMutations()
	if err != nil {
		t.Fatalf("PendingMutations: %v", err)
	}
	if len(pending) != 5 {
		t.Fatalf("expected 5 pending mutations, got %d", len(pending))
	}
	for i, item := range pending {
		if item.Sequence != uint64(i+1) {
			t.Fatalf("expected FIFO sequence order, got %d at index %d", item.Sequence, i)
		}
	}
}

func TestDequeueMutationRemovesItem(t *testing.T) {
	s := openTestStore(t)
	item := &node.QueueItem{ResourceMeta: node.ResourceMeta{ID: uuid.NewString()}, NodeID: "n1", Type: node.QueueEvent}
	if err := s.EnqueueMutation(item); err != nil {
		t.Fatalf("EnqueueMutation: %v", err)
	}

	if err := s.DequeueMutation(item.Sequence); err != nil {
		t.Fatalf("DequeueMutation: %v", err)
	}
	pending, err := s.PendingMutations()
	if err != nil {
		t.Fatalf("PendingMutations: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected queue drained, got %d items", len(pending))
	}
}

func TestRecordAndListUnresolvedConflicts(t *testing.T) {
	s := openTestStore(t)
	c := &node.Conflict{
		ResourceMeta: node.ResourceMeta{ID: uuid.NewString(), CreatedAt: time.Now()},
		NodeMAC:      "aa:bb:cc:dd:ee:21",
		LocalState:   node.StateInstalling,
		CentralState: node.StateInstalled,
		Type:         node.ConflictStateMismatch,
	}
	if err := s.RecordConflict(c); err != nil {
		t.Fatalf("RecordConflict: %v", err)
	}

	unresolved, err := s.ListUnresolvedConflicts()
	if err != nil {
		t.Fatalf("ListUnresolvedConflicts: %v", err)
	}
	if len(unresolved) != 1 {
		t.Fatalf("expected 1 unresolved conflict, got %d", len(unresolved))
	}

	c.Resolved = true
	if err := s.RecordConflict(c); err != nil {
		t.Fatalf("RecordConflict update: %v", err)
	}
	unresolved, err = s.ListUnresolvedConflicts()
	if err != nil {
		t.Fatalf("ListUnresolvedConflicts: %v", err)
	}
	if len(unresolved) != 0 {
		t.Fatalf("expected 0 unresolved conflicts after resolving, got %d", len(unresolved))
	}
}
