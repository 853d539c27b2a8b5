// Copyright © 2026 PureBoot Contributors
//
// SPDX-License-Identifier: MIT

package siteagent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mrveiss/pureboot/internal/agentstore"
	"github.com/mrveiss/pureboot/pkg/client"
	"github.com/mrveiss/pureboot/pkg/node"
)

func openTestAgentStore(t *testing.T) *agentstore.Store {
	t.Helper()
	s, err := agentstore.Open(filepath.Join(t.TempDir(), "agent.db"))
	if err != nil {
		t.Fatalf("agentstore.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestProxyQueuesWhenOffline(t *testing.T) {
	store := openTestAgentStore(t)
	conn := NewConnectivity("http://unused", time.Hour, time.Second, 1, nil)
	conn.record(false) // force offline without waiting on threshold plumbing
	conn.record(false)

	c := client.NewClient("http://unused")
	proxy := NewProxy(conn, c, store)

	result, err := proxy.Write(context.Background(), "n1", node.QueueStateUpdate, []byte(`{"state":"installing"}`))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if result.Status != "queued" || !result.Offline {
		t.Fatalf("expected queued/offline result, got %+v", result)
	}

	pending, err := store.PendingMutations()
	if err != nil {
		t.Fatalf("PendingMutations: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 queued mutation, got %d", len(pending))
	}
}

func TestProcessorDrainsQueueInOrderOnReconnect(t *testing.T) {
	var received []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		received = append(received, body["state"])
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	store := openTestAgentStore(t)
	store.EnqueueMutation(&node.QueueItem{NodeID: "n1", Type: node.QueueStateUpdate, Payload: []byte(`{"state":"pending"}`), Status: node.QueueItemPending})
	store.EnqueueMutation(&node.QueueItem{NodeID: "n1", Type: node.QueueStateUpdate, Payload: []byte(`{"state":"installing"}`), Status: node.QueueItemPending})

	c := client.NewClient(srv.URL)
	proc := NewProcessor(store, c, ProcessorConfig{BatchSize: 10, MaxRetries: 3, RetryDelay: time.Millisecond}, nil)

	if err := proc.Drain(context.Background()); err != nil {
		t.Fatalf("Drain: %v", err)
	}

	pending, _ := store.PendingMutations()
	if len(pending) != 0 {
		t.Fatalf("expected queue fully drained, got %d remaining", len(pending))
	}
	if len(received) != 2 || received[0] != "pending" || received[1] != "installing" {
		t.Fatalf("expected FIFO order [pending installing], got %v", received)
	}
}

func TestProcessorMarksItemFailedAfterMaxRetriesWithoutBlockingOthers(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["state"] == "bad" {
			w.WriteHeader(http.StatusInternalServerError)
			atomic.AddInt32(&calls, 1)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	store := openTestAgentStore(t)
	store.EnqueueMutation(&node.QueueItem{NodeID: "n1", Type: node.QueueStateUpdate, Payload: []byte(`{"state":"bad"}`), Status: node.QueueItemPending})
	store.EnqueueMutation(&node.QueueItem{NodeID: "n2", Type: node.QueueStateUpdate, Payload: []byte(`{"state":"good"}`), Status: node.QueueItemPending})

	c := client.NewClient(srv.URL)
	proc := NewProcessor(store, c, ProcessorConfig{BatchSize: 10, MaxRetries: 2, RetryDelay: time.Millisecond}, nil)

	if err := proc.Drain(context.Background()); err != nil {
		t.Fatalf("Drain: %v", err)
	}

	pending, err := store.PendingMutations()
	if err != nil {
		t.Fatalf("PendingMutations: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected the permanently-failed item to remain in the queue marked failed, got %d items", len(pending))
	}
	if pending[0].Status != node.QueueItemFailed {
		t.Fatalf("expected failed status, got %s", pending[0].Status)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("expected exactly 2 attempts (MaxRetries), got %d", calls)
	}
}
