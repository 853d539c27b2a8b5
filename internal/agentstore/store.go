// Copyright © 2026 PureBoot Contributors
//
// SPDX-License-Identifier: MIT

// Package agentstore is the site agent's local single-writer store:
// a cached view of node state, a content cache index, the persistent
// mutation queue that survives a restart while the controller is
// unreachable, and detected conflicts awaiting resolution. Backed by
// go.etcd.io/bbolt, an embedded single-writer key-value store well suited
// to a site agent that runs unattended on a single host and must not lose
// queued mutations across a crash.
package agentstore

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/mrveiss/pureboot/pkg/node"
)

var (
	bucketNodes     = []byte("nodes")
	bucketQueue     = []byte("queue")
	bucketConflicts = []byte("conflicts")
	bucketContent   = []byte("content")
)

// ContentEntry records a locally cached boot artifact (kernel, initrd, or
// workflow file) mirrored from the controller.
type ContentEntry struct {
	Path       string    `json:"path"`
	WorkflowID string    `json:"workflowId"`
	SHA256     string    `json:"sha256"`
	SizeBytes  int64     `json:"sizeBytes"`
	CachedAt   time.Time `json:"cachedAt"`
}

// Store wraps a bbolt database with the typed accessors the site agent
// needs. A single Store must not be shared across processes; bbolt itself
// enforces this with an exclusive file lock.
type Store struct {
	db *bbolt.DB
}

// Open opens (creating if necessary) the bbolt file at path and ensures all
// buckets exist.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening agent store %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketNodes, bucketQueue, bucketConflicts, bucketContent} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("creating bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying bbolt file lock.
func (s *Store) Close() error {
	return s.db.Close()
}

// PutNode caches a node's current view under its MAC so the site agent can
// serve boot decisions while disconnected.
func (s *Store) PutNode(n *node.Node) error {
	buf, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshaling cached node %s: %w", n.MAC, err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketNodes).Put([]byte(n.MAC), buf)
	})
}

// GetNode returns the cached node for mac, or nil if not cached.
func (s *Store) GetNode(mac string) (*node.Node, error) {
	var n *node.Node
	err := s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(bucketNodes).Get([]byte(mac))
		if raw == nil {
			return nil
		}
		var decoded node.Node
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return fmt.Errorf("decoding cached node %s: %w", mac, err)
		}
		n = &decoded
		return nil
	})
	return n, err
}

// ListNodes returns every cached node, in undefined order.
func (s *Store) ListNodes() ([]*node.Node, error) {
	var out []*node.Node
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketNodes).ForEach(func(k, v []byte) error {
			var n node.Node
			if err := json.Unmarshal(v, &n); err != nil {
				return fmt.Errorf("decoding cached node %s: %w", k, err)
			}
			out = append(out, &n)
			return nil
		})
	})
	return out, err
}

// PutContent records a cached boot artifact.
func (s *Store) PutContent(key string, entry ContentEntry) error {
	buf, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling content entry %s: %w", key, err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketContent).Put([]byte(key), buf)
	})
}

// GetContent returns the cached content entry for key, or nil if absent.
func (s *Store) GetContent(key string) (*ContentEntry, error) {
	var entry *ContentEntry
	err := s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(bucketContent).Get([]byte(key))
		if raw == nil {
			return nil
		}
		var decoded ContentEntry
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return fmt.Errorf("decoding content entry %s: %w", key, err)
		}
		entry = &decoded
		return nil
	})
	return entry, err
}

// EnqueueMutation appends a mutation to the persistent FIFO queue with the
// next monotonic sequence number, surviving a site-agent restart.
func (s *Store) EnqueueMutation(item *node.QueueItem) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketQueue)
		seq, err := b.NextSequence()
		if err != nil {
			return fmt.Errorf("allocating queue sequence: %w", err)
		}
		item.Sequence = seq
		buf, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("marshaling queue item: %w", err)
		}
		return b.Put(sequenceKey(seq), buf)
	})
}

// PendingMutations returns every queued mutation in FIFO order, including
// ones already marked QueueItemFailed (kept around for operator inspection
// rather than discarded). Callers that drive retry loops must not treat a
// non-empty result as "more retryable work exists" — filter by Status
// themselves, since a terminally failed item never becomes actionable
// again. bbolt keeps bucket keys sorted, and sequenceKey is a fixed-width
// big-endian encoding so numeric and lexicographic order agree.
func (s *Store) PendingMutations() ([]*node.QueueItem, error) {
	var out []*node.QueueItem
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketQueue).ForEach(func(k, v []byte) error {
			var item node.QueueItem
			if err := json.Unmarshal(v, &item); err != nil {
				return fmt.Errorf("decoding queue item: %w", err)
			}
			out = append(out, &item)
			return nil
		})
	})
	return out, err
}

// UpdateMutation rewrites an existing queue item (after an attempt), keyed
// by its sequence number.
func (s *Store) UpdateMutation(item *node.QueueItem) error {
	buf, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshaling queue item: %w", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketQueue).Put(sequenceKey(item.Sequence), buf)
	})
}

// DequeueMutation removes a successfully drained mutation from the queue.
func (s *Store) DequeueMutation(sequence uint64) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketQueue).Delete(sequenceKey(sequence))
	})
}

// RecordConflict persists a detected conflict for operator review.
func (s *Store) RecordConflict(c *node.Conflict) error {
	buf, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling conflict: %w", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketConflicts).Put([]byte(c.ID), buf)
	})
}

// ListUnresolvedConflicts returns every conflict not yet marked resolved.
func (s *Store) ListUnresolvedConflicts() ([]*node.Conflict, error) {
	var out []*node.Conflict
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketConflicts).ForEach(func(k, v []byte) error {
			var c node.Conflict
			if err := json.Unmarshal(v, &c); err != nil {
				return fmt.Errorf("decoding conflict %s: %w", k, err)
			}
			if !c.Resolved {
				out = append(out, &c)
			}
			return nil
		})
	})
	return out, err
}

func sequenceKey(seq uint64) []byte {
	key := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		key[i] = byte(seq)
		seq >>= 8
	}
	return key
}
