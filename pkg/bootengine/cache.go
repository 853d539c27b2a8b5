// Copyright © 2026 PureBoot Contributors
//
// SPDX-License-Identifier: MIT

package bootengine

import (
	"sync"
	"time"
)

// CacheEntry is a cached rendered install script. The controller keys it by
// "mac:workflow_id"; only install scripts are cached, so the key does not
// include the lifecycle state.
type CacheEntry struct {
	Script      string
	GeneratedAt time.Time
	ExpiresAt   time.Time
	NodeID      string
	WorkflowID  string
}

// ScriptCache caches generated boot scripts. Entries expire after the TTL;
// the controller also drops a node's entries when it handles an install
// timeout for that node. Other state transitions do not invalidate entries.
type ScriptCache struct {
	mu      sync.RWMutex
	entries map[string]*CacheEntry
	ttl     time.Duration
}

// NewScriptCache creates a cache with the given TTL and starts its
// background cleanup goroutine.
func NewScriptCache(ttl time.Duration) *ScriptCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	c := &ScriptCache{entries: make(map[string]*CacheEntry), ttl: ttl}
	go c.cleanupLoop()
	return c
}

// Get returns the cached script for key if present and unexpired.
func (c *ScriptCache) Get(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok || time.Now().After(entry.ExpiresAt) {
		return "", false
	}
	return entry.Script, true
}

// Set stores script under key, associated with nodeID/workflowID for
// targeted invalidation.
func (c *ScriptCache) Set(key, script, nodeID, workflowID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	c.entries[key] = &CacheEntry{
		Script:      script,
		GeneratedAt: now,
		ExpiresAt:   now.Add(c.ttl),
		NodeID:      nodeID,
		WorkflowID:  workflowID,
	}
}

// InvalidateByNodeID removes every entry for nodeID, called by the
// controller after it handles an install timeout for that node.
func (c *ScriptCache) InvalidateByNodeID(nodeID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, entry := range c.entries {
		if entry.NodeID == nodeID {
			delete(c.entries, key)
		}
	}
}

// InvalidateByWorkflowID removes every entry referencing workflowID. No
// code path in this repository calls it.
func (c *ScriptCache) InvalidateByWorkflowID(workflowID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, entry := range c.entries {
		if entry.WorkflowID == workflowID {
			delete(c.entries, key)
		}
	}
}

func (c *ScriptCache) cleanupLoop() {
	ticker := time.NewTicker(c.ttl / 2)
	defer ticker.Stop()
	for range ticker.C {
		c.mu.Lock()
		now := time.Now()
		for key, entry := range c.entries {
			if now.After(entry.ExpiresAt) {
				delete(c.entries, key)
			}
		}
		c.mu.Unlock()
	}
}
