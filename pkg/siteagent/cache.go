// Copyright © 2026 PureBoot Contributors
//
// SPDX-License-Identifier: MIT

package siteagent

import (
	"fmt"
	"time"

	"github.com/mrveiss/pureboot/internal/agentstore"
	"github.com/mrveiss/pureboot/pkg/node"
)

// Cache is the agent's local view of node state and mirrored content; its
// node.CachePolicy (minimal|assigned|mirror|pattern) controls which content
// the agent mirrors locally.
type Cache struct {
	store  *agentstore.Store
	policy node.CachePolicy
}

// NewCache constructs a Cache backed by the given agent store.
func NewCache(store *agentstore.Store, policy node.CachePolicy) *Cache {
	return &Cache{store: store, policy: policy}
}

// PutNode updates the cached view of a node's last-known state.
func (c *Cache) PutNode(n *node.Node) error {
	return c.store.PutNode(n)
}

// GetNode returns the cached node for mac, or nil if never observed.
func (c *Cache) GetNode(mac string) (*node.Node, error) {
	return c.store.GetNode(mac)
}

// ListNodes returns every cached node.
func (c *Cache) ListNodes() ([]*node.Node, error) {
	return c.store.ListNodes()
}

// ShouldCacheContent reports whether the content cache policy permits
// mirroring the named workflow's artifacts locally.
func (c *Cache) ShouldCacheContent(wf *node.Workflow, assignedWorkflowIDs map[string]bool) bool {
	switch c.policy {
	case node.CacheMirror:
		return true
	case node.CacheAssigned:
		return assignedWorkflowIDs[wf.ID]
	case node.CacheMinimal:
		return false
	case node.CachePattern:
		return assignedWorkflowIDs[wf.ID]
	default:
		return false
	}
}

// RecordContent marks a boot artifact as locally cached.
func (c *Cache) RecordContent(key, path, workflowID, sha256 string, size int64) error {
	return c.store.PutContent(key, agentstore.ContentEntry{
		Path:       path,
		WorkflowID: workflowID,
		SHA256:     sha256,
		SizeBytes:  size,
		CachedAt:   time.Now(),
	})
}

// Content returns the cached artifact entry for key, or an error if it has
// never been mirrored.
func (c *Cache) Content(key string) (*agentstore.ContentEntry, error) {
	entry, err := c.store.GetContent(key)
	if err != nil {
		return nil, fmt.Errorf("looking up content %s: %w", key, err)
	}
	if entry == nil {
		return nil, fmt.Errorf("content %s not mirrored locally", key)
	}
	return entry, nil
}
