// Copyright © 2026 PureBoot Contributors
//
// SPDX-License-Identifier: MIT

package node

import (
	"encoding/json"
	"time"
)

// QueueItemType discriminates the kind of mutation a site agent queued
// while the central controller was unreachable.
type QueueItemType string

const (
	QueueRegistration QueueItemType = "registration"
	QueueStateUpdate  QueueItemType = "state_update"
	QueueEvent        QueueItemType = "event"
)

// QueueItemStatus is the lifecycle state of a queued mutation.
type QueueItemStatus string

const (
	QueueItemPending    QueueItemStatus = "pending"
	QueueItemProcessing QueueItemStatus = "processing"
	QueueItemFailed     QueueItemStatus = "failed"
)

// QueueItem is a pending mutation waiting for the central controller to
// become reachable again (site agent only).
type QueueItem struct {
	ResourceMeta

	Sequence  uint64          `json:"sequence"`
	NodeID    string          `json:"nodeId"`
	Type      QueueItemType   `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempts  int             `json:"attempts"`
	LastError string          `json:"lastError,omitempty"`
	Status    QueueItemStatus `json:"status"`
}

// ConflictType classifies the divergence found between cached and central
// node state on reconnect.
type ConflictType string

const (
	ConflictStateMismatch  ConflictType = "state_mismatch"
	ConflictMissingLocal   ConflictType = "missing_local"
	ConflictMissingCentral ConflictType = "missing_central"
)

// Conflict records a divergence detected between locally cached state and
// central state on reconnect (site agent only).
type Conflict struct {
	ResourceMeta

	NodeMAC       string           `json:"nodeMac"`
	LocalState    State            `json:"localState,omitempty"`
	CentralState  State            `json:"centralState,omitempty"`
	LocalTime     time.Time        `json:"localTime,omitempty"`
	CentralTime   time.Time        `json:"centralTime,omitempty"`
	Type          ConflictType     `json:"type"`
	Resolved      bool             `json:"resolved"`
	ResolutionVia ConflictStrategy `json:"resolutionVia,omitempty"`
}
