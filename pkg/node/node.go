// Copyright © 2026 PureBoot Contributors
//
// SPDX-License-Identifier: MIT

// Package node defines the Node resource and the other core entities of the
// node lifecycle engine: groups/sites, workflows' runtime view, state logs,
// events, health snapshots and alerts.
package node

import (
	"time"
)

// Architecture is the CPU architecture reported or assumed for a node.
type Architecture string

const (
	ArchX86_64  Architecture = "x86_64"
	ArchARM64   Architecture = "arm64"
	ArchAARCH64 Architecture = "aarch64"
)

// BootMode is the firmware boot mode of a node.
type BootMode string

const (
	BootModeBIOS BootMode = "bios"
	BootModeUEFI BootMode = "uefi"
)

// State is one of the node lifecycle states recognized by pkg/statemachine.
type State string

const (
	StateDiscovered     State = "discovered"
	StateIgnored        State = "ignored"
	StatePending        State = "pending"
	StateInstalling     State = "installing"
	StateInstalled      State = "installed"
	StateActive         State = "active"
	StateReprovision    State = "reprovision"
	StateMigrating      State = "migrating"
	StateRetired        State = "retired"
	StateDecommissioned State = "decommissioned"
	StateWiping         State = "wiping"
	StateInstallFailed  State = "install_failed"
)

// HealthStatus is the derived health classification of a node.
type HealthStatus string

const (
	HealthUnknown HealthStatus = "unknown"
	HealthHealthy HealthStatus = "healthy"
	HealthStale   HealthStatus = "stale"
	HealthOffline HealthStatus = "offline"
)

// ResourceMeta is the surrogate-id / timestamp block shared by every
// persisted entity.
type ResourceMeta struct {
	ID        string    `json:"id" db:"id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// Hardware carries the optional hardware descriptors for a node.
type Hardware struct {
	Vendor     string `json:"vendor,omitempty" db:"vendor"`
	Model      string `json:"model,omitempty" db:"model"`
	Serial     string `json:"serial,omitempty" db:"serial"`
	SystemUUID string `json:"systemUuid,omitempty" db:"system_uuid"`
}

// HardwareHints is the optional identification payload accompanying a PXE
// request or status report.
type HardwareHints struct {
	Vendor     string `json:"vendor,omitempty"`
	Model      string `json:"model,omitempty"`
	Serial     string `json:"serial,omitempty"`
	SystemUUID string `json:"systemUuid,omitempty"`
}

// Node is one physical or virtual machine, identified by a normalized MAC
// address.
type Node struct {
	ResourceMeta

	MAC      string       `json:"mac" db:"mac" validate:"required"`
	Hostname string       `json:"hostname,omitempty" db:"hostname"`
	IP       string       `json:"ip,omitempty" db:"ip"`
	Arch     Architecture `json:"architecture" db:"architecture" validate:"required,oneof=x86_64 arm64 aarch64"`
	BootMode BootMode     `json:"bootMode" db:"boot_mode" validate:"required,oneof=bios uefi"`
	Hardware Hardware     `json:"hardware" db:"-"`

	GroupID string   `json:"groupId,omitempty" db:"group_id"`
	Tags    []string `json:"tags,omitempty" db:"-"`

	State          State  `json:"state" db:"state"`
	WorkflowID     string `json:"workflowId,omitempty" db:"workflow_id"`
	InstallAttempts int   `json:"installAttempts" db:"install_attempts"`
	LastInstallErr string `json:"lastInstallError,omitempty" db:"last_install_error"`

	BootCount      int        `json:"bootCount" db:"boot_count"`
	LastBootAt     *time.Time `json:"lastBootAt,omitempty" db:"last_boot_at"`
	LastIPChangeAt *time.Time `json:"lastIpChangeAt,omitempty" db:"last_ip_change_at"`
	PreviousIP     string     `json:"previousIp,omitempty" db:"previous_ip"`

	HealthStatus HealthStatus `json:"healthStatus" db:"health_status"`
	HealthScore  int          `json:"healthScore" db:"health_score"`

	LastSeenAt     *time.Time `json:"lastSeenAt,omitempty" db:"last_seen_at"`
	StateChangedAt time.Time  `json:"stateChangedAt" db:"state_changed_at"`
}

// HasTag reports whether the node carries the given tag.
func (n *Node) HasTag(tag string) bool {
	for _, t := range n.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// AddTag adds tag if it is not already present; it is a no-op otherwise,
// preserving invariant: tags are unique per node.
func (n *Node) AddTag(tag string) {
	if !n.HasTag(tag) {
		n.Tags = append(n.Tags, tag)
	}
}

// RemoveTag removes tag if present.
func (n *Node) RemoveTag(tag string) {
	out := n.Tags[:0]
	for _, t := range n.Tags {
		if t != tag {
			out = append(out, t)
		}
	}
	n.Tags = out
}

// FillHardware copies non-empty fields from hints into n.Hardware, never
// overwriting an existing value. Used on the boot path.
func (n *Node) FillHardware(hints HardwareHints) {
	if n.Hardware.Vendor == "" {
		n.Hardware.Vendor = hints.Vendor
	}
	if n.Hardware.Model == "" {
		n.Hardware.Model = hints.Model
	}
	if n.Hardware.Serial == "" {
		n.Hardware.Serial = hints.Serial
	}
	if n.Hardware.SystemUUID == "" {
		n.Hardware.SystemUUID = hints.SystemUUID
	}
}

// OverwriteHardware copies every non-empty field from hints into
// n.Hardware, overwriting existing values. Used on the event-ingest path
//, where a running node is authoritative about itself.
func (n *Node) OverwriteHardware(hints HardwareHints) {
	if hints.Vendor != "" {
		n.Hardware.Vendor = hints.Vendor
	}
	if hints.Model != "" {
		n.Hardware.Model = hints.Model
	}
	if hints.Serial != "" {
		n.Hardware.Serial = hints.Serial
	}
	if hints.SystemUUID != "" {
		n.Hardware.SystemUUID = hints.SystemUUID
	}
}

// ObserveIP updates n.IP, tracking the previous value and the time of change
// when the client IP differs from what is already recorded.
func (n *Node) ObserveIP(clientIP string, now time.Time) {
	if clientIP == "" || clientIP == n.IP {
		return
	}
	if n.IP != "" {
		n.PreviousIP = n.IP
		n.LastIPChangeAt = &now
	}
	n.IP = clientIP
}
