// Copyright © 2026 PureBoot Contributors
//
// SPDX-License-Identifier: MIT

package node

// ConflictStrategy is the site's policy for reconciling a detected
// divergence between cached and central state.
type ConflictStrategy string

const (
	ConflictCentralWins ConflictStrategy = "central_wins"
	ConflictLastWrite   ConflictStrategy = "last_write"
	ConflictSiteWins    ConflictStrategy = "site_wins"
	ConflictManual      ConflictStrategy = "manual"
)

// CachePolicy controls which boot artifacts a site agent mirrors locally.
type CachePolicy string

const (
	CacheMinimal  CachePolicy = "minimal"
	CacheAssigned CachePolicy = "assigned"
	CacheMirror   CachePolicy = "mirror"
	CachePattern  CachePolicy = "pattern"
)

// AgentConfig holds the site-agent-specific configuration carried by a
// DeviceGroup when IsSite is true.
type AgentConfig struct {
	AutonomyLevel    string           `json:"autonomyLevel,omitempty" db:"autonomy_level"`
	CachePolicy      CachePolicy      `json:"cachePolicy,omitempty" db:"cache_policy"`
	ConflictStrategy ConflictStrategy `json:"conflictStrategy,omitempty" db:"conflict_strategy"`
}

// DeviceGroup is a named collection of nodes with optional shared defaults.
// A DeviceGroup with IsSite set additionally carries agent configuration.
type DeviceGroup struct {
	ResourceMeta

	Name              string `json:"name" db:"name" validate:"required"`
	DefaultWorkflowID string `json:"defaultWorkflowId,omitempty" db:"default_workflow_id"`
	AutoProvision     bool   `json:"autoProvision" db:"auto_provision"`

	IsSite      bool        `json:"isSite" db:"is_site"`
	AgentConfig AgentConfig `json:"agentConfig,omitempty" db:"-"`
}
