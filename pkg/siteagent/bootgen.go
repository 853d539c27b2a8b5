// Copyright © 2026 PureBoot Contributors
//
// SPDX-License-Identifier: MIT

package siteagent

import (
	"fmt"
	"time"

	"github.com/mrveiss/pureboot/pkg/node"
	"github.com/mrveiss/pureboot/pkg/validation"
	"github.com/mrveiss/pureboot/pkg/workflow"
)

const offlineBanner = `# OFFLINE MODE — serving from local cache
# last_sync: %s
`

// BootGenerator mirrors pkg/bootengine's decision algorithm against the
// site agent's local cache instead of the live store, so a remote site can
// keep booting nodes while disconnected from the controller.
type BootGenerator struct {
	cache      *Cache
	resolver   *workflow.Resolver
	serverURL  string
	lastSyncAt func() time.Time
}

// NewBootGenerator constructs a BootGenerator. lastSyncAt reports the time
// of the most recent successful full resync, stamped onto every offline
// script.
func NewBootGenerator(cache *Cache, resolver *workflow.Resolver, serverURL string, lastSyncAt func() time.Time) *BootGenerator {
	return &BootGenerator{cache: cache, resolver: resolver, serverURL: serverURL, lastSyncAt: lastSyncAt}
}

// Decide returns the iPXE script to serve for mac while offline. An unknown
// MAC gets a discovery script; a known MAC gets a cached install script (if
// pending/installing with a resolvable workflow) or a local-boot script
// otherwise
func (g *BootGenerator) Decide(mac string) string {
	banner := fmt.Sprintf(offlineBanner, g.lastSyncAt().Format(time.RFC3339))

	normalized, err := validation.NormalizeMAC(mac)
	if err != nil {
		return banner + localBootBody
	}

	n, err := g.cache.GetNode(normalized)
	if err != nil || n == nil {
		return banner + discoveryBody
	}

	switch n.State {
	case node.StateDiscovered, node.StateIgnored:
		return banner + discoveryBody

	case node.StatePending, node.StateInstalling:
		if n.WorkflowID == "" {
			return banner + noWorkflowBody
		}
		wf, err := g.resolver.Get(n.WorkflowID)
		if err != nil {
			return banner + noWorkflowBody
		}
		cmdline := workflow.Substitute(wf.Cmdline, workflow.Variables{
			Server: g.serverURL,
			NodeID: n.ID,
			MAC:    n.MAC,
			IP:     n.IP,
		})
		return banner + fmt.Sprintf(installBody, g.serverURL, wf.Kernel, g.serverURL, wf.Initrd, cmdline)

	default:
		return banner + localBootBody
	}
}

const discoveryBody = `#!ipxe
echo Unknown node, booting discovery image (offline mode)
chain http://${next-server}/discovery.ipxe
`

const noWorkflowBody = `#!ipxe
echo No workflow cached for this node, local boot (offline mode)
sanboot --no-describe --drive 0x80
`

const installBody = `#!ipxe
echo Installing from local cache (offline mode)
kernel %s%s
initrd %s%s
imgargs vmlinuz %s
boot
`

const localBootBody = `#!ipxe
sanboot --no-describe --drive 0x80
`
