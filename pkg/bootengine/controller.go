// Copyright © 2026 PureBoot Contributors
//
// SPDX-License-Identifier: MIT

// Package bootengine implements the boot-time decision engine: on
// every PXE/iPXE request, decide what script to hand back based on the
// machine's current state and policy, driven by the node state machine
// and a cache of rendered iPXE scripts.
package bootengine

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/mrveiss/pureboot/pkg/node"
	"github.com/mrveiss/pureboot/pkg/statemachine"
	"github.com/mrveiss/pureboot/pkg/validation"
	"github.com/mrveiss/pureboot/pkg/workflow"
)

// Store is the persistence contract the boot engine needs beyond what the
// state machine already requires.
type Store interface {
	statemachine.NodeStore
	GetNodeByMAC(ctx context.Context, mac string) (*node.Node, error)
	CreateNode(ctx context.Context, n *node.Node) error
}

// Config holds the boot engine's policy knobs.
type Config struct {
	AutoRegister          bool
	DefaultGroupID         string
	ServerURL             string
	InstallTimeoutMinutes int
	DiscoveryWaitSeconds  int
	MaxInstallAttempts    int
}

// Controller decides what iPXE script to serve for an incoming boot
// request.
type Controller struct {
	store    Store
	machine  *statemachine.Machine
	resolver *workflow.Resolver
	cache    *ScriptCache
	cfg      Config
	logger   *log.Logger
}

// NewController constructs a Controller. logger may be nil, in which case a
// stdlib logger prefixed "bootengine: " is created.
func NewController(store Store, machine *statemachine.Machine, resolver *workflow.Resolver, cfg Config, logger *log.Logger) *Controller {
	if logger == nil {
		logger = log.New(log.Writer(), "bootengine: ", log.LstdFlags)
	}
	if cfg.DiscoveryWaitSeconds <= 0 {
		cfg.DiscoveryWaitSeconds = 30
	}
	return &Controller{
		store:    store,
		machine:  machine,
		resolver: resolver,
		cache:    NewScriptCache(5 * time.Minute),
		cfg:      cfg,
		logger:   logger,
	}
}

// Request is the input to Decide: MAC plus optional hardware hints and the
// client's observed IP.
type Request struct {
	MAC      string
	Hints    node.HardwareHints
	ClientIP string
}

// Decide implements the full algorithm. It never returns an error to
// the boot path: the worst case is always a valid local-boot script.
func (c *Controller) Decide(ctx context.Context, req Request) string {
	mac, err := validation.NormalizeMAC(req.MAC)
	if err != nil {
		c.logger.Printf("rejecting boot request with invalid MAC %q: %v", req.MAC, err)
		return localBootScript
	}

	n, err := c.store.GetNodeByMAC(ctx, mac)
	if err != nil {
		if !c.cfg.AutoRegister {
			return localBootScript
		}
		n, err = c.registerNode(ctx, mac, req)
		if err != nil {
			c.logger.Printf("auto-registration failed for %s: %v", mac, err)
			return localBootScript
		}
	}

	c.observe(ctx, n, req)

	switch n.State {
	case node.StateDiscovered, node.StateIgnored:
		return discoveryScript(c.cfg.DiscoveryWaitSeconds)

	case node.StatePending:
		if n.WorkflowID == "" {
			return noWorkflowScript(c.cfg.DiscoveryWaitSeconds)
		}
		return c.installScriptFor(n)

	case node.StateInstalling:
		return c.decideInstalling(ctx, n)

	case node.StateInstallFailed:
		return manualInterventionScript

	default: // installed, active, retired, decommissioned, reprovision, migrating, wiping, or unknown
		return localBootScript
	}
}

func (c *Controller) registerNode(ctx context.Context, mac string, req Request) (*node.Node, error) {
	now := time.Now()
	n := &node.Node{
		ResourceMeta: node.ResourceMeta{ID: uuid.NewString(), CreatedAt: now, UpdatedAt: now},
		MAC:          mac,
		IP:           req.ClientIP,
		Arch:         node.ArchX86_64,
		BootMode:     node.BootModeBIOS,
		GroupID:      c.cfg.DefaultGroupID,
		State:        node.StateDiscovered,
		HealthStatus: node.HealthUnknown,
		HealthScore:  100,
		StateChangedAt: now,
		LastSeenAt:   &now,
	}
	n.FillHardware(req.Hints)
	if err := c.store.CreateNode(ctx, n); err != nil {
		return nil, fmt.Errorf("creating discovered node: %w", err)
	}
	c.logger.Printf("auto-registered node %s (%s) in discovered", n.ID, mac)
	return n, nil
}

// observe applies the always-on step 2 bookkeeping: last_seen_at,
// IP-change tracking, and fill-only hardware capture. Reloads n fresh
// under the node's lock so this never races a concurrent state
// transition or health recompute and overwrites it with a stale row.
func (c *Controller) observe(ctx context.Context, n *node.Node, req Request) {
	err := c.machine.WithNodeLock(n.ID, func() error {
		fresh, err := c.store.GetNode(ctx, n.ID)
		if err != nil {
			return err
		}
		now := time.Now()
		fresh.LastSeenAt = &now
		fresh.ObserveIP(req.ClientIP, now)
		fresh.FillHardware(req.Hints)
		fresh.UpdatedAt = now
		if err := c.store.SaveNode(ctx, fresh); err != nil {
			return err
		}
		*n = *fresh
		return nil
	})
	if err != nil {
		c.logger.Printf("failed to persist boot-time observation for %s: %v", n.MAC, err)
	}
}

func (c *Controller) installScriptFor(n *node.Node) string {
	key := n.MAC + ":" + n.WorkflowID
	if cached, ok := c.cache.Get(key); ok {
		return cached
	}

	wf, err := c.resolver.Get(n.WorkflowID)
	if err != nil {
		return errorScript(fmt.Sprintf("workflow %s not found", n.WorkflowID))
	}

	cmdline := workflow.Substitute(wf.Cmdline, workflow.Variables{
		Server: c.cfg.ServerURL,
		NodeID: n.ID,
		MAC:    n.MAC,
		IP:     n.IP,
	})
	script := installScript(c.cfg.ServerURL, wf.Kernel, wf.Initrd, cmdline)
	c.cache.Set(key, script, n.ID, wf.ID)
	return script
}

func (c *Controller) decideInstalling(ctx context.Context, n *node.Node) string {
	if c.cfg.InstallTimeoutMinutes > 0 {
		elapsed := time.Since(n.StateChangedAt)
		if elapsed > time.Duration(c.cfg.InstallTimeoutMinutes)*time.Minute {
			updated, err := c.machine.HandleInstallFailure(ctx, n.ID, "install timed out")
			if err != nil {
				c.logger.Printf("install-timeout handling failed for %s: %v", n.MAC, err)
				return localBootScript
			}
			c.cache.InvalidateByNodeID(n.ID)
			if updated.State == node.StateInstallFailed {
				return failedInstallScript
			}
			return c.installScriptFor(updated)
		}
	}
	return localBootScript
}
