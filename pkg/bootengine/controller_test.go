// Copyright © 2026 PureBoot Contributors
//
// SPDX-License-Identifier: MIT

package bootengine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mrveiss/pureboot/pkg/node"
	"github.com/mrveiss/pureboot/pkg/statemachine"
	"github.com/mrveiss/pureboot/pkg/workflow"
)

// fakeStore is a minimal Store for controller tests.
type fakeStore struct {
	mu    sync.Mutex
	byID  map[string]*node.Node
	byMAC map[string]string
	logs  []*node.NodeStateLog
}

func newFakeStore() *fakeStore {
	return &fakeStore{byID: make(map[string]*node.Node), byMAC: make(map[string]string)}
}

func (s *fakeStore) GetNode(ctx context.Context, id string) (*node.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	cp := *n
	return &cp, nil
}

func (s *fakeStore) SaveNode(ctx context.Context, n *node.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *n
	s.byID[n.ID] = &cp
	s.byMAC[n.MAC] = n.ID
	return nil
}

func (s *fakeStore) CreateNode(ctx context.Context, n *node.Node) error {
	return s.SaveNode(ctx, n)
}

func (s *fakeStore) GetNodeByMAC(ctx context.Context, mac string) (*node.Node, error) {
	s.mu.Lock()
	id, ok := s.byMAC[mac]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	return s.GetNode(ctx, id)
}

func (s *fakeStore) AppendStateLog(ctx context.Context, l *node.NodeStateLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, l)
	return nil
}

func setupController(t *testing.T, cfg Config) (*Controller, *fakeStore) {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "ubuntu-2404.yaml"), []byte(`
id: ubuntu-2404
name: Ubuntu 24.04
kernel_path: /ubuntu-2404/vmlinuz
initrd_path: /ubuntu-2404/initrd
cmdline: "ip=dhcp node=${node_id} mac=${mac} ip=${ip}"
`), 0o644); err != nil {
		t.Fatalf("writing workflow fixture: %v", err)
	}

	store := newFakeStore()
	machine := statemachine.New(store, nil, cfg.MaxInstallAttempts)
	resolver := workflow.NewResolver(dir)
	if cfg.ServerURL == "" {
		cfg.ServerURL = "http://ctrl"
	}
	return NewController(store, machine, resolver, cfg, nil), store
}

func TestDecideAutoRegistersUnknownMAC(t *testing.T) {
	c, store := setupController(t, Config{AutoRegister: true})

	script := c.Decide(context.Background(), Request{MAC: "aa:bb:cc:dd:ee:01", ClientIP: "10.0.0.5"})
	if !strings.HasPrefix(script, "#!ipxe") || !strings.Contains(script, "discovered") {
		t.Fatalf("expected discovery script, got: %s", script)
	}

	n, err := store.GetNodeByMAC(context.Background(), "aa:bb:cc:dd:ee:01")
	if err != nil {
		t.Fatalf("expected node to be created: %v", err)
	}
	if n.State != node.StateDiscovered {
		t.Fatalf("expected discovered state, got %s", n.State)
	}
}

func TestDecideUnknownMACNoAutoRegisterIsLocalBoot(t *testing.T) {
	c, _ := setupController(t, Config{AutoRegister: false})
	script := c.Decide(context.Background(), Request{MAC: "aa:bb:cc:dd:ee:02"})
	if script != localBootScript {
		t.Fatalf("expected local boot script, got: %s", script)
	}
}

func TestDecidePendingWithWorkflowReturnsInstallScript(t *testing.T) {
	c, store := setupController(t, Config{AutoRegister: true})
	now := time.Now()
	n := &node.Node{
		ResourceMeta: node.ResourceMeta{ID: "n1"},
		MAC:          "aa:bb:cc:dd:ee:03",
		State:        node.StatePending,
		WorkflowID:   "ubuntu-2404",
		StateChangedAt: now,
	}
	store.SaveNode(context.Background(), n)

	script := c.Decide(context.Background(), Request{MAC: n.MAC, ClientIP: "10.0.0.9"})
	if !strings.Contains(script, "kernel http://ctrl/ubuntu-2404/vmlinuz") {
		t.Fatalf("expected composed kernel line, got: %s", script)
	}
	if !strings.Contains(script, "node=n1") || !strings.Contains(script, "mac=aa:bb:cc:dd:ee:03") {
		t.Fatalf("expected variable substitution, got: %s", script)
	}
}

func TestDecidePendingNoWorkflowWaits(t *testing.T) {
	c, store := setupController(t, Config{AutoRegister: true})
	store.SaveNode(context.Background(), &node.Node{ResourceMeta: node.ResourceMeta{ID: "n1"}, MAC: "aa:bb:cc:dd:ee:04", State: node.StatePending})

	script := c.Decide(context.Background(), Request{MAC: "aa:bb:cc:dd:ee:04"})
	if !strings.Contains(script, "No workflow assigned") {
		t.Fatalf("expected no-workflow script, got: %s", script)
	}
}

func TestDecideInstallingRetriesThenFails(t *testing.T) {
	c, store := setupController(t, Config{AutoRegister: true, InstallTimeoutMinutes: 60, MaxInstallAttempts: 3})
	past := time.Now().Add(-61 * time.Minute)
	store.SaveNode(context.Background(), &node.Node{
		ResourceMeta: node.ResourceMeta{ID: "n1"},
		MAC:          "aa:bb:cc:dd:ee:05",
		State:        node.StateInstalling,
		WorkflowID:   "ubuntu-2404",
		StateChangedAt: past,
	})

	// Attempt 1: still installing, retry with install script.
	script := c.Decide(context.Background(), Request{MAC: "aa:bb:cc:dd:ee:05"})
	if !strings.Contains(script, "kernel ") {
		t.Fatalf("expected retry install script, got: %s", script)
	}
	n, _ := store.GetNodeByMAC(context.Background(), "aa:bb:cc:dd:ee:05")
	if n.InstallAttempts != 1 || n.State != node.StateInstalling {
		t.Fatalf("expected attempt 1 still installing, got attempts=%d state=%s", n.InstallAttempts, n.State)
	}

	// Force state_changed_at back into the past again to simulate t=120 and t=180.
	for i := 2; i <= 3; i++ {
		n, _ := store.GetNodeByMAC(context.Background(), "aa:bb:cc:dd:ee:05")
		n.StateChangedAt = time.Now().Add(-61 * time.Minute)
		store.SaveNode(context.Background(), n)
		c.Decide(context.Background(), Request{MAC: "aa:bb:cc:dd:ee:05"})
	}

	final, _ := store.GetNodeByMAC(context.Background(), "aa:bb:cc:dd:ee:05")
	if final.State != node.StateInstallFailed {
		t.Fatalf("expected install_failed after 3 attempts, got %s (attempts=%d)", final.State, final.InstallAttempts)
	}

	script = c.Decide(context.Background(), Request{MAC: "aa:bb:cc:dd:ee:05"})
	if !strings.Contains(script, "manual intervention") {
		t.Fatalf("expected manual-intervention script, got: %s", script)
	}
}

func TestDecideInstallingWithinTimeoutLocalBoots(t *testing.T) {
	c, store := setupController(t, Config{AutoRegister: true, InstallTimeoutMinutes: 60})
	store.SaveNode(context.Background(), &node.Node{
		ResourceMeta: node.ResourceMeta{ID: "n1"},
		MAC:          "aa:bb:cc:dd:ee:06",
		State:        node.StateInstalling,
		StateChangedAt: time.Now(),
	})

	script := c.Decide(context.Background(), Request{MAC: "aa:bb:cc:dd:ee:06"})
	if script != localBootScript {
		t.Fatalf("expected local boot during active install, got: %s", script)
	}
}

func TestDecideNeverOverwritesExistingHardware(t *testing.T) {
	c, store := setupController(t, Config{AutoRegister: true})
	store.SaveNode(context.Background(), &node.Node{
		ResourceMeta: node.ResourceMeta{ID: "n1"},
		MAC:          "aa:bb:cc:dd:ee:07",
		State:        node.StateDiscovered,
		Hardware:     node.Hardware{Vendor: "Dell"},
	})

	c.Decide(context.Background(), Request{MAC: "aa:bb:cc:dd:ee:07", Hints: node.HardwareHints{Vendor: "HP", Model: "DL360"}})

	n, _ := store.GetNodeByMAC(context.Background(), "aa:bb:cc:dd:ee:07")
	if n.Hardware.Vendor != "Dell" {
		t.Fatalf("expected existing vendor to be preserved, got %s", n.Hardware.Vendor)
	}
	if n.Hardware.Model != "DL360" {
		t.Fatalf("expected empty model to be filled, got %s", n.Hardware.Model)
	}
}
