// Copyright © 2026 PureBoot Contributors
//
// SPDX-License-Identifier: MIT

package workflow

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeWorkflow(t *testing.T, dir, id, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, id+".yaml"), []byte(body), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
}

func TestGetLoadsAndAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	writeWorkflow(t, dir, "ubuntu-2404", `
id: ubuntu-2404
name: Ubuntu 24.04
kernel_path: /ubuntu-2404/vmlinuz
initrd_path: /ubuntu-2404/initrd
cmdline: "ip=dhcp url=${server}/files/ubuntu-2404/ node=${node_id}"
`)

	r := NewResolver(dir)
	wf, err := r.Get("ubuntu-2404")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if wf.Arch != "x86_64" || wf.BootMode != "bios" {
		t.Fatalf("expected default arch/bootmode, got %v/%v", wf.Arch, wf.BootMode)
	}
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	r := NewResolver(t.TempDir())
	_, err := r.Get("nope")
	if !errors.Is(err, ErrWorkflowNotFound) {
		t.Fatalf("expected ErrWorkflowNotFound, got %v", err)
	}
}

func TestGetMalformedReturnsNotFound(t *testing.T) {
	dir := t.TempDir()
	writeWorkflow(t, dir, "broken", "id: broken\nname: missing kernel/initrd\n")

	r := NewResolver(dir)
	_, err := r.Get("broken")
	if !errors.Is(err, ErrWorkflowNotFound) {
		t.Fatalf("expected ErrWorkflowNotFound, got %v", err)
	}
}

func TestListSkipsMalformedRecords(t *testing.T) {
	dir := t.TempDir()
	writeWorkflow(t, dir, "good", `
id: good
name: Good
kernel_path: /good/vmlinuz
initrd_path: /good/initrd
`)
	writeWorkflow(t, dir, "bad", "id: bad\n")

	r := NewResolver(dir)
	list, err := r.List()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 1 || list[0].ID != "good" {
		t.Fatalf("expected only the valid record, got %+v", list)
	}
}

func TestSubstituteLeavesUnresolvedTokens(t *testing.T) {
	got := Substitute("ip=dhcp ${server} ${mac} ${unknown}", Variables{Server: "http://ctrl", MAC: "aa:bb"})
	want := "ip=dhcp http://ctrl aa:bb ${unknown}"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
