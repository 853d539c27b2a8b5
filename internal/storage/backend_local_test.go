// Copyright © 2026 PureBoot Contributors
//
// SPDX-License-Identifier: MIT

package storage

import (
	"bytes"
	"context"
	"io"
	"testing"
)

func TestLocalBackendWriteReadRoundTrip(t *testing.T) {
	b, err := NewLocalBackend(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalBackend: %v", err)
	}

	ctx := context.Background()
	content := []byte("kernel image bytes")
	if err := b.Write(ctx, "images/vmlinuz", bytes.NewReader(content)); err != nil {
		t.Fatalf("Write: %v", err)
	}

	rc, info, checksum, err := b.Read(ctx, "images/vmlinuz")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	defer rc.Close()

	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("reading content: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Fatalf("content mismatch: got %q want %q", got, content)
	}
	if info.SizeBytes != int64(len(content)) {
		t.Fatalf("expected size %d, got %d", len(content), info.SizeBytes)
	}
	if checksum == "" {
		t.Fatalf("expected non-empty checksum")
	}
}

func TestLocalBackendListReturnsEntries(t *testing.T) {
	b, err := NewLocalBackend(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalBackend: %v", err)
	}

	ctx := context.Background()
	b.Write(ctx, "workflows/a.yaml", bytes.NewReader([]byte("a")))
	b.Write(ctx, "workflows/b.yaml", bytes.NewReader([]byte("b")))

	entries, err := b.List(ctx, "workflows")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
}

func TestLocalBackendRejectsPathEscape(t *testing.T) {
	b, err := NewLocalBackend(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalBackend: %v", err)
	}
	if _, _, _, err := b.Read(context.Background(), "../../../etc/passwd"); err == nil {
		t.Fatalf("expected path escape to be rejected")
	}
}

func TestLocalBackendMoveRelocatesFile(t *testing.T) {
	b, err := NewLocalBackend(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalBackend: %v", err)
	}
	ctx := context.Background()
	b.Write(ctx, "staging/image.img", bytes.NewReader([]byte("data")))

	if err := b.Move(ctx, "staging/image.img", "published/image.img"); err != nil {
		t.Fatalf("Move: %v", err)
	}
	if _, _, _, err := b.Read(ctx, "published/image.img"); err != nil {
		t.Fatalf("expected moved file to be readable at destination: %v", err)
	}
	if _, _, _, err := b.Read(ctx, "staging/image.img"); err == nil {
		t.Fatalf("expected source to no longer exist after move")
	}
}

func TestISCSIBackendDeclinesAllOperations(t *testing.T) {
	b := &ISCSIBackend{TargetIQN: "iqn.2026-01.example:target0"}
	ctx := context.Background()

	if _, err := b.List(ctx, "/"); err != ErrOperationNotSupported {
		t.Fatalf("expected ErrOperationNotSupported from List, got %v", err)
	}
	if _, _, _, err := b.Read(ctx, "x"); err != ErrOperationNotSupported {
		t.Fatalf("expected ErrOperationNotSupported from Read, got %v", err)
	}
	if err := b.Write(ctx, "x", bytes.NewReader(nil)); err != ErrOperationNotSupported {
		t.Fatalf("expected ErrOperationNotSupported from Write, got %v", err)
	}
	if err := b.Delete(ctx, "x"); err != ErrOperationNotSupported {
		t.Fatalf("expected ErrOperationNotSupported from Delete, got %v", err)
	}
	if err := b.Move(ctx, "x", "y"); err != ErrOperationNotSupported {
		t.Fatalf("expected ErrOperationNotSupported from Move, got %v", err)
	}
}
