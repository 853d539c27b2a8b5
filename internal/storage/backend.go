// Copyright © 2026 PureBoot Contributors
//
// SPDX-License-Identifier: MIT

package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrOperationNotSupported is returned by a Backend whose underlying
// transport declines a given capability (iSCSI declines every file op).
var ErrOperationNotSupported = errors.New("storage: operation not supported by this backend")

// FileInfo describes a single entry returned by Backend.List.
type FileInfo struct {
	Path    string
	SizeBytes int64
	ModTime time.Time
	IsDir   bool
}

// Backend is the capability interface file-serving transports implement:
// list, read, write?, delete?, move?. Not every backend
// supports every operation — iSCSI supports none of them, and callers must
// treat ErrOperationNotSupported as an expected outcome, not a bug.
type Backend interface {
	// List enumerates the entries directly under prefix.
	List(ctx context.Context, prefix string) ([]FileInfo, error)
	// Read streams the content at path along with its size and a
	// hex-encoded SHA-256 checksum, for the files endpoint's ETag/
	// X-Checksum-SHA256 headers.
	Read(ctx context.Context, path string) (io.ReadCloser, FileInfo, string, error)
	// Write stores content at path, returning ErrOperationNotSupported for
	// read-only or capability-limited backends.
	Write(ctx context.Context, path string, content io.Reader) error
	// Delete removes the entry at path.
	Delete(ctx context.Context, path string) error
	// Move relocates an entry from src to dst.
	Move(ctx context.Context, src, dst string) error
}
