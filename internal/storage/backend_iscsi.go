// Copyright © 2026 PureBoot Contributors
//
// SPDX-License-Identifier: MIT

package storage

import (
	"context"
	"io"
)

// ISCSIBackend models an iSCSI-backed storage target registered purely for
// inventory/topology purposes. It declines every file operation since block
// storage addressed by LUN has no meaningful file-path API.
type ISCSIBackend struct {
	TargetIQN string
}

func (b *ISCSIBackend) List(ctx context.Context, prefix string) ([]FileInfo, error) {
	return nil, ErrOperationNotSupported
}

func (b *ISCSIBackend) Read(ctx context.Context, path string) (io.ReadCloser, FileInfo, string, error) {
	return nil, FileInfo{}, "", ErrOperationNotSupported
}

func (b *ISCSIBackend) Write(ctx context.Context, path string, content io.Reader) error {
	return ErrOperationNotSupported
}

func (b *ISCSIBackend) Delete(ctx context.Context, path string) error {
	return ErrOperationNotSupported
}

func (b *ISCSIBackend) Move(ctx context.Context, src, dst string) error {
	return ErrOperationNotSupported
}
