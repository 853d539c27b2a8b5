// Copyright © 2026 PureBoot Contributors
//
// SPDX-License-Identifier: MIT

package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
)

// AzureBackend serves files from a single Azure Blob container, standing in
// for a cloud object-storage backend alongside the local filesystem and
// iSCSI implementations.
type AzureBackend struct {
	client        *azblob.Client
	containerName string
}

// NewAzureBackend constructs an AzureBackend from a connection string and
// container name.
func NewAzureBackend(connectionString, containerName string) (*AzureBackend, error) {
	client, err := azblob.NewClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("constructing azure blob client: %w", err)
	}
	return &AzureBackend{client: client, containerName: containerName}, nil
}

func (b *AzureBackend) List(ctx context.Context, prefix string) ([]FileInfo, error) {
	var out []FileInfo
	prefix = strings.TrimPrefix(prefix, "/")
	pager := b.client.NewListBlobsFlatPager(b.containerName, &container.ListBlobsFlatOptions{
		Prefix: &prefix,
	})
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing azure blobs under %s: %w", prefix, err)
		}
		for _, item := range page.Segment.BlobItems {
			info := FileInfo{Path: *item.Name}
			if item.Properties != nil {
				if item.Properties.ContentLength != nil {
					info.SizeBytes = *item.Properties.ContentLength
				}
				if item.Properties.LastModified != nil {
					info.ModTime = *item.Properties.LastModified
				}
			}
			out = append(out, info)
		}
	}
	return out, nil
}

func (b *AzureBackend) Read(ctx context.Context, path string) (io.ReadCloser, FileInfo, string, error) {
	path = strings.TrimPrefix(path, "/")
	resp, err := b.client.DownloadStream(ctx, b.containerName, path, nil)
	if err != nil {
		return nil, FileInfo{}, "", fmt.Errorf("downloading azure blob %s: %w", path, err)
	}

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, FileInfo{}, "", fmt.Errorf("reading azure blob %s: %w", path, err)
	}

	sum := sha256.Sum256(body)
	info := FileInfo{Path: path, SizeBytes: int64(len(body))}
	if resp.LastModified != nil {
		info.ModTime = *resp.LastModified
	}
	return io.NopCloser(bytes.NewReader(body)), info, hex.EncodeToString(sum[:]), nil
}

func (b *AzureBackend) Write(ctx context.Context, path string, content io.Reader) error {
	path = strings.TrimPrefix(path, "/")
	body, err := io.ReadAll(content)
	if err != nil {
		return fmt.Errorf("reading upload content for %s: %w", path, err)
	}
	_, err = b.client.UploadBuffer(ctx, b.containerName, path, body, nil)
	if err != nil {
		return fmt.Errorf("uploading azure blob %s: %w", path, err)
	}
	return nil
}

func (b *AzureBackend) Delete(ctx context.Context, path string) error {
	path = strings.TrimPrefix(path, "/")
	_, err := b.client.DeleteBlob(ctx, b.containerName, path, nil)
	if err != nil {
		return fmt.Errorf("deleting azure blob %s: %w", path, err)
	}
	return nil
}

// Move is implemented as copy-then-delete: the Azure Blob API has no atomic
// rename, only server-side copy.
func (b *AzureBackend) Move(ctx context.Context, src, dst string) error {
	src = strings.TrimPrefix(src, "/")
	dst = strings.TrimPrefix(dst, "/")

	srcClient := b.client.ServiceClient().NewContainerClient(b.containerName).NewBlobClient(src)
	dstClient := b.client.ServiceClient().NewContainerClient(b.containerName).NewBlobClient(dst)

	if _, err := dstClient.StartCopyFromURL(ctx, srcClient.URL(), nil); err != nil {
		return fmt.Errorf("copying azure blob %s to %s: %w", src, dst, err)
	}
	if err := b.Delete(ctx, src); err != nil {
		return fmt.Errorf("removing source azure blob %s after copy: %w", src, err)
	}
	return nil
}
