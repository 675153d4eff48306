// Mediaforge - Resumable Media Upload and Transcoding Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	"github.com/tomtom215/mediaforge/internal/config"
)

// AzureStore stores objects as block blobs in one container.
type AzureStore struct {
	client    *azblob.Client
	container string
}

// NewAzureStore connects with a storage account connection string.
func NewAzureStore(cfg config.AzureStorageConfig) (*AzureStore, error) {
	if cfg.ConnectionString == "" || cfg.Container == "" {
		return nil, errors.New("azure connection string and container are required")
	}
	client, err := azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("create Azure client: %w", err)
	}
	return &AzureStore{client: client, container: cfg.Container}, nil
}

// Put implements Store. UploadStream stages blocks and commits the block
// list last, so readers never observe a partial blob.
func (a *AzureStore) Put(ctx context.Context, key string, r io.Reader, _ int64, contentType string) error {
	clean, err := CleanKey(key)
	if err != nil {
		return err
	}
	var opts *azblob.UploadStreamOptions
	if contentType != "" {
		opts = &azblob.UploadStreamOptions{
			HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &contentType},
		}
	}
	if _, err := a.client.UploadStream(ctx, a.container, clean, r, opts); err != nil {
		return fmt.Errorf("azure upload %s: %w", clean, err)
	}
	return nil
}

// Get implements Store.
func (a *AzureStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	clean, err := CleanKey(key)
	if err != nil {
		return nil, err
	}
	resp, err := a.client.DownloadStream(ctx, a.container, clean, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, clean)
		}
		return nil, fmt.Errorf("azure download %s: %w", clean, err)
	}
	return resp.Body, nil
}

// Stat implements Store.
func (a *AzureStore) Stat(ctx context.Context, key string) (ObjectInfo, error) {
	clean, err := CleanKey(key)
	if err != nil {
		return ObjectInfo{}, err
	}
	bc := a.client.ServiceClient().NewContainerClient(a.container).NewBlobClient(clean)
	props, err := bc.GetProperties(ctx, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return ObjectInfo{}, fmt.Errorf("%w: %s", ErrObjectNotFound, clean)
		}
		return ObjectInfo{}, fmt.Errorf("azure properties %s: %w", clean, err)
	}
	info := ObjectInfo{Key: clean}
	if props.ContentLength != nil {
		info.Size = *props.ContentLength
	}
	if props.ContentType != nil {
		info.ContentType = *props.ContentType
	}
	if props.LastModified != nil {
		info.ModTime = *props.LastModified
	}
	return info, nil
}

// Delete implements Store.
func (a *AzureStore) Delete(ctx context.Context, key string) error {
	clean, err := CleanKey(key)
	if err != nil {
		return err
	}
	_, err = a.client.DeleteBlob(ctx, a.container, clean, nil)
	if err != nil && !bloberror.HasCode(err, bloberror.BlobNotFound) {
		return fmt.Errorf("azure delete %s: %w", clean, err)
	}
	return nil
}

// Backend implements Store.
func (a *AzureStore) Backend() string { return "azure-blob" }

var _ Store = (*AzureStore)(nil)
