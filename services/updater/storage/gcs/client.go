// Copyright (C) 2025 BundleNudge (support@bundlenudge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package gcs stores bundle and patch artifacts in Google Cloud Storage.
//
// Objects are laid out bundles/<appID>/<releaseID>/main.jsbundle and
// patches/<appID>/<releaseID>/patch.json. Bundles are immutable once
// written, so URLs handed to devices never need cache invalidation.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	gstorage "cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/bundlenudge/bundlenudge/services/updater/storage"
)

// Client implements storage.BundleStore against a GCS bucket.
type Client struct {
	storageClient *gstorage.Client
	BucketName    string
}

// NewClient opens a GCS-backed bundle store. If saKeyPath is empty,
// application default credentials are used.
func NewClient(ctx context.Context, bucketName, saKeyPath string) (*Client, error) {
	var opts []option.ClientOption
	if saKeyPath != "" {
		if _, err := os.Stat(saKeyPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("service account key not found at path: %s", saKeyPath)
		}
		opts = append(opts, option.WithCredentialsFile(saKeyPath))
	}

	storageClient, err := gstorage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS storage client: %w", err)
	}

	return &Client{
		storageClient: storageClient,
		BucketName:    bucketName,
	}, nil
}

// Close releases the underlying GCS client.
func (c *Client) Close() error {
	return c.storageClient.Close()
}

func bundlePath(appID, releaseID string) string {
	return fmt.Sprintf("bundles/%s/%s/main.jsbundle", appID, releaseID)
}

func patchPath(appID, releaseID string) string {
	return fmt.Sprintf("patches/%s/%s/patch.json", appID, releaseID)
}

// PutBundle writes a release's full bundle text and returns its gs:// URL.
func (c *Client) PutBundle(ctx context.Context, appID, releaseID, contents string) (string, error) {
	path := bundlePath(appID, releaseID)
	if err := c.write(ctx, path, "application/javascript", strings.NewReader(contents)); err != nil {
		return "", err
	}
	return c.url(path), nil
}

// GetBundle fetches a release's full bundle text.
func (c *Client) GetBundle(ctx context.Context, appID, releaseID string) (string, error) {
	data, err := c.read(ctx, bundlePath(appID, releaseID))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// PutPatch writes a release's patch artifact and returns its gs:// URL.
func (c *Client) PutPatch(ctx context.Context, appID, releaseID string, patchJSON []byte) (string, error) {
	path := patchPath(appID, releaseID)
	if err := c.write(ctx, path, "application/json", strings.NewReader(string(patchJSON))); err != nil {
		return "", err
	}
	return c.url(path), nil
}

// GetPatch fetches a release's patch artifact.
func (c *Client) GetPatch(ctx context.Context, appID, releaseID string) ([]byte, error) {
	return c.read(ctx, patchPath(appID, releaseID))
}

func (c *Client) url(path string) string {
	return fmt.Sprintf("gs://%s/%s", c.BucketName, path)
}

func (c *Client) write(ctx context.Context, path, contentType string, r io.Reader) error {
	obj := c.storageClient.Bucket(c.BucketName).Object(path)
	writer := obj.NewWriter(ctx)
	writer.ContentType = contentType
	writer.CacheControl = "public, max-age=31536000, immutable"

	if _, err := io.Copy(writer, r); err != nil {
		writer.Close()
		return fmt.Errorf("failed to write GCS object %s: %w", path, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer for %s: %w", path, err)
	}
	return nil
}

func (c *Client) read(ctx context.Context, path string) ([]byte, error) {
	reader, err := c.storageClient.Bucket(c.BucketName).Object(path).NewReader(ctx)
	if err != nil {
		if errors.Is(err, gstorage.ErrObjectNotExist) {
			return nil, fmt.Errorf("gcs object %s: %w", path, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to open GCS object %s: %w", path, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read GCS object %s: %w", path, err)
	}
	return data, nil
}
