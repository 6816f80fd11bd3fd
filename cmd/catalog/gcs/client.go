// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package gcs stores catalog backups in Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// BackupPrefix is the object prefix used for catalog backups.
const BackupPrefix = "catalog-backups"

// ErrInvalidURI is returned for object URIs not of the form gs://bucket/object.
var ErrInvalidURI = errors.New("gcs: object URI must look like gs://bucket/object")

type Client struct {
	storageClient *storage.Client
	ProjectID     string
	BucketName    string
}

// NewClient creates a client for bucketName.
//
// An empty saKeyPath uses Application Default Credentials; otherwise the
// key file must exist.
func NewClient(ctx context.Context, projectID, bucketName, saKeyPath string) (*Client, error) {
	if bucketName == "" {
		return nil, errors.New("gcs: bucket name is required")
	}

	var opts []option.ClientOption
	if saKeyPath != "" {
		info, err := os.Stat(saKeyPath)
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("service account key not found at path: %s. Please ensure you have the correct key and it is accessible", saKeyPath)
		}
		if err == nil && info.IsDir() {
			return nil, fmt.Errorf("service account key path is a directory: %s", saKeyPath)
		}
		opts = append(opts, option.WithCredentialsFile(saKeyPath))
	}

	storageClient, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS storage client: %w", err)
	}

	return &Client{
		storageClient: storageClient,
		ProjectID:     projectID,
		BucketName:    bucketName,
	}, nil
}

// Close releases the underlying storage client.
func (c *Client) Close() error {
	return c.storageClient.Close()
}

// Upload streams r into object and returns the bytes written.
func (c *Client) Upload(ctx context.Context, object string, r io.Reader) (int64, error) {
	obj := c.storageClient.Bucket(c.BucketName).Object(object)
	writer := obj.NewWriter(ctx)
	writer.ContentType = "application/octet-stream"
	writer.CacheControl = "no-cache, no-store, must-revalidate"

	n, err := io.Copy(writer, r)
	if err != nil {
		_ = writer.Close()
		return n, fmt.Errorf("failed to write GCS object %s: %w", c.URI(object), err)
	}
	if err := writer.Close(); err != nil {
		return n, fmt.Errorf("failed to close GCS writer for %s: %w", c.URI(object), err)
	}
	return n, nil
}

// Download copies object into w and returns the bytes read.
func (c *Client) Download(ctx context.Context, object string, w io.Writer) (int64, error) {
	reader, err := c.storageClient.Bucket(c.BucketName).Object(object).NewReader(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to open GCS object %s: %w", c.URI(object), err)
	}
	defer reader.Close()

	n, err := io.Copy(w, reader)
	if err != nil {
		return n, fmt.Errorf("failed to read GCS object %s: %w", c.URI(object), err)
	}
	return n, nil
}

// URI returns the gs:// URI of object in this client's bucket.
func (c *Client) URI(object string) string {
	return "gs://" + c.BucketName + "/" + object
}

// BackupObjectName returns the object name for a backup taken at t.
func BackupObjectName(t time.Time) string {
	return path.Join(BackupPrefix, "catalog-"+t.UTC().Format("20060102T150405Z")+".bak")
}

// ParseURI splits gs://bucket/object into its bucket and object.
func ParseURI(uri string) (bucket, object string, err error) {
	rest, ok := strings.CutPrefix(uri, "gs://")
	if !ok {
		return "", "", ErrInvalidURI
	}
	bucket, object, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || object == "" {
		return "", "", ErrInvalidURI
	}
	return bucket, object, nil
}
