package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Storage returns a storage client.
func (c *Client) Storage() *StorageClient {
	return &StorageClient{client: c}
}

// StorageClient handles object storage operations.
type StorageClient struct {
	client *Client
}

// From returns a bucket client.
func (s *StorageClient) From(bucket string) *BucketClient {
	return &BucketClient{client: s.client, bucket: bucket}
}

// BucketClient handles operations on one bucket.
type BucketClient struct {
	client *Client
	bucket string
}

// Upload uploads a file to the bucket.
func (b *BucketClient) Upload(ctx context.Context, path string, data []byte, contentType string) error {
	reqURL := fmt.Sprintf("%s/storage/v1/object/%s/%s", b.client.baseURL, b.bucket, path)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	b.client.setHeaders(req)
	req.Header.Set("Content-Type", contentType)

	_, err = b.client.do(req)
	return err
}

// Delete removes files from the bucket.
func (b *BucketClient) Delete(ctx context.Context, paths []string) error {
	reqURL := fmt.Sprintf("%s/storage/v1/object/%s", b.client.baseURL, b.bucket)

	payload, err := json.Marshal(map[string][]string{"prefixes": paths})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, reqURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	b.client.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	_, err = b.client.do(req)
	return err
}

// GetPublicURL returns the public URL for a file in the bucket.
func (b *BucketClient) GetPublicURL(path string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", b.client.baseURL, b.bucket, path)
}
