// Package storage uploads captured photos to a Supabase-style object store
// over its REST interface.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
)

// UploadResult describes one stored object.
type UploadResult struct {
	URL  string `json:"url"`
	Key  string `json:"key"`
	Size int    `json:"size"`
}

type Client struct {
	baseURL    string
	bucket     string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, bucket, apiKey string) *Client {
	return &Client{
		baseURL:    baseURL,
		bucket:     bucket,
		apiKey:     apiKey,
		httpClient: &http.Client{},
	}
}

// Upload stores the bytes under a per-owner key and returns the public URL.
// The requestID travels as a header so storage-side logs can be correlated
// with a capture.
func (c *Client) Upload(ctx context.Context, data []byte, filename, mimeType, ownerID, requestID string) (*UploadResult, error) {
	key := fmt.Sprintf("%s/%s", ownerID, filename)
	url := fmt.Sprintf("%s/storage/v1/object/%s/%s", c.baseURL, c.bucket, key)

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", mimeType)
	req.Header.Set("x-request-id", requestID)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("storage upload failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK && res.StatusCode != http.StatusCreated {
		resBody, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf(
			"storage status error, got status %d. with response body %s",
			res.StatusCode,
			string(resBody),
		)
	}

	return &UploadResult{
		URL:  fmt.Sprintf("%s/storage/v1/object/public/%s/%s", c.baseURL, c.bucket, key),
		Key:  key,
		Size: len(data),
	}, nil
}
