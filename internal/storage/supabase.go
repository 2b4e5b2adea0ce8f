package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
)

const defaultTimeout = 15 * time.Second

// Client talks to Supabase Storage over its REST API. It implements
// Lister and URLProvider.
type Client struct {
	client     *http.Client
	logger     *slog.Logger
	baseURL    string
	serviceKey string
}

// NewClient creates a storage client. baseURL is the storage endpoint,
// e.g. https://project.supabase.co/storage/v1.
func NewClient(baseURL, serviceKey string, logger *slog.Logger) *Client {
	return &Client{
		client:     &http.Client{Timeout: defaultTimeout},
		logger:     logger.With(slog.String("component", "storage")),
		baseURL:    strings.TrimRight(baseURL, "/"),
		serviceKey: serviceKey,
	}
}

// List returns one page of objects under prefix. Transient failures (5xx,
// network errors) are retried with exponential backoff before the error
// propagates to the index builder.
func (c *Client) List(ctx context.Context, bucket, prefix string, opts ListOptions) ([]Object, error) {
	sortBy := opts.SortBy
	if sortBy == "" {
		sortBy = "name"
	}
	body := map[string]any{
		"prefix": prefix,
		"limit":  opts.Limit,
		"offset": opts.Offset,
		"sortBy": map[string]string{"column": sortBy, "order": "asc"},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding list request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/object/list/%s", c.baseURL, url.PathEscape(bucket))

	var objects []Object
	backoff := retry.WithMaxRetries(2, retry.NewExponential(200*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		c.authorize(req)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer resp.Body.Close() //nolint:errcheck

		if resp.StatusCode >= 500 {
			return retry.RetryableError(fmt.Errorf("listing %s/%s: status %d", bucket, prefix, resp.StatusCode))
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("listing %s/%s: status %d", bucket, prefix, resp.StatusCode)
		}

		objects = objects[:0]
		if err := json.NewDecoder(resp.Body).Decode(&objects); err != nil {
			return fmt.Errorf("decoding listing: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return objects, nil
}

// SignedURL asks the provider for a time-limited URL for key.
func (c *Client) SignedURL(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	payload, err := json.Marshal(map[string]int{"expiresIn": int(ttl.Seconds())})
	if err != nil {
		return "", fmt.Errorf("encoding sign request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/object/sign/%s/%s", c.baseURL, url.PathEscape(bucket), escapeKey(key))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	c.authorize(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("signing %s/%s: %w", bucket, key, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return "", fmt.Errorf("signing %s/%s: status %d: %s", bucket, key, resp.StatusCode, snippet)
	}

	var signed struct {
		SignedURL string `json:"signedURL"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&signed); err != nil {
		return "", fmt.Errorf("decoding sign response: %w", err)
	}
	if signed.SignedURL == "" {
		return "", fmt.Errorf("signing %s/%s: empty URL in response", bucket, key)
	}
	return c.baseURL + signed.SignedURL, nil
}

// PublicURL returns the unauthenticated object URL. It never fails; the
// URL is only useful when the bucket is public.
func (c *Client) PublicURL(bucket, key string) string {
	return fmt.Sprintf("%s/object/public/%s/%s", c.baseURL, url.PathEscape(bucket), escapeKey(key))
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.serviceKey)
	req.Header.Set("apikey", c.serviceKey)
}

// escapeKey escapes each path segment of a key, preserving the slashes
// that separate virtual folders.
func escapeKey(key string) string {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}
