// Package vissync pushes fused COP entities to the external visualization
// service over HTTP.
package vissync

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/tifda/api/schemas"
	"github.com/xkilldash9x/tifda/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// UpsertResult reports the outcome of a single-record upsert.
type UpsertResult struct {
	ID      string `json:"id"`
	Created bool   `json:"created"`
}

// BatchResult aggregates a batch upsert.
type BatchResult struct {
	Success bool     `json:"success"`
	Count   int      `json:"count"`
	Created int      `json:"created"`
	Updated int      `json:"updated"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors,omitempty"`
}

// Stats are cumulative client-side counters, safe for concurrent reads.
type Stats struct {
	TotalSyncs   int64 `json:"total_syncs"`
	TotalCreated int64 `json:"total_created"`
	TotalUpdated int64 `json:"total_updated"`
	TotalDeleted int64 `json:"total_deleted"`
	TotalErrors  int64 `json:"total_errors"`
}

// Client talks to the visualization service. It satisfies cop.Syncer via
// SyncEntities.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	maxRetries int
	retryDelay time.Duration
	logger     *zap.Logger

	totalSyncs   atomic.Int64
	totalCreated atomic.Int64
	totalUpdated atomic.Int64
	totalDeleted atomic.Int64
	totalErrors  atomic.Int64
}

// NewClient builds a Client from configuration.
func NewClient(cfg config.SyncConfig, logger *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("sync base URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid sync base URL: %w", err)
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = 3
	}
	delay := cfg.RetryDelay
	if delay <= 0 {
		delay = time.Second
	}

	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: retries,
		retryDelay: delay,
		logger:     logger.Named("vissync"),
	}, nil
}

// Upsert creates or updates one entity record.
func (c *Client) Upsert(ctx context.Context, entity schemas.EntityCOP) (UpsertResult, error) {
	var result UpsertResult
	err := c.do(ctx, http.MethodPost, "/api/entities/upsert", entity, &result)
	if err != nil {
		c.totalErrors.Add(1)
		return UpsertResult{}, err
	}
	c.totalSyncs.Add(1)
	if result.Created {
		c.totalCreated.Add(1)
	} else {
		c.totalUpdated.Add(1)
	}
	return result, nil
}

// BatchUpsert creates or updates many entity records in one request.
func (c *Client) BatchUpsert(ctx context.Context, entities []schemas.EntityCOP) (BatchResult, error) {
	if len(entities) == 0 {
		return BatchResult{Success: true}, nil
	}

	var result BatchResult
	err := c.do(ctx, http.MethodPost, "/api/entities/batch_upsert", entities, &result)
	if err != nil {
		c.totalErrors.Add(1)
		return BatchResult{}, err
	}
	c.totalSyncs.Add(1)
	c.totalCreated.Add(int64(result.Created))
	c.totalUpdated.Add(int64(result.Updated))
	c.totalErrors.Add(int64(result.Failed))
	return result, nil
}

// FindByExternalID looks up a record by the fusion-side entity id. A miss
// returns (nil, nil).
func (c *Client) FindByExternalID(ctx context.Context, externalID string) (*schemas.EntityCOP, error) {
	var entity schemas.EntityCOP
	err := c.do(ctx, http.MethodGet, "/api/entities/by_external_id/"+url.PathEscape(externalID), nil, &entity)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		c.totalErrors.Add(1)
		return nil, err
	}
	return &entity, nil
}

// Delete removes a record by the fusion-side entity id.
func (c *Client) Delete(ctx context.Context, externalID string) error {
	err := c.do(ctx, http.MethodDelete, "/api/entities/by_external_id/"+url.PathEscape(externalID), nil, nil)
	if err != nil {
		c.totalErrors.Add(1)
		return err
	}
	c.totalDeleted.Add(1)
	return nil
}

// SyncEntities pushes changed entities after a COP mutation. Implements
// cop.Syncer.
func (c *Client) SyncEntities(ctx context.Context, entities []schemas.EntityCOP) error {
	result, err := c.BatchUpsert(ctx, entities)
	if err != nil {
		return fmt.Errorf("batch upsert %d entities: %w", len(entities), err)
	}
	if result.Failed > 0 {
		c.logger.Warn("Visualization sync partially failed",
			zap.Int("failed", result.Failed),
			zap.Strings("errors", result.Errors),
		)
	}
	return nil
}

// Stats returns a snapshot of the cumulative counters.
func (c *Client) Stats() Stats {
	return Stats{
		TotalSyncs:   c.totalSyncs.Load(),
		TotalCreated: c.totalCreated.Load(),
		TotalUpdated: c.totalUpdated.Load(),
		TotalDeleted: c.totalDeleted.Load(),
		TotalErrors:  c.totalErrors.Load(),
	}
}

// statusError marks responses that must not be retried or, for 404 on
// lookups, are part of the protocol.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("visualization API error: status %d, body: %s", e.code, e.body)
}

func isNotFound(err error) bool {
	se, ok := err.(*statusError)
	return ok && se.code == http.StatusNotFound
}

// do executes one request with bounded exponential retry. Client errors
// (4xx) are permanent; network failures and 5xx are retried up to
// maxRetries attempts.
func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	var body []byte
	if payload != nil {
		var err error
		if body, err = json.Marshal(payload); err != nil {
			return fmt.Errorf("failed to marshal request payload: %w", err)
		}
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryDelay
	b.MaxElapsedTime = 0
	policy := backoff.WithMaxRetries(backoff.WithContext(b, ctx), uint64(c.maxRetries-1))

	operation := func() error {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create HTTP request: %w", err))
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.logger.Warn("Network error during visualization sync, retrying...", zap.Error(err))
			return fmt.Errorf("failed to execute HTTP request: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response body: %w", err)
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			if out != nil && len(respBody) > 0 {
				if err := json.Unmarshal(respBody, out); err != nil {
					return backoff.Permanent(fmt.Errorf("failed to decode response payload: %w", err))
				}
			}
			return nil
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			return backoff.Permanent(&statusError{code: resp.StatusCode, body: string(respBody)})
		default:
			return &statusError{code: resp.StatusCode, body: string(respBody)}
		}
	}

	return backoff.Retry(operation, policy)
}
