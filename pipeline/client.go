package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/arcline/adsync/config"
	"github.com/arcline/adsync/errors"
	"github.com/arcline/adsync/internal/httpclient"
)

// Client calls the ELT platform's control API. Every call is a POST with
// a JSON body; non-2xx responses surface as *HTTPError, with 409 mapped
// onto ErrConflict so callers can reuse the running job.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *httpclient.SaferClient
}

// NewClient creates a pipeline platform client
func NewClient(cfg config.PipelineConfig) *Client {
	timeout := time.Duration(cfg.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: httpclient.NewSaferClient(timeout),
	}
}

// NewClientWithHTTP creates a client over a caller-supplied HTTP client.
// Tests use this to reach httptest servers on localhost.
func NewClientWithHTTP(cfg config.PipelineConfig, hc *http.Client) *Client {
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: httpclient.WrapClient(hc),
	}
}

// HTTPError is a non-2xx control API response
type HTTPError struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("pipeline api error (status=%d): %s", e.StatusCode, e.Message)
}

// Unwrap maps conflicts onto the shared sentinel
func (e *HTTPError) Unwrap() error {
	if e.StatusCode == http.StatusConflict {
		return errors.ErrConflict
	}
	return nil
}

// post issues one control API call and decodes the response into out
func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return errors.Wrapf(err, "failed to marshal %s request", path)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrapf(err, "failed to build %s request", path)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "pipeline api call %s failed", path)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrapf(err, "failed to read %s response", path)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		httpErr := &HTTPError{StatusCode: resp.StatusCode, Message: string(respBody)}
		var remote struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(respBody, &remote) == nil && remote.Message != "" {
			httpErr.Message = remote.Message
		}
		return httpErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return errors.Wrapf(err, "failed to decode %s response", path)
	}

	return nil
}

// ListSources lists the workspace's sources
func (c *Client) ListSources(ctx context.Context, workspaceID string) ([]Source, error) {
	var resp struct {
		Sources []Source `json:"sources"`
	}
	err := c.post(ctx, "/api/v1/sources/list", map[string]string{"workspace_id": workspaceID}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Sources, nil
}

// CreateSource creates a remote source
func (c *Client) CreateSource(ctx context.Context, src *Source) (*Source, error) {
	var created Source
	if err := c.post(ctx, "/api/v1/sources/create", src, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateSource updates a remote source's configuration in place
func (c *Client) UpdateSource(ctx context.Context, src *Source) (*Source, error) {
	var updated Source
	if err := c.post(ctx, "/api/v1/sources/update", src, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// CheckConnection runs the source connectivity check
func (c *Client) CheckConnection(ctx context.Context, sourceID string) (*CheckResult, error) {
	var result CheckResult
	err := c.post(ctx, "/api/v1/sources/check_connection", map[string]string{"source_id": sourceID}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// DiscoverSchema runs schema discovery against the source, bypassing the
// remote's cache so provisioning always sees the current catalog
func (c *Client) DiscoverSchema(ctx context.Context, sourceID string) (*Catalog, error) {
	var resp struct {
		Catalog Catalog `json:"catalog"`
	}
	err := c.post(ctx, "/api/v1/sources/discover_schema", map[string]interface{}{
		"source_id":     sourceID,
		"disable_cache": true,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp.Catalog, nil
}

// ListConnections lists the workspace's connections
func (c *Client) ListConnections(ctx context.Context, workspaceID string) ([]Connection, error) {
	var resp struct {
		Connections []Connection `json:"connections"`
	}
	err := c.post(ctx, "/api/v1/connections/list", map[string]string{"workspace_id": workspaceID}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Connections, nil
}

// CreateConnection creates a remote connection
func (c *Client) CreateConnection(ctx context.Context, conn *Connection) (*Connection, error) {
	var created Connection
	if err := c.post(ctx, "/api/v1/connections/create", conn, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateConnection updates a remote connection in place
func (c *Client) UpdateConnection(ctx context.Context, conn *Connection) (*Connection, error) {
	var updated Connection
	if err := c.post(ctx, "/api/v1/connections/update", conn, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// TriggerSync launches a sync on the connection. A 409 surfaces as
// ErrConflict, meaning a job is already running.
func (c *Client) TriggerSync(ctx context.Context, connectionID string) (*Job, error) {
	var resp struct {
		Job Job `json:"job"`
	}
	err := c.post(ctx, "/api/v1/connections/sync", map[string]string{"connection_id": connectionID}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp.Job, nil
}

// GetRunningJob finds the connection's currently active job, if any
func (c *Client) GetRunningJob(ctx context.Context, connectionID string) (*Job, error) {
	var resp struct {
		Jobs []Job `json:"jobs"`
	}
	err := c.post(ctx, "/api/v1/jobs/list", map[string]interface{}{
		"config_id":    connectionID,
		"config_types": []string{"sync"},
	}, &resp)
	if err != nil {
		return nil, err
	}

	for i := range resp.Jobs {
		if resp.Jobs[i].Running() {
			return &resp.Jobs[i], nil
		}
	}
	return nil, errors.Wrapf(errors.ErrNotFound, "no running job for connection %s", connectionID)
}
