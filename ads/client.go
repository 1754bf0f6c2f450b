package ads

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/arcline/adsync/config"
	"github.com/arcline/adsync/creds"
	"github.com/arcline/adsync/errors"
	"github.com/arcline/adsync/logger"
)

// Client fetches typed report rows from the ads platform. Authentication
// happens lazily on the first fetch; one authenticated HTTP client is
// reused for the life of the Client.
type Client struct {
	cfg       config.AdsConfig
	cred      *creds.Credential
	decryptor creds.TokenDecryptor
	limiter   *rate.Limiter

	mu         sync.Mutex
	httpClient *http.Client
}

// NewClient creates a report client for one tenant account's credential
func NewClient(cfg config.AdsConfig, cred *creds.Credential, decryptor creds.TokenDecryptor) *Client {
	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 60
	}
	return &Client{
		cfg:       cfg,
		cred:      cred,
		decryptor: decryptor,
		limiter:   rate.NewLimiter(rate.Limit(float64(rpm)/60.0), rpm),
	}
}

// ensureAuth builds the OAuth-backed HTTP client on first use. Missing
// refresh token or missing app credentials are fatal and non-retryable.
func (c *Client) ensureAuth(ctx context.Context) (*http.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.httpClient != nil {
		return c.httpClient, nil
	}

	if c.cfg.ClientID == "" || c.cfg.ClientSecret == "" {
		return nil, errors.Wrap(errors.ErrMisconfigured, "ads client id/secret not configured")
	}
	if c.cred == nil || c.cred.RefreshTokenEnc == "" {
		return nil, errors.Wrapf(errors.ErrMissingRefreshToken, "account %s", c.accountID())
	}

	refreshToken, err := c.decryptor.DecryptRefreshToken(c.cred.RefreshTokenEnc)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decrypt refresh token")
	}
	if refreshToken == "" {
		return nil, errors.Wrapf(errors.ErrMissingRefreshToken, "account %s", c.accountID())
	}

	oauthCfg := &oauth2.Config{
		ClientID:     c.cfg.ClientID,
		ClientSecret: c.cfg.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: c.cfg.TokenURL},
	}

	timeout := time.Duration(c.cfg.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	base := &http.Client{Timeout: timeout}
	tokenCtx := context.WithValue(ctx, oauth2.HTTPClient, base)
	ts := oauthCfg.TokenSource(tokenCtx, &oauth2.Token{RefreshToken: refreshToken})

	c.httpClient = &http.Client{
		Timeout:   timeout,
		Transport: &oauth2.Transport{Source: ts},
	}

	return c.httpClient, nil
}

func (c *Client) accountID() string {
	if c.cred == nil {
		return ""
	}
	return c.cred.AccountID
}

// searchRequest is the paginated report query body
type searchRequest struct {
	Query     string `json:"query"`
	PageSize  int    `json:"page_size"`
	PageToken string `json:"page_token,omitempty"`
}

// searchResponse is one page of results
type searchResponse struct {
	Results       []map[string]interface{} `json:"results"`
	NextPageToken string                   `json:"next_page_token"`
	RequestID     string                   `json:"request_id"`
}

// FetchReport fetches all rows of one report type for a customer id and
// window. The customer id is normalized before use. Every returned row
// carries the request id of the page it arrived on.
//
// Pagination is capped by MaxPages and MaxRows; hitting a cap logs and
// returns what was fetched so far rather than retrying.
func (c *Client) FetchReport(ctx context.Context, customerID string, rt ReportType, w Window) ([]Row, error) {
	normalized, err := NormalizeCustomerID(customerID)
	if err != nil {
		return nil, err
	}
	if !rt.Valid() {
		return nil, errors.Newf("unknown report type %q", rt)
	}

	httpClient, err := c.ensureAuth(ctx)
	if err != nil {
		return nil, err
	}

	query, err := RenderQuery(rt, w)
	if err != nil {
		return nil, err
	}

	var (
		rows      []Row
		pageToken string
		pages     int
	)

	for {
		if pages >= c.cfg.MaxPages {
			logger.Warnw("Report fetch hit page cap, stopping",
				"report_type", rt,
				"customer_id", normalized,
				"pages", pages,
				"rows", len(rows))
			return rows, nil
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, errors.Wrap(err, "rate limit wait interrupted")
		}

		page, err := c.searchPage(ctx, httpClient, normalized, searchRequest{
			Query:     query,
			PageSize:  c.cfg.PageSize,
			PageToken: pageToken,
		})
		if err != nil {
			return nil, err
		}
		pages++

		for _, result := range page.Results {
			row, err := parseRow(rt, result, page.RequestID, w)
			if err != nil {
				return nil, err
			}
			rows = append(rows, row)
		}

		if len(rows) >= c.cfg.MaxRows {
			logger.Warnw("Report fetch hit row cap, stopping",
				"report_type", rt,
				"customer_id", normalized,
				"rows", len(rows))
			return rows, nil
		}

		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}

	logger.Debugw("Report fetched",
		"report_type", rt,
		"customer_id", normalized,
		"pages", pages,
		"rows", len(rows))

	return rows, nil
}

// searchPage issues one page request and classifies any failure
func (c *Client) searchPage(ctx context.Context, httpClient *http.Client, customerID string, req searchRequest) (*searchResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal search request")
	}

	url := c.cfg.Endpoint + "/v1/customers/" + customerID + "/reports:search"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "failed to build search request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.DeveloperToken != "" {
		httpReq.Header.Set("developer-token", c.cfg.DeveloperToken)
	}
	if c.cfg.LoginCustomerID != "" {
		httpReq.Header.Set("login-customer-id", c.cfg.LoginCustomerID)
	}

	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return nil, ClassifyTransportError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ClassifyTransportError(err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, ClassifyResponse(resp.StatusCode, respBody, resp.Header.Get("request-id"))
	}

	var page searchResponse
	if err := json.Unmarshal(respBody, &page); err != nil {
		return nil, errors.Wrap(err, "failed to decode search response")
	}
	if page.RequestID == "" {
		page.RequestID = resp.Header.Get("request-id")
	}

	return &page, nil
}
