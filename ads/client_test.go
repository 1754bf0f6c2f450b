package ads

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcline/adsync/config"
	"github.com/arcline/adsync/creds"
	"github.com/arcline/adsync/errors"
)

func testAdsConfig(serverURL string) config.AdsConfig {
	return config.AdsConfig{
		ClientID:              "test-client",
		ClientSecret:          "test-secret",
		DeveloperToken:        "dev-token",
		TokenURL:              serverURL + "/oauth/token",
		Endpoint:              serverURL,
		PageSize:              2,
		MaxPages:              10,
		MaxRows:               1000,
		RequestTimeoutSeconds: 5,
		RequestsPerMinute:     6000,
	}
}

func testCredential() *creds.Credential {
	return &creds.Credential{
		ID:              "cred-1",
		TenantID:        "tenant-1",
		AccountID:       "1234567890",
		RefreshTokenEnc: "refresh-token",
		TokenStatus:     creds.TokenValid,
	}
}

// newReportServer serves the OAuth token endpoint plus a paginated report
// endpoint backed by the given pages.
func newReportServer(t *testing.T, pages []searchResponse) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "access-token",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/v1/customers/", func(w http.ResponseWriter, r *http.Request) {
		var req searchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		idx := 0
		if req.PageToken != "" {
			for i, p := range pages[:len(pages)-1] {
				if p.NextPageToken == req.PageToken {
					idx = i + 1
				}
			}
		}
		json.NewEncoder(w).Encode(pages[idx])
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func campaignResult(id, date string, impressions int) map[string]interface{} {
	return map[string]interface{}{
		"campaign": map[string]interface{}{"id": id, "name": "camp-" + id},
		"segments": map[string]interface{}{"date": date},
		"metrics":  map[string]interface{}{"impressions": float64(impressions)},
	}
}

func testWindow() Window {
	return Window{
		Start: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 3, 7, 0, 0, 0, 0, time.UTC),
	}
}

func TestFetchReport(t *testing.T) {
	ctx := context.Background()

	t.Run("paginates and tags rows with page request ids", func(t *testing.T) {
		srv := newReportServer(t, []searchResponse{
			{
				Results: []map[string]interface{}{
					campaignResult("1", "2026-03-01", 10),
					campaignResult("2", "2026-03-01", 20),
				},
				NextPageToken: "page-2",
				RequestID:     "req-a",
			},
			{
				Results: []map[string]interface{}{
					campaignResult("3", "2026-03-02", 30),
				},
				RequestID: "req-b",
			},
		})

		client := NewClient(testAdsConfig(srv.URL), testCredential(), creds.NoopDecryptor{})
		rows, err := client.FetchReport(ctx, "123-456-7890", ReportCampaignDaily, testWindow())
		require.NoError(t, err)
		require.Len(t, rows, 3)

		assert.Equal(t, "req-a", rows[0].RequestID)
		assert.Equal(t, "req-a", rows[1].RequestID)
		assert.Equal(t, "req-b", rows[2].RequestID)
		assert.Equal(t, int64(30), rows[2].Impressions)
	})

	t.Run("stops at page cap without error", func(t *testing.T) {
		// Every page points at itself, an unbounded stream
		mux := http.NewServeMux()
		mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]interface{}{
				"access_token": "access-token", "token_type": "Bearer", "expires_in": 3600,
			})
		})
		mux.HandleFunc("/v1/customers/", func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(searchResponse{
				Results:       []map[string]interface{}{campaignResult("1", "2026-03-01", 1)},
				NextPageToken: "again",
				RequestID:     "req-loop",
			})
		})
		srv := httptest.NewServer(mux)
		defer srv.Close()

		cfg := testAdsConfig(srv.URL)
		cfg.MaxPages = 3

		client := NewClient(cfg, testCredential(), creds.NoopDecryptor{})
		rows, err := client.FetchReport(ctx, "1234567890", ReportCampaignDaily, testWindow())
		require.NoError(t, err)
		assert.Len(t, rows, 3)
	})

	t.Run("classifies remote failures", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]interface{}{
				"access_token": "access-token", "token_type": "Bearer", "expires_in": 3600,
			})
		})
		mux.HandleFunc("/v1/customers/", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("request-id", "req-err")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":{"code":8,"message":"quota exceeded"}}`))
		})
		srv := httptest.NewServer(mux)
		defer srv.Close()

		client := NewClient(testAdsConfig(srv.URL), testCredential(), creds.NoopDecryptor{})
		_, err := client.FetchReport(ctx, "1234567890", ReportCampaignDaily, testWindow())
		require.Error(t, err)

		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.True(t, apiErr.Retryable)
		assert.Equal(t, "req-err", apiErr.RequestID)
	})

	t.Run("rejects invalid customer id before any request", func(t *testing.T) {
		client := NewClient(testAdsConfig("http://unused.invalid"), testCredential(), creds.NoopDecryptor{})
		_, err := client.FetchReport(ctx, "no-digits", ReportCampaignDaily, testWindow())
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrInvalidCustomerID))
	})

	t.Run("missing refresh token is fatal", func(t *testing.T) {
		cred := testCredential()
		cred.RefreshTokenEnc = ""

		client := NewClient(testAdsConfig("http://unused.invalid"), cred, creds.NoopDecryptor{})
		_, err := client.FetchReport(ctx, "1234567890", ReportCampaignDaily, testWindow())
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrMissingRefreshToken))
	})

	t.Run("missing client credentials is misconfigured", func(t *testing.T) {
		cfg := testAdsConfig("http://unused.invalid")
		cfg.ClientSecret = ""

		client := NewClient(cfg, testCredential(), creds.NoopDecryptor{})
		_, err := client.FetchReport(ctx, "1234567890", ReportCampaignDaily, testWindow())
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrMisconfigured))
	})
}
