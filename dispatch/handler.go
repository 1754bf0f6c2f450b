package dispatch

import (
	"context"
	"database/sql"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/arcline/adsync/ads"
	"github.com/arcline/adsync/config"
	"github.com/arcline/adsync/creds"
	"github.com/arcline/adsync/errors"
	"github.com/arcline/adsync/ingest"
	"github.com/arcline/adsync/logger"
	"github.com/arcline/adsync/pulse/async"
	"github.com/arcline/adsync/syncstate"
)

// SDKSyncHandlerName routes queued jobs to the SDK sync handler
const SDKSyncHandlerName = "sync.sdk"

// SDKSyncPayload selects which account a queued SDK sync operates on
type SDKSyncPayload struct {
	TenantID  string `json:"tenant_id"`
	AccountID string `json:"account_id"`
}

// SDKSyncHandler runs a full SDK sync: every report type fetched through
// the typed report client, ingested under the SDK engine label, followed
// by a parity check against the pipeline's rows for the same account.
// State transitions (failure counting, fallback, parity) are applied in
// one store update at the end of the run.
type SDKSyncHandler struct {
	cfg        config.SyncConfig
	adsCfg     config.AdsConfig
	credStore  *creds.Store
	decryptor  creds.TokenDecryptor
	ingestor   *ingest.Store
	stateStore *syncstate.Store
	machine    *syncstate.Machine
	queue      *async.Queue

	// newClient is swappable for tests
	newClient func(cred *creds.Credential) reportFetcher
	now       func() time.Time
}

type reportFetcher interface {
	FetchReport(ctx context.Context, customerID string, rt ads.ReportType, w ads.Window) ([]ads.Row, error)
}

// NewSDKSyncHandler creates the handler and registers nothing; callers
// register it on the worker pool's registry.
func NewSDKSyncHandler(
	db *sql.DB,
	cfg config.SyncConfig,
	adsCfg config.AdsConfig,
	credStore *creds.Store,
	decryptor creds.TokenDecryptor,
	queue *async.Queue,
) *SDKSyncHandler {
	return &SDKSyncHandler{
		cfg:        cfg,
		adsCfg:     adsCfg,
		credStore:  credStore,
		decryptor:  decryptor,
		ingestor:   ingest.NewStore(db),
		stateStore: syncstate.NewStore(db),
		machine:    syncstate.NewMachine(cfg.FallbackThreshold),
		queue:      queue,
		newClient: func(cred *creds.Credential) reportFetcher {
			return ads.NewClient(adsCfg, cred, decryptor)
		},
		now: time.Now,
	}
}

// Name implements async.JobHandler
func (h *SDKSyncHandler) Name() string { return SDKSyncHandlerName }

// Execute implements async.JobHandler
func (h *SDKSyncHandler) Execute(ctx context.Context, job *async.Job) error {
	var payload SDKSyncPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return errors.Wrap(err, "failed to decode sync payload")
	}
	if payload.TenantID == "" || payload.AccountID == "" {
		return errors.Wrap(errors.ErrInvalidRequest, "sync payload missing tenant or account id")
	}

	cred, err := h.credStore.Get(ctx, payload.TenantID, payload.AccountID)
	if err != nil {
		return err
	}

	client := h.newClient(cred)
	window := h.syncWindow()

	for i, rt := range ads.AllReportTypes {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		rows, err := h.fetchWithRetry(ctx, client, payload.AccountID, rt, window)
		if err != nil {
			return h.recordFailure(ctx, payload, rt, err)
		}

		if err := h.ingestor.ReplaceRows(ctx, payload.TenantID, payload.AccountID, rt, syncstate.EngineSDK, window, rows); err != nil {
			return h.recordFailure(ctx, payload, rt, err)
		}

		job.UpdateProgress(i + 1)
		if err := h.queue.UpdateJob(job); err != nil {
			logger.Warnw("Failed to persist job progress", "job_id", job.ID, "error", err)
		}

		logger.Debugw("Report ingested",
			"tenant_id", payload.TenantID,
			"account_id", payload.AccountID,
			"report_type", rt,
			"rows", len(rows))
	}

	parityChecked, parityPassed, err := h.checkParity(ctx, payload)
	if err != nil {
		// Parity is advisory for this run's outcome; a broken check must
		// not fail a sync whose data all landed
		logger.Warnw("Parity check failed to run",
			"tenant_id", payload.TenantID,
			"account_id", payload.AccountID,
			"error", err)
		parityChecked = false
	}

	_, err = h.stateStore.Update(ctx, payload.TenantID, payload.AccountID, func(s *syncstate.State) error {
		if parityChecked {
			h.machine.RecordParity(s, parityPassed)
		}
		h.machine.RecordSDKSuccess(s, parityChecked && parityPassed)
		return nil
	})
	if err != nil {
		return err
	}

	logger.Infow("SDK sync completed",
		"tenant_id", payload.TenantID,
		"account_id", payload.AccountID,
		"reports", len(ads.AllReportTypes),
		"parity_checked", parityChecked,
		"parity_passed", parityPassed)

	return nil
}

// syncWindow is the trailing report window ending today
func (h *SDKSyncHandler) syncWindow() ads.Window {
	days := h.cfg.LookbackDays
	if days <= 0 {
		days = 30
	}
	end := h.now().UTC().Truncate(24 * time.Hour)
	return ads.Window{Start: end.AddDate(0, 0, -days), End: end}
}

// parityWindow is the shorter trailing window sampled for parity
func (h *SDKSyncHandler) parityWindow() ads.Window {
	days := h.cfg.ParityWindowDays
	if days <= 0 {
		days = 7
	}
	end := h.now().UTC().Truncate(24 * time.Hour)
	return ads.Window{Start: end.AddDate(0, 0, -days), End: end}
}

// fetchWithRetry retries retryable report failures with exponential
// backoff and jitter. Non-retryable failures return immediately.
func (h *SDKSyncHandler) fetchWithRetry(ctx context.Context, client reportFetcher, accountID string, rt ads.ReportType, w ads.Window) ([]ads.Row, error) {
	attempts := h.cfg.RetryMaxAttempts
	if attempts <= 0 {
		attempts = 3
	}
	baseDelay := time.Duration(h.cfg.RetryBaseDelayMS) * time.Millisecond
	if baseDelay <= 0 {
		baseDelay = 500 * time.Millisecond
	}
	maxDelay := time.Duration(h.cfg.RetryMaxDelayMS) * time.Millisecond
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := min(baseDelay<<(attempt-1), maxDelay)
			// Full jitter, half to full delay
			delay = delay/2 + time.Duration(rand.Int63n(int64(delay/2)+1))

			logger.Debugw("Retrying report fetch",
				"report_type", rt,
				"attempt", attempt+1,
				"delay", delay)

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		rows, err := client.FetchReport(ctx, accountID, rt, w)
		if err == nil {
			return rows, nil
		}
		if !ads.IsRetryable(err) {
			return nil, err
		}
		lastErr = err
	}

	return nil, errors.Wrapf(lastErr, "report %s failed after %d attempts", rt, attempts)
}

// recordFailure counts the failed sync against the account's state and
// flags the credential when the failure was an auth rejection
func (h *SDKSyncHandler) recordFailure(ctx context.Context, payload SDKSyncPayload, rt ads.ReportType, syncErr error) error {
	if ads.IsAuthError(syncErr) || errors.Is(syncErr, errors.ErrMissingRefreshToken) {
		if markErr := h.credStore.MarkReauthRequired(ctx, payload.TenantID, payload.AccountID); markErr != nil {
			logger.Warnw("Failed to flag credential for re-authorization",
				"tenant_id", payload.TenantID,
				"account_id", payload.AccountID,
				"error", markErr)
		}
	}

	_, updateErr := h.stateStore.Update(ctx, payload.TenantID, payload.AccountID, func(s *syncstate.State) error {
		h.machine.RecordSDKFailure(s, syncErr)
		return nil
	})
	if updateErr != nil {
		logger.Errorw("Failed to record sync failure",
			"tenant_id", payload.TenantID,
			"account_id", payload.AccountID,
			"error", updateErr)
	}

	return errors.Wrapf(syncErr, "sync failed on report %s", rt)
}

// checkParity compares the campaign daily totals the two engines
// produced over the parity window. Without pipeline rows in the window
// there is no baseline and the check is skipped.
func (h *SDKSyncHandler) checkParity(ctx context.Context, payload SDKSyncPayload) (checked bool, passed bool, err error) {
	w := h.parityWindow()

	pipelineTotals, err := h.ingestor.AggregateTotals(ctx, payload.TenantID, payload.AccountID, ads.ReportCampaignDaily, syncstate.EnginePipeline, w)
	if err != nil {
		return false, false, err
	}
	if pipelineTotals.RowCount == 0 {
		return false, false, nil
	}

	sdkTotals, err := h.ingestor.AggregateTotals(ctx, payload.TenantID, payload.AccountID, ads.ReportCampaignDaily, syncstate.EngineSDK, w)
	if err != nil {
		return false, false, err
	}

	result := ingest.Compare(sdkTotals, pipelineTotals, h.cfg.ParityTolerance)
	if !result.Passed {
		logger.Warnw("Parity check failed",
			"tenant_id", payload.TenantID,
			"account_id", payload.AccountID,
			"mismatches", result.Mismatches)
	}

	return true, result.Passed, nil
}
