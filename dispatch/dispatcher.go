// Package dispatch routes sync requests to the engine a tenant account is
// currently running on: SDK syncs become queued jobs, pipeline syncs are
// triggered on the remote ELT platform.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/arcline/adsync/ads"
	"github.com/arcline/adsync/creds"
	"github.com/arcline/adsync/errors"
	"github.com/arcline/adsync/logger"
	"github.com/arcline/adsync/pipeline"
	"github.com/arcline/adsync/pulse/async"
	"github.com/arcline/adsync/syncstate"
)

// TriggerResult describes where a sync request landed
type TriggerResult struct {
	Engine syncstate.Engine `json:"engine"`
	JobID  string           `json:"job_id"`
	Reused bool             `json:"reused"`
}

// Dispatcher triggers syncs on whichever engine is effective for the
// account. Triggering is idempotent per account: a second request while a
// sync is in flight reuses the running job instead of starting another.
type Dispatcher struct {
	queue          *async.Queue
	pipelineClient *pipeline.Client
	credStore      *creds.Store
	connStore      *pipeline.ConnectionStore
	stateStore     *syncstate.Store
}

// NewDispatcher creates a dispatcher
func NewDispatcher(
	queue *async.Queue,
	pipelineClient *pipeline.Client,
	credStore *creds.Store,
	connStore *pipeline.ConnectionStore,
	stateStore *syncstate.Store,
) *Dispatcher {
	return &Dispatcher{
		queue:          queue,
		pipelineClient: pipelineClient,
		credStore:      credStore,
		connStore:      connStore,
		stateStore:     stateStore,
	}
}

// JobSource is the dedup key for an account's sync jobs
func JobSource(tenantID, accountID string) string {
	return fmt.Sprintf("%s:%s", tenantID, accountID)
}

// Trigger starts (or joins) a sync for the account
func (d *Dispatcher) Trigger(ctx context.Context, tenantID, accountID string) (*TriggerResult, error) {
	cred, err := d.credStore.Get(ctx, tenantID, accountID)
	if err != nil {
		return nil, err
	}
	if cred.NeedsReauth() {
		return nil, errors.Wrapf(errors.ErrMissingRefreshToken,
			"account %s requires re-authorization", accountID)
	}

	state, err := d.stateStore.GetOrCreate(ctx, tenantID, accountID)
	if err != nil {
		return nil, err
	}

	switch state.EffectiveEngine {
	case syncstate.EnginePipeline:
		return d.triggerPipeline(ctx, tenantID, accountID)
	default:
		return d.triggerSDK(ctx, tenantID, accountID)
	}
}

// triggerSDK enqueues an SDK sync job, reusing an active one if present
func (d *Dispatcher) triggerSDK(ctx context.Context, tenantID, accountID string) (*TriggerResult, error) {
	source := JobSource(tenantID, accountID)

	existing, err := d.queue.FindActiveJobBySourceAndHandler(source, SDKSyncHandlerName)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		logger.Debugw("Reusing active SDK sync job",
			"tenant_id", tenantID,
			"account_id", accountID,
			"job_id", existing.ID)
		return &TriggerResult{Engine: syncstate.EngineSDK, JobID: existing.ID, Reused: true}, nil
	}

	payload, err := json.Marshal(SDKSyncPayload{TenantID: tenantID, AccountID: accountID})
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal sync payload")
	}

	job, err := async.NewJob(SDKSyncHandlerName, source, payload, len(ads.AllReportTypes))
	if err != nil {
		return nil, err
	}
	if err := d.queue.Enqueue(job); err != nil {
		return nil, err
	}

	logger.Infow("Enqueued SDK sync job",
		"tenant_id", tenantID,
		"account_id", accountID,
		"job_id", job.ID)

	return &TriggerResult{Engine: syncstate.EngineSDK, JobID: job.ID}, nil
}

// triggerPipeline asks the ELT platform to run the tenant's connection.
// A conflict means a sync is already running; join it instead of failing.
func (d *Dispatcher) triggerPipeline(ctx context.Context, tenantID, accountID string) (*TriggerResult, error) {
	rec, err := d.connStore.Get(ctx, tenantID)
	if err != nil {
		if errors.IsNotFoundError(err) {
			return nil, errors.Wrapf(errors.ErrDependencyMissing,
				"pipeline engine selected but tenant %s has no provisioned connection", tenantID)
		}
		return nil, err
	}

	job, err := d.pipelineClient.TriggerSync(ctx, rec.ConnectionID)
	reused := false
	if err != nil {
		if !errors.IsConflictError(err) {
			return nil, err
		}
		job, err = d.pipelineClient.GetRunningJob(ctx, rec.ConnectionID)
		if err != nil {
			return nil, errors.Wrap(err, "sync already running but running job lookup failed")
		}
		reused = true
	}

	if err := d.connStore.RecordJob(ctx, tenantID, job.ID, job.Status, ""); err != nil {
		logger.Warnw("Failed to record pipeline job locally",
			"tenant_id", tenantID,
			"job_id", job.ID,
			"error", err)
	}

	logger.Infow("Triggered pipeline sync",
		"tenant_id", tenantID,
		"account_id", accountID,
		"job_id", job.ID,
		"reused", reused)

	return &TriggerResult{Engine: syncstate.EnginePipeline, JobID: job.ID, Reused: reused}, nil
}
