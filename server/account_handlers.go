package server

import (
	"net/http"
	"time"

	"github.com/arcline/adsync/errors"
	"github.com/arcline/adsync/pipeline"
	"github.com/arcline/adsync/status"
)

// HandleAccount routes /api/accounts/{tenant}/{account}/{op} to the
// per-account operations.
func (s *AdsyncServer) HandleAccount(w http.ResponseWriter, r *http.Request) {
	parts := extractPathParts(r.URL.Path, "/api/accounts/")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
		writeError(w, http.StatusNotFound, "Expected /api/accounts/{tenant}/{account}/{operation}")
		return
	}
	tenantID, accountID, op := parts[0], parts[1], parts[2]

	switch op {
	case "sync":
		s.handleSyncTrigger(w, r, tenantID, accountID)
	case "status":
		s.handleAccountStatus(w, r, tenantID, accountID)
	case "provision":
		s.handleProvision(w, r, tenantID, accountID)
	default:
		writeError(w, http.StatusNotFound, "Unknown account operation: "+op)
	}
}

// handleSyncTrigger starts (or joins) a sync for the account.
// POST /api/accounts/{tenant}/{account}/sync
func (s *AdsyncServer) handleSyncTrigger(w http.ResponseWriter, r *http.Request, tenantID, accountID string) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	result, err := s.dispatcher.Trigger(r.Context(), tenantID, accountID)
	if err != nil {
		s.logger.Warnw("Sync trigger failed",
			"tenant_id", tenantID,
			"account_id", accountID,
			"error", err,
		)
		switch {
		case errors.IsNotFoundError(err):
			writeError(w, http.StatusNotFound, "Account is not connected")
		case errors.Is(err, errors.ErrMissingRefreshToken):
			writeError(w, http.StatusConflict, "Stored credential needs re-authorization")
		case errors.Is(err, errors.ErrDependencyMissing):
			writeError(w, http.StatusConflict, "Pipeline connection has not been provisioned")
		default:
			writeError(w, http.StatusBadGateway, "Failed to trigger sync")
		}
		return
	}

	writeJSON(w, http.StatusAccepted, result)
}

// accountStatusResponse is the resolved status plus the raw engine facts
// operator consoles render alongside it
type accountStatusResponse struct {
	status.Result
	SyncEngine     string     `json:"sync_engine,omitempty"`
	FallbackActive bool       `json:"fallback_active"`
	ParityState    string     `json:"parity_state,omitempty"`
	LastSyncedAt   *time.Time `json:"last_synced_at,omitempty"`
}

// handleAccountStatus resolves the account's user-facing status from a
// snapshot of its stored sub-resources. A missing credential, connection,
// or state row is a status, not an error.
// GET /api/accounts/{tenant}/{account}/status
func (s *AdsyncServer) handleAccountStatus(w http.ResponseWriter, r *http.Request, tenantID, accountID string) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	ctx := r.Context()

	in := status.Inputs{
		Now:             time.Now().UTC(),
		FreshnessWindow: s.freshnessWindow(),
	}

	cred, err := s.credStore.Get(ctx, tenantID, accountID)
	if err != nil && !errors.IsNotFoundError(err) {
		writeError(w, http.StatusInternalServerError, "Failed to load credential")
		return
	}
	in.Credential = cred
	in.OAuthReady = cred != nil && cred.RefreshTokenEnc != ""

	conn, err := s.connStore.Get(ctx, tenantID)
	if err != nil && !errors.IsNotFoundError(err) {
		writeError(w, http.StatusInternalServerError, "Failed to load pipeline connection")
		return
	}
	if conn != nil {
		in.Connection = &status.ConnectionInfo{
			IsActive:     conn.IsActive,
			LastSyncedAt: conn.LastSyncedAt,
		}
	}

	state, err := s.stateStore.Get(ctx, tenantID, accountID)
	if err != nil && !errors.IsNotFoundError(err) {
		writeError(w, http.StatusInternalServerError, "Failed to load sync state")
		return
	}
	in.State = state

	pipelineCfg := s.Config().Pipeline
	in.ProvisioningReady = pipelineCfg.WorkspaceID != "" &&
		pipelineCfg.DestinationID != "" &&
		pipelineCfg.SourceDefinitionID != ""

	resp := accountStatusResponse{Result: status.Resolve(in)}
	if state != nil {
		resp.SyncEngine = string(state.EffectiveEngine)
		resp.FallbackActive = state.FallbackActive
		resp.ParityState = string(state.ParityState)
		resp.LastSyncedAt = state.LastSyncSuccessAt
	}
	// The pipeline connection's own stamp wins when it is newer
	if conn != nil && conn.LastSyncedAt != nil {
		if resp.LastSyncedAt == nil || conn.LastSyncedAt.After(*resp.LastSyncedAt) {
			resp.LastSyncedAt = conn.LastSyncedAt
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleProvision runs the idempotent pipeline provisioning sequence.
// POST /api/accounts/{tenant}/{account}/provision
func (s *AdsyncServer) handleProvision(w http.ResponseWriter, r *http.Request, tenantID, accountID string) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	req := pipeline.ProvisionRequest{ScheduleType: pipeline.ScheduleManual}
	if r.ContentLength != 0 {
		if err := readJSON(w, r, &req); err != nil {
			return
		}
	}
	req.TenantID = tenantID
	req.AccountID = accountID

	result, err := s.provisioner.Provision(r.Context(), req)
	if err != nil {
		s.logger.Warnw("Provisioning failed",
			"tenant_id", tenantID,
			"account_id", accountID,
			"error", err,
		)
		switch {
		case errors.IsNotFoundError(err):
			writeError(w, http.StatusNotFound, "Account is not connected")
		case errors.IsInvalidRequestError(err):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.IsConfigurationError(err):
			writeError(w, http.StatusConflict, err.Error())
		default:
			writeError(w, http.StatusBadGateway, "Provisioning failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// HandleHealth reports liveness plus queue statistics.
// GET /health
func (s *AdsyncServer) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	resp := map[string]interface{}{
		"status":         "ok",
		"workers":        s.pool.Workers(),
		"active_workers": s.pool.ActiveWorkers(),
	}

	if stats, err := s.Queue().GetStats(); err == nil {
		resp["jobs"] = stats
	}

	writeJSON(w, http.StatusOK, resp)
}
