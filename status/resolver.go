// Package status resolves a tenant account's user-facing sync status.
// Resolve is a pure function: the caller snapshots every input first, and
// absence of a sub-resource is itself a status, never an error.
package status

import (
	"time"

	"github.com/arcline/adsync/creds"
	"github.com/arcline/adsync/syncstate"
)

// Status is the externally reported account state
type Status string

const (
	StatusNotConnected       Status = "not_connected"
	StatusStartedNotComplete Status = "started_not_complete"
	StatusActive             Status = "active"
	StatusComplete           Status = "complete"
)

// Action is a recommended next step for the tenant
type Action string

const (
	ActionConnect   Action = "connect"
	ActionReconnect Action = "reconnect"
	ActionProvision Action = "provision"
)

// Reason explains the resolved status
type Reason struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ConnectionInfo is the snapshot of the pipeline connection the resolver
// needs. Nil means no connection has been provisioned.
type ConnectionInfo struct {
	IsActive     bool
	LastSyncedAt *time.Time
}

// Inputs are the five snapshotted facts Resolve combines
type Inputs struct {
	Credential        *creds.Credential
	Connection        *ConnectionInfo
	State             *syncstate.State
	OAuthReady        bool
	ProvisioningReady bool
	Now               time.Time
	FreshnessWindow   time.Duration
}

// Result is the resolved status plus recommended actions
type Result struct {
	Status  Status   `json:"status"`
	Reason  Reason   `json:"reason"`
	Actions []Action `json:"actions"`
}

// Resolve evaluates the documented priority rules top to bottom, first
// match wins. Deterministic and side-effect free.
func Resolve(in Inputs) Result {
	// 1. Nothing connected at all
	if in.Credential == nil {
		return Result{
			Status:  StatusNotConnected,
			Reason:  Reason{Code: "no_credential", Message: "account is not connected"},
			Actions: []Action{ActionConnect},
		}
	}

	// 2. Credential exists but is unusable
	if in.Credential.NeedsReauth() {
		return Result{
			Status:  StatusStartedNotComplete,
			Reason:  Reason{Code: "reauth_required", Message: "stored credential needs re-authorization"},
			Actions: []Action{ActionReconnect},
		}
	}

	// 3. OAuth handshake incomplete
	if !in.OAuthReady {
		return Result{
			Status:  StatusStartedNotComplete,
			Reason:  Reason{Code: "oauth_incomplete", Message: "authorization has not completed"},
			Actions: []Action{ActionConnect},
		}
	}

	// 4. SDK accounts (including those degraded into fallback): the
	// state machine output decides
	state := in.State
	if state == nil {
		state = syncstate.NewState("", "")
	}
	if state.FallbackActive {
		return Result{
			Status: StatusActive,
			Reason: Reason{Code: "fallback_engine_running", Message: "pipeline engine is covering for the SDK engine"},
		}
	}
	if state.EffectiveEngine == syncstate.EngineSDK {
		if state.LastSyncSuccessAt != nil && in.Now.Sub(*state.LastSyncSuccessAt) <= in.FreshnessWindow {
			return Result{
				Status: StatusActive,
				Reason: Reason{Code: "sdk_fresh", Message: "SDK engine synced recently"},
			}
		}
		return Result{
			Status: StatusComplete,
			Reason: Reason{Code: "sdk_awaiting_run", Message: "configured, awaiting next successful sync"},
		}
	}

	// 5. Pipeline engine needs its remote resources
	if !in.ProvisioningReady || in.Connection == nil {
		return Result{
			Status:  StatusStartedNotComplete,
			Reason:  Reason{Code: "provisioning_incomplete", Message: "pipeline connection has not been provisioned"},
			Actions: []Action{ActionProvision},
		}
	}

	// 6. Healthy, recently synced connection
	if in.Connection.IsActive && in.Connection.LastSyncedAt != nil &&
		in.Now.Sub(*in.Connection.LastSyncedAt) <= in.FreshnessWindow {
		return Result{
			Status: StatusActive,
			Reason: Reason{Code: "pipeline_fresh", Message: "pipeline connection synced recently"},
		}
	}

	// 7. Explicitly paused
	if !in.Connection.IsActive {
		return Result{
			Status: StatusComplete,
			Reason: Reason{Code: "pipeline_paused", Message: "pipeline connection is paused"},
		}
	}

	// 8. Configured, waiting on the next run
	return Result{
		Status: StatusComplete,
		Reason: Reason{Code: "pipeline_awaiting_run", Message: "configured, awaiting next successful sync"},
	}
}
