// Package syncstate tracks which execution engine serves each tenant
// account and drives the automatic SDK-to-pipeline fallback. All
// transitions run inside the store's transactional update so concurrent
// triggers never interleave partial state.
package syncstate

import "time"

// Engine identifies an execution engine
type Engine string

const (
	EngineSDK      Engine = "SDK"
	EnginePipeline Engine = "PIPELINE"
)

// ParityState is the outcome of the last parity comparison
type ParityState string

const (
	ParityUnknown ParityState = "UNKNOWN"
	ParityPassed  ParityState = "PASSED"
	ParityFailed  ParityState = "FAILED"
)

// State is one tenant account's engine-selection record.
//
// Invariant: FallbackActive implies EffectiveEngine == EnginePipeline and
// DesiredEngine == EngineSDK.
type State struct {
	TenantID  string
	AccountID string

	DesiredEngine   Engine
	EffectiveEngine Engine
	FallbackActive  bool

	ConsecutiveSDKFailures    int
	ConsecutiveParityFailures int

	LastSyncSuccessAt *time.Time
	LastSyncError     string

	ParityState        ParityState
	LastParityPassedAt *time.Time

	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewState returns the initial record for a tenant account: SDK engine,
// no failures, parity unknown.
func NewState(tenantID, accountID string) *State {
	return &State{
		TenantID:        tenantID,
		AccountID:       accountID,
		DesiredEngine:   EngineSDK,
		EffectiveEngine: EngineSDK,
		ParityState:     ParityUnknown,
	}
}

// Phase names the three observable machine states
type Phase string

const (
	PhaseSDKActive      Phase = "SDK_ACTIVE"
	PhaseSDKFallback    Phase = "SDK_FALLBACK"
	PhasePipelineActive Phase = "PIPELINE_ACTIVE"
)

// Phase derives the machine state from the record
func (s *State) Phase() Phase {
	switch {
	case s.FallbackActive:
		return PhaseSDKFallback
	case s.EffectiveEngine == EnginePipeline:
		return PhasePipelineActive
	default:
		return PhaseSDKActive
	}
}
