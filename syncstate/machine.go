package syncstate

import (
	"time"

	"github.com/arcline/adsync/logger"
)

// Machine applies engine-selection transitions to a State. Entering
// fallback is automatic; leaving it requires a parity-validated SDK
// success, never a timer.
type Machine struct {
	fallbackThreshold int
	now               func() time.Time
}

// NewMachine creates a transition machine. threshold is the number of
// consecutive SDK failures that triggers pipeline fallback.
func NewMachine(threshold int) *Machine {
	if threshold <= 0 {
		threshold = 3
	}
	return &Machine{
		fallbackThreshold: threshold,
		now:               time.Now,
	}
}

// RecordSDKFailure counts one exhausted SDK sync attempt. The caller
// retries transient errors first; only the final failure reaches here.
// Crossing the threshold flips the account to pipeline fallback without
// touching operator intent.
func (m *Machine) RecordSDKFailure(s *State, syncErr error) {
	s.ConsecutiveSDKFailures++
	if syncErr != nil {
		s.LastSyncError = syncErr.Error()
	}

	if !s.FallbackActive && s.DesiredEngine == EngineSDK &&
		s.ConsecutiveSDKFailures >= m.fallbackThreshold {
		s.EffectiveEngine = EnginePipeline
		s.FallbackActive = true
		logger.Warnw("SDK engine degraded, falling back to pipeline",
			"tenant_id", s.TenantID,
			"account_id", s.AccountID,
			"consecutive_failures", s.ConsecutiveSDKFailures)
	}
}

// RecordSDKSuccess records a completed SDK sync. The failure counter
// always resets; fallback clears only when the run also passed parity.
func (m *Machine) RecordSDKSuccess(s *State, parityPassed bool) {
	now := m.now()
	s.ConsecutiveSDKFailures = 0
	s.LastSyncSuccessAt = &now
	s.LastSyncError = ""

	if s.FallbackActive && parityPassed {
		s.FallbackActive = false
		s.EffectiveEngine = EngineSDK
		s.DesiredEngine = EngineSDK
		logger.Infow("SDK engine restored after parity-validated run",
			"tenant_id", s.TenantID,
			"account_id", s.AccountID)
	}
}

// RecordParity records a parity comparison outcome
func (m *Machine) RecordParity(s *State, passed bool) {
	if passed {
		now := m.now()
		s.ConsecutiveParityFailures = 0
		s.ParityState = ParityPassed
		s.LastParityPassedAt = &now
		return
	}

	s.ConsecutiveParityFailures++
	s.ParityState = ParityFailed
}

// SetDesiredEngine records operator intent. Effective engine follows
// immediately unless the account is in fallback, which only a
// parity-validated SDK success may clear.
func (m *Machine) SetDesiredEngine(s *State, engine Engine) {
	s.DesiredEngine = engine

	if engine == EnginePipeline {
		// Choosing the pipeline outright is not a fallback
		s.EffectiveEngine = EnginePipeline
		s.FallbackActive = false
		return
	}

	if !s.FallbackActive {
		s.EffectiveEngine = engine
	}
}
