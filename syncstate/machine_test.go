package syncstate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcline/adsync/errors"
)

func assertInvariant(t *testing.T, s *State) {
	t.Helper()
	if s.FallbackActive {
		assert.Equal(t, EnginePipeline, s.EffectiveEngine)
		assert.Equal(t, EngineSDK, s.DesiredEngine)
	}
}

func TestMachine_RecordSDKFailure(t *testing.T) {
	t.Run("increments counter monotonically", func(t *testing.T) {
		m := NewMachine(3)
		s := NewState("t1", "a1")

		for i := 1; i <= 2; i++ {
			m.RecordSDKFailure(s, errors.New("boom"))
			assert.Equal(t, i, s.ConsecutiveSDKFailures)
			assertInvariant(t, s)
		}
		assert.False(t, s.FallbackActive)
		assert.Equal(t, "boom", s.LastSyncError)
	})

	t.Run("crossing threshold enters fallback", func(t *testing.T) {
		m := NewMachine(3)
		s := NewState("t1", "a1")

		for i := 0; i < 3; i++ {
			m.RecordSDKFailure(s, errors.New("boom"))
		}

		assert.True(t, s.FallbackActive)
		assert.Equal(t, EnginePipeline, s.EffectiveEngine)
		assert.Equal(t, EngineSDK, s.DesiredEngine, "desired engine stays untouched")
		assert.Equal(t, PhaseSDKFallback, s.Phase())
		assertInvariant(t, s)
	})

	t.Run("failures past threshold keep counting", func(t *testing.T) {
		m := NewMachine(2)
		s := NewState("t1", "a1")

		for i := 0; i < 5; i++ {
			m.RecordSDKFailure(s, errors.New("boom"))
		}
		assert.Equal(t, 5, s.ConsecutiveSDKFailures)
		assertInvariant(t, s)
	})

	t.Run("no fallback when pipeline is already desired", func(t *testing.T) {
		m := NewMachine(1)
		s := NewState("t1", "a1")
		m.SetDesiredEngine(s, EnginePipeline)

		m.RecordSDKFailure(s, errors.New("boom"))
		assert.False(t, s.FallbackActive)
		assert.Equal(t, PhasePipelineActive, s.Phase())
	})
}

func TestMachine_RecordSDKSuccess(t *testing.T) {
	t.Run("resets failure counter to exactly zero", func(t *testing.T) {
		m := NewMachine(5)
		s := NewState("t1", "a1")
		m.RecordSDKFailure(s, errors.New("boom"))
		m.RecordSDKFailure(s, errors.New("boom"))

		m.RecordSDKSuccess(s, false)
		assert.Equal(t, 0, s.ConsecutiveSDKFailures)
		assert.NotNil(t, s.LastSyncSuccessAt)
		assert.Empty(t, s.LastSyncError)
	})

	t.Run("success without parity does not clear fallback", func(t *testing.T) {
		m := NewMachine(1)
		s := NewState("t1", "a1")
		m.RecordSDKFailure(s, errors.New("boom"))
		require.True(t, s.FallbackActive)

		m.RecordSDKSuccess(s, false)
		assert.True(t, s.FallbackActive, "fallback only clears on a parity-passed run")
		assert.Equal(t, 0, s.ConsecutiveSDKFailures)
		assertInvariant(t, s)
	})

	t.Run("parity-passed success clears fallback and restores SDK", func(t *testing.T) {
		m := NewMachine(1)
		s := NewState("t1", "a1")
		m.RecordSDKFailure(s, errors.New("boom"))
		require.True(t, s.FallbackActive)

		m.RecordSDKSuccess(s, true)
		assert.False(t, s.FallbackActive)
		assert.Equal(t, EngineSDK, s.EffectiveEngine)
		assert.Equal(t, EngineSDK, s.DesiredEngine)
		assert.Equal(t, PhaseSDKActive, s.Phase())
	})
}

func TestMachine_RecordParity(t *testing.T) {
	m := NewMachine(3)
	s := NewState("t1", "a1")

	t.Run("mismatch increments counter and fails parity", func(t *testing.T) {
		m.RecordParity(s, false)
		m.RecordParity(s, false)
		assert.Equal(t, 2, s.ConsecutiveParityFailures)
		assert.Equal(t, ParityFailed, s.ParityState)
		assert.Nil(t, s.LastParityPassedAt)
	})

	t.Run("match resets counter and records pass time", func(t *testing.T) {
		m.RecordParity(s, true)
		assert.Equal(t, 0, s.ConsecutiveParityFailures)
		assert.Equal(t, ParityPassed, s.ParityState)
		assert.NotNil(t, s.LastParityPassedAt)
	})
}

func TestMachine_SetDesiredEngine(t *testing.T) {
	t.Run("effective follows desired when not in fallback", func(t *testing.T) {
		m := NewMachine(3)
		s := NewState("t1", "a1")

		m.SetDesiredEngine(s, EnginePipeline)
		assert.Equal(t, EnginePipeline, s.EffectiveEngine)
		assert.Equal(t, PhasePipelineActive, s.Phase())

		m.SetDesiredEngine(s, EngineSDK)
		assert.Equal(t, EngineSDK, s.EffectiveEngine)
		assert.Equal(t, PhaseSDKActive, s.Phase())
	})

	t.Run("desiring SDK during fallback leaves effective pipeline", func(t *testing.T) {
		m := NewMachine(1)
		s := NewState("t1", "a1")
		m.RecordSDKFailure(s, errors.New("boom"))
		require.True(t, s.FallbackActive)

		m.SetDesiredEngine(s, EngineSDK)
		assert.Equal(t, EnginePipeline, s.EffectiveEngine)
		assert.True(t, s.FallbackActive)
		assertInvariant(t, s)
	})

	t.Run("desiring pipeline during fallback converts to pipeline-active", func(t *testing.T) {
		m := NewMachine(1)
		s := NewState("t1", "a1")
		m.RecordSDKFailure(s, errors.New("boom"))
		require.True(t, s.FallbackActive)

		m.SetDesiredEngine(s, EnginePipeline)
		assert.False(t, s.FallbackActive)
		assert.Equal(t, EnginePipeline, s.DesiredEngine)
		assert.Equal(t, PhasePipelineActive, s.Phase())
	})
}

// Fallback never clears without a parity-passed success, across a long
// randomized-ish event sequence.
func TestMachine_FallbackExitRequiresParity(t *testing.T) {
	m := NewMachine(2)
	s := NewState("t1", "a1")

	events := []struct {
		apply      func()
		parityPass bool
	}{
		{func() { m.RecordSDKFailure(s, errors.New("e1")) }, false},
		{func() { m.RecordSDKFailure(s, errors.New("e2")) }, false},
		{func() { m.RecordSDKSuccess(s, false) }, false},
		{func() { m.RecordParity(s, false) }, false},
		{func() { m.RecordSDKSuccess(s, false) }, false},
		{func() { m.RecordSDKSuccess(s, true) }, true},
	}

	wasFallback := false
	for _, ev := range events {
		before := s.FallbackActive
		ev.apply()
		assertInvariant(t, s)
		if before && !s.FallbackActive {
			assert.True(t, ev.parityPass, "fallback cleared by a non-parity event")
		}
		wasFallback = wasFallback || s.FallbackActive
	}

	assert.True(t, wasFallback, "sequence should have entered fallback")
	assert.False(t, s.FallbackActive, "sequence should have exited fallback at the end")
}
