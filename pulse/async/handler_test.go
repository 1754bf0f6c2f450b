package async

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerRegistry(t *testing.T) {
	t.Run("register and lookup", func(t *testing.T) {
		registry := NewHandlerRegistry()
		handler := &recordingHandler{name: "sync.sdk"}

		registry.Register(handler)

		assert.True(t, registry.Has("sync.sdk"))
		assert.Same(t, handler, registry.Get("sync.sdk").(*recordingHandler))
		assert.Nil(t, registry.Get("sync.other"))
		assert.Equal(t, []string{"sync.sdk"}, registry.Names())
	})

	t.Run("duplicate registration panics", func(t *testing.T) {
		registry := NewHandlerRegistry()
		registry.Register(&recordingHandler{name: "sync.sdk"})

		assert.Panics(t, func() {
			registry.Register(&recordingHandler{name: "sync.sdk"})
		})
	})
}

func TestRegistryExecutor(t *testing.T) {
	t.Run("dispatches by handler name", func(t *testing.T) {
		registry := NewHandlerRegistry()
		handler := &recordingHandler{name: "sync.sdk"}
		registry.Register(handler)

		executor := NewRegistryExecutor(registry)
		job := newTestJob(t, "sync.sdk", "t1:123", 1)

		require.NoError(t, executor.Execute(context.Background(), job))
		assert.Equal(t, 1, handler.executions())
	})

	t.Run("missing handler name", func(t *testing.T) {
		executor := NewRegistryExecutor(NewHandlerRegistry())
		job := newTestJob(t, "sync.sdk", "t1:123", 1)
		job.HandlerName = ""

		err := executor.Execute(context.Background(), job)
		require.Error(t, err)
	})

	t.Run("unregistered handler", func(t *testing.T) {
		executor := NewRegistryExecutor(NewHandlerRegistry())
		job := newTestJob(t, "sync.sdk", "t1:123", 1)

		err := executor.Execute(context.Background(), job)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no handler registered")
	})
}
