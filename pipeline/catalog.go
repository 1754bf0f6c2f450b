package pipeline

import (
	"github.com/arcline/adsync/errors"
)

const (
	syncModeIncremental = "incremental"
	syncModeFullRefresh = "full_refresh"

	destModeAppendDedup = "append_dedup"
	destModeAppend      = "append"
	destModeOverwrite   = "overwrite"
)

// ConfigureCatalog translates a freshly discovered catalog into a
// configured one. Per stream: incremental with append_dedup when the
// stream supports both, otherwise full refresh with a fallback
// destination mode order of append, then whatever the stream offers.
// Cursor field and primary key carry over only in incremental mode.
// A catalog that configures to zero streams is a hard failure.
func ConfigureCatalog(discovered *Catalog) (*Catalog, error) {
	if discovered == nil || len(discovered.Streams) == 0 {
		return nil, errors.Wrap(errors.ErrProvisioning, "discovered catalog has no streams")
	}

	configured := &Catalog{}
	for _, cs := range discovered.Streams {
		cfg := configureStream(cs.Stream)
		if cfg == nil {
			continue
		}
		configured.Streams = append(configured.Streams, CatalogStream{
			Stream: cs.Stream,
			Config: cfg,
		})
	}

	if len(configured.Streams) == 0 {
		return nil, errors.Wrap(errors.ErrProvisioning, "no stream could be configured from the discovered catalog")
	}

	return configured, nil
}

func configureStream(stream Stream) *StreamConfig {
	if supportsIncrementalDedup(stream) {
		return &StreamConfig{
			SyncMode:            syncModeIncremental,
			DestinationSyncMode: destModeAppendDedup,
			CursorField:         stream.DefaultCursorField,
			PrimaryKey:          stream.SourceDefinedPrimaryKey,
			Selected:            true,
		}
	}

	destMode := pickDestinationMode(stream)
	if destMode == "" {
		return nil
	}

	return &StreamConfig{
		SyncMode:            syncModeFullRefresh,
		DestinationSyncMode: destMode,
		CursorField:         []string{},
		Selected:            true,
	}
}

// supportsIncrementalDedup requires incremental sync support, a usable
// cursor, and a primary key to dedup on
func supportsIncrementalDedup(stream Stream) bool {
	if !contains(stream.SupportedSyncModes, syncModeIncremental) {
		return false
	}
	if !stream.SourceDefinedCursor && len(stream.DefaultCursorField) == 0 {
		return false
	}
	if len(stream.SourceDefinedPrimaryKey) == 0 {
		return false
	}
	if len(stream.SupportedDestinationSyncModes) > 0 &&
		!contains(stream.SupportedDestinationSyncModes, destModeAppendDedup) {
		return false
	}
	return true
}

// pickDestinationMode falls back in priority order: append, then the
// first mode the stream offers. Streams declaring no destination modes
// default to append.
func pickDestinationMode(stream Stream) string {
	offered := stream.SupportedDestinationSyncModes
	if len(offered) == 0 {
		return destModeAppend
	}
	if contains(offered, destModeAppend) {
		return destModeAppend
	}
	return offered[0]
}

func contains(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}
