// Package pipeline manages the managed ELT engine: a JSON-over-POST
// client for its control API, idempotent provisioning of remote sources
// and connections, and the local connection records.
package pipeline

import "time"

// Source is the remote extractor resource
type Source struct {
	SourceID                string                 `json:"source_id"`
	Name                    string                 `json:"name"`
	WorkspaceID             string                 `json:"workspace_id"`
	SourceDefinitionID      string                 `json:"source_definition_id"`
	ConnectionConfiguration map[string]interface{} `json:"connection_configuration"`
}

// Stream is one discoverable table/view the source offers
type Stream struct {
	Name                          string      `json:"name"`
	JSONSchema                    interface{} `json:"json_schema,omitempty"`
	SupportedSyncModes            []string    `json:"supported_sync_modes"`
	SourceDefinedCursor           bool        `json:"source_defined_cursor"`
	DefaultCursorField            []string    `json:"default_cursor_field"`
	SourceDefinedPrimaryKey       [][]string  `json:"source_defined_primary_key"`
	SupportedDestinationSyncModes []string    `json:"supported_destination_sync_modes,omitempty"`
}

// Catalog is the discovered schema
type Catalog struct {
	Streams []CatalogStream `json:"streams"`
}

// CatalogStream pairs a stream with its (possibly empty) configuration
type CatalogStream struct {
	Stream Stream        `json:"stream"`
	Config *StreamConfig `json:"config,omitempty"`
}

// StreamConfig is the per-stream sync selection in a configured catalog
type StreamConfig struct {
	SyncMode            string     `json:"sync_mode"`
	DestinationSyncMode string     `json:"destination_sync_mode"`
	CursorField         []string   `json:"cursor_field"`
	PrimaryKey          [][]string `json:"primary_key"`
	Selected            bool       `json:"selected"`
}

// Connection is the remote source-to-destination link
type Connection struct {
	ConnectionID  string        `json:"connection_id"`
	Name          string        `json:"name"`
	SourceID      string        `json:"source_id"`
	DestinationID string        `json:"destination_id"`
	Status        string        `json:"status"` // active | inactive
	ScheduleType  string        `json:"schedule_type,omitempty"`
	ScheduleData  *ScheduleData `json:"schedule_data,omitempty"`
	SyncCatalog   *Catalog      `json:"sync_catalog,omitempty"`

	// Remote-managed attributes preserved verbatim on update
	OperationIDs []string `json:"operation_ids,omitempty"`
}

// CheckResult is the outcome of sources.check_connection
type CheckResult struct {
	Status  string `json:"status"` // succeeded | failed
	Message string `json:"message,omitempty"`
}

// Succeeded reports whether the connectivity check passed
func (r *CheckResult) Succeeded() bool {
	return r.Status == "succeeded"
}

// Job is a remote sync job
type Job struct {
	ID        string     `json:"id"`
	ConfigID  string     `json:"config_id"`
	Status    string     `json:"status"` // pending | running | succeeded | failed | cancelled
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// Running reports whether the job still occupies the connection
func (j *Job) Running() bool {
	return j.Status == "pending" || j.Status == "running"
}
