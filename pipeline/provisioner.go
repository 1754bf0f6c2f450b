package pipeline

import (
	"context"
	"fmt"

	"github.com/arcline/adsync/config"
	"github.com/arcline/adsync/creds"
	"github.com/arcline/adsync/errors"
	"github.com/arcline/adsync/logger"
	"github.com/arcline/adsync/syncstate"
)

// Provisioner makes the remote ELT platform's state match the tenant's
// desired configuration. Safe to call repeatedly: identity is resolved by
// exact display name, so re-running never duplicates remote resources.
// Remote work happens first and local records are written last, so a
// crash mid-provisioning never silently assumes success.
type Provisioner struct {
	client     *Client
	cfg        config.PipelineConfig
	adsCfg     config.AdsConfig
	credStore  *creds.Store
	decryptor  creds.TokenDecryptor
	connStore  *ConnectionStore
	stateStore *syncstate.Store
	machine    *syncstate.Machine
}

// NewProvisioner creates a provisioner
func NewProvisioner(
	client *Client,
	cfg config.PipelineConfig,
	adsCfg config.AdsConfig,
	credStore *creds.Store,
	decryptor creds.TokenDecryptor,
	connStore *ConnectionStore,
	stateStore *syncstate.Store,
	machine *syncstate.Machine,
) *Provisioner {
	return &Provisioner{
		client:     client,
		cfg:        cfg,
		adsCfg:     adsCfg,
		credStore:  credStore,
		decryptor:  decryptor,
		connStore:  connStore,
		stateStore: stateStore,
		machine:    machine,
	}
}

// ProvisionRequest selects what to provision. Workspace and destination
// default from configuration when not set on the request.
type ProvisionRequest struct {
	TenantID  string `json:"-"`
	AccountID string `json:"account_id"`

	WorkspaceID   string `json:"workspace_id,omitempty"`
	DestinationID string `json:"destination_id,omitempty"`

	ScheduleType    ScheduleType `json:"schedule_type"`
	IntervalMinutes int          `json:"interval_minutes,omitempty"`
	CronExpression  string       `json:"cron_expression,omitempty"`

	IsActive *bool `json:"is_active,omitempty"`
}

// ProvisionResult is the connection summary returned to the caller
type ProvisionResult struct {
	ConnectionID     string       `json:"connection_id"`
	SourceID         string       `json:"source_id"`
	WorkspaceID      string       `json:"workspace_id"`
	ScheduleType     ScheduleType `json:"schedule_type"`
	IsActive         bool         `json:"is_active"`
	SourceReused     bool         `json:"source_reused"`
	ConnectionReused bool         `json:"connection_reused"`
}

// Display names are the idempotency keys: stable per tenant+account
// across calls, matched exactly against the remote listing.
func sourceName(tenantID, accountID string) string {
	return fmt.Sprintf("adsync-source-%s-%s", tenantID, accountID)
}

func connectionName(tenantID, accountID string) string {
	return fmt.Sprintf("adsync-connection-%s-%s", tenantID, accountID)
}

// Provision runs the full idempotent sequence: resolve ids, find or
// create the source, validate it through connectivity check and schema
// discovery, configure the catalog, find or create the connection, and
// only then record the outcome locally and flip the desired engine.
func (p *Provisioner) Provision(ctx context.Context, req ProvisionRequest) (*ProvisionResult, error) {
	workspaceID := req.WorkspaceID
	if workspaceID == "" {
		workspaceID = p.cfg.WorkspaceID
	}
	destinationID := req.DestinationID
	if destinationID == "" {
		destinationID = p.cfg.DestinationID
	}
	if workspaceID == "" || destinationID == "" {
		return nil, errors.Wrap(errors.ErrDependencyMissing, "workspace or destination id unresolved")
	}
	if p.cfg.SourceDefinitionID == "" {
		return nil, errors.Wrap(errors.ErrDependencyMissing, "source definition id not configured")
	}

	cred, err := p.credStore.Get(ctx, req.TenantID, req.AccountID)
	if err != nil {
		return nil, err
	}

	source, sourceReused, err := p.ensureSource(ctx, req, cred, workspaceID)
	if err != nil {
		return nil, err
	}

	catalog, err := p.validateSource(ctx, source)
	if err != nil {
		return nil, err
	}

	configured, err := ConfigureCatalog(catalog)
	if err != nil {
		return nil, err
	}

	schedule := Schedule{
		Type:            req.ScheduleType,
		IntervalMinutes: req.IntervalMinutes,
		CronExpression:  req.CronExpression,
		Timezone:        p.cfg.ScheduleTimezone,
	}

	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	conn, connectionReused, err := p.ensureConnection(ctx, req, workspaceID, destinationID, source, configured, schedule, isActive)
	if err != nil {
		return nil, err
	}

	// Remote state is settled; now and only now touch local records
	record := &ConnectionRecord{
		TenantID:        req.TenantID,
		ConnectionID:    conn.ConnectionID,
		SourceID:        source.SourceID,
		WorkspaceID:     workspaceID,
		ScheduleType:    schedule.Type,
		IntervalMinutes: schedule.IntervalMinutes,
		CronExpression:  schedule.CronExpression,
		CronTimezone:    schedule.Timezone,
		IsActive:        isActive,
	}
	if record.ScheduleType == "" {
		record.ScheduleType = ScheduleManual
	}
	if err := p.connStore.Upsert(ctx, record); err != nil {
		return nil, err
	}

	_, err = p.stateStore.Update(ctx, req.TenantID, req.AccountID, func(s *syncstate.State) error {
		p.machine.SetDesiredEngine(s, syncstate.EnginePipeline)
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Infow("Pipeline provisioned",
		"tenant_id", req.TenantID,
		"account_id", req.AccountID,
		"connection_id", conn.ConnectionID,
		"source_reused", sourceReused,
		"connection_reused", connectionReused)

	return &ProvisionResult{
		ConnectionID:     conn.ConnectionID,
		SourceID:         source.SourceID,
		WorkspaceID:      workspaceID,
		ScheduleType:     record.ScheduleType,
		IsActive:         isActive,
		SourceReused:     sourceReused,
		ConnectionReused: connectionReused,
	}, nil
}

// sourceConfigVariants builds the ordered configuration candidates. The
// optional change-event capability is not supported by every account
// tier, so the variant carrying it is tried first and dropped on failure.
func (p *Provisioner) sourceConfigVariants(accountID, refreshToken string) []map[string]interface{} {
	base := map[string]interface{}{
		"customer_id": accountID,
		"credentials": map[string]interface{}{
			"client_id":       p.adsCfg.ClientID,
			"client_secret":   p.adsCfg.ClientSecret,
			"developer_token": p.adsCfg.DeveloperToken,
			"refresh_token":   refreshToken,
		},
	}
	if p.adsCfg.LoginCustomerID != "" {
		base["login_customer_id"] = p.adsCfg.LoginCustomerID
	}

	withChangeEvents := make(map[string]interface{}, len(base)+1)
	for k, v := range base {
		withChangeEvents[k] = v
	}
	withChangeEvents["include_change_events"] = true

	return []map[string]interface{}{withChangeEvents, base}
}

// ensureSource finds the tenant's source by exact name and definition id,
// updating in place when present and creating otherwise
func (p *Provisioner) ensureSource(ctx context.Context, req ProvisionRequest, cred *creds.Credential, workspaceID string) (*Source, bool, error) {
	refreshToken, err := p.decryptor.DecryptRefreshToken(cred.RefreshTokenEnc)
	if err != nil {
		return nil, false, errors.Wrap(err, "failed to decrypt refresh token")
	}
	if refreshToken == "" {
		return nil, false, errors.Wrapf(errors.ErrMissingRefreshToken, "account %s", req.AccountID)
	}

	name := sourceName(req.TenantID, req.AccountID)

	sources, err := p.client.ListSources(ctx, workspaceID)
	if err != nil {
		return nil, false, err
	}

	var existing *Source
	for i := range sources {
		if sources[i].Name == name && sources[i].SourceDefinitionID == p.cfg.SourceDefinitionID {
			existing = &sources[i]
			break
		}
	}

	variants := p.sourceConfigVariants(req.AccountID, refreshToken)
	reused := existing != nil

	var lastErr error
	for _, cfg := range variants {
		candidate := &Source{
			Name:                    name,
			WorkspaceID:             workspaceID,
			SourceDefinitionID:      p.cfg.SourceDefinitionID,
			ConnectionConfiguration: cfg,
		}

		var applied *Source
		if existing != nil {
			candidate.SourceID = existing.SourceID
			applied, err = p.client.UpdateSource(ctx, candidate)
		} else {
			applied, err = p.client.CreateSource(ctx, candidate)
		}
		if err != nil {
			lastErr = err
			continue
		}

		// A created source stays around for the next variant's update
		if existing == nil {
			existing = applied
		}

		check, err := p.client.CheckConnection(ctx, applied.SourceID)
		if err != nil {
			lastErr = err
			continue
		}
		if !check.Succeeded() {
			lastErr = errors.Wrapf(errors.ErrProvisioning, "connectivity check failed: %s", check.Message)
			continue
		}

		catalog, err := p.client.DiscoverSchema(ctx, applied.SourceID)
		if err != nil {
			lastErr = err
			continue
		}
		if len(catalog.Streams) == 0 {
			lastErr = errors.Wrap(errors.ErrProvisioning, "schema discovery returned an empty catalog")
			continue
		}

		return applied, reused, nil
	}

	if lastErr == nil {
		lastErr = errors.Wrap(errors.ErrProvisioning, "no source configuration variant produced a working source")
	}
	return nil, false, errors.Wrapf(lastErr, "all %d source configuration variants failed", len(variants))
}

// validateSource re-discovers the accepted source's schema for catalog
// configuration
func (p *Provisioner) validateSource(ctx context.Context, source *Source) (*Catalog, error) {
	catalog, err := p.client.DiscoverSchema(ctx, source.SourceID)
	if err != nil {
		return nil, err
	}
	if len(catalog.Streams) == 0 {
		return nil, errors.Wrap(errors.ErrProvisioning, "schema discovery returned an empty catalog")
	}
	return catalog, nil
}

// ensureConnection finds the connection by exact name, updating in place
// (preserving remote-managed attributes) or creating anew
func (p *Provisioner) ensureConnection(
	ctx context.Context,
	req ProvisionRequest,
	workspaceID, destinationID string,
	source *Source,
	configured *Catalog,
	schedule Schedule,
	isActive bool,
) (*Connection, bool, error) {
	scheduleType, scheduleData, err := schedule.Payload()
	if err != nil {
		return nil, false, err
	}

	status := "active"
	if !isActive {
		status = "inactive"
	}

	name := connectionName(req.TenantID, req.AccountID)

	connections, err := p.client.ListConnections(ctx, workspaceID)
	if err != nil {
		return nil, false, err
	}

	for i := range connections {
		if connections[i].Name != name {
			continue
		}

		existing := &connections[i]
		updated := &Connection{
			ConnectionID:  existing.ConnectionID,
			Name:          name,
			SourceID:      source.SourceID,
			DestinationID: destinationID,
			Status:        status,
			ScheduleType:  string(scheduleType),
			ScheduleData:  scheduleData,
			SyncCatalog:   configured,
			// Remote-managed attributes carry over untouched
			OperationIDs: existing.OperationIDs,
		}

		conn, err := p.client.UpdateConnection(ctx, updated)
		if err != nil {
			return nil, false, err
		}
		return conn, true, nil
	}

	conn, err := p.client.CreateConnection(ctx, &Connection{
		Name:          name,
		SourceID:      source.SourceID,
		DestinationID: destinationID,
		Status:        status,
		ScheduleType:  string(scheduleType),
		ScheduleData:  scheduleData,
		SyncCatalog:   configured,
	})
	if err != nil {
		return nil, false, err
	}

	return conn, false, nil
}
