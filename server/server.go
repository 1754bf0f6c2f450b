// Package server exposes the adsync HTTP API: per-account sync triggers,
// provisioning, status resolution, job inspection, and a WebSocket feed of
// job updates.
package server

import (
	"context"
	"database/sql"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/arcline/adsync/config"
	"github.com/arcline/adsync/creds"
	"github.com/arcline/adsync/dispatch"
	"github.com/arcline/adsync/logger"
	"github.com/arcline/adsync/pipeline"
	"github.com/arcline/adsync/pulse/async"
	"github.com/arcline/adsync/syncstate"
)

// AdsyncServer wires the stores, the job system, and the two sync engines
// behind a single HTTP surface.
type AdsyncServer struct {
	// cfg is swapped atomically on config hot-reload while request
	// handlers read it concurrently
	cfg atomic.Pointer[config.Config]
	db  *sql.DB

	pool        *async.WorkerPool
	dispatcher  *dispatch.Dispatcher
	provisioner *pipeline.Provisioner

	credStore  *creds.Store
	connStore  *pipeline.ConnectionStore
	stateStore *syncstate.Store

	mux     *http.ServeMux
	httpSrv *http.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *zap.SugaredLogger
}

// NewServer assembles the full service around an open database. The worker
// pool is created but not started; Start owns the lifecycle.
func NewServer(ctx context.Context, db *sql.DB, cfg *config.Config) *AdsyncServer {
	log := logger.Logger.Named("server")

	serverCtx, cancel := context.WithCancel(ctx)

	credStore := creds.NewStore(db)
	connStore := pipeline.NewConnectionStore(db)
	stateStore := syncstate.NewStore(db)
	machine := syncstate.NewMachine(cfg.Sync.FallbackThreshold)

	pipelineClient := pipeline.NewClient(cfg.Pipeline)
	provisioner := pipeline.NewProvisioner(
		pipelineClient, cfg.Pipeline, cfg.Ads,
		credStore, creds.NoopDecryptor{}, connStore, stateStore, machine,
	)

	pool := async.NewWorkerPool(serverCtx, db, async.PoolConfigFromPulse(cfg.Pulse), logger.Logger)
	pool.Registry().Register(dispatch.NewSDKSyncHandler(
		db, cfg.Sync, cfg.Ads, credStore, creds.NoopDecryptor{}, pool.GetQueue(),
	))

	dispatcher := dispatch.NewDispatcher(pool.GetQueue(), pipelineClient, credStore, connStore, stateStore)

	s := &AdsyncServer{
		db:          db,
		pool:        pool,
		dispatcher:  dispatcher,
		provisioner: provisioner,
		credStore:   credStore,
		connStore:   connStore,
		stateStore:  stateStore,
		mux:         http.NewServeMux(),
		ctx:         serverCtx,
		cancel:      cancel,
		logger:      log,
	}
	s.cfg.Store(cfg)
	s.setupHTTPRoutes()
	return s
}

// Config returns the current configuration snapshot.
func (s *AdsyncServer) Config() *config.Config {
	return s.cfg.Load()
}

// ReloadConfig swaps in a new configuration. Request-scoped settings
// (allowed origins, freshness window, provisioning readiness) apply to the
// next request; engine and worker settings still need a restart.
func (s *AdsyncServer) ReloadConfig(cfg *config.Config) {
	s.cfg.Store(cfg)
}

// Handler returns the routed HTTP handler, used by Start and by tests.
func (s *AdsyncServer) Handler() http.Handler {
	return s.mux
}

// Queue returns the shared job queue.
func (s *AdsyncServer) Queue() *async.Queue {
	return s.pool.GetQueue()
}

// freshnessWindow converts the configured freshness horizon for the status
// resolver.
func (s *AdsyncServer) freshnessWindow() time.Duration {
	minutes := s.Config().Sync.FreshnessMinutes
	if minutes <= 0 {
		minutes = 60
	}
	return time.Duration(minutes) * time.Minute
}
