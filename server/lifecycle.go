package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/arcline/adsync/errors"
)

// Start launches the worker pool and serves HTTP until the listener fails
// or Stop is called.
func (s *AdsyncServer) Start(port int) error {
	s.pool.Start()
	s.logger.Infow("Worker pool started", "workers", s.pool.Workers())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runJobRetention()
	}()

	addr := fmt.Sprintf(":%d", port)
	s.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      s.mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // WebSocket connections outlive any write deadline
		IdleTimeout:  120 * time.Second,
	}

	s.logger.Infow("HTTP server listening", "addr", addr)
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.Wrap(err, "http server failed")
	}
	return nil
}

// runJobRetention periodically deletes terminal jobs older than the
// configured retention horizon.
func (s *AdsyncServer) runJobRetention() {
	retentionDays := s.Config().Pulse.JobRetentionDays
	if retentionDays <= 0 {
		retentionDays = 30
	}
	horizon := time.Duration(retentionDays) * 24 * time.Hour

	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			deleted, err := s.Queue().Cleanup(horizon)
			if err != nil {
				s.logger.Warnw("Job retention sweep failed", "error", err)
				continue
			}
			if deleted > 0 {
				s.logger.Infow("Cleaned up old jobs", "deleted", deleted, "retention_days", retentionDays)
			}
		case <-s.ctx.Done():
			return
		}
	}
}

// Stop drains HTTP connections, stops the workers, and waits for
// background goroutines.
func (s *AdsyncServer) Stop() error {
	s.logger.Infow("Initiating server shutdown")

	if s.httpSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warnw("HTTP shutdown did not complete cleanly", "error", err)
		}
	}

	// Stop workers after the listener so in-flight requests can still
	// enqueue, then cancel everything else (WebSocket feeds included).
	s.pool.Stop()
	s.logger.Infow("Worker pool stopped")

	s.cancel()
	s.wg.Wait()

	s.logger.Infow("Server shutdown complete")
	return nil
}
