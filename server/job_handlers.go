package server

import (
	"net/http"

	"github.com/arcline/adsync/errors"
	"github.com/arcline/adsync/pulse/async"
)

const (
	defaultJobLimit = 50
	maxJobLimit     = 200
)

// HandleJobs lists jobs, newest first.
// GET /api/jobs?status=queued&limit=50
func (s *AdsyncServer) HandleJobs(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	limit := parseIntQueryParam(r, "limit", defaultJobLimit, 1, maxJobLimit)

	var statusFilter *async.JobStatus
	if v := r.URL.Query().Get("status"); v != "" {
		js := async.JobStatus(v)
		if !async.IsValidStatus(js) {
			writeError(w, http.StatusBadRequest, "Invalid status filter: "+v)
			return
		}
		statusFilter = &js
	}

	jobs, err := s.Queue().ListJobs(statusFilter, limit)
	if err != nil {
		s.logger.Errorw("Failed to list jobs", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

// HandleJob serves a single job and its sub-resources.
// GET /api/jobs/{id}
// GET /api/jobs/{id}/children
func (s *AdsyncServer) HandleJob(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	parts := extractPathParts(r.URL.Path, "/api/jobs/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, http.StatusBadRequest, "Missing job ID")
		return
	}
	jobID := parts[0]

	if len(parts) == 2 && parts[1] == "children" {
		children, err := s.Queue().ListTasksByParent(jobID)
		if err != nil {
			s.logger.Errorw("Failed to list child jobs", "job_id", jobID, "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to list child jobs")
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"jobs":  children,
			"count": len(children),
		})
		return
	}

	if len(parts) > 1 {
		writeError(w, http.StatusNotFound, "Unknown job sub-resource")
		return
	}

	job, err := s.Queue().GetJob(jobID)
	if err != nil {
		if errors.IsNotFoundError(err) {
			writeError(w, http.StatusNotFound, "Job not found: "+jobID)
			return
		}
		s.logger.Errorw("Failed to get job", "job_id", jobID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to get job")
		return
	}

	writeJSON(w, http.StatusOK, job)
}
