package server

import (
	"net/http"
	"strings"
)

// setupHTTPRoutes configures all HTTP handlers
func (s *AdsyncServer) setupHTTPRoutes() {
	s.mux.HandleFunc("/health", s.corsMiddleware(s.HandleHealth))

	// Per-account operations: /api/accounts/{tenant}/{account}/{op}
	s.mux.HandleFunc("/api/accounts/", s.corsMiddleware(s.HandleAccount))

	// Job inspection
	s.mux.HandleFunc("/api/jobs", s.corsMiddleware(s.HandleJobs))
	s.mux.HandleFunc("/api/jobs/", s.corsMiddleware(s.HandleJob))

	// Live job updates
	s.mux.HandleFunc("/ws/jobs", s.corsMiddleware(s.HandleJobsWebSocket))
}

// checkOrigin validates a request origin against configured allowed origins.
// Requests with no Origin header (curl, server-to-server) are allowed.
func (s *AdsyncServer) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	// Prefix matching so any port on an allowed host passes
	for _, allowed := range s.Config().GetServerAllowedOrigins() {
		if strings.HasPrefix(origin, allowed) {
			return true
		}
	}
	return false
}

// corsMiddleware sets CORS headers for allowed origins and answers
// preflight requests
func (s *AdsyncServer) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		if origin != "" && s.checkOrigin(r) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}

		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}
