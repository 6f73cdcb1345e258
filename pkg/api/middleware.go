package api

import (
	"net/http"
	"time"
)

// statusRecorder captures the response code for logging
type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.code = code
	s.ResponseWriter.WriteHeader(code)
}

// logRequests logs every request; scrapes and probes at debug
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)

		ev := s.logger.Info()
		if r.Method == http.MethodGet {
			ev = s.logger.Debug()
		}
		if rec.code >= http.StatusInternalServerError {
			ev = s.logger.Warn()
		}
		ev.Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("code", rec.code).
			Dur("took", time.Since(start)).
			Msg("API request")
	})
}
