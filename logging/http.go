package logging

import (
	"log/slog"
	"net/http"
	"time"
)

type loggingHandler struct {
	next http.Handler
	log  *slog.Logger
}

// NewHTTPHandler wraps h to log one line per request. Used by the metrics
// endpoint when running verbose.
func NewHTTPHandler(h http.Handler, logger *slog.Logger) http.Handler {
	return &loggingHandler{next: h, log: logger}
}

func (h *loggingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	start := time.Now()
	h.next.ServeHTTP(rec, r)
	h.log.Info("request", "method", r.Method, "path", r.URL.Path,
		"status", rec.status, "took", time.Since(start))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
