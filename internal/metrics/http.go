package metrics

import (
	"net/http"
	"strconv"
	"time"
)

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func statusLabel(status int) string {
	return strconv.Itoa(status)
}

// HTTPMiddleware records request count, latency and in-flight requests
// under a fixed route label.
func HTTPMiddleware(m Recorder, route string, next http.Handler) http.Handler {
	if _, ok := m.(*NoopMetrics); ok {
		return next
	}

	var inFlight interface {
		Inc()
		Dec()
	}
	if pm, ok := m.(*Metrics); ok {
		inFlight = pm.HTTPRequestsInFlight
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if inFlight != nil {
			inFlight.Inc()
			defer inFlight.Dec()
		}

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		m.RecordHTTPRequest(r.Method, route, rec.status, time.Since(start))
	})
}
