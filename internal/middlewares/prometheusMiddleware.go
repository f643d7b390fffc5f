package middlewares

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"fitpass/internal/metrics"
)

// Instrument records request count, latency and response size per route
// template, and logs each request at debug level.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		metrics.InFlightRequests.Inc()
		defer metrics.InFlightRequests.Dec()

		// Create a response writer that captures the status code and response size
		lrw := &loggingResponseWriter{ResponseWriter: w}

		next.ServeHTTP(lrw, r)

		if lrw.statusCode == 0 {
			lrw.statusCode = http.StatusOK
		}
		statusCode := strconv.Itoa(lrw.statusCode)
		path := routePath(r)
		method := r.Method
		elapsed := time.Since(start)

		metrics.HTTPRequestsTotal.WithLabelValues(method, path, statusCode).Inc()
		metrics.HTTPRequestDurationSeconds.WithLabelValues(method, path, statusCode).Observe(elapsed.Seconds())
		metrics.HTTPResponseSizeBytes.WithLabelValues(method, path, statusCode).Observe(float64(lrw.responseSize))

		log.Debug().
			Str("method", method).
			Str("path", path).
			Int("status", lrw.statusCode).
			Int("size", lrw.responseSize).
			Dur("duration", elapsed).
			Msg("HTTP request")
	})
}

// routePath uses the matched route template so ids do not explode label cardinality.
func routePath(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// loggingResponseWriter is a wrapper around http.ResponseWriter that captures the status code and response size.
type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode   int
	responseSize int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(data []byte) (int, error) {
	if lrw.statusCode == 0 {
		lrw.statusCode = http.StatusOK // Default status code if WriteHeader is not called
	}
	n, err := lrw.ResponseWriter.Write(data)
	lrw.responseSize += n
	return n, err
}
