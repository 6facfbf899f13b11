package middleware

import (
	"net/http"
	"strconv"
	"time"

	"places-server/metrics"

	"github.com/gorilla/mux"
)

// MetricsMiddleware records request latency by route template. It must be
// installed with Router.Use so the matched route is known.
func MetricsMiddleware(m *metrics.Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			m.ObserveRequest(r.Method, routeTemplate(r), strconv.Itoa(rw.statusCode), time.Since(start))
		})
	}
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}
