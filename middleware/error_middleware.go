package middleware

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"places-server/logger"
	"places-server/utils/errors"
)

// ErrorMiddleware recovers from panics and answers with a standardized 500.
func ErrorMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Log.Errorw("panic recovered", "panic", rec, "method", r.Method, "path", r.URL.Path)
					WriteError(w, errors.ErrInternal)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// WriteError writes err as a JSON APIError response. Errors that are not an
// APIError become a generic 500.
func WriteError(w http.ResponseWriter, err error) {
	var apiErr *errors.APIError
	if !stderrors.As(err, &apiErr) {
		apiErr = errors.Internal(err, errors.ErrInternal.Message)
	}
	if apiErr.Status >= http.StatusInternalServerError {
		logger.Log.Errorw("server error", "code", apiErr.Code, "err", apiErr.Error())
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiErr.Status)
	if encErr := json.NewEncoder(w).Encode(apiErr); encErr != nil {
		logger.Log.Warnw("failed to write error response", "err", encErr)
	}
}
