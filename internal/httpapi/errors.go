package httpapi

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"tt360.co/crm/internal/audit"
	"tt360.co/crm/internal/errs"
	"tt360.co/crm/internal/obs"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Timestamp string   `json:"timestamp"`
	Status    int      `json:"status"`
	Error     string   `json:"error"`
	Message   string   `json:"message"`
	Errors    []string `json:"errors,omitempty"`
	Path      string   `json:"path"`
}

type translation struct {
	kind   errs.Kind
	status int
}

// translations is consulted in order; the first matching kind wins.
var translations = []translation{
	{errs.KindNotFound, http.StatusNotFound},
	{errs.KindDuplicate, http.StatusConflict},
	{errs.KindValidation, http.StatusBadRequest},
	{errs.KindBadRequest, http.StatusBadRequest},
	{errs.KindUnauthenticated, http.StatusUnauthorized},
	{errs.KindForbidden, http.StatusForbidden},
	{errs.KindRateLimited, http.StatusTooManyRequests},
}

const internalMessage = "an unexpected error occurred"

// statusFor maps an error onto its HTTP status. Unclassified errors are 500.
func statusFor(err error) int {
	kind := errs.KindOf(err)
	for _, t := range translations {
		if t.kind == kind {
			return t.status
		}
	}
	return http.StatusInternalServerError
}

// writeError renders err with the status and body its kind maps to. Details of
// unclassified errors are logged, never returned.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	body := errorBody{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Status:    status,
		Error:     http.StatusText(status),
		Path:      r.URL.Path,
	}

	e, ok := errs.As(err)
	switch {
	case status == http.StatusInternalServerError || !ok:
		body.Message = internalMessage
		obs.Logger().Error("request failed",
			zap.String("request_id", audit.RequestID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	default:
		body.Message = e.Message
		if body.Message == "" {
			body.Message = body.Error
		}
		if e.Kind == errs.KindValidation {
			body.Errors = e.Fields
		}
	}

	switch status {
	case http.StatusUnauthorized:
		w.Header().Set("WWW-Authenticate", `Bearer realm="crm"`)
	case http.StatusTooManyRequests:
		if ok && e.RetryAfter > 0 {
			w.Header().Set("Retry-After", retryAfterSeconds(e.RetryAfter))
		}
	}
	writeJSON(w, status, body)
}

func notFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, errs.NotFound("no handler for %s %s", r.Method, r.URL.Path))
}
