package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"tt360.co/crm/api/spec"
	"tt360.co/crm/internal/auth"
	"tt360.co/crm/internal/errs"
	"tt360.co/crm/internal/inventory"
	"tt360.co/crm/internal/obs"
	"tt360.co/crm/internal/query"
)

// Pinger is satisfied by the Postgres store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadyProbe checks dependencies for /readyz.
type ReadyProbe struct {
	DB Pinger
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.Ping(ctx)
}

// Services are the application services exposed over HTTP.
type Services struct {
	Auth      *auth.Service
	RBAC      *auth.RBACService
	Inventory *inventory.Service
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string

	auth      *auth.Service
	rbac      *auth.RBACService
	inventory *inventory.Service

	rateBurst   int
	ratePerSec  int
	maxBody     int64
	corsOrigins []string
	trusted     []netip.Prefix
}

// Option tunes the middleware stack.
type Option func(*API)

func WithRateLimit(burst, perSecond int) Option {
	return func(a *API) {
		a.rateBurst = burst
		a.ratePerSec = perSecond
	}
}

func WithMaxBodyBytes(n int64) Option {
	return func(a *API) {
		if n > 0 {
			a.maxBody = n
		}
	}
}

func WithCORSOrigins(origins []string) Option {
	return func(a *API) { a.corsOrigins = origins }
}

// WithTrustedProxies lists the peers whose X-Forwarded-For header is honoured.
func WithTrustedProxies(prefixes []netip.Prefix) Option {
	return func(a *API) { a.trusted = prefixes }
}

func New(rp ReadyProbe, version string, svc Services, opts ...Option) *API {
	a := &API{
		mux:        http.NewServeMux(),
		readyProbe: rp,
		version:    version,
		auth:       svc.Auth,
		rbac:       svc.RBAC,
		inventory:  svc.Inventory,
		rateBurst:  40,
		ratePerSec: 20,
		maxBody:    1 << 20,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.register()
	return a
}

// Handler returns the fully wrapped handler for the server.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = obs.Instrument(h)
	h = MaxBodyBytes(h, a.maxBody)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = CORS(h, a.corsOrigins)
	h = SecurityHeaders(h)
	h = Recover(h)
	h = LoggingJSON(h)
	h = RealIP(h, a.trusted)
	return RequestID(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) error {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "crm-api",
		"version": a.version,
	})
	return nil
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) error {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return nil
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
	return nil
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) error {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "crm-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
	return nil
}

func (a *API) OpenAPISpec(w http.ResponseWriter, r *http.Request) error {
	w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
	_, _ = w.Write(spec.OpenAPI)
	return nil
}

func (a *API) Docs(w http.ResponseWriter, r *http.Request) error {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(spec.DocsPage)
	return nil
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON reads exactly one JSON value and validates it.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return errs.BadRequest("request body is required")
		case errors.As(err, &tooLarge):
			return errs.BadRequest("request body exceeds %d bytes", tooLarge.Limit)
		default:
			return errs.BadRequest("malformed request body: %v", err)
		}
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errs.BadRequest("unexpected data after JSON body")
	}
	return validateStruct(dst)
}

func pathID(r *http.Request, name string) (int64, error) {
	raw := r.PathValue(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errs.BadRequest("%s must be a positive integer", name)
	}
	return id, nil
}

func parseNonNegativeInt(raw, name string, def int) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val < 0 {
		return 0, errs.BadRequest("%s must be a non-negative integer", name)
	}
	return val, nil
}

// pageOf reads limit and offset; Page.Normalize applies the bounds.
func pageOf(r *http.Request) (query.Page, error) {
	q := r.URL.Query()
	limit, err := parseNonNegativeInt(q.Get("limit"), "limit", query.DefaultLimit)
	if err != nil {
		return query.Page{}, err
	}
	offset, err := parseNonNegativeInt(q.Get("offset"), "offset", 0)
	if err != nil {
		return query.Page{}, err
	}
	return query.Page{Limit: limit, Offset: offset}.Normalize(), nil
}

func optionalInt(r *http.Request, name string) (*int64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, errs.BadRequest("%s must be an integer", name)
	}
	return &v, nil
}

func created(w http.ResponseWriter, loc string, v any) error {
	w.Header().Set("Location", loc)
	writeJSON(w, http.StatusCreated, v)
	return nil
}

func noContent(w http.ResponseWriter) error {
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func respondOK(w http.ResponseWriter, v any) error {
	writeJSON(w, http.StatusOK, v)
	return nil
}

func location(prefix string, id int64) string {
	return prefix + "/" + strconv.FormatInt(id, 10)
}
