// Package httpapi wires the countd HTTP endpoints to the counter service.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/xid"
	"pkt.systems/pslog"

	"pkt.systems/countd/api"
	"pkt.systems/countd/internal/counter"
	"pkt.systems/countd/internal/identity"
	"pkt.systems/countd/internal/metrics"
	"pkt.systems/countd/internal/store"
)

const headerRequestID = "X-Request-Id"

// Config configures the handler.
type Config struct {
	Service  *counter.Service
	Identity *identity.Extractor
	Metrics  *metrics.Metrics
	Logger   pslog.Logger
	// Ready reports whether the server finished starting; nil means always
	// ready.
	Ready func() bool
	// MaxBodyBytes bounds request bodies on mutating endpoints; zero or
	// negative disables the limit.
	MaxBodyBytes int64
}

// Handler wires HTTP endpoints to counter operations.
type Handler struct {
	svc      *counter.Service
	identity *identity.Extractor
	metrics  *metrics.Metrics
	logger   pslog.Logger
	ready    func() bool
	maxBody  int64
}

// New constructs a Handler.
func New(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	return &Handler{
		svc:      cfg.Service,
		identity: cfg.Identity,
		metrics:  cfg.Metrics,
		logger:   logger,
		ready:    cfg.Ready,
		maxBody:  cfg.MaxBodyBytes,
	}
}

// Register wires the routes under /v1 and the health endpoints.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.Handle("/v1/increment", h.wrap("increment", h.handleIncrement))
	mux.Handle("/v1/counter", h.wrap("counter.get", h.handleCounter))
	mux.Handle("/v1/counters", h.wrap("counter.list", h.handleCounters))
	mux.Handle("/v1/counters/top", h.wrap("counter.top", h.handleTop))
	mux.Handle("/healthz", h.wrap("healthz", h.handleHealth))
	mux.Handle("/readyz", h.wrap("readyz", h.handleReady))
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

// httpError is the typed failure handlers return; handleError maps it onto
// the unified ErrorResponse shape.
type httpError struct {
	Status int
	Code   string
	Detail string
}

func (h httpError) Error() string {
	if h.Detail != "" {
		return fmt.Sprintf("%s: %s", h.Code, h.Detail)
	}
	return h.Code
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (h *Handler) wrap(operation string, fn handlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := xid.New().String()
		logger := h.logger.With(
			"sys", "httpapi",
			"req_id", reqID,
			"operation", operation,
			"method", r.Method,
			"path", r.URL.Path,
		)
		ctx := pslog.ContextWithLogger(r.Context(), logger)
		r = r.WithContext(ctx)
		w.Header().Set(headerRequestID, reqID)
		if h.maxBody > 0 && r.Body != nil && r.Method != http.MethodGet {
			r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
		}

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		logger.Trace("http.request.start", "remote_addr", r.RemoteAddr)
		if err := fn(recorder, r); err != nil {
			h.handleError(r, recorder, err)
		}
		logger.Trace("http.request.complete",
			"status", recorder.status,
			"elapsed", time.Since(start),
		)
		if h.metrics != nil {
			h.metrics.HTTPRequests.WithLabelValues(operation, strconv.Itoa(recorder.status)).Inc()
		}
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	enc := json.NewEncoder(w)
	_ = enc.Encode(payload)
}

// handleError maps typed and sentinel errors onto the unified error body.
// Internal details never leak to the client; they go to the server log only.
func (h *Handler) handleError(r *http.Request, w http.ResponseWriter, err error) {
	logger := pslog.LoggerFromContext(r.Context())
	if logger == nil {
		logger = h.logger
	}
	var httpErr httpError
	switch {
	case errors.As(err, &httpErr):
	case errors.Is(err, identity.ErrUnauthenticated):
		httpErr = httpError{
			Status: http.StatusUnauthorized,
			Code:   api.ErrCodeUnauthenticated,
			Detail: "a valid identity claim is required",
		}
	case errors.Is(err, store.ErrNotFound):
		httpErr = httpError{
			Status: http.StatusNotFound,
			Code:   api.ErrCodeNotFound,
			Detail: "user not found",
		}
	case errors.Is(err, store.ErrNoData):
		httpErr = httpError{
			Status: http.StatusNotFound,
			Code:   api.ErrCodeNoData,
			Detail: "no counters recorded yet",
		}
	default:
		logger.Error("http.request.failed", "error", err)
		if h.metrics != nil {
			h.metrics.StoreErrors.Inc()
		}
		httpErr = httpError{
			Status: http.StatusInternalServerError,
			Code:   api.ErrCodeStoreError,
			Detail: "internal server error",
		}
	}
	if httpErr.Status < http.StatusInternalServerError {
		logger.Debug("http.request.rejected",
			"status", httpErr.Status,
			"code", httpErr.Code,
		)
	}
	h.writeJSON(w, httpErr.Status, api.ErrorResponse{
		ErrorCode: httpErr.Code,
		Detail:    httpErr.Detail,
	})
}

func requireMethod(r *http.Request, w http.ResponseWriter, method string) error {
	if r.Method == method {
		return nil
	}
	w.Header().Set("Allow", method)
	return httpError{
		Status: http.StatusMethodNotAllowed,
		Code:   api.ErrCodeMethod,
		Detail: "supported method: " + method,
	}
}

func (h *Handler) claims(r *http.Request) (identity.Claims, error) {
	if h.identity == nil {
		return identity.Claims{}, identity.ErrUnauthenticated
	}
	return h.identity.FromRequest(r)
}
