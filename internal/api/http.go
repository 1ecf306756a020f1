package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ledgerlens/fincorr/internal/ingest"
	"github.com/ledgerlens/fincorr/internal/models"
	"github.com/ledgerlens/fincorr/internal/services"
	"github.com/ledgerlens/fincorr/internal/utils"
)

const (
	requestIDHeader = "X-Request-ID"
	maxUploadBytes  = 32 << 20
	defaultHotspots = 10
)

// HTTPHandler serves the dashboard JSON API.
type HTTPHandler struct {
	backend Backend
	logger  *slog.Logger
	tracer  trace.Tracer
}

// NewRouter builds the dashboard router wrapped in CORS handling for allowedOrigins.
func NewRouter(logger *slog.Logger, backend Backend, allowedOrigins []string) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &HTTPHandler{
		backend: backend,
		logger:  logger,
		tracer:  otel.Tracer("github.com/ledgerlens/fincorr/internal/api"),
	}

	router := mux.NewRouter()
	router.Use(h.requestID, h.traced, h.logged)

	router.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	for _, path := range []string{"/dashboard/alert_correlation", "/dashboard/alert_correlation/"} {
		router.HandleFunc(path, h.correlatedAlerts).Methods(http.MethodGet)
	}
	router.HandleFunc("/dashboard/alert_correlation/hotspots", h.hotspots).Methods(http.MethodGet)
	for _, path := range []string{"/dashboard/sla_metrics", "/dashboard/sla_metrics/"} {
		router.HandleFunc(path, h.slaMetrics).Methods(http.MethodGet)
	}
	router.HandleFunc("/dashboard/stats", h.dashboardStats).Methods(http.MethodGet)
	router.HandleFunc("/transactions/upload", h.upload).Methods(http.MethodPost)

	c := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", requestIDHeader},
		ExposedHeaders:   []string{requestIDHeader},
		AllowCredentials: true,
	})
	return c.Handler(router)
}

func (h *HTTPHandler) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		r.Header.Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

func (h *HTTPHandler) traced(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tmpl, err := route.GetPathTemplate(); err == nil {
				name = tmpl
			}
		}
		ctx, span := h.tracer.Start(r.Context(), r.Method+" "+name, trace.WithAttributes(
			attribute.String("http.request.method", r.Method),
			attribute.String("http.request.id", r.Header.Get(requestIDHeader)),
		))
		defer span.End()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (h *HTTPHandler) logged(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		h.logger.Debug("http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Duration("duration", time.Since(start)),
			slog.String("request_id", r.Header.Get(requestIDHeader)),
		)
	})
}

func (h *HTTPHandler) health(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) correlatedAlerts(w http.ResponseWriter, r *http.Request) {
	groups, err := h.backend.CorrelatedAlerts(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, models.CorrelatedAlerts{Groups: groups})
}

func (h *HTTPHandler) hotspots(w http.ResponseWriter, r *http.Request) {
	limit := defaultHotspots
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.writeJSON(w, http.StatusBadRequest, errorBody{Error: "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	hotspots, err := h.backend.Hotspots(r.Context(), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"hotspots": hotspots})
}

func (h *HTTPHandler) slaMetrics(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.backend.SLAStats(r.Context()))
}

func (h *HTTPHandler) dashboardStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.backend.DashboardStats(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, stats)
}

// upload accepts either a raw CSV body or a multipart form with a "file" part.
func (h *HTTPHandler) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	var body io.Reader = r.Body
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, _, err := r.FormFile("file")
		if err != nil {
			h.writeJSON(w, http.StatusBadRequest, errorBody{Error: "multipart upload requires a file part"})
			return
		}
		defer file.Close()
		body = file
	}

	txs, err := ingest.ReadTransactions(body)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	summary, err := h.backend.DetectBatch(r.Context(), txs)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, summary)
}

type errorBody struct {
	Error string `json:"error"`
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case isContractViolation(err):
		h.writeJSON(w, http.StatusBadRequest, errorBody{Error: utils.Message(err)})
	case errors.Is(err, services.ErrStoreNotConfigured):
		h.writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: err.Error()})
	default:
		h.logger.Error("request failed",
			slog.String("path", r.URL.Path),
			slog.String("request_id", r.Header.Get(requestIDHeader)),
			slog.Any("error", err),
		)
		h.writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

func (h *HTTPHandler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("write response", slog.Any("error", err))
	}
}
