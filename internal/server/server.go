// Package server exposes the contract pipeline over HTTP: document upload,
// stored report retrieval, XLSX export, liveness and Prometheus metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lexfield/contract-insight/internal/common"
	"github.com/lexfield/contract-insight/internal/domain"
	"github.com/lexfield/contract-insight/internal/metrics"
)

// Runner executes the full pipeline for one uploaded document.
type Runner interface {
	Run(ctx context.Context, doc *domain.Document) (*domain.Report, error)
}

// ReportStore reads persisted run state.
type ReportStore interface {
	GetReport(ctx context.Context, id uuid.UUID) (*domain.Report, error)
	Ping(ctx context.Context) error
}

// Exporter renders a report as an XLSX workbook.
type Exporter interface {
	ExportReportXLSX(report *domain.Report) ([]byte, error)
}

// Error codes carried in the JSON error body.
const (
	codeInvalidInput      = "INVALID_INPUT"
	codeUnsupportedFormat = "UNSUPPORTED_FORMAT"
	codeCorruptDocument   = "CORRUPT_DOCUMENT"
	codeRunNotFound       = "RUN_NOT_FOUND"
	codeModelUnavailable  = "MODEL_UNAVAILABLE"
	codeStageTimeout      = "STAGE_TIMEOUT"
	codeUploadTooLarge    = "UPLOAD_TOO_LARGE"
	codeInternalError     = "INTERNAL_ERROR"
)

const defaultMaxUploadMB = 25

// ErrorResponse is the JSON body of every non-2xx response.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// errorHandler tries to handle a pipeline error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server routes HTTP requests to the pipeline and the run store.
type Server struct {
	pipeline       Runner
	reports        ReportStore
	exporter       Exporter
	maxUploadBytes int64
	logger         *slog.Logger
	errorHandlers  []errorHandler
}

// NewServer creates the HTTP API server.
func NewServer(p Runner, reports ReportStore, exporter Exporter, cfg common.ServerConfig, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	maxMB := cfg.MaxUploadMB
	if maxMB <= 0 {
		maxMB = defaultMaxUploadMB
	}
	s := &Server{
		pipeline:       p,
		reports:        reports,
		exporter:       exporter,
		maxUploadBytes: int64(maxMB) << 20,
		logger:         logger,
	}
	// timeoutHandler runs first: a stage timeout can wrap a provider
	// failure, and the deadline is the failure that matters.
	s.errorHandlers = []errorHandler{
		timeoutHandler,
		sentinelHandler(common.ErrRunNotFound, http.StatusNotFound, codeRunNotFound),
		sentinelHandler(common.ErrUnsupportedFormat, http.StatusBadRequest, codeUnsupportedFormat),
		sentinelHandler(common.ErrCorruptDocument, http.StatusBadRequest, codeCorruptDocument),
		sentinelHandler(common.ErrInvalidInput, http.StatusBadRequest, codeInvalidInput),
		sentinelHandler(common.ErrModelUnavailable, http.StatusBadGateway, codeModelUnavailable),
	}
	return s
}

// Router builds the chi mux with the middleware chain applied.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(s.recoverer)
	r.Use(metrics.Middleware())

	r.Post("/v1/analyze", s.handleAnalyze)
	r.Get("/v1/reports/{id}", s.handleGetReport)
	r.Get("/v1/reports/{id}/export", s.handleExportReport)
	r.Get("/healthz", s.handleHealthz)
	r.Get("/metrics", s.handleMetrics)
	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if s.reports != nil {
		if err := s.reports.Ping(r.Context()); err != nil {
			s.logger.Warn("health.store.unreachable", "err", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "store": "unreachable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// recoverer turns handler panics into JSON 500s instead of chi's plain text.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				s.logger.Error("server.panic", "path", r.URL.Path, "panic", rec)
				writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// handlePipelineError maps a pipeline or store failure to an HTTP response.
func (s *Server) handlePipelineError(w http.ResponseWriter, err error) {
	msg := safeErrorMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("server.internal", "err", err)
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}

// safeErrorMessage maps known failures to client-facing text without leaking
// parser or provider internals.
func safeErrorMessage(err error) string {
	var ste *common.StageTimeoutError
	if errors.As(err, &ste) {
		return fmt.Sprintf("stage %s timed out", ste.Stage)
	}
	sentinels := []error{
		common.ErrRunNotFound,
		common.ErrUnsupportedFormat,
		common.ErrCorruptDocument,
		common.ErrInvalidInput,
		common.ErrModelUnavailable,
	}
	for _, sentinel := range sentinels {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return "internal error"
}

func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func timeoutHandler(w http.ResponseWriter, err error, msg string) bool {
	var ste *common.StageTimeoutError
	if !errors.As(err, &ste) {
		return false
	}
	writeError(w, http.StatusGatewayTimeout, codeStageTimeout, msg)
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}
