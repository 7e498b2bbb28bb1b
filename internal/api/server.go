// Package api exposes the aggregation engine over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/rshade/cohort/internal/engine"
	"github.com/rshade/cohort/internal/engine/batch"
	"github.com/rshade/cohort/internal/logging"
	"github.com/rshade/cohort/internal/record"
	"github.com/rshade/cohort/internal/source"
)

// TraceHeader carries the request trace ID in both directions.
const TraceHeader = "X-Trace-Id"

// DefaultMaxBodyBytes caps POST /average bodies when Config.MaxBodyBytes is unset.
const DefaultMaxBodyBytes int64 = 32 << 20

// shutdownTimeout bounds graceful shutdown once the serve context ends.
const shutdownTimeout = 10 * time.Second

// ErrBadRequest wraps request validation failures.
var ErrBadRequest = errors.New("bad request")

// ErrBodyTooLarge is returned when a request body exceeds Config.MaxBodyBytes.
var ErrBodyTooLarge = errors.New("request body too large")

// errSourceFailed marks failures of the upstream record source.
var errSourceFailed = errors.New("loading records failed")

// Config holds the per-request defaults a query may override.
type Config struct {
	BatchSize int
	Mode      engine.Mode
	Measure   string
	Engine    engine.Options

	// MaxBodyBytes caps POST /average request bodies (default DefaultMaxBodyBytes).
	MaxBodyBytes int64
}

// Server serves average computations over a record source.
type Server struct {
	source source.Source
	cfg    Config
	logger zerolog.Logger
}

// AverageRequest is the body accepted by POST /average.
type AverageRequest struct {
	Records   []record.Record `json:"records"`
	BatchSize *int            `json:"batch_size,omitempty"`
	Mode      string          `json:"mode,omitempty"`
	Measure   string          `json:"measure,omitempty"`
	Breakdown bool            `json:"breakdown,omitempty"`
}

// AverageResponse is returned by both average endpoints.
type AverageResponse struct {
	Average   float64              `json:"average"`
	Records   int                  `json:"records"`
	BatchSize int                  `json:"batch_size"`
	Batches   int                  `json:"batches"`
	Mode      engine.Mode          `json:"mode"`
	Measure   string               `json:"measure"`
	Breakdown []engine.BatchResult `json:"breakdown,omitempty"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewServer creates a server reading records from src. src may be nil, in which case
// GET /patients/average reports that no source is configured.
func NewServer(src source.Source, cfg Config, logger zerolog.Logger) *Server {
	if cfg.BatchSize == 0 {
		cfg.BatchSize = batch.DefaultBatchSize
	}
	if cfg.Mode == "" {
		cfg.Mode = engine.ModeParallel
	}
	if cfg.Measure == "" {
		cfg.Measure = record.DefaultMeasure
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	return &Server{source: src, cfg: cfg, logger: logging.ComponentLogger(logger, "api")}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	router.Use(s.withRequestLogging)

	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/patients/average", s.handleSourceAverage).Methods(http.MethodGet)
	router.HandleFunc("/average", s.handlePostAverage).Methods(http.MethodPost)

	return router
}

// ListenAndServe serves on addr until ctx ends, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string, readTimeout, writeTimeout time.Duration) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: readTimeout,
		WriteTimeout:      writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.logger.Info().Msg("shutting down")
		return server.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	sendJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSourceAverage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	params, err := s.params(q.Get("batch_size"), q.Get("mode"), q.Get("measure"))
	if err != nil {
		sendError(w, r, err)
		return
	}
	if params.breakdown, err = parseBreakdown(q.Get("breakdown")); err != nil {
		sendError(w, r, err)
		return
	}

	if s.source == nil {
		sendError(w, r, source.ErrNoSource)
		return
	}

	records, err := s.source.Load(r.Context())
	if err != nil {
		sendError(w, r, fmt.Errorf("%w: %w", errSourceFailed, err))
		return
	}

	s.respond(w, r, records, params)
}

func (s *Server) handlePostAverage(w http.ResponseWriter, r *http.Request) {
	var req AverageRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			sendError(w, r, fmt.Errorf("%w: limit is %d bytes", ErrBodyTooLarge, maxErr.Limit))
			return
		}
		sendError(w, r, fmt.Errorf("%w: decoding body: %w", ErrBadRequest, err))
		return
	}

	batchSize := ""
	if req.BatchSize != nil {
		batchSize = strconv.Itoa(*req.BatchSize)
	}
	params, err := s.params(batchSize, req.Mode, req.Measure)
	if err != nil {
		sendError(w, r, err)
		return
	}
	params.breakdown = req.Breakdown

	s.respond(w, r, req.Records, params)
}

// parseBreakdown reads the breakdown query flag; empty means false.
func parseBreakdown(v string) (bool, error) {
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%w: breakdown %q is not a boolean", ErrBadRequest, v)
	}
	return b, nil
}

type averageParams struct {
	batchSize int
	mode      engine.Mode
	measure   string
	breakdown bool
}

// params applies request overrides to the server defaults. An explicit batch size of
// zero or below is passed through so the engine rejects it.
func (s *Server) params(batchSize, mode, measure string) (averageParams, error) {
	p := averageParams{batchSize: s.cfg.BatchSize, mode: s.cfg.Mode, measure: s.cfg.Measure}

	if batchSize != "" {
		n, err := strconv.Atoi(batchSize)
		if err != nil {
			return p, fmt.Errorf("%w: batch_size %q is not an integer", ErrBadRequest, batchSize)
		}
		p.batchSize = n
	}
	if mode != "" {
		m, err := engine.ParseMode(mode)
		if err != nil {
			return p, err
		}
		p.mode = m
	}
	if measure != "" {
		p.measure = measure
	}
	return p, nil
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request, records []record.Record, p averageParams) {
	measure, err := record.Field(p.measure)
	if err != nil {
		sendError(w, r, fmt.Errorf("%w: %w", ErrBadRequest, err))
		return
	}
	eng, err := engine.New[record.Record](measure, s.cfg.Engine)
	if err != nil {
		sendError(w, r, err)
		return
	}

	summary, err := eng.Summarize(r.Context(), p.mode, records, p.batchSize)
	if err != nil {
		sendError(w, r, err)
		return
	}

	resp := AverageResponse{
		Average:   summary.Average,
		Records:   summary.Records,
		BatchSize: summary.BatchSize,
		Batches:   summary.BatchCount,
		Mode:      summary.Mode,
		Measure:   p.measure,
	}
	if p.breakdown {
		resp.Breakdown = summary.Batches
	}
	sendJSON(w, http.StatusOK, resp)
}

// StatusFor maps an error to its HTTP status code.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrInvalidBatchSize),
		errors.Is(err, engine.ErrUnknownMode),
		errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrBodyTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, engine.ErrReductionFailure):
		return http.StatusUnprocessableEntity
	case errors.Is(err, source.ErrNoSource):
		return http.StatusServiceUnavailable
	case errors.Is(err, errSourceFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func sendJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func sendError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	zerolog.Ctx(r.Context()).Warn().Err(err).Int("status", status).Msg("request failed")
	sendJSON(w, status, ErrorResponse{
		Error:   err.Error(),
		TraceID: logging.TraceIDFromContext(r.Context()),
	})
}
