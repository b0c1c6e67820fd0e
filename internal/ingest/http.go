// Package ingest provides the entry ingestion boundary: an HTTP push API
// and a Kafka consumer. Both validate entries, persist them to the log
// store and hand them to the evaluation pipeline.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/good-yellow-bee/logtrap/internal/logger"
	"github.com/good-yellow-bee/logtrap/internal/metrics"
	"github.com/good-yellow-bee/logtrap/internal/models"
	"github.com/good-yellow-bee/logtrap/internal/storage"
)

// Publisher hands stored entries to the evaluation pipeline.
type Publisher interface {
	Publish(entry *models.LogEntry) error
}

// MaxBatchSize caps the number of entries in one batch request.
const MaxBatchSize = 1000

// TeamHeader carries the tenant id on ingest requests.
const TeamHeader = "X-Team-ID"

// HTTPConfig contains ingest HTTP server configuration.
type HTTPConfig struct {
	Address        string        `yaml:"address"`
	RatePerSecond  float64       `yaml:"rate_per_second"`
	RateBurst      int           `yaml:"rate_burst"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// SetDefaults applies default values for missing configuration.
func (c *HTTPConfig) SetDefaults() {
	if c.Address == "" {
		c.Address = ":8080"
	}
	if c.RatePerSecond <= 0 {
		c.RatePerSecond = 100
	}
	if c.RateBurst <= 0 {
		c.RateBurst = 200
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 15 * time.Second
	}
}

// HTTPServer is the ingest HTTP server.
type HTTPServer struct {
	config   HTTPConfig
	entries  storage.EntryRepository
	pipeline Publisher
	server   *http.Server

	limitMu  sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewHTTPServer creates the ingest HTTP server.
func NewHTTPServer(config HTTPConfig, entries storage.EntryRepository, p Publisher) *HTTPServer {
	config.SetDefaults()
	s := &HTTPServer{
		config:   config,
		entries:  entries,
		pipeline: p,
		limiters: make(map[string]*rate.Limiter),
	}
	s.server = &http.Server{
		Addr:         config.Address,
		Handler:      s.setupRouter(),
		ReadTimeout:  config.RequestTimeout,
		WriteTimeout: config.RequestTimeout,
	}
	return s
}

// setupRouter creates and configures the chi router with all routes.
func (s *HTTPServer) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(s.rateLimitByTeam)
			r.Post("/ingest", s.handleIngest)
			r.Post("/ingest/batch", s.handleIngestBatch)
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	return r
}

// Start begins serving. Blocks until the listener fails or Shutdown is
// called.
func (s *HTTPServer) Start() error {
	log := logger.WithComponent("ingest")
	log.Info().
		Str("address", s.config.Address).
		Msg("ingest HTTP server starting")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("ingest server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// entryRequest is the wire format of one pushed entry.
type entryRequest struct {
	Timestamp     time.Time         `json:"timestamp"`
	Level         string            `json:"level"`
	Message       string            `json:"message"`
	ServiceName   string            `json:"service_name"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	SourceID      string            `json:"source_id,omitempty"`
	Fields        map[string]string `json:"fields,omitempty"`
}

// toEntry validates the request and builds a LogEntry for the team.
func (req *entryRequest) toEntry(teamID string) (*models.LogEntry, error) {
	level, err := models.ParseLogLevel(req.Level)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Message) == "" {
		return nil, fmt.Errorf("message is required")
	}
	if strings.TrimSpace(req.ServiceName) == "" {
		return nil, fmt.Errorf("service_name is required")
	}

	ts := req.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	return &models.LogEntry{
		ID:            uuid.New().String(),
		Timestamp:     ts.UTC(),
		Level:         level,
		Message:       req.Message,
		ServiceName:   req.ServiceName,
		CorrelationID: req.CorrelationID,
		TeamID:        teamID,
		SourceID:      req.SourceID,
		Fields:        req.Fields,
	}, nil
}

// handleIngest accepts a single entry.
func (s *HTTPServer) handleIngest(w http.ResponseWriter, r *http.Request) {
	teamID := r.Header.Get(TeamHeader)
	if teamID == "" {
		metrics.IngestRejected.WithLabelValues("http", "missing_team").Inc()
		writeError(w, http.StatusBadRequest, "missing "+TeamHeader+" header")
		return
	}

	var req entryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		metrics.IngestRejected.WithLabelValues("http", "bad_json").Inc()
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	entry, err := req.toEntry(teamID)
	if err != nil {
		metrics.IngestRejected.WithLabelValues("http", "validation").Inc()
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.store(r.Context(), []*models.LogEntry{entry}); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to store entry")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"id": entry.ID})
}

// batchRequest is the wire format of a batch push.
type batchRequest struct {
	Entries []entryRequest `json:"entries"`
}

// handleIngestBatch accepts up to MaxBatchSize entries. The batch is
// all-or-nothing: one invalid entry rejects the whole request, so clients
// get an unambiguous outcome.
func (s *HTTPServer) handleIngestBatch(w http.ResponseWriter, r *http.Request) {
	teamID := r.Header.Get(TeamHeader)
	if teamID == "" {
		metrics.IngestRejected.WithLabelValues("http", "missing_team").Inc()
		writeError(w, http.StatusBadRequest, "missing "+TeamHeader+" header")
		return
	}

	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		metrics.IngestRejected.WithLabelValues("http", "bad_json").Inc()
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Entries) == 0 {
		writeError(w, http.StatusBadRequest, "entries must not be empty")
		return
	}
	if len(req.Entries) > MaxBatchSize {
		metrics.IngestRejected.WithLabelValues("http", "batch_too_large").Inc()
		writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("batch exceeds %d entries", MaxBatchSize))
		return
	}

	entries := make([]*models.LogEntry, 0, len(req.Entries))
	for i := range req.Entries {
		entry, err := req.Entries[i].toEntry(teamID)
		if err != nil {
			metrics.IngestRejected.WithLabelValues("http", "validation").Inc()
			writeError(w, http.StatusBadRequest,
				fmt.Sprintf("entry %d: %v", i, err))
			return
		}
		entries = append(entries, entry)
	}

	if err := s.store(r.Context(), entries); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to store batch")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"accepted": len(entries)})
}

// store persists the entries and publishes them for evaluation. Pipeline
// rejection is not an ingest failure: the entries are already durable.
func (s *HTTPServer) store(ctx context.Context, entries []*models.LogEntry) error {
	if err := s.entries.InsertBatch(ctx, entries); err != nil {
		log := logger.WithComponent("ingest")
		log.Error().Err(err).
			Int("count", len(entries)).
			Msg("failed to store entries")
		return err
	}
	metrics.EntriesIngested.WithLabelValues("http").Add(float64(len(entries)))
	metrics.IngestBatchSize.Observe(float64(len(entries)))

	for _, entry := range entries {
		if err := s.pipeline.Publish(entry); err != nil {
			log := logger.WithComponent("ingest")
			log.Warn().
				Str("entry_id", entry.ID).
				Msg("evaluation queue full, entry stored but not evaluated")
		}
	}
	return nil
}

// rateLimitByTeam applies a per-team token bucket to ingest routes.
func (s *HTTPServer) rateLimitByTeam(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		teamID := r.Header.Get(TeamHeader)
		if teamID != "" && !s.limiterFor(teamID).Allow() {
			metrics.IngestRejected.WithLabelValues("http", "rate_limited").Inc()
			writeError(w, http.StatusTooManyRequests, "ingest rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *HTTPServer) limiterFor(teamID string) *rate.Limiter {
	s.limitMu.Lock()
	defer s.limitMu.Unlock()
	l, ok := s.limiters[teamID]
	if !ok {
		l = rate.NewLimiter(rate.Limit(s.config.RatePerSecond), s.config.RateBurst)
		s.limiters[teamID] = l
	}
	return l
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
