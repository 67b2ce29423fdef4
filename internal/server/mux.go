// internal/server/mux.go
// Package server implements the HTTP handlers and routing for the catalog service.
// It exposes the catalog, navigation sessions and playback sessions as a JSON API
// with schema validation, tracing, metrics and event publishing.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/edumaster/catalogd/internal/clock"
	"github.com/edumaster/catalogd/internal/dispatch"
	errordefs "github.com/edumaster/catalogd/internal/errors"
	"github.com/edumaster/catalogd/internal/event"
	"github.com/edumaster/catalogd/internal/metrics"
	"github.com/edumaster/catalogd/internal/playback"
	"github.com/edumaster/catalogd/internal/schema"
	"github.com/edumaster/catalogd/internal/storage"
)

// ContextKey is used for context values to avoid collisions
// when storing values in request context
type ContextKey string

const (
	// ContextKeyCorrelationID stores the request's correlation id.
	ContextKeyCorrelationID ContextKey = "correlationId"

	// maxBodyBytes bounds request bodies; every body is a small JSON object.
	maxBodyBytes = 64 << 10

	tracerName = "catalogd"
)

// Options carries the dependencies of a Mux.
type Options struct {
	Store     storage.Store
	Publisher event.Publisher
	// Resolver turns stored content URLs into fetchable ones; nil passes them through.
	Resolver dispatch.URLResolver
	Links    dispatch.Links

	Scheduler       clock.Scheduler
	TransitionDelay time.Duration
	// SessionIdleTTL closes sessions untouched for longer; zero disables reaping.
	SessionIdleTTL time.Duration
	// Location renders chat times; defaults to time.Local.
	Location *time.Location

	CORSAllowedOrigins []string
}

// Mux handles HTTP requests for the catalog service.
// It owns the navigation and playback sessions created through the API.
type Mux struct {
	router    *chi.Mux
	s         storage.Store
	p         event.Publisher
	resolver  dispatch.URLResolver
	links     dispatch.Links
	validator *schema.Validator
	metrics   *metrics.Metrics
	sessions  *sessions
	registry  *playback.Registry
	live      *liveWatch

	sched           clock.Scheduler
	transitionDelay time.Duration
	location        *time.Location

	// CORS configuration
	corsAllowedOrigins []string // Allowed origins for CORS (empty means deny all)
}

// NewMux creates the HTTP handler with all catalog endpoints registered.
func NewMux(opts Options) (*Mux, error) {
	validator, err := schema.NewValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize schema validator: %w", err)
	}
	if opts.Publisher == nil {
		opts.Publisher = event.Noop{}
	}
	if opts.Scheduler == nil {
		opts.Scheduler = clock.Real{}
	}
	if opts.Links.PlayerOrigin == "" && opts.Links.FallbackURL == "" {
		opts.Links = dispatch.DefaultLinks()
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}

	m := &Mux{
		router:             chi.NewRouter(),
		s:                  opts.Store,
		p:                  opts.Publisher,
		resolver:           opts.Resolver,
		links:              opts.Links,
		validator:          validator,
		metrics:            metrics.NewMetrics(),
		registry:           playback.NewRegistry(),
		sched:              opts.Scheduler,
		transitionDelay:    opts.TransitionDelay,
		location:           opts.Location,
		corsAllowedOrigins: opts.CORSAllowedOrigins,
	}
	m.sessions = newSessions(opts.Scheduler, opts.SessionIdleTTL, m.metrics)
	m.live = newLiveWatch(opts.Scheduler, m.metrics, m.onLivePhase)

	// Track live class phases from startup so transitions are published
	// without waiting for a request.
	ctx, cancel := context.WithTimeout(context.Background(), liveWatchTimeout)
	m.watchLiveClasses(ctx)
	cancel()

	m.router.Use(middleware.Recoverer)
	m.router.Use(m.withMiddleware)
	m.routes()
	return m, nil
}

func (m *Mux) routes() {
	r := m.router

	// Register health endpoints
	r.Get("/healthz", m.handleHealthz)
	r.Get("/readyz", m.handleReadyz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/batches", m.handleListBatches)
		r.Get("/batches/{batchID}", m.handleGetBatch)
		r.Get("/batches/{batchID}/folders/{folderID}", m.handleGetFolder)
		r.Get("/live", m.handleLive)

		r.Route("/nav", func(r chi.Router) {
			r.Post("/", m.handleCreateNav)
			r.Get("/{sessionID}", m.handleGetNav)
			r.Post("/{sessionID}/enter", m.handleEnter)
			r.Post("/{sessionID}/back", m.handleBack)
			r.Post("/{sessionID}/select", m.handleSelect)
			r.Delete("/{sessionID}", m.handleCloseNav)
		})

		r.Route("/playback", func(r chi.Router) {
			r.Post("/", m.handleCreatePlayback)
			r.Get("/{sessionID}", m.handleGetPlayback)
			r.Post("/{sessionID}/actions", m.handlePlaybackAction)
			r.Post("/{sessionID}/events", m.handlePlaybackEvent)
			r.Post("/{sessionID}/keys", m.handlePlaybackKey)
			r.Post("/{sessionID}/chat", m.handlePlaybackChat)
			r.Get("/{sessionID}/commands", m.handleDrainCommands)
			r.Delete("/{sessionID}", m.handleClosePlayback)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		m.writeErrorDef(w, errordefs.New(errordefs.CAT_NOT_FOUND, "route not found", correlationIDFrom(r.Context())))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		err := errordefs.New(errordefs.CAT_BAD_REQUEST, "method not allowed", correlationIDFrom(r.Context()))
		err.HTTPStatus = http.StatusMethodNotAllowed
		m.writeErrorDef(w, err)
	})
}

// ServeHTTP implements http.Handler.
func (m *Mux) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.router.ServeHTTP(w, r)
}

// Close ends every open session and stops the idle reaper and live class clocks.
func (m *Mux) Close() {
	m.sessions.closeAll()
	m.live.closeAll()
}

// withMiddleware applies CORS, correlation ids, request logging and HTTP metrics.
func (m *Mux) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		if origin := r.Header.Get("Origin"); origin != "" && m.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			if r.Method == http.MethodOptions {
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Correlation-Id")
				w.Header().Set("Access-Control-Max-Age", "86400") // 24 hours
			}
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		// Add correlation ID if not present
		correlationID := r.Header.Get("X-Correlation-Id")
		if correlationID == "" {
			correlationID = uuid.New().String()
		}
		ctx := context.WithValue(r.Context(), ContextKeyCorrelationID, correlationID)
		ctx = event.WithCorrelationID(ctx, correlationID)
		r = r.WithContext(ctx)
		w.Header().Set("X-Correlation-Id", correlationID)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		duration := time.Since(start)
		m.metrics.HTTPRequestTotal.WithLabelValues(r.Method, route, fmt.Sprint(status)).Inc()
		m.metrics.HTTPRequestDuration.WithLabelValues(r.Method, route, fmt.Sprint(status)).Observe(duration.Seconds())
		m.logRequest(r, status, duration, correlationID)
	})
}

func (m *Mux) originAllowed(origin string) bool {
	for _, allowed := range m.corsAllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// logRequest logs request details
func (m *Mux) logRequest(r *http.Request, status int, duration time.Duration, correlationID string) {
	attrs := []slog.Attr{
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Int("status", status),
		slog.Duration("duration", duration),
		slog.String("user_agent", r.UserAgent()),
		slog.String("remote_addr", r.RemoteAddr),
		slog.String("correlation_id", correlationID),
	}
	level := slog.LevelInfo
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	slog.LogAttrs(r.Context(), level, "request completed", attrs...)
}

func correlationIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(ContextKeyCorrelationID).(string)
	return id
}

// decode reads the request body, validates it against the named schema and
// unmarshals it into dst. It writes the error response and returns false on failure.
func (m *Mux) decode(w http.ResponseWriter, r *http.Request, schemaName string, dst interface{}) bool {
	cid := correlationIDFrom(r.Context())
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		m.writeErrorDef(w, errordefs.New(errordefs.CAT_BAD_REQUEST, "failed to read request body", cid))
		return false
	}

	start := time.Now()
	err = m.validator.Validate(schemaName, body)
	status := "ok"
	if err != nil {
		status = "rejected"
	}
	m.metrics.SchemaValidationTotal.WithLabelValues(schemaName, status).Inc()
	m.metrics.SchemaValidationDuration.WithLabelValues(schemaName, status).Observe(time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, schema.ErrInvalid) {
			m.writeErrorDef(w, errordefs.NewWithDetails(errordefs.CAT_SCHEMA_REJECT, "request failed schema validation", cid, err.Error()))
		} else {
			m.writeErrorDef(w, errordefs.New(errordefs.CAT_INTERNAL, "schema unavailable", cid))
		}
		return false
	}

	if err := json.Unmarshal(body, dst); err != nil {
		m.writeErrorDef(w, errordefs.New(errordefs.CAT_BAD_REQUEST, "invalid JSON", cid))
		return false
	}
	return true
}

// publish runs fn against the event publisher and records the outcome.
// Publishing failures are logged, never surfaced to the caller.
func (m *Mux) publish(kind string, fn func(event.Publisher) error) {
	start := time.Now()
	err := fn(m.p)
	status := "ok"
	if err != nil {
		status = "error"
		slog.Warn("failed to publish event", "event_type", kind, "error", err)
	}
	m.metrics.EventPublishTotal.WithLabelValues(kind, status).Inc()
	m.metrics.EventPublishDuration.WithLabelValues(kind, status).Observe(time.Since(start).Seconds())
}

// writeSuccess writes a successful response
func (m *Mux) writeSuccess(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	response := map[string]interface{}{
		"data": data,
	}
	_ = json.NewEncoder(w).Encode(response)
}

// writeError writes an error response following the catalog error taxonomy
func (m *Mux) writeError(w http.ResponseWriter, statusCode int, code, message, correlationID string, details interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	body := map[string]interface{}{
		"code":          code,
		"message":       message,
		"correlationId": correlationID,
	}
	if details != nil {
		body["details"] = details
	}
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"error": body})
}

// writeErrorDef writes an error response using the error definitions package
func (m *Mux) writeErrorDef(w http.ResponseWriter, err *errordefs.Error) {
	m.writeError(w, err.HTTPStatus, string(err.Code), err.Message, err.CorrelationID, err.Details)
}

// handleHealthz handles liveness health check requests
func (m *Mux) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleReadyz reports ready once the catalog store answers.
func (m *Mux) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := m.s.Ping(ctx); err != nil {
		slog.Error("readiness check failed", "error", err)
		m.writeErrorDef(w, errordefs.New(errordefs.CAT_UNAVAILABLE, "catalog store unavailable", correlationIDFrom(r.Context())))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
