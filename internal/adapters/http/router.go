package httpadapter

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/kirillkom/dataviz-search/internal/config"
	"github.com/kirillkom/dataviz-search/internal/core/domain"
	"github.com/kirillkom/dataviz-search/internal/core/ports"
	"github.com/kirillkom/dataviz-search/internal/observability/metrics"
)

const serviceName = "dviz-api"

// HealthCheck reports whether one dependency is usable.
type HealthCheck func(ctx context.Context) error

type Router struct {
	turns    ports.TurnHandler
	sessions ports.SessionManager
	images   ports.ImageStore

	metrics      *metrics.HTTPServerMetrics
	mcpHandler   http.Handler
	healthChecks map[string]HealthCheck

	rateLimitRPS      float64
	rateLimitBurst    int
	maxInFlight       int
	backpressureWait  time.Duration
	maxBodyBytes      int64
	maxMultipartBytes int64
}

type RouterOption func(*Router)

func WithMetrics(m *metrics.HTTPServerMetrics) RouterOption {
	return func(rt *Router) { rt.metrics = m }
}

// WithMCPHandler mounts an agent tool server under /mcp.
func WithMCPHandler(h http.Handler) RouterOption {
	return func(rt *Router) { rt.mcpHandler = h }
}

func WithHealthCheck(name string, check HealthCheck) RouterOption {
	return func(rt *Router) { rt.healthChecks[name] = check }
}

func NewRouter(
	cfg config.Config,
	turns ports.TurnHandler,
	sessions ports.SessionManager,
	images ports.ImageStore,
	opts ...RouterOption,
) *Router {
	maxBody := cfg.APIMaxBodyBytes
	if maxBody <= 0 {
		maxBody = 25 << 20
	}
	rt := &Router{
		turns:             turns,
		sessions:          sessions,
		images:            images,
		healthChecks:      map[string]HealthCheck{},
		rateLimitRPS:      cfg.APIRateLimitRPS,
		rateLimitBurst:    cfg.APIRateLimitBurst,
		maxInFlight:       cfg.APIBackpressureMaxInFlight,
		backpressureWait:  cfg.APIBackpressureWait,
		maxBodyBytes:      maxBody,
		maxMultipartBytes: 8 << 20,
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

func (rt *Router) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("POST /v1/sessions", rt.startSession)
	api.HandleFunc("DELETE /v1/sessions/{id}", rt.endSession)
	api.HandleFunc("POST /v1/sessions/{id}/turns", rt.handleTurn)
	api.HandleFunc("GET /v1/commands", rt.listCommands)
	api.HandleFunc("GET /v1/images/{id}", rt.getImage)
	if rt.mcpHandler != nil {
		api.Handle("/mcp", rt.mcpHandler)
	}

	root := http.NewServeMux()
	root.HandleFunc("GET /healthz", rt.healthz)
	if rt.metrics != nil {
		root.Handle("GET /metrics", rt.metrics.Handler())
	}
	root.Handle("/", backpressureMiddleware(
		rateLimitMiddleware(api, rt.rateLimitRPS, rt.rateLimitBurst),
		rt.maxInFlight,
		rt.backpressureWait,
	))

	var handler http.Handler = root
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	return requestIDMiddleware(accessLogMiddleware(handler))
}

func (rt *Router) healthz(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	checks := make(map[string]string, len(rt.healthChecks))
	for name, check := range rt.healthChecks {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		err := check(ctx)
		cancel()
		if err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	body := map[string]any{"status": "ok"}
	if status != http.StatusOK {
		body["status"] = "degraded"
	}
	if len(checks) > 0 {
		body["checks"] = checks
	}
	writeJSON(w, status, body)
}

func (rt *Router) startSession(w http.ResponseWriter, r *http.Request) {
	session, err := rt.sessions.StartSession(r.Context(), clientIP(r))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"session_id": session.ID,
		"blocks":     []domain.DisplayBlock{{Text: domain.WelcomeMessage}},
		"commands":   domain.Commands(),
	})
}

func (rt *Router) endSession(w http.ResponseWriter, r *http.Request) {
	if err := rt.sessions.EndSession(r.Context(), r.PathValue("id")); err != nil {
		rt.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) handleTurn(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, rt.maxBodyBytes)

	req, err := rt.decodeTurnRequest(r)
	if err != nil {
		if isMaxBytesError(err) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "request body too large"})
			return
		}
		rt.writeError(w, r, err)
		return
	}
	req.SessionID = r.PathValue("id")

	start := time.Now()
	resp, err := rt.turns.HandleTurn(r.Context(), req)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	rt.recordTurn(resp, time.Since(start))
	writeJSON(w, http.StatusOK, resp)
}

func (rt *Router) recordTurn(resp *domain.TurnResponse, duration time.Duration) {
	if rt.metrics == nil || resp == nil {
		return
	}
	facets := make([]string, 0, len(resp.Stats.Facets))
	for _, facet := range resp.Stats.Facets {
		facets = append(facets, string(facet))
	}
	rt.metrics.RecordTurn(serviceName, metrics.TurnObservation{
		Mode:            resp.Mode,
		Facets:          facets,
		DroppedFilters:  resp.Stats.DroppedFilters,
		ResultCount:     resp.Stats.ResultCount,
		RewriteFallback: resp.Stats.RewriteFallback,
		SearchFailed:    resp.Stats.SearchFailed,
		RerankFallback:  resp.Stats.RerankFallback,
		DescribeFailed:  resp.Stats.DescribeFailed,
		Duration:        duration,
	})
}

func (rt *Router) listCommands(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"commands": domain.Commands()})
}

func (rt *Router) getImage(w http.ResponseWriter, r *http.Request) {
	if rt.images == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "image storage is disabled"})
		return
	}
	key := r.PathValue("id")
	rc, err := rt.images.Open(r.Context(), key)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	defer rc.Close()

	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(key)))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "private, max-age=86400")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		slog.Warn("image_stream_failed", "request_id", requestIDFromContext(r.Context()), "key", key, "error", err)
	}
}

func (rt *Router) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request_failed", "request_id", requestIDFromContext(r.Context()), "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
