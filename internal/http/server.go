// Package http serves the local JSON API together with health and metrics endpoints.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"songgrab/internal/app"
	"songgrab/internal/assets"
	"songgrab/internal/core"
	"songgrab/internal/flood"
	"songgrab/internal/search"
	"songgrab/internal/store"
	"songgrab/pkg/musiclink"
	"songgrab/pkg/pathplan"
)

const (
	maxRequestBytes = 1 << 20
	shutdownTimeout = 10 * time.Second
	floodScope      = "api"
)

// Backend is what the API needs from the application. app.Service implements it.
type Backend interface {
	Parse(ctx context.Context, text string, platform core.Platform, quality string) (*app.ParseResult, error)
	Search(ctx context.Context, platform core.Platform, keyword string) (*search.Outcome, error)
	Assets(song core.Song) (*assets.Reconciler, error)
	Song(key string) (core.Song, bool)
	History() []store.Entry
	FindHistory(query string) []store.Entry
	ClearHistory(ctx context.Context) error
	Describe(err error) string
}

// Deps are the collaborators of the server. Only Backend is required; a nil
// Registry or Metrics is created, a nil Floodgate disables rate limiting.
type Deps struct {
	Backend   Backend
	Floodgate *flood.Floodgate
	Registry  *prometheus.Registry
	Metrics   *Metrics
}

func (d Deps) withDefaults() Deps {
	if d.Registry == nil {
		d.Registry = prometheus.NewRegistry()
	}
	if d.Metrics == nil {
		d.Metrics = NewMetrics(d.Registry)
	}
	return d
}

type Server struct {
	config  *core.ServerConfig
	logger  *zap.Logger
	server  *http.Server
	metrics *Metrics
}

func NewServer(config *core.ServerConfig, deps Deps, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	deps = deps.withDefaults()

	return &Server{
		config:  config,
		logger:  logger,
		server:  createHTTPServer(config, setupRoutes(deps, logger)),
		metrics: deps.Metrics,
	}
}

func createHTTPServer(config *core.ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              net.JoinHostPort(config.Host, strconv.Itoa(config.Port)),
		Handler:           handler,
		ReadTimeout:       config.ReadTimeout,
		ReadHeaderTimeout: config.ReadTimeout,
		WriteTimeout:      config.WriteTimeout,
	}
}

func setupRoutes(deps Deps, logger *zap.Logger) *http.ServeMux {
	h := &handlers{backend: deps.Backend, logger: logger}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeRaw(w, logger, http.StatusOK, `{"status":"ok","service":"songgrab"}`)
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, _ *http.Request) {
		if deps.Backend == nil {
			writeRaw(w, logger, http.StatusServiceUnavailable, `{"status":"starting","service":"songgrab"}`)
			return
		}
		writeRaw(w, logger, http.StatusOK, `{"status":"ready","service":"songgrab"}`)
	})
	mux.Handle("GET /metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{Registry: deps.Registry}))
	mux.HandleFunc("GET /{$}", homeHandler(logger))

	api := func(route string, fn http.HandlerFunc) http.Handler {
		return instrument(deps.Metrics, route, limit(deps.Floodgate, deps.Metrics, fn))
	}
	mux.Handle("POST /api/parse", api("parse", h.parse))
	mux.Handle("GET /api/search", api("search", h.search))
	mux.Handle("GET /api/assets", api("assets_status", h.assetStatus))
	mux.Handle("POST /api/assets/ensure", api("assets_ensure", h.ensureAssets))
	mux.Handle("POST /api/assets/delete", api("assets_delete", h.deleteAssets))
	mux.Handle("GET /api/history", api("history", h.history))
	mux.Handle("DELETE /api/history", api("history_clear", h.clearHistory))

	return mux
}

func homeHandler(logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(`<!DOCTYPE html>
<html>
<head>
    <title>songgrab</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 40px; }
        .endpoint { margin: 10px 0; font-family: monospace; }
    </style>
</head>
<body>
    <h1>songgrab</h1>
    <p>Resolve, search and download songs from NetEase, QQ and Kuwo.</p>

    <h2>API</h2>
    <div class="endpoint">POST /api/parse</div>
    <div class="endpoint">GET /api/search?platform=&amp;q=</div>
    <div class="endpoint">GET /api/assets?key=</div>
    <div class="endpoint">POST /api/assets/ensure</div>
    <div class="endpoint">POST /api/assets/delete</div>
    <div class="endpoint">GET, DELETE /api/history</div>

    <h2>Operations</h2>
    <div class="endpoint"><a href="/metrics">/metrics</a></div>
    <div class="endpoint"><a href="/healthz">/healthz</a></div>
    <div class="endpoint"><a href="/readyz">/readyz</a></div>
</body>
</html>`)); err != nil {
			logger.Debug("Failed to write home page", zap.Error(err))
		}
	}
}

// instrument counts and times requests of one route.
func instrument(m *Metrics, route string, next http.Handler) http.Handler {
	labels := prometheus.Labels{"route": route}
	return promhttp.InstrumentHandlerDuration(
		m.RequestDuration.MustCurryWith(labels),
		promhttp.InstrumentHandlerCounter(m.RequestsTotal.MustCurryWith(labels), next),
	)
}

// limit rejects callers over the per-minute budget with 429 and a Retry-After header.
func limit(gate *flood.Floodgate, m *Metrics, next http.Handler) http.Handler {
	if gate == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := clientAddr(r)
		if !gate.Allow(floodScope, client) {
			m.RateLimitedTotal.Inc()
			seconds := int(math.Ceil(gate.RetryAfter(floodScope, client).Seconds()))
			if seconds < 1 {
				seconds = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(seconds))
			writeError(w, http.StatusTooManyRequests, "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting HTTP server",
		zap.String("addr", s.server.Addr))

	go func() {
		<-ctx.Done()
		s.logger.Info("Shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("Failed to shutdown HTTP server gracefully", zap.Error(err))
		}
	}()

	if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server failed: %w", err)
	}

	return nil
}

func (s *Server) GetMetrics() *Metrics {
	return s.metrics
}

type handlers struct {
	backend Backend
	logger  *zap.Logger
}

type parseRequest struct {
	Text     string `json:"text"`
	Platform string `json:"platform"`
	Quality  string `json:"quality"`
}

type assetRequest struct {
	Key  string     `json:"key"`
	Song *core.Song `json:"song"`
	Kind string     `json:"kind"`
}

type assetResponse struct {
	Key     string           `json:"key"`
	Paths   pathplan.Paths   `json:"paths"`
	Status  assets.Status    `json:"status"`
	Kinds   []core.AssetKind `json:"kinds,omitempty"`
	Message string           `json:"message,omitempty"`
	Error   string           `json:"error,omitempty"`
}

func (h *handlers) parse(w http.ResponseWriter, r *http.Request) {
	var req parseRequest
	if !decode(w, r, &req) {
		return
	}
	var platform core.Platform
	if strings.TrimSpace(req.Platform) != "" {
		p, err := core.ParsePlatform(req.Platform)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		platform = p
	}

	res, err := h.backend.Parse(r.Context(), req.Text, platform, req.Quality)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handlers) search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	platform := core.PlatformNetease
	if raw := query.Get("platform"); raw != "" {
		p, err := core.ParsePlatform(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		platform = p
	}

	out, err := h.backend.Search(r.Context(), platform, query.Get("q"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) assetStatus(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.reconciler(w, assetRequest{Key: r.URL.Query().Get("key")})
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, snapshot(rec, assets.Result{}))
}

func (h *handlers) ensureAssets(w http.ResponseWriter, r *http.Request) {
	var req assetRequest
	if !decode(w, r, &req) {
		return
	}

	var kind core.AssetKind
	all := false
	switch name := strings.TrimSpace(req.Kind); name {
	case "", "all":
		all = true
	default:
		k, err := core.ParseAssetKind(name)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		kind = k
	}

	rec, ok := h.reconciler(w, req)
	if !ok {
		return
	}
	var result assets.Result
	if all {
		result = rec.EnsureAll(r.Context())
	} else {
		result = rec.Ensure(r.Context(), kind)
	}
	h.writeResult(w, rec, result)
}

func (h *handlers) deleteAssets(w http.ResponseWriter, r *http.Request) {
	var req assetRequest
	if !decode(w, r, &req) {
		return
	}
	rec, ok := h.reconciler(w, req)
	if !ok {
		return
	}
	h.writeResult(w, rec, rec.DeleteAll(r.Context()))
}

func (h *handlers) history(w http.ResponseWriter, r *http.Request) {
	if q := strings.TrimSpace(r.URL.Query().Get("q")); q != "" {
		writeJSON(w, http.StatusOK, h.backend.FindHistory(q))
		return
	}
	writeJSON(w, http.StatusOK, h.backend.History())
}

func (h *handlers) clearHistory(w http.ResponseWriter, r *http.Request) {
	if err := h.backend.ClearHistory(r.Context()); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// reconciler finds the song of req, either inline or by history key.
func (h *handlers) reconciler(w http.ResponseWriter, req assetRequest) (*assets.Reconciler, bool) {
	var (
		song core.Song
		ok   bool
	)
	if req.Song != nil {
		song = *req.Song
		if _, err := core.ParsePlatform(string(song.Platform)); err != nil || strings.TrimSpace(song.ID) == "" {
			writeError(w, http.StatusBadRequest, "song needs an id and a valid platform")
			return nil, false
		}
		ok = true
	} else {
		song, ok = h.backend.Song(req.Key)
	}
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown song %q", req.Key))
		return nil, false
	}

	rec, err := h.backend.Assets(song)
	if err != nil {
		h.fail(w, err)
		return nil, false
	}
	return rec, true
}

func (h *handlers) writeResult(w http.ResponseWriter, rec *assets.Reconciler, result assets.Result) {
	status := http.StatusOK
	if result.Err != nil {
		status = errorStatus(result.Err)
		h.logger.Warn("Asset operation failed",
			zap.String("song", rec.Song().Key()),
			zap.Int("status", status),
			zap.Error(result.Err))
	}
	writeJSON(w, status, snapshot(rec, result))
}

func snapshot(rec *assets.Reconciler, result assets.Result) assetResponse {
	resp := assetResponse{
		Key:     rec.Song().Key(),
		Paths:   rec.Paths(),
		Status:  rec.Status(),
		Kinds:   result.Kinds,
		Message: result.Message,
	}
	if result.Err != nil {
		resp.Error = result.Err.Error()
	}
	return resp
}

func (h *handlers) fail(w http.ResponseWriter, err error) {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Warn("API request failed", zap.Int("status", status), zap.Error(err))
	}
	writeError(w, status, h.backend.Describe(err))
}

// errorStatus maps domain errors to HTTP status codes.
func errorStatus(err error) int {
	var (
		cfgErr       *core.ConfigurationMissingError
		statusErr    *core.HTTPStatusError
		transformErr *core.TransformEvaluationError
		netErr       *core.NetworkError
	)
	switch {
	case errors.Is(err, musiclink.ErrEmptyInput),
		errors.Is(err, search.ErrEmptyKeyword),
		errors.Is(err, core.ErrMissingAPIKey),
		errors.Is(err, app.ErrUnsupportedQuality):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrNotApplicable):
		return http.StatusUnprocessableEntity
	case errors.As(err, &cfgErr):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	case errors.As(err, &statusErr),
		errors.As(err, &transformErr),
		errors.As(err, &netErr),
		errors.Is(err, core.ErrTooManyRedirects),
		errors.Is(err, core.ErrNoSource):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeRaw(w http.ResponseWriter, logger *zap.Logger, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write([]byte(body)); err != nil {
		logger.Debug("Failed to write response", zap.Error(err))
	}
}
