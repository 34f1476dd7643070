package handlers

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/risk-register/pkg/config"
)

// ServiceName identifies this service in ping responses and logs.
const ServiceName = "risk-register"

const storePingTimeout = 2 * time.Second

// PingFunc checks that a backing store is reachable.
type PingFunc func(ctx context.Context) error

// HealthResponse is returned by the health endpoints.
type HealthResponse struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// PingResponse contains service status and version information.
type PingResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	Service     string `json:"service"`
	GoVersion   string `json:"go_version"`
	Hostname    string `json:"hostname"`
	Environment string `json:"environment"`
	StoreDriver string `json:"store_driver"`
}

// HealthHandler handles health check and ping endpoints.
type HealthHandler struct {
	cfg    *config.Config
	ping   PingFunc
	logger *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. ping may be nil, in which
// case health reports liveness only.
func NewHealthHandler(cfg *config.Config, ping PingFunc, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{cfg: cfg, ping: ping, logger: logger}
}

// RegisterRoutes registers the health handler's routes on the given mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /api/health", h.Health)
	mux.HandleFunc("GET /ping", h.Ping)
}

// Health handles GET /health and GET /api/health.
// Returns 503 when the store does not answer a ping.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Success: true, Message: "Server running", Timestamp: time.Now().UTC()}
	status := http.StatusOK

	if h.ping != nil {
		ctx, cancel := context.WithTimeout(r.Context(), storePingTimeout)
		defer cancel()
		if err := h.ping(ctx); err != nil {
			h.logger.Warn("Store health check failed", zap.Error(err))
			resp.Success = false
			resp.Message = "Store unavailable"
			status = http.StatusServiceUnavailable
		}
	}

	if err := WriteJSON(w, status, resp); err != nil {
		h.logger.Error("Failed to encode health response", zap.Error(err))
	}
}

// Ping handles GET /ping requests.
// Returns detailed service information including version and environment.
func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	hostname, err := os.Hostname()
	if err != nil {
		http.Error(w, "failed to get hostname", http.StatusInternalServerError)
		return
	}

	response := PingResponse{
		Status:      "ok",
		Version:     h.cfg.Version,
		Service:     ServiceName,
		GoVersion:   runtime.Version(),
		Hostname:    hostname,
		Environment: h.cfg.Env,
		StoreDriver: h.cfg.Store.Driver,
	}

	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode ping response", zap.Error(err))
	}
}
