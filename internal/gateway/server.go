package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"keyrelay/internal/domain"
	"keyrelay/internal/llm"
)

// ErrInvalidPort is returned when gateway port is not in 0..65535.
var ErrInvalidPort = errors.New("gateway port must be 0-65535")

// maxRequestBody caps POST /v1/completions bodies.
const maxRequestBody = 1 << 20

// Backend is what the gateway serves: completions through the key pool and the pool's status.
type Backend interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Status() llm.PoolStatus
}

// Server exposes the relay over HTTP and WebSocket.
type Server struct {
	cfg         *domain.GatewayConfig
	backend     Backend
	logger      *slog.Logger
	server      *http.Server
	addr        string
	addrMu      sync.RWMutex
	listenErr   error
	listenErrMu sync.Mutex
}

// NewServer builds a gateway server from config. Port 0 means pick a random port.
// Health routes are public; status, completions and /ws sit behind BearerAuth and RateLimit.
func NewServer(cfg *domain.GatewayConfig, backend Backend, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		cfg = &domain.GatewayConfig{Port: 8080}
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		return nil, ErrInvalidPort
	}
	if backend == nil {
		return nil, errors.New("gateway: backend must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{cfg: cfg, backend: backend, logger: logger}

	guard := func(h http.Handler) http.Handler {
		return BearerAuth(cfg.Auth.AuthToken)(RateLimit(cfg.RateLimit.RPS, cfg.RateLimit.Burst)(h))
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleHealth)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /v1/status", guard(http.HandlerFunc(s.handleStatus)))
	mux.Handle("POST /v1/completions", guard(http.HandlerFunc(s.handleCompletion)))
	mux.Handle("/ws", guard(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		HandleWS(w, r, backend, logger)
	})))

	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Addr returns the bound address (e.g. "127.0.0.1:8080") after Run has started. Empty before Run.
func (s *Server) Addr() string {
	s.addrMu.RLock()
	defer s.addrMu.RUnlock()
	return s.addr
}

// ListenErr returns the error from the initial Listen in Run, if any.
func (s *Server) ListenErr() error {
	s.listenErrMu.Lock()
	defer s.listenErrMu.Unlock()
	return s.listenErr
}

// Handler returns the server's HTTP handler, for tests that do not bind a port.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// netListen is the function used to listen; tests may replace it to force Listen errors.
var netListen = func(network, address string) (net.Listener, error) {
	return net.Listen(network, address)
}

// serverShutdown is the function used to shut down the server; tests may replace it.
var serverShutdown = func(srv *http.Server, ctx context.Context) error {
	return srv.Shutdown(ctx)
}

// Run listens on the configured port and serves until shutdown is closed. Returns nil when shut down.
func (s *Server) Run(shutdown <-chan struct{}) error {
	ln, err := netListen("tcp", ":"+strconv.Itoa(s.cfg.Port))
	if err != nil {
		s.listenErrMu.Lock()
		s.listenErr = err
		s.listenErrMu.Unlock()
		return err
	}
	s.addrMu.Lock()
	s.addr = ln.Addr().String()
	s.addrMu.Unlock()
	s.logger.Info("gateway listening", "addr", s.Addr())

	done := make(chan error, 1)
	go func() {
		done <- s.server.Serve(ln)
	}()

	select {
	case <-shutdown:
	case err := <-done:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := serverShutdown(s.server, ctx); err != nil {
		return err
	}
	<-done
	return nil
}

type healthResponse struct {
	Status    domain.PoolHealth `json:"status"`
	Total     int               `json:"total"`
	Available int               `json:"available"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := s.backend.Status()
	code := http.StatusOK
	if st.Health == domain.HealthUnavailable {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, healthResponse{Status: st.Health, Total: st.Total, Available: st.Available})
}

// handleStatus reports every key in masked form along with the pool health.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.backend.Status())
}

type completionRequest struct {
	Prompt string `json:"prompt"`
}

type completionResponse struct {
	Content string `json:"content"`
}

func (s *Server) handleCompletion(w http.ResponseWriter, r *http.Request) {
	var req completionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeError(w, http.StatusBadRequest, "prompt must not be empty")
		return
	}
	out, err := s.backend.Generate(r.Context(), req.Prompt)
	if err != nil {
		code := statusFor(err)
		s.logger.Warn("completion failed", "status", code, "error", err)
		writeError(w, code, publicError(code))
		return
	}
	writeJSON(w, http.StatusOK, completionResponse{Content: out})
}

// statusFor maps a provider error to the gateway's HTTP status.
func statusFor(err error) int {
	if errors.Is(err, llm.ErrNoUsableKeys) {
		return http.StatusServiceUnavailable
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}

// publicError is the message clients see for a failed completion. Provider
// errors stay in the server log.
func publicError(code int) string {
	switch code {
	case http.StatusServiceUnavailable:
		return "no usable API keys remain"
	case http.StatusGatewayTimeout:
		return "upstream request timed out"
	default:
		return "upstream request failed"
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
