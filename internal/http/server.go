package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"sync"
	"time"

	"cashplan/internal/core"
	"cashplan/internal/export"
	"cashplan/internal/identity"
	applog "cashplan/internal/log"
)

// Service is the planner surface the HTTP layer depends on.
type Service interface {
	Projects() []core.Project
	Project(id string) (core.Project, error)
	CreateProject(ctx context.Context, info core.ProjectInfo) (string, error)
	DeleteProject(ctx context.Context, id string) error

	AddCategory(ctx context.Context, projectID string, cat core.BudgetCategory) (string, error)
	UpdateCategory(ctx context.Context, projectID string, cat core.BudgetCategory) error
	DeleteCategory(ctx context.Context, projectID, categoryID string) error

	CreateScenario(ctx context.Context, projectID, name, baseScenarioID string) (string, error)
	DeleteScenario(ctx context.Context, projectID, scenarioID string) error
	SwitchScenario(ctx context.Context, projectID, scenarioID string) error

	RecordActual(ctx context.Context, projectID, categoryID string, month int, amount float64) error
	SetAdjustment(ctx context.Context, projectID, scenarioID, categoryID string, amount float64) error
	Summary(projectID, scenarioID string) (core.Summary, error)

	Export(projectID, exportedBy string) (export.Envelope, error)
	Import(ctx context.Context, env export.Envelope) (string, error)
	LastError() error
}

type Server struct {
	http.Server
	planner      Service
	users        identity.Provider
	logger       *applog.Logger
	rateLimiter  *rateLimiter
	shutdownOnce sync.Once
}

// Simple in-memory rate limiter, per client IP.
type rateLimiter struct {
	mu           sync.Mutex
	clients      map[string]*clientInfo
	stopCleanup  chan struct{}
	shutdownOnce sync.Once
}

type clientInfo struct {
	lastRequest time.Time
	requests    int
}

func newRateLimiter() *rateLimiter {
	rl := &rateLimiter{
		clients:     make(map[string]*clientInfo),
		stopCleanup: make(chan struct{}),
	}
	go rl.startCleanup()
	return rl
}

func (rl *rateLimiter) startCleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanupStaleEntries()
		case <-rl.stopCleanup:
			return
		}
	}
}

// cleanupStaleEntries removes client entries older than 10 minutes.
func (rl *rateLimiter) cleanupStaleEntries() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-10 * time.Minute)
	for ip, client := range rl.clients {
		if client.lastRequest.Before(cutoff) {
			delete(rl.clients, ip)
		}
	}
}

func (rl *rateLimiter) stop() {
	rl.shutdownOnce.Do(func() {
		close(rl.stopCleanup)
	})
}

func (rl *rateLimiter) allow(clientIP string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	client, exists := rl.clients[clientIP]
	if !exists {
		rl.clients[clientIP] = &clientInfo{lastRequest: now, requests: 1}
		return true
	}

	if now.Sub(client.lastRequest) > time.Minute {
		client.requests = 1
		client.lastRequest = now
		return true
	}

	// Allow up to 120 mutations per minute per client.
	client.requests++
	client.lastRequest = now
	return client.requests <= 120
}

// NewServer configures routes, returning a ready-to-run http.Server.
func NewServer(addr string, planner Service, users identity.Provider, logger *applog.Logger) *Server {
	if users == nil {
		users = identity.HeaderProvider{DefaultRole: identity.RoleEditor}
	}
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}

	mux := http.NewServeMux()
	s := &Server{
		Server: http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		planner:     planner,
		users:       users,
		logger:      logger.WithComponent(applog.ComponentHTTP),
		rateLimiter: newRateLimiter(),
	}

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("GET /projects", s.with(s.handleListProjects))
	mux.HandleFunc("POST /projects", s.with(s.handleCreateProject))
	mux.HandleFunc("GET /projects/{id}", s.with(s.handleGetProject))
	mux.HandleFunc("DELETE /projects/{id}", s.with(s.handleDeleteProject))

	mux.HandleFunc("POST /projects/{id}/categories", s.with(s.handleAddCategory))
	mux.HandleFunc("PUT /projects/{id}/categories/{catID}", s.with(s.handleUpdateCategory))
	mux.HandleFunc("DELETE /projects/{id}/categories/{catID}", s.with(s.handleDeleteCategory))

	mux.HandleFunc("POST /projects/{id}/scenarios", s.with(s.handleCreateScenario))
	mux.HandleFunc("DELETE /projects/{id}/scenarios/{scenarioID}", s.with(s.handleDeleteScenario))
	mux.HandleFunc("POST /projects/{id}/scenarios/{scenarioID}/switch", s.with(s.handleSwitchScenario))

	mux.HandleFunc("PUT /projects/{id}/actuals", s.with(s.handleRecordActual))
	mux.HandleFunc("PUT /projects/{id}/adjustments", s.with(s.handleSetAdjustment))

	mux.HandleFunc("GET /projects/{id}/summary", s.with(s.handleSummary))
	mux.HandleFunc("GET /projects/{id}/projections", s.with(s.handleProjections))

	mux.HandleFunc("GET /projects/{id}/export", s.with(s.handleExport))
	mux.HandleFunc("POST /projects/import", s.with(s.handleImport))

	return s
}

// Shutdown stops the rate limiter cleanup and the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// with adds security headers, rate limiting, and request logging.
func (s *Server) with(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		clientIP := r.Header.Get("X-Forwarded-For")
		if clientIP == "" {
			clientIP = r.Header.Get("X-Real-IP")
		}
		if clientIP == "" {
			clientIP = r.RemoteAddr
		}

		requestID := generateRequestID()
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		if r.Method != http.MethodGet && !s.rateLimiter.allow(clientIP) {
			s.logger.WarnContext(ctx, "Rate limit exceeded",
				applog.FieldClientIP, clientIP,
				applog.FieldMethod, r.Method,
				applog.FieldPath, r.URL.Path)
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cache-Control", "no-store")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		s.logger.InfoContext(ctx, "Request completed",
			applog.FieldRequestID, requestID,
			applog.FieldMethod, r.Method,
			applog.FieldPath, r.URL.Path,
			applog.FieldStatusCode, rw.statusCode,
			applog.FieldDuration, time.Since(start).Milliseconds(),
			applog.FieldClientIP, clientIP)
	}
}

type requestIDKey struct{}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleReady reports not-ready while the last persistence attempt is
// failing. Mutations still work; this only steers load balancers.
func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if err := s.planner.LastError(); err != nil {
		writeError(w, http.StatusServiceUnavailable, "persistence degraded")
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
