// Package http exposes the JSON API: one voice endpoint that feeds the
// dispatcher plus direct endpoints for payment authorization, investing
// and account queries.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"voicepay/internal/auth"
	"voicepay/internal/dispatch"
	"voicepay/internal/portfolio"
	"voicepay/internal/saga"
	"voicepay/internal/storage"
	"voicepay/internal/transfer"
)

type Server struct {
	http.Server

	dispatcher *dispatch.Dispatcher
	transfers  *transfer.Executor
	portfolio  *portfolio.Service
	storage    *storage.SQLiteRepository
	auth       *auth.Service
	machine    *saga.Machine

	rateLimiter  *rateLimiter
	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server.
func NewServer(addr string, d *dispatch.Dispatcher, tx *transfer.Executor, pf *portfolio.Service, repo *storage.SQLiteRepository, authSvc *auth.Service, machine *saga.Machine) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		dispatcher:  d,
		transfers:   tx,
		portfolio:   pf,
		storage:     repo,
		auth:        authSvc,
		machine:     machine,
		rateLimiter: newRateLimiter(),
	}

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", handleReady)

	mux.HandleFunc("GET /api/auth/google", s.withRequestLog(s.handleGoogleLogin))
	mux.HandleFunc("GET /api/auth/callback", s.withRequestLog(s.handleGoogleCallback))
	mux.HandleFunc("GET /api/auth/me", s.withRequestLog(s.requireAuth(s.handleMe)))

	mux.HandleFunc("POST /api/process_voice", s.withRequestLog(s.requireAuth(s.handleProcessVoice)))
	mux.HandleFunc("POST /api/payment", s.withRequestLog(s.requireAuth(s.handlePayment)))
	mux.HandleFunc("POST /api/invest", s.withRequestLog(s.requireAuth(s.handleInvest)))
	mux.HandleFunc("POST /api/clear-conversation/{id}", s.withRequestLog(s.requireAuth(s.handleClearConversation)))
	mux.HandleFunc("POST /api/user/{id}/phone", s.withRequestLog(s.requireAuth(s.handleSavePhone)))

	mux.HandleFunc("GET /api/balance/{id}", s.withRequestLog(s.requireAuth(s.handleBalance)))
	mux.HandleFunc("GET /api/transactions/{id}", s.withRequestLog(s.requireAuth(s.handleTransactions)))
	mux.HandleFunc("GET /api/portfolio/{id}", s.withRequestLog(s.requireAuth(s.handlePortfolio)))
	mux.HandleFunc("GET /api/investment-analysis/{id}", s.withRequestLog(s.requireAuth(s.handleInvestmentAnalysis)))

	return s
}

// Shutdown gracefully shuts down the server and cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// withRequestLog adds request logging, rate limiting and basic security
// headers to responses.
func (s *Server) withRequestLog(next http.HandlerFunc) http.HandlerFunc {
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
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		r = r.WithContext(ctx)

		slog.InfoContext(ctx, "Request started",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"client_ip", clientIP)

		if r.Method == http.MethodPost && !s.rateLimiter.allow(clientIP) {
			slog.WarnContext(ctx, "Rate limit exceeded", "client_ip", clientIP, "url", r.URL.Path)
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		duration := time.Since(start)
		slog.InfoContext(ctx, "Request completed",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"status", rw.statusCode,
			"duration_ms", duration.Milliseconds(),
			"client_ip", clientIP)
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Simple in-memory rate limiter
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

// cleanupStaleEntries removes client entries older than 10 minutes
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
		if rl.stopCleanup != nil {
			close(rl.stopCleanup)
		}
	})
}

func (rl *rateLimiter) allow(clientIP string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	client, exists := rl.clients[clientIP]

	if !exists {
		rl.clients[clientIP] = &clientInfo{
			lastRequest: now,
			requests:    1,
		}
		return true
	}

	// Reset counter if more than 1 minute has passed
	if now.Sub(client.lastRequest) > time.Minute {
		client.requests = 1
		client.lastRequest = now
		return true
	}

	// Allow up to 60 requests per minute
	client.requests++
	client.lastRequest = now

	return client.requests <= 60
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
