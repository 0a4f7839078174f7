package web

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hpungsan/pronounguard/internal/config"
	"github.com/hpungsan/pronounguard/internal/engine"
)

// NewServer creates and configures the HTTP server for the JSON API.
// A nil db disables the /v1/directory routes.
func NewServer(eng *engine.Engine, db *sql.DB, cfg *config.Config, logger *zap.Logger, version, bind string, port int) *http.Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handlers{
		engine:  eng,
		db:      db,
		cfg:     cfg,
		version: version,
		log:     logger,
	}

	mux := http.NewServeMux()

	// Routes using Go 1.22+ pattern syntax
	mux.HandleFunc("GET /healthz", h.HandleHealth)
	mux.HandleFunc("POST /v1/analyze", h.HandleAnalyze)
	mux.HandleFunc("POST /v1/correct", h.HandleCorrect)
	mux.HandleFunc("POST /v1/check", h.HandleCheck)
	mux.HandleFunc("GET /v1/resolve/{id}", h.HandleResolve)
	mux.HandleFunc("GET /v1/stats", h.HandleStats)
	mux.HandleFunc("DELETE /v1/records", h.HandleClear)
	if db != nil {
		mux.HandleFunc("GET /v1/directory", h.HandleDirectoryList)
		mux.HandleFunc("GET /v1/directory/{id}", h.HandleDirectoryGet)
		mux.HandleFunc("PUT /v1/directory/{id}", h.HandleDirectoryPut)
		mux.HandleFunc("DELETE /v1/directory/{id}", h.HandleDirectoryDelete)
	}

	// Wrap with security headers
	handler := securityHeaders(mux)

	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", bind, port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// securityHeaders adds security-related HTTP headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'none'; style-src 'self'")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		next.ServeHTTP(w, r)
	})
}

// Run starts the HTTP server and handles graceful shutdown on SIGINT/SIGTERM
// or when ctx is cancelled.
func Run(ctx context.Context, srv *http.Server, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logger.Info("pronounguard API listening", zap.String("addr", "http://"+srv.Addr))

	if strings.Contains(srv.Addr, "0.0.0.0") || strings.Contains(srv.Addr, "::") {
		logger.Warn("server is binding to all interfaces and may be accessible from the network")
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
