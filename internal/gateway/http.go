package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/rahul/scout/internal/agent"
	"github.com/rahul/scout/internal/observability"
)

const maxBodyBytes = 1 << 20

type Server struct {
	agent   Agent
	metrics *observability.Metrics
	logger  *observability.Logger
}

func NewServer(a Agent, metrics *observability.Metrics, logger *observability.Logger) *Server {
	if logger == nil {
		logger = observability.NewNop()
	}
	return &Server{agent: a, metrics: metrics, logger: logger}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	r.Post("/execute", s.execute)
	r.Get("/health", s.health)
	r.Get("/sessions", s.listSessions)
	r.Delete("/sessions/{id}", s.releaseSession)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		if r.URL.Path == "/metrics" {
			return
		}
		s.logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Data    any    `json:"data"`
}

func writeJSONStatus(w http.ResponseWriter, value any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, msg string, statusCode int) {
	writeJSONStatus(w, errorResponse{Success: false, Error: msg}, statusCode)
}

func (s *Server) execute(w http.ResponseWriter, r *http.Request) {
	var req agent.Request
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			writeError(w, agent.ErrEmptyQuery.Error(), http.StatusBadRequest)
			return
		}
		writeError(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	defer func() {
		if p := recover(); p != nil {
			s.logger.Error("execute panic", zap.Any("panic", p), zap.Stack("stack"))
			writeError(w, "internal error", http.StatusInternalServerError)
		}
	}()

	resp, err := s.agent.Execute(r.Context(), req)
	if errors.Is(err, agent.ErrEmptyQuery) {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSONStatus(w, resp, http.StatusOK)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	h := s.agent.Health(ctx)
	status := http.StatusOK
	if !h.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSONStatus(w, h, status)
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	writeJSONStatus(w, map[string]any{"sessions": s.agent.ParkedSessions()}, http.StatusOK)
}

func (s *Server) releaseSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := s.agent.ReleaseSession(id)
	if errors.Is(err, agent.ErrSessionNotFound) {
		writeError(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Start serves until ctx is done.
func (s *Server) Start(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	s.logger.Info("http server listening", zap.String("addr", addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
