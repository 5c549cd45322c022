// Package http provides the HTTP server infrastructure.
// Clean Architecture: Framework/driver layer - outermost circle.
package http

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/0xcro3dile/ragchat/internal/domain/entities"
	"github.com/0xcro3dile/ragchat/internal/domain/usecases"
	"github.com/0xcro3dile/ragchat/internal/metrics"
)

//go:embed templates/*
var templatesFS embed.FS

//go:embed static/*
var staticFS embed.FS

const (
	requestIDHeader = "X-Request-ID"
	maxBodyBytes    = 64 << 10
	shutdownTimeout = 5 * time.Second
)

type ctxKey int

const requestIDKey ctxKey = iota

// Answerer answers one chat question.
type Answerer interface {
	Ask(ctx context.Context, req *entities.QuestionRequest) (*entities.AnswerResponse, error)
}

// Options configures the server.
type Options struct {
	Addr           string
	BackendURL     string // where the UI posts questions; empty means same origin
	AllowedOrigins []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	Title          string
	Greeting       string
}

// Server is the HTTP server for the chat API and UI.
type Server struct {
	qa      Answerer
	metrics *metrics.Metrics
	logger  *zap.Logger
	opts    Options
	index   *template.Template
	router  *mux.Router
}

// NewServer creates a new HTTP server.
func NewServer(qa Answerer, m *metrics.Metrics, opts Options, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.New()
	}
	tmpl, err := template.ParseFS(templatesFS, "templates/index.html")
	if err != nil {
		return nil, fmt.Errorf("parsing templates: %w", err)
	}

	s := &Server{
		qa:      qa,
		metrics: m,
		logger:  logger,
		opts:    opts,
		index:   tmpl,
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() *mux.Router {
	router := mux.NewRouter()
	router.Use(s.requestIDMiddleware, s.loggingMiddleware, s.corsMiddleware)

	// API
	router.HandleFunc("/chat", s.handleChat).Methods(http.MethodPost)
	router.HandleFunc("/chat", func(http.ResponseWriter, *http.Request) {}).Methods(http.MethodOptions)
	router.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet)
	router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)

	// UI
	staticContent, _ := fs.Sub(staticFS, "static")
	router.PathPrefix("/static/").Handler(http.StripPrefix("/static/", http.FileServer(http.FS(staticContent))))
	router.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)

	return router
}

// Handler returns the root handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start runs the HTTP server until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:         s.opts.Addr,
		Handler:      s.router,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
	}

	s.logger.Info("ragchat server starting", zap.String("addr", s.opts.Addr))

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("shutdown", zap.Error(err))
		}
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// handleIndex renders the chat UI.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := s.index.Execute(w, struct {
		Title      string
		Greeting   string
		BackendURL string
	}{s.opts.Title, s.opts.Greeting, s.opts.BackendURL})
	if err != nil {
		s.requestLogger(r).Error("rendering index", zap.Error(err))
	}
}

// handleChat answers one question. Every failure, whatever its cause, yields
// the same 500 body.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	outcome := metrics.OutcomeOK
	defer func() {
		s.metrics.ChatRequests.WithLabelValues(outcome).Inc()
		s.metrics.ChatDuration.Observe(time.Since(start).Seconds())
	}()
	logger := s.requestLogger(r)

	var req entities.QuestionRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		outcome = metrics.OutcomeBadRequest
		logger.Warn("malformed chat request", zap.Error(err))
		writeFailure(w)
		return
	}

	resp, err := s.qa.Ask(r.Context(), &req)
	if err != nil {
		if errors.Is(err, usecases.ErrEmptyQuestion) {
			outcome = metrics.OutcomeBadRequest
			logger.Warn("chat request without question")
		} else {
			outcome = metrics.OutcomeError
			logger.Error("answering question", zap.Error(err))
		}
		writeFailure(w)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleHealth returns server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeFailure(w http.ResponseWriter) {
	writeJSON(w, http.StatusInternalServerError, entities.FailureResponse{Result: entities.FailureMessage})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) requestLogger(r *http.Request) *zap.Logger {
	if id, ok := r.Context().Value(requestIDKey).(string); ok {
		return s.logger.With(zap.String("request_id", id))
	}
	return s.logger
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil || len(id) != 36 {
			id = uuid.New().String()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tmpl, err := cur.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}
		s.metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		s.requestLogger(r).Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := s.allowOrigin(r.Header.Get("Origin")); origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+requestIDHeader)
			if origin != "*" {
				w.Header().Add("Vary", "Origin")
			}
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) allowOrigin(origin string) string {
	for _, o := range s.opts.AllowedOrigins {
		if o == "*" {
			return "*"
		}
		if origin != "" && o == origin {
			return origin
		}
	}
	return ""
}
