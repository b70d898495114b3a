package web

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"net/http"
	"time"

	"image-compressor-go/internal/config"
	"image-compressor-go/internal/session"
	"image-compressor-go/internal/statistics"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

//go:embed static
var staticFiles embed.FS

type Server struct {
	cfg        *config.Config
	log        logrus.FieldLogger
	sessions   *session.Manager
	stats      *statistics.Statistics
	router     *mux.Router
	httpServer *http.Server
	registry   *prometheus.Registry
	wsUpgrader websocket.Upgrader
}

type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type QualityRequest struct {
	Quality int `json:"quality"`
}

type AdBlockRequest struct {
	Blocked bool `json:"blocked"`
}

type PrivacyRequest struct {
	Open bool `json:"open"`
}

func NewServer(cfg *config.Config, log logrus.FieldLogger, sessions *session.Manager, stats *statistics.Statistics) *Server {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		statistics.NewCollector(stats),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	s := &Server{
		cfg:      cfg,
		log:      log,
		sessions: sessions,
		stats:    stats,
		router:   mux.NewRouter(),
		registry: registry,
		wsUpgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.logRequests)

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/statistics", s.handleGetStatistics).Methods(http.MethodGet)
	api.HandleFunc("/sessions", s.handleCreateSession).Methods(http.MethodPost)

	sess := api.PathPrefix("/sessions/{sid}").Subrouter()
	sess.HandleFunc("", s.withSession(s.handleGetSession)).Methods(http.MethodGet)
	sess.HandleFunc("", s.handleDeleteSession).Methods(http.MethodDelete)
	sess.HandleFunc("/upload", s.withSession(s.handleUpload)).Methods(http.MethodPost)
	sess.HandleFunc("/quality", s.withSession(s.handleQuality)).Methods(http.MethodPut)
	sess.HandleFunc("/compress", s.withSession(s.handleCompress)).Methods(http.MethodPost)
	sess.HandleFunc("/preview", s.withSession(s.handlePreview)).Methods(http.MethodGet)
	sess.HandleFunc("/history", s.withSession(s.handleClearHistory)).Methods(http.MethodDelete)
	sess.HandleFunc("/history/{id}/download", s.withSession(s.handleDownload)).Methods(http.MethodGet)
	sess.HandleFunc("/history/{id}/share", s.withSession(s.handleShare)).Methods(http.MethodPost)
	sess.HandleFunc("/adblock", s.withSession(s.handleAdBlock)).Methods(http.MethodPost)
	sess.HandleFunc("/privacy", s.withSession(s.handlePrivacy)).Methods(http.MethodPost)
	sess.HandleFunc("/ws", s.withSession(s.handleWebSocket))

	s.router.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	static, _ := fs.Sub(staticFiles, "static")
	s.router.PathPrefix("/static/").Handler(
		http.StripPrefix("/static/", http.FileServer(http.FS(static))),
	)
	s.router.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	s.log.Infof("Starting web server on http://localhost%s", addr)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	http.ServeFileFS(w, r, staticFiles, "static/index.html")
}

func (s *Server) handleGetStatistics(w http.ResponseWriter, r *http.Request) {
	data := s.stats.Snapshot()
	data["summary"] = s.stats.GetSummary()
	data["live_sessions"] = s.sessions.Len()

	s.writeJSON(w, APIResponse{
		Success: true,
		Data:    data,
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"duration": time.Since(start).String(),
		}).Debug("HTTP request")
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, data interface{}) {
	s.writeJSONStatus(w, http.StatusOK, data)
}

func (s *Server) writeJSONStatus(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Errorf("Failed to write response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, message string, statusCode int) {
	s.writeJSONStatus(w, statusCode, APIResponse{
		Success: false,
		Error:   message,
	})
}
