// Package httpapi serves metrics, health and the alert feed over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/haukened/exfil-watch/internal/dns/common/log"
	"github.com/haukened/exfil-watch/internal/dns/domain"
	"github.com/haukened/exfil-watch/internal/dns/gateways/alertlog"
)

const (
	defaultAlertLimit = 100
	maxAlertLimit     = 10_000
)

var errInvalidLimit = errors.New("limit must be a non-negative integer")

// WhitelistChecker answers whether a base domain is trusted.
type WhitelistChecker interface {
	Decide(base string) domain.AllowDecision
}

// Options configures a Server. Metrics and Whitelist are optional.
type Options struct {
	Addr       string
	AlertsPath string
	Metrics    http.Handler
	Whitelist  WhitelistChecker
	Logger     log.Logger
}

// Server is the read-only HTTP surface of the detector.
type Server struct {
	opts   Options
	router *mux.Router
	logger log.Logger

	mu       sync.Mutex
	srv      *http.Server
	listener net.Listener
	done     chan struct{}
}

// New builds a server and registers its routes.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.GetLogger()
	}
	s := &Server{
		opts:   opts,
		router: mux.NewRouter(),
		logger: opts.Logger,
	}
	s.RegisterRoutes(s.router)
	return s
}

// RegisterRoutes adds the detector endpoints to router.
func (s *Server) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/api/alerts", s.handleAlerts).Methods(http.MethodGet)
	router.HandleFunc("/api/whitelist/{domain}", s.handleCheckDomain).Methods(http.MethodGet)
	if s.opts.Metrics != nil {
		router.Handle("/metrics", s.opts.Metrics).Methods(http.MethodGet)
	}
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return errors.New("http server already running")
	}

	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.opts.Addr, err)
	}

	s.srv = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	s.listener = ln
	s.done = make(chan struct{})

	srv, done := s.srv, s.done
	go func() {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error(map[string]any{"error": err}, "http server stopped")
		}
	}()

	s.logger.Info(map[string]any{"address": ln.Addr().String()}, "http server started")
	return nil
}

// Addr returns the bound address while running, otherwise the configured one.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.opts.Addr
}

// Shutdown stops accepting requests and waits for in-flight ones until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv, done := s.srv, s.done
	s.srv, s.listener = nil, nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	err := srv.Shutdown(ctx)
	<-done
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type alertsResponse struct {
	Summary alertlog.Summary   `json:"summary"`
	Alerts  []alertlog.Payload `json:"alerts"`
}

// handleAlerts serves the alert log newest first. The summary always covers
// the whole file; limit only trims the list.
func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid limit", err)
		return
	}

	records, err := alertlog.ReadFile(s.opts.AlertsPath)
	if err != nil {
		s.logger.Error(map[string]any{"path": s.opts.AlertsPath, "error": err}, "failed to read alert log")
		writeError(w, http.StatusInternalServerError, "failed to read alert log", err)
		return
	}

	writeJSON(w, http.StatusOK, alertsResponse{
		Summary: alertlog.Summarize(records),
		Alerts:  alertlog.NewPayloads(alertlog.Newest(records, limit)),
	})
}

type checkResponse struct {
	Domain      string `json:"domain"`
	BaseDomain  string `json:"base_domain"`
	Allowed     bool   `json:"allowed"`
	MatchedRule string `json:"matched_rule,omitempty"`
	Source      string `json:"source,omitempty"`
}

// handleCheckDomain reports whether a queried name would be skipped as whitelisted.
func (s *Server) handleCheckDomain(w http.ResponseWriter, r *http.Request) {
	if s.opts.Whitelist == nil {
		writeError(w, http.StatusNotFound, "whitelist not configured", nil)
		return
	}

	name := strings.ToLower(strings.TrimSpace(mux.Vars(r)["domain"]))
	parsed, ok := domain.ParseName(name)
	if !ok {
		writeError(w, http.StatusBadRequest, "name needs at least two labels", nil)
		return
	}

	d := s.opts.Whitelist.Decide(parsed.BaseDomain)
	writeJSON(w, http.StatusOK, checkResponse{
		Domain:      parsed.Full,
		BaseDomain:  parsed.BaseDomain,
		Allowed:     d.Allowed,
		MatchedRule: d.MatchedRule,
		Source:      d.Source,
	})
}

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return defaultAlertLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errInvalidLimit
	}
	if n > maxAlertLimit {
		n = maxAlertLimit
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]any{
		"error":  message,
		"status": status,
	}
	if err != nil {
		response["details"] = err.Error()
	}
	writeJSON(w, status, response)
}
