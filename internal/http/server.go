package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"hyperkv/pkg/cluster"
	"hyperkv/pkg/configstore"
	"hyperkv/pkg/topology"
)

const (
	contentTypeJSON          = "application/json"
	contentTypeYAML          = "application/yaml"
	defaultHTTPPort          = "8080"
	defaultShutdownTimeout   = time.Second * 5
	defaultReadHeaderTimeout = time.Second
)

// iHistory - сохранённые тексты конфигураций по версиям
type iHistory interface {
	Get(version uint64) ([]byte, error)
}

// Server exposes the published topology over HTTP
type Server struct {
	holder     *topology.Holder
	router     *cluster.Router
	history    iHistory
	gatherer   prometheus.Gatherer
	httpServer *http.Server
	URL        string
	addr       string

	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

// NewServer creates a new server instance
func NewServer(holder *topology.Holder, router *cluster.Router, port string) *Server {
	if port == "" {
		port = defaultHTTPPort
	}
	return &Server{
		holder:            holder,
		router:            router,
		gatherer:          prometheus.DefaultGatherer,
		URL:               "http://localhost:" + port,
		addr:              ":" + port,
		ReadHeaderTimeout: defaultReadHeaderTimeout,
		ShutdownTimeout:   defaultShutdownTimeout,
	}
}

func (s *Server) SetHistory(h iHistory) {
	s.history = h
}

func (s *Server) SetGatherer(g prometheus.Gatherer) {
	s.gatherer = g
}

// Start starts the server
func (s *Server) Start() error {
	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Stop stops the server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	return nil
}

// createRouter builds chi router
func (s *Server) createRouter() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/topology", func(r chi.Router) {
		r.Get("/", s.handleTopology)
		r.Get("/versions", s.handleVersions)
		r.Get("/config", s.handleCurrentConfig)
		r.Get("/{version}/config", s.handleConfigAt)
	})

	r.Get("/route", s.handleRoute)
	r.Get("/instances/{addr}/regions", s.handleInstanceRegions)

	return r
}

func (s *Server) startHTTPServer() error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.createRouter(),
		ReadHeaderTimeout: s.ReadHeaderTimeout,
	}

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	slog.Info("HTTP server started", "addr", s.URL)
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Warn("Error encoding response", "error", err)
	}
}

func (s *Server) writeConfig(w http.ResponseWriter, version uint64, text []byte) {
	w.Header().Set("Content-Type", contentTypeYAML)
	w.Header().Set("X-Topology-Version", strconv.FormatUint(version, 10))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(text); err != nil {
		slog.Warn("Failed to write config", "error", err)
	}
}

// current writes 503 and returns nil until the first snapshot is published.
func (s *Server) current(w http.ResponseWriter) *topology.Snapshot {
	snap := s.holder.Current()
	if snap == nil {
		s.writeJSON(w, http.StatusServiceUnavailable, NewErrorResponse("No topology published yet"))
	}
	return snap
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, NewOKResponse())
}

func (s *Server) handleTopology(w http.ResponseWriter, r *http.Request) {
	snap := s.current(w)
	if snap == nil {
		return
	}
	s.writeJSON(w, http.StatusOK, NewDataResponse(newTopologyView(snap)))
}

func (s *Server) handleVersions(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, NewDataResponse(s.holder.Versions()))
}

func (s *Server) handleCurrentConfig(w http.ResponseWriter, r *http.Request) {
	snap := s.current(w)
	if snap == nil {
		return
	}
	s.writeConfig(w, snap.Version(), snap.ConfigText())
}

func (s *Server) handleConfigAt(w http.ResponseWriter, r *http.Request) {
	version, err := strconv.ParseUint(chi.URLParam(r, "version"), 10, 64)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse("Bad version"))
		return
	}

	if snap, ok := s.holder.At(version); ok {
		s.writeConfig(w, version, snap.ConfigText())
		return
	}

	// Старые версии вытесняются из памяти, но остаются на диске
	if s.history != nil {
		text, err := s.history.Get(version)
		switch {
		case err == nil:
			s.writeConfig(w, version, text)
			return
		case !errors.Is(err, configstore.ErrNotFound):
			s.writeJSON(w, http.StatusInternalServerError, NewErrorResponse(err.Error()))
			return
		}
	}

	s.writeJSON(w, http.StatusNotFound, NewErrorResponse("Version not found"))
}

func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	space := r.URL.Query().Get("space")
	key := r.URL.Query().Get("key")
	if space == "" || key == "" {
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse("Missing space or key"))
		return
	}

	route, err := s.router.PointLeader(space, []byte(key))
	switch {
	case errors.Is(err, cluster.ErrNoTopology):
		s.writeJSON(w, http.StatusServiceUnavailable, NewErrorResponse(err.Error()))
	case errors.Is(err, cluster.ErrUnknownSpace), errors.Is(err, cluster.ErrNoRoute):
		s.writeJSON(w, http.StatusNotFound, NewErrorResponse(err.Error()))
	case err != nil:
		s.writeJSON(w, http.StatusInternalServerError, NewErrorResponse(err.Error()))
	default:
		s.writeJSON(w, http.StatusOK, NewDataResponse(newRouteView(route)))
	}
}

func (s *Server) handleInstanceRegions(w http.ResponseWriter, r *http.Request) {
	addr, err := netip.ParseAddrPort(chi.URLParam(r, "addr"))
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse("Bad instance address"))
		return
	}
	snap := s.current(w)
	if snap == nil {
		return
	}

	inst, ok := snap.RefreshVersions(topology.Instance{Addr: addr})
	if !ok {
		s.writeJSON(w, http.StatusNotFound, NewErrorResponse("Instance not found"))
		return
	}

	regions := snap.RegionsFor(inst)
	out := make([]string, 0, len(regions))
	for _, id := range regions {
		out = append(out, id.String())
	}
	s.writeJSON(w, http.StatusOK, NewDataResponse(map[string]any{
		"version":  snap.Version(),
		"instance": newHostView(inst),
		"regions":  out,
	}))
}
