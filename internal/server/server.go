package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/abramin/codegraph/internal/record"
	"github.com/abramin/codegraph/internal/store"
	"github.com/abramin/codegraph/internal/telemetry"
)

// Server is the codegraph HTTP server.
type Server struct {
	store      *store.Store
	httpServer *http.Server
	port       int
}

// Config holds server configuration.
type Config struct {
	Port     int
	StoreDir string
}

// New creates a new server instance.
func New(cfg Config) (*Server, error) {
	st, err := store.OpenDir(cfg.StoreDir)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	s := &Server{
		store: st,
		port:  cfg.Port,
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      telemetry.Middleware(s.routes()),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/health", s.corsMiddleware(s.handleHealth))
	mux.HandleFunc("/api/stats", s.corsMiddleware(s.handleStats))
	mux.HandleFunc("/api/records", s.corsMiddleware(s.handleRecords))
	mux.HandleFunc("/api/nodes/", s.corsMiddleware(s.handleNode))
	mux.HandleFunc("/api/search", s.corsMiddleware(s.handleSearch))
	mux.HandleFunc("/api/graph/", s.corsMiddleware(s.handleGraph))
	mux.HandleFunc("/api/files", s.corsMiddleware(s.handleFiles))
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/", s.handleIndex)

	return mux
}

// Start starts the server and blocks until SIGINT or SIGTERM.
func (s *Server) Start() error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server.start", "addr", fmt.Sprintf("http://localhost:%d", s.port))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-stop:
	case err := <-errCh:
		s.store.Close()
		return fmt.Errorf("server error: %w", err)
	}
	slog.Info("server.shutdown")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	if err := s.store.Close(); err != nil {
		return fmt.Errorf("closing store: %w", err)
	}

	slog.Info("server.stopped")
	return nil
}

// Port returns the configured port.
func (s *Server) Port() int {
	return s.port
}

// corsMiddleware adds CORS headers for local development.
func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		slog.Error("server.encode", "error", err)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func requireGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return false
	}
	return true
}

// intParam reads a non-negative integer query parameter.
func intParam(r *http.Request, name string, fallback int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

// handleHealth returns server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleStats returns graph statistics.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}

	stats, err := s.store.GetStats()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// handleRecords handles GET /api/records?kind=node|edge&type=&limit=&offset=
// and returns records in their serialized wire shape.
func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}

	limit := intParam(r, "limit", 100)
	offset := intParam(r, "offset", 0)
	kind := r.URL.Query().Get("kind")

	records := []record.Record{}
	switch kind {
	case "", string(record.KindNode):
		nodes, err := s.store.ListNodes(store.NodeFilter{
			Type:   r.URL.Query().Get("type"),
			Limit:  limit,
			Offset: offset,
		})
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to list nodes")
			return
		}
		for _, n := range nodes {
			records = append(records, n.Record())
		}
	case string(record.KindEdge):
		edges, err := s.store.ListEdges(limit, offset)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to list edges")
			return
		}
		for _, e := range edges {
			records = append(records, e.Record())
		}
	default:
		writeError(w, http.StatusBadRequest, "kind must be node or edge")
		return
	}

	writeJSON(w, http.StatusOK, records)
}

// handleNode handles GET /api/nodes/:id
func (s *Server) handleNode(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/nodes/")
	id, err := strconv.ParseInt(path, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid node ID")
		return
	}

	n, err := s.store.GetNode(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "node not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get node")
		return
	}

	out, err := s.store.GetOutgoingEdges(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get edges")
		return
	}
	in, err := s.store.GetIncomingEdges(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get edges")
		return
	}

	response := struct {
		*store.Node
		Outgoing []store.Edge `json:"outgoing"`
		Incoming []store.Edge `json:"incoming"`
	}{
		Node:     n,
		Outgoing: out,
		Incoming: in,
	}

	writeJSON(w, http.StatusOK, response)
}

// handleSearch handles GET /api/search?q=xxx
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}

	query := r.URL.Query().Get("q")
	if query == "" {
		query = r.URL.Query().Get("query")
	}
	if query == "" {
		writeError(w, http.StatusBadRequest, "q parameter required")
		return
	}

	results, err := s.store.SearchNodes(query, intParam(r, "limit", 50))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}

	writeJSON(w, http.StatusOK, results)
}

// handleGraph handles GET /api/graph/:id?depth=&direction=&relation=&hide=
func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/graph/")
	id, err := strconv.ParseInt(path, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid node ID")
		return
	}

	q := r.URL.Query()
	filter := DefaultGraphFilter()
	filter.Relations = q["relation"]
	filter.HideTypes = q["hide"]
	switch d := Direction(q.Get("direction")); d {
	case "":
	case DirectionOut, DirectionIn, DirectionBoth:
		filter.Direction = d
	default:
		writeError(w, http.StatusBadRequest, "direction must be out, in or both")
		return
	}

	resp, err := NewGraphBuilder(s.store, filter).BuildFromRoot(id, intParam(r, "depth", 2))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "node not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to build graph")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleFiles handles GET /api/files
func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}

	files, err := s.store.ListFiles()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list files")
		return
	}
	if files == nil {
		files = []store.File{}
	}

	writeJSON(w, http.StatusOK, files)
}

// handleMetrics serves prometheus metrics when that exporter is enabled.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	h := telemetry.MetricsHandler()
	if h == nil {
		writeError(w, http.StatusNotFound, "metrics exporter is not prometheus")
		return
	}
	h.ServeHTTP(w, r)
}

// handleIndex lists the available endpoints.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	base := "http://localhost:" + strconv.Itoa(s.port)
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "codegraph",
		"endpoints": []string{
			base + "/api/health",
			base + "/api/stats",
			base + "/api/records?kind=node&limit=100",
			base + "/api/nodes/0",
			base + "/api/graph/0?depth=2&direction=out",
			base + "/api/search?q=main",
			base + "/api/files",
			base + "/metrics",
		},
	})
}
